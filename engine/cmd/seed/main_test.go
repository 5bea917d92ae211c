package main

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fmonfasani/mini-lab-ott/engine/lifecycle"
	"github.com/fmonfasani/mini-lab-ott/engine/types"
)

// seedStore is an in-memory Store for exercising the seed write path.
type seedStore struct {
	nextID       int64
	closed       map[int64]bool
	metricErr    error
	closeErr     error
	metricWrites int
	logWrites    int
}

func newSeedStore() *seedStore {
	return &seedStore{closed: make(map[int64]bool)}
}

func (s *seedStore) CreateRun(ctx context.Context, kind types.TestKind, params json.RawMessage) (int64, error) {
	s.nextID++
	return s.nextID, nil
}

func (s *seedStore) CloseRun(ctx context.Context, runID int64, ok bool, durationMS int64) error {
	if s.closeErr != nil {
		return s.closeErr
	}
	s.closed[runID] = true
	return nil
}

func (s *seedStore) WriteMetric(ctx context.Context, runID int64, name string, value float64, pctl *int) error {
	if s.metricErr != nil {
		return s.metricErr
	}
	s.metricWrites++
	return nil
}

func (s *seedStore) WriteLog(ctx context.Context, runID *int64, level types.LogLevel, message string, attrs map[string]interface{}) error {
	s.logWrites++
	return nil
}

func (s *seedStore) RunOutcomes(ctx context.Context, kind types.TestKind, since time.Time) ([]bool, error) {
	return nil, nil
}

func (s *seedStore) MetricValues(ctx context.Context, kind types.TestKind, name string, since time.Time) ([]float64, error) {
	return nil, nil
}

func (s *seedStore) CountErrorLogs(ctx context.Context, substr string, since time.Time) (int64, error) {
	return 0, nil
}

func (s *seedStore) Ping(ctx context.Context) error { return nil }

func seedRequest() types.TestRequest {
	return types.TestRequest{TargetURL: "https://streams.example.com/live/channel1/manifest.mpd"}
}

func TestRunOnePersistsAndClosesRun(t *testing.T) {
	store := newSeedStore()
	logger := logrus.New()

	err := runOne(context.Background(), logger,
		lifecycle.NewManager(store, logger), lifecycle.NewRecorder(store, logger),
		store, types.KindDRM, seedRequest(), rand.New(rand.NewSource(1)))

	require.NoError(t, err)
	assert.True(t, store.closed[1])
	assert.Positive(t, store.metricWrites)
	assert.Equal(t, 1, store.logWrites)
}

func TestRunOneClosesRunOnPersistFailure(t *testing.T) {
	store := newSeedStore()
	store.metricErr = errors.New("disk full")
	logger := logrus.New()

	err := runOne(context.Background(), logger,
		lifecycle.NewManager(store, logger), lifecycle.NewRecorder(store, logger),
		store, types.KindCDN, seedRequest(), rand.New(rand.NewSource(1)))

	require.Error(t, err)
	assert.True(t, store.closed[1], "abandoned run must still be closed")
}

func TestRunOneLogsCloseFailure(t *testing.T) {
	store := newSeedStore()
	store.metricErr = errors.New("disk full")
	store.closeErr = errors.New("connection reset")
	logger, hook := test.NewNullLogger()

	err := runOne(context.Background(), logger,
		lifecycle.NewManager(store, logger), lifecycle.NewRecorder(store, logger),
		store, types.KindCAS, seedRequest(), rand.New(rand.NewSource(1)))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	var sawCloseFailure bool
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.ErrorLevel && entry.Message == "Failed to close abandoned run" {
			sawCloseFailure = true
		}
	}
	assert.True(t, sawCloseFailure, "close failure must be logged, not discarded")
}
