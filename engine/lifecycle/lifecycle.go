package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fmonfasani/mini-lab-ott/engine/types"
)

// Store is the write-path subset of the persistence store used by the
// lifecycle manager.
type Store interface {
	CreateRun(ctx context.Context, kind types.TestKind, params json.RawMessage) (int64, error)
	CloseRun(ctx context.Context, runID int64, ok bool, durationMS int64) error
}

// Manager opens and finalizes test runs. It is the sole writer of TestRun
// fields after creation.
type Manager struct {
	store Store
	log   logrus.FieldLogger
}

// NewManager creates a lifecycle manager.
func NewManager(store Store, log logrus.FieldLogger) *Manager {
	return &Manager{
		store: store,
		log:   log.WithField("component", "lifecycle"),
	}
}

// Open creates a test run in the open state. A store failure here aborts the
// whole request: without a run there is nothing to attribute metrics to.
func (m *Manager) Open(ctx context.Context, kind types.TestKind, params json.RawMessage) (*Run, error) {
	id, err := m.store.CreateRun(ctx, kind, params)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s run: %w", kind, err)
	}

	m.log.WithFields(logrus.Fields{"run_id": id, "kind": kind}).Debug("Opened test run")
	return &Run{
		id:        id,
		kind:      kind,
		startedAt: time.Now(),
		store:     m.store,
		log:       m.log,
	}, nil
}

// Run is a scoped handle over one open test run. Close is guarded so the
// handler can pair an explicit close carrying the real outcome with a
// deferred safety close covering panics and early returns; only the first
// call reaches the store.
type Run struct {
	id        int64
	kind      types.TestKind
	startedAt time.Time
	store     Store
	log       logrus.FieldLogger

	mu     sync.Mutex
	closed bool
}

// ID returns the store-assigned run id.
func (r *Run) ID() int64 {
	return r.id
}

// Kind returns the run's test kind.
func (r *Run) Kind() types.TestKind {
	return r.kind
}

// Close finalizes the run with its outcome and duration. The first call
// wins; subsequent calls are no-ops.
func (r *Run) Close(ctx context.Context, ok bool, durationMS int64) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.log.WithField("run_id", r.id).Debug("Run already closed, ignoring")
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	if durationMS <= 0 {
		durationMS = time.Since(r.startedAt).Milliseconds()
		if durationMS <= 0 {
			durationMS = 1
		}
	}

	if err := r.store.CloseRun(ctx, r.id, ok, durationMS); err != nil {
		return fmt.Errorf("failed to close run %d: %w", r.id, err)
	}

	r.log.WithFields(logrus.Fields{
		"run_id":      r.id,
		"kind":        r.kind,
		"ok":          ok,
		"duration_ms": durationMS,
	}).Info("Closed test run")
	return nil
}

// Closed reports whether the run has been finalized.
func (r *Run) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
