package lifecycle

import (
	"context"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/fmonfasani/mini-lab-ott/engine/simulator"
)

// MetricStore is the write-path subset of the persistence store used by the
// metric recorder.
type MetricStore interface {
	WriteMetric(ctx context.Context, runID int64, name string, value float64, pctl *int) error
}

// Recorder persists named metric samples for a run. Out-of-range values are
// stored as-is; range validation is an aggregation and presentation concern,
// never a write-path one.
type Recorder struct {
	store MetricStore
	log   logrus.FieldLogger
}

// NewRecorder creates a metric recorder.
func NewRecorder(store MetricStore, log logrus.FieldLogger) *Recorder {
	return &Recorder{
		store: store,
		log:   log.WithField("component", "recorder"),
	}
}

// Record writes one metric datapoint. The only rejected inputs are an empty
// name and non-finite values.
func (r *Recorder) Record(ctx context.Context, runID int64, name string, value float64, pctl *int) error {
	if name == "" {
		return fmt.Errorf("metric name must not be empty")
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return fmt.Errorf("metric %q value must be finite", name)
	}

	if err := r.store.WriteMetric(ctx, runID, name, value, pctl); err != nil {
		return fmt.Errorf("failed to record metric %q: %w", name, err)
	}
	return nil
}

// RecordBundle writes every sample of a session's metrics bundle in order.
func (r *Recorder) RecordBundle(ctx context.Context, runID int64, samples []simulator.Sample) error {
	for _, sample := range samples {
		if err := r.Record(ctx, runID, sample.Name, sample.Value, nil); err != nil {
			return err
		}
	}

	r.log.WithFields(logrus.Fields{"run_id": runID, "count": len(samples)}).Debug("Recorded metrics bundle")
	return nil
}
