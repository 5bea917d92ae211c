package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/fmonfasani/mini-lab-ott/engine/kpi"
	"github.com/fmonfasani/mini-lab-ott/engine/metrics"
	"github.com/fmonfasani/mini-lab-ott/engine/schema"
	"github.com/fmonfasani/mini-lab-ott/engine/simulator"
	"github.com/fmonfasani/mini-lab-ott/engine/types"
)

const maxRequestBodyBytes = 64 * 1024

// handleRunTest executes a synthetic session of the requested kind and
// persists its run record, metric bundle and log lines.
func (s *server) handleRunTest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	kind, err := types.ParseKind(mux.Vars(r)["kind"])
	if err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodyBytes))
	if err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "Failed to read request body")
		return
	}

	if err := schema.ValidateTestRequest(body); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	var req types.TestRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	run, err := s.lifecycle.Open(ctx, kind, body)
	if err != nil {
		metrics.StoreErrorsTotal.Inc()
		s.log.WithError(err).Error("Failed to open test run")
		s.writeErrorResponse(w, http.StatusInternalServerError, "Failed to open test run")
		return
	}
	s.hub.NotifyRunStarted(run.ID(), kind)

	// Safety net: a run must never stay open past its request, whatever
	// path the handler exits through.
	defer func() {
		if run.Closed() {
			return
		}
		if cerr := run.Close(ctx, false, 0); cerr != nil {
			s.log.WithError(cerr).WithField("run_id", run.ID()).Error("Failed to close abandoned run")
		}
	}()

	result := s.simulatorFor(kind).Run(ctx, req)

	if err := s.recorder.RecordBundle(ctx, run.ID(), result.Metrics); err != nil {
		metrics.StoreErrorsTotal.Inc()
		s.log.WithError(err).WithField("run_id", run.ID()).Error("Failed to persist metric bundle")
		s.writeErrorResponse(w, http.StatusInternalServerError, "Failed to persist test results")
		return
	}

	if err := s.writeOutcomeLog(r, run.ID(), kind, result); err != nil {
		metrics.StoreErrorsTotal.Inc()
		s.log.WithError(err).WithField("run_id", run.ID()).Error("Failed to persist run log")
		s.writeErrorResponse(w, http.StatusInternalServerError, "Failed to persist test results")
		return
	}

	if err := run.Close(ctx, result.OK, result.DurationMS); err != nil {
		metrics.StoreErrorsTotal.Inc()
		s.log.WithError(err).WithField("run_id", run.ID()).Error("Failed to close test run")
		s.writeErrorResponse(w, http.StatusInternalServerError, "Failed to close test run")
		return
	}

	outcome := "ok"
	if !result.OK {
		outcome = "failed"
	}
	metrics.TestsTotal.WithLabelValues(string(kind), outcome).Inc()
	metrics.TestDurationMS.WithLabelValues(string(kind)).Observe(float64(result.DurationMS))

	s.hub.NotifyRunFinished(run.ID(), kind, result.OK, result.DurationMS, result.Error)

	s.writeJSONResponse(w, http.StatusOK, buildTestResponse(run.ID(), result))
}

func (s *server) writeOutcomeLog(r *http.Request, runID int64, kind types.TestKind, result *simulator.Result) error {
	ctx := r.Context()
	attrs := map[string]interface{}{
		"kind":        kind,
		"duration_ms": result.DurationMS,
		"request_id":  requestID(ctx),
	}

	if result.OK {
		return s.store.WriteLog(ctx, &runID, types.LevelInfo,
			fmt.Sprintf("%s session completed", kind), attrs)
	}
	return s.store.WriteLog(ctx, &runID, types.LevelError, result.Error, attrs)
}

func buildTestResponse(runID int64, result *simulator.Result) types.TestResponse {
	metricMap := make(map[string]float64, len(result.Metrics))
	for _, sample := range result.Metrics {
		metricMap[sample.Name] = sample.Value
	}

	logs := result.Logs
	if logs == nil {
		logs = []string{}
	}

	return types.TestResponse{
		TestID:       runID,
		Success:      result.OK,
		ManifestType: result.ManifestType,
		DurationMS:   result.DurationMS,
		Metrics:      metricMap,
		SessionLogs:  logs,
		Error:        result.Error,
	}
}

// handleKpis serves the aggregated KPI snapshot. It always answers 200: a
// degraded store read path yields the default snapshot instead of an error.
func (s *server) handleKpis(w http.ResponseWriter, r *http.Request) {
	timeRange := r.URL.Query().Get("range")
	metrics.KpiRequestsTotal.WithLabelValues(kpi.NormalizeRange(timeRange)).Inc()

	snapshot := s.aggregator.Snapshot(r.Context(), timeRange)
	s.writeJSONResponse(w, http.StatusOK, snapshot)
}

// handleHealth provides a health check endpoint
func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"database":  "connected",
	}

	if err := s.store.Ping(r.Context()); err != nil {
		health["status"] = "degraded"
		health["database"] = "disconnected"
	}

	s.writeJSONResponse(w, http.StatusOK, health)
}

// handleStatus reports process and host resource usage plus engine counters.
func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"system":     metrics.CollectSystemStatus(),
		"ws_clients": s.hub.ConnectedClients(),
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}
