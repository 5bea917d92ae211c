package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// TestKind identifies the category of a simulated session.
type TestKind string

const (
	KindPlayer TestKind = "player"
	KindDRM    TestKind = "drm"
	KindCAS    TestKind = "cas"
	KindCDN    TestKind = "cdn"
)

// Kinds lists every supported test kind.
var Kinds = []TestKind{KindPlayer, KindDRM, KindCAS, KindCDN}

// ParseKind validates a kind string against the closed set of test kinds.
func ParseKind(s string) (TestKind, error) {
	switch TestKind(s) {
	case KindPlayer, KindDRM, KindCAS, KindCDN:
		return TestKind(s), nil
	}
	return "", fmt.Errorf("unsupported test kind: %q", s)
}

// LogLevel is the severity of a persisted log line.
type LogLevel string

const (
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
	LevelDebug LogLevel = "debug"
)

// ChaosConfig holds the caller-supplied fault injection knobs for a session.
type ChaosConfig struct {
	ErrorRatePct    float64 `json:"error_rate_pct"`
	ExtraLatencyMS  int     `json:"extra_latency_ms"`
	EnableFaultMode bool    `json:"enable_fault_mode"`
}

// TestRequest is the request body accepted by POST /api/tests/{kind}.
type TestRequest struct {
	TargetURL  string            `json:"target_url"`
	DRMEnabled bool              `json:"drm_enabled,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	Chaos      ChaosConfig       `json:"chaos"`
}

// TestResponse is the response body for a completed (or failed) simulation.
type TestResponse struct {
	TestID       int64              `json:"test_id"`
	Success      bool               `json:"success"`
	ManifestType string             `json:"manifest_type,omitempty"`
	DurationMS   int64              `json:"duration_ms"`
	Metrics      map[string]float64 `json:"metrics"`
	SessionLogs  []string           `json:"session_logs"`
	Error        string             `json:"error,omitempty"`
}

// TestRun is one persisted execution of a simulated session.
type TestRun struct {
	ID         int64           `json:"id"`
	Kind       TestKind        `json:"kind"`
	Params     json.RawMessage `json:"params"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
	DurationMS *int64          `json:"duration_ms,omitempty"`
	OK         bool            `json:"ok"`
}

// MetricSample is one named numeric observation tied to a test run.
type MetricSample struct {
	ID        int64     `json:"id"`
	TestID    int64     `json:"test_id"`
	Name      string    `json:"name"`
	Value     float64   `json:"value"`
	Pctl      *int      `json:"pctl,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// LogLine is one persisted diagnostic line, optionally tied to a test run.
type LogLine struct {
	ID        int64                  `json:"id"`
	TestID    *int64                 `json:"test_id,omitempty"`
	Level     LogLevel               `json:"level"`
	Message   string                 `json:"message"`
	Attrs     map[string]interface{} `json:"attrs,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// KpiSnapshot is the derived operational read-model computed per request
// by the aggregator. It is never persisted.
type KpiSnapshot struct {
	DRMSuccessRate    float64 `json:"drm_success_rate"`
	LicenseRttP95     float64 `json:"license_rtt_p95"`
	TokenExpiredRate  float64 `json:"token_expired_rate"`
	CasRejectRate     float64 `json:"cas_reject_rate"`
	PlaybackErrorRate float64 `json:"playback_error_rate"`
	StartupTimeP95    float64 `json:"startup_time_p95"`
	RebufferRatio     float64 `json:"rebuffer_ratio"`
	CdnLatencyP95     float64 `json:"cdn_latency_p95"`
	CdnThroughputP90  float64 `json:"cdn_throughput_p90"`
	Error4xxCount     float64 `json:"error_4xx_count"`
	Error5xxCount     float64 `json:"error_5xx_count"`
	CorsErrorCount    float64 `json:"cors_error_count"`
	TimeoutErrorCount float64 `json:"timeout_error_count"`
}
