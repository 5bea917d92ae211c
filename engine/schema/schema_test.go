package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTestRequestAcceptsValidBodies(t *testing.T) {
	bodies := []string{
		`{"target_url": "https://cdn.example.com/live/stream.m3u8"}`,
		`{"target_url": "https://cdn.example.com/vod/movie.mpd", "drm_enabled": true}`,
		`{"target_url": "https://x.test/a", "headers": {"Authorization": "Bearer t"}}`,
		`{"target_url": "https://x.test/a", "chaos": {}}`,
		`{"target_url": "https://x.test/a", "chaos": {"error_rate_pct": 100, "extra_latency_ms": 5000, "enable_fault_mode": true}}`,
		`{"target_url": "https://x.test/a", "chaos": {"error_rate_pct": 12.5}}`,
	}
	for _, body := range bodies {
		assert.NoError(t, ValidateTestRequest([]byte(body)), "body: %s", body)
	}
}

func TestValidateTestRequestRejectsInvalidBodies(t *testing.T) {
	bodies := []string{
		`{}`,
		`{"target_url": ""}`,
		`{"target_url": 42}`,
		`{"target_url": "https://x.test/a", "headers": {"X": 1}}`,
		`{"target_url": "https://x.test/a", "chaos": {"error_rate_pct": 101}}`,
		`{"target_url": "https://x.test/a", "chaos": {"error_rate_pct": -1}}`,
		`{"target_url": "https://x.test/a", "chaos": {"extra_latency_ms": 5001}}`,
		`{"target_url": "https://x.test/a", "chaos": {"extra_latency_ms": 2.5}}`,
		`{"target_url": "https://x.test/a", "chaos": {"surprise": true}}`,
		`{"target_url": "https://x.test/a", "surprise": true}`,
		`not json`,
	}
	for _, body := range bodies {
		assert.Error(t, ValidateTestRequest([]byte(body)), "body: %s", body)
	}
}

func TestValidateTestRequestReportsEveryViolation(t *testing.T) {
	err := ValidateTestRequest([]byte(`{"chaos": {"error_rate_pct": 200, "extra_latency_ms": -5}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "target_url")
	assert.Contains(t, err.Error(), "error_rate_pct")
	assert.Contains(t, err.Error(), "extra_latency_ms")
}
