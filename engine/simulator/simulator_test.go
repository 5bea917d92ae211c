package simulator

import (
	"context"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fmonfasani/mini-lab-ott/engine/types"
)

func noSleep(time.Duration) {}

func newTestSimulator(kind types.TestKind, seed int64) *Simulator {
	return New(kind, WithRand(rand.New(rand.NewSource(seed))), WithSleep(noSleep))
}

func metricMap(result *Result) map[string]float64 {
	m := make(map[string]float64, len(result.Metrics))
	for _, sample := range result.Metrics {
		m[sample.Name] = sample.Value
	}
	return m
}

func okRequest(target string) types.TestRequest {
	return types.TestRequest{TargetURL: target}
}

func TestRunSucceedsForEveryKind(t *testing.T) {
	for _, kind := range types.Kinds {
		t.Run(string(kind), func(t *testing.T) {
			sim := newTestSimulator(kind, 1)
			result := sim.Run(context.Background(), okRequest("https://cdn.example.com/live/stream.m3u8"))

			require.True(t, result.OK, "error: %s", result.Error)
			assert.Greater(t, result.DurationMS, int64(0))
			assert.LessOrEqual(t, result.DurationMS, int64(sessionBudgetMS))
			assert.NotEmpty(t, result.Metrics)
			require.NotEmpty(t, result.Logs)
			assert.Contains(t, result.Logs[0], string(StateInit))
			assert.Contains(t, result.Logs[len(result.Logs)-1], string(StateComplete))
			assert.Empty(t, result.Error)
		})
	}
}

func TestRunIsDeterministicForSeed(t *testing.T) {
	req := okRequest("https://cdn.example.com/vod/movie.mpd")
	first := newTestSimulator(types.KindPlayer, 7).Run(context.Background(), req)
	second := newTestSimulator(types.KindPlayer, 7).Run(context.Background(), req)

	assert.Equal(t, first, second)
}

func TestRunRejectsMalformedTarget(t *testing.T) {
	targets := []string{"", "not-a-url", "ftp://cdn.example.com/stream.m3u8", "https://"}
	for _, target := range targets {
		sim := newTestSimulator(types.KindPlayer, 1)
		result := sim.Run(context.Background(), okRequest(target))

		assert.False(t, result.OK, "target %q", target)
		assert.Contains(t, result.Error, "malformed manifest URL")
		assert.Greater(t, result.DurationMS, int64(0))
	}
}

func TestFullErrorRateFailsFirstTransition(t *testing.T) {
	req := okRequest("https://cdn.example.com/live/stream.m3u8")
	req.Chaos.ErrorRatePct = 100

	for _, kind := range types.Kinds {
		t.Run(string(kind), func(t *testing.T) {
			result := newTestSimulator(kind, 3).Run(context.Background(), req)

			assert.False(t, result.OK)
			assert.Contains(t, result.Error, "injected fault")
			assert.Greater(t, result.DurationMS, int64(0))
			require.NotEmpty(t, result.Logs)
			assert.Contains(t, result.Logs[0], string(StateInit))
			assert.Contains(t, result.Logs[len(result.Logs)-1], string(StateFailed))
		})
	}
}

func TestZeroErrorRateNeverFaults(t *testing.T) {
	req := okRequest("https://cdn.example.com/live/stream.m3u8")
	for seed := int64(0); seed < 20; seed++ {
		result := newTestSimulator(types.KindDRM, seed).Run(context.Background(), req)
		assert.True(t, result.OK, "seed %d: %s", seed, result.Error)
	}
}

func TestPartialErrorRateKeepsMetricsUpToFailure(t *testing.T) {
	req := okRequest("https://cdn.example.com/live/stream.m3u8")
	req.Chaos.ErrorRatePct = 60

	var sawPartial bool
	for seed := int64(0); seed < 50; seed++ {
		result := newTestSimulator(types.KindDRM, seed).Run(context.Background(), req)
		if !result.OK && len(result.Metrics) > 0 {
			sawPartial = true
			// A fault after TOKEN_REQUEST keeps the token metric.
			assert.Equal(t, "token_expired_rate", result.Metrics[0].Name)
		}
	}
	assert.True(t, sawPartial, "expected at least one failed session with partial metrics")
}

func TestTransitionBudgetTimeout(t *testing.T) {
	sim := newTestSimulator(types.KindPlayer, 1)
	sess := sim.newSession(types.ChaosConfig{})

	ok := sess.transition(StateStartup, sessionBudgetMS+1)
	assert.False(t, ok)
	assert.True(t, sess.failed)
	assert.Contains(t, sess.errMsg, "timeout")
	assert.Equal(t, int64(sessionBudgetMS), sess.elapsedMS)
}

func TestAdvanceBudgetTimeout(t *testing.T) {
	sim := newTestSimulator(types.KindPlayer, 1)
	sess := sim.newSession(types.ChaosConfig{})

	require.True(t, sess.advance(100))
	ok := sess.advance(sessionBudgetMS)
	assert.False(t, ok)
	assert.Contains(t, sess.errMsg, "timeout")
	assert.Equal(t, int64(sessionBudgetMS), sess.elapsedMS)
}

func TestExtraLatencySleepsAndStretchesClock(t *testing.T) {
	var slept time.Duration
	sim := New(types.KindDRM,
		WithRand(rand.New(rand.NewSource(1))),
		WithSleep(func(d time.Duration) { slept += d }),
	)

	req := okRequest("https://license.example.com/widevine")
	req.Chaos.ExtraLatencyMS = 100
	result := sim.Run(context.Background(), req)

	require.True(t, result.OK, "error: %s", result.Error)
	// 4 transitions, each sleeping the injected latency.
	assert.Equal(t, 400*time.Millisecond, slept)
	assert.Greater(t, result.DurationMS, int64(400))
}

func TestSessionLogsCarrySimulatedTimestamps(t *testing.T) {
	result := newTestSimulator(types.KindCAS, 5).Run(context.Background(), okRequest("https://cas.example.com/entitlements"))

	require.True(t, result.OK)
	for _, line := range result.Logs {
		assert.True(t, strings.HasPrefix(line, "[+"), "log line %q lacks timestamp prefix", line)
	}
}
