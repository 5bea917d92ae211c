package simulator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fmonfasani/mini-lab-ott/engine/types"
)

func TestResolveManifestType(t *testing.T) {
	assert.Equal(t, ManifestDASH, resolveManifestType("https://cdn.example.com/vod/movie.mpd"))
	assert.Equal(t, ManifestDASH, resolveManifestType("https://cdn.example.com/vod/MOVIE.MPD"))
	assert.Equal(t, ManifestHLS, resolveManifestType("https://cdn.example.com/live/stream.m3u8"))
	assert.Equal(t, ManifestHLS, resolveManifestType("https://cdn.example.com/live/stream"))
}

func TestPlayerEmitsQoEBundle(t *testing.T) {
	sim := newTestSimulator(types.KindPlayer, 11)
	result := sim.Run(context.Background(), okRequest("https://cdn.example.com/vod/movie.mpd"))

	require.True(t, result.OK, "error: %s", result.Error)
	assert.Equal(t, ManifestDASH, result.ManifestType)

	metrics := metricMap(result)
	for _, name := range []string{
		"manifest_fetch_ms",
		"startup_time_ms",
		"rebuffer_ratio",
		"error_rate",
		"fps",
		"bitrate_kbps",
		"segments_analyzed",
		"avg_segment_duration_s",
	} {
		assert.Contains(t, metrics, name)
	}

	assert.Greater(t, metrics["startup_time_ms"], metrics["manifest_fetch_ms"])
	assert.GreaterOrEqual(t, metrics["fps"], 24.0)
	assert.GreaterOrEqual(t, metrics["segments_analyzed"], 6.0)
}

func TestPlayerRebufferRatioZeroWithoutFaultMode(t *testing.T) {
	for seed := int64(0); seed < 10; seed++ {
		result := newTestSimulator(types.KindPlayer, seed).Run(context.Background(),
			okRequest("https://cdn.example.com/live/stream.m3u8"))

		require.True(t, result.OK, "seed %d: %s", seed, result.Error)
		assert.Zero(t, metricMap(result)["rebuffer_ratio"], "seed %d", seed)
	}
}

func TestPlayerRebufferRatioBoundedInFaultMode(t *testing.T) {
	req := okRequest("https://cdn.example.com/live/stream.m3u8")
	req.Chaos.EnableFaultMode = true

	var sawStall bool
	for seed := int64(0); seed < 10; seed++ {
		result := newTestSimulator(types.KindPlayer, seed).Run(context.Background(), req)
		require.True(t, result.OK, "seed %d: %s", seed, result.Error)

		ratio := metricMap(result)["rebuffer_ratio"]
		assert.GreaterOrEqual(t, ratio, 0.0)
		assert.LessOrEqual(t, ratio, 1.0)
		if ratio > 0 {
			sawStall = true
		}
	}
	assert.True(t, sawStall, "fault mode never produced a rebuffer excursion")
}

func TestPlayerFailureKeepsManifestTypeAndPartialMetrics(t *testing.T) {
	req := okRequest("https://cdn.example.com/vod/movie.mpd")
	req.Chaos.ErrorRatePct = 100

	result := newTestSimulator(types.KindPlayer, 2).Run(context.Background(), req)

	assert.False(t, result.OK)
	assert.Equal(t, ManifestDASH, result.ManifestType)
	assert.Empty(t, result.Metrics)
	assert.Contains(t, result.Logs[len(result.Logs)-1], string(StateFailed))
}

func TestPlayerReportsChaosErrorRate(t *testing.T) {
	req := okRequest("https://cdn.example.com/live/stream.m3u8")
	req.Chaos.ErrorRatePct = 0.000001 // negligible, but reported verbatim

	var completed bool
	for seed := int64(0); seed < 5; seed++ {
		result := newTestSimulator(types.KindPlayer, seed).Run(context.Background(), req)
		if !result.OK {
			continue
		}
		completed = true
		assert.InDelta(t, req.Chaos.ErrorRatePct, metricMap(result)["error_rate"], 1e-12)
	}
	require.True(t, completed)
}
