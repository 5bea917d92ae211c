package simulator

import (
	"context"
	"strings"

	"github.com/fmonfasani/mini-lab-ott/engine/types"
)

// Manifest types resolved from the target URL.
const (
	ManifestHLS  = "HLS"
	ManifestDASH = "DASH"
)

// resolveManifestType infers the streaming protocol from the URL.
func resolveManifestType(raw string) string {
	if strings.Contains(strings.ToLower(raw), ".mpd") {
		return ManifestDASH
	}
	return ManifestHLS
}

// runPlayer executes the playback/QoE state machine:
// INIT -> FETCHING_MANIFEST -> PARSING -> STARTUP -> STEADY_PLAYBACK ->
// (REBUFFER)* -> COMPLETE | FAILED.
//
// Metrics are emitted as soon as the session produces them, so a session
// that faults mid-pipeline still carries every metric collected up to the
// failure point.
func (s *Simulator) runPlayer(ctx context.Context, req types.TestRequest) *Result {
	sess := s.newSession(req.Chaos)

	result := func() *Result {
		r := sess.result()
		r.ManifestType = resolveManifestType(req.TargetURL)
		return r
	}

	if err := validateTarget(req.TargetURL); err != nil {
		sess.fail(err.Error())
		return result()
	}
	sess.logf("resolved manifest type %s", resolveManifestType(req.TargetURL))

	fetchMS := sess.stepMS(50, 150)
	if !sess.transition(StateFetchingManifest, fetchMS) {
		return result()
	}
	sess.emit("manifest_fetch_ms", float64(fetchMS+int64(req.Chaos.ExtraLatencyMS)))
	if req.DRMEnabled {
		sess.logf("license acquisition simulated inline")
	}

	if !sess.transition(StateParsing, sess.stepMS(10, 30)) {
		return result()
	}
	segments := 6 + sess.rng.Intn(10)
	avgSegmentS := 4 + sess.rng.Float64()*2
	sess.logf("parsed %d segments, avg duration %.1fs", segments, avgSegmentS)

	if !sess.transition(StateStartup, sess.stepMS(200, 600)) {
		return result()
	}
	// Startup latency is everything from session start to first frame,
	// injected latency included.
	sess.emit("startup_time_ms", float64(sess.elapsedMS))

	if !sess.transition(StateSteadyPlayback, sess.stepMS(20, 40)) {
		return result()
	}

	// Bounded number of rebuffer excursions, spread across the segment walk.
	stallAt := map[int]bool{}
	if req.Chaos.EnableFaultMode {
		rebuffers := 1 + sess.rng.Intn(3)
		for n := 1; n <= rebuffers; n++ {
			stallAt[segments*n/(rebuffers+1)] = true
		}
	}

	var rebufferMS int64
	for i := 0; i < segments; i++ {
		if !sess.advance(sess.stepMS(10, 40)) {
			return result()
		}
		if stallAt[i] {
			stall := sess.stepMS(250, 750)
			if !sess.transition(StateRebuffer, stall) {
				return result()
			}
			rebufferMS += stall + int64(req.Chaos.ExtraLatencyMS)
			sess.logf("rebuffered for %dms", stall+int64(req.Chaos.ExtraLatencyMS))
			if !sess.transition(StateSteadyPlayback, sess.stepMS(10, 30)) {
				return result()
			}
		}
	}
	sess.logf("analyzed %d segments", segments)

	if !sess.transition(StateComplete, sess.stepMS(5, 10)) {
		return result()
	}

	ratio := float64(rebufferMS) / float64(sess.elapsedMS)
	if ratio > 1 {
		ratio = 1
	}
	sess.emit("rebuffer_ratio", ratio)

	errorRate := req.Chaos.ErrorRatePct
	if errorRate == 0 {
		errorRate = sess.rng.Float64() * 1.5
	}
	sess.emit("error_rate", errorRate)
	sess.emit("fps", 24+sess.rng.Float64()*36)
	sess.emit("bitrate_kbps", 1500+sess.rng.Float64()*6500)
	sess.emit("segments_analyzed", float64(segments))
	sess.emit("avg_segment_duration_s", avgSegmentS)

	return result()
}
