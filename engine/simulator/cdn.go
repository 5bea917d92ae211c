package simulator

import (
	"context"

	"github.com/fmonfasani/mini-lab-ott/engine/types"
)

// runCDN executes the delivery probe state machine:
// INIT -> DNS_RESOLVE -> TCP_CONNECT -> SEGMENT_FETCH -> COMPLETE.
func (s *Simulator) runCDN(ctx context.Context, req types.TestRequest) *Result {
	sess := s.newSession(req.Chaos)

	if err := validateTarget(req.TargetURL); err != nil {
		sess.fail(err.Error())
		return sess.result()
	}

	dnsMS := sess.stepMS(5, 40)
	if !sess.transition(StateDNSResolve, dnsMS) {
		return sess.result()
	}
	sess.emit("dns_resolve_ms", float64(dnsMS+int64(req.Chaos.ExtraLatencyMS)))

	connectMS := sess.stepMS(10, 80)
	if !sess.transition(StateTCPConnect, connectMS) {
		return sess.result()
	}
	sess.emit("latency_ms", float64(dnsMS+connectMS+int64(req.Chaos.ExtraLatencyMS)))

	fetchMS := sess.stepMS(30, 200)
	if !sess.transition(StateSegmentFetch, fetchMS) {
		return sess.result()
	}
	sess.emit("throughput_bps", 10e6+sess.rng.Float64()*90e6)
	sess.emit("cache_hit_ratio", sess.rng.Float64())
	sess.logf("fetched probe segment in %dms", fetchMS+int64(req.Chaos.ExtraLatencyMS))

	if !sess.transition(StateComplete, sess.stepMS(5, 10)) {
		return sess.result()
	}
	return sess.result()
}
