package simulator

import (
	"context"

	"github.com/fmonfasani/mini-lab-ott/engine/types"
)

// runCAS executes the conditional access state machine:
// INIT -> ENTITLEMENT_CHECK -> ECM_DESCRAMBLE -> COMPLETE.
func (s *Simulator) runCAS(ctx context.Context, req types.TestRequest) *Result {
	sess := s.newSession(req.Chaos)

	if err := validateTarget(req.TargetURL); err != nil {
		sess.fail(err.Error())
		return sess.result()
	}

	entitlementMS := sess.stepMS(15, 60)
	if !sess.transition(StateEntitlement, entitlementMS) {
		return sess.result()
	}
	sess.emit("entitlement_check_ms", float64(entitlementMS+int64(req.Chaos.ExtraLatencyMS)))
	sess.emit("reject_rate", sess.rng.Float64()*4)

	if !sess.transition(StateDescramble, sess.stepMS(10, 40)) {
		return sess.result()
	}
	sess.emit("ecm_interval_ms", 500+sess.rng.Float64()*1500)

	if !sess.transition(StateComplete, sess.stepMS(5, 10)) {
		return sess.result()
	}
	return sess.result()
}
