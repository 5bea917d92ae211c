package simulator

import (
	"context"

	"github.com/fmonfasani/mini-lab-ott/engine/types"
)

// runDRM executes the license acquisition state machine:
// INIT -> TOKEN_REQUEST -> LICENSE_REQUEST -> LICENSE_VALIDATION -> COMPLETE.
func (s *Simulator) runDRM(ctx context.Context, req types.TestRequest) *Result {
	sess := s.newSession(req.Chaos)

	if err := validateTarget(req.TargetURL); err != nil {
		sess.fail(err.Error())
		return sess.result()
	}

	if !sess.transition(StateTokenRequest, sess.stepMS(20, 60)) {
		return sess.result()
	}
	tokenExpired := sess.rng.Float64() * 5
	sess.emit("token_expired_rate", tokenExpired)

	licenseMS := sess.stepMS(40, 160)
	if !sess.transition(StateLicenseRequest, licenseMS) {
		return sess.result()
	}
	sess.emit("license_rtt_ms", float64(licenseMS+int64(req.Chaos.ExtraLatencyMS)))
	sess.logf("license round trip %dms", licenseMS+int64(req.Chaos.ExtraLatencyMS))

	if !sess.transition(StateLicenseValidate, sess.stepMS(10, 30)) {
		return sess.result()
	}

	if !sess.transition(StateComplete, sess.stepMS(5, 10)) {
		return sess.result()
	}
	return sess.result()
}
