package simulator

import (
	"context"
	"fmt"
	"math/rand"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fmonfasani/mini-lab-ott/engine/types"
)

// State identifies a stage of a simulated session.
type State string

const (
	StateInit             State = "INIT"
	StateFetchingManifest State = "FETCHING_MANIFEST"
	StateParsing          State = "PARSING"
	StateStartup          State = "STARTUP"
	StateSteadyPlayback   State = "STEADY_PLAYBACK"
	StateRebuffer         State = "REBUFFER"
	StateTokenRequest     State = "TOKEN_REQUEST"
	StateLicenseRequest   State = "LICENSE_REQUEST"
	StateLicenseValidate  State = "LICENSE_VALIDATION"
	StateEntitlement      State = "ENTITLEMENT_CHECK"
	StateDescramble       State = "ECM_DESCRAMBLE"
	StateDNSResolve       State = "DNS_RESOLVE"
	StateTCPConnect       State = "TCP_CONNECT"
	StateSegmentFetch     State = "SEGMENT_FETCH"
	StateComplete         State = "COMPLETE"
	StateFailed           State = "FAILED"
)

// sessionBudgetMS bounds the simulated duration of one session. Injected
// latency that pushes a session past the budget is a timeout failure, not an
// unbounded run.
const sessionBudgetMS = 45000

// Sample is one named metric observation produced by a session.
type Sample struct {
	Name  string
	Value float64
}

// Result is the outcome of one simulated session. Partial metrics and the
// log trace up to the failure point are retained on failed sessions.
type Result struct {
	OK           bool
	DurationMS   int64
	ManifestType string
	Metrics      []Sample
	Logs         []string
	Error        string
}

// Simulator executes synthetic sessions of one test kind.
type Simulator struct {
	kind  types.TestKind
	rng   *rand.Rand
	sleep func(time.Duration)
	log   logrus.FieldLogger
}

// Option configures a Simulator.
type Option func(*Simulator)

// WithRand sets the random source. Tests inject a seeded source to assert
// exact state traces.
func WithRand(rng *rand.Rand) Option {
	return func(s *Simulator) { s.rng = rng }
}

// WithSleep replaces the real-time delay applied for injected latency.
func WithSleep(sleep func(time.Duration)) Option {
	return func(s *Simulator) { s.sleep = sleep }
}

// New creates a simulator for the given kind.
func New(kind types.TestKind, opts ...Option) *Simulator {
	s := &Simulator{
		kind:  kind,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep: time.Sleep,
		log:   logrus.WithField("component", "simulator").WithField("kind", kind),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes one synthetic session. It never returns an error: simulation
// faults are first-class outcomes carried in the Result.
func (s *Simulator) Run(ctx context.Context, req types.TestRequest) *Result {
	switch s.kind {
	case types.KindPlayer:
		return s.runPlayer(ctx, req)
	case types.KindDRM:
		return s.runDRM(ctx, req)
	case types.KindCAS:
		return s.runCAS(ctx, req)
	case types.KindCDN:
		return s.runCDN(ctx, req)
	}
	return &Result{Error: fmt.Sprintf("unsupported test kind: %s", s.kind)}
}

// session accumulates the state trace and simulated clock of one run.
type session struct {
	state     State
	chaos     types.ChaosConfig
	rng       *rand.Rand
	sleep     func(time.Duration)
	elapsedMS int64
	logs      []string
	metrics   []Sample
	failed    bool
	errMsg    string
}

func (s *Simulator) newSession(chaos types.ChaosConfig) *session {
	sess := &session{
		state: StateInit,
		chaos: chaos,
		rng:   s.rng,
		sleep: s.sleep,
	}
	// INIT is not a transition, so it never draws against the error rate.
	sess.elapsedMS += 5 + int64(sess.rng.Intn(10))
	sess.logf("session %s", StateInit)
	return sess
}

func (sess *session) logf(format string, args ...interface{}) {
	line := fmt.Sprintf("[+%dms] %s", sess.elapsedMS, fmt.Sprintf(format, args...))
	sess.logs = append(sess.logs, line)
}

func (sess *session) emit(name string, value float64) {
	sess.metrics = append(sess.metrics, Sample{Name: name, Value: value})
}

func (sess *session) fail(reason string) {
	sess.failed = true
	sess.errMsg = reason
	sess.state = StateFailed
	sess.logf("session %s: %s", StateFailed, reason)
}

// transition advances the session to the next state. Before every transition
// it draws independently against the chaos error rate; a hit short-circuits
// the session into FAILED. Injected latency is added to the simulated clock
// (and slept in real time) before the transition completes, and exceeding the
// session budget is a timeout failure.
func (sess *session) transition(next State, stepMS int64) bool {
	if sess.failed {
		return false
	}

	if sess.chaos.ErrorRatePct > 0 && sess.rng.Float64()*100 < sess.chaos.ErrorRatePct {
		sess.fail(fmt.Sprintf("injected fault before %s", next))
		return false
	}

	stepMS += int64(sess.chaos.ExtraLatencyMS)
	if sess.elapsedMS+stepMS > sessionBudgetMS {
		sess.elapsedMS = sessionBudgetMS
		sess.fail(fmt.Sprintf("timeout: session exceeded %dms budget before %s", int64(sessionBudgetMS), next))
		return false
	}

	if sess.chaos.ExtraLatencyMS > 0 {
		sess.sleep(time.Duration(sess.chaos.ExtraLatencyMS) * time.Millisecond)
	}

	sess.elapsedMS += stepMS
	sess.state = next
	sess.logf("session %s", next)
	return true
}

// advance moves the simulated clock forward without a state transition, so
// no fault draw happens. Exceeding the session budget still fails the run.
func (sess *session) advance(stepMS int64) bool {
	if sess.failed {
		return false
	}
	if sess.elapsedMS+stepMS > sessionBudgetMS {
		sess.elapsedMS = sessionBudgetMS
		sess.fail(fmt.Sprintf("timeout: session exceeded %dms budget during %s", int64(sessionBudgetMS), sess.state))
		return false
	}
	sess.elapsedMS += stepMS
	return true
}

func (sess *session) result() *Result {
	return &Result{
		OK:         !sess.failed,
		DurationMS: sess.elapsedMS,
		Metrics:    sess.metrics,
		Logs:       sess.logs,
		Error:      sess.errMsg,
	}
}

// stepMS draws a synthetic step duration in [base, base+jitter).
func (sess *session) stepMS(base, jitter int) int64 {
	if jitter <= 0 {
		return int64(base)
	}
	return int64(base + sess.rng.Intn(jitter))
}

// validateTarget checks the target URL without probing it.
func validateTarget(raw string) error {
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return fmt.Errorf("malformed manifest URL: %q", raw)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("malformed manifest URL: %q", raw)
	}
	return nil
}
