package session

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/kozaktomas/face-gate/internal/facematch"
	"github.com/kozaktomas/face-gate/internal/identity"
	"github.com/kozaktomas/face-gate/internal/liveness"
	"github.com/kozaktomas/face-gate/internal/logging"
	"github.com/sirupsen/logrus"
)

// Config holds the matching thresholds of the controller.
// Both thresholds are maximum Euclidean distances accepted as a match.
type Config struct {
	LoginThreshold    float64 // plain identification without liveness
	LivenessThreshold float64 // identification after a satisfied challenge
	Liveness          liveness.Config
}

// DefaultConfig returns the thresholds used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		LoginThreshold:    0.55,
		LivenessThreshold: 0.45,
		Liveness:          liveness.DefaultConfig(),
	}
}

// Throttle decides whether an observation arriving at now is processed.
type Throttle interface {
	Allow(now time.Time) bool
	Reset()
}

// FrameCounter is implemented by throttles that count accepted and dropped frames.
// The counts are logged when a session ends.
type FrameCounter interface {
	Stats() (accepted, dropped int)
}

// Option configures a Controller.
type Option func(*Controller)

// WithThrottle drops observations the throttle rejects.
func WithThrottle(t Throttle) Option {
	return func(c *Controller) { c.throttle = t }
}

// WithRand sets the source used to pick challenge kinds.
func WithRand(r *rand.Rand) Option {
	return func(c *Controller) { c.rng = r }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Controller) { c.log = log }
}

// WithListener registers a listener at construction time.
func WithListener(l Listener) Option {
	return func(c *Controller) { c.listeners = append(c.listeners, l) }
}

// Controller runs one identification or registration session at a time.
// It is not safe for concurrent use; callers serialize access.
type Controller struct {
	cfg       Config
	dir       *Directory
	throttle  Throttle
	rng       *rand.Rand
	now       func() time.Time
	log       logrus.FieldLogger
	listeners []Listener

	mode      Mode
	phase     Phase
	challenge *liveness.Challenge
	verdict   *Verdict
	latest    *Observation
}

// NewController creates an idle controller over the given directory.
func NewController(cfg Config, dir *Directory, opts ...Option) *Controller {
	c := &Controller{
		cfg:   cfg,
		dir:   dir,
		rng:   rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		now:   time.Now,
		log:   logging.Discard(),
		phase: PhaseIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AddListener registers a listener for session events.
func (c *Controller) AddListener(l Listener) {
	c.listeners = append(c.listeners, l)
}

// Directory returns the enrollment directory.
func (c *Controller) Directory() *Directory {
	return c.dir
}

// Mode returns the mode of the current or last session.
func (c *Controller) Mode() Mode {
	return c.mode
}

// Phase returns the lifecycle phase.
func (c *Controller) Phase() Phase {
	return c.phase
}

// Verdict returns the verdict of the completed session, or nil.
func (c *Controller) Verdict() *Verdict {
	if c.verdict == nil {
		return nil
	}
	v := *c.verdict
	return &v
}

// Status returns a snapshot of the controller.
func (c *Controller) Status() Status {
	s := Status{Mode: c.mode, Phase: c.phase, Verdict: c.Verdict()}
	if c.challenge != nil {
		cs := c.challenge.Status()
		s.Challenge = &cs
	}
	return s
}

// Start begins a new session, discarding any previous state and verdict.
// Login sessions get a randomly chosen challenge kind.
func (c *Controller) Start(mode Mode) error {
	if !mode.Valid() {
		return &ValidationError{Field: "mode", Reason: fmt.Sprintf("unknown mode %q", mode)}
	}
	var kind liveness.Kind
	if mode == ModeLogin {
		kind = liveness.PickKind(c.rng)
	}
	c.begin(mode, kind)
	return nil
}

// StartLogin begins a login session with a fixed challenge kind.
func (c *Controller) StartLogin(kind liveness.Kind) error {
	if !kind.Valid() {
		return &ValidationError{Field: "challenge_kind", Reason: fmt.Sprintf("unknown kind %q", kind)}
	}
	c.begin(ModeLogin, kind)
	return nil
}

func (c *Controller) begin(mode Mode, kind liveness.Kind) {
	c.mode = mode
	c.phase = PhaseActive
	c.verdict = nil
	c.latest = nil
	c.challenge = nil
	if mode == ModeLogin {
		c.challenge = liveness.New(kind, c.cfg.Liveness, c.now())
	}
	if c.throttle != nil {
		c.throttle.Reset()
	}

	c.log.WithFields(logrus.Fields{"mode": mode, "challenge_kind": kind}).Debug("session started")
	c.emit(Event{Type: EventStarted, Mode: mode, Kind: kind, State: c.challengeState()})
}

// OnObservation processes one frame observation.
// Observations rejected by the throttle are reported as dropped and have no effect.
// In login mode the observation that satisfies the liveness challenge is also the one
// whose embedding is matched, and the session completes with a verdict.
func (c *Controller) OnObservation(obs *Observation) (Result, error) {
	if c.phase != PhaseActive {
		return Result{}, &InvalidStateError{Op: "observe", Phase: c.phase, Mode: c.mode}
	}
	if c.throttle != nil && !c.throttle.Allow(c.now()) {
		return Result{Dropped: true, Mode: c.mode}, nil
	}
	if obs.HasFace() && len(obs.Embedding) != c.dir.Store().Dim() {
		return Result{}, &ValidationError{
			Field:  "embedding",
			Reason: fmt.Sprintf("expected %d values, got %d", c.dir.Store().Dim(), len(obs.Embedding)),
		}
	}

	if c.mode == ModeRegister {
		c.latest = nil
		if obs.HasFace() {
			c.latest = obs.clone()
		}
		return Result{Mode: c.mode, Face: obs.HasFace()}, nil
	}
	return c.observeLogin(obs)
}

func (c *Controller) observeLogin(obs *Observation) (Result, error) {
	u, err := c.challenge.Update(obs.sample())
	if err != nil {
		return Result{}, fmt.Errorf("updating liveness challenge: %w", err)
	}

	res := Result{
		Mode:     c.mode,
		Face:     obs.HasFace(),
		Kind:     c.challenge.Kind(),
		State:    c.challenge.State(),
		Progress: c.challenge.Progress(),
	}
	if obs.HasFace() {
		c.emit(Event{Type: EventProgress, Mode: c.mode, Kind: res.Kind, State: res.State, Progress: u.Progress})
	}
	if !u.Satisfied {
		return res, nil
	}

	v := c.decide(obs.Embedding, c.cfg.LivenessThreshold)
	c.verdict = &v
	c.phase = PhaseCompleted
	res.Verdict = c.Verdict()

	c.logVerdict("liveness", v)
	c.emit(Event{Type: EventVerdict, Mode: c.mode, Kind: res.Kind, State: res.State, Progress: res.Progress, Verdict: res.Verdict})
	return res, nil
}

// Enroll admits the face seen in the latest observation of a register session under name.
func (c *Controller) Enroll(ctx context.Context, name string) (identity.EnrolledIdentity, error) {
	if c.phase != PhaseActive || c.mode != ModeRegister {
		return identity.EnrolledIdentity{}, &InvalidStateError{Op: "enroll", Phase: c.phase, Mode: c.mode}
	}
	if strings.TrimSpace(name) == "" {
		return identity.EnrolledIdentity{}, &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if !c.latest.HasFace() {
		return identity.EnrolledIdentity{}, &NoFaceError{Op: "enroll"}
	}

	ident, err := c.dir.Enroll(ctx, name, c.latest.Embedding)
	if err != nil {
		return identity.EnrolledIdentity{}, err
	}
	c.latest = nil

	summary := ident.Summary()
	c.emit(Event{Type: EventEnrolled, Mode: c.mode, Identity: &summary})
	return ident, nil
}

// Cancel ends the active session without a verdict. Calling it again, or on a
// session that is not active, does nothing.
func (c *Controller) Cancel() {
	if c.phase != PhaseActive {
		return
	}
	if c.challenge != nil {
		c.challenge.Abandon()
	}
	c.phase = PhaseCancelled
	c.latest = nil

	c.log.WithFields(c.frameFields(logrus.Fields{"mode": c.mode})).Debug("session cancelled")
	c.emit(Event{Type: EventCancelled, Mode: c.mode, State: c.challengeState()})
}

// Identify matches a single observation without a liveness challenge, using the
// login threshold. It does not touch the session state.
func (c *Controller) Identify(obs *Observation) (Verdict, error) {
	if !obs.HasFace() {
		return Verdict{}, &NoFaceError{Op: "identify"}
	}
	if len(obs.Embedding) != c.dir.Store().Dim() {
		return Verdict{}, &ValidationError{
			Field:  "embedding",
			Reason: fmt.Sprintf("expected %d values, got %d", c.dir.Store().Dim(), len(obs.Embedding)),
		}
	}

	v := c.decide(obs.Embedding, c.cfg.LoginThreshold)
	c.logVerdict("plain", v)
	return v, nil
}

func (c *Controller) decide(probe []float32, threshold float64) Verdict {
	now := c.now()
	candidates := c.dir.Store().All()
	if len(candidates) == 0 {
		return Verdict{Outcome: OutcomeNoEnrolled, Distance: math.Inf(1), DecidedAt: now}
	}

	m := facematch.FindBestMatch(probe, candidates, threshold)
	if m.IsUnknown() {
		return Verdict{Outcome: OutcomeRejected, Distance: m.Distance, DecidedAt: now}
	}
	return Verdict{
		Outcome:    OutcomeAccepted,
		IdentityID: m.Label,
		Name:       m.Name,
		Distance:   m.Distance,
		DecidedAt:  now,
	}
}

func (c *Controller) logVerdict(variant string, v Verdict) {
	fields := logrus.Fields{"variant": variant, "outcome": v.Outcome}
	if v.IdentityID != "" {
		fields["identity_id"] = v.IdentityID
	}
	if !math.IsInf(v.Distance, 0) {
		fields["distance"] = v.Distance
	}
	if variant != "plain" {
		fields = c.frameFields(fields)
	}
	c.log.WithFields(fields).Info("identification finished")
}

func (c *Controller) frameFields(fields logrus.Fields) logrus.Fields {
	if fc, ok := c.throttle.(FrameCounter); ok {
		fields["frames_accepted"], fields["frames_dropped"] = fc.Stats()
	}
	return fields
}

func (c *Controller) challengeState() liveness.State {
	if c.challenge == nil {
		return ""
	}
	return c.challenge.State()
}

func (c *Controller) emit(e Event) {
	for _, l := range c.listeners {
		l(e)
	}
}
