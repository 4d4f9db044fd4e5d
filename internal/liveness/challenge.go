// Package liveness implements the active-gesture challenge that proves a live subject
// is in front of the camera: either a smile (expression) or an opened mouth (geometric).
package liveness

import (
	"errors"
	"math/rand/v2"
	"time"
)

// Kind is the gesture the subject is asked to perform.
type Kind string

// Challenge kinds.
const (
	KindExpression Kind = "expression"
	KindGeometric  Kind = "geometric"
)

// Valid reports whether k is a known challenge kind.
func (k Kind) Valid() bool {
	return k == KindExpression || k == KindGeometric
}

// State is the lifecycle state of a challenge.
type State string

// Challenge states. Satisfied and Abandoned are terminal.
const (
	StateAwaitingFace State = "awaiting_face"
	StateInProgress   State = "in_progress"
	StateSatisfied    State = "satisfied"
	StateAbandoned    State = "abandoned"
)

// IsTerminal reports whether no further observations are accepted in this state.
func (s State) IsTerminal() bool {
	return s == StateSatisfied || s == StateAbandoned
}

// ErrChallengeClosed is returned when a terminal challenge receives another sample.
var ErrChallengeClosed = errors.New("liveness challenge already finished")

// Config holds the activation thresholds for both challenge kinds.
type Config struct {
	Expression          string  // expression signal driving the expression challenge
	ExpressionThreshold float64 // raw signal must exceed this
	MouthOpenThreshold  float64 // raw mouth-openness ratio must exceed this
}

// DefaultConfig returns the thresholds used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Expression:          "happy",
		ExpressionThreshold: 0.3,
		MouthOpenThreshold:  0.2,
	}
}

// Sample is the part of a frame observation the challenge looks at.
type Sample struct {
	FacePresent bool
	Expressions map[string]float64
	Landmarks   []Point
}

// Update describes the effect of one sample.
type Update struct {
	Progress  float64 // progress computed from this sample, before clamping on satisfaction
	Measured  bool    // false when the sample carried nothing this challenge can measure
	Satisfied bool    // true only for the sample that completed the challenge
}

// Status is a read-only snapshot of a challenge.
type Status struct {
	Kind      Kind      `json:"kind"`
	State     State     `json:"state"`
	Progress  float64   `json:"progress"`
	Satisfied bool      `json:"satisfied"`
	StartedAt time.Time `json:"started_at"`
}

// Challenge tracks one liveness attempt. Not safe for concurrent use.
type Challenge struct {
	kind      Kind
	cfg       Config
	state     State
	progress  float64
	startedAt time.Time
}

// PickKind selects a challenge kind with uniform probability.
func PickKind(r *rand.Rand) Kind {
	if r.IntN(2) == 0 {
		return KindExpression
	}
	return KindGeometric
}

// New starts a challenge of the given kind.
func New(kind Kind, cfg Config, now time.Time) *Challenge {
	return &Challenge{
		kind:      kind,
		cfg:       cfg,
		state:     StateAwaitingFace,
		startedAt: now,
	}
}

// Kind returns the gesture requested by this challenge.
func (c *Challenge) Kind() Kind {
	return c.kind
}

// State returns the current state.
func (c *Challenge) State() State {
	return c.state
}

// Progress returns the current progress in [0, 100].
func (c *Challenge) Progress() float64 {
	return c.progress
}

// Status returns a snapshot of the challenge.
func (c *Challenge) Status() Status {
	return Status{
		Kind:      c.kind,
		State:     c.state,
		Progress:  c.progress,
		Satisfied: c.state == StateSatisfied,
		StartedAt: c.startedAt,
	}
}

// Update feeds one sample into the challenge.
// A sample without a face leaves progress and state untouched. The sample that
// crosses the activation threshold clamps progress to 100 and moves the challenge
// to StateSatisfied; that happens at most once.
func (c *Challenge) Update(s Sample) (Update, error) {
	if c.state.IsTerminal() {
		return Update{}, ErrChallengeClosed
	}
	if !s.FacePresent {
		return Update{Progress: c.progress}, nil
	}

	c.state = StateInProgress

	raw, threshold, progress, ok := c.measure(s)
	if !ok {
		return Update{Progress: c.progress}, nil
	}

	c.progress = progress
	u := Update{Progress: progress, Measured: true}

	if raw > threshold {
		c.progress = 100
		c.state = StateSatisfied
		u.Satisfied = true
	}
	return u, nil
}

// Abandon ends a running challenge without success. Returns false when the
// challenge had already finished.
func (c *Challenge) Abandon() bool {
	if c.state.IsTerminal() {
		return false
	}
	c.state = StateAbandoned
	return true
}

func (c *Challenge) measure(s Sample) (raw, threshold, progress float64, ok bool) {
	switch c.kind {
	case KindExpression:
		raw, ok = s.Expressions[c.cfg.Expression]
		if !ok {
			return 0, 0, 0, false
		}
		return raw, c.cfg.ExpressionThreshold, clamp(raw*100, 0, 100), true
	case KindGeometric:
		raw, ok = MouthOpenRatio(s.Landmarks)
		if !ok {
			return 0, 0, 0, false
		}
		return raw, c.cfg.MouthOpenThreshold, clamp(raw*mouthProgressScale, 0, 100), true
	default:
		return 0, 0, 0, false
	}
}

func clamp(v, lo, hi float64) float64 {
	return max(lo, min(v, hi))
}
