// Package session orchestrates identification attempts: it feeds frame observations to
// the liveness challenge, runs the matcher once liveness is proven and exposes enrollment.
package session

import (
	"encoding/json"
	"math"
	"slices"
	"time"

	"github.com/kozaktomas/face-gate/internal/liveness"
)

// Mode selects what a session is for.
type Mode string

// Session modes.
const (
	ModeLogin    Mode = "login"
	ModeRegister Mode = "register"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeLogin || m == ModeRegister
}

// Phase is the lifecycle position of the controller.
type Phase string

// Controller phases. Completed and Cancelled require a restart.
const (
	PhaseIdle      Phase = "idle"
	PhaseActive    Phase = "active"
	PhaseCompleted Phase = "completed"
	PhaseCancelled Phase = "cancelled"
)

// IsTerminal reports whether the session must be restarted before use.
func (p Phase) IsTerminal() bool {
	return p == PhaseCompleted || p == PhaseCancelled
}

// Observation is what the face-observation provider reports for one frame.
// A frame without a detected face carries no embedding.
type Observation struct {
	Embedding   []float32          `json:"embedding,omitempty" yaml:"embedding,omitempty"`
	Expressions map[string]float64 `json:"expressions,omitempty" yaml:"expressions,omitempty"`
	Landmarks   []liveness.Point   `json:"landmarks,omitempty" yaml:"landmarks,omitempty"`
}

// HasFace reports whether the provider detected a face in this frame.
func (o *Observation) HasFace() bool {
	return o != nil && len(o.Embedding) > 0
}

func (o *Observation) sample() liveness.Sample {
	if !o.HasFace() {
		return liveness.Sample{}
	}
	return liveness.Sample{
		FacePresent: true,
		Expressions: o.Expressions,
		Landmarks:   o.Landmarks,
	}
}

func (o *Observation) clone() *Observation {
	return &Observation{
		Embedding:   slices.Clone(o.Embedding),
		Expressions: o.Expressions,
		Landmarks:   slices.Clone(o.Landmarks),
	}
}

// Outcome is the terminal result of an identification.
type Outcome string

// Verdict outcomes.
const (
	OutcomeAccepted   Outcome = "accepted"
	OutcomeRejected   Outcome = "rejected"
	OutcomeNoEnrolled Outcome = "no_enrolled_identities"
)

// Verdict is produced exactly once per completed login session and never changes.
type Verdict struct {
	Outcome    Outcome
	IdentityID string
	Name       string
	Distance   float64 // +Inf when there was nothing to compare against
	DecidedAt  time.Time
}

// Accepted reports whether the verdict admits an identity.
func (v Verdict) Accepted() bool {
	return v.Outcome == OutcomeAccepted
}

// Err returns NoEnrolledIdentitiesError for the empty-population outcome and nil otherwise.
// A rejection is a normal outcome, not an error.
func (v Verdict) Err() error {
	if v.Outcome == OutcomeNoEnrolled {
		return &NoEnrolledIdentitiesError{}
	}
	return nil
}

type verdictJSON struct {
	Outcome    Outcome   `json:"outcome"`
	IdentityID string    `json:"identity_id,omitempty"`
	Name       string    `json:"name,omitempty"`
	Distance   *float64  `json:"distance,omitempty"`
	DecidedAt  time.Time `json:"decided_at"`
}

// MarshalJSON omits the distance when it is not finite.
func (v Verdict) MarshalJSON() ([]byte, error) {
	out := verdictJSON{
		Outcome:    v.Outcome,
		IdentityID: v.IdentityID,
		Name:       v.Name,
		DecidedAt:  v.DecidedAt,
	}
	if !math.IsInf(v.Distance, 0) && !math.IsNaN(v.Distance) {
		d := v.Distance
		out.Distance = &d
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores a verdict; a missing distance becomes +Inf.
func (v *Verdict) UnmarshalJSON(data []byte) error {
	var in verdictJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*v = Verdict{
		Outcome:    in.Outcome,
		IdentityID: in.IdentityID,
		Name:       in.Name,
		Distance:   math.Inf(1),
		DecidedAt:  in.DecidedAt,
	}
	if in.Distance != nil {
		v.Distance = *in.Distance
	}
	return nil
}

// Result describes how one observation was handled.
type Result struct {
	Dropped  bool           `json:"dropped"`
	Mode     Mode           `json:"mode"`
	Face     bool           `json:"face"`
	Kind     liveness.Kind  `json:"challenge_kind,omitempty"`
	State    liveness.State `json:"challenge_state,omitempty"`
	Progress float64        `json:"progress"`
	Verdict  *Verdict       `json:"verdict,omitempty"`
}

// Status is a snapshot of the controller.
type Status struct {
	Mode      Mode             `json:"mode,omitempty"`
	Phase     Phase            `json:"phase"`
	Challenge *liveness.Status `json:"challenge,omitempty"`
	Verdict   *Verdict         `json:"verdict,omitempty"`
}
