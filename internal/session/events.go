package session

import (
	"github.com/kozaktomas/face-gate/internal/identity"
	"github.com/kozaktomas/face-gate/internal/liveness"
)

// EventType names a session event.
type EventType string

// Session events. A completed login session emits exactly one EventVerdict.
const (
	EventStarted   EventType = "started"
	EventProgress  EventType = "progress"
	EventVerdict   EventType = "verdict"
	EventCancelled EventType = "cancelled"
	EventEnrolled  EventType = "enrolled"
)

// Event is delivered synchronously to listeners while a session runs.
type Event struct {
	Type     EventType         `json:"type"`
	Mode     Mode              `json:"mode"`
	Kind     liveness.Kind     `json:"challenge_kind,omitempty"`
	State    liveness.State    `json:"challenge_state,omitempty"`
	Progress float64           `json:"progress"`
	Verdict  *Verdict          `json:"verdict,omitempty"`
	Identity *identity.Summary `json:"identity,omitempty"`
}

// Listener receives session events.
type Listener func(Event)
