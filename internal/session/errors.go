package session

import (
	"fmt"

	"github.com/kozaktomas/face-gate/internal/facematch"
	"github.com/kozaktomas/face-gate/internal/identity"
)

// ValidationError reports a malformed identity, name or embedding.
type ValidationError = identity.ValidationError

// DuplicateIdentityError reports an enrollment whose face is already enrolled.
type DuplicateIdentityError = facematch.DuplicateIdentityError

// NoFaceError is returned when an operation needs a detected face and none was observed.
type NoFaceError struct {
	Op string
}

func (e *NoFaceError) Error() string {
	return fmt.Sprintf("%s: no face detected", e.Op)
}

// NoEnrolledIdentitiesError is returned when identification runs against an empty population.
// It is distinct from a failed match.
type NoEnrolledIdentitiesError struct{}

func (e *NoEnrolledIdentitiesError) Error() string {
	return "no enrolled identities"
}

// InvalidStateError reports API misuse across the session lifecycle.
type InvalidStateError struct {
	Op    string
	Phase Phase
	Mode  Mode
}

func (e *InvalidStateError) Error() string {
	if e.Mode != "" {
		return fmt.Sprintf("%s not allowed: session is %s (%s mode)", e.Op, e.Phase, e.Mode)
	}
	return fmt.Sprintf("%s not allowed: session is %s", e.Op, e.Phase)
}
