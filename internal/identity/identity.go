// Package identity holds the enrolled population: identities with one face embedding each.
package identity

import (
	"fmt"
	"strings"
)

// EnrolledIdentity is a person admitted by a successful enrollment.
// Identities are never mutated after creation.
type EnrolledIdentity struct {
	ID        string    `json:"id" yaml:"id"`
	Name      string    `json:"name" yaml:"name"`
	Embedding []float32 `json:"embedding" yaml:"embedding"`
}

// Summary is the outward view of an identity. Embeddings are never exposed.
type Summary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Summary returns the id/name pair of the identity.
func (e EnrolledIdentity) Summary() Summary {
	return Summary{ID: e.ID, Name: e.Name}
}

// ValidationError reports a malformed identity or embedding.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Validate checks an identity against the embedding dimension of the store.
func Validate(e EnrolledIdentity, dim int) error {
	if strings.TrimSpace(e.ID) == "" {
		return &ValidationError{Field: "id", Reason: "must not be empty"}
	}
	if strings.TrimSpace(e.Name) == "" {
		return &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if len(e.Embedding) != dim {
		return &ValidationError{
			Field:  "embedding",
			Reason: fmt.Sprintf("expected %d values, got %d", dim, len(e.Embedding)),
		}
	}
	return nil
}
