package identity

import (
	"fmt"
	"slices"
	"sync"
)

// Store is the in-memory collection of enrolled identities, kept in insertion order.
// Writers are expected only between sessions, readers take a point-in-time snapshot.
type Store struct {
	dim   int
	items []EnrolledIdentity
	mu    sync.RWMutex
}

// NewStore creates an empty store for embeddings of the given dimension.
func NewStore(dim int) *Store {
	return &Store{dim: dim}
}

// Dim returns the embedding dimension every identity must have.
func (s *Store) Dim() int {
	return s.dim
}

// Add inserts an identity. The embedding is copied so later changes by the caller
// do not leak into the store.
func (s *Store) Add(e EnrolledIdentity) error {
	if err := Validate(e, s.dim); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexOf(e.ID) >= 0 {
		return &ValidationError{Field: "id", Reason: fmt.Sprintf("%q already enrolled", e.ID)}
	}
	e.Embedding = slices.Clone(e.Embedding)
	s.items = append(s.items, e)
	return nil
}

// Remove deletes the identity with the given id. Removing an unknown id is a no-op.
// Returns whether something was removed.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return false
	}
	s.items = slices.Delete(s.items, i, i+1)
	return true
}

// All returns the current identities in insertion order.
// The returned slice is owned by the caller; embeddings must be treated as read-only.
func (s *Store) All() []EnrolledIdentity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.items)
}

// Summaries returns id and name of every identity in insertion order.
func (s *Store) Summaries() []Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Summary, 0, len(s.items))
	for i := range s.items {
		out = append(out, s.items[i].Summary())
	}
	return out
}

// Get returns the identity with the given id.
func (s *Store) Get(id string) (EnrolledIdentity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.indexOf(id)
	if i < 0 {
		return EnrolledIdentity{}, false
	}
	return s.items[i], true
}

// FindByName returns identities whose normalized name equals the normalized query.
func (s *Store) FindByName(name string) []EnrolledIdentity {
	want := NormalizeName(name)
	if want == "" {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []EnrolledIdentity
	for i := range s.items {
		if NormalizeName(s.items[i].Name) == want {
			out = append(out, s.items[i])
		}
	}
	return out
}

// Len returns the number of enrolled identities.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Reset removes every identity.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
}

// Replace swaps the whole collection, e.g. after loading a persisted snapshot.
// Nothing changes if any record is invalid or ids repeat.
func (s *Store) Replace(items []EnrolledIdentity) error {
	next := make([]EnrolledIdentity, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for i, e := range items {
		if err := Validate(e, s.dim); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
		if _, ok := seen[e.ID]; ok {
			return fmt.Errorf("record %d: %w", i, &ValidationError{Field: "id", Reason: fmt.Sprintf("%q repeated", e.ID)})
		}
		seen[e.ID] = struct{}{}
		e.Embedding = slices.Clone(e.Embedding)
		next = append(next, e)
	}

	s.mu.Lock()
	s.items = next
	s.mu.Unlock()
	return nil
}

func (s *Store) indexOf(id string) int {
	for i := range s.items {
		if s.items[i].ID == id {
			return i
		}
	}
	return -1
}
