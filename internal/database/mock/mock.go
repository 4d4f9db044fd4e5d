// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/kozaktomas/face-gate/internal/database"
	"github.com/kozaktomas/face-gate/internal/identity"
)

var _ database.IdentityStore = (*MockIdentityStore)(nil)

// MockIdentityStore is an in-memory implementation of database.IdentityStore
type MockIdentityStore struct {
	mu    sync.RWMutex
	items []identity.EnrolledIdentity
	saves int

	// Error injection
	LoadError  error
	SaveError  error
	CloseError error

	closed bool
}

// NewMockIdentityStore creates a mock store pre-populated with items
func NewMockIdentityStore(items ...identity.EnrolledIdentity) *MockIdentityStore {
	return &MockIdentityStore{items: cloneAll(items)}
}

// Load returns the stored identities
func (m *MockIdentityStore) Load(ctx context.Context) ([]identity.EnrolledIdentity, error) {
	if m.LoadError != nil {
		return nil, m.LoadError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneAll(m.items), nil
}

// Save replaces the stored identities
func (m *MockIdentityStore) Save(ctx context.Context, identities []identity.EnrolledIdentity) error {
	if m.SaveError != nil {
		return m.SaveError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = cloneAll(identities)
	m.saves++
	return nil
}

// Close marks the store closed
func (m *MockIdentityStore) Close() error {
	if m.CloseError != nil {
		return m.CloseError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Saves returns how many successful saves happened
func (m *MockIdentityStore) Saves() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}

// Closed reports whether Close was called
func (m *MockIdentityStore) Closed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

// Snapshot returns the identities as last saved
func (m *MockIdentityStore) Snapshot() []identity.EnrolledIdentity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneAll(m.items)
}

func cloneAll(items []identity.EnrolledIdentity) []identity.EnrolledIdentity {
	out := make([]identity.EnrolledIdentity, len(items))
	for i, item := range items {
		item.Embedding = slices.Clone(item.Embedding)
		out[i] = item
	}
	return out
}
