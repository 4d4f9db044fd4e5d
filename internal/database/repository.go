package database

import (
	"context"

	"github.com/kozaktomas/face-gate/internal/identity"
)

// IdentityReader loads the persisted population.
type IdentityReader interface {
	// Load returns every persisted identity in enrollment order.
	// An empty backend returns an empty slice, not an error.
	Load(ctx context.Context) ([]identity.EnrolledIdentity, error)
}

// IdentityWriter replaces the persisted population.
type IdentityWriter interface {
	// Save overwrites the persisted population with identities, atomically.
	Save(ctx context.Context, identities []identity.EnrolledIdentity) error
}

// IdentityStore is a storage backend for the identity population.
type IdentityStore interface {
	IdentityReader
	IdentityWriter

	// Close releases connections, locks and files held by the backend.
	Close() error
}

// LoadInto reads the persisted population into store, replacing its contents.
// Records that fail validation abort the load.
func LoadInto(ctx context.Context, r IdentityReader, store *identity.Store) (int, error) {
	items, err := r.Load(ctx)
	if err != nil {
		return 0, err
	}
	if err := store.Replace(items); err != nil {
		return 0, err
	}
	return len(items), nil
}
