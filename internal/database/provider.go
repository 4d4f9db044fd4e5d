package database

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/kozaktomas/face-gate/internal/config"
)

// Opener creates a backend from configuration.
type Opener func(ctx context.Context, cfg *config.DatabaseConfig) (IdentityStore, error)

var (
	backends   = map[string]Opener{}
	backendsMu sync.RWMutex
)

// RegisterBackend makes a backend available under name.
// This is called by the backend packages to avoid import cycles.
func RegisterBackend(name string, open Opener) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	if open == nil {
		panic("database: RegisterBackend opener is nil for " + name)
	}
	backends[name] = open
}

// Backends returns the names of all registered backends, sorted.
func Backends() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Open creates the backend selected by cfg.Driver.
func Open(ctx context.Context, cfg *config.DatabaseConfig) (IdentityStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}

	backendsMu.RLock()
	open, ok := backends[cfg.Driver]
	backendsMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("database driver %q not registered (available: %v)", cfg.Driver, Backends())
	}

	store, err := open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("opening %s backend: %w", cfg.Driver, err)
	}
	return store, nil
}
