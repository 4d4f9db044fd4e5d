// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

import "time"

// Neighbour search constants
const (
	// DefaultNeighborLimit is the default number of neighbours returned for one identity
	DefaultNeighborLimit = 5

	// MaxNeighborLimit caps the neighbours a single request may ask for
	MaxNeighborLimit = 50

	// DefaultAuditNeighbors is how many nearest neighbours of each identity the audit compares
	DefaultAuditNeighbors = 5
)

// Session sweeper constants
const (
	// SweepInterval is how often idle sessions are looked for
	SweepInterval = 5 * time.Second
)
