package database

import (
	"fmt"
	"time"

	"github.com/kozaktomas/face-gate/internal/identity"
)

// Snapshot is the persisted form of the whole identity population.
// It is always written wholesale.
type Snapshot struct {
	Version    int                         `json:"version" yaml:"version"`
	ExportedAt time.Time                   `json:"exported_at" yaml:"exported_at"`
	Identities []identity.EnrolledIdentity `json:"identities" yaml:"identities"`
}

// NewSnapshot wraps identities in a snapshot of the current version.
func NewSnapshot(identities []identity.EnrolledIdentity, now time.Time) Snapshot {
	if identities == nil {
		identities = []identity.EnrolledIdentity{}
	}
	return Snapshot{
		Version:    currentSnapshotVersion,
		ExportedAt: now.UTC(),
		Identities: identities,
	}
}

// Check verifies the snapshot can be loaded by this build.
func (s Snapshot) Check() error {
	if s.Version == 0 {
		return nil // unversioned snapshots hold the same layout
	}
	if s.Version > currentSnapshotVersion {
		return fmt.Errorf("snapshot version %d is newer than supported version %d", s.Version, currentSnapshotVersion)
	}
	return nil
}
