// Package file stores the identity population as a JSON snapshot on disk.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/kozaktomas/face-gate/internal/config"
	"github.com/kozaktomas/face-gate/internal/database"
	"github.com/kozaktomas/face-gate/internal/identity"
)

const lockRetryDelay = 50 * time.Millisecond

func init() {
	database.RegisterBackend("file", func(_ context.Context, cfg *config.DatabaseConfig) (database.IdentityStore, error) {
		return New(cfg.SnapshotPath)
	})
}

// Store reads and rewrites a single snapshot file. A sibling .lock file
// serializes access between processes (the server and the CLI).
type Store struct {
	path string
	lock *flock.Flock
	now  func() time.Time
}

// New creates a store for the snapshot at path. The file itself is created on the first save.
func New(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("snapshot path is required")
	}
	return &Store{
		path: path,
		lock: flock.New(path + ".lock"),
		now:  time.Now,
	}, nil
}

// Path returns the snapshot location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the snapshot. A missing file is an empty population.
func (s *Store) Load(ctx context.Context) ([]identity.EnrolledIdentity, error) {
	ok, err := s.lock.TryRLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("acquire read lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("snapshot %s is locked", s.path)
	}
	defer s.lock.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return []identity.EnrolledIdentity{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var snap database.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", s.path, err)
	}
	if err := snap.Check(); err != nil {
		return nil, err
	}
	if snap.Identities == nil {
		return []identity.EnrolledIdentity{}, nil
	}
	return snap.Identities, nil
}

// Save rewrites the snapshot through a temporary file and a rename, so readers
// never observe a partially written file.
func (s *Store) Save(ctx context.Context, identities []identity.EnrolledIdentity) error {
	ok, err := s.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("acquire write lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("snapshot %s is locked", s.path)
	}
	defer s.lock.Unlock()

	data, err := json.MarshalIndent(database.NewSnapshot(identities, s.now()), "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp snapshot: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

// Close releases the lock file handle.
func (s *Store) Close() error {
	if err := s.lock.Close(); err != nil {
		return fmt.Errorf("closing snapshot lock: %w", err)
	}
	return nil
}
