package session

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/kozaktomas/face-gate/internal/facematch"
	"github.com/kozaktomas/face-gate/internal/identity"
	"github.com/kozaktomas/face-gate/internal/logging"
	"github.com/sirupsen/logrus"
)

// Persister writes the whole population back to durable storage.
// It is called after every successful mutation.
type Persister interface {
	Save(ctx context.Context, identities []identity.EnrolledIdentity) error
}

// Directory owns enrollment and removal: the duplicate check in front of the store
// and the write-back behind it.
type Directory struct {
	store              *identity.Store
	persist            Persister
	duplicateThreshold float64
	newID              func() string
	log                logrus.FieldLogger
	mu                 sync.Mutex
}

// DirectoryOption configures a Directory.
type DirectoryOption func(*Directory)

// WithIDGenerator overrides how identity ids are generated.
func WithIDGenerator(fn func() string) DirectoryOption {
	return func(d *Directory) { d.newID = fn }
}

// WithDirectoryLogger sets the logger used for enrollment events.
func WithDirectoryLogger(log logrus.FieldLogger) DirectoryOption {
	return func(d *Directory) { d.log = log }
}

// NewDirectory creates a directory over store. persist may be nil for a purely
// in-memory population.
func NewDirectory(store *identity.Store, persist Persister, duplicateThreshold float64, opts ...DirectoryOption) *Directory {
	d := &Directory{
		store:              store,
		persist:            persist,
		duplicateThreshold: duplicateThreshold,
		newID:              func() string { return "ID-" + uuid.NewString() },
		log:                logging.Discard(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Store returns the underlying identity store.
func (d *Directory) Store() *identity.Store {
	return d.store
}

// DuplicateThreshold returns the maximum distance at which a new face counts as enrolled.
func (d *Directory) DuplicateThreshold() float64 {
	return d.duplicateThreshold
}

// List returns id and name of every enrolled identity.
func (d *Directory) List() []identity.Summary {
	return d.store.Summaries()
}

// Enroll admits a new identity after checking the face is not enrolled yet.
func (d *Directory) Enroll(ctx context.Context, name string, embedding []float32) (identity.EnrolledIdentity, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return identity.EnrolledIdentity{}, &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if len(embedding) == 0 {
		return identity.EnrolledIdentity{}, &NoFaceError{Op: "enroll"}
	}
	if len(embedding) != d.store.Dim() {
		return identity.EnrolledIdentity{}, &ValidationError{
			Field:  "embedding",
			Reason: fmt.Sprintf("expected %d values, got %d", d.store.Dim(), len(embedding)),
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := facematch.CheckDuplicate(embedding, d.store.All(), d.duplicateThreshold); err != nil {
		d.log.WithFields(logrus.Fields{"name": name, "error": err.Error()}).Warn("enrollment rejected as duplicate")
		return identity.EnrolledIdentity{}, err
	}

	ident := identity.EnrolledIdentity{ID: d.newID(), Name: name, Embedding: embedding}
	if err := d.store.Add(ident); err != nil {
		return identity.EnrolledIdentity{}, err
	}

	if err := d.save(ctx); err != nil {
		d.store.Remove(ident.ID)
		return identity.EnrolledIdentity{}, err
	}

	d.log.WithFields(logrus.Fields{"id": ident.ID, "name": ident.Name}).Info("identity enrolled")
	stored, _ := d.store.Get(ident.ID)
	return stored, nil
}

// Remove deletes an identity by id. Removing an unknown id is not an error.
func (d *Directory) Remove(ctx context.Context, id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	before := d.store.All()
	if !d.store.Remove(id) {
		return false, nil
	}
	if err := d.save(ctx); err != nil {
		_ = d.store.Replace(before)
		return false, err
	}

	d.log.WithField("id", id).Info("identity removed")
	return true, nil
}

// Reset removes every identity.
func (d *Directory) Reset(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	before := d.store.All()
	d.store.Reset()
	if err := d.save(ctx); err != nil {
		_ = d.store.Replace(before)
		return err
	}

	d.log.WithField("removed", len(before)).Info("identity store reset")
	return nil
}

func (d *Directory) save(ctx context.Context) error {
	if d.persist == nil {
		return nil
	}
	if err := d.persist.Save(ctx, d.store.All()); err != nil {
		return fmt.Errorf("persisting identities: %w", err)
	}
	return nil
}
