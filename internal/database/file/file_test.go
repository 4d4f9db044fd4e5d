package file

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/kozaktomas/face-gate/internal/config"
	"github.com/kozaktomas/face-gate/internal/database"
	"github.com/kozaktomas/face-gate/internal/identity"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "identities.json"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestNew_RequiresPath(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	s := newTestStore(t)

	items, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if items == nil || len(items) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", items)
	}
}

func TestSaveAndLoad(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	want := []identity.EnrolledIdentity{
		{ID: "ID-1", Name: "Alice", Embedding: []float32{0.1, 0.2, 0.3}},
		{ID: "ID-2", Name: "Bob", Embedding: []float32{0.4, 0.5, 0.6}},
	}
	if err := s.Save(ctx, want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d identities, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i].ID != want[i].ID || got[i].Name != want[i].Name {
			t.Errorf("identity %d = %+v, want %+v", i, got[i], want[i])
		}
		for j := range want[i].Embedding {
			if got[i].Embedding[j] != want[i].Embedding[j] {
				t.Errorf("identity %d embedding[%d] = %v, want %v", i, j, got[i].Embedding[j], want[i].Embedding[j])
			}
		}
	}
}

func TestSave_OverwritesWholesale(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := []identity.EnrolledIdentity{
		{ID: "ID-1", Name: "Alice", Embedding: []float32{1}},
		{ID: "ID-2", Name: "Bob", Embedding: []float32{2}},
	}
	if err := s.Save(ctx, first); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(ctx, first[1:]); err != nil {
		t.Fatal(err)
	}

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "ID-2" {
		t.Errorf("expected only Bob after rewrite, got %+v", got)
	}

	entries, err := os.ReadDir(filepath.Dir(s.Path()))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Errorf("temporary file left behind: %s", e.Name())
		}
	}
}

func TestSave_EmptyPopulationEncodesArray(t *testing.T) {
	s := newTestStore(t)

	if err := s.Save(context.Background(), nil); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	if string(raw["identities"]) != "[]" {
		t.Errorf("expected identities to be [], got %s", raw["identities"])
	}
}

func TestLoad_CorruptFile(t *testing.T) {
	s := newTestStore(t)
	if err := os.WriteFile(s.Path(), []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Load(context.Background()); err == nil {
		t.Error("expected decode error")
	}
}

func TestLoad_NewerVersion(t *testing.T) {
	s := newTestStore(t)
	if err := os.WriteFile(s.Path(), []byte(`{"version": 99, "identities": []}`), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Load(context.Background()); err == nil {
		t.Error("expected version error")
	}
}

func TestRegisteredBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.json")

	store, err := database.Open(context.Background(), &config.DatabaseConfig{Driver: "file", SnapshotPath: path})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer store.Close()

	if _, ok := store.(*Store); !ok {
		t.Errorf("expected *file.Store, got %T", store)
	}
}
