package web

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/face-gate/internal/config"
	"github.com/kozaktomas/face-gate/internal/identity"
	"github.com/kozaktomas/face-gate/internal/session"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Defaults()
	cfg.Engine.EmbeddingDim = 3

	store := identity.NewStore(3)
	if err := store.Add(identity.EnrolledIdentity{ID: "ID-1", Name: "Alice", Embedding: []float32{0, 0, 0}}); err != nil {
		t.Fatal(err)
	}
	dir := session.NewDirectory(store, nil, cfg.Engine.DuplicateThreshold)

	s := NewServer(cfg, dir, func(l session.Listener) *session.Controller {
		var opts []session.Option
		if l != nil {
			opts = append(opts, session.WithListener(l))
		}
		return session.NewController(session.DefaultConfig(), dir, opts...)
	}, nil)
	t.Cleanup(s.Sessions().Stop)
	return s
}

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	s.Router().ServeHTTP(recorder, req)
	return recorder
}

func TestRoutes(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		method string
		path   string
		body   any
		want   int
	}{
		{http.MethodGet, "/api/v1/health", nil, http.StatusOK},
		{http.MethodGet, "/api/v1/config", nil, http.StatusOK},
		{http.MethodGet, "/api/v1/identities", nil, http.StatusOK},
		{http.MethodGet, "/api/v1/identities/ID-1/neighbors", nil, http.StatusOK},
		{http.MethodPost, "/api/v1/identify", map[string]any{"embedding": []float32{0, 0, 0.1}}, http.StatusOK},
		{http.MethodGet, "/api/v1/sessions/unknown", nil, http.StatusNotFound},
		{http.MethodPost, "/api/v1/sessions/unknown/observations", map[string]any{}, http.StatusNotFound},
		{http.MethodDelete, "/api/v1/identities/ID-404", nil, http.StatusNotFound},
		{http.MethodOptions, "/api/v1/sessions", nil, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			recorder := do(t, s, tt.method, tt.path, tt.body)
			if recorder.Code != tt.want {
				t.Errorf("expected status %d, got %d\nBody: %s", tt.want, recorder.Code, recorder.Body.String())
			}
		})
	}
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)

	recorder := do(t, s, http.MethodPost, "/api/v1/sessions", map[string]string{"mode": "login", "challenge_kind": "expression"})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", recorder.Code, recorder.Body.String())
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}
	base := "/api/v1/sessions/" + created.ID

	recorder = do(t, s, http.MethodPost, base+"/observations", map[string]any{
		"embedding":   []float32{0, 0.2, 0},
		"expressions": map[string]float64{"happy": 0.8},
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("observe: %d %s", recorder.Code, recorder.Body.String())
	}
	var res session.Result
	if err := json.Unmarshal(recorder.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if res.Verdict == nil || !res.Verdict.Accepted() || res.Verdict.Name != "Alice" {
		t.Fatalf("expected Alice accepted, got %+v", res.Verdict)
	}

	if recorder = do(t, s, http.MethodGet, base, nil); recorder.Code != http.StatusOK {
		t.Errorf("status: %d", recorder.Code)
	}
	if recorder = do(t, s, http.MethodPost, base+"/restart", nil); recorder.Code != http.StatusOK {
		t.Errorf("restart: %d %s", recorder.Code, recorder.Body.String())
	}
	if recorder = do(t, s, http.MethodDelete, base, nil); recorder.Code != http.StatusNoContent {
		t.Errorf("delete: %d", recorder.Code)
	}
	if recorder = do(t, s, http.MethodGet, base, nil); recorder.Code != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", recorder.Code)
	}
}

func TestSecurityHeadersApplied(t *testing.T) {
	s := newTestServer(t)

	recorder := do(t, s, http.MethodGet, "/api/v1/health", nil)

	if recorder.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected security headers on API responses")
	}
}
