package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-gate/internal/database/mock"
	"github.com/kozaktomas/face-gate/internal/identity"
	"github.com/kozaktomas/face-gate/internal/session"
	"github.com/kozaktomas/face-gate/internal/web/middleware"
)

const testDim = 3

// testDirectory creates a directory over a mock store with the given identities enrolled
func testDirectory(t *testing.T, items ...identity.EnrolledIdentity) (*session.Directory, *mock.MockIdentityStore) {
	t.Helper()
	store := identity.NewStore(testDim)
	for _, item := range items {
		if err := store.Add(item); err != nil {
			t.Fatalf("failed to seed store: %v", err)
		}
	}
	persist := mock.NewMockIdentityStore(items...)
	n := 0
	dir := session.NewDirectory(store, persist, 0.55, session.WithIDGenerator(func() string {
		n++
		return "ID-new-" + strconv.Itoa(n)
	}))
	return dir, persist
}

// testSessionManager creates a session manager whose controllers share dir
func testSessionManager(dir *session.Directory) *middleware.SessionManager {
	return middleware.NewSessionManager(func(l session.Listener) *session.Controller {
		var opts []session.Option
		if l != nil {
			opts = append(opts, session.WithListener(l))
		}
		return session.NewController(session.DefaultConfig(), dir, opts...)
	}, 0, 0)
}

func alice() identity.EnrolledIdentity {
	return identity.EnrolledIdentity{ID: "ID-1", Name: "Alice", Embedding: []float32{0, 0, 0}}
}

func bob() identity.EnrolledIdentity {
	return identity.EnrolledIdentity{ID: "ID-2", Name: "Bob", Embedding: []float32{5, 5, 5}}
}

// jsonRequest creates a request with a JSON encoded body
func jsonRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal body: %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// requestWithSession adds a live session to the request context
func requestWithSession(r *http.Request, s *middleware.Session) *http.Request {
	return r.WithContext(middleware.SetSessionInContext(r.Context(), s))
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertContentType checks if the response has the expected content type
func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}
