package middleware

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
)

type contextKey string

const sessionContextKey contextKey = "session"

// RequireSession is middleware that resolves the {id} URL parameter to a live session.
func RequireSession(sm *SessionManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s := sm.GetSession(chi.URLParam(r, "id"))
			if s == nil {
				http.Error(w, `{"error": "session not found"}`, http.StatusNotFound)
				return
			}

			ctx := context.WithValue(r.Context(), sessionContextKey, s)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetSessionFromContext retrieves the session from the request context
func GetSessionFromContext(ctx context.Context) *Session {
	s, ok := ctx.Value(sessionContextKey).(*Session)
	if !ok {
		return nil
	}
	return s
}

// SetSessionInContext adds a session to the context.
// This is primarily for testing - use RequireSession middleware in production.
func SetSessionInContext(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, s)
}
