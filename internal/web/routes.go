package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-gate/internal/web/handlers"
	"github.com/kozaktomas/face-gate/internal/web/middleware"
)

func (s *Server) setupRoutes() {
	// Create handlers
	configHandler := handlers.NewConfigHandler(s.config)
	identitiesHandler := handlers.NewIdentitiesHandler(s.dir, s.index, s.log)
	sessionsHandler := handlers.NewSessionsHandler(s.sessionManager, s.validate, s.log)

	// Health check
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	// API routes
	s.router.Route("/api/v1", func(r chi.Router) {
		// Config
		r.Get("/config", configHandler.Get)

		// Enrolled population
		r.Get("/identities", identitiesHandler.List)
		r.Delete("/identities/{id}", identitiesHandler.Delete)
		r.Get("/identities/{id}/neighbors", identitiesHandler.Neighbors)

		// One-shot identification without liveness
		r.Post("/identify", sessionsHandler.Identify)

		// Sessions
		r.Post("/sessions", sessionsHandler.Create)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Use(middleware.RequireSession(s.sessionManager))

			r.Get("/", sessionsHandler.Get)
			r.Delete("/", sessionsHandler.Delete)
			r.Post("/observations", sessionsHandler.Observe)
			r.Post("/enroll", sessionsHandler.Enroll)
			r.Post("/restart", sessionsHandler.Restart)
			r.Get("/events", sessionsHandler.Events)
		})
	})
}
