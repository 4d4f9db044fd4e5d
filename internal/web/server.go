package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/kozaktomas/face-gate/internal/config"
	"github.com/kozaktomas/face-gate/internal/constants"
	"github.com/kozaktomas/face-gate/internal/database"
	"github.com/kozaktomas/face-gate/internal/logging"
	"github.com/kozaktomas/face-gate/internal/session"
	"github.com/kozaktomas/face-gate/internal/web/handlers"
	"github.com/kozaktomas/face-gate/internal/web/middleware"
	"github.com/sirupsen/logrus"
)

// Server represents the web server
type Server struct {
	config         *config.Config
	router         *chi.Mux
	httpServer     *http.Server
	dir            *session.Directory
	index          *database.NeighborIndex
	sessionManager *middleware.SessionManager
	validate       *validator.Validate
	log            logrus.FieldLogger
}

// NewServer creates a new web server. newController builds the controller of every
// session; all controllers must share dir.
func NewServer(cfg *config.Config, dir *session.Directory, newController middleware.ControllerFactory, log logrus.FieldLogger) *Server {
	if log == nil {
		log = logging.Discard()
	}
	r := chi.NewRouter()

	sessionManager := middleware.NewSessionManager(
		newController,
		cfg.Web.MaxSessions,
		cfg.Web.SessionIdleTimeout,
		middleware.WithSessionLogger(log),
	)

	s := &Server{
		config:         cfg,
		router:         r,
		dir:            dir,
		index:          database.NewNeighborIndex(),
		sessionManager: sessionManager,
		validate:       handlers.NewValidator(),
		log:            log,
	}

	// Set up middleware stack
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.RequestLogger(log))
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.Web.AllowedOrigins))
	r.Use(middleware.SecurityHeaders())

	// Set up routes
	s.setupRoutes()

	// Create HTTP server
	s.httpServer = &http.Server{
		Addr:              cfg.Web.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
		// No WriteTimeout: event streams stay open for the life of a session.
	}

	return s
}

// Start starts the idle-session sweeper and the HTTP server
func (s *Server) Start() error {
	s.sessionManager.StartSweeper(constants.SweepInterval)

	s.log.WithField("addr", s.httpServer.Addr).Info("Starting web server")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down web server")

	// Cancel live sessions first so event streams end and Shutdown does not wait on them
	s.sessionManager.Stop()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Sessions returns the live session registry
func (s *Server) Sessions() *middleware.SessionManager {
	return s.sessionManager
}
