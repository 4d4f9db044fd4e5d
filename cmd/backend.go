package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/kozaktomas/face-gate/internal/cadence"
	"github.com/kozaktomas/face-gate/internal/config"
	"github.com/kozaktomas/face-gate/internal/database"
	"github.com/kozaktomas/face-gate/internal/identity"
	"github.com/kozaktomas/face-gate/internal/liveness"
	"github.com/kozaktomas/face-gate/internal/logging"
	"github.com/kozaktomas/face-gate/internal/session"
	"github.com/sirupsen/logrus"

	// Storage backends register themselves with the database package.
	_ "github.com/kozaktomas/face-gate/internal/database/file"
	_ "github.com/kozaktomas/face-gate/internal/database/mariadb"
	_ "github.com/kozaktomas/face-gate/internal/database/postgres"
)

// engine bundles what every command needs: config, logger and the loaded population.
type engine struct {
	cfg     *config.Config
	log     *logrus.Logger
	backend database.IdentityStore
	dir     *session.Directory
}

// openEngine loads config, opens the configured storage backend and reads the
// enrolled population into memory.
func openEngine(ctx context.Context) (*engine, error) {
	cfg := config.Load()
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logging.New(logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		NoColors:   cfg.Log.NoColors,
		MaxSizeMB:  50,
		MaxBackups: 5,
		MaxAgeDays: 30,
	})
	if err != nil {
		return nil, err
	}

	backend, err := database.Open(ctx, &cfg.Database)
	if err != nil {
		return nil, err
	}

	store := identity.NewStore(cfg.Engine.EmbeddingDim)
	n, err := database.LoadInto(ctx, backend, store)
	if err != nil {
		backend.Close()
		return nil, fmt.Errorf("loading identities: %w", err)
	}
	log.WithFields(logrus.Fields{"driver": cfg.Database.Driver, "identities": n}).Info("Identity store loaded")

	dir := session.NewDirectory(store, backend, cfg.Engine.DuplicateThreshold,
		session.WithDirectoryLogger(log.WithField("component", "directory")),
	)

	return &engine{cfg: cfg, log: log, backend: backend, dir: dir}, nil
}

// Close releases the storage backend.
func (e *engine) Close() {
	if err := e.backend.Close(); err != nil {
		e.log.WithError(err).Warn("Closing storage backend failed")
	}
}

// sessionConfig maps configuration onto controller thresholds.
func sessionConfig(cfg *config.Config) session.Config {
	return session.Config{
		LoginThreshold:    cfg.Engine.LoginThreshold,
		LivenessThreshold: cfg.Engine.LivenessThreshold,
		Liveness: liveness.Config{
			Expression:          cfg.Liveness.Expression,
			ExpressionThreshold: cfg.Liveness.ExpressionThreshold,
			MouthOpenThreshold:  cfg.Liveness.MouthOpenThreshold,
		},
	}
}

// newController builds a controller over the shared directory. Every controller
// gets its own cadence policy; throttled controllers are for live frame streams only.
func (e *engine) newController(l session.Listener, throttled bool) *session.Controller {
	opts := []session.Option{
		session.WithLogger(e.log.WithField("component", "session")),
	}
	if throttled {
		opts = append(opts, session.WithThrottle(cadence.NewPolicy(e.cfg.Cadence.MinInterval)))
	}
	if l != nil {
		opts = append(opts, session.WithListener(l))
	}
	return session.NewController(sessionConfig(e.cfg), e.dir, opts...)
}

func outputJSON(data any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}
