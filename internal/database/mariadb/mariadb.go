// Package mariadb stores the identity population in MariaDB. Embeddings are kept as JSON arrays.
package mariadb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/kozaktomas/face-gate/internal/config"
	"github.com/kozaktomas/face-gate/internal/database"
)

func init() {
	database.RegisterBackend("mariadb", Open)
}

const createIdentitiesTable = `
	CREATE TABLE IF NOT EXISTS identities (
		id         VARCHAR(255) NOT NULL PRIMARY KEY,
		position   INT NOT NULL,
		name       TEXT NOT NULL,
		embedding  LONGTEXT NOT NULL,
		dim        INT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		INDEX identities_position_idx (position)
	) CHARACTER SET utf8mb4
`

// Pool manages a MariaDB connection pool.
type Pool struct {
	db *sql.DB
}

// NewPool creates a new MariaDB connection pool.
func NewPool(ctx context.Context, cfg *config.DatabaseConfig) (*Pool, error) {
	if cfg.MariaDBDSN == "" {
		return nil, errors.New("MariaDB DSN is required")
	}

	db, err := sql.Open("mysql", cfg.MariaDBDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open MariaDB: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MariaDB: %w", err)
	}

	return &Pool{db: db}, nil
}

// Open connects, creates the identities table if needed and returns the repository.
func Open(ctx context.Context, cfg *config.DatabaseConfig) (database.IdentityStore, error) {
	pool, err := NewPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.EnsureSchema(ctx); err != nil {
		_ = pool.Close()
		return nil, err
	}
	return NewIdentityRepository(pool), nil
}

// EnsureSchema creates the identities table when it does not exist.
func (p *Pool) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, createIdentitiesTable); err != nil {
		return fmt.Errorf("create identities table: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (p *Pool) Close() error {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			return fmt.Errorf("closing database connection: %w", err)
		}
	}
	return nil
}
