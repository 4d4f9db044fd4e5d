package mariadb

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kozaktomas/face-gate/internal/identity"
)

// IdentityRepository persists the identity population in the identities table.
type IdentityRepository struct {
	pool *Pool
}

// NewIdentityRepository creates a new MariaDB identity repository.
func NewIdentityRepository(pool *Pool) *IdentityRepository {
	return &IdentityRepository{pool: pool}
}

// Load returns all identities in enrollment order.
func (r *IdentityRepository) Load(ctx context.Context) ([]identity.EnrolledIdentity, error) {
	rows, err := r.pool.db.QueryContext(ctx, "SELECT id, name, embedding FROM identities ORDER BY position, id")
	if err != nil {
		return nil, fmt.Errorf("query identities: %w", err)
	}
	defer rows.Close()

	items := []identity.EnrolledIdentity{}
	for rows.Next() {
		var (
			item identity.EnrolledIdentity
			raw  []byte
		)
		if err := rows.Scan(&item.ID, &item.Name, &raw); err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		if err := json.Unmarshal(raw, &item.Embedding); err != nil {
			return nil, fmt.Errorf("decode embedding of %s: %w", item.ID, err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identities: %w", err)
	}
	return items, nil
}

// Save replaces the stored population with identities in one transaction.
func (r *IdentityRepository) Save(ctx context.Context, identities []identity.EnrolledIdentity) error {
	tx, err := r.pool.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM identities"); err != nil {
		return fmt.Errorf("clear identities: %w", err)
	}

	for i := range identities {
		item := &identities[i]
		raw, err := json.Marshal(item.Embedding)
		if err != nil {
			return fmt.Errorf("encode embedding of %s: %w", item.ID, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO identities (id, position, name, embedding, dim) VALUES (?, ?, ?, ?, ?)",
			item.ID, i, item.Name, string(raw), len(item.Embedding),
		); err != nil {
			return fmt.Errorf("insert identity %s: %w", item.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Close closes the underlying pool.
func (r *IdentityRepository) Close() error {
	return r.pool.Close()
}
