package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kozaktomas/face-gate/internal/identity"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

// IdentityRepository persists the identity population in the identities table.
type IdentityRepository struct {
	pool *Pool
}

// NewIdentityRepository creates a new PostgreSQL identity repository.
func NewIdentityRepository(pool *Pool) *IdentityRepository {
	return &IdentityRepository{pool: pool}
}

// Load returns all identities in enrollment order.
func (r *IdentityRepository) Load(ctx context.Context) ([]identity.EnrolledIdentity, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, embedding
		FROM identities
		ORDER BY position, id
	`)
	if err != nil {
		return nil, fmt.Errorf("query identities: %w", err)
	}
	defer rows.Close()

	items := []identity.EnrolledIdentity{}
	for rows.Next() {
		var (
			item identity.EnrolledIdentity
			vec  pgvector.Vector
		)
		if err := rows.Scan(&item.ID, &item.Name, &vec); err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		item.Embedding = vec.Slice()
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identities: %w", err)
	}
	return items, nil
}

// Save replaces the stored population with identities in one transaction.
// Rows of identities that are kept retain their created_at.
func (r *IdentityRepository) Save(ctx context.Context, identities []identity.EnrolledIdentity) error {
	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	ids := make([]string, len(identities))
	for i := range identities {
		ids[i] = identities[i].ID
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM identities WHERE NOT (id = ANY($1))", pq.Array(ids)); err != nil {
		return fmt.Errorf("delete removed identities: %w", err)
	}

	if err := upsertIdentities(ctx, tx, identities); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func upsertIdentities(ctx context.Context, tx *sql.Tx, identities []identity.EnrolledIdentity) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO identities (id, position, name, embedding, dim)
		VALUES ($1, $2, $3, $4::vector, $5)
		ON CONFLICT (id) DO UPDATE SET
			position = EXCLUDED.position,
			name = EXCLUDED.name,
			embedding = EXCLUDED.embedding,
			dim = EXCLUDED.dim,
			updated_at = NOW()
	`)
	if err != nil {
		return fmt.Errorf("prepare identity upsert: %w", err)
	}
	defer stmt.Close()

	for i := range identities {
		item := &identities[i]
		vec := pgvector.NewVector(item.Embedding)
		if _, err := stmt.ExecContext(ctx, item.ID, i, item.Name, vec, len(item.Embedding)); err != nil {
			return fmt.Errorf("upsert identity %s: %w", item.ID, err)
		}
	}
	return nil
}

// Count returns the number of stored identities.
func (r *IdentityRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM identities").Scan(&count); err != nil {
		return 0, fmt.Errorf("count identities: %w", err)
	}
	return count, nil
}

// Close closes the underlying pool.
func (r *IdentityRepository) Close() error {
	return r.pool.Close()
}
