package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/templehubsakshi/FlowSpace/internal/domain/task"
)

// Store implements database.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Ping checks the pool can reach the server.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// lockColumn serializes order assignment within one workspace column for the
// rest of the transaction. Creates and right-shifts into the same column
// then never interleave.
func lockColumn(ctx context.Context, tx pgx.Tx, workspaceID string, status task.Status) error {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, workspaceID+":"+string(status)); err != nil {
		return fmt.Errorf("lock column %s/%s: %w", workspaceID, status, err)
	}
	return nil
}
