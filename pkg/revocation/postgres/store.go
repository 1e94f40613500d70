// Package postgres provides PostgreSQL storage for revoked tokens.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/txn2/trip-planner/pkg/revocation"
)

// psq is the PostgreSQL statement builder with dollar placeholders.
var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Store implements revocation.Store using PostgreSQL. Uniqueness of token_id
// is enforced by the table's primary key.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL revocation store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Insert records tokenID as revoked until the given time.
func (s *Store) Insert(ctx context.Context, tokenID string, until time.Time) error {
	query, args, err := psq.Insert("revoked_tokens").
		Columns("token_id", "revoked_until").
		Values(tokenID, until.UTC()).
		Suffix("ON CONFLICT (token_id) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("building revocation insert: %w", err)
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("inserting revocation: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading revocation insert result: %w", err)
	}
	if n == 0 {
		return revocation.ErrAlreadyRevoked
	}
	return nil
}

// Contains reports whether tokenID is revoked.
func (s *Store) Contains(ctx context.Context, tokenID string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM revoked_tokens WHERE token_id = $1)`

	var found bool
	if err := s.db.QueryRowContext(ctx, query, tokenID).Scan(&found); err != nil {
		return false, fmt.Errorf("checking revocation: %w", err)
	}
	return found, nil
}

// Sweep removes entries revoked until strictly before now.
func (s *Store) Sweep(ctx context.Context, now time.Time) (int64, error) {
	query, args, err := psq.Delete("revoked_tokens").
		Where(sq.Lt{"revoked_until": now.UTC()}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("building revocation sweep: %w", err)
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("sweeping revocations: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reading revocation sweep result: %w", err)
	}
	return n, nil
}

// Verify interface compliance.
var _ revocation.Store = (*Store)(nil)
