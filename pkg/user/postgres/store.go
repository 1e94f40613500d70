// Package postgres provides PostgreSQL storage for users.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"github.com/txn2/trip-planner/pkg/user"
)

// uniqueViolation is the PostgreSQL SQLSTATE for a unique constraint failure.
const uniqueViolation = "23505"

var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var userColumns = []string{
	"id", "email", "hashed_password", "name", "date_of_birth", "location", "description", "created_at",
}

// Store implements user.Store using PostgreSQL.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL user store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create inserts u.
func (s *Store) Create(ctx context.Context, u *user.User) error {
	query := `
		INSERT INTO users
		(id, email, hashed_password, name, date_of_birth, location, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.ExecContext(ctx, query,
		u.ID, u.Email, u.HashedPassword, u.Name, u.DateOfBirth, u.Location, u.Description, u.CreatedAt,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return user.ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("inserting user: %w", err)
	}
	return nil
}

// GetByEmail looks a user up by email, ignoring case.
func (s *Store) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	return s.getOne(ctx, sq.Expr("LOWER(email) = ?", strings.ToLower(strings.TrimSpace(email))))
}

// GetByID looks a user up by id.
func (s *Store) GetByID(ctx context.Context, id string) (*user.User, error) {
	return s.getOne(ctx, sq.Eq{"id": id})
}

func (s *Store) getOne(ctx context.Context, pred sq.Sqlizer) (*user.User, error) {
	query, args, err := psq.Select(userColumns...).From("users").Where(pred).ToSql()
	if err != nil {
		return nil, fmt.Errorf("building user query: %w", err)
	}

	var u user.User
	var dob sql.NullTime
	err = s.db.QueryRowContext(ctx, query, args...).Scan(
		&u.ID, &u.Email, &u.HashedPassword, &u.Name, &dob, &u.Location, &u.Description, &u.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, user.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}
	if dob.Valid {
		t := dob.Time
		u.DateOfBirth = &t
	}
	return &u, nil
}

// Verify interface compliance.
var _ user.Store = (*Store)(nil)
