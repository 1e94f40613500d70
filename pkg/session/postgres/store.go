// Package postgres provides PostgreSQL storage for planning sessions.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/txn2/trip-planner/pkg/session"
)

const table = "planning_sessions"

// psq is the PostgreSQL statement builder with dollar placeholders.
var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// sessionColumns lists columns returned by session SELECT queries.
var sessionColumns = []string{
	"id", "owner_id", "stage", "memory", "conversation_log", "pending_question",
	"active", "currency", "flights_url", "accommodation_url",
	"created_at", "updated_at", "expires_at",
}

// Store implements session.Store using PostgreSQL. Read-modify-write
// operations lock the row with SELECT ... FOR UPDATE.
type Store struct {
	db  *sql.DB
	cfg session.Config
}

// New creates a new PostgreSQL session store.
func New(db *sql.DB, cfg session.Config) *Store {
	return &Store{
		db:  db,
		cfg: cfg.WithDefaults(),
	}
}

// Create persists a new session.
func (s *Store) Create(ctx context.Context, owner string, seed session.Memory) (*session.Session, error) {
	sess, err := session.New(owner, seed, s.cfg)
	if err != nil {
		return nil, err
	}

	memoryJSON, logJSON, err := encode(sess)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO planning_sessions
		(id, owner_id, stage, memory, conversation_log, pending_question, active, currency, flights_url, accommodation_url, created_at, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err = s.db.ExecContext(ctx, query,
		sess.ID, sess.Owner, string(sess.Stage), memoryJSON, logJSON, sess.PendingQuestion,
		sess.Active, sess.Currency, sess.FlightsURL, sess.AccommodationURL,
		sess.CreatedAt, sess.UpdatedAt, sess.ExpiresAt,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting session: %w", err)
	}
	return sess, nil
}

// Get returns the session or session.ErrNotFound.
func (s *Store) Get(ctx context.Context, id, owner string) (*session.Session, error) {
	query, args, err := s.selectOne(id, owner).ToSql()
	if err != nil {
		return nil, fmt.Errorf("building session query: %w", err)
	}
	return scanSession(s.db.QueryRowContext(ctx, query, args...))
}

// Patch applies p and returns the updated session.
func (s *Store) Patch(ctx context.Context, id, owner string, p session.Patch) (*session.Session, error) {
	return s.mutate(ctx, id, owner, func(sess *session.Session, now time.Time) error {
		return sess.ApplyPatch(p, now, s.cfg.Window)
	})
}

// TransitionStage moves the session to next.
func (s *Store) TransitionStage(ctx context.Context, id, owner string, next session.Stage) (*session.Session, error) {
	return s.mutate(ctx, id, owner, func(sess *session.Session, now time.Time) error {
		return sess.Advance(next, now, s.cfg.Window)
	})
}

// RecordTurn stores the outcome of a collection step.
func (s *Store) RecordTurn(ctx context.Context, id, owner string, u session.TurnUpdate) (*session.Session, error) {
	return s.mutate(ctx, id, owner, func(sess *session.Session, now time.Time) error {
		sess.ApplyTurn(u, now, s.cfg.Window)
		return nil
	})
}

// Deactivate marks the session closed.
func (s *Store) Deactivate(ctx context.Context, id, owner string) (*session.Session, error) {
	return s.mutate(ctx, id, owner, func(sess *session.Session, now time.Time) error {
		sess.Deactivate(now, s.cfg.Window)
		return nil
	})
}

// mutate loads the row under lock, applies fn and writes the result back
// in the same transaction.
func (s *Store) mutate(ctx context.Context, id, owner string, fn func(*session.Session, time.Time) error) (*session.Session, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning session transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query, args, err := s.selectOne(id, owner).Suffix("FOR UPDATE").ToSql()
	if err != nil {
		return nil, fmt.Errorf("building session query: %w", err)
	}
	sess, err := scanSession(tx.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, err
	}

	if err := fn(sess, s.cfg.Now()); err != nil {
		return nil, err
	}

	memoryJSON, logJSON, err := encode(sess)
	if err != nil {
		return nil, err
	}
	update, updateArgs, err := psq.Update(table).
		SetMap(map[string]any{
			"stage":             string(sess.Stage),
			"memory":            memoryJSON,
			"conversation_log":  logJSON,
			"pending_question":  sess.PendingQuestion,
			"active":            sess.Active,
			"currency":          sess.Currency,
			"flights_url":       sess.FlightsURL,
			"accommodation_url": sess.AccommodationURL,
			"updated_at":        sess.UpdatedAt,
			"expires_at":        sess.ExpiresAt,
		}).
		Where(sq.Eq{"id": sess.ID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building session update: %w", err)
	}
	if _, err := tx.ExecContext(ctx, update, updateArgs...); err != nil {
		return nil, fmt.Errorf("updating session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing session update: %w", err)
	}
	return sess, nil
}

// Delete removes the session if owner holds it.
func (s *Store) Delete(ctx context.Context, id, owner string) error {
	query := `DELETE FROM planning_sessions WHERE id = $1 AND owner_id = $2`
	if _, err := s.db.ExecContext(ctx, query, id, owner); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// ListIDs returns the ids of the owner's live sessions, oldest first.
func (s *Store) ListIDs(ctx context.Context, owner string) ([]string, error) {
	query, args, err := psq.Select("id").From(table).
		Where(sq.Eq{"owner_id": owner}).
		Where(sq.Gt{"expires_at": s.cfg.Now().UTC()}).
		OrderBy("id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building session list query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning session id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating session rows: %w", err)
	}
	return ids, nil
}

// Sweep removes sessions that expired before now.
func (s *Store) Sweep(ctx context.Context, now time.Time) (int64, error) {
	query := `DELETE FROM planning_sessions WHERE expires_at < $1`
	result, err := s.db.ExecContext(ctx, query, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("sweeping sessions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reading session sweep result: %w", err)
	}
	return n, nil
}

func (s *Store) selectOne(id, owner string) sq.SelectBuilder {
	return psq.Select(sessionColumns...).From(table).
		Where(sq.Eq{"id": id, "owner_id": owner}).
		Where(sq.Gt{"expires_at": s.cfg.Now().UTC()})
}

func encode(sess *session.Session) ([]byte, []byte, error) {
	memoryJSON, err := json.Marshal(sess.Memory)
	if err != nil {
		return nil, nil, fmt.Errorf("marshaling session memory: %w", err)
	}
	logJSON, err := json.Marshal(sess.ConversationLog)
	if err != nil {
		return nil, nil, fmt.Errorf("marshaling conversation log: %w", err)
	}
	return memoryJSON, logJSON, nil
}

// scanSession scans a single row, mapping a missing row to session.ErrNotFound.
func scanSession(row *sql.Row) (*session.Session, error) {
	var sess session.Session
	var stage string
	var memoryJSON, logJSON []byte

	err := row.Scan(
		&sess.ID, &sess.Owner, &stage, &memoryJSON, &logJSON, &sess.PendingQuestion,
		&sess.Active, &sess.Currency, &sess.FlightsURL, &sess.AccommodationURL,
		&sess.CreatedAt, &sess.UpdatedAt, &sess.ExpiresAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning session: %w", err)
	}

	sess.Stage = session.Stage(stage)
	if len(memoryJSON) > 0 {
		if err := json.Unmarshal(memoryJSON, &sess.Memory); err != nil {
			return nil, fmt.Errorf("decoding session memory: %w", err)
		}
	}
	sess.ConversationLog = []session.Turn{}
	if len(logJSON) > 0 {
		if err := json.Unmarshal(logJSON, &sess.ConversationLog); err != nil {
			return nil, fmt.Errorf("decoding conversation log: %w", err)
		}
		if sess.ConversationLog == nil {
			sess.ConversationLog = []session.Turn{}
		}
	}
	return &sess, nil
}

// Verify interface compliance.
var _ session.Store = (*Store)(nil)
