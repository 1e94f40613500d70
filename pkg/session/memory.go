package session

import (
	"context"
	"slices"
	"sync"
	"time"
)

// MemoryStore implements Store using an in-memory map with sliding expiry.
// Returned sessions are copies.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	cfg      Config
}

// NewMemoryStore creates a new in-memory session store.
func NewMemoryStore(cfg Config) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		cfg:      cfg.WithDefaults(),
	}
}

// Create starts a new session.
func (s *MemoryStore) Create(_ context.Context, owner string, seed Memory) (*Session, error) {
	sess, err := New(owner, seed, s.cfg)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[sess.ID] = sess
	return sess.Clone(), nil
}

// Get returns the session or ErrNotFound.
func (s *MemoryStore) Get(_ context.Context, id, owner string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok || !sess.VisibleTo(owner, s.cfg.Now()) {
		return nil, ErrNotFound
	}
	return sess.Clone(), nil
}

// Patch applies p and returns the updated session.
func (s *MemoryStore) Patch(_ context.Context, id, owner string, p Patch) (*Session, error) {
	return s.mutate(id, owner, func(sess *Session, now time.Time) error {
		return sess.ApplyPatch(p, now, s.cfg.Window)
	})
}

// TransitionStage moves the session to next.
func (s *MemoryStore) TransitionStage(_ context.Context, id, owner string, next Stage) (*Session, error) {
	return s.mutate(id, owner, func(sess *Session, now time.Time) error {
		return sess.Advance(next, now, s.cfg.Window)
	})
}

// RecordTurn stores the outcome of a collection step.
func (s *MemoryStore) RecordTurn(_ context.Context, id, owner string, u TurnUpdate) (*Session, error) {
	return s.mutate(id, owner, func(sess *Session, now time.Time) error {
		sess.ApplyTurn(u, now, s.cfg.Window)
		return nil
	})
}

// Deactivate marks the session closed.
func (s *MemoryStore) Deactivate(_ context.Context, id, owner string) (*Session, error) {
	return s.mutate(id, owner, func(sess *Session, now time.Time) error {
		sess.Deactivate(now, s.cfg.Window)
		return nil
	})
}

// mutate runs fn on a working copy under the write lock and stores the
// copy only if fn succeeds.
func (s *MemoryStore) mutate(id, owner string, fn func(*Session, time.Time) error) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.cfg.Now()
	current, ok := s.sessions[id]
	if !ok || !current.VisibleTo(owner, now) {
		return nil, ErrNotFound
	}

	working := current.Clone()
	if err := fn(working, now); err != nil {
		return nil, err
	}
	s.sessions[id] = working
	return working.Clone(), nil
}

// Delete removes the session if owner holds it.
func (s *MemoryStore) Delete(_ context.Context, id, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[id]; ok && sess.Owner == owner {
		delete(s.sessions, id)
	}
	return nil
}

// ListIDs returns the ids of the owner's live sessions, oldest first.
func (s *MemoryStore) ListIDs(_ context.Context, owner string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.cfg.Now()
	ids := []string{}
	for id, sess := range s.sessions {
		if sess.VisibleTo(owner, now) {
			ids = append(ids, id)
		}
	}
	// ULIDs sort by creation time.
	slices.Sort(ids)
	return ids, nil
}

// Sweep removes sessions that expired before now.
func (s *MemoryStore) Sweep(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for id, sess := range s.sessions {
		if sess.ExpiresAt.Before(now) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed, nil
}

// Verify interface compliance.
var _ Store = (*MemoryStore)(nil)
