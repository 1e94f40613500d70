package revocation

import (
	"context"
	"sync"
	"time"
)

// MemoryStore implements Store using an in-memory map.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]time.Time
}

// NewMemoryStore creates a new in-memory revocation store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]time.Time),
	}
}

// Insert records tokenID as revoked until the given time.
func (s *MemoryStore) Insert(_ context.Context, tokenID string, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[tokenID]; ok {
		return ErrAlreadyRevoked
	}
	s.entries[tokenID] = until
	return nil
}

// Contains reports whether tokenID is revoked.
func (s *MemoryStore) Contains(_ context.Context, tokenID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.entries[tokenID]
	return ok, nil
}

// Sweep removes entries revoked until strictly before now.
func (s *MemoryStore) Sweep(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for id, until := range s.entries {
		if until.Before(now) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of entries currently held.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Verify interface compliance.
var _ Store = (*MemoryStore)(nil)
