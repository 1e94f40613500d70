// Package redis provides Redis storage for revoked tokens.
//
// All entries live in one sorted set whose members are token ids and whose
// scores are the revocation expiry in unix milliseconds, rounded up so that
// a sweep can never remove an entry before its expiry.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/txn2/trip-planner/pkg/revocation"
)

const defaultKey = "trip-planner:revoked"

// Store implements revocation.Store using a Redis sorted set.
type Store struct {
	client backend.UniversalClient
	key    string
}

// Option configures a Store.
type Option func(*Store)

// WithKey sets the sorted set key.
func WithKey(key string) Option {
	return func(s *Store) {
		s.key = key
	}
}

// New creates a Redis revocation store on an existing client.
func New(client backend.UniversalClient, opts ...Option) *Store {
	s := &Store{
		client: client,
		key:    defaultKey,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Insert records tokenID as revoked until the given time.
func (s *Store) Insert(ctx context.Context, tokenID string, until time.Time) error {
	added, err := s.client.ZAddNX(ctx, s.key, backend.Z{
		Score:  float64(ceilMillis(until)),
		Member: tokenID,
	}).Result()
	if err != nil {
		return fmt.Errorf("inserting revocation: %w", err)
	}
	if added == 0 {
		return revocation.ErrAlreadyRevoked
	}
	return nil
}

// Contains reports whether tokenID is revoked.
func (s *Store) Contains(ctx context.Context, tokenID string) (bool, error) {
	err := s.client.ZScore(ctx, s.key, tokenID).Err()
	if errors.Is(err, backend.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking revocation: %w", err)
	}
	return true, nil
}

// Sweep removes entries revoked until strictly before now.
func (s *Store) Sweep(ctx context.Context, now time.Time) (int64, error) {
	maxScore := "(" + strconv.FormatInt(now.UnixMilli(), 10)
	n, err := s.client.ZRemRangeByScore(ctx, s.key, "-inf", maxScore).Result()
	if err != nil {
		return 0, fmt.Errorf("sweeping revocations: %w", err)
	}
	return n, nil
}

// ceilMillis converts t to unix milliseconds, rounding any sub-millisecond
// remainder up.
func ceilMillis(t time.Time) int64 {
	ms := t.UnixMilli()
	if t.After(time.UnixMilli(ms)) {
		ms++
	}
	return ms
}

// Verify interface compliance.
var _ revocation.Store = (*Store)(nil)
