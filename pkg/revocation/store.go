// Package revocation tracks identifiers of credentials that must no longer be
// accepted. Entries carry their own expiry and are purged by Sweep once that
// expiry has passed.
package revocation

import (
	"context"
	"errors"
	"time"
)

// ErrAlreadyRevoked is returned by Insert when the token id is already present.
// Callers racing on the same id can rely on exactly one Insert succeeding.
var ErrAlreadyRevoked = errors.New("token already revoked")

// Entry is a single revoked token identifier.
type Entry struct {
	TokenID      string    `json:"token_id"`
	RevokedUntil time.Time `json:"revoked_until"`
}

// Store defines the interface for revocation persistence.
type Store interface {
	// Insert records tokenID as revoked until the given time. Returns
	// ErrAlreadyRevoked if the id is already present.
	Insert(ctx context.Context, tokenID string, until time.Time) error

	// Contains reports whether tokenID is revoked.
	Contains(ctx context.Context, tokenID string) (bool, error)

	// Sweep removes every entry whose RevokedUntil is strictly before now and
	// returns the number removed.
	Sweep(ctx context.Context, now time.Time) (int64, error)
}
