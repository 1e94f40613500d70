// Package sessiontest provides a behavioral test suite shared by all
// session.Store implementations.
package sessiontest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/txn2/trip-planner/pkg/session"
)

// Clock is a settable time source for stores under test.
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

// NewClock returns a clock set to t.
func NewClock(t time.Time) *Clock {
	return &Clock{t: t}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// Factory builds an empty store using cfg.
type Factory func(t *testing.T, cfg session.Config) session.Store

const window = time.Hour

func str(s string) *string { return &s }

// RunStoreContract runs the suite against stores produced by newStore.
func RunStoreContract(t *testing.T, newStore Factory) {
	t.Helper()

	setup := func(t *testing.T) (session.Store, *Clock) {
		t.Helper()
		clock := NewClock(time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC))
		return newStore(t, session.Config{Window: window, Now: clock.Now}), clock
	}

	t.Run("CreateAndGet", func(t *testing.T) {
		store, clock := setup(t)
		ctx := context.Background()

		created, err := store.Create(ctx, "u1", session.Memory{})
		require.NoError(t, err)
		assert.Equal(t, session.StageDiscovery, created.Stage)
		assert.True(t, created.Active)
		assert.True(t, created.Memory.IsZero())
		assert.WithinDuration(t, clock.Now().Add(window), created.ExpiresAt, time.Second)

		got, err := store.Get(ctx, created.ID, "u1")
		require.NoError(t, err)
		assert.Equal(t, created.ID, got.ID)
		assert.Equal(t, "u1", got.Owner)
	})

	t.Run("ForeignOwnerLooksMissing", func(t *testing.T) {
		store, _ := setup(t)
		ctx := context.Background()

		created, err := store.Create(ctx, "u1", session.Memory{})
		require.NoError(t, err)

		_, errForeign := store.Get(ctx, created.ID, "u2")
		_, errMissing := store.Get(ctx, "does-not-exist", "u2")
		assert.ErrorIs(t, errForeign, session.ErrNotFound)
		assert.ErrorIs(t, errMissing, session.ErrNotFound)
		assert.Equal(t, errMissing.Error(), errForeign.Error())

		_, err = store.Patch(ctx, created.ID, "u2", session.Patch{Memory: session.Memory{Trip: session.Trip{Destination: str("Oslo")}}})
		assert.ErrorIs(t, err, session.ErrNotFound)

		_, err = store.TransitionStage(ctx, created.ID, "u2", session.StageOptions)
		assert.ErrorIs(t, err, session.ErrNotFound)

		require.NoError(t, store.Delete(ctx, created.ID, "u2"))
		_, err = store.Get(ctx, created.ID, "u1")
		assert.NoError(t, err, "a foreign delete must not remove the session")
	})

	t.Run("PatchScenario", func(t *testing.T) {
		store, _ := setup(t)
		ctx := context.Background()

		created, err := store.Create(ctx, "u1", session.Memory{})
		require.NoError(t, err)

		_, err = store.Patch(ctx, created.ID, "u1", session.Patch{
			Memory: session.Memory{Trip: session.Trip{Destination: str("Paris")}},
		})
		require.NoError(t, err)

		budget := 1200.0
		got, err := store.Patch(ctx, created.ID, "u1", session.Patch{
			Memory: session.Memory{Trip: session.Trip{Destination: nil, Budget: &budget}},
		})
		require.NoError(t, err)

		want := session.Memory{Trip: session.Trip{Destination: str("Paris"), Budget: &budget}}
		assert.Equal(t, want, got.Memory)

		reloaded, err := store.Get(ctx, created.ID, "u1")
		require.NoError(t, err)
		assert.Equal(t, want, reloaded.Memory)
	})

	t.Run("PatchValidation", func(t *testing.T) {
		store, _ := setup(t)
		ctx := context.Background()

		created, err := store.Create(ctx, "u1", session.Memory{})
		require.NoError(t, err)

		_, err = store.Patch(ctx, created.ID, "u1", session.Patch{
			Memory: session.Memory{Trip: session.Trip{DepartureDate: str("tomorrow")}},
		})
		var verr *session.ValidationError
		require.True(t, errors.As(err, &verr))

		got, err := store.Get(ctx, created.ID, "u1")
		require.NoError(t, err)
		assert.Nil(t, got.Memory.Trip.DepartureDate)
	})

	t.Run("SlidingExpiry", func(t *testing.T) {
		store, clock := setup(t)
		ctx := context.Background()

		created, err := store.Create(ctx, "u1", session.Memory{})
		require.NoError(t, err)

		clock.Advance(45 * time.Minute)
		patched, err := store.Patch(ctx, created.ID, "u1", session.Patch{Currency: str("USD")})
		require.NoError(t, err)
		assert.True(t, patched.ExpiresAt.After(created.ExpiresAt))

		clock.Advance(45 * time.Minute)
		_, err = store.Get(ctx, created.ID, "u1")
		assert.NoError(t, err, "an active session must not expire")

		clock.Advance(window)
		_, err = store.Get(ctx, created.ID, "u1")
		assert.ErrorIs(t, err, session.ErrNotFound, "an idle session must expire")
	})

	t.Run("TransitionStage", func(t *testing.T) {
		store, _ := setup(t)
		ctx := context.Background()

		created, err := store.Create(ctx, "u1", session.Memory{})
		require.NoError(t, err)

		got, err := store.TransitionStage(ctx, created.ID, "u1", session.StageBooking)
		require.NoError(t, err)
		assert.Equal(t, session.StageBooking, got.Stage)

		_, err = store.TransitionStage(ctx, created.ID, "u1", session.StageDiscovery)
		assert.ErrorIs(t, err, session.ErrInvalidTransition)

		reloaded, err := store.Get(ctx, created.ID, "u1")
		require.NoError(t, err)
		assert.Equal(t, session.StageBooking, reloaded.Stage)
	})

	t.Run("RecordTurn", func(t *testing.T) {
		store, clock := setup(t)
		ctx := context.Background()

		created, err := store.Create(ctx, "u1", session.Memory{Trip: session.Trip{Destination: str("Paris")}})
		require.NoError(t, err)

		got, err := store.RecordTurn(ctx, created.ID, "u1", session.TurnUpdate{
			Memory:          session.Memory{Trip: session.Trip{Destination: str("Rome"), Location: str("Berlin")}},
			PendingQuestion: "When do you leave?",
			Turns: []session.Turn{
				{Role: session.RoleUser, Content: "from Berlin", At: clock.Now()},
				{Role: session.RoleAgent, Content: "When do you leave?", At: clock.Now()},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, "Paris", *got.Memory.Trip.Destination)
		assert.Equal(t, "Berlin", *got.Memory.Trip.Location)
		assert.Equal(t, "When do you leave?", got.PendingQuestion)
		require.Len(t, got.ConversationLog, 2)
		assert.Equal(t, session.RoleUser, got.ConversationLog[0].Role)
	})

	t.Run("RecordTurnKeepsDateOrder", func(t *testing.T) {
		store, _ := setup(t)
		ctx := context.Background()

		created, err := store.Create(ctx, "u1", session.Memory{})
		require.NoError(t, err)
		_, err = store.Patch(ctx, created.ID, "u1", session.Patch{
			Memory: session.Memory{Trip: session.Trip{DepartureDate: str("2026-06-10")}},
		})
		require.NoError(t, err)

		got, err := store.RecordTurn(ctx, created.ID, "u1", session.TurnUpdate{
			Memory: session.Memory{Trip: session.Trip{ReturnDate: str("2026-06-01")}},
		})
		require.NoError(t, err)
		assert.Nil(t, got.Memory.Trip.ReturnDate)
		assert.NoError(t, got.Memory.Validate())
	})

	t.Run("RecordTurnAdvances", func(t *testing.T) {
		store, _ := setup(t)
		ctx := context.Background()

		budget, adults := 1500.0, 2
		created, err := store.Create(ctx, "u1", session.Memory{})
		require.NoError(t, err)

		got, err := store.RecordTurn(ctx, created.ID, "u1", session.TurnUpdate{
			Memory: session.Memory{
				Trip: session.Trip{
					Destination: str("Rome"), DepartureDate: str("2026-06-10"), ReturnDate: str("2026-06-17"),
					Budget: &budget, Adults: &adults,
				},
				User: session.Traveler{Description: str("likes food")},
			},
			Advance: true,
		})
		require.NoError(t, err)
		assert.Equal(t, session.StageOptions, got.Stage)

		reloaded, err := store.Get(ctx, created.ID, "u1")
		require.NoError(t, err)
		assert.Equal(t, session.StageOptions, reloaded.Stage)
	})

	t.Run("Deactivate", func(t *testing.T) {
		store, _ := setup(t)
		ctx := context.Background()

		created, err := store.Create(ctx, "u1", session.Memory{})
		require.NoError(t, err)

		got, err := store.Deactivate(ctx, created.ID, "u1")
		require.NoError(t, err)
		assert.False(t, got.Active)
	})

	t.Run("DeleteIsIdempotent", func(t *testing.T) {
		store, _ := setup(t)
		ctx := context.Background()

		created, err := store.Create(ctx, "u1", session.Memory{})
		require.NoError(t, err)

		require.NoError(t, store.Delete(ctx, created.ID, "u1"))
		require.NoError(t, store.Delete(ctx, created.ID, "u1"))
		require.NoError(t, store.Delete(ctx, "never-existed", "u1"))

		_, err = store.Get(ctx, created.ID, "u1")
		assert.ErrorIs(t, err, session.ErrNotFound)
	})

	t.Run("ListIDs", func(t *testing.T) {
		store, clock := setup(t)
		ctx := context.Background()

		first, err := store.Create(ctx, "u1", session.Memory{})
		require.NoError(t, err)
		clock.Advance(time.Millisecond)
		second, err := store.Create(ctx, "u1", session.Memory{})
		require.NoError(t, err)
		_, err = store.Create(ctx, "u2", session.Memory{})
		require.NoError(t, err)

		ids, err := store.ListIDs(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, []string{first.ID, second.ID}, ids)

		ids, err = store.ListIDs(ctx, "nobody")
		require.NoError(t, err)
		assert.Empty(t, ids)
	})

	t.Run("Sweep", func(t *testing.T) {
		store, clock := setup(t)
		ctx := context.Background()

		stale, err := store.Create(ctx, "u1", session.Memory{})
		require.NoError(t, err)
		_, err = store.Deactivate(ctx, stale.ID, "u1")
		require.NoError(t, err)

		clock.Advance(window / 2)
		fresh, err := store.Create(ctx, "u1", session.Memory{})
		require.NoError(t, err)

		clock.Advance(window/2 + time.Minute)
		removed, err := store.Sweep(ctx, clock.Now())
		require.NoError(t, err)
		assert.Equal(t, int64(1), removed)

		ids, err := store.ListIDs(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, []string{fresh.ID}, ids)

		removed, err = store.Sweep(ctx, clock.Now())
		require.NoError(t, err)
		assert.Zero(t, removed)
	})
}
