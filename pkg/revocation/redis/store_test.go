package redis

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/txn2/trip-planner/pkg/revocation"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return New(client, WithKey("test:revoked")), mr
}

func TestStore_InsertAndContains(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	found, err := store.Contains(ctx, "tok-a")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Insert(ctx, "tok-a", time.Now().Add(time.Hour)))

	found, err = store.Contains(ctx, "tok-a")
	require.NoError(t, err)
	assert.True(t, found)
	assert.True(t, mr.Exists("test:revoked"))
}

func TestStore_InsertDuplicate(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	until := time.Now().Add(time.Hour)

	require.NoError(t, store.Insert(ctx, "tok-a", until))
	assert.ErrorIs(t, store.Insert(ctx, "tok-a", until), revocation.ErrAlreadyRevoked)
}

func TestStore_SweepNeverEarly(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 500_000, time.UTC)

	require.NoError(t, store.Insert(ctx, "past", now.Add(-2*time.Millisecond)))
	require.NoError(t, store.Insert(ctx, "exact", now))
	require.NoError(t, store.Insert(ctx, "future", now.Add(time.Minute)))

	removed, err := store.Sweep(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	for _, id := range []string{"exact", "future"} {
		found, err := store.Contains(ctx, id)
		require.NoError(t, err)
		assert.True(t, found, "entry %q swept early", id)
	}
}

func TestStore_ConcurrentInsertSingleWinner(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	until := time.Now().Add(time.Hour)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.Insert(ctx, "tok-race", until)
			if err == nil {
				wins.Add(1)
				return
			}
			assert.True(t, errors.Is(err, revocation.ErrAlreadyRevoked))
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestStore_ConnectionError(t *testing.T) {
	store, mr := newTestStore(t)
	mr.Close()

	_, err := store.Contains(context.Background(), "tok-a")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checking revocation")
}

func TestCeilMillis(t *testing.T) {
	base := time.UnixMilli(1_700_000_000_000)
	assert.Equal(t, base.UnixMilli(), ceilMillis(base))
	assert.Equal(t, base.UnixMilli()+1, ceilMillis(base.Add(time.Microsecond)))
}
