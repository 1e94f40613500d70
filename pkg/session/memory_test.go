package session_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/txn2/trip-planner/pkg/session"
	"github.com/txn2/trip-planner/pkg/session/sessiontest"
)

const (
	memTestGoroutines = 10
	memTestIterations = 50
)

func TestMemoryStore_Contract(t *testing.T) {
	sessiontest.RunStoreContract(t, func(_ *testing.T, cfg session.Config) session.Store {
		return session.NewMemoryStore(cfg)
	})
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	store := session.NewMemoryStore(session.Config{})
	ctx := context.Background()

	created, err := store.Create(ctx, "u1", session.Memory{})
	require.NoError(t, err)
	created.Stage = session.StageCompleted
	created.ConversationLog = append(created.ConversationLog, session.Turn{Content: "x"})

	got, err := store.Get(ctx, created.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, session.StageDiscovery, got.Stage)
	assert.Empty(t, got.ConversationLog)
}

func TestMemoryStore_ConcurrentPatchesStayMonotonic(t *testing.T) {
	store := session.NewMemoryStore(session.Config{})
	ctx := context.Background()

	created, err := store.Create(ctx, "u1", session.Memory{})
	require.NoError(t, err)

	dest := "Paris"
	_, err = store.Patch(ctx, created.ID, "u1", session.Patch{
		Memory: session.Memory{Trip: session.Trip{Destination: &dest}},
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for g := range memTestGoroutines {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := range memTestIterations {
				budget := float64(100*g + i + 1)
				desc := fmt.Sprintf("traveler %d", g)
				_, _ = store.Patch(ctx, created.ID, "u1", session.Patch{
					Memory: session.Memory{
						Trip: session.Trip{Budget: &budget},
						User: session.Traveler{Description: &desc},
					},
				})
				_, _ = store.RecordTurn(ctx, created.ID, "u1", session.TurnUpdate{
					Turns: []session.Turn{{Role: session.RoleUser, Content: desc}},
				})
			}
		}(g)
	}
	wg.Wait()

	got, err := store.Get(ctx, created.ID, "u1")
	require.NoError(t, err)
	require.NotNil(t, got.Memory.Trip.Destination)
	assert.Equal(t, "Paris", *got.Memory.Trip.Destination)
	assert.NotNil(t, got.Memory.Trip.Budget)
	assert.NotNil(t, got.Memory.User.Description)
	assert.Len(t, got.ConversationLog, memTestGoroutines*memTestIterations)
}
