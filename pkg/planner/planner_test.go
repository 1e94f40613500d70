package planner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/txn2/trip-planner/pkg/collect"
	"github.com/txn2/trip-planner/pkg/session"
	"github.com/txn2/trip-planner/pkg/user"
)

var plannerTestNow = time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

type failingUsers struct{ user.Store }

func (failingUsers) GetByID(context.Context, string) (*user.User, error) {
	return nil, errors.New("db down")
}

func newService(t *testing.T, extract collect.ExtractorFunc) (*Service, *user.MemoryStore) {
	t.Helper()
	sessions := session.NewMemoryStore(session.Config{Now: func() time.Time { return plannerTestNow }})
	users := user.NewMemoryStore()
	svc := New(sessions, users, collect.NewLoop(extract))
	svc.now = func() time.Time { return plannerTestNow }
	return svc, users
}

func romeExtractor(_ context.Context, current session.Memory, _ string) (*collect.Extraction, error) {
	if current.Trip.Destination == nil {
		return &collect.Extraction{Memory: session.Memory{Trip: session.Trip{
			Destination: ptr("Rome"),
			Budget:      ptr(2000.0),
			Adults:      ptr(2),
		}}}, nil
	}
	return &collect.Extraction{Memory: session.Memory{
		Trip: session.Trip{DepartureDate: ptr("2026-06-10"), ReturnDate: ptr("2026-06-17")},
		User: session.Traveler{Description: ptr("food lover")},
	}}, nil
}

func TestStartSession_SeedsFromProfile(t *testing.T) {
	svc, users := newService(t, romeExtractor)
	dob := time.Date(1990, 7, 15, 0, 0, 0, 0, time.UTC)
	require.NoError(t, users.Create(context.Background(), &user.User{
		ID: "u1", Email: "ana@example.com", Name: "Ana", DateOfBirth: &dob, Location: "Lisbon",
	}))

	sess, err := svc.StartSession(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ana", *sess.Memory.User.Name)
	assert.Equal(t, 35, *sess.Memory.User.Age)
	assert.Equal(t, "Lisbon", *sess.Memory.Trip.Location)
	assert.Nil(t, sess.Memory.User.Description)
}

func TestStartSession_NoProfile(t *testing.T) {
	svc, _ := newService(t, romeExtractor)

	sess, err := svc.StartSession(context.Background(), "ghost")
	require.NoError(t, err)
	assert.True(t, sess.Memory.IsZero())
}

func TestStartSession_ProfileError(t *testing.T) {
	svc, _ := newService(t, romeExtractor)
	svc.users = failingUsers{}

	_, err := svc.StartSession(context.Background(), "u1")
	assert.Error(t, err)
}

func TestHandleMessage_Conversation(t *testing.T) {
	svc, _ := newService(t, romeExtractor)
	ctx := context.Background()

	sess, err := svc.StartSession(ctx, "u1")
	require.NoError(t, err)

	reply, err := svc.HandleMessage(ctx, sess.ID, "u1", "I want to go to Rome in June with my partner, budget around 2000")
	require.NoError(t, err)
	assert.Equal(t, collect.OutcomeAwaitInput, reply.Outcome)
	assert.NotEmpty(t, reply.Question)
	assert.Equal(t, reply.Question, reply.Session.PendingQuestion)
	assert.Equal(t, session.StageDiscovery, reply.Session.Stage)
	require.Len(t, reply.Session.ConversationLog, 2)
	assert.Equal(t, session.RoleUser, reply.Session.ConversationLog[0].Role)
	assert.Equal(t, session.RoleAgent, reply.Session.ConversationLog[1].Role)

	reply, err = svc.HandleMessage(ctx, sess.ID, "u1", "10th to 17th of June, we love food")
	require.NoError(t, err)
	assert.Equal(t, collect.OutcomeAdvance, reply.Outcome)
	assert.Empty(t, reply.Question)
	assert.Equal(t, readyMessage, reply.Message)
	assert.Equal(t, session.StageOptions, reply.Session.Stage)
	assert.Empty(t, reply.Session.PendingQuestion)
	assert.Len(t, reply.Session.ConversationLog, 4)

	_, err = svc.HandleMessage(ctx, sess.ID, "u1", "anything else?")
	assert.ErrorIs(t, err, session.ErrInvalidTransition)
}

func TestHandleMessage_Errors(t *testing.T) {
	svc, _ := newService(t, romeExtractor)
	ctx := context.Background()

	sess, err := svc.StartSession(ctx, "u1")
	require.NoError(t, err)

	_, err = svc.HandleMessage(ctx, sess.ID, "u1", "   ")
	var verr *session.ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = svc.HandleMessage(ctx, sess.ID, "intruder", "hello")
	assert.ErrorIs(t, err, session.ErrNotFound)

	_, err = svc.sessions.Deactivate(ctx, sess.ID, "u1")
	require.NoError(t, err)
	_, err = svc.HandleMessage(ctx, sess.ID, "u1", "hello")
	assert.ErrorIs(t, err, session.ErrInvalidTransition)
}

func TestHandleMessage_ExtractorDownKeepsMemory(t *testing.T) {
	svc, _ := newService(t, func(context.Context, session.Memory, string) (*collect.Extraction, error) {
		return nil, errors.New("model unavailable")
	})
	ctx := context.Background()

	sess, err := svc.StartSession(ctx, "u1")
	require.NoError(t, err)

	reply, err := svc.HandleMessage(ctx, sess.ID, "u1", "Rome please")
	require.NoError(t, err)
	assert.Equal(t, collect.OutcomeAwaitInput, reply.Outcome)
	assert.True(t, reply.Session.Memory.IsZero())
	assert.Len(t, reply.Session.ConversationLog, 2)
}

func TestHandleMessage_PatchDuringExtraction(t *testing.T) {
	ctx := context.Background()
	var svc *Service
	var sessID string

	svc, _ = newService(t, func(ctx context.Context, _ session.Memory, _ string) (*collect.Extraction, error) {
		_, err := svc.sessions.Patch(ctx, sessID, "u1", session.Patch{
			Memory: session.Memory{Trip: session.Trip{DepartureDate: ptr("2026-06-10")}},
		})
		require.NoError(t, err)
		return &collect.Extraction{Memory: session.Memory{Trip: session.Trip{
			ReturnDate: ptr("2026-06-01"),
			Budget:     ptr(800.0),
		}}}, nil
	})

	sess, err := svc.StartSession(ctx, "u1")
	require.NoError(t, err)
	sessID = sess.ID

	reply, err := svc.HandleMessage(ctx, sessID, "u1", "back on the first, 800 total")
	require.NoError(t, err)
	assert.NoError(t, reply.Session.Memory.Validate())
	assert.Equal(t, "2026-06-10", *reply.Session.Memory.Trip.DepartureDate)
	assert.Nil(t, reply.Session.Memory.Trip.ReturnDate)
	assert.InDelta(t, 800.0, *reply.Session.Memory.Trip.Budget, 0)

	patched, err := svc.sessions.Patch(ctx, sessID, "u1", session.Patch{
		Memory: session.Memory{Trip: session.Trip{Budget: ptr(900.0)}},
	})
	require.NoError(t, err)
	assert.InDelta(t, 900.0, *patched.Memory.Trip.Budget, 0)
}

func TestHandleMessage_ConcurrentCompletion(t *testing.T) {
	ctx := context.Background()
	complete := session.Memory{
		Trip: session.Trip{
			Destination: ptr("Rome"), DepartureDate: ptr("2026-06-10"), ReturnDate: ptr("2026-06-17"),
			Budget: ptr(2000.0), Adults: ptr(2),
		},
		User: session.Traveler{Description: ptr("food lover")},
	}

	var svc *Service
	var sessID string
	first := true
	svc, _ = newService(t, func(ctx context.Context, _ session.Memory, _ string) (*collect.Extraction, error) {
		if first {
			// A second message completes and advances the session while
			// this extraction is still in flight.
			first = false
			_, err := svc.HandleMessage(ctx, sessID, "u1", "everything at once")
			require.NoError(t, err)
		}
		return &collect.Extraction{Memory: complete}, nil
	})

	sess, err := svc.StartSession(ctx, "u1")
	require.NoError(t, err)
	sessID = sess.ID

	reply, err := svc.HandleMessage(ctx, sessID, "u1", "everything at once")
	require.NoError(t, err)
	assert.Equal(t, collect.OutcomeAdvance, reply.Outcome)
	assert.Equal(t, session.StageOptions, reply.Session.Stage)
	assert.Len(t, reply.Session.ConversationLog, 4)
}

func TestHandleMessage_AdvanceLostToConflictingPatch(t *testing.T) {
	ctx := context.Background()
	var svc *Service
	var sessID string

	svc, _ = newService(t, func(ctx context.Context, _ session.Memory, _ string) (*collect.Extraction, error) {
		_, err := svc.sessions.Patch(ctx, sessID, "u1", session.Patch{
			Memory: session.Memory{Trip: session.Trip{DepartureDate: ptr("2026-06-20")}},
		})
		require.NoError(t, err)
		return &collect.Extraction{Memory: session.Memory{
			Trip: session.Trip{
				Destination: ptr("Rome"), DepartureDate: ptr("2026-06-10"), ReturnDate: ptr("2026-06-17"),
				Budget: ptr(2000.0), Adults: ptr(2),
			},
			User: session.Traveler{Description: ptr("food lover")},
		}}, nil
	})

	sess, err := svc.StartSession(ctx, "u1")
	require.NoError(t, err)
	sessID = sess.ID

	reply, err := svc.HandleMessage(ctx, sessID, "u1", "Rome, 10th to 17th of June")
	require.NoError(t, err)
	assert.Equal(t, collect.OutcomeAwaitInput, reply.Outcome)
	assert.Equal(t, session.StageDiscovery, reply.Session.Stage)
	assert.Equal(t, "2026-06-20", *reply.Session.Memory.Trip.DepartureDate)
	assert.Nil(t, reply.Session.Memory.Trip.ReturnDate)
	assert.Equal(t, "When would you like to come back?", reply.Question)
	assert.Equal(t, reply.Question, reply.Message)
}
