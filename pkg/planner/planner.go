// Package planner drives a planning session through its discovery stage by
// feeding user messages to the collection loop.
package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/txn2/trip-planner/pkg/collect"
	"github.com/txn2/trip-planner/pkg/session"
	"github.com/txn2/trip-planner/pkg/user"
)

const (
	maxMessageLen = 4000

	readyMessage = "Thanks, I have everything I need. Let me look for options."
)

// Reply is the result of HandleMessage.
type Reply struct {
	Outcome  collect.Outcome  `json:"outcome"`
	Question string           `json:"question,omitempty"`
	Message  string           `json:"message"`
	Session  *session.Session `json:"session"`
}

// Service ties sessions, profiles and the collection loop together.
type Service struct {
	sessions session.Store
	users    user.Store
	loop     *collect.Loop
	now      func() time.Time
}

// New creates a planner service. users may be nil, in which case sessions
// start with empty memory.
func New(sessions session.Store, users user.Store, loop *collect.Loop) *Service {
	return &Service{
		sessions: sessions,
		users:    users,
		loop:     loop,
		now:      time.Now,
	}
}

// StartSession creates a session for owner, seeding the traveler memory
// from the profile when one exists.
func (s *Service) StartSession(ctx context.Context, owner string) (*session.Session, error) {
	seed, err := s.seed(ctx, owner)
	if err != nil {
		return nil, err
	}
	return s.sessions.Create(ctx, owner, seed)
}

func (s *Service) seed(ctx context.Context, owner string) (session.Memory, error) {
	var m session.Memory
	if s.users == nil {
		return m, nil
	}

	u, err := s.users.GetByID(ctx, owner)
	if errors.Is(err, user.ErrNotFound) {
		return m, nil
	}
	if err != nil {
		return m, fmt.Errorf("loading profile: %w", err)
	}

	m.User.Name = nonEmpty(u.Name)
	m.User.Age = u.Age(s.now())
	m.User.Description = nonEmpty(u.Description)
	m.Trip.Location = nonEmpty(u.Location)
	return m, nil
}

// HandleMessage runs one collection step for a discovery-stage session and
// records both sides of the exchange. A complete memory moves the session
// to the options stage.
func (s *Service) HandleMessage(ctx context.Context, id, owner, utterance string) (*Reply, error) {
	utterance = strings.TrimSpace(utterance)
	if utterance == "" {
		return nil, &session.ValidationError{Field: "content", Reason: "must not be empty"}
	}
	if len(utterance) > maxMessageLen {
		return nil, &session.ValidationError{Field: "content", Reason: "too long"}
	}

	sess, err := s.sessions.Get(ctx, id, owner)
	if err != nil {
		return nil, err
	}
	if !sess.Active {
		return nil, fmt.Errorf("%w: session is closed", session.ErrInvalidTransition)
	}
	if sess.Stage != session.StageDiscovery {
		return nil, fmt.Errorf("%w: messages are only accepted in the %s stage", session.ErrInvalidTransition, session.StageDiscovery)
	}

	res := s.loop.Step(ctx, sess.Memory, utterance)

	message := res.Question
	if res.Outcome == collect.OutcomeAdvance {
		message = readyMessage
	}
	now := s.now().UTC()
	sess, err = s.sessions.RecordTurn(ctx, id, owner, session.TurnUpdate{
		Memory:          res.Updates,
		PendingQuestion: res.Question,
		Turns: []session.Turn{
			{Role: session.RoleUser, Content: utterance, At: now},
			{Role: session.RoleAgent, Content: message, At: now},
		},
		Advance: res.Outcome == collect.OutcomeAdvance,
	})
	if err != nil {
		return nil, err
	}

	outcome, question := res.Outcome, res.Question
	switch {
	case outcome == collect.OutcomeAdvance && sess.Stage == session.StageDiscovery:
		// The stored memory changed underneath the step and is not complete.
		outcome = collect.OutcomeAwaitInput
		question = collect.Question(sess.Memory)
		message = question
	case outcome == collect.OutcomeAdvance:
		slog.Info("session advanced", "session_id", id, "stage", sess.Stage)
	}

	return &Reply{
		Outcome:  outcome,
		Question: question,
		Message:  message,
		Session:  sess,
	}, nil
}

func nonEmpty(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
