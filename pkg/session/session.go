// Package session manages trip-planning sessions: owner-scoped records that
// accumulate trip and traveler data across many requests, advance through a
// fixed sequence of stages and expire when left idle.
package session

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	defaultWindow   = 7 * 24 * time.Hour
	defaultCurrency = "EUR"
)

// Stage is a step of the planning protocol.
type Stage string

// Stages in protocol order.
const (
	StageDiscovery Stage = "discovery"
	StageOptions   Stage = "options"
	StageItinerary Stage = "itinerary"
	StageBooking   Stage = "booking"
	StageCompleted Stage = "completed"
)

var stageOrder = []Stage{StageDiscovery, StageOptions, StageItinerary, StageBooking, StageCompleted}

// ParseStage converts s to a Stage.
func ParseStage(s string) (Stage, error) {
	st := Stage(strings.ToLower(strings.TrimSpace(s)))
	if st.rank() < 0 {
		return "", invalid("stage", fmt.Sprintf("unknown stage %q", s))
	}
	return st, nil
}

func (s Stage) rank() int {
	return slices.Index(stageOrder, s)
}

// CanAdvanceTo reports whether next lies strictly after s. Skipping
// intermediate stages is allowed; staying or moving back is not.
func (s Stage) CanAdvanceTo(next Stage) bool {
	from, to := s.rank(), next.rank()
	return from >= 0 && to > from
}

// Next returns the stage immediately after s.
func (s Stage) Next() (Stage, bool) {
	r := s.rank()
	if r < 0 || r == len(stageOrder)-1 {
		return "", false
	}
	return stageOrder[r+1], true
}

// Role identifies the author of a conversation turn.
type Role string

// Conversation roles.
const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// Turn is one entry of the conversation log.
type Turn struct {
	Role    Role      `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// Session is a trip-planning session.
type Session struct {
	ID               string    `json:"id"`
	Owner            string    `json:"owner"`
	Stage            Stage     `json:"stage"`
	Memory           Memory    `json:"memory"`
	ConversationLog  []Turn    `json:"conversation_log"`
	PendingQuestion  string    `json:"pending_question,omitempty"`
	Active           bool      `json:"active"`
	Currency         string    `json:"currency"`
	FlightsURL       string    `json:"flights_url,omitempty"`
	AccommodationURL string    `json:"accommodation_url,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
	ExpiresAt        time.Time `json:"expires_at"`
}

// Patch is a partial update. Memory is overlaid field by field; nil
// fields leave the stored value untouched.
type Patch struct {
	Memory           Memory  `json:"memory"`
	Currency         *string `json:"currency,omitempty"`
	FlightsURL       *string `json:"flights_url,omitempty"`
	AccommodationURL *string `json:"accommodation_url,omitempty"`
}

// TurnUpdate is the result of one collection step. Memory only fills
// fields that are still nil.
type TurnUpdate struct {
	Memory          Memory
	PendingQuestion string
	Turns           []Turn

	// Advance moves a discovery session to the options stage in the same
	// mutation, provided the merged memory is complete.
	Advance bool
}

// Store defines the interface for session persistence. Every operation
// taking an id is scoped to owner.
type Store interface {
	// Create starts a new session in the discovery stage with the given
	// initial memory.
	Create(ctx context.Context, owner string, seed Memory) (*Session, error)

	// Get returns the session or ErrNotFound.
	Get(ctx context.Context, id, owner string) (*Session, error)

	// Patch applies p and returns the updated session.
	Patch(ctx context.Context, id, owner string, p Patch) (*Session, error)

	// TransitionStage moves the session to next.
	TransitionStage(ctx context.Context, id, owner string, next Stage) (*Session, error)

	// RecordTurn stores the outcome of a collection step.
	RecordTurn(ctx context.Context, id, owner string, u TurnUpdate) (*Session, error)

	// Deactivate marks the session closed.
	Deactivate(ctx context.Context, id, owner string) (*Session, error)

	// Delete removes the session. Missing or foreign sessions are not an error.
	Delete(ctx context.Context, id, owner string) error

	// ListIDs returns the ids of the owner's live sessions, oldest first.
	ListIDs(ctx context.Context, owner string) ([]string, error)

	// Sweep removes sessions that expired before now.
	Sweep(ctx context.Context, now time.Time) (int64, error)
}

// Config configures session stores.
type Config struct {
	// Window is how long a session lives after its last mutation.
	Window time.Duration

	// DefaultCurrency is assigned to new sessions.
	DefaultCurrency string

	// Now overrides the time source.
	Now func() time.Time
}

// WithDefaults returns c with zero values replaced by defaults.
func (c Config) WithDefaults() Config {
	if c.Window == 0 {
		c.Window = defaultWindow
	}
	if c.DefaultCurrency == "" {
		c.DefaultCurrency = defaultCurrency
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// New builds a fresh session for owner.
func New(owner string, seed Memory, cfg Config) (*Session, error) {
	if strings.TrimSpace(owner) == "" {
		return nil, fmt.Errorf("session owner is required")
	}
	seed, _ = seed.Sanitize()
	now := cfg.Now().UTC()
	return &Session{
		ID:              ulid.Make().String(),
		Owner:           owner,
		Stage:           StageDiscovery,
		Memory:          seed,
		ConversationLog: []Turn{},
		Active:          true,
		Currency:        cfg.DefaultCurrency,
		CreatedAt:       now,
		UpdatedAt:       now,
		ExpiresAt:       now.Add(cfg.Window),
	}, nil
}

// VisibleTo reports whether owner may see the session at now.
func (s *Session) VisibleTo(owner string, now time.Time) bool {
	return s.Owner == owner && now.Before(s.ExpiresAt)
}

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// ApplyPatch validates p and applies it.
func (s *Session) ApplyPatch(p Patch, now time.Time, window time.Duration) error {
	if err := p.Memory.Validate(); err != nil {
		return err
	}
	if p.Currency != nil && !currencyPattern.MatchString(*p.Currency) {
		return invalid("currency", "must be an ISO 4217 code")
	}
	if p.FlightsURL != nil && !validLink(*p.FlightsURL) {
		return invalid("flights_url", "must be an http or https URL")
	}
	if p.AccommodationURL != nil && !validLink(*p.AccommodationURL) {
		return invalid("accommodation_url", "must be an http or https URL")
	}

	merged := s.Memory.Clone()
	merged.Overlay(p.Memory)
	if err := merged.Validate(); err != nil {
		return err
	}

	s.Memory = merged
	if p.Currency != nil {
		s.Currency = *p.Currency
	}
	if p.FlightsURL != nil {
		s.FlightsURL = *p.FlightsURL
	}
	if p.AccommodationURL != nil {
		s.AccommodationURL = *p.AccommodationURL
	}
	s.touch(now, window)
	return nil
}

// Advance moves the session to next if that is a forward move.
func (s *Session) Advance(next Stage, now time.Time, window time.Duration) error {
	if !s.Stage.CanAdvanceTo(next) {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, s.Stage, next)
	}
	s.Stage = next
	s.touch(now, window)
	return nil
}

// ApplyTurn records a collection step against the current memory, which
// may have changed since the step read it. Extracted dates that conflict
// with the current ones are dropped.
func (s *Session) ApplyTurn(u TurnUpdate, now time.Time, window time.Duration) {
	clean, _ := u.Memory.Sanitize()
	s.Memory.FillMissingOrdered(clean)
	s.PendingQuestion = u.PendingQuestion
	s.ConversationLog = append(s.ConversationLog, u.Turns...)
	if u.Advance && s.Stage == StageDiscovery && s.Memory.Complete() {
		s.Stage = StageOptions
		s.PendingQuestion = ""
	}
	s.touch(now, window)
}

// Deactivate marks the session closed.
func (s *Session) Deactivate(now time.Time, window time.Duration) {
	s.Active = false
	s.touch(now, window)
}

// Clone returns a deep copy of s.
func (s *Session) Clone() *Session {
	c := *s
	c.Memory = s.Memory.Clone()
	c.ConversationLog = slices.Clone(s.ConversationLog)
	if c.ConversationLog == nil {
		c.ConversationLog = []Turn{}
	}
	return &c
}

// validLink accepts an empty string (clears the link) or an absolute
// http(s) URL.
func validLink(s string) bool {
	if s == "" {
		return true
	}
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// touch refreshes the sliding expiry.
func (s *Session) touch(now time.Time, window time.Duration) {
	now = now.UTC()
	s.UpdatedAt = now
	s.ExpiresAt = now.Add(window)
}
