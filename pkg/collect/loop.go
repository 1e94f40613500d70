// Package collect runs the information-collection loop: each user utterance
// is handed to an Extractor, the untrusted result is sanitized and merged
// into the session memory, and the loop either advances or asks for more.
package collect

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/txn2/trip-planner/pkg/metrics"
	"github.com/txn2/trip-planner/pkg/session"
)

const defaultTimeout = 20 * time.Second

// Outcome is the result of one collection step.
type Outcome string

// Collection outcomes.
const (
	OutcomeAdvance    Outcome = "advance"
	OutcomeAwaitInput Outcome = "await_input"
)

// Outcome labels for failed steps; these still report OutcomeAwaitInput.
const (
	failedLabel  = "failed"
	timeoutLabel = "timeout"
)

// prompts maps required fields to the question asked when the extractor
// offers none.
var prompts = map[string]string{
	"trip.destination":    "Where would you like to go?",
	"trip.departure_date": "When would you like to leave?",
	"trip.return_date":    "When would you like to come back?",
	"trip.budget":         "What is your budget for the trip?",
	"trip.adults":         "How many adults are travelling?",
	"user.description":    "Tell me a little about yourself and what you enjoy when you travel.",
}

const genericPrompt = "Could you tell me more about the trip you have in mind?"

// Result is the outcome of Step.
type Result struct {
	Outcome Outcome
	// Updates holds only the fields this step filled.
	Updates session.Memory
	// Memory is the merged memory after the step.
	Memory session.Memory
	// Question is the follow-up to show the user. Empty on OutcomeAdvance.
	Question string
	// Dropped lists extracted fields rejected during sanitization.
	Dropped []string
}

// Option configures a Loop.
type Option func(*Loop)

// WithTimeout bounds each call to the extractor.
func WithTimeout(d time.Duration) Option {
	return func(l *Loop) {
		if d > 0 {
			l.timeout = d
		}
	}
}

// WithMetrics records step outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Loop) {
		l.metrics = m
	}
}

// Loop runs collection steps.
type Loop struct {
	extractor Extractor
	timeout   time.Duration
	metrics   *metrics.Metrics
}

// NewLoop creates a loop around extractor.
func NewLoop(extractor Extractor, opts ...Option) *Loop {
	l := &Loop{extractor: extractor, timeout: defaultTimeout}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Step processes one utterance against current. It never returns an error:
// extractor failures leave the memory untouched and ask again.
func (l *Loop) Step(ctx context.Context, current session.Memory, utterance string) Result {
	start := time.Now()
	current = current.Clone()

	ext, err := l.extract(ctx, current, utterance)
	if err != nil {
		label := failedLabel
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			label = timeoutLabel
		}
		slog.Warn("extraction failed", "error", err, "outcome", label)
		l.metrics.ObserveCollect(label, time.Since(start))
		return Result{
			Outcome:  OutcomeAwaitInput,
			Memory:   current,
			Question: nextQuestion(current, ""),
		}
	}

	clean, dropped := ext.Memory.Sanitize()
	if len(dropped) > 0 {
		slog.Debug("dropped extracted fields", "fields", dropped)
	}

	merged := current.Clone()
	dropped = append(dropped, merged.FillMissingOrdered(clean)...)

	res := Result{
		Updates: merged.Added(current),
		Memory:  merged,
		Dropped: dropped,
	}
	if merged.Complete() {
		res.Outcome = OutcomeAdvance
	} else {
		res.Outcome = OutcomeAwaitInput
		res.Question = nextQuestion(merged, ext.FollowUpQuestion)
	}

	l.metrics.ObserveCollect(string(res.Outcome), time.Since(start))
	return res
}

func (l *Loop) extract(ctx context.Context, current session.Memory, utterance string) (*Extraction, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	ext, err := l.extractor.Extract(ctx, current, utterance)
	if err != nil {
		return nil, err
	}
	if ext == nil {
		return &Extraction{}, nil
	}
	return ext, nil
}

// Question returns the prompt for the first required field m is missing.
func Question(m session.Memory) string {
	return nextQuestion(m, "")
}

// nextQuestion prefers the extractor's follow-up and otherwise asks for the
// first missing field.
func nextQuestion(m session.Memory, followUp string) string {
	if q := strings.TrimSpace(followUp); q != "" {
		return q
	}
	if missing := m.Missing(); len(missing) > 0 {
		if q, ok := prompts[missing[0]]; ok {
			return q
		}
	}
	return genericPrompt
}
