package collect

import (
	"context"

	"github.com/txn2/trip-planner/pkg/session"
)

// Extraction is what an Extractor pulled out of one utterance. Every field
// is untrusted and is sanitized before it reaches a session.
type Extraction struct {
	Memory           session.Memory
	FollowUpQuestion string
}

// Extractor reads a free-text utterance in the light of what is already
// known and returns any trip or traveler facts it found.
type Extractor interface {
	Extract(ctx context.Context, current session.Memory, utterance string) (*Extraction, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(ctx context.Context, current session.Memory, utterance string) (*Extraction, error)

// Extract calls f.
func (f ExtractorFunc) Extract(ctx context.Context, current session.Memory, utterance string) (*Extraction, error) {
	return f(ctx, current, utterance)
}
