package collect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/txn2/trip-planner/pkg/session"
)

const maxReplyBytes = 1 << 20

// HTTPExtractorConfig configures an HTTPExtractor.
type HTTPExtractorConfig struct {
	// Endpoint receives a POST with the current memory and the utterance.
	Endpoint string

	// APIKey is sent as a bearer token when set.
	APIKey string

	// Timeout for the HTTP client. The loop applies its own deadline too.
	Timeout time.Duration
}

// HTTPExtractor delegates extraction to a reasoning service over HTTP.
type HTTPExtractor struct {
	cfg    HTTPExtractorConfig
	client *http.Client
}

// NewHTTPExtractor creates an extractor that calls cfg.Endpoint.
func NewHTTPExtractor(cfg HTTPExtractorConfig) (*HTTPExtractor, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("extractor endpoint is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	return &HTTPExtractor{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type extractRequest struct {
	Memory    session.Memory `json:"memory"`
	Utterance string         `json:"utterance"`
	Missing   []string       `json:"missing"`
}

// extractReply is the flat reply shape. Models routinely return numbers as
// strings and the like, so it is decoded with weak typing.
type extractReply struct {
	Location         *string  `mapstructure:"location"`
	Destination      *string  `mapstructure:"destination"`
	DepartureDate    *string  `mapstructure:"departure_date"`
	ReturnDate       *string  `mapstructure:"return_date"`
	Budget           *float64 `mapstructure:"budget"`
	Adults           *int     `mapstructure:"adults"`
	Children         *int     `mapstructure:"children"`
	Description      *string  `mapstructure:"description"`
	Name             *string  `mapstructure:"name"`
	Age              *int     `mapstructure:"age"`
	UserDescription  *string  `mapstructure:"user_description"`
	FollowUpQuestion string   `mapstructure:"follow_up_question"`
}

// Extract posts the memory and utterance and decodes the reply.
func (e *HTTPExtractor) Extract(ctx context.Context, current session.Memory, utterance string) (*Extraction, error) {
	body, err := json.Marshal(extractRequest{
		Memory:    current,
		Utterance: utterance,
		Missing:   current.Missing(),
	})
	if err != nil {
		return nil, fmt.Errorf("encoding extraction request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating extraction request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling extractor: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("extractor request failed: %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return nil, fmt.Errorf("reading extractor reply: %w", err)
	}
	return decodeReply(raw)
}

func decodeReply(raw []byte) (*Extraction, error) {
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("parsing extractor reply: %w", err)
	}
	for k, v := range payload {
		if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
			delete(payload, k)
		}
	}

	var reply extractReply
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &reply,
	})
	if err != nil {
		return nil, fmt.Errorf("creating reply decoder: %w", err)
	}
	if err := decoder.Decode(payload); err != nil {
		return nil, fmt.Errorf("decoding extractor reply: %w", err)
	}

	return &Extraction{
		Memory: session.Memory{
			Trip: session.Trip{
				Location:      reply.Location,
				Destination:   reply.Destination,
				DepartureDate: reply.DepartureDate,
				ReturnDate:    reply.ReturnDate,
				Budget:        reply.Budget,
				Adults:        reply.Adults,
				Children:      reply.Children,
				Description:   reply.Description,
			},
			User: session.Traveler{
				Name:        reply.Name,
				Age:         reply.Age,
				Description: reply.UserDescription,
			},
		},
		FollowUpQuestion: reply.FollowUpQuestion,
	}, nil
}

// Verify interface compliance.
var _ Extractor = (*HTTPExtractor)(nil)
