package collect

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/txn2/trip-planner/pkg/session"
)

func TestNewHTTPExtractor_RequiresEndpoint(t *testing.T) {
	_, err := NewHTTPExtractor(HTTPExtractorConfig{})
	assert.Error(t, err)
}

func TestHTTPExtractor_Extract(t *testing.T) {
	var got extractRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"destination": "Rome",
			"budget": "2000",
			"adults": 2,
			"children": null,
			"departure_date": "",
			"user_description": "curious foodie",
			"follow_up_question": "When do you want to leave?",
			"unexpected": true
		}`))
	}))
	defer srv.Close()

	ex, err := NewHTTPExtractor(HTTPExtractorConfig{Endpoint: srv.URL, APIKey: "secret"})
	require.NoError(t, err)

	current := session.Memory{Trip: session.Trip{Location: ptr("Lisbon")}}
	ext, err := ex.Extract(context.Background(), current, "Rome with my partner")
	require.NoError(t, err)

	assert.Equal(t, "Rome with my partner", got.Utterance)
	assert.Equal(t, "Lisbon", *got.Memory.Trip.Location)
	assert.Contains(t, got.Missing, "trip.destination")

	require.NotNil(t, ext.Memory.Trip.Destination)
	assert.Equal(t, "Rome", *ext.Memory.Trip.Destination)
	require.NotNil(t, ext.Memory.Trip.Budget)
	assert.InDelta(t, 2000.0, *ext.Memory.Trip.Budget, 0)
	assert.Equal(t, 2, *ext.Memory.Trip.Adults)
	assert.Nil(t, ext.Memory.Trip.Children)
	assert.Nil(t, ext.Memory.Trip.DepartureDate)
	assert.Equal(t, "curious foodie", *ext.Memory.User.Description)
	assert.Equal(t, "When do you want to leave?", ext.FollowUpQuestion)
}

func TestHTTPExtractor_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{name: "bad status", status: http.StatusBadGateway, body: `{}`, wantErr: "extractor request failed: 502"},
		{name: "not json", status: http.StatusOK, body: `Sure! Here is the data`, wantErr: "parsing extractor reply"},
		{name: "wrong type", status: http.StatusOK, body: `{"adults": "two"}`, wantErr: "decoding extractor reply"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			ex, err := NewHTTPExtractor(HTTPExtractorConfig{Endpoint: srv.URL})
			require.NoError(t, err)

			_, err = ex.Extract(context.Background(), session.Memory{}, "hi")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestHTTPExtractor_UnreachableFeedsLoop(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	ex, err := NewHTTPExtractor(HTTPExtractorConfig{Endpoint: url})
	require.NoError(t, err)

	res := NewLoop(ex).Step(context.Background(), session.Memory{}, "hello")
	assert.Equal(t, OutcomeAwaitInput, res.Outcome)
	assert.NotEmpty(t, res.Question)
}
