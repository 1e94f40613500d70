package search

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const flightsReply = `{
  "best_flights": [
    {"flights": [
       {"airline": "ITA", "departure_airport": {"id": "LIS", "time": "2026-06-10 07:00"}, "arrival_airport": {"id": "FCO", "time": "2026-06-10 11:00"}}
     ], "price": 180, "total_duration": 180, "departure_token": "tok-1"}
  ],
  "other_flights": [
    {"flights": [
       {"airline": "TAP", "departure_airport": {"id": "LIS", "time": "2026-06-10 09:00"}, "arrival_airport": {"id": "MAD", "time": "2026-06-10 11:00"}},
       {"airline": "Iberia", "departure_airport": {"id": "MAD", "time": "2026-06-10 12:00"}, "arrival_airport": {"id": "FCO", "time": "2026-06-10 14:30"}}
     ], "price": 150, "total_duration": 330},
    {"flights": [], "price": 10},
    {"flights": [{"airline": "A"}], "price": 200},
    {"flights": [{"airline": "B"}], "price": 210},
    {"flights": [{"airline": "C"}], "price": 220},
    {"flights": [{"airline": "D"}], "price": 230}
  ]
}`

func newSerpServer(t *testing.T, body string, check func(url.Values)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			check(r.URL.Query())
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewSerpAPIClient(t *testing.T) {
	_, err := NewSerpAPIClient(SerpAPIConfig{})
	assert.Error(t, err)

	c, err := NewSerpAPIClient(SerpAPIConfig{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, defaultSerpAPIURL, c.cfg.BaseURL)
	assert.Equal(t, defaultMaxResults, c.cfg.MaxResults)
}

func TestSerpAPI_Flights(t *testing.T) {
	srv := newSerpServer(t, flightsReply, func(q url.Values) {
		assert.Equal(t, "google_flights", q.Get("engine"))
		assert.Equal(t, "secret", q.Get("api_key"))
		assert.Equal(t, "LIS", q.Get("departure_id"))
		assert.Equal(t, "FCO", q.Get("arrival_id"))
		assert.Equal(t, "1", q.Get("type"))
		assert.Equal(t, "2026-06-17", q.Get("return_date"))
		assert.Equal(t, "2", q.Get("adults"))
		assert.Equal(t, "EUR", q.Get("currency"))
		assert.Empty(t, q.Get("children"))
	})
	c, err := NewSerpAPIClient(SerpAPIConfig{APIKey: "secret", BaseURL: srv.URL})
	require.NoError(t, err)

	flights, err := c.Flights(context.Background(), FlightQuery{
		DepartureID: "LIS", ArrivalID: "FCO", OutboundDate: "2026-06-10", ReturnDate: "2026-06-17", Adults: 2, Currency: "EUR",
	})
	require.NoError(t, err)
	require.Len(t, flights, 5)

	assert.Equal(t, "ITA", flights[0].Airline)
	assert.Equal(t, 0, flights[0].Stops)
	assert.Equal(t, "tok-1", flights[0].DepartureToken)

	assert.Equal(t, "TAP", flights[1].Airline)
	assert.Equal(t, 1, flights[1].Stops)
	assert.Equal(t, "LIS", flights[1].DepartureAirport)
	assert.Equal(t, "FCO", flights[1].ArrivalAirport)
	assert.Equal(t, "2026-06-10 14:30", flights[1].ArrivalTime)
	assert.Equal(t, "C", flights[4].Airline)
}

func TestSerpAPI_OneWay(t *testing.T) {
	srv := newSerpServer(t, `{"best_flights": []}`, func(q url.Values) {
		assert.Equal(t, "2", q.Get("type"))
		assert.Equal(t, "1", q.Get("children"))
	})
	c, err := NewSerpAPIClient(SerpAPIConfig{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)

	flights, err := c.Flights(context.Background(), FlightQuery{DepartureID: "LIS", ArrivalID: "FCO", OutboundDate: "2026-06-10", Adults: 1, Children: 1})
	require.NoError(t, err)
	assert.Empty(t, flights)
}

func TestSerpAPI_ReturnFlights(t *testing.T) {
	body := `{"best_flights": [
		{"flights": [{"airline": "ITA", "departure_airport": {"id": "FCO", "time": "2026-06-17 18:00"}, "arrival_airport": {"id": "LIS", "time": "2026-06-17 20:00"}}],
		 "price": 360, "total_duration": 180, "booking_token": "book-1"}
	]}`
	srv := newSerpServer(t, body, func(q url.Values) {
		assert.Equal(t, "google_flights", q.Get("engine"))
		assert.Equal(t, "tok-1", q.Get("departure_token"))
		assert.Equal(t, "2026-06-17", q.Get("return_date"))
		assert.Empty(t, q.Get("booking_token"))
	})
	c, err := NewSerpAPIClient(SerpAPIConfig{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)

	flights, err := c.ReturnFlights(context.Background(), ReturnFlightQuery{
		FlightQuery:    FlightQuery{DepartureID: "LIS", ArrivalID: "FCO", OutboundDate: "2026-06-10", ReturnDate: "2026-06-17", Adults: 2},
		DepartureToken: "tok-1",
	})
	require.NoError(t, err)
	require.Len(t, flights, 1)
	assert.Equal(t, "FCO", flights[0].DepartureAirport)
	assert.Equal(t, "book-1", flights[0].BookingToken)
	assert.Empty(t, flights[0].DepartureToken)
}

func TestSerpAPI_BookingOptions(t *testing.T) {
	body := `{
		"search_metadata": {"google_flights_url": "https://www.google.com/travel/flights?tfs=abc"},
		"booking_options": [
			{"together": {"book_with": "ITA Airways", "price": 360, "booking_request": {"url": "https://www.google.com/travel/clk/f"}}},
			{"separate_tickets": true}
		]
	}`
	srv := newSerpServer(t, body, func(q url.Values) {
		assert.Equal(t, "book-1", q.Get("booking_token"))
	})
	c, err := NewSerpAPIClient(SerpAPIConfig{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)

	booking, err := c.BookingOptions(context.Background(), BookingQuery{
		FlightQuery:  FlightQuery{DepartureID: "LIS", ArrivalID: "FCO", OutboundDate: "2026-06-10", ReturnDate: "2026-06-17", Adults: 2},
		BookingToken: "book-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://www.google.com/travel/flights?tfs=abc", booking.URL)
	require.Len(t, booking.Options, 1)
	assert.Equal(t, "ITA Airways", booking.Options[0].Seller)
	assert.InDelta(t, 360.0, booking.Options[0].Price, 0)
	assert.Equal(t, "https://www.google.com/travel/clk/f", booking.Options[0].Link)
}

func TestSerpAPI_BookingOptionsWithoutLink(t *testing.T) {
	srv := newSerpServer(t, `{"booking_options": []}`, nil)
	c, err := NewSerpAPIClient(SerpAPIConfig{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = c.BookingOptions(context.Background(), BookingQuery{BookingToken: "book-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no booking link")
}

func TestSerpAPI_Explore(t *testing.T) {
	body := `{"destinations": [
		{"name": "Rome", "country": "Italy", "flight_price": 210, "start_date": "2026-07-04", "end_date": "2026-07-11", "destination_airport": {"code": "FCO"}},
		{"name": "Madrid", "country": "Spain", "flight_price": 90, "start_date": "2026-07-10", "end_date": "2026-07-17", "destination_airport": {"code": "MAD"}},
		{"name": "Undated", "flight_price": 10}
	]}`
	srv := newSerpServer(t, body, func(q url.Values) {
		assert.Equal(t, "google_travel_explore", q.Get("engine"))
		assert.Equal(t, "LIS", q.Get("departure_id"))
		assert.Equal(t, "7", q.Get("month"))
		assert.Equal(t, "2", q.Get("travel_duration"))
		assert.Empty(t, q.Get("arrival_id"))
	})
	c, err := NewSerpAPIClient(SerpAPIConfig{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)

	destinations, err := c.Explore(context.Background(), ExploreQuery{DepartureID: "LIS", Month: 7, TravelDuration: 2, Adults: 1})
	require.NoError(t, err)
	require.Len(t, destinations, 2)
	assert.Equal(t, "Madrid", destinations[0].Name)
	assert.Equal(t, "MAD", destinations[0].Airport)
	assert.Equal(t, "2026-07-04", destinations[1].StartDate)
}

func TestSerpAPI_Hotels(t *testing.T) {
	body := `{"properties": [
		{"name": "Hotel Roma", "rate_per_night": {"extracted_lowest": 120}, "total_rate": {"extracted_lowest": 840}, "overall_rating": 4.2},
		{"name": "Budget Inn", "rate_per_night": {"extracted_lowest": 60}, "total_rate": {"extracted_lowest": 420}},
		{"name": "No Price"},
		{"name": "Palazzo", "rate_per_night": {"extracted_lowest": 300}, "link": "https://example.com/palazzo"}
	]}`
	srv := newSerpServer(t, body, func(q url.Values) {
		assert.Equal(t, "google_hotels", q.Get("engine"))
		assert.Equal(t, "Rome", q.Get("q"))
		assert.Equal(t, "2026-06-10", q.Get("check_in_date"))
		assert.Equal(t, "3", q.Get("sort_by"))
	})
	c, err := NewSerpAPIClient(SerpAPIConfig{APIKey: "k", BaseURL: srv.URL, MaxResults: 2})
	require.NoError(t, err)

	hotels, err := c.Hotels(context.Background(), HotelQuery{Query: "Rome", CheckIn: "2026-06-10", CheckOut: "2026-06-17", Adults: 2})
	require.NoError(t, err)
	require.Len(t, hotels, 2)
	assert.Equal(t, "Budget Inn", hotels[0].Name)
	assert.Equal(t, "Hotel Roma", hotels[1].Name)
	assert.InDelta(t, 840.0, hotels[1].TotalPrice, 0)
}

func TestSerpAPI_Errors(t *testing.T) {
	t.Run("api error field", func(t *testing.T) {
		srv := newSerpServer(t, `{"error": "Invalid API key."}`, nil)
		c, err := NewSerpAPIClient(SerpAPIConfig{APIKey: "k", BaseURL: srv.URL})
		require.NoError(t, err)

		_, err = c.Hotels(context.Background(), HotelQuery{Query: "Rome"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Invalid API key.")
	})

	t.Run("bad status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer srv.Close()
		c, err := NewSerpAPIClient(SerpAPIConfig{APIKey: "k", BaseURL: srv.URL})
		require.NoError(t, err)

		_, err = c.Flights(context.Background(), FlightQuery{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "serpapi request failed: 429")
	})

	t.Run("malformed body", func(t *testing.T) {
		srv := newSerpServer(t, `<html>`, nil)
		c, err := NewSerpAPIClient(SerpAPIConfig{APIKey: "k", BaseURL: srv.URL})
		require.NoError(t, err)

		_, err = c.Flights(context.Background(), FlightQuery{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parsing serpapi reply")
	})
}

func TestQueryValidate(t *testing.T) {
	valid := FlightQuery{DepartureID: "LIS", ArrivalID: "FCO", OutboundDate: "2026-06-10", ReturnDate: "2026-06-17", Adults: 1}
	assert.NoError(t, valid.Validate())

	bad := valid
	bad.ReturnDate = "2026-06-01"
	assert.Error(t, bad.Validate())

	bad = valid
	bad.Adults = 0
	assert.Error(t, bad.Validate())

	bad = valid
	bad.OutboundDate = "June 10"
	assert.Error(t, bad.Validate())

	hotel := HotelQuery{Query: "Rome", CheckIn: "2026-06-10", CheckOut: "2026-06-17", Adults: 2}
	assert.NoError(t, hotel.Validate())

	hotel.CheckOut = hotel.CheckIn
	assert.Error(t, hotel.Validate())
}

func TestTokenQueryValidate(t *testing.T) {
	outbound := FlightQuery{DepartureID: "LIS", ArrivalID: "FCO", OutboundDate: "2026-06-10", ReturnDate: "2026-06-17", Adults: 1}

	ret := ReturnFlightQuery{FlightQuery: outbound, DepartureToken: "tok-1"}
	assert.NoError(t, ret.Validate())
	ret.DepartureToken = " "
	assert.Error(t, ret.Validate())

	oneWay := outbound
	oneWay.ReturnDate = ""
	assert.Error(t, ReturnFlightQuery{FlightQuery: oneWay, DepartureToken: "tok-1"}.Validate())

	booking := BookingQuery{FlightQuery: outbound, BookingToken: "book-1"}
	assert.NoError(t, booking.Validate())
	booking.BookingToken = ""
	assert.Error(t, booking.Validate())
}

func TestExploreQueryValidate(t *testing.T) {
	tests := []struct {
		name    string
		q       ExploreQuery
		wantErr bool
	}{
		{"minimal", ExploreQuery{DepartureID: "LIS", Adults: 1}, false},
		{"month and duration", ExploreQuery{DepartureID: "LIS", Month: 12, TravelDuration: 3, Adults: 2}, false},
		{"no origin", ExploreQuery{Adults: 1}, true},
		{"month out of range", ExploreQuery{DepartureID: "LIS", Month: 13, Adults: 1}, true},
		{"duration out of range", ExploreQuery{DepartureID: "LIS", TravelDuration: 4, Adults: 1}, true},
		{"no adults", ExploreQuery{DepartureID: "LIS"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.q.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
