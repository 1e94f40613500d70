// Package search finds flights and hotels for a completed trip brief.
package search

import (
	"context"
	"strings"

	"github.com/txn2/trip-planner/pkg/session"
)

// FlightQuery describes a round trip.
type FlightQuery struct {
	DepartureID  string `json:"departure_id"`
	ArrivalID    string `json:"arrival_id"`
	OutboundDate string `json:"outbound_date"`
	ReturnDate   string `json:"return_date,omitempty"`
	Adults       int    `json:"adults"`
	Children     int    `json:"children,omitempty"`
	Currency     string `json:"currency,omitempty"`
	MaxPrice     int    `json:"max_price,omitempty"`
}

// HotelQuery describes a stay.
type HotelQuery struct {
	Query    string `json:"query"`
	CheckIn  string `json:"check_in"`
	CheckOut string `json:"check_out"`
	Adults   int    `json:"adults"`
	Children int    `json:"children,omitempty"`
	Currency string `json:"currency,omitempty"`
}

// ReturnFlightQuery selects the return legs that pair with one outbound
// option. The outbound query is repeated because the provider scopes the
// departure token to it.
type ReturnFlightQuery struct {
	FlightQuery
	DepartureToken string `json:"departure_token"`
}

// BookingQuery asks where a chosen round trip can be booked.
type BookingQuery struct {
	FlightQuery
	BookingToken string `json:"booking_token"`
}

// ExploreQuery looks for destinations and dates from an origin when the
// traveler has not settled on either.
type ExploreQuery struct {
	DepartureID string `json:"departure_id"`
	ArrivalID   string `json:"arrival_id,omitempty"`
	// Month is 1-12, or 0 for the next six months.
	Month int `json:"month,omitempty"`
	// TravelDuration is 1 for a weekend, 2 for one week, 3 for two weeks.
	TravelDuration int    `json:"travel_duration,omitempty"`
	Adults         int    `json:"adults"`
	Currency       string `json:"currency,omitempty"`
}

// Flight is one itinerary option.
type Flight struct {
	Airline          string  `json:"airline"`
	Price            float64 `json:"price"`
	DurationMinutes  int     `json:"duration_minutes"`
	Stops            int     `json:"stops"`
	DepartureAirport string  `json:"departure_airport"`
	DepartureTime    string  `json:"departure_time"`
	ArrivalAirport   string  `json:"arrival_airport"`
	ArrivalTime      string  `json:"arrival_time"`
	DepartureToken   string  `json:"departure_token,omitempty"`
	BookingToken     string  `json:"booking_token,omitempty"`
}

// Hotel is one accommodation option.
type Hotel struct {
	Name          string  `json:"name"`
	PricePerNight float64 `json:"price_per_night"`
	TotalPrice    float64 `json:"total_price"`
	Rating        float64 `json:"rating,omitempty"`
	Link          string  `json:"link,omitempty"`
}

// BookingOption is one seller offering a round trip.
type BookingOption struct {
	Seller string  `json:"seller"`
	Price  float64 `json:"price"`
	Link   string  `json:"link,omitempty"`
}

// Booking is where a round trip can be bought.
type Booking struct {
	URL     string          `json:"url"`
	Options []BookingOption `json:"options"`
}

// Destination is one explore suggestion.
type Destination struct {
	Name      string  `json:"name"`
	Country   string  `json:"country,omitempty"`
	Airport   string  `json:"airport,omitempty"`
	Price     float64 `json:"price"`
	StartDate string  `json:"start_date"`
	EndDate   string  `json:"end_date"`
}

// Provider searches an external travel inventory.
//
// A round trip is chosen in two steps: Flights returns outbound options
// carrying a departure token, and ReturnFlights turns one of those tokens
// into return options carrying a booking token for BookingOptions.
type Provider interface {
	Flights(ctx context.Context, q FlightQuery) ([]Flight, error)
	ReturnFlights(ctx context.Context, q ReturnFlightQuery) ([]Flight, error)
	BookingOptions(ctx context.Context, q BookingQuery) (*Booking, error)
	Hotels(ctx context.Context, q HotelQuery) ([]Hotel, error)
	Explore(ctx context.Context, q ExploreQuery) ([]Destination, error)
}

// Validate checks the required flight fields.
func (q FlightQuery) Validate() error {
	if strings.TrimSpace(q.DepartureID) == "" || strings.TrimSpace(q.ArrivalID) == "" {
		return &session.ValidationError{Field: "departure_id", Reason: "departure and arrival are required"}
	}
	if err := checkDate("outbound_date", q.OutboundDate); err != nil {
		return err
	}
	if q.ReturnDate != "" {
		if err := checkDate("return_date", q.ReturnDate); err != nil {
			return err
		}
		if q.ReturnDate < q.OutboundDate {
			return &session.ValidationError{Field: "return_date", Reason: "must not be before outbound_date"}
		}
	}
	if q.Adults < 1 {
		return &session.ValidationError{Field: "adults", Reason: "at least one adult is required"}
	}
	return nil
}

// Validate checks the outbound query and the token.
func (q ReturnFlightQuery) Validate() error {
	if err := q.FlightQuery.Validate(); err != nil {
		return err
	}
	if q.ReturnDate == "" {
		return &session.ValidationError{Field: "return_date", Reason: "required for a round trip"}
	}
	if strings.TrimSpace(q.DepartureToken) == "" {
		return &session.ValidationError{Field: "departure_token", Reason: "must not be empty"}
	}
	return nil
}

// Validate checks the round trip query and the token.
func (q BookingQuery) Validate() error {
	if err := q.FlightQuery.Validate(); err != nil {
		return err
	}
	if q.ReturnDate == "" {
		return &session.ValidationError{Field: "return_date", Reason: "required for a round trip"}
	}
	if strings.TrimSpace(q.BookingToken) == "" {
		return &session.ValidationError{Field: "booking_token", Reason: "must not be empty"}
	}
	return nil
}

// Validate checks the explore fields.
func (q ExploreQuery) Validate() error {
	if strings.TrimSpace(q.DepartureID) == "" {
		return &session.ValidationError{Field: "departure_id", Reason: "must not be empty"}
	}
	if q.Month < 0 || q.Month > 12 {
		return &session.ValidationError{Field: "month", Reason: "must be between 1 and 12"}
	}
	if q.TravelDuration < 0 || q.TravelDuration > 3 {
		return &session.ValidationError{Field: "travel_duration", Reason: "must be 1, 2 or 3"}
	}
	if q.Adults < 1 {
		return &session.ValidationError{Field: "adults", Reason: "at least one adult is required"}
	}
	return nil
}

// Validate checks the required hotel fields.
func (q HotelQuery) Validate() error {
	if strings.TrimSpace(q.Query) == "" {
		return &session.ValidationError{Field: "query", Reason: "must not be empty"}
	}
	if err := checkDate("check_in", q.CheckIn); err != nil {
		return err
	}
	if err := checkDate("check_out", q.CheckOut); err != nil {
		return err
	}
	if q.CheckOut <= q.CheckIn {
		return &session.ValidationError{Field: "check_out", Reason: "must be after check_in"}
	}
	if q.Adults < 1 {
		return &session.ValidationError{Field: "adults", Reason: "at least one adult is required"}
	}
	return nil
}

func checkDate(field, v string) error {
	if !session.ValidDate(v) {
		return &session.ValidationError{Field: field, Reason: "must be a date in YYYY-MM-DD format"}
	}
	return nil
}
