package search

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"time"
)

const (
	defaultSerpAPIURL = "https://serpapi.com/search.json"
	defaultMaxResults = 5
	defaultTimeout    = 15 * time.Second

	// SerpApi sort_by values for lowest price first.
	flightSortByPrice = "2"
	hotelSortByPrice  = "3"
)

// SerpAPIConfig configures the SerpApi client.
type SerpAPIConfig struct {
	APIKey     string
	BaseURL    string
	MaxResults int
	Timeout    time.Duration
	Language   string
	Country    string
}

// SerpAPIClient implements Provider using the SerpApi Google Flights,
// Google Hotels and Google Travel Explore engines.
type SerpAPIClient struct {
	cfg    SerpAPIConfig
	client *http.Client
}

// NewSerpAPIClient creates a SerpApi client.
func NewSerpAPIClient(cfg SerpAPIConfig) (*SerpAPIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("serpapi api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultSerpAPIURL
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = defaultMaxResults
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	return &SerpAPIClient{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}, nil
}

type serpAirport struct {
	ID   string `json:"id"`
	Time string `json:"time"`
}

type serpLeg struct {
	Airline          string      `json:"airline"`
	DepartureAirport serpAirport `json:"departure_airport"`
	ArrivalAirport   serpAirport `json:"arrival_airport"`
}

type serpFlightOption struct {
	Flights        []serpLeg `json:"flights"`
	Price          float64   `json:"price"`
	TotalDuration  int       `json:"total_duration"`
	DepartureToken string    `json:"departure_token"`
	BookingToken   string    `json:"booking_token"`
}

type serpFlightsReply struct {
	Error        string             `json:"error"`
	BestFlights  []serpFlightOption `json:"best_flights"`
	OtherFlights []serpFlightOption `json:"other_flights"`
}

type serpBookingOffer struct {
	BookWith       string  `json:"book_with"`
	Price          float64 `json:"price"`
	BookingRequest struct {
		URL string `json:"url"`
	} `json:"booking_request"`
}

type serpBookingReply struct {
	Error          string `json:"error"`
	SearchMetadata struct {
		GoogleFlightsURL string `json:"google_flights_url"`
	} `json:"search_metadata"`
	BookingOptions []struct {
		Together serpBookingOffer `json:"together"`
	} `json:"booking_options"`
}

type serpDestination struct {
	Name               string  `json:"name"`
	Country            string  `json:"country"`
	FlightPrice        float64 `json:"flight_price"`
	StartDate          string  `json:"start_date"`
	EndDate            string  `json:"end_date"`
	DestinationAirport struct {
		Code string `json:"code"`
	} `json:"destination_airport"`
}

type serpExploreReply struct {
	Error        string            `json:"error"`
	Destinations []serpDestination `json:"destinations"`
}

type serpRate struct {
	ExtractedLowest float64 `json:"extracted_lowest"`
}

type serpProperty struct {
	Name          string   `json:"name"`
	Link          string   `json:"link"`
	RatePerNight  serpRate `json:"rate_per_night"`
	TotalRate     serpRate `json:"total_rate"`
	OverallRating float64  `json:"overall_rating"`
}

type serpHotelsReply struct {
	Error      string         `json:"error"`
	Properties []serpProperty `json:"properties"`
}

// Flights returns the cheapest outbound options, best matches first.
func (c *SerpAPIClient) Flights(ctx context.Context, q FlightQuery) ([]Flight, error) {
	return c.flights(ctx, c.flightParams(q))
}

// ReturnFlights returns the return options for the outbound option that
// issued q.DepartureToken.
func (c *SerpAPIClient) ReturnFlights(ctx context.Context, q ReturnFlightQuery) ([]Flight, error) {
	params := c.flightParams(q.FlightQuery)
	params.Set("departure_token", q.DepartureToken)
	return c.flights(ctx, params)
}

// BookingOptions returns the sellers of the round trip behind
// q.BookingToken and the Google Flights page listing them.
func (c *SerpAPIClient) BookingOptions(ctx context.Context, q BookingQuery) (*Booking, error) {
	params := c.flightParams(q.FlightQuery)
	params.Set("booking_token", q.BookingToken)

	var reply serpBookingReply
	if err := c.get(ctx, params, &reply); err != nil {
		return nil, err
	}
	if reply.Error != "" {
		return nil, fmt.Errorf("serpapi booking: %s", reply.Error)
	}
	if reply.SearchMetadata.GoogleFlightsURL == "" {
		return nil, fmt.Errorf("serpapi booking: reply has no booking link")
	}

	booking := &Booking{URL: reply.SearchMetadata.GoogleFlightsURL, Options: []BookingOption{}}
	for _, opt := range reply.BookingOptions {
		if opt.Together.BookWith == "" {
			continue
		}
		booking.Options = append(booking.Options, BookingOption{
			Seller: opt.Together.BookWith,
			Price:  opt.Together.Price,
			Link:   opt.Together.BookingRequest.URL,
		})
	}
	return booking, nil
}

// Explore returns the cheapest destinations reachable from q.DepartureID.
func (c *SerpAPIClient) Explore(ctx context.Context, q ExploreQuery) ([]Destination, error) {
	params := c.baseParams("google_travel_explore", q.Currency)
	params.Set("departure_id", q.DepartureID)
	params.Set("adults", strconv.Itoa(q.Adults))
	if q.ArrivalID != "" {
		params.Set("arrival_id", q.ArrivalID)
	}
	if q.Month > 0 {
		params.Set("month", strconv.Itoa(q.Month))
	}
	if q.TravelDuration > 0 {
		params.Set("travel_duration", strconv.Itoa(q.TravelDuration))
	}

	var reply serpExploreReply
	if err := c.get(ctx, params, &reply); err != nil {
		return nil, err
	}
	if reply.Error != "" {
		return nil, fmt.Errorf("serpapi explore: %s", reply.Error)
	}

	destinations := make([]Destination, 0, len(reply.Destinations))
	for _, d := range reply.Destinations {
		if d.StartDate == "" || d.EndDate == "" {
			continue
		}
		destinations = append(destinations, Destination{
			Name:      d.Name,
			Country:   d.Country,
			Airport:   d.DestinationAirport.Code,
			Price:     d.FlightPrice,
			StartDate: d.StartDate,
			EndDate:   d.EndDate,
		})
	}
	slices.SortStableFunc(destinations, func(a, b Destination) int {
		return cmp.Compare(a.Price, b.Price)
	})
	if len(destinations) > c.cfg.MaxResults {
		destinations = destinations[:c.cfg.MaxResults]
	}
	return destinations, nil
}

func (c *SerpAPIClient) flightParams(q FlightQuery) url.Values {
	params := c.baseParams("google_flights", q.Currency)
	params.Set("departure_id", q.DepartureID)
	params.Set("arrival_id", q.ArrivalID)
	params.Set("outbound_date", q.OutboundDate)
	params.Set("adults", strconv.Itoa(q.Adults))
	params.Set("sort_by", flightSortByPrice)
	if q.ReturnDate != "" {
		params.Set("type", "1")
		params.Set("return_date", q.ReturnDate)
	} else {
		params.Set("type", "2")
	}
	if q.Children > 0 {
		params.Set("children", strconv.Itoa(q.Children))
	}
	if q.MaxPrice > 0 {
		params.Set("max_price", strconv.Itoa(q.MaxPrice))
	}
	return params
}

func (c *SerpAPIClient) flights(ctx context.Context, params url.Values) ([]Flight, error) {
	var reply serpFlightsReply
	if err := c.get(ctx, params, &reply); err != nil {
		return nil, err
	}
	if reply.Error != "" {
		return nil, fmt.Errorf("serpapi flights: %s", reply.Error)
	}

	options := slices.Concat(reply.BestFlights, reply.OtherFlights)
	flights := make([]Flight, 0, min(len(options), c.cfg.MaxResults))
	for _, opt := range options {
		if len(opt.Flights) == 0 {
			continue
		}
		first, last := opt.Flights[0], opt.Flights[len(opt.Flights)-1]
		flights = append(flights, Flight{
			Airline:          first.Airline,
			Price:            opt.Price,
			DurationMinutes:  opt.TotalDuration,
			Stops:            len(opt.Flights) - 1,
			DepartureAirport: first.DepartureAirport.ID,
			DepartureTime:    first.DepartureAirport.Time,
			ArrivalAirport:   last.ArrivalAirport.ID,
			ArrivalTime:      last.ArrivalAirport.Time,
			DepartureToken:   opt.DepartureToken,
			BookingToken:     opt.BookingToken,
		})
		if len(flights) == c.cfg.MaxResults {
			break
		}
	}
	return flights, nil
}

// Hotels returns the cheapest properties by nightly rate.
func (c *SerpAPIClient) Hotels(ctx context.Context, q HotelQuery) ([]Hotel, error) {
	params := c.baseParams("google_hotels", q.Currency)
	params.Set("q", q.Query)
	params.Set("check_in_date", q.CheckIn)
	params.Set("check_out_date", q.CheckOut)
	params.Set("adults", strconv.Itoa(q.Adults))
	params.Set("sort_by", hotelSortByPrice)
	if q.Children > 0 {
		params.Set("children", strconv.Itoa(q.Children))
	}

	var reply serpHotelsReply
	if err := c.get(ctx, params, &reply); err != nil {
		return nil, err
	}
	if reply.Error != "" {
		return nil, fmt.Errorf("serpapi hotels: %s", reply.Error)
	}

	hotels := make([]Hotel, 0, len(reply.Properties))
	for _, p := range reply.Properties {
		if p.RatePerNight.ExtractedLowest <= 0 {
			continue
		}
		hotels = append(hotels, Hotel{
			Name:          p.Name,
			PricePerNight: p.RatePerNight.ExtractedLowest,
			TotalPrice:    p.TotalRate.ExtractedLowest,
			Rating:        p.OverallRating,
			Link:          p.Link,
		})
	}
	slices.SortStableFunc(hotels, func(a, b Hotel) int {
		return cmp.Compare(a.PricePerNight, b.PricePerNight)
	})
	if len(hotels) > c.cfg.MaxResults {
		hotels = hotels[:c.cfg.MaxResults]
	}
	return hotels, nil
}

func (c *SerpAPIClient) baseParams(engine, currency string) url.Values {
	params := url.Values{}
	params.Set("engine", engine)
	params.Set("api_key", c.cfg.APIKey)
	params.Set("hl", c.cfg.Language)
	if c.cfg.Country != "" {
		params.Set("gl", c.cfg.Country)
	}
	if currency != "" {
		params.Set("currency", currency)
	}
	return params
}

func (c *SerpAPIClient) get(ctx context.Context, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("creating search request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling serpapi: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("serpapi request failed: %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("parsing serpapi reply: %w", err)
	}
	return nil
}

// Verify interface compliance.
var _ Provider = (*SerpAPIClient)(nil)
