package api

import (
	"log/slog"
	"net/http"

	httpauth "github.com/txn2/trip-planner/pkg/http"
	"github.com/txn2/trip-planner/pkg/search"
)

type flightsResponse struct {
	Flights []search.Flight `json:"flights"`
}

type hotelsResponse struct {
	Hotels []search.Hotel `json:"hotels"`
}

type exploreResponse struct {
	Destinations []search.Destination `json:"destinations"`
}

// SearchFlights handles POST /api/v1/search/flights.
//
// @Summary      Search flights
// @Tags         Search
// @Accept       json
// @Produce      json
// @Param        body  body      search.FlightQuery  true  "Flight query"
// @Success      200   {object}  flightsResponse
// @Failure      400   {object}  httpauth.ErrorResponse
// @Failure      502   {object}  httpauth.ErrorResponse
// @Failure      503   {object}  httpauth.ErrorResponse
// @Security     BearerAuth
// @Router       /search/flights [post]
func (h *Handler) SearchFlights(w http.ResponseWriter, r *http.Request) {
	if h.deps.Search == nil {
		httpauth.WriteError(w, http.StatusServiceUnavailable, "search is not configured")
		return
	}
	var q search.FlightQuery
	if err := decodeJSON(w, r, &q); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := q.Validate(); err != nil {
		writeServiceError(w, r, err)
		return
	}
	flights, err := h.deps.Search.Flights(r.Context(), q)
	if err != nil {
		slog.Warn("flight search failed", "error", err)
		httpauth.WriteError(w, http.StatusBadGateway, "flight search failed")
		return
	}
	httpauth.WriteJSON(w, http.StatusOK, flightsResponse{Flights: flights})
}

// SearchHotels handles POST /api/v1/search/hotels.
//
// @Summary      Search hotels
// @Tags         Search
// @Accept       json
// @Produce      json
// @Param        body  body      search.HotelQuery  true  "Hotel query"
// @Success      200   {object}  hotelsResponse
// @Failure      400   {object}  httpauth.ErrorResponse
// @Failure      502   {object}  httpauth.ErrorResponse
// @Failure      503   {object}  httpauth.ErrorResponse
// @Security     BearerAuth
// @Router       /search/hotels [post]
func (h *Handler) SearchHotels(w http.ResponseWriter, r *http.Request) {
	if h.deps.Search == nil {
		httpauth.WriteError(w, http.StatusServiceUnavailable, "search is not configured")
		return
	}
	var q search.HotelQuery
	if err := decodeJSON(w, r, &q); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := q.Validate(); err != nil {
		writeServiceError(w, r, err)
		return
	}
	hotels, err := h.deps.Search.Hotels(r.Context(), q)
	if err != nil {
		slog.Warn("hotel search failed", "error", err)
		httpauth.WriteError(w, http.StatusBadGateway, "hotel search failed")
		return
	}
	httpauth.WriteJSON(w, http.StatusOK, hotelsResponse{Hotels: hotels})
}

// SearchReturnFlights handles POST /api/v1/search/flights/return.
//
// @Summary      Search return flights for a chosen outbound option
// @Tags         Search
// @Accept       json
// @Produce      json
// @Param        body  body      search.ReturnFlightQuery  true  "Outbound query and departure token"
// @Success      200   {object}  flightsResponse
// @Failure      400   {object}  httpauth.ErrorResponse
// @Failure      502   {object}  httpauth.ErrorResponse
// @Failure      503   {object}  httpauth.ErrorResponse
// @Security     BearerAuth
// @Router       /search/flights/return [post]
func (h *Handler) SearchReturnFlights(w http.ResponseWriter, r *http.Request) {
	if h.deps.Search == nil {
		httpauth.WriteError(w, http.StatusServiceUnavailable, "search is not configured")
		return
	}
	var q search.ReturnFlightQuery
	if err := decodeJSON(w, r, &q); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := q.Validate(); err != nil {
		writeServiceError(w, r, err)
		return
	}
	flights, err := h.deps.Search.ReturnFlights(r.Context(), q)
	if err != nil {
		slog.Warn("return flight search failed", "error", err)
		httpauth.WriteError(w, http.StatusBadGateway, "return flight search failed")
		return
	}
	httpauth.WriteJSON(w, http.StatusOK, flightsResponse{Flights: flights})
}

// BookFlight handles POST /api/v1/search/flights/booking.
//
// @Summary      Booking options for a chosen round trip
// @Tags         Search
// @Accept       json
// @Produce      json
// @Param        body  body      search.BookingQuery  true  "Round trip query and booking token"
// @Success      200   {object}  search.Booking
// @Failure      400   {object}  httpauth.ErrorResponse
// @Failure      502   {object}  httpauth.ErrorResponse
// @Failure      503   {object}  httpauth.ErrorResponse
// @Security     BearerAuth
// @Router       /search/flights/booking [post]
func (h *Handler) BookFlight(w http.ResponseWriter, r *http.Request) {
	if h.deps.Search == nil {
		httpauth.WriteError(w, http.StatusServiceUnavailable, "search is not configured")
		return
	}
	var q search.BookingQuery
	if err := decodeJSON(w, r, &q); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := q.Validate(); err != nil {
		writeServiceError(w, r, err)
		return
	}
	booking, err := h.deps.Search.BookingOptions(r.Context(), q)
	if err != nil {
		slog.Warn("booking lookup failed", "error", err)
		httpauth.WriteError(w, http.StatusBadGateway, "booking lookup failed")
		return
	}
	httpauth.WriteJSON(w, http.StatusOK, booking)
}

// ExploreDestinations handles POST /api/v1/search/explore.
//
// @Summary      Suggest destinations and dates
// @Tags         Search
// @Accept       json
// @Produce      json
// @Param        body  body      search.ExploreQuery  true  "Explore query"
// @Success      200   {object}  exploreResponse
// @Failure      400   {object}  httpauth.ErrorResponse
// @Failure      404   {object}  httpauth.ErrorResponse
// @Failure      502   {object}  httpauth.ErrorResponse
// @Failure      503   {object}  httpauth.ErrorResponse
// @Security     BearerAuth
// @Router       /search/explore [post]
func (h *Handler) ExploreDestinations(w http.ResponseWriter, r *http.Request) {
	if h.deps.Search == nil {
		httpauth.WriteError(w, http.StatusServiceUnavailable, "search is not configured")
		return
	}
	var q search.ExploreQuery
	if err := decodeJSON(w, r, &q); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := q.Validate(); err != nil {
		writeServiceError(w, r, err)
		return
	}
	destinations, err := h.deps.Search.Explore(r.Context(), q)
	if err != nil {
		slog.Warn("explore search failed", "error", err)
		httpauth.WriteError(w, http.StatusBadGateway, "explore search failed")
		return
	}
	if len(destinations) == 0 {
		httpauth.WriteError(w, http.StatusNotFound, "no destinations found")
		return
	}
	httpauth.WriteJSON(w, http.StatusOK, exploreResponse{Destinations: destinations})
}
