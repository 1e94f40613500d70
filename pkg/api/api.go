// Package api exposes the trip planner over a JSON HTTP API.
//
// @title        Trip Planner API
// @version      1.0
// @description  Accounts, credential rotation and resumable trip-planning sessions.
// @BasePath     /api/v1
//
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
package api

//go:generate swag init -g api.go -d ./ -o ../../internal/apidocs --outputTypes go

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/txn2/trip-planner/pkg/credential"
	"github.com/txn2/trip-planner/pkg/health"
	httpauth "github.com/txn2/trip-planner/pkg/http"
	"github.com/txn2/trip-planner/pkg/planner"
	"github.com/txn2/trip-planner/pkg/search"
	"github.com/txn2/trip-planner/pkg/session"
	"github.com/txn2/trip-planner/pkg/user"
)

const (
	pathParamID     = "id"
	maxRequestBytes = 1 << 20
)

// Deps are the services behind the API. Search, Health and Gatherer are
// optional.
type Deps struct {
	Credentials *credential.Manager
	Users       user.Store
	Sessions    session.Store
	Planner     *planner.Service
	Search      search.Provider
	Health      *health.Checker
	Gatherer    prometheus.Gatherer
	Now         func() time.Time
}

// Handler serves the HTTP API.
type Handler struct {
	deps   Deps
	router chi.Router
}

// NewHandler builds the router.
func NewHandler(deps Deps) (*Handler, error) {
	if deps.Credentials == nil || deps.Users == nil || deps.Sessions == nil || deps.Planner == nil {
		return nil, errors.New("api: credentials, users, sessions and planner are required")
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	h := &Handler{deps: deps, router: chi.NewRouter()}
	h.registerRoutes()
	return h, nil
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	r := h.router
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	if h.deps.Health != nil {
		r.Get("/healthz", h.deps.Health.LivenessHandler())
		r.Get("/readyz", h.deps.Health.ReadinessHandler())
	}
	if h.deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.deps.Gatherer, promhttp.HandlerOpts{}))
	}
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/register", h.Register)
		r.Post("/auth/login", h.Login)
		r.Post("/auth/refresh", h.Refresh)

		r.Group(func(r chi.Router) {
			r.Use(httpauth.RequireAuth(h.deps.Credentials))

			r.Post("/auth/logout", h.Logout)
			r.Get("/users/me", h.Me)

			r.Post("/sessions", h.CreateSession)
			r.Get("/sessions", h.ListSessions)
			r.Get("/sessions/{id}", h.GetSession)
			r.Patch("/sessions/{id}", h.PatchSession)
			r.Delete("/sessions/{id}", h.DeleteSession)
			r.Put("/sessions/{id}/stage", h.TransitionStage)
			r.Post("/sessions/{id}/close", h.CloseSession)
			r.Post("/sessions/{id}/messages", h.PostMessage)

			r.Post("/search/flights", h.SearchFlights)
			r.Post("/search/flights/return", h.SearchReturnFlights)
			r.Post("/search/flights/booking", h.BookFlight)
			r.Post("/search/hotels", h.SearchHotels)
			r.Post("/search/explore", h.ExploreDestinations)
		})
	})
}

// decodeJSON reads a size-limited JSON body into v. Unknown fields are
// rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return &session.ValidationError{Field: "body", Reason: "request body is empty"}
		}
		return &session.ValidationError{Field: "body", Reason: err.Error()}
	}
	return nil
}

// writeServiceError maps domain errors onto status codes.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *session.ValidationError
	switch {
	case credential.IsAuthError(err):
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
		httpauth.WriteError(w, http.StatusUnauthorized, "invalid credentials")
	case errors.As(err, &verr):
		httpauth.WriteJSON(w, http.StatusBadRequest, httpauth.ErrorResponse{Error: verr.Error(), Field: verr.Field})
	case errors.Is(err, user.ErrInvalidInput):
		httpauth.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrNotFound):
		httpauth.WriteError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, user.ErrNotFound):
		httpauth.WriteError(w, http.StatusNotFound, "user not found")
	case errors.Is(err, session.ErrInvalidTransition):
		httpauth.WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, user.ErrEmailTaken):
		httpauth.WriteError(w, http.StatusConflict, "email already registered")
	default:
		slog.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
		httpauth.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}
