package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/txn2/trip-planner/pkg/auth"
	httpauth "github.com/txn2/trip-planner/pkg/http"
	"github.com/txn2/trip-planner/pkg/session"
)

type sessionListResponse struct {
	Sessions []string `json:"sessions"`
}

type stageRequest struct {
	Stage string `json:"stage"`
}

type messageRequest struct {
	Content string `json:"content"`
}

// CreateSession handles POST /api/v1/sessions.
//
// @Summary      Start a planning session
// @Description  Creates a discovery-stage session seeded from the caller's profile.
// @Tags         Sessions
// @Produce      json
// @Success      201  {object}  session.Session
// @Security     BearerAuth
// @Router       /sessions [post]
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.deps.Planner.StartSession(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpauth.WriteJSON(w, http.StatusCreated, sess)
}

// ListSessions handles GET /api/v1/sessions.
//
// @Summary      List session ids
// @Tags         Sessions
// @Produce      json
// @Success      200  {object}  sessionListResponse
// @Security     BearerAuth
// @Router       /sessions [get]
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	ids, err := h.deps.Sessions.ListIDs(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpauth.WriteJSON(w, http.StatusOK, sessionListResponse{Sessions: ids})
}

// GetSession handles GET /api/v1/sessions/{id}.
//
// @Summary      Get session
// @Tags         Sessions
// @Produce      json
// @Param        id   path      string  true  "Session ID"
// @Success      200  {object}  session.Session
// @Failure      404  {object}  httpauth.ErrorResponse
// @Security     BearerAuth
// @Router       /sessions/{id} [get]
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.deps.Sessions.Get(r.Context(), chi.URLParam(r, pathParamID), auth.UserID(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpauth.WriteJSON(w, http.StatusOK, sess)
}

// PatchSession handles PATCH /api/v1/sessions/{id}.
//
// @Summary      Update session
// @Description  Overlays memory fields and replaces currency or links. The stage cannot be patched.
// @Tags         Sessions
// @Accept       json
// @Produce      json
// @Param        id    path      string         true  "Session ID"
// @Param        body  body      session.Patch  true  "Partial update"
// @Success      200   {object}  session.Session
// @Failure      400   {object}  httpauth.ErrorResponse
// @Failure      404   {object}  httpauth.ErrorResponse
// @Security     BearerAuth
// @Router       /sessions/{id} [patch]
func (h *Handler) PatchSession(w http.ResponseWriter, r *http.Request) {
	var p session.Patch
	if err := decodeJSON(w, r, &p); err != nil {
		writeServiceError(w, r, err)
		return
	}
	sess, err := h.deps.Sessions.Patch(r.Context(), chi.URLParam(r, pathParamID), auth.UserID(r.Context()), p)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpauth.WriteJSON(w, http.StatusOK, sess)
}

// TransitionStage handles PUT /api/v1/sessions/{id}/stage.
//
// @Summary      Advance stage
// @Description  Moves the session to a later stage. Backward and same-stage moves are rejected.
// @Tags         Sessions
// @Accept       json
// @Produce      json
// @Param        id    path      string        true  "Session ID"
// @Param        body  body      stageRequest  true  "Target stage"
// @Success      200   {object}  session.Session
// @Failure      400   {object}  httpauth.ErrorResponse
// @Failure      404   {object}  httpauth.ErrorResponse
// @Failure      409   {object}  httpauth.ErrorResponse
// @Security     BearerAuth
// @Router       /sessions/{id}/stage [put]
func (h *Handler) TransitionStage(w http.ResponseWriter, r *http.Request) {
	var req stageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	next, err := session.ParseStage(req.Stage)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	sess, err := h.deps.Sessions.TransitionStage(r.Context(), chi.URLParam(r, pathParamID), auth.UserID(r.Context()), next)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpauth.WriteJSON(w, http.StatusOK, sess)
}

// CloseSession handles POST /api/v1/sessions/{id}/close.
//
// @Summary      Close session
// @Tags         Sessions
// @Produce      json
// @Param        id   path      string  true  "Session ID"
// @Success      200  {object}  session.Session
// @Failure      404  {object}  httpauth.ErrorResponse
// @Security     BearerAuth
// @Router       /sessions/{id}/close [post]
func (h *Handler) CloseSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.deps.Sessions.Deactivate(r.Context(), chi.URLParam(r, pathParamID), auth.UserID(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpauth.WriteJSON(w, http.StatusOK, sess)
}

// DeleteSession handles DELETE /api/v1/sessions/{id}.
//
// @Summary      Delete session
// @Description  Idempotent. Unknown and foreign ids also return 204.
// @Tags         Sessions
// @Param        id  path  string  true  "Session ID"
// @Success      204
// @Security     BearerAuth
// @Router       /sessions/{id} [delete]
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Sessions.Delete(r.Context(), chi.URLParam(r, pathParamID), auth.UserID(r.Context())); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PostMessage handles POST /api/v1/sessions/{id}/messages.
//
// @Summary      Send a message
// @Description  Runs one information-collection step in the discovery stage.
// @Tags         Sessions
// @Accept       json
// @Produce      json
// @Param        id    path      string          true  "Session ID"
// @Param        body  body      messageRequest  true  "User message"
// @Success      200   {object}  planner.Reply
// @Failure      400   {object}  httpauth.ErrorResponse
// @Failure      404   {object}  httpauth.ErrorResponse
// @Failure      409   {object}  httpauth.ErrorResponse
// @Security     BearerAuth
// @Router       /sessions/{id}/messages [post]
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	reply, err := h.deps.Planner.HandleMessage(r.Context(), chi.URLParam(r, pathParamID), auth.UserID(r.Context()), req.Content)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpauth.WriteJSON(w, http.StatusOK, reply)
}
