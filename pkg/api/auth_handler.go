package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/txn2/trip-planner/pkg/auth"
	"github.com/txn2/trip-planner/pkg/credential"
	httpauth "github.com/txn2/trip-planner/pkg/http"
	"github.com/txn2/trip-planner/pkg/user"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type authResponse struct {
	User   *user.User       `json:"user"`
	Tokens *credential.Pair `json:"tokens"`
}

// Register handles POST /api/v1/auth/register.
//
// @Summary      Register
// @Description  Creates an account and returns a first credential pair.
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        body  body      user.Registration  true  "Account details"
// @Success      201   {object}  authResponse
// @Failure      400   {object}  httpauth.ErrorResponse
// @Failure      409   {object}  httpauth.ErrorResponse
// @Router       /auth/register [post]
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req user.Registration
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	u, err := user.NewUser(req, h.deps.Now())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := h.deps.Users.Create(r.Context(), u); err != nil {
		writeServiceError(w, r, err)
		return
	}

	pair, err := h.deps.Credentials.IssuePair(u.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	slog.Info("user registered", "user_id", u.ID)
	httpauth.WriteJSON(w, http.StatusCreated, authResponse{User: u, Tokens: pair})
}

// Login handles POST /api/v1/auth/login.
//
// @Summary      Log in
// @Description  Exchanges an email and password for a credential pair.
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        body  body      loginRequest  true  "Credentials"
// @Success      200   {object}  authResponse
// @Failure      401   {object}  httpauth.ErrorResponse
// @Router       /auth/login [post]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	email, err := user.NormalizeEmail(req.Email)
	if err != nil {
		writeServiceError(w, r, credential.ErrInvalid)
		return
	}
	u, err := h.deps.Users.GetByEmail(r.Context(), email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			err = credential.ErrInvalid
		}
		writeServiceError(w, r, err)
		return
	}
	if !u.CheckPassword(req.Password) {
		writeServiceError(w, r, credential.ErrInvalid)
		return
	}

	pair, err := h.deps.Credentials.IssuePair(u.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpauth.WriteJSON(w, http.StatusOK, authResponse{User: u, Tokens: pair})
}

// Refresh handles POST /api/v1/auth/refresh.
//
// @Summary      Rotate credentials
// @Description  Consumes a refresh token and returns a new pair. Each refresh token works once.
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        body  body      refreshRequest  true  "Refresh token"
// @Success      200   {object}  credential.Pair
// @Failure      401   {object}  httpauth.ErrorResponse
// @Router       /auth/refresh [post]
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	pair, err := h.deps.Credentials.Rotate(r.Context(), req.RefreshToken)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpauth.WriteJSON(w, http.StatusOK, pair)
}

// Logout handles POST /api/v1/auth/logout.
//
// @Summary      Log out
// @Description  Revokes the presented access token and the given refresh token.
// @Tags         Auth
// @Accept       json
// @Param        body  body  refreshRequest  true  "Refresh token"
// @Success      204
// @Failure      401  {object}  httpauth.ErrorResponse
// @Security     BearerAuth
// @Router       /auth/logout [post]
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := h.deps.Credentials.RevokePair(r.Context(), auth.GetToken(r.Context()), req.RefreshToken); err != nil {
		writeServiceError(w, r, fmt.Errorf("logging out: %w", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /api/v1/users/me.
//
// @Summary      Current user
// @Tags         Users
// @Produce      json
// @Success      200  {object}  user.User
// @Failure      401  {object}  httpauth.ErrorResponse
// @Security     BearerAuth
// @Router       /users/me [get]
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	u, err := h.deps.Users.GetByID(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpauth.WriteJSON(w, http.StatusOK, u)
}
