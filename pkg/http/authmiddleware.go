// Package http provides HTTP middleware and response helpers for the trip
// planner API.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/txn2/trip-planner/pkg/auth"
	"github.com/txn2/trip-planner/pkg/credential"
)

// Verifier checks a presented credential.
type Verifier interface {
	Verify(ctx context.Context, token string, expected credential.Kind) (*credential.Token, error)
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// RequireAuth returns middleware that admits only requests carrying a valid,
// unrevoked access token. The verified caller is stored with
// auth.WithUserContext.
func RequireAuth(v Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				unauthorized(w, "missing bearer token")
				return
			}

			tok, err := v.Verify(r.Context(), token, credential.KindAccess)
			if err != nil {
				if credential.IsAuthError(err) {
					unauthorized(w, "invalid or expired token")
					return
				}
				slog.Error("verifying access token", "error", err)
				WriteError(w, http.StatusServiceUnavailable, "authentication temporarily unavailable")
				return
			}

			ctx := auth.WithToken(r.Context(), token)
			ctx = auth.WithUserContext(ctx, &auth.UserContext{
				UserID:    tok.Subject,
				TokenID:   tok.ID,
				ExpiresAt: tok.ExpiresAt,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	WriteError(w, http.StatusUnauthorized, msg)
}
