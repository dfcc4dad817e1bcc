package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/onnwee/matchfeed/internal/auth"
)

// TokenValidator verifies a bearer token.
type TokenValidator interface {
	ValidateAccessToken(token string) (*auth.Claims, error)
}

// RequireAuth rejects requests without a valid bearer access token with 401
// and stores the token subject as the viewer id.
func RequireAuth(validator TokenValidator, metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				metrics.IncAuthFailure("missing")
				unauthorized(w, r, "missing bearer token")
				return
			}

			claims, err := validator.ValidateAccessToken(token)
			if err != nil {
				if errors.Is(err, auth.ErrExpiredToken) {
					metrics.IncAuthFailure("expired")
					unauthorized(w, r, "token has expired")
					return
				}
				metrics.IncAuthFailure("invalid")
				unauthorized(w, r, "invalid token")
				return
			}

			ctx := SetViewerID(r.Context(), claims.ProfileID())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func unauthorized(w http.ResponseWriter, r *http.Request, message string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="matchfeed"`)
	WriteErrorResponse(w, r, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}
