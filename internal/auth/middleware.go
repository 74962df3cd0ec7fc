// Package auth provides the Bearer token middleware for the admin API.
package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/ElvinaPau/pathlab-admin/internal/tokens"
)

type contextKey int

const identityContextKey contextKey = iota

// IdentityFromContext extracts the verified access claims from the request
// context. Returns nil if the request was not authenticated.
func IdentityFromContext(ctx context.Context) *tokens.AccessClaims {
	claims, _ := ctx.Value(identityContextKey).(*tokens.AccessClaims)
	return claims
}

// Middleware returns an HTTP middleware that verifies Bearer access tokens.
// A missing token is 401, a token that fails verification is 403. Verified
// claims are added to the request context.
func Middleware(signer *tokens.Signer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := extractBearerToken(r)
			if tokenString == "" {
				log.Debug().Str("path", r.URL.Path).Msg("missing bearer token")
				writeError(w, http.StatusUnauthorized, "No token provided")
				return
			}

			claims, err := signer.VerifyAccess(tokenString)
			if err != nil {
				log.Debug().
					Err(err).
					Str("path", r.URL.Path).
					Str("token", tokens.Fingerprint(tokenString)).
					Msg("access token rejected")
				writeError(w, http.StatusForbidden, "Invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), identityContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractBearerToken extracts the token from the Authorization header.
func extractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}

	return parts[1]
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
