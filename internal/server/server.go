// Package server implements the admin API: login, token refresh, logout,
// identity lookup, account signup, and the password reset flow.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"filippo.io/csrf"
	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/ElvinaPau/pathlab-admin/internal/auth"
	httpmiddleware "github.com/ElvinaPau/pathlab-admin/internal/http"
	"github.com/ElvinaPau/pathlab-admin/internal/logger"
	"github.com/ElvinaPau/pathlab-admin/internal/mailer"
	"github.com/ElvinaPau/pathlab-admin/internal/store"
	"github.com/ElvinaPau/pathlab-admin/internal/telemetry"
	"github.com/ElvinaPau/pathlab-admin/internal/tokens"
)

// refreshCookieName is the cookie carrying the refresh credential. Marked
// httpOnly so page scripts can never read it.
const refreshCookieName = "refresh_token"

// Config holds the server's session and deployment settings.
type Config struct {
	// SessionLifetime is the absolute lifetime of a refresh session. It is
	// fixed at login; refreshes rotate the credential but never extend it.
	SessionLifetime time.Duration

	// BaseURL is the public URL of the dashboard, used in emailed links.
	BaseURL string

	// CORSOrigins are the allowed origins for credentialed API requests.
	CORSOrigins []string

	// SecureCookies marks the refresh cookie Secure. Disabled only for
	// local development over plain HTTP.
	SecureCookies bool
}

// Server wires the stores, signer, and mailer behind the HTTP handlers.
type Server struct {
	cfg      Config
	admins   store.AdminStore
	sessions store.SessionStore
	signer   *tokens.Signer
	mailer   mailer.Mailer
	metrics  *telemetry.Metrics
}

// New creates a server.
func New(cfg Config, admins store.AdminStore, sessions store.SessionStore, signer *tokens.Signer, m mailer.Mailer) *Server {
	if cfg.SessionLifetime == 0 {
		cfg.SessionLifetime = 10 * time.Hour
	}
	return &Server{
		cfg:      cfg,
		admins:   admins,
		sessions: sessions,
		signer:   signer,
		mailer:   m,
		metrics:  telemetry.GetMetrics(),
	}
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler(log zerolog.Logger) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint for load balancer
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Session endpoints
	mux.HandleFunc("POST /login", s.handleLogin)
	mux.HandleFunc("POST /refresh", s.handleRefresh)
	mux.HandleFunc("POST /logout", s.handleLogout)

	// Account endpoints
	mux.HandleFunc("POST /signup", s.handleSignup)
	mux.HandleFunc("POST /password/forgot", s.handleForgotPassword)
	mux.HandleFunc("GET /password/verify/{token}", s.handleVerifyResetToken)
	mux.HandleFunc("POST /password/set/{token}", s.handleSetPassword)

	// Identity endpoint requires a verified access token
	requireAuth := auth.Middleware(s.signer)
	mux.Handle("GET /me", requireAuth(http.HandlerFunc(s.handleMe)))

	// The refresh and logout endpoints authenticate with a cookie, so they
	// need cross-site request protection. Configured origins are trusted:
	// CORS already vouches for them.
	protection := csrf.New()
	for _, origin := range s.cfg.CORSOrigins {
		if err := protection.AddTrustedOrigin(origin); err != nil {
			log.Warn().Err(err).Str("origin", origin).Msg("invalid trusted origin")
		}
	}

	handler := protection.Handler(mux)
	handler = httpmiddleware.ClientIPMiddleware()(handler)
	handler = logger.NewHTTPRequests(log)(handler)
	handler = httpmiddleware.RequestIDMiddleware()(handler)
	handler = withCORS(s.cfg.CORSOrigins, handler)

	return gzhttp.GzipHandler(handler)
}

// withCORS adds CORS support for the browser dashboard. Credentials must be
// allowed for the refresh cookie to travel.
func withCORS(allowedOrigins []string, h http.Handler) http.Handler {
	middleware := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})
	return middleware.Handler(h)
}

// writeJSON writes a JSON response body with the given status.
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError writes the {"error": "..."} body the dashboard expects.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// decodeJSON decodes a request body with a size cap.
func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20)).Decode(v)
}
