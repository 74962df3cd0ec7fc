package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/ElvinaPau/pathlab-admin/internal/auth"
	httpmiddleware "github.com/ElvinaPau/pathlab-admin/internal/http"
	"github.com/ElvinaPau/pathlab-admin/internal/models"
	"github.com/ElvinaPau/pathlab-admin/internal/store"
	"github.com/ElvinaPau/pathlab-admin/internal/tokens"
)

// adminBody is the identity shape returned to the dashboard.
type adminBody struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	FullName   string `json:"full_name"`
	Department string `json:"department,omitempty"`
	Status     string `json:"status,omitempty"`
}

func toAdminBody(admin *models.Admin) adminBody {
	return adminBody{
		ID:         admin.AdminID.String(),
		Email:      admin.Email,
		FullName:   admin.FullName,
		Department: admin.Department,
		Status:     admin.Status,
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var creds struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &creds); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	admin, err := s.admins.GetByEmail(ctx, creds.Email)
	if err != nil {
		if errors.Is(err, store.ErrAdminNotFound) {
			s.metrics.LoginFailuresTotal.Add(ctx, 1)
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		log.Error().Err(err).Msg("admin lookup failed")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	switch admin.Status {
	case models.AdminStatusApproved:
	case models.AdminStatusRejected:
		s.metrics.LoginFailuresTotal.Add(ctx, 1)
		writeError(w, http.StatusForbidden, "Account request is rejected")
		return
	default:
		s.metrics.LoginFailuresTotal.Add(ctx, 1)
		writeError(w, http.StatusForbidden, "Account not approved yet")
		return
	}

	if err := bcrypt.CompareHashAndPassword(admin.PasswordHash, []byte(creds.Password)); err != nil {
		s.metrics.LoginFailuresTotal.Add(ctx, 1)
		log.Info().Str("email", admin.Email).Msg("wrong password")
		writeError(w, http.StatusUnauthorized, "Wrong password")
		return
	}

	now := time.Now()
	session := &models.RefreshSession{
		SessionID:      uuid.Must(uuid.NewV7()),
		AdminID:        admin.AdminID,
		CurrentTokenID: uuid.Must(uuid.NewV7()),
		CreatedAt:      now,
		ExpiresAt:      now.Add(s.cfg.SessionLifetime),
		UserAgent:      r.UserAgent(),
		IPAddress:      httpmiddleware.ClientIPFromContext(ctx),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		log.Error().Err(err).Msg("failed to create refresh session")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	accessToken, err := s.signer.SignAccess(admin, now)
	if err != nil {
		log.Error().Err(err).Msg("failed to sign access token")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	refreshToken, err := s.signer.SignRefresh(admin.AdminID, session.SessionID, session.CurrentTokenID, now, session.ExpiresAt)
	if err != nil {
		log.Error().Err(err).Msg("failed to sign refresh token")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	s.setRefreshCookie(w, refreshToken, session.ExpiresAt)
	s.metrics.LoginsTotal.Add(ctx, 1)

	log.Info().
		Str("email", admin.Email).
		Str("session_id", session.SessionID.String()).
		Str("ip", session.IPAddress).
		Msg("admin logged in")

	writeJSON(w, http.StatusOK, map[string]any{
		"token": accessToken,
		"admin": toAdminBody(admin),
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	cookie, err := r.Cookie(refreshCookieName)
	if err != nil {
		s.metrics.RefreshFailuresTotal.Add(ctx, 1)
		writeError(w, http.StatusUnauthorized, "No refresh token")
		return
	}

	claims, err := s.signer.VerifyRefresh(cookie.Value)
	if err != nil {
		s.metrics.RefreshFailuresTotal.Add(ctx, 1)
		log.Info().
			Err(err).
			Str("token", tokens.Fingerprint(cookie.Value)).
			Msg("refresh token rejected")
		s.clearRefreshCookie(w)
		writeError(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}

	// VerifyRefresh guarantees both parse.
	sessionID := uuid.MustParse(claims.SessionID)
	presentedTokenID := uuid.MustParse(claims.ID)

	now := time.Now()
	session, err := s.sessions.Rotate(ctx, sessionID, presentedTokenID, uuid.Must(uuid.NewV7()), now)
	if err != nil {
		s.metrics.RefreshFailuresTotal.Add(ctx, 1)
		if errors.Is(err, store.ErrTokenReused) {
			s.metrics.RefreshReuseTotal.Add(ctx, 1)
			log.Warn().
				Str("session_id", sessionID.String()).
				Str("ip", httpmiddleware.ClientIPFromContext(ctx)).
				Msg("refresh token reuse detected, session revoked")
		}
		if !errors.Is(err, store.ErrSessionNotFound) &&
			!errors.Is(err, store.ErrSessionExpired) &&
			!errors.Is(err, store.ErrTokenReused) {
			log.Error().Err(err).Msg("session rotation failed")
			writeError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		s.clearRefreshCookie(w)
		writeError(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}

	admin, err := s.admins.GetByID(ctx, session.AdminID)
	if err != nil {
		log.Error().Err(err).Str("admin_id", session.AdminID.String()).Msg("admin lookup failed during refresh")
		s.clearRefreshCookie(w)
		writeError(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}

	accessToken, err := s.signer.SignAccess(admin, now)
	if err != nil {
		log.Error().Err(err).Msg("failed to sign access token")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	// The new refresh credential keeps the session's original expiry, so
	// rotation never pushes the absolute lifetime out.
	refreshToken, err := s.signer.SignRefresh(admin.AdminID, session.SessionID, session.CurrentTokenID, now, session.ExpiresAt)
	if err != nil {
		log.Error().Err(err).Msg("failed to sign refresh token")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	s.setRefreshCookie(w, refreshToken, session.ExpiresAt)
	s.metrics.RefreshesTotal.Add(ctx, 1)

	writeJSON(w, http.StatusOK, map[string]string{"token": accessToken})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Logout is idempotent: a missing or invalid cookie still clears state.
	if cookie, err := r.Cookie(refreshCookieName); err == nil {
		if claims, err := s.signer.VerifyRefresh(cookie.Value); err == nil {
			sessionID := uuid.MustParse(claims.SessionID)
			if err := s.sessions.Delete(ctx, sessionID); err != nil && !errors.Is(err, store.ErrSessionNotFound) {
				log.Error().Err(err).Str("session_id", sessionID.String()).Msg("failed to delete session")
			}
		}
	}

	s.clearRefreshCookie(w)
	s.metrics.LogoutsTotal.Add(ctx, 1)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	claims := auth.IdentityFromContext(ctx)
	adminID, err := claims.AdminID()
	if err != nil {
		writeError(w, http.StatusForbidden, "Invalid or expired token")
		return
	}

	admin, err := s.admins.GetByID(ctx, adminID)
	if err != nil {
		if errors.Is(err, store.ErrAdminNotFound) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		log.Error().Err(err).Msg("admin lookup failed")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, toAdminBody(admin))
}

// setRefreshCookie installs the refresh credential, scoped to the whole API
// and hidden from scripts. MaxAge tracks the session's remaining lifetime.
func (s *Server) setRefreshCookie(w http.ResponseWriter, token string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(time.Until(expiresAt).Seconds()),
		HttpOnly: true,
		Secure:   s.cfg.SecureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}

func (s *Server) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cfg.SecureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}
