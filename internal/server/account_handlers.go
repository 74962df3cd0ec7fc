package server

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/ElvinaPau/pathlab-admin/internal/models"
	"github.com/ElvinaPau/pathlab-admin/internal/store"
)

// resetTokenTTL is how long a password reset link stays valid.
const resetTokenTTL = time.Hour

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		Email      string `json:"email"`
		FullName   string `json:"full_name"`
		Department string `json:"department"`
		Notes      string `json:"notes"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Email == "" || req.FullName == "" {
		writeError(w, http.StatusBadRequest, "Email and full name are required")
		return
	}

	now := time.Now()
	admin := &models.Admin{
		AdminID:    uuid.Must(uuid.NewV7()),
		Email:      req.Email,
		FullName:   req.FullName,
		Department: req.Department,
		Notes:      req.Notes,
		Status:     models.AdminStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.admins.Create(ctx, admin); err != nil {
		if errors.Is(err, store.ErrAdminExists) {
			writeError(w, http.StatusConflict, "Email already registered")
			return
		}
		log.Error().Err(err).Msg("failed to create admin account")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	s.metrics.SignupsTotal.Add(ctx, 1)
	log.Info().Str("email", admin.Email).Msg("account request submitted")
	writeJSON(w, http.StatusCreated, map[string]string{"message": "Account request submitted"})
}

func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Email == "" {
		writeError(w, http.StatusBadRequest, "Email is required")
		return
	}

	// The response never reveals whether the address exists.
	respond := func() {
		writeJSON(w, http.StatusOK, map[string]string{
			"message": "If the email exists, a reset link has been sent",
		})
	}

	admin, err := s.admins.GetByEmail(ctx, req.Email)
	if err != nil {
		if !errors.Is(err, store.ErrAdminNotFound) {
			log.Error().Err(err).Msg("admin lookup failed")
		}
		respond()
		return
	}
	if admin.Status != models.AdminStatusApproved {
		respond()
		return
	}

	rawToken, tokenHash, err := newResetToken()
	if err != nil {
		log.Error().Err(err).Msg("failed to generate reset token")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	if err := s.admins.SetResetToken(ctx, admin.AdminID, tokenHash, time.Now().Add(resetTokenTTL)); err != nil {
		log.Error().Err(err).Msg("failed to store reset token")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	resetURL := fmt.Sprintf("%s/password/set/%s", s.cfg.BaseURL, rawToken)
	if err := s.mailer.SendPasswordReset(ctx, admin.Email, admin.FullName, resetURL); err != nil {
		log.Error().Err(err).Str("email", admin.Email).Msg("failed to send reset email")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	log.Info().Str("email", admin.Email).Msg("password reset requested")
	respond()
}

func (s *Server) handleVerifyResetToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tokenHash := hashResetToken(r.PathValue("token"))
	if _, err := s.admins.GetByResetToken(ctx, tokenHash); err != nil {
		if errors.Is(err, store.ErrResetTokenInvalid) {
			writeError(w, http.StatusBadRequest, "Invalid or expired token")
			return
		}
		log.Error().Err(err).Msg("reset token lookup failed")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Token valid"})
}

func (s *Server) handleSetPassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.Password) < 8 {
		writeError(w, http.StatusBadRequest, "Password must be at least 8 characters")
		return
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Error().Err(err).Msg("failed to hash password")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	tokenHash := hashResetToken(r.PathValue("token"))
	adminID, err := s.admins.ConsumeResetToken(ctx, tokenHash, passwordHash)
	if err != nil {
		if errors.Is(err, store.ErrResetTokenInvalid) {
			writeError(w, http.StatusBadRequest, "Invalid or expired token")
			return
		}
		log.Error().Err(err).Msg("failed to consume reset token")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	s.metrics.PasswordResetsTotal.Add(ctx, 1)
	log.Info().Str("admin_id", adminID.String()).Msg("password updated")
	writeJSON(w, http.StatusOK, map[string]string{"message": "Password updated"})
}

// newResetToken generates a random reset token. Only its SHA-256 hash is
// stored; the raw token travels in the emailed link.
func newResetToken() (raw, hash string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", err
	}
	raw = hex.EncodeToString(buf)
	return raw, hashResetToken(raw), nil
}

func hashResetToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
