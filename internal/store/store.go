// Package store defines the persistence interfaces for admin accounts and
// refresh sessions, with in-memory and PostgreSQL implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ElvinaPau/pathlab-admin/internal/models"
)

// Sentinel errors for common error conditions
var (
	ErrAdminNotFound  = errors.New("admin not found")
	ErrAdminExists    = errors.New("admin already exists")
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")

	// ErrTokenReused is returned by Rotate when the presented token ID is not
	// the session's current one. The whole session is revoked when this
	// happens: a rotated-out credential showing up again means either replay
	// or theft, and the honest holder can log in again.
	ErrTokenReused = errors.New("refresh token reuse detected")

	// ErrResetTokenInvalid is returned for unknown or expired password reset tokens.
	ErrResetTokenInvalid = errors.New("invalid or expired reset token")
)

// AdminStore defines the interface for admin account storage.
type AdminStore interface {
	Create(ctx context.Context, admin *models.Admin) error
	GetByID(ctx context.Context, adminID uuid.UUID) (*models.Admin, error)
	GetByEmail(ctx context.Context, email string) (*models.Admin, error)
	UpdateStatus(ctx context.Context, adminID uuid.UUID, status string) error

	// SetResetToken stores the hash of an outstanding password reset token.
	SetResetToken(ctx context.Context, adminID uuid.UUID, tokenHash string, expiry time.Time) error

	// GetByResetToken looks up the admin holding an unexpired reset token hash.
	GetByResetToken(ctx context.Context, tokenHash string) (*models.Admin, error)

	// ConsumeResetToken atomically sets the password hash and clears the reset
	// token it was presented with. Returns the admin ID on success.
	ConsumeResetToken(ctx context.Context, tokenHash string, passwordHash []byte) (uuid.UUID, error)
}

// SessionStore defines the interface for refresh session storage, including
// the rotation bookkeeping that makes refresh credential reuse detectable.
type SessionStore interface {
	Create(ctx context.Context, session *models.RefreshSession) error
	Get(ctx context.Context, sessionID uuid.UUID) (*models.RefreshSession, error)

	// Rotate atomically replaces the session's current token ID, but only if
	// presentedTokenID matches the stored one. A mismatch revokes the session
	// and returns ErrTokenReused. An expired session returns ErrSessionExpired.
	Rotate(ctx context.Context, sessionID, presentedTokenID, nextTokenID uuid.UUID, now time.Time) (*models.RefreshSession, error)

	// Delete removes a session (logout). Deleting a missing session returns
	// ErrSessionNotFound; callers treating logout as idempotent ignore it.
	Delete(ctx context.Context, sessionID uuid.UUID) error

	// DeleteExpired removes all sessions past their absolute expiry.
	DeleteExpired(ctx context.Context) (int, error)

	// CountActive returns the number of live sessions, for metrics.
	CountActive(ctx context.Context) (int, error)
}
