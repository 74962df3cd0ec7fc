package models

import (
	"time"

	"github.com/google/uuid"
)

// RefreshSession is the server-side record of one logged-in admin session.
// Token issuance is otherwise stateless; the one thing the server must remember
// between refreshes is the token ID of the latest refresh credential it issued,
// so that a rotated-out credential presented again can be detected as reuse.
type RefreshSession struct {
	SessionID uuid.UUID // UUIDv7 - carried in the refresh credential's sid claim
	AdminID   uuid.UUID

	// CurrentTokenID is the jti of the only refresh credential currently
	// accepted for this session. Rotation replaces it on every refresh.
	CurrentTokenID uuid.UUID

	CreatedAt       time.Time
	ExpiresAt       time.Time // fixed at creation; rotation never extends it
	LastRefreshedAt time.Time

	// Audit metadata captured at login
	UserAgent string
	IPAddress string
}

// IsExpired returns true if the session has passed its absolute lifetime.
func (s *RefreshSession) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}
