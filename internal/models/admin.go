package models

import (
	"time"

	"github.com/google/uuid"
)

// Admin account states. New accounts start as pending and cannot log in
// until they are approved and have set a password.
const (
	AdminStatusPending  = "pending"
	AdminStatusApproved = "approved"
	AdminStatusRejected = "rejected"
)

// Admin represents an administrator account for the dashboard.
type Admin struct {
	AdminID    uuid.UUID // UUIDv7
	Email      string
	FullName   string
	Department string
	Notes      string
	Status     string // "pending", "approved", "rejected"

	// PasswordHash is the bcrypt hash of the login password.
	// Empty until the admin completes the set-password flow.
	PasswordHash []byte

	// Outstanding password-reset token, stored as SHA-256 of the raw token.
	ResetTokenHash   string
	ResetTokenExpiry *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// CanLogIn returns true if the account is approved and has a password set.
func (a *Admin) CanLogIn() bool {
	return a.Status == AdminStatusApproved && len(a.PasswordHash) > 0
}

// HasValidResetToken returns true if an unexpired reset token is outstanding.
func (a *Admin) HasValidResetToken(now time.Time) bool {
	return a.ResetTokenHash != "" && a.ResetTokenExpiry != nil && now.Before(*a.ResetTokenExpiry)
}
