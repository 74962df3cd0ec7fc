// Package session implements the client-side session lifecycle for the
// dashboard: a durable credential store, an idle/absolute expiry state
// machine, proactive access token renewal with single-flight coordination,
// and an http.RoundTripper that attaches credentials and retries rejected
// requests once after a renewal.
//
// The refresh credential never appears in this package. It lives in the HTTP
// client's cookie jar, set and rotated by the server, which keeps it
// out-of-band exactly like an httpOnly browser cookie.
package session

import (
	"errors"
	"time"
)

// Sentinel errors
var (
	// ErrAuthFailed is returned when login is rejected for a bad email or password.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrAccountNotApproved is returned when the account exists but is
	// pending or rejected.
	ErrAccountNotApproved = errors.New("account not approved")

	// ErrAuthExpired is returned when the server rejects the access credential.
	ErrAuthExpired = errors.New("access credential rejected")

	// ErrRefreshFailed is returned when the server rejects a renewal. The
	// session is not recoverable; a forced logout follows.
	ErrRefreshFailed = errors.New("session refresh rejected")

	// ErrNotLoggedIn is returned by operations that need a live session.
	ErrNotLoggedIn = errors.New("not logged in")

	// ErrNoWarningActive is returned by StayLoggedIn outside the warning window.
	ErrNoWarningActive = errors.New("no expiry warning active")
)

// Identity holds the claims the server attaches to an admin session.
type Identity struct {
	AdminID    string `json:"id"`
	Email      string `json:"email"`
	FullName   string `json:"full_name"`
	Department string `json:"department,omitempty"`
	Status     string `json:"status,omitempty"`
}

// Session is the client-side view of a logged-in session. It is owned by the
// Store for its lifetime.
type Session struct {
	AccessToken string
	Identity    Identity

	// Access token validity window, read from the token's own claims.
	IssuedAt  time.Time
	ExpiresAt time.Time

	// SessionStart is set once at login and never changes. The absolute
	// session cap is computed only from it.
	SessionStart time.Time

	// LastActivity is updated by the activity tracker.
	LastActivity time.Time
}

// Config holds the timing policy for a session.
type Config struct {
	// IdleTimeout is how long the session survives without user activity.
	IdleTimeout time.Duration

	// WarningWindow is how long before idle expiry the warning countdown runs.
	WarningWindow time.Duration

	// AbsoluteCap is the maximum session length from login, independent of activity.
	AbsoluteCap time.Duration

	// RefreshBuffer is how long before access token expiry the proactive
	// renewal fires.
	RefreshBuffer time.Duration
}

// ApplyDefaults applies default values to unset configuration fields.
func (c *Config) ApplyDefaults() {
	if c.IdleTimeout == 0 {
		c.IdleTimeout = time.Hour
	}
	if c.WarningWindow == 0 {
		c.WarningWindow = time.Minute
	}
	if c.AbsoluteCap == 0 {
		c.AbsoluteCap = 10 * time.Hour
	}
	if c.RefreshBuffer == 0 {
		c.RefreshBuffer = time.Minute
	}
}

// Validate checks the ordering invariant the timers depend on: the warning
// window fits inside the idle timeout, and the idle timeout inside the
// absolute cap.
func (c *Config) Validate() error {
	if c.IdleTimeout <= 0 || c.WarningWindow <= 0 || c.AbsoluteCap <= 0 || c.RefreshBuffer <= 0 {
		return errors.New("all session durations must be greater than 0")
	}
	if c.WarningWindow >= c.IdleTimeout {
		return errors.New("warning window must be shorter than the idle timeout")
	}
	if c.IdleTimeout >= c.AbsoluteCap {
		return errors.New("idle timeout must be shorter than the absolute session cap")
	}
	return nil
}
