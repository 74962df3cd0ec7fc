// Package mailer delivers account emails. The only implementation here logs
// the message instead of sending it, which is what development and tests use;
// deployments plug in their delivery service behind the same interface.
package mailer

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Mailer sends account lifecycle emails.
type Mailer interface {
	// SendPasswordReset sends a password reset link to the given address.
	SendPasswordReset(ctx context.Context, email, fullName, resetURL string) error

	// SendAccountApproved tells an admin their account request was approved
	// and includes the link to set their first password.
	SendAccountApproved(ctx context.Context, email, fullName, setPasswordURL string) error
}

// LogMailer writes each message to the log instead of delivering it.
type LogMailer struct{}

// NewLogMailer creates a log-only mailer.
func NewLogMailer() *LogMailer {
	return &LogMailer{}
}

func (m *LogMailer) SendPasswordReset(ctx context.Context, email, fullName, resetURL string) error {
	log.Info().
		Str("email", email).
		Str("reset_url", resetURL).
		Msg("password reset email")
	return nil
}

func (m *LogMailer) SendAccountApproved(ctx context.Context, email, fullName, setPasswordURL string) error {
	log.Info().
		Str("email", email).
		Str("set_password_url", setPasswordURL).
		Msg("account approved email")
	return nil
}
