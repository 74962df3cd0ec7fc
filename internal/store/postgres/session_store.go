package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/ElvinaPau/pathlab-admin/internal/models"
	"github.com/ElvinaPau/pathlab-admin/internal/store"
)

const sessionColumns = `
	session_id, admin_id, current_token_id,
	created_at, expires_at, last_refreshed_at,
	user_agent, coalesce(host(ip_address), '')
`

// SessionStore implements store.SessionStore using PostgreSQL.
type SessionStore struct {
	pool *pgxpool.Pool
}

// NewSessionStore creates a new PostgreSQL-backed session store.
func NewSessionStore(pool *pgxpool.Pool) *SessionStore {
	return &SessionStore{
		pool: pool,
	}
}

// Create creates a new refresh session in the database.
func (s *SessionStore) Create(ctx context.Context, session *models.RefreshSession) error {
	query := `
		INSERT INTO refresh_sessions (
			session_id, admin_id, current_token_id,
			created_at, expires_at, last_refreshed_at,
			user_agent, ip_address
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8::inet
		)
	`

	// Convert empty IP address to nil for proper INET handling
	var ipAddress any
	if session.IPAddress == "" {
		ipAddress = nil
	} else {
		ipAddress = session.IPAddress
	}

	_, err := s.pool.Exec(ctx, query,
		session.SessionID,
		session.AdminID,
		session.CurrentTokenID,
		session.CreatedAt,
		session.ExpiresAt,
		session.LastRefreshedAt,
		session.UserAgent,
		ipAddress,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("session_id", session.SessionID.String()).
		Str("admin_id", session.AdminID.String()).
		Msg("Created refresh session")

	return nil
}

// Get retrieves a session by ID.
func (s *SessionStore) Get(ctx context.Context, sessionID uuid.UUID) (*models.RefreshSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM refresh_sessions WHERE session_id = $1`

	session, err := scanSession(s.pool.QueryRow(ctx, query, sessionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", mapPostgresError(err))
	}
	return session, nil
}

// Rotate atomically replaces the session's current token ID, but only if the
// presented one matches. A mismatch is credential reuse: the session row is
// deleted so neither token works again.
func (s *SessionStore) Rotate(ctx context.Context, sessionID, presentedTokenID, nextTokenID uuid.UUID, now time.Time) (*models.RefreshSession, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", mapPostgresError(err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback is safe to call after commit

	query := `SELECT ` + sessionColumns + ` FROM refresh_sessions WHERE session_id = $1 FOR UPDATE`

	session, err := scanSession(tx.QueryRow(ctx, query, sessionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to lock session: %w", mapPostgresError(err))
	}

	if now.After(session.ExpiresAt) {
		if _, err := tx.Exec(ctx, `DELETE FROM refresh_sessions WHERE session_id = $1`, sessionID); err != nil {
			return nil, fmt.Errorf("failed to delete expired session: %w", mapPostgresError(err))
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("failed to commit: %w", mapPostgresError(err))
		}
		return nil, store.ErrSessionExpired
	}

	if session.CurrentTokenID != presentedTokenID {
		if _, err := tx.Exec(ctx, `DELETE FROM refresh_sessions WHERE session_id = $1`, sessionID); err != nil {
			return nil, fmt.Errorf("failed to revoke session: %w", mapPostgresError(err))
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("failed to commit: %w", mapPostgresError(err))
		}

		log.Warn().
			Str("session_id", sessionID.String()).
			Str("admin_id", session.AdminID.String()).
			Msg("refresh token reuse detected, session revoked")

		return nil, store.ErrTokenReused
	}

	_, err = tx.Exec(ctx, `
		UPDATE refresh_sessions
		SET current_token_id = $2, last_refreshed_at = $3
		WHERE session_id = $1
	`, sessionID, nextTokenID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to rotate session: %w", mapPostgresError(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", mapPostgresError(err))
	}

	session.CurrentTokenID = nextTokenID
	session.LastRefreshedAt = now
	return session, nil
}

// Delete removes a session (logout).
func (s *SessionStore) Delete(ctx context.Context, sessionID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM refresh_sessions WHERE session_id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", mapPostgresError(err))
	}
	if tag.RowsAffected() == 0 {
		return store.ErrSessionNotFound
	}

	log.Debug().Str("session_id", sessionID.String()).Msg("Deleted refresh session")
	return nil
}

// DeleteExpired removes all sessions past their absolute expiry.
func (s *SessionStore) DeleteExpired(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM refresh_sessions WHERE expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", mapPostgresError(err))
	}
	return int(tag.RowsAffected()), nil
}

// CountActive returns the number of live sessions.
func (s *SessionStore) CountActive(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM refresh_sessions WHERE expires_at > now()
	`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", mapPostgresError(err))
	}
	return n, nil
}

func scanSession(row pgx.Row) (*models.RefreshSession, error) {
	var session models.RefreshSession
	err := row.Scan(
		&session.SessionID,
		&session.AdminID,
		&session.CurrentTokenID,
		&session.CreatedAt,
		&session.ExpiresAt,
		&session.LastRefreshedAt,
		&session.UserAgent,
		&session.IPAddress,
	)
	if err != nil {
		return nil, err
	}
	return &session, nil
}
