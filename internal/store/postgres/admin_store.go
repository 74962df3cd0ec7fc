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

const adminColumns = `
	admin_id, email, full_name, department, notes, status,
	password_hash, reset_token_hash, reset_token_expiry,
	created_at, updated_at
`

// AdminStore implements store.AdminStore using PostgreSQL.
type AdminStore struct {
	pool *pgxpool.Pool
}

// NewAdminStore creates a new PostgreSQL-backed admin store.
func NewAdminStore(pool *pgxpool.Pool) *AdminStore {
	return &AdminStore{
		pool: pool,
	}
}

// Create inserts a new admin account.
func (s *AdminStore) Create(ctx context.Context, admin *models.Admin) error {
	query := `
		INSERT INTO admins (
			admin_id, email, full_name, department, notes, status,
			password_hash, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)
	`

	_, err := s.pool.Exec(ctx, query,
		admin.AdminID,
		admin.Email,
		admin.FullName,
		admin.Department,
		admin.Notes,
		admin.Status,
		nullableBytes(admin.PasswordHash),
		admin.CreatedAt,
		admin.UpdatedAt,
	)
	if err != nil {
		if mapped := mapPostgresError(err); errors.Is(mapped, store.ErrAdminExists) {
			return store.ErrAdminExists
		}
		return fmt.Errorf("failed to create admin: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("admin_id", admin.AdminID.String()).
		Str("email", admin.Email).
		Msg("Created admin account")

	return nil
}

// GetByID retrieves an admin by ID.
func (s *AdminStore) GetByID(ctx context.Context, adminID uuid.UUID) (*models.Admin, error) {
	query := `SELECT ` + adminColumns + ` FROM admins WHERE admin_id = $1`
	return s.getOne(ctx, query, adminID)
}

// GetByEmail retrieves an admin by email, case-insensitively.
func (s *AdminStore) GetByEmail(ctx context.Context, email string) (*models.Admin, error) {
	query := `SELECT ` + adminColumns + ` FROM admins WHERE lower(email) = lower($1)`
	return s.getOne(ctx, query, email)
}

// UpdateStatus changes an account's approval status.
func (s *AdminStore) UpdateStatus(ctx context.Context, adminID uuid.UUID, status string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE admins SET status = $2, updated_at = now() WHERE admin_id = $1
	`, adminID, status)
	if err != nil {
		return fmt.Errorf("failed to update admin status: %w", mapPostgresError(err))
	}
	if tag.RowsAffected() == 0 {
		return store.ErrAdminNotFound
	}

	log.Debug().
		Str("admin_id", adminID.String()).
		Str("status", status).
		Msg("Updated admin status")

	return nil
}

// SetResetToken stores the hash of an outstanding password reset token,
// replacing any previous one.
func (s *AdminStore) SetResetToken(ctx context.Context, adminID uuid.UUID, tokenHash string, expiry time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE admins
		SET reset_token_hash = $2, reset_token_expiry = $3, updated_at = now()
		WHERE admin_id = $1
	`, adminID, tokenHash, expiry)
	if err != nil {
		return fmt.Errorf("failed to set reset token: %w", mapPostgresError(err))
	}
	if tag.RowsAffected() == 0 {
		return store.ErrAdminNotFound
	}
	return nil
}

// GetByResetToken looks up the admin holding an unexpired reset token hash.
func (s *AdminStore) GetByResetToken(ctx context.Context, tokenHash string) (*models.Admin, error) {
	query := `
		SELECT ` + adminColumns + `
		FROM admins
		WHERE reset_token_hash = $1 AND reset_token_expiry > now()
	`

	admin, err := s.getOne(ctx, query, tokenHash)
	if err != nil {
		if errors.Is(err, store.ErrAdminNotFound) {
			return nil, store.ErrResetTokenInvalid
		}
		return nil, err
	}
	return admin, nil
}

// ConsumeResetToken atomically sets the password hash and clears the reset
// token it was presented with.
func (s *AdminStore) ConsumeResetToken(ctx context.Context, tokenHash string, passwordHash []byte) (uuid.UUID, error) {
	var adminID uuid.UUID
	err := s.pool.QueryRow(ctx, `
		UPDATE admins
		SET password_hash = $2,
		    reset_token_hash = NULL,
		    reset_token_expiry = NULL,
		    updated_at = now()
		WHERE reset_token_hash = $1 AND reset_token_expiry > now()
		RETURNING admin_id
	`, tokenHash, passwordHash).Scan(&adminID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, store.ErrResetTokenInvalid
		}
		return uuid.Nil, fmt.Errorf("failed to consume reset token: %w", mapPostgresError(err))
	}

	log.Debug().Str("admin_id", adminID.String()).Msg("Password set via reset token")
	return adminID, nil
}

func (s *AdminStore) getOne(ctx context.Context, query string, arg any) (*models.Admin, error) {
	var (
		admin      models.Admin
		resetHash  *string
		resetExp   *time.Time
		passwdHash []byte
	)

	err := s.pool.QueryRow(ctx, query, arg).Scan(
		&admin.AdminID,
		&admin.Email,
		&admin.FullName,
		&admin.Department,
		&admin.Notes,
		&admin.Status,
		&passwdHash,
		&resetHash,
		&resetExp,
		&admin.CreatedAt,
		&admin.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrAdminNotFound
		}
		return nil, fmt.Errorf("failed to get admin: %w", mapPostgresError(err))
	}

	admin.PasswordHash = passwdHash
	if resetHash != nil {
		admin.ResetTokenHash = *resetHash
	}
	admin.ResetTokenExpiry = resetExp

	return &admin, nil
}

// nullableBytes converts an empty byte slice to nil for NULL-able columns.
func nullableBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}
