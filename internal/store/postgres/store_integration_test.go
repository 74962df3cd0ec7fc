//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ElvinaPau/pathlab-admin/internal/models"
	"github.com/ElvinaPau/pathlab-admin/internal/store"
)

func setupPostgresContainer(t *testing.T, ctx context.Context) (*AdminStore, *SessionStore, func()) {
	// Start postgres container
	req := testcontainers.ContainerRequest{
		Image:        "postgres:18-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	connString := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	pool, err := NewPool(ctx, &PoolConfig{ConnString: connString})
	require.NoError(t, err)

	require.NoError(t, RunMigrations(ctx, pool))

	cleanup := func() {
		pool.Close()
		_ = container.Terminate(ctx)
	}

	return NewAdminStore(pool), NewSessionStore(pool), cleanup
}

func newIntegrationAdmin() *models.Admin {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &models.Admin{
		AdminID:      uuid.Must(uuid.NewV7()),
		Email:        "jordan@pathlab.example",
		FullName:     "Jordan Lee",
		Department:   "Histology",
		Status:       models.AdminStatusApproved,
		PasswordHash: []byte("$2a$10$notarealhash"),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestIntegration_AdminLifecycle(t *testing.T) {
	ctx := context.Background()
	admins, _, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	assert := require.New(t)
	admin := newIntegrationAdmin()

	t.Run("create and fetch", func(t *testing.T) {
		assert.NoError(admins.Create(ctx, admin))

		got, err := admins.GetByID(ctx, admin.AdminID)
		assert.NoError(err)
		assert.Equal(admin.Email, got.Email)
		assert.Equal(admin.PasswordHash, got.PasswordHash)

		// Email lookup is case-insensitive.
		got, err = admins.GetByEmail(ctx, "JORDAN@pathlab.example")
		assert.NoError(err)
		assert.Equal(admin.AdminID, got.AdminID)
	})

	t.Run("duplicate email rejected", func(t *testing.T) {
		dup := newIntegrationAdmin()
		dup.AdminID = uuid.Must(uuid.NewV7())
		dup.Email = "Jordan@pathlab.example"
		assert.ErrorIs(admins.Create(ctx, dup), store.ErrAdminExists)
	})

	t.Run("status update", func(t *testing.T) {
		assert.NoError(admins.UpdateStatus(ctx, admin.AdminID, models.AdminStatusRejected))
		got, err := admins.GetByID(ctx, admin.AdminID)
		assert.NoError(err)
		assert.Equal(models.AdminStatusRejected, got.Status)

		assert.ErrorIs(admins.UpdateStatus(ctx, uuid.Must(uuid.NewV7()), models.AdminStatusApproved), store.ErrAdminNotFound)
	})

	t.Run("reset token flow", func(t *testing.T) {
		assert.NoError(admins.SetResetToken(ctx, admin.AdminID, "token-hash", time.Now().Add(time.Hour)))

		got, err := admins.GetByResetToken(ctx, "token-hash")
		assert.NoError(err)
		assert.Equal(admin.AdminID, got.AdminID)

		_, err = admins.GetByResetToken(ctx, "wrong-hash")
		assert.ErrorIs(err, store.ErrResetTokenInvalid)

		adminID, err := admins.ConsumeResetToken(ctx, "token-hash", []byte("$2a$10$newhash"))
		assert.NoError(err)
		assert.Equal(admin.AdminID, adminID)

		// Consumed token cannot be used again.
		_, err = admins.ConsumeResetToken(ctx, "token-hash", []byte("$2a$10$another"))
		assert.ErrorIs(err, store.ErrResetTokenInvalid)
	})
}

func TestIntegration_SessionRotation(t *testing.T) {
	ctx := context.Background()
	admins, sessions, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	assert := require.New(t)

	admin := newIntegrationAdmin()
	assert.NoError(admins.Create(ctx, admin))

	now := time.Now().UTC().Truncate(time.Millisecond)
	session := &models.RefreshSession{
		SessionID:       uuid.Must(uuid.NewV7()),
		AdminID:         admin.AdminID,
		CurrentTokenID:  uuid.Must(uuid.NewV7()),
		CreatedAt:       now,
		ExpiresAt:       now.Add(10 * time.Hour),
		LastRefreshedAt: now,
		UserAgent:       "integration-test",
		IPAddress:       "10.0.0.1",
	}
	assert.NoError(sessions.Create(ctx, session))

	t.Run("rotate with current token", func(t *testing.T) {
		next := uuid.Must(uuid.NewV7())
		rotated, err := sessions.Rotate(ctx, session.SessionID, session.CurrentTokenID, next, time.Now())
		assert.NoError(err)
		assert.Equal(next, rotated.CurrentTokenID)

		// Rotation did not move the absolute expiry.
		assert.WithinDuration(session.ExpiresAt, rotated.ExpiresAt, time.Millisecond)

		session.CurrentTokenID = next
	})

	t.Run("reuse revokes whole session", func(t *testing.T) {
		stale := uuid.Must(uuid.NewV7())
		_, err := sessions.Rotate(ctx, session.SessionID, stale, uuid.Must(uuid.NewV7()), time.Now())
		assert.ErrorIs(err, store.ErrTokenReused)

		// Even the current token is dead now.
		_, err = sessions.Rotate(ctx, session.SessionID, session.CurrentTokenID, uuid.Must(uuid.NewV7()), time.Now())
		assert.ErrorIs(err, store.ErrSessionNotFound)
	})

	t.Run("expired sessions", func(t *testing.T) {
		expired := &models.RefreshSession{
			SessionID:       uuid.Must(uuid.NewV7()),
			AdminID:         admin.AdminID,
			CurrentTokenID:  uuid.Must(uuid.NewV7()),
			CreatedAt:       now.Add(-11 * time.Hour),
			ExpiresAt:       now.Add(-time.Hour),
			LastRefreshedAt: now.Add(-2 * time.Hour),
		}
		assert.NoError(sessions.Create(ctx, expired))

		_, err := sessions.Rotate(ctx, expired.SessionID, expired.CurrentTokenID, uuid.Must(uuid.NewV7()), time.Now())
		assert.ErrorIs(err, store.ErrSessionExpired)

		live := &models.RefreshSession{
			SessionID:       uuid.Must(uuid.NewV7()),
			AdminID:         admin.AdminID,
			CurrentTokenID:  uuid.Must(uuid.NewV7()),
			CreatedAt:       now,
			ExpiresAt:       now.Add(10 * time.Hour),
			LastRefreshedAt: now,
		}
		assert.NoError(sessions.Create(ctx, live))

		expired2 := &models.RefreshSession{
			SessionID:       uuid.Must(uuid.NewV7()),
			AdminID:         admin.AdminID,
			CurrentTokenID:  uuid.Must(uuid.NewV7()),
			CreatedAt:       now.Add(-11 * time.Hour),
			ExpiresAt:       now.Add(-time.Minute),
			LastRefreshedAt: now.Add(-time.Hour),
		}
		assert.NoError(sessions.Create(ctx, expired2))

		n, err := sessions.DeleteExpired(ctx)
		assert.NoError(err)
		assert.Equal(1, n)

		count, err := sessions.CountActive(ctx)
		assert.NoError(err)
		assert.Equal(1, count)
	})
}
