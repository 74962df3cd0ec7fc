package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/ElvinaPau/pathlab-admin/internal/logger"
	"github.com/ElvinaPau/pathlab-admin/internal/mailer"
	"github.com/ElvinaPau/pathlab-admin/internal/server"
	"github.com/ElvinaPau/pathlab-admin/internal/store"
	postgresstore "github.com/ElvinaPau/pathlab-admin/internal/store/postgres"
	"github.com/ElvinaPau/pathlab-admin/internal/telemetry"
	"github.com/ElvinaPau/pathlab-admin/internal/tokens"
)

type ServerCmd struct {
	// Server configuration
	Listen string `help:"HTTP server listen address" default:"0.0.0.0:8443" env:"PATHLAB_LISTEN"`
	Cert   string `help:"path to TLS cert file" default:"" env:"PATHLAB_TLS_CERT"`
	Key    string `help:"path to TLS key file" default:"" env:"PATHLAB_TLS_KEY"`

	// CORS configuration
	CORSOrigins []string `help:"allowed CORS origins for dashboard requests" default:"https://localhost" env:"PATHLAB_CORS_ORIGINS"`

	// Public base URL used in emailed password reset links
	BaseURL string `help:"public base URL of the dashboard" default:"https://localhost" env:"PATHLAB_BASE_URL"`

	// Token configuration
	AccessSecret    string        `help:"secret key for HMAC signing of access tokens" env:"PATHLAB_ACCESS_SECRET"`
	RefreshSecret   string        `help:"secret key for HMAC signing of refresh tokens" env:"PATHLAB_REFRESH_SECRET"`
	AccessTTL       time.Duration `help:"access token lifetime" default:"15m" env:"PATHLAB_ACCESS_TTL"`
	SessionLifetime time.Duration `help:"absolute refresh session lifetime" default:"10h" env:"PATHLAB_SESSION_LIFETIME"`
	InsecureCookies bool          `help:"drop the Secure flag on the refresh cookie (development only)" default:"false" env:"PATHLAB_INSECURE_COOKIES"`

	// Development and operational modes
	SeedFile      string        `help:"YAML file of admin accounts to seed on startup" default:"" env:"PATHLAB_SEED_FILE"`
	SweepInterval time.Duration `help:"how often expired refresh sessions are purged" default:"10m" env:"PATHLAB_SWEEP_INTERVAL"`
	Tracing       bool          `help:"enable tracing" default:"false" env:"PATHLAB_TRACING"`

	// Store configuration
	StoreType     string             `help:"store type (memory or postgres)" default:"memory" env:"PATHLAB_STORE_TYPE" enum:"memory,postgres"`
	PostgresStore PostgresStoreFlags `embed:"" prefix:"postgres-"`
}

func (c *ServerCmd) Validate() error {
	if len(c.AccessSecret) < 32 {
		return errors.New("access token secret must be at least 32 bytes (--access-secret or PATHLAB_ACCESS_SECRET)")
	}
	if len(c.RefreshSecret) < 32 {
		return errors.New("refresh token secret must be at least 32 bytes (--refresh-secret or PATHLAB_REFRESH_SECRET)")
	}
	if c.AccessSecret == c.RefreshSecret {
		return errors.New("access and refresh token secrets must differ")
	}
	if c.StoreType == "postgres" {
		return c.PostgresStore.Validate()
	}
	return nil
}

type PostgresStoreFlags struct {
	// Connection Configuration
	ConnString string `help:"PostgreSQL connection string" env:"POSTGRES_CONNECTION_STRING"`

	// Connection Pool Configuration
	MaxConns        int32 `help:"maximum number of connections in pool" default:"20"`
	MinConns        int32 `help:"minimum number of connections in pool" default:"5"`
	MaxConnLifetime int32 `help:"maximum connection lifetime in seconds" default:"3600"`
	MaxConnIdleTime int32 `help:"maximum connection idle time in seconds" default:"1800"`

	// Migration Configuration
	AutoMigrate bool `help:"run database migrations on startup" default:"false" env:"PATHLAB_POSTGRES_AUTO_MIGRATE"`
}

func (s *PostgresStoreFlags) Validate() error {
	if s.ConnString == "" {
		return errors.New("PostgreSQL connection string is required (--postgres-conn-string or POSTGRES_CONNECTION_STRING)")
	}
	return nil
}

func (c *ServerCmd) Run(globals *Globals) error {
	log := logger.Setup(globals.Dev)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("version", globals.Version).Bool("dev", globals.Dev).Msg("Starting server")

	// Setup telemetry if enabled
	if c.Tracing {
		log.Info().Msg("Tracing is enabled")
		shutdown, err := telemetry.InitTelemetry(ctx, "pathlab-admin-server", globals.Version)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics")
			shutdown = func(ctx context.Context) error { return nil }
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Failed to shutdown telemetry")
			}
		}()
	}

	// Create stores based on store type
	var (
		admins   store.AdminStore
		sessions store.SessionStore
	)

	switch c.StoreType {
	case "postgres":
		poolCfg := &postgresstore.PoolConfig{
			ConnString:      c.PostgresStore.ConnString,
			MaxConns:        c.PostgresStore.MaxConns,
			MinConns:        c.PostgresStore.MinConns,
			MaxConnLifetime: c.PostgresStore.MaxConnLifetime,
			MaxConnIdleTime: c.PostgresStore.MaxConnIdleTime,
		}
		pool, err := postgresstore.NewPool(ctx, poolCfg)
		if err != nil {
			return fmt.Errorf("failed to create connection pool: %w", err)
		}
		defer pool.Close()

		if c.PostgresStore.AutoMigrate {
			if err := postgresstore.RunMigrations(ctx, pool); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
			log.Info().Msg("Database migrations completed")
		}

		admins = postgresstore.NewAdminStore(pool)
		sessions = postgresstore.NewSessionStore(pool)
		log.Info().Msg("Using PostgreSQL stores with shared connection pool")

	default:
		admins = store.NewMemoryAdminStore()
		sessions = store.NewMemorySessionStore()
		log.Info().Msg("Using in-memory stores")
	}

	// Seed admin accounts for development setups
	if c.SeedFile != "" {
		n, err := store.SeedAdmins(ctx, admins, c.SeedFile)
		if err != nil {
			return fmt.Errorf("failed to seed admin accounts: %w", err)
		}
		log.Info().Int("count", n).Str("file", c.SeedFile).Msg("Seeded admin accounts")
	}

	if err := telemetry.RegisterActiveSessions(sessions.CountActive); err != nil {
		log.Warn().Err(err).Msg("Failed to register active sessions gauge")
	}

	signer, err := tokens.NewSigner([]byte(c.AccessSecret), []byte(c.RefreshSecret), c.AccessTTL)
	if err != nil {
		return fmt.Errorf("failed to create token signer: %w", err)
	}

	// Purge expired refresh sessions in the background
	go sweepExpiredSessions(ctx, log, sessions, c.SweepInterval)

	srv := server.New(server.Config{
		SessionLifetime: c.SessionLifetime,
		BaseURL:         c.BaseURL,
		CORSOrigins:     c.CORSOrigins,
		SecureCookies:   !c.InsecureCookies,
	}, admins, sessions, signer, mailer.NewLogMailer())

	httpServer := configureHTTPServer(c.Listen, srv.Handler(log))

	errCh := make(chan error, 1)
	go func() {
		if c.Cert != "" && c.Key != "" {
			log.Info().Str("addr", c.Listen).Msg("Starting HTTPS server")
			errCh <- httpServer.ListenAndServeTLS(c.Cert, c.Key)
			return
		}
		log.Warn().Str("addr", c.Listen).Msg("Starting HTTP server without TLS")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}

// sweepExpiredSessions periodically deletes refresh sessions past their
// absolute expiry so reaped sessions cannot pile up in the store.
func sweepExpiredSessions(ctx context.Context, log zerolog.Logger, sessions store.SessionStore, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	metrics := telemetry.GetMetrics()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := sessions.DeleteExpired(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("Failed to purge expired sessions")
				continue
			}
			if n > 0 {
				metrics.SessionsExpiredTotal.Add(ctx, int64(n))
				log.Debug().Int("count", n).Msg("Purged expired sessions")
			}
		}
	}
}
