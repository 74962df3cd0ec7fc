package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

// Notifier receives lifecycle notifications. Implementations render them to
// the user: a warning countdown, an expiry notice, a resumed banner.
type Notifier interface {
	// SessionWarning fires when the idle warning window opens, with the time
	// remaining before logout.
	SessionWarning(remaining time.Duration)

	// SessionExpired fires once when the session ends, with the policy that
	// ended it. Local credentials are already cleared when it fires.
	SessionExpired(reason ExpireReason)

	// SessionResumed fires after a successful stay-logged-in renewal.
	SessionResumed()
}

// Manager drives the whole client session lifecycle: login, persisted
// restore, activity tracking, idle and absolute expiry, proactive renewal,
// and logout. One manager owns at most one live session.
type Manager struct {
	cfg    Config
	client *Client
	store  *Store
	sched  *Scheduler
	coord  *Coordinator

	notifier Notifier
	httpc    *http.Client

	mu      sync.Mutex
	cancels []func()
}

// NewManager wires a manager around an issuer client and a credential store.
// notifier may be nil when no UI wants lifecycle events.
func NewManager(cfg Config, client *Client, store *Store, notifier Notifier) (*Manager, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if client == nil {
		return nil, errors.New("issuer client is required")
	}
	if store == nil {
		return nil, errors.New("session store is required")
	}

	m := &Manager{
		cfg:      cfg,
		client:   client,
		store:    store,
		notifier: notifier,
	}

	m.coord = NewCoordinator(m.renew, m.renewFailed)
	m.sched = NewScheduler(cfg, SchedulerHooks{
		OnWarning:          m.handleWarning,
		OnExpire:           m.handleExpire,
		OnProactiveRefresh: m.handleProactiveRefresh,
	})
	m.httpc = &http.Client{
		Transport: NewTransport(NewCachingBaseTransport(), store, m.coord),
		Timeout:   30 * time.Second,
	}
	return m, nil
}

// Login authenticates with the server and starts a new session. Any previous
// session is replaced.
func (m *Manager) Login(ctx context.Context, email, password string) (*Identity, error) {
	res, err := m.client.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}

	issuedAt, expiresAt, err := tokenWindow(res.Token)
	if err != nil {
		return nil, fmt.Errorf("server returned an unreadable access token: %w", err)
	}

	now := time.Now()
	sess := Session{
		AccessToken:  res.Token,
		Identity:     res.Admin,
		IssuedAt:     issuedAt,
		ExpiresAt:    expiresAt,
		SessionStart: now,
		LastActivity: now,
	}
	if err := m.store.Set(sess); err != nil {
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}

	m.sched.Start(now, now, issuedAt, expiresAt.Sub(issuedAt))

	log.Info().Str("email", res.Admin.Email).Msg("logged in")
	return &res.Admin, nil
}

// Restore resumes a persisted session after a restart. The persisted access
// token is assumed stale: a renewal is performed immediately, and only a
// session the server still accepts is resumed. Returns ErrNotLoggedIn when
// nothing restorable exists and ErrAuthExpired when the server refuses the
// renewal.
func (m *Manager) Restore(ctx context.Context) (*Identity, error) {
	sess := m.store.Restore(time.Now())
	if sess == nil {
		return nil, ErrNotLoggedIn
	}

	token, err := m.client.Refresh(ctx)
	if err != nil {
		if errors.Is(err, ErrRefreshFailed) {
			_ = m.store.Clear()
			return nil, fmt.Errorf("%w: persisted session no longer valid", ErrAuthExpired)
		}
		return nil, err
	}

	issuedAt, expiresAt, err := tokenWindow(token)
	if err != nil {
		return nil, fmt.Errorf("server returned an unreadable access token: %w", err)
	}
	if err := m.store.UpdateAccessToken(token, issuedAt, expiresAt); err != nil {
		return nil, err
	}

	m.sched.Start(sess.SessionStart, sess.LastActivity, issuedAt, expiresAt.Sub(issuedAt))

	log.Info().
		Str("email", sess.Identity.Email).
		Time("session_start", sess.SessionStart).
		Msg("session restored")
	return &sess.Identity, nil
}

// Logout ends the session. The server is told to revoke the refresh
// credential, but local state is cleared even if that call fails.
func (m *Manager) Logout(ctx context.Context) error {
	if m.store.Get() == nil {
		return ErrNotLoggedIn
	}

	m.sched.Stop()
	if err := m.client.Logout(ctx); err != nil {
		log.Warn().Err(err).Msg("server-side logout failed, clearing local session anyway")
	}
	if err := m.store.Clear(); err != nil {
		return err
	}

	log.Info().Msg("logged out")
	return nil
}

// StayLoggedIn answers the idle warning: it renews the credential, counts as
// activity, and returns the session to the active state. Outside the warning
// window it returns ErrNoWarningActive.
func (m *Manager) StayLoggedIn(ctx context.Context) error {
	if m.sched.State() != StateWarning {
		return ErrNoWarningActive
	}

	if _, err := m.coord.Refresh(ctx); err != nil {
		return err
	}

	now := time.Now()
	m.store.Touch(now)
	m.sched.ResumeActive(now)

	if m.notifier != nil {
		m.notifier.SessionResumed()
	}
	return nil
}

// AcknowledgeExpiry dismisses the expired notice, moving to the logged-out
// state. No-op unless the session is expired.
func (m *Manager) AcknowledgeExpiry() {
	if m.sched.State() != StateExpired {
		return
	}
	m.sched.Stop()
}

// Track subscribes the manager to an activity source for the lifetime of the
// manager. Activity keeps an active session alive and is deliberately
// ignored during a warning: only an explicit StayLoggedIn dismisses it.
func (m *Manager) Track(src Source) {
	cancel := src.Subscribe(m.recordActivity)

	m.mu.Lock()
	m.cancels = append(m.cancels, cancel)
	m.mu.Unlock()
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	return m.sched.State()
}

// Identity returns the logged-in admin, or ErrNotLoggedIn.
func (m *Manager) Identity() (*Identity, error) {
	sess := m.store.Get()
	if sess == nil {
		return nil, ErrNotLoggedIn
	}
	return &sess.Identity, nil
}

// HTTPClient returns a client for authenticated API calls. It attaches the
// current access token to every request and transparently renews once when
// the server rejects it.
func (m *Manager) HTTPClient() *http.Client {
	return m.httpc
}

// Close stops all timers and activity subscriptions without logging out. The
// persisted session survives for a later Restore.
func (m *Manager) Close() {
	m.mu.Lock()
	cancels := m.cancels
	m.cancels = nil
	m.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	m.sched.Stop()
}

// renew is the coordinator's renewal function.
func (m *Manager) renew(ctx context.Context) (string, error) {
	token, err := m.client.Refresh(ctx)
	if err != nil {
		return "", err
	}

	issuedAt, expiresAt, err := tokenWindow(token)
	if err != nil {
		return "", fmt.Errorf("server returned an unreadable access token: %w", err)
	}
	if err := m.store.UpdateAccessToken(token, issuedAt, expiresAt); err != nil {
		return "", err
	}
	m.sched.RescheduleRefresh(issuedAt, expiresAt.Sub(issuedAt))

	log.Debug().Time("expires_at", expiresAt).Msg("access token renewed")
	return token, nil
}

// renewFailed runs after a failed renewal flight. Only a server rejection
// ends the session; a transient network failure leaves the timers running so
// the next proactive attempt can succeed.
func (m *Manager) renewFailed(err error) {
	if errors.Is(err, ErrRefreshFailed) {
		m.sched.ForceExpire(ExpireRefreshFailed)
	}
}

func (m *Manager) recordActivity() {
	if m.sched.State() != StateActive {
		return
	}
	now := time.Now()
	m.store.Touch(now)
	m.sched.ResetIdle(now)
}

func (m *Manager) handleWarning(remaining time.Duration) {
	if m.notifier != nil {
		m.notifier.SessionWarning(remaining)
	}
}

// handleExpire clears local credentials and tells the server to revoke the
// refresh credential, then notifies. Runs from a timer goroutine.
func (m *Manager) handleExpire(reason ExpireReason) {
	if err := m.store.Clear(); err != nil {
		log.Warn().Err(err).Msg("failed to clear expired session")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.client.Logout(ctx); err != nil {
		log.Debug().Err(err).Msg("server-side revocation after expiry failed")
	}

	log.Info().Str("reason", string(reason)).Msg("session expired")
	if m.notifier != nil {
		m.notifier.SessionExpired(reason)
	}
}

func (m *Manager) handleProactiveRefresh() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := m.coord.Refresh(ctx); err != nil {
		log.Warn().Err(err).Msg("proactive credential renewal failed")
	}
}

// tokenWindow reads the validity window from the access token's own claims.
// The client has no verification key and needs none: the server re-verifies
// the signature on every request, the client only schedules from the times.
func tokenWindow(token string) (issuedAt, expiresAt time.Time, err error) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, time.Time{}, err
	}
	if claims.IssuedAt == nil || claims.ExpiresAt == nil {
		return time.Time{}, time.Time{}, errors.New("token missing iat or exp claim")
	}
	return claims.IssuedAt.Time, claims.ExpiresAt.Time, nil
}
