package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

// testIssuer is a minimal token issuer: HS256 access tokens in the body, an
// opaque rotating refresh credential in an httpOnly cookie.
type testIssuer struct {
	mu        sync.Mutex
	secret    []byte
	accessTTL time.Duration

	email    string
	password string
	approved bool

	refreshValue  string
	issued        int
	rotations     int
	logins        int
	refreshes     int
	logouts       int
	rejectRefresh bool
}

func newTestIssuer() *testIssuer {
	return &testIssuer{
		secret:    []byte("test-issuer-secret"),
		accessTTL: time.Hour,
		email:     "jordan@pathlab.example",
		password:  "correct horse battery staple",
		approved:  true,
	}
}

func (ti *testIssuer) server(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /login", ti.handleLogin)
	mux.HandleFunc("POST /refresh", ti.handleRefresh)
	mux.HandleFunc("POST /logout", ti.handleLogout)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func (ti *testIssuer) signAccess() string {
	now := time.Now()
	ti.issued++
	// NumericDate truncates to whole seconds, so a jti keeps tokens issued
	// within the same second from being byte-identical.
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "0191a2b3-0000-7000-8000-000000000001",
		ID:        fmt.Sprintf("%d", ti.issued),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ti.accessTTL)),
	})
	signed, err := token.SignedString(ti.secret)
	if err != nil {
		panic(err)
	}
	return signed
}

func (ti *testIssuer) setRefreshCookie(w http.ResponseWriter) {
	ti.rotations++
	ti.refreshValue = fmt.Sprintf("refresh-%d", ti.rotations)
	http.SetCookie(w, &http.Cookie{
		Name:     "refresh_token",
		Value:    ti.refreshValue,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

func (ti *testIssuer) handleLogin(w http.ResponseWriter, r *http.Request) {
	ti.mu.Lock()
	defer ti.mu.Unlock()
	ti.logins++

	var creds struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	_ = json.NewDecoder(r.Body).Decode(&creds)

	if creds.Email != ti.email {
		writeJSONStatus(w, http.StatusNotFound, map[string]string{"error": "User not found"})
		return
	}
	if !ti.approved {
		writeJSONStatus(w, http.StatusForbidden, map[string]string{"error": "Account not approved yet"})
		return
	}
	if creds.Password != ti.password {
		writeJSONStatus(w, http.StatusUnauthorized, map[string]string{"error": "Wrong password"})
		return
	}

	ti.setRefreshCookie(w)
	writeJSONStatus(w, http.StatusOK, map[string]any{
		"token": ti.signAccess(),
		"admin": map[string]string{
			"id":        "0191a2b3-0000-7000-8000-000000000001",
			"email":     ti.email,
			"full_name": "Jordan Lee",
		},
	})
}

func (ti *testIssuer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ti.mu.Lock()
	defer ti.mu.Unlock()
	ti.refreshes++

	cookie, err := r.Cookie("refresh_token")
	if ti.rejectRefresh || err != nil || ti.refreshValue == "" || cookie.Value != ti.refreshValue {
		writeJSONStatus(w, http.StatusUnauthorized, map[string]string{"error": "Invalid refresh token"})
		return
	}

	ti.setRefreshCookie(w)
	writeJSONStatus(w, http.StatusOK, map[string]string{"token": ti.signAccess()})
}

func (ti *testIssuer) handleLogout(w http.ResponseWriter, r *http.Request) {
	ti.mu.Lock()
	defer ti.mu.Unlock()
	ti.logouts++

	ti.refreshValue = ""
	writeJSONStatus(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

func writeJSONStatus(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// notifyRecorder collects lifecycle notifications for assertions.
type notifyRecorder struct {
	warnings chan time.Duration
	expiries chan ExpireReason
	resumes  chan struct{}
}

func newNotifyRecorder() *notifyRecorder {
	return &notifyRecorder{
		warnings: make(chan time.Duration, 8),
		expiries: make(chan ExpireReason, 8),
		resumes:  make(chan struct{}, 8),
	}
}

func (n *notifyRecorder) SessionWarning(remaining time.Duration) { n.warnings <- remaining }
func (n *notifyRecorder) SessionExpired(reason ExpireReason)     { n.expiries <- reason }
func (n *notifyRecorder) SessionResumed()                        { n.resumes <- struct{}{} }

func managerFixtures(t *testing.T, ti *testIssuer, cfg Config) (*Manager, *notifyRecorder, *Store) {
	t.Helper()

	srv := ti.server(t)
	client, err := NewClient(srv.URL, nil)
	require.NoError(t, err)

	store := NewStore(filepath.Join(t.TempDir(), "session.json"), cfg.AbsoluteCap)

	rec := newNotifyRecorder()
	m, err := NewManager(cfg, client, store, rec)
	require.NoError(t, err)
	t.Cleanup(m.Close)

	return m, rec, store
}

func compressedConfig() Config {
	return Config{
		IdleTimeout:   150 * time.Millisecond,
		WarningWindow: 50 * time.Millisecond,
		AbsoluteCap:   10 * time.Second,
		RefreshBuffer: time.Millisecond,
	}
}

func TestManagerLogin(t *testing.T) {
	assert := require.New(t)

	ti := newTestIssuer()
	m, _, store := managerFixtures(t, ti, Config{})

	identity, err := m.Login(context.Background(), ti.email, ti.password)
	assert.NoError(err)
	assert.Equal(ti.email, identity.Email)
	assert.Equal("Jordan Lee", identity.FullName)
	assert.Equal(StateActive, m.State())

	sess := store.Get()
	assert.NotNil(sess)
	assert.NotEmpty(sess.AccessToken)
	assert.False(sess.IssuedAt.IsZero())
	assert.True(sess.ExpiresAt.After(sess.IssuedAt))

	got, err := m.Identity()
	assert.NoError(err)
	assert.Equal(ti.email, got.Email)
}

func TestManagerLoginRejected(t *testing.T) {
	assert := require.New(t)

	ti := newTestIssuer()
	m, _, _ := managerFixtures(t, ti, Config{})

	_, err := m.Login(context.Background(), ti.email, "wrong")
	assert.ErrorIs(err, ErrAuthFailed)

	_, err = m.Login(context.Background(), "nobody@pathlab.example", "x")
	assert.ErrorIs(err, ErrAuthFailed)

	ti.mu.Lock()
	ti.approved = false
	ti.mu.Unlock()
	_, err = m.Login(context.Background(), ti.email, ti.password)
	assert.ErrorIs(err, ErrAccountNotApproved)

	assert.Equal(StateLoggedOut, m.State())
	_, err = m.Identity()
	assert.ErrorIs(err, ErrNotLoggedIn)
}

func TestManagerStayLoggedIn(t *testing.T) {
	assert := require.New(t)

	ti := newTestIssuer()
	m, rec, store := managerFixtures(t, ti, compressedConfig())

	// Outside the warning window there is nothing to answer.
	assert.ErrorIs(m.StayLoggedIn(context.Background()), ErrNoWarningActive)

	_, err := m.Login(context.Background(), ti.email, ti.password)
	assert.NoError(err)
	before := store.Get().AccessToken

	select {
	case <-rec.warnings:
	case <-time.After(2 * time.Second):
		t.Fatal("no idle warning fired")
	}
	assert.Equal(StateWarning, m.State())

	assert.NoError(m.StayLoggedIn(context.Background()))
	assert.Equal(StateActive, m.State())

	select {
	case <-rec.resumes:
	case <-time.After(time.Second):
		t.Fatal("no resume notification")
	}

	// The renewal rotated the access token.
	assert.NotEqual(before, store.Get().AccessToken)
}

func TestManagerIdleExpiry(t *testing.T) {
	assert := require.New(t)

	ti := newTestIssuer()
	m, rec, store := managerFixtures(t, ti, compressedConfig())

	_, err := m.Login(context.Background(), ti.email, ti.password)
	assert.NoError(err)

	select {
	case reason := <-rec.expiries:
		assert.Equal(ExpireIdle, reason)
	case <-time.After(2 * time.Second):
		t.Fatal("session did not expire")
	}

	assert.Equal(StateExpired, m.State())
	assert.Nil(store.Get())

	m.AcknowledgeExpiry()
	assert.Equal(StateLoggedOut, m.State())
}

func TestManagerActivityKeepsSessionAlive(t *testing.T) {
	assert := require.New(t)

	ti := newTestIssuer()
	m, rec, _ := managerFixtures(t, ti, compressedConfig())

	src := NewFuncSource()
	m.Track(src)

	_, err := m.Login(context.Background(), ti.email, ti.password)
	assert.NoError(err)

	deadline := time.Now().Add(400 * time.Millisecond)
	for time.Now().Before(deadline) {
		src.Signal()
		time.Sleep(20 * time.Millisecond)
	}

	assert.Equal(StateActive, m.State())
	assert.Empty(rec.warnings)
}

func TestManagerForcedLogoutOnRejectedRenewal(t *testing.T) {
	assert := require.New(t)

	ti := newTestIssuer()
	m, rec, store := managerFixtures(t, ti, compressedConfig())

	_, err := m.Login(context.Background(), ti.email, ti.password)
	assert.NoError(err)

	ti.mu.Lock()
	ti.rejectRefresh = true
	ti.mu.Unlock()

	select {
	case <-rec.warnings:
	case <-time.After(2 * time.Second):
		t.Fatal("no idle warning fired")
	}

	assert.ErrorIs(m.StayLoggedIn(context.Background()), ErrRefreshFailed)

	select {
	case reason := <-rec.expiries:
		assert.Equal(ExpireRefreshFailed, reason)
	case <-time.After(time.Second):
		t.Fatal("rejected renewal did not force a logout")
	}
	assert.Equal(StateExpired, m.State())
	assert.Nil(store.Get())
}

func TestManagerLogout(t *testing.T) {
	assert := require.New(t)

	ti := newTestIssuer()
	m, _, store := managerFixtures(t, ti, Config{})

	assert.ErrorIs(m.Logout(context.Background()), ErrNotLoggedIn)

	_, err := m.Login(context.Background(), ti.email, ti.password)
	assert.NoError(err)

	assert.NoError(m.Logout(context.Background()))
	assert.Equal(StateLoggedOut, m.State())
	assert.Nil(store.Get())

	ti.mu.Lock()
	assert.Equal(1, ti.logouts)
	assert.Empty(ti.refreshValue)
	ti.mu.Unlock()
}

func TestManagerRestore(t *testing.T) {
	assert := require.New(t)

	ti := newTestIssuer()
	srv := ti.server(t)

	client, err := NewClient(srv.URL, nil)
	assert.NoError(err)

	path := filepath.Join(t.TempDir(), "session.json")
	cfg := Config{}
	cfg.ApplyDefaults()

	first, err := NewManager(cfg, client, NewStore(path, cfg.AbsoluteCap), nil)
	assert.NoError(err)

	identity, err := first.Login(context.Background(), ti.email, ti.password)
	assert.NoError(err)
	first.Close()

	// A new manager over the same state file and cookie jar picks the
	// session back up, renewing the credential on the way in.
	second, err := NewManager(cfg, client, NewStore(path, cfg.AbsoluteCap), nil)
	assert.NoError(err)
	defer second.Close()

	restored, err := second.Restore(context.Background())
	assert.NoError(err)
	assert.Equal(identity.Email, restored.Email)
	assert.Equal(StateActive, second.State())

	ti.mu.Lock()
	assert.Equal(1, ti.refreshes)
	ti.mu.Unlock()
}

func TestManagerRestoreNothingPersisted(t *testing.T) {
	assert := require.New(t)

	ti := newTestIssuer()
	m, _, _ := managerFixtures(t, ti, Config{})

	_, err := m.Restore(context.Background())
	assert.ErrorIs(err, ErrNotLoggedIn)
}

func TestManagerRestoreRejectedByServer(t *testing.T) {
	assert := require.New(t)

	ti := newTestIssuer()
	srv := ti.server(t)

	client, err := NewClient(srv.URL, nil)
	assert.NoError(err)

	path := filepath.Join(t.TempDir(), "session.json")
	cfg := Config{}
	cfg.ApplyDefaults()

	first, err := NewManager(cfg, client, NewStore(path, cfg.AbsoluteCap), nil)
	assert.NoError(err)
	_, err = first.Login(context.Background(), ti.email, ti.password)
	assert.NoError(err)
	first.Close()

	// Revoked server-side while the client was away.
	ti.mu.Lock()
	ti.rejectRefresh = true
	ti.mu.Unlock()

	store := NewStore(path, cfg.AbsoluteCap)
	second, err := NewManager(cfg, client, store, nil)
	assert.NoError(err)
	defer second.Close()

	_, err = second.Restore(context.Background())
	assert.ErrorIs(err, ErrAuthExpired)
	assert.Nil(store.Get())
}
