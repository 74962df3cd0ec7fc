package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/ElvinaPau/pathlab-admin/internal/session"
)

type Globals struct {
	Dev     bool
	Version string
}

// stateDirName is the directory under the user config dir holding the
// persisted session state and cookies.
const stateDirName = "pathlab-admin"

func resolveStateDir(dir string) (string, error) {
	if dir != "" {
		return dir, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate user config dir: %w", err)
	}
	return filepath.Join(base, stateDirName), nil
}

// cliSession bundles a session manager with the file-backed state it needs
// to survive between CLI invocations: the credential store and the refresh
// cookie jar.
type cliSession struct {
	Manager *session.Manager

	jar        http.CookieJar
	baseURL    *url.URL
	cookieFile string
}

// persistedCookie is the on-disk form of one cookie. Only name and value
// survive a round trip through a cookie jar; the server re-validates
// everything else.
type persistedCookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// openSession builds a manager whose refresh cookie and credentials are
// persisted under stateDir, so login state carries across invocations.
func openSession(server, stateDir string) (*cliSession, error) {
	dir, err := resolveStateDir(stateDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create state dir: %w", err)
	}

	baseURL, err := url.Parse(server)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	cookieFile := filepath.Join(dir, "cookies.json")
	if err := loadCookies(jar, baseURL, cookieFile); err != nil {
		return nil, err
	}

	client, err := session.NewClient(server, &http.Client{
		Jar:     jar,
		Timeout: 30 * time.Second,
	})
	if err != nil {
		return nil, err
	}

	cfg := session.Config{}
	cfg.ApplyDefaults()
	store := session.NewStore(filepath.Join(dir, "session.json"), cfg.AbsoluteCap)

	mgr, err := session.NewManager(cfg, client, store, &cliNotifier{})
	if err != nil {
		return nil, err
	}

	return &cliSession{
		Manager:    mgr,
		jar:        jar,
		baseURL:    baseURL,
		cookieFile: cookieFile,
	}, nil
}

// Close stops the manager and writes the refresh cookie back to disk. The
// cookie value rotates on every refresh, so this must run after any command
// that talked to the server.
func (s *cliSession) Close() error {
	s.Manager.Close()
	return saveCookies(s.jar, s.baseURL, s.cookieFile)
}

func loadCookies(jar http.CookieJar, baseURL *url.URL, path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read cookie file: %w", err)
	}
	var saved []persistedCookie
	if err := json.Unmarshal(data, &saved); err != nil {
		// Corrupt cookie file is equivalent to not being logged in.
		return nil
	}
	cookies := make([]*http.Cookie, 0, len(saved))
	for _, c := range saved {
		cookies = append(cookies, &http.Cookie{Name: c.Name, Value: c.Value})
	}
	jar.SetCookies(baseURL, cookies)
	return nil
}

func saveCookies(jar http.CookieJar, baseURL *url.URL, path string) error {
	cookies := jar.Cookies(baseURL)
	saved := make([]persistedCookie, 0, len(cookies))
	for _, c := range cookies {
		saved = append(saved, persistedCookie{Name: c.Name, Value: c.Value})
	}
	if len(saved) == 0 {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}
	data, err := json.Marshal(saved)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// cliNotifier prints session lifecycle events to stderr. A CLI invocation is
// short-lived, so these mostly surface expiry during long-running commands.
type cliNotifier struct{}

func (n *cliNotifier) SessionWarning(remaining time.Duration) {
	fmt.Fprintf(os.Stderr, "Session expires in %s unless there is activity\n", remaining.Round(time.Second))
}

func (n *cliNotifier) SessionExpired(reason session.ExpireReason) {
	fmt.Fprintf(os.Stderr, "Session expired (%s), log in again\n", reason)
}

func (n *cliNotifier) SessionResumed() {
	fmt.Fprintln(os.Stderr, "Session resumed")
}
