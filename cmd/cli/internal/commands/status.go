package commands

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/ElvinaPau/pathlab-admin/internal/session"
)

type StatusCmd struct {
	StateDir string `help:"Directory for persisted session state" default:"" env:"PATHLAB_STATE_DIR"`
}

// Run inspects the persisted session without contacting the server, so it
// reports what is on disk even when the network is down.
func (s *StatusCmd) Run(ctx context.Context, globals *Globals) error {
	dir, err := resolveStateDir(s.StateDir)
	if err != nil {
		return err
	}

	cfg := session.Config{}
	cfg.ApplyDefaults()

	now := time.Now()
	store := session.NewStore(filepath.Join(dir, "session.json"), cfg.AbsoluteCap)
	sess := store.Restore(now)
	if sess == nil {
		fmt.Println("No active session")
		return nil
	}

	capDeadline := sess.SessionStart.Add(cfg.AbsoluteCap)
	fmt.Printf("Logged in as   %s <%s>\n", sess.Identity.FullName, sess.Identity.Email)
	fmt.Printf("Session start  %s\n", sess.SessionStart.Local().Format(time.RFC1123))
	fmt.Printf("Last activity  %s\n", sess.LastActivity.Local().Format(time.RFC1123))
	fmt.Printf("Session cap    %s (in %s)\n", capDeadline.Local().Format(time.RFC1123), time.Until(capDeadline).Round(time.Minute))
	if sess.ExpiresAt.After(now) {
		fmt.Printf("Access token   valid for %s\n", sess.ExpiresAt.Sub(now).Round(time.Second))
	} else {
		fmt.Println("Access token   expired (renewed on next use)")
	}
	return nil
}
