package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/ElvinaPau/pathlab-admin/internal/session"
)

type LogoutCmd struct {
	Server   string `help:"Server URL" default:"https://localhost" env:"PATHLAB_SERVER"`
	StateDir string `help:"Directory for persisted session state" default:"" env:"PATHLAB_STATE_DIR"`
}

func (l *LogoutCmd) Run(ctx context.Context, globals *Globals) (err error) {
	cs, err := openSession(l.Server, l.StateDir)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := cs.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	_, err = cs.Manager.Restore(ctx)
	switch {
	case errors.Is(err, session.ErrNotLoggedIn):
		fmt.Println("Not logged in")
		return nil
	case errors.Is(err, session.ErrAuthExpired):
		// Local state is already cleared; nothing left to revoke.
		fmt.Println("Session had already expired")
		return nil
	case err != nil:
		return fmt.Errorf("failed to restore session: %w", err)
	}

	if err := cs.Manager.Logout(ctx); err != nil && !errors.Is(err, session.ErrNotLoggedIn) {
		return fmt.Errorf("logout failed: %w", err)
	}

	fmt.Println("Logged out")
	return nil
}
