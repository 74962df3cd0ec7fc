package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/ElvinaPau/pathlab-admin/internal/session"
)

type WhoamiCmd struct {
	Server   string `help:"Server URL" default:"https://localhost" env:"PATHLAB_SERVER"`
	StateDir string `help:"Directory for persisted session state" default:"" env:"PATHLAB_STATE_DIR"`
}

func (w *WhoamiCmd) Run(ctx context.Context, globals *Globals) (err error) {
	cs, err := openSession(w.Server, w.StateDir)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := cs.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	id, err := cs.Manager.Restore(ctx)
	switch {
	case errors.Is(err, session.ErrNotLoggedIn):
		return errors.New("not logged in")
	case errors.Is(err, session.ErrAuthExpired):
		return errors.New("session expired, log in again")
	case err != nil:
		return fmt.Errorf("failed to restore session: %w", err)
	}

	fmt.Printf("%s <%s>\n", id.FullName, id.Email)
	if id.Department != "" {
		fmt.Printf("Department: %s\n", id.Department)
	}
	return nil
}
