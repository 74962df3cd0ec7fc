package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/ElvinaPau/pathlab-admin/internal/session"
)

type LoginCmd struct {
	Server   string `help:"Server URL" default:"https://localhost" env:"PATHLAB_SERVER"`
	Email    string `help:"Admin account email" required:""`
	Password string `help:"Password (prompted when not set)" env:"PATHLAB_PASSWORD"`
	StateDir string `help:"Directory for persisted session state" default:"" env:"PATHLAB_STATE_DIR"`
}

func (l *LoginCmd) Run(ctx context.Context, globals *Globals) (err error) {
	password := l.Password
	if password == "" {
		password, err = promptPassword()
		if err != nil {
			return err
		}
	}

	cs, err := openSession(l.Server, l.StateDir)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := cs.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	id, err := cs.Manager.Login(ctx, l.Email, password)
	switch {
	case errors.Is(err, session.ErrAuthFailed):
		return errors.New("login failed: wrong email or password")
	case errors.Is(err, session.ErrAccountNotApproved):
		return errors.New("login failed: account is not approved")
	case err != nil:
		return fmt.Errorf("login failed: %w", err)
	}

	fmt.Printf("Logged in as %s <%s>\n", id.FullName, id.Email)
	return nil
}

func promptPassword() (string, error) {
	fmt.Fprint(os.Stderr, "Password: ")
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	password := strings.TrimSpace(string(raw))
	if password == "" {
		return "", errors.New("password is required")
	}
	return password, nil
}
