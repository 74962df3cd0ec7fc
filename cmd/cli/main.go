package main

import (
	"context"

	"github.com/ElvinaPau/pathlab-admin/cmd/cli/internal/commands"
	"github.com/alecthomas/kong"
)

var (
	version = "dev"
	cli     struct {
		Login   commands.LoginCmd  `cmd:"" help:"Log in to the admin API"`
		Whoami  commands.WhoamiCmd `cmd:"" help:"Show the logged-in admin"`
		Logout  commands.LogoutCmd `cmd:"" help:"Log out and revoke the session"`
		Status  commands.StatusCmd `cmd:"" help:"Show persisted session state"`
		Dev     bool               `help:"Enable development mode (console logging)."`
		Version kong.VersionFlag
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Dev: cli.Dev, Version: version})
	cmd.FatalIfErrorf(err)
}
