package main

import (
	"context"

	"github.com/ElvinaPau/pathlab-admin/cmd/server/internal/commands"
	"github.com/alecthomas/kong"
)

var (
	version = "dev"
	cli     struct {
		Dev     bool `help:"Enable development mode (console logging)."`
		Version kong.VersionFlag
		Server  commands.ServerCmd `cmd:"" help:"Start the admin API server"`
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
