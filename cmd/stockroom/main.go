package main

import (
	"context"

	"github.com/alecthomas/kong"

	"github.com/platinummonkey/stockroom/cmd/stockroom/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		EnvFile  string `help:"Dotenv file loaded before reading configuration." default:".env" type:"path"`
		LogLevel string `help:"Override STOCKROOM_LOG_LEVEL (debug, info, warn, error)."`
		Version  kong.VersionFlag

		Serve  commands.ServeCmd  `cmd:"" help:"Run the inventory API server."`
		Seed   commands.SeedCmd   `cmd:"" help:"Provision organizations, users, warehouses and items from a YAML file."`
		Policy commands.PolicyCmd `cmd:"" help:"Inspect role policies."`
		Audit  commands.AuditCmd  `cmd:"" help:"Work with the audit trail."`
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Name("stockroom"),
		kong.Description("Multi-tenant inventory service with role-based access control."),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{EnvFile: cli.EnvFile, LogLevel: cli.LogLevel, Version: version})
	cmd.FatalIfErrorf(err)
}
