package commands

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/taplinks-cli/internal/app"
)

func sandboxCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:  "sandbox",
		Usage: "Run a local fake Taplinks API for trying out the CLI",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "sandbox--host",
				Usage: "interface to listen on",
				Value: app.DefaultConfigSandboxHost,
			},
			&cli.IntFlag{
				Name:  "sandbox--port",
				Usage: "port to listen on",
				Value: app.DefaultConfigSandboxPort,
			},
		},
		// Flags override the sandbox section of the configuration
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.IsSet("sandbox--host") {
				e.cfg.Sandbox.Host = cmd.String("sandbox--host")
			}
			if cmd.IsSet("sandbox--port") {
				port := cmd.Int("sandbox--port")
				if port <= 0 || port > 65535 {
					return usageError("invalid --sandbox--port", "")
				}
				e.cfg.Sandbox.Port = uint16(port)
			}

			return e.app.RunSandbox(ctx, func(baseURL string) {
				e.printer.Success("Sandbox listening on %s", baseURL)
				e.printer.Field("Phone", e.cfg.Sandbox.Phone)
				e.printer.Field("Password", e.cfg.Sandbox.Password)
				e.printer.Info("Point the CLI at it with TAPLINKS_API__BASE_URL=%s", baseURL)
			})
		},
	}
}
