package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/taplinks-cli/internal/app"
	"github.com/florianilch/taplinks-cli/internal/observability"
	"github.com/florianilch/taplinks-cli/internal/output"
)

// env holds what every subcommand needs. It is filled in by the root
// command's Before hook.
type env struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	// environ lists the environment configuration is read from.
	environ func() []string

	cfg     *app.Config
	app     *app.App
	printer *output.Printer

	shutdownTelemetry observability.ShutdownFunc
}

// Execute runs the root command with the given context and arguments.
func Execute(ctx context.Context, args []string) error {
	e := &env{stdin: os.Stdin, stdout: os.Stdout, stderr: os.Stderr, environ: os.Environ}
	return newRootCommand(e).Run(ctx, args)
}

func newRootCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:      "taplinks",
		Usage:     "Manage Taplinks payment links",
		Writer:    e.stdout,
		ErrWriter: e.stderr,
		Flags:     globalFlags(),
		Before:    e.setup,
		After:     e.teardown,
		Commands: []*cli.Command{
			loginCommand(e),
			logoutCommand(e),
			statusCommand(e),
			paymentsCommand(e),
			servicesCommand(e),
			analyticsCommand(e),
			sandboxCommand(e),
		},
	}
}

// globalFlags mirror the configuration; see extractAndTransformFlags.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "path to config file",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "log level (debug|info|warn|error)",
			Value: slog.LevelInfo.String(),
		},
		&cli.StringFlag{
			Name:  "log-format",
			Usage: "log format (text|json)",
			Value: string(app.DefaultConfigLogFormat),
		},
		&cli.StringFlag{
			Name:  "telemetry--exporter",
			Usage: "log exporter (none|stdout|otlp-http|otlp-grpc)",
			Value: app.DefaultConfigTelemetryExporter,
		},
		&cli.StringFlag{
			Name:  "api--base-url",
			Usage: "API base URL",
			Value: app.DefaultConfigAPIBaseURL,
		},
		&cli.StringFlag{
			Name:  "api--endpoint",
			Usage: "host that receives credentials (defaults to the base URL host)",
		},
		&cli.DurationFlag{
			Name:  "api--timeout",
			Usage: "API request timeout",
			Value: app.DefaultConfigAPITimeout,
		},
		&cli.StringFlag{
			Name:  "session--storage",
			Usage: "session storage (file|keyring|env)",
			Value: string(app.DefaultConfigSessionStorage),
		},
		&cli.StringFlag{
			Name:  "session--file",
			Usage: "session file for file storage",
		},
		&cli.StringFlag{
			Name:  "metrics--file",
			Usage: "write client metrics in Prometheus text format to this file on exit",
		},
		&cli.BoolFlag{
			Name:  "no-color",
			Usage: "disable colored output",
		},
	}
}

// setup loads the configuration, installs logging and wires the app.
func (e *env) setup(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	e.printer = output.NewPrinter(e.stdout, e.stderr, !cmd.Bool("no-color") && output.ResolveColors())

	cfg, err := loadConfig(cmd.String("config"), cmd, e.environ)
	if err != nil {
		return ctx, &output.CLIError{
			Summary:    "Invalid configuration",
			Detail:     err.Error(),
			Suggestion: "Check the config file, TAPLINKS_* environment variables and flags",
			ExitCode:   output.ExitConfigError,
			Err:        err,
		}
	}
	e.cfg = cfg

	// Set up observability before creating app
	shutdown, err := observability.Instrument(ctx, cfg.LogLevel, string(cfg.LogFormat), cfg.Telemetry.Exporter)
	if err != nil {
		return ctx, fmt.Errorf("failed to set up observability layer: %w", err)
	}
	e.shutdownTelemetry = shutdown

	application, err := app.New(cfg)
	if err != nil {
		return ctx, fmt.Errorf("failed to create app: %w", err)
	}
	e.app = application

	return ctx, nil
}

// teardown writes metrics and flushes pending log records.
func (e *env) teardown(ctx context.Context, _ *cli.Command) error {
	if e.app != nil {
		if err := e.app.Close(); err != nil {
			slog.WarnContext(ctx, "failed to write metrics", "error", err)
		}
	}
	if e.shutdownTelemetry != nil {
		timeout := app.DefaultConfigShutdownTimeout
		if e.cfg != nil {
			timeout = e.cfg.Shutdown.Timeout
		}
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		if err := e.shutdownTelemetry(shutdownCtx); err != nil {
			fmt.Fprintf(e.stderr, "failed to flush logs: %v\n", err)
		}
	}
	return nil
}
