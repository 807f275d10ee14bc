package commands

import (
	"context"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/taplinks-cli/internal/model"
	"github.com/florianilch/taplinks-cli/internal/output"
)

func servicesCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:   "services",
		Usage:  "Manage the services you offer",
		Before: e.signedIn,
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List offered services",
				Action: func(ctx context.Context, _ *cli.Command) error {
					services, err := e.app.Services().Vendor.List(ctx)
					if err != nil {
						return err
					}
					renderServices(e.printer, services)
					return nil
				},
			},
			{
				Name:      "add",
				Usage:     "Offer a new service",
				ArgsUsage: "NAME",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					input := model.AddServiceInput{ServiceName: joinArgs(cmd)}
					if err := validate.Struct(input); err != nil {
						return err
					}
					services, err := e.app.Services().Vendor.Add(ctx, input.ServiceName)
					if err != nil {
						return err
					}
					e.printer.Success("Added %q", input.ServiceName)
					renderServices(e.printer, services)
					return nil
				},
			},
			{
				Name:      "rename",
				Usage:     "Rename an offered service",
				ArgsUsage: "OLD NEW",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if cmd.Args().Len() != 2 {
						return usageError("expected the current and the new service name", `Quote names with spaces, e.g. taplinks services rename "AC Repair" "AC Maintenance"`)
					}
					input := model.UpdateServiceInput{
						OldServiceName: strings.TrimSpace(cmd.Args().Get(0)),
						NewServiceName: strings.TrimSpace(cmd.Args().Get(1)),
					}
					if err := validate.Struct(input); err != nil {
						return err
					}
					services, err := e.app.Services().Vendor.Rename(ctx, input.OldServiceName, input.NewServiceName)
					if err != nil {
						return err
					}
					e.printer.Success("Renamed %q to %q", input.OldServiceName, input.NewServiceName)
					renderServices(e.printer, services)
					return nil
				},
			},
			{
				Name:      "delete",
				Usage:     "Stop offering a service",
				ArgsUsage: "NAME",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					name := joinArgs(cmd)
					if name == "" {
						return usageError("service name required", "")
					}
					services, err := e.app.Services().Vendor.Delete(ctx, name)
					if err != nil {
						return err
					}
					e.printer.Success("Removed %q", name)
					renderServices(e.printer, services)
					return nil
				},
			},
		},
	}
}

// joinArgs lets unquoted multi-word service names through.
func joinArgs(cmd *cli.Command) string {
	return strings.TrimSpace(strings.Join(cmd.Args().Slice(), " "))
}

func renderServices(p *output.Printer, services []string) {
	if len(services) == 0 {
		p.Info("No services offered")
		return
	}
	for _, s := range services {
		p.Print("  %s", s)
	}
}
