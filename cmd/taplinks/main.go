// Command taplinks manages Taplinks payment links from the terminal.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/florianilch/taplinks-cli/cmd/taplinks/commands"
	"github.com/florianilch/taplinks-cli/internal/output"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := commands.Execute(ctx, os.Args)
	if err == nil {
		return
	}

	printer := output.NewPrinter(os.Stdout, os.Stderr, output.ResolveColors())
	cliErr := commands.Present(err)
	printer.FormatError(cliErr)

	stop()
	code := cliErr.ExitCode
	if code == 0 || errors.Is(err, context.Canceled) {
		code = output.ExitGeneral
	}
	os.Exit(code)
}
