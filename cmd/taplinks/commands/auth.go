package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/florianilch/taplinks-cli/internal/apiclient"
	"github.com/florianilch/taplinks-cli/internal/output"
)

func loginCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "Sign in with phone number and password",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "phone",
				Usage: "phone number in international format",
			},
			&cli.BoolFlag{
				Name:  "password-stdin",
				Usage: "read the password from standard input",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			stdin := bufio.NewReader(e.stdin)
			interactive := isTerminal(e.stdin)

			phone := strings.TrimSpace(cmd.String("phone"))
			if phone == "" {
				if !interactive {
					return usageError("phone number required", "Pass --phone")
				}
				fmt.Fprint(e.stderr, "Phone number: ")
				line, err := readLine(stdin)
				if err != nil {
					return err
				}
				phone = line
			}

			password, err := e.readPassword(stdin, interactive && !cmd.Bool("password-stdin"))
			if err != nil {
				return err
			}
			if phone == "" || password == "" {
				return usageError("phone number and password are required", "")
			}

			user, err := e.app.Login(ctx, phone, password)
			if err != nil {
				if errors.Is(err, apiclient.ErrUnauthorized) {
					return &output.CLIError{
						Summary:  "Invalid phone number or password",
						ExitCode: output.ExitAuthError,
						Err:      err,
					}
				}
				return err
			}

			e.printer.Success("Signed in as %s", user.PhoneNumber)
			return nil
		},
	}
}

func logoutCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "Sign out and remove the stored session",
		Action: func(ctx context.Context, _ *cli.Command) error {
			if err := e.app.Logout(ctx); err != nil {
				return err
			}
			e.printer.Success("Signed out")
			return nil
		},
	}
}

func statusCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show whether you are signed in",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "watch",
				Usage: "keep running and report sign-in changes made by other processes",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := printStatus(ctx, e); err != nil {
				return err
			}
			if !cmd.Bool("watch") {
				return nil
			}

			// The first state repeats what was just printed
			first := true
			for range e.app.Session().WatchAuthenticated(ctx) {
				if first {
					first = false
					continue
				}
				if err := printStatus(ctx, e); err != nil {
					return err
				}
			}
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		},
	}
}

func printStatus(ctx context.Context, e *env) error {
	status, err := e.app.Status(ctx)
	if err != nil {
		return err
	}
	if !status.Authenticated {
		e.printer.Warning("Not signed in")
		return nil
	}

	if status.User != nil {
		e.printer.Success("Signed in as %s", status.User.PhoneNumber)
		e.printer.Field("User ID", status.User.ID)
		e.printer.Field("Roles", strings.Join(status.User.Roles, ", "))
	} else {
		e.printer.Success("Signed in")
	}
	e.printer.Field("Storage", e.cfg.Session.Storage)
	return nil
}

func (e *env) readPassword(stdin *bufio.Reader, prompt bool) (string, error) {
	if !prompt {
		return readLine(stdin)
	}
	f := e.stdin.(*os.File)
	fmt.Fprint(e.stderr, "Password: ")
	data, err := term.ReadPassword(int(f.Fd()))
	fmt.Fprintln(e.stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(data), nil
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func usageError(summary, suggestion string) *output.CLIError {
	return &output.CLIError{
		Summary:    summary,
		Suggestion: suggestion,
		ExitCode:   output.ExitUsageError,
	}
}
