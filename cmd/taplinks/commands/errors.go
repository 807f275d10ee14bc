package commands

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/florianilch/taplinks-cli/internal/apiclient"
	"github.com/florianilch/taplinks-cli/internal/app"
	"github.com/florianilch/taplinks-cli/internal/output"
	"github.com/florianilch/taplinks-cli/internal/session"
)

// Present turns any command error into a user-facing error with an exit code.
func Present(err error) *output.CLIError {
	var cliErr *output.CLIError
	if errors.As(err, &cliErr) {
		return cliErr
	}

	switch {
	case errors.Is(err, context.Canceled):
		return &output.CLIError{Summary: "Interrupted", ExitCode: output.ExitGeneral, Err: err}
	case errors.Is(err, app.ErrNotSignedIn):
		return &output.CLIError{
			Summary:    "You are not signed in",
			Suggestion: "Run 'taplinks login' first",
			ExitCode:   output.ExitAuthError,
			Err:        err,
		}
	case errors.Is(err, session.ErrStorage):
		return &output.CLIError{
			Summary:    "Could not access the stored session",
			Detail:     err.Error(),
			Suggestion: "Check the session storage settings or sign in again",
			ExitCode:   output.ExitConfigError,
			Err:        err,
		}
	}

	var invalid validator.ValidationErrors
	if errors.As(err, &invalid) {
		return &output.CLIError{
			Summary:  "Invalid input",
			Detail:   describeValidation(invalid),
			ExitCode: output.ExitUsageError,
			Err:      err,
		}
	}

	var apiErr *apiclient.Error
	if errors.As(err, &apiErr) {
		return presentAPIError(err, apiErr)
	}

	return &output.CLIError{Summary: err.Error(), ExitCode: output.ExitGeneral, Err: err}
}

func presentAPIError(cause error, err *apiclient.Error) *output.CLIError {
	out := &output.CLIError{Err: cause, ExitCode: output.ExitGeneral}

	switch err.Kind {
	case apiclient.KindNetwork:
		out.Summary = "Network connection error. Please check your internet connection."
		out.ExitCode = output.ExitNetwork
	case apiclient.KindTimeout:
		out.Summary = "Request timeout. Please try again."
		out.ExitCode = output.ExitNetwork
	case apiclient.KindUnauthorized:
		out.Summary = "Authentication failed. Please sign in again."
		out.Suggestion = "Run 'taplinks login'"
		out.ExitCode = output.ExitAuthError
	case apiclient.KindNotFound:
		out.Summary = "Not found"
	case apiclient.KindServer:
		out.Summary = "Server error. Please try again later."
	case apiclient.KindSerialization:
		out.Summary = "Unexpected response from the server"
	case apiclient.KindClient:
		out.Summary = "Request rejected"
	default:
		out.Summary = "Something went wrong"
	}

	if err.Response != nil {
		e := err.Response.Error
		detail := e.Message
		if e.LocalizedMessage != nil && *e.LocalizedMessage != "" {
			detail = *e.LocalizedMessage
		}
		if len(e.Details) > 0 {
			keys := make([]string, 0, len(e.Details))
			for k := range e.Details {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			parts := make([]string, 0, len(keys))
			for _, k := range keys {
				parts = append(parts, fmt.Sprintf("%s: %s", k, e.Details[k]))
			}
			detail += " (" + strings.Join(parts, ", ") + ")"
		}
		if e.RequestID != "" {
			detail += " [request " + e.RequestID + "]"
		}
		out.Detail = detail
	} else if inner := errors.Unwrap(err); inner != nil {
		out.Detail = inner.Error()
	}

	return out
}

func describeValidation(errs validator.ValidationErrors) string {
	parts := make([]string, 0, len(errs))
	for _, fe := range errs {
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			parts = append(parts, field+" is required")
		case "gt":
			parts = append(parts, fmt.Sprintf("%s must be greater than %s", field, fe.Param()))
		case "oneof":
			parts = append(parts, fmt.Sprintf("%s must be one of %s", field, fe.Param()))
		case "nefield":
			parts = append(parts, field+" must differ from the current name")
		default:
			parts = append(parts, fmt.Sprintf("%s failed %s", field, fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}
