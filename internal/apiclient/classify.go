package apiclient

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"
	"syscall"
)

// statusKind maps an HTTP status code to its outcome. Ranges are matched in
// order; the boolean reports success (2xx).
func statusKind(code int) (Kind, bool) {
	switch {
	case code >= 200 && code <= 299:
		return KindUnknown, true
	case code == 401:
		return KindUnauthorized, false
	case code == 404:
		return KindNotFound, false
	case code >= 400 && code <= 499:
		return KindClient, false
	case code >= 500 && code <= 599:
		return KindServer, false
	default:
		return KindUnknown, false
	}
}

// classifyError turns a failure raised before a usable response existed
// into an *Error. Known error types are matched precisely; anything else
// falls back to message inspection and is logged.
func classifyError(ctx context.Context, err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}

	kind, ok := transportKind(err)
	if !ok {
		kind = guessKind(err.Error())
		slog.WarnContext(ctx, "unclassified request error", "error", err, "guessed_kind", kind.String())
	}

	var credErr *credentialError
	if errors.As(err, &credErr) {
		slog.ErrorContext(ctx, "could not load credentials for request", "error", credErr.err)
	}

	return &Error{Kind: kind, Err: err}
}

// transportKind is the precise classification table.
func transportKind(err error) (Kind, bool) {
	var (
		credErr          *credentialError
		netErr           net.Error
		dnsErr           *net.DNSError
		opErr            *net.OpError
		certErr          *tls.CertificateVerificationError
		syntaxErr        *json.SyntaxError
		typeErr          *json.UnmarshalTypeError
		unsupportedType  *json.UnsupportedTypeError
		unsupportedValue *json.UnsupportedValueError
		marshalerErr     *json.MarshalerError
	)

	switch {
	case errors.As(err, &credErr):
		return KindUnknown, true
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		return KindTimeout, true
	case errors.Is(err, context.Canceled):
		return KindUnknown, true
	case errors.As(err, &netErr) && netErr.Timeout():
		return KindTimeout, true
	case errors.As(err, &dnsErr), errors.As(err, &opErr), errors.As(err, &certErr):
		return KindNetwork, true
	case errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EHOSTUNREACH), errors.Is(err, syscall.ENETUNREACH),
		errors.Is(err, syscall.EPIPE):
		return KindNetwork, true
	case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		return KindNetwork, true
	case errors.As(err, &syntaxErr), errors.As(err, &typeErr),
		errors.As(err, &unsupportedType), errors.As(err, &unsupportedValue),
		errors.As(err, &marshalerErr):
		return KindSerialization, true
	}
	return KindUnknown, false
}

// guessKind inspects an error message when no known type matched.
func guessKind(message string) Kind {
	msg := strings.ToLower(message)
	switch {
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "timed out"):
		return KindTimeout
	case strings.Contains(msg, "network"), strings.Contains(msg, "connection"),
		strings.Contains(msg, "unreachable"), strings.Contains(msg, "resolve"),
		strings.Contains(msg, "no such host"):
		return KindNetwork
	default:
		return KindUnknown
	}
}
