package apiclient

import (
	"errors"
	"fmt"

	"github.com/florianilch/taplinks-cli/internal/model"
)

// Kind classifies a failed API call. The set is closed.
type Kind int

const (
	KindUnknown Kind = iota
	KindNetwork
	KindTimeout
	KindSerialization
	KindUnauthorized
	KindNotFound
	KindClient
	KindServer
)

var kindNames = [...]string{
	KindUnknown:       "unknown",
	KindNetwork:       "network",
	KindTimeout:       "timeout",
	KindSerialization: "serialization",
	KindUnauthorized:  "unauthorized",
	KindNotFound:      "not_found",
	KindClient:        "client",
	KindServer:        "server",
}

// String returns the snake_case name of the kind.
func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// Sentinel errors for use with errors.Is(), one per Kind.
var (
	ErrUnknown       = errors.New("unknown error occurred")
	ErrNetwork       = errors.New("network connection error")
	ErrTimeout       = errors.New("request timeout")
	ErrSerialization = errors.New("data parsing error")
	ErrUnauthorized  = errors.New("authentication failed")
	ErrNotFound      = errors.New("resource not found")
	ErrClient        = errors.New("client error")
	ErrServer        = errors.New("server error")
)

var kindSentinels = [...]error{
	KindUnknown:       ErrUnknown,
	KindNetwork:       ErrNetwork,
	KindTimeout:       ErrTimeout,
	KindSerialization: ErrSerialization,
	KindUnauthorized:  ErrUnauthorized,
	KindNotFound:      ErrNotFound,
	KindClient:        ErrClient,
	KindServer:        ErrServer,
}

func (k Kind) sentinel() error {
	if k < 0 || int(k) >= len(kindSentinels) {
		return ErrUnknown
	}
	return kindSentinels[k]
}

// Error is the result of every failed call made through Call. It is the
// only error type API services return for request failures.
type Error struct {
	// Kind is the classification of the failure.
	Kind Kind
	// StatusCode is the HTTP status, or 0 when no response was received.
	StatusCode int
	// Response is the decoded error envelope, when the server sent one.
	Response *model.ErrorResponse
	// Message is a human-readable summary, the server's message when available.
	Message string
	// Err is the underlying cause for transport and decoding failures.
	Err error
}

// Error returns a description including the status code and cause when known.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.sentinel().Error()
	}
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel of this error's kind.
// It supports errors.Is(err, ErrTimeout) and friends.
func (e *Error) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// KindOf returns the kind of an *Error found in err's chain.
func KindOf(err error) (Kind, bool) {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return KindUnknown, false
	}
	return apiErr.Kind, true
}

// credentialError marks failures to obtain credentials before sending,
// typically a session storage fault.
type credentialError struct {
	err error
}

func (e *credentialError) Error() string {
	return fmt.Sprintf("loading credentials: %v", e.err)
}

func (e *credentialError) Unwrap() error {
	return e.err
}
