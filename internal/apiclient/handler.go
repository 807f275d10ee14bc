package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/florianilch/taplinks-cli/internal/model"
)

// maxDrain bounds how much of an unread body is consumed before closing so
// the connection can be reused.
const maxDrain = 64 << 10

// Call invokes call and classifies its outcome. A 2xx body is decoded into T;
// every other outcome becomes an *Error. Call never panics on malformed
// input and never returns a non-*Error error.
func Call[T any](ctx context.Context, call func(context.Context) (*http.Response, error)) (T, error) {
	var zero T

	resp, err := call(ctx)
	if err != nil {
		return zero, classifyError(ctx, err)
	}
	if resp.Body == nil {
		resp.Body = http.NoBody
	}
	defer closeBody(resp)

	kind, ok := statusKind(resp.StatusCode)
	if ok {
		return decodeSuccess[T](ctx, resp)
	}

	switch kind {
	case KindUnauthorized, KindNotFound:
		return zero, &Error{Kind: kind, StatusCode: resp.StatusCode}
	case KindClient, KindServer:
		apiErr := &Error{Kind: kind, StatusCode: resp.StatusCode}
		if body := decodeErrorBody(resp); body != nil {
			apiErr.Response = body
			apiErr.Message = body.Error.Message
		}
		return zero, apiErr
	default:
		return zero, &Error{
			Kind:       KindUnknown,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("unexpected status code %d", resp.StatusCode),
		}
	}
}

func decodeSuccess[T any](ctx context.Context, resp *http.Response) (T, error) {
	var out T

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return out, classifyError(ctx, err)
	}

	if len(data) == 0 && resp.StatusCode == http.StatusNoContent {
		return out, nil
	}

	if err := json.Unmarshal(data, &out); err != nil {
		return out, &Error{
			Kind:       KindSerialization,
			StatusCode: resp.StatusCode,
			Message:    "failed to parse response",
			Err:        err,
		}
	}
	return out, nil
}

// decodeErrorBody decodes the error envelope, returning nil if the body is
// not one.
func decodeErrorBody(resp *http.Response) *model.ErrorResponse {
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDrain))
	if err != nil || len(data) == 0 {
		return nil
	}

	var body model.ErrorResponse
	if err := json.Unmarshal(data, &body); err != nil || body.Error.Message == "" {
		return nil
	}
	return &body
}

func closeBody(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrain))
	_ = resp.Body.Close()
}
