package apiclient

import (
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// loggingTransport logs API requests and propagates trace context to the API.
// Requests to other hosts pass through untouched. Headers and bodies are
// never logged.
type loggingTransport struct {
	base     http.RoundTripper
	endpoint string
	metrics  *Metrics
}

// Compile-time check that loggingTransport implements http.RoundTripper.
var _ http.RoundTripper = (*loggingTransport)(nil)

// RoundTrip implements http.RoundTripper interface.
func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Host != t.endpoint {
		return t.base.RoundTrip(req)
	}

	ctx := req.Context()
	out := req.Clone(ctx)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(out.Header))

	start := time.Now()
	resp, err := t.base.RoundTrip(out)
	elapsed := time.Since(start)

	attrs := []any{
		"method", req.Method,
		"path", req.URL.Path,
		"request_id", req.Header.Get(RequestIDHeader),
		"duration", elapsed,
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		attrs = append(attrs, "trace_id", sc.TraceID().String())
	}

	if err != nil {
		t.metrics.observeRequest(req.Method, 0, elapsed)
		slog.DebugContext(ctx, "api request failed", append(attrs, "error", err)...)
		return nil, err
	}

	t.metrics.observeRequest(req.Method, resp.StatusCode, elapsed)
	slog.DebugContext(ctx, "api request", append(attrs, "status", resp.StatusCode)...)
	return resp, nil
}
