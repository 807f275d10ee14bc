// Package apiclient builds HTTP clients for the Taplinks REST API and
// translates every request outcome into a closed error taxonomy.
//
// A Factory produces two kinds of clients:
//   - New: the regular API client. It attaches bearer credentials to requests
//     for the API endpoint, refreshes them after a 401 and is registered with
//     the auth registry so that signing out drops its cached credential.
//   - NewForAuth: the client for sign-in and token refresh. It carries no
//     credentials and is never registered, so sign-out can never invalidate
//     the flow that signs the user back in.
//
// Call is the single translation boundary from HTTP responses and transport
// failures to *Error values.
package apiclient

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/florianilch/taplinks-cli/internal/authregistry"
)

// Default connection settings.
const (
	DefaultBaseURL  = "https://taplink-be.vercel.app/api/v1/"
	DefaultEndpoint = "taplink-be.vercel.app"
	DefaultTimeout  = 30 * time.Second
)

// Config holds the connection settings shared by all clients of a Factory.
type Config struct {
	// BaseURL is the root that relative request paths resolve against.
	BaseURL string
	// Endpoint is the host (and port, if any) that receives credentials.
	// Defaults to the host of BaseURL.
	Endpoint string
	// Timeout bounds connecting, waiting for response headers and the whole request.
	Timeout time.Duration
}

// Option configures a Factory.
type Option func(*Factory)

// WithTransport sets the base transport all clients send through.
// If not provided, a clone of http.DefaultTransport with the configured timeouts is used.
func WithTransport(transport http.RoundTripper) Option {
	return func(f *Factory) {
		f.base = transport
	}
}

// WithMetrics records request and refresh metrics for every client.
func WithMetrics(m *Metrics) Option {
	return func(f *Factory) {
		f.metrics = m
	}
}

// Factory builds configured API clients.
type Factory struct {
	baseURL  *url.URL
	endpoint string
	timeout  time.Duration
	registry *authregistry.Registry
	base     http.RoundTripper
	metrics  *Metrics
}

// NewFactory validates cfg and creates a Factory registering its regular
// clients with registry.
func NewFactory(cfg Config, registry *authregistry.Registry, opts ...Option) (*Factory, error) {
	if registry == nil {
		return nil, fmt.Errorf("missing auth registry")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	baseURL, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if baseURL.Scheme == "" || baseURL.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: scheme and host required", cfg.BaseURL)
	}
	// Relative paths resolve below the base path only with a trailing slash
	if !strings.HasSuffix(baseURL.Path, "/") {
		baseURL.Path += "/"
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = baseURL.Host
	}

	f := &Factory{
		baseURL:  baseURL,
		endpoint: endpoint,
		timeout:  cfg.Timeout,
		registry: registry,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.base == nil {
		f.base = defaultTransport(cfg.Timeout)
	}

	return f, nil
}

// New creates an API client authenticating with creds and registers it
// with the auth registry.
func (f *Factory) New(creds CredentialSource) *Client {
	tokens := &tokenCache{source: creds}
	transport := &bearerTransport{
		base:     f.loggingTransport(),
		endpoint: f.endpoint,
		tokens:   tokens,
		metrics:  f.metrics,
	}

	c := f.build(transport, tokens)
	f.registry.Register(c)
	return c
}

// NewForAuth creates a client for sign-in and token refresh. It sends no
// credentials and is not registered.
func (f *Factory) NewForAuth() *Client {
	return f.build(f.loggingTransport(), nil)
}

func (f *Factory) build(transport http.RoundTripper, tokens *tokenCache) *Client {
	return &Client{
		http: &http.Client{
			Timeout:   f.timeout,
			Transport: transport,
		},
		baseURL: f.baseURL,
		tokens:  tokens,
	}
}

func (f *Factory) loggingTransport() http.RoundTripper {
	return &loggingTransport{
		base:     f.base,
		endpoint: f.endpoint,
		metrics:  f.metrics,
	}
}

// defaultTransport clones http.DefaultTransport for connection pooling and
// applies the connect and response timeouts.
func defaultTransport(timeout time.Duration) http.RoundTripper {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	dialer := &net.Dialer{
		Timeout:   timeout,
		KeepAlive: 30 * time.Second,
	}
	transport.DialContext = dialer.DialContext
	transport.TLSHandshakeTimeout = timeout
	transport.ResponseHeaderTimeout = timeout
	return transport
}
