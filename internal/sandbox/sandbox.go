// Package sandbox serves an in-memory fake of the Taplinks REST API.
//
// It implements every endpoint the CLI consumes with the real success and
// error envelopes, signs HS256 JWT access tokens with a short lifetime and
// rotates opaque refresh tokens, so the whole client stack including token
// refresh can be exercised locally without the hosted backend.
package sandbox

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/florianilch/taplinks-cli/internal/observability/middleware"
)

// BasePath is the path prefix all API routes are served under.
const BasePath = "/api/v1/"

// Default sandbox settings.
const (
	DefaultPhoneNumber    = "+971500000000"
	DefaultPassword       = "secret1"
	DefaultAccessTokenTTL = 15 * time.Minute
)

// DefaultServices are offered by the sandbox vendor on start.
var DefaultServices = []string{"Home Cleaning", "AC Maintenance"}

// Config configures a sandbox Server. Zero values select the defaults.
type Config struct {
	PhoneNumber    string
	Password       string
	AccessTokenTTL time.Duration
	// SigningKey signs access tokens. A random key is generated when empty.
	SigningKey []byte
	Services   []string
	// Now replaces the clock, for tests.
	Now func() time.Time
}

// Server is the sandbox HTTP server.
type Server struct {
	mux    *http.ServeMux
	server *http.Server
	store  *store
	tokens *issuer
	now    func() time.Time

	mu   sync.Mutex
	addr net.Addr
}

// Compile-time check that Server implements http.Handler
var _ http.Handler = (*Server)(nil)

// New creates a sandbox server with a single vendor account.
func New(cfg Config) (*Server, error) {
	if cfg.PhoneNumber == "" {
		cfg.PhoneNumber = DefaultPhoneNumber
	}
	if cfg.Password == "" {
		cfg.Password = DefaultPassword
	}
	if cfg.AccessTokenTTL <= 0 {
		cfg.AccessTokenTTL = DefaultAccessTokenTTL
	}
	if cfg.Services == nil {
		cfg.Services = DefaultServices
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if len(cfg.SigningKey) == 0 {
		cfg.SigningKey = make([]byte, 32)
		if _, err := rand.Read(cfg.SigningKey); err != nil {
			return nil, fmt.Errorf("generating signing key: %w", err)
		}
	}

	s := &Server{
		store:  newStore(cfg.PhoneNumber, cfg.Password, cfg.Services),
		tokens: newIssuer(cfg.SigningKey, cfg.AccessTokenTTL, cfg.Now),
		now:    cfg.Now,
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	logger := slog.Default()
	public := func(h http.HandlerFunc) http.Handler {
		return applyMiddlewares(h, middleware.Logging(logger), Recovery)
	}
	private := func(h http.HandlerFunc) http.Handler {
		return applyMiddlewares(h, middleware.Logging(logger), Recovery, s.requireAuth)
	}

	mux := http.NewServeMux()

	mux.Handle("POST "+BasePath+"auth/login", public(s.handleLogin))
	mux.Handle("POST "+BasePath+"auth/refresh-token", public(s.handleRefresh))

	mux.Handle("GET "+BasePath+"payment-requests", private(s.handleListPayments))
	mux.Handle("POST "+BasePath+"payment-requests", private(s.handleCreatePayment))
	mux.Handle("GET "+BasePath+"payment-requests/{id}", private(s.handleGetPayment))
	mux.Handle("PATCH "+BasePath+"payment-requests/{id}", private(s.handleUpdatePayment))
	mux.Handle("DELETE "+BasePath+"payment-requests/{id}", private(s.handleDeletePayment))

	mux.Handle("GET "+BasePath+"analytics/dashboard", private(s.handleDashboard))

	mux.Handle("GET "+BasePath+"users/me/services", private(s.handleListServices))
	mux.Handle("POST "+BasePath+"users/me/services", private(s.handleAddService))
	mux.Handle("PATCH "+BasePath+"users/me/services", private(s.handleRenameService))
	mux.Handle("DELETE "+BasePath+"users/me/services/{name}", private(s.handleDeleteService))

	mux.Handle("/", public(s.handleNotFound))

	s.mux = mux
}

// ServeHTTP implements http.Handler interface
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Start starts the HTTP server in the background and returns immediately.
// Startup errors (port in use) are returned directly, runtime errors are
// sent to the returned channel, which is closed when serving stops.
//
// The caller is responsible for calling Shutdown() to stop the server.
func (s *Server) Start(ctx context.Context, address string) (<-chan error, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}

	s.mu.Lock()
	s.addr = listener.Addr()
	s.server = &http.Server{
		Handler:      s,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  90 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
	server := s.server
	s.mu.Unlock()

	errCh := make(chan error, 1)

	go func() {
		err := server.Serve(listener)
		// Only report error if not from graceful shutdown
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	return errCh, nil
}

// Addr returns the listening address once Start succeeded, nil before.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// BaseURL returns the API base URL clients should use, empty before Start.
func (s *Server) BaseURL() string {
	addr := s.Addr()
	if addr == nil {
		return ""
	}
	return "http://" + addr.String() + BasePath
}

// Shutdown performs graceful shutdown of the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	server := s.server
	s.mu.Unlock()

	if server == nil {
		return nil
	}

	if err := server.Shutdown(ctx); err != nil {
		// Graceful shutdown failed - force close
		_ = server.Close()
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	return nil
}
