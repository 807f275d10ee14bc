// Package app wires the session, API client and services together and
// implements the use cases the CLI exposes.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/florianilch/taplinks-cli/internal/api"
	"github.com/florianilch/taplinks-cli/internal/apiclient"
	"github.com/florianilch/taplinks-cli/internal/authregistry"
	"github.com/florianilch/taplinks-cli/internal/model"
	"github.com/florianilch/taplinks-cli/internal/sandbox"
	"github.com/florianilch/taplinks-cli/internal/session"
	"github.com/florianilch/taplinks-cli/internal/tokensource"
	"github.com/florianilch/taplinks-cli/internal/tokenstore"
)

// ErrNotSignedIn is returned by use cases that need a session when none is stored.
var ErrNotSignedIn = errors.New("not signed in")

// App owns the long-lived components of one CLI invocation.
type App struct {
	cfg      *Config
	session  *session.Provider
	services *api.Services
	metrics  *prometheus.Registry
}

// Option configures an App.
type Option func(*options)

type options struct {
	store tokenstore.Store
}

// WithTokenStore replaces the configured session store.
func WithTokenStore(store tokenstore.Store) Option {
	return func(o *options) {
		o.store = store
	}
}

// New validates cfg and wires store → registry → session → client factory →
// auth client → credential source → API client → services. No I/O is
// performed until the first use case runs.
func New(cfg *Config, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	store := o.store
	if store == nil {
		var err error
		store, err = cfg.Session.NewTokenStore()
		if err != nil {
			return nil, fmt.Errorf("failed to create token store: %w", err)
		}
	}

	registry := authregistry.New()

	provider, err := session.NewProvider(store, registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create session provider: %w", err)
	}

	metricsRegistry := prometheus.NewRegistry()
	factory, err := apiclient.NewFactory(apiclient.Config{
		BaseURL:  cfg.API.BaseURL,
		Endpoint: cfg.API.Endpoint,
		Timeout:  cfg.API.Timeout,
	}, registry, apiclient.WithMetrics(apiclient.NewMetrics(metricsRegistry)))
	if err != nil {
		return nil, fmt.Errorf("failed to create API client factory: %w", err)
	}

	authClient := factory.NewForAuth()

	creds, err := tokensource.New(provider,
		tokensource.WithExchanger(api.NewAuthService(authClient)),
		tokensource.WithExchangeTimeout(cfg.API.Timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create credential source: %w", err)
	}

	return &App{
		cfg:      cfg,
		session:  provider,
		services: api.New(factory.New(creds), authClient),
		metrics:  metricsRegistry,
	}, nil
}

// Services returns the API services.
func (a *App) Services() *api.Services {
	return a.services
}

// Session returns the session provider.
func (a *App) Session() *session.Provider {
	return a.session
}

// Login signs in and stores the new session, replacing any previous one.
func (a *App) Login(ctx context.Context, phoneNumber, password string) (model.User, error) {
	out, err := a.services.Auth.Login(ctx, phoneNumber, password)
	if err != nil {
		return model.User{}, err
	}

	if err := a.session.Save(ctx, out.AccessToken, out.RefreshToken, out.User); err != nil {
		return model.User{}, fmt.Errorf("saving session: %w", err)
	}

	slog.InfoContext(ctx, "signed in", "user_id", out.User.ID)
	return out.User, nil
}

// Logout clears the stored session. Cached credentials of every client are
// dropped even when clearing the store fails.
func (a *App) Logout(ctx context.Context) error {
	if err := a.services.Auth.Logout(ctx); err != nil {
		return err
	}
	if err := a.session.Clear(ctx); err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}

	slog.InfoContext(ctx, "signed out")
	return nil
}

// Status describes the stored session.
type Status struct {
	Authenticated bool
	User          *model.User
}

// Status reads the stored session.
func (a *App) Status(ctx context.Context) (Status, error) {
	authenticated, err := a.session.IsAuthenticated(ctx)
	if err != nil {
		return Status{}, err
	}
	if !authenticated {
		return Status{}, nil
	}

	user, err := a.session.User(ctx)
	if err != nil {
		return Status{}, err
	}
	return Status{Authenticated: true, User: user}, nil
}

// RequireSession fails with ErrNotSignedIn when no session is stored.
func (a *App) RequireSession(ctx context.Context) error {
	authenticated, err := a.session.IsAuthenticated(ctx)
	if err != nil {
		return err
	}
	if !authenticated {
		return ErrNotSignedIn
	}
	return nil
}

// Close flushes the client metrics to the configured textfile.
func (a *App) Close() error {
	if a.cfg.Metrics.File == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(a.cfg.Metrics.File, a.metrics); err != nil {
		return fmt.Errorf("writing metrics: %w", err)
	}
	return nil
}

// RunSandbox serves the sandbox API until ctx is done or the server fails.
// ready, when non-nil, receives the base URL once the server listens.
func (a *App) RunSandbox(ctx context.Context, ready func(baseURL string)) error {
	server, err := sandbox.New(sandbox.Config{
		PhoneNumber:    a.cfg.Sandbox.Phone,
		Password:       a.cfg.Sandbox.Password,
		AccessTokenTTL: a.cfg.Sandbox.AccessTokenTTL,
	})
	if err != nil {
		return fmt.Errorf("failed to create sandbox: %w", err)
	}

	g, gCtx := errgroup.WithContext(ctx)

	address := a.cfg.SandboxAddress()
	var shutdownFuncs []func(context.Context) error

	// Startup phase: Start services
	slog.InfoContext(gCtx, "starting sandbox server", "address", address)
	serverErrCh, err := server.Start(gCtx, address)
	if err != nil {
		return fmt.Errorf("sandbox startup failed: %w", err)
	}
	shutdownFuncs = append(shutdownFuncs, server.Shutdown)

	// Monitor runtime errors - errgroup cancels context on first error
	g.Go(func() error {
		select {
		case err := <-serverErrCh:
			if err != nil {
				slog.ErrorContext(gCtx, "sandbox runtime error", "error", err)
				return fmt.Errorf("sandbox: %w", err)
			}
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	slog.InfoContext(gCtx, "sandbox ready", "base_url", server.BaseURL())
	if ready != nil {
		ready(server.BaseURL())
	}

	runtimeErr := g.Wait()

	slog.InfoContext(gCtx, "shutting down sandbox")

	// Shutdown phase: Stop all services
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Shutdown.Timeout)
	defer cancel()

	var errs []error
	if runtimeErr != nil {
		errs = append(errs, fmt.Errorf("runtime: %w", runtimeErr))
	}

	for i := len(shutdownFuncs) - 1; i >= 0; i-- {
		if err := shutdownFuncs[i](shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "service shutdown failed", "error", err)
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	slog.Info("sandbox stopped")
	return nil
}
