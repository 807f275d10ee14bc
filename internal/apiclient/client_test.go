package apiclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/florianilch/taplinks-cli/internal/authregistry"
)

// fakeCreds serves a fixed credential and counts how often it is consulted.
type fakeCreds struct {
	mu        sync.Mutex
	token     *oauth2.Token
	next      *oauth2.Token
	err       error
	loads     int
	refreshes int
}

func (f *fakeCreds) Load(context.Context) (*oauth2.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	return f.token, f.err
}

func (f *fakeCreds) Refresh(_ context.Context, _ *oauth2.Token) (*oauth2.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	if f.next != nil {
		f.token = f.next
	}
	return f.token, nil
}

func (f *fakeCreds) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loads, f.refreshes
}

// echoAuth answers with the Authorization header it received.
func echoAuth() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"auth":"`+r.Header.Get("Authorization")+`","requestId":"`+r.Header.Get(RequestIDHeader)+`"}`)
	})
}

type echo struct {
	Auth      string `json:"auth"`
	RequestID string `json:"requestId"`
}

func newFactory(t *testing.T, baseURL string, registry *authregistry.Registry, opts ...Option) *Factory {
	t.Helper()
	f, err := NewFactory(Config{BaseURL: baseURL, Timeout: 5 * time.Second}, registry, opts...)
	require.NoError(t, err)
	return f
}

func get(t *testing.T, c *Client, path string) (echo, error) {
	t.Helper()
	return Call[echo](t.Context(), func(ctx context.Context) (*http.Response, error) {
		return c.Get(ctx, path, nil)
	})
}

func TestNewFactory(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		f, err := NewFactory(Config{}, authregistry.New())
		require.NoError(t, err)
		assert.Equal(t, DefaultBaseURL, f.baseURL.String())
		assert.Equal(t, DefaultEndpoint, f.endpoint)
		assert.Equal(t, DefaultTimeout, f.timeout)
	})

	t.Run("trailing slash added", func(t *testing.T) {
		f, err := NewFactory(Config{BaseURL: "http://localhost:4010/api/v1"}, authregistry.New())
		require.NoError(t, err)
		assert.Equal(t, "http://localhost:4010/api/v1/", f.baseURL.String())
		assert.Equal(t, "localhost:4010", f.endpoint)
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := NewFactory(Config{BaseURL: "not a url"}, authregistry.New())
		assert.Error(t, err)

		_, err = NewFactory(Config{}, nil)
		assert.Error(t, err)
	})
}

func TestFactory_Registration(t *testing.T) {
	registry := authregistry.New()
	f := newFactory(t, "http://127.0.0.1:1/api/v1/", registry)

	api := f.New(&fakeCreds{})
	auth := f.NewForAuth()

	assert.True(t, registry.Contains(api))
	assert.False(t, registry.Contains(auth))
	assert.Equal(t, 1, registry.Len())
	assert.True(t, api.Authenticated())
	assert.False(t, auth.Authenticated())
}

func TestClient_AttachesBearerToken(t *testing.T) {
	srv := httptest.NewServer(echoAuth())
	t.Cleanup(srv.Close)

	creds := &fakeCreds{token: &oauth2.Token{AccessToken: "abc"}}
	c := newFactory(t, srv.URL+"/api/v1/", authregistry.New()).New(creds)

	got, err := get(t, c, "users/me")
	require.NoError(t, err)
	assert.Equal(t, "Bearer abc", got.Auth)
	assert.NotEmpty(t, got.RequestID)

	// Cached after the first load
	_, err = get(t, c, "users/me")
	require.NoError(t, err)
	loads, _ := creds.counts()
	assert.Equal(t, 1, loads)
}

func TestClient_AuthClientSendsNoCredentials(t *testing.T) {
	srv := httptest.NewServer(echoAuth())
	t.Cleanup(srv.Close)

	c := newFactory(t, srv.URL, authregistry.New()).NewForAuth()

	got, err := get(t, c, "auth/login")
	require.NoError(t, err)
	assert.Empty(t, got.Auth)
}

func TestClient_SignedOutSendsNoCredentials(t *testing.T) {
	srv := httptest.NewServer(echoAuth())
	t.Cleanup(srv.Close)

	c := newFactory(t, srv.URL, authregistry.New()).New(&fakeCreds{})

	got, err := get(t, c, "users/me")
	require.NoError(t, err)
	assert.Empty(t, got.Auth)
}

func TestClient_NoCredentialsForForeignHost(t *testing.T) {
	api := httptest.NewServer(echoAuth())
	t.Cleanup(api.Close)
	foreign := httptest.NewServer(echoAuth())
	t.Cleanup(foreign.Close)

	creds := &fakeCreds{token: &oauth2.Token{AccessToken: "secret"}}
	c := newFactory(t, api.URL, authregistry.New()).New(creds)

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, foreign.URL+"/collect", nil)
	require.NoError(t, err)
	resp, err := c.http.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.NotContains(t, string(body), "secret")

	loads, _ := creds.counts()
	assert.Zero(t, loads)
}

func TestClient_RejectsAbsolutePaths(t *testing.T) {
	c := newFactory(t, "http://127.0.0.1:1/", authregistry.New()).New(&fakeCreds{})

	_, err := c.Get(t.Context(), "http://elsewhere.example/steal", nil)
	assert.Error(t, err)
}

func TestClient_StaysBelowBasePath(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	t.Cleanup(srv.Close)

	c := newFactory(t, srv.URL+"/api/v1/", authregistry.New()).New(&fakeCreds{})

	for _, path := range []string{"..", "../admin", "users/../../v2/users", "/users/me"} {
		_, err := c.Get(t.Context(), path, nil)
		assert.Error(t, err, "path %q", path)
	}
	assert.Zero(t, hits)
}

func TestClient_InvalidateAllForcesReload(t *testing.T) {
	srv := httptest.NewServer(echoAuth())
	t.Cleanup(srv.Close)

	registry := authregistry.New()
	creds := &fakeCreds{token: &oauth2.Token{AccessToken: "first"}}
	c := newFactory(t, srv.URL, registry).New(creds)

	got, err := get(t, c, "users/me")
	require.NoError(t, err)
	assert.Equal(t, "Bearer first", got.Auth)

	creds.mu.Lock()
	creds.token = nil
	creds.mu.Unlock()
	registry.InvalidateAll()

	got, err = get(t, c, "users/me")
	require.NoError(t, err)
	assert.Empty(t, got.Auth)

	loads, _ := creds.counts()
	assert.Equal(t, 2, loads)
}

func TestClient_CredentialLoadFailure(t *testing.T) {
	srv := httptest.NewServer(echoAuth())
	t.Cleanup(srv.Close)

	creds := &fakeCreds{err: errors.New("keychain locked")}
	c := newFactory(t, srv.URL, authregistry.New()).New(creds)

	_, err := get(t, c, "users/me")
	assert.ErrorIs(t, err, ErrUnknown)
	assert.ErrorContains(t, err, "keychain locked")
}

func TestClient_RefreshesAfterUnauthorized(t *testing.T) {
	var (
		mu     sync.Mutex
		bodies []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(data))
		mu.Unlock()

		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"auth":"ok"}`)
	}))
	t.Cleanup(srv.Close)

	reg := prometheus.NewPedanticRegistry()
	metrics := NewMetrics(reg)
	creds := &fakeCreds{
		token: &oauth2.Token{AccessToken: "stale"},
		next:  &oauth2.Token{AccessToken: "fresh"},
	}
	c := newFactory(t, srv.URL, authregistry.New(), WithMetrics(metrics)).New(creds)

	got, err := Call[echo](t.Context(), func(ctx context.Context) (*http.Response, error) {
		return c.Post(ctx, "payment-requests", map[string]any{"amount": 10})
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got.Auth)

	mu.Lock()
	assert.Equal(t, []string{`{"amount":10}`, `{"amount":10}`}, bodies)
	mu.Unlock()

	_, refreshes := creds.counts()
	assert.Equal(t, 1, refreshes)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RefreshesTotal.WithLabelValues("refreshed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RequestsTotal.WithLabelValues("POST", "4xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RequestsTotal.WithLabelValues("POST", "2xx")))
}

func TestClient_UnauthorizedWithoutNewCredential(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	metrics := NewMetrics(nil)
	creds := &fakeCreds{token: &oauth2.Token{AccessToken: "revoked"}}
	c := newFactory(t, srv.URL, authregistry.New(), WithMetrics(metrics)).New(creds)

	_, err := get(t, c, "users/me")
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RefreshesTotal.WithLabelValues("unchanged")))
}
