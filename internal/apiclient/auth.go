package apiclient

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/oauth2"
)

// CredentialSource supplies bearer credentials to a client.
type CredentialSource interface {
	// Load returns the credential to attach, or nil when signed out.
	Load(ctx context.Context) (*oauth2.Token, error)

	// Refresh returns a replacement for a credential the server rejected,
	// or nil when none is available.
	Refresh(ctx context.Context, stale *oauth2.Token) (*oauth2.Token, error)
}

// tokenCache holds one client's current credential.
type tokenCache struct {
	source CredentialSource

	mu    sync.Mutex
	token *oauth2.Token
}

// Token returns the cached credential, loading it when the cache is empty
// or the cached credential expired.
func (c *tokenCache) Token(ctx context.Context) (*oauth2.Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token.Valid() {
		return c.token, nil
	}

	tok, err := c.source.Load(ctx)
	if err != nil {
		return nil, err
	}
	c.token = tok
	return tok, nil
}

// Refresh replaces a rejected credential. If another request on this client
// already replaced it, the newer cached credential is returned as is.
func (c *tokenCache) Refresh(ctx context.Context, stale *oauth2.Token) (*oauth2.Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token.Valid() && stale != nil && c.token.AccessToken != stale.AccessToken {
		return c.token, nil
	}

	tok, err := c.source.Refresh(ctx, stale)
	if err != nil {
		return nil, err
	}
	c.token = tok
	return tok, nil
}

// Invalidate empties the cache.
func (c *tokenCache) Invalidate() {
	c.mu.Lock()
	c.token = nil
	c.mu.Unlock()
}

// Cached returns the cached credential without loading.
func (c *tokenCache) Cached() *oauth2.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// bearerTransport attaches credentials to requests for the API endpoint and
// retries once with a refreshed credential after a 401.
type bearerTransport struct {
	base     http.RoundTripper
	endpoint string
	tokens   *tokenCache
	metrics  *Metrics
}

// Compile-time check that bearerTransport implements http.RoundTripper.
var _ http.RoundTripper = (*bearerTransport)(nil)

// RoundTrip implements http.RoundTripper interface.
func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Credentials never leave for other hosts
	if req.URL.Host != t.endpoint {
		return t.base.RoundTrip(req)
	}

	ctx := req.Context()

	tok, err := t.tokens.Token(ctx)
	if err != nil {
		closeRequestBody(req)
		return nil, &credentialError{err: err}
	}
	if tok == nil {
		// Signed out: send unauthenticated and let the server answer
		return t.base.RoundTrip(req)
	}

	out := req.Clone(ctx)
	tok.SetAuthHeader(out)

	resp, err := t.base.RoundTrip(out)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}

	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		slog.DebugContext(ctx, "request body not replayable, skipping credential refresh")
		return resp, nil
	}

	fresh, err := t.tokens.Refresh(ctx, tok)
	switch {
	case err != nil:
		t.metrics.observeRefresh("failed")
		slog.WarnContext(ctx, "credential refresh after 401 failed", "error", err)
		return resp, nil
	case fresh == nil || fresh.AccessToken == tok.AccessToken:
		t.metrics.observeRefresh("unchanged")
		return resp, nil
	}
	t.metrics.observeRefresh("refreshed")

	retry := req.Clone(ctx)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return resp, nil
		}
		retry.Body = body
	}
	fresh.SetAuthHeader(retry)

	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrain))
	_ = resp.Body.Close()

	return t.base.RoundTrip(retry)
}

func closeRequestBody(req *http.Request) {
	if req.Body != nil {
		_ = req.Body.Close()
	}
}
