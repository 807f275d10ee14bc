package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/florianilch/taplinks-cli/internal/authregistry"
)

// RequestIDHeader carries a client-generated id on every request for correlation
// with the server's error envelope.
const RequestIDHeader = "X-Request-Id"

// Client sends JSON requests to the API. Use Call to classify results.
type Client struct {
	http    *http.Client
	baseURL *url.URL
	tokens  *tokenCache
}

// Compile-time check that Client can be registered for invalidation.
var _ authregistry.Invalidator = (*Client)(nil)

// InvalidateToken drops the cached credential; the next request loads it
// from the credential source again. No-op for auth clients.
func (c *Client) InvalidateToken() {
	if c.tokens != nil {
		c.tokens.Invalidate()
	}
}

// Authenticated reports whether the client attaches credentials at all.
func (c *Client) Authenticated() bool {
	return c.tokens != nil
}

// Do sends a request to path, resolved against the base URL. path must be
// relative, already escaped and must stay below the base path. A non-nil
// body is encoded as JSON.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body any) (*http.Response, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("invalid request path %q: %w", path, err)
	}
	if ref.IsAbs() || ref.Host != "" {
		return nil, fmt.Errorf("request path %q must be relative", path)
	}
	target := c.baseURL.ResolveReference(ref)
	if !strings.HasPrefix(target.EscapedPath(), c.baseURL.EscapedPath()) {
		return nil, fmt.Errorf("request path %q escapes the API base path", path)
	}
	if len(query) > 0 {
		target.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		// bytes.Reader lets net/http set GetBody so the request can be replayed after a refresh
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(RequestIDHeader, uuid.NewString())

	return c.http.Do(req)
}

// Get sends a GET request.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*http.Response, error) {
	return c.Do(ctx, http.MethodGet, path, query, nil)
}

// Post sends a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body any) (*http.Response, error) {
	return c.Do(ctx, http.MethodPost, path, nil, body)
}

// Patch sends a PATCH request with a JSON body.
func (c *Client) Patch(ctx context.Context, path string, body any) (*http.Response, error) {
	return c.Do(ctx, http.MethodPatch, path, nil, body)
}

// Delete sends a DELETE request.
func (c *Client) Delete(ctx context.Context, path string) (*http.Response, error) {
	return c.Do(ctx, http.MethodDelete, path, nil, nil)
}
