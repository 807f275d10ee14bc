package tokensource

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/florianilch/taplinks-cli/internal/model"
	"github.com/florianilch/taplinks-cli/internal/session"
)

// Exchanger trades a refresh token for a new session.
type Exchanger interface {
	RefreshToken(ctx context.Context, refreshToken string) (model.AuthTokenOutput, error)
}

// DefaultExchangeTimeout bounds a refresh exchange when no timeout is configured.
const DefaultExchangeTimeout = 30 * time.Second

// Option configures a Source.
type Option func(*Source)

// WithExchangeTimeout bounds each refresh exchange, independent of the
// callers waiting for it.
func WithExchangeTimeout(d time.Duration) Option {
	return func(s *Source) {
		if d > 0 {
			s.exchangeTimeout = d
		}
	}
}

// WithExchanger enables network refresh through e. Without it, Refresh only
// re-reads the session.
func WithExchanger(e Exchanger) Option {
	return func(s *Source) {
		s.exchanger = e
	}
}

// Source provides bearer credentials backed by a session.Provider.
type Source struct {
	provider        *session.Provider
	exchanger       Exchanger
	exchangeTimeout time.Duration

	// refreshes deduplicates concurrent exchanges of the same refresh token
	refreshes singleflight.Group
}

// New creates a Source reading credentials from provider.
func New(provider *session.Provider, opts ...Option) (*Source, error) {
	if provider == nil {
		return nil, fmt.Errorf("missing session provider")
	}

	s := &Source{provider: provider, exchangeTimeout: DefaultExchangeTimeout}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Load returns the credential for the next request, or nil when signed out.
// A stored token that has already expired is exchanged first when possible;
// if that fails the stale token is returned and the server decides.
func (s *Source) Load(ctx context.Context) (*oauth2.Token, error) {
	stored, err := s.provider.Token(ctx)
	if err != nil {
		return nil, err
	}
	if !stored.Authenticated() {
		return nil, nil
	}

	tok := toOAuth2(stored)
	if tok.Valid() || s.exchanger == nil || stored.RefreshToken == "" {
		return tok, nil
	}

	fresh, err := s.exchange(ctx, stored)
	if err != nil {
		return tok, nil
	}
	return fresh, nil
}

// Refresh returns a replacement for stale after the server rejected it.
// Returns nil when the session was cleared in the meantime.
func (s *Source) Refresh(ctx context.Context, stale *oauth2.Token) (*oauth2.Token, error) {
	stored, err := s.provider.Token(ctx)
	if err != nil {
		return nil, err
	}
	if !stored.Authenticated() {
		return nil, nil
	}

	// Another client (or a new sign-in) already replaced the rejected token
	if stale == nil || stored.AccessToken != stale.AccessToken {
		return toOAuth2(stored), nil
	}

	if s.exchanger == nil || stored.RefreshToken == "" {
		return toOAuth2(stored), nil
	}

	return s.exchange(ctx, stored)
}

// ErrNotAuthenticated is returned by Token when no session is stored.
var ErrNotAuthenticated = errors.New("not signed in")

// Compile-time check that Source implements oauth2.TokenSource.
var _ oauth2.TokenSource = (*Source)(nil)

// Token implements oauth2.TokenSource for callers outside the API client,
// such as oauth2.NewClient. Unlike Load it fails when signed out.
func (s *Source) Token() (*oauth2.Token, error) {
	tok, err := s.Load(context.Background())
	if err != nil {
		return nil, err
	}
	if tok == nil {
		return nil, ErrNotAuthenticated
	}
	return tok, nil
}

// toOAuth2 converts a session token pair into a bearer credential.
func toOAuth2(t session.TokenModel) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  t.AccessToken,
		TokenType:    "Bearer",
		RefreshToken: t.RefreshToken,
		Expiry:       accessTokenExpiry(t.AccessToken),
	}
}

// accessTokenExpiry reads the exp claim of a JWT access token without
// verifying it. Opaque tokens yield the zero time, meaning no known expiry.
func accessTokenExpiry(accessToken string) time.Time {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, &claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}
