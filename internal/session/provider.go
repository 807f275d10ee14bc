// Package session exposes the signed-in vendor session: the access/refresh
// token pair and the cached user profile.
//
// The Provider is the only reader and writer of the session keys in the
// token store. Storage faults are reported as ErrStorage instead of being
// folded into a signed-out state; callers decide how to fall back.
//
// Save and Clear are each a single store write but are not serialized
// against each other: a concurrent Save and Clear resolve as last write wins.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/florianilch/taplinks-cli/internal/authregistry"
	"github.com/florianilch/taplinks-cli/internal/model"
	"github.com/florianilch/taplinks-cli/internal/tokenstore"
)

// Store keys of the session record.
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyUserData     = "user_data"
)

// Keys lists every key owned by the session.
var Keys = []string{KeyAccessToken, KeyRefreshToken, KeyUserData}

// TokenModel is the current token pair. The zero value means signed out.
type TokenModel struct {
	AccessToken  string
	RefreshToken string
}

// Authenticated reports whether the pair carries an access token.
func (t TokenModel) Authenticated() bool {
	return strings.TrimSpace(t.AccessToken) != ""
}

// TokenEvent is one observation of the session on a Watch stream.
// When Err is set, Token is the zero value.
type TokenEvent struct {
	Token TokenModel
	Err   error
}

// Provider reads and writes the session and notifies watchers of changes.
type Provider struct {
	store    tokenstore.Store
	registry *authregistry.Registry

	mu          sync.Mutex
	subscribers map[chan struct{}]struct{}
}

// NewProvider creates a Provider over store. Clear invalidates every client
// cache in registry.
func NewProvider(store tokenstore.Store, registry *authregistry.Registry) (*Provider, error) {
	if store == nil {
		return nil, fmt.Errorf("missing token store")
	}
	if registry == nil {
		return nil, fmt.Errorf("missing auth registry")
	}

	return &Provider{
		store:       store,
		registry:    registry,
		subscribers: make(map[chan struct{}]struct{}),
	}, nil
}

// Token returns the stored token pair. A missing session is the zero TokenModel.
func (p *Provider) Token(ctx context.Context) (TokenModel, error) {
	record, err := p.read(ctx)
	if err != nil {
		return TokenModel{}, err
	}

	return TokenModel{
		AccessToken:  record[KeyAccessToken],
		RefreshToken: record[KeyRefreshToken],
	}, nil
}

// IsAuthenticated reports whether a non-empty access token is stored.
func (p *Provider) IsAuthenticated(ctx context.Context) (bool, error) {
	token, err := p.Token(ctx)
	if err != nil {
		return false, err
	}
	return token.Authenticated(), nil
}

// User returns the cached user profile, or nil when none is stored or the
// stored profile cannot be decoded.
func (p *Provider) User(ctx context.Context) (*model.User, error) {
	record, err := p.read(ctx)
	if err != nil {
		return nil, err
	}

	raw := strings.TrimSpace(record[KeyUserData])
	if raw == "" {
		return nil, nil
	}

	var user model.User
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		slog.WarnContext(ctx, "discarding undecodable cached user profile", "error", err)
		return nil, nil
	}
	return &user, nil
}

// Save persists the token pair and user profile in one store write,
// replacing any previous session. An unreadable record is overwritten.
func (p *Provider) Save(ctx context.Context, accessToken, refreshToken string, user model.User) error {
	userData, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encoding user profile: %w", err)
	}

	record, err := p.read(ctx)
	if err != nil {
		// A new session replaces an unreadable one instead of failing sign-in
		slog.WarnContext(ctx, "session unreadable during save, resetting store", "error", err)
		record = map[string]string{}
	}
	record[KeyAccessToken] = accessToken
	record[KeyRefreshToken] = refreshToken
	record[KeyUserData] = string(userData)

	if err := p.store.Write(ctx, record); err != nil {
		return &StorageError{Op: "write", Err: err}
	}

	slog.DebugContext(ctx, "session saved", "user_id", user.ID)
	p.notify()
	return nil
}

// Clear removes the session keys and drops the cached credentials of every
// registered client. Caches are invalidated even if the store write fails.
func (p *Provider) Clear(ctx context.Context) error {
	defer p.notify()
	defer p.registry.InvalidateAll()

	record, err := p.read(ctx)
	if err != nil {
		// An unreadable record is replaced wholesale so sign-out still succeeds
		slog.WarnContext(ctx, "session unreadable during sign-out, resetting store", "error", err)
		record = map[string]string{}
	}
	for _, key := range Keys {
		delete(record, key)
	}

	if err := p.store.Write(ctx, record); err != nil {
		return &StorageError{Op: "write", Err: err}
	}

	slog.DebugContext(ctx, "session cleared")
	return nil
}

func (p *Provider) read(ctx context.Context) (map[string]string, error) {
	record, err := p.store.Read(ctx)
	if err != nil {
		return nil, &StorageError{Op: "read", Err: err}
	}
	if record == nil {
		record = map[string]string{}
	}
	return record, nil
}
