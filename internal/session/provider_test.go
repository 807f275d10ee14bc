package session

import (
	"context"
	"errors"
	"maps"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/florianilch/taplinks-cli/internal/authregistry"
	"github.com/florianilch/taplinks-cli/internal/model"
	"github.com/florianilch/taplinks-cli/internal/tokenstore"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// memStore is an in-memory tokenstore.Store with injectable failures.
type memStore struct {
	mu       sync.Mutex
	record   map[string]string
	readErr  error
	writeErr error
}

func (s *memStore) Read(ctx context.Context) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return nil, s.readErr
	}
	return maps.Clone(s.record), nil
}

func (s *memStore) Write(ctx context.Context, record map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	s.record = maps.Clone(record)
	return nil
}

type countingCache struct {
	mu    sync.Mutex
	count int
}

func (c *countingCache) InvalidateToken() {
	c.mu.Lock()
	c.count++
	c.mu.Unlock()
}

func newTestProvider(t *testing.T, store tokenstore.Store) (*Provider, *authregistry.Registry) {
	t.Helper()
	registry := authregistry.New()
	p, err := NewProvider(store, registry)
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	return p, registry
}

var vendor = model.User{ID: 1, PhoneNumber: "+971500000000", Roles: []string{"VENDOR"}}

func TestSaveRoundTrip(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		access  string
		refresh string
		user    model.User
	}{
		{"typical session", "abc", "xyz", vendor},
		{"no roles", "a.b.c", "r-1", model.User{ID: 42, PhoneNumber: "+1"}},
		{"unicode and spaces", "tok en", "réfresh", model.User{ID: 7, PhoneNumber: "+44 20", Roles: []string{"ADMIN", "VENDOR"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := newTestProvider(t, &memStore{})

			if err := p.Save(ctx, tt.access, tt.refresh, tt.user); err != nil {
				t.Fatalf("Save: %v", err)
			}

			token, err := p.Token(ctx)
			if err != nil {
				t.Fatalf("Token: %v", err)
			}
			if token != (TokenModel{AccessToken: tt.access, RefreshToken: tt.refresh}) {
				t.Errorf("Token = %+v, want %q/%q", token, tt.access, tt.refresh)
			}

			user, err := p.User(ctx)
			if err != nil {
				t.Fatalf("User: %v", err)
			}
			if user == nil || user.ID != tt.user.ID || user.PhoneNumber != tt.user.PhoneNumber || len(user.Roles) != len(tt.user.Roles) {
				t.Errorf("User = %+v, want %+v", user, tt.user)
			}
		})
	}
}

func TestSaveOverwritesPreviousSession(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestProvider(t, &memStore{})

	if err := p.Save(ctx, "old", "old-refresh", vendor); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := p.Save(ctx, "new", "new-refresh", model.User{ID: 2}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	token, err := p.Token(ctx)
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if token.AccessToken != "new" || token.RefreshToken != "new-refresh" {
		t.Errorf("Token = %+v, want new pair", token)
	}
	user, _ := p.User(ctx)
	if user == nil || user.ID != 2 {
		t.Errorf("User = %+v, want id 2", user)
	}
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	store := &memStore{}
	p, registry := newTestProvider(t, store)
	cache := &countingCache{}
	registry.Register(cache)

	if err := p.Save(ctx, "abc", "xyz", vendor); err != nil {
		t.Fatalf("Save: %v", err)
	}
	authenticated, err := p.IsAuthenticated(ctx)
	if err != nil || !authenticated {
		t.Fatalf("IsAuthenticated after Save = %v, %v; want true", authenticated, err)
	}

	if err := p.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	authenticated, err = p.IsAuthenticated(ctx)
	if err != nil || authenticated {
		t.Errorf("IsAuthenticated after Clear = %v, %v; want false", authenticated, err)
	}
	if user, _ := p.User(ctx); user != nil {
		t.Errorf("User after Clear = %+v, want nil", user)
	}
	if len(store.record) != 0 {
		t.Errorf("store still holds %v", store.record)
	}
	if cache.count != 1 {
		t.Errorf("cache invalidations = %d, want 1", cache.count)
	}
	if registry.Len() != 1 {
		t.Errorf("registry size = %d, want 1", registry.Len())
	}
}

func TestClearInvalidatesEvenWhenWriteFails(t *testing.T) {
	ctx := context.Background()
	store := &memStore{writeErr: errors.New("disk full")}
	p, registry := newTestProvider(t, store)
	cache := &countingCache{}
	registry.Register(cache)

	err := p.Clear(ctx)
	if !errors.Is(err, ErrStorage) {
		t.Fatalf("Clear error = %v, want ErrStorage", err)
	}
	if cache.count != 1 {
		t.Errorf("cache invalidations = %d, want 1", cache.count)
	}
}

func TestClearResetsUnreadableStore(t *testing.T) {
	ctx := context.Background()
	store := &memStore{record: map[string]string{KeyAccessToken: "abc"}, readErr: errors.New("corrupt")}
	p, _ := newTestProvider(t, store)

	if err := p.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	store.readErr = nil
	if len(store.record) != 0 {
		t.Errorf("store = %v, want empty", store.record)
	}
}

func TestStorageFaultsAreSurfaced(t *testing.T) {
	ctx := context.Background()
	cause := errors.New("permission denied")
	p, _ := newTestProvider(t, &memStore{readErr: cause})

	_, err := p.Token(ctx)
	if !errors.Is(err, ErrStorage) || !errors.Is(err, cause) {
		t.Errorf("Token error = %v, want ErrStorage wrapping cause", err)
	}

	authenticated, err := p.IsAuthenticated(ctx)
	if authenticated || !errors.Is(err, ErrStorage) {
		t.Errorf("IsAuthenticated = %v, %v; want false, ErrStorage", authenticated, err)
	}
}

func TestSaveReplacesUnreadableStore(t *testing.T) {
	ctx := context.Background()
	store := &memStore{record: map[string]string{"other": "stale"}, readErr: errors.New("corrupt")}
	p, _ := newTestProvider(t, store)

	if err := p.Save(ctx, "a", "b", vendor); err != nil {
		t.Fatalf("Save: %v", err)
	}
	store.readErr = nil

	tok, err := p.Token(ctx)
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if tok.AccessToken != "a" || tok.RefreshToken != "b" {
		t.Errorf("Token = %+v, want a/b", tok)
	}
	if _, ok := store.record["other"]; ok {
		t.Errorf("store = %v, want only session keys", store.record)
	}
}

func TestSaveOverBrokenSessionFile(t *testing.T) {
	tests := []struct {
		name    string
		content string
		mode    os.FileMode
	}{
		{"corrupt", "not json", 0o600},
		{"insecure permissions", `{"access_token":"old"}`, 0o644},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			path := filepath.Join(t.TempDir(), "session.json")
			if err := os.WriteFile(path, []byte(tt.content), tt.mode); err != nil {
				t.Fatalf("WriteFile: %v", err)
			}
			// WriteFile honors the umask; force the mode under test
			if err := os.Chmod(path, tt.mode); err != nil {
				t.Fatalf("Chmod: %v", err)
			}

			store, err := tokenstore.NewFileStore(path)
			if err != nil {
				t.Fatalf("NewFileStore: %v", err)
			}
			p, _ := newTestProvider(t, store)

			if _, err := p.Token(ctx); !errors.Is(err, ErrStorage) {
				t.Fatalf("Token before save error = %v, want ErrStorage", err)
			}
			if err := p.Save(ctx, "new-access", "new-refresh", vendor); err != nil {
				t.Fatalf("Save: %v", err)
			}

			tok, err := p.Token(ctx)
			if err != nil {
				t.Fatalf("Token after save: %v", err)
			}
			if tok.AccessToken != "new-access" {
				t.Errorf("AccessToken = %q, want new-access", tok.AccessToken)
			}
			info, err := os.Stat(path)
			if err != nil {
				t.Fatalf("Stat: %v", err)
			}
			if info.Mode().Perm() != 0o600 {
				t.Errorf("mode = %04o, want 0600", info.Mode().Perm())
			}
		})
	}
}

func TestUndecodableUserIsNil(t *testing.T) {
	p, _ := newTestProvider(t, &memStore{record: map[string]string{KeyUserData: "{broken"}})

	user, err := p.User(context.Background())
	if err != nil || user != nil {
		t.Errorf("User = %+v, %v; want nil, nil", user, err)
	}
}

func TestTokenModelAuthenticated(t *testing.T) {
	tests := []struct {
		token TokenModel
		want  bool
	}{
		{TokenModel{}, false},
		{TokenModel{RefreshToken: "xyz"}, false},
		{TokenModel{AccessToken: "   "}, false},
		{TokenModel{AccessToken: "abc"}, true},
	}
	for _, tt := range tests {
		if got := tt.token.Authenticated(); got != tt.want {
			t.Errorf("%+v.Authenticated() = %v, want %v", tt.token, got, tt.want)
		}
	}
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		if !ok {
			t.Fatal("channel closed unexpectedly")
		}
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	var zero T
	return zero
}

func TestWatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p, _ := newTestProvider(t, &memStore{})

	events := p.Watch(ctx)

	if ev := receive(t, events); ev.Err != nil || ev.Token.Authenticated() {
		t.Fatalf("initial event = %+v, want signed out", ev)
	}

	if err := p.Save(ctx, "abc", "xyz", vendor); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if ev := receive(t, events); ev.Token.AccessToken != "abc" {
		t.Fatalf("event after Save = %+v, want abc", ev)
	}

	if err := p.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if ev := receive(t, events); ev.Token.Authenticated() {
		t.Fatalf("event after Clear = %+v, want signed out", ev)
	}

	cancel()
	for range events {
	}
}

func TestWatchReportsStorageFault(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p, _ := newTestProvider(t, &memStore{readErr: errors.New("locked")})

	events := p.Watch(ctx)
	if ev := receive(t, events); !errors.Is(ev.Err, ErrStorage) {
		t.Errorf("event = %+v, want ErrStorage", ev)
	}

	cancel()
	for range events {
	}
}

func TestWatchAuthenticated(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p, _ := newTestProvider(t, &memStore{})

	states := p.WatchAuthenticated(ctx)
	if receive(t, states) {
		t.Fatal("initial state authenticated, want false")
	}

	if err := p.Save(ctx, "abc", "xyz", vendor); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !receive(t, states) {
		t.Fatal("state after Save = false, want true")
	}

	if err := p.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if receive(t, states) {
		t.Fatal("state after Clear = true, want false")
	}

	cancel()
	for range states {
	}
}

func TestWatchObservesOtherProcesses(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	path := filepath.Join(t.TempDir(), "session.json")

	store, err := tokenstore.NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	p, _ := newTestProvider(t, store)
	events := p.Watch(ctx)
	receive(t, events)

	// a second provider over the same file stands in for another process
	other, err := tokenstore.NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	otherProvider, _ := newTestProvider(t, other)
	if err := otherProvider.Save(ctx, "from-elsewhere", "r", vendor); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if ev := receive(t, events); ev.Token.AccessToken != "from-elsewhere" {
		t.Errorf("event = %+v, want token written by other provider", ev)
	}

	cancel()
	for range events {
	}
}
