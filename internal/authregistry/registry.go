// Package authregistry tracks the live HTTP clients that cache bearer
// credentials so that signing out can drop every cached credential at once.
//
// A Registry is an ordinary value owned by the application and passed to
// every client constructor that needs it. Membership is added when a client
// is built and lasts for the life of the registry. One mutex guards both
// insertion and the invalidate-all iteration.
package authregistry

import (
	"log/slog"
	"sync"
)

// Invalidator is a client-side credential cache that can be emptied.
type Invalidator interface {
	// InvalidateToken drops the cached credential. The next request must
	// load credentials from the token provider again.
	InvalidateToken()
}

// Registry is the set of live credential caches.
type Registry struct {
	mu      sync.Mutex
	members map[Invalidator]struct{}
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		members: make(map[Invalidator]struct{}),
	}
}

// Register adds m to the set. Registering the same member twice is a no-op.
func (r *Registry) Register(m Invalidator) {
	if m == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members[m] = struct{}{}
}

// Contains reports whether m is registered.
func (r *Registry) Contains(m Invalidator) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.members[m]
	return ok
}

// Len returns the number of registered members.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// InvalidateAll drops the cached credential of every member. Membership is
// unchanged. A panicking member does not stop the remaining ones.
func (r *Registry) InvalidateAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for m := range r.members {
		invalidate(m)
	}
	slog.Debug("invalidated cached credentials", "clients", len(r.members))
}

func invalidate(m Invalidator) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("credential cache invalidation panicked", "panic", p)
		}
	}()
	m.InvalidateToken()
}
