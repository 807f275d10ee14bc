package tokenstore

import (
	"context"
	"errors"
)

// ErrReadOnly is returned by Write on backends that cannot persist changes.
var ErrReadOnly = errors.New("token storage is read-only")

// Store reads and replaces the session record in persistent storage.
type Store interface {
	// Read returns the stored record. A store that holds nothing yet returns
	// an empty, non-nil map and no error.
	Read(ctx context.Context) (map[string]string, error)

	// Write atomically replaces the stored record. Keys absent from record
	// are removed. Returns ErrReadOnly for read-only backends.
	Write(ctx context.Context, record map[string]string) error
}

// Watcher is implemented by stores that can report changes made outside
// this process. The channel receives a value after each change and is
// closed when ctx ends.
type Watcher interface {
	Watch(ctx context.Context) (<-chan struct{}, error)
}
