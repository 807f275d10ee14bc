package session

import (
	"errors"
	"fmt"
)

// ErrStorage matches every failure of the underlying token store.
// Use errors.Is(err, ErrStorage) to tell persistence faults apart from
// a signed-out state.
var ErrStorage = errors.New("session storage failure")

// StorageError wraps a token store failure with the operation that hit it.
type StorageError struct {
	// Op is the provider operation, e.g. "read" or "write".
	Op string
	// Err is the underlying store error.
	Err error
}

// Error returns the error message.
func (e *StorageError) Error() string {
	return fmt.Sprintf("session storage %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying store error.
func (e *StorageError) Unwrap() error {
	return e.Err
}

// Is reports whether this error matches the target error.
// It supports errors.Is(err, ErrStorage).
func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}
