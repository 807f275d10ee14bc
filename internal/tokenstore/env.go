package tokenstore

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// EnvStore provides read-only access to a session provisioned through
// environment variables. Record key "access_token" maps to <prefix>ACCESS_TOKEN.
type EnvStore struct {
	prefix string
	keys   []string
}

// Compile-time check to ensure EnvStore implements Store
var _ Store = (*EnvStore)(nil)

// NewEnvStore creates an EnvStore reading the given record keys under prefix.
// Returns error if the prefix is empty or no keys are given.
func NewEnvStore(prefix string, keys ...string) (*EnvStore, error) {
	if prefix == "" {
		return nil, fmt.Errorf("environment prefix cannot be empty")
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("at least one record key is required")
	}

	return &EnvStore{
		prefix: prefix,
		keys:   keys,
	}, nil
}

// Read returns the record assembled from the set environment variables.
// Unset variables are left out of the record.
func (e *EnvStore) Read(ctx context.Context) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	record := make(map[string]string, len(e.keys))
	for _, key := range e.keys {
		if value, ok := os.LookupEnv(e.varName(key)); ok {
			record[key] = value
		}
	}
	return record, nil
}

// Write is not supported for environment variables (they are read-only).
func (e *EnvStore) Write(ctx context.Context, _ map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return fmt.Errorf("environment variables with prefix %s: %w", e.prefix, ErrReadOnly)
}

func (e *EnvStore) varName(key string) string {
	return e.prefix + strings.ToUpper(key)
}
