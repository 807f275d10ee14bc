package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// KeyringStore provides OS-native secure credential storage for the session.
// The whole record is stored as one JSON-encoded secret so updates are atomic.
type KeyringStore struct {
	service string
	user    string
}

// Compile-time check to ensure KeyringStore implements Store
var _ Store = (*KeyringStore)(nil)

// NewKeyringStore creates a KeyringStore for the OS-native credential storage
// (macOS Keychain, Windows Credential Manager, etc.) using the given service and user identifiers.
func NewKeyringStore(service, user string) (*KeyringStore, error) {
	if service == "" {
		return nil, fmt.Errorf("service cannot be empty")
	}
	if user == "" {
		return nil, fmt.Errorf("user cannot be empty")
	}

	return &KeyringStore{
		service: service,
		user:    user,
	}, nil
}

// Read returns the record from the system keyring. A missing item is an empty record.
func (k *KeyringStore) Read(ctx context.Context) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	secret, err := keyring.Get(k.service, k.user)
	if errors.Is(err, keyring.ErrNotFound) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}

	record := map[string]string{}
	if secret == "" {
		return record, nil
	}
	if err := json.Unmarshal([]byte(secret), &record); err != nil {
		return nil, fmt.Errorf("decoding keyring item for service %s, user %s: %w", k.service, k.user, err)
	}
	return record, nil
}

// Write persists the record to the system keyring, overwriting any existing value.
// An empty record deletes the keyring item.
func (k *KeyringStore) Write(ctx context.Context, record map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if len(record) == 0 {
		err := keyring.Delete(k.service, k.user)
		if errors.Is(err, keyring.ErrNotFound) {
			return nil
		}
		return err
	}

	secret, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encoding session record: %w", err)
	}
	return keyring.Set(k.service, k.user, string(secret))
}
