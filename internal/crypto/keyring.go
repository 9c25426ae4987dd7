// Package crypto stores the database encryption key outside the database.
package crypto

import (
	"errors"
	"fmt"
	"os"

	"github.com/zalando/go-keyring"
)

const (
	ServiceName = "timebill"
	KeyName     = "db-encryption-key"

	// EnvKey overrides the OS keyring, for headless hosts without one
	EnvKey = "TIMEBILL_DB_KEY"
)

// ErrNoKey means no key has been stored yet
var ErrNoKey = errors.New("encryption key not found")

// Keyring provides secure key storage abstraction
type Keyring interface {
	GetKey() (string, error)
	SetKey(password string) error
	DeleteKey() error
}

type systemKeyring struct {
	service string
	user    string
	getenv  func(string) string
}

// NewKeyring returns a keyring backed by the OS credential store
// (Keychain, Secret Service, or Windows Credential Manager) with an
// environment variable override.
func NewKeyring() Keyring {
	return &systemKeyring{service: ServiceName, user: KeyName, getenv: os.Getenv}
}

// GetKey returns the key from TIMEBILL_DB_KEY or the OS keyring
func (k *systemKeyring) GetKey() (string, error) {
	if key := k.getenv(EnvKey); key != "" {
		return key, nil
	}

	key, err := keyring.Get(k.service, k.user)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", fmt.Errorf("%w (set %s or run timebill once interactively)", ErrNoKey, EnvKey)
		}
		return "", fmt.Errorf("failed to retrieve key from keyring: %w", err)
	}
	if key == "" {
		return "", ErrNoKey
	}

	return key, nil
}

// SetKey stores the key in the OS keyring
func (k *systemKeyring) SetKey(password string) error {
	if password == "" {
		return errors.New("password cannot be empty")
	}

	if err := keyring.Set(k.service, k.user, password); err != nil {
		return fmt.Errorf("failed to store key in keyring (set %s instead): %w", EnvKey, err)
	}
	return nil
}

// DeleteKey removes the key from the OS keyring
func (k *systemKeyring) DeleteKey() error {
	err := keyring.Delete(k.service, k.user)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return ErrNoKey
		}
		return fmt.Errorf("failed to delete key from keyring: %w", err)
	}
	return nil
}
