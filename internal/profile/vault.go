package profile

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/zalando/go-keyring"
)

// DefaultVaultService is the keyring service name used when none is configured.
const DefaultVaultService = "vpn-tunnel"

// ErrSecretNotFound is returned by Vault.Get for an unknown reference.
var ErrSecretNotFound = errors.New("configuration not found in vault")

// Vault holds serialized tunnel configurations outside the profile record.
type Vault interface {
	Put(ref, secret string) error
	Get(ref string) (string, error)
	Delete(ref string) error
}

// NewRef returns a fresh vault reference.
func NewRef() string {
	return uuid.NewString()
}

// KeyringVault stores configurations in the system keyring.
type KeyringVault struct {
	Service string
}

// NewKeyringVault returns a vault for service, or DefaultVaultService if empty.
func NewKeyringVault(service string) *KeyringVault {
	if service == "" {
		service = DefaultVaultService
	}
	return &KeyringVault{Service: service}
}

func (v *KeyringVault) Put(ref, secret string) error {
	if ref == "" {
		return errors.New("vault reference cannot be empty")
	}
	if err := keyring.Set(v.Service, ref, secret); err != nil {
		return fmt.Errorf("failed to store configuration: %w", err)
	}
	return nil
}

func (v *KeyringVault) Get(ref string) (string, error) {
	if ref == "" {
		return "", ErrSecretNotFound
	}
	secret, err := keyring.Get(v.Service, ref)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrSecretNotFound
		}
		return "", fmt.Errorf("failed to read configuration: %w", err)
	}
	return secret, nil
}

// Delete removes ref. Deleting a missing reference is not an error.
func (v *KeyringVault) Delete(ref string) error {
	if ref == "" {
		return nil
	}
	if err := keyring.Delete(v.Service, ref); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete configuration: %w", err)
	}
	return nil
}
