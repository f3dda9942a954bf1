package profile

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/zalando/go-keyring"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/user/vpn-tunnel/internal/logger"
)

// Vault backends.
const (
	VaultAuto    = "auto"
	VaultKeyring = "keyring"
	VaultFile    = "file"
)

// FileVault keeps configurations in one encrypted file. The key lives next to
// it in <path>.key; both files are 0600.
type FileVault struct {
	mu      sync.Mutex
	path    string
	aead    cipher.AEAD
	secrets map[string]string
}

// NewFileVault opens or creates the vault at path.
func NewFileVault(path string) (*FileVault, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create vault directory: %w", err)
	}

	key, err := loadOrCreateKey(path + ".key")
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}

	v := &FileVault{path: path, aead: aead, secrets: map[string]string{}}
	if err := v.load(); err != nil {
		return nil, err
	}
	return v, nil
}

func loadOrCreateKey(path string) ([]byte, error) {
	key, err := os.ReadFile(path)
	if err == nil {
		if len(key) != chacha20poly1305.KeySize {
			return nil, fmt.Errorf("vault key %s has invalid length %d", path, len(key))
		}
		return key, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read vault key: %w", err)
	}

	key = make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, key, 0600); err != nil {
		return nil, fmt.Errorf("failed to write vault key: %w", err)
	}
	return key, nil
}

func (v *FileVault) load() error {
	data, err := os.ReadFile(v.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read vault: %w", err)
	}

	n := v.aead.NonceSize()
	if len(data) < n {
		return errors.New("vault file is truncated")
	}
	plain, err := v.aead.Open(nil, data[:n], data[n:], nil)
	if err != nil {
		return fmt.Errorf("failed to decrypt vault: %w", err)
	}
	return json.Unmarshal(plain, &v.secrets)
}

func (v *FileVault) saveLocked() error {
	plain, err := json.Marshal(v.secrets)
	if err != nil {
		return err
	}
	nonce := make([]byte, v.aead.NonceSize(), v.aead.NonceSize()+len(plain)+v.aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return err
	}
	data := v.aead.Seal(nonce, nonce, plain, nil)

	tmp, err := os.CreateTemp(filepath.Dir(v.path), ".vault-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), v.path)
}

func (v *FileVault) Put(ref, secret string) error {
	if ref == "" {
		return errors.New("vault reference cannot be empty")
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	prev, had := v.secrets[ref]
	v.secrets[ref] = secret
	if err := v.saveLocked(); err != nil {
		if had {
			v.secrets[ref] = prev
		} else {
			delete(v.secrets, ref)
		}
		return fmt.Errorf("failed to store configuration: %w", err)
	}
	return nil
}

func (v *FileVault) Get(ref string) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	secret, ok := v.secrets[ref]
	if !ok {
		return "", ErrSecretNotFound
	}
	return secret, nil
}

// Delete removes ref. Deleting a missing reference is not an error.
func (v *FileVault) Delete(ref string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	prev, ok := v.secrets[ref]
	if !ok {
		return nil
	}
	delete(v.secrets, ref)
	if err := v.saveLocked(); err != nil {
		v.secrets[ref] = prev
		return fmt.Errorf("failed to delete configuration: %w", err)
	}
	return nil
}

// keyringUsable writes and removes a throwaway entry.
func keyringUsable(service string) error {
	const check = "vpn-tunnel-check"
	if err := keyring.Set(service, check, "check"); err != nil {
		return err
	}
	keyring.Delete(service, check)
	return nil
}

// OpenVault returns the vault for backend. VaultAuto uses the system keyring
// when it accepts a write and the file vault at path otherwise, which is the
// usual case for a root daemon without a session bus.
func OpenVault(backend, service, path string) (Vault, error) {
	if service == "" {
		service = DefaultVaultService
	}
	switch backend {
	case VaultKeyring:
		return NewKeyringVault(service), nil
	case VaultFile:
		return NewFileVault(path)
	case "", VaultAuto:
		if err := keyringUsable(service); err != nil {
			logger.Info("System keyring unavailable (%v), using %s", err, path)
			return NewFileVault(path)
		}
		return NewKeyringVault(service), nil
	default:
		return nil, fmt.Errorf("unknown vault backend: %s", backend)
	}
}
