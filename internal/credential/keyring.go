// Package credential keeps the IMAP password in the OS keyring.
package credential

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/99designs/keyring"
)

const serviceName = "homeconfirm"

// IMAPPasswordKey is the keyring key for an IMAP account's password.
func IMAPPasswordKey(username string) string {
	return "imap:" + username
}

// ErrNotFound is returned when no credential is stored under the key.
var ErrNotFound = errors.New("credential not found")

// Store reads and writes secrets. fileDir hosts the encrypted file backend
// used when no OS keychain is available.
type Store struct {
	fileDir string
	open    func(keyring.Config) (keyring.Keyring, error)
}

// New returns a store whose file fallback lives under configDir.
func New(configDir string) *Store {
	return &Store{fileDir: filepath.Join(configDir, "credentials"), open: keyring.Open}
}

func (s *Store) ring() (keyring.Keyring, error) {
	ring, err := s.open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  s.fileDir,
		FilePasswordFunc:         keyring.FixedStringPrompt(serviceName + "-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// Get retrieves a credential value by key.
func (s *Store) Get(key string) (string, error) {
	ring, err := s.ring()
	if err != nil {
		return "", err
	}
	item, err := ring.Get(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", fmt.Errorf("getting credential %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}
	return string(item.Data), nil
}

// Set stores a credential value by key.
func (s *Store) Set(key, value string) error {
	ring, err := s.ring()
	if err != nil {
		return err
	}
	if err := ring.Set(keyring.Item{Key: key, Data: []byte(value), Label: serviceName + " " + key}); err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}
	return nil
}

// Delete removes a credential by key.
func (s *Store) Delete(key string) error {
	ring, err := s.ring()
	if err != nil {
		return err
	}
	err = ring.Remove(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("deleting credential %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}
	return nil
}
