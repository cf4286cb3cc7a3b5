// Package keychain provides storage for the vault's small bootstrap secrets:
// the key-derivation salt, the verification token, and the optional
// biometric-gated master-key copy. These entries live outside the encrypted
// database because they must be readable before the vault is unlocked.
//
// The Store interface is the contract a platform secure-credential store
// (macOS Keychain, Windows Credential Manager, Secret Service) implements.
// FileStore is the default implementation, persisting one 0600 file per
// entry under a 0700 directory.
package keychain

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ServiceName scopes all lockbox entries in a shared platform store.
const ServiceName = "io.lockbox.vault"

// Well-known entry names.
const (
	// EntrySalt holds the key-derivation salt.
	EntrySalt = "salt"
	// EntryVerification holds the ciphertext of the verification marker.
	EntryVerification = "verification"
	// EntryBiometricKey holds the biometric-gated master-key copy.
	EntryBiometricKey = "biometric-key"
	// EntryAuditKey holds the audit chain key encrypted under the master
	// key. The chain key is random, not derived, so it survives password
	// changes and keeps old audit records verifiable.
	EntryAuditKey = "audit-key"
)

// Errors returned by keychain stores.
var (
	ErrNotFound     = errors.New("keychain: entry not found")
	ErrInvalidEntry = errors.New("keychain: invalid entry name")
)

// Store persists named secrets under one service namespace.
type Store interface {
	Set(name string, value []byte) error
	Get(name string) ([]byte, error)
	Delete(name string) error
}

const (
	fileMode = 0600 // owner read/write only
	dirMode  = 0700 // owner read/write/execute only
)

// FileStore is a file-backed Store. Each entry is one file in dir.
type FileStore struct {
	dir string
}

// NewFileStore returns a FileStore rooted at dir. The directory is created
// on first write.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (s *FileStore) path(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, "/\\") || strings.Contains(name, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidEntry, name)
	}
	return filepath.Join(s.dir, name), nil
}

// Set writes an entry, creating the store directory if needed.
func (s *FileStore) Set(name string, value []byte) error {
	p, err := s.path(name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, dirMode); err != nil {
		return fmt.Errorf("keychain: failed to create store directory: %w", err)
	}
	if err := os.WriteFile(p, value, fileMode); err != nil {
		return fmt.Errorf("keychain: failed to write entry %q: %w", name, err)
	}
	return nil
}

// Get reads an entry, returning ErrNotFound if it does not exist.
func (s *FileStore) Get(name string) ([]byte, error) {
	p, err := s.path(name)
	if err != nil {
		return nil, err
	}
	value, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
		}
		return nil, fmt.Errorf("keychain: failed to read entry %q: %w", name, err)
	}
	return value, nil
}

// Delete removes an entry. Deleting a missing entry is not an error.
func (s *FileStore) Delete(name string) error {
	p, err := s.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("keychain: failed to delete entry %q: %w", name, err)
	}
	return nil
}
