// Package store implements the encrypted record store for lockbox.
//
// Items, projects and tags live in a single SQLite database file. Item
// payloads are stored as one opaque AES-256-GCM blob each; every other
// column is plaintext metadata so listing, searching and sorting work
// without touching the key. Payload contents are never searchable without
// decryption — a deliberate privacy/performance trade-off.
package store

import (
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	_ "github.com/mattn/go-sqlite3"
)

// DBFileName is the database file name inside the vault directory.
const DBFileName = "vault.db"

// Errors returned by the store.
var (
	ErrNotOpen         = errors.New("store: store is not open")
	ErrItemNotFound    = errors.New("store: item not found")
	ErrProjectNotFound = errors.New("store: project not found")
	ErrTagNotFound     = errors.New("store: tag not found")
	ErrNameRequired    = errors.New("store: name is required")
	ErrDuplicateID     = errors.New("store: id already exists")
)

// Store is the handle to an open encrypted database. It borrows the master
// key from its owner for the lifetime of the handle and never copies it;
// Close drops the reference without wiping, since the vault owns the buffer.
type Store struct {
	db  *sql.DB
	key []byte
	log *zap.Logger
}

// Open opens (or creates) the database at path with the given 32-byte key
// and applies any pending schema migrations. Migrations are idempotent:
// opening an up-to-date database is a no-op.
func Open(path string, key []byte, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("store: failed to open database: %w", err)
	}

	// Single-connection mode avoids "database is locked" errors; the vault
	// serializes access anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := migrateSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("store opened", zap.String("path", path))

	return &Store{db: db, key: key, log: logger}, nil
}

// Close closes the database and drops the key reference. Safe to call on an
// already-closed store.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	s.key = nil
	if err != nil {
		return fmt.Errorf("store: failed to close database: %w", err)
	}
	return nil
}

// open reports whether the store is usable.
func (s *Store) open() bool {
	return s != nil && s.db != nil && s.key != nil
}

// begin starts a transaction, guarding against a closed store.
func (s *Store) begin() (*sql.Tx, error) {
	if !s.open() {
		return nil, ErrNotOpen
	}
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("store: failed to begin transaction: %w", err)
	}
	return tx, nil
}
