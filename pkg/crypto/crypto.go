// Package crypto provides the cryptographic primitives for lockbox.
//
// This package implements AES-256-GCM authenticated encryption and
// PBKDF2-HMAC-SHA512 key derivation.
//
// # Security Features
//
//   - AES-256-GCM authenticated encryption
//   - PBKDF2-HMAC-SHA512 key derivation (600,000 iterations)
//   - Cryptographically secure random nonce generation, fresh per call
//   - Secure memory wiping for sensitive data
//
// Encrypted blobs are self-contained: the random nonce is prepended to the
// GCM output, so a single []byte round-trips through storage.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha512"
	"crypto/subtle"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/text/unicode/norm"
)

const (
	// KeyLength is the length of encryption keys in bytes (256 bits).
	KeyLength = 32

	// SaltLength is the length of key-derivation salts in bytes.
	SaltLength = 16

	// NonceLength is the length of GCM nonces in bytes (96 bits).
	NonceLength = 12

	// TagLength is the length of the GCM authentication tag in bytes.
	TagLength = 16

	// PBKDF2Iterations is the iteration count for key derivation.
	// The derivation is deliberately slow (hundreds of milliseconds) as a
	// brute-force deterrent. Do not lower it.
	PBKDF2Iterations = 600_000
)

// Sentinel errors returned by crypto functions.
var (
	// ErrInvalidKey indicates the key is not 32 bytes.
	ErrInvalidKey = errors.New("crypto: invalid key length, must be 32 bytes")

	// ErrInvalidData indicates the input is empty or too short to be a valid blob.
	ErrInvalidData = errors.New("crypto: invalid data")

	// ErrIntegrityCheckFailed indicates authentication tag verification failed.
	// Callers cannot distinguish tampering from a wrong key here.
	ErrIntegrityCheckFailed = errors.New("crypto: integrity check failed")

	// ErrDecodeFailed indicates a decrypted payload was authentic but did not
	// decode to the expected shape. This signals a schema bug, not tampering.
	ErrDecodeFailed = errors.New("crypto: payload decode failed")
)

// GenerateSalt returns SaltLength bytes of cryptographically secure random data.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: failed to generate salt: %w", err)
	}
	return salt, nil
}

// GenerateKey returns KeyLength bytes of cryptographically secure random
// data, for keys that are stored rather than derived from a password.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeyLength)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("crypto: failed to generate key: %w", err)
	}
	return key, nil
}

// DeriveKey derives a 256-bit encryption key from a password using
// PBKDF2-HMAC-SHA512 with 600,000 iterations.
//
// The password is NFKC-normalized first so that visually identical inputs
// typed on different platforms derive the same key. Deterministic: identical
// password and salt always yield identical output.
func DeriveKey(password, salt []byte) []byte {
	normalized := norm.NFKC.Bytes(password)
	key := pbkdf2.Key(normalized, salt, PBKDF2Iterations, KeyLength, sha512.New)
	if len(normalized) > 0 && (len(password) == 0 || &normalized[0] != &password[0]) {
		SecureWipe(normalized)
	}
	return key
}

// VerifyPassword re-derives a key from password and salt and compares it to
// expected in constant time. This is a convenience wrapper; the vault's real
// verification path decrypts the stored verification token instead.
func VerifyPassword(password, salt, expected []byte) bool {
	key := DeriveKey(password, salt)
	defer SecureWipe(key)
	return subtle.ConstantTimeCompare(key, expected) == 1
}

// Encrypt encrypts plaintext using AES-256-GCM authenticated encryption.
//
// A cryptographically secure random 12-byte nonce is generated per call and
// prepended to the ciphertext, so the result is nonce || ciphertext || tag in
// a single buffer. Nonces are never reused for a given key.
//
// Returns ErrInvalidKey if the key is not 32 bytes and ErrInvalidData if the
// plaintext is empty.
func Encrypt(plaintext, key []byte) ([]byte, error) {
	if len(key) != KeyLength {
		return nil, ErrInvalidKey
	}
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("%w: empty plaintext", ErrInvalidData)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create GCM: %w", err)
	}

	nonce := make([]byte, NonceLength, NonceLength+len(plaintext)+TagLength)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: failed to generate nonce: %w", err)
	}

	// Seal appends ciphertext+tag to the nonce, producing one blob.
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt decrypts a nonce || ciphertext || tag blob produced by Encrypt.
//
// The authentication tag is verified before any plaintext is returned.
// Returns ErrIntegrityCheckFailed on tag mismatch (tampering or wrong key)
// and ErrInvalidData if the blob is shorter than nonce + tag + 1 byte.
func Decrypt(blob, key []byte) ([]byte, error) {
	if len(key) != KeyLength {
		return nil, ErrInvalidKey
	}
	if len(blob) < NonceLength+TagLength+1 {
		return nil, fmt.Errorf("%w: blob too short", ErrInvalidData)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create GCM: %w", err)
	}

	nonce := blob[:NonceLength]
	ciphertext := blob[NonceLength:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrIntegrityCheckFailed
	}
	return plaintext, nil
}

// SecureWipe overwrites a byte slice with zeros in a way that prevents
// compiler optimization from removing the operation. Call it on every exit
// path that holds key or plaintext material.
func SecureWipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
	// runtime.KeepAlive ensures the writes are not optimized away since b is
	// still "in use" after the loop.
	runtime.KeepAlive(b)
}
