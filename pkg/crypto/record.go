package crypto

import (
	"encoding/json"
	"fmt"
)

// EncryptRecord serializes v to its canonical JSON encoding and encrypts it
// with Encrypt. The intermediate plaintext buffer is wiped before returning.
func EncryptRecord[T any](v T, key []byte) ([]byte, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to encode record: %w", err)
	}
	defer SecureWipe(plaintext)
	return Encrypt(plaintext, key)
}

// DecryptRecord decrypts a blob produced by EncryptRecord and decodes it into
// T. A decode failure after a successful decrypt returns ErrDecodeFailed:
// the payload was authentic but not the expected shape, which points at a
// schema or version bug rather than tampering or a wrong key.
func DecryptRecord[T any](blob, key []byte) (T, error) {
	var v T
	plaintext, err := Decrypt(blob, key)
	if err != nil {
		return v, err
	}
	defer SecureWipe(plaintext)
	if err := json.Unmarshal(plaintext, &v); err != nil {
		return v, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}
	return v, nil
}
