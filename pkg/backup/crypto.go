package backup

import (
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/hkdf"

	"github.com/lockboxapp/lockbox/pkg/crypto"
)

// keyInfo domain-separates backup keys from every other use of the
// password-derived secret.
const keyInfo = "lockbox-backup-encryption"

// deriveBackupKey turns an export password and salt into a backup
// encryption key. PBKDF2 does the stretching, HKDF-SHA256 binds the result
// to the backup context, so the same password used as a master password
// yields an unrelated key.
func deriveBackupKey(password string, salt []byte) ([]byte, error) {
	stretched := crypto.DeriveKey([]byte(password), salt)
	defer crypto.SecureWipe(stretched)

	r := hkdf.New(sha256.New, stretched, salt, []byte(keyInfo))
	key := make([]byte, crypto.KeyLength)
	if _, err := r.Read(key); err != nil {
		return nil, fmt.Errorf("backup: failed to derive key: %w", err)
	}
	return key, nil
}
