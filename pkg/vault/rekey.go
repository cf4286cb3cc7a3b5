package vault

import (
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/lockboxapp/lockbox/pkg/audit"
	"github.com/lockboxapp/lockbox/pkg/crypto"
	"github.com/lockboxapp/lockbox/pkg/keychain"
	"github.com/lockboxapp/lockbox/pkg/store"
)

// ChangePassword re-keys the vault: every payload is decrypted with the
// current key and re-encrypted under a key derived from the new password
// with a fresh salt.
//
// The rebuild happens in a sibling database file that replaces the live one
// with a rename, so a crash mid-rebuild leaves the old database intact and
// the old password working. The crash window between persisting the new
// salt/token and the rename is not covered; it is a single metadata write
// wide.
func (v *Vault) ChangePassword(current, next string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.state != Unlocked {
		return ErrVaultLocked
	}
	if len(next) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	if err := v.beginTransition(); err != nil {
		return err
	}
	defer v.endTransition()

	key, err := v.verifyPasswordLocked(current)
	if err != nil {
		return err
	}
	crypto.SecureWipe(key)

	snap, err := v.store.Snapshot()
	if err != nil {
		return fmt.Errorf("vault: failed to read vault for re-key: %w", err)
	}

	newSalt, err := crypto.GenerateSalt()
	if err != nil {
		return err
	}
	newKey := crypto.DeriveKey([]byte(next), newSalt)

	// Rebuild under the new key beside the live database.
	tempPath := v.dbPath() + ".rekey"
	os.Remove(tempPath)
	newStore, err := store.Open(tempPath, newKey, v.log)
	if err != nil {
		crypto.SecureWipe(newKey)
		return fmt.Errorf("vault: failed to build re-keyed store: %w", err)
	}
	if err := newStore.Restore(snap); err != nil {
		newStore.Close()
		os.Remove(tempPath)
		crypto.SecureWipe(newKey)
		return fmt.Errorf("vault: failed to re-encrypt vault: %w", err)
	}
	if err := newStore.Close(); err != nil {
		os.Remove(tempPath)
		crypto.SecureWipe(newKey)
		return fmt.Errorf("vault: failed to finalize re-keyed store: %w", err)
	}

	newToken, err := crypto.Encrypt([]byte(verificationMarker), newKey)
	if err != nil {
		os.Remove(tempPath)
		crypto.SecureWipe(newKey)
		return fmt.Errorf("vault: failed to seal verification token: %w", err)
	}
	if err := v.secrets.Set(keychain.EntrySalt, newSalt); err != nil {
		os.Remove(tempPath)
		crypto.SecureWipe(newKey)
		return fmt.Errorf("vault: failed to store new salt: %w", err)
	}
	if err := v.secrets.Set(keychain.EntryVerification, newToken); err != nil {
		os.Remove(tempPath)
		crypto.SecureWipe(newKey)
		return fmt.Errorf("vault: failed to store new verification token: %w", err)
	}

	// Re-wrap the audit chain key under the new master key. The chain key
	// itself never changes, so records from before the password change keep
	// verifying.
	if auditKey, err := v.loadAuditKeyLocked(v.key); err != nil {
		if !errors.Is(err, keychain.ErrNotFound) {
			os.Remove(tempPath)
			crypto.SecureWipe(newKey)
			return fmt.Errorf("vault: failed to load audit key for re-key: %w", err)
		}
	} else {
		wrapped, err := crypto.Encrypt(auditKey, newKey)
		crypto.SecureWipe(auditKey)
		if err == nil {
			err = v.secrets.Set(keychain.EntryAuditKey, wrapped)
		}
		if err != nil {
			os.Remove(tempPath)
			crypto.SecureWipe(newKey)
			return fmt.Errorf("vault: failed to re-wrap audit key: %w", err)
		}
	}

	// Point of no return: swap the database under the new credentials.
	if err := v.store.Close(); err != nil {
		v.log.Warn("old store close failed during re-key", zap.Error(err))
	}
	v.store = nil
	if err := os.Rename(tempPath, v.dbPath()); err != nil {
		v.state = ErrorState
		crypto.SecureWipe(v.key)
		v.key = nil
		crypto.SecureWipe(newKey)
		return fmt.Errorf("vault: failed to swap re-keyed store: %w", err)
	}

	st, err := store.Open(v.dbPath(), newKey, v.log)
	if err != nil {
		v.state = ErrorState
		crypto.SecureWipe(v.key)
		v.key = nil
		crypto.SecureWipe(newKey)
		return err
	}

	crypto.SecureWipe(v.key)
	v.key = newKey
	v.store = st
	v.lastActivity = v.clock.Now()

	// Refresh the biometric key copy so it matches the new master key.
	if _, err := v.secrets.Get(keychain.EntryBiometricKey); err == nil {
		keyCopy := make([]byte, len(newKey))
		copy(keyCopy, newKey)
		if err := v.secrets.Set(keychain.EntryBiometricKey, keyCopy); err != nil {
			v.log.Warn("failed to refresh biometric key copy", zap.Error(err))
		}
	}

	v.auditLog.LogSuccess(audit.OpVaultPasswordChange, "")
	v.log.Info("master password changed")
	return nil
}

// EnableBiometric stores a copy of the master key behind the biometric
// prompt. The password is re-verified first, and the prompter must confirm
// once before the copy is written (the consent gate).
func (v *Vault) EnableBiometric(password string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.state != Unlocked {
		return ErrVaultLocked
	}
	if v.prompter == nil {
		return ErrNoPrompter
	}

	key, err := v.verifyPasswordLocked(password)
	if err != nil {
		return err
	}
	defer crypto.SecureWipe(key)

	bio := keychain.NewBiometricStore(v.secrets, v.prompter)
	keyCopy := make([]byte, len(key))
	copy(keyCopy, key)
	if err := bio.Set(keychain.EntryBiometricKey, keyCopy); err != nil {
		crypto.SecureWipe(keyCopy)
		return err
	}

	v.log.Info("biometric unlock enabled")
	return nil
}

// DisableBiometric removes the stored key copy. No prompt is required to
// reduce protection, only to use or extend it.
func (v *Vault) DisableBiometric() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.state == NeedsSetup {
		return ErrNoVault
	}
	if err := v.secrets.Delete(keychain.EntryBiometricKey); err != nil &&
		!errors.Is(err, keychain.ErrNotFound) {
		return fmt.Errorf("vault: failed to remove biometric key: %w", err)
	}
	v.log.Info("biometric unlock disabled")
	return nil
}

// BiometricEnabled reports whether a biometric key copy exists.
func (v *Vault) BiometricEnabled() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, err := v.secrets.Get(keychain.EntryBiometricKey)
	return err == nil
}

// Destroy verifies the password, locks the vault and deletes the database
// and every secret-store entry. The vault returns to NeedsSetup.
func (v *Vault) Destroy(password string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.state == NeedsSetup {
		return ErrNoVault
	}
	if err := v.beginTransition(); err != nil {
		return err
	}
	defer v.endTransition()

	key, err := v.verifyPasswordLocked(password)
	if err != nil {
		return err
	}
	crypto.SecureWipe(key)

	v.auditLog.LogSuccess(audit.OpVaultDestroy, "")
	v.lockLocked(LockDestroy)

	if err := os.Remove(v.dbPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("vault: failed to remove database: %w", err)
	}
	for _, entry := range []string{
		keychain.EntrySalt, keychain.EntryVerification,
		keychain.EntryBiometricKey, keychain.EntryAuditKey,
	} {
		if err := v.secrets.Delete(entry); err != nil && !errors.Is(err, keychain.ErrNotFound) {
			return fmt.Errorf("vault: failed to remove %s entry: %w", entry, err)
		}
	}
	// Drop the log files too; a re-created vault gets a fresh chain key and
	// could not verify records from the old one.
	if err := v.auditLog.Reset(); err != nil {
		v.log.Warn("failed to clear audit log", zap.Error(err))
	}

	v.state = NeedsSetup
	v.log.Info("vault destroyed")
	return nil
}
