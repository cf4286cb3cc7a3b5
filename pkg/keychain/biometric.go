package keychain

import (
	"errors"
	"fmt"
)

// Biometric failure kinds. These map one-to-one onto the platform prompt
// outcomes so callers can tell "try again" (cancelled) from "unavailable"
// (no hardware, not enrolled) from "locked out" (too many attempts).
var (
	// ErrBiometryNotAvailable indicates the device has no biometric hardware.
	ErrBiometryNotAvailable = errors.New("keychain: biometry not available")

	// ErrBiometryNotEnrolled indicates no fingerprints/faces are enrolled.
	ErrBiometryNotEnrolled = errors.New("keychain: biometry not enrolled")

	// ErrBiometryLockedOut indicates too many failed attempts; the gate stays
	// shut until the user unlocks the device by other means.
	ErrBiometryLockedOut = errors.New("keychain: biometry locked out")

	// ErrPromptCancelled indicates the user dismissed the prompt. This is a
	// non-fatal "unlock not completed" outcome, not corruption.
	ErrPromptCancelled = errors.New("keychain: biometric prompt cancelled")
)

// Prompter shows a platform biometric prompt and reports the outcome.
// A nil error means the user authenticated successfully.
type Prompter interface {
	Authenticate(reason string) error
}

// BiometricStore gates one Store entry behind a Prompter. Reading or writing
// the gated entry requires a successful biometric prompt first; everything
// else is delegated untouched.
type BiometricStore struct {
	store    Store
	prompter Prompter
}

// NewBiometricStore wraps store so that EntryBiometricKey is released only
// after prompter succeeds.
func NewBiometricStore(store Store, prompter Prompter) *BiometricStore {
	return &BiometricStore{store: store, prompter: prompter}
}

// Set stores an entry. Storing the gated entry requires a successful prompt
// first: this is the user's consent gate for enabling biometric unlock.
func (b *BiometricStore) Set(name string, value []byte) error {
	if name == EntryBiometricKey {
		if err := b.prompter.Authenticate("Enable biometric unlock for your vault"); err != nil {
			return fmt.Errorf("keychain: biometric consent not granted: %w", err)
		}
	}
	return b.store.Set(name, value)
}

// Get retrieves an entry, prompting before the gated entry is released.
func (b *BiometricStore) Get(name string) ([]byte, error) {
	if name == EntryBiometricKey {
		if err := b.prompter.Authenticate("Unlock your vault"); err != nil {
			return nil, err
		}
	}
	return b.store.Get(name)
}

// Delete removes an entry. Deletion never prompts: disabling biometric
// unlock must always be possible, including after hardware lockout.
func (b *BiometricStore) Delete(name string) error {
	return b.store.Delete(name)
}
