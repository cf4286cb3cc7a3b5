// Package vault implements the lockbox lifecycle: a state machine over
// NeedsSetup, Locked and Unlocked that owns the master key, the encrypted
// record store and the auto-lock timer.
//
// The verification token in the secret store is the sole authority on
// whether a password (or a biometric key copy) is correct: unlock derives a
// key and proves it by decrypting the token. No password or key hash is
// ever persisted.
package vault

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lockboxapp/lockbox/pkg/audit"
	"github.com/lockboxapp/lockbox/pkg/crypto"
	"github.com/lockboxapp/lockbox/pkg/keychain"
	"github.com/lockboxapp/lockbox/pkg/store"
)

// verificationMarker is the plaintext sealed into the verification token.
// Versioned so a future format change can coexist with old vaults.
const verificationMarker = "lockbox.verification.v1"

// State is the lifecycle state of the vault.
type State int

const (
	// NeedsSetup means no vault exists yet.
	NeedsSetup State = iota
	// Locked means the vault exists and the master key is not in memory.
	Locked
	// Unlocked means the master key is held and the store is open.
	Unlocked
	// ErrorState means the vault data is present but unusable.
	ErrorState
)

func (s State) String() string {
	switch s {
	case NeedsSetup:
		return "needs_setup"
	case Locked:
		return "locked"
	case Unlocked:
		return "unlocked"
	case ErrorState:
		return "error"
	default:
		return "unknown"
	}
}

// Errors returned by vault operations.
var (
	ErrVaultExists      = errors.New("vault: vault already exists")
	ErrNoVault          = errors.New("vault: no vault exists")
	ErrVaultLocked      = errors.New("vault: vault is locked")
	ErrAlreadyUnlocked  = errors.New("vault: vault is already unlocked")
	ErrInvalidPassword  = errors.New("vault: invalid master password")
	ErrPasswordTooShort = errors.New("vault: password must be at least 8 characters")
	ErrBusy             = errors.New("vault: another transition is in progress")
	ErrBiometricOff     = errors.New("vault: biometric unlock is not enabled")
	ErrNoPrompter       = errors.New("vault: no biometric prompter configured")
)

// MinPasswordLength is the minimum accepted master password length.
const MinPasswordLength = 8

// LockReason tells lock hooks why the vault locked.
type LockReason string

const (
	LockManual  LockReason = "manual"
	LockAuto    LockReason = "autolock"
	LockDestroy LockReason = "destroy"
)

// Vault is the lifecycle state machine. All exported methods are safe for
// concurrent use; one mutex serializes transitions, so concurrent calls
// queue rather than interleave.
type Vault struct {
	mu  sync.Mutex
	dir string

	state         State
	transitioning bool
	key           []byte
	store         *store.Store

	secrets  keychain.Store
	prompter keychain.Prompter
	log      *zap.Logger
	auditLog *audit.Logger

	clock        Clock
	timeout      time.Duration
	lastActivity time.Time
	stopAutoLock chan struct{}
	lockHooks    []func(LockReason)
}

// Option configures a Vault.
type Option func(*Vault)

// WithLogger sets the internal structured logger.
func WithLogger(l *zap.Logger) Option {
	return func(v *Vault) {
		if l != nil {
			v.log = l
		}
	}
}

// WithPrompter sets the biometric prompter collaborator.
func WithPrompter(p keychain.Prompter) Option {
	return func(v *Vault) { v.prompter = p }
}

// WithClock overrides the time source, for tests.
func WithClock(c Clock) Option {
	return func(v *Vault) { v.clock = c }
}

// WithAutoLockTimeout sets the initial inactivity timeout. Zero disables
// auto-lock.
func WithAutoLockTimeout(d time.Duration) Option {
	return func(v *Vault) { v.timeout = d }
}

// New builds a vault over the given directory and secret store. The initial
// state is Locked when a salt entry exists, NeedsSetup otherwise.
func New(dir string, secrets keychain.Store, opts ...Option) *Vault {
	v := &Vault{
		dir:      dir,
		secrets:  secrets,
		log:      zap.NewNop(),
		auditLog: audit.NewLogger(filepath.Join(dir, "audit")),
		clock:    systemClock{},
		timeout:  DefaultAutoLockTimeout,
	}
	for _, opt := range opts {
		opt(v)
	}

	// Only a definite "no salt" means NeedsSetup. Treating a transient
	// read failure the same way would let Create overwrite the real salt.
	switch _, err := secrets.Get(keychain.EntrySalt); {
	case err == nil:
		v.state = Locked
	case errors.Is(err, keychain.ErrNotFound):
		v.state = NeedsSetup
	default:
		v.log.Warn("secret store unreadable", zap.Error(err))
		v.state = ErrorState
	}
	return v
}

// State returns the current lifecycle state.
func (v *Vault) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Audit returns the vault's audit logger for inspection commands.
func (v *Vault) Audit() *audit.Logger {
	return v.auditLog
}

// dbPath is the record store location inside the vault directory.
func (v *Vault) dbPath() string {
	return filepath.Join(v.dir, store.DBFileName)
}

// beginTransition marks a long-running transition so re-entrant create or
// change-password calls fail fast instead of deadlocking behind the mutex.
// The caller must hold v.mu and must call endTransition.
func (v *Vault) beginTransition() error {
	if v.transitioning {
		return ErrBusy
	}
	v.transitioning = true
	return nil
}

func (v *Vault) endTransition() {
	v.transitioning = false
}

// Create initializes a new vault: fresh salt, key derivation, verification
// token and an empty record store. The vault ends up Unlocked.
func (v *Vault) Create(password string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.state != NeedsSetup {
		return ErrVaultExists
	}
	if len(password) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	if err := v.beginTransition(); err != nil {
		return err
	}
	defer v.endTransition()

	if err := os.MkdirAll(v.dir, 0700); err != nil {
		return fmt.Errorf("vault: failed to create directory: %w", err)
	}
	if err := store.CheckDiskSpace(v.dbPath()); err != nil {
		return err
	}

	salt, err := crypto.GenerateSalt()
	if err != nil {
		return err
	}
	key := crypto.DeriveKey([]byte(password), salt)

	token, err := crypto.Encrypt([]byte(verificationMarker), key)
	if err != nil {
		crypto.SecureWipe(key)
		return fmt.Errorf("vault: failed to seal verification token: %w", err)
	}

	if err := v.secrets.Set(keychain.EntrySalt, salt); err != nil {
		crypto.SecureWipe(key)
		return fmt.Errorf("vault: failed to store salt: %w", err)
	}
	if err := v.secrets.Set(keychain.EntryVerification, token); err != nil {
		crypto.SecureWipe(key)
		v.secrets.Delete(keychain.EntrySalt)
		return fmt.Errorf("vault: failed to store verification token: %w", err)
	}

	// The audit chain key is random and wrapped under the master key. It
	// stays fixed for the vault's lifetime; password changes only re-wrap
	// it, so the whole chain verifies under one key.
	auditKey, err := crypto.GenerateKey()
	if err == nil {
		var wrapped []byte
		wrapped, err = crypto.Encrypt(auditKey, key)
		if err == nil {
			err = v.secrets.Set(keychain.EntryAuditKey, wrapped)
		}
	}
	if err != nil {
		crypto.SecureWipe(key)
		crypto.SecureWipe(auditKey)
		v.secrets.Delete(keychain.EntrySalt)
		v.secrets.Delete(keychain.EntryVerification)
		return fmt.Errorf("vault: failed to provision audit key: %w", err)
	}

	st, err := store.Open(v.dbPath(), key, v.log)
	if err != nil {
		crypto.SecureWipe(key)
		crypto.SecureWipe(auditKey)
		v.secrets.Delete(keychain.EntrySalt)
		v.secrets.Delete(keychain.EntryVerification)
		v.secrets.Delete(keychain.EntryAuditKey)
		v.state = ErrorState
		return err
	}

	v.key = key
	v.store = st
	v.state = Unlocked
	v.startAutoLockLocked()

	if err := v.auditLog.SetHMACKey(auditKey); err == nil {
		v.auditLog.LogSuccess(audit.OpVaultCreate, "")
	}
	crypto.SecureWipe(auditKey)
	v.log.Info("vault created", zap.String("dir", v.dir))
	return nil
}

// Unlock verifies the password against the verification token and opens the
// record store. Idempotence: unlocking an unlocked vault is an error, not a
// re-derivation.
func (v *Vault) Unlock(password string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	switch v.state {
	case NeedsSetup:
		return ErrNoVault
	case Unlocked:
		return ErrAlreadyUnlocked
	}

	key, err := v.verifyPasswordLocked(password)
	if err != nil {
		return err
	}
	return v.finishUnlockLocked(key, audit.OpVaultUnlock)
}

// UnlockWithBiometric releases the stored key copy through the prompter and
// re-verifies it against the same verification token a password unlock
// uses. Prompt cancellation surfaces as keychain.ErrPromptCancelled and
// leaves the vault Locked.
func (v *Vault) UnlockWithBiometric() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	switch v.state {
	case NeedsSetup:
		return ErrNoVault
	case Unlocked:
		return ErrAlreadyUnlocked
	}
	if v.prompter == nil {
		return ErrNoPrompter
	}

	bio := keychain.NewBiometricStore(v.secrets, v.prompter)
	key, err := bio.Get(keychain.EntryBiometricKey)
	if err != nil {
		if errors.Is(err, keychain.ErrNotFound) {
			return ErrBiometricOff
		}
		v.auditLog.LogError(audit.OpVaultUnlockFailed, "", "biometric prompt failed")
		return err
	}

	// The stored copy could be stale after a password change that failed
	// halfway; the token check catches that.
	if err := v.checkVerificationLocked(key); err != nil {
		crypto.SecureWipe(key)
		return err
	}
	return v.finishUnlockLocked(key, audit.OpVaultUnlockBio)
}

// verifyPasswordLocked derives a key from the password and proves it
// against the verification token. On success the caller owns the returned
// key. Caller must hold v.mu.
func (v *Vault) verifyPasswordLocked(password string) ([]byte, error) {
	salt, err := v.secrets.Get(keychain.EntrySalt)
	if err != nil {
		v.state = ErrorState
		return nil, fmt.Errorf("vault: failed to load salt: %w", err)
	}

	key := crypto.DeriveKey([]byte(password), salt)
	if err := v.checkVerificationLocked(key); err != nil {
		crypto.SecureWipe(key)
		return nil, err
	}
	return key, nil
}

// checkVerificationLocked decrypts the verification token with the
// candidate key. A wrong key and a corrupted token are indistinguishable to
// the caller; the internal log tells them apart.
func (v *Vault) checkVerificationLocked(key []byte) error {
	token, err := v.secrets.Get(keychain.EntryVerification)
	if err != nil {
		v.state = ErrorState
		return fmt.Errorf("vault: failed to load verification token: %w", err)
	}

	marker, err := crypto.Decrypt(token, key)
	if err != nil {
		v.log.Debug("verification token rejected", zap.Error(err))
		v.auditLog.LogError(audit.OpVaultUnlockFailed, "", "verification failed")
		return ErrInvalidPassword
	}
	ok := string(marker) == verificationMarker
	crypto.SecureWipe(marker)
	if !ok {
		v.log.Warn("verification token decrypted to unexpected marker")
		v.auditLog.LogError(audit.OpVaultUnlockFailed, "", "marker mismatch")
		return ErrInvalidPassword
	}
	return nil
}

// loadAuditKeyLocked unwraps the audit chain key with the master key. The
// caller owns the returned key. Caller must hold v.mu.
func (v *Vault) loadAuditKeyLocked(key []byte) ([]byte, error) {
	wrapped, err := v.secrets.Get(keychain.EntryAuditKey)
	if err != nil {
		return nil, err
	}
	auditKey, err := crypto.Decrypt(wrapped, key)
	if err != nil {
		return nil, fmt.Errorf("vault: failed to unwrap audit key: %w", err)
	}
	return auditKey, nil
}

// finishUnlockLocked opens the store and moves to Unlocked. Takes ownership
// of key; on failure the key is wiped and the vault stays Locked.
func (v *Vault) finishUnlockLocked(key []byte, op string) error {
	st, err := store.Open(v.dbPath(), key, v.log)
	if err != nil {
		crypto.SecureWipe(key)
		return err
	}

	v.key = key
	v.store = st
	v.state = Unlocked
	v.startAutoLockLocked()

	if auditKey, err := v.loadAuditKeyLocked(key); err != nil {
		v.log.Warn("audit logging unavailable", zap.Error(err))
	} else {
		if err := v.auditLog.SetHMACKey(auditKey); err == nil {
			v.auditLog.LogSuccess(op, "")
		}
		crypto.SecureWipe(auditKey)
	}
	v.log.Info("vault unlocked")
	return nil
}

// Lock wipes the key, closes the store and fires lock hooks. Idempotent and
// infallible: locking a locked or absent vault is a no-op.
func (v *Vault) Lock() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.lockLocked(LockManual)
}

// lockLocked performs the transition. Caller must hold v.mu.
func (v *Vault) lockLocked(reason LockReason) {
	if v.state != Unlocked {
		return
	}

	v.stopAutoLockLocked()

	op := audit.OpVaultLock
	if reason == LockAuto {
		op = audit.OpVaultAutoLock
	}
	v.auditLog.LogSuccess(op, "")
	v.auditLog.ClearKey()

	if v.store != nil {
		if err := v.store.Close(); err != nil {
			v.log.Warn("store close failed during lock", zap.Error(err))
		}
		v.store = nil
	}
	crypto.SecureWipe(v.key)
	v.key = nil
	v.state = Locked

	for _, hook := range v.lockHooks {
		hook(reason)
	}
	v.log.Info("vault locked", zap.String("reason", string(reason)))
}

// OnLock registers a hook fired after every transition out of Unlocked,
// with the vault already locked. Hooks run on the locking goroutine and
// must not call back into the vault.
func (v *Vault) OnLock(hook func(LockReason)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.lockHooks = append(v.lockHooks, hook)
}

// Store returns the open record store, or ErrVaultLocked. The store handle
// becomes invalid after the next lock; callers hold it only across a single
// operation.
func (v *Vault) Store() (*store.Store, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.state != Unlocked {
		return nil, ErrVaultLocked
	}
	v.lastActivity = v.clock.Now()
	return v.store, nil
}

// CreateItem adds an item, recording activity and the audit trail.
func (v *Vault) CreateItem(item *store.Item) error {
	st, err := v.Store()
	if err != nil {
		return err
	}
	if err := st.CreateItem(item); err != nil {
		return err
	}
	v.auditLog.LogSuccess(audit.OpItemCreate, item.ID)
	return nil
}

// UpdateItem updates an item, recording activity and the audit trail.
func (v *Vault) UpdateItem(item *store.Item) error {
	st, err := v.Store()
	if err != nil {
		return err
	}
	if err := st.UpdateItem(item); err != nil {
		return err
	}
	v.auditLog.LogSuccess(audit.OpItemUpdate, item.ID)
	return nil
}

// DeleteItem removes an item, recording activity and the audit trail.
func (v *Vault) DeleteItem(id string) error {
	st, err := v.Store()
	if err != nil {
		return err
	}
	if err := st.DeleteItem(id); err != nil {
		return err
	}
	v.auditLog.LogSuccess(audit.OpItemDelete, id)
	return nil
}
