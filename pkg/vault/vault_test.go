package vault

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/lockboxapp/lockbox/pkg/keychain"
	"github.com/lockboxapp/lockbox/pkg/store"
)

const testPassword = "Tr0ub4dor&3-long"

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// stubPrompter approves or rejects biometric prompts.
type stubPrompter struct {
	err     error
	prompts int
}

func (p *stubPrompter) Authenticate(reason string) error {
	p.prompts++
	return p.err
}

func newTestVault(t *testing.T, opts ...Option) *Vault {
	t.Helper()
	dir := t.TempDir()
	secrets := keychain.NewFileStore(dir)
	// Auto-lock is driven manually in tests.
	opts = append([]Option{WithAutoLockTimeout(0)}, opts...)
	v := New(dir, secrets, opts...)
	t.Cleanup(v.Lock)
	return v
}

func TestCreateAndUnlockCycle(t *testing.T) {
	v := newTestVault(t)

	if v.State() != NeedsSetup {
		t.Fatalf("initial state = %v, want NeedsSetup", v.State())
	}
	if err := v.Unlock(testPassword); !errors.Is(err, ErrNoVault) {
		t.Errorf("Unlock before create: got %v, want ErrNoVault", err)
	}

	if err := v.Create(testPassword); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if v.State() != Unlocked {
		t.Fatalf("state after create = %v, want Unlocked", v.State())
	}
	if err := v.Create(testPassword); !errors.Is(err, ErrVaultExists) {
		t.Errorf("second Create: got %v, want ErrVaultExists", err)
	}

	v.Lock()
	if v.State() != Locked {
		t.Fatalf("state after lock = %v, want Locked", v.State())
	}
	// Lock is idempotent.
	v.Lock()

	if err := v.Unlock("wrong password!"); !errors.Is(err, ErrInvalidPassword) {
		t.Errorf("wrong password: got %v, want ErrInvalidPassword", err)
	}
	if v.State() != Locked {
		t.Errorf("failed unlock changed state to %v", v.State())
	}

	if err := v.Unlock(testPassword); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
	if err := v.Unlock(testPassword); !errors.Is(err, ErrAlreadyUnlocked) {
		t.Errorf("double unlock: got %v, want ErrAlreadyUnlocked", err)
	}
}

func TestCreateRejectsShortPassword(t *testing.T) {
	v := newTestVault(t)
	if err := v.Create("short"); !errors.Is(err, ErrPasswordTooShort) {
		t.Errorf("got %v, want ErrPasswordTooShort", err)
	}
	if v.State() != NeedsSetup {
		t.Errorf("state = %v, want NeedsSetup", v.State())
	}
}

func TestStoreAccessRequiresUnlocked(t *testing.T) {
	v := newTestVault(t)
	if _, err := v.Store(); !errors.Is(err, ErrVaultLocked) {
		t.Errorf("got %v, want ErrVaultLocked", err)
	}

	if err := v.Create(testPassword); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	st, err := v.Store()
	if err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if st == nil {
		t.Fatal("Store returned nil")
	}

	v.Lock()
	if _, err := v.Store(); !errors.Is(err, ErrVaultLocked) {
		t.Errorf("after lock: got %v, want ErrVaultLocked", err)
	}
	// The old handle is dead too.
	if _, err := st.GetItem("x"); !errors.Is(err, store.ErrNotOpen) {
		t.Errorf("stale handle: got %v, want ErrNotOpen", err)
	}
}

func TestItemsSurviveLockUnlock(t *testing.T) {
	v := newTestVault(t)
	if err := v.Create(testPassword); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	item := &store.Item{
		Name: "Stripe",
		Type: store.TypeAPIKey,
		Payload: store.Payload{
			Type:   store.TypeAPIKey,
			APIKey: &store.APIKeyData{Key: "sk_live_abc", Extras: []store.ExtraField{}},
		},
	}
	if err := v.CreateItem(item); err != nil {
		t.Fatalf("CreateItem failed: %v", err)
	}

	v.Lock()
	if err := v.Unlock(testPassword); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}

	st, err := v.Store()
	if err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	got, err := st.GetItem(item.ID)
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if got.Payload.APIKey.Key != "sk_live_abc" {
		t.Errorf("payload = %+v", got.Payload)
	}
}

func TestLockHooksFire(t *testing.T) {
	v := newTestVault(t)
	var mu sync.Mutex
	var reasons []LockReason
	v.OnLock(func(r LockReason) {
		mu.Lock()
		reasons = append(reasons, r)
		mu.Unlock()
	})

	if err := v.Create(testPassword); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	v.Lock()
	v.Lock() // second is a no-op, hook must not refire

	mu.Lock()
	defer mu.Unlock()
	if len(reasons) != 1 || reasons[0] != LockManual {
		t.Errorf("hook reasons = %v, want [manual]", reasons)
	}
}

func TestAutoLock(t *testing.T) {
	clock := newFakeClock()
	v := newTestVault(t, WithClock(clock), WithAutoLockTimeout(5*time.Minute))

	if err := v.Create(testPassword); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	clock.Advance(3 * time.Minute)
	if v.CheckAutoLock() {
		t.Fatal("locked before timeout elapsed")
	}

	// Activity resets the clock.
	v.RecordActivity()
	clock.Advance(4 * time.Minute)
	if v.CheckAutoLock() {
		t.Fatal("locked despite recent activity")
	}

	clock.Advance(2 * time.Minute)
	if !v.CheckAutoLock() {
		t.Fatal("did not lock after timeout")
	}
	if v.State() != Locked {
		t.Errorf("state = %v, want Locked", v.State())
	}
}

func TestAutoLockDisabledWithZeroTimeout(t *testing.T) {
	clock := newFakeClock()
	v := newTestVault(t, WithClock(clock))

	if err := v.Create(testPassword); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	v.SetAutoLockTimeout(0)
	clock.Advance(240 * time.Hour)
	if v.CheckAutoLock() {
		t.Error("locked with auto-lock disabled")
	}
}

func TestAutoLockHookReportsReason(t *testing.T) {
	clock := newFakeClock()
	v := newTestVault(t, WithClock(clock), WithAutoLockTimeout(time.Minute))

	var got LockReason
	v.OnLock(func(r LockReason) { got = r })

	if err := v.Create(testPassword); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	clock.Advance(2 * time.Minute)
	if !v.CheckAutoLock() {
		t.Fatal("did not auto-lock")
	}
	if got != LockAuto {
		t.Errorf("reason = %v, want autolock", got)
	}
}

func TestChangePassword(t *testing.T) {
	v := newTestVault(t)
	if err := v.Create(testPassword); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	item := &store.Item{
		Name: "db",
		Type: store.TypeDatabase,
		Payload: store.Payload{
			Type:     store.TypeDatabase,
			Database: &store.DatabaseData{Host: "db.local", Password: "hunter2", Extras: []store.ExtraField{}},
		},
	}
	if err := v.CreateItem(item); err != nil {
		t.Fatalf("CreateItem failed: %v", err)
	}

	const newPassword = "correct horse battery staple"
	if err := v.ChangePassword("not the password", newPassword); !errors.Is(err, ErrInvalidPassword) {
		t.Fatalf("wrong current password: got %v, want ErrInvalidPassword", err)
	}
	if err := v.ChangePassword(testPassword, "short"); !errors.Is(err, ErrPasswordTooShort) {
		t.Fatalf("short new password: got %v, want ErrPasswordTooShort", err)
	}
	if err := v.ChangePassword(testPassword, newPassword); err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}

	// Old password is dead, new one works, payloads intact.
	v.Lock()
	if err := v.Unlock(testPassword); !errors.Is(err, ErrInvalidPassword) {
		t.Errorf("old password after change: got %v, want ErrInvalidPassword", err)
	}
	if err := v.Unlock(newPassword); err != nil {
		t.Fatalf("Unlock with new password failed: %v", err)
	}

	st, err := v.Store()
	if err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	got, err := st.GetItem(item.ID)
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if got.Payload.Database.Password != "hunter2" {
		t.Errorf("payload lost in re-key: %+v", got.Payload)
	}
}

func TestChangePasswordRequiresUnlocked(t *testing.T) {
	v := newTestVault(t)
	if err := v.Create(testPassword); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	v.Lock()
	if err := v.ChangePassword(testPassword, "another password"); !errors.Is(err, ErrVaultLocked) {
		t.Errorf("got %v, want ErrVaultLocked", err)
	}
}

func TestBiometricUnlock(t *testing.T) {
	prompter := &stubPrompter{}
	v := newTestVault(t, WithPrompter(prompter))

	if err := v.Create(testPassword); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if v.BiometricEnabled() {
		t.Fatal("biometric enabled before opt-in")
	}

	if err := v.EnableBiometric(testPassword); err != nil {
		t.Fatalf("EnableBiometric failed: %v", err)
	}
	if prompter.prompts != 1 {
		t.Errorf("enable prompted %d times, want 1 (consent gate)", prompter.prompts)
	}
	if !v.BiometricEnabled() {
		t.Fatal("biometric not enabled")
	}

	v.Lock()
	if err := v.UnlockWithBiometric(); err != nil {
		t.Fatalf("UnlockWithBiometric failed: %v", err)
	}
	if v.State() != Unlocked {
		t.Fatalf("state = %v, want Unlocked", v.State())
	}

	v.Lock()
	if err := v.DisableBiometric(); err != nil {
		t.Fatalf("DisableBiometric failed: %v", err)
	}
	if err := v.UnlockWithBiometric(); !errors.Is(err, ErrBiometricOff) {
		t.Errorf("after disable: got %v, want ErrBiometricOff", err)
	}
}

func TestBiometricPromptCancellation(t *testing.T) {
	prompter := &stubPrompter{}
	v := newTestVault(t, WithPrompter(prompter))

	if err := v.Create(testPassword); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := v.EnableBiometric(testPassword); err != nil {
		t.Fatalf("EnableBiometric failed: %v", err)
	}
	v.Lock()

	// Cancellation is a non-fatal outcome: the vault simply stays Locked.
	prompter.err = keychain.ErrPromptCancelled
	err := v.UnlockWithBiometric()
	if !errors.Is(err, keychain.ErrPromptCancelled) {
		t.Errorf("got %v, want ErrPromptCancelled", err)
	}
	if v.State() != Locked {
		t.Errorf("state = %v, want Locked", v.State())
	}

	// Password unlock still works.
	prompter.err = nil
	if err := v.Unlock(testPassword); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
}

func TestBiometricSurvivesPasswordChange(t *testing.T) {
	prompter := &stubPrompter{}
	v := newTestVault(t, WithPrompter(prompter))

	if err := v.Create(testPassword); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := v.EnableBiometric(testPassword); err != nil {
		t.Fatalf("EnableBiometric failed: %v", err)
	}

	const newPassword = "correct horse battery staple"
	if err := v.ChangePassword(testPassword, newPassword); err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}

	// The stored key copy must have been refreshed to the new key.
	v.Lock()
	if err := v.UnlockWithBiometric(); err != nil {
		t.Fatalf("UnlockWithBiometric after re-key failed: %v", err)
	}
}

func TestDestroy(t *testing.T) {
	v := newTestVault(t)
	if err := v.Create(testPassword); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	item := &store.Item{
		Name: "x", Type: store.TypeSecureNote,
		Payload: store.Payload{Type: store.TypeSecureNote,
			SecureNote: &store.SecureNoteData{Text: "gone", Extras: []store.ExtraField{}}},
	}
	if err := v.CreateItem(item); err != nil {
		t.Fatalf("CreateItem failed: %v", err)
	}

	if err := v.Destroy("wrong password!"); !errors.Is(err, ErrInvalidPassword) {
		t.Fatalf("wrong password: got %v, want ErrInvalidPassword", err)
	}
	if err := v.Destroy(testPassword); err != nil {
		t.Fatalf("Destroy failed: %v", err)
	}
	if v.State() != NeedsSetup {
		t.Fatalf("state = %v, want NeedsSetup", v.State())
	}

	// A fresh vault starts empty.
	if err := v.Create(testPassword); err != nil {
		t.Fatalf("re-Create failed: %v", err)
	}
	st, err := v.Store()
	if err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	items, err := st.ListItems(store.ItemFilter{})
	if err != nil {
		t.Fatalf("ListItems failed: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("new vault has %d items, want 0", len(items))
	}
}

func TestAuditChainAfterSession(t *testing.T) {
	v := newTestVault(t)
	if err := v.Create(testPassword); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	item := &store.Item{
		Name: "x", Type: store.TypeAPIKey,
		Payload: store.Payload{Type: store.TypeAPIKey,
			APIKey: &store.APIKeyData{Key: "k", Extras: []store.ExtraField{}}},
	}
	if err := v.CreateItem(item); err != nil {
		t.Fatalf("CreateItem failed: %v", err)
	}
	if err := v.DeleteItem(item.ID); err != nil {
		t.Fatalf("DeleteItem failed: %v", err)
	}
	v.Lock()
	if err := v.Unlock(testPassword); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}

	result, err := v.Audit().Verify()
	if err != nil {
		t.Fatalf("audit Verify failed: %v", err)
	}
	if !result.Valid {
		t.Errorf("audit chain invalid: %v", result.Errors)
	}
	if result.Records < 5 {
		t.Errorf("audit recorded %d events, want at least 5", result.Records)
	}
}

func TestAuditChainSurvivesPasswordChange(t *testing.T) {
	v := newTestVault(t)
	if err := v.Create(testPassword); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	item := &store.Item{
		Name: "x", Type: store.TypeAPIKey,
		Payload: store.Payload{Type: store.TypeAPIKey,
			APIKey: &store.APIKeyData{Key: "k", Extras: []store.ExtraField{}}},
	}
	if err := v.CreateItem(item); err != nil {
		t.Fatalf("CreateItem failed: %v", err)
	}

	const next = "correct horse battery staple"
	if err := v.ChangePassword(testPassword, next); err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}

	result, err := v.Audit().Verify()
	if err != nil {
		t.Fatalf("audit Verify failed: %v", err)
	}
	if !result.Valid {
		t.Fatalf("audit chain invalid after password change: %v", result.Errors)
	}
	if result.Records < 3 {
		t.Errorf("audit recorded %d events, want at least 3", result.Records)
	}

	// Records written before the change still verify under a key loaded
	// through the new password.
	v.Lock()
	if err := v.Unlock(next); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
	result, err = v.Audit().Verify()
	if err != nil {
		t.Fatalf("audit Verify after relock failed: %v", err)
	}
	if !result.Valid {
		t.Errorf("audit chain invalid after relock: %v", result.Errors)
	}
}

func TestDestroyClearsAuditLog(t *testing.T) {
	v := newTestVault(t)
	if err := v.Create(testPassword); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	item := &store.Item{
		Name: "x", Type: store.TypeSecureNote,
		Payload: store.Payload{Type: store.TypeSecureNote,
			SecureNote: &store.SecureNoteData{Text: "gone", Extras: []store.ExtraField{}}},
	}
	if err := v.CreateItem(item); err != nil {
		t.Fatalf("CreateItem failed: %v", err)
	}
	if err := v.Destroy(testPassword); err != nil {
		t.Fatalf("Destroy failed: %v", err)
	}

	// The new vault has a fresh chain key; inherited records could never
	// verify, so destroy must have removed them.
	if err := v.Create(testPassword); err != nil {
		t.Fatalf("re-Create failed: %v", err)
	}
	result, err := v.Audit().Verify()
	if err != nil {
		t.Fatalf("audit Verify failed: %v", err)
	}
	if !result.Valid {
		t.Fatalf("audit chain invalid after re-create: %v", result.Errors)
	}
	if result.Records != 1 {
		t.Errorf("audit has %d records after re-create, want 1", result.Records)
	}
}

// failingSecrets simulates an unreachable platform secret store.
type failingSecrets struct{ err error }

func (s failingSecrets) Set(string, []byte) error   { return s.err }
func (s failingSecrets) Get(string) ([]byte, error) { return nil, s.err }
func (s failingSecrets) Delete(string) error        { return s.err }

func TestNewDistinguishesSecretStoreFailure(t *testing.T) {
	v := New(t.TempDir(), failingSecrets{err: errors.New("keychain daemon unreachable")},
		WithAutoLockTimeout(0))
	if v.State() != ErrorState {
		t.Fatalf("state = %v, want ErrorState", v.State())
	}
	// Create must not run: it would overwrite a salt it merely failed to read.
	if err := v.Create(testPassword); err == nil {
		t.Error("Create succeeded against an unreadable secret store")
	}
}

func TestChangePasswordSwapFailureWipesKey(t *testing.T) {
	v := newTestVault(t)
	if err := v.Create(testPassword); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Replace the database file with a non-empty directory so the rename
	// swap fails after the old store has been closed. The open connection
	// keeps serving reads through its file descriptor.
	path := v.dbPath()
	if err := os.Remove(path); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(path, "block"), 0700); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}

	if err := v.ChangePassword(testPassword, "correct horse battery staple"); err == nil {
		t.Fatal("expected ChangePassword to fail on the swap")
	}
	if v.State() != ErrorState {
		t.Errorf("state = %v, want ErrorState", v.State())
	}
	if v.key != nil {
		t.Error("master key still held after failed swap")
	}
}
