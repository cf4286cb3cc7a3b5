package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.AutoLockTimeout != 5*time.Minute {
		t.Errorf("AutoLockTimeout = %v, want 5m", cfg.AutoLockTimeout)
	}
	if cfg.BiometricEnabled {
		t.Error("BiometricEnabled should default to false")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	want := &Config{AutoLockTimeout: 90 * time.Second, BiometricEnabled: true}
	if err := Save(dir, want); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.AutoLockTimeout != want.AutoLockTimeout || got.BiometricEnabled != want.BiometricEnabled {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestLoadRejectsGarbage(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte("{not yaml"), 0600); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if _, err := Load(dir); err == nil {
		t.Error("corrupted config loaded without error")
	}
}

func TestNegativeTimeoutClamped(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName),
		[]byte("auto_lock_timeout: -10s\n"), 0600); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.AutoLockTimeout != 0 {
		t.Errorf("AutoLockTimeout = %v, want 0", cfg.AutoLockTimeout)
	}
}

func TestDefaultDirHonorsEnv(t *testing.T) {
	t.Setenv(EnvVaultDir, "/tmp/custom-lockbox")
	dir, err := DefaultDir()
	if err != nil {
		t.Fatalf("DefaultDir failed: %v", err)
	}
	if dir != "/tmp/custom-lockbox" {
		t.Errorf("dir = %s", dir)
	}
}
