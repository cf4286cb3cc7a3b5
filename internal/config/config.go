// Package config loads and saves the lockbox settings file. Settings are
// plaintext preferences only; nothing security-sensitive lives here.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the settings file inside the vault directory.
const FileName = "config.yaml"

// EnvVaultDir overrides the default vault directory.
const EnvVaultDir = "LOCKBOX_DIR"

// defaultDirName is the vault directory under the user's home.
const defaultDirName = ".lockbox"

// Config holds user preferences.
type Config struct {
	// AutoLockTimeout is the inactivity window before the vault locks
	// itself. Zero disables auto-lock.
	AutoLockTimeout time.Duration `yaml:"auto_lock_timeout"`
	// BiometricEnabled records the user's biometric opt-in so the UI can
	// offer the right unlock path before touching the secret store.
	BiometricEnabled bool `yaml:"biometric_enabled"`
}

// Default returns the out-of-the-box configuration.
func Default() *Config {
	return &Config{
		AutoLockTimeout:  5 * time.Minute,
		BiometricEnabled: false,
	}
}

// DefaultDir resolves the vault directory: $LOCKBOX_DIR if set, otherwise
// ~/.lockbox.
func DefaultDir() (string, error) {
	if dir := os.Getenv(EnvVaultDir); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, defaultDirName), nil
}

// Load reads the settings file from dir. A missing file yields defaults; a
// present but unreadable file is an error so a corrupted config never
// silently resets preferences.
func Load(dir string) (*Config, error) {
	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: failed to read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse config: %w", err)
	}
	if cfg.AutoLockTimeout < 0 {
		cfg.AutoLockTimeout = 0
	}
	return cfg, nil
}

// Save writes the settings file under dir, creating the directory if
// needed.
func Save(dir string, cfg *Config) error {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("config: failed to create directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: failed to marshal config: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, FileName), data, 0600); err != nil {
		return fmt.Errorf("config: failed to write config: %w", err)
	}
	return nil
}
