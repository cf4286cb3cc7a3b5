package main

import (
	"fmt"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/lockboxapp/lockbox/internal/config"
	"github.com/lockboxapp/lockbox/pkg/backup"
	"github.com/lockboxapp/lockbox/pkg/crypto"
	"github.com/lockboxapp/lockbox/pkg/keychain"
	"github.com/lockboxapp/lockbox/pkg/vault"
)

var (
	vaultDir string
	cfg      *config.Config
	v        *vault.Vault
)

var rootCmd = &cobra.Command{
	Use:   "lockbox",
	Short: "lockbox is a local, offline credential vault",
	Long: `A local credential vault. Everything stays on this machine: secrets are
encrypted with a key derived from your master password and never leave disk
unencrypted.`,
	SilenceUsage: true,
	// PersistentPreRunE builds the vault object for every subcommand.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		backup.AppVersion = version

		dir, err := config.DefaultDir()
		if err != nil {
			return err
		}
		vaultDir = dir

		cfg, err = config.Load(vaultDir)
		if err != nil {
			return err
		}

		v = vault.New(vaultDir, keychain.NewFileStore(vaultDir),
			vault.WithPrompter(consolePrompter{}),
			vault.WithAutoLockTimeout(cfg.AutoLockTimeout))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(itemCmd)
	rootCmd.AddCommand(projectCmd)
	rootCmd.AddCommand(tagCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(passwordCmd)
	rootCmd.AddCommand(biometricCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(destroyCmd)
}

// promptPassword reads a password without echo. The caller must SecureWipe
// the returned bytes.
func promptPassword(prompt string) ([]byte, error) {
	fmt.Print(prompt)
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return nil, fmt.Errorf("failed to read password: %w", err)
	}
	return password, nil
}

// ensureUnlocked prompts for the master password and unlocks the vault,
// preferring biometric unlock when enabled.
func ensureUnlocked() error {
	if v.State() == vault.Unlocked {
		return nil
	}

	if cfg.BiometricEnabled && v.BiometricEnabled() {
		err := v.UnlockWithBiometric()
		if err == nil {
			return nil
		}
		// Fall back to the password on any biometric failure, including
		// cancellation.
		fmt.Printf("Biometric unlock unavailable (%v), falling back to password.\n", err)
	}

	password, err := promptPassword("Enter master password: ")
	if err != nil {
		return err
	}
	defer crypto.SecureWipe(password)
	return v.Unlock(string(password))
}

// confirm asks a yes/no question on stdin, defaulting to no.
func confirm(question string) bool {
	fmt.Printf("%s [y/N]: ", question)
	var answer string
	fmt.Scanln(&answer)
	return strings.EqualFold(answer, "y") || strings.EqualFold(answer, "yes")
}
