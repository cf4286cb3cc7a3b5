package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lockboxapp/lockbox/internal/config"
	"github.com/lockboxapp/lockbox/pkg/crypto"
	"github.com/lockboxapp/lockbox/pkg/keychain"
)

// consolePrompter stands in for an OS biometric dialog: it asks for an
// explicit confirmation on the terminal. A platform build replaces this
// with the native prompt.
type consolePrompter struct{}

func (consolePrompter) Authenticate(reason string) error {
	fmt.Printf("%s — confirm? [y/N]: ", reason)
	var answer string
	fmt.Scanln(&answer)
	if strings.EqualFold(answer, "y") || strings.EqualFold(answer, "yes") {
		return nil
	}
	return keychain.ErrPromptCancelled
}

var biometricCmd = &cobra.Command{
	Use:   "biometric",
	Short: "Manage biometric unlock",
}

var biometricEnableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Enable biometric unlock",
	Long: `Enable biometric unlock. A copy of the vault key is placed behind the
biometric prompt; the master password keeps working and remains required
for destructive operations.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer v.Lock()

		password, err := promptPassword("Master password: ")
		if err != nil {
			return err
		}
		defer crypto.SecureWipe(password)

		if err := v.EnableBiometric(string(password)); err != nil {
			return err
		}
		cfg.BiometricEnabled = true
		if err := config.Save(vaultDir, cfg); err != nil {
			return err
		}
		fmt.Println("Biometric unlock enabled.")
		return nil
	},
}

var biometricDisableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Disable biometric unlock",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := v.DisableBiometric(); err != nil {
			return err
		}
		cfg.BiometricEnabled = false
		if err := config.Save(vaultDir, cfg); err != nil {
			return err
		}
		fmt.Println("Biometric unlock disabled.")
		return nil
	},
}

func init() {
	biometricCmd.AddCommand(biometricEnableCmd)
	biometricCmd.AddCommand(biometricDisableCmd)
}
