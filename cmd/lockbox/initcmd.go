package main

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lockboxapp/lockbox/internal/config"
	"github.com/lockboxapp/lockbox/pkg/crypto"
	"github.com/lockboxapp/lockbox/pkg/security"
	"github.com/lockboxapp/lockbox/pkg/vault"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a new vault",
	Long: `Create a new vault in the lockbox directory.

You will be asked for a master password. It is the only way into the vault:
there is no recovery if you forget it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if v.State() != vault.NeedsSetup {
			return errors.New("a vault already exists; use 'lockbox destroy' first to start over")
		}

		password, err := promptPassword("Choose a master password: ")
		if err != nil {
			return err
		}
		defer crypto.SecureWipe(password)

		strength := security.Evaluate(string(password))
		fmt.Printf("Password strength: %s\n", strength)
		if strength <= security.StrengthWeak {
			if !confirm("This password is weak. Use it anyway?") {
				return errors.New("aborted")
			}
		}

		confirmed, err := promptPassword("Confirm master password: ")
		if err != nil {
			return err
		}
		defer crypto.SecureWipe(confirmed)
		if !bytes.Equal(password, confirmed) {
			return errors.New("passwords do not match")
		}

		if err := v.Create(string(password)); err != nil {
			return err
		}
		if err := config.Save(vaultDir, cfg); err != nil {
			return err
		}
		defer v.Lock()

		fmt.Printf("Vault created at %s\n", vaultDir)
		return nil
	},
}
