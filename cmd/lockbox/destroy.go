package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lockboxapp/lockbox/pkg/crypto"
	"github.com/lockboxapp/lockbox/pkg/vault"
)

var destroyCmd = &cobra.Command{
	Use:   "destroy",
	Short: "Delete the vault and everything in it",
	Long: `Delete the vault: the database, the stored salt, the verification token
and any biometric key copy. This cannot be undone.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if v.State() == vault.NeedsSetup {
			return errors.New("no vault exists")
		}
		if !confirm("Permanently delete the vault and ALL secrets in it?") {
			return errors.New("aborted")
		}

		password, err := promptPassword("Master password: ")
		if err != nil {
			return err
		}
		defer crypto.SecureWipe(password)

		if err := v.Destroy(string(password)); err != nil {
			return err
		}
		fmt.Println("Vault destroyed.")
		return nil
	},
}
