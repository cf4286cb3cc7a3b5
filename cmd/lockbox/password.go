package main

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lockboxapp/lockbox/pkg/crypto"
	"github.com/lockboxapp/lockbox/pkg/security"
)

var passwordCmd = &cobra.Command{
	Use:   "password",
	Short: "Master password operations",
}

var passwordChangeCmd = &cobra.Command{
	Use:   "change",
	Short: "Change the master password",
	Long: `Change the master password. Every stored secret is re-encrypted under a
key derived from the new password; the old password stops working
immediately.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer v.Lock()

		current, err := promptPassword("Current master password: ")
		if err != nil {
			return err
		}
		defer crypto.SecureWipe(current)

		next, err := promptPassword("New master password: ")
		if err != nil {
			return err
		}
		defer crypto.SecureWipe(next)

		strength := security.Evaluate(string(next))
		fmt.Printf("Password strength: %s\n", strength)
		if strength <= security.StrengthWeak {
			if !confirm("This password is weak. Use it anyway?") {
				return errors.New("aborted")
			}
		}

		confirmed, err := promptPassword("Confirm new master password: ")
		if err != nil {
			return err
		}
		defer crypto.SecureWipe(confirmed)
		if !bytes.Equal(next, confirmed) {
			return errors.New("passwords do not match")
		}

		if err := v.ChangePassword(string(current), string(next)); err != nil {
			return err
		}
		fmt.Println("Master password changed.")
		return nil
	},
}

func init() {
	passwordCmd.AddCommand(passwordChangeCmd)
}
