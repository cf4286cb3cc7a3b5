package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lockboxapp/lockbox/pkg/vault"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show vault status",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("Directory:    %s\n", vaultDir)
		fmt.Printf("State:        %s\n", v.State())
		if v.State() == vault.NeedsSetup {
			fmt.Println("\nRun 'lockbox init' to create a vault.")
			return nil
		}

		fmt.Printf("Biometric:    %v\n", v.BiometricEnabled())
		if cfg.AutoLockTimeout > 0 {
			fmt.Printf("Auto-lock:    after %s idle\n", cfg.AutoLockTimeout)
		} else {
			fmt.Println("Auto-lock:    disabled")
		}

		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer v.Lock()

		st, err := v.Store()
		if err != nil {
			return err
		}
		projects, tags, items, err := st.Counts()
		if err != nil {
			return err
		}
		fmt.Printf("Contents:     %d items, %d projects, %d tags\n", items, projects, tags)
		return nil
	},
}
