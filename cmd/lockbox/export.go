package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/lockboxapp/lockbox/pkg/backup"
	"github.com/lockboxapp/lockbox/pkg/crypto"
)

var (
	exportOutput    string
	exportPlaintext bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the vault to an encrypted backup file",
	Long: `Export the vault to a backup file. By default the backup is encrypted
with a password of its own, so it can be restored into a vault with a
different master password. Use --plaintext only when you control where the
file ends up.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer v.Lock()

		var exportPassword string
		if !exportPlaintext {
			password, err := promptPassword("Backup password: ")
			if err != nil {
				return err
			}
			defer crypto.SecureWipe(password)
			confirmed, err := promptPassword("Confirm backup password: ")
			if err != nil {
				return err
			}
			defer crypto.SecureWipe(confirmed)
			if !bytes.Equal(password, confirmed) {
				return errors.New("passwords do not match")
			}
			if len(password) == 0 {
				return errors.New("backup password must not be empty")
			}
			exportPassword = string(password)
		}

		data, err := backup.Export(v, exportPassword)
		if err != nil {
			return err
		}

		output := exportOutput
		if output == "" {
			output = time.Now().UTC().Format("lockbox-2006-01-02") + backup.FileExtension
		}
		if err := os.WriteFile(output, data, 0600); err != nil {
			return fmt.Errorf("failed to write backup: %w", err)
		}
		fmt.Printf("Exported to %s\n", output)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file path")
	exportCmd.Flags().BoolVar(&exportPlaintext, "plaintext", false, "Skip backup encryption")
}
