package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lockboxapp/lockbox/pkg/backup"
	"github.com/lockboxapp/lockbox/pkg/crypto"
)

var importMerge bool

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a backup file into the vault",
	Long: `Import a backup. The default replaces the current vault contents with
the backup; --merge keeps existing records and adds the backup alongside
them, renaming colliding project names.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read backup: %w", err)
		}

		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer v.Lock()

		mode := backup.Replace
		if importMerge {
			mode = backup.Merge
		} else if !confirm("Replace ALL current vault contents with this backup?") {
			return errors.New("aborted")
		}

		err = backup.Import(v, data, "", mode)
		if errors.Is(err, backup.ErrPasswordRequired) {
			password, perr := promptPassword("Backup password: ")
			if perr != nil {
				return perr
			}
			defer crypto.SecureWipe(password)
			err = backup.Import(v, data, string(password), mode)
		}
		if err != nil {
			return err
		}

		fmt.Println("Import complete.")
		return nil
	},
}

func init() {
	importCmd.Flags().BoolVar(&importMerge, "merge", false, "Merge with existing contents instead of replacing")
}
