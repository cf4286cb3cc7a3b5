package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lockboxapp/lockbox/pkg/store"
)

var tagCmd = &cobra.Command{
	Use:   "tag",
	Short: "Manage tags",
}

var tagColor string

var tagAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Create a tag",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer v.Lock()

		st, err := v.Store()
		if err != nil {
			return err
		}
		t := &store.Tag{Name: args[0], Color: tagColor}
		if err := st.CreateTag(t); err != nil {
			return err
		}
		fmt.Printf("Created tag %s (%s)\n", t.Name, t.ID)
		return nil
	},
}

var tagListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tags",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer v.Lock()

		st, err := v.Store()
		if err != nil {
			return err
		}
		tags, err := st.ListTags()
		if err != nil {
			return err
		}
		if len(tags) == 0 {
			fmt.Println("No tags.")
			return nil
		}
		for _, t := range tags {
			fmt.Printf("%-36s  %s\n", t.ID, t.Name)
		}
		return nil
	},
}

var tagRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a tag",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer v.Lock()

		st, err := v.Store()
		if err != nil {
			return err
		}
		if err := st.DeleteTag(args[0]); err != nil {
			return err
		}
		fmt.Println("Deleted.")
		return nil
	},
}

func init() {
	tagCmd.AddCommand(tagAddCmd)
	tagCmd.AddCommand(tagListCmd)
	tagCmd.AddCommand(tagRmCmd)

	tagAddCmd.Flags().StringVar(&tagColor, "color", "", "Display color (hex)")
}
