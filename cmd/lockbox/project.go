package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lockboxapp/lockbox/pkg/store"
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage projects",
}

var projectIcon string

var projectAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Create a project",
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
		p := &store.Project{Name: args[0], Icon: projectIcon}
		if err := st.CreateProject(p); err != nil {
			return err
		}
		fmt.Printf("Created project %s (%s)\n", p.Name, p.ID)
		return nil
	},
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer v.Lock()

		st, err := v.Store()
		if err != nil {
			return err
		}
		projects, err := st.ListProjects()
		if err != nil {
			return err
		}
		if len(projects) == 0 {
			fmt.Println("No projects.")
			return nil
		}
		for _, p := range projects {
			fmt.Printf("%-36s  %s\n", p.ID, p.Name)
		}
		return nil
	},
}

var projectRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a project (items are kept, detached)",
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
		if err := st.DeleteProject(args[0]); err != nil {
			return err
		}
		fmt.Println("Deleted. Items in this project were kept without a project.")
		return nil
	},
}

func init() {
	projectCmd.AddCommand(projectAddCmd)
	projectCmd.AddCommand(projectListCmd)
	projectCmd.AddCommand(projectRmCmd)

	projectAddCmd.Flags().StringVar(&projectIcon, "icon", "", "Icon name")
}
