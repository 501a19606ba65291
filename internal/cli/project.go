package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/fieldstore/internal/wire"
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage projects",
	Long:  "Create, list, inspect, rename and delete inspection projects",
}

var projectCreateCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Create a new project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := wire.ProjectAdapter().Create(NewContext(), args[0])
		return err
	},
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := wire.ProjectAdapter().List(NewContext())
		return err
	},
}

var projectShowCmd = &cobra.Command{
	Use:   "show [project-id]",
	Short: "Show project details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := wire.ProjectAdapter().Show(NewContext(), args[0])
		return err
	},
}

var projectRenameCmd = &cobra.Command{
	Use:   "rename [project-id] [name]",
	Short: "Rename a project",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := NewContext()
		store, err := openStore(ctx, args[0])
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.UpsertMetadataSync(ctx, "doc_name", args[1]); err != nil {
			return fmt.Errorf("failed to rename project: %w", err)
		}
		fmt.Printf("✓ Project %s renamed to %s\n", args[0], args[1])
		return nil
	},
}

var projectDeleteCmd = &cobra.Command{
	Use:   "delete [project-id]",
	Short: "Delete a project and all of its installations",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		if !force {
			return fmt.Errorf("deleting a project removes all of its installations; re-run with --force")
		}
		return wire.ProjectAdapter().Delete(NewContext(), args[0])
	},
}

// ProjectCmd returns the project command
func ProjectCmd() *cobra.Command {
	projectDeleteCmd.Flags().BoolP("force", "f", false, "Confirm the cascading delete")

	projectCmd.AddCommand(projectCreateCmd)
	projectCmd.AddCommand(projectListCmd)
	projectCmd.AddCommand(projectShowCmd)
	projectCmd.AddCommand(projectRenameCmd)
	projectCmd.AddCommand(projectDeleteCmd)

	return projectCmd
}
