package cli

import (
	"github.com/spf13/cobra"

	"github.com/example/fieldstore/internal/wire"
)

var installationCmd = &cobra.Command{
	Use:     "installation",
	Aliases: []string{"inst"},
	Short:   "Manage installations",
	Long:    "Create, list, inspect and delete the installations of a project",
}

var installationCreateCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Create an installation under a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		projectID, _ := cmd.Flags().GetString("project")
		template, _ := cmd.Flags().GetString("template")
		title, _ := cmd.Flags().GetString("title")

		_, err := wire.InstallationAdapter().Create(NewContext(), projectID, args[0], template, title)
		return err
	},
}

var installationListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the installations of a project",
	RunE: func(cmd *cobra.Command, args []string) error {
		projectID, _ := cmd.Flags().GetString("project")
		templates, _ := cmd.Flags().GetStringSlice("template")

		_, err := wire.InstallationAdapter().List(NewContext(), projectID, templates)
		return err
	},
}

var installationShowCmd = &cobra.Command{
	Use:   "show [installation-id]",
	Short: "Show installation details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := wire.InstallationAdapter().Show(NewContext(), args[0])
		return err
	},
}

var installationDeleteCmd = &cobra.Command{
	Use:   "delete [installation-id]",
	Short: "Remove an installation from its project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		projectID, _ := cmd.Flags().GetString("project")
		return wire.InstallationAdapter().Delete(NewContext(), projectID, args[0])
	},
}

// InstallationCmd returns the installation command
func InstallationCmd() *cobra.Command {
	installationCreateCmd.Flags().StringP("project", "p", "", "Project ID (required)")
	installationCreateCmd.Flags().StringP("template", "t", "", "Workflow template name (required)")
	installationCreateCmd.Flags().String("title", "", "Workflow template title")
	_ = installationCreateCmd.MarkFlagRequired("project")
	_ = installationCreateCmd.MarkFlagRequired("template")

	installationListCmd.Flags().StringP("project", "p", "", "Project ID (required)")
	installationListCmd.Flags().StringSliceP("template", "t", nil, "Only show these templates")
	_ = installationListCmd.MarkFlagRequired("project")

	installationDeleteCmd.Flags().StringP("project", "p", "", "Project ID (required)")
	_ = installationDeleteCmd.MarkFlagRequired("project")

	installationCmd.AddCommand(installationCreateCmd)
	installationCmd.AddCommand(installationListCmd)
	installationCmd.AddCommand(installationShowCmd)
	installationCmd.AddCommand(installationDeleteCmd)

	return installationCmd
}
