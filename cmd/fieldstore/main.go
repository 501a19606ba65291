package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/fieldstore/internal/cli"
	"github.com/example/fieldstore/internal/version"
	"github.com/example/fieldstore/internal/wire"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "fieldstore",
		Short:   "fieldstore - offline-first store for field inspection documents",
		Version: version.String(),
		Long: `fieldstore manages projects, their installations and the photos taken
during field inspections in a local database that keeps working offline.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cli.DetectAndStoreActor(cmd)
		},
	}
	rootCmd.PersistentFlags().String("actor", "", "Actor recorded in the activity log")

	// Setup
	rootCmd.AddCommand(cli.InitCmd())
	rootCmd.AddCommand(cli.DoctorCmd())
	rootCmd.AddCommand(cli.DevCmd())

	// Documents
	rootCmd.AddCommand(cli.ProjectCmd())
	rootCmd.AddCommand(cli.InstallationCmd())
	rootCmd.AddCommand(cli.DataCmd())
	rootCmd.AddCommand(cli.AttachCmd())
	rootCmd.AddCommand(cli.WatchCmd())

	// Transfer and audit
	rootCmd.AddCommand(cli.ExportCmd())
	rootCmd.AddCommand(cli.ImportCmd())
	rootCmd.AddCommand(cli.LogCmd())

	err := rootCmd.Execute()
	if cerr := wire.Shutdown(); cerr != nil {
		fmt.Fprintln(os.Stderr, cerr)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
