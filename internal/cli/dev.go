package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/fieldstore/internal/app"
	"github.com/example/fieldstore/internal/config"
	"github.com/example/fieldstore/internal/wire"
)

// DevCmd returns the dev command group for development utilities.
func DevCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dev",
		Short: "Development utilities",
		Long: `Development utilities for working with a throwaway fieldstore database.

These commands refuse to run against the production environment. Point
FIELDSTORE_ENVIRONMENT at a development environment first.`,
	}

	cmd.AddCommand(devResetCmd())
	cmd.AddCommand(devSeedCmd())
	return cmd
}

func devResetCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Reset the database with fresh fixtures",
		Long: `Delete the database of the configured environment and recreate it with
fixture data.

This command:
1. Deletes the existing database file
2. Creates a fresh database with the current schema
3. Seeds projects, installations and photos for development`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := devConfig()
			if err != nil {
				return err
			}
			dbPath := cfg.DBPath()

			if !force {
				fmt.Printf("This will delete and recreate: %s\n", dbPath)
				fmt.Print("Continue? [y/N] ")
				var response string
				fmt.Scanln(&response)
				if response != "y" && response != "Y" {
					fmt.Println("Aborted.")
					return nil
				}
			}

			if err := os.Remove(dbPath); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("failed to delete database: %w", err)
			}
			fmt.Printf("✓ Deleted %s\n", dbPath)

			return seed(cfg)
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Skip confirmation prompt")
	return cmd
}

func devSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Add fixture data to the existing database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := devConfig()
			if err != nil {
				return err
			}
			return seed(cfg)
		},
	}
}

func devConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cfg.Environment == "production" {
		return nil, fmt.Errorf("refusing to modify the production database\n\nSet FIELDSTORE_ENVIRONMENT to a development environment first")
	}
	return cfg, nil
}

func seed(cfg *config.Config) error {
	c, err := wire.New(cfg, nil)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer c.Close()

	summary, err := app.SeedFixtures(NewContext(), c.DocumentRepository(), time.Now())
	if err != nil {
		return fmt.Errorf("failed to seed fixtures: %w", err)
	}
	fmt.Println("✓ Seeded fixture data")
	fmt.Println("\nSeeded documents:")
	fmt.Printf("  - %d projects\n", summary.Projects)
	fmt.Printf("  - %d installations\n", summary.Installations)
	fmt.Printf("  - %d photos\n", summary.Attachments)
	return nil
}
