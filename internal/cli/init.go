package cli

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/cobra"

	"github.com/example/fieldstore/internal/config"
	"github.com/example/fieldstore/internal/db"
)

// InitCmd returns the init command
func InitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the fieldstore database",
		Long: `Initialize the fieldstore configuration at ~/.fieldstore/config.yaml
and the database of the configured environment.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := config.Dir()
			if err != nil {
				return err
			}

			cfg, err := config.LoadConfig(dir)
			switch {
			case errors.Is(err, fs.ErrNotExist):
				cfg = config.Default(dir)
				if env, _ := cmd.Flags().GetString("env"); env != "" {
					cfg.Environment = env
				}
				if err := cfg.Validate(); err != nil {
					return err
				}
				if err := config.SaveConfig(dir, cfg); err != nil {
					return err
				}
				fmt.Printf("✓ Config written to %s/config.yaml\n", dir)
			case err != nil:
				return err
			default:
				fmt.Printf("Using existing config in %s\n", dir)
			}

			fmt.Printf("Initializing fieldstore database at %s\n", cfg.DBPath())
			conn, err := db.Open(cfg.DBPath())
			if err != nil {
				return fmt.Errorf("failed to initialize database: %w", err)
			}
			defer conn.Close()

			version, err := db.CurrentVersion(conn)
			if err != nil {
				return err
			}

			fmt.Printf("✓ Database initialized (schema version %d)\n", version)
			fmt.Println()
			fmt.Println("Next steps:")
			fmt.Println(`  fieldstore project create "Site A"`)
			fmt.Println("  fieldstore project list")

			return nil
		},
	}
	cmd.Flags().String("env", "", "Environment name for a new config (default development)")
	return cmd
}
