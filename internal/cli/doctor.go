package cli

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/fieldstore/internal/adapters/redisnotify"
	"github.com/example/fieldstore/internal/config"
	"github.com/example/fieldstore/internal/db"
	"github.com/example/fieldstore/internal/models"
	"github.com/example/fieldstore/internal/ports/primary"
	"github.com/example/fieldstore/internal/version"
	"github.com/example/fieldstore/internal/wire"
)

// CheckResult represents the outcome of a single check
type CheckResult struct {
	Name    string
	Status  string // "✓", "⚠", "✗"
	Details string // Only shown if Status != "✓"
}

// DoctorCmd returns the doctor command for environment validation
func DoctorCmd() *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Validate the fieldstore environment",
		Long: `Health check for the fieldstore installation.

Validates:
- Configuration directory and config.yaml
- Database file and schema version
- Child references of every project
- Change notifier reachability (when redis_url is set)
- Binary installation and PATH

Examples:
  fieldstore doctor              # Run full health check
  fieldstore doctor --quiet      # Exit code only (0=healthy, 1=issues)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			results := []CheckResult{}
			hasErrors := false

			cfg, cfgResult := checkConfig()
			results = append(results, cfgResult)
			if cfg != nil {
				results = append(results, checkDatabase(cfg))
				results = append(results, checkReferences(NewContext(), cfg))
				results = append(results, checkNotifier(cfg))
			}
			results = append(results, checkBinary())

			for _, r := range results {
				if r.Status == "✗" {
					hasErrors = true
					break
				}
			}

			if !quiet {
				printCheckResults(results)
				if hasErrors {
					fmt.Println("\n⚠ Issues found.")
				} else {
					fmt.Println("All checks passed.")
				}
			}

			if hasErrors {
				return fmt.Errorf("environment validation failed")
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Quiet mode - exit code only")

	return cmd
}

func printCheckResults(results []CheckResult) {
	fmt.Println()
	fmt.Println("Check              Status")
	fmt.Println("─────────────────────────")
	for _, r := range results {
		fmt.Printf("%-18s %s\n", r.Name, r.Status)
	}
	fmt.Println()

	hasDetails := false
	for _, r := range results {
		if r.Status != "✓" && r.Details != "" {
			if !hasDetails {
				fmt.Println("Details:")
				hasDetails = true
			}
			fmt.Printf("\n%s:\n%s\n", r.Name, r.Details)
		}
	}
}

// checkConfig validates the configuration directory and the layered config
func checkConfig() (*config.Config, CheckResult) {
	dir, err := config.Dir()
	if err != nil {
		return nil, CheckResult{Name: "Config", Status: "✗", Details: "  " + err.Error()}
	}
	if _, err := os.Stat(filepath.Join(dir, "config.yaml")); os.IsNotExist(err) {
		cfg, err := config.Load()
		if err != nil {
			return nil, CheckResult{Name: "Config", Status: "✗", Details: "  " + err.Error()}
		}
		return cfg, CheckResult{
			Name:    "Config",
			Status:  "⚠",
			Details: fmt.Sprintf("  No config.yaml in %s, using defaults\n  Run: fieldstore init", dir),
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, CheckResult{Name: "Config", Status: "✗", Details: "  " + err.Error()}
	}
	return cfg, CheckResult{Name: "Config", Status: "✓"}
}

// checkDatabase validates the database file and its schema version
func checkDatabase(cfg *config.Config) CheckResult {
	path := cfg.DBPath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return CheckResult{
			Name:    "Database",
			Status:  "✗",
			Details: fmt.Sprintf("  %s not found\n  Run: fieldstore init", path),
		}
	}

	conn, err := db.Open(path)
	if err != nil {
		return CheckResult{Name: "Database", Status: "✗", Details: "  " + err.Error()}
	}
	defer conn.Close()

	current, err := db.CurrentVersion(conn)
	if err != nil {
		return CheckResult{Name: "Database", Status: "✗", Details: "  " + err.Error()}
	}
	if latest := db.LatestVersion(); current > latest {
		return CheckResult{
			Name:    "Database",
			Status:  "✗",
			Details: fmt.Sprintf("  Schema v%d is newer than this binary (v%d)\n  Run: make install", current, latest),
		}
	}

	return CheckResult{Name: "Database", Status: "✓"}
}

// checkReferences reports project children that do not resolve
func checkReferences(ctx context.Context, cfg *config.Config) CheckResult {
	if _, err := os.Stat(cfg.DBPath()); os.IsNotExist(err) {
		return CheckResult{Name: "References", Status: "⚠", Details: "  Skipped (database doesn't exist)"}
	}

	c, err := wire.New(cfg, nil)
	if err != nil {
		return CheckResult{Name: "References", Status: "✗", Details: "  " + err.Error()}
	}
	defer c.Close()

	dangling, err := findDanglingChildren(ctx, c.DocumentRepository())
	if err != nil {
		return CheckResult{Name: "References", Status: "✗", Details: "  " + err.Error()}
	}
	if len(dangling) > 0 {
		return CheckResult{
			Name:    "References",
			Status:  "⚠",
			Details: "  " + strings.Join(dangling, "\n  "),
		}
	}
	return CheckResult{Name: "References", Status: "✓"}
}

func findDanglingChildren(ctx context.Context, repo primary.DocumentRepository) ([]string, error) {
	projects, err := repo.GetProjects(ctx, models.GetOptions{})
	if err != nil {
		return nil, err
	}

	var dangling []string
	for _, p := range projects {
		installations, err := repo.GetInstallations(ctx, p.ID, nil, models.GetOptions{})
		if err != nil {
			return nil, err
		}
		found := make(map[string]bool, len(installations))
		for _, inst := range installations {
			found[inst.ID] = true
		}
		for _, child := range p.Children {
			if !found[child] {
				dangling = append(dangling, fmt.Sprintf("%s -> %s not found", p.ID, child))
			}
		}
	}
	return dangling, nil
}

// checkNotifier pings the configured Redis server
func checkNotifier(cfg *config.Config) CheckResult {
	if cfg.RedisURL == "" {
		return CheckResult{Name: "Notifier", Status: "✓", Details: "  Not configured (polling only)"}
	}
	n, err := redisnotify.New(cfg.RedisURL, cfg.Environment)
	if err != nil {
		return CheckResult{
			Name:    "Notifier",
			Status:  "⚠",
			Details: fmt.Sprintf("  %v\n  Live updates fall back to polling", err),
		}
	}
	n.Close()
	return CheckResult{Name: "Notifier", Status: "✓"}
}

// checkBinary validates fieldstore binary installation
func checkBinary() CheckResult {
	path, err := exec.LookPath("fieldstore")
	if err != nil {
		return CheckResult{
			Name:    "Binary",
			Status:  "✗",
			Details: "  'fieldstore' not found in PATH\n  Run: make install",
		}
	}
	return CheckResult{Name: "Binary", Status: "✓", Details: fmt.Sprintf("  %s (%s)", path, version.String())}
}
