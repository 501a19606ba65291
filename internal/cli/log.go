package cli

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/example/fieldstore/internal/ports/primary"
	"github.com/example/fieldstore/internal/wire"
)

const logValueWidth = 40

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "View the document activity log",
	Long: `View and prune the audit trail of projects and installations: who created,
edited or deleted which document, and for edits the field path with its old
and new value.`,
}

var logTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Show recent activity",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := NewContext()
		filters := primary.LogFilters{}
		filters.Limit, _ = cmd.Flags().GetInt("limit")
		filters.ProjectID, _ = cmd.Flags().GetString("project")
		filters.ActorID, _ = cmd.Flags().GetString("actor")
		filters.DocType, _ = cmd.Flags().GetString("type")
		filters.Action, _ = cmd.Flags().GetString("action")
		filters.DocID, _ = cmd.Flags().GetString("doc")
		follow, _ := cmd.Flags().GetBool("follow")

		entries, err := wire.LogService().ListLogs(ctx, filters)
		if err != nil {
			return fmt.Errorf("failed to fetch logs: %w", err)
		}
		printLogTable(os.Stdout, entries)
		if !follow {
			return nil
		}

		seen := make(map[string]bool, len(entries))
		for _, e := range entries {
			seen[e.ID] = true
		}

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(stop)
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return nil
			case <-ticker.C:
			}
			latest, err := wire.LogService().ListLogs(ctx, filters)
			if err != nil {
				color.New(color.FgYellow).Fprintf(os.Stderr, "failed to fetch logs: %v\n", err)
				continue
			}
			// newest first; print oldest unseen first
			for i := len(latest) - 1; i >= 0; i-- {
				if e := latest[i]; !seen[e.ID] {
					seen[e.ID] = true
					fmt.Println(formatLogLine(e))
				}
			}
		}
	},
}

var logShowCmd = &cobra.Command{
	Use:   "show [doc-id]",
	Short: "Show the history of one project or installation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		actorID, _ := cmd.Flags().GetString("actor")
		limit, _ := cmd.Flags().GetInt("limit")

		entries, err := wire.LogService().ListLogs(NewContext(), primary.LogFilters{
			DocID:   args[0],
			ActorID: actorID,
			Limit:   limit,
		})
		if err != nil {
			return fmt.Errorf("failed to fetch logs: %w", err)
		}
		printLogTable(os.Stdout, entries)
		return nil
	},
}

var logGetCmd = &cobra.Command{
	Use:   "get [log-id]",
	Short: "Show one log entry with full values",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := wire.LogService().GetLog(NewContext(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Entry:    %s\n", e.ID)
		fmt.Printf("Time:     %s\n", formatTimestamp(e.Timestamp))
		fmt.Printf("Actor:    %s\n", orDash(e.ActorID))
		fmt.Printf("Action:   %s\n", e.Action)
		fmt.Printf("Document: %s %s\n", e.DocType, e.DocID)
		if e.ProjectID != "" {
			fmt.Printf("Project:  %s\n", e.ProjectID)
		}
		if e.FieldName != "" {
			fmt.Printf("Field:    %s\n", e.FieldName)
			fmt.Printf("Old:      %s\n", orDash(e.OldValue))
			fmt.Printf("New:      %s\n", orDash(e.NewValue))
		}
		return nil
	},
}

var logPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete old log entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		days, _ := cmd.Flags().GetInt("days")
		if days <= 0 {
			return fmt.Errorf("--days must be positive")
		}

		count, err := wire.LogService().PruneLogs(NewContext(), days)
		if err != nil {
			return fmt.Errorf("failed to prune logs: %w", err)
		}
		fmt.Printf("✓ Pruned %d log entries older than %d days\n", count, days)
		return nil
	},
}

// printLogTable prints entries oldest first.
func printLogTable(out io.Writer, entries []*primary.LogEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(out, "No log entries found.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tACTOR\tACTION\tDOCUMENT\tCHANGE")
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		fmt.Fprintf(w, "%s\t%s\t%s\t%s/%s\t%s\n",
			formatTimestamp(e.Timestamp),
			orDash(e.ActorID),
			actionLabel(e.Action),
			e.DocType, e.DocID,
			formatChange(e),
		)
	}
	w.Flush()
}

func formatLogLine(e *primary.LogEntry) string {
	line := fmt.Sprintf("%s  %s  %s  %s/%s", formatTimestamp(e.Timestamp), orDash(e.ActorID), actionLabel(e.Action), e.DocType, e.DocID)
	if change := formatChange(e); change != "" {
		line += "  " + change
	}
	return line
}

func formatChange(e *primary.LogEntry) string {
	if e.FieldName == "" {
		return ""
	}
	return fmt.Sprintf("%s: %s -> %s", e.FieldName, truncate(orDash(e.OldValue), logValueWidth), truncate(orDash(e.NewValue), logValueWidth))
}

func actionLabel(action string) string {
	switch action {
	case "create":
		return color.GreenString("+ create")
	case "update":
		return color.YellowString("~ update")
	case "delete":
		return color.RedString("- delete")
	default:
		return "? " + action
	}
}

func formatTimestamp(ts string) string {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return ts
	}
	return t.Local().Format(time.DateTime)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// LogCmd returns the log command with all subcommands attached.
func LogCmd() *cobra.Command {
	logTailCmd.Flags().IntP("limit", "n", 50, "Number of entries to show")
	logTailCmd.Flags().StringP("project", "p", "", "Filter by project ID (includes its installations)")
	logTailCmd.Flags().String("actor", "", "Filter by actor ID")
	logTailCmd.Flags().String("type", "", "Filter by document type (project, installation)")
	logTailCmd.Flags().String("action", "", "Filter by action (create, update, delete)")
	logTailCmd.Flags().String("doc", "", "Filter by document ID")
	logTailCmd.Flags().BoolP("follow", "f", false, "Keep printing new entries until interrupted")

	logShowCmd.Flags().String("actor", "", "Filter by actor ID")
	logShowCmd.Flags().IntP("limit", "n", 100, "Maximum entries to show")

	logPruneCmd.Flags().Int("days", 30, "Delete entries older than N days")

	logCmd.AddCommand(logTailCmd)
	logCmd.AddCommand(logShowCmd)
	logCmd.AddCommand(logGetCmd)
	logCmd.AddCommand(logPruneCmd)

	return logCmd
}
