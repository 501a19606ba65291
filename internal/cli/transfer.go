package cli

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/example/fieldstore/internal/ports/primary"
	"github.com/example/fieldstore/internal/wire"
)

// ExportCmd returns the export command
func ExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export [project-id]",
		Short: "Export a project and its installations to a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := NewContext()
			out, _ := cmd.Flags().GetString("output")
			withAttachments, _ := cmd.Flags().GetBool("attachments")

			tmp, err := os.CreateTemp(".", ".fieldstore-export-*")
			if err != nil {
				return fmt.Errorf("failed to create export file: %w", err)
			}
			defer os.Remove(tmp.Name())

			w := bufio.NewWriter(tmp)
			resp, err := wire.TransferService().Export(ctx, primary.ExportRequest{
				ProjectID:          args[0],
				IncludeAttachments: withAttachments,
			}, w)
			if err == nil {
				err = w.Flush()
			}
			if cerr := tmp.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return err
			}

			if out == "" {
				out = resp.FileName
			}
			if err := os.Rename(tmp.Name(), out); err != nil {
				return fmt.Errorf("failed to write %s: %w", out, err)
			}

			fmt.Printf("✓ Exported %s (%d documents) to %s\n", resp.ProjectName, resp.DocumentCount, filepath.Clean(out))
			return nil
		},
	}
	cmd.Flags().StringP("output", "o", "", "Output file (default: derived from the project name)")
	cmd.Flags().Bool("attachments", true, "Include attachment bodies")
	return cmd
}

// ImportCmd returns the import command
func ImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import [file]",
		Short: "Import an exported project as a new project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", args[0], err)
			}
			defer f.Close()

			resp, err := wire.TransferService().Import(NewContext(), bufio.NewReader(f))
			if err != nil {
				return err
			}

			failed := 0
			for _, r := range resp.Results {
				if r.Err != nil {
					failed++
					fmt.Printf("✗ %s: %v\n", r.ID, r.Err)
				}
			}
			for i, id := range resp.ProjectIDs {
				fmt.Printf("✓ Imported project %s: %s\n", id, resp.ProjectNames[i])
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d documents failed to import", failed, len(resp.Results))
			}
			return nil
		},
	}
}
