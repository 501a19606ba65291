package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/fieldstore/internal/core/attachment"
	"github.com/example/fieldstore/internal/models"
	"github.com/example/fieldstore/internal/wire"
)

var attachCmd = &cobra.Command{
	Use:   "attach",
	Short: "Manage photos and file attachments",
	Long: `Store, list, download and delete the attachments of a project or
installation. Each attachment keeps queryable metadata (file name, content
type, capture time and location) next to its document.`,
}

var attachAddCmd = &cobra.Command{
	Use:   "add [doc-id] [file]",
	Short: "Attach a file",
	Long: `Attach a file. With --field the next free "<field>_<n>" id is used;
with --id the given id is written (replacing an existing attachment).`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := NewContext()
		field, _ := cmd.Flags().GetString("field")
		id, _ := cmd.Flags().GetString("id")
		if (field == "") == (id == "") {
			return fmt.Errorf("exactly one of --field or --id is required")
		}

		blob, err := os.ReadFile(args[1])
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[1], err)
		}

		store, err := openStore(ctx, args[0])
		if err != nil {
			return err
		}
		defer store.Close()

		if id == "" {
			id = store.NextAttachmentID(field)
		}
		if err := store.UpsertAttachmentSync(ctx, blob, id, args[1], nil); err != nil {
			return err
		}

		meta := store.Snapshot().Attachments[id].Metadata
		fmt.Printf("✓ Attached %s as %s (%s, source %s)\n", args[1], id, meta.ContentType, meta.Source)
		return nil
	},
}

var attachListCmd = &cobra.Command{
	Use:   "list [doc-id]",
	Short: "List attachments",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prefix, _ := cmd.Flags().GetString("field")

		doc, err := resolveKind(NewContext(), args[0])
		if err != nil {
			return err
		}

		ids := attachment.Keys(doc.Metadata.Attachments)
		if prefix != "" {
			ids = attachment.Select(prefix, ids)
		}
		if len(ids) == 0 {
			fmt.Println("No attachments found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTYPE\tFILE\tTAKEN\tLOCATION\tSIZE")
		for _, id := range ids {
			meta := doc.Metadata.Attachments[id]
			size := "-"
			if a, ok := doc.Attachments[id]; ok {
				size = fmt.Sprintf("%d", a.Length)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", id, meta.ContentType, meta.Filename, formatTaken(meta), formatLocation(meta), size)
		}
		w.Flush()
		return nil
	},
}

var attachGetCmd = &cobra.Command{
	Use:   "get [doc-id] [attachment-id]",
	Short: "Download an attachment",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("output")

		a, err := wire.DocumentRepository().GetAttachment(NewContext(), args[0], args[1])
		if err != nil {
			return err
		}
		if out == "" {
			out = args[1]
		}
		if err := os.WriteFile(out, a.Data, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", out, err)
		}
		fmt.Printf("✓ Wrote %d bytes (%s) to %s\n", len(a.Data), a.ContentType, out)
		return nil
	},
}

var attachRemoveCmd = &cobra.Command{
	Use:   "rm [doc-id] [attachment-id]",
	Short: "Delete an attachment and its metadata",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := NewContext()
		store, err := openStore(ctx, args[0])
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.DeleteAttachmentSync(ctx, args[1]); err != nil {
			return err
		}
		fmt.Printf("✓ Removed attachment %s\n", args[1])
		return nil
	},
}

func formatTaken(meta models.AttachmentMetadata) string {
	if meta.Timestamp == nil {
		return "-"
	}
	return meta.Timestamp.Local().Format(time.DateTime)
}

func formatLocation(meta models.AttachmentMetadata) string {
	if meta.Geolocation == nil {
		return "-"
	}
	return fmt.Sprintf("%.5f,%.5f", meta.Geolocation.Lat(), meta.Geolocation.Lon())
}

// AttachCmd returns the attach command
func AttachCmd() *cobra.Command {
	attachAddCmd.Flags().String("field", "", "Field the photo belongs to; picks the next free id")
	attachAddCmd.Flags().String("id", "", "Explicit attachment id")
	attachListCmd.Flags().String("field", "", "Only show attachments of this field")
	attachGetCmd.Flags().StringP("output", "o", "", "Output file (default: attachment id)")

	attachCmd.AddCommand(attachAddCmd)
	attachCmd.AddCommand(attachListCmd)
	attachCmd.AddCommand(attachGetCmd)
	attachCmd.AddCommand(attachRemoveCmd)

	return attachCmd
}
