package cli

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/example/fieldstore/internal/core/pathutil"
	"github.com/example/fieldstore/internal/core/upsert"
)

var dataCmd = &cobra.Command{
	Use:   "data",
	Short: "Read and write form values",
	Long: `Read and write values of a project or installation by field path.

Paths use dots for keys and brackets for list items, e.g. "roof.material"
or "location[1].state". Use --metadata to address metadata_ instead of data_.`,
}

var dataSetCmd = &cobra.Command{
	Use:   "set [doc-id] [path] [value]",
	Short: "Set a value",
	Long:  "Set a value at a path. The value is parsed as JSON when possible and stored as a string otherwise.",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := NewContext()
		metadata, _ := cmd.Flags().GetBool("metadata")

		store, err := openStore(ctx, args[0])
		if err != nil {
			return err
		}
		defer store.Close()

		value := parseValue(args[2])
		if metadata {
			err = store.UpsertMetadataSync(ctx, args[1], value)
		} else {
			err = store.UpsertDataSync(ctx, args[1], value)
		}
		if err != nil {
			return err
		}

		fmt.Printf("✓ %s = %s (rev %s)\n", args[1], encodeValue(value), store.Snapshot().Rev)
		return nil
	},
}

var dataGetCmd = &cobra.Command{
	Use:   "get [doc-id] [path]",
	Short: "Print a value, or the whole document when no path is given",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		metadata, _ := cmd.Flags().GetBool("metadata")

		doc, err := resolveKind(NewContext(), args[0])
		if err != nil {
			return err
		}

		var root map[string]any = doc.Data
		if metadata {
			root, err = doc.Metadata.ToTree()
			if err != nil {
				return err
			}
		}

		var value any = root
		if len(args) == 2 {
			segments, err := pathutil.Split(args[1])
			if err != nil {
				return err
			}
			v, ok := upsert.Get(root, segments)
			if !ok {
				return fmt.Errorf("no value at %s", args[1])
			}
			value = v
		}

		out, err := json.MarshalIndent(value, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

var dataIDCmd = &cobra.Command{
	Use:   "id [path]",
	Short: "Print the element id of a field path",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prefix, _ := cmd.Flags().GetString("prefix")
		sep, _ := cmd.Flags().GetString("separator")

		id, err := pathutil.ToID(args[0], prefix, sep)
		if err != nil {
			return err
		}
		fmt.Println(id)
		return nil
	},
}

func parseValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}

func encodeValue(v any) string {
	out, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(out)
}

// DataCmd returns the data command
func DataCmd() *cobra.Command {
	dataSetCmd.Flags().Bool("metadata", false, "Write to metadata_ instead of data_")
	dataGetCmd.Flags().Bool("metadata", false, "Read from metadata_ instead of data_")
	dataIDCmd.Flags().String("prefix", pathutil.DefaultPrefix, "Id prefix")
	dataIDCmd.Flags().String("separator", pathutil.DefaultSeparator, "Id separator")

	dataCmd.AddCommand(dataSetCmd)
	dataCmd.AddCommand(dataGetCmd)
	dataCmd.AddCommand(dataIDCmd)

	return dataCmd
}
