package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/example/fieldstore/internal/ports/primary"
)

// WatchCmd returns the watch command
func WatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch [doc-id]",
		Short: "Follow live changes of a project or installation",
		Long: `Open a live view of one document and print it every time it changes,
whether the change was made by this process or another one. Stop with Ctrl-C.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := NewContext()
			store, err := openStore(ctx, args[0])
			if err != nil {
				return err
			}
			defer store.Close()

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(stop)

			lastRev := ""
			for {
				select {
				case <-stop:
					fmt.Println()
					return nil
				case <-store.Updates():
					snap := store.Snapshot()
					if snap.Rev == lastRev && snap.Status != "ready-with-pending-change" {
						continue
					}
					lastRev = snap.Rev
					printSnapshot(snap)
					if snap.Deleted {
						fmt.Println(color.New(color.FgRed).Sprint("document was deleted"))
						return nil
					}
				}
			}
		},
	}
}

func printSnapshot(snap primary.StoreSnapshot) {
	fmt.Printf("%s  %s  rev %s  [%s]\n",
		time.Now().Format(time.TimeOnly),
		color.New(color.Bold).Sprint(snap.Metadata.DocName),
		snap.Rev,
		snap.Status,
	)
	data, err := json.MarshalIndent(snap.Data, "  ", "  ")
	if err != nil {
		fmt.Printf("  (unprintable data: %v)\n", err)
		return
	}
	fmt.Printf("  %s\n", data)
	if len(snap.Attachments) > 0 {
		fmt.Printf("  attachments: %d\n", len(snap.Attachments))
	}
}
