// Package cli provides CLI commands for the fieldstore application.
package cli

import (
	gocontext "context"
	"fmt"
	"os"
	"os/user"

	"github.com/spf13/cobra"

	"github.com/example/fieldstore/internal/ctxutil"
	"github.com/example/fieldstore/internal/models"
	"github.com/example/fieldstore/internal/ports/primary"
	"github.com/example/fieldstore/internal/wire"
)

// globalActorID stores the detected actor ID for the current CLI invocation.
// Set once at startup by DetectAndStoreActor().
var globalActorID string

// DetectAndStoreActor detects the current actor identity and stores it globally.
// Should be called once at CLI startup in PersistentPreRun. The --actor flag
// wins over $FIELDSTORE_ACTOR, which wins over the OS user name.
func DetectAndStoreActor(cmd *cobra.Command) {
	if actor, _ := cmd.Flags().GetString("actor"); actor != "" {
		globalActorID = actor
		return
	}
	if actor := os.Getenv("FIELDSTORE_ACTOR"); actor != "" {
		globalActorID = actor
		return
	}
	if u, err := user.Current(); err == nil {
		globalActorID = u.Username
	}
}

// GetActorID returns the stored actor ID from CLI startup.
// Returns empty string if DetectAndStoreActor() was not called.
func GetActorID() string {
	return globalActorID
}

// NewContext creates a context.Background() with the current actor ID embedded.
// CLI commands should use this instead of context.Background() directly.
func NewContext() gocontext.Context {
	ctx := gocontext.Background()
	if globalActorID != "" {
		return ctxutil.WithActorID(ctx, globalActorID)
	}
	return ctx
}

// resolveKind looks up whether id is a project or an installation.
func resolveKind(ctx gocontext.Context, id string) (*models.Document, error) {
	repo := wire.DocumentRepository()
	doc, err := repo.GetProject(ctx, id, models.GetOptions{})
	if err == nil {
		return doc, nil
	}
	if !models.IsNotFound(err) {
		return nil, err
	}
	doc, err = repo.GetInstallation(ctx, id, models.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("no project or installation %s: %w", id, err)
	}
	return doc, nil
}

// openStore starts a live store for an existing document.
func openStore(ctx gocontext.Context, id string) (primary.StoreProvider, error) {
	doc, err := resolveKind(ctx, id)
	if err != nil {
		return nil, err
	}

	store := wire.StoreProvider(primary.StoreOptions{
		DocID:         doc.ID,
		Kind:          doc.Type,
		DocName:       doc.Metadata.DocName,
		TemplateName:  doc.Metadata.TemplateName,
		TemplateTitle: doc.Metadata.TemplateTitle,
	})
	if err := store.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", id, err)
	}
	return store, nil
}
