//go:build ignore

// migrate_template_names renames the workflow template of every installation
// that uses -from. Writes go through the document repository so every change
// gets a new revision and shows up in live views.
//
//	go run scripts/migrate_template_names.go -from qa_hpwh -to hpwh_qa [-dry-run]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/example/fieldstore/internal/config"
	"github.com/example/fieldstore/internal/ctxutil"
	"github.com/example/fieldstore/internal/models"
	"github.com/example/fieldstore/internal/wire"
)

func main() {
	from := flag.String("from", "", "Template name to replace")
	to := flag.String("to", "", "New template name")
	title := flag.String("title", "", "New template title (default: unchanged)")
	dryRun := flag.Bool("dry-run", false, "Preview migration without executing")
	flag.Parse()

	if *from == "" || *to == "" {
		fmt.Fprintln(os.Stderr, "Both -from and -to are required")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	c, err := wire.New(cfg, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		os.Exit(1)
	}
	defer c.Close()

	ctx := ctxutil.WithActorID(context.Background(), "migrate_template_names")
	repo := c.DocumentRepository()

	projects, err := repo.GetProjects(ctx, models.GetOptions{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing projects: %v\n", err)
		os.Exit(1)
	}

	var targets []*models.Document
	for _, p := range projects {
		installations, err := repo.GetInstallations(ctx, p.ID, []string{*from}, models.GetOptions{})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading installations of %s: %v\n", p.ID, err)
			continue
		}
		for _, inst := range installations {
			fmt.Printf("  %s / %s: %s\n", p.Metadata.DocName, inst.ID, inst.Metadata.DocName)
			targets = append(targets, inst)
		}
	}

	if len(targets) == 0 {
		fmt.Printf("No installations use template %s\n", *from)
		return
	}
	fmt.Printf("\nFound %d installation(s) to migrate\n\n", len(targets))

	if *dryRun {
		fmt.Println("=== DRY RUN - No changes made ===")
		return
	}

	fmt.Println("=== Executing migration ===")
	fmt.Println()

	migrated := 0
	for _, inst := range targets {
		res, err := repo.Upsert(ctx, inst.ID, func(doc *models.Document) (bool, error) {
			if doc.Metadata.TemplateName != *from {
				return false, nil
			}
			doc.Metadata.TemplateName = *to
			if *title != "" {
				doc.Metadata.TemplateTitle = *title
			}
			return true, nil
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error migrating %s: %v\n", inst.ID, err)
			continue
		}
		if res.Updated {
			fmt.Printf("✓ Migrated %s (rev %s)\n", inst.ID, res.Rev)
			migrated++
		}
	}

	fmt.Printf("\n=== Migration complete: %d/%d installations migrated ===\n", migrated, len(targets))
}
