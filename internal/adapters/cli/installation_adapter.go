package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/example/fieldstore/internal/core/document"
	"github.com/example/fieldstore/internal/models"
	"github.com/example/fieldstore/internal/ports/primary"
)

// InstallationAdapter is a thin adapter that translates CLI operations to
// DocumentRepository calls for installations.
type InstallationAdapter struct {
	repo primary.DocumentRepository
	out  io.Writer
	now  func() time.Time
}

// NewInstallationAdapter creates a new InstallationAdapter with the given repository.
func NewInstallationAdapter(repo primary.DocumentRepository, out io.Writer) *InstallationAdapter {
	return &InstallationAdapter{
		repo: repo,
		out:  out,
		now:  time.Now,
	}
}

// Create creates an installation of a workflow template under a project.
func (a *InstallationAdapter) Create(ctx context.Context, projectID, name, templateName, templateTitle string) (*models.Document, error) {
	if name == "" {
		return nil, fmt.Errorf("installation name is required")
	}
	if templateName == "" {
		return nil, fmt.Errorf("template name is required")
	}
	if templateTitle == "" {
		templateTitle = templateName
	}

	doc := document.NewInstallation(name, templateName, templateTitle, a.now().UTC(), document.DraftOptions{})
	resp, err := a.repo.PutInstallation(ctx, projectID, doc)
	if err != nil {
		return nil, fmt.Errorf("failed to create installation: %w", err)
	}
	doc.Rev = resp.Installation.Rev

	fmt.Fprintf(a.out, "%s Created installation %s: %s (%s)\n", check(), doc.ID, name, templateName)
	return doc, nil
}

// List lists the installations of a project, optionally filtered by template.
func (a *InstallationAdapter) List(ctx context.Context, projectID string, templates []string) ([]*models.Document, error) {
	installations, err := a.repo.GetInstallations(ctx, projectID, templates, models.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list installations: %w", err)
	}

	if len(installations) == 0 {
		fmt.Fprintln(a.out, "No installations found.")
		return installations, nil
	}

	w := tabwriter.NewWriter(a.out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTEMPLATE\tPHOTOS\tMODIFIED")
	fmt.Fprintln(w, "--\t----\t--------\t------\t--------")
	for _, inst := range installations {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			inst.ID,
			inst.Metadata.DocName,
			inst.Metadata.TemplateName,
			len(inst.Metadata.Attachments),
			formatTime(inst.Metadata.LastModifiedAt),
		)
	}
	w.Flush()
	return installations, nil
}

// Show displays an installation with its data and attachments.
func (a *InstallationAdapter) Show(ctx context.Context, id string) (*models.Document, error) {
	inst, err := a.repo.GetInstallation(ctx, id, models.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get installation: %w", err)
	}

	fmt.Fprintf(a.out, "\nInstallation: %s\n", inst.ID)
	fmt.Fprintf(a.out, "Name:     %s\n", inst.Metadata.DocName)
	fmt.Fprintf(a.out, "Template: %s (%s)\n", inst.Metadata.TemplateTitle, inst.Metadata.TemplateName)
	fmt.Fprintf(a.out, "Revision: %s\n", inst.Rev)
	fmt.Fprintf(a.out, "Modified: %s\n", formatTime(inst.Metadata.LastModifiedAt))

	if len(inst.Data) > 0 {
		fmt.Fprintln(a.out, "\nData:")
		for _, k := range sortedKeys(inst.Data) {
			fmt.Fprintf(a.out, "  %s: %v\n", k, inst.Data[k])
		}
	}

	if len(inst.Metadata.Attachments) > 0 {
		fmt.Fprintln(a.out, "\nAttachments:")
		for _, k := range sortedKeys(inst.Metadata.Attachments) {
			meta := inst.Metadata.Attachments[k]
			status := color.New(color.FgGreen).Sprint("stored")
			if _, ok := inst.Attachments[k]; !ok {
				status = color.New(color.FgYellow).Sprint("missing")
			}
			fmt.Fprintf(a.out, "  %s  %s  %s  [%s]\n", k, meta.ContentType, meta.Filename, status)
		}
	}
	fmt.Fprintln(a.out)

	return inst, nil
}

// Delete removes an installation from its project and deletes it.
func (a *InstallationAdapter) Delete(ctx context.Context, projectID, id string) error {
	resp, err := a.repo.RemoveInstallation(ctx, projectID, id, "")
	if err != nil {
		return err
	}
	if resp.Installation == nil {
		return fmt.Errorf("installation %s is not part of project %s", id, projectID)
	}

	fmt.Fprintf(a.out, "%s Deleted installation %s\n", check(), id)
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func check() string {
	return color.New(color.FgGreen).Sprint("✓")
}

func cross() string {
	return color.New(color.FgRed).Sprint("✗")
}

func warn(msg string) string {
	return color.New(color.FgYellow).Sprint(msg)
}
