// Package cli provides thin CLI adapters that translate between CLI concerns
// and application services. Adapters handle argument parsing, output formatting,
// but delegate business logic to services.
package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/example/fieldstore/internal/core/document"
	"github.com/example/fieldstore/internal/models"
	"github.com/example/fieldstore/internal/ports/primary"
)

// ProjectAdapter is a thin adapter that translates CLI operations to
// DocumentRepository calls for projects.
type ProjectAdapter struct {
	repo primary.DocumentRepository
	out  io.Writer
	now  func() time.Time
}

// NewProjectAdapter creates a new ProjectAdapter with the given repository.
func NewProjectAdapter(repo primary.DocumentRepository, out io.Writer) *ProjectAdapter {
	return &ProjectAdapter{
		repo: repo,
		out:  out,
		now:  time.Now,
	}
}

// Create creates a new project. Names already in use get a " (n)" suffix.
func (a *ProjectAdapter) Create(ctx context.Context, name string) (*models.Document, error) {
	if name == "" {
		return nil, fmt.Errorf("project name is required")
	}

	existing, err := a.repo.GetProjectDocumentNames(ctx)
	if err != nil {
		return nil, err
	}

	doc := document.NewProject(document.UniqueName(name, existing), a.now().UTC(), document.DraftOptions{})
	res, err := a.repo.PutProject(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}
	doc.Rev = res.Rev

	fmt.Fprintf(a.out, "%s Created project %s: %s\n", check(), doc.ID, doc.Metadata.DocName)
	return doc, nil
}

// List lists every project.
func (a *ProjectAdapter) List(ctx context.Context) ([]*models.Document, error) {
	projects, err := a.repo.GetProjects(ctx, models.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}

	if len(projects) == 0 {
		fmt.Fprintln(a.out, "No projects found.")
		fmt.Fprintln(a.out)
		fmt.Fprintln(a.out, "Create your first project:")
		fmt.Fprintln(a.out, `  fieldstore project create "Site A"`)
		return projects, nil
	}

	w := tabwriter.NewWriter(a.out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tINSTALLATIONS\tMODIFIED")
	fmt.Fprintln(w, "--\t----\t-------------\t--------")
	for _, p := range projects {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n",
			p.ID,
			p.Metadata.DocName,
			len(p.Children),
			formatTime(p.Metadata.LastModifiedAt),
		)
	}
	w.Flush()
	return projects, nil
}

// Show displays a project and its installations.
func (a *ProjectAdapter) Show(ctx context.Context, id string) (*models.Document, error) {
	project, err := a.repo.GetProject(ctx, id, models.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	fmt.Fprintf(a.out, "\nProject: %s\n", project.ID)
	fmt.Fprintf(a.out, "Name:     %s\n", project.Metadata.DocName)
	fmt.Fprintf(a.out, "Revision: %s\n", project.Rev)
	fmt.Fprintf(a.out, "Created:  %s\n", formatTime(project.Metadata.CreatedAt))
	fmt.Fprintf(a.out, "Modified: %s\n", formatTime(project.Metadata.LastModifiedAt))
	if len(project.Metadata.Attachments) > 0 {
		fmt.Fprintf(a.out, "Attachments: %d\n", len(project.Metadata.Attachments))
	}

	installations, err := a.repo.GetInstallations(ctx, id, nil, models.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get installations: %w", err)
	}
	if len(installations) > 0 {
		fmt.Fprintln(a.out, "\nInstallations:")
		for _, inst := range installations {
			fmt.Fprintf(a.out, "  - %s %s (%s)\n", inst.ID, inst.Metadata.DocName, inst.Metadata.TemplateName)
		}
	}
	if missing := len(project.Children) - len(installations); missing > 0 {
		fmt.Fprintf(a.out, "  %s\n", warn(fmt.Sprintf("%d child reference(s) not found", missing)))
	}
	fmt.Fprintln(a.out)

	return project, nil
}

// Delete deletes a project and all of its installations.
func (a *ProjectAdapter) Delete(ctx context.Context, id string) error {
	project, err := a.repo.GetProject(ctx, id, models.GetOptions{})
	if err != nil {
		return fmt.Errorf("failed to get project: %w", err)
	}

	resp, err := a.repo.RemoveProject(ctx, id)
	if resp != nil {
		for _, r := range resp.Children {
			if r.Err != nil {
				fmt.Fprintf(a.out, "%s Failed to delete installation %s: %v\n", cross(), r.ID, r.Err)
			}
		}
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "%s Deleted project %s: %s\n", check(), project.ID, project.Metadata.DocName)
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}
