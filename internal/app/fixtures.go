package app

import (
	"context"
	"fmt"
	"time"

	"github.com/example/fieldstore/internal/core/document"
	"github.com/example/fieldstore/internal/models"
	"github.com/example/fieldstore/internal/ports/primary"
)

// FixtureSummary counts what SeedFixtures wrote.
type FixtureSummary struct {
	Projects      int
	Installations int
	Attachments   int
}

type fixtureInstallation struct {
	id, name, template, title string
	data                      map[string]any
}

type fixtureProject struct {
	id, name      string
	data          map[string]any
	installations []fixtureInstallation
}

// fixturePNG is a 1x1 transparent PNG.
var fixturePNG = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89, 0x00, 0x00, 0x00,
	0x0a, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00, 0x00, 0x00, 0x00, 0x49,
	0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
}

var fixtures = []fixtureProject{
	{
		id:   "PROJ-001",
		name: "Harbour Street Retrofit",
		data: map[string]any{
			"client":  map[string]any{"name": "Harbour Housing Co-op", "contact": "ops@harbour.example"},
			"address": "12 Harbour Street",
		},
		installations: []fixtureInstallation{
			{
				id: "INST-001", name: "Roof PV array", template: "pv-system", title: "PV System",
				data: map[string]any{
					"roof":     map[string]any{"material": "slate", "pitch": 35},
					"location": []any{map[string]any{"state": "ok"}, map[string]any{"state": "needs-repair"}},
				},
			},
			{
				id: "INST-002", name: "Basement heat pump", template: "heat-pump", title: "Heat Pump",
				data: map[string]any{"model": "HP-12", "refrigerant": "R32"},
			},
		},
	},
	{
		id:   "PROJ-002",
		name: "Old Mill Survey",
		data: map[string]any{"address": "Mill Lane 3"},
		installations: []fixtureInstallation{
			{
				id: "INST-003", name: "Main distribution board", template: "electrical", title: "Electrical",
				data: map[string]any{"circuits": 14},
			},
		},
	},
	{
		id:   "PROJ-003",
		name: "Empty Project",
		data: map[string]any{},
	},
}

// SeedFixtures writes a fixed set of development projects, installations and
// photos through repo. Existing documents with the same ids are left as they
// are.
func SeedFixtures(ctx context.Context, repo primary.DocumentRepository, now time.Time) (*FixtureSummary, error) {
	summary := &FixtureSummary{}

	for _, p := range fixtures {
		draft := document.NewProject(p.name, now, document.DraftOptions{ID: p.id, Data: p.data})
		if _, err := repo.GetOrCreateProject(ctx, draft); err != nil {
			return summary, fmt.Errorf("seed project %s: %w", p.id, err)
		}
		summary.Projects++

		for _, inst := range p.installations {
			draft := document.NewInstallation(inst.name, inst.template, inst.title, now, document.DraftOptions{ID: inst.id, Data: inst.data})
			if _, err := repo.GetOrCreateInstallation(ctx, p.id, draft); err != nil {
				return summary, fmt.Errorf("seed installation %s: %w", inst.id, err)
			}
			summary.Installations++

			if _, err := repo.PutAttachment(ctx, inst.id, "photo_0", fixturePNG, "image/png"); err != nil {
				return summary, fmt.Errorf("seed photo of %s: %w", inst.id, err)
			}
			if _, err := repo.Upsert(ctx, inst.id, func(doc *models.Document) (bool, error) {
				if doc.Metadata.Attachments == nil {
					doc.Metadata.Attachments = map[string]models.AttachmentMetadata{}
				}
				doc.Metadata.Attachments["photo_0"] = models.AttachmentMetadata{
					Filename:    "photo_0.png",
					ContentType: "image/png",
					Source:      models.MetadataSourceExplicit,
				}
				return true, nil
			}); err != nil {
				return summary, fmt.Errorf("seed photo metadata of %s: %w", inst.id, err)
			}
			summary.Attachments++
		}
	}

	return summary, nil
}
