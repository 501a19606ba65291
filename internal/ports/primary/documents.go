// Package primary defines the primary ports (driving adapters) for the application.
// These are the interfaces through which the outside world drives the application.
package primary

import (
	"context"

	"github.com/example/fieldstore/internal/models"
)

// UpdateFunc mutates a freshly read copy of a document. It returns false
// when no write is needed. A returned error aborts the upsert without retry.
type UpdateFunc func(doc *models.Document) (bool, error)

// DocumentRepository defines the primary port for project and installation
// persistence.
type DocumentRepository interface {
	// GetProject retrieves a project by ID.
	GetProject(ctx context.Context, id string, opts models.GetOptions) (*models.Document, error)

	// GetInstallation retrieves an installation by ID.
	GetInstallation(ctx context.Context, id string, opts models.GetOptions) (*models.Document, error)

	// GetProjects lists every project.
	GetProjects(ctx context.Context, opts models.GetOptions) ([]*models.Document, error)

	// GetInstallations resolves a project's children, optionally keeping only
	// installations whose template_name is in templateFilter.
	GetInstallations(ctx context.Context, projectID string, templateFilter []string, opts models.GetOptions) ([]*models.Document, error)

	// PutProject writes a project. Fails with a conflict on a stale revision.
	PutProject(ctx context.Context, doc *models.Document) (models.PutResult, error)

	// PutInstallation writes an installation and then links it from the
	// parent project's children.
	PutInstallation(ctx context.Context, projectID string, doc *models.Document) (*PutInstallationResponse, error)

	// RemoveInstallation unlinks an installation from its project and then
	// deletes it.
	RemoveInstallation(ctx context.Context, projectID, id, rev string) (*RemoveInstallationResponse, error)

	// RemoveProject deletes a project and all of its installations.
	RemoveProject(ctx context.Context, id string) (*RemoveProjectResponse, error)

	// GetProjectDocumentNames returns the doc_name of every project.
	GetProjectDocumentNames(ctx context.Context) ([]string, error)

	// Upsert applies fn to the latest revision of a document, retrying on
	// revision conflicts.
	Upsert(ctx context.Context, id string, fn UpdateFunc) (models.UpsertResult, error)

	// GetOrCreateProject returns the stored project with draft's id, creating
	// it from draft when absent.
	GetOrCreateProject(ctx context.Context, draft *models.Document) (*models.Document, error)

	// GetOrCreateInstallation is GetOrCreateProject for installations; a
	// created installation is linked from projectID.
	GetOrCreateInstallation(ctx context.Context, projectID string, draft *models.Document) (*models.Document, error)

	// PutAttachment stores a blob against the latest revision, retrying on
	// conflict.
	PutAttachment(ctx context.Context, docID, attachmentID string, blob []byte, contentType string) (models.PutResult, error)

	// GetAttachment retrieves an attachment body.
	GetAttachment(ctx context.Context, docID, attachmentID string) (*models.Attachment, error)

	// RemoveAttachment deletes an attachment, retrying on conflict.
	RemoveAttachment(ctx context.Context, docID, attachmentID string) (models.PutResult, error)

	// Changes opens a live change feed.
	Changes(ctx context.Context, opts models.ChangesOptions) (models.ChangeFeed, error)
}

// PutInstallationResponse contains the result of writing an installation.
type PutInstallationResponse struct {
	Installation models.PutResult
	// Parent is nil when the installation write failed.
	Parent *models.UpsertResult
}

// RemoveInstallationResponse contains the result of removing an installation.
type RemoveInstallationResponse struct {
	// Installation is nil when the id was not a child of the project.
	Installation *models.PutResult
	Parent       models.UpsertResult
}

// RemoveProjectResponse contains the result of a cascading project delete.
type RemoveProjectResponse struct {
	Project  models.PutResult
	Children []models.BulkResult
}
