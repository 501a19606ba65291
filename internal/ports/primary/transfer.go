package primary

import (
	"context"
	"io"

	"github.com/example/fieldstore/internal/models"
)

// TransferService defines the primary port for exporting and importing
// whole projects.
type TransferService interface {
	// Export writes a project and its installations as an export bundle.
	Export(ctx context.Context, req ExportRequest, w io.Writer) (*ExportResponse, error)

	// Import reads an export bundle and stores it as new documents.
	Import(ctx context.Context, r io.Reader) (*ImportResponse, error)
}

// ExportRequest contains parameters for exporting a project.
type ExportRequest struct {
	ProjectID          string
	IncludeAttachments bool
}

// ExportResponse contains the result of an export.
type ExportResponse struct {
	ProjectName   string
	DocumentCount int
	// FileName is a suggested file name including the configured extension.
	FileName    string
	ContentType string
}

// ImportResponse contains the result of an import.
type ImportResponse struct {
	// ProjectIDs are the ids of the newly created projects.
	ProjectIDs []string
	// ProjectNames are the stored (possibly de-duplicated) names.
	ProjectNames []string
	Results      []models.BulkResult
}
