package primary

import (
	"context"

	"github.com/example/fieldstore/internal/models"
)

// StoreProvider defines the primary port for a live, optimistic projection of
// one document. Mutations update the projection immediately and persist in
// the background; the Sync variants wait for persistence and return its
// error.
type StoreProvider interface {
	// Start loads (or creates) the document and subscribes to its changes.
	Start(ctx context.Context) error

	// Snapshot returns the current projection.
	Snapshot() StoreSnapshot

	// UpsertData sets a value under data_ at a dotted/bracketed path.
	UpsertData(path string, value any)
	UpsertDataSync(ctx context.Context, path string, value any) error

	// UpsertMetadata sets a value under metadata_ at a path.
	UpsertMetadata(path string, value any)
	UpsertMetadataSync(ctx context.Context, path string, value any) error

	// UpsertAttachment stores a blob and its metadata. meta may be nil, in
	// which case metadata is derived from the blob.
	UpsertAttachment(blob []byte, attachmentID, fileName string, meta *models.AttachmentMetadata)
	UpsertAttachmentSync(ctx context.Context, blob []byte, attachmentID, fileName string, meta *models.AttachmentMetadata) error

	// DeleteAttachment removes a blob and its metadata.
	DeleteAttachment(attachmentID string)
	DeleteAttachmentSync(ctx context.Context, attachmentID string) error

	// NextAttachmentID returns the next free "<fieldID>_<n>" id.
	NextAttachmentID(fieldID string) string

	// Updates signals every change of the projection. Signals coalesce.
	Updates() <-chan struct{}

	// Wait blocks until all background writes have finished.
	Wait()

	// Close cancels the change feed and waits for background writes.
	Close() error
}

// StoreOptions identifies the document a StoreProvider projects.
type StoreOptions struct {
	DocID         string
	Kind          models.DocType
	DocName       string
	TemplateName  string
	TemplateTitle string
	// ParentID is the project an installation is created under.
	ParentID string
}

// StoreSnapshot is the visible projection of a document.
type StoreSnapshot struct {
	Status      string
	ID          string
	Rev         string
	Deleted     bool
	Data        map[string]any
	Metadata    models.Metadata
	Attachments map[string]AttachmentView
}

// AttachmentView is one attachment as seen through a StoreProvider.
type AttachmentView struct {
	ContentType string
	Digest      string
	// Blob is nil while the body is still loading.
	Blob     []byte
	Metadata models.AttachmentMetadata
}
