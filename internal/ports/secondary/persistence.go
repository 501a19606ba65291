// Package secondary defines the secondary ports (driven adapters) for the application.
// These are the interfaces through which the application drives external systems.
package secondary

import (
	"context"

	"github.com/example/fieldstore/internal/models"
)

// DocumentStore defines the secondary port for the embedded document database.
// Every successful write produces a new revision; writes that present a stale
// revision fail with models.ErrConflict.
type DocumentStore interface {
	// Get retrieves a document by id. Missing and deleted documents return
	// models.ErrNotFound.
	Get(ctx context.Context, id string, opts models.GetOptions) (*models.Document, error)

	// Put creates or updates a document. doc.Rev must be the current revision
	// (empty for a new document).
	Put(ctx context.Context, doc *models.Document) (models.PutResult, error)

	// Delete removes a document at the given revision.
	Delete(ctx context.Context, id, rev string) (models.PutResult, error)

	// BulkGet retrieves several documents, reporting failures per id.
	BulkGet(ctx context.Context, ids []string, opts models.GetOptions) ([]models.BulkGetResult, error)

	// BulkDocs writes several documents (documents with Deleted set are
	// removed). Failures are reported per item; the call itself only fails
	// when the store is unusable.
	BulkDocs(ctx context.Context, docs []*models.Document) ([]models.BulkResult, error)

	// FindByType lists live documents of one kind using the type index.
	FindByType(ctx context.Context, docType models.DocType, opts models.GetOptions) ([]*models.Document, error)

	// ListDocNames returns metadata doc_name of every live document of a kind.
	ListDocNames(ctx context.Context, docType models.DocType) ([]string, error)

	// PutAttachment stores a binary attachment against revision rev.
	PutAttachment(ctx context.Context, docID, rev, attachmentID string, blob []byte, contentType string) (models.PutResult, error)

	// GetAttachment retrieves an attachment with its body.
	GetAttachment(ctx context.Context, docID, attachmentID string) (*models.Attachment, error)

	// RemoveAttachment deletes an attachment against revision rev.
	RemoveAttachment(ctx context.Context, docID, rev, attachmentID string) (models.PutResult, error)

	// Changes opens a live change feed. The feed stays open until Cancel is
	// called or ctx is done.
	Changes(ctx context.Context, opts models.ChangesOptions) (models.ChangeFeed, error)
}

// ChangeNotifier defines the secondary port for waking change feeds in
// other processes that share the same database file.
type ChangeNotifier interface {
	// Publish announces that docID changed.
	Publish(ctx context.Context, docID string) error

	// Subscribe returns a channel of changed document ids. The channel is
	// closed when ctx is done.
	Subscribe(ctx context.Context) (<-chan string, error)

	// Close releases the notifier's connections.
	Close() error
}

// ActivityLogRepository defines the secondary port for the document activity
// log (audit trail). Entries are immutable but old ones can be pruned.
type ActivityLogRepository interface {
	// Create persists a new log entry.
	Create(ctx context.Context, log *ActivityLogRecord) error

	// GetByID retrieves a log entry by its ID.
	GetByID(ctx context.Context, id string) (*ActivityLogRecord, error)

	// List retrieves log entries matching the given filters, newest first.
	List(ctx context.Context, filters ActivityLogFilters) ([]*ActivityLogRecord, error)

	// GetNextID returns the next available log ID.
	GetNextID(ctx context.Context) (string, error)

	// PruneOlderThan deletes log entries older than the given number of days.
	// Returns the number of deleted entries.
	PruneOlderThan(ctx context.Context, days int) (int, error)
}

// ActivityLogRecord represents an activity log entry as stored in persistence.
type ActivityLogRecord struct {
	ID        string
	Timestamp string
	ActorID   string // Empty string means null
	DocType   string
	DocID     string
	ProjectID string // Empty string means null
	Action    string // 'create', 'update', 'delete'
	FieldName string // Empty string means null - for updates only
	OldValue  string // Empty string means null
	NewValue  string // Empty string means null
	CreatedAt string
}

// ActivityLogFilters contains filter options for querying logs.
type ActivityLogFilters struct {
	DocType   string
	DocID     string
	ProjectID string
	ActorID   string
	Action    string
	Limit     int
}
