package secondary

import "context"

// LogWriter defines the interface for writing activity log entries.
// Implementations extract the actor from context.
type LogWriter interface {
	// LogCreate logs the creation of a document.
	LogCreate(ctx context.Context, docType, docID, projectID string) error

	// LogUpdate logs a change to one path of a document.
	// fieldName, oldValue, newValue describe what changed.
	LogUpdate(ctx context.Context, docType, docID, fieldName, oldValue, newValue string) error

	// LogDelete logs the removal of a document.
	LogDelete(ctx context.Context, docType, docID, projectID string) error
}
