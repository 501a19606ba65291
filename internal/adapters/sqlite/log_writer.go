// Package sqlite contains SQLite implementations of repository interfaces.
package sqlite

import (
	"context"
	"sync"

	"github.com/example/fieldstore/internal/ctxutil"
	"github.com/example/fieldstore/internal/ports/secondary"
)

// LogWriterAdapter implements secondary.LogWriter using ActivityLogRepository.
type LogWriterAdapter struct {
	logRepo      secondary.ActivityLogRepository
	defaultActor string

	// serializes GetNextID and Create
	mu sync.Mutex
}

// NewLogWriterAdapter creates a new LogWriterAdapter.
// defaultActor is recorded when the context carries no actor.
func NewLogWriterAdapter(logRepo secondary.ActivityLogRepository, defaultActor string) *LogWriterAdapter {
	return &LogWriterAdapter{
		logRepo:      logRepo,
		defaultActor: defaultActor,
	}
}

// LogCreate logs the creation of a document.
func (w *LogWriterAdapter) LogCreate(ctx context.Context, docType, docID, projectID string) error {
	return w.writeLog(ctx, docType, docID, projectID, "create", "", "", "")
}

// LogUpdate logs a change to one path of a document.
func (w *LogWriterAdapter) LogUpdate(ctx context.Context, docType, docID, fieldName, oldValue, newValue string) error {
	return w.writeLog(ctx, docType, docID, "", "update", fieldName, oldValue, newValue)
}

// LogDelete logs the removal of a document.
func (w *LogWriterAdapter) LogDelete(ctx context.Context, docType, docID, projectID string) error {
	return w.writeLog(ctx, docType, docID, projectID, "delete", "", "", "")
}

func (w *LogWriterAdapter) writeLog(ctx context.Context, docType, docID, projectID, action, fieldName, oldValue, newValue string) error {
	actorID := ctxutil.ActorOr(ctx, w.defaultActor)

	w.mu.Lock()
	defer w.mu.Unlock()

	id, err := w.logRepo.GetNextID(ctx)
	if err != nil {
		return err
	}

	record := &secondary.ActivityLogRecord{
		ID:        id,
		ActorID:   actorID,
		DocType:   docType,
		DocID:     docID,
		ProjectID: projectID,
		Action:    action,
		FieldName: fieldName,
		OldValue:  oldValue,
		NewValue:  newValue,
	}

	return w.logRepo.Create(ctx, record)
}

// Ensure LogWriterAdapter implements the interface
var _ secondary.LogWriter = (*LogWriterAdapter)(nil)
