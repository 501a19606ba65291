package app

import (
	"context"
	"fmt"

	"github.com/example/fieldstore/internal/models"
	"github.com/example/fieldstore/internal/ports/primary"
	"github.com/example/fieldstore/internal/ports/secondary"
)

// LogServiceImpl implements the LogService interface.
type LogServiceImpl struct {
	logRepo secondary.ActivityLogRepository
}

// NewLogService creates a new LogService with injected dependencies.
func NewLogService(logRepo secondary.ActivityLogRepository) *LogServiceImpl {
	return &LogServiceImpl{
		logRepo: logRepo,
	}
}

// ListLogs retrieves log entries matching the given filters.
func (s *LogServiceImpl) ListLogs(ctx context.Context, filters primary.LogFilters) ([]*primary.LogEntry, error) {
	if filters.DocType != "" && !models.DocType(filters.DocType).Valid() {
		return nil, fmt.Errorf("%w: unknown document type %q", models.ErrValidation, filters.DocType)
	}
	switch filters.Action {
	case "", "create", "update", "delete":
	default:
		return nil, fmt.Errorf("%w: unknown action %q", models.ErrValidation, filters.Action)
	}

	records, err := s.logRepo.List(ctx, secondary.ActivityLogFilters{
		DocType:   filters.DocType,
		DocID:     filters.DocID,
		ProjectID: filters.ProjectID,
		ActorID:   filters.ActorID,
		Action:    filters.Action,
		Limit:     filters.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list logs: %w", err)
	}

	entries := make([]*primary.LogEntry, len(records))
	for i, r := range records {
		entries[i] = recordToLogEntry(r)
	}
	return entries, nil
}

// GetLog retrieves a single log entry by ID.
func (s *LogServiceImpl) GetLog(ctx context.Context, id string) (*primary.LogEntry, error) {
	record, err := s.logRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return recordToLogEntry(record), nil
}

// PruneLogs deletes log entries older than the specified number of days.
func (s *LogServiceImpl) PruneLogs(ctx context.Context, olderThanDays int) (int, error) {
	if olderThanDays < 0 {
		return 0, fmt.Errorf("days must be non-negative, got %d", olderThanDays)
	}
	return s.logRepo.PruneOlderThan(ctx, olderThanDays)
}

func recordToLogEntry(r *secondary.ActivityLogRecord) *primary.LogEntry {
	return &primary.LogEntry{
		ID:        r.ID,
		Timestamp: r.Timestamp,
		ActorID:   r.ActorID,
		DocType:   r.DocType,
		DocID:     r.DocID,
		ProjectID: r.ProjectID,
		Action:    r.Action,
		FieldName: r.FieldName,
		OldValue:  r.OldValue,
		NewValue:  r.NewValue,
		CreatedAt: r.CreatedAt,
	}
}

// Ensure LogServiceImpl implements the interface
var _ primary.LogService = (*LogServiceImpl)(nil)
