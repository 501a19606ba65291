package models

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a document or attachment id does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write presents a stale revision.
	ErrConflict = errors.New("document update conflict")
	// ErrTooManyConflicts is returned when a retrying upsert gives up.
	ErrTooManyConflicts = errors.New("too many conflicts")
	// ErrValidation is returned for malformed paths, prefixes and separators.
	ErrValidation = errors.New("validation failed")
	// ErrAttachmentType is returned when an attachment body is not binary.
	ErrAttachmentType = errors.New("attachment type mismatch")
)

// ConflictError describes a rejected write.
type ConflictError struct {
	ID               string
	ExpectedRevision string
	CurrentRevision  string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("document update conflict on %s: expected rev %q, current rev %q", e.ID, e.ExpectedRevision, e.CurrentRevision)
}

// Is lets errors.Is(err, ErrConflict) match.
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// NotFoundError names the missing document.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// Is lets errors.Is(err, ErrNotFound) match.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict reports whether err is a revision conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
