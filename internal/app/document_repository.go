package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/fieldstore/internal/core/document"
	"github.com/example/fieldstore/internal/models"
	"github.com/example/fieldstore/internal/ports/primary"
	"github.com/example/fieldstore/internal/ports/secondary"
)

// DocumentRepositoryImpl implements the DocumentRepository interface.
type DocumentRepositoryImpl struct {
	store     secondary.DocumentStore
	logWriter secondary.LogWriter
	retry     RetryPolicy
	logger    zerolog.Logger
	now       func() time.Time
}

// NewDocumentRepository creates a new DocumentRepository with injected dependencies.
// logWriter may be nil.
func NewDocumentRepository(store secondary.DocumentStore, logWriter secondary.LogWriter, retry RetryPolicy, logger zerolog.Logger) *DocumentRepositoryImpl {
	return &DocumentRepositoryImpl{
		store:     store,
		logWriter: logWriter,
		retry:     retry,
		logger:    logger,
		now:       time.Now,
	}
}

// GetProject retrieves a project by ID.
func (s *DocumentRepositoryImpl) GetProject(ctx context.Context, id string, opts models.GetOptions) (*models.Document, error) {
	return s.getTyped(ctx, models.DocTypeProject, id, opts)
}

// GetInstallation retrieves an installation by ID.
func (s *DocumentRepositoryImpl) GetInstallation(ctx context.Context, id string, opts models.GetOptions) (*models.Document, error) {
	return s.getTyped(ctx, models.DocTypeInstallation, id, opts)
}

func (s *DocumentRepositoryImpl) getTyped(ctx context.Context, kind models.DocType, id string, opts models.GetOptions) (*models.Document, error) {
	doc, err := s.store.Get(ctx, id, opts)
	if err != nil {
		return nil, err
	}
	if doc.Type != kind {
		return nil, &models.NotFoundError{Kind: string(kind), ID: id}
	}
	return doc, nil
}

// GetProjects lists every project.
func (s *DocumentRepositoryImpl) GetProjects(ctx context.Context, opts models.GetOptions) ([]*models.Document, error) {
	docs, err := s.store.FindByType(ctx, models.DocTypeProject, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	return docs, nil
}

// GetInstallations resolves a project's children. Children whose document no
// longer exists are skipped but stay referenced by the project.
func (s *DocumentRepositoryImpl) GetInstallations(ctx context.Context, projectID string, templateFilter []string, opts models.GetOptions) ([]*models.Document, error) {
	project, err := s.GetProject(ctx, projectID, models.GetOptions{})
	if err != nil {
		return nil, err
	}
	if len(project.Children) == 0 {
		return []*models.Document{}, nil
	}

	results, err := s.store.BulkGet(ctx, project.Children, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to get installations: %w", err)
	}

	var allowed map[string]bool
	if len(templateFilter) > 0 {
		allowed = make(map[string]bool, len(templateFilter))
		for _, name := range templateFilter {
			allowed[name] = true
		}
	}

	docs := make([]*models.Document, 0, len(results))
	for _, r := range results {
		if r.Err != nil {
			if models.IsNotFound(r.Err) {
				s.logger.Debug().Str("project_id", projectID).Str("doc_id", r.ID).Msg("child installation missing")
				continue
			}
			return nil, fmt.Errorf("failed to get installation %s: %w", r.ID, r.Err)
		}
		if r.Doc.Type != models.DocTypeInstallation {
			continue
		}
		if allowed != nil && !allowed[r.Doc.Metadata.TemplateName] {
			continue
		}
		docs = append(docs, r.Doc)
	}
	return docs, nil
}

// PutProject writes a project.
func (s *DocumentRepositoryImpl) PutProject(ctx context.Context, doc *models.Document) (models.PutResult, error) {
	if err := ensureType(doc, models.DocTypeProject); err != nil {
		return models.PutResult{}, err
	}
	if doc.Children == nil {
		doc.Children = []string{}
	}

	created := doc.Rev == ""
	res, err := s.store.Put(ctx, doc)
	if err != nil {
		return res, err
	}

	if created {
		s.logCreate(ctx, doc.Type, doc.ID, "")
	}
	return res, nil
}

// PutInstallation writes an installation, then links it from the project.
func (s *DocumentRepositoryImpl) PutInstallation(ctx context.Context, projectID string, doc *models.Document) (*primary.PutInstallationResponse, error) {
	if err := ensureType(doc, models.DocTypeInstallation); err != nil {
		return nil, err
	}
	if doc.Children == nil {
		doc.Children = []string{}
	}

	created := doc.Rev == ""
	res, err := s.store.Put(ctx, doc)
	if err != nil {
		return &primary.PutInstallationResponse{Installation: res}, err
	}
	if created {
		s.logCreate(ctx, doc.Type, doc.ID, projectID)
	}

	parent, err := s.linkChild(ctx, projectID, doc.ID)
	resp := &primary.PutInstallationResponse{Installation: res, Parent: &parent}
	if err != nil {
		return resp, fmt.Errorf("failed to link installation %s to project %s: %w", doc.ID, projectID, err)
	}
	return resp, nil
}

func (s *DocumentRepositoryImpl) linkChild(ctx context.Context, projectID, id string) (models.UpsertResult, error) {
	return s.Upsert(ctx, projectID, func(project *models.Document) (bool, error) {
		if project.Type != models.DocTypeProject {
			return false, &models.NotFoundError{Kind: string(models.DocTypeProject), ID: projectID}
		}
		children, added := document.AppendChild(project.Children, id)
		project.Children = children
		return added, nil
	})
}

// RemoveInstallation unlinks an installation from its project and then
// deletes it. When the installation is not a child of the project nothing is
// deleted and Installation is nil. An empty rev deletes the current revision.
func (s *DocumentRepositoryImpl) RemoveInstallation(ctx context.Context, projectID, id, rev string) (*primary.RemoveInstallationResponse, error) {
	var removed bool
	parent, err := s.Upsert(ctx, projectID, func(project *models.Document) (bool, error) {
		if project.Type != models.DocTypeProject {
			return false, &models.NotFoundError{Kind: string(models.DocTypeProject), ID: projectID}
		}
		project.Children, removed = document.RemoveChild(project.Children, id)
		return removed, nil
	})
	resp := &primary.RemoveInstallationResponse{Parent: parent}
	if err != nil {
		return resp, fmt.Errorf("failed to unlink installation %s from project %s: %w", id, projectID, err)
	}
	if !removed {
		return resp, nil
	}

	if rev == "" {
		current, err := s.GetInstallation(ctx, id, models.GetOptions{})
		if err != nil {
			return resp, err
		}
		rev = current.Rev
	}

	res, err := s.store.Delete(ctx, id, rev)
	if err != nil {
		return resp, fmt.Errorf("failed to delete installation %s: %w", id, err)
	}
	resp.Installation = &res
	s.logDelete(ctx, models.DocTypeInstallation, id, projectID)
	return resp, nil
}

// RemoveProject deletes every installation of a project in one batch and
// then the project itself. Child failures are reported per item.
func (s *DocumentRepositoryImpl) RemoveProject(ctx context.Context, id string) (*primary.RemoveProjectResponse, error) {
	project, err := s.GetProject(ctx, id, models.GetOptions{})
	if err != nil {
		return nil, err
	}

	resp := &primary.RemoveProjectResponse{}
	if len(project.Children) > 0 {
		found, err := s.store.BulkGet(ctx, project.Children, models.GetOptions{})
		if err != nil {
			return nil, fmt.Errorf("failed to get installations: %w", err)
		}

		var tombstones []*models.Document
		for _, r := range found {
			if r.Err != nil {
				resp.Children = append(resp.Children, models.BulkResult{ID: r.ID, Err: r.Err})
				continue
			}
			tombstones = append(tombstones, &models.Document{ID: r.Doc.ID, Rev: r.Doc.Rev, Type: r.Doc.Type, Deleted: true})
		}

		results, err := s.store.BulkDocs(ctx, tombstones)
		if err != nil {
			return nil, fmt.Errorf("failed to delete installations: %w", err)
		}
		for _, r := range results {
			if r.Err != nil {
				s.logger.Warn().Err(r.Err).Str("project_id", id).Str("doc_id", r.ID).Msg("installation delete failed")
			} else {
				s.logDelete(ctx, models.DocTypeInstallation, r.ID, id)
			}
		}
		resp.Children = append(resp.Children, results...)
	}

	rev := project.Rev
	_, err = retryOnConflict(ctx, s.retry, func(attempt int) error {
		if attempt > 0 {
			latest, err := s.GetProject(ctx, id, models.GetOptions{})
			if err != nil {
				return err
			}
			rev = latest.Rev
		}
		res, err := s.store.Delete(ctx, id, rev)
		resp.Project = res
		return err
	})
	if err != nil {
		return resp, fmt.Errorf("failed to delete project %s: %w", id, err)
	}

	s.logDelete(ctx, models.DocTypeProject, id, id)
	return resp, nil
}

// GetProjectDocumentNames returns the doc_name of every project.
func (s *DocumentRepositoryImpl) GetProjectDocumentNames(ctx context.Context) ([]string, error) {
	names, err := s.store.ListDocNames(ctx, models.DocTypeProject)
	if err != nil {
		return nil, fmt.Errorf("failed to list project names: %w", err)
	}
	return names, nil
}

// Upsert reads the latest revision of a document, applies fn to a copy and
// writes it back, retrying on revision conflicts.
func (s *DocumentRepositoryImpl) Upsert(ctx context.Context, id string, fn primary.UpdateFunc) (models.UpsertResult, error) {
	result := models.UpsertResult{ID: id}

	attempts, err := retryOnConflict(ctx, s.retry, func(attempt int) error {
		current, err := s.store.Get(ctx, id, models.GetOptions{})
		if err != nil {
			return err
		}
		result.Rev = current.Rev
		result.Doc = current

		working := current.Clone()
		changed, err := fn(working)
		if err != nil {
			return err
		}
		if !changed {
			result.Updated = false
			return nil
		}

		working.ID = current.ID
		working.Rev = current.Rev
		res, err := s.store.Put(ctx, working)
		if err != nil {
			if models.IsConflict(err) {
				s.logger.Debug().Str("doc_id", id).Int("attempt", attempt+1).Msg("upsert conflict, retrying")
			}
			return err
		}
		working.Rev = res.Rev
		result.Rev = res.Rev
		result.Doc = working
		result.Updated = true
		return nil
	})
	result.Attempts = attempts
	if err != nil {
		if errors.Is(err, models.ErrTooManyConflicts) {
			s.logger.Warn().Err(err).Str("doc_id", id).Int("attempts", attempts).Msg("upsert gave up")
		}
		return result, err
	}
	return result, nil
}

// GetOrCreateProject returns the project with draft's id, creating it from
// draft when absent.
func (s *DocumentRepositoryImpl) GetOrCreateProject(ctx context.Context, draft *models.Document) (*models.Document, error) {
	if err := ensureType(draft, models.DocTypeProject); err != nil {
		return nil, err
	}

	existing, err := s.getOrNil(ctx, models.DocTypeProject, draft.ID)
	if err != nil || existing != nil {
		return existing, err
	}

	doc := draft.Clone()
	doc.Rev = ""
	res, err := s.PutProject(ctx, doc)
	if models.IsConflict(err) {
		// created concurrently
		return s.GetProject(ctx, draft.ID, models.GetOptions{})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}
	doc.Rev = res.Rev
	return doc, nil
}

// GetOrCreateInstallation returns the installation with draft's id, creating
// it from draft when absent. The installation is linked from projectID in
// both cases so that an interrupted creation heals.
func (s *DocumentRepositoryImpl) GetOrCreateInstallation(ctx context.Context, projectID string, draft *models.Document) (*models.Document, error) {
	if err := ensureType(draft, models.DocTypeInstallation); err != nil {
		return nil, err
	}

	existing, err := s.getOrNil(ctx, models.DocTypeInstallation, draft.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if projectID != "" {
			if _, err := s.linkChild(ctx, projectID, existing.ID); err != nil {
				return nil, fmt.Errorf("failed to link installation %s to project %s: %w", existing.ID, projectID, err)
			}
		}
		return existing, nil
	}

	doc := draft.Clone()
	doc.Rev = ""
	if projectID == "" {
		res, err := s.store.Put(ctx, doc)
		if models.IsConflict(err) {
			return s.GetInstallation(ctx, draft.ID, models.GetOptions{})
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create installation: %w", err)
		}
		s.logCreate(ctx, doc.Type, doc.ID, "")
		doc.Rev = res.Rev
		return doc, nil
	}

	resp, err := s.PutInstallation(ctx, projectID, doc)
	if err != nil && resp != nil && resp.Parent == nil && models.IsConflict(err) {
		// created concurrently; make sure it is linked
		return s.GetOrCreateInstallation(ctx, projectID, draft)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create installation: %w", err)
	}
	doc.Rev = resp.Installation.Rev
	return doc, nil
}

func (s *DocumentRepositoryImpl) getOrNil(ctx context.Context, kind models.DocType, id string) (*models.Document, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: document id is required", models.ErrValidation)
	}
	doc, err := s.store.Get(ctx, id, models.GetOptions{})
	if models.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if doc.Type != kind {
		return nil, fmt.Errorf("%w: document %s is a %s, not a %s", models.ErrValidation, id, doc.Type, kind)
	}
	return doc, nil
}

// PutAttachment stores a blob against the latest revision.
func (s *DocumentRepositoryImpl) PutAttachment(ctx context.Context, docID, attachmentID string, blob []byte, contentType string) (models.PutResult, error) {
	var res models.PutResult
	_, err := retryOnConflict(ctx, s.retry, func(attempt int) error {
		current, err := s.store.Get(ctx, docID, models.GetOptions{})
		if err != nil {
			return err
		}
		res, err = s.store.PutAttachment(ctx, docID, current.Rev, attachmentID, blob, contentType)
		return err
	})
	if err != nil {
		return res, fmt.Errorf("failed to put attachment %s on %s: %w", attachmentID, docID, err)
	}
	return res, nil
}

// GetAttachment retrieves an attachment body.
func (s *DocumentRepositoryImpl) GetAttachment(ctx context.Context, docID, attachmentID string) (*models.Attachment, error) {
	return s.store.GetAttachment(ctx, docID, attachmentID)
}

// RemoveAttachment deletes an attachment from the latest revision.
func (s *DocumentRepositoryImpl) RemoveAttachment(ctx context.Context, docID, attachmentID string) (models.PutResult, error) {
	var res models.PutResult
	_, err := retryOnConflict(ctx, s.retry, func(attempt int) error {
		current, err := s.store.Get(ctx, docID, models.GetOptions{})
		if err != nil {
			return err
		}
		res, err = s.store.RemoveAttachment(ctx, docID, current.Rev, attachmentID)
		return err
	})
	if err != nil {
		return res, fmt.Errorf("failed to remove attachment %s from %s: %w", attachmentID, docID, err)
	}
	return res, nil
}

// Changes opens a live change feed.
func (s *DocumentRepositoryImpl) Changes(ctx context.Context, opts models.ChangesOptions) (models.ChangeFeed, error) {
	return s.store.Changes(ctx, opts)
}

func ensureType(doc *models.Document, kind models.DocType) error {
	if doc == nil {
		return fmt.Errorf("%w: document is required", models.ErrValidation)
	}
	if doc.Type == "" {
		doc.Type = kind
	}
	if doc.Type != kind {
		return fmt.Errorf("%w: expected a %s document, got %s", models.ErrValidation, kind, doc.Type)
	}
	return nil
}

func (s *DocumentRepositoryImpl) logCreate(ctx context.Context, kind models.DocType, id, projectID string) {
	if s.logWriter == nil {
		return
	}
	if err := s.logWriter.LogCreate(ctx, string(kind), id, projectID); err != nil {
		s.logger.Warn().Err(err).Str("doc_id", id).Msg("failed to write activity log")
	}
}

func (s *DocumentRepositoryImpl) logDelete(ctx context.Context, kind models.DocType, id, projectID string) {
	if s.logWriter == nil {
		return
	}
	if err := s.logWriter.LogDelete(ctx, string(kind), id, projectID); err != nil {
		s.logger.Warn().Err(err).Str("doc_id", id).Msg("failed to write activity log")
	}
}

// Ensure DocumentRepositoryImpl implements the interface
var _ primary.DocumentRepository = (*DocumentRepositoryImpl)(nil)
