package app

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/example/fieldstore/internal/core/document"
	"github.com/example/fieldstore/internal/models"
	"github.com/example/fieldstore/internal/ports/primary"
	"github.com/example/fieldstore/internal/ports/secondary"
)

// exportConcurrency bounds parallel installation reads during export.
const exportConcurrency = 4

// TransferSettings holds the export file conventions.
type TransferSettings struct {
	Extension   string
	ContentType string
}

// TransferServiceImpl implements the TransferService interface.
type TransferServiceImpl struct {
	repo      primary.DocumentRepository
	store     secondary.DocumentStore
	logWriter secondary.LogWriter
	settings  TransferSettings
	logger    zerolog.Logger
	now       func() time.Time
}

// NewTransferService creates a new TransferService with injected dependencies.
// logWriter may be nil.
func NewTransferService(repo primary.DocumentRepository, store secondary.DocumentStore, logWriter secondary.LogWriter, settings TransferSettings, logger zerolog.Logger) *TransferServiceImpl {
	return &TransferServiceImpl{
		repo:      repo,
		store:     store,
		logWriter: logWriter,
		settings:  settings,
		logger:    logger,
		now:       time.Now,
	}
}

// Export writes {"all_docs": [project, ...installations]} to w.
func (s *TransferServiceImpl) Export(ctx context.Context, req primary.ExportRequest, w io.Writer) (*primary.ExportResponse, error) {
	opts := models.GetOptions{Attachments: req.IncludeAttachments}

	project, err := s.repo.GetProject(ctx, req.ProjectID, opts)
	if err != nil {
		return nil, err
	}

	installations := make([]*models.Document, len(project.Children))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(exportConcurrency)
	for i, id := range project.Children {
		i, id := i, id
		g.Go(func() error {
			doc, err := s.repo.GetInstallation(gctx, id, opts)
			if models.IsNotFound(err) {
				s.logger.Warn().Str("project_id", project.ID).Str("doc_id", id).Msg("skipping missing installation")
				return nil
			}
			if err != nil {
				return fmt.Errorf("failed to read installation %s: %w", id, err)
			}
			installations[i] = doc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	bundle := models.ExportBundle{AllDocs: []*models.Document{project}}
	for _, doc := range installations {
		if doc != nil {
			bundle.AllDocs = append(bundle.AllDocs, doc)
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(bundle); err != nil {
		return nil, fmt.Errorf("failed to write export: %w", err)
	}

	return &primary.ExportResponse{
		ProjectName:   project.Metadata.DocName,
		DocumentCount: len(bundle.AllDocs),
		FileName:      exportFileName(project.Metadata.DocName, project.ID) + s.settings.Extension,
		ContentType:   s.settings.ContentType,
	}, nil
}

// Import stores the documents of an export bundle as new documents: ids are
// regenerated, children rewired, project names de-duplicated and timestamps
// refreshed. Everything is written in one bulk call.
func (s *TransferServiceImpl) Import(ctx context.Context, r io.Reader) (*primary.ImportResponse, error) {
	var bundle models.ExportBundle
	if err := json.NewDecoder(r).Decode(&bundle); err != nil {
		return nil, fmt.Errorf("failed to read import: %w", err)
	}
	if len(bundle.AllDocs) == 0 {
		return nil, fmt.Errorf("%w: import contains no documents", models.ErrValidation)
	}

	existing, err := s.repo.GetProjectDocumentNames(ctx)
	if err != nil {
		return nil, err
	}

	ids := make(map[string]string, len(bundle.AllDocs))
	for _, doc := range bundle.AllDocs {
		if doc == nil {
			return nil, fmt.Errorf("%w: import contains an empty document", models.ErrValidation)
		}
		if !doc.Type.Valid() {
			return nil, fmt.Errorf("%w: document %s has unknown type %q", models.ErrValidation, doc.ID, doc.Type)
		}
		if doc.ID != "" {
			ids[doc.ID] = document.NewID()
		}
	}

	now := s.now().UTC()
	resp := &primary.ImportResponse{}
	docs := make([]*models.Document, 0, len(bundle.AllDocs))
	for _, src := range bundle.AllDocs {
		doc := src.Clone()
		if newID, ok := ids[src.ID]; ok {
			doc.ID = newID
		} else {
			doc.ID = document.NewID()
		}
		doc.Rev = ""
		doc.Deleted = false
		if doc.Data == nil {
			doc.Data = map[string]any{}
		}
		doc.Metadata.CreatedAt = now
		doc.Metadata.LastModifiedAt = now

		children := make([]string, 0, len(src.Children))
		for _, child := range src.Children {
			newID, ok := ids[child]
			if !ok {
				s.logger.Debug().Str("doc_id", src.ID).Str("child_id", child).Msg("dropping child not in import")
				continue
			}
			children = append(children, newID)
		}
		doc.Children = children

		keepInlineAttachments(doc)

		if doc.Type == models.DocTypeProject {
			name := document.UniqueName(doc.Metadata.DocName, existing)
			existing = append(existing, name)
			doc.Metadata.DocName = name
			resp.ProjectIDs = append(resp.ProjectIDs, doc.ID)
			resp.ProjectNames = append(resp.ProjectNames, name)
		}
		docs = append(docs, doc)
	}

	results, err := s.store.BulkDocs(ctx, docs)
	if err != nil {
		return nil, fmt.Errorf("failed to write import: %w", err)
	}
	resp.Results = results

	for i, r := range results {
		if r.Err != nil {
			s.logger.Warn().Err(r.Err).Str("doc_id", r.ID).Msg("import of document failed")
			continue
		}
		if s.logWriter != nil {
			if err := s.logWriter.LogCreate(ctx, string(docs[i].Type), r.ID, ""); err != nil {
				s.logger.Warn().Err(err).Str("doc_id", r.ID).Msg("failed to write activity log")
			}
		}
	}
	return resp, nil
}

// keepInlineAttachments drops attachments exported without a body, together
// with their metadata.
func keepInlineAttachments(doc *models.Document) {
	for id, a := range doc.Attachments {
		if a == nil || a.Stub() {
			delete(doc.Attachments, id)
		}
	}
	for id := range doc.Metadata.Attachments {
		if _, ok := doc.Attachments[id]; !ok {
			delete(doc.Metadata.Attachments, id)
		}
	}
}

// exportFileName turns a project name into a file name.
func exportFileName(name, fallback string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ' || r == '.':
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return fallback
	}
	return b.String()
}

// Ensure TransferServiceImpl implements the interface
var _ primary.TransferService = (*TransferServiceImpl)(nil)
