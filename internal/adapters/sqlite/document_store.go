// Package sqlite contains SQLite implementations of repository interfaces.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/example/fieldstore/internal/core/attachment"
	"github.com/example/fieldstore/internal/core/document"
	"github.com/example/fieldstore/internal/models"
	"github.com/example/fieldstore/internal/ports/secondary"
)

const defaultPollInterval = 250 * time.Millisecond

// DocumentStore implements secondary.DocumentStore with SQLite.
type DocumentStore struct {
	db           *sql.DB
	pollInterval time.Duration
	notifier     secondary.ChangeNotifier
	logger       zerolog.Logger

	mu    sync.Mutex
	wakes map[chan struct{}]struct{}
}

// StoreOption configures a DocumentStore.
type StoreOption func(*DocumentStore)

// WithPollInterval sets how often change feeds poll when not woken.
func WithPollInterval(d time.Duration) StoreOption {
	return func(s *DocumentStore) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithNotifier wakes change feeds on writes made by other processes.
func WithNotifier(n secondary.ChangeNotifier) StoreOption {
	return func(s *DocumentStore) {
		s.notifier = n
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) StoreOption {
	return func(s *DocumentStore) {
		s.logger = l
	}
}

// NewDocumentStore creates a new SQLite document store.
func NewDocumentStore(db *sql.DB, opts ...StoreOption) *DocumentStore {
	s := &DocumentStore{
		db:           db,
		pollInterval: defaultPollInterval,
		logger:       zerolog.Nop(),
		wakes:        make(map[chan struct{}]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// documentBody is the JSON stored in documents.body.
type documentBody struct {
	Data     map[string]any  `json:"data_"`
	Metadata models.Metadata `json:"metadata_"`
	Children []string        `json:"children"`
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Get retrieves a document by id.
func (s *DocumentStore) Get(ctx context.Context, id string, opts models.GetOptions) (*models.Document, error) {
	var (
		rev, docType, body string
		deleted            bool
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT rev, type, body, deleted FROM documents WHERE id = ?`,
		id,
	).Scan(&rev, &docType, &body, &deleted)
	if err == sql.ErrNoRows || (err == nil && deleted) {
		return nil, &models.NotFoundError{Kind: "document", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	doc, err := decodeDocument(id, rev, docType, body)
	if err != nil {
		return nil, err
	}
	if err := s.loadAttachments(ctx, s.db, doc, opts.Attachments); err != nil {
		return nil, err
	}
	return doc, nil
}

// Put creates or updates a document.
func (s *DocumentStore) Put(ctx context.Context, doc *models.Document) (models.PutResult, error) {
	res, err := s.inTx(ctx, func(tx *sql.Tx) (models.PutResult, error) {
		return s.putTx(ctx, tx, doc)
	})
	if err != nil {
		return res, err
	}
	s.announce(ctx, res.ID)
	return res, nil
}

func (s *DocumentStore) putTx(ctx context.Context, tx *sql.Tx, doc *models.Document) (models.PutResult, error) {
	if doc.ID == "" {
		return models.PutResult{}, fmt.Errorf("%w: document id is required", models.ErrValidation)
	}
	if !doc.Type.Valid() {
		return models.PutResult{}, fmt.Errorf("%w: unknown document type %q", models.ErrValidation, doc.Type)
	}

	current, exists, deleted, err := currentRev(ctx, tx, doc.ID)
	if err != nil {
		return models.PutResult{}, err
	}
	live := exists && !deleted
	if (live && doc.Rev != current) || (!live && doc.Rev != "" && doc.Rev != current) {
		return models.PutResult{}, &models.ConflictError{ID: doc.ID, ExpectedRevision: doc.Rev, CurrentRevision: current}
	}

	body, err := json.Marshal(documentBody{Data: doc.Data, Metadata: doc.Metadata, Children: doc.Children})
	if err != nil {
		return models.PutResult{}, fmt.Errorf("failed to encode document: %w", err)
	}

	rev := document.NextRev(current)
	var docName sql.NullString
	if doc.Metadata.DocName != "" {
		docName = sql.NullString{String: doc.Metadata.DocName, Valid: true}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO documents (id, rev, type, doc_name, body, deleted) VALUES (?, ?, ?, ?, ?, 0)
		 ON CONFLICT(id) DO UPDATE SET rev = excluded.rev, type = excluded.type, doc_name = excluded.doc_name,
		 body = excluded.body, deleted = 0, updated_at = CURRENT_TIMESTAMP`,
		doc.ID, rev, string(doc.Type), docName, string(body),
	)
	if err != nil {
		return models.PutResult{}, fmt.Errorf("failed to write document: %w", err)
	}

	if err := syncAttachments(ctx, tx, doc.ID, doc.Attachments); err != nil {
		return models.PutResult{}, err
	}
	if err := recordChange(ctx, tx, doc.ID, rev, false); err != nil {
		return models.PutResult{}, err
	}

	return models.PutResult{ID: doc.ID, Rev: rev}, nil
}

// Delete removes a document at the given revision, leaving a tombstone.
func (s *DocumentStore) Delete(ctx context.Context, id, rev string) (models.PutResult, error) {
	res, err := s.inTx(ctx, func(tx *sql.Tx) (models.PutResult, error) {
		return s.deleteTx(ctx, tx, id, rev)
	})
	if err != nil {
		return res, err
	}
	s.announce(ctx, id)
	return res, nil
}

func (s *DocumentStore) deleteTx(ctx context.Context, tx *sql.Tx, id, rev string) (models.PutResult, error) {
	current, exists, deleted, err := currentRev(ctx, tx, id)
	if err != nil {
		return models.PutResult{}, err
	}
	if !exists || deleted {
		return models.PutResult{}, &models.NotFoundError{Kind: "document", ID: id}
	}
	if rev != current {
		return models.PutResult{}, &models.ConflictError{ID: id, ExpectedRevision: rev, CurrentRevision: current}
	}

	next := document.NextRev(current)
	_, err = tx.ExecContext(ctx,
		`UPDATE documents SET rev = ?, deleted = 1, doc_name = NULL, body = '{}', updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		next, id,
	)
	if err != nil {
		return models.PutResult{}, fmt.Errorf("failed to delete document: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM attachments WHERE doc_id = ?`, id); err != nil {
		return models.PutResult{}, fmt.Errorf("failed to delete attachments: %w", err)
	}
	if err := recordChange(ctx, tx, id, next, true); err != nil {
		return models.PutResult{}, err
	}

	return models.PutResult{ID: id, Rev: next}, nil
}

// BulkGet retrieves several documents, reporting failures per id.
func (s *DocumentStore) BulkGet(ctx context.Context, ids []string, opts models.GetOptions) ([]models.BulkGetResult, error) {
	results := make([]models.BulkGetResult, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		doc, err := s.Get(ctx, id, opts)
		results = append(results, models.BulkGetResult{ID: id, Doc: doc, Err: err})
	}
	return results, nil
}

// BulkDocs writes several documents. Each item is committed on its own so
// that one conflict does not abort the batch.
func (s *DocumentStore) BulkDocs(ctx context.Context, docs []*models.Document) ([]models.BulkResult, error) {
	results := make([]models.BulkResult, 0, len(docs))
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		var (
			res models.PutResult
			err error
		)
		if doc.Deleted {
			res, err = s.Delete(ctx, doc.ID, doc.Rev)
		} else {
			res, err = s.Put(ctx, doc)
		}
		results = append(results, models.BulkResult{ID: doc.ID, Rev: res.Rev, Err: err})
	}
	return results, nil
}

// FindByType lists live documents of one kind.
func (s *DocumentStore) FindByType(ctx context.Context, docType models.DocType, opts models.GetOptions) ([]*models.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, rev, type, body FROM documents WHERE type = ? AND deleted = 0 ORDER BY created_at, id`,
		string(docType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	var docs []*models.Document
	for rows.Next() {
		var id, rev, t, body string
		if err := rows.Scan(&id, &rev, &t, &body); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		doc, err := decodeDocument(id, rev, t, body)
		if err != nil {
			rows.Close()
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	// Close before loading attachments: the pool has a single connection.
	rows.Close()

	for _, doc := range docs {
		if err := s.loadAttachments(ctx, s.db, doc, opts.Attachments); err != nil {
			return nil, err
		}
	}
	return docs, nil
}

// ListDocNames returns the doc_name of every live document of a kind.
func (s *DocumentStore) ListDocNames(ctx context.Context, docType models.DocType) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT doc_name FROM documents WHERE type = ? AND deleted = 0 AND doc_name IS NOT NULL ORDER BY doc_name`,
		string(docType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list document names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan document name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// PutAttachment stores a binary attachment against revision rev.
func (s *DocumentStore) PutAttachment(ctx context.Context, docID, rev, attachmentID string, blob []byte, contentType string) (models.PutResult, error) {
	if attachmentID == "" {
		return models.PutResult{}, fmt.Errorf("%w: attachment id is required", models.ErrValidation)
	}
	if blob == nil {
		return models.PutResult{}, fmt.Errorf("%w: attachment %s has no binary body", models.ErrAttachmentType, attachmentID)
	}

	res, err := s.inTx(ctx, func(tx *sql.Tx) (models.PutResult, error) {
		next, err := s.bumpRev(ctx, tx, docID, rev)
		if err != nil {
			return models.PutResult{}, err
		}
		if err := writeAttachment(ctx, tx, docID, attachmentID, &models.Attachment{ContentType: contentType, Data: blob}); err != nil {
			return models.PutResult{}, err
		}
		return models.PutResult{ID: docID, Rev: next}, nil
	})
	if err != nil {
		return res, err
	}
	s.announce(ctx, docID)
	return res, nil
}

// GetAttachment retrieves an attachment with its body.
func (s *DocumentStore) GetAttachment(ctx context.Context, docID, attachmentID string) (*models.Attachment, error) {
	a := &models.Attachment{}
	err := s.db.QueryRowContext(ctx,
		`SELECT a.content_type, a.digest, a.length, a.data FROM attachments a
		 JOIN documents d ON d.id = a.doc_id
		 WHERE a.doc_id = ? AND a.name = ? AND d.deleted = 0`,
		docID, attachmentID,
	).Scan(&a.ContentType, &a.Digest, &a.Length, &a.Data)
	if err == sql.ErrNoRows {
		return nil, &models.NotFoundError{Kind: "attachment", ID: docID + "/" + attachmentID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get attachment: %w", err)
	}
	if a.Data == nil {
		a.Data = []byte{}
	}
	return a, nil
}

// RemoveAttachment deletes an attachment against revision rev.
func (s *DocumentStore) RemoveAttachment(ctx context.Context, docID, rev, attachmentID string) (models.PutResult, error) {
	res, err := s.inTx(ctx, func(tx *sql.Tx) (models.PutResult, error) {
		next, err := s.bumpRev(ctx, tx, docID, rev)
		if err != nil {
			return models.PutResult{}, err
		}
		result, err := tx.ExecContext(ctx, `DELETE FROM attachments WHERE doc_id = ? AND name = ?`, docID, attachmentID)
		if err != nil {
			return models.PutResult{}, fmt.Errorf("failed to remove attachment: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return models.PutResult{}, &models.NotFoundError{Kind: "attachment", ID: docID + "/" + attachmentID}
		}
		return models.PutResult{ID: docID, Rev: next}, nil
	})
	if err != nil {
		return res, err
	}
	s.announce(ctx, docID)
	return res, nil
}

// bumpRev checks rev against the live document and moves it to a new
// revision, recording the change.
func (s *DocumentStore) bumpRev(ctx context.Context, tx *sql.Tx, docID, rev string) (string, error) {
	current, exists, deleted, err := currentRev(ctx, tx, docID)
	if err != nil {
		return "", err
	}
	if !exists || deleted {
		return "", &models.NotFoundError{Kind: "document", ID: docID}
	}
	if rev != current {
		return "", &models.ConflictError{ID: docID, ExpectedRevision: rev, CurrentRevision: current}
	}

	next := document.NextRev(current)
	if _, err := tx.ExecContext(ctx, `UPDATE documents SET rev = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, next, docID); err != nil {
		return "", fmt.Errorf("failed to update revision: %w", err)
	}
	if err := recordChange(ctx, tx, docID, next, false); err != nil {
		return "", err
	}
	return next, nil
}

func (s *DocumentStore) inTx(ctx context.Context, fn func(tx *sql.Tx) (models.PutResult, error)) (models.PutResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.PutResult{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	res, err := fn(tx)
	if err != nil {
		tx.Rollback()
		return models.PutResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.PutResult{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return res, nil
}

func currentRev(ctx context.Context, q querier, id string) (rev string, exists, deleted bool, err error) {
	err = q.QueryRowContext(ctx, `SELECT rev, deleted FROM documents WHERE id = ?`, id).Scan(&rev, &deleted)
	if err == sql.ErrNoRows {
		return "", false, false, nil
	}
	if err != nil {
		return "", false, false, fmt.Errorf("failed to read revision: %w", err)
	}
	return rev, true, deleted, nil
}

func recordChange(ctx context.Context, tx *sql.Tx, id, rev string, deleted bool) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO changes (doc_id, rev, deleted) VALUES (?, ?, ?)`, id, rev, deleted)
	if err != nil {
		return fmt.Errorf("failed to record change: %w", err)
	}
	return nil
}

// syncAttachments makes the stored attachments match atts: bodies are
// written, stubs must already exist, and anything else is removed.
func syncAttachments(ctx context.Context, tx *sql.Tx, docID string, atts map[string]*models.Attachment) error {
	rows, err := tx.QueryContext(ctx, `SELECT name FROM attachments WHERE doc_id = ?`, docID)
	if err != nil {
		return fmt.Errorf("failed to list attachments: %w", err)
	}
	existing := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan attachment: %w", err)
		}
		existing[name] = true
	}
	rows.Close()

	for name, a := range atts {
		if a == nil {
			continue
		}
		if a.Stub() {
			if !existing[name] {
				return fmt.Errorf("%w: attachment stub %s has no stored body", models.ErrValidation, name)
			}
			continue
		}
		if err := writeAttachment(ctx, tx, docID, name, a); err != nil {
			return err
		}
	}

	for name := range existing {
		if a, ok := atts[name]; ok && a != nil {
			continue
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM attachments WHERE doc_id = ? AND name = ?`, docID, name); err != nil {
			return fmt.Errorf("failed to remove attachment: %w", err)
		}
	}
	return nil
}

func writeAttachment(ctx context.Context, tx *sql.Tx, docID, name string, a *models.Attachment) error {
	contentType := a.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	data := a.Data
	if data == nil {
		data = []byte{}
	}
	_, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO attachments (doc_id, name, content_type, digest, length, data) VALUES (?, ?, ?, ?, ?, ?)`,
		docID, name, contentType, attachment.Digest(data), len(data), data,
	)
	if err != nil {
		return fmt.Errorf("failed to write attachment: %w", err)
	}
	return nil
}

func (s *DocumentStore) loadAttachments(ctx context.Context, q querier, doc *models.Document, withData bool) error {
	cols := "name, content_type, digest, length"
	if withData {
		cols += ", data"
	}
	rows, err := q.QueryContext(ctx, `SELECT `+cols+` FROM attachments WHERE doc_id = ? ORDER BY name`, doc.ID)
	if err != nil {
		return fmt.Errorf("failed to load attachments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		a := &models.Attachment{}
		dest := []any{&name, &a.ContentType, &a.Digest, &a.Length}
		if withData {
			dest = append(dest, &a.Data)
		}
		if err := rows.Scan(dest...); err != nil {
			return fmt.Errorf("failed to scan attachment: %w", err)
		}
		if !withData {
			a.IsStub = true
		} else if a.Data == nil {
			a.Data = []byte{}
		}
		if doc.Attachments == nil {
			doc.Attachments = make(map[string]*models.Attachment)
		}
		doc.Attachments[name] = a
	}
	return rows.Err()
}

func decodeDocument(id, rev, docType, body string) (*models.Document, error) {
	var b documentBody
	if err := json.Unmarshal([]byte(body), &b); err != nil {
		return nil, fmt.Errorf("failed to decode document %s: %w", id, err)
	}
	if b.Data == nil {
		b.Data = map[string]any{}
	}
	return &models.Document{
		ID:       id,
		Rev:      rev,
		Type:     models.DocType(docType),
		Data:     b.Data,
		Metadata: b.Metadata,
		Children: b.Children,
	}, nil
}

// Changes opens a live change feed.
func (s *DocumentStore) Changes(ctx context.Context, opts models.ChangesOptions) (models.ChangeFeed, error) {
	since := opts.Since
	if since < 0 {
		if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM changes`).Scan(&since); err != nil {
			return nil, fmt.Errorf("failed to read change sequence: %w", err)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	f := &changeFeed{
		ch:     make(chan models.Change),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	var remote <-chan string
	if s.notifier != nil {
		sub, err := s.notifier.Subscribe(ctx)
		if err != nil {
			s.logger.Warn().Err(err).Msg("change notifier unavailable, falling back to polling")
		} else {
			remote = sub
		}
	}

	wake := s.register()
	go s.runFeed(ctx, f, since, opts.DocIDs, wake, remote)
	return f, nil
}

func (s *DocumentStore) runFeed(ctx context.Context, f *changeFeed, since int64, ids []string, wake chan struct{}, remote <-chan string) {
	defer close(f.done)
	defer close(f.ch)
	defer s.unregister(wake)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		changes, err := s.changesSince(ctx, since, ids)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Error().Err(err).Int64("since", since).Msg("change feed poll failed")
		}
		for _, c := range changes {
			select {
			case f.ch <- c:
				since = c.Seq
			case <-ctx.Done():
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-wake:
		case _, ok := <-remote:
			if !ok {
				remote = nil
			}
		}
	}
}

// changesSince returns the latest change per document after since.
func (s *DocumentStore) changesSince(ctx context.Context, since int64, ids []string) ([]models.Change, error) {
	query := `SELECT d.id, d.rev, d.type, d.body, d.deleted, m.seq FROM
		(SELECT doc_id, MAX(seq) AS seq FROM changes WHERE seq > ?`
	args := []any{since}
	if len(ids) > 0 {
		query += " AND doc_id IN (?" + strings.Repeat(", ?", len(ids)-1) + ")"
		for _, id := range ids {
			args = append(args, id)
		}
	}
	query += ` GROUP BY doc_id) m JOIN documents d ON d.id = m.doc_id ORDER BY m.seq`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to read changes: %w", err)
	}

	var changes []models.Change
	for rows.Next() {
		var (
			c             models.Change
			docType, body string
		)
		if err := rows.Scan(&c.ID, &c.Rev, &docType, &body, &c.Deleted, &c.Seq); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan change: %w", err)
		}
		if !c.Deleted {
			doc, err := decodeDocument(c.ID, c.Rev, docType, body)
			if err != nil {
				rows.Close()
				return nil, err
			}
			c.Doc = doc
		}
		changes = append(changes, c)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to read changes: %w", err)
	}
	rows.Close()

	for _, c := range changes {
		if c.Doc == nil {
			continue
		}
		if err := s.loadAttachments(ctx, s.db, c.Doc, false); err != nil {
			return nil, err
		}
	}
	return changes, nil
}

func (s *DocumentStore) register() chan struct{} {
	wake := make(chan struct{}, 1)
	s.mu.Lock()
	s.wakes[wake] = struct{}{}
	s.mu.Unlock()
	return wake
}

func (s *DocumentStore) unregister(wake chan struct{}) {
	s.mu.Lock()
	delete(s.wakes, wake)
	s.mu.Unlock()
}

// announce wakes local feeds and tells other processes about the write.
func (s *DocumentStore) announce(ctx context.Context, docID string) {
	s.mu.Lock()
	for wake := range s.wakes {
		select {
		case wake <- struct{}{}:
		default:
		}
	}
	s.mu.Unlock()

	if s.notifier == nil {
		return
	}
	if err := s.notifier.Publish(ctx, docID); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn().Err(err).Str("doc_id", docID).Msg("failed to publish change")
	}
}

type changeFeed struct {
	ch     chan models.Change
	cancel context.CancelFunc
	done   chan struct{}
}

func (f *changeFeed) C() <-chan models.Change {
	return f.ch
}

func (f *changeFeed) Cancel() {
	f.cancel()
	<-f.done
}

// Ensure DocumentStore implements the interface
var _ secondary.DocumentStore = (*DocumentStore)(nil)
