package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/fieldstore/internal/adapters/sqlite"
	"github.com/example/fieldstore/internal/core/document"
	"github.com/example/fieldstore/internal/db"
	"github.com/example/fieldstore/internal/models"
	"github.com/example/fieldstore/internal/ports/secondary"
)

// testRetryPolicy retries quickly and often enough for the concurrency tests.
var testRetryPolicy = RetryPolicy{
	MaxAttempts:  50,
	InitialDelay: time.Millisecond,
	MaxDelay:     5 * time.Millisecond,
	Multiplier:   2,
	JitterFactor: 0.3,
}

var testNow = time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)

// newTestStore opens an in-memory document database.
func newTestStore(t *testing.T) *sqlite.DocumentStore {
	t.Helper()
	conn, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return sqlite.NewDocumentStore(conn, sqlite.WithPollInterval(10*time.Millisecond))
}

func newTestRepository(t *testing.T, store secondary.DocumentStore) (*DocumentRepositoryImpl, *recordingLogWriter) {
	t.Helper()
	logs := &recordingLogWriter{}
	repo := NewDocumentRepository(store, logs, testRetryPolicy, zerolog.Nop())
	repo.now = func() time.Time { return testNow }
	return repo, logs
}

// createProject stores a new project and returns it with its revision.
func createProject(t *testing.T, repo *DocumentRepositoryImpl, name string) *models.Document {
	t.Helper()
	doc := document.NewProject(name, testNow, document.DraftOptions{})
	res, err := repo.PutProject(context.Background(), doc)
	if err != nil {
		t.Fatalf("failed to create project %q: %v", name, err)
	}
	doc.Rev = res.Rev
	return doc
}

// createInstallation stores a new installation under projectID.
func createInstallation(t *testing.T, repo *DocumentRepositoryImpl, projectID, name, template string) *models.Document {
	t.Helper()
	doc := document.NewInstallation(name, template, template+" title", testNow, document.DraftOptions{})
	resp, err := repo.PutInstallation(context.Background(), projectID, doc)
	if err != nil {
		t.Fatalf("failed to create installation %q: %v", name, err)
	}
	doc.Rev = resp.Installation.Rev
	return doc
}

// recordingLogWriter implements secondary.LogWriter for testing.
type recordingLogWriter struct {
	mu      sync.Mutex
	entries []loggedAction
}

type loggedAction struct {
	Action    string
	DocType   string
	DocID     string
	ProjectID string
	FieldName string
	OldValue  string
	NewValue  string
}

func (w *recordingLogWriter) LogCreate(ctx context.Context, docType, docID, projectID string) error {
	w.record(loggedAction{Action: "create", DocType: docType, DocID: docID, ProjectID: projectID})
	return nil
}

func (w *recordingLogWriter) LogUpdate(ctx context.Context, docType, docID, fieldName, oldValue, newValue string) error {
	w.record(loggedAction{Action: "update", DocType: docType, DocID: docID, FieldName: fieldName, OldValue: oldValue, NewValue: newValue})
	return nil
}

func (w *recordingLogWriter) LogDelete(ctx context.Context, docType, docID, projectID string) error {
	w.record(loggedAction{Action: "delete", DocType: docType, DocID: docID, ProjectID: projectID})
	return nil
}

func (w *recordingLogWriter) record(a loggedAction) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.entries = append(w.entries, a)
}

func (w *recordingLogWriter) actions(action string) []loggedAction {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []loggedAction
	for _, e := range w.entries {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

var _ secondary.LogWriter = (*recordingLogWriter)(nil)

// faultyStore wraps a DocumentStore and lets tests intercept writes.
type faultyStore struct {
	secondary.DocumentStore

	mu sync.Mutex
	// beforePut runs before each Put; a non-nil error is returned instead
	// of writing.
	beforePut func(doc *models.Document, call int) error
	putCalls  int
	// failDelete makes BulkDocs report this error for the given ids.
	failDelete map[string]error
	// beforePutAttachment runs before each PutAttachment.
	beforePutAttachment func(call int) error
	attCalls            int
}

func (f *faultyStore) Put(ctx context.Context, doc *models.Document) (models.PutResult, error) {
	f.mu.Lock()
	f.putCalls++
	call := f.putCalls
	hook := f.beforePut
	f.mu.Unlock()

	if hook != nil {
		if err := hook(doc, call); err != nil {
			return models.PutResult{}, err
		}
	}
	return f.DocumentStore.Put(ctx, doc)
}

func (f *faultyStore) BulkDocs(ctx context.Context, docs []*models.Document) ([]models.BulkResult, error) {
	var (
		pass    []*models.Document
		results []models.BulkResult
	)
	for _, d := range docs {
		if err, ok := f.failDelete[d.ID]; ok && d.Deleted {
			results = append(results, models.BulkResult{ID: d.ID, Err: err})
			continue
		}
		pass = append(pass, d)
	}
	written, err := f.DocumentStore.BulkDocs(ctx, pass)
	if err != nil {
		return nil, err
	}
	return append(results, written...), nil
}

func (f *faultyStore) PutAttachment(ctx context.Context, docID, rev, attachmentID string, blob []byte, contentType string) (models.PutResult, error) {
	f.mu.Lock()
	f.attCalls++
	call := f.attCalls
	hook := f.beforePutAttachment
	f.mu.Unlock()

	if hook != nil {
		if err := hook(call); err != nil {
			return models.PutResult{}, err
		}
	}
	return f.DocumentStore.PutAttachment(ctx, docID, rev, attachmentID, blob, contentType)
}
