package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/fieldstore/internal/adapters/sqlite"
	"github.com/example/fieldstore/internal/core/document"
	"github.com/example/fieldstore/internal/models"
)

func newTestStore(t *testing.T) *sqlite.DocumentStore {
	t.Helper()
	return sqlite.NewDocumentStore(setupTestDB(t), sqlite.WithPollInterval(10*time.Millisecond))
}

func TestDocumentStore_PutAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	doc := newProjectDoc("p-1", "Site A")
	doc.Data = map[string]any{"location": map[string]any{"state": "CA"}}
	doc.Metadata.Extra = map[string]any{"inspector": "Ada"}

	res, err := store.Put(ctx, doc)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if document.Generation(res.Rev) != 1 {
		t.Errorf("Rev = %q, want generation 1", res.Rev)
	}

	got, err := store.Get(ctx, "p-1", models.GetOptions{})
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Rev != res.Rev {
		t.Errorf("Rev = %q, want %q", got.Rev, res.Rev)
	}
	if got.Type != models.DocTypeProject {
		t.Errorf("Type = %q, want project", got.Type)
	}
	if got.Metadata.DocName != "Site A" {
		t.Errorf("DocName = %q, want %q", got.Metadata.DocName, "Site A")
	}
	if !got.Metadata.CreatedAt.Equal(doc.Metadata.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.Metadata.CreatedAt, doc.Metadata.CreatedAt)
	}
	if got.Metadata.Extra["inspector"] != "Ada" {
		t.Errorf("Extra[inspector] = %v, want Ada", got.Metadata.Extra["inspector"])
	}
	loc, _ := got.Data["location"].(map[string]any)
	if loc["state"] != "CA" {
		t.Errorf("Data.location.state = %v, want CA", loc["state"])
	}
}

func TestDocumentStore_Get_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get(context.Background(), "missing", models.GetOptions{})
	if !models.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDocumentStore_Put_Conflicts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	doc := newProjectDoc("p-1", "Site A")
	rev1 := seedDocument(t, store.Put, doc)

	t.Run("stale revision", func(t *testing.T) {
		update := newProjectDoc("p-1", "Site A")
		update.Rev = rev1
		if _, err := store.Put(ctx, update); err != nil {
			t.Fatalf("first update failed: %v", err)
		}

		_, err := store.Put(ctx, update)
		if !models.IsConflict(err) {
			t.Fatalf("expected conflict, got %v", err)
		}
		var conflict *models.ConflictError
		if !errors.As(err, &conflict) {
			t.Fatalf("expected *ConflictError, got %T", err)
		}
		if conflict.ExpectedRevision != rev1 {
			t.Errorf("ExpectedRevision = %q, want %q", conflict.ExpectedRevision, rev1)
		}
		if document.Generation(conflict.CurrentRevision) != 2 {
			t.Errorf("CurrentRevision = %q, want generation 2", conflict.CurrentRevision)
		}
	})

	t.Run("missing revision on existing document", func(t *testing.T) {
		_, err := store.Put(ctx, newProjectDoc("p-1", "Again"))
		if !models.IsConflict(err) {
			t.Fatalf("expected conflict, got %v", err)
		}
	})

	t.Run("revision on new document", func(t *testing.T) {
		fresh := newProjectDoc("p-new", "New")
		fresh.Rev = "3-abc"
		_, err := store.Put(ctx, fresh)
		if !models.IsConflict(err) {
			t.Fatalf("expected conflict, got %v", err)
		}
	})

	t.Run("invalid type", func(t *testing.T) {
		bad := newProjectDoc("p-bad", "Bad")
		bad.Type = "report"
		_, err := store.Put(ctx, bad)
		if !errors.Is(err, models.ErrValidation) {
			t.Fatalf("expected validation error, got %v", err)
		}
	})
}

func TestDocumentStore_Delete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	doc := newProjectDoc("p-1", "Site A")
	rev := seedDocument(t, store.Put, doc)

	if _, err := store.Delete(ctx, "p-1", "1-stale"); !models.IsConflict(err) {
		t.Fatalf("expected conflict for stale delete, got %v", err)
	}

	res, err := store.Delete(ctx, "p-1", rev)
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if document.Generation(res.Rev) != 2 {
		t.Errorf("tombstone Rev = %q, want generation 2", res.Rev)
	}

	if _, err := store.Get(ctx, "p-1", models.GetOptions{}); !models.IsNotFound(err) {
		t.Errorf("expected not found after delete, got %v", err)
	}
	if _, err := store.Delete(ctx, "p-1", res.Rev); !models.IsNotFound(err) {
		t.Errorf("expected not found for second delete, got %v", err)
	}

	names, err := store.ListDocNames(ctx, models.DocTypeProject)
	if err != nil {
		t.Fatalf("ListDocNames failed: %v", err)
	}
	if len(names) != 0 {
		t.Errorf("names = %v, want none", names)
	}

	// Recreating over a tombstone continues the revision history.
	again, err := store.Put(ctx, newProjectDoc("p-1", "Site A"))
	if err != nil {
		t.Fatalf("recreate failed: %v", err)
	}
	if document.Generation(again.Rev) != 3 {
		t.Errorf("recreated Rev = %q, want generation 3", again.Rev)
	}
}

func TestDocumentStore_BulkDocs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	existing := newInstallationDoc("i-1", "Heater", "qa_hpwh")
	seedDocument(t, store.Put, existing)

	stale := newInstallationDoc("i-2", "Stale", "qa_hpwh")
	seedDocument(t, store.Put, stale)
	stale.Rev = "1-stale"

	results, err := store.BulkDocs(ctx, []*models.Document{
		{ID: "i-1", Rev: existing.Rev, Deleted: true},
		stale,
		newInstallationDoc("i-3", "New", "qa_hpwh"),
	})
	if err != nil {
		t.Fatalf("BulkDocs failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if results[0].Err != nil {
		t.Errorf("delete item failed: %v", results[0].Err)
	}
	if !models.IsConflict(results[1].Err) {
		t.Errorf("stale item: expected conflict, got %v", results[1].Err)
	}
	if results[2].Err != nil || results[2].Rev == "" {
		t.Errorf("new item: err=%v rev=%q", results[2].Err, results[2].Rev)
	}

	got, err := store.BulkGet(ctx, []string{"i-1", "i-2", "i-3"}, models.GetOptions{})
	if err != nil {
		t.Fatalf("BulkGet failed: %v", err)
	}
	if !models.IsNotFound(got[0].Err) {
		t.Errorf("i-1: expected not found, got %v", got[0].Err)
	}
	if got[1].Doc == nil || got[2].Doc == nil {
		t.Errorf("expected i-2 and i-3 to be readable: %+v", got)
	}
}

func TestDocumentStore_FindByTypeAndNames(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seedDocument(t, store.Put, newProjectDoc("p-1", "Site B"))
	seedDocument(t, store.Put, newProjectDoc("p-2", "Site A"))
	seedDocument(t, store.Put, newInstallationDoc("i-1", "Heater", "qa_hpwh"))

	projects, err := store.FindByType(ctx, models.DocTypeProject, models.GetOptions{})
	if err != nil {
		t.Fatalf("FindByType failed: %v", err)
	}
	if len(projects) != 2 {
		t.Fatalf("got %d projects, want 2", len(projects))
	}
	for _, p := range projects {
		if p.Type != models.DocTypeProject {
			t.Errorf("unexpected type %q", p.Type)
		}
	}

	names, err := store.ListDocNames(ctx, models.DocTypeProject)
	if err != nil {
		t.Fatalf("ListDocNames failed: %v", err)
	}
	if len(names) != 2 || names[0] != "Site A" || names[1] != "Site B" {
		t.Errorf("names = %v, want [Site A Site B]", names)
	}
}

func TestDocumentStore_Attachments(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	doc := newInstallationDoc("i-1", "Heater", "qa_hpwh")
	rev := seedDocument(t, store.Put, doc)

	t.Run("rejects missing body", func(t *testing.T) {
		_, err := store.PutAttachment(ctx, "i-1", rev, "photo_0", nil, "image/jpeg")
		if !errors.Is(err, models.ErrAttachmentType) {
			t.Fatalf("expected ErrAttachmentType, got %v", err)
		}
	})

	res, err := store.PutAttachment(ctx, "i-1", rev, "photo_0", []byte("jpeg-bytes"), "image/jpeg")
	if err != nil {
		t.Fatalf("PutAttachment failed: %v", err)
	}
	if document.Generation(res.Rev) != 2 {
		t.Errorf("Rev = %q, want generation 2", res.Rev)
	}

	if _, err := store.PutAttachment(ctx, "i-1", rev, "photo_1", []byte("x"), "image/jpeg"); !models.IsConflict(err) {
		t.Errorf("expected conflict for stale attachment write, got %v", err)
	}

	stubbed, err := store.Get(ctx, "i-1", models.GetOptions{})
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	stub := stubbed.Attachments["photo_0"]
	if stub == nil || !stub.Stub() {
		t.Fatalf("expected stub for photo_0, got %+v", stub)
	}
	if stub.Length != len("jpeg-bytes") || stub.Digest == "" {
		t.Errorf("stub = %+v", stub)
	}

	full, err := store.Get(ctx, "i-1", models.GetOptions{Attachments: true})
	if err != nil {
		t.Fatalf("Get with attachments failed: %v", err)
	}
	if string(full.Attachments["photo_0"].Data) != "jpeg-bytes" {
		t.Errorf("Data = %q", full.Attachments["photo_0"].Data)
	}

	// A document write that carries the stub keeps the attachment.
	stubbed.Data = map[string]any{"status": "done"}
	put, err := store.Put(ctx, stubbed)
	if err != nil {
		t.Fatalf("Put with stub failed: %v", err)
	}
	a, err := store.GetAttachment(ctx, "i-1", "photo_0")
	if err != nil {
		t.Fatalf("GetAttachment failed: %v", err)
	}
	if a.ContentType != "image/jpeg" || string(a.Data) != "jpeg-bytes" {
		t.Errorf("attachment = %+v", a)
	}

	removed, err := store.RemoveAttachment(ctx, "i-1", put.Rev, "photo_0")
	if err != nil {
		t.Fatalf("RemoveAttachment failed: %v", err)
	}
	if _, err := store.GetAttachment(ctx, "i-1", "photo_0"); !models.IsNotFound(err) {
		t.Errorf("expected not found after remove, got %v", err)
	}
	if _, err := store.RemoveAttachment(ctx, "i-1", removed.Rev, "photo_0"); !models.IsNotFound(err) {
		t.Errorf("expected not found for second remove, got %v", err)
	}
}

func TestDocumentStore_Put_StubWithoutBody(t *testing.T) {
	store := newTestStore(t)

	doc := newInstallationDoc("i-1", "Heater", "qa_hpwh")
	doc.Attachments = map[string]*models.Attachment{"photo_0": {ContentType: "image/jpeg", Digest: "md5-x", IsStub: true}}

	_, err := store.Put(context.Background(), doc)
	if !errors.Is(err, models.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDocumentStore_Put_EmptyInlineAttachment(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	doc := newInstallationDoc("i-1", "Heater", "qa_hpwh")
	doc.Attachments = map[string]*models.Attachment{"notes_0": {ContentType: "text/plain"}}
	if _, err := store.Put(ctx, doc); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := store.Get(ctx, "i-1", models.GetOptions{})
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	a := got.Attachments["notes_0"]
	if a == nil || !a.Stub() || a.Length != 0 {
		t.Fatalf("expected empty stub for notes_0, got %+v", a)
	}

	body, err := store.GetAttachment(ctx, "i-1", "notes_0")
	if err != nil {
		t.Fatalf("GetAttachment failed: %v", err)
	}
	if body.Data == nil || len(body.Data) != 0 {
		t.Errorf("Data = %#v, want empty body", body.Data)
	}
}

func TestDocumentStore_Put_InlineAttachments(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	doc := newInstallationDoc("i-1", "Heater", "qa_hpwh")
	doc.Attachments = map[string]*models.Attachment{"photo_0": {ContentType: "image/png", Data: []byte("png")}}
	seedDocument(t, store.Put, doc)

	got, err := store.Get(ctx, "i-1", models.GetOptions{})
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Attachments["photo_0"] == nil {
		t.Fatal("inline attachment not stored")
	}

	// Dropping the attachment from the document removes it.
	got.Attachments = nil
	if _, err := store.Put(ctx, got); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if _, err := store.GetAttachment(ctx, "i-1", "photo_0"); !models.IsNotFound(err) {
		t.Errorf("expected attachment to be removed, got %v", err)
	}
}

func receiveChange(t *testing.T, feed models.ChangeFeed) models.Change {
	t.Helper()
	select {
	case c, ok := <-feed.C():
		if !ok {
			t.Fatal("feed closed")
		}
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change")
	}
	return models.Change{}
}

func TestDocumentStore_Changes(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	watched := newInstallationDoc("i-1", "Heater", "qa_hpwh")
	seedDocument(t, store.Put, watched)
	other := newInstallationDoc("i-2", "Panel", "qa_pv")
	seedDocument(t, store.Put, other)

	feed, err := store.Changes(ctx, models.ChangesOptions{DocIDs: []string{"i-1"}, Since: models.SinceNow})
	if err != nil {
		t.Fatalf("Changes failed: %v", err)
	}
	defer feed.Cancel()

	// Writes to other documents are filtered out.
	other.Data = map[string]any{"x": 1}
	seedDocument(t, store.Put, other)

	watched.Data = map[string]any{"status": "done"}
	rev := seedDocument(t, store.Put, watched)

	c := receiveChange(t, feed)
	if c.ID != "i-1" || c.Rev != rev {
		t.Fatalf("change = %s@%s, want i-1@%s", c.ID, c.Rev, rev)
	}
	if c.Doc == nil || c.Doc.Data["status"] != "done" {
		t.Errorf("change doc = %+v", c.Doc)
	}

	del, err := store.Delete(ctx, "i-1", rev)
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	c = receiveChange(t, feed)
	if !c.Deleted || c.Rev != del.Rev {
		t.Errorf("change = %+v, want deletion at %s", c, del.Rev)
	}
}

func TestDocumentStore_Changes_CoalescesHistory(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	doc := newProjectDoc("p-1", "Site A")
	seedDocument(t, store.Put, doc)
	seedDocument(t, store.Put, doc)
	last := seedDocument(t, store.Put, doc)

	feed, err := store.Changes(ctx, models.ChangesOptions{Since: 0})
	if err != nil {
		t.Fatalf("Changes failed: %v", err)
	}
	defer feed.Cancel()

	c := receiveChange(t, feed)
	if c.Rev != last {
		t.Errorf("Rev = %q, want latest %q", c.Rev, last)
	}

	select {
	case extra := <-feed.C():
		t.Errorf("unexpected extra change %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDocumentStore_Changes_Cancel(t *testing.T) {
	store := newTestStore(t)

	feed, err := store.Changes(context.Background(), models.ChangesOptions{Since: models.SinceNow})
	if err != nil {
		t.Fatalf("Changes failed: %v", err)
	}
	feed.Cancel()
	feed.Cancel()

	if _, ok := <-feed.C(); ok {
		t.Error("expected closed channel after Cancel")
	}
}
