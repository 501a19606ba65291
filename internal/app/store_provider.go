package app

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/example/fieldstore/internal/core/attachment"
	"github.com/example/fieldstore/internal/core/document"
	"github.com/example/fieldstore/internal/core/livesync"
	"github.com/example/fieldstore/internal/core/pathutil"
	"github.com/example/fieldstore/internal/core/upsert"
	"github.com/example/fieldstore/internal/models"
	"github.com/example/fieldstore/internal/ports/primary"
	"github.com/example/fieldstore/internal/ports/secondary"
)

const attachmentsKey = "attachments"

// StoreProviderImpl implements the StoreProvider interface. All state
// transitions go through livesync.Apply under mu; persistence and attachment
// fetches run in background goroutines.
type StoreProviderImpl struct {
	repo       primary.DocumentRepository
	extractor  secondary.MetadataExtractor
	normalizer secondary.Normalizer
	logWriter  secondary.LogWriter
	logger     zerolog.Logger
	opts       primary.StoreOptions
	now        func() time.Time

	mu      sync.Mutex
	state   livesync.State
	started bool
	closed  bool
	updates chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	feed   models.ChangeFeed

	writes sync.WaitGroup
	loops  sync.WaitGroup
}

// NewStoreProvider creates a StoreProvider for the document described by opts.
// logWriter may be nil.
func NewStoreProvider(repo primary.DocumentRepository, extractor secondary.MetadataExtractor, normalizer secondary.Normalizer, logWriter secondary.LogWriter, logger zerolog.Logger, opts primary.StoreOptions) *StoreProviderImpl {
	return &StoreProviderImpl{
		repo:       repo,
		extractor:  extractor,
		normalizer: normalizer,
		logWriter:  logWriter,
		logger:     logger.With().Str("doc_id", opts.DocID).Str("kind", string(opts.Kind)).Logger(),
		opts:       opts,
		now:        time.Now,
		updates:    make(chan struct{}, 1),
	}
}

// Start subscribes to the document's changes and then loads or creates it.
// The subscription is opened first so that no change between the two is
// missed; older revisions are discarded by the reducer.
func (s *StoreProviderImpl) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("store for %s already started", s.opts.DocID)
	}
	s.started = true
	s.mu.Unlock()

	if s.opts.DocID == "" {
		return fmt.Errorf("%w: document id is required", models.ErrValidation)
	}
	if !s.opts.Kind.Valid() {
		return fmt.Errorf("%w: unknown document kind %q", models.ErrValidation, s.opts.Kind)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.mu.Lock()
	s.ctx, s.cancel = runCtx, cancel
	s.mu.Unlock()

	feed, err := s.repo.Changes(runCtx, models.ChangesOptions{DocIDs: []string{s.opts.DocID}, Since: models.SinceNow})
	if err != nil {
		s.cancel()
		return fmt.Errorf("failed to subscribe to %s: %w", s.opts.DocID, err)
	}

	doc, err := s.getOrCreate(ctx)
	if err != nil {
		feed.Cancel()
		s.cancel()
		return err
	}

	s.mu.Lock()
	s.feed = feed
	s.mu.Unlock()

	if t := s.dispatch(livesync.Initialized{Doc: doc}); t.Err != nil {
		feed.Cancel()
		s.cancel()
		return t.Err
	}

	s.loops.Add(1)
	go s.watch(feed)

	s.logger.Debug().Str("rev", doc.Rev).Msg("store ready")
	return nil
}

func (s *StoreProviderImpl) getOrCreate(ctx context.Context) (*models.Document, error) {
	draftOpts := document.DraftOptions{ID: s.opts.DocID}
	if s.opts.Kind == models.DocTypeProject {
		draft := document.NewProject(s.opts.DocName, s.now(), draftOpts)
		return s.repo.GetOrCreateProject(ctx, draft)
	}
	draft := document.NewInstallation(s.opts.DocName, s.opts.TemplateName, s.opts.TemplateTitle, s.now(), draftOpts)
	return s.repo.GetOrCreateInstallation(ctx, s.opts.ParentID, draft)
}

func (s *StoreProviderImpl) get(ctx context.Context) (*models.Document, error) {
	if s.opts.Kind == models.DocTypeProject {
		return s.repo.GetProject(ctx, s.opts.DocID, models.GetOptions{})
	}
	return s.repo.GetInstallation(ctx, s.opts.DocID, models.GetOptions{})
}

func (s *StoreProviderImpl) watch(feed models.ChangeFeed) {
	defer s.loops.Done()
	for change := range feed.C() {
		t := s.dispatch(livesync.ExternalChange{Change: change})
		if t.Ignored {
			s.logger.Trace().Str("rev", change.Rev).Msg("change ignored")
		} else if t.Changed {
			s.logger.Debug().Str("rev", change.Rev).Bool("deleted", change.Deleted).Msg("external change applied")
		}
	}
}

// dispatch applies event and runs the side effects of the transition.
func (s *StoreProviderImpl) dispatch(event livesync.Event) livesync.Transition {
	s.mu.Lock()
	t := livesync.Apply(s.state, event)
	s.state = t.State
	closed := s.closed
	s.mu.Unlock()

	if t.Err != nil {
		s.logger.Error().Err(t.Err).Msgf("%T failed", event)
	}
	if t.Changed {
		s.notify()
	}
	if !closed {
		for _, id := range t.Fetch {
			s.fetchAttachment(id)
		}
	}
	return t
}

func (s *StoreProviderImpl) notify() {
	select {
	case s.updates <- struct{}{}:
	default:
	}
}

func (s *StoreProviderImpl) fetchAttachment(id string) {
	s.loops.Add(1)
	go func() {
		defer s.loops.Done()
		a, err := s.repo.GetAttachment(s.ctx, s.opts.DocID, id)
		if err != nil {
			if !models.IsNotFound(err) && s.ctx.Err() == nil {
				s.logger.Warn().Err(err).Str("attachment_id", id).Msg("failed to load attachment")
			}
			return
		}
		s.dispatch(livesync.AttachmentLoaded{ID: id, Digest: a.Digest, ContentType: a.ContentType, Blob: a.Data})
	}()
}

// Snapshot returns the current projection.
func (s *StoreProviderImpl) Snapshot() primary.StoreSnapshot {
	s.mu.Lock()
	st := s.state
	s.mu.Unlock()

	meta, err := models.MetadataFromTree(st.Metadata)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to decode metadata")
	}

	views := make(map[string]primary.AttachmentView, len(st.Attachments))
	for id, a := range st.Attachments {
		views[id] = primary.AttachmentView{
			ContentType: a.ContentType,
			Digest:      a.Digest,
			Blob:        a.Blob,
			Metadata:    meta.Attachments[id],
		}
	}

	return primary.StoreSnapshot{
		Status:      st.Status.String(),
		ID:          st.ID,
		Rev:         st.Rev,
		Deleted:     st.Deleted,
		Data:        st.Data,
		Metadata:    meta,
		Attachments: views,
	}
}

// UpsertData sets a data value and persists it in the background.
func (s *StoreProviderImpl) UpsertData(path string, value any) {
	s.background("upsert data", func() (persistFunc, error) {
		return s.prepareSet(livesync.OpSetData, path, value)
	})
}

// UpsertDataSync sets a data value and waits for it to be persisted.
func (s *StoreProviderImpl) UpsertDataSync(ctx context.Context, path string, value any) error {
	persist, err := s.prepareSet(livesync.OpSetData, path, value)
	if err != nil {
		return err
	}
	return s.track(ctx, persist)
}

// UpsertMetadata sets a metadata value and persists it in the background.
func (s *StoreProviderImpl) UpsertMetadata(path string, value any) {
	s.background("upsert metadata", func() (persistFunc, error) {
		return s.prepareSet(livesync.OpSetMetadata, path, value)
	})
}

// UpsertMetadataSync sets a metadata value and waits for it to be persisted.
func (s *StoreProviderImpl) UpsertMetadataSync(ctx context.Context, path string, value any) error {
	persist, err := s.prepareSet(livesync.OpSetMetadata, path, value)
	if err != nil {
		return err
	}
	return s.track(ctx, persist)
}

// UpsertAttachment records the attachment's metadata, shows the blob locally
// and persists both in the background.
func (s *StoreProviderImpl) UpsertAttachment(blob []byte, attachmentID, fileName string, meta *models.AttachmentMetadata) {
	s.background("upsert attachment", func() (persistFunc, error) {
		return s.prepareAttachment(blob, attachmentID, fileName, meta)
	})
}

// UpsertAttachmentSync is UpsertAttachment waiting for persistence.
func (s *StoreProviderImpl) UpsertAttachmentSync(ctx context.Context, blob []byte, attachmentID, fileName string, meta *models.AttachmentMetadata) error {
	persist, err := s.prepareAttachment(blob, attachmentID, fileName, meta)
	if err != nil {
		return err
	}
	return s.track(ctx, persist)
}

// DeleteAttachment removes an attachment in the background.
func (s *StoreProviderImpl) DeleteAttachment(attachmentID string) {
	s.background("delete attachment", func() (persistFunc, error) {
		return s.deleteAttachment(attachmentID), nil
	})
}

// DeleteAttachmentSync removes the blob, then its metadata, then the local
// copy. A failing step stops the sequence without undoing earlier steps.
func (s *StoreProviderImpl) DeleteAttachmentSync(ctx context.Context, attachmentID string) error {
	return s.track(ctx, s.deleteAttachment(attachmentID))
}

// NextAttachmentID returns the next free "<fieldID>_<n>" id.
func (s *StoreProviderImpl) NextAttachmentID(fieldID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := attachment.Keys(s.state.Attachments)
	if metaAtts, ok := s.state.Metadata[attachmentsKey].(map[string]any); ok {
		ids = append(ids, attachment.Keys(metaAtts)...)
	}
	return attachment.NextID(fieldID, ids)
}

// Updates signals every change of the projection.
func (s *StoreProviderImpl) Updates() <-chan struct{} {
	return s.updates
}

// Wait blocks until all background writes have finished.
func (s *StoreProviderImpl) Wait() {
	s.writes.Wait()
}

// Close cancels the change feed and waits for background work.
func (s *StoreProviderImpl) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	feed := s.feed
	s.mu.Unlock()

	if feed != nil {
		feed.Cancel()
	}
	s.writes.Wait()
	if s.cancel != nil {
		s.cancel()
	}
	s.loops.Wait()
	return nil
}

// persistFunc writes an already applied local edit.
type persistFunc func(ctx context.Context) error

// background prepares an edit synchronously, so that edits apply in call
// order, and persists it on its own goroutine. Failures are only logged.
func (s *StoreProviderImpl) background(op string, prepare func() (persistFunc, error)) {
	persist, err := prepare()
	if err != nil {
		s.logger.Error().Err(err).Str("op", op).Msg("local edit rejected")
		return
	}

	s.mu.Lock()
	usable := !s.closed && s.ctx != nil
	if usable {
		s.writes.Add(1)
	}
	s.mu.Unlock()
	if !usable {
		s.logger.Warn().Str("op", op).Msg("store not running, edit not persisted")
		return
	}

	go func() {
		defer s.writes.Done()
		if err := persist(s.ctx); err != nil {
			s.logger.Error().Err(err).Str("op", op).Msg("persist failed")
		}
	}()
}

func (s *StoreProviderImpl) track(ctx context.Context, persist persistFunc) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("store for %s is closed", s.opts.DocID)
	}
	s.writes.Add(1)
	s.mu.Unlock()
	defer s.writes.Done()
	return persist(ctx)
}

func (s *StoreProviderImpl) prepareSet(op livesync.Op, path string, value any) (persistFunc, error) {
	segments, err := pathutil.Split(path)
	if err != nil {
		return nil, err
	}
	return s.prepareSetPath(op, segments, value)
}

// prepareSetPath applies the edit locally and returns the write that persists
// it: a conflict-retrying upsert that merges value at the path of the latest
// stored revision and stamps last_modified_at.
func (s *StoreProviderImpl) prepareSetPath(op livesync.Op, segments []string, value any) (persistFunc, error) {
	value, err := jsonValue(value)
	if err != nil {
		return nil, err
	}

	t := s.dispatch(livesync.LocalEdit{Edit: livesync.Edit{Op: op, Path: segments, Value: value}})
	if t.Err != nil {
		return nil, t.Err
	}
	seq := t.Edit.Seq

	return func(ctx context.Context) error {
		var oldValue any
		res, err := s.repo.Upsert(ctx, s.opts.DocID, func(doc *models.Document) (bool, error) {
			var err error
			switch op {
			case livesync.OpSetData:
				oldValue, _ = upsert.Get(doc.Data, segments)
				doc.Data, err = upsert.SetMap(doc.Data, segments, value)
			case livesync.OpSetMetadata:
				oldValue, err = setMetadata(doc, segments, value)
			default:
				err = fmt.Errorf("unsupported edit op %d", op)
			}
			if err != nil {
				return false, err
			}
			document.Touch(doc, s.now())
			return true, nil
		})
		if err != nil {
			s.dispatch(livesync.Persisted{Seq: seq, Err: err})
			return fmt.Errorf("failed to persist %s: %w", fieldName(op, segments), err)
		}
		s.dispatch(livesync.Persisted{Seq: seq, Doc: res.Doc})
		s.logUpdate(ctx, fieldName(op, segments), oldValue, value)
		return nil
	}, nil
}

func (s *StoreProviderImpl) prepareAttachment(blob []byte, attachmentID, fileName string, explicit *models.AttachmentMetadata) (persistFunc, error) {
	if attachmentID == "" {
		return nil, fmt.Errorf("%w: attachment id is required", models.ErrValidation)
	}
	if blob == nil {
		return nil, fmt.Errorf("%w: attachment %s has no binary body", models.ErrAttachmentType, attachmentID)
	}

	stored, contentType, err := s.normalizer.Normalize(blob, "")
	if err != nil {
		return nil, fmt.Errorf("failed to normalize attachment %s: %w", attachmentID, err)
	}

	var meta models.AttachmentMetadata
	if explicit != nil {
		meta = *explicit
		if meta.Source == "" {
			meta.Source = models.MetadataSourceExplicit
		}
	} else {
		meta, err = s.extractor.Extract(stored, fileName)
		if err != nil {
			return nil, fmt.Errorf("failed to derive metadata of %s: %w", attachmentID, err)
		}
	}
	if meta.ContentType == "" {
		meta.ContentType = contentType
	}
	if meta.Filename == "" && fileName != "" {
		meta.Filename = filepath.Base(fileName)
	}

	writeMeta, err := s.prepareSetPath(livesync.OpSetMetadata, []string{attachmentsKey, attachmentID}, meta)
	if err != nil {
		return nil, err
	}

	t := s.dispatch(livesync.LocalEdit{Edit: livesync.Edit{
		Op:           livesync.OpPutAttachment,
		AttachmentID: attachmentID,
		Attachment: livesync.AttachmentEntry{
			ContentType: contentType,
			Digest:      attachment.Digest(stored),
			Blob:        stored,
		},
	}})
	if t.Err != nil {
		return nil, t.Err
	}
	seq := t.Edit.Seq

	return func(ctx context.Context) error {
		if err := writeMeta(ctx); err != nil {
			s.dispatch(livesync.Persisted{Seq: seq, Err: err})
			return err
		}
		put, err := s.repo.PutAttachment(ctx, s.opts.DocID, attachmentID, stored, contentType)
		if err != nil {
			s.dispatch(livesync.Persisted{Seq: seq, Err: err})
			return err
		}
		written := []string{put.Rev}
		doc, err := s.get(ctx)
		if err != nil {
			s.dispatch(livesync.Persisted{Seq: seq, Revs: written, Err: err})
			return fmt.Errorf("failed to reload %s: %w", s.opts.DocID, err)
		}
		s.dispatch(livesync.Persisted{Seq: seq, Doc: doc, Revs: written})
		return nil
	}, nil
}

func (s *StoreProviderImpl) deleteAttachment(attachmentID string) persistFunc {
	return func(ctx context.Context) error {
		removed, err := s.repo.RemoveAttachment(ctx, s.opts.DocID, attachmentID)
		if err != nil && !models.IsNotFound(err) {
			return err
		}

		var oldValue any
		res, err := s.repo.Upsert(ctx, s.opts.DocID, func(doc *models.Document) (bool, error) {
			old, ok := doc.Metadata.Attachments[attachmentID]
			if !ok {
				return false, nil
			}
			oldValue = old
			next := doc.Metadata.Clone()
			delete(next.Attachments, attachmentID)
			doc.Metadata = next
			document.Touch(doc, s.now())
			return true, nil
		})
		if err != nil {
			return fmt.Errorf("failed to remove metadata of %s: %w", attachmentID, err)
		}

		removeBlob := s.dispatch(livesync.LocalEdit{Edit: livesync.Edit{Op: livesync.OpRemoveAttachment, AttachmentID: attachmentID}})
		removeMeta := s.dispatch(livesync.LocalEdit{Edit: livesync.Edit{Op: livesync.OpDeleteMetadata, Path: []string{attachmentsKey, attachmentID}}})
		for _, t := range []livesync.Transition{removeBlob, removeMeta} {
			if t.Edit != nil {
				s.dispatch(livesync.Persisted{Seq: t.Edit.Seq, Doc: res.Doc, Revs: []string{removed.Rev}})
			}
		}

		if res.Updated {
			s.logUpdate(ctx, fieldName(livesync.OpSetMetadata, []string{attachmentsKey, attachmentID}), oldValue, nil)
		}
		return nil
	}
}

// setMetadata sets value at path of the document's metadata and returns the
// previous value.
func setMetadata(doc *models.Document, path []string, value any) (any, error) {
	tree, err := doc.Metadata.ToTree()
	if err != nil {
		return nil, err
	}
	old, _ := upsert.Get(tree, path)
	tree, err = upsert.SetMap(tree, path, value)
	if err != nil {
		return nil, err
	}
	meta, err := models.MetadataFromTree(tree)
	if err != nil {
		return nil, fmt.Errorf("invalid metadata value at %v: %w", path, err)
	}
	doc.Metadata = meta
	return old, nil
}

// jsonValue converts v to the form it takes after a storage round trip.
func jsonValue(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("value is not JSON encodable: %w", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func fieldName(op livesync.Op, path []string) string {
	ns := "data_"
	if op == livesync.OpSetMetadata || op == livesync.OpDeleteMetadata {
		ns = "metadata_"
	}
	name := ns
	for _, p := range path {
		name += "." + p
	}
	return name
}

func (s *StoreProviderImpl) logUpdate(ctx context.Context, field string, oldValue, newValue any) {
	if s.logWriter == nil {
		return
	}
	if err := s.logWriter.LogUpdate(ctx, string(s.opts.Kind), s.opts.DocID, field, encodeLogValue(oldValue), encodeLogValue(newValue)); err != nil {
		s.logger.Warn().Err(err).Msg("failed to write activity log")
	}
}

func encodeLogValue(v any) string {
	if v == nil {
		return ""
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(raw)
}

// Ensure StoreProviderImpl implements the interface
var _ primary.StoreProvider = (*StoreProviderImpl)(nil)
