// Package livesync is the state machine behind a live document projection.
//
// Apply is a pure reducer: it takes the current State and one Event and
// returns the next State plus the side effects the caller has to run
// (attachment bodies to fetch). All I/O lives in the app layer.
package livesync

import (
	"fmt"

	"github.com/example/fieldstore/internal/core/document"
	"github.com/example/fieldstore/internal/core/upsert"
	"github.com/example/fieldstore/internal/models"
)

// Status is the lifecycle state of a projection.
type Status int

const (
	StatusUninitialized Status = iota
	StatusReady
	// StatusPending is ready with at least one local edit not yet persisted.
	StatusPending
)

func (s Status) String() string {
	switch s {
	case StatusUninitialized:
		return "uninitialized"
	case StatusReady:
		return "ready"
	case StatusPending:
		return "ready-with-pending-change"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// OwnRevisionLimit bounds how many self-written revisions are remembered.
const OwnRevisionLimit = 32

// Op is the kind of a local edit.
type Op int

const (
	OpSetData Op = iota
	OpSetMetadata
	OpDeleteMetadata
	OpPutAttachment
	OpRemoveAttachment
)

// Edit is one optimistic local change. Edits stay in State.Pending until
// their persistence outcome is reported so that they can be replayed on top
// of externally changed documents.
type Edit struct {
	Seq   uint64
	Op    Op
	Path  []string
	Value any
	// AttachmentID and Attachment are used by the attachment ops.
	AttachmentID string
	Attachment   AttachmentEntry
}

// AttachmentEntry is the decoded form of one attachment. Blob is nil until
// the body has been fetched.
type AttachmentEntry struct {
	ContentType string
	Digest      string
	Blob        []byte
}

// Loaded reports whether the body is present.
func (e AttachmentEntry) Loaded() bool {
	return e.Blob != nil
}

// State is the in-memory projection of one document. Maps are never mutated
// in place; every transition builds new ones.
type State struct {
	Status      Status
	ID          string
	Rev         string
	Deleted     bool
	Data        map[string]any
	Metadata    map[string]any
	Attachments map[string]AttachmentEntry

	// Pending holds local edits whose persistence has not completed.
	Pending []Edit
	// LastWrittenRev is the newest revision produced by this projection.
	LastWrittenRev string

	own     []string
	nextSeq uint64
}

// IsOwn reports whether rev was written by this projection.
func (s State) IsOwn(rev string) bool {
	for _, r := range s.own {
		if r == rev {
			return true
		}
	}
	return false
}

// Event is an input to Apply.
type Event interface {
	isEvent()
}

// Initialized carries the document returned by get-or-create.
type Initialized struct {
	Doc *models.Document
}

// LocalEdit is an optimistic change made through the projection.
type LocalEdit struct {
	Edit Edit
}

// Persisted reports the outcome of persisting the edit with sequence Seq.
// Doc is the document as written, nil when Err is set. Revs lists other
// revisions the write produced on the way, such as an attachment write
// followed by a metadata update.
type Persisted struct {
	Seq  uint64
	Doc  *models.Document
	Revs []string
	Err  error
}

// ExternalChange is one entry from the change feed.
type ExternalChange struct {
	Change models.Change
}

// AttachmentLoaded delivers a fetched attachment body.
type AttachmentLoaded struct {
	ID          string
	Digest      string
	ContentType string
	Blob        []byte
}

// AttachmentRemoved reports that a fetched attachment no longer exists.
type AttachmentRemoved struct {
	ID string
}

func (Initialized) isEvent()       {}
func (LocalEdit) isEvent()         {}
func (Persisted) isEvent()         {}
func (ExternalChange) isEvent()    {}
func (AttachmentLoaded) isEvent()  {}
func (AttachmentRemoved) isEvent() {}

// Transition is the result of Apply.
type Transition struct {
	State State
	// Changed is true when the visible projection changed.
	Changed bool
	// Ignored is true for change-feed events that were echoes or stale.
	Ignored bool
	// Edit is the applied local edit with its sequence number assigned.
	Edit *Edit
	// Fetch lists attachment ids whose bodies must be loaded.
	Fetch []string
	Err   error
}

// Apply computes the next state for event.
func Apply(s State, event Event) Transition {
	switch e := event.(type) {
	case Initialized:
		return applyInitialized(s, e)
	case LocalEdit:
		return applyLocalEdit(s, e)
	case Persisted:
		return applyPersisted(s, e)
	case ExternalChange:
		return applyExternal(s, e)
	case AttachmentLoaded:
		return applyLoaded(s, e)
	case AttachmentRemoved:
		return applyRemoved(s, e)
	default:
		return Transition{State: s, Err: fmt.Errorf("unknown event %T", event)}
	}
}

func applyInitialized(s State, e Initialized) Transition {
	if e.Doc == nil {
		return Transition{State: s, Err: fmt.Errorf("initialized without a document")}
	}
	next, fetch, err := rebase(s, e.Doc)
	if err != nil {
		return Transition{State: s, Err: err}
	}
	next.ID = e.Doc.ID
	next.Status = statusFor(next)
	return Transition{State: next, Changed: true, Fetch: fetch}
}

func applyLocalEdit(s State, e LocalEdit) Transition {
	if s.Status == StatusUninitialized {
		return Transition{State: s, Err: fmt.Errorf("edit before initialization")}
	}
	edit := e.Edit
	s.nextSeq++
	edit.Seq = s.nextSeq

	next, err := replay(s, edit)
	if err != nil {
		s.nextSeq--
		return Transition{State: s, Err: err}
	}
	next.Pending = append(append([]Edit(nil), s.Pending...), edit)
	next.Status = StatusPending
	return Transition{State: next, Changed: true, Edit: &edit}
}

func applyPersisted(s State, e Persisted) Transition {
	remaining := make([]Edit, 0, len(s.Pending))
	for _, p := range s.Pending {
		if p.Seq != e.Seq {
			remaining = append(remaining, p)
		}
	}
	s.Pending = remaining
	for _, rev := range e.Revs {
		if rev != "" {
			s.own = remember(s.own, rev)
		}
	}

	if e.Err != nil || e.Doc == nil {
		// Local state keeps the optimistic value.
		s.Status = statusFor(s)
		return Transition{State: s, Err: e.Err}
	}

	s.LastWrittenRev = e.Doc.Rev
	s.own = remember(s.own, e.Doc.Rev)

	if document.Generation(e.Doc.Rev) <= document.Generation(s.Rev) {
		s.Status = statusFor(s)
		return Transition{State: s}
	}
	next, fetch, err := rebase(s, e.Doc)
	if err != nil {
		s.Status = statusFor(s)
		return Transition{State: s, Err: err}
	}
	next.Status = statusFor(next)
	return Transition{State: next, Changed: true, Fetch: fetch}
}

func applyExternal(s State, e ExternalChange) Transition {
	c := e.Change
	if s.Status == StatusUninitialized || (s.ID != "" && c.ID != s.ID) {
		return Transition{State: s, Ignored: true}
	}
	if s.IsOwn(c.Rev) || document.Generation(c.Rev) <= document.Generation(s.Rev) {
		return Transition{State: s, Ignored: true}
	}
	if c.Deleted {
		s.Deleted = true
		s.Rev = c.Rev
		return Transition{State: s, Changed: true}
	}
	if c.Doc == nil {
		return Transition{State: s, Err: fmt.Errorf("change %s for %s carries no document", c.Rev, c.ID)}
	}
	next, fetch, err := rebase(s, c.Doc)
	if err != nil {
		return Transition{State: s, Err: err}
	}
	next.Status = statusFor(next)
	return Transition{State: next, Changed: true, Fetch: fetch}
}

func applyLoaded(s State, e AttachmentLoaded) Transition {
	cur, ok := s.Attachments[e.ID]
	if !ok || cur.Digest != e.Digest {
		// Superseded while the body was in flight.
		return Transition{State: s, Ignored: true}
	}
	cur.Blob = e.Blob
	if e.ContentType != "" {
		cur.ContentType = e.ContentType
	}
	s.Attachments = withAttachment(s.Attachments, e.ID, cur)
	return Transition{State: s, Changed: true}
}

func applyRemoved(s State, e AttachmentRemoved) Transition {
	if _, ok := s.Attachments[e.ID]; !ok {
		return Transition{State: s, Ignored: true}
	}
	s.Attachments = withoutAttachment(s.Attachments, e.ID)
	return Transition{State: s, Changed: true}
}

// rebase re-derives the projection from doc and replays pending edits on
// top of it. Attachments whose digest is unchanged keep their loaded body.
func rebase(s State, doc *models.Document) (State, []string, error) {
	meta, err := doc.Metadata.ToTree()
	if err != nil {
		return s, nil, fmt.Errorf("failed to decode metadata of %s: %w", doc.ID, err)
	}
	data := doc.Data
	if data == nil {
		data = map[string]any{}
	}

	attachments := make(map[string]AttachmentEntry, len(doc.Attachments))
	var fetch []string
	for id, a := range doc.Attachments {
		if prev, ok := s.Attachments[id]; ok && prev.Digest == a.Digest && prev.Loaded() {
			attachments[id] = prev
			continue
		}
		entry := AttachmentEntry{ContentType: a.ContentType, Digest: a.Digest, Blob: a.Data}
		attachments[id] = entry
		if !entry.Loaded() {
			fetch = append(fetch, id)
		}
	}

	next := s
	next.Rev = doc.Rev
	next.Deleted = false
	next.Data = data
	next.Metadata = meta
	next.Attachments = attachments

	for _, p := range s.Pending {
		next, err = replay(next, p)
		if err != nil {
			return s, nil, err
		}
		if p.Op == OpPutAttachment {
			fetch = dropID(fetch, p.AttachmentID)
		}
	}
	return next, fetch, nil
}

// replay applies one edit to the projection.
func replay(s State, e Edit) (State, error) {
	var err error
	switch e.Op {
	case OpSetData:
		s.Data, err = upsert.SetMap(s.Data, e.Path, e.Value)
	case OpSetMetadata:
		s.Metadata, err = upsert.SetMap(s.Metadata, e.Path, e.Value)
	case OpDeleteMetadata:
		if len(s.Metadata) > 0 {
			s.Metadata, err = upsert.DeleteMap(s.Metadata, e.Path)
		}
	case OpPutAttachment:
		s.Attachments = withAttachment(s.Attachments, e.AttachmentID, e.Attachment)
	case OpRemoveAttachment:
		s.Attachments = withoutAttachment(s.Attachments, e.AttachmentID)
	default:
		err = fmt.Errorf("unknown edit op %d", e.Op)
	}
	if err != nil {
		return s, err
	}
	return s, nil
}

func statusFor(s State) Status {
	if len(s.Pending) > 0 {
		return StatusPending
	}
	return StatusReady
}

func remember(own []string, rev string) []string {
	out := append(append([]string(nil), own...), rev)
	if len(out) > OwnRevisionLimit {
		out = out[len(out)-OwnRevisionLimit:]
	}
	return out
}

func withAttachment(m map[string]AttachmentEntry, id string, e AttachmentEntry) map[string]AttachmentEntry {
	out := make(map[string]AttachmentEntry, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	out[id] = e
	return out
}

func withoutAttachment(m map[string]AttachmentEntry, id string) map[string]AttachmentEntry {
	if _, ok := m[id]; !ok {
		return m
	}
	out := make(map[string]AttachmentEntry, len(m))
	for k, v := range m {
		if k != id {
			out[k] = v
		}
	}
	return out
}

func dropID(ids []string, id string) []string {
	out := ids[:0:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
