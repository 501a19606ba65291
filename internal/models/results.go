package models

// PutResult is the outcome of a single successful write.
type PutResult struct {
	ID  string
	Rev string
}

// BulkResult is the per-item outcome of a bulk write. Err is nil on success.
type BulkResult struct {
	ID  string
	Rev string
	Err error
}

// BulkGetResult is the per-key outcome of a bulk read.
type BulkGetResult struct {
	ID  string
	Doc *Document
	Err error
}

// UpsertResult is the outcome of a retrying upsert.
type UpsertResult struct {
	ID string
	// Rev is the revision after the upsert, or the unchanged revision when
	// Updated is false.
	Rev      string
	Updated  bool
	Attempts int
	// Doc is the document as last read or written.
	Doc *Document
}

// Change is one entry of the live change feed.
type Change struct {
	Seq     int64
	ID      string
	Rev     string
	Deleted bool
	Doc     *Document
}

// ChangesOptions scopes a change feed subscription.
type ChangesOptions struct {
	// DocIDs restricts the feed to these documents; empty means all.
	DocIDs []string
	// Since is the exclusive starting sequence. Negative means "now".
	Since int64
}

// SinceNow starts a change feed at the current end of the log.
const SinceNow int64 = -1

// ChangeFeed is a cancellable stream of document changes.
type ChangeFeed interface {
	// C delivers changes in sequence order. It is closed after Cancel.
	C() <-chan Change

	// Cancel stops the feed and releases its resources. Safe to call twice.
	Cancel()
}

// ExportBundle is the on-disk export format.
type ExportBundle struct {
	AllDocs []*Document `json:"all_docs"`
}
