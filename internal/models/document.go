// Package models holds the persisted document model shared by every layer.
package models

import (
	"time"

	"github.com/paulmach/orb"
)

// DocType discriminates the two document kinds.
type DocType string

const (
	DocTypeProject      DocType = "project"
	DocTypeInstallation DocType = "installation"
)

// Valid reports whether t is a known document kind.
func (t DocType) Valid() bool {
	return t == DocTypeProject || t == DocTypeInstallation
}

// Document is the stored shape of a project or installation.
type Document struct {
	ID          string                 `json:"_id"`
	Rev         string                 `json:"_rev,omitempty"`
	Type        DocType                `json:"type"`
	Data        map[string]any         `json:"data_"`
	Metadata    Metadata               `json:"metadata_"`
	Children    []string               `json:"children"`
	Attachments map[string]*Attachment `json:"_attachments,omitempty"`
	Deleted     bool                   `json:"_deleted,omitempty"`
}

// Attachment is a binary blob stored with a document. Data is only populated
// when the caller asked for attachment bodies or is writing them inline.
// Reads without bodies return stubs with IsStub set; a body may be empty.
type Attachment struct {
	ContentType string `json:"content_type"`
	Digest      string `json:"digest,omitempty"`
	Length      int    `json:"length"`
	Data        []byte `json:"data,omitempty"`
	IsStub      bool   `json:"stub,omitempty"`
}

// Stub reports whether the attachment refers to a stored body instead of
// carrying one.
func (a *Attachment) Stub() bool {
	return a.IsStub
}

// AttachmentMetadata is the queryable metadata kept under
// metadata_.attachments for every stored attachment.
type AttachmentMetadata struct {
	Filename    string     `json:"filename,omitempty"`
	ContentType string     `json:"content_type,omitempty"`
	Timestamp   *time.Time `json:"timestamp,omitempty"`
	Geolocation *orb.Point `json:"geolocation,omitempty"`
	Source      string     `json:"source,omitempty"`
	// Extra holds keys written through metadata paths that are not modelled
	// above, e.g. a caption.
	Extra map[string]any `json:"-"`
}

// Attachment metadata sources.
const (
	MetadataSourceExif     = "exif"
	MetadataSourceFile     = "file"
	MetadataSourceExplicit = "explicit"
)

// Clone returns a copy of the document that can be mutated without touching
// the receiver. Data is shared: callers mutate it through core/upsert only.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	out := *d
	out.Metadata = d.Metadata.Clone()
	if d.Children != nil {
		out.Children = append([]string(nil), d.Children...)
	}
	if d.Attachments != nil {
		out.Attachments = make(map[string]*Attachment, len(d.Attachments))
		for k, v := range d.Attachments {
			a := *v
			out.Attachments[k] = &a
		}
	}
	return &out
}

// HasChild reports whether id is listed in the document's children.
func (d *Document) HasChild(id string) bool {
	for _, c := range d.Children {
		if c == id {
			return true
		}
	}
	return false
}

// GetOptions controls what a read returns.
type GetOptions struct {
	// Attachments includes attachment bodies instead of stubs.
	Attachments bool
}
