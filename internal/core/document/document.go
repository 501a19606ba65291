// Package document contains the pure rules of the Project/Installation
// document model: draft construction, revisions, children bookkeeping and
// name de-duplication. This is part of the Functional Core - no I/O.
package document

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/fieldstore/internal/models"
)

// DraftOptions overrides generated parts of a draft.
type DraftOptions struct {
	ID       string
	Data     map[string]any
	Metadata *models.Metadata
}

// NewProject builds an unsaved project document.
func NewProject(name string, now time.Time, opts DraftOptions) *models.Document {
	doc := newDraft(models.DocTypeProject, name, now, opts)
	doc.Children = []string{}
	return doc
}

// NewInstallation builds an unsaved installation document for a workflow
// template.
func NewInstallation(name, templateName, templateTitle string, now time.Time, opts DraftOptions) *models.Document {
	doc := newDraft(models.DocTypeInstallation, name, now, opts)
	doc.Metadata.TemplateName = templateName
	doc.Metadata.TemplateTitle = templateTitle
	doc.Children = []string{}
	return doc
}

func newDraft(kind models.DocType, name string, now time.Time, opts DraftOptions) *models.Document {
	id := opts.ID
	if id == "" {
		id = NewID()
	}
	data := opts.Data
	if data == nil {
		data = map[string]any{}
	}

	var meta models.Metadata
	if opts.Metadata != nil {
		meta = opts.Metadata.Clone()
	}
	if meta.DocName == "" {
		meta.DocName = name
	}
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = now
	}
	if meta.LastModifiedAt.IsZero() {
		meta.LastModifiedAt = now
	}
	if meta.Attachments == nil {
		meta.Attachments = map[string]models.AttachmentMetadata{}
	}

	return &models.Document{
		ID:       id,
		Type:     kind,
		Data:     data,
		Metadata: meta,
	}
}

// NewID returns a fresh random document id.
func NewID() string {
	return uuid.NewString()
}

// NextRev returns the revision that follows prev.
func NextRev(prev string) string {
	return fmt.Sprintf("%d-%s", Generation(prev)+1, strings.ReplaceAll(uuid.NewString(), "-", ""))
}

// Generation returns the numeric prefix of a revision, 0 for none.
func Generation(rev string) int {
	head, _, ok := strings.Cut(rev, "-")
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(head)
	if err != nil {
		return 0
	}
	return n
}

// AppendChild adds id to children unless already present.
func AppendChild(children []string, id string) ([]string, bool) {
	for _, c := range children {
		if c == id {
			return children, false
		}
	}
	out := make([]string, len(children), len(children)+1)
	copy(out, children)
	return append(out, id), true
}

// RemoveChild removes every occurrence of id from children.
func RemoveChild(children []string, id string) ([]string, bool) {
	out := make([]string, 0, len(children))
	removed := false
	for _, c := range children {
		if c == id {
			removed = true
			continue
		}
		out = append(out, c)
	}
	if !removed {
		return children, false
	}
	return out, true
}

// UniqueName returns name if unused, else "name (n)" with the lowest n >= 1
// that is not taken.
func UniqueName(name string, existing []string) string {
	taken := make(map[string]bool, len(existing))
	for _, e := range existing {
		taken[e] = true
	}
	if !taken[name] {
		return name
	}
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s (%d)", name, n)
		if !taken[candidate] {
			return candidate
		}
	}
}

// Touch stamps the last-modified time.
func Touch(doc *models.Document, now time.Time) {
	doc.Metadata.LastModifiedAt = now
}
