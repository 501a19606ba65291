package models

import (
	"time"

	"github.com/goccy/go-json"
)

// Metadata is the structured metadata_ record of a document. Keys written
// through arbitrary metadata paths that are not modelled here survive in Extra.
type Metadata struct {
	DocName        string
	CreatedAt      time.Time
	LastModifiedAt time.Time
	Attachments    map[string]AttachmentMetadata
	TemplateName   string
	TemplateTitle  string
	Extra          map[string]any
}

const (
	metaDocName        = "doc_name"
	metaCreatedAt      = "created_at"
	metaLastModifiedAt = "last_modified_at"
	metaAttachments    = "attachments"
	metaTemplateName   = "template_name"
	metaTemplateTitle  = "template_title"
)

type metadataWire struct {
	DocName        string                        `json:"doc_name"`
	CreatedAt      time.Time                     `json:"created_at"`
	LastModifiedAt time.Time                     `json:"last_modified_at"`
	Attachments    map[string]AttachmentMetadata `json:"attachments"`
	TemplateName   string                        `json:"template_name,omitempty"`
	TemplateTitle  string                        `json:"template_title,omitempty"`
}

// MarshalJSON flattens Extra next to the modelled keys.
func (m Metadata) MarshalJSON() ([]byte, error) {
	attachments := m.Attachments
	if attachments == nil {
		attachments = map[string]AttachmentMetadata{}
	}
	known, err := json.Marshal(metadataWire{
		DocName:        m.DocName,
		CreatedAt:      m.CreatedAt,
		LastModifiedAt: m.LastModifiedAt,
		Attachments:    attachments,
		TemplateName:   m.TemplateName,
		TemplateTitle:  m.TemplateTitle,
	})
	if err != nil || len(m.Extra) == 0 {
		return known, err
	}
	return mergeExtra(known, m.Extra)
}

// mergeExtra adds extra to the JSON object known. Modelled keys win.
func mergeExtra(known []byte, extra map[string]any) ([]byte, error) {
	merged := make(map[string]json.RawMessage, len(extra)+8)
	for k, v := range extra {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		merged[k] = raw
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(known, &fields); err != nil {
		return nil, err
	}
	for k, v := range fields {
		merged[k] = v
	}
	return json.Marshal(merged)
}

// splitExtra decodes the object b and drops the modelled keys. Returns nil
// when nothing is left.
func splitExtra(b []byte, modelled []string) (map[string]any, error) {
	var all map[string]any
	if err := json.Unmarshal(b, &all); err != nil {
		return nil, err
	}
	for _, k := range modelled {
		delete(all, k)
	}
	if len(all) == 0 {
		return nil, nil
	}
	return all, nil
}

// UnmarshalJSON splits modelled keys from everything else.
func (m *Metadata) UnmarshalJSON(b []byte) error {
	var wire metadataWire
	if err := json.Unmarshal(b, &wire); err != nil {
		return err
	}
	extra, err := splitExtra(b, []string{metaDocName, metaCreatedAt, metaLastModifiedAt, metaAttachments, metaTemplateName, metaTemplateTitle})
	if err != nil {
		return err
	}
	*m = Metadata{
		DocName:        wire.DocName,
		CreatedAt:      wire.CreatedAt,
		LastModifiedAt: wire.LastModifiedAt,
		Attachments:    wire.Attachments,
		TemplateName:   wire.TemplateName,
		TemplateTitle:  wire.TemplateTitle,
		Extra:          extra,
	}
	return nil
}

// attachmentMetadataWire has the fields of AttachmentMetadata without its
// JSON methods.
type attachmentMetadataWire AttachmentMetadata

var attachmentMetadataKeys = []string{"filename", "content_type", "timestamp", "geolocation", "source"}

// MarshalJSON flattens Extra next to the modelled keys.
func (a AttachmentMetadata) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(attachmentMetadataWire(a))
	if err != nil || len(a.Extra) == 0 {
		return known, err
	}
	return mergeExtra(known, a.Extra)
}

// UnmarshalJSON keeps unknown keys in Extra.
func (a *AttachmentMetadata) UnmarshalJSON(b []byte) error {
	var wire attachmentMetadataWire
	if err := json.Unmarshal(b, &wire); err != nil {
		return err
	}
	extra, err := splitExtra(b, attachmentMetadataKeys)
	if err != nil {
		return err
	}
	*a = AttachmentMetadata(wire)
	a.Extra = extra
	return nil
}

// Clone copies the maps held by the metadata.
func (m Metadata) Clone() Metadata {
	out := m
	if m.Attachments != nil {
		out.Attachments = make(map[string]AttachmentMetadata, len(m.Attachments))
		for k, v := range m.Attachments {
			v.Extra = cloneMap(v.Extra)
			out.Attachments[k] = v
		}
	}
	out.Extra = cloneMap(m.Extra)
	return out
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// ToTree converts the metadata to a generic JSON tree so that it can be
// edited at an arbitrary path.
func (m Metadata) ToTree() (map[string]any, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var tree map[string]any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, err
	}
	return tree, nil
}

// MetadataFromTree is the inverse of ToTree.
func MetadataFromTree(tree map[string]any) (Metadata, error) {
	var m Metadata
	raw, err := json.Marshal(tree)
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(raw, &m); err != nil {
		return m, err
	}
	return m, nil
}
