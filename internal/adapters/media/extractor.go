// Package media derives attachment metadata from captured blobs.
package media

import (
	"bytes"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/paulmach/orb"
	"github.com/rwcarlsen/goexif/exif"

	"github.com/example/fieldstore/internal/models"
	"github.com/example/fieldstore/internal/ports/secondary"
)

// Extractor implements secondary.MetadataExtractor.
type Extractor struct {
	now func() time.Time
}

// NewExtractor creates an Extractor using the wall clock.
func NewExtractor() *Extractor {
	return &Extractor{now: time.Now}
}

// NewExtractorWithClock creates an Extractor stamping file metadata with now.
func NewExtractorWithClock(now func() time.Time) *Extractor {
	return &Extractor{now: now}
}

// Extract returns the metadata of blob. Photos are read for their EXIF
// capture time and position; anything else, or a photo without EXIF,
// is described by its file name and the current time.
func (e *Extractor) Extract(blob []byte, fileName string) (models.AttachmentMetadata, error) {
	contentType := DetectContentType(blob)

	meta := models.AttachmentMetadata{
		Filename:    filepath.Base(fileName),
		ContentType: contentType,
	}
	if fileName == "" {
		meta.Filename = ""
	}

	if strings.HasPrefix(contentType, "image/") {
		if ts, point, ok := readExif(blob); ok {
			meta.Timestamp = ts
			meta.Geolocation = point
			meta.Source = models.MetadataSourceExif
			return meta, nil
		}
	}

	now := e.now().UTC()
	meta.Timestamp = &now
	meta.Source = models.MetadataSourceFile
	return meta, nil
}

// readExif reports ok when the blob carries a capture time or a position.
func readExif(blob []byte) (*time.Time, *orb.Point, bool) {
	x, err := exif.Decode(bytes.NewReader(blob))
	if err != nil {
		return nil, nil, false
	}

	var ts *time.Time
	if t, err := x.DateTime(); err == nil {
		t = t.UTC()
		ts = &t
	}

	var point *orb.Point
	if lat, lng, err := x.LatLong(); err == nil {
		p := orb.Point{lng, lat}
		point = &p
	}

	return ts, point, ts != nil || point != nil
}

// DetectContentType sniffs the MIME type of blob.
func DetectContentType(blob []byte) string {
	return mimetype.Detect(blob).String()
}

var _ secondary.MetadataExtractor = (*Extractor)(nil)
