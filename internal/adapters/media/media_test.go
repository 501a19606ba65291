package media

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/example/fieldstore/internal/models"
)

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return buf.Bytes()
}

func TestExtract_PhotoWithoutExifFallsBackToFile(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	e := NewExtractorWithClock(func() time.Time { return fixed })

	meta, err := e.Extract(testPNG(t), "/tmp/camera/IMG_0001.png")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if meta.ContentType != "image/png" {
		t.Errorf("ContentType = %q, want image/png", meta.ContentType)
	}
	if meta.Filename != "IMG_0001.png" {
		t.Errorf("Filename = %q, want IMG_0001.png", meta.Filename)
	}
	if meta.Source != models.MetadataSourceFile {
		t.Errorf("Source = %q, want %q", meta.Source, models.MetadataSourceFile)
	}
	if meta.Timestamp == nil || !meta.Timestamp.Equal(fixed) {
		t.Errorf("Timestamp = %v, want %v", meta.Timestamp, fixed)
	}
	if meta.Geolocation != nil {
		t.Errorf("Geolocation = %v, want nil", meta.Geolocation)
	}
}

func TestExtract_NonPhoto(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	e := NewExtractorWithClock(func() time.Time { return fixed })

	meta, err := e.Extract([]byte("%PDF-1.4\n%test\n"), "report.pdf")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if meta.ContentType != "application/pdf" {
		t.Errorf("ContentType = %q, want application/pdf", meta.ContentType)
	}
	if meta.Source != models.MetadataSourceFile {
		t.Errorf("Source = %q", meta.Source)
	}
}

func TestExtract_NoFileName(t *testing.T) {
	meta, err := NewExtractor().Extract([]byte("plain notes"), "")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if meta.Filename != "" {
		t.Errorf("Filename = %q, want empty", meta.Filename)
	}
	if !strings.HasPrefix(meta.ContentType, "text/plain") {
		t.Errorf("ContentType = %q, want text/plain", meta.ContentType)
	}
	if meta.Timestamp == nil {
		t.Error("Timestamp should be set")
	}
}

func TestPassthroughNormalizer(t *testing.T) {
	blob := testPNG(t)
	n := NewPassthroughNormalizer()

	out, ct, err := n.Normalize(blob, "")
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if !bytes.Equal(out, blob) {
		t.Error("blob should be unchanged")
	}
	if ct != "image/png" {
		t.Errorf("content type = %q, want image/png", ct)
	}

	_, ct, _ = n.Normalize(blob, "image/x-custom")
	if ct != "image/x-custom" {
		t.Errorf("explicit content type should be kept, got %q", ct)
	}
}
