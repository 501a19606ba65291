package secondary

import "github.com/example/fieldstore/internal/models"

// MetadataExtractor derives attachment metadata from a blob.
type MetadataExtractor interface {
	// Extract returns content type, timestamp and geolocation for blob.
	// fileName is used when the blob carries no embedded metadata.
	Extract(blob []byte, fileName string) (models.AttachmentMetadata, error)
}

// Normalizer prepares a blob for storage.
type Normalizer interface {
	// Normalize returns the blob to store and its content type.
	Normalize(blob []byte, contentType string) ([]byte, string, error)
}
