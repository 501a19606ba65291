package media

import "github.com/example/fieldstore/internal/ports/secondary"

// PassthroughNormalizer stores blobs as captured, filling in a missing
// content type.
type PassthroughNormalizer struct{}

// NewPassthroughNormalizer creates a PassthroughNormalizer.
func NewPassthroughNormalizer() *PassthroughNormalizer {
	return &PassthroughNormalizer{}
}

// Normalize returns blob unchanged.
func (PassthroughNormalizer) Normalize(blob []byte, contentType string) ([]byte, string, error) {
	if contentType == "" {
		contentType = DetectContentType(blob)
	}
	return blob, contentType, nil
}

var _ secondary.Normalizer = PassthroughNormalizer{}
