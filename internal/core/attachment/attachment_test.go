package attachment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextID(t *testing.T) {
	tests := []struct {
		name string
		ids  []string
		want string
	}{
		{name: "no photos yet", ids: nil, want: "roof_photo_0"},
		{name: "contiguous", ids: []string{"roof_photo_0", "roof_photo_1"}, want: "roof_photo_2"},
		{name: "gap after delete", ids: []string{"roof_photo_0", "roof_photo_3"}, want: "roof_photo_4"},
		{name: "ignores other fields", ids: []string{"wall_photo_7", "roof_photo_1"}, want: "roof_photo_2"},
		{name: "ignores non numeric suffix", ids: []string{"roof_photo_x", "roof_photo_01"}, want: "roof_photo_0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NextID("roof_photo", tt.ids))
		})
	}
}

func TestSelect(t *testing.T) {
	ids := []string{
		"roof_photo_10",
		"roof_photo_2",
		"roof_photo",
		"roof_photo.item_1",
		"roof_photos_1",
		"wall_photo_0",
	}

	got := Select("roof_photo", ids)
	assert.Equal(t, []string{"roof_photo_2", "roof_photo_10", "roof_photo", "roof_photo.item_1"}, got)
}

func TestDigest(t *testing.T) {
	// md5("hello") = 5d41402abc4b2a76b9719d911017c592
	assert.Equal(t, "md5-XUFAKrxLKna5cZ2REBfFkg==", Digest([]byte("hello")))
	assert.NotEqual(t, Digest([]byte("a")), Digest([]byte("b")))
}
