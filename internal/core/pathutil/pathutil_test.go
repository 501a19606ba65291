package pathutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/fieldstore/internal/models"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name string
		path string
		want []string
	}{
		{name: "single key", path: "roof", want: []string{"roof"}},
		{name: "dotted", path: "roof.material", want: []string{"roof", "material"}},
		{name: "bracket index", path: "location[1].state", want: []string{"location", "1", "state"}},
		{name: "dotted index", path: "location.1.state", want: []string{"location", "1", "state"}},
		{name: "consecutive brackets", path: "grid[0][2]", want: []string{"grid", "0", "2"}},
		{name: "double quoted key", path: `meta["a.b"]`, want: []string{"meta", "a.b"}},
		{name: "single quoted key", path: `meta['x'].y`, want: []string{"meta", "x", "y"}},
		{name: "escaped quote", path: `m["a\"b"]`, want: []string{"m", `a"b`}},
		{name: "leading dot", path: ".a", want: []string{"", "a"}},
		{name: "trailing dot", path: "a.", want: []string{"a", ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Split(tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSplit_Errors(t *testing.T) {
	for _, path := range []string{"", "a[0", `a["x`, `a["x"`} {
		t.Run(path, func(t *testing.T) {
			_, err := Split(path)
			require.Error(t, err)
			assert.ErrorIs(t, err, models.ErrValidation)
		})
	}
}

func TestToID(t *testing.T) {
	id, err := ToIDDefault("location[1].state")
	require.NoError(t, err)
	assert.Equal(t, "path-location-1-state", id)

	dotted, err := ToIDDefault("location.1.state")
	require.NoError(t, err)
	assert.Equal(t, id, dotted)

	other, err := ToIDDefault("location.2.state")
	require.NoError(t, err)
	assert.NotEqual(t, id, other)

	custom, err := ToID("roof.material", "field", "_")
	require.NoError(t, err)
	assert.Equal(t, "field_roof_material", custom)

	dottedPair, err := ToIDDefault("a.b")
	require.NoError(t, err)
	assert.Equal(t, "path-a-b", dottedPair)

	_, err = ToIDDefault("a-b")
	assert.ErrorIs(t, err, models.ErrValidation, "a-b would collide with a.b")

	hyphenated, err := ToID("a-b", "field", "_")
	require.NoError(t, err)
	underscored, err := ToID("a.b", "field", "_")
	require.NoError(t, err)
	assert.NotEqual(t, hyphenated, underscored)

	_, err = ToID(`a["b_c"]`, "field", "_")
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestToID_Deterministic(t *testing.T) {
	first, err := ToIDDefault("hpwh.photos[3].caption")
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := ToIDDefault("hpwh.photos[3].caption")
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestToID_Validation(t *testing.T) {
	tests := []struct {
		name      string
		path      string
		prefix    string
		separator string
	}{
		{name: "slash in path", path: "a/b", prefix: "path", separator: "-"},
		{name: "empty path", path: "", prefix: "path", separator: "-"},
		{name: "space in prefix", path: "a", prefix: "my path", separator: "-"},
		{name: "empty prefix", path: "a", prefix: "", separator: "-"},
		{name: "letter separator", path: "a", prefix: "path", separator: "x"},
		{name: "long separator", path: "a", prefix: "path", separator: "-----"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ToID(tt.path, tt.prefix, tt.separator)
			require.Error(t, err)
			assert.ErrorIs(t, err, models.ErrValidation)
		})
	}
}
