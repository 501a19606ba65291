package upsert

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/fieldstore/internal/models"
)

func same(a, b any) bool {
	return reflect.ValueOf(a).UnsafePointer() == reflect.ValueOf(b).UnsafePointer()
}

func sampleTree() map[string]any {
	return map[string]any{
		"roof": map[string]any{
			"material": "metal",
			"age":      12.0,
		},
		"walls": map[string]any{
			"insulation": "R-13",
		},
		"photos": []any{"a", "b"},
	}
}

func TestSet_StructuralSharing(t *testing.T) {
	root := sampleTree()
	roof := root["roof"].(map[string]any)
	walls := root["walls"].(map[string]any)
	photos := root["photos"].([]any)

	out, err := SetMap(root, []string{"roof", "material"}, "asphalt")
	require.NoError(t, err)

	// value reachable at path
	got, ok := Get(out, []string{"roof", "material"})
	require.True(t, ok)
	assert.Equal(t, "asphalt", got)

	// original untouched
	assert.Equal(t, sampleTree(), root)
	assert.Equal(t, "metal", roof["material"])

	// ancestors on the path are new, siblings shared
	assert.False(t, same(root, out))
	assert.False(t, same(roof, out["roof"]))
	assert.True(t, same(walls, out["walls"]))
	assert.True(t, same(photos, out["photos"]))
}

func TestSet_SynthesisesContainers(t *testing.T) {
	out, err := SetMap(nil, []string{"location", "1", "state"}, "CA")
	require.NoError(t, err)

	location, ok := out["location"].([]any)
	require.True(t, ok, "numeric next segment should create an array")
	require.Len(t, location, 2)
	assert.Nil(t, location[0])
	assert.Equal(t, map[string]any{"state": "CA"}, location[1])
}

func TestSet_ArrayIndex(t *testing.T) {
	root := map[string]any{"photos": []any{"a", "b"}}

	out, err := SetMap(root, []string{"photos", "1"}, "B")
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "B"}, out["photos"])
	assert.Equal(t, []any{"a", "b"}, root["photos"])

	grown, err := SetMap(root, []string{"photos", "3"}, "d")
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b", nil, "d"}, grown["photos"])
}

func TestSet_NumericKeyOnObject(t *testing.T) {
	root := map[string]any{"codes": map[string]any{"7": "seven"}}

	out, err := SetMap(root, []string{"codes", "8"}, "eight")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"7": "seven", "8": "eight"}, out["codes"])
}

func TestSet_ReplacesScalar(t *testing.T) {
	root := map[string]any{"roof": "unknown"}

	out, err := SetMap(root, []string{"roof", "material"}, "tile")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"material": "tile"}, out["roof"])
}

func TestSet_EmptyPath(t *testing.T) {
	_, err := Set(map[string]any{}, nil, 1)
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestDelete(t *testing.T) {
	root := map[string]any{
		"attachments": map[string]any{
			"photo_0": map[string]any{"filename": "a.jpg"},
			"photo_1": map[string]any{"filename": "b.jpg"},
		},
		"other": map[string]any{"x": 1.0},
	}
	other := root["other"]

	out, err := DeleteMap(root, []string{"attachments", "photo_0"})
	require.NoError(t, err)

	attachments := out["attachments"].(map[string]any)
	assert.NotContains(t, attachments, "photo_0")
	assert.Contains(t, attachments, "photo_1")
	assert.Contains(t, root["attachments"].(map[string]any), "photo_0")
	assert.True(t, same(other, out["other"]))
}

func TestDelete_MissingPathIsIdentity(t *testing.T) {
	root := map[string]any{"a": map[string]any{"b": 1.0}}

	out, err := DeleteMap(root, []string{"a", "c"})
	require.NoError(t, err)
	assert.True(t, same(root, out))
}

func TestDelete_ArrayElement(t *testing.T) {
	root := map[string]any{"list": []any{"x", "y"}}

	out, err := DeleteMap(root, []string{"list", "0"})
	require.NoError(t, err)
	assert.Equal(t, []any{nil, "y"}, out["list"])
}
