package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Carmen-Shannon/oxy-cull/engine/cull"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tomlConfig = `
max_objects = 128
num_views = 2
indexed_draws_per_view = 64
frustum_culling = true

[[bins]]
id = 0
mask = 1
name = "opaque"

[[bins]]
id = 5
mask = 4
name = "shadow"
`

const yamlConfig = `
max_objects: 32
num_views: 3
draw_list_capacity: 10
bins:
  - id: 1
    mask: 3
    name: lit
`

func TestParseTOML(t *testing.T) {
	c, err := Parse([]byte(tomlConfig), FormatTOML)
	require.NoError(t, err)

	assert.Equal(t, 128, c.MaxObjects)
	assert.Equal(t, 2, c.NumViews)
	assert.Equal(t, 64, c.IndexedDrawsPerView)
	assert.True(t, c.FrustumCulling)
	assert.Equal(t, []cull.Bin{{ID: 0, Mask: 1, Name: "opaque"}, {ID: 5, Mask: 4, Name: "shadow"}}, c.Bins)

	// Unset fields take defaults; scene capacity follows max_objects.
	assert.Equal(t, Default().NonIndexedDrawsPerView, c.NonIndexedDrawsPerView)
	assert.Equal(t, 128, c.SceneCapacity)
}

func TestParseYAML(t *testing.T) {
	c, err := Parse([]byte(yamlConfig), FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, 32, c.MaxObjects)
	assert.Equal(t, 3, c.NumViews)
	assert.Equal(t, 10, c.DrawListCapacity)
	assert.Equal(t, []cull.Bin{{ID: 1, Mask: 3, Name: "lit"}}, c.Bins)
}

func TestParseEmptyUsesDefaults(t *testing.T) {
	c, err := Parse(nil, FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, Default().MaxObjects, c.MaxObjects)
	assert.Len(t, c.Bins, 3)
}

func TestParseKeepsExplicitZeroDraws(t *testing.T) {
	c, err := Parse([]byte("non_indexed_draws_per_view = 0\ndraw_list_capacity = 0\n"), FormatTOML)
	require.NoError(t, err)
	assert.Zero(t, c.NonIndexedDrawsPerView)
	assert.Zero(t, c.DrawListCapacity)
	assert.Equal(t, Default().IndexedDrawsPerView, c.IndexedDrawsPerView)

	c, err = Parse([]byte("indexed_draws_per_view: 0\n"), FormatYAML)
	require.NoError(t, err)
	assert.Zero(t, c.IndexedDrawsPerView)
	assert.Equal(t, Default().NonIndexedDrawsPerView, c.NonIndexedDrawsPerView)

	c = Config{MaxObjects: 8}.WithDefaults()
	assert.Zero(t, c.IndexedDrawsPerView)
	assert.Zero(t, c.DrawListCapacity)
	assert.Equal(t, 8, c.SceneCapacity)
	assert.NoError(t, c.Validate())
}

func TestParseRejects(t *testing.T) {
	_, err := Parse([]byte("num_views = 9\n"), FormatTOML)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = Parse([]byte("bogus = 1\n"), FormatTOML)
	assert.Error(t, err)

	_, err = Parse([]byte("bogus: 1\n"), FormatYAML)
	assert.Error(t, err)

	_, err = Parse([]byte("bins:\n  - id: 1\n  - id: 1\n"), FormatYAML)
	assert.ErrorIs(t, err, cull.ErrDuplicateBin)

	_, err = Parse(nil, Format("json"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestValidate(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())

	c.MaxObjects = 0
	assert.ErrorIs(t, c.Validate(), ErrInvalidConfig)

	c = Default()
	c.Bins = nil
	assert.ErrorIs(t, c.Validate(), cull.ErrNoBins)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	c := Default()
	c.NumViews = 4
	c.FrustumCulling = true

	for _, name := range []string{"pipeline.toml", "pipeline.yaml"} {
		path := filepath.Join(dir, name)
		require.NoError(t, c.Save(path))
		loaded, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, c, loaded, name)
	}

	_, err := Load(filepath.Join(dir, "missing.toml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = Load(filepath.Join(dir, "pipeline.ini"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}
