package recipes

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/angelmondragon/wxviz-backend/internal/geodata"
	"github.com/angelmondragon/wxviz-backend/internal/state"
	"github.com/angelmondragon/wxviz-backend/pkg/enums"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAndFind(t *testing.T) {
	t.Parallel()

	store := NewStore(t.TempDir())
	zoom := 4
	viz := state.Visualization{
		JobID:             "20240101000000-aaaa1111",
		TilesetID:         "wx_gfs_01011200",
		MapboxTileset:     "wxuser.wx_gfs_01011200",
		ActualFormat:      enums.TilesetFormatRasterArray,
		RequestedFormat:   enums.TilesetFormatRasterArray,
		VisualizationType: enums.VisualizationTypeRasterArray,
		ScalarVars:        []string{"temp"},
		VectorPairs:       []geodata.VectorPair{{Name: "wind", U: "u", V: "v"}},
		Zoom:              &zoom,
	}
	path, err := store.Save(FromVisualization(viz, time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)))
	require.NoError(t, err)
	assert.Equal(t, store.Path("wx_gfs_01011200"), path)

	got, ok, err := store.Find("wxuser.wx_gfs_01011200")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.IsRasterArray)
	assert.Equal(t, DefaultRasterLayer, got.SourceLayer)
	assert.Equal(t, "wxuser.wx_gfs_01011200", got.MapboxTileset)
	require.NotNil(t, got.Zoom)
	assert.Equal(t, 4, *got.Zoom)
}

func TestFromVisualizationDefaults(t *testing.T) {
	t.Parallel()

	r := FromVisualization(state.Visualization{TilesetID: "t"}, time.Now())
	assert.Equal(t, enums.TilesetFormatVector, r.Format)
	assert.Equal(t, DefaultVectorLayer, r.SourceLayer)
	assert.False(t, r.IsRasterArray)
	assert.NotNil(t, r.ScalarVars)
	assert.NotNil(t, r.VectorPairs)
}

func TestFindMissing(t *testing.T) {
	t.Parallel()

	store := NewStore(t.TempDir() + "/absent")
	_, ok, err := store.Find("nothing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteMatching(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store := NewStore(dir)
	for _, id := range []string{"wx_a_01010000", "wx_b_01010000", "wxb_batch123_c_01010000"} {
		_, err := store.Save(Recipe{TilesetID: id})
		require.NoError(t, err)
	}
	require.NoError(t, os.WriteFile(dir+"/notes.txt", []byte("x"), 0o644))

	n, err := store.DeleteMatching("wx_a_01010000", "", "batch123")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestSaveReplacesWithoutLeavingTempFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store := NewStore(dir)
	// A temp file left by an interrupted write is neither matched nor kept.
	require.NoError(t, os.WriteFile(store.Path("wx_era5_02020000")+".tmp", []byte("{\"tileset_id\":"), 0o644))

	first := Recipe{TilesetID: "wx_era5_02020000", MapboxTileset: "wxuser.wx_era5_02020000", SourceLayer: "old"}
	_, err := store.Save(first)
	require.NoError(t, err)
	second := first
	second.SourceLayer = DefaultVectorLayer
	path, err := store.Save(second)
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, filepath.Base(path), entries[0].Name())

	got, ok, err := store.Find("wxuser.wx_era5_02020000")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, DefaultVectorLayer, got.SourceLayer)
}

func TestSaveRenameFailureCleansUp(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store := NewStore(dir)
	blocker := store.Path("wx_blocked")
	require.NoError(t, os.MkdirAll(filepath.Join(blocker, "child"), 0o755))

	_, err := store.Save(Recipe{TilesetID: "wx_blocked"})
	require.Error(t, err)
	_, statErr := os.Stat(blocker + ".tmp")
	assert.True(t, os.IsNotExist(statErr))
}
