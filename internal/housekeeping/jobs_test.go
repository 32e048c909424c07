package housekeeping

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/angelmondragon/wxviz-backend/internal/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeAged(t *testing.T, dir, name string, modTime time.Time) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	require.NoError(t, os.Chtimes(path, modTime, modTime))
	return path
}

func TestStaleFilesJobRemovesOnlyOldUnreferencedFiles(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 6, 2, 12, 0, 0, 0, time.UTC)
	old := now.Add(-25 * time.Hour)
	uploads := t.TempDir()
	processed := t.TempDir()

	mgr := state.NewManager(nil)
	mgr.PutJob(&state.FileRecord{JobID: "20240601100000-aaaa0001"}, nil, nil)

	staleUpload := writeAged(t, uploads, "20240601090000-bbbb0002_old.nc", old)
	kept := writeAged(t, uploads, "20240601100000-aaaa0001_referenced.nc", old)
	fresh := writeAged(t, uploads, "20240602110000-cccc0003_fresh.nc", now.Add(-time.Hour))
	staleProcessed := writeAged(t, processed, "20240601090000-dddd0004_tiles.geojson", old)
	require.NoError(t, os.Mkdir(filepath.Join(uploads, "nested"), 0o755))

	job, err := NewStaleFilesJob(testLogger(), mgr, 24*time.Hour, uploads, processed, filepath.Join(uploads, "missing"))
	require.NoError(t, err)
	job.now = func() time.Time { return now }

	removed, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	for _, p := range []string{staleUpload, staleProcessed} {
		_, statErr := os.Stat(p)
		assert.True(t, os.IsNotExist(statErr), p)
	}
	for _, p := range []string{kept, fresh} {
		_, statErr := os.Stat(p)
		assert.NoError(t, statErr, p)
	}
}

func TestStaleSessionAndBatchJobs(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 6, 2, 12, 0, 0, 0, time.UTC)
	mgr := state.NewManager(nil)
	mgr.PutSession(state.Session{SessionID: "old", CreatedAt: now.Add(-48 * time.Hour)})
	mgr.PutSession(state.Session{SessionID: "new", CreatedAt: now.Add(-time.Hour)})
	mgr.CreateBatch("old-batch", 1, now.Add(-30*time.Hour))
	mgr.CreateBatch("new-batch", 1, now)

	sessions, err := NewStaleSessionsJob(mgr, 0)
	require.NoError(t, err)
	sessions.now = func() time.Time { return now }
	batches, err := NewStaleBatchesJob(mgr, 24*time.Hour)
	require.NoError(t, err)
	batches.now = func() time.Time { return now }

	n, err := sessions.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, ok := mgr.Session("new")
	assert.True(t, ok)

	n, err = batches.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, ok = mgr.Batch("old-batch")
	assert.False(t, ok)
	_, ok = mgr.Batch("new-batch")
	assert.True(t, ok)
}

func TestJobConstructorsValidate(t *testing.T) {
	t.Parallel()
	_, err := NewStaleFilesJob(nil, state.NewManager(nil), 0)
	assert.Error(t, err)
	_, err = NewStaleFilesJob(testLogger(), nil, 0)
	assert.Error(t, err)
	_, err = NewStaleSessionsJob(nil, 0)
	assert.Error(t, err)
	_, err = NewStaleBatchesJob(nil, 0)
	assert.Error(t, err)
}
