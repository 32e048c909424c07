package state

import (
	"context"

	"github.com/angelmondragon/wxviz-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/wxviz-backend/pkg/errors"
)

// Completion describes a successful publish.
type Completion struct {
	MapboxTileset      string
	Format             enums.TilesetFormat
	SourceLayer        string
	RecipeID           string
	PublishJobID       string
	Warning            string
	FormatFallback     bool
	UseClientAnimation bool
}

// CompleteJob marks the visualization, file record and batch entry of jobID
// completed in one step. It returns the updated visualization, or false when
// the job was deleted while publishing; that case is logged and ignored.
func (m *Manager) CompleteJob(ctx context.Context, jobID string, c Completion) (Visualization, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.visualizations[jobID]
	if !ok {
		m.logMissing(ctx, jobID, "publish.record_missing")
		return Visualization{}, false
	}
	v.Status = enums.ProcessingStatusCompleted
	v.Error = ""
	v.MapboxTileset = c.MapboxTileset
	v.Format = c.Format
	v.ActualFormat = c.Format
	v.SourceLayer = c.SourceLayer
	v.RecipeID = c.RecipeID
	v.PublishJobID = c.PublishJobID
	if c.Warning != "" {
		v.Warning = c.Warning
	}
	if c.FormatFallback {
		v.FormatFallback = true
	}
	if c.UseClientAnimation {
		v.UseClientAnimation = true
	}

	if f, ok := m.files[jobID]; ok {
		f.ProcessingStatus = enums.ProcessingStatusCompleted
		f.Error = ""
		f.TilesetID = c.MapboxTileset
	}
	m.updateBatchEntryLocked(v.BatchID, jobID, func(bf *BatchFile) {
		bf.Status = enums.ProcessingStatusCompleted
		bf.Error = ""
		bf.TilesetID = c.MapboxTileset
	})
	return *v, true
}

// FailJob marks the visualization, file record and batch entry of jobID failed.
func (m *Manager) FailJob(ctx context.Context, jobID, message string) (Visualization, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.visualizations[jobID]
	if !ok {
		if f, fok := m.files[jobID]; fok {
			f.ProcessingStatus = enums.ProcessingStatusFailed
			f.Error = message
		}
		m.logMissing(ctx, jobID, "publish.record_missing")
		return Visualization{}, false
	}
	v.Status = enums.ProcessingStatusFailed
	v.Error = message

	if f, ok := m.files[jobID]; ok {
		f.ProcessingStatus = enums.ProcessingStatusFailed
		f.Error = message
	}
	m.updateBatchEntryLocked(v.BatchID, jobID, func(bf *BatchFile) {
		bf.Status = enums.ProcessingStatusFailed
		bf.Error = message
	})
	return *v, true
}

// ResetJob reopens a terminal job for reprocessing. fn may adjust the
// visualization before it is stored. A job that is still processing is a
// STATE_CONFLICT and is left untouched.
func (m *Manager) ResetJob(jobID string, fn func(*Visualization)) (Visualization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.visualizations[jobID]
	if !ok {
		return Visualization{}, notFound("visualization", jobID)
	}
	if !v.Status.IsTerminal() {
		return Visualization{}, pkgerrors.New(pkgerrors.CodeStateConflict, "job is still processing").
			WithDetails(map[string]string{"id": jobID, "status": string(v.Status)})
	}
	v.Status = enums.ProcessingStatusProcessing
	v.Error = ""
	v.Warning = ""
	v.FormatFallback = false
	v.UseClientAnimation = false
	v.MapboxTileset = ""
	v.Format = ""
	v.ActualFormat = ""
	if fn != nil {
		fn(v)
	}
	if f, ok := m.files[jobID]; ok {
		f.ProcessingStatus = enums.ProcessingStatusProcessing
		f.Error = ""
	}
	m.updateBatchEntryLocked(v.BatchID, jobID, func(bf *BatchFile) {
		bf.Status = enums.ProcessingStatusProcessing
		bf.Error = ""
	})
	return *v, nil
}

// SyncFileStatus copies the visualization status and error onto the file record.
func (m *Manager) SyncFileStatus(jobID string) (Visualization, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.visualizations[jobID]
	if !ok {
		return Visualization{}, false
	}
	if f, ok := m.files[jobID]; ok {
		f.ProcessingStatus = v.Status
		f.Error = v.Error
		if v.MapboxTileset != "" {
			f.TilesetID = v.MapboxTileset
		}
	}
	return *v, true
}

// updateBatchEntryLocked requires the table write lock.
func (m *Manager) updateBatchEntryLocked(batchID, jobID string, fn func(*BatchFile)) {
	if batchID == "" {
		return
	}
	b, ok := m.batches[batchID]
	if !ok {
		return
	}
	l := m.batchLock(batchID)
	l.Lock()
	defer l.Unlock()
	if i := b.fileIndex(jobID); i >= 0 {
		fn(&b.Files[i])
	}
}
