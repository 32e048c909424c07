package state

import (
	"time"

	"github.com/angelmondragon/wxviz-backend/pkg/enums"
)

// CreateBatch registers a new batch with its total file count.
func (m *Manager) CreateBatch(batchID string, total int, createdAt time.Time) Batch {
	b := &Batch{
		BatchID:    batchID,
		TotalFiles: total,
		Status:     enums.BatchStatusProcessing,
		Files:      []BatchFile{},
		Errors:     []BatchError{},
		CreatedAt:  createdAt,
	}
	m.mu.Lock()
	m.batches[batchID] = b
	out := *b.clone()
	m.mu.Unlock()
	return out
}

// withBatch runs fn on the stored batch while holding its lock. The table
// lock is held for reading so the batch cannot be removed meanwhile.
func (m *Manager) withBatch(batchID string, fn func(*Batch)) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.batches[batchID]
	if !ok {
		return false
	}
	l := m.batchLock(batchID)
	l.Lock()
	defer l.Unlock()
	fn(b)
	return true
}

// RecordBatchFile appends an accepted file, bumps the processed hint and
// refreshes the aggregate status.
func (m *Manager) RecordBatchFile(batchID string, file BatchFile) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.batches[batchID]
	if !ok {
		return false
	}
	l := m.batchLock(batchID)
	l.Lock()
	defer l.Unlock()
	b.Files = append(b.Files, file)
	b.ProcessedFiles++
	m.refreshLocked(b)
	return true
}

// RecordBatchError appends a rejected file and refreshes the aggregate status.
func (m *Manager) RecordBatchError(batchID string, batchErr BatchError) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.batches[batchID]
	if !ok {
		return false
	}
	l := m.batchLock(batchID)
	l.Lock()
	defer l.Unlock()
	b.Errors = append(b.Errors, batchErr)
	m.refreshLocked(b)
	return true
}

// RecordBatchDataset appends a dataset summary and updates the matching file
// entry, adding one and bumping the processed hint when the job had none.
func (m *Manager) RecordBatchDataset(batchID string, summary DatasetSummary) bool {
	status := enums.ProcessingStatusFailed
	if summary.Success {
		status = enums.ProcessingStatusCompleted
	}
	return m.withBatch(batchID, func(b *Batch) {
		b.Datasets = append(b.Datasets, summary)
		i := b.fileIndex(summary.JobID)
		if i < 0 {
			b.Files = append(b.Files, BatchFile{JobID: summary.JobID, Filename: summary.Filename})
			b.ProcessedFiles++
			i = len(b.Files) - 1
		}
		b.Files[i].DatasetID = summary.DatasetID
		b.Files[i].Success = summary.Success
		b.Files[i].Error = summary.Error
		b.Files[i].Status = status
		m.refreshLocked(b)
	})
}

// BatchStatus recomputes the batch counts from the current visualization
// records, writes the snapshot back and returns a copy.
func (m *Manager) BatchStatus(batchID string) (Batch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.batches[batchID]
	if !ok {
		return Batch{}, notFound("batch", batchID)
	}
	l := m.batchLock(batchID)
	l.Lock()
	defer l.Unlock()
	m.refreshLocked(b)
	return *b.clone(), nil
}

// Batch returns a copy of the stored batch without recomputing it.
func (m *Manager) Batch(batchID string) (Batch, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.batches[batchID]
	if !ok {
		return Batch{}, false
	}
	l := m.batchLock(batchID)
	l.Lock()
	defer l.Unlock()
	return *b.clone(), true
}

// refreshLocked derives counts and status. Callers hold the table lock (read
// or write) and the batch lock.
func (m *Manager) refreshLocked(b *Batch) {
	statuses := make([]enums.ProcessingStatus, len(b.Files))
	for i, f := range b.Files {
		if v, ok := m.visualizations[f.JobID]; ok {
			statuses[i] = processingStatusOrDefault(v.Status)
			continue
		}
		if _, ok := m.datasets[f.JobID]; ok {
			statuses[i] = processingStatusOrDefault(f.Status)
			continue
		}
		statuses[i] = enums.ProcessingStatusUnknown
	}
	counts := CountStatuses(statuses)
	b.CompletedFiles = counts.Completed
	b.FailedFiles = counts.Failed
	b.ProcessingFiles = counts.Processing
	b.Status = DeriveBatchStatus(statuses, len(b.Errors) > 0)
}

// Batches recomputes every batch and returns copies keyed by batch id.
func (m *Manager) Batches() map[string]Batch {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Batch, len(m.batches))
	for id, b := range m.batches {
		l := m.batchLock(id)
		l.Lock()
		m.refreshLocked(b)
		out[id] = *b.clone()
		l.Unlock()
	}
	return out
}
