package state

import "github.com/angelmondragon/wxviz-backend/pkg/enums"

// ReconcileFiles aligns the file table with the uploads found on disk, keyed
// by job id. Records whose upload vanished are dropped; uploads without a
// record are added with the status of their visualization, or unknown when
// there is none. Dataset uploads waiting for their job are left out.
func (m *Manager) ReconcileFiles(found map[string]FileRecord) (added, dropped int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for jobID := range m.files {
		if _, ok := found[jobID]; !ok {
			delete(m.files, jobID)
			dropped++
		}
	}
	for jobID, rec := range found {
		if _, ok := m.files[jobID]; ok {
			continue
		}
		if _, ok := m.datasets[jobID]; ok {
			continue
		}
		rec.JobID = jobID
		rec.Status = FileStatusActive
		rec.ProcessingStatus = enums.ProcessingStatusUnknown
		if v, ok := m.visualizations[jobID]; ok {
			rec.ProcessingStatus = processingStatusOrDefault(v.Status)
			rec.Error = v.Error
			rec.BatchID = v.BatchID
			rec.TilesetID = v.TilesetID
			if v.MapboxTileset != "" {
				rec.TilesetID = v.MapboxTileset
			}
			metadata := v.Metadata
			rec.Metadata = &metadata
		}
		f := rec
		m.files[jobID] = &f
		added++
	}
	return added, dropped
}
