package state

// RemovedJob lists what a cascade delete took out of the tables so callers
// can clean up disk, sidecars and remote copies.
type RemovedJob struct {
	JobID         string
	Paths         []string
	TilesetID     string
	MapboxTileset string
	File          *FileRecord
	Visualization *Visualization
	Session       bool
}

// RemoveJob deletes the session, file record, visualization and dataset
// record of jobID. Unknown ids return NOT_FOUND and change nothing.
func (m *Manager) RemoveJob(jobID string) (RemovedJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed, ok := m.removeJobLocked(jobID)
	if !ok {
		return RemovedJob{}, notFound("file", jobID)
	}
	return removed, nil
}

func (m *Manager) removeJobLocked(jobID string) (RemovedJob, bool) {
	f, hasFile := m.files[jobID]
	v, hasViz := m.visualizations[jobID]
	if !hasFile && !hasViz {
		return RemovedJob{}, false
	}

	removed := RemovedJob{JobID: jobID}
	seen := map[string]bool{}
	addPath := func(p string) {
		if p != "" && !seen[p] {
			seen[p] = true
			removed.Paths = append(removed.Paths, p)
		}
	}
	if hasFile {
		copyF := *f
		removed.File = &copyF
		addPath(f.Path)
		removed.MapboxTileset = f.TilesetID
	}
	if hasViz {
		copyV := *v
		removed.Visualization = &copyV
		addPath(v.FilePath)
		removed.TilesetID = v.TilesetID
		if v.MapboxTileset != "" {
			removed.MapboxTileset = v.MapboxTileset
		}
	}
	if _, ok := m.sessions[jobID]; ok {
		delete(m.sessions, jobID)
		removed.Session = true
	}
	delete(m.files, jobID)
	delete(m.visualizations, jobID)
	delete(m.datasets, jobID)
	return removed, true
}

// RemoveBatch deletes a batch and every job record of its files.
func (m *Manager) RemoveBatch(batchID string) ([]RemovedJob, error) {
	m.mu.Lock()
	b, ok := m.batches[batchID]
	if !ok {
		m.mu.Unlock()
		return nil, notFound("batch", batchID)
	}
	var removed []RemovedJob
	for _, f := range b.Files {
		if r, ok := m.removeJobLocked(f.JobID); ok {
			removed = append(removed, r)
		}
	}
	delete(m.batches, batchID)
	m.mu.Unlock()
	m.dropBatchLock(batchID)
	return removed, nil
}
