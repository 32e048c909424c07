package state

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/angelmondragon/wxviz-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/wxviz-backend/pkg/errors"
	"github.com/angelmondragon/wxviz-backend/pkg/logger"
)

// Manager owns every in-memory record table. Lock order is always the table
// lock first and a batch lock second.
type Manager struct {
	logg *logger.Logger
	now  func() time.Time

	mu             sync.RWMutex
	files          map[string]*FileRecord
	visualizations map[string]*Visualization
	sessions       map[string]*Session
	batches        map[string]*Batch
	datasets       map[string]*Dataset

	batchLocksMu sync.Mutex
	batchLocks   map[string]*sync.Mutex
}

// NewManager builds an empty record store.
func NewManager(logg *logger.Logger) *Manager {
	return &Manager{
		logg:           logg,
		now:            time.Now,
		files:          map[string]*FileRecord{},
		visualizations: map[string]*Visualization{},
		sessions:       map[string]*Session{},
		batches:        map[string]*Batch{},
		datasets:       map[string]*Dataset{},
		batchLocks:     map[string]*sync.Mutex{},
	}
}

func (m *Manager) batchLock(batchID string) *sync.Mutex {
	m.batchLocksMu.Lock()
	defer m.batchLocksMu.Unlock()
	l, ok := m.batchLocks[batchID]
	if !ok {
		l = &sync.Mutex{}
		m.batchLocks[batchID] = l
	}
	return l
}

func (m *Manager) dropBatchLock(batchID string) {
	m.batchLocksMu.Lock()
	delete(m.batchLocks, batchID)
	m.batchLocksMu.Unlock()
}

func notFound(kind, id string) error {
	return pkgerrors.New(pkgerrors.CodeNotFound, kind+" not found").
		WithDetails(map[string]string{"id": id})
}

// PutJob stores the file, visualization and optional session of one job in a
// single step. Existing records with the same job id are replaced.
func (m *Manager) PutJob(file *FileRecord, viz *Visualization, session *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if file != nil {
		f := *file
		m.files[f.JobID] = &f
	}
	if viz != nil {
		v := *viz
		m.visualizations[v.JobID] = &v
	}
	if session != nil {
		s := *session
		m.sessions[s.SessionID] = &s
	}
}

// PutFile stores or replaces a file record.
func (m *Manager) PutFile(file FileRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[file.JobID] = &file
}

// PutSession stores or replaces a session.
func (m *Manager) PutSession(session Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.SessionID] = &session
}

// File returns a copy of the file record for jobID.
func (m *Manager) File(jobID string) (FileRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.files[jobID]
	if !ok {
		return FileRecord{}, false
	}
	return *f, true
}

// Files returns copies of every file record ordered by upload time.
func (m *Manager) Files() []FileRecord {
	m.mu.RLock()
	out := make([]FileRecord, 0, len(m.files))
	for _, f := range m.files {
		out = append(out, *f)
	}
	m.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].UploadedAt.Equal(out[j].UploadedAt) {
			return out[i].JobID < out[j].JobID
		}
		return out[i].UploadedAt.Before(out[j].UploadedAt)
	})
	return out
}

// Visualization returns a copy of the visualization for jobID.
func (m *Manager) Visualization(jobID string) (Visualization, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.visualizations[jobID]
	if !ok {
		return Visualization{}, false
	}
	return *v, true
}

// Visualizations returns copies of every visualization ordered by creation time.
func (m *Manager) Visualizations() []Visualization {
	m.mu.RLock()
	out := make([]Visualization, 0, len(m.visualizations))
	for _, v := range m.visualizations {
		out = append(out, *v)
	}
	m.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].JobID < out[j].JobID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// UpdateVisualization applies fn to the stored visualization. It reports false
// when the job is unknown.
func (m *Manager) UpdateVisualization(jobID string, fn func(*Visualization)) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.visualizations[jobID]
	if !ok {
		return false
	}
	fn(v)
	return true
}

// UpdateFile applies fn to the stored file record.
func (m *Manager) UpdateFile(jobID string, fn func(*FileRecord)) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[jobID]
	if !ok {
		return false
	}
	fn(f)
	return true
}

// Session returns a copy of the session.
func (m *Manager) Session(sessionID string) (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// Referenced reports whether any file or visualization record uses jobID.
func (m *Manager) Referenced(jobID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, isFile := m.files[jobID]
	_, isViz := m.visualizations[jobID]
	return isFile || isViz
}

// Counts is a snapshot of table sizes.
type Counts struct {
	Files          int `json:"files"`
	Visualizations int `json:"active_jobs"`
	Sessions       int `json:"active_sessions"`
	Batches        int `json:"batches"`
	Datasets       int `json:"datasets"`
}

// Counts returns the current table sizes.
func (m *Manager) Counts() Counts {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Counts{
		Files:          len(m.files),
		Visualizations: len(m.visualizations),
		Sessions:       len(m.sessions),
		Batches:        len(m.batches),
		Datasets:       len(m.datasets),
	}
}

// PutDataset stores a finished dataset record.
func (m *Manager) PutDataset(ds Dataset) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.datasets[ds.JobID] = &ds
}

// Dataset returns a copy of the dataset record for jobID.
func (m *Manager) Dataset(jobID string) (Dataset, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.datasets[jobID]
	if !ok {
		return Dataset{}, false
	}
	return *d, true
}

// RemoveDatasetByRemoteID drops the local records pointing at a remote dataset.
func (m *Manager) RemoveDatasetByRemoteID(datasetID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for jobID, d := range m.datasets {
		if d.DatasetID == datasetID {
			delete(m.datasets, jobID)
			removed++
		}
	}
	return removed
}

// EvictSessionsBefore removes sessions created before cutoff.
func (m *Manager) EvictSessionsBefore(cutoff time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, s := range m.sessions {
		if s.CreatedAt.Before(cutoff) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

// EvictBatchesBefore removes batches created before cutoff. Job records of
// their files are left alone.
func (m *Manager) EvictBatchesBefore(cutoff time.Time) int {
	m.mu.Lock()
	var evicted []string
	for id, b := range m.batches {
		if b.CreatedAt.Before(cutoff) {
			delete(m.batches, id)
			evicted = append(evicted, id)
		}
	}
	m.mu.Unlock()
	for _, id := range evicted {
		m.dropBatchLock(id)
	}
	return len(evicted)
}

func (m *Manager) logMissing(ctx context.Context, jobID, event string) {
	if m.logg == nil {
		return
	}
	logCtx := m.logg.WithFields(ctx, map[string]any{"job_id": jobID, "event": event})
	m.logg.Warn(logCtx, "record removed before transition applied")
}

func processingStatusOrDefault(s enums.ProcessingStatus) enums.ProcessingStatus {
	if s == "" {
		return enums.ProcessingStatusProcessing
	}
	return s
}
