package housekeeping

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/angelmondragon/wxviz-backend/internal/naming"
	"github.com/angelmondragon/wxviz-backend/pkg/logger"
	"go.uber.org/multierr"
)

const (
	JobStaleFiles    = "stale-files"
	JobStaleSessions = "stale-sessions"
	JobStaleBatches  = "stale-batches"

	defaultMaxAge = 24 * time.Hour
)

type referenceChecker interface {
	Referenced(jobID string) bool
}

type sessionEvictor interface {
	EvictSessionsBefore(cutoff time.Time) int
}

type batchEvictor interface {
	EvictBatchesBefore(cutoff time.Time) int
}

func maxAgeOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return defaultMaxAge
	}
	return d
}

// StaleFilesJob removes files older than the max age from the upload and
// processed directories unless a record still references their job id.
type StaleFilesJob struct {
	logg   *logger.Logger
	dirs   []string
	refs   referenceChecker
	maxAge time.Duration
	now    func() time.Time
}

func NewStaleFilesJob(logg *logger.Logger, refs referenceChecker, maxAge time.Duration, dirs ...string) (*StaleFilesJob, error) {
	if logg == nil {
		return nil, errors.New("logger required")
	}
	if refs == nil {
		return nil, errors.New("reference checker required")
	}
	return &StaleFilesJob{logg: logg, dirs: dirs, refs: refs, maxAge: maxAgeOrDefault(maxAge), now: time.Now}, nil
}

func (j *StaleFilesJob) Name() string { return JobStaleFiles }

func (j *StaleFilesJob) Run(ctx context.Context) (int, error) {
	cutoff := j.now().Add(-j.maxAge)
	removed := 0
	var errs error
	for _, dir := range j.dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if !os.IsNotExist(err) {
				errs = multierr.Append(errs, fmt.Errorf("list %s: %w", dir, err))
			}
			continue
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			info, err := e.Info()
			if err != nil || !info.ModTime().Before(cutoff) {
				continue
			}
			if j.refs.Referenced(naming.JobIDFromFilename(e.Name())) {
				continue
			}
			path := filepath.Join(dir, e.Name())
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				errs = multierr.Append(errs, fmt.Errorf("remove %s: %w", path, err))
				continue
			}
			removed++
			j.logg.Info(j.logg.WithFields(ctx, map[string]any{"event": "housekeeping.file_removed", "path": path}), "stale file removed")
		}
	}
	return removed, errs
}

// StaleSessionsJob evicts session records older than the max age.
type StaleSessionsJob struct {
	sessions sessionEvictor
	maxAge   time.Duration
	now      func() time.Time
}

func NewStaleSessionsJob(sessions sessionEvictor, maxAge time.Duration) (*StaleSessionsJob, error) {
	if sessions == nil {
		return nil, errors.New("session store required")
	}
	return &StaleSessionsJob{sessions: sessions, maxAge: maxAgeOrDefault(maxAge), now: time.Now}, nil
}

func (j *StaleSessionsJob) Name() string { return JobStaleSessions }

func (j *StaleSessionsJob) Run(context.Context) (int, error) {
	return j.sessions.EvictSessionsBefore(j.now().Add(-j.maxAge)), nil
}

// StaleBatchesJob evicts batch records older than the max age. The jobs of
// their files stay until their own files go stale.
type StaleBatchesJob struct {
	batches batchEvictor
	maxAge  time.Duration
	now     func() time.Time
}

func NewStaleBatchesJob(batches batchEvictor, maxAge time.Duration) (*StaleBatchesJob, error) {
	if batches == nil {
		return nil, errors.New("batch store required")
	}
	return &StaleBatchesJob{batches: batches, maxAge: maxAgeOrDefault(maxAge), now: time.Now}, nil
}

func (j *StaleBatchesJob) Name() string { return JobStaleBatches }

func (j *StaleBatchesJob) Run(context.Context) (int, error) {
	return j.batches.EvictBatchesBefore(j.now().Add(-j.maxAge)), nil
}
