package files

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/angelmondragon/wxviz-backend/internal/events"
	"github.com/angelmondragon/wxviz-backend/internal/state"
	"github.com/angelmondragon/wxviz-backend/pkg/logger"
	"github.com/angelmondragon/wxviz-backend/pkg/storage/gcs"
	"go.uber.org/multierr"
)

type recipeDeleter interface {
	DeleteMatching(tokens ...string) (int, error)
}

type archiveDeleter interface {
	Delete(ctx context.Context, object string) error
}

type eventEmitter interface {
	EmitLogged(ctx context.Context, ev events.Event)
}

// Cleaner runs the cascade behind every delete: records first, then the
// upload on disk, recipe sidecars and the archive copy.
type Cleaner struct {
	logg    *logger.Logger
	state   *state.Manager
	recipes recipeDeleter
	archive archiveDeleter
	events  eventEmitter
}

// NewCleaner wires the cascade. recipes, archive and events are optional.
func NewCleaner(logg *logger.Logger, st *state.Manager, recipes recipeDeleter, archive archiveDeleter, ev eventEmitter) (*Cleaner, error) {
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	if st == nil {
		return nil, errors.New("state manager is required")
	}
	return &Cleaner{logg: logg, state: st, recipes: recipes, archive: archive, events: ev}, nil
}

// RemoveJob deletes every record of jobID and its artifacts. Unknown ids
// return NOT_FOUND. Artifact cleanup failures are logged, not returned.
func (c *Cleaner) RemoveJob(ctx context.Context, jobID string) (state.RemovedJob, error) {
	removed, err := c.state.RemoveJob(jobID)
	if err != nil {
		return state.RemovedJob{}, err
	}
	c.cleanup(ctx, removed)
	return removed, nil
}

// RemoveBatch deletes the batch and every job it accepted. It returns the
// number of jobs removed.
func (c *Cleaner) RemoveBatch(ctx context.Context, batchID string) (int, error) {
	removed, err := c.state.RemoveBatch(batchID)
	if err != nil {
		return 0, err
	}
	ctx = c.logg.WithBatchID(ctx, batchID)
	for _, r := range removed {
		c.cleanup(ctx, r)
	}
	return len(removed), nil
}

func (c *Cleaner) cleanup(ctx context.Context, r state.RemovedJob) {
	ctx = c.logg.WithJobID(ctx, r.JobID)

	var errs error
	for _, p := range r.Paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			errs = multierr.Append(errs, err)
		}
	}
	if c.recipes != nil {
		if _, err := c.recipes.DeleteMatching(r.TilesetID, r.JobID); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	if c.archive != nil && len(r.Paths) > 0 {
		if err := c.archive.Delete(ctx, archiveObject(r)); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	if errs != nil {
		c.logg.Error(c.logg.WithField(ctx, "event", "files.cleanup_failed"), "job artifacts not fully removed", errs)
	}

	c.logg.Info(c.logg.WithFields(ctx, map[string]any{
		"event":   "files.job_removed",
		"paths":   len(r.Paths),
		"session": r.Session,
	}), "job removed")

	if c.events != nil {
		ev := events.Event{Type: events.TypeJobDeleted, JobID: r.JobID, TilesetID: r.TilesetID}
		if r.Visualization != nil {
			ev.BatchID = r.Visualization.BatchID
		} else if r.File != nil {
			ev.BatchID = r.File.BatchID
		}
		c.events.EmitLogged(ctx, ev)
	}
}

func archiveObject(r state.RemovedJob) string {
	base := filepath.Base(r.Paths[0])
	if r.File != nil && r.File.Filename != "" {
		base = r.File.Filename
	}
	return gcs.ArchiveObjectName(r.JobID, strings.TrimPrefix(base, r.JobID+"_"))
}
