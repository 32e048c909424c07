package housekeeping

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/wxviz-backend/pkg/logger"
	"github.com/angelmondragon/wxviz-backend/pkg/metrics"
	"go.uber.org/multierr"
)

// RunnerParams configure the housekeeping runner.
type RunnerParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.HousekeepingMetrics
}

// Runner executes every registered job once per call.
type Runner struct {
	logg     *logger.Logger
	registry *Registry
	lock     Lock
	metrics  *metrics.HousekeepingMetrics
}

// NewRunner builds a runner. Without a lock the sweep is process local.
func NewRunner(params RunnerParams) (*Runner, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	registry := params.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	lock := params.Lock
	if lock == nil {
		lock = LocalLock{}
	}
	return &Runner{
		logg:     params.Logger,
		registry: registry,
		lock:     lock,
		metrics:  params.Metrics,
	}, nil
}

// RunOnce runs every job even when earlier ones fail and returns their
// combined errors. It is a no-op when another replica holds the lock.
func (r *Runner) RunOnce(ctx context.Context) error {
	ctx = r.logg.WithField(ctx, "event", "housekeeping.run")
	locked, err := r.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("lock acquire: %w", err)
	}
	if !locked {
		r.logg.Info(ctx, "another instance is sweeping; skipping")
		return nil
	}
	defer func() {
		if relErr := r.lock.Release(ctx); relErr != nil {
			r.logg.Error(ctx, "failed to release housekeeping lock", relErr)
		}
	}()

	r.logg.Info(ctx, "housekeeping starting")
	var errs error
	for _, job := range r.registry.Jobs() {
		if err := r.runJob(ctx, job); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", job.Name(), err))
		}
	}
	r.logg.Info(ctx, "housekeeping complete")
	return errs
}

func (r *Runner) runJob(ctx context.Context, job Job) error {
	jobCtx := r.logg.WithFields(ctx, map[string]any{"job": job.Name(), "event": "housekeeping.job"})
	start := time.Now()
	removed, err := job.Run(jobCtx)
	duration := time.Since(start)
	r.metrics.ObserveDuration(job.Name(), duration)
	r.metrics.AddRemoved(job.Name(), removed)
	jobCtx = r.logg.WithFields(jobCtx, map[string]any{"duration_ms": duration.Milliseconds(), "removed": removed})
	if err != nil {
		r.logg.Error(jobCtx, "job failed", err)
		r.metrics.IncFailure(job.Name())
		return err
	}
	r.logg.Info(jobCtx, "job completed")
	r.metrics.IncSuccess(job.Name())
	return nil
}
