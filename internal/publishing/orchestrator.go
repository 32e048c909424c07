package publishing

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/angelmondragon/wxviz-backend/internal/events"
	"github.com/angelmondragon/wxviz-backend/internal/recipes"
	"github.com/angelmondragon/wxviz-backend/internal/state"
	"github.com/angelmondragon/wxviz-backend/pkg/enums"
	"github.com/angelmondragon/wxviz-backend/pkg/logger"
	"github.com/angelmondragon/wxviz-backend/pkg/mapbox"
	"github.com/angelmondragon/wxviz-backend/pkg/metrics"
)

const (
	ErrTokenNotConfigured = "Mapbox token not configured"
	ErrInputNotFound      = "Input file not found"
	ErrUnknown            = "Unknown error"

	WarnFallingBack    = "Falling back to vector format"
	WarnVectorFallback = "Created vector format (raster-array requires Pro account)"

	metricsKindTileset = "tileset"
)

// Job identifies one visualization to publish.
type Job struct {
	JobID     string
	FilePath  string
	TilesetID string
	BatchID   string
}

type recipeWriter interface {
	Save(r recipes.Recipe) (string, error)
}

type eventEmitter interface {
	EmitLogged(ctx context.Context, ev events.Event)
}

// OrchestratorParams configure the orchestrator.
type OrchestratorParams struct {
	Logger     *logger.Logger
	State      *state.Manager
	Publisher  TilesetPublisher
	Recipes    recipeWriter
	Events     eventEmitter
	Metrics    *metrics.PublishMetrics
	Configured bool
	Now        func() time.Time
}

// Orchestrator drives a visualization from processing to a terminal status,
// downgrading raster-array requests to vector when the account cannot publish them.
type Orchestrator struct {
	logg       *logger.Logger
	state      *state.Manager
	publisher  TilesetPublisher
	recipes    recipeWriter
	events     eventEmitter
	metrics    *metrics.PublishMetrics
	configured bool
	now        func() time.Time
}

func NewOrchestrator(params OrchestratorParams) (*Orchestrator, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.State == nil {
		return nil, errors.New("state manager is required")
	}
	if params.Configured && params.Publisher == nil {
		return nil, errors.New("publisher is required when mapbox is configured")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{
		logg:       params.Logger,
		state:      params.State,
		publisher:  params.Publisher,
		recipes:    params.Recipes,
		events:     params.Events,
		metrics:    params.Metrics,
		configured: params.Configured,
		now:        now,
	}, nil
}

// run tracks one Publish call. settled flips once the record has reached a
// terminal status, after which a recovered panic must not rewrite it.
type run struct {
	job     Job
	start   time.Time
	settled bool
}

// Publish runs job to a terminal state. Faults are recovered and recorded as
// failures so no record is left processing.
func (o *Orchestrator) Publish(ctx context.Context, job Job) {
	ctx = o.logg.WithJobID(ctx, job.JobID)
	ctx = o.logg.WithBatchID(ctx, job.BatchID)
	r := &run{job: job, start: o.now()}

	defer func() {
		if p := recover(); p != nil {
			if r.settled {
				o.logg.Error(o.logg.WithField(ctx, "event", "publish.panic_after_settle"), "publishing panicked after the job settled", fmt.Errorf("%v", p))
				return
			}
			o.fail(ctx, r, "", fmt.Sprint(p))
		}
	}()

	if !o.configured {
		o.fail(ctx, r, "", ErrTokenNotConfigured)
		return
	}
	if _, err := os.Stat(job.FilePath); err != nil {
		o.fail(ctx, r, "", ErrInputNotFound)
		return
	}

	viz, ok := o.state.Visualization(job.JobID)
	if !ok {
		o.logg.Warn(o.logg.WithField(ctx, "event", "publish.record_missing"), "visualization removed before publishing")
		return
	}
	requested := viz.RequestedFormat
	if requested == "" {
		requested = enums.TilesetFormatVector
	}

	downgraded := false
	if requested == enums.TilesetFormatRasterArray {
		o.logg.Info(o.logg.WithField(ctx, "event", "publish.raster_attempt"), "creating raster-array tileset")
		res := o.publisher.CreateRasterTileset(ctx, job.FilePath, job.TilesetID)
		switch {
		case res.Success:
			o.complete(ctx, r, res, enums.TilesetFormatRasterArray, state.Completion{})
			return
		case res.FallbackToVector || res.ErrorCode == 422:
			warning := res.Error
			if warning == "" {
				warning = WarnFallingBack
			}
			o.state.UpdateVisualization(job.JobID, func(v *state.Visualization) {
				v.Warning = warning
				v.UseClientAnimation = true
			})
			o.metrics.IncFallback()
			o.emit(ctx, events.TypePublishFallback, job, string(enums.TilesetFormatRasterArray), "processing", warning)
			o.logg.Warn(o.logg.WithField(ctx, "event", "publish.fallback"), "raster-array unavailable, falling back to vector")
			downgraded = true
		default:
			o.fail(ctx, r, enums.TilesetFormatRasterArray, res.Error)
			return
		}
	}

	o.logg.Info(o.logg.WithField(ctx, "event", "publish.vector_attempt"), "creating vector tileset")
	res := o.publisher.CreateVectorTileset(ctx, job.FilePath, job.TilesetID)
	if !res.Success {
		msg := res.Error
		if msg == "" {
			msg = ErrUnknown
		}
		o.fail(ctx, r, enums.TilesetFormatVector, msg)
		return
	}
	extra := state.Completion{}
	if downgraded {
		extra = state.Completion{
			Warning:            WarnVectorFallback,
			FormatFallback:     true,
			UseClientAnimation: true,
		}
	}
	o.complete(ctx, r, res, enums.TilesetFormatVector, extra)
}

func (o *Orchestrator) complete(ctx context.Context, r *run, res mapbox.TilesetResult, format enums.TilesetFormat, extra state.Completion) {
	layer := res.SourceLayer
	if layer == "" {
		layer = recipes.DefaultLayer(format)
	}
	extra.MapboxTileset = res.TilesetID
	extra.Format = format
	extra.SourceLayer = layer
	extra.RecipeID = res.RecipeID
	extra.PublishJobID = res.PublishJobID

	viz, ok := o.state.CompleteJob(ctx, r.job.JobID, extra)
	r.settled = true
	if ok && o.recipes != nil {
		if _, err := o.recipes.Save(recipes.FromVisualization(viz, o.now())); err != nil {
			o.logg.Error(o.logg.WithField(ctx, "event", "publish.recipe_failed"), "failed to save recipe", err)
		}
	}
	o.metrics.ObserveOutcome(metricsKindTileset, string(format), string(enums.ProcessingStatusCompleted), o.now().Sub(r.start))
	o.emit(ctx, events.TypePublishCompleted, r.job, string(format), string(enums.ProcessingStatusCompleted), "")

	logCtx := o.logg.WithFields(ctx, map[string]any{
		"event":          "publish.completed",
		"format":         string(format),
		"mapbox_tileset": res.TilesetID,
	})
	o.logg.Info(logCtx, "tileset published")
}

func (o *Orchestrator) fail(ctx context.Context, r *run, format enums.TilesetFormat, msg string) {
	o.state.FailJob(ctx, r.job.JobID, msg)
	r.settled = true
	o.metrics.ObserveOutcome(metricsKindTileset, string(format), string(enums.ProcessingStatusFailed), o.now().Sub(r.start))
	o.emit(ctx, events.TypePublishFailed, r.job, string(format), string(enums.ProcessingStatusFailed), msg)
	o.logg.Error(o.logg.WithField(ctx, "event", "publish.failed"), "tileset publishing failed", errors.New(msg))
}

func (o *Orchestrator) emit(ctx context.Context, typ events.Type, job Job, format, status, errMsg string) {
	if o.events == nil {
		return
	}
	o.events.EmitLogged(ctx, events.Event{
		Type:      typ,
		JobID:     job.JobID,
		BatchID:   job.BatchID,
		TilesetID: job.TilesetID,
		Format:    format,
		Status:    status,
		Error:     errMsg,
	})
}
