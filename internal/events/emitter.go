package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/angelmondragon/wxviz-backend/pkg/bigquery"
	"github.com/angelmondragon/wxviz-backend/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/multierr"
)

// Type names a job lifecycle transition.
type Type string

const (
	TypeUploadAccepted   Type = "upload.accepted"
	TypePublishCompleted Type = "publish.completed"
	TypePublishFailed    Type = "publish.failed"
	TypePublishFallback  Type = "publish.fallback"
	TypeDatasetCompleted Type = "dataset.completed"
	TypeDatasetFailed    Type = "dataset.failed"
	TypeJobDeleted       Type = "job.deleted"
)

const envelopeVersion = 1

// Event is one lifecycle transition of an upload job.
type Event struct {
	Type       Type      `json:"type"`
	JobID      string    `json:"job_id"`
	BatchID    string    `json:"batch_id,omitempty"`
	TilesetID  string    `json:"tileset_id,omitempty"`
	Format     string    `json:"format,omitempty"`
	Status     string    `json:"status,omitempty"`
	Error      string    `json:"error,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Envelope is the message body published for every event.
type Envelope struct {
	Version    int       `json:"version"`
	EventID    string    `json:"eventId"`
	OccurredAt time.Time `json:"occurredAt"`
	Data       Event     `json:"data"`
}

type publisher interface {
	PublishEvent(ctx context.Context, data []byte, attrs map[string]string) (string, error)
}

type auditWriter interface {
	InsertJobEvents(ctx context.Context, rows ...bigquery.JobEventRow) error
}

// Emitter fans events out to the optional Pub/Sub topic and BigQuery table.
// A nil Emitter or one without sinks drops events.
type Emitter struct {
	logg  *logger.Logger
	pub   publisher
	audit auditWriter
	now   func() time.Time
}

// NewEmitter wires the sinks; either may be nil.
func NewEmitter(logg *logger.Logger, pub publisher, audit auditWriter) *Emitter {
	return &Emitter{logg: logg, pub: pub, audit: audit, now: time.Now}
}

// Emit delivers ev to every configured sink and returns the combined error.
func (e *Emitter) Emit(ctx context.Context, ev Event) error {
	if e == nil || (e.pub == nil && e.audit == nil) {
		return nil
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = e.now().UTC()
	}
	eventID := uuid.NewString()

	var errs error
	if e.pub != nil {
		body, err := json.Marshal(Envelope{
			Version:    envelopeVersion,
			EventID:    eventID,
			OccurredAt: ev.OccurredAt,
			Data:       ev,
		})
		if err != nil {
			errs = multierr.Append(errs, err)
		} else if _, err := e.pub.PublishEvent(ctx, body, map[string]string{
			"event_type": string(ev.Type),
			"job_id":     ev.JobID,
		}); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	if e.audit != nil {
		errs = multierr.Append(errs, e.audit.InsertJobEvents(ctx, bigquery.JobEventRow{
			EventID:    eventID,
			EventType:  string(ev.Type),
			JobID:      ev.JobID,
			BatchID:    ev.BatchID,
			TilesetID:  ev.TilesetID,
			Format:     ev.Format,
			Status:     ev.Status,
			Error:      ev.Error,
			OccurredAt: ev.OccurredAt,
		}))
	}
	return errs
}

// EmitLogged emits ev and logs delivery failures instead of returning them.
func (e *Emitter) EmitLogged(ctx context.Context, ev Event) {
	if err := e.Emit(ctx, ev); err != nil && e.logg != nil {
		logCtx := e.logg.WithFields(ctx, map[string]any{"event": "events.emit_failed", "event_type": string(ev.Type)})
		e.logg.Error(logCtx, "lifecycle event delivery failed", err)
	}
}
