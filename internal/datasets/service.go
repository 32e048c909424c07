package datasets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/angelmondragon/wxviz-backend/internal/events"
	"github.com/angelmondragon/wxviz-backend/internal/ingest"
	"github.com/angelmondragon/wxviz-backend/internal/naming"
	"github.com/angelmondragon/wxviz-backend/internal/state"
	"github.com/angelmondragon/wxviz-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/wxviz-backend/pkg/errors"
	"github.com/angelmondragon/wxviz-backend/pkg/logger"
	"github.com/angelmondragon/wxviz-backend/pkg/mapbox"
	"github.com/angelmondragon/wxviz-backend/pkg/metrics"
)

const (
	ErrTokenNotConfigured = "Mapbox token not configured"
	ErrJobNotFound        = "Job not found"

	listLimit          = 100
	metricsKindDataset = "dataset"
)

var weatherKeywords = []string{"weather", "netcdf", "wind", "temperature", "pressure"}

type scheduler interface {
	Submit(name string, fn func(ctx context.Context)) error
}

type eventEmitter interface {
	EmitLogged(ctx context.Context, ev events.Event)
}

// Job is one dataset creation run.
type Job struct {
	JobID            string
	FilePath         string
	Name             string
	OriginalFilename string
	BatchID          string
}

// UploadOptions are the optional form fields of a dataset upload. BatchID
// attaches the job to an existing upload batch.
type UploadOptions struct {
	Name    string
	BatchID string
}

// UploadResult acknowledges an accepted dataset upload.
type UploadResult struct {
	Success bool                   `json:"success"`
	JobID   string                 `json:"job_id"`
	Message string                 `json:"message"`
	Status  enums.ProcessingStatus `json:"status"`
	BatchID string                 `json:"batch_id,omitempty"`
}

// ListResult splits the account datasets into weather related ones and the rest.
type ListResult struct {
	Success         bool             `json:"success"`
	TotalDatasets   int              `json:"total_datasets"`
	WeatherDatasets []mapbox.Dataset `json:"weather_datasets"`
	AllDatasets     []mapbox.Dataset `json:"all_datasets"`
}

// Params wire the dataset service.
type Params struct {
	Logger       *logger.Logger
	State        *state.Manager
	Publisher    Publisher
	Pool         scheduler
	Events       eventEmitter
	Metrics      *metrics.PublishMetrics
	UploadDir    string
	MaxFileBytes int64
	Configured   bool
	Now          func() time.Time
}

// Service uploads NetCDF files as Mapbox datasets and manages existing ones.
type Service struct {
	logg         *logger.Logger
	state        *state.Manager
	publisher    Publisher
	pool         scheduler
	events       eventEmitter
	metrics      *metrics.PublishMetrics
	uploadDir    string
	maxFileBytes int64
	configured   bool
	now          func() time.Time
}

func NewService(p Params) (*Service, error) {
	if p.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if p.State == nil {
		return nil, errors.New("state manager is required")
	}
	if p.Pool == nil {
		return nil, errors.New("worker pool is required")
	}
	if p.Configured && p.Publisher == nil {
		return nil, errors.New("publisher is required when mapbox is configured")
	}
	if strings.TrimSpace(p.UploadDir) == "" {
		return nil, errors.New("upload dir is required")
	}
	if p.MaxFileBytes <= 0 {
		return nil, errors.New("max file bytes must be positive")
	}
	now := p.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		logg:         p.Logger,
		state:        p.State,
		publisher:    p.Publisher,
		pool:         p.Pool,
		events:       p.Events,
		metrics:      p.Metrics,
		uploadDir:    p.UploadDir,
		maxFileBytes: p.MaxFileBytes,
		configured:   p.Configured,
		now:          now,
	}, nil
}

// Upload stores the file and schedules dataset creation. A placeholder record
// with status processing is visible until the job finishes.
func (s *Service) Upload(ctx context.Context, up ingest.Upload, opts UploadOptions) (*UploadResult, error) {
	if err := naming.ValidateFilename(up.Filename); err != nil {
		return nil, err
	}
	if err := naming.ValidateFileSize(up.Size, s.maxFileBytes); err != nil {
		return nil, err
	}
	if up.Content == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "File is empty")
	}
	batchID := strings.TrimSpace(opts.BatchID)
	if batchID != "" {
		if _, ok := s.state.Batch(batchID); !ok {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "Batch not found").
				WithDetails(map[string]string{"batch_id": batchID})
		}
	}

	now := s.now()
	jobID := naming.NewJobID(now)
	ctx = s.logg.WithJobID(ctx, jobID)
	ctx = s.logg.WithBatchID(ctx, batchID)
	path := filepath.Join(s.uploadDir, naming.StoredFilename(jobID, naming.SafeFilename(up.Filename)))
	if _, err := ingest.Store(path, up.Content, s.maxFileBytes); err != nil {
		return nil, err
	}

	s.state.PutDataset(state.Dataset{
		JobID:     jobID,
		Filename:  up.Filename,
		Status:    enums.ProcessingStatusProcessing,
		CreatedAt: now,
		BatchID:   batchID,
	})
	if batchID != "" {
		s.state.RecordBatchFile(batchID, state.BatchFile{
			JobID:    jobID,
			Filename: up.Filename,
			Status:   enums.ProcessingStatusProcessing,
		})
	}

	job := Job{JobID: jobID, FilePath: path, Name: strings.TrimSpace(opts.Name), OriginalFilename: up.Filename, BatchID: batchID}
	if err := s.pool.Submit("dataset:"+jobID, func(taskCtx context.Context) { s.Create(taskCtx, job) }); err != nil {
		s.logg.Error(s.logg.WithField(ctx, "event", "dataset.schedule_failed"), "could not schedule dataset creation", err)
		s.finish(ctx, job, state.Dataset{
			JobID:     jobID,
			Filename:  up.Filename,
			Status:    enums.ProcessingStatusFailed,
			Error:     pkgerrors.MessageOf(err),
			CreatedAt: now,
			BatchID:   batchID,
		}, now)
		return nil, err
	}

	s.logg.Info(s.logg.WithField(ctx, "event", "dataset.accepted"), "dataset upload accepted")
	return &UploadResult{
		Success: true,
		JobID:   jobID,
		Message: "File uploaded. Creating dataset...",
		Status:  enums.ProcessingStatusProcessing,
		BatchID: batchID,
	}, nil
}

// Create builds the remote dataset for job and records the terminal result.
// The stored file is removed whatever the outcome.
func (s *Service) Create(ctx context.Context, job Job) {
	ctx = s.logg.WithJobID(ctx, job.JobID)
	ctx = s.logg.WithBatchID(ctx, job.BatchID)
	start := s.now()
	record := state.Dataset{
		JobID:     job.JobID,
		Filename:  job.OriginalFilename,
		Status:    enums.ProcessingStatusFailed,
		CreatedAt: start,
		BatchID:   job.BatchID,
	}

	defer func() {
		if r := recover(); r != nil {
			record.Status = enums.ProcessingStatusFailed
			record.Error = fmt.Sprint(r)
			record.DatasetID = ""
		}
		s.finish(ctx, job, record, start)
	}()

	if !s.configured {
		record.Error = ErrTokenNotConfigured
		return
	}
	name := job.Name
	if name == "" {
		name = naming.DefaultDatasetName(job.OriginalFilename)
	}
	s.logg.Info(s.logg.WithField(ctx, "event", "dataset.create"), "creating dataset "+name)

	res := s.publisher.CreateDataset(ctx, job.FilePath, name)
	if !res.Success {
		record.Error = res.Error
		if record.Error == "" {
			record.Error = "Unknown error"
		}
		return
	}
	record.Status = enums.ProcessingStatusCompleted
	record.DatasetID = res.DatasetID
	record.DatasetURL = res.DatasetURL
	record.TotalFeatures = res.TotalFeatures
	record.FeaturesAdded = res.FeaturesAdded
}

func (s *Service) finish(ctx context.Context, job Job, record state.Dataset, start time.Time) {
	s.state.PutDataset(record)
	if job.BatchID != "" {
		s.state.RecordBatchDataset(job.BatchID, state.DatasetSummary{
			JobID:      job.JobID,
			Filename:   job.OriginalFilename,
			DatasetID:  record.DatasetID,
			DatasetURL: record.DatasetURL,
			Success:    record.Status == enums.ProcessingStatusCompleted,
			Error:      record.Error,
		})
	}

	if err := os.Remove(job.FilePath); err != nil && !os.IsNotExist(err) {
		s.logg.Error(s.logg.WithField(ctx, "event", "dataset.cleanup_failed"), "failed to remove dataset upload", err)
	}

	s.metrics.ObserveOutcome(metricsKindDataset, "", string(record.Status), s.now().Sub(start))
	typ := events.TypeDatasetCompleted
	if record.Status != enums.ProcessingStatusCompleted {
		typ = events.TypeDatasetFailed
		s.logg.Error(s.logg.WithField(ctx, "event", "dataset.failed"), "dataset creation failed", errors.New(record.Error))
	} else {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"event":      "dataset.completed",
			"dataset_id": record.DatasetID,
			"features":   record.FeaturesAdded,
		}), "dataset created")
	}
	if s.events != nil {
		s.events.EmitLogged(ctx, events.Event{
			Type:    typ,
			JobID:   job.JobID,
			BatchID: job.BatchID,
			Status:  string(record.Status),
			Error:   record.Error,
		})
	}
}

// Status returns the dataset record of a job.
func (s *Service) Status(jobID string) (state.Dataset, error) {
	ds, ok := s.state.Dataset(jobID)
	if !ok {
		return state.Dataset{}, pkgerrors.New(pkgerrors.CodeNotFound, ErrJobNotFound)
	}
	return ds, nil
}

// List returns up to 100 account datasets and the weather related subset.
func (s *Service) List(ctx context.Context) (*ListResult, error) {
	if err := s.requireConfigured(); err != nil {
		return nil, err
	}
	all, err := s.publisher.ListDatasets(ctx, listLimit)
	if err != nil {
		return nil, wrapRemote(err)
	}
	weather := []mapbox.Dataset{}
	for _, ds := range all {
		if IsWeatherDataset(ds.Name, ds.ID) {
			weather = append(weather, ds)
		}
	}
	if all == nil {
		all = []mapbox.Dataset{}
	}
	return &ListResult{
		Success:         true,
		TotalDatasets:   len(all),
		WeatherDatasets: weather,
		AllDatasets:     all,
	}, nil
}

// Info returns remote metadata of one dataset.
func (s *Service) Info(ctx context.Context, datasetID string) (*mapbox.Dataset, error) {
	if err := s.requireConfigured(); err != nil {
		return nil, err
	}
	info, err := s.publisher.DatasetInfo(ctx, datasetID)
	if err != nil {
		return nil, wrapRemote(err)
	}
	return info, nil
}

// Delete removes the remote dataset, then every local record pointing at it.
func (s *Service) Delete(ctx context.Context, datasetID string) error {
	if err := s.requireConfigured(); err != nil {
		return err
	}
	if err := s.publisher.DeleteDataset(ctx, datasetID); err != nil {
		return wrapRemote(err)
	}
	removed := s.state.RemoveDatasetByRemoteID(datasetID)
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"event":      "dataset.deleted",
		"dataset_id": datasetID,
		"records":    removed,
	}), "dataset deleted")
	if s.events != nil {
		s.events.EmitLogged(ctx, events.Event{Type: events.TypeJobDeleted, JobID: datasetID})
	}
	return nil
}

// IsWeatherDataset matches the dataset name or id against the weather keywords.
func IsWeatherDataset(name, id string) bool {
	name = strings.ToLower(name)
	id = strings.ToLower(id)
	for _, kw := range weatherKeywords {
		if strings.Contains(name, kw) || strings.Contains(id, kw) {
			return true
		}
	}
	return false
}

func (s *Service) requireConfigured() error {
	if !s.configured {
		return pkgerrors.New(pkgerrors.CodeDependency, ErrTokenNotConfigured)
	}
	return nil
}

// wrapRemote keeps typed errors and surfaces the remote message of the rest.
func wrapRemote(err error) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, mapbox.MessageOf(err))
}
