package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/angelmondragon/wxviz-backend/internal/events"
	"github.com/angelmondragon/wxviz-backend/internal/geodata"
	"github.com/angelmondragon/wxviz-backend/internal/naming"
	"github.com/angelmondragon/wxviz-backend/internal/publishing"
	"github.com/angelmondragon/wxviz-backend/internal/state"
	"github.com/angelmondragon/wxviz-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/wxviz-backend/pkg/errors"
	"github.com/angelmondragon/wxviz-backend/pkg/logger"
)

const previewVars = 5

type scheduler interface {
	Submit(name string, fn func(ctx context.Context)) error
}

type tilesetPublisher interface {
	Publish(ctx context.Context, job publishing.Job)
}

type archiver interface {
	UploadFile(ctx context.Context, object, path string) error
}

type eventEmitter interface {
	EmitLogged(ctx context.Context, ev events.Event)
}

// Upload is one file received from a client.
type Upload struct {
	Filename string
	Size     int64
	Content  io.Reader
}

// Options are the processing options shared by single and batch uploads.
type Options struct {
	CreateTileset     bool
	TilesetName       string
	VisualizationType enums.VisualizationType
}

// BatchOptions adds the comma separated per-file tileset names of a batch.
type BatchOptions struct {
	CreateTileset     bool
	TilesetNames      string
	VisualizationType enums.VisualizationType
}

// FileResult is what the client gets back for one accepted file.
type FileResult struct {
	JobID             string                    `json:"job_id"`
	Filename          string                    `json:"filename"`
	Success           bool                      `json:"success"`
	Status            enums.ProcessingStatus    `json:"status"`
	Message           string                    `json:"message,omitempty"`
	Error             string                    `json:"error,omitempty"`
	TilesetID         string                    `json:"tileset_id"`
	Metadata          geodata.Metadata          `json:"metadata"`
	WindComponents    *geodata.VectorComponents `json:"wind_components"`
	Bounds            *geodata.Bounds           `json:"bounds"`
	Center            *geodata.Center           `json:"center"`
	Zoom              *int                      `json:"zoom"`
	VisualizationType enums.VisualizationType   `json:"visualization_type"`
	RequestedFormat   enums.TilesetFormat       `json:"requested_format"`
	ScalarVars        []string                  `json:"scalar_vars"`
	VectorPairs       []geodata.VectorPair      `json:"vector_pairs"`
	Previews          map[string]geodata.Preview `json:"previews,omitempty"`
	WindStatistics    *geodata.WindStatistics   `json:"wind_statistics,omitempty"`
	SessionID         string                    `json:"session_id,omitempty"`
	BatchID           string                    `json:"batch_id,omitempty"`
	Warnings          []string                  `json:"warnings,omitempty"`
}

// Params wire the ingestion service.
type Params struct {
	Logger           *logger.Logger
	State            *state.Manager
	Opener           geodata.Opener
	Synthesizer      *naming.Synthesizer
	Publisher        tilesetPublisher
	Pool             scheduler
	Archive          archiver
	Events           eventEmitter
	UploadDir        string
	MaxFileBytes     int64
	MaxBatchSize     int
	MapboxConfigured bool
	Now              func() time.Time
}

// Service validates uploads, stores them, extracts their geodata and
// registers the job records before handing publishing to the pool.
type Service struct {
	logg         *logger.Logger
	state        *state.Manager
	opener       geodata.Opener
	synth        *naming.Synthesizer
	publisher    tilesetPublisher
	pool         scheduler
	archive      archiver
	events       eventEmitter
	uploadDir    string
	maxFileBytes int64
	maxBatchSize int
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
	if p.Opener == nil {
		return nil, errors.New("dataset opener is required")
	}
	if p.Pool == nil {
		return nil, errors.New("worker pool is required")
	}
	if p.MapboxConfigured && p.Publisher == nil {
		return nil, errors.New("publisher is required when mapbox is configured")
	}
	if strings.TrimSpace(p.UploadDir) == "" {
		return nil, errors.New("upload dir is required")
	}
	if p.MaxFileBytes <= 0 || p.MaxBatchSize <= 0 {
		return nil, errors.New("upload limits must be positive")
	}
	now := p.Now
	if now == nil {
		now = time.Now
	}
	synth := p.Synthesizer
	if synth == nil {
		synth = naming.NewSynthesizer(now)
	}
	return &Service{
		logg:         p.Logger,
		state:        p.State,
		opener:       p.Opener,
		synth:        synth,
		publisher:    p.Publisher,
		pool:         p.Pool,
		archive:      p.Archive,
		events:       p.Events,
		uploadDir:    p.UploadDir,
		maxFileBytes: p.MaxFileBytes,
		maxBatchSize: p.MaxBatchSize,
		configured:   p.MapboxConfigured,
		now:          now,
	}, nil
}

// Ingest processes a single upload. Validation failures return a
// VALIDATION_ERROR before anything is written.
func (s *Service) Ingest(ctx context.Context, up Upload, opts Options) (*FileResult, error) {
	opts.VisualizationType = normalizeType(opts.VisualizationType)
	if err := s.validate(up, opts.TilesetName, opts.VisualizationType); err != nil {
		return nil, err
	}
	jobID := naming.NewJobID(s.now())
	return s.ingestOne(ctx, jobID, "", up, opts)
}

// IngestBatch allocates the batch and every job id up front, then processes
// each file independently. Failed files land in the batch error list.
func (s *Service) IngestBatch(ctx context.Context, uploads []Upload, opts BatchOptions) (*state.Batch, error) {
	if err := naming.ValidateBatchSize(len(uploads), s.maxBatchSize); err != nil {
		return nil, err
	}
	vizType := normalizeType(opts.VisualizationType)
	if !vizType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid visualization type %q", vizType))
	}

	batchID := naming.NewBatchID()
	jobIDs := make([]string, len(uploads))
	for i := range uploads {
		jobIDs[i] = naming.BatchJobID(batchID, i)
	}
	names := splitTilesetNames(opts.TilesetNames, len(uploads))

	s.state.CreateBatch(batchID, len(uploads), s.now())
	ctx = s.logg.WithBatchID(ctx, batchID)
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"event":       "ingest.batch_accepted",
		"total_files": len(uploads),
	}), "batch upload accepted")

	for i, up := range uploads {
		fileOpts := Options{
			CreateTileset:     opts.CreateTileset,
			TilesetName:       names[i],
			VisualizationType: vizType,
		}
		err := s.validate(up, fileOpts.TilesetName, vizType)
		if err == nil {
			_, err = s.ingestOne(ctx, jobIDs[i], batchID, up, fileOpts)
		}
		if err != nil {
			s.state.RecordBatchError(batchID, state.BatchError{
				Filename: up.Filename,
				Error:    pkgerrors.MessageOf(err),
			})
			logCtx := s.logg.WithFields(ctx, map[string]any{"event": "ingest.batch_file_failed", "filename": up.Filename})
			s.logg.Warn(logCtx, pkgerrors.MessageOf(err))
		}
	}

	batch, err := s.state.BatchStatus(batchID)
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

func (s *Service) validate(up Upload, tilesetName string, vizType enums.VisualizationType) error {
	if err := naming.ValidateFilename(up.Filename); err != nil {
		return err
	}
	if err := naming.ValidateFileSize(up.Size, s.maxFileBytes); err != nil {
		return err
	}
	if err := naming.ValidateTilesetName(tilesetName); err != nil {
		return err
	}
	if !vizType.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid visualization type %q", vizType))
	}
	if up.Content == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "File is empty")
	}
	return nil
}

func normalizeType(v enums.VisualizationType) enums.VisualizationType {
	if v == "" {
		return enums.VisualizationTypeVector
	}
	return v
}

// splitTilesetNames applies comma separated names only when there is exactly
// one per file.
func splitTilesetNames(raw string, count int) []string {
	out := make([]string, count)
	if strings.TrimSpace(raw) == "" {
		return out
	}
	parts := strings.Split(raw, ",")
	if len(parts) != count {
		return out
	}
	for i, p := range parts {
		out[i] = strings.TrimSpace(p)
	}
	return out
}
