package visualizations

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/angelmondragon/wxviz-backend/internal/files"
	"github.com/angelmondragon/wxviz-backend/internal/geodata"
	"github.com/angelmondragon/wxviz-backend/internal/state"
	"github.com/angelmondragon/wxviz-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/wxviz-backend/pkg/errors"
	"github.com/angelmondragon/wxviz-backend/pkg/logger"
)

const (
	ErrJobNotFound           = "Job not found"
	ErrVisualizationNotFound = "Visualization not found"
	ErrSessionNotFound       = "Session not found"
	ErrNoWindData            = "No wind data available for this session"
)

// Summary is one entry of the active visualization listing.
type Summary struct {
	JobID              string                    `json:"job_id"`
	TilesetID          string                    `json:"tileset_id"`
	MapboxTileset      string                    `json:"mapbox_tileset,omitempty"`
	Status             enums.ProcessingStatus    `json:"status"`
	CreatedAt          time.Time                 `json:"created_at"`
	Format             enums.TilesetFormat       `json:"format"`
	ActualFormat       enums.TilesetFormat       `json:"actual_format"`
	RequestedFormat    enums.TilesetFormat       `json:"requested_format"`
	WindComponents     *geodata.VectorComponents `json:"wind_components"`
	ScalarVars         []string                  `json:"scalar_vars"`
	VectorPairs        []geodata.VectorPair      `json:"vector_pairs"`
	UseClientAnimation bool                      `json:"use_client_animation"`
	SessionID          string                    `json:"session_id,omitempty"`
	Bounds             *geodata.Bounds           `json:"bounds"`
	Center             *geodata.Center           `json:"center"`
	Zoom               *int                      `json:"zoom"`
}

// Active groups visualizations by the batch that produced them.
type Active struct {
	Single    []Summary              `json:"single_visualizations"`
	Batched   map[string][]Summary   `json:"batched_visualizations"`
	BatchJobs map[string]state.Batch `json:"batch_jobs"`
}

// WindData is the grid served to the client-side animation.
type WindData struct {
	Success bool `json:"success"`
	*geodata.Grid
}

type Params struct {
	Logger  *logger.Logger
	State   *state.Manager
	Cleaner *files.Cleaner
	Opener  geodata.Opener
	Remote  tilesetInspector
	Cache   formatCache
	Recipes recipeFinder
	Now     func() time.Time
}

// Service answers visualization, session and tileset queries.
type Service struct {
	logg    *logger.Logger
	state   *state.Manager
	cleaner *files.Cleaner
	opener  geodata.Opener
	remote  tilesetInspector
	cache   formatCache
	recipes recipeFinder
	now     func() time.Time
}

func NewService(p Params) (*Service, error) {
	if p.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if p.State == nil {
		return nil, errors.New("state manager is required")
	}
	if p.Cleaner == nil {
		return nil, errors.New("cleaner is required")
	}
	if p.Opener == nil {
		return nil, errors.New("dataset opener is required")
	}
	now := p.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		logg:    p.Logger,
		state:   p.State,
		cleaner: p.Cleaner,
		opener:  p.Opener,
		remote:  p.Remote,
		cache:   p.Cache,
		recipes: p.Recipes,
		now:     now,
	}, nil
}

// Status returns the visualization of jobID after copying its status onto
// the file record.
func (s *Service) Status(jobID string) (state.Visualization, error) {
	v, ok := s.state.SyncFileStatus(jobID)
	if !ok {
		return state.Visualization{}, pkgerrors.New(pkgerrors.CodeNotFound, ErrJobNotFound)
	}
	return v, nil
}

// WindData serves the session grid. When the session is gone but the job
// and its upload remain, the grid is extracted again and cached.
func (s *Service) WindData(ctx context.Context, sessionID string) (*WindData, error) {
	if sess, ok := s.state.Session(sessionID); ok {
		if sess.Grid == nil {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, ErrNoWindData)
		}
		return &WindData{Success: true, Grid: sess.Grid}, nil
	}

	v, ok := s.state.Visualization(sessionID)
	if !ok || v.WindComponents == nil || v.FilePath == "" {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, ErrSessionNotFound)
	}
	if _, err := os.Stat(v.FilePath); err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, ErrSessionNotFound)
	}

	grid, err := s.reextract(v)
	if err != nil {
		logCtx := s.logg.WithFields(s.logg.WithJobID(ctx, sessionID), map[string]any{"event": "session.reextract_failed"})
		s.logg.Error(logCtx, "re-extracting wind data failed", err)
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, ErrSessionNotFound)
	}
	s.state.PutSession(state.Session{
		SessionID: sessionID,
		FilePath:  v.FilePath,
		Grid:      grid,
		Bounds:    v.Bounds,
		Center:    v.Center,
		Zoom:      v.Zoom,
		CreatedAt: s.now(),
		BatchID:   v.BatchID,
	})
	return &WindData{Success: true, Grid: grid}, nil
}

func (s *Service) reextract(v state.Visualization) (*geodata.Grid, error) {
	ds, err := s.opener.Open(v.FilePath)
	if err != nil {
		return nil, err
	}
	if ds == nil {
		return nil, errors.New("dataset could not be opened")
	}
	defer func() { _ = ds.Close() }()
	return geodata.ExtractClientGrid(ds, *v.WindComponents)
}

// Active lists every visualization, grouped by batch, with the batches.
func (s *Service) Active() Active {
	out := Active{
		Single:    []Summary{},
		Batched:   map[string][]Summary{},
		BatchJobs: s.state.Batches(),
	}
	for _, v := range s.state.Visualizations() {
		sum := summarize(v)
		if v.BatchID == "" {
			out.Single = append(out.Single, sum)
			continue
		}
		out.Batched[v.BatchID] = append(out.Batched[v.BatchID], sum)
	}
	return out
}

func summarize(v state.Visualization) Summary {
	format := v.Format
	if format == "" {
		format = enums.TilesetFormatVector
	}
	actual := v.ActualFormat
	if actual == "" {
		actual = format
	}
	requested := v.RequestedFormat
	if requested == "" {
		requested = enums.TilesetFormatVector
	}
	return Summary{
		JobID:              v.JobID,
		TilesetID:          v.TilesetID,
		MapboxTileset:      v.MapboxTileset,
		Status:             v.Status,
		CreatedAt:          v.CreatedAt,
		Format:             format,
		ActualFormat:       actual,
		RequestedFormat:    requested,
		WindComponents:     v.WindComponents,
		ScalarVars:         v.ScalarVars,
		VectorPairs:        v.VectorPairs,
		UseClientAnimation: v.UseClientAnimation,
		SessionID:          v.SessionID,
		Bounds:             v.Bounds,
		Center:             v.Center,
		Zoom:               v.Zoom,
	}
}

// Delete cascades the removal of a visualization and its upload.
func (s *Service) Delete(ctx context.Context, jobID string) error {
	if _, ok := s.state.Visualization(jobID); !ok {
		return pkgerrors.New(pkgerrors.CodeNotFound, ErrVisualizationNotFound)
	}
	_, err := s.cleaner.RemoveJob(ctx, jobID)
	return err
}
