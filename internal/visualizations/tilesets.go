package visualizations

import (
	"context"
	"strings"
	"time"

	"github.com/angelmondragon/wxviz-backend/internal/geodata"
	"github.com/angelmondragon/wxviz-backend/internal/recipes"
	"github.com/angelmondragon/wxviz-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/wxviz-backend/pkg/errors"
	"github.com/angelmondragon/wxviz-backend/pkg/mapbox"
)

const (
	DefaultTilesetID = "mapbox.gfs-winds"

	TilesetTypeDefault = "default"
	TilesetTypeUser    = "user"

	StatusPublishing = "publishing"
	StatusReady      = "ready"
	StatusError      = "error"

	formatCacheTTL = 10 * time.Minute
)

var publishingStates = map[string]bool{"processing": true, "queued": true, "publishing": true}

type tilesetInspector interface {
	TilesetFormat(ctx context.Context, tilesetID string) (string, error)
	TilesetStatus(ctx context.Context, tilesetID string) (*mapbox.TilesetStatus, error)
}

type formatCache interface {
	CachedTilesetFormat(ctx context.Context, tilesetID string) (string, bool, error)
	CacheTilesetFormat(ctx context.Context, tilesetID, format string, ttl time.Duration) error
}

type recipeFinder interface {
	Find(tilesetID string) (*recipes.Recipe, bool, error)
}

// LayerConfig tells the map client how to render a tileset.
type LayerConfig struct {
	Layers             []string                `json:"layers,omitempty"`
	WindSource         string                  `json:"wind_source,omitempty"`
	SourceLayer        string                  `json:"source_layer"`
	VisualizationType  enums.VisualizationType `json:"visualization_type,omitempty"`
	ScalarVars         []string                `json:"scalar_vars,omitempty"`
	VectorPairs        []geodata.VectorPair    `json:"vector_pairs,omitempty"`
	Format             enums.TilesetFormat     `json:"format,omitempty"`
	IsRasterArray      bool                    `json:"is_raster_array"`
	UseClientAnimation bool                    `json:"use_client_animation"`
	SessionID          string                  `json:"session_id,omitempty"`
	Bounds             *geodata.Bounds         `json:"bounds,omitempty"`
	Center             *geodata.Center         `json:"center,omitempty"`
	Zoom               *int                    `json:"zoom,omitempty"`
	BatchID            string                  `json:"batch_id,omitempty"`
}

// TilesetConfig is the answer to a load tileset request.
type TilesetConfig struct {
	Success         bool                `json:"success"`
	TilesetID       string              `json:"tileset_id"`
	Type            string              `json:"type"`
	Format          enums.TilesetFormat `json:"format"`
	ActualFormat    enums.TilesetFormat `json:"actual_format"`
	RequestedFormat enums.TilesetFormat `json:"requested_format"`
	Config          LayerConfig         `json:"config"`
}

// TilesetStatus reports whether a tileset is still publishing.
type TilesetStatus struct {
	Status   string                `json:"status"`
	Complete bool                  `json:"complete"`
	Info     *mapbox.TilesetStatus `json:"tileset_info,omitempty"`
	Error    string                `json:"error,omitempty"`
}

// LoadTileset returns the rendering config of a tileset. The default wind
// tileset is answered locally; user tilesets combine their recipe sidecar
// with the format reported by the remote service.
func (s *Service) LoadTileset(ctx context.Context, tilesetID string) (*TilesetConfig, error) {
	tilesetID = strings.TrimSpace(tilesetID)
	if tilesetID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tileset_id is required")
	}
	if tilesetID == DefaultTilesetID {
		return &TilesetConfig{
			Success:         true,
			TilesetID:       tilesetID,
			Type:            TilesetTypeDefault,
			Format:          enums.TilesetFormatRasterArray,
			ActualFormat:    enums.TilesetFormatRasterArray,
			RequestedFormat: enums.TilesetFormatRasterArray,
			Config: LayerConfig{
				Layers:        []string{"wind"},
				WindSource:    tilesetID,
				SourceLayer:   recipes.DefaultRasterLayer,
				Format:        enums.TilesetFormatRasterArray,
				IsRasterArray: true,
			},
		}, nil
	}

	cfg := &TilesetConfig{
		Success:         true,
		TilesetID:       tilesetID,
		Type:            TilesetTypeUser,
		ActualFormat:    enums.TilesetFormatVector,
		RequestedFormat: enums.TilesetFormatVector,
		Config: LayerConfig{
			SourceLayer:       recipes.DefaultVectorLayer,
			VisualizationType: enums.VisualizationTypeVector,
		},
	}
	if s.recipes != nil {
		r, ok, err := s.recipes.Find(tilesetID)
		if err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "event", "tileset.recipe_unreadable"), err.Error())
		}
		if ok {
			applyRecipe(cfg, r)
		}
	}

	if format, ok := s.remoteFormat(ctx, tilesetID); ok {
		cfg.ActualFormat = format
		cfg.Config.SourceLayer = recipes.DefaultLayer(format)
	}
	cfg.Format = cfg.ActualFormat
	cfg.Config.Format = cfg.ActualFormat
	cfg.Config.IsRasterArray = cfg.ActualFormat == enums.TilesetFormatRasterArray
	return cfg, nil
}

func applyRecipe(cfg *TilesetConfig, r *recipes.Recipe) {
	actual := r.ActualFormat
	if actual == "" {
		actual = r.Format
	}
	if actual != "" {
		cfg.ActualFormat = actual
	}
	if r.RequestedFormat != "" {
		cfg.RequestedFormat = r.RequestedFormat
	} else if r.Format != "" {
		cfg.RequestedFormat = r.Format
	}
	if r.SourceLayer != "" {
		cfg.Config.SourceLayer = r.SourceLayer
	}
	if r.VisualizationType != "" {
		cfg.Config.VisualizationType = r.VisualizationType
	}
	cfg.Config.ScalarVars = r.ScalarVars
	cfg.Config.VectorPairs = r.VectorPairs
	cfg.Config.UseClientAnimation = r.UseClientAnimation
	cfg.Config.SessionID = r.SessionID
	cfg.Config.Bounds = r.Bounds
	cfg.Config.Center = r.Center
	cfg.Config.Zoom = r.Zoom
	cfg.Config.BatchID = r.BatchID
}

// remoteFormat asks the remote service for the tileset format, going through
// the cache when one is configured. Lookup failures fall back to the recipe.
func (s *Service) remoteFormat(ctx context.Context, tilesetID string) (enums.TilesetFormat, bool) {
	if s.remote == nil {
		return "", false
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{"event": "tileset.format", "tileset_id": tilesetID})
	if s.cache != nil {
		cached, ok, err := s.cache.CachedTilesetFormat(ctx, tilesetID)
		if err != nil {
			s.logg.Warn(logCtx, "format cache read failed: "+err.Error())
		}
		if ok {
			return enums.TilesetFormat(cached), true
		}
	}
	raw, err := s.remote.TilesetFormat(ctx, tilesetID)
	if err != nil {
		s.logg.Warn(logCtx, "remote format check failed: "+mapbox.MessageOf(err))
		return "", false
	}
	format := enums.TilesetFormat(raw)
	if !format.IsValid() {
		return "", false
	}
	if s.cache != nil {
		if err := s.cache.CacheTilesetFormat(ctx, tilesetID, raw, formatCacheTTL); err != nil {
			s.logg.Warn(logCtx, "format cache write failed: "+err.Error())
		}
	}
	return format, true
}

// TilesetStatus reports the remote publish state of a tileset. Remote
// failures are part of the answer rather than an error.
func (s *Service) TilesetStatus(ctx context.Context, tilesetID string) (*TilesetStatus, error) {
	if s.remote == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "Mapbox token not configured")
	}
	st, err := s.remote.TilesetStatus(ctx, tilesetID)
	if err != nil {
		s.logg.Error(s.logg.WithField(ctx, "event", "tileset.status_failed"), "tileset status lookup failed", err)
		return &TilesetStatus{Status: StatusError, Error: mapbox.MessageOf(err)}, nil
	}
	if st != nil && publishingStates[strings.ToLower(st.Status)] {
		return &TilesetStatus{Status: StatusPublishing, Complete: false}, nil
	}
	return &TilesetStatus{Status: StatusReady, Complete: true, Info: st}, nil
}
