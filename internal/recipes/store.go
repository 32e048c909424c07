package recipes

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/angelmondragon/wxviz-backend/internal/geodata"
	"github.com/angelmondragon/wxviz-backend/internal/state"
	"github.com/angelmondragon/wxviz-backend/pkg/enums"
)

const (
	filePrefix = "recipe_"
	fileExt    = ".json"

	DefaultVectorLayer = "weather_data"
	DefaultRasterLayer = "10winds"
)

// Recipe is the JSON sidecar written for every published tileset.
type Recipe struct {
	TilesetID          string                  `json:"tileset_id"`
	MapboxTileset      string                  `json:"mapbox_tileset"`
	Created            time.Time               `json:"created"`
	Format             enums.TilesetFormat     `json:"format"`
	ActualFormat       enums.TilesetFormat     `json:"actual_format"`
	RequestedFormat    enums.TilesetFormat     `json:"requested_format"`
	SourceLayer        string                  `json:"source_layer"`
	RecipeID           string                  `json:"recipe_id,omitempty"`
	PublishJobID       string                  `json:"publish_job_id,omitempty"`
	ScalarVars         []string                `json:"scalar_vars"`
	VectorPairs        []geodata.VectorPair    `json:"vector_pairs"`
	VisualizationType  enums.VisualizationType `json:"visualization_type"`
	IsRasterArray      bool                    `json:"is_raster_array"`
	UseClientAnimation bool                    `json:"use_client_animation"`
	SessionID          string                  `json:"session_id,omitempty"`
	Bounds             *geodata.Bounds         `json:"bounds,omitempty"`
	Center             *geodata.Center         `json:"center,omitempty"`
	Zoom               *int                    `json:"zoom,omitempty"`
	BatchID            string                  `json:"batch_id,omitempty"`
}

// FromVisualization builds the sidecar of a completed visualization.
func FromVisualization(v state.Visualization, created time.Time) Recipe {
	format := v.ActualFormat
	if format == "" {
		format = enums.TilesetFormatVector
	}
	layer := v.SourceLayer
	if layer == "" {
		layer = DefaultLayer(format)
	}
	requested := v.RequestedFormat
	if requested == "" {
		requested = enums.TilesetFormatVector
	}
	vizType := v.VisualizationType
	if vizType == "" {
		vizType = enums.VisualizationTypeVector
	}
	scalars := v.ScalarVars
	if scalars == nil {
		scalars = []string{}
	}
	pairs := v.VectorPairs
	if pairs == nil {
		pairs = []geodata.VectorPair{}
	}
	return Recipe{
		TilesetID:          v.TilesetID,
		MapboxTileset:      v.MapboxTileset,
		Created:            created,
		Format:             format,
		ActualFormat:       format,
		RequestedFormat:    requested,
		SourceLayer:        layer,
		RecipeID:           v.RecipeID,
		PublishJobID:       v.PublishJobID,
		ScalarVars:         scalars,
		VectorPairs:        pairs,
		VisualizationType:  vizType,
		IsRasterArray:      format == enums.TilesetFormatRasterArray,
		UseClientAnimation: v.UseClientAnimation,
		SessionID:          v.SessionID,
		Bounds:             v.Bounds,
		Center:             v.Center,
		Zoom:               v.Zoom,
		BatchID:            v.BatchID,
	}
}

// DefaultLayer is the source layer name used when the remote service reports none.
func DefaultLayer(format enums.TilesetFormat) string {
	if format == enums.TilesetFormatRasterArray {
		return DefaultRasterLayer
	}
	return DefaultVectorLayer
}

// Store reads and writes recipe sidecars in one directory.
type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Path is the sidecar location for tilesetID.
func (s *Store) Path(tilesetID string) string {
	return filepath.Join(s.dir, filePrefix+tilesetID+fileExt)
}

// Save writes r as indented JSON and returns its path. The file is written
// next to its final name and renamed into place, so readers never see a
// partial sidecar.
func (s *Store) Save(r Recipe) (string, error) {
	if r.TilesetID == "" {
		return "", fmt.Errorf("recipe tileset id is required")
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create recipe dir: %w", err)
	}
	payload, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode recipe: %w", err)
	}
	path := s.Path(r.TilesetID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return "", fmt.Errorf("write recipe: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("replace recipe: %w", err)
	}
	return path, nil
}

// Find returns the first sidecar whose name contains the short form of
// tilesetID (the part after the last '.').
func (s *Store) Find(tilesetID string) (*Recipe, bool, error) {
	short := tilesetID
	if i := strings.LastIndex(short, "."); i >= 0 {
		short = short[i+1:]
	}
	if short == "" {
		return nil, false, nil
	}
	matches, err := s.matching(short)
	if err != nil || len(matches) == 0 {
		return nil, false, err
	}
	raw, err := os.ReadFile(matches[0])
	if err != nil {
		return nil, false, fmt.Errorf("read recipe: %w", err)
	}
	var r Recipe
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, false, fmt.Errorf("decode recipe %s: %w", filepath.Base(matches[0]), err)
	}
	return &r, true, nil
}

// DeleteMatching removes every sidecar whose name contains any non-empty token.
func (s *Store) DeleteMatching(tokens ...string) (int, error) {
	deleted := 0
	seen := map[string]bool{}
	for _, token := range tokens {
		if token == "" {
			continue
		}
		matches, err := s.matching(token)
		if err != nil {
			return deleted, err
		}
		for _, path := range matches {
			if seen[path] {
				continue
			}
			seen[path] = true
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return deleted, fmt.Errorf("delete recipe %s: %w", filepath.Base(path), err)
			}
			deleted++
		}
	}
	return deleted, nil
}

func (s *Store) matching(token string) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list recipes: %w", err)
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, fileExt) || !strings.Contains(name, token) {
			continue
		}
		out = append(out, filepath.Join(s.dir, name))
	}
	sort.Strings(out)
	return out, nil
}
