package publishing

import (
	"context"

	"github.com/angelmondragon/wxviz-backend/internal/geodata"
	pkgerrors "github.com/angelmondragon/wxviz-backend/pkg/errors"
	"github.com/angelmondragon/wxviz-backend/pkg/mapbox"
)

const (
	// ErrUnreadableFile is reported when a stored upload cannot be opened.
	ErrUnreadableFile = "NetCDF file could not be read. Please ensure it's a valid NetCDF format."

	defaultFeatureLimit = 5000
)

// TilesetPublisher creates and publishes remote tilesets from a stored upload.
type TilesetPublisher interface {
	CreateVectorTileset(ctx context.Context, filePath, tilesetID string) mapbox.TilesetResult
	CreateRasterTileset(ctx context.Context, filePath, tilesetID string) mapbox.TilesetResult
}

// MapboxPublisher adapts the Mapbox client to TilesetPublisher by converting
// NetCDF grids into point features for the vector path.
type MapboxPublisher struct {
	client       *mapbox.Client
	opener       geodata.Opener
	featureLimit int
}

func NewMapboxPublisher(client *mapbox.Client, opener geodata.Opener, featureLimit int) *MapboxPublisher {
	if featureLimit <= 0 {
		featureLimit = defaultFeatureLimit
	}
	return &MapboxPublisher{client: client, opener: opener, featureLimit: featureLimit}
}

func (p *MapboxPublisher) CreateVectorTileset(ctx context.Context, filePath, tilesetID string) mapbox.TilesetResult {
	features, err := LoadFeatures(p.opener, filePath, p.featureLimit)
	if err != nil {
		return mapbox.TilesetResult{Error: pkgerrors.MessageOf(err)}
	}
	return p.client.CreateVectorTileset(ctx, features, tilesetID)
}

func (p *MapboxPublisher) CreateRasterTileset(ctx context.Context, filePath, tilesetID string) mapbox.TilesetResult {
	return p.client.CreateRasterTileset(ctx, filePath, tilesetID)
}

// LoadFeatures opens path and samples its grid into GeoJSON point features.
func LoadFeatures(opener geodata.Opener, path string, limit int) ([]mapbox.Feature, error) {
	ds, err := opener.Open(path)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeExtraction, err, ErrUnreadableFile)
	}
	defer func() { _ = ds.Close() }()

	samples, err := geodata.Features(ds, limit)
	if err != nil {
		return nil, err
	}
	out := make([]mapbox.Feature, 0, len(samples))
	for _, s := range samples {
		out = append(out, mapbox.NewPointFeature(s.ID, s.Lon, s.Lat, s.Properties))
	}
	return out, nil
}
