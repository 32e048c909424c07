package datasets

import (
	"context"

	"github.com/angelmondragon/wxviz-backend/internal/geodata"
	"github.com/angelmondragon/wxviz-backend/internal/publishing"
	pkgerrors "github.com/angelmondragon/wxviz-backend/pkg/errors"
	"github.com/angelmondragon/wxviz-backend/pkg/mapbox"
)

// Publisher is the remote side of the dataset pipeline.
type Publisher interface {
	CreateDataset(ctx context.Context, filePath, name string) mapbox.DatasetResult
	ListDatasets(ctx context.Context, limit int) ([]mapbox.Dataset, error)
	DatasetInfo(ctx context.Context, datasetID string) (*mapbox.Dataset, error)
	DeleteDataset(ctx context.Context, datasetID string) error
}

// MapboxPublisher turns a NetCDF grid into dataset features on Mapbox.
type MapboxPublisher struct {
	client       *mapbox.Client
	opener       geodata.Opener
	featureLimit int
}

func NewMapboxPublisher(client *mapbox.Client, opener geodata.Opener, featureLimit int) *MapboxPublisher {
	return &MapboxPublisher{client: client, opener: opener, featureLimit: featureLimit}
}

func (p *MapboxPublisher) CreateDataset(ctx context.Context, filePath, name string) mapbox.DatasetResult {
	features, err := publishing.LoadFeatures(p.opener, filePath, p.featureLimit)
	if err != nil {
		return mapbox.DatasetResult{Error: pkgerrors.MessageOf(err)}
	}
	return p.client.CreateDataset(ctx, name, features)
}

func (p *MapboxPublisher) ListDatasets(ctx context.Context, limit int) ([]mapbox.Dataset, error) {
	return p.client.ListDatasets(ctx, limit)
}

func (p *MapboxPublisher) DatasetInfo(ctx context.Context, datasetID string) (*mapbox.Dataset, error) {
	return p.client.DatasetInfo(ctx, datasetID)
}

func (p *MapboxPublisher) DeleteDataset(ctx context.Context, datasetID string) error {
	return p.client.DeleteDataset(ctx, datasetID)
}
