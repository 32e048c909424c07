package mapbox

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	pkgerrors "github.com/angelmondragon/wxviz-backend/pkg/errors"
)

// Dataset is a Mapbox dataset as returned by the Datasets API.
type Dataset struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Owner       string    `json:"owner,omitempty"`
	Created     string    `json:"created,omitempty"`
	Modified    string    `json:"modified,omitempty"`
	Features    int       `json:"features"`
	Size        int64     `json:"size"`
	Bounds      []float64 `json:"bounds,omitempty"`
}

// DatasetResult is the outcome of creating a dataset from features.
type DatasetResult struct {
	Success       bool   `json:"success"`
	DatasetID     string `json:"dataset_id,omitempty"`
	DatasetURL    string `json:"dataset_url,omitempty"`
	TotalFeatures int    `json:"total_features"`
	FeaturesAdded int    `json:"features_added"`
	Error         string `json:"error,omitempty"`
}

// DatasetURL is the studio link for a dataset.
func DatasetURL(datasetID string) string {
	return fmt.Sprintf("https://studio.mapbox.com/datasets/%s/", datasetID)
}

// CreateDataset creates an empty dataset and inserts every feature into it.
// Individual feature failures reduce FeaturesAdded without failing the result.
func (c *Client) CreateDataset(ctx context.Context, name string, features []Feature) DatasetResult {
	if c == nil {
		return DatasetResult{Error: "Mapbox token not configured"}
	}
	var created Dataset
	payload := map[string]string{
		"name":        name,
		"description": "Weather data imported from NetCDF",
	}
	if err := c.doJSON(ctx, http.MethodPost, c.datasetsPath(), nil, payload, &created); err != nil {
		return DatasetResult{Error: MessageOf(err)}
	}

	added := 0
	for i, feature := range features {
		if feature.ID == "" {
			feature.ID = "f" + strconv.Itoa(i)
		}
		if err := c.PutFeature(ctx, created.ID, feature); err != nil {
			continue
		}
		added++
	}

	return DatasetResult{
		Success:       true,
		DatasetID:     created.ID,
		DatasetURL:    DatasetURL(created.ID),
		TotalFeatures: len(features),
		FeaturesAdded: added,
	}
}

// PutFeature inserts or replaces one feature in a dataset.
func (c *Client) PutFeature(ctx context.Context, datasetID string, feature Feature) error {
	path := fmt.Sprintf("%s/%s/features/%s", c.datasetsPath(), url.PathEscape(datasetID), url.PathEscape(feature.ID))
	return c.doJSON(ctx, http.MethodPut, path, nil, feature, nil)
}

// ListDatasets returns up to limit datasets of the account.
func (c *Client) ListDatasets(ctx context.Context, limit int) ([]Dataset, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "mapbox client not configured")
	}
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var out []Dataset
	if err := c.doJSON(ctx, http.MethodGet, c.datasetsPath(), query, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DatasetInfo returns metadata for one dataset.
func (c *Client) DatasetInfo(ctx context.Context, datasetID string) (*Dataset, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "mapbox client not configured")
	}
	var out Dataset
	if err := c.doJSON(ctx, http.MethodGet, c.datasetsPath()+"/"+url.PathEscape(datasetID), nil, nil, &out); err != nil {
		if StatusCodeOf(err) == http.StatusNotFound {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "dataset not found")
		}
		return nil, err
	}
	return &out, nil
}

// DeleteDataset removes a dataset.
func (c *Client) DeleteDataset(ctx context.Context, datasetID string) error {
	if c == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "mapbox client not configured")
	}
	if err := c.doJSON(ctx, http.MethodDelete, c.datasetsPath()+"/"+url.PathEscape(datasetID), nil, nil, nil); err != nil {
		if StatusCodeOf(err) == http.StatusNotFound {
			return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "dataset not found")
		}
		return err
	}
	return nil
}

func (c *Client) datasetsPath() string {
	return "datasets/v1/" + url.PathEscape(c.username)
}
