package mapbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/wxviz-backend/pkg/errors"
)

const (
	FormatVector      = "vector"
	FormatRasterArray = "raster-array"

	VectorSourceLayer = "weather_data"
	RasterSourceLayer = "10winds"

	vectorMaxZoom = 10
	rasterMaxZoom = 6
)

// TilesetResult is the outcome of one create-and-publish attempt.
type TilesetResult struct {
	Success          bool   `json:"success"`
	TilesetID        string `json:"tileset_id,omitempty"`
	SourceLayer      string `json:"source_layer,omitempty"`
	RecipeID         string `json:"recipe_id,omitempty"`
	PublishJobID     string `json:"publish_job_id,omitempty"`
	Format           string `json:"format,omitempty"`
	Error            string `json:"error,omitempty"`
	ErrorCode        int    `json:"error_code,omitempty"`
	FallbackToVector bool   `json:"fallback_to_vector,omitempty"`
}

// TilesetStatus mirrors the MTS status payload.
type TilesetStatus struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	LatestJob string `json:"latest_job"`
}

type sourceResponse struct {
	ID         string `json:"id"`
	Files      int    `json:"files"`
	SourceSize int64  `json:"source_size"`
}

type publishResponse struct {
	Message string `json:"message"`
	JobID   string `json:"jobId"`
}

// FullTilesetID qualifies a bare tileset name with the account username.
func (c *Client) FullTilesetID(name string) string {
	if strings.Contains(name, ".") {
		return name
	}
	return c.username + "." + name
}

// CreateRasterTileset uploads a NetCDF file as a raster-array source and publishes it.
func (c *Client) CreateRasterTileset(ctx context.Context, filePath, tilesetID string) TilesetResult {
	fh, err := os.Open(filePath)
	if err != nil {
		return TilesetResult{Error: err.Error()}
	}
	defer func() { _ = fh.Close() }()

	sourceURI, err := c.UploadSource(ctx, tilesetID, filepath.Base(filePath), fh)
	if err != nil {
		return rasterFailure(err)
	}

	recipe := map[string]any{
		"version": 1,
		"type":    "rasterarray",
		"sources": []map[string]string{{"uri": sourceURI}},
		"minzoom": 0,
		"maxzoom": rasterMaxZoom,
		"layers": map[string]any{
			RasterSourceLayer: map[string]any{
				"tilesize":   256,
				"resampling": "bilinear",
				"buffer":     1,
				"units":      "m/s",
			},
		},
	}
	return c.createAndPublish(ctx, tilesetID, recipe, RasterSourceLayer, FormatRasterArray, sourceURI, true)
}

// CreateVectorTileset uploads point features as line-delimited GeoJSON and publishes them.
func (c *Client) CreateVectorTileset(ctx context.Context, features []Feature, tilesetID string) TilesetResult {
	if len(features) == 0 {
		return TilesetResult{Error: "No features to upload"}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, f := range features {
		if err := enc.Encode(f); err != nil {
			return TilesetResult{Error: err.Error()}
		}
	}

	sourceURI, err := c.UploadSource(ctx, tilesetID, tilesetID+".geojson.ld", &buf)
	if err != nil {
		return vectorFailure(err)
	}

	recipe := map[string]any{
		"version": 1,
		"layers": map[string]any{
			VectorSourceLayer: map[string]any{
				"source":  sourceURI,
				"minzoom": 0,
				"maxzoom": vectorMaxZoom,
			},
		},
	}
	return c.createAndPublish(ctx, tilesetID, recipe, VectorSourceLayer, FormatVector, sourceURI, false)
}

func (c *Client) createAndPublish(ctx context.Context, tilesetID string, recipe map[string]any, layer, format, sourceURI string, raster bool) TilesetResult {
	fail := vectorFailure
	if raster {
		fail = rasterFailure
	}
	fullID := c.FullTilesetID(tilesetID)
	if err := c.CreateTileset(ctx, fullID, recipe, "Weather "+tilesetID); err != nil {
		return fail(err)
	}
	jobID, err := c.PublishTileset(ctx, fullID)
	if err != nil {
		return fail(err)
	}
	return TilesetResult{
		Success:      true,
		TilesetID:    fullID,
		SourceLayer:  layer,
		RecipeID:     sourceURI,
		PublishJobID: jobID,
		Format:       format,
	}
}

// Capability limitations on the account surface as 402 or 422 on raster uploads.
func rasterFailure(err error) TilesetResult {
	code := StatusCodeOf(err)
	return TilesetResult{
		Error:            MessageOf(err),
		ErrorCode:        code,
		FallbackToVector: code == http.StatusPaymentRequired || code == http.StatusUnprocessableEntity,
	}
}

func vectorFailure(err error) TilesetResult {
	return TilesetResult{Error: MessageOf(err), ErrorCode: StatusCodeOf(err)}
}

// UploadSource replaces the tileset source sourceID with content and returns its mapbox:// uri.
func (c *Client) UploadSource(ctx context.Context, sourceID, filename string, content io.Reader) (string, error) {
	if c == nil {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "mapbox client not configured")
	}
	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)
	go func() {
		part, err := writer.CreateFormFile("file", filename)
		if err == nil {
			_, err = io.Copy(part, content)
		}
		if err == nil {
			err = writer.Close()
		}
		_ = pw.CloseWithError(err)
	}()

	path := fmt.Sprintf("tilesets/v1/sources/%s/%s", url.PathEscape(c.username), url.PathEscape(sourceID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.endpoint(path, nil), pr)
	if err != nil {
		_ = pr.Close()
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build source upload request")
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var out sourceResponse
	if err := c.do(req, &out); err != nil {
		_ = pr.Close()
		return "", err
	}
	if out.ID == "" {
		out.ID = fmt.Sprintf("mapbox://tileset-source/%s/%s", c.username, sourceID)
	}
	return out.ID, nil
}

// CreateTileset registers a tileset with the given recipe.
func (c *Client) CreateTileset(ctx context.Context, tilesetID string, recipe map[string]any, name string) error {
	payload := map[string]any{
		"recipe":      recipe,
		"name":        name,
		"description": "Created " + time.Now().UTC().Format(time.RFC3339),
	}
	return c.doJSON(ctx, http.MethodPost, "tilesets/v1/"+url.PathEscape(tilesetID), nil, payload, nil)
}

// PublishTileset starts an MTS publish job and returns its id.
func (c *Client) PublishTileset(ctx context.Context, tilesetID string) (string, error) {
	var out publishResponse
	if err := c.doJSON(ctx, http.MethodPost, "tilesets/v1/"+url.PathEscape(tilesetID)+"/publish", nil, nil, &out); err != nil {
		return "", err
	}
	return out.JobID, nil
}

// TilesetStatus returns the processing state of a tileset.
func (c *Client) TilesetStatus(ctx context.Context, tilesetID string) (*TilesetStatus, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "mapbox client not configured")
	}
	var out TilesetStatus
	if err := c.doJSON(ctx, http.MethodGet, "tilesets/v1/"+url.PathEscape(c.FullTilesetID(tilesetID))+"/status", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TilesetFormat inspects the TileJSON of a tileset and reports vector or raster-array.
func (c *Client) TilesetFormat(ctx context.Context, tilesetID string) (string, error) {
	if c == nil {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "mapbox client not configured")
	}
	var out struct {
		Format       string            `json:"format"`
		RasterLayers []json.RawMessage `json:"raster_layers"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "v4/"+url.PathEscape(c.FullTilesetID(tilesetID))+".json", nil, nil, &out); err != nil {
		return "", err
	}
	if out.Format == "mrt" || len(out.RasterLayers) > 0 {
		return FormatRasterArray, nil
	}
	return FormatVector, nil
}
