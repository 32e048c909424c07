package mapbox

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	pkgerrors "github.com/angelmondragon/wxviz-backend/pkg/errors"
)

type recordedCall struct {
	method string
	path   string
	token  string
	body   string
}

type fakeAPI struct {
	mu       sync.Mutex
	calls    []recordedCall
	handlers map[string]func(body string) (int, string)
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{handlers: map[string]func(string) (int, string){}}
}

func (f *fakeAPI) on(method, path string, status int, body string) {
	f.handlers[method+" "+path] = func(string) (int, string) { return status, body }
}

func (f *fakeAPI) client(t *testing.T) *Client {
	t.Helper()
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		var raw []byte
		if req.Body != nil {
			raw, _ = io.ReadAll(req.Body)
		}
		f.mu.Lock()
		f.calls = append(f.calls, recordedCall{
			method: req.Method,
			path:   req.URL.Path,
			token:  req.URL.Query().Get("access_token"),
			body:   string(raw),
		})
		handler, ok := f.handlers[req.Method+" "+req.URL.Path]
		f.mu.Unlock()
		status, body := http.StatusNotFound, `{"message":"Not Found"}`
		if ok {
			status, body = handler(string(raw))
		}
		return &http.Response{
			StatusCode: status,
			Body:       io.NopCloser(strings.NewReader(body)),
			Header:     http.Header{},
		}, nil
	})
	client, err := NewClient("sk.test", "me", WithBaseURL("http://mapbox.test"), WithHTTPClient(&http.Client{Transport: rt}))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestNewClientRequiresCredentials(t *testing.T) {
	if _, err := NewClient("", "me"); err == nil {
		t.Fatalf("expected token error")
	}
	if _, err := NewClient("sk", " "); err == nil {
		t.Fatalf("expected username error")
	}
}

func TestCreateVectorTilesetPublishes(t *testing.T) {
	api := newFakeAPI()
	api.on(http.MethodPut, "/tilesets/v1/sources/me/wx_test", http.StatusOK, `{"id":"mapbox://tileset-source/me/wx_test","files":1}`)
	api.on(http.MethodPost, "/tilesets/v1/me.wx_test", http.StatusOK, `{"message":"ok"}`)
	api.on(http.MethodPost, "/tilesets/v1/me.wx_test/publish", http.StatusOK, `{"message":"Processing","jobId":"job-42"}`)
	client := api.client(t)

	features := []Feature{
		NewPointFeature("a", 10, 20, map[string]any{"temp": 280.5}),
		NewPointFeature("b", 11, 21, nil),
	}
	result := client.CreateVectorTileset(context.Background(), features, "wx_test")
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if result.TilesetID != "me.wx_test" || result.SourceLayer != VectorSourceLayer || result.PublishJobID != "job-42" {
		t.Fatalf("unexpected result %+v", result)
	}
	if result.Format != FormatVector {
		t.Fatalf("unexpected format %q", result.Format)
	}
	if len(api.calls) != 3 {
		t.Fatalf("expected 3 calls, got %d", len(api.calls))
	}
	if api.calls[0].token != "sk.test" {
		t.Fatalf("access token not forwarded")
	}
	if !strings.Contains(api.calls[0].body, `"temp":280.5`) {
		t.Fatalf("expected line-delimited features in upload body")
	}
	var createBody map[string]any
	if err := json.Unmarshal([]byte(api.calls[1].body), &createBody); err != nil {
		t.Fatalf("decode create body: %v", err)
	}
	recipe := createBody["recipe"].(map[string]any)
	if _, ok := recipe["layers"].(map[string]any)[VectorSourceLayer]; !ok {
		t.Fatalf("recipe missing vector layer: %v", recipe)
	}
}

func TestCreateVectorTilesetWithoutFeatures(t *testing.T) {
	client := newFakeAPI().client(t)
	result := client.CreateVectorTileset(context.Background(), nil, "wx_empty")
	if result.Success || result.Error == "" {
		t.Fatalf("expected failure without features, got %+v", result)
	}
}

func TestCreateRasterTilesetTierLimitationFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "winds.nc")
	if err := os.WriteFile(path, []byte("CDF\x01"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	api := newFakeAPI()
	api.on(http.MethodPut, "/tilesets/v1/sources/me/wx_winds", http.StatusOK, `{"id":"mapbox://tileset-source/me/wx_winds"}`)
	api.on(http.MethodPost, "/tilesets/v1/me.wx_winds", http.StatusUnprocessableEntity, `{"message":"Raster array tilesets require a paid plan"}`)
	client := api.client(t)

	result := client.CreateRasterTileset(context.Background(), path, "wx_winds")
	if result.Success {
		t.Fatalf("expected failure")
	}
	if !result.FallbackToVector || result.ErrorCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected fallback classification, got %+v", result)
	}
	if result.Error != "Raster array tilesets require a paid plan" {
		t.Fatalf("remote message should be verbatim, got %q", result.Error)
	}
}

func TestCreateRasterTilesetOtherFailureIsTerminal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "winds.nc")
	if err := os.WriteFile(path, []byte("CDF\x01"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	api := newFakeAPI()
	api.on(http.MethodPut, "/tilesets/v1/sources/me/wx_winds", http.StatusUnauthorized, `{"message":"Not Authorized - Invalid Token"}`)
	client := api.client(t)

	result := client.CreateRasterTileset(context.Background(), path, "wx_winds")
	if result.Success || result.FallbackToVector {
		t.Fatalf("expected terminal failure, got %+v", result)
	}
	if result.ErrorCode != http.StatusUnauthorized {
		t.Fatalf("unexpected error code %d", result.ErrorCode)
	}
}

func TestCreateRasterTilesetMissingFile(t *testing.T) {
	client := newFakeAPI().client(t)
	result := client.CreateRasterTileset(context.Background(), filepath.Join(t.TempDir(), "missing.nc"), "wx")
	if result.Success || result.Error == "" {
		t.Fatalf("expected failure for missing file, got %+v", result)
	}
}

func TestTilesetFormat(t *testing.T) {
	api := newFakeAPI()
	api.on(http.MethodGet, "/v4/me.wx_raster.json", http.StatusOK, `{"format":"mrt"}`)
	api.on(http.MethodGet, "/v4/mapbox.gfs-winds.json", http.StatusOK, `{"format":"pbf","raster_layers":[{"fields":{}}]}`)
	api.on(http.MethodGet, "/v4/me.wx_vec.json", http.StatusOK, `{"format":"pbf"}`)
	client := api.client(t)

	cases := map[string]string{
		"wx_raster":        FormatRasterArray,
		"mapbox.gfs-winds": FormatRasterArray,
		"me.wx_vec":        FormatVector,
	}
	for id, want := range cases {
		got, err := client.TilesetFormat(context.Background(), id)
		if err != nil {
			t.Fatalf("%s: unexpected error %v", id, err)
		}
		if got != want {
			t.Fatalf("%s: expected %s got %s", id, want, got)
		}
	}
}

func TestTilesetStatus(t *testing.T) {
	api := newFakeAPI()
	api.on(http.MethodGet, "/tilesets/v1/me.wx_a/status", http.StatusOK, `{"id":"me.wx_a","status":"success","latest_job":"job-1"}`)
	client := api.client(t)

	status, err := client.TilesetStatus(context.Background(), "wx_a")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Status != "success" || status.LatestJob != "job-1" {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestCreateDatasetCountsAddedFeatures(t *testing.T) {
	api := newFakeAPI()
	api.on(http.MethodPost, "/datasets/v1/me", http.StatusOK, `{"id":"ds1","name":"Weather Data - gfs"}`)
	api.on(http.MethodPut, "/datasets/v1/me/ds1/features/f0", http.StatusOK, `{}`)
	api.on(http.MethodPut, "/datasets/v1/me/ds1/features/f1", http.StatusUnprocessableEntity, `{"message":"bad geometry"}`)
	client := api.client(t)

	features := []Feature{NewPointFeature("", 1, 2, nil), NewPointFeature("", 3, 4, nil)}
	result := client.CreateDataset(context.Background(), "Weather Data - gfs", features)
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if result.TotalFeatures != 2 || result.FeaturesAdded != 1 {
		t.Fatalf("unexpected counts %+v", result)
	}
	if result.DatasetURL != DatasetURL("ds1") {
		t.Fatalf("unexpected url %q", result.DatasetURL)
	}
}

func TestDeleteDatasetNotFound(t *testing.T) {
	client := newFakeAPI().client(t)
	err := client.DeleteDataset(context.Background(), "missing")
	if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListDatasets(t *testing.T) {
	api := newFakeAPI()
	api.on(http.MethodGet, "/datasets/v1/me", http.StatusOK, `[{"id":"a","name":"wind"},{"id":"b","name":"roads"}]`)
	client := api.client(t)

	out, err := client.ListDatasets(context.Background(), 100)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(out) != 2 || out[0].Name != "wind" {
		t.Fatalf("unexpected datasets %+v", out)
	}
}

func TestMessageOfAndStatusCode(t *testing.T) {
	err := pkgerrors.Wrap(pkgerrors.CodeDependency, &APIError{StatusCode: 422, Message: "nope"}, "failed")
	if StatusCodeOf(err) != 422 {
		t.Fatalf("expected 422")
	}
	if MessageOf(err) != "nope" {
		t.Fatalf("expected remote message, got %q", MessageOf(err))
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}
