package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/wxviz-backend/internal/datasets"
	"github.com/angelmondragon/wxviz-backend/internal/files"
	"github.com/angelmondragon/wxviz-backend/internal/geodata"
	"github.com/angelmondragon/wxviz-backend/internal/ingest"
	"github.com/angelmondragon/wxviz-backend/internal/state"
	"github.com/angelmondragon/wxviz-backend/internal/visualizations"
	"github.com/angelmondragon/wxviz-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/wxviz-backend/pkg/errors"
	"github.com/angelmondragon/wxviz-backend/pkg/mapbox"
)

var testLimits = UploadLimits{MaxFileBytes: 1 << 20, MaxBatchSize: 3}

type stubUploads struct {
	single     ingest.Upload
	singleBody string
	opts       ingest.Options
	batch      []string
	batchOpts  ingest.BatchOptions
	reprocess  enums.VisualizationType
	err        error
}

func (s *stubUploads) Ingest(_ context.Context, up ingest.Upload, opts ingest.Options) (*ingest.FileResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	body, _ := io.ReadAll(up.Content)
	s.single, s.singleBody, s.opts = up, string(body), opts
	return &ingest.FileResult{JobID: "20240101000000-deadbeef", Filename: up.Filename, Success: true, Status: enums.ProcessingStatusProcessing}, nil
}

func (s *stubUploads) IngestBatch(_ context.Context, uploads []ingest.Upload, opts ingest.BatchOptions) (*state.Batch, error) {
	for _, up := range uploads {
		s.batch = append(s.batch, up.Filename)
	}
	s.batchOpts = opts
	return &state.Batch{BatchID: "batch-1", TotalFiles: len(uploads), Status: enums.BatchStatusProcessing}, nil
}

func (s *stubUploads) Reprocess(_ context.Context, jobID string, vizType enums.VisualizationType) (*ingest.FileResult, error) {
	s.reprocess = vizType
	return &ingest.FileResult{JobID: jobID, Success: true}, nil
}

type formFileSpec struct {
	field, name, body string
}

func multipartRequest(t *testing.T, target string, fields map[string]string, parts ...formFileSpec) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	for _, p := range parts {
		fw, err := mw.CreateFormFile(p.field, p.name)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := io.WriteString(fw, p.body); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	envelope := struct {
		Data any `json:"data"`
	}{Data: dest}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestUploadFileSuccess(t *testing.T) {
	svc := &stubUploads{}
	req := multipartRequest(t, "/api/v1/uploads",
		map[string]string{"create_tileset": "false", "tileset_name": "gfs_run", "visualization_type": "raster-array"},
		formFileSpec{field: "file", name: "gfs.nc", body: "CDF\x01data"},
	)
	rec := httptest.NewRecorder()

	UploadFile(svc, testLimits, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.single.Filename != "gfs.nc" || svc.singleBody != "CDF\x01data" {
		t.Fatalf("unexpected upload %+v body %q", svc.single, svc.singleBody)
	}
	if svc.opts.CreateTileset || svc.opts.TilesetName != "gfs_run" || svc.opts.VisualizationType != enums.VisualizationTypeRasterArray {
		t.Fatalf("unexpected options %+v", svc.opts)
	}
	var res ingest.FileResult
	decodeData(t, rec, &res)
	if res.JobID != "20240101000000-deadbeef" {
		t.Fatalf("unexpected job id %q", res.JobID)
	}
}

func TestUploadFileDefaultsCreateTileset(t *testing.T) {
	svc := &stubUploads{}
	req := multipartRequest(t, "/api/v1/uploads", nil, formFileSpec{field: "file", name: "gfs.nc", body: "x"})
	rec := httptest.NewRecorder()

	UploadFile(svc, testLimits, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if !svc.opts.CreateTileset {
		t.Fatalf("expected create_tileset to default to true")
	}
}

func TestUploadFileMissingFile(t *testing.T) {
	req := multipartRequest(t, "/api/v1/uploads", map[string]string{"tileset_name": "x"})
	rec := httptest.NewRecorder()

	UploadFile(&stubUploads{}, testLimits, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestUploadFileSurfacesServiceError(t *testing.T) {
	svc := &stubUploads{err: pkgerrors.New(pkgerrors.CodeValidation, "Only NetCDF (.nc) files are allowed")}
	req := multipartRequest(t, "/api/v1/uploads", nil, formFileSpec{field: "file", name: "gfs.txt", body: "x"})
	rec := httptest.NewRecorder()

	UploadFile(svc, testLimits, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Only NetCDF") {
		t.Fatalf("expected message in body, got %s", rec.Body.String())
	}
}

func TestUploadBatch(t *testing.T) {
	svc := &stubUploads{}
	req := multipartRequest(t, "/api/v1/uploads/batch",
		map[string]string{"tileset_names": "a,b"},
		formFileSpec{field: "files", name: "a.nc", body: "1"},
		formFileSpec{field: "files", name: "b.nc", body: "2"},
	)
	rec := httptest.NewRecorder()

	UploadBatch(svc, testLimits, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	if len(svc.batch) != 2 || svc.batch[0] != "a.nc" || svc.batch[1] != "b.nc" {
		t.Fatalf("unexpected batch files %v", svc.batch)
	}
	if svc.batchOpts.TilesetNames != "a,b" || !svc.batchOpts.CreateTileset {
		t.Fatalf("unexpected batch options %+v", svc.batchOpts)
	}
	var batch state.Batch
	decodeData(t, rec, &batch)
	if batch.BatchID != "batch-1" || batch.TotalFiles != 2 {
		t.Fatalf("unexpected batch %+v", batch)
	}
}

func TestUploadBatchWithoutFiles(t *testing.T) {
	req := multipartRequest(t, "/api/v1/uploads/batch", map[string]string{"create_tileset": "true"})
	rec := httptest.NewRecorder()

	UploadBatch(&stubUploads{}, testLimits, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestReprocessFilePassesVisualizationType(t *testing.T) {
	svc := &stubUploads{}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/files/job-1/reprocess?visualization_type=client-side", nil)
	req = withURLParam(req, "fileId", "job-1")
	rec := httptest.NewRecorder()

	ReprocessFile(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if svc.reprocess != enums.VisualizationTypeClientSide {
		t.Fatalf("unexpected visualization type %q", svc.reprocess)
	}
}

type stubFiles struct {
	FileService
	deleted  []string
	download *files.Download
}

func (s *stubFiles) DeleteMany(_ context.Context, ids []string) *files.DeleteManyResult {
	s.deleted = ids
	return &files.DeleteManyResult{Success: true, Deleted: ids, Errors: []files.DeleteError{}}
}

func (s *stubFiles) Delete(_ context.Context, id string) error {
	if id != "job-1" {
		return pkgerrors.New(pkgerrors.CodeNotFound, files.ErrFileNotFound)
	}
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *stubFiles) Download(string) (*files.Download, error) {
	if s.download == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, files.ErrFileMissing)
	}
	return s.download, nil
}

func TestDeleteFilesDecodesBody(t *testing.T) {
	svc := &stubFiles{}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/files/delete-batch", strings.NewReader(`{"file_ids":["a","b"]}`))
	rec := httptest.NewRecorder()

	DeleteFiles(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if len(svc.deleted) != 2 {
		t.Fatalf("unexpected deleted ids %v", svc.deleted)
	}
}

func TestDeleteFilesRejectsEmptyList(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/files/delete-batch", strings.NewReader(`{"file_ids":[]}`))
	rec := httptest.NewRecorder()

	DeleteFiles(&stubFiles{}, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestDeleteFile(t *testing.T) {
	svc := &stubFiles{}
	req := withURLParam(httptest.NewRequest(http.MethodDelete, "/api/v1/files/job-1", nil), "fileId", "job-1")
	rec := httptest.NewRecorder()

	DeleteFile(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	var res deleteResponse
	decodeData(t, rec, &res)
	if !res.Success || res.FileID != "job-1" {
		t.Fatalf("unexpected response %+v", res)
	}

	req = withURLParam(httptest.NewRequest(http.MethodDelete, "/api/v1/files/nope", nil), "fileId", "nope")
	rec = httptest.NewRecorder()
	DeleteFile(svc, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rec.Code)
	}
}

func TestDownloadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "job-1_gfs.nc")
	if err := os.WriteFile(path, []byte("CDF\x01"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	svc := &stubFiles{download: &files.Download{Path: path, Filename: "gfs.nc", ContentType: files.ContentTypeNetCDF}}
	req := withURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/files/job-1/download", nil), "fileId", "job-1")
	rec := httptest.NewRecorder()

	DownloadFile(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Disposition"); !strings.Contains(got, "gfs.nc") {
		t.Fatalf("unexpected disposition %q", got)
	}
	if rec.Body.String() != "CDF\x01" {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
}

func TestDownloadFileMissingOnDisk(t *testing.T) {
	req := withURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/files/job-1/download", nil), "fileId", "job-1")
	rec := httptest.NewRecorder()

	DownloadFile(&stubFiles{}, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), files.ErrFileMissing) {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
}

type stubVisualizations struct {
	VisualizationService
	loaded string
}

func (s *stubVisualizations) WindData(_ context.Context, sessionID string) (*visualizations.WindData, error) {
	if sessionID != "s1" {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, visualizations.ErrSessionNotFound)
	}
	return &visualizations.WindData{Success: true, Grid: &geodata.Grid{}}, nil
}

func (s *stubVisualizations) LoadTileset(_ context.Context, id string) (*visualizations.TilesetConfig, error) {
	s.loaded = id
	return &visualizations.TilesetConfig{Success: true, TilesetID: id, Type: visualizations.TilesetTypeUser}, nil
}

func (s *stubVisualizations) TilesetStatus(context.Context, string) (*visualizations.TilesetStatus, error) {
	return nil, pkgerrors.New(pkgerrors.CodeDependency, "Mapbox token not configured")
}

func TestSessionWindData(t *testing.T) {
	svc := &stubVisualizations{}
	req := withURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/sessions/s1/wind-data", nil), "sessionId", "s1")
	rec := httptest.NewRecorder()
	SessionWindData(svc, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}

	req = withURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/sessions/s2/wind-data", nil), "sessionId", "s2")
	rec = httptest.NewRecorder()
	SessionWindData(svc, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rec.Code)
	}
}

func TestLoadTileset(t *testing.T) {
	svc := &stubVisualizations{}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tilesets/load", strings.NewReader(`{"tileset_id":"wxuser.gfs_run"}`))
	rec := httptest.NewRecorder()

	LoadTileset(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if svc.loaded != "wxuser.gfs_run" {
		t.Fatalf("unexpected tileset %q", svc.loaded)
	}
}

func TestLoadTilesetRequiresID(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tilesets/load", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()

	LoadTileset(&stubVisualizations{}, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestTilesetStatusWithoutToken(t *testing.T) {
	req := withURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/tilesets/x/status", nil), "tilesetId", "x")
	rec := httptest.NewRecorder()

	TilesetStatus(&stubVisualizations{}, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", rec.Code)
	}
}

type stubDatasets struct {
	DatasetService
	name    string
	batchID string
}

func (s *stubDatasets) Upload(_ context.Context, up ingest.Upload, opts datasets.UploadOptions) (*datasets.UploadResult, error) {
	s.name = opts.Name
	s.batchID = opts.BatchID
	return &datasets.UploadResult{Success: true, JobID: "job-9", Message: "File uploaded. Creating dataset...", Status: enums.ProcessingStatusProcessing}, nil
}

func (s *stubDatasets) Info(_ context.Context, id string) (*mapbox.Dataset, error) {
	return &mapbox.Dataset{ID: id, Name: "wind"}, nil
}

func TestUploadDatasetAccepted(t *testing.T) {
	svc := &stubDatasets{}
	req := multipartRequest(t, "/api/v1/datasets/uploads",
		map[string]string{"dataset_name": "winds", "batch_id": "20240501000000-feed0001"},
		formFileSpec{field: "file", name: "gfs.nc", body: "x"},
	)
	rec := httptest.NewRecorder()

	UploadDataset(svc, testLimits, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202 got %d", rec.Code)
	}
	if svc.name != "winds" {
		t.Fatalf("unexpected dataset name %q", svc.name)
	}
	if svc.batchID != "20240501000000-feed0001" {
		t.Fatalf("unexpected batch id %q", svc.batchID)
	}
}

func TestDatasetInfo(t *testing.T) {
	req := withURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/datasets/ds1", nil), "datasetId", "ds1")
	rec := httptest.NewRecorder()

	DatasetInfo(&stubDatasets{}, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	var ds mapbox.Dataset
	decodeData(t, rec, &ds)
	if ds.ID != "ds1" {
		t.Fatalf("unexpected dataset %+v", ds)
	}
}
