package routes

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/wxviz-backend/api/controllers"
	"github.com/angelmondragon/wxviz-backend/internal/files"
	"github.com/angelmondragon/wxviz-backend/internal/state"
	"github.com/angelmondragon/wxviz-backend/internal/visualizations"
	"github.com/angelmondragon/wxviz-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/wxviz-backend/pkg/errors"
	"github.com/angelmondragon/wxviz-backend/pkg/logger"
	"github.com/angelmondragon/wxviz-backend/pkg/metrics"
)

type stubState struct {
	counts state.Counts
}

func (s stubState) Counts() state.Counts { return s.counts }

func (stubState) BatchStatus(batchID string) (state.Batch, error) {
	if batchID == "b1" {
		return state.Batch{BatchID: "b1", TotalFiles: 2}, nil
	}
	return state.Batch{}, pkgerrors.New(pkgerrors.CodeNotFound, "batch not found")
}

type stubFiles struct {
	controllers.FileService
	lastParams files.ListParams
}

func (s *stubFiles) List(_ context.Context, p files.ListParams) (*files.ListResult, error) {
	s.lastParams = p
	return &files.ListResult{Success: true, Files: []files.File{}}, nil
}

func (s *stubFiles) Details(jobID string) (*files.Details, error) {
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, files.ErrFileNotFound)
}

type stubVisualizations struct {
	controllers.VisualizationService
}

func (stubVisualizations) Active() visualizations.Active {
	return visualizations.Active{Single: []visualizations.Summary{}}
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

func testConfig() *config.Config {
	return &config.Config{
		App:    config.AppConfig{Env: "dev"},
		Upload: config.UploadConfig{MaxFileMB: 1, MaxBatchSize: 2},
		Mapbox: config.MapboxConfig{Token: "tok", Username: "wxuser"},
	}
}

type testRouter struct {
	handler http.Handler
	files   *stubFiles
	reg     *prometheus.Registry
}

func newTestRouter(cfg *config.Config, cache controllers.Pinger) testRouter {
	reg := prometheus.NewRegistry()
	fs := &stubFiles{}
	h := NewRouter(cfg, logger.New(logger.Options{ServiceName: "test", Output: io.Discard}), Deps{
		State:          stubState{counts: state.Counts{Visualizations: 3, Sessions: 1}},
		Files:          fs,
		Visualizations: stubVisualizations{},
		Cache:          cache,
		Gatherer:       reg,
		HTTPMetrics:    metrics.NewHTTPMetrics(reg),
	})
	return testRouter{handler: h, files: fs, reg: reg}
}

func serve(h http.Handler, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	return resp
}

func TestHealthLive(t *testing.T) {
	tr := newTestRouter(testConfig(), nil)
	resp := serve(tr.handler, http.MethodGet, "/health/live")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if got := resp.Header().Get("X-WXViz-Env"); got != "dev" {
		t.Fatalf("expected env header dev got %q", got)
	}
	if resp.Header().Get("X-Request-Id") == "" {
		t.Fatalf("expected request id header")
	}
}

func TestHealthReadyReportsCounts(t *testing.T) {
	tr := newTestRouter(testConfig(), nil)
	resp := serve(tr.handler, http.MethodGet, "/health/ready")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	body := resp.Body.String()
	for _, want := range []string{`"mapbox_configured":true`, `"active_jobs":3`, `"active_sessions":1`} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %s in %s", want, body)
		}
	}
}

func TestHealthReadyFailsWhenCacheDown(t *testing.T) {
	tr := newTestRouter(testConfig(), failingPinger{})
	resp := serve(tr.handler, http.MethodGet, "/health/ready")
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", resp.Code)
	}
}

func TestBatchStatusRoutes(t *testing.T) {
	tr := newTestRouter(testConfig(), nil)
	if resp := serve(tr.handler, http.MethodGet, "/api/v1/batches/b1"); resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	resp := serve(tr.handler, http.MethodGet, "/api/v1/batches/missing")
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "Batch not found") {
		t.Fatalf("unexpected body %s", resp.Body.String())
	}
}

func TestListFilesAppliesDefaults(t *testing.T) {
	tr := newTestRouter(testConfig(), nil)
	resp := serve(tr.handler, http.MethodGet, "/api/v1/files?search=gfs")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	p := tr.files.lastParams
	if p.Search != "gfs" || p.SortBy != files.SortByUploadDate || p.SortOrder != "desc" {
		t.Fatalf("unexpected params %+v", p)
	}
}

func TestListFilesRejectsUnknownSort(t *testing.T) {
	tr := newTestRouter(testConfig(), nil)
	resp := serve(tr.handler, http.MethodGet, "/api/v1/files?sort_by=color")
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestFileDetailsNotFound(t *testing.T) {
	tr := newTestRouter(testConfig(), nil)
	resp := serve(tr.handler, http.MethodGet, "/api/v1/files/20240101000000-deadbeef")
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}

func TestActiveVisualizations(t *testing.T) {
	tr := newTestRouter(testConfig(), nil)
	resp := serve(tr.handler, http.MethodGet, "/api/v1/visualizations")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "single_visualizations") {
		t.Fatalf("unexpected body %s", resp.Body.String())
	}
}

func TestMetricsExposesRoutePatterns(t *testing.T) {
	tr := newTestRouter(testConfig(), nil)
	serve(tr.handler, http.MethodGet, "/api/v1/batches/b1")

	resp := serve(tr.handler, http.MethodGet, "/metrics")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `route="/api/v1/batches/{batchId}`) {
		t.Fatalf("expected route pattern label in metrics output:\n%s", body)
	}
}

func TestCORSPreflight(t *testing.T) {
	tr := newTestRouter(testConfig(), nil)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/files", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	resp := httptest.NewRecorder()
	tr.handler.ServeHTTP(resp, req)

	if got := resp.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Fatalf("expected allowed origin got %q", got)
	}
}

func TestUnknownRoute(t *testing.T) {
	tr := newTestRouter(testConfig(), nil)
	if resp := serve(tr.handler, http.MethodGet, "/api/v1/nope"); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}
