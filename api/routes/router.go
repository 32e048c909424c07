package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/wxviz-backend/api/controllers"
	"github.com/angelmondragon/wxviz-backend/api/middleware"
	"github.com/angelmondragon/wxviz-backend/internal/state"
	"github.com/angelmondragon/wxviz-backend/pkg/config"
	"github.com/angelmondragon/wxviz-backend/pkg/logger"
	"github.com/angelmondragon/wxviz-backend/pkg/metrics"
)

type stateReader interface {
	controllers.BatchReader
	Counts() state.Counts
}

// Deps are the services behind the HTTP surface. Cache is nil when redis is
// disabled; Gatherer defaults to the global prometheus registry.
type Deps struct {
	State          stateReader
	Uploads        controllers.UploadService
	Files          controllers.FileService
	Visualizations controllers.VisualizationService
	Datasets       controllers.DatasetService
	Cache          controllers.Pinger
	Gatherer       prometheus.Gatherer
	HTTPMetrics    *metrics.HTTPMetrics
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Metrics(deps.HTTPMetrics),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	limits := controllers.UploadLimits{
		MaxFileBytes: cfg.Upload.MaxFileBytes(),
		MaxBatchSize: cfg.Upload.MaxBatchSize,
	}
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, deps.State, deps.Cache, logg))
	})
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/uploads", func(r chi.Router) {
			r.Post("/", controllers.UploadFile(deps.Uploads, limits, logg))
			r.Post("/batch", controllers.UploadBatch(deps.Uploads, limits, logg))
		})

		r.Route("/batches/{batchId}", func(r chi.Router) {
			r.Get("/", controllers.BatchStatus(deps.State, logg))
			r.Delete("/", controllers.DeleteBatch(deps.Files, logg))
		})

		r.Route("/files", func(r chi.Router) {
			r.Get("/", controllers.ListFiles(deps.Files, logg))
			r.Post("/delete-batch", controllers.DeleteFiles(deps.Files, logg))
			r.Route("/{fileId}", func(r chi.Router) {
				r.Get("/", controllers.FileDetails(deps.Files, logg))
				r.Delete("/", controllers.DeleteFile(deps.Files, logg))
				r.Get("/download", controllers.DownloadFile(deps.Files, logg))
				r.Post("/reprocess", controllers.ReprocessFile(deps.Uploads, logg))
			})
		})

		r.Route("/visualizations", func(r chi.Router) {
			r.Get("/", controllers.ActiveVisualizations(deps.Visualizations))
			r.Get("/{jobId}", controllers.VisualizationStatus(deps.Visualizations, logg))
			r.Delete("/{jobId}", controllers.DeleteVisualization(deps.Visualizations, logg))
		})

		r.Get("/sessions/{sessionId}/wind-data", controllers.SessionWindData(deps.Visualizations, logg))

		r.Route("/tilesets", func(r chi.Router) {
			r.Post("/load", controllers.LoadTileset(deps.Visualizations, logg))
			r.Get("/{tilesetId}/status", controllers.TilesetStatus(deps.Visualizations, logg))
		})

		r.Route("/datasets", func(r chi.Router) {
			r.Get("/", controllers.ListDatasets(deps.Datasets, logg))
			r.Post("/uploads", controllers.UploadDataset(deps.Datasets, limits, logg))
			r.Get("/jobs/{jobId}", controllers.DatasetJobStatus(deps.Datasets, logg))
			r.Get("/{datasetId}", controllers.DatasetInfo(deps.Datasets, logg))
			r.Delete("/{datasetId}", controllers.DeleteDataset(deps.Datasets, logg))
		})
	})

	return r
}
