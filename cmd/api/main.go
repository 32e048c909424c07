package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/wxviz-backend/api/controllers"
	"github.com/angelmondragon/wxviz-backend/api/routes"
	"github.com/angelmondragon/wxviz-backend/internal/datasets"
	"github.com/angelmondragon/wxviz-backend/internal/events"
	"github.com/angelmondragon/wxviz-backend/internal/files"
	"github.com/angelmondragon/wxviz-backend/internal/housekeeping"
	"github.com/angelmondragon/wxviz-backend/internal/ingest"
	"github.com/angelmondragon/wxviz-backend/internal/publishing"
	"github.com/angelmondragon/wxviz-backend/internal/recipes"
	"github.com/angelmondragon/wxviz-backend/internal/state"
	"github.com/angelmondragon/wxviz-backend/internal/visualizations"
	"github.com/angelmondragon/wxviz-backend/pkg/bigquery"
	"github.com/angelmondragon/wxviz-backend/pkg/config"
	"github.com/angelmondragon/wxviz-backend/pkg/logger"
	"github.com/angelmondragon/wxviz-backend/pkg/mapbox"
	"github.com/angelmondragon/wxviz-backend/pkg/metrics"
	"github.com/angelmondragon/wxviz-backend/pkg/pubsub"
	"github.com/angelmondragon/wxviz-backend/pkg/redis"
	"github.com/angelmondragon/wxviz-backend/pkg/storage/gcs"
)

const shutdownTimeout = 30 * time.Second

type archiveStore interface {
	UploadFile(ctx context.Context, object, path string) error
	Delete(ctx context.Context, object string) error
}

type eventPublisher interface {
	PublishEvent(ctx context.Context, data []byte, attrs map[string]string) (string, error)
}

type jobAuditor interface {
	InsertJobEvents(ctx context.Context, rows ...bigquery.JobEventRow) error
}

type formatCache interface {
	CachedTilesetFormat(ctx context.Context, tilesetID string) (string, bool, error)
	CacheTilesetFormat(ctx context.Context, tilesetID, format string, ttl time.Duration) error
}

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithField(ctx, "env", cfg.App.Env)

	for _, dir := range cfg.Storage.Dirs() {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logg.Error(ctx, "failed to create storage dir", err)
			os.Exit(1)
		}
	}

	// Optional backing services. Interfaces stay nil when a service is disabled.
	var (
		cache     formatCache
		pinger    controllers.Pinger
		lock      housekeeping.Lock
		archive   archiveStore
		publisher eventPublisher
		auditor   jobAuditor
	)

	if cfg.Redis.Enabled() {
		redisClient, err := redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			logg.Error(ctx, "failed to bootstrap redis", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
		cache, pinger = redisClient, redisClient
		redisLock, err := housekeeping.NewRedisLock(redisClient, redisClient.LockKey(housekeeping.LockName), cfg.Housekeeping.LockTTL)
		if err != nil {
			logg.Error(ctx, "failed to create housekeeping lock", err)
			os.Exit(1)
		}
		lock = redisLock
	}

	if cfg.GCS.ArchiveBucket != "" {
		gcsClient, err := gcs.NewClient(ctx, cfg.GCS, cfg.GCP, logg)
		if err != nil {
			logg.Error(ctx, "failed to bootstrap gcs archive", err)
			os.Exit(1)
		}
		defer func() {
			if err := gcsClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing gcs", err)
			}
		}()
		archive = gcsClient
	}

	if cfg.PubSub.EventsTopic != "" {
		pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			logg.Error(ctx, "failed to bootstrap pubsub", err)
			os.Exit(1)
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing pubsub", err)
			}
		}()
		publisher = pubsubClient
	}

	if cfg.BigQuery.Enabled() {
		bqClient, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
		if err != nil {
			logg.Error(ctx, "failed to bootstrap bigquery", err)
			os.Exit(1)
		}
		defer func() {
			if err := bqClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing bigquery", err)
			}
		}()
		auditor = bqClient
	}

	opener := ingest.NetCDFOpener
	var (
		tilesetPublisher publishing.TilesetPublisher
		datasetPublisher datasets.Publisher
		remote           *mapbox.Client
	)
	if cfg.Mapbox.Configured() {
		remote, err = mapbox.NewClient(cfg.Mapbox.Token, cfg.Mapbox.Username,
			mapbox.WithBaseURL(cfg.Mapbox.BaseURL),
			mapbox.WithTimeout(cfg.Mapbox.HTTPTimeout),
		)
		if err != nil {
			logg.Error(ctx, "failed to create mapbox client", err)
			os.Exit(1)
		}
		tilesetPublisher = publishing.NewMapboxPublisher(remote, opener, 0)
		datasetPublisher = datasets.NewMapboxPublisher(remote, opener, 0)
	} else {
		logg.Warn(ctx, "mapbox token or username missing, tilesets will not be published")
	}

	publishMetrics := metrics.NewPublishMetrics(prometheus.DefaultRegisterer)
	housekeepingMetrics := metrics.NewHousekeepingMetrics(prometheus.DefaultRegisterer)
	httpMetrics := metrics.NewHTTPMetrics(prometheus.DefaultRegisterer)

	st := state.NewManager(logg)
	recipeStore := recipes.NewStore(cfg.Storage.RecipeDir)
	emitter := events.NewEmitter(logg, publisher, auditor)
	pool := publishing.NewPool(cfg.Publishing.Workers, cfg.Publishing.QueueSize, logg, publishMetrics)

	orchestrator, err := publishing.NewOrchestrator(publishing.OrchestratorParams{
		Logger:     logg,
		State:      st,
		Publisher:  tilesetPublisher,
		Recipes:    recipeStore,
		Events:     emitter,
		Metrics:    publishMetrics,
		Configured: cfg.Mapbox.Configured(),
	})
	if err != nil {
		logg.Error(ctx, "failed to create orchestrator", err)
		os.Exit(1)
	}

	ingestParams := ingest.Params{
		Logger:           logg,
		State:            st,
		Opener:           opener,
		Publisher:        orchestrator,
		Pool:             pool,
		Events:           emitter,
		UploadDir:        cfg.Storage.UploadDir,
		MaxFileBytes:     cfg.Upload.MaxFileBytes(),
		MaxBatchSize:     cfg.Upload.MaxBatchSize,
		Archive:          archive,
		MapboxConfigured: cfg.Mapbox.Configured(),
	}
	ingestService, err := ingest.NewService(ingestParams)
	if err != nil {
		logg.Error(ctx, "failed to create ingest service", err)
		os.Exit(1)
	}

	cleaner, err := files.NewCleaner(logg, st, recipeStore, archive, emitter)
	if err != nil {
		logg.Error(ctx, "failed to create cleaner", err)
		os.Exit(1)
	}
	fileService, err := files.NewService(logg, st, cleaner, cfg.Storage.UploadDir)
	if err != nil {
		logg.Error(ctx, "failed to create file service", err)
		os.Exit(1)
	}

	vizParams := visualizations.Params{
		Logger:  logg,
		State:   st,
		Cleaner: cleaner,
		Opener:  opener,
		Cache:   cache,
		Recipes: recipeStore,
	}
	if remote != nil {
		vizParams.Remote = remote
	}
	vizService, err := visualizations.NewService(vizParams)
	if err != nil {
		logg.Error(ctx, "failed to create visualization service", err)
		os.Exit(1)
	}

	datasetService, err := datasets.NewService(datasets.Params{
		Logger:       logg,
		State:        st,
		Publisher:    datasetPublisher,
		Pool:         pool,
		Events:       emitter,
		Metrics:      publishMetrics,
		UploadDir:    cfg.Storage.UploadDir,
		MaxFileBytes: cfg.Upload.MaxFileBytes(),
		Configured:   cfg.Mapbox.Configured(),
	})
	if err != nil {
		logg.Error(ctx, "failed to create dataset service", err)
		os.Exit(1)
	}

	if cfg.Housekeeping.OnStart {
		if err := runHousekeeping(ctx, cfg, logg, st, lock, housekeepingMetrics); err != nil {
			logg.Warn(ctx, "housekeeping finished with errors: "+err.Error())
		}
	}
	if err := fileService.LoadFromDisk(ctx); err != nil {
		logg.Error(ctx, "failed to load uploads from disk", err)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx = logg.WithField(ctx, "addr", addr)

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, routes.Deps{
			State:          st,
			Uploads:        ingestService,
			Files:          fileService,
			Visualizations: vizService,
			Datasets:       datasetService,
			Cache:          pinger,
			HTTPMetrics:    httpMetrics,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
	}

	logg.Info(ctx, "api server shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logg.Error(ctx, "http shutdown failed", err)
	}
	if err := pool.Shutdown(shutdownCtx); err != nil {
		logg.Error(ctx, "publishing pool did not drain", err)
	}
}

func runHousekeeping(ctx context.Context, cfg *config.Config, logg *logger.Logger, st *state.Manager, lock housekeeping.Lock, m *metrics.HousekeepingMetrics) error {
	staleFiles, err := housekeeping.NewStaleFilesJob(logg, st, cfg.Housekeeping.MaxAge, cfg.Storage.UploadDir, cfg.Storage.ProcessedDir)
	if err != nil {
		return err
	}
	staleSessions, err := housekeeping.NewStaleSessionsJob(st, cfg.Housekeeping.MaxAge)
	if err != nil {
		return err
	}
	staleBatches, err := housekeeping.NewStaleBatchesJob(st, cfg.Housekeeping.MaxAge)
	if err != nil {
		return err
	}
	runner, err := housekeeping.NewRunner(housekeeping.RunnerParams{
		Logger:   logg,
		Registry: housekeeping.NewRegistry(staleFiles, staleSessions, staleBatches),
		Lock:     lock,
		Metrics:  m,
	})
	if err != nil {
		return err
	}
	return runner.RunOnce(ctx)
}
