package config

const (
	EnvPrefix = "WXVIZ"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv       = "WXVIZ_APP_ENV"
	EnvPort         = "WXVIZ_APP_PORT"
	EnvLogLevel     = "WXVIZ_LOG_LEVEL"
	EnvLogWarnStack = "WXVIZ_LOG_WARN_STACK"
	EnvCORSOrigins  = "WXVIZ_CORS_ORIGINS"

	EnvUploadDir    = "WXVIZ_UPLOAD_DIR"
	EnvProcessedDir = "WXVIZ_PROCESSED_DIR"
	EnvRecipeDir    = "WXVIZ_RECIPE_DIR"

	EnvUploadMaxFileMB    = "WXVIZ_UPLOAD_MAX_FILE_MB"
	EnvUploadMaxBatchSize = "WXVIZ_UPLOAD_MAX_BATCH_SIZE"

	EnvMapboxToken       = "WXVIZ_MAPBOX_TOKEN"
	EnvMapboxPublicToken = "WXVIZ_MAPBOX_PUBLIC_TOKEN"
	EnvMapboxUsername    = "WXVIZ_MAPBOX_USERNAME"
	EnvMapboxBaseURL     = "WXVIZ_MAPBOX_BASE_URL"
	EnvMapboxHTTPTimeout = "WXVIZ_MAPBOX_HTTP_TIMEOUT"

	EnvPublishWorkers   = "WXVIZ_PUBLISH_WORKERS"
	EnvPublishQueueSize = "WXVIZ_PUBLISH_QUEUE_SIZE"

	EnvHousekeepingMaxAge  = "WXVIZ_HOUSEKEEPING_MAX_AGE"
	EnvHousekeepingOnStart = "WXVIZ_HOUSEKEEPING_ON_START"
	EnvHousekeepingLockTTL = "WXVIZ_HOUSEKEEPING_LOCK_TTL"

	EnvRedisURL  = "WXVIZ_REDIS_URL"
	EnvRedisAddr = "WXVIZ_REDIS_ADDR"

	EnvGCPProjectID     = "WXVIZ_GCP_PROJECT_ID"
	EnvGCSArchiveBucket = "WXVIZ_GCS_ARCHIVE_BUCKET"

	EnvPubSubEventsTopic = "WXVIZ_PUBSUB_EVENTS_TOPIC"

	EnvBigQueryDataset        = "WXVIZ_BIGQUERY_DATASET"
	EnvBigQueryJobEventsTable = "WXVIZ_BIGQUERY_JOB_EVENTS_TABLE"
)
