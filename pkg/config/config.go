package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Storage      StorageConfig
	Upload       UploadConfig
	Mapbox       MapboxConfig
	Publishing   PublishingConfig
	Housekeeping HousekeepingConfig
	Redis        RedisConfig
	GCP          GCPConfig
	GCS          GCSConfig
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Upload.MaxFileMB <= 0 {
		return fmt.Errorf("%s must be positive", EnvUploadMaxFileMB)
	}
	if c.Upload.MaxBatchSize <= 0 {
		return fmt.Errorf("%s must be positive", EnvUploadMaxBatchSize)
	}
	if c.Publishing.Workers <= 0 {
		return fmt.Errorf("%s must be positive", EnvPublishWorkers)
	}
	if c.Publishing.QueueSize < 0 {
		return fmt.Errorf("%s must not be negative", EnvPublishQueueSize)
	}
	if c.Housekeeping.MaxAge <= 0 {
		return fmt.Errorf("%s must be positive", EnvHousekeepingMaxAge)
	}
	if strings.TrimSpace(c.GCS.ArchiveBucket) != "" && strings.TrimSpace(c.GCP.ProjectID) == "" {
		return fmt.Errorf("%s requires %s", EnvGCSArchiveBucket, EnvGCPProjectID)
	}
	return nil
}

type AppConfig struct {
	Env          string   `envconfig:"WXVIZ_APP_ENV" required:"true"`
	Port         string   `envconfig:"WXVIZ_APP_PORT" default:"8000"`
	LogLevel     string   `envconfig:"WXVIZ_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"WXVIZ_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"WXVIZ_CORS_ORIGINS" default:"http://localhost:3000,http://localhost:5173"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type StorageConfig struct {
	UploadDir    string `envconfig:"WXVIZ_UPLOAD_DIR" default:"uploads"`
	ProcessedDir string `envconfig:"WXVIZ_PROCESSED_DIR" default:"processed"`
	RecipeDir    string `envconfig:"WXVIZ_RECIPE_DIR" default:"recipes"`
}

// Dirs returns every directory the service writes to.
func (s StorageConfig) Dirs() []string {
	return []string{
		filepath.Clean(s.UploadDir),
		filepath.Clean(s.ProcessedDir),
		filepath.Clean(s.RecipeDir),
	}
}

type UploadConfig struct {
	MaxFileMB    int `envconfig:"WXVIZ_UPLOAD_MAX_FILE_MB" default:"500"`
	MaxBatchSize int `envconfig:"WXVIZ_UPLOAD_MAX_BATCH_SIZE" default:"10"`
}

// MaxFileBytes converts the configured megabyte cap to bytes.
func (u UploadConfig) MaxFileBytes() int64 {
	return int64(u.MaxFileMB) * 1024 * 1024
}

type MapboxConfig struct {
	Token       string        `envconfig:"WXVIZ_MAPBOX_TOKEN"`
	PublicToken string        `envconfig:"WXVIZ_MAPBOX_PUBLIC_TOKEN"`
	Username    string        `envconfig:"WXVIZ_MAPBOX_USERNAME"`
	BaseURL     string        `envconfig:"WXVIZ_MAPBOX_BASE_URL" default:"https://api.mapbox.com"`
	HTTPTimeout time.Duration `envconfig:"WXVIZ_MAPBOX_HTTP_TIMEOUT" default:"120s"`
}

// Configured reports whether remote publishing credentials are present.
func (m MapboxConfig) Configured() bool {
	return strings.TrimSpace(m.Token) != "" && strings.TrimSpace(m.Username) != ""
}

type PublishingConfig struct {
	Workers   int `envconfig:"WXVIZ_PUBLISH_WORKERS" default:"4"`
	QueueSize int `envconfig:"WXVIZ_PUBLISH_QUEUE_SIZE" default:"64"`
}

type HousekeepingConfig struct {
	MaxAge  time.Duration `envconfig:"WXVIZ_HOUSEKEEPING_MAX_AGE" default:"24h"`
	OnStart bool          `envconfig:"WXVIZ_HOUSEKEEPING_ON_START" default:"true"`
	LockTTL time.Duration `envconfig:"WXVIZ_HOUSEKEEPING_LOCK_TTL" default:"5m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"WXVIZ_REDIS_URL"`
	Address      string        `envconfig:"WXVIZ_REDIS_ADDR"`
	Password     string        `envconfig:"WXVIZ_REDIS_PASSWORD"`
	DB           int           `envconfig:"WXVIZ_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"WXVIZ_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"WXVIZ_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"WXVIZ_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"WXVIZ_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"WXVIZ_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether a redis endpoint was configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

type GCPConfig struct {
	ProjectID              string `envconfig:"WXVIZ_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"WXVIZ_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"WXVIZ_GOOGLE_APPLICATION_CREDENTIALS"`
}

type GCSConfig struct {
	ArchiveBucket string `envconfig:"WXVIZ_GCS_ARCHIVE_BUCKET"`
}

type PubSubConfig struct {
	EventsTopic string `envconfig:"WXVIZ_PUBSUB_EVENTS_TOPIC"`
}

type BigQueryConfig struct {
	Dataset        string `envconfig:"WXVIZ_BIGQUERY_DATASET"`
	JobEventsTable string `envconfig:"WXVIZ_BIGQUERY_JOB_EVENTS_TABLE" default:"job_events"`
}

// Enabled reports whether job audit rows should be written.
func (b BigQueryConfig) Enabled() bool {
	return strings.TrimSpace(b.Dataset) != ""
}
