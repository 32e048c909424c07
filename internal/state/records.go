package state

import (
	"time"

	"github.com/angelmondragon/wxviz-backend/internal/geodata"
	"github.com/angelmondragon/wxviz-backend/pkg/enums"
)

// FileStatusActive is the only lifecycle status a stored upload carries.
const FileStatusActive = "active"

// FileRecord is an upload kept on disk.
type FileRecord struct {
	JobID            string                 `json:"job_id"`
	Filename         string                 `json:"filename"`
	OriginalFilename string                 `json:"original_filename"`
	Size             int64                  `json:"size"`
	Path             string                 `json:"path"`
	UploadedAt       time.Time              `json:"upload_date"`
	Status           string                 `json:"status"`
	ProcessingStatus enums.ProcessingStatus `json:"processing_status"`
	BatchID          string                 `json:"batch_id,omitempty"`
	Error            string                 `json:"error,omitempty"`
	Metadata         *geodata.Metadata      `json:"metadata,omitempty"`
	TilesetID        string                 `json:"tileset_id,omitempty"`
}

// Visualization tracks one job from extraction to a published tileset.
type Visualization struct {
	JobID              string                    `json:"job_id"`
	FilePath           string                    `json:"file_path"`
	TilesetID          string                    `json:"tileset_id"`
	Metadata           geodata.Metadata          `json:"metadata"`
	WindComponents     *geodata.VectorComponents `json:"wind_components,omitempty"`
	Bounds             *geodata.Bounds           `json:"bounds,omitempty"`
	Center             *geodata.Center           `json:"center,omitempty"`
	Zoom               *int                      `json:"zoom,omitempty"`
	VisualizationType  enums.VisualizationType   `json:"visualization_type"`
	RequestedFormat    enums.TilesetFormat       `json:"requested_format"`
	Format             enums.TilesetFormat       `json:"format,omitempty"`
	ActualFormat       enums.TilesetFormat       `json:"actual_format,omitempty"`
	Status             enums.ProcessingStatus    `json:"status"`
	Warning            string                    `json:"warning,omitempty"`
	Error              string                    `json:"error,omitempty"`
	BatchID            string                    `json:"batch_id,omitempty"`
	MapboxTileset      string                    `json:"mapbox_tileset,omitempty"`
	SourceLayer        string                    `json:"source_layer,omitempty"`
	RecipeID           string                    `json:"recipe_id,omitempty"`
	PublishJobID       string                    `json:"publish_job_id,omitempty"`
	ScalarVars         []string                  `json:"scalar_vars"`
	VectorPairs        []geodata.VectorPair      `json:"vector_pairs"`
	UseClientAnimation bool                      `json:"use_client_animation"`
	FormatFallback     bool                      `json:"format_fallback,omitempty"`
	SessionID          string                    `json:"session_id,omitempty"`
	CreatedAt          time.Time                 `json:"created_at"`
}

// Session holds the animatable grid of a job.
type Session struct {
	SessionID string          `json:"session_id"`
	FilePath  string          `json:"file_path"`
	Grid      *geodata.Grid   `json:"wind_data"`
	Bounds    *geodata.Bounds `json:"bounds,omitempty"`
	Center    *geodata.Center `json:"center,omitempty"`
	Zoom      *int            `json:"zoom,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	BatchID   string          `json:"batch_id,omitempty"`
}

// BatchFile is one accepted file of a batch.
type BatchFile struct {
	JobID     string                 `json:"job_id"`
	Filename  string                 `json:"filename"`
	Success   bool                   `json:"success"`
	Status    enums.ProcessingStatus `json:"status"`
	Message   string                 `json:"message,omitempty"`
	Error     string                 `json:"error,omitempty"`
	TilesetID string                 `json:"tileset_id,omitempty"`
	DatasetID string                 `json:"dataset_id,omitempty"`
}

// BatchError is a file of a batch that was rejected or failed during ingestion.
type BatchError struct {
	Filename string `json:"filename"`
	Error    string `json:"error"`
}

// DatasetSummary is appended to a batch when a dataset job finishes.
type DatasetSummary struct {
	JobID      string `json:"job_id"`
	Filename   string `json:"filename"`
	DatasetID  string `json:"dataset_id,omitempty"`
	DatasetURL string `json:"dataset_url,omitempty"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
}

// Batch aggregates a multi-file upload.
type Batch struct {
	BatchID         string            `json:"batch_id"`
	TotalFiles      int               `json:"total_files"`
	ProcessedFiles  int               `json:"processed_files"`
	Status          enums.BatchStatus `json:"status"`
	Files           []BatchFile       `json:"files"`
	Errors          []BatchError      `json:"errors"`
	Datasets        []DatasetSummary  `json:"datasets,omitempty"`
	CompletedFiles  int               `json:"completed_files"`
	FailedFiles     int               `json:"failed_files"`
	ProcessingFiles int               `json:"processing_files"`
	CreatedAt       time.Time         `json:"created_at"`
}

// Dataset is the terminal result of a dataset creation job.
type Dataset struct {
	JobID         string                 `json:"job_id"`
	DatasetID     string                 `json:"dataset_id,omitempty"`
	DatasetURL    string                 `json:"dataset_url,omitempty"`
	Filename      string                 `json:"filename"`
	TotalFeatures int                    `json:"total_features"`
	FeaturesAdded int                    `json:"features_added"`
	Status        enums.ProcessingStatus `json:"status"`
	Error         string                 `json:"error,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
	BatchID       string                 `json:"batch_id,omitempty"`
}

func (b *Batch) clone() *Batch {
	if b == nil {
		return nil
	}
	out := *b
	out.Files = append([]BatchFile(nil), b.Files...)
	out.Errors = append([]BatchError(nil), b.Errors...)
	out.Datasets = append([]DatasetSummary(nil), b.Datasets...)
	return &out
}

func (b *Batch) fileIndex(jobID string) int {
	for i := range b.Files {
		if b.Files[i].JobID == jobID {
			return i
		}
	}
	return -1
}
