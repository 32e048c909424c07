package naming

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const jobIDLayout = "20060102150405"

// NewJobID returns a timestamped job id. Job ids never contain '_' so the
// stored filename "<job_id>_<name>" can be split back into its job id.
func NewJobID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return now.Format(jobIDLayout) + "-" + suffix
}

// NewBatchID returns a fresh batch identifier.
func NewBatchID() string {
	return uuid.NewString()
}

// BatchJobID is the job id of the i-th file of a batch.
func BatchJobID(batchID string, i int) string {
	return fmt.Sprintf("%s-%d", batchID, i)
}

// StoredFilename is the on-disk base name of an upload.
func StoredFilename(jobID, safeName string) string {
	return jobID + "_" + safeName
}

// JobIDFromStem returns the job id segment of a stored filename stem.
func JobIDFromStem(stem string) string {
	jobID, _, _ := strings.Cut(stem, "_")
	return jobID
}

// JobIDFromFilename strips the extension and returns the job id segment.
func JobIDFromFilename(name string) string {
	base := filepath.Base(name)
	return JobIDFromStem(strings.TrimSuffix(base, filepath.Ext(base)))
}

// SafeFilename keeps letters, digits, '.', '-' and '_' and forces a .nc suffix.
func SafeFilename(filename string) string {
	base := filepath.Base(filename)
	var b strings.Builder
	for _, r := range base {
		if isAlnum(r) || r == '.' || r == '-' || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	safe := b.String()
	if !strings.HasSuffix(strings.ToLower(safe), netcdfExtension) {
		safe += netcdfExtension
	}
	return safe
}

// DefaultDatasetName names a dataset after the original upload.
func DefaultDatasetName(filename string) string {
	base := filepath.Base(filename)
	return "Weather Data - " + strings.TrimSuffix(base, filepath.Ext(base))
}
