package enums

import "fmt"

// BatchStatus is the aggregate state of a multi-file upload.
type BatchStatus string

const (
	BatchStatusProcessing BatchStatus = "processing"
	BatchStatusPartial    BatchStatus = "partial"
	BatchStatusCompleted  BatchStatus = "completed"
	BatchStatusFailed     BatchStatus = "failed"
)

var validBatchStatuses = []BatchStatus{
	BatchStatusProcessing,
	BatchStatusPartial,
	BatchStatusCompleted,
	BatchStatusFailed,
}

func (b BatchStatus) String() string {
	return string(b)
}

func (b BatchStatus) IsValid() bool {
	for _, candidate := range validBatchStatuses {
		if candidate == b {
			return true
		}
	}
	return false
}

// ParseBatchStatus converts raw input into a BatchStatus.
func ParseBatchStatus(value string) (BatchStatus, error) {
	for _, candidate := range validBatchStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid batch status %q", value)
}
