package enums

import "fmt"

// ProcessingStatus describes where a job sits in the upload-to-publish lifecycle.
type ProcessingStatus string

const (
	ProcessingStatusProcessing ProcessingStatus = "processing"
	ProcessingStatusCompleted  ProcessingStatus = "completed"
	ProcessingStatusFailed     ProcessingStatus = "failed"
	ProcessingStatusUnknown    ProcessingStatus = "unknown"
)

var validProcessingStatuses = []ProcessingStatus{
	ProcessingStatusProcessing,
	ProcessingStatusCompleted,
	ProcessingStatusFailed,
	ProcessingStatusUnknown,
}

// String returns the literal string for the status.
func (p ProcessingStatus) String() string {
	return string(p)
}

// IsValid reports whether the status is known.
func (p ProcessingStatus) IsValid() bool {
	for _, candidate := range validProcessingStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status can no longer change without a reprocess.
func (p ProcessingStatus) IsTerminal() bool {
	return p == ProcessingStatusCompleted || p == ProcessingStatusFailed
}

// ParseProcessingStatus converts raw input into a ProcessingStatus.
func ParseProcessingStatus(value string) (ProcessingStatus, error) {
	for _, candidate := range validProcessingStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid processing status %q", value)
}
