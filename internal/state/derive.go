package state

import "github.com/angelmondragon/wxviz-backend/pkg/enums"

// BatchCounts is the per-status tally of a batch's files.
type BatchCounts struct {
	Completed  int
	Failed     int
	Processing int
}

// CountStatuses tallies statuses. Anything that is neither completed, failed
// nor processing (a removed record reports unknown) is left out of every count.
func CountStatuses(statuses []enums.ProcessingStatus) BatchCounts {
	var c BatchCounts
	for _, s := range statuses {
		switch s {
		case enums.ProcessingStatusCompleted:
			c.Completed++
		case enums.ProcessingStatusFailed:
			c.Failed++
		case enums.ProcessingStatusProcessing:
			c.Processing++
		}
	}
	return c
}

// DeriveBatchStatus is the aggregate status of a batch given the current
// status of each of its files. With no files the batch has failed when any
// error was recorded and is still processing otherwise.
func DeriveBatchStatus(statuses []enums.ProcessingStatus, hasErrors bool) enums.BatchStatus {
	if len(statuses) == 0 {
		if hasErrors {
			return enums.BatchStatusFailed
		}
		return enums.BatchStatusProcessing
	}
	c := CountStatuses(statuses)
	switch {
	case c.Processing > 0:
		return enums.BatchStatusProcessing
	case c.Failed == len(statuses):
		return enums.BatchStatusFailed
	case c.Completed == len(statuses):
		return enums.BatchStatusCompleted
	default:
		return enums.BatchStatusPartial
	}
}
