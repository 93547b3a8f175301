package domain

import "time"

// BatchStatus represents the outcome of a recorded dispatch batch.
type BatchStatus string

const (
	BatchStatusProcessing     BatchStatus = "PROCESSING"
	BatchStatusCompleted      BatchStatus = "COMPLETED"
	BatchStatusPartialFailure BatchStatus = "PARTIAL_FAILURE"
	BatchStatusFailed         BatchStatus = "FAILED"
)

func (s BatchStatus) String() string { return string(s) }

func (s BatchStatus) IsValid() bool {
	switch s {
	case BatchStatusProcessing, BatchStatusCompleted, BatchStatusPartialFailure, BatchStatusFailed:
		return true
	}
	return false
}

// BatchKind tells which operation produced a batch.
type BatchKind string

const (
	BatchKindSubmit BatchKind = "SUBMIT"
	BatchKindManual BatchKind = "MANUAL"
	BatchKindResend BatchKind = "RESEND"
)

func (k BatchKind) String() string { return string(k) }

// BatchRecord is the server-side audit row for one submission.
type BatchRecord struct {
	ID          string
	Kind        BatchKind
	TotalCount  int
	SentCount   int
	FailedCount int
	Status      BatchStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// StatusFor derives the final batch status from its counters.
func StatusFor(sent, failed int) BatchStatus {
	switch {
	case failed == 0:
		return BatchStatusCompleted
	case sent == 0:
		return BatchStatusFailed
	default:
		return BatchStatusPartialFailure
	}
}
