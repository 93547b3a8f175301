package domain

import (
	"fmt"
	"strings"
)

// DeliveryStatus is the per-recipient outcome reported at submission time.
type DeliveryStatus string

const (
	DeliverySent   DeliveryStatus = "sent"
	DeliveryFailed DeliveryStatus = "failed"
)

func (s DeliveryStatus) String() string { return string(s) }

func (s DeliveryStatus) IsValid() bool {
	switch s {
	case DeliverySent, DeliveryFailed:
		return true
	}
	return false
}

func ParseDeliveryStatusFromString(s string) (DeliveryStatus, error) {
	st := DeliveryStatus(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid delivery status %q", ErrValidation, s)
	}
	return st, nil
}

// DispatchBatch is the immutable set of recipients submitted in one gateway call.
type DispatchBatch struct {
	ID         string
	DatasetID  string
	RowIndices []int
	Rows       []Row
	Recipients []Recipient
	Skipped    []SkippedRecipient
}

// RecipientOutcome pairs a submitted recipient with what the gateway reported.
type RecipientOutcome struct {
	Recipient Recipient
	Status    DeliveryStatus
	Reason    string
	Info      string
	// RecordID is the failure record the outcome refers to, set for resends.
	RecordID int64
}

// DispatchResult is the aggregated response to one batch submission.
type DispatchResult struct {
	BatchID     string
	DatasetID   string
	Message     string
	SentCount   int
	FailedCount int
	Succeeded   []RecipientOutcome
	Failed      []RecipientOutcome
	Skipped     []SkippedRecipient
}

// Submitted returns how many recipients the result accounts for.
func (r DispatchResult) Submitted() int {
	return len(r.Succeeded) + len(r.Failed)
}

// CheckCounts verifies the aggregate counters against the partition sizes
// and against the number of recipients that were submitted.
func (r DispatchResult) CheckCounts(submitted int) error {
	if r.SentCount != len(r.Succeeded) || r.FailedCount != len(r.Failed) {
		return fmt.Errorf("%w: counts sent=%d failed=%d do not match partitions succeeded=%d failed=%d",
			ErrProtocolMismatch, r.SentCount, r.FailedCount, len(r.Succeeded), len(r.Failed))
	}
	if r.SentCount+r.FailedCount != submitted {
		return fmt.Errorf("%w: sent=%d + failed=%d != submitted=%d",
			ErrProtocolMismatch, r.SentCount, r.FailedCount, submitted)
	}
	return nil
}

// CheckPartition verifies that the succeeded and failed lists are disjoint and
// together cover every submitted recipient exactly once.
func CheckPartition(submitted []Recipient, result DispatchResult) error {
	if err := result.CheckCounts(len(submitted)); err != nil {
		return err
	}

	pending := make(map[RecipientKey]int, len(submitted))
	for _, recipient := range submitted {
		pending[recipient.Key()]++
	}

	consume := func(outcomes []RecipientOutcome, want DeliveryStatus) error {
		for _, outcome := range outcomes {
			if outcome.Status != want {
				return fmt.Errorf("%w: recipient %s listed as %s with status %q",
					ErrProtocolMismatch, outcome.Recipient.NormalizedNumber, want, outcome.Status)
			}
			key := outcome.Recipient.Key()
			if pending[key] == 0 {
				return fmt.Errorf("%w: unexpected or repeated recipient %s (row %d, %s)",
					ErrProtocolMismatch, key.NormalizedNumber, key.RowIndex, key.Role)
			}
			pending[key]--
		}
		return nil
	}

	if err := consume(result.Succeeded, DeliverySent); err != nil {
		return err
	}
	if err := consume(result.Failed, DeliveryFailed); err != nil {
		return err
	}

	for key, left := range pending {
		if left > 0 {
			return fmt.Errorf("%w: recipient %s (row %d, %s) missing from response",
				ErrProtocolMismatch, key.NormalizedNumber, key.RowIndex, key.Role)
		}
	}
	return nil
}
