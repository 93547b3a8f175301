package domain

import "time"

// FailedMessage is a persisted failed delivery. Resolved only moves from false to true.
type FailedMessage struct {
	ID               int64
	BatchID          string
	OriginalNumber   string
	NormalizedNumber string
	Message          string
	Reason           string
	AttemptCount     int
	LastError        *string
	Resolved         bool
	ResolvedAt       *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Recipient rebuilds the exact number/message pair that originally failed.
func (m FailedMessage) Recipient() Recipient {
	return Recipient{
		RowIndex:         ManualRowIndex,
		Role:             RoleManual,
		RawNumber:        m.OriginalNumber,
		NormalizedNumber: m.NormalizedNumber,
		Message:          m.Message,
	}
}
