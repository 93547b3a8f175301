package domain

import "time"

// DeliveryAttempt records a single gateway call.
type DeliveryAttempt struct {
	ID              string
	BatchID         string
	FailedMessageID *int64
	Number          string
	StatusCode      *int
	ResponseBody    *string
	Error           *string
	CreatedAt       time.Time
}
