package repository

import (
	"time"

	"github.com/kursadbilgin/sms-dispatch/internal/domain"
)

// FailedMessageModel is the persistence model for the failed_messages table.
type FailedMessageModel struct {
	ID               int64   `gorm:"primaryKey;autoIncrement"`
	BatchID          string  `gorm:"type:uuid;not null"`
	OriginalNumber   string  `gorm:"type:varchar(64);not null"`
	NormalizedNumber string  `gorm:"type:varchar(32);not null"`
	Message          string  `gorm:"type:text;not null"`
	Reason           string  `gorm:"type:varchar(64);not null"`
	AttemptCount     int     `gorm:"not null;default:1"`
	LastError        *string `gorm:"type:text"`
	Resolved         bool    `gorm:"not null;default:false"`
	ResolvedAt       *time.Time
	ResendClaimedAt  *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (FailedMessageModel) TableName() string {
	return "failed_messages"
}

// DispatchBatchModel is the persistence model for dispatch_batches.
type DispatchBatchModel struct {
	ID          string             `gorm:"type:uuid;primaryKey"`
	Kind        domain.BatchKind   `gorm:"type:varchar(10);not null"`
	TotalCount  int                `gorm:"not null"`
	SentCount   int                `gorm:"not null;default:0"`
	FailedCount int                `gorm:"not null;default:0"`
	Status      domain.BatchStatus `gorm:"type:varchar(20);not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (DispatchBatchModel) TableName() string {
	return "dispatch_batches"
}

// DeliveryAttemptModel is the persistence model for delivery_attempts.
type DeliveryAttemptModel struct {
	ID              string  `gorm:"type:uuid;primaryKey"`
	BatchID         string  `gorm:"type:uuid;not null"`
	FailedMessageID *int64  `gorm:"type:bigint"`
	Number          string  `gorm:"type:varchar(32);not null"`
	StatusCode      *int    `gorm:"type:int"`
	ResponseBody    *string `gorm:"type:text"`
	Error           *string `gorm:"type:text"`
	CreatedAt       time.Time
}

func (DeliveryAttemptModel) TableName() string {
	return "delivery_attempts"
}

func failedMessageModelFromDomain(m *domain.FailedMessage) *FailedMessageModel {
	if m == nil {
		return nil
	}

	attemptCount := m.AttemptCount
	if attemptCount < 1 {
		attemptCount = 1
	}

	return &FailedMessageModel{
		ID:               m.ID,
		BatchID:          m.BatchID,
		OriginalNumber:   m.OriginalNumber,
		NormalizedNumber: m.NormalizedNumber,
		Message:          m.Message,
		Reason:           m.Reason,
		AttemptCount:     attemptCount,
		LastError:        m.LastError,
		Resolved:         m.Resolved,
		ResolvedAt:       m.ResolvedAt,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

func failedMessageModelToDomain(m *FailedMessageModel) *domain.FailedMessage {
	if m == nil {
		return nil
	}

	return &domain.FailedMessage{
		ID:               m.ID,
		BatchID:          m.BatchID,
		OriginalNumber:   m.OriginalNumber,
		NormalizedNumber: m.NormalizedNumber,
		Message:          m.Message,
		Reason:           m.Reason,
		AttemptCount:     m.AttemptCount,
		LastError:        m.LastError,
		Resolved:         m.Resolved,
		ResolvedAt:       m.ResolvedAt,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

func batchModelFromDomain(b *domain.BatchRecord) *DispatchBatchModel {
	if b == nil {
		return nil
	}

	return &DispatchBatchModel{
		ID:          b.ID,
		Kind:        b.Kind,
		TotalCount:  b.TotalCount,
		SentCount:   b.SentCount,
		FailedCount: b.FailedCount,
		Status:      b.Status,
		CreatedAt:   b.CreatedAt,
		UpdatedAt:   b.UpdatedAt,
	}
}

func batchModelToDomain(m *DispatchBatchModel) *domain.BatchRecord {
	if m == nil {
		return nil
	}

	return &domain.BatchRecord{
		ID:          m.ID,
		Kind:        m.Kind,
		TotalCount:  m.TotalCount,
		SentCount:   m.SentCount,
		FailedCount: m.FailedCount,
		Status:      m.Status,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func attemptModelFromDomain(a *domain.DeliveryAttempt) *DeliveryAttemptModel {
	if a == nil {
		return nil
	}

	return &DeliveryAttemptModel{
		ID:              a.ID,
		BatchID:         a.BatchID,
		FailedMessageID: a.FailedMessageID,
		Number:          a.Number,
		StatusCode:      a.StatusCode,
		ResponseBody:    a.ResponseBody,
		Error:           a.Error,
		CreatedAt:       a.CreatedAt,
	}
}

func attemptModelToDomain(m *DeliveryAttemptModel) *domain.DeliveryAttempt {
	if m == nil {
		return nil
	}

	return &domain.DeliveryAttempt{
		ID:              m.ID,
		BatchID:         m.BatchID,
		FailedMessageID: m.FailedMessageID,
		Number:          m.Number,
		StatusCode:      m.StatusCode,
		ResponseBody:    m.ResponseBody,
		Error:           m.Error,
		CreatedAt:       m.CreatedAt,
	}
}
