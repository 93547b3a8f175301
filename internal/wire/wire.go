// Package wire holds the JSON contract shared by the dispatch API and its client.
package wire

import (
	"fmt"
	"time"

	"github.com/kursadbilgin/sms-dispatch/internal/domain"
)

type RecipientEntry struct {
	ID         *int64 `json:"id,omitempty"`
	RowIndex   int    `json:"row_index"`
	Role       string `json:"role"`
	Number     string `json:"number"`
	Normalized string `json:"normalized"`
	Status     string `json:"status,omitempty"`
	Reason     string `json:"reason,omitempty"`
	Info       string `json:"info,omitempty"`
}

type SubmitBatchRequest struct {
	Rows            []domain.Row `json:"rows"`
	SelectedIndices []int        `json:"selected_indices"`
}

type ManualSendRequest struct {
	Numbers string `json:"numbers"`
	Message string `json:"message"`
}

type ResendRequest struct {
	IDs []int64 `json:"ids"`
}

type DispatchResponse struct {
	Message      string           `json:"message"`
	BatchID      string           `json:"batch_id,omitempty"`
	SentCount    int              `json:"sent_count"`
	FailedCount  int              `json:"failed_count"`
	SkippedCount int              `json:"skipped_count"`
	Successful   []RecipientEntry `json:"successful_recipients"`
	Failed       []RecipientEntry `json:"failed_recipients"`
	Skipped      []RecipientEntry `json:"skipped_recipients,omitempty"`
}

type FailedMessageEntry struct {
	ID             int64      `json:"id"`
	OriginalNumber string     `json:"original_number"`
	Normalized     string     `json:"normalized"`
	Message        string     `json:"message"`
	Reason         string     `json:"reason,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	Resolved       bool       `json:"resolved"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	AttemptCount   int        `json:"attempt_count"`
	LastError      *string    `json:"last_error,omitempty"`
}

type ExportRequest struct {
	Successful []RecipientEntry `json:"successful_recipients,omitempty"`
	Failed     []RecipientEntry `json:"failed_recipients,omitempty"`
}

type PreviewRequest struct {
	Type string       `json:"type"`
	Data []domain.Row `json:"data"`
}

type PreviewResponse struct {
	Preview []domain.Row `json:"preview"`
}

type BalanceResponse struct {
	Balance string `json:"balance"`
}

// ErrorResponse is the body of every non-2xx answer. IDs lists the failure
// records a resend was rejected for.
type ErrorResponse struct {
	Error string  `json:"error"`
	IDs   []int64 `json:"ids,omitempty"`
}

func FromRecipient(r domain.Recipient) RecipientEntry {
	return RecipientEntry{
		RowIndex:   r.RowIndex,
		Role:       r.Role.String(),
		Number:     r.RawNumber,
		Normalized: r.NormalizedNumber,
	}
}

func FromOutcome(o domain.RecipientOutcome) RecipientEntry {
	entry := FromRecipient(o.Recipient)
	entry.Status = o.Status.String()
	entry.Reason = o.Reason
	entry.Info = o.Info
	if o.RecordID > 0 {
		id := o.RecordID
		entry.ID = &id
	}
	return entry
}

func FromSkipped(s domain.SkippedRecipient) RecipientEntry {
	entry := FromRecipient(s.Recipient)
	entry.Reason = s.Reason
	return entry
}

// Outcome converts a wire entry back into a domain outcome. Entries without a
// valid role or status are a contract violation.
func (e RecipientEntry) Outcome() (domain.RecipientOutcome, error) {
	role, err := domain.ParseRoleFromString(e.Role)
	if err != nil {
		return domain.RecipientOutcome{}, fmt.Errorf("%w: %v", domain.ErrProtocolMismatch, err)
	}
	status, err := domain.ParseDeliveryStatusFromString(e.Status)
	if err != nil {
		return domain.RecipientOutcome{}, fmt.Errorf("%w: %v", domain.ErrProtocolMismatch, err)
	}

	outcome := domain.RecipientOutcome{
		Recipient: domain.Recipient{
			RowIndex:         e.RowIndex,
			Role:             role,
			RawNumber:        e.Number,
			NormalizedNumber: e.Normalized,
		},
		Status: status,
		Reason: e.Reason,
		Info:   e.Info,
	}
	if e.ID != nil {
		outcome.RecordID = *e.ID
	}
	return outcome, nil
}

func FromDispatchResult(r domain.DispatchResult) DispatchResponse {
	resp := DispatchResponse{
		Message:      r.Message,
		BatchID:      r.BatchID,
		SentCount:    r.SentCount,
		FailedCount:  r.FailedCount,
		SkippedCount: len(r.Skipped),
		Successful:   make([]RecipientEntry, 0, len(r.Succeeded)),
		Failed:       make([]RecipientEntry, 0, len(r.Failed)),
	}
	for _, o := range r.Succeeded {
		resp.Successful = append(resp.Successful, FromOutcome(o))
	}
	for _, o := range r.Failed {
		resp.Failed = append(resp.Failed, FromOutcome(o))
	}
	for _, s := range r.Skipped {
		resp.Skipped = append(resp.Skipped, FromSkipped(s))
	}
	return resp
}

// DispatchResult converts a response into a domain result without checking the partition.
func (r DispatchResponse) DispatchResult() (domain.DispatchResult, error) {
	result := domain.DispatchResult{
		BatchID:     r.BatchID,
		Message:     r.Message,
		SentCount:   r.SentCount,
		FailedCount: r.FailedCount,
		Succeeded:   make([]domain.RecipientOutcome, 0, len(r.Successful)),
		Failed:      make([]domain.RecipientOutcome, 0, len(r.Failed)),
	}
	for _, entry := range r.Successful {
		o, err := entry.Outcome()
		if err != nil {
			return domain.DispatchResult{}, err
		}
		result.Succeeded = append(result.Succeeded, o)
	}
	for _, entry := range r.Failed {
		o, err := entry.Outcome()
		if err != nil {
			return domain.DispatchResult{}, err
		}
		result.Failed = append(result.Failed, o)
	}
	for _, entry := range r.Skipped {
		role, err := domain.ParseRoleFromString(entry.Role)
		if err != nil {
			return domain.DispatchResult{}, fmt.Errorf("%w: %v", domain.ErrProtocolMismatch, err)
		}
		result.Skipped = append(result.Skipped, domain.SkippedRecipient{
			Recipient: domain.Recipient{
				RowIndex:         entry.RowIndex,
				Role:             role,
				RawNumber:        entry.Number,
				NormalizedNumber: entry.Normalized,
			},
			Reason: entry.Reason,
		})
	}
	return result, nil
}

func FromFailedMessage(m domain.FailedMessage) FailedMessageEntry {
	return FailedMessageEntry{
		ID:             m.ID,
		OriginalNumber: m.OriginalNumber,
		Normalized:     m.NormalizedNumber,
		Message:        m.Message,
		Reason:         m.Reason,
		CreatedAt:      m.CreatedAt,
		Resolved:       m.Resolved,
		ResolvedAt:     m.ResolvedAt,
		AttemptCount:   m.AttemptCount,
		LastError:      m.LastError,
	}
}

func (e FailedMessageEntry) FailedMessage() domain.FailedMessage {
	return domain.FailedMessage{
		ID:               e.ID,
		OriginalNumber:   e.OriginalNumber,
		NormalizedNumber: e.Normalized,
		Message:          e.Message,
		Reason:           e.Reason,
		CreatedAt:        e.CreatedAt,
		Resolved:         e.Resolved,
		ResolvedAt:       e.ResolvedAt,
		AttemptCount:     e.AttemptCount,
		LastError:        e.LastError,
	}
}

// BatchResponse is the audit view of one dispatch batch and its gateway calls.
type BatchResponse struct {
	ID          string                 `json:"id"`
	Kind        string                 `json:"kind"`
	Status      string                 `json:"status"`
	TotalCount  int                    `json:"total_count"`
	SentCount   int                    `json:"sent_count"`
	FailedCount int                    `json:"failed_count"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	Attempts    []DeliveryAttemptEntry `json:"attempts"`
}

type DeliveryAttemptEntry struct {
	ID              string    `json:"id"`
	FailedMessageID *int64    `json:"failed_message_id,omitempty"`
	Number          string    `json:"number"`
	StatusCode      *int      `json:"status_code,omitempty"`
	ResponseBody    *string   `json:"response_body,omitempty"`
	Error           *string   `json:"error,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

func FromBatch(b domain.BatchRecord, attempts []domain.DeliveryAttempt) BatchResponse {
	resp := BatchResponse{
		ID:          b.ID,
		Kind:        b.Kind.String(),
		Status:      b.Status.String(),
		TotalCount:  b.TotalCount,
		SentCount:   b.SentCount,
		FailedCount: b.FailedCount,
		CreatedAt:   b.CreatedAt,
		UpdatedAt:   b.UpdatedAt,
		Attempts:    make([]DeliveryAttemptEntry, 0, len(attempts)),
	}
	for _, a := range attempts {
		resp.Attempts = append(resp.Attempts, DeliveryAttemptEntry{
			ID:              a.ID,
			FailedMessageID: a.FailedMessageID,
			Number:          a.Number,
			StatusCode:      a.StatusCode,
			ResponseBody:    a.ResponseBody,
			Error:           a.Error,
			CreatedAt:       a.CreatedAt,
		})
	}
	return resp
}
