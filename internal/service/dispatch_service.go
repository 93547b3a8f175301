package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/sms-dispatch/internal/domain"
	"github.com/kursadbilgin/sms-dispatch/internal/observability"
	"github.com/kursadbilgin/sms-dispatch/internal/provider"
	"github.com/kursadbilgin/sms-dispatch/internal/ratelimit"
	"github.com/kursadbilgin/sms-dispatch/internal/recipient"
	"github.com/kursadbilgin/sms-dispatch/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	minSendConcurrency = 1
	maxBatchRecipients = 5000
	// resendClaimTTL bounds how long a crashed resend keeps its records claimed.
	resendClaimTTL = 15 * time.Minute
)

// DispatchService sends batches through the gateway and keeps the failure queue.
// Every submitted recipient ends up in exactly one of the sent or failed lists.
type DispatchService struct {
	failures    repository.FailedMessageRepository
	batches     repository.BatchRepository
	attempts    repository.AttemptRepository
	provider    provider.Provider
	rateLimiter ratelimit.RateLimiter
	extractor   *recipient.Extractor
	logger      *zap.Logger
	metrics     *observability.Metrics
	concurrency int
	now         func() time.Time
}

func NewDispatchService(
	failures repository.FailedMessageRepository,
	batches repository.BatchRepository,
	attempts repository.AttemptRepository,
	provider provider.Provider,
	rateLimiter ratelimit.RateLimiter,
	extractor *recipient.Extractor,
	concurrency int,
	logger *zap.Logger,
) (*DispatchService, error) {
	if failures == nil || batches == nil || attempts == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if rateLimiter == nil {
		return nil, fmt.Errorf("rate limiter is required")
	}
	if extractor == nil {
		return nil, fmt.Errorf("extractor is required")
	}
	if concurrency < minSendConcurrency {
		concurrency = minSendConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &DispatchService{
		failures:    failures,
		batches:     batches,
		attempts:    attempts,
		provider:    provider,
		rateLimiter: rateLimiter,
		extractor:   extractor,
		logger:      logger,
		concurrency: concurrency,
		now:         time.Now,
	}, nil
}

func (s *DispatchService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// SubmitBatch extracts recipients from the selected rows and sends each one.
func (s *DispatchService) SubmitBatch(ctx context.Context, rows []domain.Row, selectedIndices []int) (*domain.DispatchResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(selectedIndices) == 0 {
		return nil, domain.ErrEmptySelection
	}

	recipients, skipped, err := s.extractor.Extract(rows, selectedIndices)
	if err != nil {
		return nil, err
	}
	if len(recipients) > maxBatchRecipients {
		return nil, fmt.Errorf("%w: batch has %d recipients, limit is %d", domain.ErrValidation, len(recipients), maxBatchRecipients)
	}

	return s.dispatch(ctx, domain.BatchKindSubmit, recipients, skipped)
}

// ManualSend sends one message to a free-form list of numbers.
func (s *DispatchService) ManualSend(ctx context.Context, numbers string, message string) (*domain.DispatchResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(message) == "" {
		return nil, fmt.Errorf("%w: message is required", domain.ErrValidation)
	}

	list := recipient.SplitNumbers(numbers)
	if len(list) == 0 {
		return nil, fmt.Errorf("%w: at least one number is required", domain.ErrValidation)
	}

	recipients, skipped := s.extractor.FromNumbers(list, message)
	if len(recipients) > maxBatchRecipients {
		return nil, fmt.Errorf("%w: %d numbers exceed limit %d", domain.ErrValidation, len(recipients), maxBatchRecipients)
	}

	return s.dispatch(ctx, domain.BatchKindManual, recipients, skipped)
}

func (s *DispatchService) ListFailures(ctx context.Context, params repository.FailedMessageListParams) ([]domain.FailedMessage, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	return s.failures.List(ctx, params)
}

// GetBatch returns one batch record with every gateway call made for it.
func (s *DispatchService) GetBatch(ctx context.Context, id string) (*domain.BatchRecord, []domain.DeliveryAttempt, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, err := uuid.Parse(strings.TrimSpace(id)); err != nil {
		return nil, nil, fmt.Errorf("%w: batch id %q is not a uuid", domain.ErrValidation, id)
	}
	id = strings.TrimSpace(id)

	batch, err := s.batches.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	attempts, err := s.attempts.GetByBatchID(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load attempts for batch %s: %w", id, err)
	}
	return batch, attempts, nil
}

// ResendFailures resends stored failures verbatim. The request is rejected as a
// whole when any id is unknown, already resolved or claimed by another resend.
func (s *DispatchService) ResendFailures(ctx context.Context, ids []int64) (*domain.DispatchResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	unique := uniqueIDs(ids)
	if len(unique) == 0 {
		return nil, domain.ErrEmptyResendSelection
	}
	if len(unique) > maxBatchRecipients {
		return nil, fmt.Errorf("%w: %d ids exceed limit %d", domain.ErrValidation, len(unique), maxBatchRecipients)
	}

	records, err := s.failures.GetByIDs(ctx, unique)
	if err != nil {
		return nil, fmt.Errorf("failed to load failure records: %w", err)
	}

	byID := make(map[int64]domain.FailedMessage, len(records))
	for _, record := range records {
		byID[record.ID] = record
	}

	var missing, resolved []int64
	for _, id := range unique {
		record, ok := byID[id]
		switch {
		case !ok:
			missing = append(missing, id)
		case record.Resolved:
			resolved = append(resolved, id)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: failure records %v", domain.ErrNotFound, missing)
	}
	if len(resolved) > 0 {
		return nil, domain.NewAlreadyResolvedError(resolved)
	}

	recipients := make([]domain.Recipient, 0, len(unique))
	recordIDs := make([]int64, 0, len(unique))
	for _, id := range unique {
		record := byID[id]
		r := record.Recipient()
		r.Invalid = record.Reason == domain.ReasonInvalidNumber || strings.TrimSpace(r.NormalizedNumber) == ""
		recipients = append(recipients, r)
		recordIDs = append(recordIDs, id)
	}

	if err := s.claim(ctx, unique); err != nil {
		return nil, err
	}

	batch, err := s.openBatch(ctx, domain.BatchKindResend, len(recipients))
	if err != nil {
		s.releaseClaims(ctx, unique)
		return nil, err
	}

	outcomes, attempts := s.sendAll(ctx, domain.BatchKindResend, batch.ID, recipients, recordIDs)

	// The messages are out; record what happened even if the caller went away.
	persistCtx := context.WithoutCancel(ctx)
	for i := range outcomes {
		outcomes[i].RecordID = recordIDs[i]
		id := recordIDs[i]

		if outcomes[i].Status == domain.DeliverySent {
			if err := s.failures.MarkResolved(persistCtx, id, s.now().UTC()); err != nil {
				s.logger.Error("failed to mark failure record resolved",
					zap.String("batchId", batch.ID),
					zap.Int64("failedMessageId", id),
					zap.Error(err),
				)
				outcomes[i].Reason = domain.ReasonResolveNotRecorded
				s.releaseClaims(persistCtx, []int64{id})
				continue
			}
			s.metrics.IncResolved()
			continue
		}

		if err := s.failures.RecordFailure(persistCtx, id, failureDetail(outcomes[i])); err != nil {
			s.logger.Error("failed to record resend failure",
				zap.String("batchId", batch.ID),
				zap.Int64("failedMessageId", id),
				zap.Error(err),
			)
			s.releaseClaims(persistCtx, []int64{id})
		}
	}

	return s.finish(ctx, domain.BatchKindResend, batch, outcomes, attempts, nil), nil
}

// claim takes every id for this resend or none of them.
func (s *DispatchService) claim(ctx context.Context, ids []int64) error {
	claimedAt := s.now().UTC()
	claimed, err := s.failures.ClaimForResend(ctx, ids, claimedAt, claimedAt.Add(-resendClaimTTL))
	if err != nil {
		return fmt.Errorf("failed to claim failure records: %w", err)
	}
	if len(claimed) == len(ids) {
		return nil
	}

	s.releaseClaims(ctx, claimed)

	got := make(map[int64]struct{}, len(claimed))
	for _, id := range claimed {
		got[id] = struct{}{}
	}
	busy := make([]int64, 0, len(ids)-len(claimed))
	for _, id := range ids {
		if _, ok := got[id]; !ok {
			busy = append(busy, id)
		}
	}
	return fmt.Errorf("%w: failure records %v", domain.ErrResendInProgress, busy)
}

func (s *DispatchService) releaseClaims(ctx context.Context, ids []int64) {
	if len(ids) == 0 {
		return
	}
	if err := s.failures.ReleaseClaims(context.WithoutCancel(ctx), ids); err != nil {
		s.logger.Error("failed to release resend claims", zap.Int64s("failedMessageIds", ids), zap.Error(err))
	}
}

func (s *DispatchService) dispatch(
	ctx context.Context,
	kind domain.BatchKind,
	recipients []domain.Recipient,
	skipped []domain.SkippedRecipient,
) (*domain.DispatchResult, error) {
	batch, err := s.openBatch(ctx, kind, len(recipients))
	if err != nil {
		return nil, err
	}

	outcomes, attempts := s.sendAll(ctx, kind, batch.ID, recipients, nil)
	s.persistFailures(ctx, batch.ID, outcomes)

	return s.finish(ctx, kind, batch, outcomes, attempts, skipped), nil
}

func (s *DispatchService) openBatch(ctx context.Context, kind domain.BatchKind, total int) (*domain.BatchRecord, error) {
	now := s.now().UTC()
	batch := &domain.BatchRecord{
		ID:         uuid.NewString(),
		Kind:       kind,
		TotalCount: total,
		Status:     domain.BatchStatusProcessing,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.batches.Create(ctx, batch); err != nil {
		return nil, fmt.Errorf("failed to create dispatch batch: %w", err)
	}
	return batch, nil
}

// sendAll fans out with bounded concurrency. outcomes[i] always belongs to recipients[i].
func (s *DispatchService) sendAll(
	ctx context.Context,
	kind domain.BatchKind,
	batchID string,
	recipients []domain.Recipient,
	recordIDs []int64,
) ([]domain.RecipientOutcome, []*domain.DeliveryAttempt) {
	outcomes := make([]domain.RecipientOutcome, len(recipients))
	attempts := make([]*domain.DeliveryAttempt, len(recipients))

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i := range recipients {
		g.Go(func() error {
			var recordID *int64
			if recordIDs != nil {
				id := recordIDs[i]
				recordID = &id
			}
			outcomes[i], attempts[i] = s.sendOne(ctx, kind, batchID, recipients[i], recordID)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes, attempts
}

func (s *DispatchService) sendOne(
	ctx context.Context,
	kind domain.BatchKind,
	batchID string,
	r domain.Recipient,
	recordID *int64,
) (domain.RecipientOutcome, *domain.DeliveryAttempt) {
	failed := func(reason string, info string) domain.RecipientOutcome {
		return domain.RecipientOutcome{Recipient: r, Status: domain.DeliveryFailed, Reason: reason, Info: info}
	}

	if r.Invalid || r.NormalizedNumber == "" {
		return failed(domain.ReasonInvalidNumber, ""), nil
	}
	if strings.TrimSpace(r.Message) == "" {
		return failed(domain.ReasonEmptyMessage, ""), nil
	}

	kindLabel := strings.ToLower(kind.String())
	s.metrics.IncGatewayInFlight(kindLabel)
	defer s.metrics.DecGatewayInFlight(kindLabel)

	if err := s.rateLimiter.Wait(ctx, ratelimit.GatewayKey); err != nil {
		return failed(domain.ReasonTransport, fmt.Sprintf("rate limiter wait failed: %v", err)), nil
	}

	sendStart := s.now()
	resp, sendErr := s.provider.Send(ctx, provider.Message{To: r.NormalizedNumber, Body: r.Message})
	s.metrics.ObserveGatewaySendDuration(kindLabel, s.now().Sub(sendStart))

	attempt := s.newAttempt(batchID, recordID, r.NormalizedNumber, resp, sendErr)

	if sendErr != nil {
		reason := provider.FailureReason(sendErr)
		s.logger.Warn("gateway send failed",
			zap.String("batchId", batchID),
			zap.String("number", r.NormalizedNumber),
			zap.String("reason", reason),
			zap.Error(sendErr),
		)
		return failed(reason, sendErr.Error()), attempt
	}

	info := ""
	if resp != nil {
		info = resp.MessageID
		if info == "" {
			info = resp.Body
		}
	}
	return domain.RecipientOutcome{Recipient: r, Status: domain.DeliverySent, Info: info}, attempt
}

func (s *DispatchService) newAttempt(
	batchID string,
	recordID *int64,
	number string,
	resp *provider.ProviderResponse,
	sendErr error,
) *domain.DeliveryAttempt {
	var statusCode *int
	var responseBody *string
	var attemptErr *string

	if resp != nil {
		if resp.StatusCode > 0 {
			value := resp.StatusCode
			statusCode = &value
		}
		if body := strings.TrimSpace(resp.Body); body != "" {
			responseBody = &body
		}
	}

	if sendErr != nil {
		value := sendErr.Error()
		attemptErr = &value

		var providerErr *provider.ProviderError
		if errors.As(sendErr, &providerErr) && providerErr.StatusCode > 0 && statusCode == nil {
			value := providerErr.StatusCode
			statusCode = &value
		}
	}

	return &domain.DeliveryAttempt{
		ID:              uuid.NewString(),
		BatchID:         batchID,
		FailedMessageID: recordID,
		Number:          number,
		StatusCode:      statusCode,
		ResponseBody:    responseBody,
		Error:           attemptErr,
		CreatedAt:       s.now().UTC(),
	}
}

// persistFailures stores one failure record per failed outcome and copies the
// assigned ids back. A storage error is logged; the delivery result stands.
func (s *DispatchService) persistFailures(ctx context.Context, batchID string, outcomes []domain.RecipientOutcome) {
	records := make([]*domain.FailedMessage, 0)
	positions := make([]int, 0)
	now := s.now().UTC()

	for i, o := range outcomes {
		if o.Status != domain.DeliveryFailed {
			continue
		}
		var lastError *string
		if o.Info != "" {
			info := o.Info
			lastError = &info
		}
		records = append(records, &domain.FailedMessage{
			BatchID:          batchID,
			OriginalNumber:   o.Recipient.RawNumber,
			NormalizedNumber: o.Recipient.NormalizedNumber,
			Message:          o.Recipient.Message,
			Reason:           o.Reason,
			AttemptCount:     1,
			LastError:        lastError,
			CreatedAt:        now,
			UpdatedAt:        now,
		})
		positions = append(positions, i)
	}
	if len(records) == 0 {
		return
	}

	if err := s.failures.CreateBatch(ctx, records); err != nil {
		s.logger.Error("failed to persist failure records",
			zap.String("batchId", batchID),
			zap.Int("count", len(records)),
			zap.Error(err),
		)
		return
	}

	for i, record := range records {
		outcomes[positions[i]].RecordID = record.ID
	}
}

func (s *DispatchService) finish(
	ctx context.Context,
	kind domain.BatchKind,
	batch *domain.BatchRecord,
	outcomes []domain.RecipientOutcome,
	attempts []*domain.DeliveryAttempt,
	skipped []domain.SkippedRecipient,
) *domain.DispatchResult {
	result := &domain.DispatchResult{
		BatchID: batch.ID,
		Skipped: skipped,
	}

	kindLabel := strings.ToLower(kind.String())
	for _, o := range outcomes {
		if o.Status == domain.DeliverySent {
			result.Succeeded = append(result.Succeeded, o)
			s.metrics.IncSent(kindLabel)
			continue
		}
		result.Failed = append(result.Failed, o)
		s.metrics.IncFailed(kindLabel, o.Reason)
	}
	result.SentCount = len(result.Succeeded)
	result.FailedCount = len(result.Failed)
	result.Message = fmt.Sprintf("Sent: %d, Failed: %d", result.SentCount, result.FailedCount)

	skippedByReason := make(map[string]int)
	for _, sk := range skipped {
		skippedByReason[sk.Reason]++
	}
	for reason, count := range skippedByReason {
		s.metrics.AddSkipped(reason, count)
	}

	recorded := make([]*domain.DeliveryAttempt, 0, len(attempts))
	for _, a := range attempts {
		if a != nil {
			recorded = append(recorded, a)
		}
	}
	if err := s.attempts.CreateBatch(ctx, recorded); err != nil {
		s.logger.Error("failed to record delivery attempts",
			zap.String("batchId", batch.ID),
			zap.Error(err),
		)
	}

	if err := s.batches.Complete(ctx, batch.ID, result.SentCount, result.FailedCount); err != nil {
		s.logger.Error("failed to complete dispatch batch",
			zap.String("batchId", batch.ID),
			zap.Error(err),
		)
	}

	logger := observability.WithContextLogger(s.logger, ctx)
	fields := []zap.Field{
		zap.String("batchId", batch.ID),
		zap.String("kind", kind.String()),
		zap.Int("sent", result.SentCount),
		zap.Int("failed", result.FailedCount),
		zap.Int("skipped", len(skipped)),
	}
	if result.FailedCount > 0 {
		logger.Info("dispatch completed with partial delivery", fields...)
	} else {
		logger.Info("dispatch completed", fields...)
	}

	return result
}

func failureDetail(o domain.RecipientOutcome) string {
	if o.Info != "" {
		return o.Info
	}
	return o.Reason
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
