package operator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kursadbilgin/sms-dispatch/internal/domain"
	"github.com/kursadbilgin/sms-dispatch/internal/observability"
	"go.uber.org/zap"
)

// ResendCoordinator lists persisted failures and resends a chosen subset.
// Ids are checked against the most recent listing before anything is sent.
type ResendCoordinator struct {
	backend Backend
	guards  *Guards
	logger  *zap.Logger
	now     func() time.Time

	mu    sync.Mutex
	known map[int64]domain.FailedMessage
}

func NewResendCoordinator(b Backend, guards *Guards, logger *zap.Logger) (*ResendCoordinator, error) {
	if b == nil {
		return nil, fmt.Errorf("backend is required")
	}
	if guards == nil {
		guards = NewGuards()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ResendCoordinator{
		backend: b,
		guards:  guards,
		logger:  logger,
		now:     time.Now,
		known:   make(map[int64]domain.FailedMessage),
	}, nil
}

// List fetches the failure records. It always goes to the API since records
// are resolved out of band.
func (r *ResendCoordinator) List(ctx context.Context) ([]domain.FailedMessage, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	records, err := r.backend.ListFailures(ctx)
	if err != nil {
		return nil, err
	}

	known := make(map[int64]domain.FailedMessage, len(records))
	for _, record := range records {
		known[record.ID] = record
	}

	r.mu.Lock()
	r.known = known
	r.mu.Unlock()

	return records, nil
}

// Resend resubmits the chosen records verbatim. Resolved ids are rejected
// without a network call; ids missing from the last listing are rejected too.
func (r *ResendCoordinator) Resend(ctx context.Context, ids []int64) (*domain.DispatchResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	requested := dedupeIDs(ids)
	if len(requested) == 0 {
		return nil, domain.ErrEmptyResendSelection
	}
	listed, err := r.checkRequested(requested)
	if err != nil {
		return nil, err
	}

	release, err := r.guards.Acquire(KindResend)
	if err != nil {
		return nil, err
	}
	defer release()

	logger := observability.WithContextLogger(r.logger, ctx).With(zap.Int64s("ids", requested))

	result, err := r.backend.ResendFailures(ctx, requested)
	if err != nil {
		logSubmitError(logger, err)
		return nil, err
	}

	if err := checkResendPartition(listed, requested, result); err != nil {
		logger.Error("resend response violates partition contract",
			zap.Int("sent", result.SentCount),
			zap.Int("failed", result.FailedCount),
			zap.Error(err),
		)
		return nil, err
	}

	r.markResolved(logger, result.Succeeded)
	logOutcome(logger, result)
	return &result, nil
}

// Record returns the locally known state of one failure record.
func (r *ResendCoordinator) Record(id int64) (domain.FailedMessage, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.known[id]
	return record, ok
}

// checkRequested returns the listed records for ids, or the reason they cannot be resent.
func (r *ResendCoordinator) checkRequested(ids []int64) (map[int64]domain.FailedMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	listed := make(map[int64]domain.FailedMessage, len(ids))
	var unknown, resolved []int64
	for _, id := range ids {
		record, ok := r.known[id]
		switch {
		case !ok:
			unknown = append(unknown, id)
		case record.Resolved:
			resolved = append(resolved, id)
		default:
			listed[id] = record
		}
	}
	if len(resolved) > 0 {
		return nil, domain.NewAlreadyResolvedError(resolved)
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("%w: failure records %v are not in the current listing", domain.ErrInvalidSelection, unknown)
	}
	return listed, nil
}

func (r *ResendCoordinator) markResolved(logger *zap.Logger, succeeded []domain.RecipientOutcome) {
	resolvedAt := r.now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, outcome := range succeeded {
		if outcome.Reason == domain.ReasonResolveNotRecorded {
			logger.Warn("resend delivered but record is still pending on the server",
				zap.Int64("failedMessageId", outcome.RecordID),
			)
			continue
		}
		record, ok := r.known[outcome.RecordID]
		if !ok {
			continue
		}
		record.Resolved = true
		record.ResolvedAt = &resolvedAt
		r.known[outcome.RecordID] = record
	}
}

// checkResendPartition requires every requested id exactly once across the
// two lists and nothing else, each with the number it was listed with.
func checkResendPartition(listed map[int64]domain.FailedMessage, requested []int64, result domain.DispatchResult) error {
	if err := result.CheckCounts(len(requested)); err != nil {
		return err
	}

	pending := make(map[int64]bool, len(requested))
	for _, id := range requested {
		pending[id] = true
	}

	consume := func(outcomes []domain.RecipientOutcome, want domain.DeliveryStatus) error {
		for _, outcome := range outcomes {
			if outcome.Status != want {
				return fmt.Errorf("%w: record %d listed as %s with status %q",
					domain.ErrProtocolMismatch, outcome.RecordID, want, outcome.Status)
			}
			if !pending[outcome.RecordID] {
				return fmt.Errorf("%w: record %d was not requested or is repeated",
					domain.ErrProtocolMismatch, outcome.RecordID)
			}
			if record, ok := listed[outcome.RecordID]; ok && outcome.Recipient.NormalizedNumber != record.NormalizedNumber {
				return fmt.Errorf("%w: record %d resent to %s, listed as %s",
					domain.ErrProtocolMismatch, outcome.RecordID, outcome.Recipient.NormalizedNumber, record.NormalizedNumber)
			}
			pending[outcome.RecordID] = false
		}
		return nil
	}

	if err := consume(result.Succeeded, domain.DeliverySent); err != nil {
		return err
	}
	return consume(result.Failed, domain.DeliveryFailed)
}

func dedupeIDs(ids []int64) []int64 {
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
