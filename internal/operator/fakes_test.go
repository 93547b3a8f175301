package operator

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/kursadbilgin/sms-dispatch/internal/backend"
	"github.com/kursadbilgin/sms-dispatch/internal/domain"
	"github.com/kursadbilgin/sms-dispatch/internal/recipient"
)

type fakeBackend struct {
	mu    sync.Mutex
	calls map[string]int

	submitFn func(ctx context.Context, rows []domain.Row, selected []int) (domain.DispatchResult, error)
	manualFn func(ctx context.Context, numbers string, message string) (domain.DispatchResult, error)
	listFn   func(ctx context.Context) ([]domain.FailedMessage, error)
	resendFn func(ctx context.Context, ids []int64) (domain.DispatchResult, error)
	exportFn func(ctx context.Context, partition backend.Partition, outcomes []domain.RecipientOutcome) (*backend.Artifact, error)
}

func (f *fakeBackend) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[name]++
}

func (f *fakeBackend) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeBackend) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

func (f *fakeBackend) SubmitBatch(ctx context.Context, rows []domain.Row, selected []int) (domain.DispatchResult, error) {
	f.record("submit")
	if f.submitFn != nil {
		return f.submitFn(ctx, rows, selected)
	}
	return domain.DispatchResult{}, errors.New("not implemented")
}

func (f *fakeBackend) ManualSend(ctx context.Context, numbers string, message string) (domain.DispatchResult, error) {
	f.record("manual")
	if f.manualFn != nil {
		return f.manualFn(ctx, numbers, message)
	}
	return domain.DispatchResult{}, errors.New("not implemented")
}

func (f *fakeBackend) ListFailures(ctx context.Context) ([]domain.FailedMessage, error) {
	f.record("list")
	if f.listFn != nil {
		return f.listFn(ctx)
	}
	return nil, nil
}

func (f *fakeBackend) ResendFailures(ctx context.Context, ids []int64) (domain.DispatchResult, error) {
	f.record("resend")
	if f.resendFn != nil {
		return f.resendFn(ctx, ids)
	}
	return domain.DispatchResult{}, errors.New("not implemented")
}

func (f *fakeBackend) ExportPartition(ctx context.Context, partition backend.Partition, outcomes []domain.RecipientOutcome) (*backend.Artifact, error) {
	f.record("export")
	if f.exportFn != nil {
		return f.exportFn(ctx, partition, outcomes)
	}
	return &backend.Artifact{Filename: "x.xlsx", Data: []byte("PK")}, nil
}

func newTestExtractor(t *testing.T) *recipient.Extractor {
	t.Helper()

	extractor, err := recipient.NewExtractor(recipient.DefaultFieldMapping(), recipient.NewNormalizer("880", 11))
	if err != nil {
		t.Fatalf("NewExtractor() error = %v", err)
	}
	return extractor
}

// serverPartition plays the dispatch API: it extracts recipients the same way
// and fails the ones fail reports true for.
func serverPartition(extractor *recipient.Extractor, fail func(domain.Recipient) bool) func(context.Context, []domain.Row, []int) (domain.DispatchResult, error) {
	return func(_ context.Context, rows []domain.Row, selected []int) (domain.DispatchResult, error) {
		recipients, skipped, err := extractor.Extract(rows, selected)
		if err != nil {
			return domain.DispatchResult{}, err
		}
		return partition(recipients, skipped, fail), nil
	}
}

func partition(recipients []domain.Recipient, skipped []domain.SkippedRecipient, fail func(domain.Recipient) bool) domain.DispatchResult {
	result := domain.DispatchResult{BatchID: "batch-1", Skipped: skipped}
	for _, r := range recipients {
		if fail != nil && fail(r) {
			result.Failed = append(result.Failed, domain.RecipientOutcome{
				Recipient: r, Status: domain.DeliveryFailed, Reason: domain.ReasonGatewayRejected,
			})
			continue
		}
		result.Succeeded = append(result.Succeeded, domain.RecipientOutcome{Recipient: r, Status: domain.DeliverySent})
	}
	result.SentCount = len(result.Succeeded)
	result.FailedCount = len(result.Failed)
	return result
}
