package operator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kursadbilgin/sms-dispatch/internal/domain"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newTestOrchestrator(t *testing.T, b Backend, logger *zap.Logger) (*Orchestrator, *Workspace) {
	t.Helper()

	extractor := newTestExtractor(t)
	workspace := NewWorkspace(extractor)
	o, err := NewOrchestrator(b, extractor, workspace, NewGuards(), logger)
	if err != nil {
		t.Fatalf("NewOrchestrator() error = %v", err)
	}
	return o, workspace
}

func TestDispatchSubmitsDedupedRecipientsOnce(t *testing.T) {
	t.Parallel()

	fb := &fakeBackend{}
	o, workspace := newTestOrchestrator(t, fb, nil)
	fb.submitFn = serverPartition(o.extractor, nil)

	workspace.Load("results.xlsx", []domain.Row{
		{"Student Phone No": "01700000001", "Guardian Phone No": "01700000002", "Result": "A: 80"},
		{"Student Phone No": "01700000001", "Result": "B: 70"},
		{"Name": "C", "Result": "C: 60"},
	})
	workspace.Selection().SelectAll()

	result, err := o.DispatchSelected(context.Background())
	if err != nil {
		t.Fatalf("DispatchSelected() unexpected error = %v", err)
	}

	if fb.callCount("submit") != 1 {
		t.Fatalf("submit calls = %d, want 1", fb.callCount("submit"))
	}
	if result.SentCount+result.FailedCount != 2 {
		t.Fatalf("submitted = %d, want 2", result.SentCount+result.FailedCount)
	}
	roles := map[domain.Role]bool{}
	for _, outcome := range result.Succeeded {
		if outcome.Recipient.RowIndex != 0 {
			t.Fatalf("recipient from row %d, want row 0 only", outcome.Recipient.RowIndex)
		}
		roles[outcome.Recipient.Role] = true
	}
	if !roles[domain.RoleStudent] || !roles[domain.RoleGuardian] {
		t.Fatalf("roles = %v, want student and guardian of row 0", roles)
	}
	if len(result.Skipped) != 1 || result.Skipped[0].Recipient.RowIndex != 1 || result.Skipped[0].Reason != domain.ReasonDuplicate {
		t.Fatalf("skipped = %+v, want row 1 duplicate", result.Skipped)
	}
	if result.DatasetID != workspace.Dataset().ID() {
		t.Fatalf("DatasetID = %q, want %q", result.DatasetID, workspace.Dataset().ID())
	}
	if held, ok := workspace.Result(); !ok || held.BatchID != "batch-1" {
		t.Fatalf("held result = %+v, %v", held, ok)
	}
}

func TestDispatchInputErrorsMakeNoNetworkCall(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		rows    []domain.Row
		indices []int
		wantErr error
	}{
		{name: "empty selection", rows: []domain.Row{{"Student Phone No": "01700000001"}}, indices: nil, wantErr: domain.ErrEmptySelection},
		{name: "rows without numbers", rows: []domain.Row{{"Name": "x"}}, indices: []int{0}, wantErr: domain.ErrEmptySelection},
		{name: "out of range", rows: []domain.Row{{"Student Phone No": "01700000001"}}, indices: []int{0, 3}, wantErr: domain.ErrInvalidSelection},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fb := &fakeBackend{}
			o, workspace := newTestOrchestrator(t, fb, nil)
			workspace.Load("rows.json", tt.rows)

			_, err := o.Dispatch(context.Background(), tt.indices)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Dispatch() error = %v, want %v", err, tt.wantErr)
			}
			if fb.totalCalls() != 0 {
				t.Fatalf("backend calls = %d, want 0", fb.totalCalls())
			}
		})
	}
}

func TestDispatchRejectsBrokenPartition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mangle func(*domain.DispatchResult)
	}{
		{name: "counts exceed lists", mangle: func(r *domain.DispatchResult) { r.SentCount++ }},
		{name: "recipient dropped", mangle: func(r *domain.DispatchResult) {
			r.Succeeded = r.Succeeded[1:]
			r.SentCount--
		}},
		{name: "recipient in both lists", mangle: func(r *domain.DispatchResult) {
			dup := r.Succeeded[0]
			dup.Status = domain.DeliveryFailed
			r.Failed = append(r.Failed, dup)
			r.Succeeded = r.Succeeded[1:]
			r.Succeeded = append(r.Succeeded, domain.RecipientOutcome{Recipient: dup.Recipient, Status: domain.DeliverySent})
			r.FailedCount++
		}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			core, logs := observer.New(zapcore.ErrorLevel)
			fb := &fakeBackend{}
			o, workspace := newTestOrchestrator(t, fb, zap.New(core))

			honest := serverPartition(o.extractor, nil)
			fb.submitFn = func(ctx context.Context, rows []domain.Row, selected []int) (domain.DispatchResult, error) {
				result, err := honest(ctx, rows, selected)
				if err == nil {
					tt.mangle(&result)
				}
				return result, err
			}

			workspace.Load("rows.json", []domain.Row{
				{"Student Phone No": "01700000001", "Guardian Phone No": "01700000002", "Result": "x"},
			})

			result, err := o.Dispatch(context.Background(), []int{0})
			if !errors.Is(err, domain.ErrProtocolMismatch) {
				t.Fatalf("Dispatch() error = %v, want ErrProtocolMismatch", err)
			}
			if result != nil {
				t.Fatalf("result = %+v, want nil", result)
			}
			if _, held := workspace.Result(); held {
				t.Fatal("a rejected result must not be held")
			}
			if logs.Len() != 1 {
				t.Fatalf("error logs = %d, want 1", logs.Len())
			}
		})
	}
}

func TestDispatchPartialDeliveryIsNotAnError(t *testing.T) {
	t.Parallel()

	fb := &fakeBackend{}
	o, workspace := newTestOrchestrator(t, fb, nil)
	fb.submitFn = serverPartition(o.extractor, func(r domain.Recipient) bool {
		return r.Role == domain.RoleGuardian
	})

	workspace.Load("rows.json", []domain.Row{
		{"Student Phone No": "01700000001", "Guardian Phone No": "01700000002", "Result": "a"},
		{"Student Phone No": "01700000003", "Guardian Phone No": "01700000004", "Result": "b"},
		{"Student Phone No": "01700000005", "Result": "c"},
	})

	result, err := o.Dispatch(context.Background(), []int{0, 1, 2})
	if err != nil {
		t.Fatalf("Dispatch() unexpected error = %v", err)
	}
	if result.SentCount != 3 || result.FailedCount != 2 {
		t.Fatalf("counts = %d/%d, want 3/2", result.SentCount, result.FailedCount)
	}
}

func TestDispatchTransportErrorPassesThrough(t *testing.T) {
	t.Parallel()

	fb := &fakeBackend{
		submitFn: func(context.Context, []domain.Row, []int) (domain.DispatchResult, error) {
			return domain.DispatchResult{}, domain.ErrTransport
		},
	}
	o, workspace := newTestOrchestrator(t, fb, nil)
	workspace.Load("rows.json", []domain.Row{{"Student Phone No": "01700000001", "Result": "a"}})

	if _, err := o.Dispatch(context.Background(), []int{0}); !errors.Is(err, domain.ErrTransport) {
		t.Fatalf("Dispatch() error = %v, want ErrTransport", err)
	}
	if _, held := workspace.Result(); held {
		t.Fatal("no result should be held after a transport failure")
	}
}

func TestDispatchIsSingleFlightPerKind(t *testing.T) {
	t.Parallel()

	entered := make(chan struct{})
	unblock := make(chan struct{})

	fb := &fakeBackend{}
	o, workspace := newTestOrchestrator(t, fb, nil)
	honest := serverPartition(o.extractor, nil)
	fb.submitFn = func(ctx context.Context, rows []domain.Row, selected []int) (domain.DispatchResult, error) {
		close(entered)
		<-unblock
		return honest(ctx, rows, selected)
	}
	fb.manualFn = func(ctx context.Context, numbers string, message string) (domain.DispatchResult, error) {
		recipients, skipped := o.extractor.FromNumbers([]string{numbers}, message)
		return partition(recipients, skipped, nil), nil
	}

	workspace.Load("rows.json", []domain.Row{{"Student Phone No": "01700000001", "Result": "a"}})

	done := make(chan error, 1)
	go func() {
		_, err := o.Dispatch(context.Background(), []int{0})
		done <- err
	}()

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first dispatch never reached the backend")
	}

	if _, err := o.Dispatch(context.Background(), []int{0}); !errors.Is(err, domain.ErrOperationInFlight) {
		t.Fatalf("second Dispatch() error = %v, want ErrOperationInFlight", err)
	}
	if _, err := o.ManualSend(context.Background(), "01700000009", "hello"); err != nil {
		t.Fatalf("ManualSend() during dispatch error = %v, want nil", err)
	}

	close(unblock)
	if err := <-done; err != nil {
		t.Fatalf("first Dispatch() error = %v", err)
	}
	if fb.callCount("submit") != 1 {
		t.Fatalf("submit calls = %d, want 1", fb.callCount("submit"))
	}

	if _, err := o.Dispatch(context.Background(), []int{0}); err != nil {
		t.Fatalf("Dispatch() after release error = %v", err)
	}
}

func TestManualSend(t *testing.T) {
	t.Parallel()

	fb := &fakeBackend{}
	o, _ := newTestOrchestrator(t, fb, nil)
	fb.manualFn = func(ctx context.Context, numbers string, message string) (domain.DispatchResult, error) {
		recipients, skipped := o.extractor.FromNumbers([]string{"01700000001", "+8801700000001", "01700000002"}, message)
		return partition(recipients, skipped, nil), nil
	}

	result, err := o.ManualSend(context.Background(), "01700000001, +8801700000001\n01700000002", "exam tomorrow")
	if err != nil {
		t.Fatalf("ManualSend() unexpected error = %v", err)
	}
	if result.SentCount != 2 {
		t.Fatalf("SentCount = %d, want 2 after dedupe", result.SentCount)
	}
	if result.DatasetID != "" {
		t.Fatalf("DatasetID = %q, want empty for manual sends", result.DatasetID)
	}

	for _, tc := range []struct{ numbers, message string }{
		{numbers: "01700000001", message: "  "},
		{numbers: " ,; ", message: "hello"},
	} {
		if _, err := o.ManualSend(context.Background(), tc.numbers, tc.message); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("ManualSend(%q, %q) error = %v, want ErrValidation", tc.numbers, tc.message, err)
		}
	}
	if fb.callCount("manual") != 1 {
		t.Fatalf("manual calls = %d, want 1", fb.callCount("manual"))
	}
}

func TestWorkspaceLoadResetsSelectionAndResult(t *testing.T) {
	t.Parallel()

	fb := &fakeBackend{}
	o, workspace := newTestOrchestrator(t, fb, nil)
	fb.submitFn = serverPartition(o.extractor, nil)

	rows := []domain.Row{
		{"Student Phone No": "01700000001", "Result": "a"},
		{"Student Phone No": "01700000002", "Result": "b"},
	}
	first := workspace.Load("first.xlsx", rows)
	workspace.Selection().SelectAll()

	result, err := o.DispatchSelected(context.Background())
	if err != nil {
		t.Fatalf("DispatchSelected() error = %v", err)
	}

	second := workspace.Load("second.xlsx", rows[:1])
	if first.ID() == second.ID() {
		t.Fatal("a new upload must get a new identity")
	}
	if workspace.Selection().Len() != 0 {
		t.Fatalf("selection = %v, want empty after reload", workspace.Selection().SelectedIndices())
	}
	if _, held := workspace.Result(); held {
		t.Fatal("held result must be dropped on reload")
	}
	if workspace.IsCurrent(result) {
		t.Fatal("result of the first dataset must be stale")
	}
	if err := workspace.Hold(result); !errors.Is(err, domain.ErrStaleResult) {
		t.Fatalf("Hold(stale) error = %v, want ErrStaleResult", err)
	}
}

func TestDispatchSelectedKeepsSelectionWithItsDataset(t *testing.T) {
	t.Parallel()

	fb := &fakeBackend{}
	o, workspace := newTestOrchestrator(t, fb, nil)

	first := workspace.Load("first.xlsx", []domain.Row{
		{"Student Phone No": "01700000001", "Result": "a"},
		{"Student Phone No": "01700000002", "Result": "b"},
	})
	workspace.Selection().SelectAll()

	replacement := []domain.Row{
		{"Student Phone No": "01799999991", "Result": "x"},
		{"Student Phone No": "01799999992", "Result": "y"},
	}
	var submitted []domain.Row
	inner := serverPartition(o.extractor, nil)
	fb.submitFn = func(ctx context.Context, rows []domain.Row, selected []int) (domain.DispatchResult, error) {
		submitted = rows
		workspace.Load("second.xlsx", replacement)
		return inner(ctx, rows, selected)
	}

	result, err := o.DispatchSelected(context.Background())
	if err != nil {
		t.Fatalf("DispatchSelected() unexpected error = %v", err)
	}

	for i, row := range submitted {
		if row.Field("Result") != []string{"a", "b"}[i] {
			t.Fatalf("submitted row %d = %v, want rows of the first dataset", i, row)
		}
	}
	for _, outcome := range result.Succeeded {
		if outcome.Recipient.NormalizedNumber == "8801799999991" || outcome.Recipient.NormalizedNumber == "8801799999992" {
			t.Fatalf("outcome %+v comes from the replacement dataset", outcome)
		}
	}
	if result.DatasetID != first.ID() {
		t.Fatalf("DatasetID = %q, want %q", result.DatasetID, first.ID())
	}
	if _, held := workspace.Result(); held {
		t.Fatal("result of a replaced dataset must not be held")
	}
	if workspace.IsCurrent(result) {
		t.Fatal("result of a replaced dataset must be stale")
	}
	if workspace.Selection().Len() != 0 {
		t.Fatalf("selection = %v, want empty after reload", workspace.Selection().SelectedIndices())
	}
}
