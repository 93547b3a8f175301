package operator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/kursadbilgin/sms-dispatch/internal/backend"
	"github.com/kursadbilgin/sms-dispatch/internal/domain"
	"github.com/kursadbilgin/sms-dispatch/internal/observability"
	"github.com/kursadbilgin/sms-dispatch/internal/recipient"
	"github.com/kursadbilgin/sms-dispatch/internal/selection"
	"go.uber.org/zap"
)

// Backend is the dispatch API as the operator core uses it.
type Backend interface {
	SubmitBatch(ctx context.Context, rows []domain.Row, selectedIndices []int) (domain.DispatchResult, error)
	ManualSend(ctx context.Context, numbers string, message string) (domain.DispatchResult, error)
	ListFailures(ctx context.Context) ([]domain.FailedMessage, error)
	ResendFailures(ctx context.Context, ids []int64) (domain.DispatchResult, error)
	ExportPartition(ctx context.Context, partition backend.Partition, outcomes []domain.RecipientOutcome) (*backend.Artifact, error)
}

// Orchestrator builds a batch from the current selection, submits it once and
// checks the response before handing it back.
type Orchestrator struct {
	backend   Backend
	extractor *recipient.Extractor
	workspace *Workspace
	guards    *Guards
	logger    *zap.Logger
}

func NewOrchestrator(b Backend, extractor *recipient.Extractor, workspace *Workspace, guards *Guards, logger *zap.Logger) (*Orchestrator, error) {
	if b == nil {
		return nil, fmt.Errorf("backend is required")
	}
	if extractor == nil {
		return nil, fmt.Errorf("extractor is required")
	}
	if workspace == nil {
		return nil, fmt.Errorf("workspace is required")
	}
	if guards == nil {
		guards = NewGuards()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Orchestrator{
		backend:   b,
		extractor: extractor,
		workspace: workspace,
		guards:    guards,
		logger:    logger,
	}, nil
}

// DispatchSelected dispatches the workspace's current selection. The dataset
// and the selection are read together so a concurrent upload cannot pair the
// old selection with new rows.
func (o *Orchestrator) DispatchSelected(ctx context.Context) (*domain.DispatchResult, error) {
	dataset, selected := o.workspace.Selection().Snapshot()
	return o.dispatch(ctx, dataset, selected)
}

// Dispatch submits the rows at selectedIndices of the current dataset as one batch.
func (o *Orchestrator) Dispatch(ctx context.Context, selectedIndices []int) (*domain.DispatchResult, error) {
	return o.dispatch(ctx, o.workspace.Dataset(), selectedIndices)
}

func (o *Orchestrator) dispatch(ctx context.Context, dataset *selection.Dataset, selectedIndices []int) (*domain.DispatchResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(selectedIndices) == 0 {
		return nil, domain.ErrEmptySelection
	}

	release, err := o.guards.Acquire(KindDispatch)
	if err != nil {
		return nil, err
	}
	defer release()

	rows := dataset.Rows()

	batch, err := o.buildBatch(dataset.ID(), rows, selectedIndices)
	if err != nil {
		return nil, err
	}

	logger := observability.WithContextLogger(o.logger, ctx).With(
		zap.String("datasetId", batch.DatasetID),
		zap.Int("rows", len(batch.RowIndices)),
		zap.Int("recipients", len(batch.Recipients)),
		zap.Int("skipped", len(batch.Skipped)),
	)

	result, err := o.backend.SubmitBatch(ctx, rows, batch.RowIndices)
	if err != nil {
		logSubmitError(logger, err)
		return nil, err
	}

	if err := domain.CheckPartition(batch.Recipients, result); err != nil {
		logger.Error("dispatch response violates partition contract",
			zap.Int("sent", result.SentCount),
			zap.Int("failed", result.FailedCount),
			zap.Error(err),
		)
		return nil, err
	}

	result.DatasetID = batch.DatasetID
	if len(result.Skipped) == 0 {
		result.Skipped = batch.Skipped
	}
	logOutcome(logger, result)

	if err := o.workspace.Hold(&result); err != nil {
		logger.Warn("dataset replaced while dispatch was outstanding", zap.Error(err))
	}
	return &result, nil
}

// ManualSend sends one message to a typed list of numbers.
func (o *Orchestrator) ManualSend(ctx context.Context, numbers string, message string) (*domain.DispatchResult, error) {
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

	release, err := o.guards.Acquire(KindManual)
	if err != nil {
		return nil, err
	}
	defer release()

	recipients, _ := o.extractor.FromNumbers(list, message)
	logger := observability.WithContextLogger(o.logger, ctx).With(zap.Int("recipients", len(recipients)))

	result, err := o.backend.ManualSend(ctx, numbers, message)
	if err != nil {
		logSubmitError(logger, err)
		return nil, err
	}

	if err := domain.CheckPartition(recipients, result); err != nil {
		logger.Error("manual send response violates partition contract",
			zap.Int("sent", result.SentCount),
			zap.Int("failed", result.FailedCount),
			zap.Error(err),
		)
		return nil, err
	}

	logOutcome(logger, result)
	return &result, nil
}

// buildBatch extracts recipients fresh from rows. It never calls the network.
func (o *Orchestrator) buildBatch(datasetID string, rows []domain.Row, selectedIndices []int) (*domain.DispatchBatch, error) {
	recipients, skipped, err := o.extractor.Extract(rows, selectedIndices)
	if err != nil {
		return nil, err
	}
	if len(recipients) == 0 {
		return nil, fmt.Errorf("%w: selected rows carry no phone numbers", domain.ErrEmptySelection)
	}

	indices := uniqueSorted(selectedIndices)
	batchRows := make([]domain.Row, 0, len(indices))
	for _, index := range indices {
		batchRows = append(batchRows, rows[index])
	}

	return &domain.DispatchBatch{
		DatasetID:  datasetID,
		RowIndices: indices,
		Rows:       batchRows,
		Recipients: recipients,
		Skipped:    skipped,
	}, nil
}

func logSubmitError(logger *zap.Logger, err error) {
	switch {
	case errors.Is(err, domain.ErrProtocolMismatch):
		logger.Error("dispatch api response is malformed", zap.Error(err))
	case errors.Is(err, domain.ErrTransport):
		logger.Warn("dispatch api unreachable", zap.Error(err))
	default:
		logger.Warn("dispatch api rejected request", zap.Error(err))
	}
}

func logOutcome(logger *zap.Logger, result domain.DispatchResult) {
	fields := []zap.Field{
		zap.String("batchId", result.BatchID),
		zap.Int("sent", result.SentCount),
		zap.Int("failed", result.FailedCount),
	}
	if result.FailedCount > 0 {
		logger.Info("batch partially delivered", fields...)
		return
	}
	logger.Info("batch delivered", fields...)
}

func uniqueSorted(indices []int) []int {
	seen := make(map[int]struct{}, len(indices))
	out := make([]int, 0, len(indices))
	for _, index := range indices {
		if _, ok := seen[index]; ok {
			continue
		}
		seen[index] = struct{}{}
		out = append(out, index)
	}
	sort.Ints(out)
	return out
}
