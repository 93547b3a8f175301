package operator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kursadbilgin/sms-dispatch/internal/backend"
	"github.com/kursadbilgin/sms-dispatch/internal/domain"
	"github.com/kursadbilgin/sms-dispatch/internal/observability"
	"go.uber.org/zap"
)

const (
	workbookExt       = ".xlsx"
	manualUploadName  = "manual_send"
	exportFileMode    = 0o644
	exportDirFileMode = 0o755
)

// ExportedFile is one partition written to disk.
type ExportedFile struct {
	Partition backend.Partition
	Path      string
	Count     int
}

// ExportWriter requests one workbook per partition of a dispatch result and
// stores it under a name derived from the originating upload.
type ExportWriter struct {
	backend   Backend
	workspace *Workspace
	guards    *Guards
	dir       string
	logger    *zap.Logger
}

func NewExportWriter(b Backend, workspace *Workspace, guards *Guards, dir string, logger *zap.Logger) (*ExportWriter, error) {
	if b == nil {
		return nil, fmt.Errorf("backend is required")
	}
	if workspace == nil {
		return nil, fmt.Errorf("workspace is required")
	}
	if guards == nil {
		guards = NewGuards()
	}
	if strings.TrimSpace(dir) == "" {
		dir = "."
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ExportWriter{
		backend:   b,
		workspace: workspace,
		guards:    guards,
		dir:       dir,
		logger:    logger,
	}, nil
}

// Export writes one partition of result. An empty partition is
// ErrNothingToExport and no request is made.
func (w *ExportWriter) Export(ctx context.Context, result *domain.DispatchResult, partition backend.Partition) (*ExportedFile, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if result == nil {
		return nil, domain.ErrNothingToExport
	}

	var outcomes []domain.RecipientOutcome
	switch partition {
	case backend.PartitionSuccessful:
		outcomes = result.Succeeded
	case backend.PartitionFailed:
		outcomes = result.Failed
	default:
		return nil, fmt.Errorf("%w: unknown partition %q", domain.ErrValidation, partition)
	}
	if len(outcomes) == 0 {
		return nil, fmt.Errorf("%w: %s partition is empty", domain.ErrNothingToExport, partition)
	}
	uploadName, err := w.workspace.UploadName(result)
	if err != nil {
		return nil, err
	}

	release, err := w.guards.Acquire(KindExport)
	if err != nil {
		return nil, err
	}
	defer release()

	artifact, err := w.backend.ExportPartition(ctx, partition, outcomes)
	if err != nil {
		return nil, err
	}
	// The dataset may have been replaced while the artifact was generated.
	if !w.workspace.IsCurrent(result) {
		observability.WithContextLogger(w.logger, ctx).Warn("dataset replaced while export was outstanding",
			zap.String("partition", partition.String()),
			zap.String("datasetId", result.DatasetID),
		)
		return nil, domain.ErrStaleResult
	}

	name := ExportFilename(partition, uploadName)
	path := filepath.Join(w.dir, name)
	if err := os.MkdirAll(w.dir, exportDirFileMode); err != nil {
		return nil, fmt.Errorf("failed to create export dir: %w", err)
	}
	if err := os.WriteFile(path, artifact.Data, exportFileMode); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", name, err)
	}

	observability.WithContextLogger(w.logger, ctx).Info("partition exported",
		zap.String("partition", partition.String()),
		zap.String("path", path),
		zap.String("serverFilename", artifact.Filename),
		zap.Int("recipients", len(outcomes)),
	)

	return &ExportedFile{Partition: partition, Path: path, Count: len(outcomes)}, nil
}

// ExportAll writes every non-empty partition of result.
func (w *ExportWriter) ExportAll(ctx context.Context, result *domain.DispatchResult) ([]ExportedFile, error) {
	if result == nil || (len(result.Succeeded) == 0 && len(result.Failed) == 0) {
		return nil, domain.ErrNothingToExport
	}

	var files []ExportedFile
	for _, partition := range []backend.Partition{backend.PartitionSuccessful, backend.PartitionFailed} {
		if partition == backend.PartitionSuccessful && len(result.Succeeded) == 0 {
			continue
		}
		if partition == backend.PartitionFailed && len(result.Failed) == 0 {
			continue
		}
		file, err := w.Export(ctx, result, partition)
		if err != nil {
			return files, err
		}
		files = append(files, *file)
	}
	return files, nil
}

// ExportFilename prefixes the upload's base name with Successful_ or Failed_
// and makes sure it ends in .xlsx.
func ExportFilename(partition backend.Partition, uploadName string) string {
	prefix := "Successful_"
	if partition == backend.PartitionFailed {
		prefix = "Failed_"
	}

	base := filepath.Base(strings.TrimSpace(uploadName))
	if base == "." || base == string(filepath.Separator) || base == "" {
		base = "recipients"
	}
	ext := filepath.Ext(base)
	if !strings.EqualFold(ext, workbookExt) {
		base = strings.TrimSuffix(base, ext) + workbookExt
	}
	return prefix + base
}
