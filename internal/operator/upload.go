package operator

import (
	"fmt"
	"path/filepath"

	"github.com/kursadbilgin/sms-dispatch/internal/domain"
	"github.com/kursadbilgin/sms-dispatch/internal/selection"
	"go.uber.org/zap"
)

type RowParser interface {
	ParseFile(path string) ([]domain.Row, error)
}

// Uploader loads a file into the workspace as a new dataset.
type Uploader struct {
	parser    RowParser
	workspace *Workspace
	guards    *Guards
	logger    *zap.Logger
}

func NewUploader(parser RowParser, workspace *Workspace, guards *Guards, logger *zap.Logger) (*Uploader, error) {
	if parser == nil {
		return nil, fmt.Errorf("row parser is required")
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
	return &Uploader{parser: parser, workspace: workspace, guards: guards, logger: logger}, nil
}

// Upload parses path and replaces the current dataset. A failed parse leaves
// the workspace untouched. name defaults to the file's base name.
func (u *Uploader) Upload(path string, name string) (*selection.Dataset, error) {
	release, err := u.guards.Acquire(KindUpload)
	if err != nil {
		return nil, err
	}
	defer release()

	rows, err := u.parser.ParseFile(path)
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = filepath.Base(path)
	}

	dataset := u.workspace.Load(name, rows)
	u.logger.Info("dataset loaded",
		zap.String("datasetId", dataset.ID()),
		zap.String("name", dataset.Name()),
		zap.Int("rows", dataset.Len()),
	)
	return dataset, nil
}
