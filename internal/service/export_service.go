package service

import (
	"fmt"
	"strings"

	"github.com/kursadbilgin/sms-dispatch/internal/domain"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const (
	exportSheet       = "Recipients"
	XLSXContentType   = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	exportDefaultName = "Sheet1"
)

var exportHeader = []any{"ID", "Row", "Role", "Number", "Normalized", "Status", "Reason", "Info"}

// ExportPartition names one half of a dispatch result.
type ExportPartition string

const (
	PartitionSuccessful ExportPartition = "successful"
	PartitionFailed     ExportPartition = "failed"
)

func (p ExportPartition) filenamePrefix() string {
	if p == PartitionFailed {
		return "Failed_"
	}
	return "Successful_"
}

// ExportArtifact is a generated workbook plus the filename hint for it.
type ExportArtifact struct {
	Filename    string
	ContentType string
	Data        []byte
}

type ExportService struct {
	logger *zap.Logger
}

func NewExportService(logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{logger: logger}
}

// Workbook renders one partition as an .xlsx file.
func (s *ExportService) Workbook(partition ExportPartition, outcomes []domain.RecipientOutcome) (*ExportArtifact, error) {
	if partition != PartitionSuccessful && partition != PartitionFailed {
		return nil, fmt.Errorf("%w: unknown partition %q", domain.ErrValidation, partition)
	}
	if len(outcomes) == 0 {
		return nil, domain.ErrNothingToExport
	}

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			s.logger.Warn("failed to close workbook", zap.Error(err))
		}
	}()

	if err := f.SetSheetName(exportDefaultName, exportSheet); err != nil {
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}
	if err := f.SetSheetRow(exportSheet, "A1", &exportHeader); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}
	if err := f.SetCellStyle(exportSheet, "A1", "H1", headerStyle); err != nil {
		return nil, fmt.Errorf("failed to style header: %w", err)
	}
	if err := f.SetColWidth(exportSheet, "D", "E", 18); err != nil {
		return nil, fmt.Errorf("failed to size columns: %w", err)
	}

	for i, o := range outcomes {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		row := exportRow(o)
		if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to render workbook: %w", err)
	}

	return &ExportArtifact{
		Filename:    partition.filenamePrefix() + "recipients.xlsx",
		ContentType: XLSXContentType,
		Data:        buf.Bytes(),
	}, nil
}

func exportRow(o domain.RecipientOutcome) []any {
	var id any = ""
	if o.RecordID > 0 {
		id = o.RecordID
	}
	var rowNumber any = ""
	if o.Recipient.RowIndex >= 0 {
		rowNumber = o.Recipient.RowIndex + 1
	}

	return []any{
		id,
		rowNumber,
		o.Recipient.Role.String(),
		o.Recipient.RawNumber,
		o.Recipient.NormalizedNumber,
		string(o.Status),
		o.Reason,
		strings.TrimSpace(o.Info),
	}
}
