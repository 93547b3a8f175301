// Package upload turns operator files into dataset rows.
package upload

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kursadbilgin/sms-dispatch/internal/domain"
	"github.com/kursadbilgin/sms-dispatch/internal/recipient"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// Parser reads .xlsx workbooks and JSON row dumps. Header cells are cleaned
// up and common variants of the phone and result columns are renamed to the
// configured field names.
type Parser struct {
	mapping recipient.FieldMapping
	logger  *zap.Logger
}

func NewParser(mapping recipient.FieldMapping, logger *zap.Logger) (*Parser, error) {
	if err := mapping.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{mapping: mapping, logger: logger}, nil
}

// ParseFile picks the format from the file extension.
func (p *Parser) ParseFile(path string) ([]domain.Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return p.ParseWorkbook(f)
	case ".json":
		return p.ParseJSON(f)
	default:
		return nil, fmt.Errorf("%w: unsupported file type %q, want .xlsx or .json", domain.ErrValidation, filepath.Ext(path))
	}
}

// ParseWorkbook reads the first sheet. The first row is the header; fully
// empty rows are dropped.
func (p *Parser) ParseWorkbook(r io.Reader) ([]domain.Row, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: not a readable workbook: %v", domain.ErrValidation, err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			p.logger.Warn("failed to close workbook", zap.Error(err))
		}
	}()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: workbook has no sheets", domain.ErrValidation)
	}

	cells, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}
	if len(cells) == 0 {
		return nil, fmt.Errorf("%w: sheet %q is empty", domain.ErrValidation, sheets[0])
	}

	headers := p.canonicalHeaders(cells[0])
	rows := make([]domain.Row, 0, len(cells)-1)
	for _, record := range cells[1:] {
		row := make(domain.Row, len(headers))
		filled := false
		for i, header := range headers {
			if header == "" {
				continue
			}
			var value any
			if i < len(record) {
				if cell := strings.TrimSpace(record[i]); cell != "" {
					value = cell
					filled = true
				}
			}
			row[header] = value
		}
		if filled {
			rows = append(rows, row)
		}
	}

	p.logger.Debug("workbook parsed",
		zap.String("sheet", sheets[0]),
		zap.Strings("columns", headers),
		zap.Int("rows", len(rows)),
	)
	return rows, nil
}

// ParseJSON accepts either a bare array of row objects or {"data": [...]}.
func (p *Parser) ParseJSON(r io.Reader) ([]domain.Row, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	raw = bytes.TrimSpace(raw)

	var rows []domain.Row
	if len(raw) > 0 && raw[0] == '{' {
		var wrapped struct {
			Data []domain.Row `json:"data"`
		}
		if err := decodeNumbers(raw, &wrapped); err != nil {
			return nil, err
		}
		rows = wrapped.Data
	} else if err := decodeNumbers(raw, &rows); err != nil {
		return nil, err
	}

	out := make([]domain.Row, 0, len(rows))
	for _, row := range rows {
		if row == nil {
			continue
		}
		out = append(out, p.renameFields(row))
	}
	return out, nil
}

func decodeNumbers(raw []byte, out any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: invalid rows json: %v", domain.ErrValidation, err)
	}
	return nil
}

func (p *Parser) renameFields(row domain.Row) domain.Row {
	keys := make([]string, 0, len(row))
	for key := range row {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	headers := p.canonicalHeaders(keys)

	out := make(domain.Row, len(row))
	for i, key := range keys {
		out[headers[i]] = row[key]
	}
	return out
}

// canonicalHeaders cleans every header and renames the first variant of each
// known column. Exact matches always win over variants.
func (p *Parser) canonicalHeaders(raw []string) []string {
	headers := make([]string, len(raw))
	taken := make(map[string]bool, len(raw))
	for i, h := range raw {
		headers[i] = NormalizeHeader(h)
		taken[headers[i]] = true
	}

	for i, h := range headers {
		target := p.variantOf(h)
		if target == "" || target == h || taken[target] {
			continue
		}
		taken[target] = true
		headers[i] = target
	}
	return headers
}

func (p *Parser) variantOf(header string) string {
	lower := strings.ToLower(header)
	switch {
	case strings.Contains(lower, "result"):
		return p.mapping.Message
	case strings.Contains(lower, "guardian") && strings.Contains(lower, "phone"):
		return p.mapping.Guardian
	case strings.Contains(lower, "student") && strings.Contains(lower, "phone"):
		return p.mapping.Student
	}
	return ""
}

// NormalizeHeader collapses runs of whitespace, non-breaking spaces included.
func NormalizeHeader(header string) string {
	return strings.Join(strings.Fields(header), " ")
}
