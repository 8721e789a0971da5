package table

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/tombamento-bot/internal/core/domain"
)

const (
	FormatXLSX = "xlsx"
	FormatCSV  = "csv"

	sheetName = "Tombamentos"
)

// FormatFromPath picks the table format from the file extension.
func FormatFromPath(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	case ".csv":
		return FormatCSV, nil
	case ".xls":
		return "", fmt.Errorf("%w: legacy .xls workbooks cannot be read, save the table as .xlsx or .csv", domain.ErrInvalidInput)
	default:
		return "", fmt.Errorf("%w: unsupported table format %q", domain.ErrInvalidInput, filepath.Ext(path))
	}
}

// Store reads and writes single-column identifier tables.
type Store struct{}

func NewStore() *Store {
	return &Store{}
}

func (s *Store) Read(_ context.Context, path string) ([]domain.Identifier, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}

	var rows [][]string
	switch format {
	case FormatXLSX:
		rows, err = readXLSX(path)
	default:
		rows, err = readCSV(path)
	}
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "read table "+filepath.Base(path), err)
	}
	return parseRows(rows)
}

func (s *Store) Write(ctx context.Context, path string, ids []domain.Identifier) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := s.Encode(ctx, &buf, format, ids); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write table: %w", err)
	}
	return nil
}

func (s *Store) Encode(_ context.Context, w io.Writer, format string, ids []domain.Identifier) error {
	switch format {
	case FormatXLSX:
		return encodeXLSX(w, ids)
	case FormatCSV:
		return encodeCSV(w, ids)
	default:
		return fmt.Errorf("%w: unsupported table format %q", domain.ErrInvalidInput, format)
	}
}

func readXLSX(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	return rows, nil
}

func readCSV(path string) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	return rows, nil
}

// parseRows locates the identifier column in the header row and
// validates every non-blank value under it. Row numbers are 1-based as
// shown by spreadsheet software.
func parseRows(rows [][]string) ([]domain.Identifier, error) {
	if len(rows) == 0 {
		return nil, domain.ErrMissingColumn
	}
	col := -1
	for i, cell := range rows[0] {
		if strings.TrimSpace(strings.TrimPrefix(cell, "\uFEFF")) == domain.IdentifierColumn {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, domain.ErrMissingColumn
	}

	out := make([]domain.Identifier, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if col >= len(row) || strings.TrimSpace(row[col]) == "" {
			continue
		}
		id, err := domain.ParseIdentifier(row[col])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		out = append(out, id)
	}
	return out, nil
}

func encodeXLSX(w io.Writer, ids []domain.Identifier) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetCellValue(sheetName, "A1", domain.IdentifierColumn); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, id := range ids {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheetName, cell, id.String()); err != nil {
			return fmt.Errorf("write %s: %w", cell, err)
		}
	}
	if err := f.SetColWidth(sheetName, "A", "A", 22); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func encodeCSV(w io.Writer, ids []domain.Identifier) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{domain.IdentifierColumn}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, id := range ids {
		if err := cw.Write([]string{id.String()}); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
