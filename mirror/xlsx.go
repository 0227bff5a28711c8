package mirror

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/xuri/excelize/v2"
)

// DefaultSheet is the worksheet the XLSX sink maintains.
const DefaultSheet = "Products"

// XLSXSink keeps a worksheet in step with the mirror: rows are updated in
// place by hash, new hashes appended and rows whose hash is gone deleted.
// Cells left blank by a sync keep their previous value.
type XLSXSink struct {
	path  string
	sheet string
}

// NewXLSXSink creates a sink for the workbook at path.
func NewXLSXSink(path, sheet string) *XLSXSink {
	if sheet == "" {
		sheet = DefaultSheet
	}
	return &XLSXSink{path: path, sheet: sheet}
}

// Sync upserts rows and deletes stale ones.
func (s *XLSXSink) Sync(_ context.Context, rows []Row) error {
	f, err := s.open()
	if err != nil {
		return err
	}
	defer f.Close()

	if err := s.writeHeader(f); err != nil {
		return err
	}

	wanted := make(map[string]Row, len(rows))
	for _, r := range rows {
		wanted[r.Hash] = r
	}

	existing, err := f.GetRows(s.sheet)
	if err != nil {
		return fmt.Errorf("read sheet %s: %w", s.sheet, err)
	}

	// the first row of a hash is the one kept
	first := make(map[string]int, len(existing))
	for i := 1; i < len(existing); i++ {
		hash := cell(existing[i], 0)
		if _, ok := first[hash]; !ok {
			first[hash] = i
		}
	}

	// bottom up so row numbers above stay valid
	deleted := 0
	for i := len(existing) - 1; i >= 1; i-- {
		hash := cell(existing[i], 0)
		if _, ok := wanted[hash]; ok && first[hash] == i {
			continue
		}
		if err := f.RemoveRow(s.sheet, i+1); err != nil {
			return fmt.Errorf("remove row %d: %w", i+1, err)
		}
		deleted++
	}

	existing, err = f.GetRows(s.sheet)
	if err != nil {
		return fmt.Errorf("read sheet %s: %w", s.sheet, err)
	}
	present := make(map[string]bool, len(existing))
	updated := 0
	for i := 1; i < len(existing); i++ {
		hash := cell(existing[i], 0)
		row, ok := wanted[hash]
		if !ok || present[hash] {
			continue
		}
		present[hash] = true
		if err := s.setRow(f, i+1, merge(existing[i], row)); err != nil {
			return err
		}
		updated++
	}

	next := len(existing) + 1
	if next < 2 {
		next = 2
	}
	added := 0
	for _, row := range rows {
		if present[row.Hash] {
			continue
		}
		if err := s.setRow(f, next, row.Values()); err != nil {
			return err
		}
		present[row.Hash] = true
		next++
		added++
	}

	if err := ensureDir(s.path); err != nil {
		return err
	}
	if err := f.SaveAs(s.path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}

	slog.Debug("mirror workbook synced",
		slog.String("path", s.path),
		slog.Int("updated", updated),
		slog.Int("added", added),
		slog.Int("deleted", deleted),
	)
	return nil
}

func (s *XLSXSink) open() (*excelize.File, error) {
	f, err := excelize.OpenFile(s.path)
	switch {
	case err == nil:
		if idx, _ := f.GetSheetIndex(s.sheet); idx == -1 {
			if _, err := f.NewSheet(s.sheet); err != nil {
				f.Close()
				return nil, fmt.Errorf("create sheet %s: %w", s.sheet, err)
			}
		}
		return f, nil
	case errors.Is(err, os.ErrNotExist):
		f = excelize.NewFile()
		if err := f.SetSheetName("Sheet1", s.sheet); err != nil {
			f.Close()
			return nil, fmt.Errorf("name sheet %s: %w", s.sheet, err)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("open workbook: %w", err)
	}
}

func (s *XLSXSink) writeHeader(f *excelize.File) error {
	return s.setRow(f, 1, Header)
}

func (s *XLSXSink) setRow(f *excelize.File, n int, values []string) error {
	cellName, err := excelize.CoordinatesToCellName(1, n)
	if err != nil {
		return fmt.Errorf("cell name for row %d: %w", n, err)
	}
	row := make([]interface{}, len(values))
	for i, v := range values {
		row[i] = v
	}
	if err := f.SetSheetRow(s.sheet, cellName, &row); err != nil {
		return fmt.Errorf("write row %d: %w", n, err)
	}
	return nil
}

func merge(old []string, row Row) []string {
	values := row.Values()
	for i := range values {
		if values[i] == "" {
			values[i] = cell(old, i)
		}
	}
	return values
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}
