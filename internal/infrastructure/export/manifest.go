package export

import (
	"context"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/wms-platform/qrbatch-service/internal/application"
	"github.com/wms-platform/qrbatch-service/internal/domain"
)

const (
	summarySheet = "Summary"
	masterSheet  = "Master Codes"
	uniqueSheet  = "Unique Codes"
)

// ManifestConfig bounds the code sheets of a manifest
type ManifestConfig struct {
	// RowsPerSheet is the number of code rows before a sheet continues on
	// a numbered sibling, e.g. "Unique Codes 2"
	RowsPerSheet int
}

// DefaultManifestConfig fills each sheet up to the xlsx row limit
func DefaultManifestConfig() ManifestConfig {
	return ManifestConfig{RowsPerSheet: excelize.TotalRows - 1}
}

// ManifestExporter writes a batch's codes as an xlsx workbook: a summary
// sheet, the master codes in case order, then the unique codes in sequence
// order. Code sheets are written through stream writers one page at a time.
type ManifestExporter struct {
	config ManifestConfig
}

// NewManifestExporter creates a new exporter
func NewManifestExporter(config ManifestConfig) *ManifestExporter {
	if config.RowsPerSheet <= 0 || config.RowsPerSheet > excelize.TotalRows-1 {
		config = DefaultManifestConfig()
	}
	return &ManifestExporter{config: config}
}

// Extension is the file extension of written manifests
func (e *ManifestExporter) Extension() string {
	return "xlsx"
}

// Export drains pages into the workbook and writes it to w
func (e *ManifestExporter) Export(ctx context.Context, batch *domain.Batch, pages application.CodePages, w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return fmt.Errorf("failed to name summary sheet: %w", err)
	}
	if err := writeSummary(f, batch, header); err != nil {
		return err
	}

	masters := &sheetWriter{
		file:    f,
		base:    masterSheet,
		columns: []interface{}{"Case", "Code", "Expected Units", "Status"},
		widths:  []float64{10, 40, 16, 16},
		limit:   e.config.RowsPerSheet,
		style:   header,
	}
	for {
		page, err := pages.NextMasters(ctx)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			break
		}
		for _, m := range page {
			if err := masters.add(m.CaseNumber, m.Code, m.ExpectedUnits, string(m.Status)); err != nil {
				return err
			}
		}
	}
	if err := masters.close(); err != nil {
		return err
	}

	uniques := &sheetWriter{
		file:    f,
		base:    uniqueSheet,
		columns: []interface{}{"Sequence", "Case", "Code", "Status"},
		widths:  []float64{12, 10, 40, 16},
		limit:   e.config.RowsPerSheet,
		style:   header,
	}
	for {
		page, err := pages.NextUniques(ctx)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			break
		}
		for _, u := range page {
			if err := uniques.add(u.Sequence, u.CaseNumber, u.Code, string(u.Status)); err != nil {
				return err
			}
		}
	}
	if err := uniques.close(); err != nil {
		return err
	}

	f.SetActiveSheet(0)
	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

func writeSummary(f *excelize.File, batch *domain.Batch, header int) error {
	rows := [][]interface{}{
		{"Field", "Value"},
		{"Batch", batch.ID},
		{"Order", batch.OrderID},
		{"Variant", batch.VariantID},
		{"Quantity", batch.Quantity},
		{"Buffer %", batch.BufferPercentage},
		{"Units Per Case", batch.UnitsPerCase},
		{"Master Codes", batch.TotalMasterCodes},
		{"Unique Codes", batch.TotalUniqueCodes},
		{"Created", batch.CreatedAt.UTC().Format("2006-01-02 15:04:05")},
	}
	sw, err := f.NewStreamWriter(summarySheet)
	if err != nil {
		return fmt.Errorf("failed to open summary sheet: %w", err)
	}
	if err := sw.SetColWidth(1, 2, 20); err != nil {
		return fmt.Errorf("failed to size summary sheet: %w", err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		var opts []excelize.RowOpts
		if i == 0 {
			opts = append(opts, excelize.RowOpts{StyleID: header})
		}
		if err := sw.SetRow(cell, row, opts...); err != nil {
			return fmt.Errorf("failed to write summary: %w", err)
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("failed to flush summary sheet: %w", err)
	}
	return nil
}

// sheetWriter appends rows to a code sheet, continuing on a new numbered
// sheet once limit rows are written
type sheetWriter struct {
	file    *excelize.File
	base    string
	columns []interface{}
	widths  []float64
	limit   int
	style   int

	stream *excelize.StreamWriter
	sheets int
	row    int
}

func (s *sheetWriter) add(values ...interface{}) error {
	if s.stream == nil || s.row > s.limit {
		if err := s.next(); err != nil {
			return err
		}
	}
	cell, err := excelize.CoordinatesToCellName(1, s.row+1)
	if err != nil {
		return err
	}
	if err := s.stream.SetRow(cell, values); err != nil {
		return fmt.Errorf("failed to write %s row %d: %w", s.base, s.row, err)
	}
	s.row++
	return nil
}

// next flushes the open sheet and starts the following one with its header
func (s *sheetWriter) next() error {
	if err := s.flush(); err != nil {
		return err
	}
	s.sheets++
	name := s.base
	if s.sheets > 1 {
		name = fmt.Sprintf("%s %d", s.base, s.sheets)
	}
	if _, err := s.file.NewSheet(name); err != nil {
		return fmt.Errorf("failed to add sheet %s: %w", name, err)
	}
	stream, err := s.file.NewStreamWriter(name)
	if err != nil {
		return fmt.Errorf("failed to open sheet %s: %w", name, err)
	}
	for i, width := range s.widths {
		if err := stream.SetColWidth(i+1, i+1, width); err != nil {
			return fmt.Errorf("failed to size sheet %s: %w", name, err)
		}
	}
	if err := stream.SetRow("A1", s.columns, excelize.RowOpts{StyleID: s.style}); err != nil {
		return fmt.Errorf("failed to write %s header: %w", name, err)
	}
	s.stream = stream
	s.row = 1
	return nil
}

func (s *sheetWriter) flush() error {
	if s.stream == nil {
		return nil
	}
	if err := s.stream.Flush(); err != nil {
		return fmt.Errorf("failed to flush %s: %w", s.base, err)
	}
	s.stream = nil
	return nil
}

// close finishes the last sheet. A kind without codes still gets a header
// only sheet.
func (s *sheetWriter) close() error {
	if s.sheets == 0 {
		if err := s.next(); err != nil {
			return err
		}
	}
	return s.flush()
}
