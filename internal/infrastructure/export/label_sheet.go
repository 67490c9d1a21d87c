package export

import (
	"bytes"
	"context"
	"fmt"

	"github.com/jung-kurt/gofpdf"
	"github.com/skip2/go-qrcode"

	"github.com/wms-platform/qrbatch-service/internal/domain"
)

// SheetConfig is the A4 label grid
type SheetConfig struct {
	Cols       int
	Rows       int
	MarginTop  float64
	MarginLeft float64
	GapX       float64
	GapY       float64
	QRSize     int // PNG pixels
}

// DefaultSheetConfig returns a 4x8 grid with 5mm margins
func DefaultSheetConfig() SheetConfig {
	return SheetConfig{
		Cols:       4,
		Rows:       8,
		MarginTop:  5,
		MarginLeft: 5,
		GapX:       2,
		GapY:       2,
		QRSize:     256,
	}
}

// LabelSheetExporter renders a run of cases as a PDF label sheet. Each case
// label is followed by the labels of the units it holds.
type LabelSheetExporter struct {
	config SheetConfig
}

// NewLabelSheetExporter creates a new exporter
func NewLabelSheetExporter(config SheetConfig) *LabelSheetExporter {
	if config.Cols <= 0 || config.Rows <= 0 {
		config = DefaultSheetConfig()
	}
	if config.QRSize <= 0 {
		config.QRSize = DefaultSheetConfig().QRSize
	}
	return &LabelSheetExporter{config: config}
}

type label struct {
	content string
	caption string
	tag     string
}

// orderLabels interleaves case labels with their units, units without a
// known case trailing at the end
func orderLabels(masters []domain.MasterCode, uniques []domain.UniqueCode) []label {
	byCase := make(map[int][]domain.UniqueCode, len(masters))
	for _, u := range uniques {
		byCase[u.CaseNumber] = append(byCase[u.CaseNumber], u)
	}

	labels := make([]label, 0, len(masters)+len(uniques))
	for _, m := range masters {
		labels = append(labels, label{
			content: m.Code,
			caption: m.Code,
			tag:     fmt.Sprintf("CASE %d", m.CaseNumber),
		})
		for _, u := range byCase[m.CaseNumber] {
			labels = append(labels, label{content: u.Code, caption: u.Code, tag: fmt.Sprintf("#%d", u.Sequence)})
		}
		delete(byCase, m.CaseNumber)
	}
	for _, u := range uniques {
		if _, orphan := byCase[u.CaseNumber]; orphan {
			labels = append(labels, label{content: u.Code, caption: u.Code, tag: fmt.Sprintf("#%d", u.Sequence)})
		}
	}
	return labels
}

// Render draws one label per given code
func (e *LabelSheetExporter) Render(ctx context.Context, batch *domain.Batch, masters []domain.MasterCode, uniques []domain.UniqueCode) ([]byte, error) {
	cfg := e.config
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetTitle(fmt.Sprintf("QR batch %s", batch.ID), true)
	pdf.SetFont("Arial", "B", 10)

	pageWidth, pageHeight := pdf.GetPageSize()
	labelW := (pageWidth - cfg.MarginLeft*2 - float64(cfg.Cols-1)*cfg.GapX) / float64(cfg.Cols)
	labelH := (pageHeight - cfg.MarginTop*2 - float64(cfg.Rows-1)*cfg.GapY) / float64(cfg.Rows)
	qrSide := labelH * 0.7
	if qrSide > labelW {
		qrSide = labelW * 0.9
	}
	perPage := cfg.Cols * cfg.Rows
	imgOptions := gofpdf.ImageOptions{ImageType: "PNG", ReadDpi: true}

	labels := orderLabels(masters, uniques)
	if len(labels) == 0 {
		pdf.AddPage()
		pdf.SetXY(cfg.MarginLeft, cfg.MarginTop)
		pdf.CellFormat(labelW*float64(cfg.Cols), 10, fmt.Sprintf("Order %s: no codes", batch.OrderID), "", 0, "L", false, 0, "")
	}

	for i, l := range labels {
		if i%perPage == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			pdf.AddPage()
			pdf.SetFontSize(6)
			pdf.SetXY(cfg.MarginLeft, 1)
			pdf.CellFormat(pageWidth-cfg.MarginLeft*2, 3,
				fmt.Sprintf("Order %s / Batch %s / Page %d", batch.OrderID, batch.ID, i/perPage+1), "", 0, "L", false, 0, "")
		}

		slot := i % perPage
		x := cfg.MarginLeft + float64(slot%cfg.Cols)*(labelW+cfg.GapX)
		y := cfg.MarginTop + float64(slot/cfg.Cols)*(labelH+cfg.GapY)

		png, err := qrcode.Encode(l.content, qrcode.Medium, cfg.QRSize)
		if err != nil {
			return nil, fmt.Errorf("failed to encode QR %s: %w", l.content, err)
		}
		name := fmt.Sprintf("qr_%d", i)
		pdf.RegisterImageOptionsReader(name, imgOptions, bytes.NewReader(png))
		pdf.ImageOptions(name, x+(labelW-qrSide)/2, y+(labelH-qrSide)/2-2, qrSide, qrSide, false, imgOptions, 0, "")

		pdf.SetXY(x, y+labelH-6)
		pdf.SetFontSize(7)
		pdf.CellFormat(labelW, 5, l.caption, "", 0, "C", false, 0, "")

		pdf.SetXY(x, y+1)
		pdf.SetFontSize(6)
		pdf.CellFormat(labelW, 3, l.tag, "", 0, "R", false, 0, "")
	}

	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("failed to build label sheet: %w", err)
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to write label sheet: %w", err)
	}
	return buf.Bytes(), nil
}
