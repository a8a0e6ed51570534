package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

// PDFExporter renders an agenda into a printable landscape table.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

var pdfColumnWidths = []float64{28, 20, 20, 110, 25, 45, 29}

// Render creates a PDF document with a header line and one row per item.
// Cancelled rows are printed in grey.
func (e *PDFExporter) Render(agenda Agenda) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 12, 10)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	title := agenda.Title
	if title == "" {
		title = "Agenda"
	}
	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(0, 9, tr(title), "", 1, "L", false, 0, "")
	pdf.SetFont("Arial", "", 9)
	pdf.CellFormat(0, 6, fmt.Sprintf("%s - %s", agenda.From.Format("2006-01-02"), agenda.To.Format("2006-01-02")), "", 1, "L", false, 0, "")
	pdf.Ln(3)

	pdf.SetFont("Arial", "B", 9)
	for i, header := range agendaHeaders {
		pdf.CellFormat(pdfColumnWidths[i], 7, header, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 8)
	for _, item := range agenda.Sorted() {
		if item.Cancelled {
			pdf.SetTextColor(150, 150, 150)
		} else {
			pdf.SetTextColor(0, 0, 0)
		}
		for i, value := range item.columns() {
			pdf.CellFormat(pdfColumnWidths[i], 6, tr(value), "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
