package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// CSVExporter renders an agenda into CSV bytes.
type CSVExporter struct{}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Render produces CSV encoded bytes, one row per agenda item.
func (e *CSVExporter) Render(agenda Agenda) ([]byte, error) {
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if err := writer.Write(agendaHeaders); err != nil {
		return nil, fmt.Errorf("write csv headers: %w", err)
	}
	for _, item := range agenda.Sorted() {
		if err := writer.Write(item.columns()); err != nil {
			return nil, fmt.Errorf("write csv row %s: %w", item.ID, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
