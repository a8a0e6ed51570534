package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/noah-isme/circle-calendar-api/internal/models"
	appErrors "github.com/noah-isme/circle-calendar-api/pkg/errors"
	"github.com/noah-isme/circle-calendar-api/pkg/export"
)

// Export formats.
const (
	ExportCSV = "csv"
	ExportPDF = "pdf"
	ExportICS = "ics"
)

type agendaRenderer interface {
	Render(agenda export.Agenda) ([]byte, error)
}

// ExportFile is a rendered download.
type ExportFile struct {
	Filename    string
	ContentType string
	Body        []byte
	Fingerprint string
}

// ExportService renders composed timelines as downloadable agendas.
type ExportService struct {
	timeline  snapshotter
	renderers map[string]agendaRenderer
	types     map[string]string
}

// NewExportService wires the CSV, PDF and ICS exporters.
func NewExportService(timeline snapshotter, productID string) *ExportService {
	return &ExportService{
		timeline: timeline,
		renderers: map[string]agendaRenderer{
			ExportCSV: export.NewCSVExporter(),
			ExportPDF: export.NewPDFExporter(),
			ExportICS: export.NewICSExporter(productID),
		},
		types: map[string]string{
			ExportCSV: "text/csv",
			ExportPDF: "application/pdf",
			ExportICS: "text/calendar; charset=utf-8",
		},
	}
}

// Export composes req and renders it in format.
func (s *ExportService) Export(ctx context.Context, req TimelineRequest, format, title string) (ExportFile, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	renderer, ok := s.renderers[format]
	if !ok {
		return ExportFile{}, appErrors.Clone(appErrors.ErrValidation, "format must be csv, pdf or ics")
	}

	snapshot, err := s.timeline.Snapshot(ctx, req)
	if err != nil {
		return ExportFile{}, err
	}

	body, err := renderer.Render(AgendaFromSnapshot(title, snapshot))
	if err != nil {
		return ExportFile{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	return ExportFile{
		Filename:    fmt.Sprintf("timeline_%s_%s.%s", req.Start.Format("20060102"), req.End.Format("20060102"), format),
		ContentType: s.types[format],
		Body:        body,
		Fingerprint: snapshot.Fingerprint,
	}, nil
}

// AgendaFromSnapshot flattens a composed snapshot into export rows.
func AgendaFromSnapshot(title string, snapshot models.TimelineSnapshot) export.Agenda {
	items := make([]export.AgendaItem, 0, len(snapshot.Entries))
	for _, entry := range snapshot.Entries {
		item := export.AgendaItem{
			ID:     entry.ID,
			Title:  entry.Title,
			Start:  entry.Start,
			End:    entry.End,
			AllDay: entry.AllDay,
			Kind:   string(entry.Resource.Kind),
			Color:  entry.Style.Color,
		}
		if ev := entry.Resource.Event; ev != nil {
			item.Category = ev.Category
			item.Cancelled = ev.Status == models.EventStatusCancelled
			item.Public = ev.Visibility == models.VisibilityPublic
			item.Owner = ev.Owner
		}
		items = append(items, item)
	}
	return export.Agenda{
		Title: title,
		From:  snapshot.WindowStart,
		To:    snapshot.WindowEnd,
		Items: items,
	}
}
