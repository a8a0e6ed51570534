package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/circle-calendar-api/internal/models"
	appErrors "github.com/noah-isme/circle-calendar-api/pkg/errors"
)

func TestExportServiceRendersCSV(t *testing.T) {
	cancelled := eventEntry("evt-2", "actor-a", models.EventSourcePersonal, models.EventStatusCancelled, "breath")
	loader := &loaderStub{entries: []models.TimelineEntry{
		eventEntry("evt-1", "actor-a", models.EventSourcePersonal, models.EventStatusActive, ""),
		cancelled,
	}}
	svc := NewExportService(newTimelineService(loader), "")

	file, err := svc.Export(context.Background(), march, "CSV", "Ana")
	require.NoError(t, err)
	assert.Equal(t, "timeline_20240301_20240331.csv", file.Filename)
	assert.Equal(t, "text/csv", file.ContentType)
	assert.NotEmpty(t, file.Fingerprint)

	lines := strings.Split(strings.TrimSpace(string(file.Body)), "\n")
	require.Len(t, lines, 7)
	assert.Contains(t, string(file.Body), "evt-2,event,breath,cancelled")
	assert.Contains(t, string(file.Body), ",celestial,,active")
}

func TestExportServiceRejectsUnknownFormat(t *testing.T) {
	svc := NewExportService(newTimelineService(&loaderStub{}), "")
	_, err := svc.Export(context.Background(), march, "xlsx", "")
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestAgendaFromSnapshotCopiesEventFields(t *testing.T) {
	entry := eventEntry("evt-1", "actor-a", models.EventSourceOrganizational, models.EventStatusCancelled, "work")
	entry.Resource.Event.Visibility = models.VisibilityPublic
	entry.Style.Color = "#2563eb"

	agenda := AgendaFromSnapshot("t", models.TimelineSnapshot{Entries: []models.TimelineEntry{entry}})
	require.Len(t, agenda.Items, 1)
	item := agenda.Items[0]
	assert.Equal(t, "event", item.Kind)
	assert.Equal(t, "work", item.Category)
	assert.True(t, item.Cancelled)
	assert.True(t, item.Public)
	assert.Equal(t, "actor-a", item.Owner)
	assert.Equal(t, "#2563eb", item.Color)
}
