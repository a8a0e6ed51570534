package export

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleAgenda() Agenda {
	day := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	return Agenda{
		Title: "Ana's circles",
		From:  day,
		To:    day.AddDate(0, 0, 7),
		Items: []AgendaItem{
			{ID: "event-2", Title: "Breathwork", Start: day.Add(18 * time.Hour), End: day.Add(19 * time.Hour), Kind: "event", Category: "breath", Cancelled: true},
			{ID: "new_moon-2024-03-10", Title: "New Moon", Start: day, End: day, AllDay: true, Kind: "celestial"},
			{ID: "event-1", Title: "Morning sit", Start: day.Add(9 * time.Hour), End: day.Add(9*time.Hour + 30*time.Minute), Kind: "event", Public: true},
		},
	}
}

func TestCSVExporterOrdersByStart(t *testing.T) {
	out, err := NewCSVExporter().Render(sampleAgenda())
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "Date,Start,End,Title,Kind,Category,Status", lines[0])
	assert.Equal(t, "2024-03-10,all day,,New Moon,celestial,,active", lines[1])
	assert.Equal(t, "2024-03-10,09:00,09:30,Morning sit,event,,active", lines[2])
	assert.Equal(t, "2024-03-10,18:00,19:00,Breathwork,event,breath,cancelled", lines[3])
}

func TestICSExporterWritesEvents(t *testing.T) {
	exporter := NewICSExporter("")
	exporter.now = func() time.Time { return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC) }

	out, err := exporter.Render(sampleAgenda())
	require.NoError(t, err)

	body := string(out)
	assert.Contains(t, body, "BEGIN:VCALENDAR")
	assert.Contains(t, body, "UID:event-1")
	assert.Contains(t, body, "UID:new_moon-2024-03-10")
	assert.Contains(t, body, "STATUS:CANCELLED")
	assert.Contains(t, body, "X-WR-CALNAME:Ana's circles")
	assert.Equal(t, 3, strings.Count(body, "BEGIN:VEVENT"))
}

func TestPDFExporterRenders(t *testing.T) {
	out, err := NewPDFExporter().Render(sampleAgenda())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(out), "%PDF"))
}
