package service

import (
	"fmt"
	"math"
	"time"

	"github.com/noah-isme/circle-calendar-api/internal/models"
	"github.com/noah-isme/circle-calendar-api/pkg/config"
)

// MarkerGenerator computes the four quarter-phase markers of a fixed cycle
// for a window. It performs no I/O and holds no mutable state.
type MarkerGenerator struct {
	epoch time.Time
	cycle float64 // nanoseconds
}

// NewMarkerGenerator builds a generator from the marker configuration.
func NewMarkerGenerator(cfg config.MarkersConfig) *MarkerGenerator {
	epoch := cfg.Epoch
	if epoch.IsZero() {
		epoch = config.DefaultMarkerEpoch
	}
	days := cfg.CycleDays
	if days <= 0 {
		days = config.DefaultMarkerCycleDays
	}
	return &MarkerGenerator{
		epoch: epoch.UTC(),
		cycle: days * float64(24*time.Hour),
	}
}

// Generate returns markers whose calendar day lies in [start, end], both
// taken as UTC days. An inverted window yields nothing.
func (g *MarkerGenerator) Generate(start, end time.Time) []models.CelestialMarker {
	startDay := utcDay(start)
	endDay := utcDay(end)
	if endDay.Before(startDay) {
		return nil
	}

	// Begin one cycle early and stop one cycle late; membership is decided
	// per phase day, never by the loop bounds.
	k := int64(math.Floor(float64(start.Sub(g.epoch))/g.cycle)) - 1
	limit := end.Add(time.Duration(g.cycle))

	seen := make(map[string]struct{})
	var markers []models.CelestialMarker
	for ; ; k++ {
		cycleStart := g.at(k, 0)
		if cycleStart.After(limit) {
			break
		}
		for i, kind := range models.PhaseKinds {
			day := utcDay(g.at(k, float64(i)/4))
			if day.Before(startDay) || day.After(endDay) {
				continue
			}
			id := fmt.Sprintf("%s-%s", kind, day.Format("2006-01-02"))
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			markers = append(markers, models.CelestialMarker{
				ID:        id,
				Label:     kind.Label(),
				Date:      day,
				PhaseKind: kind,
			})
		}
	}
	return markers
}

// Entries wraps Generate output as all-day timeline entries.
func (g *MarkerGenerator) Entries(start, end time.Time) []models.TimelineEntry {
	markers := g.Generate(start, end)
	entries := make([]models.TimelineEntry, 0, len(markers))
	for i := range markers {
		m := markers[i]
		entries = append(entries, models.TimelineEntry{
			ID:     m.ID,
			Title:  m.Label,
			Start:  m.Date,
			End:    m.Date.AddDate(0, 0, 1),
			AllDay: true,
			Resource: models.Resource{
				Kind:   models.ResourceKindCelestial,
				Marker: &m,
			},
		})
	}
	return entries
}

func (g *MarkerGenerator) at(cycleIndex int64, fraction float64) time.Time {
	offset := (float64(cycleIndex) + fraction) * g.cycle
	return g.epoch.Add(time.Duration(offset))
}

func utcDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
