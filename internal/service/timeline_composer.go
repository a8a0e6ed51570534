package service

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/circle-calendar-api/internal/models"
)

// TimelineComposer merges persisted entries with generated markers and
// assigns display tags. Styling depends only on each entry's own fields.
type TimelineComposer struct {
	palette *Palette
	logger  *zap.Logger
}

// NewTimelineComposer constructs a composer.
func NewTimelineComposer(palette *Palette, logger *zap.Logger) *TimelineComposer {
	if palette == nil {
		palette = DefaultPalette()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TimelineComposer{palette: palette, logger: logger}
}

// Compose concatenates persisted entries and, when showMarkers is set, the
// marker entries. Order is preserved; callers sort for display. A malformed
// entry is dropped on its own and never empties the result.
func (c *TimelineComposer) Compose(persisted, markers []models.TimelineEntry, showMarkers bool) []models.TimelineEntry {
	result := make([]models.TimelineEntry, 0, len(persisted)+len(markers))
	for _, entry := range persisted {
		if styled, ok := c.styleSafely(entry); ok {
			result = append(result, styled)
		}
	}
	if !showMarkers {
		return result
	}
	for _, entry := range markers {
		if styled, ok := c.styleSafely(entry); ok {
			result = append(result, styled)
		}
	}
	return result
}

// Style returns the tags for a single entry.
func (c *TimelineComposer) Style(entry models.TimelineEntry) (models.StyleTags, error) {
	switch entry.Resource.Kind {
	case models.ResourceKindCelestial:
		if entry.Resource.Marker == nil {
			return models.StyleTags{}, fmt.Errorf("celestial entry %q without marker", entry.ID)
		}
		return models.StyleTags{
			Fill:      models.FillNone,
			BoldLabel: true,
		}, nil
	case models.ResourceKindEvent:
		event := entry.Resource.Event
		if event == nil {
			return models.StyleTags{}, fmt.Errorf("event entry %q without event", entry.ID)
		}
		tags := models.StyleTags{
			Fill:        models.FillCategory,
			Color:       c.palette.ColorFor(event.Category),
			Interactive: true,
			Tone:        models.TonePersonal,
			Owned:       entry.Style.Owned,
		}
		if event.Source == models.EventSourceOrganizational {
			tags.Tone = models.ToneOrganizational
			if event.Category == "" {
				tags.Color = c.palette.Organizational
			}
		}
		if event.Status == models.EventStatusCancelled {
			tags.Fill = models.FillMuted
			tags.Color = c.palette.Muted
			tags.Strikethrough = true
		}
		return tags, nil
	default:
		return models.StyleTags{}, fmt.Errorf("entry %q has unknown kind %q", entry.ID, entry.Resource.Kind)
	}
}

func (c *TimelineComposer) styleSafely(entry models.TimelineEntry) (styled models.TimelineEntry, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("dropping entry during compose", zap.String("entry_id", entry.ID), zap.Any("panic", r))
			ok = false
		}
	}()

	tags, err := c.Style(entry)
	if err != nil {
		c.logger.Warn("dropping entry during compose", zap.String("entry_id", entry.ID), zap.Error(err))
		return models.TimelineEntry{}, false
	}
	entry.Style = tags
	return entry, true
}

// MarkOwnership returns a copy of entries with Owned set for events owned by
// viewerID.
func MarkOwnership(entries []models.TimelineEntry, viewerID string) []models.TimelineEntry {
	out := make([]models.TimelineEntry, len(entries))
	copy(out, entries)
	for i := range out {
		out[i].Style.Owned = viewerID != "" && out[i].Resource.Owner() == viewerID
	}
	return out
}
