package models

import "time"

// ResourceKind discriminates the payload carried by a timeline entry.
type ResourceKind string

const (
	ResourceKindEvent     ResourceKind = "event"
	ResourceKindCelestial ResourceKind = "celestial"
)

// Resource carries the typed payload of a timeline entry. Exactly one of
// Event or Marker is set, as named by Kind.
type Resource struct {
	Kind   ResourceKind     `json:"kind"`
	Event  *ScheduledEvent  `json:"event,omitempty"`
	Marker *CelestialMarker `json:"marker,omitempty"`
}

// Owner returns the owning actor of an event resource, or "" for markers.
func (r Resource) Owner() string {
	if r.Kind == ResourceKindEvent && r.Event != nil {
		return r.Event.Owner
	}
	return ""
}

// Fill values used by StyleTags.
const (
	FillNone     = "none"
	FillMuted    = "muted"
	FillCategory = "category"
)

// Tone values used by StyleTags.
const (
	ToneOrganizational = "organizational"
	TonePersonal       = "personal"
)

// StyleTags are display rules derived from an entry's fields.
type StyleTags struct {
	Fill          string `json:"fill"`
	Color         string `json:"color,omitempty"`
	BoldLabel     bool   `json:"bold_label"`
	Interactive   bool   `json:"interactive"`
	Strikethrough bool   `json:"strikethrough"`
	Tone          string `json:"tone,omitempty"`
	Owned         bool   `json:"owned"`
}

// TimelineEntry is the single canonical shape every renderable item takes.
type TimelineEntry struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	AllDay   bool      `json:"all_day"`
	Resource Resource  `json:"resource"`
	Style    StyleTags `json:"style"`
}

// TimelineSnapshot is a composed window ready for rendering.
type TimelineSnapshot struct {
	WindowStart time.Time       `json:"window_start"`
	WindowEnd   time.Time       `json:"window_end"`
	ShowMarkers bool            `json:"show_markers"`
	Entries     []TimelineEntry `json:"entries"`
	Fingerprint string          `json:"fingerprint"`
	GeneratedAt time.Time       `json:"generated_at"`
}
