package models

import "time"

// Visibility controls who besides the owner sees an event.
type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityPublic  Visibility = "public"
)

// EventStatus marks whether a scheduled event still takes place.
type EventStatus string

const (
	EventStatusActive    EventStatus = "active"
	EventStatusCancelled EventStatus = "cancelled"
)

// EventSource tells personal events apart from community-run ones.
type EventSource string

const (
	EventSourcePersonal       EventSource = "personal"
	EventSourceOrganizational EventSource = "organizational"
)

// ScheduledEvent is a persisted, user-owned calendar event.
type ScheduledEvent struct {
	ID         string      `json:"id"`
	Title      string      `json:"title"`
	Start      time.Time   `json:"start"`
	End        time.Time   `json:"end"`
	AllDay     bool        `json:"all_day"`
	Owner      string      `json:"owner"`
	Visibility Visibility  `json:"visibility"`
	Category   string      `json:"category,omitempty"`
	Status     EventStatus `json:"status"`
	Source     EventSource `json:"source"`
}

// Ref returns the addressable identity of the event.
func (e ScheduledEvent) Ref() EventRef {
	return EventRef{Source: e.Source, ID: e.ID}
}

// RawEventRecord is a stored row before normalisation. Field names vary
// between the personal and the legacy community schema.
type RawEventRecord map[string]interface{}

// EventRef addresses one event row.
type EventRef struct {
	Source EventSource `json:"source"`
	ID     string      `json:"id"`
}

// LoadContext scopes a load to the viewing actor and a visible window.
type LoadContext struct {
	ActorID       string
	WindowStart   time.Time
	WindowEnd     time.Time
	IncludePublic bool
	Sources       []EventSource
}

// EventFilter narrows the rows a repository returns.
type EventFilter struct {
	OwnerID       string
	IncludePublic bool
	WindowStart   *time.Time
	WindowEnd     *time.Time
}
