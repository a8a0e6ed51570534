package models

import "time"

// PhaseKind is one of the four quarter points of a cycle.
type PhaseKind string

const (
	PhaseNewMoon      PhaseKind = "new_moon"
	PhaseFirstQuarter PhaseKind = "first_quarter"
	PhaseFullMoon     PhaseKind = "full_moon"
	PhaseLastQuarter  PhaseKind = "last_quarter"
)

// PhaseKinds lists the phases in cycle order.
var PhaseKinds = [4]PhaseKind{PhaseNewMoon, PhaseFirstQuarter, PhaseFullMoon, PhaseLastQuarter}

// Label returns the display label of the phase.
func (p PhaseKind) Label() string {
	switch p {
	case PhaseNewMoon:
		return "New Moon"
	case PhaseFirstQuarter:
		return "First Quarter"
	case PhaseFullMoon:
		return "Full Moon"
	case PhaseLastQuarter:
		return "Last Quarter"
	default:
		return string(p)
	}
}

// CelestialMarker is a generated, all-day marker. It is never stored.
type CelestialMarker struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	Date      time.Time `json:"date"`
	PhaseKind PhaseKind `json:"phase_kind"`
}
