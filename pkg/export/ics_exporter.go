package export

import (
	"time"

	ical "github.com/arran4/golang-ical"
)

// ICSExporter renders an agenda as an iCalendar feed.
type ICSExporter struct {
	productID string
	now       func() time.Time
}

// NewICSExporter constructs an ICS exporter with the given PRODID.
func NewICSExporter(productID string) *ICSExporter {
	if productID == "" {
		productID = "-//circle-calendar//timeline//EN"
	}
	return &ICSExporter{productID: productID, now: time.Now}
}

// Render serialises the agenda. Event UIDs are the timeline ids, so feed
// readers update entries in place across refreshes.
func (e *ICSExporter) Render(agenda Agenda) ([]byte, error) {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(e.productID)
	if agenda.Title != "" {
		cal.SetXWRCalName(agenda.Title)
	}
	cal.SetRefreshInterval("PT15M")

	stamp := e.now().UTC()
	for _, item := range agenda.Sorted() {
		ev := cal.AddEvent(item.ID)
		ev.SetDtStampTime(stamp)
		ev.SetSummary(item.Title)
		if item.AllDay {
			ev.SetAllDayStartAt(item.Start)
			end := item.End
			if !end.After(item.Start) {
				end = item.Start.AddDate(0, 0, 1)
			}
			ev.SetAllDayEndAt(end)
			ev.SetTimeTransparency(ical.TransparencyTransparent)
		} else {
			ev.SetStartAt(item.Start.UTC())
			ev.SetEndAt(item.End.UTC())
		}
		if item.Category != "" {
			ev.AddCategory(item.Category)
		}
		if item.Color != "" {
			ev.SetColor(item.Color)
		}
		if item.Cancelled {
			ev.SetStatus(ical.ObjectStatusCancelled)
		} else {
			ev.SetStatus(ical.ObjectStatusConfirmed)
		}
		if item.Public {
			ev.SetClass(ical.ClassificationPublic)
		} else if item.Kind != "celestial" {
			ev.SetClass(ical.ClassificationPrivate)
		}
	}
	return []byte(cal.Serialize()), nil
}
