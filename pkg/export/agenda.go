package export

import (
	"sort"
	"time"
)

// AgendaItem is one exported row of a composed timeline.
type AgendaItem struct {
	ID        string
	Title     string
	Start     time.Time
	End       time.Time
	AllDay    bool
	Kind      string
	Category  string
	Color     string
	Cancelled bool
	Public    bool
	Owner     string
}

// Agenda groups the items of one export window.
type Agenda struct {
	Title string
	From  time.Time
	To    time.Time
	Items []AgendaItem
}

// Sorted returns the items ordered by start, then title. The timeline itself
// is unordered; exports sort here so output is stable.
func (a Agenda) Sorted() []AgendaItem {
	items := make([]AgendaItem, len(a.Items))
	copy(items, a.Items)
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].Start.Equal(items[j].Start) {
			return items[i].Start.Before(items[j].Start)
		}
		return items[i].Title < items[j].Title
	})
	return items
}

var agendaHeaders = []string{"Date", "Start", "End", "Title", "Kind", "Category", "Status"}

func (it AgendaItem) columns() []string {
	start, end := it.Start.Format("15:04"), it.End.Format("15:04")
	if it.AllDay {
		start, end = "all day", ""
	}
	status := "active"
	if it.Cancelled {
		status = "cancelled"
	}
	return []string{it.Start.Format("2006-01-02"), start, end, it.Title, it.Kind, it.Category, status}
}
