package models

import "time"

// Tables that emit change notifications.
const (
	TableEvents          = "events"
	TableCommunityEvents = "community_events"
	TableEventAttendees  = "event_attendees"
)

// ChangeOp is the row operation behind a notification.
type ChangeOp string

const (
	ChangeInsert ChangeOp = "INSERT"
	ChangeUpdate ChangeOp = "UPDATE"
	ChangeDelete ChangeOp = "DELETE"
	// ChangeResync is emitted after the listener reconnects and notices may
	// have been lost.
	ChangeResync ChangeOp = "RESYNC"
)

// ChangeNotice says the store changed; it does not carry the diff.
type ChangeNotice struct {
	Table     string    `json:"table"`
	Op        ChangeOp  `json:"op"`
	RecordID  string    `json:"id"`
	SessionID string    `json:"session_id,omitempty"`
	At        time.Time `json:"at"`
}

// ChangeFilter scopes a subscription by table and optionally by session id.
// Empty Tables matches every table.
type ChangeFilter struct {
	Tables    []string
	SessionID string
}

// Matches reports whether n passes the filter.
func (f ChangeFilter) Matches(n ChangeNotice) bool {
	if n.Op == ChangeResync {
		return true
	}
	if len(f.Tables) > 0 {
		found := false
		for _, t := range f.Tables {
			if t == n.Table {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.SessionID != "" && n.SessionID != f.SessionID {
		return false
	}
	return true
}
