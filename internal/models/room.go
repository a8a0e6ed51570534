package models

import "time"

// PresenceRecord is one actor present in a session room.
type PresenceRecord struct {
	ActorID     string    `json:"actor_id"`
	DisplayName string    `json:"display_name"`
	JoinedAt    time.Time `json:"joined_at"`
}

// ChatMessage is an append-only message in a session room.
type ChatMessage struct {
	ID         string    `db:"id" json:"id"`
	SessionID  string    `db:"session_id" json:"session_id"`
	SenderID   string    `db:"sender_id" json:"sender_id"`
	SenderName string    `db:"sender_name" json:"sender_name"`
	Body       string    `db:"body" json:"body"`
	SentAt     time.Time `db:"sent_at" json:"sent_at"`
}

// RoomPresence is the derived member view after a presence sync.
type RoomPresence struct {
	SessionID   string           `json:"session_id"`
	MemberCount int              `json:"member_count"`
	Members     []PresenceRecord `json:"members"`
}
