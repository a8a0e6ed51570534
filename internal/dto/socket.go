package dto

// Client frame types.
const (
	FrameWindow     = "window"
	FrameDragStart  = "drag_start"
	FrameDragCancel = "drag_cancel"
	FrameDrop       = "drop"
	FrameSend       = "send"
	FrameMute       = "mute"
	FrameUnmute     = "unmute"
	FrameHeartbeat  = "h"
)

// Server frame types.
const (
	FrameSnapshot     = "snapshot"
	FrameGesture      = "gesture"
	FrameReschedule   = "reschedule"
	FramePresenceSync = "presence_sync"
	FrameChat         = "chat"
	FrameHistory      = "history"
	FrameNotice       = "notice"
	FrameError        = "error"
)

// ClientFrame is any frame a browser sends on the live or room socket.
type ClientFrame struct {
	Type        string `json:"type"`
	Start       string `json:"start,omitempty"`
	End         string `json:"end,omitempty"`
	ShowMarkers *bool  `json:"show_markers,omitempty"`
	EntryID     string `json:"entry_id,omitempty"`
	Body        string `json:"body,omitempty"`
	SenderID    string `json:"sender_id,omitempty"`
}

// ServerFrame wraps every server push.
type ServerFrame struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// GestureFrame reports a drag state transition.
type GestureFrame struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// NoticeFrame is a transient, user-facing message.
type NoticeFrame struct {
	Message string `json:"message"`
}
