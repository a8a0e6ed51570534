package dto

import "time"

// TimelineQuery carries the window of a timeline, marker or export request.
// Dates are calendar days (YYYY-MM-DD); the end day is inclusive.
type TimelineQuery struct {
	Start       string `form:"start"`
	End         string `form:"end"`
	ShowMarkers *bool  `form:"show_markers"`
	Format      string `form:"format"`
}

// RescheduleRequest moves or resizes one event.
type RescheduleRequest struct {
	Start time.Time `json:"start" binding:"required"`
	End   time.Time `json:"end" binding:"required"`
}

// FeedLinkRequest optionally overrides the calendar name shown by feed readers.
type FeedLinkRequest struct {
	DisplayName string `json:"display_name" binding:"omitempty,max=120"`
}
