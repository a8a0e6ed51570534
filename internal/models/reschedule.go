package models

// RescheduleResult is the outcome of a drag or resize commit. Applied is
// false when the gesture was ignored; Notice carries a one-off message for a
// failed write.
type RescheduleResult struct {
	Applied bool   `json:"applied"`
	Notice  string `json:"notice,omitempty"`
}

// GestureState is the phase of one in-progress drag or resize.
type GestureState string

const (
	GestureIdle       GestureState = "idle"
	GestureDragging   GestureState = "dragging"
	GestureCommitting GestureState = "committing"
	GestureCancelled  GestureState = "cancelled"
)
