package service

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/noah-isme/circle-calendar-api/internal/models"
	appErrors "github.com/noah-isme/circle-calendar-api/pkg/errors"
)

var (
	// ErrGestureBusy is returned when a gesture starts while another is active.
	ErrGestureBusy = appErrors.New("GESTURE_BUSY", http.StatusConflict, "a drag is already in progress")
	// ErrNoGesture is returned by Cancel or Drop without a preceding Begin.
	ErrNoGesture = appErrors.New("NO_GESTURE", http.StatusConflict, "no drag in progress")
)

type rescheduler interface {
	AttemptReschedule(ctx context.Context, entry models.TimelineEntry, newStart, newEnd time.Time, actorID string) models.RescheduleResult
}

// Gesture tracks one drag or resize:
// idle -> dragging -> committing|cancelled -> idle.
type Gesture struct {
	gateway rescheduler

	mu           sync.Mutex
	state        models.GestureState
	entry        models.TimelineEntry
	onTransition func(from, to models.GestureState)
}

// NewGesture returns an idle gesture bound to gateway.
func NewGesture(gateway rescheduler) *Gesture {
	return &Gesture{gateway: gateway, state: models.GestureIdle}
}

// OnTransition registers fn to observe every state change. fn runs after the
// gesture lock is released, in transition order for each call.
func (g *Gesture) OnTransition(fn func(from, to models.GestureState)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onTransition = fn
}

// State reports the current state.
func (g *Gesture) State() models.GestureState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Entry returns the entry being dragged, if any.
func (g *Gesture) Entry() (models.TimelineEntry, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.entry, g.state == models.GestureDragging || g.state == models.GestureCommitting
}

// Begin starts dragging entry.
func (g *Gesture) Begin(entry models.TimelineEntry) error {
	g.mu.Lock()
	if g.state != models.GestureIdle {
		g.mu.Unlock()
		return ErrGestureBusy
	}
	g.entry = entry
	fired := g.transitionLocked(nil, models.GestureDragging)
	g.mu.Unlock()

	g.notify(fired)
	return nil
}

// Cancel abandons the drag without any write.
func (g *Gesture) Cancel() error {
	g.mu.Lock()
	if g.state != models.GestureDragging {
		g.mu.Unlock()
		return ErrNoGesture
	}
	fired := g.transitionLocked(nil, models.GestureCancelled)
	g.entry = models.TimelineEntry{}
	fired = g.transitionLocked(fired, models.GestureIdle)
	g.mu.Unlock()

	g.notify(fired)
	return nil
}

// Drop commits the drag. The gesture returns to idle once the gateway call
// resolves, whatever its outcome.
func (g *Gesture) Drop(ctx context.Context, newStart, newEnd time.Time, actorID string) (models.RescheduleResult, error) {
	g.mu.Lock()
	if g.state != models.GestureDragging {
		g.mu.Unlock()
		return models.RescheduleResult{}, ErrNoGesture
	}
	entry := g.entry
	fired := g.transitionLocked(nil, models.GestureCommitting)
	g.mu.Unlock()
	g.notify(fired)

	result := g.gateway.AttemptReschedule(ctx, entry, newStart, newEnd, actorID)

	g.mu.Lock()
	g.entry = models.TimelineEntry{}
	fired = g.transitionLocked(nil, models.GestureIdle)
	g.mu.Unlock()
	g.notify(fired)
	return result, nil
}

type gestureTransition struct {
	from, to models.GestureState
}

func (g *Gesture) transitionLocked(fired []gestureTransition, to models.GestureState) []gestureTransition {
	fired = append(fired, gestureTransition{from: g.state, to: to})
	g.state = to
	return fired
}

func (g *Gesture) notify(fired []gestureTransition) {
	g.mu.Lock()
	fn := g.onTransition
	g.mu.Unlock()
	if fn == nil {
		return
	}
	for _, t := range fired {
		fn(t.from, t.to)
	}
}
