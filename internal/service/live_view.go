package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/circle-calendar-api/internal/models"
	"github.com/noah-isme/circle-calendar-api/pkg/config"
	appErrors "github.com/noah-isme/circle-calendar-api/pkg/errors"
	"github.com/noah-isme/circle-calendar-api/pkg/jobs"
)

const reloadJobType = "timeline.reload"

type changeSubscriber interface {
	Subscribe(ctx context.Context, filter models.ChangeFilter, onChange func(models.ChangeNotice)) (*Subscription, error)
}

type snapshotter interface {
	Snapshot(ctx context.Context, req TimelineRequest) (models.TimelineSnapshot, error)
}

// LiveViewManager keeps open timeline views current. Every change notice
// schedules a full reload of each affected view; bursts collapse into one
// reload per view.
type LiveViewManager struct {
	timeline snapshotter
	changes  changeSubscriber
	gateway  rescheduler
	queue    *jobs.Queue
	logger   *zap.Logger
	metrics  *MetricsService

	mu    sync.Mutex
	views map[string]*LiveView
}

// NewLiveViewManager constructs the manager and its reload queue.
func NewLiveViewManager(timeline snapshotter, changes changeSubscriber, gateway rescheduler, cfg config.LiveConfig, logger *zap.Logger, metrics *MetricsService) *LiveViewManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &LiveViewManager{
		timeline: timeline,
		changes:  changes,
		gateway:  gateway,
		logger:   logger,
		metrics:  metrics,
		views:    make(map[string]*LiveView),
	}
	m.queue = jobs.NewQueue("timeline-reload", m.handleReload, jobs.QueueConfig{
		Workers:    cfg.ReloadWorkers,
		BufferSize: cfg.ReloadBuffer,
		Logger:     logger,
	})
	return m
}

// Start runs the reload workers.
func (m *LiveViewManager) Start(ctx context.Context) {
	m.queue.Start(ctx)
}

// Stop closes every view and stops the workers.
func (m *LiveViewManager) Stop() {
	m.mu.Lock()
	views := make([]*LiveView, 0, len(m.views))
	for _, v := range m.views {
		views = append(views, v)
	}
	m.mu.Unlock()
	for _, v := range views {
		v.Close()
	}
	m.queue.Stop()
}

// Open registers a view and pushes its first snapshot before returning. A
// failed change subscription leaves the view static rather than failing it.
func (m *LiveViewManager) Open(ctx context.Context, req TimelineRequest, push func(models.TimelineSnapshot)) (*LiveView, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	view := &LiveView{
		id:      uuid.NewString(),
		manager: m,
		req:     req,
		push:    push,
	}
	view.gesture = NewGesture(m.gateway)

	sub, err := m.changes.Subscribe(context.Background(), models.ChangeFilter{}, func(models.ChangeNotice) {
		m.requestReload(view)
	})
	if err != nil {
		m.logger.Warn("live view without change notifications", zap.String("view_id", view.id), zap.Error(err))
		view.static = true
	}
	view.sub = sub

	m.mu.Lock()
	m.views[view.id] = view
	m.mu.Unlock()
	m.metrics.AddLiveViews(1)

	if err := m.reload(ctx, view); err != nil {
		view.Close()
		return nil, err
	}
	return view, nil
}

// Views reports the number of open views.
func (m *LiveViewManager) Views() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.views)
}

func (m *LiveViewManager) requestReload(view *LiveView) {
	if _, err := m.queue.Enqueue(jobs.Job{Key: view.id, Type: reloadJobType, Payload: view.id}); err != nil {
		m.logger.Warn("timeline reload not scheduled", zap.String("view_id", view.id), zap.Error(err))
	}
}

func (m *LiveViewManager) handleReload(ctx context.Context, job jobs.Job) error {
	id, _ := job.Payload.(string)
	m.mu.Lock()
	view, ok := m.views[id]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return m.reload(ctx, view)
}

// reload recomputes the view and pushes it when its content changed. On
// failure the last pushed snapshot stays in place.
func (m *LiveViewManager) reload(ctx context.Context, view *LiveView) error {
	view.reloadMu.Lock()
	defer view.reloadMu.Unlock()

	if view.isClosed() {
		return nil
	}
	req := view.request()
	snapshot, err := m.timeline.Snapshot(ctx, req)
	if err != nil {
		m.metrics.RecordTimelineReload(false)
		m.logger.Warn("timeline reload failed", zap.String("view_id", view.id), zap.Error(err))
		return fmt.Errorf("reload view %s: %w", view.id, err)
	}
	m.metrics.RecordTimelineReload(true)

	view.mu.Lock()
	if view.closed || (view.pushed && sameContent(view.last, snapshot)) {
		view.mu.Unlock()
		return nil
	}
	view.last = snapshot
	view.pushed = true
	view.mu.Unlock()

	if view.push != nil {
		view.push(snapshot)
	}
	return nil
}

func sameContent(a, b models.TimelineSnapshot) bool {
	return a.Fingerprint == b.Fingerprint &&
		a.WindowStart.Equal(b.WindowStart) &&
		a.WindowEnd.Equal(b.WindowEnd) &&
		a.ShowMarkers == b.ShowMarkers
}

func (m *LiveViewManager) remove(view *LiveView) {
	m.mu.Lock()
	_, ok := m.views[view.id]
	delete(m.views, view.id)
	m.mu.Unlock()
	if ok {
		m.metrics.AddLiveViews(-1)
	}
}

// LiveView is one viewer's open timeline.
type LiveView struct {
	id      string
	manager *LiveViewManager
	push    func(models.TimelineSnapshot)
	sub     *Subscription
	gesture *Gesture
	static  bool

	reloadMu sync.Mutex

	mu     sync.Mutex
	req    TimelineRequest
	last   models.TimelineSnapshot
	pushed bool
	closed bool

	closeOnce sync.Once
}

// ID returns the view id.
func (v *LiveView) ID() string { return v.id }

// Static reports whether the view lost its change subscription.
func (v *LiveView) Static() bool { return v.static }

// Gesture exposes the view's drag state machine.
func (v *LiveView) Gesture() *Gesture { return v.gesture }

// Last returns the most recently pushed snapshot.
func (v *LiveView) Last() models.TimelineSnapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.last
}

func (v *LiveView) request() TimelineRequest {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.req
}

func (v *LiveView) isClosed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.closed
}

// SetWindow moves the visible window and reloads immediately.
func (v *LiveView) SetWindow(ctx context.Context, start, end time.Time, showMarkers bool) error {
	v.mu.Lock()
	req := v.req
	v.mu.Unlock()
	req.Start, req.End, req.ShowMarkers = start, end, showMarkers
	if err := req.Validate(); err != nil {
		return err
	}
	v.mu.Lock()
	v.req = req
	v.mu.Unlock()
	return v.manager.reload(ctx, v)
}

// BeginDrag starts a gesture on an entry of the last snapshot.
func (v *LiveView) BeginDrag(entryID string) error {
	v.mu.Lock()
	var (
		entry models.TimelineEntry
		found bool
	)
	for _, e := range v.last.Entries {
		if e.ID == entryID {
			entry, found = e, true
			break
		}
	}
	v.mu.Unlock()
	if !found {
		return appErrors.Clone(appErrors.ErrNotFound, "entry not in view")
	}
	return v.gesture.Begin(entry)
}

// CancelDrag abandons the current gesture.
func (v *LiveView) CancelDrag() error {
	return v.gesture.Cancel()
}

// Drop commits the current gesture for the viewing actor. The view itself is
// refreshed by the change notice the write produces, not by this call.
func (v *LiveView) Drop(ctx context.Context, start, end time.Time) (models.RescheduleResult, error) {
	return v.gesture.Drop(ctx, start, end, v.request().ActorID)
}

// Close unsubscribes and forgets the view. It waits for an in-flight reload,
// so push is never called once Close returns; push must not call Close. Safe
// to call more than once.
func (v *LiveView) Close() {
	v.closeOnce.Do(func() {
		v.mu.Lock()
		v.closed = true
		v.mu.Unlock()
		v.reloadMu.Lock()
		v.sub.Unsubscribe()
		v.reloadMu.Unlock()
		v.manager.remove(v)
	})
}
