package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/zeebo/xxh3"
	"go.uber.org/zap"

	"github.com/noah-isme/circle-calendar-api/internal/models"
	appErrors "github.com/noah-isme/circle-calendar-api/pkg/errors"
)

// MaxTimelineWindow bounds a single load.
const MaxTimelineWindow = 400 * 24 * time.Hour

type timelineLoader interface {
	Load(ctx context.Context, lc models.LoadContext) ([]models.TimelineEntry, error)
}

// TimelineRequest describes a composed window for one viewer.
type TimelineRequest struct {
	ActorID     string
	Start       time.Time
	End         time.Time
	ShowMarkers bool
}

// Validate checks the window bounds.
func (r TimelineRequest) Validate() error {
	if r.Start.IsZero() || r.End.IsZero() {
		return appErrors.Clone(appErrors.ErrValidation, "start and end are required")
	}
	if r.End.Before(r.Start) {
		return appErrors.Clone(appErrors.ErrValidation, "end must not be before start")
	}
	if r.End.Sub(r.Start) > MaxTimelineWindow {
		return appErrors.Clone(appErrors.ErrValidation, "window is too large")
	}
	return nil
}

// TimelineService runs the full load, generate and compose pipeline. Running
// it twice on the same store state yields the same snapshot fingerprint.
type TimelineService struct {
	store          timelineLoader
	markers        *MarkerGenerator
	composer       *TimelineComposer
	markersEnabled bool
	logger         *zap.Logger
	now            func() time.Time
}

// NewTimelineService constructs the service.
func NewTimelineService(store timelineLoader, markers *MarkerGenerator, composer *TimelineComposer, markersEnabled bool, logger *zap.Logger) *TimelineService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TimelineService{
		store:          store,
		markers:        markers,
		composer:       composer,
		markersEnabled: markersEnabled && markers != nil,
		logger:         logger,
		now:            time.Now,
	}
}

// Snapshot loads and composes req's window, sorted by start for display.
func (s *TimelineService) Snapshot(ctx context.Context, req TimelineRequest) (models.TimelineSnapshot, error) {
	if err := req.Validate(); err != nil {
		return models.TimelineSnapshot{}, err
	}

	persisted, err := s.store.Load(ctx, models.LoadContext{
		ActorID:       req.ActorID,
		WindowStart:   req.Start,
		WindowEnd:     req.End,
		IncludePublic: true,
	})
	if err != nil {
		return models.TimelineSnapshot{}, err
	}

	showMarkers := req.ShowMarkers && s.markersEnabled
	var markers []models.TimelineEntry
	if showMarkers {
		markers = s.markers.Entries(req.Start, req.End)
	}

	entries := MarkOwnership(s.composer.Compose(persisted, markers, showMarkers), req.ActorID)
	SortEntries(entries)

	return models.TimelineSnapshot{
		WindowStart: req.Start,
		WindowEnd:   req.End,
		ShowMarkers: showMarkers,
		Entries:     entries,
		Fingerprint: Fingerprint(entries),
		GeneratedAt: s.now().UTC(),
	}, nil
}

// Markers returns the markers of a window regardless of any viewer.
func (s *TimelineService) Markers(start, end time.Time) ([]models.CelestialMarker, error) {
	if err := (TimelineRequest{Start: start, End: end}).Validate(); err != nil {
		return nil, err
	}
	if !s.markersEnabled {
		return []models.CelestialMarker{}, nil
	}
	return s.markers.Generate(start, end), nil
}

// SortEntries orders entries by start, all-day first, then by id.
func SortEntries(entries []models.TimelineEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		if a.AllDay != b.AllDay {
			return a.AllDay
		}
		return a.ID < b.ID
	})
}

// Fingerprint hashes the rendered content of entries.
func Fingerprint(entries []models.TimelineEntry) string {
	payload, err := json.Marshal(entries)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%016x", xxh3.Hash(payload))
}
