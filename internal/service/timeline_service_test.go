package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/circle-calendar-api/internal/models"
	appErrors "github.com/noah-isme/circle-calendar-api/pkg/errors"
)

type loaderStub struct {
	mu      sync.Mutex
	entries []models.TimelineEntry
	err     error
	calls   int
	last    models.LoadContext
}

func (l *loaderStub) Load(ctx context.Context, lc models.LoadContext) ([]models.TimelineEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	l.last = lc
	if l.err != nil {
		return nil, l.err
	}
	out := make([]models.TimelineEntry, len(l.entries))
	copy(out, l.entries)
	return out, nil
}

func (l *loaderStub) set(entries []models.TimelineEntry, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = entries
	l.err = err
}

func newTimelineService(loader timelineLoader) *TimelineService {
	return NewTimelineService(loader, defaultMarkerGenerator(), NewTimelineComposer(nil, nil), true, nil)
}

var march = TimelineRequest{
	ActorID:     "actor-a",
	Start:       time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	End:         time.Date(2024, 3, 31, 23, 59, 59, 0, time.UTC),
	ShowMarkers: true,
}

func TestTimelineSnapshotComposesSortedWindow(t *testing.T) {
	later := eventEntry("later", "actor-a", models.EventSourcePersonal, models.EventStatusActive, "")
	later.Start = later.Start.AddDate(0, 0, 5)
	loader := &loaderStub{entries: []models.TimelineEntry{
		later,
		eventEntry("theirs", "actor-b", models.EventSourceOrganizational, models.EventStatusActive, ""),
	}}
	svc := newTimelineService(loader)

	snapshot, err := svc.Snapshot(context.Background(), march)
	require.NoError(t, err)
	require.Len(t, snapshot.Entries, 6)
	assert.True(t, snapshot.ShowMarkers)
	assert.Equal(t, "actor-a", loader.last.ActorID)
	assert.True(t, loader.last.IncludePublic)

	for i := 1; i < len(snapshot.Entries); i++ {
		assert.False(t, snapshot.Entries[i].Start.Before(snapshot.Entries[i-1].Start))
	}
	for _, e := range snapshot.Entries {
		switch e.ID {
		case "later":
			assert.True(t, e.Style.Owned)
		case "theirs":
			assert.False(t, e.Style.Owned)
			assert.Equal(t, models.ToneOrganizational, e.Style.Tone)
		}
	}

	again, err := svc.Snapshot(context.Background(), march)
	require.NoError(t, err)
	assert.Equal(t, snapshot.Fingerprint, again.Fingerprint)
	assert.NotEmpty(t, snapshot.Fingerprint)
}

func TestTimelineSnapshotWithoutMarkers(t *testing.T) {
	svc := NewTimelineService(&loaderStub{}, defaultMarkerGenerator(), NewTimelineComposer(nil, nil), false, nil)

	snapshot, err := svc.Snapshot(context.Background(), march)
	require.NoError(t, err)
	assert.Empty(t, snapshot.Entries)
	assert.False(t, snapshot.ShowMarkers)

	markers, err := svc.Markers(march.Start, march.End)
	require.NoError(t, err)
	assert.Empty(t, markers)
}

func TestTimelineSnapshotValidation(t *testing.T) {
	svc := newTimelineService(&loaderStub{})

	bad := march
	bad.End = bad.Start.Add(-time.Hour)
	_, err := svc.Snapshot(context.Background(), bad)
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	bad.End = bad.Start.AddDate(2, 0, 0)
	_, err = svc.Snapshot(context.Background(), bad)
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.Markers(time.Time{}, march.End)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestTimelineSnapshotPropagatesLoadError(t *testing.T) {
	svc := newTimelineService(&loaderStub{err: errors.New("down")})
	_, err := svc.Snapshot(context.Background(), march)
	assert.Error(t, err)
}

func TestSortEntriesPutsAllDayFirst(t *testing.T) {
	day := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	entries := []models.TimelineEntry{
		{ID: "b", Start: day},
		{ID: "a", Start: day},
		{ID: "marker", Start: day, AllDay: true},
		{ID: "early", Start: day.Add(-time.Hour)},
	}
	SortEntries(entries)
	ids := []string{entries[0].ID, entries[1].ID, entries[2].ID, entries[3].ID}
	assert.Equal(t, []string{"early", "marker", "a", "b"}, ids)
}
