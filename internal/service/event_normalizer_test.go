package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/circle-calendar-api/internal/models"
)

func TestNormalizeRepairsMissingEnd(t *testing.T) {
	n := NewEventNormalizer(nil, nil)

	entry, ok := n.Normalize(models.RawEventRecord{"start_time": "2024-03-10T09:00Z"})
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC), entry.Start)
	assert.Equal(t, time.Date(2024, 3, 10, 9, 30, 0, 0, time.UTC), entry.End)
	assert.Equal(t, DefaultEventTitle, entry.Title)
	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, models.ResourceKindEvent, entry.Resource.Kind)
}

func TestNormalizeRepairsMissingStart(t *testing.T) {
	n := NewEventNormalizer(nil, nil)

	end := time.Date(2024, 3, 10, 11, 0, 0, 0, time.UTC)
	entry, ok := n.Normalize(models.RawEventRecord{"id": "e1", "ends_at": end})
	require.True(t, ok)
	assert.Equal(t, end.Add(-30*time.Minute), entry.Start)
	assert.Equal(t, end, entry.End)
}

func TestNormalizeRepairsInvertedRange(t *testing.T) {
	n := NewEventNormalizer(nil, nil)

	cases := []struct {
		name string
		raw  models.RawEventRecord
	}{
		{"equal", models.RawEventRecord{"id": "a", "start": "2024-03-10T09:00:00Z", "end": "2024-03-10T09:00:00Z"}},
		{"before", models.RawEventRecord{"id": "b", "start": "2024-03-10T09:00:00Z", "end": "2024-03-10T08:00:00Z"}},
		{"legacy", models.RawEventRecord{"id": "c", "starts_at": []byte("2024-03-10 09:00:00"), "ends_at": []byte("2024-03-09 09:00:00")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			entry, ok := n.Normalize(tc.raw)
			require.True(t, ok)
			assert.Equal(t, entry.Start.Add(30*time.Minute), entry.End)
		})
	}
}

func TestNormalizePassesValidRangeThrough(t *testing.T) {
	n := NewEventNormalizer(nil, nil)

	start := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	entry, ok := n.Normalize(models.RawEventRecord{
		"id":         "evt-1",
		"title":      "  Planning  ",
		"start_time": start,
		"end_time":   start.Add(2 * time.Hour),
		"owner_id":   "user-1",
		"visibility": "PUBLIC",
		"category":   "work",
		"status":     "active",
		"source":     "personal",
	})
	require.True(t, ok)
	assert.Equal(t, "evt-1", entry.ID)
	assert.Equal(t, "Planning", entry.Title)
	assert.Equal(t, start.Add(2*time.Hour), entry.End)
	require.NotNil(t, entry.Resource.Event)
	assert.Equal(t, "user-1", entry.Resource.Owner())
	assert.Equal(t, models.VisibilityPublic, entry.Resource.Event.Visibility)
	assert.Equal(t, models.EventStatusActive, entry.Resource.Event.Status)
	assert.Equal(t, models.EventSourcePersonal, entry.Resource.Event.Source)
}

func TestNormalizeLegacyCommunityRow(t *testing.T) {
	n := NewEventNormalizer(nil, nil)

	entry, ok := n.Normalize(models.RawEventRecord{
		"id":         int64(42),
		"name":       "Cleanup day",
		"starts_at":  "2024-03-10 09:00:00",
		"ends_at":    "2024-03-10 12:00:00",
		"created_by": "user-9",
		"status":     "CANCELED",
		"source":     "organizational",
	})
	require.True(t, ok)
	assert.Equal(t, "42", entry.ID)
	assert.Equal(t, "Cleanup day", entry.Title)
	assert.Equal(t, models.EventStatusCancelled, entry.Resource.Event.Status)
	assert.Equal(t, models.EventSourceOrganizational, entry.Resource.Event.Source)
	assert.Equal(t, "user-9", entry.Resource.Owner())
}

func TestNormalizeDateOnlyIsAllDay(t *testing.T) {
	n := NewEventNormalizer(nil, nil)

	entry, ok := n.Normalize(models.RawEventRecord{"id": "d", "date": "2024-03-10"})
	require.True(t, ok)
	assert.True(t, entry.AllDay)

	entry, ok = n.Normalize(models.RawEventRecord{"id": "e", "date": "2024-03-10", "all_day": false})
	require.True(t, ok)
	assert.False(t, entry.AllDay)
}

func TestNormalizeDropsRecordsWithoutTimes(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	metrics := NewMetricsService()
	n := NewEventNormalizer(zap.New(core), metrics)

	for _, raw := range []models.RawEventRecord{
		nil,
		{"id": "x1"},
		{"id": "x2", "start": "not a date", "end": ""},
		{"id": "x3", "start": struct{}{}, "end": []int{1}},
		{"id": "x4", "start_time": time.Time{}},
	} {
		_, ok := n.Normalize(raw)
		assert.False(t, ok)
	}

	assert.Equal(t, 5, logs.Len())
	assert.Equal(t, "x1", logs.All()[1].ContextMap()["raw_id"])
	assert.Equal(t, uint64(5), metrics.Snapshot().RecordsDropped)
}

func TestNormalizeAllKeepsOrder(t *testing.T) {
	n := NewEventNormalizer(nil, nil)

	entries := n.NormalizeAll([]models.RawEventRecord{
		{"id": "b", "start": "2024-03-11T09:00:00Z"},
		{"id": "bad"},
		{"id": "a", "start": "2024-03-10T09:00:00Z"},
	})
	require.Len(t, entries, 2)
	assert.Equal(t, "b", entries[0].ID)
	assert.Equal(t, "a", entries[1].ID)
}

func TestNormalizeAcceptsUnixTimestamps(t *testing.T) {
	n := NewEventNormalizer(nil, nil)

	start := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	entry, ok := n.Normalize(models.RawEventRecord{"id": "u", "start": start.Unix(), "end": start.Add(time.Hour).UnixMilli()})
	require.True(t, ok)
	assert.Equal(t, start, entry.Start)
	assert.Equal(t, start.Add(time.Hour), entry.End)
}

func TestLookupTimeSeparatesParsedFromDateOnly(t *testing.T) {
	at := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	cases := []struct {
		name     string
		value    interface{}
		dateOnly bool
	}{
		{"rfc3339", "2024-03-10T09:00:00Z", false},
		{"short zone", "2024-03-10T09:00Z", false},
		{"time value", at, false},
		{"unix seconds", at.Unix(), false},
		{"date only", "2024-03-10", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, found, dateOnly := lookupTime(models.RawEventRecord{"start": tc.value}, startKeys)
			require.True(t, found)
			assert.Equal(t, tc.dateOnly, dateOnly)
			if !tc.dateOnly {
				assert.True(t, at.Equal(got))
			}
		})
	}

	_, found, _ := lookupTime(models.RawEventRecord{"start": "soon"}, startKeys)
	assert.False(t, found)
}
