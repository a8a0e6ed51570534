package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/circle-calendar-api/internal/models"
)

type writeCall struct {
	ref        models.EventRef
	start, end time.Time
}

type scheduleWriterStub struct {
	mu    sync.Mutex
	calls []writeCall
	err   error
}

func (s *scheduleWriterStub) UpdateSchedule(ctx context.Context, ref models.EventRef, start, end time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, writeCall{ref: ref, start: start, end: end})
	return s.err
}

func TestAttemptRescheduleByOwnerWritesOnce(t *testing.T) {
	writer := &scheduleWriterStub{}
	gateway := NewMutationGateway(writer, nil, nil)
	entry := eventEntry("evt-1", "actor-a", models.EventSourcePersonal, models.EventStatusActive, "")

	start := time.Date(2024, 3, 11, 10, 0, 0, 0, time.UTC)
	result := gateway.AttemptReschedule(context.Background(), entry, start, start.Add(time.Hour), "actor-a")
	assert.True(t, result.Applied)
	assert.Empty(t, result.Notice)
	require.Len(t, writer.calls, 1)
	assert.Equal(t, models.EventRef{Source: models.EventSourcePersonal, ID: "evt-1"}, writer.calls[0].ref)
	assert.Equal(t, start.Add(time.Hour), writer.calls[0].end)
	assert.Equal(t, time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC), entry.Start)
}

func TestAttemptRescheduleByNonOwnerNeverWrites(t *testing.T) {
	writer := &scheduleWriterStub{}
	gateway := NewMutationGateway(writer, nil, nil)
	entry := eventEntry("evt-1", "actor-a", models.EventSourcePersonal, models.EventStatusActive, "")

	start := time.Date(2024, 3, 11, 10, 0, 0, 0, time.UTC)
	for _, actor := range []string{"actor-b", ""} {
		result := gateway.AttemptReschedule(context.Background(), entry, start, start.Add(time.Hour), actor)
		assert.False(t, result.Applied)
		assert.Empty(t, result.Notice)
	}
	assert.Empty(t, writer.calls)
}

func TestAttemptRescheduleIgnoresMarkers(t *testing.T) {
	writer := &scheduleWriterStub{}
	gateway := NewMutationGateway(writer, nil, nil)
	marker := defaultMarkerGenerator().Entries(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC))[0]

	result := gateway.AttemptReschedule(context.Background(), marker, marker.Start, marker.End, "")
	assert.False(t, result.Applied)
	assert.Empty(t, writer.calls)
}

func TestAttemptRescheduleRepairsInvertedRange(t *testing.T) {
	writer := &scheduleWriterStub{}
	gateway := NewMutationGateway(writer, nil, nil)
	entry := eventEntry("evt-1", "actor-a", models.EventSourceOrganizational, models.EventStatusActive, "")

	start := time.Date(2024, 3, 11, 10, 0, 0, 0, time.UTC)
	result := gateway.AttemptReschedule(context.Background(), entry, start, start.Add(-time.Hour), "actor-a")
	require.True(t, result.Applied)
	assert.Equal(t, start.Add(30*time.Minute), writer.calls[0].end)
}

func TestAttemptRescheduleFailureReportsNoticeWithoutRetry(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	writer := &scheduleWriterStub{err: errors.New("connection reset")}
	metrics := NewMetricsService()
	gateway := NewMutationGateway(writer, zap.New(core), metrics)
	entry := eventEntry("evt-1", "actor-a", models.EventSourcePersonal, models.EventStatusActive, "")

	start := time.Date(2024, 3, 11, 10, 0, 0, 0, time.UTC)
	result := gateway.AttemptReschedule(context.Background(), entry, start, start.Add(time.Hour), "actor-a")
	assert.False(t, result.Applied)
	assert.Equal(t, RescheduleFailedNotice, result.Notice)
	assert.Len(t, writer.calls, 1)
	assert.Equal(t, 1, logs.Len())
	assert.Equal(t, uint64(1), metrics.Snapshot().ReschedulesFailed)
}
