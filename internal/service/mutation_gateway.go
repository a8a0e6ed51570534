package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/circle-calendar-api/internal/models"
)

// RescheduleFailedNotice is shown once when an authorized write fails.
const RescheduleFailedNotice = "We couldn't save the new time for this event. Please try again."

type scheduleWriter interface {
	UpdateSchedule(ctx context.Context, ref models.EventRef, start, end time.Time) error
}

// MutationGateway gates drag and resize commits on event ownership. It writes
// the new range and nothing else; viewers converge through the change feed.
type MutationGateway struct {
	writer  scheduleWriter
	logger  *zap.Logger
	metrics *MetricsService
}

// NewMutationGateway constructs a gateway.
func NewMutationGateway(writer scheduleWriter, logger *zap.Logger, metrics *MetricsService) *MutationGateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MutationGateway{writer: writer, logger: logger, metrics: metrics}
}

// AttemptReschedule writes (newStart, newEnd) for entry when actorID owns it.
// Non-owners and markers are ignored without a notice. A failed write yields
// a notice and no retry.
func (g *MutationGateway) AttemptReschedule(ctx context.Context, entry models.TimelineEntry, newStart, newEnd time.Time, actorID string) models.RescheduleResult {
	if entry.Resource.Kind != models.ResourceKindEvent || entry.Resource.Event == nil {
		g.metrics.RecordReschedule(RescheduleIgnored)
		return models.RescheduleResult{}
	}
	if actorID == "" || entry.Resource.Owner() != actorID {
		g.logger.Debug("ignoring reschedule by non-owner",
			zap.String("event_id", entry.ID),
			zap.String("actor_id", actorID),
		)
		g.metrics.RecordReschedule(RescheduleIgnored)
		return models.RescheduleResult{}
	}

	if !newEnd.After(newStart) {
		newEnd = newStart.Add(repairSpan)
	}

	ref := entry.Resource.Event.Ref()
	if err := g.writer.UpdateSchedule(ctx, ref, newStart, newEnd); err != nil {
		g.logger.Warn("reschedule write failed",
			zap.String("event_id", ref.ID),
			zap.String("source", string(ref.Source)),
			zap.Error(err),
		)
		g.metrics.RecordReschedule(RescheduleFailed)
		return models.RescheduleResult{Notice: RescheduleFailedNotice}
	}

	g.metrics.RecordReschedule(RescheduleApplied)
	return models.RescheduleResult{Applied: true}
}
