package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/noah-isme/circle-calendar-api/internal/models"
	appErrors "github.com/noah-isme/circle-calendar-api/pkg/errors"
)

type eventRepository interface {
	ListPersonal(ctx context.Context, filter models.EventFilter) ([]models.RawEventRecord, error)
	ListOrganizational(ctx context.Context, filter models.EventFilter) ([]models.RawEventRecord, error)
	GetByRef(ctx context.Context, ref models.EventRef) (models.RawEventRecord, error)
}

type changeSource interface {
	Subscribe(filter models.ChangeFilter, handler func(models.ChangeNotice)) func()
}

// calendarTables are watched when a subscription names no tables.
var calendarTables = []string{models.TableEvents, models.TableCommunityEvents, models.TableEventAttendees}

// EventStoreClient loads normalized entries and relays change notifications.
// Consumers react to a notification by calling Load again in full.
type EventStoreClient struct {
	repo       eventRepository
	feed       changeSource
	normalizer *EventNormalizer
	logger     *zap.Logger
}

// NewEventStoreClient constructs the client. feed may be nil, in which case
// Subscribe reports the feed as unavailable.
func NewEventStoreClient(repo eventRepository, feed changeSource, normalizer *EventNormalizer, logger *zap.Logger) *EventStoreClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	if normalizer == nil {
		normalizer = NewEventNormalizer(logger, nil)
	}
	return &EventStoreClient{repo: repo, feed: feed, normalizer: normalizer, logger: logger}
}

// Load fetches every visible record for lc and keeps those the normalizer
// accepts. Rejected records are logged and skipped.
func (c *EventStoreClient) Load(ctx context.Context, lc models.LoadContext) ([]models.TimelineEntry, error) {
	filter := models.EventFilter{OwnerID: lc.ActorID, IncludePublic: lc.IncludePublic}
	if !lc.WindowStart.IsZero() {
		start := lc.WindowStart
		filter.WindowStart = &start
	}
	if !lc.WindowEnd.IsZero() {
		end := lc.WindowEnd
		filter.WindowEnd = &end
	}

	sources := lc.Sources
	if len(sources) == 0 {
		sources = []models.EventSource{models.EventSourcePersonal, models.EventSourceOrganizational}
	}

	var records []models.RawEventRecord
	for _, source := range sources {
		var (
			batch []models.RawEventRecord
			err   error
		)
		switch source {
		case models.EventSourcePersonal:
			batch, err = c.repo.ListPersonal(ctx, filter)
		case models.EventSourceOrganizational:
			batch, err = c.repo.ListOrganizational(ctx, filter)
		default:
			continue
		}
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load events")
		}
		records = append(records, batch...)
	}

	return c.normalizer.NormalizeAll(records), nil
}

// Get loads and normalizes a single event.
func (c *EventStoreClient) Get(ctx context.Context, ref models.EventRef) (models.TimelineEntry, error) {
	raw, err := c.repo.GetByRef(ctx, ref)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.TimelineEntry{}, appErrors.Clone(appErrors.ErrNotFound, "event not found")
		}
		return models.TimelineEntry{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load event")
	}
	entry, ok := c.normalizer.Normalize(raw)
	if !ok {
		return models.TimelineEntry{}, appErrors.Clone(appErrors.ErrNotFound, "event has no usable schedule")
	}
	return entry, nil
}

// Subscription is an active change registration.
type Subscription struct {
	once   sync.Once
	cancel func()
	done   chan struct{}
}

// Unsubscribe stops delivery. It is safe to call repeatedly and concurrently.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.cancel()
		close(s.done)
	})
}

// Done is closed once the subscription ends.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Subscribe registers onChange for notices matching filter. The subscription
// also ends when ctx is cancelled.
func (c *EventStoreClient) Subscribe(ctx context.Context, filter models.ChangeFilter, onChange func(models.ChangeNotice)) (*Subscription, error) {
	if c.feed == nil {
		return nil, appErrors.Clone(appErrors.ErrUnavailable, "change notifications unavailable")
	}
	if onChange == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "change handler is required")
	}
	if len(filter.Tables) == 0 {
		filter.Tables = calendarTables
	}

	sub := &Subscription{done: make(chan struct{})}
	sub.cancel = c.feed.Subscribe(filter, func(notice models.ChangeNotice) {
		select {
		case <-sub.done:
			return
		default:
		}
		onChange(notice)
	})

	if ctx != nil && ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				sub.Unsubscribe()
			case <-sub.done:
			}
		}()
	}
	return sub, nil
}
