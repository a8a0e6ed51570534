package service

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/zeebo/xxh3"
	"go.uber.org/zap"

	"github.com/noah-isme/circle-calendar-api/internal/models"
)

// DefaultEventTitle replaces blank titles.
const DefaultEventTitle = "Untitled event"

// repairSpan is the length given to events missing one bound or whose end is
// not after their start.
const repairSpan = 30 * time.Minute

// Field name variants seen across the personal and legacy community schema.
var (
	idKeys         = []string{"id", "event_id", "uid"}
	titleKeys      = []string{"title", "name", "summary"}
	startKeys      = []string{"start", "start_time", "starts_at", "start_at", "startTime", "startsAt", "start_date", "date"}
	endKeys        = []string{"end", "end_time", "ends_at", "end_at", "endTime", "endsAt", "end_date"}
	ownerKeys      = []string{"owner", "owner_id", "user_id", "created_by"}
	allDayKeys     = []string{"all_day", "allDay", "is_all_day"}
	categoryKeys   = []string{"category", "event_type", "type"}
	visibilityKeys = []string{"visibility"}
	publicKeys     = []string{"is_public", "public"}
	statusKeys     = []string{"status"}
	cancelledKeys  = []string{"cancelled", "canceled", "is_cancelled"}
)

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04Z07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999Z07",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

const dateLayout = "2006-01-02"

// EventNormalizer converts raw rows into canonical timeline entries. It never
// panics; records without any usable timestamp are dropped and logged.
type EventNormalizer struct {
	logger  *zap.Logger
	metrics *MetricsService
}

// NewEventNormalizer constructs a normalizer.
func NewEventNormalizer(logger *zap.Logger, metrics *MetricsService) *EventNormalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventNormalizer{logger: logger, metrics: metrics}
}

// Normalize returns the canonical entry for raw, or false when raw has
// neither a parseable start nor a parseable end.
func (n *EventNormalizer) Normalize(raw models.RawEventRecord) (entry models.TimelineEntry, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			n.drop(raw, fmt.Sprintf("panic: %v", r))
			entry, ok = models.TimelineEntry{}, false
		}
	}()

	if len(raw) == 0 {
		n.drop(raw, "empty record")
		return models.TimelineEntry{}, false
	}

	start, hasStart, startDateOnly := lookupTime(raw, startKeys)
	end, hasEnd, _ := lookupTime(raw, endKeys)

	switch {
	case !hasStart && !hasEnd:
		n.drop(raw, "no parseable start or end")
		return models.TimelineEntry{}, false
	case hasStart && !hasEnd:
		end = start.Add(repairSpan)
	case !hasStart && hasEnd:
		start = end.Add(-repairSpan)
	case !end.After(start):
		end = start.Add(repairSpan)
	}

	title := strings.TrimSpace(lookupString(raw, titleKeys))
	if title == "" {
		title = DefaultEventTitle
	}

	allDay, found := lookupBool(raw, allDayKeys)
	if !found {
		allDay = startDateOnly
	}

	event := models.ScheduledEvent{
		ID:         lookupString(raw, idKeys),
		Title:      title,
		Start:      start,
		End:        end,
		AllDay:     allDay,
		Owner:      lookupString(raw, ownerKeys),
		Visibility: normalizeVisibility(raw),
		Category:   strings.TrimSpace(lookupString(raw, categoryKeys)),
		Status:     normalizeStatus(raw),
		Source:     normalizeSource(raw),
	}
	if event.ID == "" {
		event.ID = syntheticID(event)
	}

	return models.TimelineEntry{
		ID:       event.ID,
		Title:    event.Title,
		Start:    event.Start,
		End:      event.End,
		AllDay:   event.AllDay,
		Resource: models.Resource{Kind: models.ResourceKindEvent, Event: &event},
	}, true
}

// NormalizeAll keeps every record Normalize accepts, in input order.
func (n *EventNormalizer) NormalizeAll(records []models.RawEventRecord) []models.TimelineEntry {
	entries := make([]models.TimelineEntry, 0, len(records))
	for _, raw := range records {
		if entry, ok := n.Normalize(raw); ok {
			entries = append(entries, entry)
		}
	}
	return entries
}

func (n *EventNormalizer) drop(raw models.RawEventRecord, reason string) {
	n.logger.Warn("dropping malformed event record",
		zap.String("raw_id", safeRawID(raw)),
		zap.String("reason", reason),
	)
	n.metrics.RecordNormalizerDrop()
}

func safeRawID(raw models.RawEventRecord) (id string) {
	defer func() {
		if recover() != nil {
			id = ""
		}
	}()
	return lookupString(raw, idKeys)
}

func syntheticID(e models.ScheduledEvent) string {
	key := strings.Join([]string{string(e.Source), e.Owner, e.Title, e.Start.UTC().Format(time.RFC3339Nano)}, "|")
	return fmt.Sprintf("raw-%016x", xxh3.HashString(key))
}

func normalizeVisibility(raw models.RawEventRecord) models.Visibility {
	if v := strings.ToLower(strings.TrimSpace(lookupString(raw, visibilityKeys))); v != "" {
		if v == string(models.VisibilityPublic) {
			return models.VisibilityPublic
		}
		return models.VisibilityPrivate
	}
	if public, ok := lookupBool(raw, publicKeys); ok && public {
		return models.VisibilityPublic
	}
	return models.VisibilityPrivate
}

func normalizeStatus(raw models.RawEventRecord) models.EventStatus {
	switch strings.ToLower(strings.TrimSpace(lookupString(raw, statusKeys))) {
	case "cancelled", "canceled":
		return models.EventStatusCancelled
	}
	if cancelled, ok := lookupBool(raw, cancelledKeys); ok && cancelled {
		return models.EventStatusCancelled
	}
	return models.EventStatusActive
}

func normalizeSource(raw models.RawEventRecord) models.EventSource {
	if strings.EqualFold(lookupString(raw, []string{"source"}), string(models.EventSourceOrganizational)) {
		return models.EventSourceOrganizational
	}
	return models.EventSourcePersonal
}

func lookupString(raw models.RawEventRecord, keys []string) string {
	for _, key := range keys {
		value, ok := raw[key]
		if !ok || value == nil {
			continue
		}
		if s := toString(value); s != "" {
			return s
		}
	}
	return ""
}

func lookupBool(raw models.RawEventRecord, keys []string) (bool, bool) {
	for _, key := range keys {
		value, ok := raw[key]
		if !ok || value == nil {
			continue
		}
		if b, ok := toBool(value); ok {
			return b, true
		}
	}
	return false, false
}

// lookupTime returns the first parseable timestamp among keys and whether it
// carried only a calendar date.
func lookupTime(raw models.RawEventRecord, keys []string) (time.Time, bool, bool) {
	for _, key := range keys {
		value, ok := raw[key]
		if !ok || value == nil {
			continue
		}
		if t, ok, dateOnly := toTime(value); ok {
			return t, true, dateOnly
		}
	}
	return time.Time{}, false, false
}

func toString(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	case fmt.Stringer:
		return v.String()
	default:
		return ""
	}
}

func toBool(value interface{}) (bool, bool) {
	switch v := value.(type) {
	case bool:
		return v, true
	case int64:
		return v != 0, true
	case int:
		return v != 0, true
	case string, []byte:
		b, err := strconv.ParseBool(strings.TrimSpace(toString(v)))
		if err != nil {
			return false, false
		}
		return b, true
	default:
		return false, false
	}
}

func toTime(value interface{}) (time.Time, bool, bool) {
	switch v := value.(type) {
	case time.Time:
		if v.IsZero() {
			return time.Time{}, false, false
		}
		return v.UTC(), true, false
	case *time.Time:
		if v == nil || v.IsZero() {
			return time.Time{}, false, false
		}
		return v.UTC(), true, false
	case string:
		return parseTimeString(v)
	case []byte:
		return parseTimeString(string(v))
	case int64:
		return fromUnix(float64(v))
	case int:
		return fromUnix(float64(v))
	case float64:
		return fromUnix(v)
	default:
		return time.Time{}, false, false
	}
}

func parseTimeString(raw string) (time.Time, bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true, false
		}
	}
	if t, err := time.Parse(dateLayout, raw); err == nil {
		return t, true, true
	}
	return time.Time{}, false, false
}

// fromUnix accepts seconds or, above 1e12, milliseconds.
func fromUnix(v float64) (time.Time, bool, bool) {
	if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return time.Time{}, false, false
	}
	if v > 1e12 {
		return time.UnixMilli(int64(v)).UTC(), true, false
	}
	sec, frac := math.Modf(v)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC(), true, false
}
