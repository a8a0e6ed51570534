package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/circle-calendar-api/internal/models"
)

const personalColumns = `id, title, start_time, end_time, all_day, owner_id, visibility, category, status`

// community_events predates the personal table and keeps its own column names.
const communityColumns = `id, name, starts_at, ends_at, all_day, created_by, visibility, category, status`

// EventRepository reads and reschedules calendar rows from both event tables.
// Rows are returned untyped; normalisation happens in the service layer.
type EventRepository struct {
	db *sqlx.DB
}

// NewEventRepository constructs an event repository.
func NewEventRepository(db *sqlx.DB) *EventRepository {
	return &EventRepository{db: db}
}

// ListPersonal returns personal events visible under filter. Rows missing
// one bound are matched on the other so the normalizer can repair them.
func (r *EventRepository) ListPersonal(ctx context.Context, filter models.EventFilter) ([]models.RawEventRecord, error) {
	where := []string{}
	args := []interface{}{}
	if filter.OwnerID != "" {
		clause := fmt.Sprintf("owner_id = $%d", len(args)+1)
		if filter.IncludePublic {
			clause = fmt.Sprintf("(%s OR visibility = 'public')", clause)
		}
		where = append(where, clause)
		args = append(args, filter.OwnerID)
	} else {
		where = append(where, "visibility = 'public'")
	}
	if filter.WindowStart != nil {
		where = append(where, fmt.Sprintf("COALESCE(end_time, start_time) >= $%d", len(args)+1))
		args = append(args, *filter.WindowStart)
	}
	if filter.WindowEnd != nil {
		where = append(where, fmt.Sprintf("COALESCE(start_time, end_time) <= $%d", len(args)+1))
		args = append(args, *filter.WindowEnd)
	}

	query := fmt.Sprintf("SELECT %s FROM events WHERE %s ORDER BY COALESCE(start_time, end_time) ASC", personalColumns, strings.Join(where, " AND "))
	records, err := r.scan(ctx, models.EventSourcePersonal, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list personal events: %w", err)
	}
	return records, nil
}

// ListOrganizational returns community events the actor created, attends, or
// that are public.
func (r *EventRepository) ListOrganizational(ctx context.Context, filter models.EventFilter) ([]models.RawEventRecord, error) {
	where := []string{}
	args := []interface{}{}
	if filter.OwnerID != "" {
		n := len(args) + 1
		clause := fmt.Sprintf("created_by = $%d OR id IN (SELECT event_id FROM event_attendees WHERE user_id = $%d)", n, n)
		if filter.IncludePublic {
			clause += " OR visibility = 'public'"
		}
		where = append(where, "("+clause+")")
		args = append(args, filter.OwnerID)
	} else {
		where = append(where, "visibility = 'public'")
	}
	if filter.WindowStart != nil {
		where = append(where, fmt.Sprintf("COALESCE(ends_at, starts_at) >= $%d", len(args)+1))
		args = append(args, *filter.WindowStart)
	}
	if filter.WindowEnd != nil {
		where = append(where, fmt.Sprintf("COALESCE(starts_at, ends_at) <= $%d", len(args)+1))
		args = append(args, *filter.WindowEnd)
	}

	query := fmt.Sprintf("SELECT %s FROM community_events WHERE %s ORDER BY COALESCE(starts_at, ends_at) ASC", communityColumns, strings.Join(where, " AND "))
	records, err := r.scan(ctx, models.EventSourceOrganizational, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list community events: %w", err)
	}
	return records, nil
}

// GetByRef fetches one raw row. sql.ErrNoRows is returned unwrapped when the
// row does not exist.
func (r *EventRepository) GetByRef(ctx context.Context, ref models.EventRef) (models.RawEventRecord, error) {
	var query string
	switch ref.Source {
	case models.EventSourcePersonal:
		query = fmt.Sprintf("SELECT %s FROM events WHERE id = $1", personalColumns)
	case models.EventSourceOrganizational:
		query = fmt.Sprintf("SELECT %s FROM community_events WHERE id = $1", communityColumns)
	default:
		return nil, fmt.Errorf("unknown event source %q", ref.Source)
	}

	records, err := r.scan(ctx, ref.Source, query, ref.ID)
	if err != nil {
		return nil, fmt.Errorf("get event %s/%s: %w", ref.Source, ref.ID, err)
	}
	if len(records) == 0 {
		return nil, sql.ErrNoRows
	}
	return records[0], nil
}

// UpdateSchedule writes only the start and end of an event.
func (r *EventRepository) UpdateSchedule(ctx context.Context, ref models.EventRef, start, end time.Time) error {
	var query string
	switch ref.Source {
	case models.EventSourcePersonal:
		query = `UPDATE events SET start_time = $1, end_time = $2, updated_at = $3 WHERE id = $4`
	case models.EventSourceOrganizational:
		query = `UPDATE community_events SET starts_at = $1, ends_at = $2, updated_at = $3 WHERE id = $4`
	default:
		return fmt.Errorf("unknown event source %q", ref.Source)
	}

	res, err := r.db.ExecContext(ctx, query, start.UTC(), end.UTC(), time.Now().UTC(), ref.ID)
	if err != nil {
		return fmt.Errorf("update event schedule: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update event schedule rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *EventRepository) scan(ctx context.Context, source models.EventSource, query string, args ...interface{}) ([]models.RawEventRecord, error) {
	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.RawEventRecord
	for rows.Next() {
		record := map[string]interface{}{}
		if err := rows.MapScan(record); err != nil {
			return nil, err
		}
		record["source"] = string(source)
		records = append(records, models.RawEventRecord(record))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}
