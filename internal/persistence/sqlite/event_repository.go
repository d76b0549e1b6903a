package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/eventflow/internal/persistence"
)

// Registered counts every attendee row; CheckedIn only the checked-in ones.
const eventSelect = `
	SELECT e.id, e.title, e.description, e.category, e.status, e.start_at, e.end_at,
		e.is_online, e.venue, e.meeting_link, e.capacity, e.price_minor, e.currency,
		e.tags, e.custom_fields, e.created_by, e.created_at, e.updated_at,
		(SELECT COUNT(*) FROM attendees a WHERE a.event_id = e.id),
		(SELECT COUNT(*) FROM attendees a WHERE a.event_id = e.id AND a.check_in_status = 'checked-in')
	FROM events e`

// EventRepository implements persistence.EventRepository using SQLite
type EventRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewEventRepository creates a new SQLite event repository
func NewEventRepository(pool *ConnectionPool) *EventRepository {
	return &EventRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

// CreateEvent inserts a new event.
func (r *EventRepository) CreateEvent(ctx context.Context, event persistence.Event) error {
	if event.ID == "" || event.CreatedBy == "" {
		return persistence.ErrConstraintViolation
	}
	now := time.Now().UTC()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	if event.UpdatedAt.IsZero() {
		event.UpdatedAt = event.CreatedAt
	}

	tags, fields, err := encodeEventJSON(event)
	if err != nil {
		return err
	}

	_, err = r.helper.Exec(ctx, `
		INSERT INTO events (id, title, description, category, status, start_at, end_at,
			is_online, venue, meeting_link, capacity, price_minor, currency,
			tags, custom_fields, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		event.ID,
		event.Title,
		event.Description,
		event.Category,
		event.Status,
		formatTime(event.StartAt),
		formatTime(event.EndAt),
		event.IsOnline,
		event.Venue,
		event.MeetingLink,
		event.Capacity,
		event.PriceMinor,
		event.Currency,
		tags,
		fields,
		event.CreatedBy,
		formatTime(event.CreatedAt),
		formatTime(event.UpdatedAt),
	)
	if err != nil {
		return r.mapEventError(err)
	}
	return nil
}

// UpdateEvent replaces the mutable columns of an event. CreatedBy and
// CreatedAt are never rewritten.
func (r *EventRepository) UpdateEvent(ctx context.Context, event persistence.Event) error {
	if event.ID == "" {
		return persistence.ErrConstraintViolation
	}
	if event.UpdatedAt.IsZero() {
		event.UpdatedAt = time.Now().UTC()
	}

	tags, fields, err := encodeEventJSON(event)
	if err != nil {
		return err
	}

	result, err := r.helper.Exec(ctx, `
		UPDATE events
		SET title = ?, description = ?, category = ?, status = ?, start_at = ?, end_at = ?,
			is_online = ?, venue = ?, meeting_link = ?, capacity = ?, price_minor = ?, currency = ?,
			tags = ?, custom_fields = ?, updated_at = ?
		WHERE id = ?
	`,
		event.Title,
		event.Description,
		event.Category,
		event.Status,
		formatTime(event.StartAt),
		formatTime(event.EndAt),
		event.IsOnline,
		event.Venue,
		event.MeetingLink,
		event.Capacity,
		event.PriceMinor,
		event.Currency,
		tags,
		fields,
		formatTime(event.UpdatedAt),
		event.ID,
	)
	if err != nil {
		return r.mapEventError(err)
	}
	return requireRows(result)
}

// GetEvent retrieves an event with its derived registration counts.
func (r *EventRepository) GetEvent(ctx context.Context, id string) (persistence.Event, error) {
	if id == "" {
		return persistence.Event{}, persistence.ErrNotFound
	}
	event, err := scanEvent(r.helper.QueryRow(ctx, eventSelect+` WHERE e.id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.Event{}, persistence.ErrNotFound
		}
		return persistence.Event{}, r.mapper.MapError(err)
	}
	return event, nil
}

// ListEvents returns events matching filter ordered by start time then ID.
func (r *EventRepository) ListEvents(ctx context.Context, filter persistence.EventFilter) ([]persistence.Event, error) {
	var (
		clauses []string
		args    []any
	)
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			placeholders[i] = "?"
			args = append(args, status)
		}
		clauses = append(clauses, "e.status IN ("+strings.Join(placeholders, ", ")+")")
	}
	if filter.CreatedBy != "" {
		clauses = append(clauses, "e.created_by = ?")
		args = append(args, filter.CreatedBy)
	}

	query := eventSelect
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY e.start_at ASC, e.id ASC"

	rows, err := r.helper.Query(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var events []persistence.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, r.mapper.MapError(err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return events, nil
}

// DeleteEvent removes an event; its attendees are removed by cascade.
func (r *EventRepository) DeleteEvent(ctx context.Context, id string) error {
	if id == "" {
		return persistence.ErrNotFound
	}
	result, err := r.helper.Exec(ctx, `DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		return r.mapEventError(err)
	}
	return requireRows(result)
}

func scanEvent(row rowScanner) (persistence.Event, error) {
	var (
		event                      persistence.Event
		startAtStr, endAtStr       string
		createdAtStr, updatedAtStr string
		tagsJSON, fieldsJSON       string
	)
	if err := row.Scan(
		&event.ID,
		&event.Title,
		&event.Description,
		&event.Category,
		&event.Status,
		&startAtStr,
		&endAtStr,
		&event.IsOnline,
		&event.Venue,
		&event.MeetingLink,
		&event.Capacity,
		&event.PriceMinor,
		&event.Currency,
		&tagsJSON,
		&fieldsJSON,
		&event.CreatedBy,
		&createdAtStr,
		&updatedAtStr,
		&event.Registered,
		&event.CheckedIn,
	); err != nil {
		return persistence.Event{}, err
	}

	var err error
	if event.StartAt, err = parseTime("start_at", startAtStr); err != nil {
		return persistence.Event{}, err
	}
	if event.EndAt, err = parseTime("end_at", endAtStr); err != nil {
		return persistence.Event{}, err
	}
	if event.CreatedAt, err = parseTime("created_at", createdAtStr); err != nil {
		return persistence.Event{}, err
	}
	if event.UpdatedAt, err = parseTime("updated_at", updatedAtStr); err != nil {
		return persistence.Event{}, err
	}
	if err := json.Unmarshal([]byte(tagsJSON), &event.Tags); err != nil {
		return persistence.Event{}, fmt.Errorf("failed to decode tags: %w", err)
	}
	if err := json.Unmarshal([]byte(fieldsJSON), &event.CustomFields); err != nil {
		return persistence.Event{}, fmt.Errorf("failed to decode custom_fields: %w", err)
	}
	return event, nil
}

func encodeEventJSON(event persistence.Event) (string, string, error) {
	tags := event.Tags
	if tags == nil {
		tags = []string{}
	}
	fields := event.CustomFields
	if fields == nil {
		fields = []persistence.CustomField{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode tags: %w", err)
	}
	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode custom_fields: %w", err)
	}
	return string(tagsJSON), string(fieldsJSON), nil
}

func (r *EventRepository) mapEventError(err error) error {
	if err == nil {
		return nil
	}

	errStr := err.Error()
	switch {
	case containsAny(errStr, []string{"UNIQUE constraint failed"}):
		return persistence.ErrDuplicate
	case containsAny(errStr, []string{"FOREIGN KEY constraint failed"}):
		return persistence.ErrForeignKeyViolation
	case containsAny(errStr, []string{"CHECK constraint failed"}):
		return persistence.ErrConstraintViolation
	}
	return r.mapper.MapError(err)
}
