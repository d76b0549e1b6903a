package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/example/eventflow/internal/persistence"
)

const attendeeColumns = `id, event_id, user_id, name, email, company, ticket_type, payment_status,
	amount_minor, qr_code, check_in_status, check_in_time, checked_in_by, answers, registered_at, updated_at`

// AttendeeRepository implements persistence.AttendeeRepository using SQLite.
// Writes that race at the door go through the retry helper.
type AttendeeRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
	retry  *RetryHelper
}

// NewAttendeeRepository creates a new SQLite attendee repository
func NewAttendeeRepository(pool *ConnectionPool) *AttendeeRepository {
	return &AttendeeRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
		retry:  NewRetryHelper(DefaultRetryConfig()),
	}
}

// RegisterAttendee inserts the attendee only while the event still has free
// seats. The count and the insert run as one statement.
func (r *AttendeeRepository) RegisterAttendee(ctx context.Context, attendee persistence.Attendee) error {
	if attendee.ID == "" || attendee.EventID == "" || attendee.QRCode == "" {
		return persistence.ErrConstraintViolation
	}
	now := time.Now().UTC()
	if attendee.RegisteredAt.IsZero() {
		attendee.RegisteredAt = now
	}
	if attendee.UpdatedAt.IsZero() {
		attendee.UpdatedAt = attendee.RegisteredAt
	}
	if attendee.CheckInStatus == "" {
		attendee.CheckInStatus = "pending"
	}

	answers, err := encodeAnswers(attendee.Answers)
	if err != nil {
		return err
	}

	var inserted int64
	err = r.retry.WithRetry(ctx, func() error {
		result, err := r.helper.Exec(ctx, `
			INSERT INTO attendees (`+attendeeColumns+`)
			SELECT ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?
			WHERE (SELECT COUNT(*) FROM attendees WHERE event_id = ?)
				< (SELECT capacity FROM events WHERE id = ?)
		`,
			attendee.ID,
			attendee.EventID,
			nullString(attendee.UserID),
			attendee.Name,
			normalizeEmail(attendee.Email),
			attendee.Company,
			attendee.TicketType,
			attendee.PaymentStatus,
			attendee.AmountMinor,
			attendee.QRCode,
			attendee.CheckInStatus,
			nullTime(attendee.CheckInTime),
			attendee.CheckedInBy,
			answers,
			formatTime(attendee.RegisteredAt),
			formatTime(attendee.UpdatedAt),
			attendee.EventID,
			attendee.EventID,
		)
		if err != nil {
			return err
		}
		inserted, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return r.mapAttendeeError(err)
	}
	if inserted > 0 {
		return nil
	}

	if err := r.eventExists(ctx, attendee.EventID); err != nil {
		return err
	}
	return persistence.ErrCapacityReached
}

// GetAttendee retrieves an attendee by ID.
func (r *AttendeeRepository) GetAttendee(ctx context.Context, id string) (persistence.Attendee, error) {
	if id == "" {
		return persistence.Attendee{}, persistence.ErrNotFound
	}
	return r.getOne(ctx, `SELECT `+attendeeColumns+` FROM attendees WHERE id = ?`, id)
}

// GetAttendeeByQRCode retrieves the attendee holding the given ticket code.
func (r *AttendeeRepository) GetAttendeeByQRCode(ctx context.Context, code string) (persistence.Attendee, error) {
	if code == "" {
		return persistence.Attendee{}, persistence.ErrNotFound
	}
	return r.getOne(ctx, `SELECT `+attendeeColumns+` FROM attendees WHERE qr_code = ?`, code)
}

// ListAttendees returns the event's attendees in registration order.
func (r *AttendeeRepository) ListAttendees(ctx context.Context, eventID string) ([]persistence.Attendee, error) {
	rows, err := r.helper.Query(ctx,
		`SELECT `+attendeeColumns+` FROM attendees WHERE event_id = ? ORDER BY registered_at ASC, id ASC`, eventID)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var attendees []persistence.Attendee
	for rows.Next() {
		attendee, err := scanAttendee(rows)
		if err != nil {
			return nil, r.mapper.MapError(err)
		}
		attendees = append(attendees, attendee)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return attendees, nil
}

// UpdatePaymentStatus changes the payment status without touching check-in state.
func (r *AttendeeRepository) UpdatePaymentStatus(ctx context.Context, id, status string, at time.Time) error {
	if id == "" {
		return persistence.ErrConstraintViolation
	}
	result, err := r.helper.Exec(ctx, `
		UPDATE attendees
		SET payment_status = ?, updated_at = ?
		WHERE id = ?
	`, status, formatTime(at), id)
	if err != nil {
		return r.mapAttendeeError(err)
	}
	return requireRows(result)
}

// MarkCheckedIn moves a pending attendee to checked-in.
func (r *AttendeeRepository) MarkCheckedIn(ctx context.Context, id string, at time.Time, by string) error {
	return r.transitionPending(ctx, id, `
		UPDATE attendees
		SET check_in_status = 'checked-in', check_in_time = ?, checked_in_by = ?, updated_at = ?
		WHERE id = ? AND check_in_status = 'pending'
	`, formatTime(at), by, formatTime(at), id)
}

// MarkNoShow moves a single pending attendee to no-show.
func (r *AttendeeRepository) MarkNoShow(ctx context.Context, id string, at time.Time) error {
	return r.transitionPending(ctx, id, `
		UPDATE attendees
		SET check_in_status = 'no-show', updated_at = ?
		WHERE id = ? AND check_in_status = 'pending'
	`, formatTime(at), id)
}

// transitionPending runs a conditional update guarded on the pending status
// and tells a missing attendee apart from one that already moved on.
func (r *AttendeeRepository) transitionPending(ctx context.Context, id, query string, args ...any) error {
	var changed int64
	err := r.retry.WithRetry(ctx, func() error {
		result, err := r.helper.Exec(ctx, query, args...)
		if err != nil {
			return err
		}
		changed, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return r.mapAttendeeError(err)
	}
	if changed > 0 {
		return nil
	}

	var exists int
	err = r.helper.QueryRow(ctx, `SELECT COUNT(*) FROM attendees WHERE id = ?`, id).Scan(&exists)
	if err != nil {
		return r.mapper.MapError(err)
	}
	if exists == 0 {
		return persistence.ErrNotFound
	}
	return persistence.ErrStateConflict
}

// MarkNoShows moves every pending attendee of the event to no-show.
func (r *AttendeeRepository) MarkNoShows(ctx context.Context, eventID string, at time.Time) (int, error) {
	if err := r.eventExists(ctx, eventID); err != nil {
		return 0, err
	}

	var changed int64
	err := r.retry.WithRetry(ctx, func() error {
		result, err := r.helper.Exec(ctx, `
			UPDATE attendees
			SET check_in_status = 'no-show', updated_at = ?
			WHERE event_id = ? AND check_in_status = 'pending'
		`, formatTime(at), eventID)
		if err != nil {
			return err
		}
		changed, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return 0, r.mapAttendeeError(err)
	}
	return int(changed), nil
}

func (r *AttendeeRepository) eventExists(ctx context.Context, eventID string) error {
	var count int
	if err := r.helper.QueryRow(ctx, `SELECT COUNT(*) FROM events WHERE id = ?`, eventID).Scan(&count); err != nil {
		return r.mapper.MapError(err)
	}
	if count == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

func (r *AttendeeRepository) getOne(ctx context.Context, query string, arg any) (persistence.Attendee, error) {
	attendee, err := scanAttendee(r.helper.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.Attendee{}, persistence.ErrNotFound
		}
		return persistence.Attendee{}, r.mapper.MapError(err)
	}
	return attendee, nil
}

func scanAttendee(row rowScanner) (persistence.Attendee, error) {
	var (
		attendee                      persistence.Attendee
		userID, checkInTime           sql.NullString
		answersJSON                   string
		registeredAtStr, updatedAtStr string
	)
	if err := row.Scan(
		&attendee.ID,
		&attendee.EventID,
		&userID,
		&attendee.Name,
		&attendee.Email,
		&attendee.Company,
		&attendee.TicketType,
		&attendee.PaymentStatus,
		&attendee.AmountMinor,
		&attendee.QRCode,
		&attendee.CheckInStatus,
		&checkInTime,
		&attendee.CheckedInBy,
		&answersJSON,
		&registeredAtStr,
		&updatedAtStr,
	); err != nil {
		return persistence.Attendee{}, err
	}

	attendee.UserID = userID.String

	var err error
	if attendee.CheckInTime, err = parseTimePtr("check_in_time", checkInTime); err != nil {
		return persistence.Attendee{}, err
	}
	if attendee.RegisteredAt, err = parseTime("registered_at", registeredAtStr); err != nil {
		return persistence.Attendee{}, err
	}
	if attendee.UpdatedAt, err = parseTime("updated_at", updatedAtStr); err != nil {
		return persistence.Attendee{}, err
	}
	if err := json.Unmarshal([]byte(answersJSON), &attendee.Answers); err != nil {
		return persistence.Attendee{}, fmt.Errorf("failed to decode answers: %w", err)
	}
	return attendee, nil
}

func encodeAnswers(answers map[string]string) (string, error) {
	if answers == nil {
		answers = map[string]string{}
	}
	data, err := json.Marshal(answers)
	if err != nil {
		return "", fmt.Errorf("failed to encode answers: %w", err)
	}
	return string(data), nil
}

func (r *AttendeeRepository) mapAttendeeError(err error) error {
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
