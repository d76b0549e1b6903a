package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/skip2/go-qrcode"

	"github.com/example/eventflow/internal/access"
	"github.com/example/eventflow/internal/checkin"
	"github.com/example/eventflow/internal/listview"
	"github.com/example/eventflow/internal/live"
	"github.com/example/eventflow/internal/persistence"
)

// DefaultTicketType is assigned when the registration form leaves it empty.
const DefaultTicketType = "general"

// AttendeeService handles registrations and staff edits of attendees.
type AttendeeService struct {
	events         persistence.EventRepository
	attendees      persistence.AttendeeRepository
	codes          *QRIndex
	publisher      Publisher
	idGenerator    func() string
	tokenGenerator func() string
	now            func() time.Time
	logger         *slog.Logger
}

// NewAttendeeService wires dependencies for the attendee service.
func NewAttendeeService(events persistence.EventRepository, attendees persistence.AttendeeRepository, codes *QRIndex, publisher Publisher, idGenerator, tokenGenerator func() string, now func() time.Time) *AttendeeService {
	return NewAttendeeServiceWithLogger(events, attendees, codes, publisher, idGenerator, tokenGenerator, now, nil)
}

// NewAttendeeServiceWithLogger wires dependencies with a specific logger.
func NewAttendeeServiceWithLogger(events persistence.EventRepository, attendees persistence.AttendeeRepository, codes *QRIndex, publisher Publisher, idGenerator, tokenGenerator func() string, now func() time.Time, logger *slog.Logger) *AttendeeService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if tokenGenerator == nil {
		tokenGenerator = idGenerator
	}
	if now == nil {
		now = time.Now
	}
	return &AttendeeService{
		events:         events,
		attendees:      attendees,
		codes:          codes,
		publisher:      publisher,
		idGenerator:    idGenerator,
		tokenGenerator: tokenGenerator,
		now:            now,
		logger:         defaultLogger(logger),
	}
}

func (s *AttendeeService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AttendeeService", operation, attrs...)
}

// Register signs someone up for a published event. Attendees register
// themselves; staff with manage_attendees may register anyone. Capacity is
// enforced by the store in the same statement as the insert.
func (s *AttendeeService) Register(ctx context.Context, principal Principal, eventID string, input RegistrationInput) (attendee Attendee, err error) {
	if s == nil {
		err = fmt.Errorf("AttendeeService is nil")
		return
	}
	if s.events == nil || s.attendees == nil {
		err = fmt.Errorf("attendee repositories not configured")
		return
	}

	logger := s.loggerWith(ctx, "Register", "principal_id", principal.UserID, "event_id", eventID)
	defer func() {
		logOutcome(ctx, logger, err, "registration failed", "attendee registered", "attendee_id", attendee.ID)
	}()

	staff := principal.Can(access.ManageAttendees)
	if !staff {
		if err = principal.require(access.RegisterEvents); err != nil {
			return
		}
	}

	input.Name = strings.TrimSpace(input.Name)
	input.Email = normalizeEmail(input.Email)
	input.Company = strings.TrimSpace(input.Company)
	input.TicketType = strings.ToLower(strings.TrimSpace(input.TicketType))
	if input.TicketType == "" {
		input.TicketType = DefaultTicketType
	}

	var rec persistence.Event
	rec, err = s.events.GetEvent(ctx, eventID)
	if err != nil {
		err = mapRepoError(err)
		return
	}
	event := eventFromRecord(rec)
	if event.Status != EventPublished {
		if !staff {
			err = ErrNotFound
			return
		}
		err = fmt.Errorf("%w: registration is only open for published events", ErrConflict)
		return
	}
	now := s.now()
	if !event.EndAt.IsZero() && event.EndAt.Before(now) {
		err = fmt.Errorf("%w: event has ended", ErrConflict)
		return
	}

	vErr := &ValidationError{}
	vErr.merge(inputs.Struct(input))
	validateAnswers(vErr, event.CustomFields, input.Answers)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	payment := PaymentPending
	if event.PriceMinor == 0 {
		payment = PaymentPaid
	}
	attendee = Attendee{
		ID:            s.idGenerator(),
		EventID:       event.ID,
		Name:          input.Name,
		Email:         input.Email,
		Company:       input.Company,
		TicketType:    input.TicketType,
		PaymentStatus: payment,
		AmountMinor:   event.PriceMinor,
		QRCode:        s.tokenGenerator(),
		CheckInStatus: checkin.StatusPending,
		Answers:       cleanAnswers(event.CustomFields, input.Answers),
		RegisteredAt:  now,
		UpdatedAt:     now,
	}
	if !staff {
		attendee.UserID = principal.UserID
	}

	if err = s.attendees.RegisterAttendee(ctx, attendeeToRecord(attendee)); err != nil {
		if errors.Is(err, persistence.ErrDuplicate) {
			err = fmt.Errorf("%w: %s is already registered for this event", ErrAlreadyExists, input.Email)
		} else {
			err = mapRepoError(err)
		}
		attendee = Attendee{}
		return
	}

	s.codes.Remember(attendee.QRCode, attendee.EventID, attendee.ID)
	s.publish(event.ID, "attendee.registered", map[string]any{
		"attendee_id": attendee.ID,
		"registered":  event.Registered + 1,
		"capacity":    event.Capacity,
	})
	return
}

// GetAttendee returns a registration to staff or to the attendee who owns it.
func (s *AttendeeService) GetAttendee(ctx context.Context, principal Principal, attendeeID string) (Attendee, error) {
	if s == nil {
		return Attendee{}, fmt.Errorf("AttendeeService is nil")
	}
	if principal.UserID == "" {
		return Attendee{}, ErrUnauthorized
	}
	if s.attendees == nil {
		return Attendee{}, fmt.Errorf("attendee repository not configured")
	}
	rec, err := s.attendees.GetAttendee(ctx, attendeeID)
	if err != nil {
		return Attendee{}, mapRepoError(err)
	}
	attendee := attendeeFromRecord(rec)
	if attendee.UserID != principal.UserID && !principal.Can(access.ViewAttendees) {
		return Attendee{}, ErrNotFound
	}
	return attendee, nil
}

// TicketQRCode renders the attendee's ticket code as a PNG.
func (s *AttendeeService) TicketQRCode(ctx context.Context, principal Principal, attendeeID string, size int) ([]byte, error) {
	attendee, err := s.GetAttendee(ctx, principal, attendeeID)
	if err != nil {
		return nil, err
	}
	if size <= 0 {
		size = 256
	}
	if size > 1024 {
		size = 1024
	}
	png, err := qrcode.Encode(attendee.QRCode, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("render qr code: %w", err)
	}
	return png, nil
}

// ListAttendees returns the filtered and sorted attendees of an event.
func (s *AttendeeService) ListAttendees(ctx context.Context, principal Principal, eventID string, q ListQuery) ([]Attendee, error) {
	if s == nil {
		return nil, fmt.Errorf("AttendeeService is nil")
	}
	if err := principal.require(access.ViewAttendees); err != nil {
		return nil, err
	}
	all, err := s.eventAttendees(ctx, eventID)
	if err != nil {
		return nil, err
	}
	q, err = normalizeAttendeeQuery(q)
	if err != nil {
		return nil, err
	}
	return applyList(AttendeeSchema, all, q, s.now())
}

// BulkUpdate applies an action to a selection of attendees. With SelectAll
// the selection is exactly the filtered view described by input.Query, not
// every attendee of the event.
func (s *AttendeeService) BulkUpdate(ctx context.Context, principal Principal, eventID string, input BulkUpdateInput) (result BulkUpdateResult, err error) {
	if s == nil {
		err = fmt.Errorf("AttendeeService is nil")
		return
	}

	logger := s.loggerWith(ctx, "BulkUpdate",
		"principal_id", principal.UserID,
		"event_id", eventID,
		"action", input.Action,
		"select_all", input.SelectAll,
	)
	defer func() {
		logOutcome(ctx, logger, err, "bulk update failed", "bulk update applied",
			"selected", result.Selected,
			"updated", len(result.Updated),
			"skipped", len(result.Skipped),
		)
	}()

	if err = principal.require(access.ManageAttendees); err != nil {
		return
	}
	input.Action = strings.ToLower(strings.TrimSpace(input.Action))
	if input.Action == BulkCheckIn {
		if err = principal.require(access.CheckInAttendees); err != nil {
			return
		}
	}

	vErr := &ValidationError{}
	vErr.merge(inputs.Struct(input))
	if input.Action == BulkSetPaymentStatus && strings.TrimSpace(input.PaymentStatus) == "" {
		vErr.add("payment_status", "payment_status is a required field")
	}
	if !input.SelectAll && len(input.IDs) == 0 {
		vErr.add("ids", "select at least one attendee")
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	var all []Attendee
	if all, err = s.eventAttendees(ctx, eventID); err != nil {
		return
	}

	var selection *listview.Selection
	if input.SelectAll {
		var q ListQuery
		if q, err = normalizeAttendeeQuery(input.Query); err != nil {
			return
		}
		var view []Attendee
		if view, err = applyList(AttendeeSchema, all, q, s.now()); err != nil {
			return
		}
		selection = listview.SelectAll(AttendeeSchema, view)
	} else {
		selection = listview.NewSelection(input.IDs...)
	}
	result.Selected = selection.Len()

	inEvent := make(map[string]struct{}, len(all))
	now := s.now()
	for _, attendee := range all {
		inEvent[attendee.ID] = struct{}{}
		if !selection.Has(attendee.ID) {
			continue
		}
		var changed bool
		if changed, err = s.applyBulk(ctx, principal, attendee, input, now); err != nil {
			return
		}
		if changed {
			result.Updated = append(result.Updated, attendee.ID)
		} else {
			result.Skipped = append(result.Skipped, attendee.ID)
		}
	}
	for _, id := range selection.IDs() {
		if _, ok := inEvent[id]; !ok {
			result.Skipped = append(result.Skipped, id)
		}
	}

	if len(result.Updated) > 0 {
		s.publish(eventID, "attendees.bulk_updated", map[string]any{
			"action":  input.Action,
			"updated": result.Updated,
		})
	}
	return
}

func (s *AttendeeService) applyBulk(ctx context.Context, principal Principal, attendee Attendee, input BulkUpdateInput, now time.Time) (bool, error) {
	switch input.Action {
	case BulkCheckIn:
		if attendee.CheckInStatus != checkin.StatusPending {
			return false, nil
		}
		err := s.attendees.MarkCheckedIn(ctx, attendee.ID, now, principal.UserID)
		if errors.Is(err, persistence.ErrStateConflict) {
			return false, nil
		}
		return err == nil, mapRepoError(err)
	case BulkMarkNoShow:
		if attendee.CheckInStatus != checkin.StatusPending {
			return false, nil
		}
		err := s.attendees.MarkNoShow(ctx, attendee.ID, now)
		if errors.Is(err, persistence.ErrStateConflict) {
			return false, nil
		}
		return err == nil, mapRepoError(err)
	case BulkSetPaymentStatus:
		status, _ := ParsePaymentStatus(input.PaymentStatus)
		if attendee.PaymentStatus == status {
			return false, nil
		}
		if err := s.attendees.UpdatePaymentStatus(ctx, attendee.ID, string(status), now); err != nil {
			return false, mapRepoError(err)
		}
		return true, nil
	default:
		return false, &ValidationError{FieldErrors: map[string]string{"action": "unknown action"}}
	}
}

func (s *AttendeeService) eventAttendees(ctx context.Context, eventID string) ([]Attendee, error) {
	if s.events == nil || s.attendees == nil {
		return nil, fmt.Errorf("attendee repositories not configured")
	}
	if _, err := s.events.GetEvent(ctx, eventID); err != nil {
		return nil, mapRepoError(err)
	}
	recs, err := s.attendees.ListAttendees(ctx, eventID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	out := make([]Attendee, len(recs))
	for i, rec := range recs {
		out[i] = attendeeFromRecord(rec)
	}
	return out, nil
}

func (s *AttendeeService) publish(eventID, kind string, payload any) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(live.Message{Topic: live.EventTopic(eventID), Type: kind, Payload: payload, At: s.now()})
}

// normalizeAttendeeQuery canonicalizes status filters so "registered" selects
// pending attendees.
func normalizeAttendeeQuery(q ListQuery) (ListQuery, error) {
	filters := make(listview.Filters, len(q.Filters))
	for k, v := range q.Filters {
		filters[k] = v
	}
	if v := filters["check_in_status"]; listview.Active(v) {
		status, err := checkin.ParseStatus(v)
		if err != nil {
			return ListQuery{}, &ValidationError{FieldErrors: map[string]string{"check_in_status": "must be one of pending, checked-in or no-show"}}
		}
		filters["check_in_status"] = string(status)
	}
	if v := filters["payment_status"]; listview.Active(v) {
		status, err := ParsePaymentStatus(v)
		if err != nil {
			return ListQuery{}, &ValidationError{FieldErrors: map[string]string{"payment_status": "must be one of paid, pending, failed or refunded"}}
		}
		filters["payment_status"] = string(status)
	}
	return ListQuery{Filters: filters, Sort: q.Sort}, nil
}

// validateAnswers checks registration answers against the event's custom fields.
func validateAnswers(vErr *ValidationError, fields []CustomField, answers map[string]string) {
	known := make(map[string]CustomField, len(fields))
	for _, f := range fields {
		known[f.ID] = f
	}
	for id := range answers {
		if _, ok := known[id]; !ok {
			vErr.add("answers."+id, "unknown question")
		}
	}
	for _, f := range fields {
		key := "answers." + f.ID
		value := strings.TrimSpace(answers[f.ID])
		if value == "" {
			if f.Required {
				vErr.add(key, f.Label+" is required")
			}
			continue
		}
		switch f.Type {
		case FieldTypeNumber:
			if _, err := strconv.ParseFloat(value, 64); err != nil {
				vErr.add(key, f.Label+" must be a number")
			}
		case FieldTypeCheckbox:
			b, err := strconv.ParseBool(value)
			if err != nil {
				vErr.add(key, f.Label+" must be true or false")
			} else if f.Required && !b {
				vErr.add(key, f.Label+" must be checked")
			}
		case FieldTypeSelect:
			match := false
			for _, opt := range f.Options {
				if opt == value {
					match = true
					break
				}
			}
			if !match {
				vErr.add(key, f.Label+" must be one of the offered options")
			}
		}
	}
}

func cleanAnswers(fields []CustomField, answers map[string]string) map[string]string {
	out := make(map[string]string, len(fields))
	for _, f := range fields {
		if v := strings.TrimSpace(answers[f.ID]); v != "" {
			out[f.ID] = v
		}
	}
	return out
}
