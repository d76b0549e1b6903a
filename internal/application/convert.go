package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/eventflow/internal/access"
	"github.com/example/eventflow/internal/checkin"
	"github.com/example/eventflow/internal/persistence"
)

// mapRepoError translates storage sentinels into application sentinels.
// Context errors pass through untouched so callers can tell a timeout from a
// broken store.
func mapRepoError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, persistence.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrDuplicate):
		return ErrAlreadyExists
	case errors.Is(err, persistence.ErrCapacityReached):
		return ErrCapacityReached
	case errors.Is(err, persistence.ErrStateConflict), errors.Is(err, persistence.ErrForeignKeyViolation):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}

// upstreamError marks a failure of a backing source that must not be mistaken
// for an empty result.
func upstreamError(source string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", ErrUpstreamUnavailable, source, err)
}

func userFromRecord(rec persistence.User) (User, error) {
	role, err := access.ParseRole(rec.Role)
	if err != nil {
		return User{}, fmt.Errorf("user %s: %w", rec.ID, err)
	}
	return User{
		ID:               rec.ID,
		Email:            rec.Email,
		FullName:         rec.FullName,
		Role:             role,
		Company:          rec.Company,
		Phone:            rec.Phone,
		IsActive:         rec.IsActive,
		EmailConfirmedAt: rec.EmailConfirmedAt,
		LastLoginAt:      rec.LastLoginAt,
		CreatedAt:        rec.CreatedAt,
		UpdatedAt:        rec.UpdatedAt,
	}, nil
}

func sessionFromRecord(rec persistence.Session) Session {
	return Session{
		ID:          rec.ID,
		UserID:      rec.UserID,
		Token:       rec.Token,
		Fingerprint: rec.Fingerprint,
		ExpiresAt:   rec.ExpiresAt,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
		RevokedAt:   rec.RevokedAt,
	}
}

func sessionToRecord(s Session) persistence.Session {
	return persistence.Session{
		ID:          s.ID,
		UserID:      s.UserID,
		Token:       s.Token,
		Fingerprint: s.Fingerprint,
		ExpiresAt:   s.ExpiresAt,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
		RevokedAt:   s.RevokedAt,
	}
}

func eventFromRecord(rec persistence.Event) Event {
	fields := make([]CustomField, len(rec.CustomFields))
	for i, f := range rec.CustomFields {
		fields[i] = CustomField{ID: f.ID, Label: f.Label, Type: f.Type, Required: f.Required, Options: append([]string(nil), f.Options...)}
	}
	return Event{
		ID:           rec.ID,
		Title:        rec.Title,
		Description:  rec.Description,
		Category:     rec.Category,
		Status:       EventStatus(rec.Status),
		StartAt:      rec.StartAt,
		EndAt:        rec.EndAt,
		IsOnline:     rec.IsOnline,
		Venue:        rec.Venue,
		MeetingLink:  rec.MeetingLink,
		Capacity:     rec.Capacity,
		Registered:   rec.Registered,
		CheckedIn:    rec.CheckedIn,
		PriceMinor:   rec.PriceMinor,
		Currency:     rec.Currency,
		Tags:         append([]string(nil), rec.Tags...),
		CustomFields: fields,
		CreatedBy:    rec.CreatedBy,
		CreatedAt:    rec.CreatedAt,
		UpdatedAt:    rec.UpdatedAt,
	}
}

func eventToRecord(e Event) persistence.Event {
	fields := make([]persistence.CustomField, len(e.CustomFields))
	for i, f := range e.CustomFields {
		fields[i] = persistence.CustomField{ID: f.ID, Label: f.Label, Type: f.Type, Required: f.Required, Options: append([]string(nil), f.Options...)}
	}
	return persistence.Event{
		ID:           e.ID,
		Title:        e.Title,
		Description:  e.Description,
		Category:     e.Category,
		Status:       string(e.Status),
		StartAt:      e.StartAt,
		EndAt:        e.EndAt,
		IsOnline:     e.IsOnline,
		Venue:        e.Venue,
		MeetingLink:  e.MeetingLink,
		Capacity:     e.Capacity,
		PriceMinor:   e.PriceMinor,
		Currency:     e.Currency,
		Tags:         append([]string(nil), e.Tags...),
		CustomFields: fields,
		CreatedBy:    e.CreatedBy,
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
	}
}

func attendeeFromRecord(rec persistence.Attendee) Attendee {
	status, err := checkin.ParseStatus(rec.CheckInStatus)
	if err != nil {
		status = checkin.StatusPending
	}
	answers := make(map[string]string, len(rec.Answers))
	for k, v := range rec.Answers {
		answers[k] = v
	}
	return Attendee{
		ID:            rec.ID,
		EventID:       rec.EventID,
		UserID:        rec.UserID,
		Name:          rec.Name,
		Email:         rec.Email,
		Company:       rec.Company,
		TicketType:    rec.TicketType,
		PaymentStatus: PaymentStatus(rec.PaymentStatus),
		AmountMinor:   rec.AmountMinor,
		QRCode:        rec.QRCode,
		CheckInStatus: status,
		CheckInTime:   rec.CheckInTime,
		CheckedInBy:   rec.CheckedInBy,
		Answers:       answers,
		RegisteredAt:  rec.RegisteredAt,
		UpdatedAt:     rec.UpdatedAt,
	}
}

func attendeeToRecord(a Attendee) persistence.Attendee {
	return persistence.Attendee{
		ID:            a.ID,
		EventID:       a.EventID,
		UserID:        a.UserID,
		Name:          a.Name,
		Email:         a.Email,
		Company:       a.Company,
		TicketType:    a.TicketType,
		PaymentStatus: string(a.PaymentStatus),
		AmountMinor:   a.AmountMinor,
		QRCode:        a.QRCode,
		CheckInStatus: string(a.CheckInStatus),
		CheckInTime:   a.CheckInTime,
		CheckedInBy:   a.CheckedInBy,
		Answers:       a.Answers,
		RegisteredAt:  a.RegisteredAt,
		UpdatedAt:     a.UpdatedAt,
	}
}

func checkinRecord(a Attendee) checkin.Record {
	return checkin.Record{
		ID:          a.ID,
		Name:        a.Name,
		Email:       a.Email,
		Company:     a.Company,
		TicketType:  a.TicketType,
		Status:      a.CheckInStatus,
		CheckInTime: a.CheckInTime,
	}
}

func checkinRecords(attendees []Attendee) []checkin.Record {
	out := make([]checkin.Record, len(attendees))
	for i, a := range attendees {
		out[i] = checkinRecord(a)
	}
	return out
}

func overrideFromRecord(rec persistence.PermissionOverride) (access.Override, bool) {
	perm, known := access.ParsePermission(rec.Permission)
	if !known {
		return access.Override{}, false
	}
	return access.Override{
		Permission: perm,
		Granted:    rec.Granted,
		GrantedBy:  rec.GrantedBy,
		ExpiresAt:  rec.ExpiresAt,
	}, true
}
