package application

import (
	"strconv"
	"time"

	"github.com/example/eventflow/internal/listview"
)

// applyList runs the list view-model and reports bad filter or sort keys as
// validation errors.
func applyList[T any](schema listview.Schema[T], raw []T, q ListQuery, now time.Time) ([]T, error) {
	view, err := listview.Apply(schema, raw, q.Filters, q.Sort, now)
	if err != nil {
		return nil, &ValidationError{FieldErrors: map[string]string{"query": err.Error()}}
	}
	return view, nil
}

func timeOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

// UserSchema filters on role, status and search; sorts on full_name, email,
// role, created_at and last_login_at.
var UserSchema = listview.Schema[User]{
	ID: func(u User) string { return u.ID },
	Strings: map[string]func(User) string{
		"role":      func(u User) string { return u.Role.String() },
		"status":    func(u User) string { return activeLabel(u.IsActive) },
		"full_name": func(u User) string { return u.FullName },
		"email":     func(u User) string { return u.Email },
	},
	Times: map[string]func(User) time.Time{
		"created_at":    func(u User) time.Time { return u.CreatedAt },
		"last_login_at": func(u User) time.Time { return timeOrZero(u.LastLoginAt) },
	},
	Searchable: []func(User) string{
		func(u User) string { return u.FullName },
		func(u User) string { return u.Email },
		func(u User) string { return u.Company },
	},
}

func activeLabel(active bool) string {
	if active {
		return "active"
	}
	return "inactive"
}

// EventSchema filters on status, category, search and dateRange; sorts on
// title, start_at, capacity, registered and created_at.
var EventSchema = listview.Schema[Event]{
	ID: func(e Event) string { return e.ID },
	Strings: map[string]func(Event) string{
		"status":   func(e Event) string { return string(e.Status) },
		"category": func(e Event) string { return e.Category },
		"title":    func(e Event) string { return e.Title },
		"online":   func(e Event) string { return strconv.FormatBool(e.IsOnline) },
	},
	Numbers: map[string]func(Event) float64{
		"capacity":   func(e Event) float64 { return float64(e.Capacity) },
		"registered": func(e Event) float64 { return float64(e.Registered) },
	},
	Times: map[string]func(Event) time.Time{
		"start_at":   func(e Event) time.Time { return e.StartAt },
		"created_at": func(e Event) time.Time { return e.CreatedAt },
	},
	Searchable: []func(Event) string{
		func(e Event) string { return e.Title },
		func(e Event) string { return e.Description },
		func(e Event) string { return e.Venue },
		func(e Event) string { return e.Category },
	},
	Date: func(e Event) time.Time { return e.StartAt },
}

// AttendeeSchema filters on check_in_status, payment_status, ticket_type and
// search; sorts on name, email, company, registered_at and check_in_time.
var AttendeeSchema = listview.Schema[Attendee]{
	ID: func(a Attendee) string { return a.ID },
	Strings: map[string]func(Attendee) string{
		"check_in_status": func(a Attendee) string { return string(a.CheckInStatus) },
		"payment_status":  func(a Attendee) string { return string(a.PaymentStatus) },
		"ticket_type":     func(a Attendee) string { return a.TicketType },
		"name":            func(a Attendee) string { return a.Name },
		"email":           func(a Attendee) string { return a.Email },
		"company":         func(a Attendee) string { return a.Company },
	},
	Times: map[string]func(Attendee) time.Time{
		"registered_at": func(a Attendee) time.Time { return a.RegisteredAt },
		"check_in_time": func(a Attendee) time.Time { return timeOrZero(a.CheckInTime) },
	},
	Searchable: []func(Attendee) string{
		func(a Attendee) string { return a.Name },
		func(a Attendee) string { return a.Email },
		func(a Attendee) string { return a.Company },
		func(a Attendee) string { return a.ID },
	},
}
