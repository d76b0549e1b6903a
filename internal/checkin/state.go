// Package checkin implements the attendee check-in state machine, manual
// attendee lookup and the bounded recent-activity log shown at the door.
package checkin

import (
	"fmt"
	"strings"
	"time"
)

// Status is the check-in state of a single registration.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCheckedIn Status = "checked-in"
	StatusNoShow    Status = "no-show"
)

// ParseStatus normalizes a status string. "registered" is accepted as a
// synonym of pending.
func ParseStatus(value string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "pending", "registered":
		return StatusPending, nil
	case string(StatusCheckedIn), "checked_in", "checkedin":
		return StatusCheckedIn, nil
	case string(StatusNoShow), "no_show", "noshow":
		return StatusNoShow, nil
	}
	return "", fmt.Errorf("checkin: unknown status %q", value)
}

// Record is the subset of an attendee the state machine works on.
type Record struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Email       string     `json:"email"`
	Company     string     `json:"company,omitempty"`
	TicketType  string     `json:"ticket_type,omitempty"`
	Status      Status     `json:"check_in_status"`
	CheckInTime *time.Time `json:"check_in_time,omitempty"`
}

// Kind classifies the result of a scan or manual check-in.
type Kind string

const (
	KindSuccess   Kind = "success"
	KindDuplicate Kind = "duplicate"
	KindInvalid   Kind = "invalid"
	KindRejected  Kind = "rejected"
)

// Outcome is what the door staff sees after a scan.
type Outcome struct {
	Kind     Kind      `json:"kind"`
	Title    string    `json:"title"`
	Message  string    `json:"message"`
	Attendee *Record   `json:"attendee,omitempty"`
	At       time.Time `json:"at"`
}

// Apply runs a single check-in transition.
//
// Pending attendees move to checked-in with CheckInTime set to now. Attendees
// that are already checked in are reported as duplicates and returned
// unchanged. No-shows are rejected; that state is only set by the batch
// operation and scanning never reverses it.
func Apply(rec Record, now time.Time) (Record, Outcome) {
	switch rec.Status {
	case StatusPending:
		at := now
		rec.Status = StatusCheckedIn
		rec.CheckInTime = &at
		return rec, Outcome{
			Kind:     KindSuccess,
			Title:    "Checked in",
			Message:  fmt.Sprintf("%s is checked in.", displayName(rec)),
			Attendee: snapshot(rec),
			At:       now,
		}
	case StatusCheckedIn:
		msg := fmt.Sprintf("%s is already checked in.", displayName(rec))
		if rec.CheckInTime != nil {
			msg = fmt.Sprintf("%s was already checked in at %s.", displayName(rec), rec.CheckInTime.Format(time.Kitchen))
		}
		return rec, Outcome{
			Kind:     KindDuplicate,
			Title:    "Already checked in",
			Message:  msg,
			Attendee: snapshot(rec),
			At:       now,
		}
	default:
		return rec, Outcome{
			Kind:     KindRejected,
			Title:    "Check-in not allowed",
			Message:  fmt.Sprintf("%s is marked as %s for this event.", displayName(rec), rec.Status),
			Attendee: snapshot(rec),
			At:       now,
		}
	}
}

// Invalid builds the outcome for a code that matches no attendee of the event.
func Invalid(code string, now time.Time) Outcome {
	msg := "The code was not recognized for this event."
	if trimmed := strings.TrimSpace(code); trimmed == "" {
		msg = "No code was provided."
	}
	return Outcome{
		Kind:    KindInvalid,
		Title:   "Invalid ticket",
		Message: msg,
		At:      now,
	}
}

// Ambiguous builds an invalid outcome for a manual query that matched several attendees.
func Ambiguous(query string, matches int, now time.Time) Outcome {
	return Outcome{
		Kind:    KindInvalid,
		Title:   "Several attendees match",
		Message: fmt.Sprintf("%d attendees match %q; refine the search.", matches, strings.TrimSpace(query)),
		At:      now,
	}
}

func displayName(rec Record) string {
	if name := strings.TrimSpace(rec.Name); name != "" {
		return name
	}
	if rec.Email != "" {
		return rec.Email
	}
	return rec.ID
}

func snapshot(rec Record) *Record {
	clone := rec
	if rec.CheckInTime != nil {
		t := *rec.CheckInTime
		clone.CheckInTime = &t
	}
	return &clone
}
