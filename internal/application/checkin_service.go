package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/example/eventflow/internal/access"
	"github.com/example/eventflow/internal/checkin"
	"github.com/example/eventflow/internal/live"
	"github.com/example/eventflow/internal/persistence"
)

// CheckInService runs door check-in. Every successful transition is written
// to the store before it is reported or logged, so the reported outcome and
// the durable state never disagree.
type CheckInService struct {
	events       persistence.EventRepository
	attendees    persistence.AttendeeRepository
	codes        *QRIndex
	publisher    Publisher
	activitySize int
	now          func() time.Time
	logger       *slog.Logger

	mu       sync.Mutex
	activity map[string]*checkin.ActivityLog
}

// NewCheckInService wires dependencies for the check-in service.
func NewCheckInService(events persistence.EventRepository, attendees persistence.AttendeeRepository, codes *QRIndex, publisher Publisher, activitySize int, now func() time.Time) *CheckInService {
	return NewCheckInServiceWithLogger(events, attendees, codes, publisher, activitySize, now, nil)
}

// NewCheckInServiceWithLogger wires dependencies with a specific logger.
func NewCheckInServiceWithLogger(events persistence.EventRepository, attendees persistence.AttendeeRepository, codes *QRIndex, publisher Publisher, activitySize int, now func() time.Time, logger *slog.Logger) *CheckInService {
	if activitySize <= 0 {
		activitySize = checkin.DefaultActivityCapacity
	}
	if now == nil {
		now = time.Now
	}
	return &CheckInService{
		events:       events,
		attendees:    attendees,
		codes:        codes,
		publisher:    publisher,
		activitySize: activitySize,
		now:          now,
		logger:       defaultLogger(logger),
		activity:     make(map[string]*checkin.ActivityLog),
	}
}

func (s *CheckInService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "CheckInService", operation, attrs...)
}

// ProcessScan checks in the attendee holding code. Unknown codes yield an
// invalid outcome and change nothing, the activity log included.
func (s *CheckInService) ProcessScan(ctx context.Context, principal Principal, eventID, code string) (result ScanResult, err error) {
	if s == nil {
		err = fmt.Errorf("CheckInService is nil")
		return
	}

	logger := s.loggerWith(ctx, "ProcessScan", "principal_id", principal.UserID, "event_id", eventID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "scan failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("outcome", string(result.Outcome.Kind)).InfoContext(ctx, "scan processed")
	}()

	if err = s.ready(ctx, principal, eventID); err != nil {
		return
	}

	var attendee Attendee
	attendee, err = s.codes.Lookup(ctx, eventID, code)
	if errors.Is(err, ErrNotFound) {
		err = nil
		result.Outcome = checkin.Invalid(code, s.now())
		result.Counters, err = s.counters(ctx, eventID)
		return
	}
	if err != nil {
		return
	}

	result, err = s.transition(ctx, principal, eventID, attendee)
	return
}

// ManualCheckIn resolves query against the event's attendees by name, e-mail
// or id and applies the same transition as a scan.
func (s *CheckInService) ManualCheckIn(ctx context.Context, principal Principal, eventID, query string) (result ScanResult, err error) {
	if s == nil {
		err = fmt.Errorf("CheckInService is nil")
		return
	}

	logger := s.loggerWith(ctx, "ManualCheckIn", "principal_id", principal.UserID, "event_id", eventID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "manual check-in failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("outcome", string(result.Outcome.Kind)).InfoContext(ctx, "manual check-in processed")
	}()

	if err = s.ready(ctx, principal, eventID); err != nil {
		return
	}

	var all []Attendee
	if all, err = s.list(ctx, eventID); err != nil {
		return
	}

	rec, matches, ok := checkin.Resolve(checkinRecords(all), query)
	if !ok {
		now := s.now()
		if matches > 1 {
			result.Outcome = checkin.Ambiguous(query, matches, now)
		} else {
			result.Outcome = checkin.Invalid(query, now)
		}
		result.Counters = checkin.Count(checkinRecords(all))
		return
	}

	for _, a := range all {
		if a.ID == rec.ID {
			result, err = s.transition(ctx, principal, eventID, a)
			return
		}
	}
	err = ErrNotFound
	return
}

// MarkNoShows moves every pending attendee of the event to no-show.
func (s *CheckInService) MarkNoShows(ctx context.Context, principal Principal, eventID string) (marked int, err error) {
	if s == nil {
		err = fmt.Errorf("CheckInService is nil")
		return
	}

	logger := s.loggerWith(ctx, "MarkNoShows", "principal_id", principal.UserID, "event_id", eventID)
	defer func() {
		logOutcome(ctx, logger, err, "no-show marking failed", "no-shows marked", "marked", marked)
	}()

	if err = principal.require(access.ManageAttendees); err != nil {
		return
	}
	if s.attendees == nil {
		err = fmt.Errorf("attendee repository not configured")
		return
	}
	if marked, err = s.attendees.MarkNoShows(ctx, eventID, s.now()); err != nil {
		err = mapRepoError(err)
		return
	}
	if marked > 0 {
		s.publish(eventID, "checkin.no_shows", map[string]int{"marked": marked})
	}
	return
}

// RecentActivity returns the event's latest outcomes, newest first.
func (s *CheckInService) RecentActivity(ctx context.Context, principal Principal, eventID string) ([]checkin.Outcome, error) {
	if s == nil {
		return nil, fmt.Errorf("CheckInService is nil")
	}
	if !principal.Can(access.CheckInAttendees) && !principal.Can(access.ViewAttendees) {
		return nil, ErrUnauthorized
	}
	if err := s.eventExists(ctx, eventID); err != nil {
		return nil, err
	}
	return s.log(eventID).Entries(), nil
}

// Counters returns the check-in progress of an event.
func (s *CheckInService) Counters(ctx context.Context, principal Principal, eventID string) (checkin.Counters, error) {
	if s == nil {
		return checkin.Counters{}, fmt.Errorf("CheckInService is nil")
	}
	if !principal.Can(access.CheckInAttendees) && !principal.Can(access.ViewAttendees) {
		return checkin.Counters{}, ErrUnauthorized
	}
	if err := s.eventExists(ctx, eventID); err != nil {
		return checkin.Counters{}, err
	}
	return s.counters(ctx, eventID)
}

// transition applies the state machine to attendee and persists a success
// with a conditional write. When another door wins the race the attendee is
// re-read and the outcome reflects the stored state.
func (s *CheckInService) transition(ctx context.Context, principal Principal, eventID string, attendee Attendee) (ScanResult, error) {
	now := s.now()
	_, outcome := checkin.Apply(checkinRecord(attendee), now)

	if outcome.Kind == checkin.KindSuccess {
		err := s.attendees.MarkCheckedIn(ctx, attendee.ID, now, principal.UserID)
		switch {
		case err == nil:
		case errors.Is(err, persistence.ErrStateConflict):
			rec, getErr := s.attendees.GetAttendee(ctx, attendee.ID)
			if getErr != nil {
				return ScanResult{}, mapRepoError(getErr)
			}
			_, outcome = checkin.Apply(checkinRecord(attendeeFromRecord(rec)), now)
		default:
			return ScanResult{}, mapRepoError(err)
		}
	}

	s.log(eventID).Record(outcome)
	counters, err := s.counters(ctx, eventID)
	if err != nil {
		return ScanResult{}, err
	}
	s.publish(eventID, "checkin."+string(outcome.Kind), map[string]any{
		"outcome":  outcome,
		"counters": counters,
	})
	return ScanResult{Outcome: outcome, Counters: counters}, nil
}

func (s *CheckInService) ready(ctx context.Context, principal Principal, eventID string) error {
	if err := principal.require(access.CheckInAttendees); err != nil {
		return err
	}
	if s.events == nil || s.attendees == nil {
		return fmt.Errorf("check-in repositories not configured")
	}
	rec, err := s.events.GetEvent(ctx, eventID)
	if err != nil {
		return mapRepoError(err)
	}
	if rec.Status != string(EventPublished) {
		return fmt.Errorf("%w: check-in is only open for published events", ErrConflict)
	}
	return nil
}

func (s *CheckInService) eventExists(ctx context.Context, eventID string) error {
	if s.events == nil {
		return fmt.Errorf("event repository not configured")
	}
	_, err := s.events.GetEvent(ctx, eventID)
	return mapRepoError(err)
}

func (s *CheckInService) list(ctx context.Context, eventID string) ([]Attendee, error) {
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

func (s *CheckInService) counters(ctx context.Context, eventID string) (checkin.Counters, error) {
	all, err := s.list(ctx, eventID)
	if err != nil {
		return checkin.Counters{}, err
	}
	return checkin.Count(checkinRecords(all)), nil
}

func (s *CheckInService) log(eventID string) *checkin.ActivityLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.activity[eventID]
	if !ok {
		l = checkin.NewActivityLog(s.activitySize)
		s.activity[eventID] = l
	}
	return l
}

func (s *CheckInService) publish(eventID, kind string, payload any) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(live.Message{Topic: live.EventTopic(eventID), Type: kind, Payload: payload, At: s.now()})
}
