package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/eventflow/internal/access"
	"github.com/example/eventflow/internal/listview"
	"github.com/example/eventflow/internal/live"
	"github.com/example/eventflow/internal/persistence"
)

// Publisher delivers live updates to subscribers of a topic.
type Publisher interface {
	Publish(msg live.Message) int
}

// EventRules holds the availability warning thresholds.
type EventRules struct {
	LowAvailabilityThreshold int
	ClosingWindow            time.Duration
}

// DefaultEventRules returns the thresholds used when none are configured.
func DefaultEventRules() EventRules {
	return EventRules{LowAvailabilityThreshold: 50, ClosingWindow: 7 * 24 * time.Hour}
}

// EventService manages the event lifecycle and its derived statistics.
type EventService struct {
	events      persistence.EventRepository
	attendees   persistence.AttendeeRepository
	publisher   Publisher
	rules       EventRules
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewEventService wires dependencies for the event service.
func NewEventService(events persistence.EventRepository, attendees persistence.AttendeeRepository, publisher Publisher, rules EventRules, idGenerator func() string, now func() time.Time) *EventService {
	return NewEventServiceWithLogger(events, attendees, publisher, rules, idGenerator, now, nil)
}

// NewEventServiceWithLogger wires dependencies with a specific logger.
func NewEventServiceWithLogger(events persistence.EventRepository, attendees persistence.AttendeeRepository, publisher Publisher, rules EventRules, idGenerator func() string, now func() time.Time, logger *slog.Logger) *EventService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	defaults := DefaultEventRules()
	if rules.LowAvailabilityThreshold <= 0 {
		rules.LowAvailabilityThreshold = defaults.LowAvailabilityThreshold
	}
	if rules.ClosingWindow <= 0 {
		rules.ClosingWindow = defaults.ClosingWindow
	}
	return &EventService{
		events:      events,
		attendees:   attendees,
		publisher:   publisher,
		rules:       rules,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *EventService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "EventService", operation, attrs...)
}

// CreateEvent validates input and stores a new draft event.
func (s *EventService) CreateEvent(ctx context.Context, principal Principal, input EventInput) (event Event, err error) {
	if s == nil {
		err = fmt.Errorf("EventService is nil")
		return
	}
	if s.events == nil {
		err = fmt.Errorf("event repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "CreateEvent", "principal_id", principal.UserID)
	defer func() {
		logOutcome(ctx, logger, err, "event creation failed", "event created", "event_id", event.ID)
	}()

	if err = principal.require(access.CreateEvents); err != nil {
		return
	}

	input = s.normalizeInput(input)
	if vErr := validateEventInput(input); vErr != nil {
		err = vErr
		return
	}

	now := s.now()
	event = applyEventInput(Event{
		ID:        s.idGenerator(),
		Status:    EventDraft,
		CreatedBy: principal.UserID,
		CreatedAt: now,
	}, input)
	event.UpdatedAt = now

	if err = s.events.CreateEvent(ctx, eventToRecord(event)); err != nil {
		err = mapRepoError(err)
		event = Event{}
	}
	return
}

// UpdateEvent replaces the editable fields. Cancelled events are read-only and
// capacity cannot drop below the current registrations.
func (s *EventService) UpdateEvent(ctx context.Context, principal Principal, eventID string, input EventInput) (event Event, err error) {
	if s == nil {
		err = fmt.Errorf("EventService is nil")
		return
	}

	logger := s.loggerWith(ctx, "UpdateEvent", "principal_id", principal.UserID, "event_id", eventID)
	defer func() {
		logOutcome(ctx, logger, err, "event update failed", "event updated")
	}()

	if err = principal.require(access.EditEvents); err != nil {
		return
	}

	var current Event
	if current, err = s.load(ctx, eventID); err != nil {
		return
	}
	if current.Status == EventCancelled {
		err = fmt.Errorf("%w: event is cancelled", ErrConflict)
		return
	}

	input = s.normalizeInput(input)
	vErr := &ValidationError{}
	vErr.merge(validateEventInput(input))
	if input.Capacity > 0 && input.Capacity < current.Registered {
		vErr.add("capacity", fmt.Sprintf("must be at least the %d current registrations", current.Registered))
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	event = applyEventInput(current, input)
	event.UpdatedAt = s.now()
	if err = s.events.UpdateEvent(ctx, eventToRecord(event)); err != nil {
		err = mapRepoError(err)
		event = Event{}
		return
	}
	s.publish(event.ID, "event.updated", event)
	return
}

// PublishEvent moves a draft to published.
func (s *EventService) PublishEvent(ctx context.Context, principal Principal, eventID string) (Event, error) {
	return s.transition(ctx, "PublishEvent", principal, eventID, EventPublished, EventDraft)
}

// CancelEvent cancels a draft or published event.
func (s *EventService) CancelEvent(ctx context.Context, principal Principal, eventID string) (Event, error) {
	return s.transition(ctx, "CancelEvent", principal, eventID, EventCancelled, EventDraft, EventPublished)
}

func (s *EventService) transition(ctx context.Context, op string, principal Principal, eventID string, to EventStatus, from ...EventStatus) (event Event, err error) {
	if s == nil {
		err = fmt.Errorf("EventService is nil")
		return
	}

	logger := s.loggerWith(ctx, op, "principal_id", principal.UserID, "event_id", eventID, "status", string(to))
	defer func() {
		logOutcome(ctx, logger, err, "event status change failed", "event status changed")
	}()

	if err = principal.require(access.PublishEvents); err != nil {
		return
	}
	if event, err = s.load(ctx, eventID); err != nil {
		return
	}

	allowed := false
	for _, status := range from {
		if event.Status == status {
			allowed = true
			break
		}
	}
	if !allowed {
		err = fmt.Errorf("%w: cannot move %s event to %s", ErrConflict, event.Status, to)
		event = Event{}
		return
	}

	event.Status = to
	event.UpdatedAt = s.now()
	if err = s.events.UpdateEvent(ctx, eventToRecord(event)); err != nil {
		err = mapRepoError(err)
		event = Event{}
		return
	}
	s.publish(event.ID, "event.status", event)
	return
}

// DuplicateEvent copies an event under a new id as a draft with no registrations.
func (s *EventService) DuplicateEvent(ctx context.Context, principal Principal, eventID string) (event Event, err error) {
	if s == nil {
		err = fmt.Errorf("EventService is nil")
		return
	}

	logger := s.loggerWith(ctx, "DuplicateEvent", "principal_id", principal.UserID, "event_id", eventID)
	defer func() {
		logOutcome(ctx, logger, err, "event duplication failed", "event duplicated", "copy_id", event.ID)
	}()

	if err = principal.require(access.CreateEvents); err != nil {
		return
	}

	var source Event
	if source, err = s.load(ctx, eventID); err != nil {
		return
	}

	now := s.now()
	event = source
	event.ID = s.idGenerator()
	event.Title = source.Title + " (Copy)"
	event.Status = EventDraft
	event.Registered = 0
	event.CheckedIn = 0
	event.CreatedBy = principal.UserID
	event.CreatedAt = now
	event.UpdatedAt = now
	event.Tags = append([]string(nil), source.Tags...)
	event.CustomFields = append([]CustomField(nil), source.CustomFields...)

	if err = s.events.CreateEvent(ctx, eventToRecord(event)); err != nil {
		err = mapRepoError(err)
		event = Event{}
	}
	return
}

// DeleteEvent removes an event together with its registrations.
func (s *EventService) DeleteEvent(ctx context.Context, principal Principal, eventID string) (err error) {
	if s == nil {
		return fmt.Errorf("EventService is nil")
	}

	logger := s.loggerWith(ctx, "DeleteEvent", "principal_id", principal.UserID, "event_id", eventID)
	defer func() {
		logOutcome(ctx, logger, err, "event deletion failed", "event deleted")
	}()

	if err = principal.require(access.DeleteEvents); err != nil {
		return
	}
	if s.events == nil {
		err = fmt.Errorf("event repository not configured")
		return
	}
	if err = s.events.DeleteEvent(ctx, eventID); err != nil {
		err = mapRepoError(err)
		return
	}
	s.publish(eventID, "event.deleted", map[string]string{"id": eventID})
	return
}

// GetEvent returns one event. Principals without edit rights only see published events.
func (s *EventService) GetEvent(ctx context.Context, principal Principal, eventID string) (Event, error) {
	if s == nil {
		return Event{}, fmt.Errorf("EventService is nil")
	}
	if err := principal.require(access.ViewEvents); err != nil {
		return Event{}, err
	}
	event, err := s.load(ctx, eventID)
	if err != nil {
		return Event{}, err
	}
	if !canSeeUnpublished(principal) && event.Status != EventPublished {
		return Event{}, ErrNotFound
	}
	return event, nil
}

// ListEvents returns the filtered and sorted events visible to the principal.
func (s *EventService) ListEvents(ctx context.Context, principal Principal, q ListQuery) ([]Event, error) {
	if s == nil {
		return nil, fmt.Errorf("EventService is nil")
	}
	if err := principal.require(access.ViewEvents); err != nil {
		return nil, err
	}
	events, err := s.visible(ctx, principal)
	if err != nil {
		return nil, err
	}
	return applyList(EventSchema, events, q, s.now())
}

// EventStats returns the availability summary of one event.
func (s *EventService) EventStats(ctx context.Context, principal Principal, eventID string) (EventStats, error) {
	event, err := s.GetEvent(ctx, principal, eventID)
	if err != nil {
		return EventStats{}, err
	}
	return ComputeStats(event, s.now(), s.rules), nil
}

// Overview aggregates dashboard figures across every event.
func (s *EventService) Overview(ctx context.Context, principal Principal) (overview Overview, err error) {
	if s == nil {
		err = fmt.Errorf("EventService is nil")
		return
	}

	logger := s.loggerWith(ctx, "Overview", "principal_id", principal.UserID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "overview failed", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	if err = principal.require(access.ViewAnalytics); err != nil {
		return
	}

	var events []Event
	if events, err = s.visible(ctx, principal); err != nil {
		return
	}

	now := s.now()
	overview = Overview{
		TotalEvents:    len(events),
		EventsByStatus: map[EventStatus]int{EventDraft: 0, EventPublished: 0, EventCancelled: 0},
		Revenue:        map[string]int64{},
	}
	for _, event := range events {
		overview.EventsByStatus[event.Status]++
		overview.Registrations += event.Registered
		overview.CheckIns += event.CheckedIn
		if event.Status == EventPublished && !event.StartAt.Before(now) {
			overview.UpcomingEvents++
		}
		stats := ComputeStats(event, now, s.rules)
		if event.Status == EventPublished && stats.LowAvailability {
			overview.LowAvailable = append(overview.LowAvailable, stats)
		}

		if s.attendees == nil || event.Registered == 0 {
			continue
		}
		var attendees []persistence.Attendee
		if attendees, err = s.attendees.ListAttendees(ctx, event.ID); err != nil {
			err = mapRepoError(err)
			return
		}
		for _, a := range attendees {
			if a.PaymentStatus == string(PaymentPaid) {
				overview.Revenue[event.Currency] += a.AmountMinor
			}
		}
	}
	if overview.Registrations > 0 {
		overview.CheckInRate = float64(overview.CheckIns) / float64(overview.Registrations) * 100
	}
	return
}

// ComputeStats derives availability figures for an event at now.
func ComputeStats(event Event, now time.Time, rules EventRules) EventStats {
	available := event.Capacity - event.Registered
	if available < 0 {
		available = 0
	}
	fill := 0.0
	if event.Capacity > 0 {
		fill = float64(event.Registered) / float64(event.Capacity) * 100
		if fill > 100 {
			fill = 100
		}
	}
	days := listview.DaysUntil(event.StartAt, now)
	windowDays := int(rules.ClosingWindow / (24 * time.Hour))

	return EventStats{
		EventID:         event.ID,
		Capacity:        event.Capacity,
		Registered:      event.Registered,
		CheckedIn:       event.CheckedIn,
		AvailableSpots:  available,
		FillPercent:     fill,
		LowAvailability: available > 0 && available <= rules.LowAvailabilityThreshold,
		SoldOut:         available == 0,
		DaysUntilStart:  days,
		ClosingSoon:     days >= 0 && days <= windowDays,
	}
}

func (s *EventService) visible(ctx context.Context, principal Principal) ([]Event, error) {
	if s.events == nil {
		return nil, nil
	}
	filter := persistence.EventFilter{}
	if !canSeeUnpublished(principal) {
		filter.Statuses = []string{string(EventPublished)}
	}
	recs, err := s.events.ListEvents(ctx, filter)
	if err != nil {
		return nil, mapRepoError(err)
	}
	events := make([]Event, len(recs))
	for i, rec := range recs {
		events[i] = eventFromRecord(rec)
	}
	return events, nil
}

func (s *EventService) load(ctx context.Context, eventID string) (Event, error) {
	if s.events == nil {
		return Event{}, fmt.Errorf("event repository not configured")
	}
	rec, err := s.events.GetEvent(ctx, eventID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return Event{}, ErrNotFound
		}
		return Event{}, mapRepoError(err)
	}
	return eventFromRecord(rec), nil
}

func (s *EventService) publish(eventID, kind string, payload any) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(live.Message{Topic: live.EventTopic(eventID), Type: kind, Payload: payload, At: s.now()})
}

func canSeeUnpublished(principal Principal) bool {
	return principal.Can(access.EditEvents) || principal.Can(access.CreateEvents)
}

// normalizeInput trims text, upper-cases the currency, de-duplicates tags and
// assigns ids to new custom fields.
func (s *EventService) normalizeInput(input EventInput) EventInput {
	input.Title = strings.TrimSpace(input.Title)
	input.Description = strings.TrimSpace(input.Description)
	input.Category = strings.ToLower(strings.TrimSpace(input.Category))
	input.Venue = strings.TrimSpace(input.Venue)
	input.MeetingLink = strings.TrimSpace(input.MeetingLink)
	input.Currency = strings.ToUpper(strings.TrimSpace(input.Currency))
	if input.Currency == "" {
		input.Currency = "USD"
	}
	if input.IsOnline {
		input.Venue = ""
	} else {
		input.MeetingLink = ""
	}
	input.StartAt = input.StartAt.UTC()
	input.EndAt = input.EndAt.UTC()

	seen := make(map[string]struct{}, len(input.Tags))
	tags := make([]string, 0, len(input.Tags))
	for _, tag := range input.Tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}
	input.Tags = tags

	fields := make([]CustomFieldInput, len(input.CustomFields))
	for i, f := range input.CustomFields {
		f.ID = strings.TrimSpace(f.ID)
		if f.ID == "" {
			f.ID = s.idGenerator()
		}
		f.Label = strings.TrimSpace(f.Label)
		f.Type = strings.ToLower(strings.TrimSpace(f.Type))
		if f.Type != FieldTypeSelect {
			f.Options = nil
		}
		fields[i] = f
	}
	input.CustomFields = fields
	return input
}

func validateEventInput(input EventInput) *ValidationError {
	vErr := &ValidationError{}
	vErr.merge(inputs.Struct(input))

	ids := make(map[string]int, len(input.CustomFields))
	for i, f := range input.CustomFields {
		if first, dup := ids[f.ID]; dup && f.ID != "" {
			vErr.add(fmt.Sprintf("custom_fields[%d].id", i), fmt.Sprintf("duplicates custom_fields[%d].id", first))
			continue
		}
		ids[f.ID] = i
	}
	if vErr.HasErrors() {
		return vErr
	}
	return nil
}

func applyEventInput(event Event, input EventInput) Event {
	event.Title = input.Title
	event.Description = input.Description
	event.Category = input.Category
	event.StartAt = input.StartAt
	event.EndAt = input.EndAt
	event.IsOnline = input.IsOnline
	event.Venue = input.Venue
	event.MeetingLink = input.MeetingLink
	event.Capacity = input.Capacity
	event.PriceMinor = input.PriceMinor
	event.Currency = input.Currency
	event.Tags = append([]string(nil), input.Tags...)
	event.CustomFields = make([]CustomField, len(input.CustomFields))
	for i, f := range input.CustomFields {
		event.CustomFields[i] = CustomField{
			ID:       f.ID,
			Label:    f.Label,
			Type:     f.Type,
			Required: f.Required,
			Options:  append([]string(nil), f.Options...),
		}
	}
	return event
}
