package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/example/eventflow/internal/application"
)

type eventService interface {
	ListEvents(ctx context.Context, principal application.Principal, q application.ListQuery) ([]application.Event, error)
	CreateEvent(ctx context.Context, principal application.Principal, input application.EventInput) (application.Event, error)
	GetEvent(ctx context.Context, principal application.Principal, eventID string) (application.Event, error)
	UpdateEvent(ctx context.Context, principal application.Principal, eventID string, input application.EventInput) (application.Event, error)
	DeleteEvent(ctx context.Context, principal application.Principal, eventID string) error
	PublishEvent(ctx context.Context, principal application.Principal, eventID string) (application.Event, error)
	CancelEvent(ctx context.Context, principal application.Principal, eventID string) (application.Event, error)
	DuplicateEvent(ctx context.Context, principal application.Principal, eventID string) (application.Event, error)
	EventStats(ctx context.Context, principal application.Principal, eventID string) (application.EventStats, error)
	Overview(ctx context.Context, principal application.Principal) (application.Overview, error)
}

type EventHandler struct {
	service   eventService
	responder responder
	logger    *slog.Logger
}

func NewEventHandler(service eventService, logger *slog.Logger) *EventHandler {
	base := defaultLogger(logger)
	return &EventHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *EventHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "EventHandler", operation, attrs...)
}

func (h *EventHandler) ready(w http.ResponseWriter) bool {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return false
	}
	return true
}

func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	q, err := parseListQuery(r)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	events, err := h.service.ListEvents(r.Context(), principalFrom(r), q)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]eventDTO, 0, len(events))
	for _, event := range events {
		out = append(out, toEventDTO(event))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listEventsResponse{Events: out})
}

func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	var input application.EventInput
	if err := decodeJSON(r, &input, false); err != nil {
		h.responder.writeProblem(r.Context(), w, http.StatusBadRequest, "bad_request", err)
		return
	}

	event, err := h.service.CreateEvent(r.Context(), principalFrom(r), input)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.log(r.Context(), "Create", "event_id", event.ID).InfoContext(r.Context(), "event created")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, eventResponse{Event: toEventDTO(event)})
}

func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	event, err := h.service.GetEvent(r.Context(), principalFrom(r), r.PathValue("id"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, eventResponse{Event: toEventDTO(event)})
}

func (h *EventHandler) Update(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	var input application.EventInput
	if err := decodeJSON(r, &input, false); err != nil {
		h.responder.writeProblem(r.Context(), w, http.StatusBadRequest, "bad_request", err)
		return
	}

	event, err := h.service.UpdateEvent(r.Context(), principalFrom(r), r.PathValue("id"), input)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.log(r.Context(), "Update", "event_id", event.ID).InfoContext(r.Context(), "event updated")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, eventResponse{Event: toEventDTO(event)})
}

func (h *EventHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	eventID := r.PathValue("id")
	if err := h.service.DeleteEvent(r.Context(), principalFrom(r), eventID); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.log(r.Context(), "Delete", "event_id", eventID).InfoContext(r.Context(), "event deleted")
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *EventHandler) Publish(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "Publish", func(ctx context.Context, p application.Principal, id string) (application.Event, error) {
		return h.service.PublishEvent(ctx, p, id)
	})
}

func (h *EventHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "Cancel", func(ctx context.Context, p application.Principal, id string) (application.Event, error) {
		return h.service.CancelEvent(ctx, p, id)
	})
}

func (h *EventHandler) transition(w http.ResponseWriter, r *http.Request, operation string, apply func(context.Context, application.Principal, string) (application.Event, error)) {
	if !h.ready(w) {
		return
	}

	event, err := apply(r.Context(), principalFrom(r), r.PathValue("id"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.log(r.Context(), operation, "event_id", event.ID, "status", string(event.Status)).InfoContext(r.Context(), "event status changed")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, eventResponse{Event: toEventDTO(event)})
}

func (h *EventHandler) Duplicate(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	event, err := h.service.DuplicateEvent(r.Context(), principalFrom(r), r.PathValue("id"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.log(r.Context(), "Duplicate", "source_id", r.PathValue("id"), "event_id", event.ID).InfoContext(r.Context(), "event duplicated")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, eventResponse{Event: toEventDTO(event)})
}

func (h *EventHandler) Stats(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	stats, err := h.service.EventStats(r.Context(), principalFrom(r), r.PathValue("id"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, statsResponse{Stats: toStatsDTO(stats)})
}

// Dashboard returns the organiser overview across every event.
func (h *EventHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	overview, err := h.service.Overview(r.Context(), principalFrom(r))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	byStatus := make(map[string]int, len(overview.EventsByStatus))
	for status, n := range overview.EventsByStatus {
		byStatus[string(status)] = n
	}
	low := make([]statsDTO, 0, len(overview.LowAvailable))
	for _, s := range overview.LowAvailable {
		low = append(low, toStatsDTO(s))
	}
	revenue := overview.Revenue
	if revenue == nil {
		revenue = map[string]int64{}
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, dashboardResponse{
		TotalEvents:     overview.TotalEvents,
		EventsByStatus:  byStatus,
		UpcomingEvents:  overview.UpcomingEvents,
		Registrations:   overview.Registrations,
		CheckIns:        overview.CheckIns,
		CheckInRate:     overview.CheckInRate,
		RevenueMinor:    revenue,
		LowAvailability: low,
	})
}

type eventResponse struct {
	Event eventDTO `json:"event"`
}

type listEventsResponse struct {
	Events []eventDTO `json:"events"`
}

type statsResponse struct {
	Stats statsDTO `json:"stats"`
}

type dashboardResponse struct {
	TotalEvents     int              `json:"total_events"`
	EventsByStatus  map[string]int   `json:"events_by_status"`
	UpcomingEvents  int              `json:"upcoming_events"`
	Registrations   int              `json:"registrations"`
	CheckIns        int              `json:"check_ins"`
	CheckInRate     float64          `json:"check_in_rate"`
	RevenueMinor    map[string]int64 `json:"revenue_minor"`
	LowAvailability []statsDTO       `json:"low_availability"`
}

type customFieldDTO struct {
	ID       string   `json:"id"`
	Label    string   `json:"label"`
	Type     string   `json:"type"`
	Required bool     `json:"required"`
	Options  []string `json:"options,omitempty"`
}

type eventDTO struct {
	ID           string           `json:"id"`
	Title        string           `json:"title"`
	Description  string           `json:"description,omitempty"`
	Category     string           `json:"category"`
	Status       string           `json:"status"`
	StartAt      string           `json:"start_at"`
	EndAt        string           `json:"end_at"`
	IsOnline     bool             `json:"is_online"`
	Venue        string           `json:"venue,omitempty"`
	MeetingLink  string           `json:"meeting_link,omitempty"`
	Capacity     int              `json:"capacity"`
	Registered   int              `json:"registered"`
	CheckedIn    int              `json:"checked_in"`
	PriceMinor   int64            `json:"price_minor"`
	Currency     string           `json:"currency"`
	Tags         []string         `json:"tags"`
	CustomFields []customFieldDTO `json:"custom_fields"`
	CreatedBy    string           `json:"created_by"`
	CreatedAt    string           `json:"created_at"`
	UpdatedAt    string           `json:"updated_at"`
}

func toEventDTO(e application.Event) eventDTO {
	tags := e.Tags
	if tags == nil {
		tags = []string{}
	}
	fields := make([]customFieldDTO, 0, len(e.CustomFields))
	for _, f := range e.CustomFields {
		fields = append(fields, customFieldDTO(f))
	}
	return eventDTO{
		ID:           e.ID,
		Title:        e.Title,
		Description:  e.Description,
		Category:     e.Category,
		Status:       string(e.Status),
		StartAt:      formatTime(e.StartAt),
		EndAt:        formatTime(e.EndAt),
		IsOnline:     e.IsOnline,
		Venue:        e.Venue,
		MeetingLink:  e.MeetingLink,
		Capacity:     e.Capacity,
		Registered:   e.Registered,
		CheckedIn:    e.CheckedIn,
		PriceMinor:   e.PriceMinor,
		Currency:     e.Currency,
		Tags:         tags,
		CustomFields: fields,
		CreatedBy:    e.CreatedBy,
		CreatedAt:    formatTime(e.CreatedAt),
		UpdatedAt:    formatTime(e.UpdatedAt),
	}
}

type statsDTO struct {
	EventID         string  `json:"event_id"`
	Capacity        int     `json:"capacity"`
	Registered      int     `json:"registered"`
	CheckedIn       int     `json:"checked_in"`
	AvailableSpots  int     `json:"available_spots"`
	FillPercent     float64 `json:"fill_percent"`
	LowAvailability bool    `json:"low_availability"`
	SoldOut         bool    `json:"sold_out"`
	DaysUntilStart  int     `json:"days_until_start"`
	ClosingSoon     bool    `json:"closing_soon"`
}

func toStatsDTO(s application.EventStats) statsDTO {
	return statsDTO(s)
}
