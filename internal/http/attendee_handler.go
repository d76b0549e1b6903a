package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/example/eventflow/internal/application"
)

type attendeeService interface {
	ListAttendees(ctx context.Context, principal application.Principal, eventID string, q application.ListQuery) ([]application.Attendee, error)
	Register(ctx context.Context, principal application.Principal, eventID string, input application.RegistrationInput) (application.Attendee, error)
	BulkUpdate(ctx context.Context, principal application.Principal, eventID string, input application.BulkUpdateInput) (application.BulkUpdateResult, error)
	GetAttendee(ctx context.Context, principal application.Principal, attendeeID string) (application.Attendee, error)
	TicketQRCode(ctx context.Context, principal application.Principal, attendeeID string, size int) ([]byte, error)
}

type AttendeeHandler struct {
	service   attendeeService
	responder responder
	logger    *slog.Logger
}

func NewAttendeeHandler(service attendeeService, logger *slog.Logger) *AttendeeHandler {
	base := defaultLogger(logger)
	return &AttendeeHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *AttendeeHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "AttendeeHandler", operation, attrs...)
}

func (h *AttendeeHandler) ready(w http.ResponseWriter) bool {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return false
	}
	return true
}

func (h *AttendeeHandler) List(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	q, err := parseListQuery(r)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	attendees, err := h.service.ListAttendees(r.Context(), principalFrom(r), r.PathValue("id"), q)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]attendeeDTO, 0, len(attendees))
	for _, a := range attendees {
		out = append(out, toAttendeeDTO(a))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listAttendeesResponse{Attendees: out})
}

func (h *AttendeeHandler) Register(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	var input application.RegistrationInput
	if err := decodeJSON(r, &input, false); err != nil {
		h.responder.writeProblem(r.Context(), w, http.StatusBadRequest, "bad_request", err)
		return
	}

	eventID := r.PathValue("id")
	attendee, err := h.service.Register(r.Context(), principalFrom(r), eventID, input)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.log(r.Context(), "Register", "event_id", eventID, "attendee_id", attendee.ID).InfoContext(r.Context(), "attendee registered")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, attendeeResponse{Attendee: toAttendeeDTO(attendee)})
}

// Bulk applies an action to a selection. With select_all the selection is the
// filtered view described by the query string.
func (h *AttendeeHandler) Bulk(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	var input application.BulkUpdateInput
	if err := decodeJSON(r, &input, false); err != nil {
		h.responder.writeProblem(r.Context(), w, http.StatusBadRequest, "bad_request", err)
		return
	}
	q, err := parseListQuery(r)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	input.Query = q

	eventID := r.PathValue("id")
	result, err := h.service.BulkUpdate(r.Context(), principalFrom(r), eventID, input)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.log(r.Context(), "Bulk", "event_id", eventID, "action", input.Action, "updated", len(result.Updated)).InfoContext(r.Context(), "bulk update applied")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, bulkResponse{
		Selected: result.Selected,
		Updated:  nonNil(result.Updated),
		Skipped:  nonNil(result.Skipped),
	})
}

func (h *AttendeeHandler) Get(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	attendee, err := h.service.GetAttendee(r.Context(), principalFrom(r), r.PathValue("id"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, attendeeResponse{Attendee: toAttendeeDTO(attendee)})
}

// QRCode renders the attendee's ticket as a PNG.
func (h *AttendeeHandler) QRCode(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	size, err := intQuery(r, "size", 0)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	png, err := h.service.TicketQRCode(r.Context(), principalFrom(r), r.PathValue("id"), size)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(png); err != nil {
		h.log(r.Context(), "QRCode").WarnContext(r.Context(), "failed to write ticket image", "error", err)
	}
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

type attendeeResponse struct {
	Attendee attendeeDTO `json:"attendee"`
}

type listAttendeesResponse struct {
	Attendees []attendeeDTO `json:"attendees"`
}

type bulkResponse struct {
	Selected int      `json:"selected"`
	Updated  []string `json:"updated"`
	Skipped  []string `json:"skipped"`
}

type attendeeDTO struct {
	ID            string            `json:"id"`
	EventID       string            `json:"event_id"`
	UserID        string            `json:"user_id,omitempty"`
	Name          string            `json:"name"`
	Email         string            `json:"email"`
	Company       string            `json:"company,omitempty"`
	TicketType    string            `json:"ticket_type,omitempty"`
	PaymentStatus string            `json:"payment_status"`
	AmountMinor   int64             `json:"amount_minor"`
	QRCode        string            `json:"qr_code"`
	CheckInStatus string            `json:"check_in_status"`
	CheckInTime   *string           `json:"check_in_time,omitempty"`
	CheckedInBy   string            `json:"checked_in_by,omitempty"`
	Answers       map[string]string `json:"answers,omitempty"`
	RegisteredAt  string            `json:"registered_at"`
	UpdatedAt     string            `json:"updated_at"`
}

func toAttendeeDTO(a application.Attendee) attendeeDTO {
	return attendeeDTO{
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
		CheckInTime:   formatTimePtr(a.CheckInTime),
		CheckedInBy:   a.CheckedInBy,
		Answers:       a.Answers,
		RegisteredAt:  formatTime(a.RegisteredAt),
		UpdatedAt:     formatTime(a.UpdatedAt),
	}
}
