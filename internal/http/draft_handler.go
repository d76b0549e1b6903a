package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/example/eventflow/internal/application"
)

type draftService interface {
	PutDraft(ctx context.Context, principal application.Principal, draftID string, input application.DraftInput) (application.Draft, error)
	GetDraft(ctx context.Context, principal application.Principal, draftID string) (application.Draft, error)
	SaveDraft(ctx context.Context, principal application.Principal, draftID string) (application.Draft, error)
	DeleteDraft(ctx context.Context, principal application.Principal, draftID string) error
	SubmitDraft(ctx context.Context, principal application.Principal, draftID string) (application.Event, error)
}

// DraftHandler serves the event wizard drafts. PUT only buffers the content;
// the autosave flusher or an explicit save writes it.
type DraftHandler struct {
	service   draftService
	responder responder
	logger    *slog.Logger
}

func NewDraftHandler(service draftService, logger *slog.Logger) *DraftHandler {
	base := defaultLogger(logger)
	return &DraftHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *DraftHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "DraftHandler", operation, attrs...)
}

func (h *DraftHandler) ready(w http.ResponseWriter) bool {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return false
	}
	return true
}

func (h *DraftHandler) Get(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	draft, err := h.service.GetDraft(r.Context(), principalFrom(r), r.PathValue("id"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, draftResponse{Draft: toDraftDTO(draft)})
}

func (h *DraftHandler) Put(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	var input application.DraftInput
	if err := decodeJSON(r, &input, false); err != nil {
		h.responder.writeProblem(r.Context(), w, http.StatusBadRequest, "bad_request", err)
		return
	}

	draft, err := h.service.PutDraft(r.Context(), principalFrom(r), r.PathValue("id"), input)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusAccepted, draftResponse{Draft: toDraftDTO(draft)})
}

func (h *DraftHandler) Save(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	draft, err := h.service.SaveDraft(r.Context(), principalFrom(r), r.PathValue("id"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.log(r.Context(), "Save", "draft_id", draft.ID).DebugContext(r.Context(), "draft saved")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, draftResponse{Draft: toDraftDTO(draft)})
}

func (h *DraftHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	if err := h.service.DeleteDraft(r.Context(), principalFrom(r), r.PathValue("id")); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

// Submit turns the draft into a draft event and discards it.
func (h *DraftHandler) Submit(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	draftID := r.PathValue("id")
	event, err := h.service.SubmitDraft(r.Context(), principalFrom(r), draftID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.log(r.Context(), "Submit", "draft_id", draftID, "event_id", event.ID).InfoContext(r.Context(), "draft submitted")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, eventResponse{Event: toEventDTO(event)})
}

type draftResponse struct {
	Draft draftDTO `json:"draft"`
}

type draftDTO struct {
	ID        string          `json:"id"`
	Step      int             `json:"step"`
	Payload   json.RawMessage `json:"payload"`
	Persisted bool            `json:"persisted"`
	UpdatedAt string          `json:"updated_at"`
}

func toDraftDTO(d application.Draft) draftDTO {
	payload := d.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	return draftDTO{
		ID:        d.ID,
		Step:      d.Step,
		Payload:   payload,
		Persisted: d.Persisted,
		UpdatedAt: formatTime(d.UpdatedAt),
	}
}
