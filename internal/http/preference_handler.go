package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/example/eventflow/internal/application"
	"github.com/example/eventflow/internal/theme"
)

type preferenceService interface {
	Theme(ctx context.Context, principal application.Principal, system theme.SystemPreference) (theme.Settings, error)
	ChangeTheme(ctx context.Context, principal application.Principal, system theme.SystemPreference, change application.ThemeChange) (theme.Settings, error)
	ResetTheme(ctx context.Context, principal application.Principal, system theme.SystemPreference) (theme.Settings, error)
}

// PreferenceHandler serves the theme settings. The system preference comes
// from the client hint headers of each request.
type PreferenceHandler struct {
	service   preferenceService
	responder responder
	logger    *slog.Logger
}

func NewPreferenceHandler(service preferenceService, logger *slog.Logger) *PreferenceHandler {
	base := defaultLogger(logger)
	return &PreferenceHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *PreferenceHandler) ready(w http.ResponseWriter) bool {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return false
	}
	return true
}

func (h *PreferenceHandler) Get(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	settings, err := h.service.Theme(r.Context(), principalFrom(r), theme.PreferenceFromRequest(r))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.write(w, r, settings)
}

func (h *PreferenceHandler) Update(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	var change application.ThemeChange
	if err := decodeJSON(r, &change, false); err != nil {
		h.responder.writeProblem(r.Context(), w, http.StatusBadRequest, "bad_request", err)
		return
	}

	settings, err := h.service.ChangeTheme(r.Context(), principalFrom(r), theme.PreferenceFromRequest(r), change)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	handlerLogger(r.Context(), h.logger, "PreferenceHandler", "Update", "theme", string(settings.Theme)).DebugContext(r.Context(), "theme changed")
	h.write(w, r, settings)
}

func (h *PreferenceHandler) Reset(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	settings, err := h.service.ResetTheme(r.Context(), principalFrom(r), theme.PreferenceFromRequest(r))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.write(w, r, settings)
}

func (h *PreferenceHandler) write(w http.ResponseWriter, r *http.Request, settings theme.Settings) {
	w.Header().Set("Vary", theme.HeaderPrefersColorScheme+", "+theme.HeaderPrefersReducedMotion)
	h.responder.writeJSON(r.Context(), w, http.StatusOK, themeResponse{Theme: settings})
}

type themeResponse struct {
	Theme theme.Settings `json:"theme"`
}
