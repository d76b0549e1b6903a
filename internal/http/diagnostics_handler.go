package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/example/eventflow/internal/application"
)

type diagnosticsService interface {
	Report(ctx context.Context) (application.DiagnosticsReport, error)
}

// DiagnosticsHandler exposes the development troubleshooting report. The
// router only mounts it in development.
type DiagnosticsHandler struct {
	service   diagnosticsService
	responder responder
}

func NewDiagnosticsHandler(service diagnosticsService, logger *slog.Logger) *DiagnosticsHandler {
	return &DiagnosticsHandler{service: service, responder: newResponder(defaultLogger(logger))}
}

func (h *DiagnosticsHandler) Report(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	report, err := h.service.Report(r.Context())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	status := http.StatusOK
	if !report.Healthy {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Cache-Control", "no-store")
	h.responder.writeJSON(r.Context(), w, status, report)
}
