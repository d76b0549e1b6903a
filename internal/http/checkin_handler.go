package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/example/eventflow/internal/application"
	"github.com/example/eventflow/internal/checkin"
	"github.com/example/eventflow/internal/live"
)

// heartbeatInterval keeps idle live streams open through proxies.
const heartbeatInterval = 15 * time.Second

type checkInService interface {
	ProcessScan(ctx context.Context, principal application.Principal, eventID, code string) (application.ScanResult, error)
	ManualCheckIn(ctx context.Context, principal application.Principal, eventID, query string) (application.ScanResult, error)
	MarkNoShows(ctx context.Context, principal application.Principal, eventID string) (int, error)
	RecentActivity(ctx context.Context, principal application.Principal, eventID string) ([]checkin.Outcome, error)
	Counters(ctx context.Context, principal application.Principal, eventID string) (checkin.Counters, error)
}

// Subscriber hands out live update streams.
type Subscriber interface {
	Subscribe(topic string) (<-chan live.Message, func())
}

type CheckInHandler struct {
	service   checkInService
	live      Subscriber
	heartbeat time.Duration
	responder responder
	logger    *slog.Logger
}

func NewCheckInHandler(service checkInService, subscriber Subscriber, logger *slog.Logger) *CheckInHandler {
	base := defaultLogger(logger)
	return &CheckInHandler{
		service:   service,
		live:      subscriber,
		heartbeat: heartbeatInterval,
		responder: newResponder(base),
		logger:    base,
	}
}

func (h *CheckInHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "CheckInHandler", operation, attrs...)
}

func (h *CheckInHandler) ready(w http.ResponseWriter) bool {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return false
	}
	return true
}

func (h *CheckInHandler) Scan(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	var req struct {
		Code string `json:"code"`
	}
	if err := decodeJSON(r, &req, false); err != nil {
		h.responder.writeProblem(r.Context(), w, http.StatusBadRequest, "bad_request", err)
		return
	}

	eventID := r.PathValue("id")
	result, err := h.service.ProcessScan(r.Context(), principalFrom(r), eventID, req.Code)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.log(r.Context(), "Scan", "event_id", eventID, "outcome", string(result.Outcome.Kind)).InfoContext(r.Context(), "scan processed")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, scanResponse(result))
}

func (h *CheckInHandler) Manual(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	var req struct {
		Query string `json:"query"`
	}
	if err := decodeJSON(r, &req, false); err != nil {
		h.responder.writeProblem(r.Context(), w, http.StatusBadRequest, "bad_request", err)
		return
	}

	eventID := r.PathValue("id")
	result, err := h.service.ManualCheckIn(r.Context(), principalFrom(r), eventID, req.Query)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.log(r.Context(), "Manual", "event_id", eventID, "outcome", string(result.Outcome.Kind)).InfoContext(r.Context(), "manual check-in processed")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, scanResponse(result))
}

func (h *CheckInHandler) NoShows(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	eventID := r.PathValue("id")
	marked, err := h.service.MarkNoShows(r.Context(), principalFrom(r), eventID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.log(r.Context(), "NoShows", "event_id", eventID, "marked", marked).InfoContext(r.Context(), "no-shows marked")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, noShowsResponse{Marked: marked})
}

func (h *CheckInHandler) Recent(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	activity, err := h.service.RecentActivity(r.Context(), principalFrom(r), r.PathValue("id"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	if activity == nil {
		activity = []checkin.Outcome{}
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, recentResponse{Activity: activity})
}

// Live streams an event's counters and check-in activity as server-sent
// events. The first message is a counters snapshot.
func (h *CheckInHandler) Live(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	if h.live == nil {
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.responder.writeProblem(r.Context(), w, http.StatusInternalServerError, "streaming_unsupported", fmt.Errorf("response does not support streaming"))
		return
	}

	ctx := r.Context()
	eventID := r.PathValue("id")
	counters, err := h.service.Counters(ctx, principalFrom(r), eventID)
	if err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}

	messages, cancel := h.live.Subscribe(live.EventTopic(eventID))
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	logger := h.log(ctx, "Live", "event_id", eventID)
	logger.DebugContext(ctx, "live stream opened")
	defer logger.DebugContext(ctx, "live stream closed")

	snapshot := live.Message{Topic: live.EventTopic(eventID), Type: "counters", Payload: counters, At: time.Now().UTC()}
	if err := writeSSE(w, snapshot); err != nil {
		return
	}
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			if err := writeSSE(w, msg); err != nil {
				logger.DebugContext(ctx, "live stream write failed", "error", err)
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, msg live.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Type, data)
	return err
}

type scanResultDTO struct {
	Outcome  checkin.Outcome  `json:"outcome"`
	Counters checkin.Counters `json:"counters"`
}

func scanResponse(result application.ScanResult) scanResultDTO {
	return scanResultDTO{Outcome: result.Outcome, Counters: result.Counters}
}

type noShowsResponse struct {
	Marked int `json:"marked"`
}

type recentResponse struct {
	Activity []checkin.Outcome `json:"activity"`
}
