package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/eventflow/internal/application"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 1 << 20

var (
	errBadRequestBody      = errors.New("the request body is not valid JSON")
	errMissingSessionToken = errors.New("a session token is required")
)

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	if logger == nil {
		logger = slog.Default()
	}
	return responder{logger: logger}
}

func (r responder) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	if w == nil {
		return
	}

	if status == http.StatusNoContent || payload == nil {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.loggerFor(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

// writeProblem writes a problem with a fixed status, used for failures that
// happen before a service is called.
func (r responder) writeProblem(ctx context.Context, w http.ResponseWriter, status int, code string, err error) {
	message := http.StatusText(status)
	if err != nil {
		if msg := strings.TrimSpace(err.Error()); msg != "" {
			message = msg
		}
		r.loggerFor(ctx).WarnContext(ctx, "request rejected", "status", status, "error", err)
	}

	r.writeJSON(ctx, w, status, errorResponse{Error: application.Problem{
		Code:    code,
		Title:   http.StatusText(status),
		Message: message,
	}})
}

// handleServiceError maps a service error to its problem response. Server
// side failures are logged with the underlying error, which never reaches
// the client.
func (r responder) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}

	problem := application.Classify(err)
	if problem.Status >= http.StatusInternalServerError {
		r.loggerFor(ctx).ErrorContext(ctx, "request failed", "status", problem.Status, "error", err, "error_kind", application.ErrorKind(err))
	}
	if problem.Retryable && problem.Status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "5")
	}
	r.writeJSON(ctx, w, problem.Status, errorResponse{Error: problem})
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	if logger := LoggerFromContext(ctx); logger != nil {
		return logger
	}
	return r.logger
}

type errorResponse struct {
	Error application.Problem `json:"error"`
}

// decodeJSON reads a single JSON document from the request body. An empty
// body leaves dst untouched when allowEmpty is set.
func decodeJSON(r *http.Request, dst any, allowEmpty bool) error {
	if r.Body == nil {
		if allowEmpty {
			return nil
		}
		return errBadRequestBody
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) && allowEmpty {
			return nil
		}
		return fmt.Errorf("%w: %v", errBadRequestBody, err)
	}
	return nil
}
