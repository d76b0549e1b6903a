package application

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/eventflow/internal/access"
	"github.com/example/eventflow/internal/autosave"
	"github.com/example/eventflow/internal/persistence"
)

// errForeignDraft hides drafts of other users behind ErrNotFound while letting
// PutDraft tell them apart from drafts that do not exist yet.
var errForeignDraft = fmt.Errorf("%w: draft", ErrNotFound)

// DraftService keeps event wizard drafts. Changes land in an in-memory buffer
// that the autosave flusher writes out periodically; Save forces a write.
type DraftService struct {
	buffer *autosave.Buffer
	drafts persistence.DraftRepository
	events *EventService
	now    func() time.Time
	logger *slog.Logger
}

// NewDraftService wires dependencies for the draft service.
func NewDraftService(buffer *autosave.Buffer, drafts persistence.DraftRepository, events *EventService, now func() time.Time) *DraftService {
	return NewDraftServiceWithLogger(buffer, drafts, events, now, nil)
}

// NewDraftServiceWithLogger wires dependencies with a specific logger.
func NewDraftServiceWithLogger(buffer *autosave.Buffer, drafts persistence.DraftRepository, events *EventService, now func() time.Time, logger *slog.Logger) *DraftService {
	if buffer == nil {
		buffer = autosave.NewBuffer()
	}
	if now == nil {
		now = time.Now
	}
	return &DraftService{buffer: buffer, drafts: drafts, events: events, now: now, logger: defaultLogger(logger)}
}

func (s *DraftService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "DraftService", operation, attrs...)
}

// Buffer exposes the draft buffer so the process can run a flusher over it.
func (s *DraftService) Buffer() *autosave.Buffer {
	return s.buffer
}

// PutDraft buffers the latest wizard content. Nothing is written until the
// next flush or an explicit Save.
func (s *DraftService) PutDraft(ctx context.Context, principal Principal, draftID string, input DraftInput) (Draft, error) {
	if s == nil {
		return Draft{}, fmt.Errorf("DraftService is nil")
	}
	if err := principal.require(access.CreateEvents); err != nil {
		return Draft{}, err
	}

	draftID = strings.TrimSpace(draftID)
	vErr := &ValidationError{}
	if draftID == "" || len(draftID) > 64 {
		vErr.add("id", "must be between 1 and 64 characters")
	}
	vErr.merge(inputs.Struct(input))
	if len(bytes.TrimSpace(input.Payload)) > 0 && !json.Valid(input.Payload) {
		vErr.add("payload", "must be valid JSON")
	}
	if vErr.HasErrors() {
		return Draft{}, vErr
	}

	if _, err := s.owned(ctx, principal, draftID); err != nil {
		if errors.Is(err, errForeignDraft) || !errors.Is(err, ErrNotFound) {
			return Draft{}, err
		}
	}

	entry := autosave.Entry{
		Key:       draftID,
		OwnerID:   principal.UserID,
		Step:      input.Step,
		Payload:   input.Payload,
		UpdatedAt: s.now(),
	}
	s.buffer.Put(entry)
	return draftFromEntry(entry, false), nil
}

// GetDraft returns the newest content of a draft owned by the principal.
func (s *DraftService) GetDraft(ctx context.Context, principal Principal, draftID string) (Draft, error) {
	if s == nil {
		return Draft{}, fmt.Errorf("DraftService is nil")
	}
	if err := principal.require(access.CreateEvents); err != nil {
		return Draft{}, err
	}
	return s.owned(ctx, principal, strings.TrimSpace(draftID))
}

// SaveDraft writes the buffered content immediately.
func (s *DraftService) SaveDraft(ctx context.Context, principal Principal, draftID string) (draft Draft, err error) {
	if s == nil {
		err = fmt.Errorf("DraftService is nil")
		return
	}

	logger := s.loggerWith(ctx, "SaveDraft", "principal_id", principal.UserID, "draft_id", draftID)
	defer func() {
		logOutcome(ctx, logger, err, "draft save failed", "draft saved")
	}()

	if err = principal.require(access.CreateEvents); err != nil {
		return
	}
	if draft, err = s.owned(ctx, principal, draftID); err != nil {
		return
	}
	if draft.Persisted {
		return
	}

	entry, _ := s.buffer.Get(draftID)
	if err = s.SaveEntry(ctx, entry); err != nil {
		return
	}
	s.buffer.Discard(draftID)
	draft.Persisted = true
	return
}

// DeleteDraft drops both the buffered and the stored copy.
func (s *DraftService) DeleteDraft(ctx context.Context, principal Principal, draftID string) (err error) {
	if s == nil {
		return fmt.Errorf("DraftService is nil")
	}

	logger := s.loggerWith(ctx, "DeleteDraft", "principal_id", principal.UserID, "draft_id", draftID)
	defer func() {
		logOutcome(ctx, logger, err, "draft deletion failed", "draft deleted")
	}()

	if err = principal.require(access.CreateEvents); err != nil {
		return
	}
	var draft Draft
	if draft, err = s.owned(ctx, principal, draftID); err != nil {
		return
	}
	s.buffer.Discard(draftID)
	if s.drafts == nil {
		return
	}
	if err = s.drafts.DeleteDraft(ctx, draftID); err != nil {
		if errors.Is(err, persistence.ErrNotFound) && !draft.Persisted {
			err = nil
			return
		}
		err = mapRepoError(err)
	}
	return
}

// SubmitDraft turns the draft payload into a new event and removes the draft.
// The payload must decode into an EventInput.
func (s *DraftService) SubmitDraft(ctx context.Context, principal Principal, draftID string) (event Event, err error) {
	if s == nil {
		err = fmt.Errorf("DraftService is nil")
		return
	}
	if s.events == nil {
		err = fmt.Errorf("event service not configured")
		return
	}

	logger := s.loggerWith(ctx, "SubmitDraft", "principal_id", principal.UserID, "draft_id", draftID)
	defer func() {
		logOutcome(ctx, logger, err, "draft submission failed", "draft submitted", "event_id", event.ID)
	}()

	if err = principal.require(access.CreateEvents); err != nil {
		return
	}

	var draft Draft
	if draft, err = s.owned(ctx, principal, draftID); err != nil {
		return
	}

	var input EventInput
	if decodeErr := json.Unmarshal(draft.Payload, &input); decodeErr != nil {
		err = &ValidationError{FieldErrors: map[string]string{"payload": "does not describe an event: " + decodeErr.Error()}}
		return
	}

	if event, err = s.events.CreateEvent(ctx, principal, input); err != nil {
		return
	}

	s.buffer.Discard(draftID)
	if s.drafts != nil {
		if delErr := s.drafts.DeleteDraft(ctx, draftID); delErr != nil && !errors.Is(delErr, persistence.ErrNotFound) {
			logger.WarnContext(ctx, "submitted draft could not be removed", "error", delErr)
		}
	}
	return
}

// SaveEntry persists one buffered entry. It is the autosave flusher's save function.
func (s *DraftService) SaveEntry(ctx context.Context, e autosave.Entry) error {
	if s == nil || s.drafts == nil {
		return fmt.Errorf("draft repository not configured")
	}
	err := s.drafts.SaveDraft(ctx, persistence.EventDraft{
		ID:        e.Key,
		OwnerID:   e.OwnerID,
		Step:      e.Step,
		Payload:   append([]byte(nil), e.Payload...),
		CreatedAt: e.UpdatedAt,
		UpdatedAt: e.UpdatedAt,
	})
	return mapRepoError(err)
}

// owned returns the newest copy of a draft, buffered first. Drafts owned by
// someone else are reported as not found.
func (s *DraftService) owned(ctx context.Context, principal Principal, draftID string) (Draft, error) {
	if entry, ok := s.buffer.Get(draftID); ok {
		if entry.OwnerID != principal.UserID {
			return Draft{}, errForeignDraft
		}
		return draftFromEntry(entry, false), nil
	}
	if s.drafts == nil {
		return Draft{}, ErrNotFound
	}
	rec, err := s.drafts.GetDraft(ctx, draftID)
	if err != nil {
		return Draft{}, mapRepoError(err)
	}
	if rec.OwnerID != principal.UserID {
		return Draft{}, errForeignDraft
	}
	return Draft{
		ID:        rec.ID,
		OwnerID:   rec.OwnerID,
		Step:      rec.Step,
		Payload:   json.RawMessage(rec.Payload),
		UpdatedAt: rec.UpdatedAt,
		Persisted: true,
	}, nil
}

func draftFromEntry(e autosave.Entry, persisted bool) Draft {
	return Draft{
		ID:        e.Key,
		OwnerID:   e.OwnerID,
		Step:      e.Step,
		Payload:   append(json.RawMessage(nil), e.Payload...),
		UpdatedAt: e.UpdatedAt,
		Persisted: persisted,
	}
}
