package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/example/eventflow/internal/persistence"
)

// DraftRepository implements persistence.DraftRepository using SQLite
type DraftRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewDraftRepository creates a new SQLite draft repository
func NewDraftRepository(pool *ConnectionPool) *DraftRepository {
	return &DraftRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

// SaveDraft inserts the draft or overwrites its step and payload. The owner
// of an existing draft never changes.
func (r *DraftRepository) SaveDraft(ctx context.Context, draft persistence.EventDraft) error {
	if draft.ID == "" || draft.OwnerID == "" || len(draft.Payload) == 0 {
		return persistence.ErrConstraintViolation
	}
	now := time.Now().UTC()
	if draft.CreatedAt.IsZero() {
		draft.CreatedAt = now
	}
	if draft.UpdatedAt.IsZero() {
		draft.UpdatedAt = now
	}

	result, err := r.helper.Exec(ctx, `
		INSERT INTO event_drafts (id, owner_id, step, payload, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			step = excluded.step,
			payload = excluded.payload,
			updated_at = excluded.updated_at
		WHERE event_drafts.owner_id = excluded.owner_id
	`,
		draft.ID,
		draft.OwnerID,
		draft.Step,
		string(draft.Payload),
		formatTime(draft.CreatedAt),
		formatTime(draft.UpdatedAt),
	)
	if err != nil {
		return r.mapper.MapError(err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return r.mapper.MapError(err)
	}
	if rowsAffected == 0 {
		return persistence.ErrStateConflict
	}
	return nil
}

// GetDraft retrieves a draft by ID.
func (r *DraftRepository) GetDraft(ctx context.Context, id string) (persistence.EventDraft, error) {
	var (
		draft                      persistence.EventDraft
		payload                    string
		createdAtStr, updatedAtStr string
	)
	err := r.helper.QueryRow(ctx, `
		SELECT id, owner_id, step, payload, created_at, updated_at
		FROM event_drafts
		WHERE id = ?
	`, id).Scan(&draft.ID, &draft.OwnerID, &draft.Step, &payload, &createdAtStr, &updatedAtStr)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.EventDraft{}, persistence.ErrNotFound
		}
		return persistence.EventDraft{}, r.mapper.MapError(err)
	}

	draft.Payload = []byte(payload)
	if draft.CreatedAt, err = parseTime("created_at", createdAtStr); err != nil {
		return persistence.EventDraft{}, err
	}
	if draft.UpdatedAt, err = parseTime("updated_at", updatedAtStr); err != nil {
		return persistence.EventDraft{}, err
	}
	return draft, nil
}

// DeleteDraft removes a draft.
func (r *DraftRepository) DeleteDraft(ctx context.Context, id string) error {
	result, err := r.helper.Exec(ctx, `DELETE FROM event_drafts WHERE id = ?`, id)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return requireRows(result)
}
