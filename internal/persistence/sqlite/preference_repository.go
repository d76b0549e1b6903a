package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/example/eventflow/internal/persistence"
)

// PreferenceRepository implements persistence.PreferenceRepository using SQLite
type PreferenceRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewPreferenceRepository creates a new SQLite preference repository
func NewPreferenceRepository(pool *ConnectionPool) *PreferenceRepository {
	return &PreferenceRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

// GetPreference returns the blob stored under (owner, key).
func (r *PreferenceRepository) GetPreference(ctx context.Context, ownerID, key string) (persistence.Preference, error) {
	var (
		pref         persistence.Preference
		value        string
		updatedAtStr string
	)
	err := r.helper.QueryRow(ctx, `
		SELECT owner_id, key, value, updated_at
		FROM preferences
		WHERE owner_id = ? AND key = ?
	`, ownerID, key).Scan(&pref.OwnerID, &pref.Key, &value, &updatedAtStr)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.Preference{}, persistence.ErrNotFound
		}
		return persistence.Preference{}, r.mapper.MapError(err)
	}

	pref.Value = []byte(value)
	if pref.UpdatedAt, err = parseTime("updated_at", updatedAtStr); err != nil {
		return persistence.Preference{}, err
	}
	return pref, nil
}

// PutPreference inserts or replaces the blob stored under (owner, key).
func (r *PreferenceRepository) PutPreference(ctx context.Context, pref persistence.Preference) error {
	if pref.OwnerID == "" || pref.Key == "" {
		return persistence.ErrConstraintViolation
	}
	if pref.UpdatedAt.IsZero() {
		pref.UpdatedAt = time.Now().UTC()
	}

	_, err := r.helper.Exec(ctx, `
		INSERT INTO preferences (owner_id, key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (owner_id, key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, pref.OwnerID, pref.Key, string(pref.Value), formatTime(pref.UpdatedAt))
	if err != nil {
		return r.mapper.MapError(err)
	}
	return nil
}

// DeletePreference removes the blob stored under (owner, key). Deleting a
// missing key is not an error.
func (r *PreferenceRepository) DeletePreference(ctx context.Context, ownerID, key string) error {
	_, err := r.helper.Exec(ctx, `DELETE FROM preferences WHERE owner_id = ? AND key = ?`, ownerID, key)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return nil
}
