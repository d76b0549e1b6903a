package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/example/eventflow/internal/persistence"
)

// PermissionRepository implements persistence.PermissionRepository using SQLite
type PermissionRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewPermissionRepository creates a new SQLite permission repository
func NewPermissionRepository(pool *ConnectionPool) *PermissionRepository {
	return &PermissionRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

// ListRolePermissions returns the permissions seeded for role, sorted by name.
func (r *PermissionRepository) ListRolePermissions(ctx context.Context, role string) ([]string, error) {
	rows, err := r.helper.Query(ctx,
		`SELECT permission FROM role_permissions WHERE role = ? ORDER BY permission`, role)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var perms []string
	for rows.Next() {
		var perm string
		if err := rows.Scan(&perm); err != nil {
			return nil, r.mapper.MapError(err)
		}
		perms = append(perms, perm)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return perms, nil
}

// ListOverrides returns every override row for the user, expired ones included.
func (r *PermissionRepository) ListOverrides(ctx context.Context, userID string) ([]persistence.PermissionOverride, error) {
	rows, err := r.helper.Query(ctx, `
		SELECT user_id, permission, granted, granted_by, expires_at, created_at, updated_at
		FROM user_permissions
		WHERE user_id = ?
		ORDER BY permission
	`, userID)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var overrides []persistence.PermissionOverride
	for rows.Next() {
		var (
			o                          persistence.PermissionOverride
			expiresAt                  sql.NullString
			createdAtStr, updatedAtStr string
		)
		if err := rows.Scan(&o.UserID, &o.Permission, &o.Granted, &o.GrantedBy, &expiresAt, &createdAtStr, &updatedAtStr); err != nil {
			return nil, r.mapper.MapError(err)
		}
		if o.ExpiresAt, err = parseTimePtr("expires_at", expiresAt); err != nil {
			return nil, err
		}
		if o.CreatedAt, err = parseTime("created_at", createdAtStr); err != nil {
			return nil, err
		}
		if o.UpdatedAt, err = parseTime("updated_at", updatedAtStr); err != nil {
			return nil, err
		}
		overrides = append(overrides, o)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return overrides, nil
}

// UpsertOverride inserts or replaces the override for (user, permission).
func (r *PermissionRepository) UpsertOverride(ctx context.Context, override persistence.PermissionOverride) error {
	if override.UserID == "" || override.Permission == "" {
		return persistence.ErrConstraintViolation
	}
	now := time.Now().UTC()
	if override.CreatedAt.IsZero() {
		override.CreatedAt = now
	}
	if override.UpdatedAt.IsZero() {
		override.UpdatedAt = override.CreatedAt
	}

	_, err := r.helper.Exec(ctx, `
		INSERT INTO user_permissions (user_id, permission, granted, granted_by, expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, permission) DO UPDATE SET
			granted = excluded.granted,
			granted_by = excluded.granted_by,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
	`,
		override.UserID,
		override.Permission,
		override.Granted,
		override.GrantedBy,
		nullTime(override.ExpiresAt),
		formatTime(override.CreatedAt),
		formatTime(override.UpdatedAt),
	)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return nil
}

// DeleteOverride removes the override for (user, permission).
func (r *PermissionRepository) DeleteOverride(ctx context.Context, userID, permission string) error {
	result, err := r.helper.Exec(ctx,
		`DELETE FROM user_permissions WHERE user_id = ? AND permission = ?`, userID, permission)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return requireRows(result)
}
