package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/example/eventflow/internal/access"
	"github.com/example/eventflow/internal/persistence"
)

// PermissionService resolves effective permissions and manages per-user overrides.
type PermissionService struct {
	users       persistence.UserRepository
	permissions persistence.PermissionRepository
	policy      access.RevocationPolicy
	now         func() time.Time
	logger      *slog.Logger
}

// NewPermissionService wires dependencies for the permission service.
func NewPermissionService(users persistence.UserRepository, permissions persistence.PermissionRepository, policy access.RevocationPolicy, now func() time.Time) *PermissionService {
	return NewPermissionServiceWithLogger(users, permissions, policy, now, nil)
}

// NewPermissionServiceWithLogger wires dependencies with a specific logger.
func NewPermissionServiceWithLogger(users persistence.UserRepository, permissions persistence.PermissionRepository, policy access.RevocationPolicy, now func() time.Time, logger *slog.Logger) *PermissionService {
	if policy == "" {
		policy = access.PolicyUnion
	}
	if now == nil {
		now = time.Now
	}
	return &PermissionService{
		users:       users,
		permissions: permissions,
		policy:      policy,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

// Policy reports the configured revocation policy.
func (s *PermissionService) Policy() access.RevocationPolicy {
	if s == nil {
		return access.PolicyUnion
	}
	return s.policy
}

func (s *PermissionService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "PermissionService", operation, attrs...)
}

// ResolveEffectivePermissions merges the user's role permissions with their
// active overrides. It fails with ErrNotFound for an unknown user and with
// ErrUpstreamUnavailable when the role table or the overrides cannot be read;
// it never falls back to an empty or full set.
func (s *PermissionService) ResolveEffectivePermissions(ctx context.Context, userID string) (effective access.Set, err error) {
	if s == nil {
		return nil, fmt.Errorf("PermissionService is nil")
	}
	if s.users == nil || s.permissions == nil {
		return nil, fmt.Errorf("permission repositories not configured")
	}

	logger := s.loggerWith(ctx, "ResolveEffectivePermissions", "user_id", userID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "permission resolution failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("permission_count", len(effective), "policy", string(s.policy)).DebugContext(ctx, "permissions resolved")
	}()

	var user User
	if user, err = s.loadUser(ctx, userID); err != nil {
		return nil, err
	}

	var rolePerms []access.Permission
	if rolePerms, err = s.rolePermissions(ctx, user.Role); err != nil {
		return nil, err
	}

	var overrides []access.Override
	if overrides, _, err = s.overrides(ctx, userID); err != nil {
		return nil, err
	}

	effective = access.Resolve(rolePerms, overrides, s.now(), s.policy)
	return effective, nil
}

// Describe returns the effective set together with the raw override rows.
func (s *PermissionService) Describe(ctx context.Context, principal Principal, userID string) (result UserPermissions, err error) {
	if s == nil {
		err = fmt.Errorf("PermissionService is nil")
		return
	}
	if principal.UserID != userID {
		if err = principal.require(access.ManagePermissions); err != nil {
			return
		}
	}

	var user User
	if user, err = s.loadUser(ctx, userID); err != nil {
		return
	}
	var rolePerms []access.Permission
	if rolePerms, err = s.rolePermissions(ctx, user.Role); err != nil {
		return
	}
	var (
		active []access.Override
		rows   []PermissionOverride
	)
	if active, rows, err = s.overrides(ctx, userID); err != nil {
		return
	}

	result = UserPermissions{
		UserID:    user.ID,
		Role:      user.Role,
		Effective: access.Resolve(rolePerms, active, s.now(), s.policy),
		Overrides: rows,
		Policy:    s.policy,
	}
	return
}

// ListOverrides returns every override row for the user, expired ones included.
func (s *PermissionService) ListOverrides(ctx context.Context, principal Principal, userID string) ([]PermissionOverride, error) {
	if s == nil {
		return nil, fmt.Errorf("PermissionService is nil")
	}
	if err := principal.require(access.ManagePermissions); err != nil {
		return nil, err
	}
	if _, err := s.loadUser(ctx, userID); err != nil {
		return nil, err
	}
	_, rows, err := s.overrides(ctx, userID)
	return rows, err
}

// GrantPermission upserts an active grant for the user.
func (s *PermissionService) GrantPermission(ctx context.Context, principal Principal, userID string, grant PermissionGrant) (PermissionOverride, error) {
	return s.upsert(ctx, "GrantPermission", principal, userID, grant, true)
}

// DenyPermission upserts a denial. It only changes the effective set under
// the override revocation policy.
func (s *PermissionService) DenyPermission(ctx context.Context, principal Principal, userID string, grant PermissionGrant) (PermissionOverride, error) {
	return s.upsert(ctx, "DenyPermission", principal, userID, grant, false)
}

func (s *PermissionService) upsert(ctx context.Context, op string, principal Principal, userID string, grant PermissionGrant, granted bool) (override PermissionOverride, err error) {
	if s == nil {
		err = fmt.Errorf("PermissionService is nil")
		return
	}
	if s.permissions == nil {
		err = fmt.Errorf("permission repository not configured")
		return
	}

	logger := s.loggerWith(ctx, op,
		"principal_id", principal.UserID,
		"user_id", userID,
		"permission", grant.Permission,
	)
	defer func() {
		logOutcome(ctx, logger, err, "permission override failed", "permission override stored", "granted", granted)
	}()

	if err = principal.require(access.ManagePermissions); err != nil {
		return
	}

	grant.Permission = strings.ToLower(strings.TrimSpace(grant.Permission))
	now := s.now()
	vErr := &ValidationError{}
	vErr.merge(inputs.Struct(grant))
	validateExpiry(vErr, grant.ExpiresAt, now)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	if _, err = s.loadUser(ctx, userID); err != nil {
		return
	}

	perm, _ := access.ParsePermission(grant.Permission)
	var expires *time.Time
	if grant.ExpiresAt != nil {
		at := grant.ExpiresAt.UTC()
		expires = &at
	}

	rec := persistence.PermissionOverride{
		UserID:     userID,
		Permission: string(perm),
		Granted:    granted,
		GrantedBy:  principal.UserID,
		ExpiresAt:  expires,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err = s.permissions.UpsertOverride(ctx, rec); err != nil {
		err = mapRepoError(err)
		return
	}

	override = PermissionOverride{
		UserID:     userID,
		Permission: perm,
		Granted:    granted,
		GrantedBy:  principal.UserID,
		ExpiresAt:  expires,
		Active:     expires == nil || expires.After(now),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	return
}

// RevokePermission deletes the override row. Revoking a permission the user
// only holds through their role is not possible and reports ErrNotFound.
func (s *PermissionService) RevokePermission(ctx context.Context, principal Principal, userID, permission string) (err error) {
	if s == nil {
		return fmt.Errorf("PermissionService is nil")
	}
	if s.permissions == nil {
		return fmt.Errorf("permission repository not configured")
	}

	logger := s.loggerWith(ctx, "RevokePermission",
		"principal_id", principal.UserID,
		"user_id", userID,
		"permission", permission,
	)
	defer func() {
		logOutcome(ctx, logger, err, "permission revoke failed", "permission override removed")
	}()

	if err = principal.require(access.ManagePermissions); err != nil {
		return
	}
	perm, known := access.ParsePermission(permission)
	if !known {
		err = &ValidationError{FieldErrors: map[string]string{"permission": "unknown permission"}}
		return
	}
	if _, err = s.loadUser(ctx, userID); err != nil {
		return
	}

	if err = s.permissions.DeleteOverride(ctx, userID, string(perm)); err != nil {
		err = mapRepoError(err)
	}
	return
}

func (s *PermissionService) loadUser(ctx context.Context, userID string) (User, error) {
	if strings.TrimSpace(userID) == "" {
		return User{}, ErrNotFound
	}
	rec, err := s.users.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return User{}, ErrNotFound
		}
		return User{}, upstreamError("users", err)
	}
	return userFromRecord(rec)
}

// rolePermissions reads the role table. Unknown permission names in the table
// are skipped.
func (s *PermissionService) rolePermissions(ctx context.Context, role access.Role) ([]access.Permission, error) {
	names, err := s.permissions.ListRolePermissions(ctx, role.String())
	if err != nil {
		return nil, upstreamError("role_permissions", err)
	}
	perms := make([]access.Permission, 0, len(names))
	for _, name := range names {
		if perm, ok := access.ParsePermission(name); ok {
			perms = append(perms, perm)
		}
	}
	return perms, nil
}

func (s *PermissionService) overrides(ctx context.Context, userID string) ([]access.Override, []PermissionOverride, error) {
	recs, err := s.permissions.ListOverrides(ctx, userID)
	if err != nil {
		return nil, nil, upstreamError("user_permissions", err)
	}

	now := s.now()
	active := make([]access.Override, 0, len(recs))
	rows := make([]PermissionOverride, 0, len(recs))
	for _, rec := range recs {
		o, ok := overrideFromRecord(rec)
		if !ok {
			continue
		}
		active = append(active, o)
		rows = append(rows, PermissionOverride{
			UserID:     rec.UserID,
			Permission: o.Permission,
			Granted:    o.Granted,
			GrantedBy:  o.GrantedBy,
			ExpiresAt:  o.ExpiresAt,
			Active:     o.Active(now),
			CreatedAt:  rec.CreatedAt,
			UpdatedAt:  rec.UpdatedAt,
		})
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Permission < rows[j].Permission })
	return active, rows, nil
}
