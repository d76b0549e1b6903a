package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/eventflow/internal/access"
	"github.com/example/eventflow/internal/listview"
	"github.com/example/eventflow/internal/persistence"
)

// UserService orchestrates validation, authorization, and persistence for users.
type UserService struct {
	users  persistence.UserRepository
	now    func() time.Time
	logger *slog.Logger
}

// NewUserService wires dependencies for the user service.
func NewUserService(users persistence.UserRepository, now func() time.Time) *UserService {
	return NewUserServiceWithLogger(users, now, nil)
}

// NewUserServiceWithLogger wires dependencies with a specific logger.
func NewUserServiceWithLogger(users persistence.UserRepository, now func() time.Time, logger *slog.Logger) *UserService {
	if now == nil {
		now = time.Now
	}
	return &UserService{users: users, now: now, logger: defaultLogger(logger)}
}

func (s *UserService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "UserService", operation, attrs...)
}

// ListUsers returns the filtered and sorted user list for staff with manage_users.
func (s *UserService) ListUsers(ctx context.Context, principal Principal, q ListQuery) ([]User, error) {
	if s == nil {
		return nil, fmt.Errorf("UserService is nil")
	}
	if err := principal.require(access.ManageUsers); err != nil {
		return nil, err
	}
	if s.users == nil {
		return nil, nil
	}

	recs, err := s.users.ListUsers(ctx)
	if err != nil {
		return nil, mapRepoError(err)
	}

	users := make([]User, 0, len(recs))
	for _, rec := range recs {
		user, err := userFromRecord(rec)
		if err != nil {
			s.loggerWith(ctx, "ListUsers").WarnContext(ctx, "skipping user with invalid role", "user_id", rec.ID, "error", err)
			continue
		}
		users = append(users, user)
	}

	if role := q.Filters["role"]; role != "" && !strings.EqualFold(role, "all") {
		parsed, err := access.ParseRole(role)
		if err != nil {
			return nil, &ValidationError{FieldErrors: map[string]string{"role": "must be one of admin, manager, usher or attendee"}}
		}
		filters := make(listview.Filters, len(q.Filters))
		for k, v := range q.Filters {
			filters[k] = v
		}
		filters["role"] = parsed.String()
		q.Filters = filters
	}
	return applyList(UserSchema, users, q, s.now())
}

// GetUser returns a single user. Users may always read their own account.
func (s *UserService) GetUser(ctx context.Context, principal Principal, userID string) (User, error) {
	if s == nil {
		return User{}, fmt.Errorf("UserService is nil")
	}
	if principal.UserID == "" {
		return User{}, ErrUnauthorized
	}
	if principal.UserID != userID {
		if err := principal.require(access.ManageUsers); err != nil {
			return User{}, err
		}
	}
	return s.load(ctx, userID)
}

// UpdateProfile changes the caller's own profile fields.
func (s *UserService) UpdateProfile(ctx context.Context, principal Principal, input ProfileInput) (user User, err error) {
	if s == nil {
		err = fmt.Errorf("UserService is nil")
		return
	}
	if s.users == nil {
		err = fmt.Errorf("user repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "UpdateProfile", "principal_id", principal.UserID)
	defer func() {
		logOutcome(ctx, logger, err, "profile update failed", "profile updated")
	}()

	if principal.UserID == "" {
		err = ErrUnauthorized
		return
	}
	input.FullName = trimPtr(input.FullName)
	input.Company = trimPtr(input.Company)
	input.Phone = trimPtr(input.Phone)
	vErr := &ValidationError{}
	vErr.merge(inputs.Struct(input))
	if input.FullName != nil && *input.FullName == "" {
		vErr.add("full_name", "this field cannot be blank")
	}
	if err = vErr.orNil(); err != nil {
		return
	}

	var rec persistence.User
	if rec, err = s.loadRecord(ctx, principal.UserID); err != nil {
		return
	}
	if input.FullName != nil {
		rec.FullName = *input.FullName
	}
	if input.Company != nil {
		rec.Company = *input.Company
	}
	if input.Phone != nil {
		rec.Phone = *input.Phone
	}
	rec.UpdatedAt = s.now()

	if err = s.users.UpdateUser(ctx, rec); err != nil {
		err = mapRepoError(err)
		return
	}
	user, err = userFromRecord(rec)
	return
}

// ChangeRole assigns a new role. Admins may assign any role. Managers may not
// assign the admin role nor change an admin's role. Nobody changes their own role.
func (s *UserService) ChangeRole(ctx context.Context, principal Principal, userID, role string) (user User, err error) {
	if s == nil {
		err = fmt.Errorf("UserService is nil")
		return
	}
	if s.users == nil {
		err = fmt.Errorf("user repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "ChangeRole",
		"principal_id", principal.UserID,
		"user_id", userID,
		"role", role,
	)
	defer func() {
		logOutcome(ctx, logger, err, "role change failed", "role changed")
	}()

	if err = principal.require(access.ManageUsers); err != nil {
		return
	}
	if principal.Role != access.RoleAdmin && principal.Role != access.RoleManager {
		err = ErrUnauthorized
		return
	}

	target, parseErr := access.ParseRole(role)
	if parseErr != nil {
		err = &ValidationError{FieldErrors: map[string]string{"role": "must be one of admin, manager, usher or attendee"}}
		return
	}
	if principal.UserID == userID {
		err = fmt.Errorf("%w: cannot change own role", ErrUnauthorized)
		return
	}

	var rec persistence.User
	if rec, err = s.loadRecord(ctx, userID); err != nil {
		return
	}
	current, parseErr := access.ParseRole(rec.Role)
	if parseErr != nil {
		err = parseErr
		return
	}
	if principal.Role == access.RoleManager && (target == access.RoleAdmin || current == access.RoleAdmin) {
		err = fmt.Errorf("%w: managers cannot administer admins", ErrUnauthorized)
		return
	}

	rec.Role = target.String()
	rec.UpdatedAt = s.now()
	if err = s.users.UpdateUser(ctx, rec); err != nil {
		err = mapRepoError(err)
		return
	}
	user, err = userFromRecord(rec)
	return
}

// SetActive activates or deactivates an account. Users are never deleted.
func (s *UserService) SetActive(ctx context.Context, principal Principal, userID string, active bool) (user User, err error) {
	if s == nil {
		err = fmt.Errorf("UserService is nil")
		return
	}
	if s.users == nil {
		err = fmt.Errorf("user repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "SetActive",
		"principal_id", principal.UserID,
		"user_id", userID,
		"active", active,
	)
	defer func() {
		logOutcome(ctx, logger, err, "activation change failed", "activation changed")
	}()

	if err = principal.require(access.ManageUsers); err != nil {
		return
	}
	if principal.Role != access.RoleAdmin && principal.Role != access.RoleManager {
		err = ErrUnauthorized
		return
	}
	if principal.UserID == userID && !active {
		err = &ValidationError{FieldErrors: map[string]string{"active": "you cannot deactivate your own account"}}
		return
	}

	var rec persistence.User
	if rec, err = s.loadRecord(ctx, userID); err != nil {
		return
	}
	if principal.Role == access.RoleManager && rec.Role == access.RoleAdmin.String() {
		err = fmt.Errorf("%w: managers cannot administer admins", ErrUnauthorized)
		return
	}

	rec.IsActive = active
	rec.UpdatedAt = s.now()
	if err = s.users.UpdateUser(ctx, rec); err != nil {
		err = mapRepoError(err)
		return
	}
	user, err = userFromRecord(rec)
	return
}

func (s *UserService) load(ctx context.Context, userID string) (User, error) {
	rec, err := s.loadRecord(ctx, userID)
	if err != nil {
		return User{}, err
	}
	return userFromRecord(rec)
}

func (s *UserService) loadRecord(ctx context.Context, userID string) (persistence.User, error) {
	if s.users == nil {
		return persistence.User{}, fmt.Errorf("user repository not configured")
	}
	rec, err := s.users.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return persistence.User{}, ErrNotFound
		}
		return persistence.User{}, mapRepoError(err)
	}
	return rec, nil
}

func trimPtr(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	return &trimmed
}
