package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/eventflow/internal/persistence"
)

const userColumns = `id, email, full_name, password_hash, role, company, phone, is_active,
	email_confirmed_at, confirmation_token, last_login_at, created_at, updated_at`

// UserRepository implements persistence.UserRepository using SQLite
type UserRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewUserRepository creates a new SQLite user repository
func NewUserRepository(pool *ConnectionPool) *UserRepository {
	return &UserRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

// CreateUser inserts a new user. CreatedAt and UpdatedAt default to now when zero.
func (r *UserRepository) CreateUser(ctx context.Context, user persistence.User) error {
	if user.ID == "" || user.PasswordHash == "" || user.Role == "" {
		return persistence.ErrConstraintViolation
	}

	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = user.CreatedAt
	}

	_, err := r.helper.Exec(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		user.ID,
		normalizeEmail(user.Email),
		strings.TrimSpace(user.FullName),
		user.PasswordHash,
		user.Role,
		user.Company,
		user.Phone,
		user.IsActive,
		nullTime(user.EmailConfirmedAt),
		nullString(user.ConfirmationToken),
		nullTime(user.LastLoginAt),
		formatTime(user.CreatedAt),
		formatTime(user.UpdatedAt),
	)
	if err != nil {
		return r.mapUserError(err)
	}
	return nil
}

// UpdateUser replaces the mutable columns of an existing user.
func (r *UserRepository) UpdateUser(ctx context.Context, user persistence.User) error {
	if user.ID == "" || user.PasswordHash == "" || user.Role == "" {
		return persistence.ErrConstraintViolation
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = time.Now().UTC()
	}

	result, err := r.helper.Exec(ctx, `
		UPDATE users
		SET email = ?, full_name = ?, password_hash = ?, role = ?, company = ?, phone = ?,
			is_active = ?, email_confirmed_at = ?, confirmation_token = ?, last_login_at = ?, updated_at = ?
		WHERE id = ?
	`,
		normalizeEmail(user.Email),
		strings.TrimSpace(user.FullName),
		user.PasswordHash,
		user.Role,
		user.Company,
		user.Phone,
		user.IsActive,
		nullTime(user.EmailConfirmedAt),
		nullString(user.ConfirmationToken),
		nullTime(user.LastLoginAt),
		formatTime(user.UpdatedAt),
		user.ID,
	)
	if err != nil {
		return r.mapUserError(err)
	}
	return requireRows(result)
}

// GetUser retrieves a user by ID from the database
func (r *UserRepository) GetUser(ctx context.Context, id string) (persistence.User, error) {
	if id == "" {
		return persistence.User{}, persistence.ErrNotFound
	}
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

// GetUserByEmail retrieves a user by email address, ignoring case.
func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (persistence.User, error) {
	normalized := normalizeEmail(email)
	if normalized == "" {
		return persistence.User{}, persistence.ErrNotFound
	}
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, normalized)
}

// GetUserByConfirmationToken retrieves the user holding an outstanding confirmation token.
func (r *UserRepository) GetUserByConfirmationToken(ctx context.Context, token string) (persistence.User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return persistence.User{}, persistence.ErrNotFound
	}
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE confirmation_token = ?`, token)
}

// ListUsers returns all users ordered by creation timestamp then ID
func (r *UserRepository) ListUsers(ctx context.Context) ([]persistence.User, error) {
	rows, err := r.helper.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var users []persistence.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return users, nil
}

// TouchLastLogin records a successful sign-in.
func (r *UserRepository) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	result, err := r.helper.Exec(ctx,
		`UPDATE users SET last_login_at = ?, updated_at = ? WHERE id = ?`,
		formatTime(at), formatTime(at), id,
	)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return requireRows(result)
}

func (r *UserRepository) getOne(ctx context.Context, query string, arg any) (persistence.User, error) {
	user, err := scanUser(r.helper.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.User{}, persistence.ErrNotFound
		}
		return persistence.User{}, r.mapper.MapError(err)
	}
	return user, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (persistence.User, error) {
	var (
		user                       persistence.User
		confirmedAt, lastLoginAt   sql.NullString
		token                      sql.NullString
		createdAtStr, updatedAtStr string
	)
	if err := row.Scan(
		&user.ID,
		&user.Email,
		&user.FullName,
		&user.PasswordHash,
		&user.Role,
		&user.Company,
		&user.Phone,
		&user.IsActive,
		&confirmedAt,
		&token,
		&lastLoginAt,
		&createdAtStr,
		&updatedAtStr,
	); err != nil {
		return persistence.User{}, err
	}

	user.ConfirmationToken = token.String

	var err error
	if user.EmailConfirmedAt, err = parseTimePtr("email_confirmed_at", confirmedAt); err != nil {
		return persistence.User{}, err
	}
	if user.LastLoginAt, err = parseTimePtr("last_login_at", lastLoginAt); err != nil {
		return persistence.User{}, err
	}
	if user.CreatedAt, err = parseTime("created_at", createdAtStr); err != nil {
		return persistence.User{}, err
	}
	if user.UpdatedAt, err = parseTime("updated_at", updatedAtStr); err != nil {
		return persistence.User{}, err
	}
	return user, nil
}

// mapUserError maps SQLite errors to appropriate persistence errors for user operations
func (r *UserRepository) mapUserError(err error) error {
	if err == nil {
		return nil
	}

	errStr := err.Error()
	switch {
	case containsAny(errStr, []string{"UNIQUE constraint failed"}):
		return persistence.ErrDuplicate
	case containsAny(errStr, []string{"CHECK constraint failed"}):
		return persistence.ErrConstraintViolation
	}
	return r.mapper.MapError(err)
}

func requireRows(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

// normalizeEmail normalizes email addresses for consistent storage and lookup
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
