package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/example/eventflow/internal/persistence"
)

const sessionColumns = `id, user_id, token, fingerprint, expires_at, revoked_at, created_at, updated_at`

// SessionRepository implements persistence.SessionRepository using SQLite
type SessionRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
	now    func() time.Time
}

// NewSessionRepository creates a new SQLite session repository
func NewSessionRepository(pool *ConnectionPool) *SessionRepository {
	return &SessionRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// CreateSession stores a new session token for a user
func (r *SessionRepository) CreateSession(ctx context.Context, session persistence.Session) (persistence.Session, error) {
	if session.UserID == "" {
		return persistence.Session{}, persistence.ErrConstraintViolation
	}

	normalized, err := r.normalizeSession(session)
	if err != nil {
		return persistence.Session{}, err
	}

	now := r.now()
	if normalized.CreatedAt.IsZero() {
		normalized.CreatedAt = now
	}
	normalized.UpdatedAt = normalized.CreatedAt

	_, err = r.helper.Exec(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		normalized.ID,
		normalized.UserID,
		normalized.Token,
		normalized.Fingerprint,
		formatTime(normalized.ExpiresAt),
		nullTime(normalized.RevokedAt),
		formatTime(normalized.CreatedAt),
		formatTime(normalized.UpdatedAt),
	)
	if err != nil {
		return persistence.Session{}, r.mapSessionError(err)
	}

	return cloneSession(normalized), nil
}

// GetSession retrieves a session by its token value
func (r *SessionRepository) GetSession(ctx context.Context, token string) (persistence.Session, error) {
	normalizedToken := strings.TrimSpace(token)
	if normalizedToken == "" {
		return persistence.Session{}, persistence.ErrNotFound
	}
	return r.getOne(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE token = ?`, normalizedToken)
}

// UpdateSession updates mutable fields of an existing session. ID, UserID and
// CreatedAt are taken from the stored row.
func (r *SessionRepository) UpdateSession(ctx context.Context, session persistence.Session) (persistence.Session, error) {
	if session.ID == "" {
		return persistence.Session{}, persistence.ErrConstraintViolation
	}

	current, err := r.getOne(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, session.ID)
	if err != nil {
		return persistence.Session{}, err
	}

	session.UserID = current.UserID
	session.CreatedAt = current.CreatedAt

	normalized, err := r.normalizeSession(session)
	if err != nil {
		return persistence.Session{}, err
	}
	normalized.UpdatedAt = r.now()

	result, err := r.helper.Exec(ctx, `
		UPDATE sessions
		SET token = ?, fingerprint = ?, expires_at = ?, revoked_at = ?, updated_at = ?
		WHERE id = ?
	`,
		normalized.Token,
		normalized.Fingerprint,
		formatTime(normalized.ExpiresAt),
		nullTime(normalized.RevokedAt),
		formatTime(normalized.UpdatedAt),
		normalized.ID,
	)
	if err != nil {
		return persistence.Session{}, r.mapSessionError(err)
	}
	if err := requireRows(result); err != nil {
		return persistence.Session{}, err
	}

	return cloneSession(normalized), nil
}

// RevokeSession marks a session as revoked based on its token value. Revoking
// an already revoked session keeps the first revocation time.
func (r *SessionRepository) RevokeSession(ctx context.Context, token string, revokedAt time.Time) (persistence.Session, error) {
	normalizedToken := strings.TrimSpace(token)
	if normalizedToken == "" {
		return persistence.Session{}, persistence.ErrNotFound
	}

	var revoked persistence.Session
	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		session, err := scanSession(r.helper.QueryRowTx(ctx, tx,
			`SELECT `+sessionColumns+` FROM sessions WHERE token = ?`, normalizedToken))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return persistence.ErrNotFound
			}
			return r.mapper.MapError(err)
		}

		if session.RevokedAt != nil {
			revoked = session
			return nil
		}

		at := revokedAt.UTC()
		session.RevokedAt = &at
		session.UpdatedAt = at

		result, err := r.helper.ExecTx(ctx, tx,
			`UPDATE sessions SET revoked_at = ?, updated_at = ? WHERE id = ?`,
			formatTime(at), formatTime(at), session.ID,
		)
		if err != nil {
			return r.mapSessionError(err)
		}
		if err := requireRows(result); err != nil {
			return err
		}
		revoked = session
		return nil
	})
	if err != nil {
		return persistence.Session{}, err
	}
	return cloneSession(revoked), nil
}

// DeleteExpiredSessions removes sessions that expired on or before the provided timestamp
func (r *SessionRepository) DeleteExpiredSessions(ctx context.Context, reference time.Time) error {
	_, err := r.helper.Exec(ctx,
		`DELETE FROM sessions WHERE expires_at <= ?`,
		formatTime(reference),
	)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return nil
}

func (r *SessionRepository) getOne(ctx context.Context, query string, arg any) (persistence.Session, error) {
	session, err := scanSession(r.helper.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.Session{}, persistence.ErrNotFound
		}
		return persistence.Session{}, r.mapper.MapError(err)
	}
	return cloneSession(session), nil
}

func scanSession(row rowScanner) (persistence.Session, error) {
	var (
		session                                  persistence.Session
		expiresAtStr, createdAtStr, updatedAtStr string
		revokedAt                                sql.NullString
	)
	if err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.Token,
		&session.Fingerprint,
		&expiresAtStr,
		&revokedAt,
		&createdAtStr,
		&updatedAtStr,
	); err != nil {
		return persistence.Session{}, err
	}

	var err error
	if session.RevokedAt, err = parseTimePtr("revoked_at", revokedAt); err != nil {
		return persistence.Session{}, err
	}
	if session.ExpiresAt, err = parseTime("expires_at", expiresAtStr); err != nil {
		return persistence.Session{}, err
	}
	if session.CreatedAt, err = parseTime("created_at", createdAtStr); err != nil {
		return persistence.Session{}, err
	}
	if session.UpdatedAt, err = parseTime("updated_at", updatedAtStr); err != nil {
		return persistence.Session{}, err
	}
	return session, nil
}

// normalizeSession normalizes session data for consistent storage
func (r *SessionRepository) normalizeSession(session persistence.Session) (persistence.Session, error) {
	if session.ID == "" {
		return persistence.Session{}, persistence.ErrConstraintViolation
	}

	session.Token = strings.TrimSpace(session.Token)
	if session.Token == "" {
		return persistence.Session{}, persistence.ErrConstraintViolation
	}

	session.Fingerprint = strings.TrimSpace(session.Fingerprint)
	session.CreatedAt = session.CreatedAt.UTC()
	session.UpdatedAt = session.UpdatedAt.UTC()
	session.ExpiresAt = session.ExpiresAt.UTC()

	if session.RevokedAt != nil {
		revoked := session.RevokedAt.UTC()
		session.RevokedAt = &revoked
	}
	return session, nil
}

// cloneSession creates a deep copy of a session
func cloneSession(session persistence.Session) persistence.Session {
	clone := session
	if session.RevokedAt != nil {
		revoked := session.RevokedAt.UTC()
		clone.RevokedAt = &revoked
	}
	return clone
}

// mapSessionError maps SQLite errors to appropriate persistence errors for session operations
func (r *SessionRepository) mapSessionError(err error) error {
	if err == nil {
		return nil
	}

	errStr := err.Error()
	switch {
	case containsAny(errStr, []string{"UNIQUE constraint failed"}):
		return persistence.ErrDuplicate
	case containsAny(errStr, []string{"FOREIGN KEY constraint failed"}):
		return persistence.ErrForeignKeyViolation
	}
	return r.mapper.MapError(err)
}
