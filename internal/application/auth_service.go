package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/eventflow/internal/access"
	"github.com/example/eventflow/internal/persistence"
)

// PermissionResolver computes the effective permission set of a user.
type PermissionResolver interface {
	ResolveEffectivePermissions(ctx context.Context, userID string) (access.Set, error)
}

// AuthService coordinates sign-up, sign-in and session handling.
type AuthService struct {
	users          persistence.UserRepository
	sessions       persistence.SessionRepository
	permissions    PermissionResolver
	hashPassword   PasswordHasher
	verifyPassword PasswordVerifier
	tokenGenerator func() string
	now            func() time.Time
	sessionTTL     time.Duration
	logger         *slog.Logger
}

// NewAuthService constructs an AuthService with the provided dependencies.
func NewAuthService(users persistence.UserRepository, sessions persistence.SessionRepository, permissions PermissionResolver, hash PasswordHasher, verify PasswordVerifier, tokenGenerator func() string, now func() time.Time, sessionTTL time.Duration) *AuthService {
	return NewAuthServiceWithLogger(users, sessions, permissions, hash, verify, tokenGenerator, now, sessionTTL, nil)
}

// NewAuthServiceWithLogger constructs an AuthService with a specified logger.
func NewAuthServiceWithLogger(users persistence.UserRepository, sessions persistence.SessionRepository, permissions PermissionResolver, hash PasswordHasher, verify PasswordVerifier, tokenGenerator func() string, now func() time.Time, sessionTTL time.Duration, logger *slog.Logger) *AuthService {
	if hash == nil {
		hash = HashPassword
	}
	if verify == nil {
		verify = VerifyPassword
	}
	if tokenGenerator == nil {
		tokenGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	if sessionTTL <= 0 {
		sessionTTL = 24 * time.Hour
	}
	return &AuthService{
		users:          users,
		sessions:       sessions,
		permissions:    permissions,
		hashPassword:   hash,
		verifyPassword: verify,
		tokenGenerator: tokenGenerator,
		now:            now,
		sessionTTL:     sessionTTL,
		logger:         defaultLogger(logger),
	}
}

func (s *AuthService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AuthService", operation, attrs...)
}

// SignIn validates credentials and issues a new session token. Identity
// failures are returned as *AuthError carrying a stable code.
func (s *AuthService) SignIn(ctx context.Context, params SignInParams) (result SignInResult, err error) {
	if s == nil {
		err = fmt.Errorf("AuthService is nil")
		return
	}
	if s.users == nil || s.sessions == nil {
		err = fmt.Errorf("auth repositories not configured")
		return
	}

	params.Email = normalizeEmail(params.Email)
	logger := s.loggerWith(ctx, "SignIn", "email", params.Email)
	defer func() {
		err = authError(err)
		if err != nil {
			logger.ErrorContext(ctx, "sign-in failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With(
			"user_id", result.User.ID,
			"session_id", result.Session.ID,
			"role", result.User.Role.String(),
		).InfoContext(ctx, "sign-in succeeded")
	}()

	if vErr := inputs.Struct(params); vErr != nil {
		err = vErr
		return
	}

	var rec persistence.User
	rec, err = s.users.GetUserByEmail(ctx, params.Email)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			err = ErrInvalidCredentials
			return
		}
		err = upstreamError("users", err)
		return
	}

	if verifyErr := s.verifyPassword(rec.PasswordHash, params.Password); verifyErr != nil {
		err = ErrInvalidCredentials
		return
	}
	if !rec.IsActive {
		err = ErrAccountDisabled
		return
	}
	if rec.EmailConfirmedAt == nil {
		err = ErrEmailNotConfirmed
		return
	}

	var user User
	if user, err = userFromRecord(rec); err != nil {
		return
	}

	now := s.now()
	session := Session{
		ID:          s.tokenGenerator(),
		UserID:      user.ID,
		Token:       s.tokenGenerator(),
		Fingerprint: strings.TrimSpace(params.Fingerprint),
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   now.Add(s.sessionTTL),
	}
	if session.Token == "" {
		session.Token = session.ID
	}

	if err = s.sessions.DeleteExpiredSessions(ctx, now); err != nil {
		err = mapRepoError(err)
		return
	}

	var persisted persistence.Session
	persisted, err = s.sessions.CreateSession(ctx, sessionToRecord(session))
	if err != nil {
		err = mapRepoError(err)
		return
	}

	if err = s.users.TouchLastLogin(ctx, user.ID, now); err != nil {
		err = mapRepoError(err)
		return
	}
	user.LastLoginAt = &now

	var perms access.Set
	if s.permissions != nil {
		if perms, err = s.permissions.ResolveEffectivePermissions(ctx, user.ID); err != nil {
			return
		}
	}

	result = SignInResult{User: user, Session: sessionFromRecord(persisted), Permissions: perms}
	return
}

// SignUp creates an attendee account. The account cannot sign in until the
// returned confirmation token is passed to ConfirmEmail.
func (s *AuthService) SignUp(ctx context.Context, params SignUpParams) (result SignUpResult, err error) {
	if s == nil {
		err = fmt.Errorf("AuthService is nil")
		return
	}
	if s.users == nil {
		err = fmt.Errorf("user repository not configured")
		return
	}

	params.Email = normalizeEmail(params.Email)
	params.FullName = strings.TrimSpace(params.FullName)
	params.Company = strings.TrimSpace(params.Company)
	params.Phone = strings.TrimSpace(params.Phone)

	logger := s.loggerWith(ctx, "SignUp", "email", params.Email)
	defer func() {
		err = authError(err)
		if err != nil {
			logger.ErrorContext(ctx, "sign-up failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("user_id", result.User.ID).InfoContext(ctx, "account created")
	}()

	if vErr := inputs.Struct(params); vErr != nil {
		err = vErr
		return
	}

	var hash string
	if hash, err = s.hashPassword(params.Password); err != nil {
		err = fmt.Errorf("hash password: %w", err)
		return
	}

	now := s.now()
	rec := persistence.User{
		ID:                s.tokenGenerator(),
		Email:             params.Email,
		FullName:          params.FullName,
		PasswordHash:      hash,
		Role:              access.RoleAttendee.String(),
		Company:           params.Company,
		Phone:             params.Phone,
		IsActive:          true,
		ConfirmationToken: s.tokenGenerator(),
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err = s.users.CreateUser(ctx, rec); err != nil {
		err = mapRepoError(err)
		return
	}

	var user User
	if user, err = userFromRecord(rec); err != nil {
		return
	}
	result = SignUpResult{User: user, ConfirmationToken: rec.ConfirmationToken}
	return
}

// ConfirmEmail marks the account holding token as confirmed. Tokens are
// single use.
func (s *AuthService) ConfirmEmail(ctx context.Context, token string) (user User, err error) {
	if s == nil {
		err = fmt.Errorf("AuthService is nil")
		return
	}
	if s.users == nil {
		err = fmt.Errorf("user repository not configured")
		return
	}

	token = strings.TrimSpace(token)
	logger := s.loggerWith(ctx, "ConfirmEmail", "token_provided", token != "")
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "email confirmation failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("user_id", user.ID).InfoContext(ctx, "email confirmed")
	}()

	if token == "" {
		err = &ValidationError{FieldErrors: map[string]string{"token": "this field is required"}}
		return
	}

	var rec persistence.User
	rec, err = s.users.GetUserByConfirmationToken(ctx, token)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			err = &ValidationError{FieldErrors: map[string]string{"token": "the token is invalid or was already used"}}
			return
		}
		err = mapRepoError(err)
		return
	}

	now := s.now()
	rec.EmailConfirmedAt = &now
	rec.ConfirmationToken = ""
	rec.UpdatedAt = now
	if err = s.users.UpdateUser(ctx, rec); err != nil {
		err = mapRepoError(err)
		return
	}

	user, err = userFromRecord(rec)
	return
}

// RefreshSession rotates an existing session token, extending its validity window.
func (s *AuthService) RefreshSession(ctx context.Context, params RefreshSessionParams) (result RefreshSessionResult, err error) {
	if s == nil {
		err = fmt.Errorf("AuthService is nil")
		return
	}
	if s.sessions == nil {
		err = fmt.Errorf("session repository not configured")
		return
	}

	token := strings.TrimSpace(params.Token)
	logger := s.loggerWith(ctx, "RefreshSession",
		"token_provided", token != "",
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "session refresh failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With(
			"session_id", result.Session.ID,
			"user_id", result.Session.UserID,
		).InfoContext(ctx, "session refreshed")
	}()

	if token == "" {
		err = ErrInvalidCredentials
		return
	}

	var rec persistence.Session
	rec, err = s.sessions.GetSession(ctx, token)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			err = ErrInvalidCredentials
			return
		}
		err = mapRepoError(err)
		return
	}

	now := s.now()
	if err = checkSessionLive(rec, now); err != nil {
		return
	}

	if newToken := s.tokenGenerator(); newToken != "" {
		rec.Token = newToken
	}
	rec.UpdatedAt = now
	rec.ExpiresAt = now.Add(s.sessionTTL)
	if fp := strings.TrimSpace(params.Fingerprint); fp != "" {
		rec.Fingerprint = fp
	}

	rec, err = s.sessions.UpdateSession(ctx, rec)
	if err != nil {
		err = mapRepoError(err)
		return
	}

	result = RefreshSessionResult{Session: sessionFromRecord(rec)}
	return
}

// SignOut invalidates an existing session token and prunes expired sessions.
func (s *AuthService) SignOut(ctx context.Context, token string) error {
	if s == nil {
		return fmt.Errorf("AuthService is nil")
	}
	if s.sessions == nil {
		return fmt.Errorf("session repository not configured")
	}

	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return ErrInvalidCredentials
	}

	logger := s.loggerWith(ctx, "SignOut", "token_provided", trimmed != "")

	if _, err := s.sessions.RevokeSession(ctx, trimmed, s.now()); err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			logger.ErrorContext(ctx, "failed to revoke session", "error", ErrInvalidCredentials, "error_kind", ErrorKind(ErrInvalidCredentials))
			return ErrInvalidCredentials
		}
		err = mapRepoError(err)
		logger.ErrorContext(ctx, "failed to revoke session", "error", err, "error_kind", ErrorKind(err))
		return err
	}

	if err := s.sessions.DeleteExpiredSessions(ctx, s.now()); err != nil {
		err = mapRepoError(err)
		logger.ErrorContext(ctx, "failed to prune expired sessions", "error", err, "error_kind", ErrorKind(err))
		return err
	}
	logger.InfoContext(ctx, "session revoked")
	return nil
}

// ValidateSession verifies that the provided token corresponds to an active
// session and returns its principal with the effective permission set.
func (s *AuthService) ValidateSession(ctx context.Context, token string) (principal Principal, err error) {
	if s == nil {
		err = fmt.Errorf("AuthService is nil")
		return
	}
	if s.sessions == nil || s.users == nil {
		err = fmt.Errorf("auth repositories not configured")
		return
	}

	trimmed := strings.TrimSpace(token)
	logger := s.loggerWith(ctx, "ValidateSession", "token_provided", trimmed != "")
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "session validation failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("principal_id", principal.UserID, "role", principal.Role.String()).DebugContext(ctx, "session validated")
	}()

	if trimmed == "" {
		err = ErrUnauthorized
		return
	}

	var session persistence.Session
	session, err = s.sessions.GetSession(ctx, trimmed)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			err = ErrUnauthorized
			return
		}
		err = mapRepoError(err)
		return
	}

	if err = checkSessionLive(session, s.now()); err != nil {
		return
	}

	var rec persistence.User
	rec, err = s.users.GetUser(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			err = ErrUnauthorized
			return
		}
		err = mapRepoError(err)
		return
	}
	if !rec.IsActive {
		err = ErrAccountDisabled
		return
	}

	var user User
	if user, err = userFromRecord(rec); err != nil {
		return
	}

	principal = Principal{UserID: user.ID, Role: user.Role, Permissions: access.NewSet()}
	if s.permissions != nil {
		if principal.Permissions, err = s.permissions.ResolveEffectivePermissions(ctx, user.ID); err != nil {
			principal = Principal{}
			return
		}
	}
	return
}

func checkSessionLive(session persistence.Session, now time.Time) error {
	if session.RevokedAt != nil && !session.RevokedAt.IsZero() {
		return ErrSessionRevoked
	}
	if !session.ExpiresAt.IsZero() && !session.ExpiresAt.After(now) {
		return ErrSessionExpired
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
