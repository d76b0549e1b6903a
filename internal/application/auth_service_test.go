package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/eventflow/internal/access"
)

func newTestAuthService(store *memoryStore, now time.Time) *AuthService {
	perms := NewPermissionService(store, store, access.PolicyUnion, fixedClock(now))
	return NewAuthService(store, store, perms, plainHasher, plainVerifier, sequence("tok"), fixedClock(now), time.Hour)
}

func TestAuthService_SignIn(t *testing.T) {
	t.Parallel()

	t.Run("issues sessions for valid credentials", func(t *testing.T) {
		t.Parallel()

		store := newMemoryStore()
		seedUser(store, "u1", "user@example.com", access.RoleManager)
		svc := newTestAuthService(store, testNow)

		result, err := svc.SignIn(context.Background(), SignInParams{Email: " User@Example.com ", Password: "secret123", Fingerprint: " device "})
		if err != nil {
			t.Fatalf("SignIn failed: %v", err)
		}
		if result.Session.Token != "tok-2" {
			t.Fatalf("expected issued token tok-2, got %s", result.Session.Token)
		}
		if result.Session.Fingerprint != "device" {
			t.Fatalf("expected fingerprint to be trimmed, got %q", result.Session.Fingerprint)
		}
		if !result.Session.ExpiresAt.Equal(testNow.Add(time.Hour)) {
			t.Fatalf("unexpected expiry %v", result.Session.ExpiresAt)
		}
		if result.User.Role != access.RoleManager {
			t.Fatalf("expected manager role, got %v", result.User.Role)
		}
		if !result.Permissions.Has(access.PublishEvents) {
			t.Fatalf("expected manager permissions, got %v", result.Permissions.Sorted())
		}
		if len(store.deleteCalls) != 1 || !store.deleteCalls[0].Equal(testNow) {
			t.Fatalf("expected expired sessions to be pruned at now, got %#v", store.deleteCalls)
		}
		if store.users["u1"].LastLoginAt == nil {
			t.Fatalf("expected last login to be recorded")
		}
	})

	cases := []struct {
		name     string
		mutate   func(*memoryStore)
		password string
		sentinel error
		code     string
	}{
		{
			name:     "wrong password",
			password: "nope",
			sentinel: ErrInvalidCredentials,
			code:     CodeInvalidCredentials,
		},
		{
			name: "unknown e-mail",
			mutate: func(m *memoryStore) {
				delete(m.users, "u1")
			},
			password: "secret123",
			sentinel: ErrInvalidCredentials,
			code:     CodeInvalidCredentials,
		},
		{
			name: "unconfirmed e-mail",
			mutate: func(m *memoryStore) {
				u := m.users["u1"]
				u.EmailConfirmedAt = nil
				m.users["u1"] = u
			},
			password: "secret123",
			sentinel: ErrEmailNotConfirmed,
			code:     CodeEmailNotConfirmed,
		},
		{
			name: "disabled account",
			mutate: func(m *memoryStore) {
				u := m.users["u1"]
				u.IsActive = false
				m.users["u1"] = u
			},
			password: "secret123",
			sentinel: ErrAccountDisabled,
			code:     CodeAccountDisabled,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run("rejects "+tc.name, func(t *testing.T) {
			t.Parallel()

			store := newMemoryStore()
			seedUser(store, "u1", "user@example.com", access.RoleAttendee)
			if tc.mutate != nil {
				tc.mutate(store)
			}
			svc := newTestAuthService(store, testNow)

			_, err := svc.SignIn(context.Background(), SignInParams{Email: "user@example.com", Password: tc.password})
			if !errors.Is(err, tc.sentinel) {
				t.Fatalf("expected %v, got %v", tc.sentinel, err)
			}
			var authErr *AuthError
			if !errors.As(err, &authErr) || authErr.Code != tc.code {
				t.Fatalf("expected auth error with code %s, got %#v", tc.code, err)
			}
			if len(store.sessions) != 0 {
				t.Fatalf("expected no session to be created")
			}
		})
	}

	t.Run("reports malformed input as validation error", func(t *testing.T) {
		t.Parallel()

		svc := newTestAuthService(newMemoryStore(), testNow)
		_, err := svc.SignIn(context.Background(), SignInParams{Email: "not-an-email"})

		var authErr *AuthError
		if !errors.As(err, &authErr) || authErr.Code != CodeValidation {
			t.Fatalf("expected validation auth error, got %v", err)
		}
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected wrapped ValidationError, got %v", err)
		}
		if _, ok := vErr.FieldErrors["email"]; !ok {
			t.Fatalf("expected email field error, got %#v", vErr.FieldErrors)
		}
		if _, ok := vErr.FieldErrors["password"]; !ok {
			t.Fatalf("expected password field error, got %#v", vErr.FieldErrors)
		}
	})

	t.Run("propagates session store failures", func(t *testing.T) {
		t.Parallel()

		expected := errors.New("boom")
		store := newMemoryStore().failing("CreateSession", expected)
		seedUser(store, "u1", "user@example.com", access.RoleAttendee)
		svc := newTestAuthService(store, testNow)

		_, err := svc.SignIn(context.Background(), SignInParams{Email: "user@example.com", Password: "secret123"})
		if !errors.Is(err, expected) {
			t.Fatalf("expected error %v, got %v", expected, err)
		}
	})

	t.Run("fails when the permission table is unreachable", func(t *testing.T) {
		t.Parallel()

		store := newMemoryStore().failing("ListRolePermissions", errors.New("db down"))
		seedUser(store, "u1", "user@example.com", access.RoleAttendee)
		svc := newTestAuthService(store, testNow)

		_, err := svc.SignIn(context.Background(), SignInParams{Email: "user@example.com", Password: "secret123"})
		if !errors.Is(err, ErrUpstreamUnavailable) {
			t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
		}
	})
}

func TestAuthService_SignUpAndConfirm(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	svc := newTestAuthService(store, testNow)
	ctx := context.Background()

	result, err := svc.SignUp(ctx, SignUpParams{Email: "New@Example.com", Password: "longenough", FullName: " Nia New "})
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	if result.User.Role != access.RoleAttendee {
		t.Fatalf("expected attendee role, got %v", result.User.Role)
	}
	if result.User.Email != "new@example.com" || result.User.FullName != "Nia New" {
		t.Fatalf("expected normalized account, got %#v", result.User)
	}
	if result.ConfirmationToken == "" {
		t.Fatalf("expected confirmation token")
	}

	if _, err := svc.SignIn(ctx, SignInParams{Email: "new@example.com", Password: "longenough"}); !errors.Is(err, ErrEmailNotConfirmed) {
		t.Fatalf("expected ErrEmailNotConfirmed before confirmation, got %v", err)
	}

	if _, err := svc.SignUp(ctx, SignUpParams{Email: "new@example.com", Password: "longenough", FullName: "Dup"}); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists for duplicate e-mail, got %v", err)
	}

	confirmed, err := svc.ConfirmEmail(ctx, result.ConfirmationToken)
	if err != nil {
		t.Fatalf("ConfirmEmail failed: %v", err)
	}
	if confirmed.EmailConfirmedAt == nil {
		t.Fatalf("expected confirmation timestamp")
	}

	var vErr *ValidationError
	if _, err := svc.ConfirmEmail(ctx, result.ConfirmationToken); !errors.As(err, &vErr) {
		t.Fatalf("expected used token to be rejected, got %v", err)
	}

	if _, err := svc.SignIn(ctx, SignInParams{Email: "new@example.com", Password: "longenough"}); err != nil {
		t.Fatalf("expected sign-in after confirmation, got %v", err)
	}
}

func TestAuthService_SignUpValidation(t *testing.T) {
	t.Parallel()

	svc := newTestAuthService(newMemoryStore(), testNow)
	_, err := svc.SignUp(context.Background(), SignUpParams{Email: "x@example.com", Password: "short", FullName: "   "})

	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	for _, field := range []string{"password", "full_name"} {
		if _, ok := vErr.FieldErrors[field]; !ok {
			t.Fatalf("expected %s error, got %#v", field, vErr.FieldErrors)
		}
	}
}

func TestAuthService_ValidateSession(t *testing.T) {
	t.Parallel()

	t.Run("returns principal with resolved permissions", func(t *testing.T) {
		t.Parallel()

		store := newMemoryStore()
		seedUser(store, "u1", "usher@example.com", access.RoleUsher)
		svc := newTestAuthService(store, testNow)

		signed, err := svc.SignIn(context.Background(), SignInParams{Email: "usher@example.com", Password: "secret123"})
		if err != nil {
			t.Fatalf("SignIn failed: %v", err)
		}
		principal, err := svc.ValidateSession(context.Background(), signed.Session.Token)
		if err != nil {
			t.Fatalf("ValidateSession failed: %v", err)
		}
		if principal.UserID != "u1" || principal.Role != access.RoleUsher {
			t.Fatalf("unexpected principal %#v", principal)
		}
		if !principal.Can(access.CheckInAttendees) || principal.Can(access.ManageUsers) {
			t.Fatalf("unexpected permissions %v", principal.Permissions.Sorted())
		}
	})

	t.Run("rejects expired and revoked sessions", func(t *testing.T) {
		t.Parallel()

		store := newMemoryStore()
		seedUser(store, "u1", "user@example.com", access.RoleAttendee)
		svc := newTestAuthService(store, testNow)

		signed, err := svc.SignIn(context.Background(), SignInParams{Email: "user@example.com", Password: "secret123"})
		if err != nil {
			t.Fatalf("SignIn failed: %v", err)
		}

		later := newTestAuthService(store, testNow.Add(2*time.Hour))
		if _, err := later.ValidateSession(context.Background(), signed.Session.Token); !errors.Is(err, ErrSessionExpired) {
			t.Fatalf("expected ErrSessionExpired, got %v", err)
		}

		if err := svc.SignOut(context.Background(), signed.Session.Token); err != nil {
			t.Fatalf("SignOut failed: %v", err)
		}
		if _, err := svc.ValidateSession(context.Background(), signed.Session.Token); !errors.Is(err, ErrSessionRevoked) {
			t.Fatalf("expected ErrSessionRevoked, got %v", err)
		}
	})

	t.Run("rejects unknown tokens", func(t *testing.T) {
		t.Parallel()

		svc := newTestAuthService(newMemoryStore(), testNow)
		if _, err := svc.ValidateSession(context.Background(), "missing"); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
		if _, err := svc.ValidateSession(context.Background(), " "); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized for blank token, got %v", err)
		}
	})
}

func TestAuthService_RefreshSession(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	seedUser(store, "u1", "user@example.com", access.RoleAttendee)
	svc := newTestAuthService(store, testNow)

	signed, err := svc.SignIn(context.Background(), SignInParams{Email: "user@example.com", Password: "secret123"})
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}

	later := testNow.Add(30 * time.Minute)
	refresher := NewAuthService(store, store, nil, plainHasher, plainVerifier, func() string { return "rotated" }, fixedClock(later), time.Hour)
	result, err := refresher.RefreshSession(context.Background(), RefreshSessionParams{Token: signed.Session.Token})
	if err != nil {
		t.Fatalf("RefreshSession failed: %v", err)
	}
	if result.Session.Token != "rotated" {
		t.Fatalf("expected rotated token, got %s", result.Session.Token)
	}
	if !result.Session.ExpiresAt.Equal(later.Add(time.Hour)) {
		t.Fatalf("expected extended expiry, got %v", result.Session.ExpiresAt)
	}
	if _, err := refresher.RefreshSession(context.Background(), RefreshSessionParams{Token: signed.Session.Token}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected old token to be unusable, got %v", err)
	}
}

func TestAuthService_SignOutUnknownToken(t *testing.T) {
	t.Parallel()

	svc := newTestAuthService(newMemoryStore(), testNow)
	if err := svc.SignOut(context.Background(), "missing"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}
