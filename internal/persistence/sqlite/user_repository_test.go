package sqlite

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/example/eventflow/internal/persistence"
	"github.com/example/eventflow/internal/persistence/sqlite/migration"
)

func setupUserRepositoryTest(t *testing.T) *UserRepository {
	t.Helper()

	pool, err := NewConnectionPool(migration.TempFileTestSQLiteConfig(filepath.Join(t.TempDir(), "users.db")))
	if err != nil {
		t.Fatalf("NewConnectionPool failed: %v", err)
	}
	t.Cleanup(func() { _ = pool.Close() })

	applied, err := Migrate(context.Background(), pool, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	if applied == 0 {
		t.Fatalf("expected migrations to be applied to a fresh database")
	}
	return NewUserRepository(pool)
}

func testUser(id, email string) persistence.User {
	return persistence.User{
		ID:           id,
		Email:        email,
		FullName:     "Test User",
		PasswordHash: "hashed_password",
		Role:         "attendee",
		IsActive:     true,
	}
}

func TestUserRepository_CreateUser(t *testing.T) {
	t.Parallel()

	repo := setupUserRepositoryTest(t)
	ctx := context.Background()

	user := testUser("user1", " Test@Example.com")
	user.FullName = "  Test User  "
	if err := repo.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	retrieved, err := repo.GetUser(ctx, "user1")
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if retrieved.Email != "test@example.com" {
		t.Errorf("Expected email 'test@example.com', got '%s'", retrieved.Email)
	}
	if retrieved.FullName != "Test User" {
		t.Errorf("Expected full name 'Test User', got '%s'", retrieved.FullName)
	}
	if retrieved.CreatedAt.IsZero() || !retrieved.UpdatedAt.Equal(retrieved.CreatedAt) {
		t.Errorf("Expected timestamps to be defaulted, got %v / %v", retrieved.CreatedAt, retrieved.UpdatedAt)
	}
}

func TestUserRepository_CreateUser_Duplicate(t *testing.T) {
	t.Parallel()

	repo := setupUserRepositoryTest(t)
	ctx := context.Background()

	if err := repo.CreateUser(ctx, testUser("user1", "test@example.com")); err != nil {
		t.Fatalf("First CreateUser failed: %v", err)
	}
	if err := repo.CreateUser(ctx, testUser("user1", "other@example.com")); !errors.Is(err, persistence.ErrDuplicate) {
		t.Fatalf("Expected ErrDuplicate for a reused id, got %v", err)
	}
	if err := repo.CreateUser(ctx, testUser("user2", "TEST@example.com")); !errors.Is(err, persistence.ErrDuplicate) {
		t.Fatalf("Expected ErrDuplicate for a reused email, got %v", err)
	}
}

func TestUserRepository_CreateUser_RequiredFields(t *testing.T) {
	t.Parallel()

	repo := setupUserRepositoryTest(t)
	ctx := context.Background()

	cases := map[string]func(*persistence.User){
		"missing id":   func(u *persistence.User) { u.ID = "" },
		"missing hash": func(u *persistence.User) { u.PasswordHash = "" },
		"missing role": func(u *persistence.User) { u.Role = "" },
		"unknown role": func(u *persistence.User) { u.Role = "superuser" },
	}
	for name, mutate := range cases {
		user := testUser("user-"+name, name+"@example.com")
		mutate(&user)
		if err := repo.CreateUser(ctx, user); !errors.Is(err, persistence.ErrConstraintViolation) {
			t.Errorf("%s: expected ErrConstraintViolation, got %v", name, err)
		}
	}
}

func TestUserRepository_GetUserByEmail(t *testing.T) {
	t.Parallel()

	repo := setupUserRepositoryTest(t)
	ctx := context.Background()

	if err := repo.CreateUser(ctx, testUser("user1", "test@example.com")); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	retrieved, err := repo.GetUserByEmail(ctx, "  TEST@example.COM ")
	if err != nil {
		t.Fatalf("GetUserByEmail failed: %v", err)
	}
	if retrieved.ID != "user1" {
		t.Errorf("Expected ID 'user1', got '%s'", retrieved.ID)
	}

	if _, err := repo.GetUserByEmail(ctx, "nobody@example.com"); !errors.Is(err, persistence.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if _, err := repo.GetUser(ctx, ""); !errors.Is(err, persistence.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for empty id, got %v", err)
	}
}

func TestUserRepository_UpdateUser(t *testing.T) {
	t.Parallel()

	repo := setupUserRepositoryTest(t)
	ctx := context.Background()

	user := testUser("user1", "test@example.com")
	user.ConfirmationToken = "confirm-me"
	if err := repo.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	confirmed := time.Date(2024, time.March, 1, 9, 30, 15, 0, time.UTC)
	user.EmailConfirmedAt = &confirmed
	user.ConfirmationToken = ""
	user.Role = "usher"
	if err := repo.UpdateUser(ctx, user); err != nil {
		t.Fatalf("UpdateUser failed: %v", err)
	}

	retrieved, err := repo.GetUser(ctx, "user1")
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if retrieved.Role != "usher" || retrieved.EmailConfirmedAt == nil || !retrieved.EmailConfirmedAt.Equal(confirmed) {
		t.Errorf("Unexpected updated user %#v", retrieved)
	}
	if _, err := repo.GetUserByConfirmationToken(ctx, "confirm-me"); !errors.Is(err, persistence.ErrNotFound) {
		t.Errorf("Expected the cleared token to stop matching, got %v", err)
	}

	if err := repo.UpdateUser(ctx, testUser("missing", "missing@example.com")); !errors.Is(err, persistence.ErrNotFound) {
		t.Errorf("Expected ErrNotFound updating a missing user, got %v", err)
	}
	if err := repo.TouchLastLogin(ctx, "missing", confirmed); !errors.Is(err, persistence.ErrNotFound) {
		t.Errorf("Expected ErrNotFound touching a missing user, got %v", err)
	}
}

func TestTimeColumnsUseSecondPrecision(t *testing.T) {
	t.Parallel()

	local := time.Date(2024, time.May, 5, 12, 0, 0, 999_000_000, time.FixedZone("CEST", 2*60*60))
	formatted := formatTime(local)
	if formatted != "2024-05-05T10:00:00Z" {
		t.Fatalf("formatTime = %q", formatted)
	}

	parsed, err := parseTime("created_at", formatted)
	if err != nil {
		t.Fatalf("parseTime failed: %v", err)
	}
	if !parsed.Equal(local.Truncate(time.Second)) {
		t.Fatalf("parseTime = %v", parsed)
	}
	if _, err := parseTime("created_at", "yesterday"); err == nil {
		t.Fatalf("expected an error for a malformed timestamp")
	}
	if got := nullTime(nil); got.Valid {
		t.Fatalf("expected a nil time to be stored as NULL")
	}
}
