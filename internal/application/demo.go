package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/eventflow/internal/access"
	"github.com/example/eventflow/internal/persistence"
)

// DemoAccount is one of the fixed accounts created for local development.
type DemoAccount struct {
	Email    string
	Password string
	FullName string
	Role     access.Role
}

// DemoAccounts lists the development accounts, one per role.
var DemoAccounts = []DemoAccount{
	{Email: "admin@eventflow.com", Password: "admin123", FullName: "Ada Admin", Role: access.RoleAdmin},
	{Email: "manager@eventflow.com", Password: "manager123", FullName: "Morgan Manager", Role: access.RoleManager},
	{Email: "usher@eventflow.com", Password: "usher123", FullName: "Uri Usher", Role: access.RoleUsher},
	{Email: "attendee@eventflow.com", Password: "attendee123", FullName: "Alex Attendee", Role: access.RoleAttendee},
}

// SeedDemoAccounts creates the demo accounts that do not exist yet. Existing
// accounts are left untouched, so running it twice is harmless.
func SeedDemoAccounts(ctx context.Context, users persistence.UserRepository, hash PasswordHasher, idGenerator func() string, now func() time.Time, logger *slog.Logger) (created int, err error) {
	if users == nil {
		return 0, fmt.Errorf("user repository not configured")
	}
	if hash == nil {
		hash = HashPassword
	}
	if now == nil {
		now = time.Now
	}
	logger = serviceLogger(ctx, defaultLogger(logger), "Demo", "SeedDemoAccounts")
	defer func() {
		logOutcome(ctx, logger, err, "demo seeding failed", "demo accounts ready", "created", created)
	}()

	for _, account := range DemoAccounts {
		_, getErr := users.GetUserByEmail(ctx, account.Email)
		if getErr == nil {
			continue
		}
		if !errors.Is(getErr, persistence.ErrNotFound) {
			return created, upstreamError("users", getErr)
		}

		passwordHash, hashErr := hash(account.Password)
		if hashErr != nil {
			return created, fmt.Errorf("hash password for %s: %w", account.Email, hashErr)
		}
		at := now()
		confirmed := at
		rec := persistence.User{
			ID:               idGenerator(),
			Email:            account.Email,
			FullName:         account.FullName,
			PasswordHash:     passwordHash,
			Role:             account.Role.String(),
			IsActive:         true,
			EmailConfirmedAt: &confirmed,
			CreatedAt:        at,
			UpdatedAt:        at,
		}
		if createErr := users.CreateUser(ctx, rec); createErr != nil {
			if errors.Is(createErr, persistence.ErrDuplicate) {
				continue
			}
			return created, mapRepoError(createErr)
		}
		created++
	}
	return created, nil
}
