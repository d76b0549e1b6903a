package application

import (
	"context"
	"errors"
	"testing"

	"github.com/example/eventflow/internal/access"
	"github.com/example/eventflow/internal/listview"
)

func newUserFixture() (*memoryStore, *UserService) {
	store := newMemoryStore()
	seedUser(store, "admin", "admin@example.com", access.RoleAdmin)
	seedUser(store, "manager", "manager@example.com", access.RoleManager)
	seedUser(store, "usher", "usher@example.com", access.RoleUsher)
	seedUser(store, "attendee", "attendee@example.com", access.RoleAttendee)
	return store, NewUserService(store, fixedClock(testNow))
}

func TestUserService_ListUsers(t *testing.T) {
	t.Parallel()

	t.Run("requires manage_users", func(t *testing.T) {
		t.Parallel()

		_, svc := newUserFixture()
		if _, err := svc.ListUsers(context.Background(), principalFor("usher", access.RoleUsher), ListQuery{}); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
	})

	t.Run("filters by role and sorts", func(t *testing.T) {
		t.Parallel()

		store, svc := newUserFixture()
		seedUser(store, "usher2", "b-usher@example.com", access.RoleUsher)

		filters := listview.Filters{"role": "USHER"}
		users, err := svc.ListUsers(context.Background(), principalFor("admin", access.RoleAdmin), ListQuery{
			Filters: filters,
			Sort:    listview.SortState{Key: "email"},
		})
		if err != nil {
			t.Fatalf("ListUsers failed: %v", err)
		}
		if len(users) != 2 || users[0].ID != "usher2" || users[1].ID != "usher" {
			t.Fatalf("unexpected users %#v", users)
		}
		if filters["role"] != "USHER" {
			t.Fatalf("expected caller filters to be left alone, got %v", filters)
		}
	})

	t.Run("rejects unknown roles and keys", func(t *testing.T) {
		t.Parallel()

		_, svc := newUserFixture()
		admin := principalFor("admin", access.RoleAdmin)
		var vErr *ValidationError
		if _, err := svc.ListUsers(context.Background(), admin, ListQuery{Filters: listview.Filters{"role": "owner"}}); !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError for unknown role, got %v", err)
		}
		if _, err := svc.ListUsers(context.Background(), admin, ListQuery{Sort: listview.SortState{Key: "password"}}); !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError for unknown sort key, got %v", err)
		}
	})
}

func TestUserService_GetAndUpdateProfile(t *testing.T) {
	t.Parallel()

	_, svc := newUserFixture()
	ctx := context.Background()
	self := principalFor("attendee", access.RoleAttendee)

	if _, err := svc.GetUser(ctx, self, "attendee"); err != nil {
		t.Fatalf("expected users to read their own account, got %v", err)
	}
	if _, err := svc.GetUser(ctx, self, "admin"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized reading another account, got %v", err)
	}

	name := "  Ada Lovelace "
	company := "Analytical Engines"
	user, err := svc.UpdateProfile(ctx, self, ProfileInput{FullName: &name, Company: &company})
	if err != nil {
		t.Fatalf("UpdateProfile failed: %v", err)
	}
	if user.FullName != "Ada Lovelace" || user.Company != company {
		t.Fatalf("unexpected profile %#v", user)
	}

	blank := "   "
	var vErr *ValidationError
	if _, err := svc.UpdateProfile(ctx, self, ProfileInput{FullName: &blank}); !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError for blank name, got %v", err)
	}
}

func TestUserService_ChangeRole(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		actor   Principal
		target  string
		role    string
		wantErr error
	}{
		{"admin promotes usher", principalFor("admin", access.RoleAdmin), "usher", "manager", nil},
		{"manager demotes usher", principalFor("manager", access.RoleManager), "usher", "attendee", nil},
		{"manager cannot assign admin", principalFor("manager", access.RoleManager), "usher", "admin", ErrUnauthorized},
		{"manager cannot modify admin", principalFor("manager", access.RoleManager), "admin", "usher", ErrUnauthorized},
		{"nobody changes own role", principalFor("admin", access.RoleAdmin), "admin", "usher", ErrUnauthorized},
		{"usher lacks manage_users", principalFor("usher", access.RoleUsher), "attendee", "usher", ErrUnauthorized},
		{"unknown target", principalFor("admin", access.RoleAdmin), "ghost", "usher", ErrNotFound},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			store, svc := newUserFixture()
			user, err := svc.ChangeRole(context.Background(), tc.actor, tc.target, tc.role)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ChangeRole failed: %v", err)
			}
			if user.Role.String() != tc.role || store.users[tc.target].Role != tc.role {
				t.Fatalf("expected role %s to be stored, got %v", tc.role, user.Role)
			}
		})
	}

	t.Run("rejects roles outside the closed set", func(t *testing.T) {
		t.Parallel()

		_, svc := newUserFixture()
		var vErr *ValidationError
		if _, err := svc.ChangeRole(context.Background(), principalFor("admin", access.RoleAdmin), "usher", "superuser"); !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
	})
}

func TestUserService_SetActive(t *testing.T) {
	t.Parallel()

	store, svc := newUserFixture()
	ctx := context.Background()
	admin := principalFor("admin", access.RoleAdmin)
	manager := principalFor("manager", access.RoleManager)

	user, err := svc.SetActive(ctx, manager, "usher", false)
	if err != nil {
		t.Fatalf("SetActive failed: %v", err)
	}
	if user.IsActive || store.users["usher"].IsActive {
		t.Fatalf("expected usher to be deactivated")
	}

	var vErr *ValidationError
	if _, err := svc.SetActive(ctx, admin, "admin", false); !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError deactivating self, got %v", err)
	}
	if _, err := svc.SetActive(ctx, manager, "admin", false); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected managers to be kept away from admins, got %v", err)
	}
	if _, err := svc.SetActive(ctx, admin, "usher", true); err != nil {
		t.Fatalf("expected reactivation to succeed, got %v", err)
	}
}
