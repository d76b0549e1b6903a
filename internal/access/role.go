// Package access models roles, permissions and the rules that merge role
// grants with per-user overrides into an effective permission set.
package access

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownRole is returned when a role string does not name one of the known roles.
var ErrUnknownRole = errors.New("access: unknown role")

// Role is the closed set of account roles.
type Role uint8

const (
	// RoleUnknown is the zero value and never valid for a stored account.
	RoleUnknown Role = iota
	// RoleAdmin can do everything, including managing other administrators.
	RoleAdmin
	// RoleManager runs events and staff but cannot administer admins.
	RoleManager
	// RoleUsher operates check-in at the door.
	RoleUsher
	// RoleAttendee browses and registers for events.
	RoleAttendee
)

var roleNames = map[Role]string{
	RoleAdmin:    "admin",
	RoleManager:  "manager",
	RoleUsher:    "usher",
	RoleAttendee: "attendee",
}

// Roles lists every valid role from most to least privileged.
func Roles() []Role {
	return []Role{RoleAdmin, RoleManager, RoleUsher, RoleAttendee}
}

// ParseRole converts a role name into a Role, rejecting anything outside the closed set.
func ParseRole(value string) (Role, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for role, name := range roleNames {
		if name == normalized {
			return role, nil
		}
	}
	return RoleUnknown, fmt.Errorf("%w: %q", ErrUnknownRole, value)
}

// String returns the canonical lower-case role name.
func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return "unknown"
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, ok := roleNames[r]
	return ok
}

// Rank orders roles by privilege; higher is more privileged.
func (r Role) Rank() int {
	switch r {
	case RoleAdmin:
		return 4
	case RoleManager:
		return 3
	case RoleUsher:
		return 2
	case RoleAttendee:
		return 1
	}
	return 0
}

// MarshalText implements encoding.TextMarshaler.
func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownRole, r)
	}
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
