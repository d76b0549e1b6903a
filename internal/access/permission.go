package access

import (
	"sort"
	"strings"
)

// Permission is a capability tag such as "create_events".
type Permission string

const (
	ViewEvents        Permission = "view_events"
	RegisterEvents    Permission = "register_events"
	CreateEvents      Permission = "create_events"
	EditEvents        Permission = "edit_events"
	PublishEvents     Permission = "publish_events"
	DeleteEvents      Permission = "delete_events"
	ViewAttendees     Permission = "view_attendees"
	ManageAttendees   Permission = "manage_attendees"
	CheckInAttendees  Permission = "check_in_attendees"
	ViewAnalytics     Permission = "view_analytics"
	ExportData        Permission = "export_data"
	ManageUsers       Permission = "manage_users"
	ManagePermissions Permission = "manage_permissions"
	ManageSettings    Permission = "manage_settings"
)

var catalogue = []Permission{
	ViewEvents,
	RegisterEvents,
	CreateEvents,
	EditEvents,
	PublishEvents,
	DeleteEvents,
	ViewAttendees,
	ManageAttendees,
	CheckInAttendees,
	ViewAnalytics,
	ExportData,
	ManageUsers,
	ManagePermissions,
	ManageSettings,
}

// Catalogue returns every permission the application understands.
func Catalogue() []Permission {
	out := make([]Permission, len(catalogue))
	copy(out, catalogue)
	return out
}

// ParsePermission normalizes a permission tag and reports whether it is known.
func ParsePermission(value string) (Permission, bool) {
	candidate := Permission(strings.ToLower(strings.TrimSpace(value)))
	for _, known := range catalogue {
		if known == candidate {
			return known, true
		}
	}
	return "", false
}

// DefaultRolePermissions is the capability table seeded into role_permissions.
var DefaultRolePermissions = map[Role][]Permission{
	RoleAdmin: Catalogue(),
	RoleManager: {
		ViewEvents, CreateEvents, EditEvents, PublishEvents, DeleteEvents,
		ViewAttendees, ManageAttendees, CheckInAttendees,
		ViewAnalytics, ExportData, ManageUsers,
	},
	RoleUsher: {
		ViewEvents, ViewAttendees, CheckInAttendees,
	},
	RoleAttendee: {
		ViewEvents, RegisterEvents,
	},
}

// Set is an unordered collection of unique permissions.
type Set map[Permission]struct{}

// NewSet builds a set from the supplied permissions.
func NewSet(perms ...Permission) Set {
	set := make(Set, len(perms))
	for _, p := range perms {
		if p == "" {
			continue
		}
		set[p] = struct{}{}
	}
	return set
}

// Has reports whether p is in the set.
func (s Set) Has(p Permission) bool {
	_, ok := s[p]
	return ok
}

// Add inserts p.
func (s Set) Add(p Permission) {
	s[p] = struct{}{}
}

// Remove deletes p.
func (s Set) Remove(p Permission) {
	delete(s, p)
}

// Contains reports whether every permission of other is present in s.
func (s Set) Contains(other Set) bool {
	for p := range other {
		if !s.Has(p) {
			return false
		}
	}
	return true
}

// Sorted returns the permissions in lexical order.
func (s Set) Sorted() []Permission {
	out := make([]Permission, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Strings returns the sorted permission names.
func (s Set) Strings() []string {
	sorted := s.Sorted()
	out := make([]string, len(sorted))
	for i, p := range sorted {
		out[i] = string(p)
	}
	return out
}
