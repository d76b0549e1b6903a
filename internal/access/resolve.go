package access

import (
	"fmt"
	"strings"
	"time"
)

// RevocationPolicy decides whether an explicit per-user denial can suppress a
// permission that the user's role grants.
type RevocationPolicy string

const (
	// PolicyUnion always keeps role permissions; overrides can only add.
	PolicyUnion RevocationPolicy = "union"
	// PolicyOverrideWins lets an active denial override remove a role permission.
	PolicyOverrideWins RevocationPolicy = "override"
)

// ParseRevocationPolicy validates a policy name. The empty string selects PolicyUnion.
func ParseRevocationPolicy(value string) (RevocationPolicy, error) {
	switch RevocationPolicy(strings.ToLower(strings.TrimSpace(value))) {
	case "", PolicyUnion:
		return PolicyUnion, nil
	case PolicyOverrideWins:
		return PolicyOverrideWins, nil
	}
	return "", fmt.Errorf("access: unknown revocation policy %q", value)
}

// Override is a per-user permission row.
type Override struct {
	Permission Permission
	Granted    bool
	GrantedBy  string
	ExpiresAt  *time.Time
}

// Active reports whether the override is still in force at now.
func (o Override) Active(now time.Time) bool {
	return o.ExpiresAt == nil || o.ExpiresAt.After(now)
}

// Resolve merges role permissions with active overrides.
//
// Grants that are active are added. Denials only take effect under
// PolicyOverrideWins, where an active denial removes the permission even if
// the role carries it.
func Resolve(rolePerms []Permission, overrides []Override, now time.Time, policy RevocationPolicy) Set {
	effective := NewSet(rolePerms...)

	for _, o := range overrides {
		if o.Granted && o.Active(now) {
			effective.Add(o.Permission)
		}
	}

	if policy == PolicyOverrideWins {
		for _, o := range overrides {
			if !o.Granted && o.Active(now) {
				effective.Remove(o.Permission)
			}
		}
	}

	return effective
}
