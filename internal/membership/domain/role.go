package domain

import (
	"fmt"
	"slices"
	"strings"
)

// Role is a privilege tier within a single team. Owner > Manager > Member.
type Role string

const (
	RoleOwner   Role = "owner"
	RoleManager Role = "manager"
	RoleMember  Role = "member"
)

// Rank returns the privilege rank of r; higher is more privileged. Unknown roles rank 0.
func (r Role) Rank() int {
	switch r {
	case RoleOwner:
		return 3
	case RoleManager:
		return 2
	case RoleMember:
		return 1
	default:
		return 0
	}
}

// Valid reports whether r is one of the three known roles.
func (r Role) Valid() bool {
	return r.Rank() > 0
}

func (r Role) String() string {
	return string(r)
}

// ParseRole parses s case-insensitively. Empty input yields RoleMember.
func ParseRole(s string) (Role, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return RoleMember, nil
	}
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
	return r, nil
}

// RoleAtLeast reports whether role is at least as privileged as threshold.
// An unknown role never satisfies any threshold.
func RoleAtLeast(role, threshold Role) bool {
	if !role.Valid() {
		return false
	}
	return role.Rank() >= threshold.Rank()
}

// ManagementRoles returns the roles that may manage a team: Owner and Manager.
func ManagementRoles() []Role {
	return []Role{RoleOwner, RoleManager}
}

// IsManagementRole reports whether role is one of ManagementRoles.
func IsManagementRole(role Role) bool {
	return slices.Contains(ManagementRoles(), role)
}
