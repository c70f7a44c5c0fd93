package auth

import (
	"sort"
	"strings"
)

// RoleName is the wire name of a role. The frontend compares these literally.
type RoleName string

const (
	RoleRequester       RoleName = "REQUESTER"
	RoleAdmin           RoleName = "ADMIN"
	RoleSuperAdmin      RoleName = "SUPER_ADMIN"
	RoleUserPrintNumber RoleName = "USER_PRINT_NUMBER"
)

// BuiltinRoles lists the roles seeded into every deployment.
var BuiltinRoles = []RoleName{
	RoleRequester,
	RoleAdmin,
	RoleSuperAdmin,
	RoleUserPrintNumber,
}

// NormalizeRole trims and upper-cases a role name.
func NormalizeRole(name string) RoleName {
	return RoleName(strings.ToUpper(strings.TrimSpace(name)))
}

// IsBuiltin reports whether r is one of the seeded role names.
func (r RoleName) IsBuiltin() bool {
	for _, b := range BuiltinRoles {
		if r == b {
			return true
		}
	}
	return false
}

// RoleSet is a set of role names.
type RoleSet map[RoleName]struct{}

// NewRoleSet builds a set from names, dropping blanks.
func NewRoleSet(names ...RoleName) RoleSet {
	set := make(RoleSet, len(names))
	for _, n := range names {
		n = NormalizeRole(string(n))
		if n == "" {
			continue
		}
		set[n] = struct{}{}
	}
	return set
}

// Has reports whether the set contains name.
func (s RoleSet) Has(name RoleName) bool {
	_, ok := s[name]
	return ok
}

// Intersects reports whether the two sets share at least one role.
func (s RoleSet) Intersects(other RoleSet) bool {
	small, large := s, other
	if len(large) < len(small) {
		small, large = large, small
	}
	for n := range small {
		if large.Has(n) {
			return true
		}
	}
	return false
}

// Sorted returns the names in lexical order.
func (s RoleSet) Sorted() []RoleName {
	out := make([]RoleName, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
