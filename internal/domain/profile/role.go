package profile

import (
	"strings"
)

type Role string

const (
	RoleAdmin      Role = "admin"
	RoleSales      Role = "sales"
	RoleDevelopers Role = "developers"
	RoleDesigners  Role = "designers"
)

// DefaultRole is assigned at signup.
const DefaultRole = RoleSales

var AllRoles = []Role{RoleAdmin, RoleSales, RoleDevelopers, RoleDesigners}

func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleSales, RoleDevelopers, RoleDesigners:
		return true
	default:
		return false
	}
}

func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	return r, r.IsValid()
}

// RoleSet is a fixed set of roles a route accepts.
type RoleSet []Role

func (s RoleSet) Contains(r Role) bool {
	for _, allowed := range s {
		if allowed == r {
			return true
		}
	}
	return false
}

func (s RoleSet) String() string {
	names := make([]string, 0, len(s))
	for _, r := range s {
		names = append(names, string(r))
	}
	return strings.Join(names, ", ")
}
