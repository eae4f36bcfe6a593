package domain

import (
	"encoding/json"
	"fmt"
)

// Role is a company-scoped permission level. Roles form a total order;
// the numeric gaps leave room for intermediate levels without migrations.
type Role int

const (
	RoleGuest  Role = 0
	RoleMember Role = 100
	RoleAdmin  Role = 500
	RoleOwner  Role = 1000
)

// IsAuthorized reports whether the role satisfies the requirement.
// Non-strict means "at least"; strict means "strictly above".
func (r Role) IsAuthorized(required Role, strict bool) bool {
	if strict {
		return r > required
	}
	return r >= required
}

func (r Role) String() string {
	switch r {
	case RoleGuest:
		return "guest"
	case RoleMember:
		return "member"
	case RoleAdmin:
		return "admin"
	case RoleOwner:
		return "owner"
	}
	return fmt.Sprintf("role(%d)", int(r))
}

// ParseRole maps the wire name back to a Role.
func ParseRole(s string) (Role, error) {
	switch s {
	case "guest":
		return RoleGuest, nil
	case "member":
		return RoleMember, nil
	case "admin":
		return RoleAdmin, nil
	case "owner":
		return RoleOwner, nil
	}
	return RoleGuest, fmt.Errorf("unknown role %q", s)
}

// Roles travel by name on the wire; the numeric value stays a storage detail.
func (r Role) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

func (r *Role) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseRole(name)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
