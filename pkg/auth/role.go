package auth

import (
	"fmt"
	"strings"
)

// Role is the closed set of actor kinds the system understands.
// The zero value is not a valid role.
type Role uint8

const (
	RolePatient Role = iota + 1
	RoleAdmin
)

const (
	rolePatientName = "patient"
	roleAdminName   = "admin"
)

// ParseRole converts the wire/storage representation into a Role.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case rolePatientName:
		return RolePatient, nil
	case roleAdminName:
		return RoleAdmin, nil
	default:
		return 0, fmt.Errorf("unknown role %q", s)
	}
}

func (r Role) String() string {
	switch r {
	case RolePatient:
		return rolePatientName
	case RoleAdmin:
		return roleAdminName
	default:
		return fmt.Sprintf("role(%d)", uint8(r))
	}
}

func (r Role) Valid() bool {
	switch r {
	case RolePatient, RoleAdmin:
		return true
	default:
		return false
	}
}

// Privileged reports whether the role may read data across actors.
func (r Role) Privileged() bool {
	switch r {
	case RoleAdmin:
		return true
	case RolePatient:
		return false
	default:
		return false
	}
}

func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("cannot marshal invalid role %d", uint8(r))
	}
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
