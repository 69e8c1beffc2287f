package auth

import (
	"fmt"
	"strings"
)

// Role is one of the three fixed levels of the hierarchy.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleManager  Role = "manager"
	RoleEmployee Role = "employee"
)

var roleLevels = map[Role]int{
	RoleAdmin:    3,
	RoleManager:  2,
	RoleEmployee: 1,
}

// Roles lists the hierarchy from highest to lowest.
func Roles() []Role {
	return []Role{RoleAdmin, RoleManager, RoleEmployee}
}

// ParseRole normalizes raw and returns the matching role.
func ParseRole(raw string) (Role, error) {
	r := Role(strings.TrimSpace(strings.ToLower(raw)))
	if _, ok := roleLevels[r]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, raw)
	}
	return r, nil
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	_, ok := roleLevels[r]
	return ok
}

// Level returns the integer level of r. Unknown roles fail; they never
// fall back to the lowest or highest level.
func (r Role) Level() (int, error) {
	lvl, ok := roleLevels[r]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidRole, string(r))
	}
	return lvl, nil
}

// Satisfies reports whether have is at or above required.
func Satisfies(have, required Role) (bool, error) {
	h, err := have.Level()
	if err != nil {
		return false, err
	}
	r, err := required.Level()
	if err != nil {
		return false, err
	}
	return h >= r, nil
}

func (r Role) String() string { return string(r) }
