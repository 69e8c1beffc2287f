package auth

import "strings"

// Principal is an authenticated actor. Role is the snapshot carried by the
// access token or loaded from storage.
type Principal struct {
	ID     string
	Email  string
	Role   Role
	Active bool
}

// Is reports whether p refers to the user with the given id.
func (p Principal) Is(userID string) bool {
	userID = strings.TrimSpace(userID)
	return userID != "" && p.ID == userID
}

// AtLeast reports whether the principal's role satisfies required. Invalid
// roles never satisfy anything.
func (p Principal) AtLeast(required Role) bool {
	ok, err := Satisfies(p.Role, required)
	return err == nil && ok
}

// IsAdmin reports whether the principal holds the admin role.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}
