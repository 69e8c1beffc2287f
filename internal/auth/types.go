package auth

import "time"

// User is the persisted account behind a principal. Deactivation is a soft
// flag; accounts are never deleted.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Role         Role      `json:"role"`
	Active       bool      `json:"active"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Principal returns the authorization view of u.
func (u User) Principal() Principal {
	return Principal{ID: u.ID, Email: u.Email, Role: u.Role, Active: u.Active}
}

// FullName joins first and last name.
func (u User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	default:
		return u.FirstName + " " + u.LastName
	}
}

// TokenState is the lifecycle state of a refresh token id in the ledger.
type TokenState string

const (
	TokenActive  TokenState = "active"
	TokenRotated TokenState = "rotated"
	TokenRevoked TokenState = "revoked"
)

// LedgerEntry records one refresh token id.
type LedgerEntry struct {
	TokenID    string
	UserID     string
	State      TokenState
	IssuedAt   time.Time
	ExpiresAt  time.Time
	ConsumedAt *time.Time
}

// Expired reports whether the entry is past its expiry at now.
func (e LedgerEntry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}
