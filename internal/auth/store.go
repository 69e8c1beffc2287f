package auth

import (
	"context"
	"time"
)

// UserStore persists accounts.
type UserStore interface {
	CreateUser(ctx context.Context, u *User) error
	GetUser(ctx context.Context, id string) (User, error)
	FindUserByEmail(ctx context.Context, email string) (User, error)
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
	SetRole(ctx context.Context, userID string, role Role) error
	SetActive(ctx context.Context, userID string, active bool) error
	UpdateName(ctx context.Context, userID, firstName, lastName string) error
}

// PasswordHistory returns the most recent password digests of a user, newest first.
type PasswordHistory interface {
	RecentPasswordHashes(ctx context.Context, userID string, limit int) ([]string, error)
}

// Ledger is the durable record of refresh token ids.
//
// Consume must be a single atomic conditional update: of two concurrent calls
// for the same active id exactly one succeeds and the other gets ErrTokenReused.
// Unknown ids return ErrNotFound. Revoke is an unconditional upsert.
type Ledger interface {
	Record(ctx context.Context, entry LedgerEntry) error
	Consume(ctx context.Context, tokenID string, to TokenState, at time.Time) (LedgerEntry, error)
	Revoke(ctx context.Context, entry LedgerEntry, at time.Time) error
	RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int, error)
	Purge(ctx context.Context, before time.Time) (int, error)
}
