package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"worktrack.org/internal/auth"
)

var _ auth.Ledger = (*Ledger)(nil)

// Ledger keeps refresh token ids in the refresh_tokens table.
type Ledger struct {
	db *sql.DB
}

// NewLedger shares the store's connection pool.
func NewLedger(db *sql.DB) *Ledger { return &Ledger{db: db} }

// Ledger returns a revocation ledger on the same database.
func (s *Store) Ledger() *Ledger { return NewLedger(s.db) }

func (l *Ledger) Record(ctx context.Context, e auth.LedgerEntry) error {
	if l.db == nil {
		return errNoDB
	}
	state := e.State
	if state == "" {
		state = auth.TokenActive
	}
	_, err := l.db.ExecContext(ctx, `
		insert into refresh_tokens (token_id, user_id, state, issued_at, expires_at)
		values ($1, $2, $3, $4, $5)
	`, e.TokenID, e.UserID, string(state), e.IssuedAt, e.ExpiresAt)
	return translate(err)
}

// Consume transitions an active, unexpired id with a single conditional
// update. When no row changes, a follow-up read only picks the error kind.
func (l *Ledger) Consume(ctx context.Context, tokenID string, to auth.TokenState, at time.Time) (auth.LedgerEntry, error) {
	if l.db == nil {
		return auth.LedgerEntry{}, errNoDB
	}
	if to != auth.TokenRotated && to != auth.TokenRevoked {
		return auth.LedgerEntry{}, auth.ErrInvalidInput
	}
	e := auth.LedgerEntry{TokenID: tokenID, State: to}
	err := l.db.QueryRowContext(ctx, `
		update refresh_tokens
		set state = $2, consumed_at = $3
		where token_id = $1 and state = 'active' and expires_at > $3
		returning user_id, issued_at, expires_at
	`, tokenID, string(to), at).Scan(&e.UserID, &e.IssuedAt, &e.ExpiresAt)
	if err == nil {
		consumed := at
		e.ConsumedAt = &consumed
		return e, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return auth.LedgerEntry{}, err
	}

	var state string
	err = l.db.QueryRowContext(ctx, `
		select user_id, state, issued_at, expires_at from refresh_tokens where token_id = $1
	`, tokenID).Scan(&e.UserID, &state, &e.IssuedAt, &e.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.LedgerEntry{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.LedgerEntry{}, err
	}
	e.State = auth.TokenState(state)
	if e.State != auth.TokenActive {
		return e, auth.ErrTokenReused
	}
	return e, auth.ErrTokenExpired
}

// Revoke upserts the id as revoked. Already consumed ids keep their state.
func (l *Ledger) Revoke(ctx context.Context, e auth.LedgerEntry, at time.Time) error {
	if l.db == nil {
		return errNoDB
	}
	expires := e.ExpiresAt
	if expires.IsZero() {
		expires = at
	}
	_, err := l.db.ExecContext(ctx, `
		insert into refresh_tokens (token_id, user_id, state, issued_at, expires_at, consumed_at)
		values ($1, $2, 'revoked', $3, $4, $5)
		on conflict (token_id) do update
		set state = 'revoked', consumed_at = excluded.consumed_at
		where refresh_tokens.state = 'active'
	`, e.TokenID, e.UserID, e.IssuedAt, expires, at)
	return err
}

func (l *Ledger) RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int, error) {
	if l.db == nil {
		return 0, errNoDB
	}
	res, err := l.db.ExecContext(ctx, `
		update refresh_tokens set state = 'revoked', consumed_at = $2
		where user_id = $1 and state = 'active'
	`, userID, at)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (l *Ledger) Purge(ctx context.Context, before time.Time) (int, error) {
	if l.db == nil {
		return 0, errNoDB
	}
	res, err := l.db.ExecContext(ctx, `delete from refresh_tokens where expires_at <= $1`, before)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
