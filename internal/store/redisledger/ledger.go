// Package redisledger keeps the refresh token ledger in Redis. Every state
// transition runs as a Lua script so check and write are one atomic step.
package redisledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"worktrack.org/internal/auth"
)

const defaultPrefix = "worktrack:ledger:"

var _ auth.Ledger = (*Ledger)(nil)

// Each token id is a hash {user, state, issued, expires, consumed} with
// millisecond timestamps, expiring at the token's own expiry. A set per user
// indexes that user's ids.
var (
	recordScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then return 0 end
redis.call('HSET', KEYS[1], 'user', ARGV[1], 'state', ARGV[2], 'issued', ARGV[3], 'expires', ARGV[4])
redis.call('PEXPIREAT', KEYS[1], ARGV[4])
redis.call('SADD', KEYS[2], ARGV[5])
return 1
`)

	consumeScript = redis.NewScript(`
local state = redis.call('HGET', KEYS[1], 'state')
if not state then return {'missing'} end
local f = redis.call('HMGET', KEYS[1], 'user', 'issued', 'expires')
local user, issued, expires = f[1] or '', f[2] or '0', f[3] or '0'
if state ~= 'active' then return {'reused', state, user, issued, expires} end
local exp = tonumber(expires)
if exp and exp > 0 and tonumber(ARGV[2]) >= exp then
  return {'expired', state, user, issued, expires}
end
redis.call('HSET', KEYS[1], 'state', ARGV[1], 'consumed', ARGV[2])
return {'ok', ARGV[1], user, issued, expires}
`)

	revokeScript = redis.NewScript(`
local state = redis.call('HGET', KEYS[1], 'state')
if state and state ~= 'active' then return 0 end
if not state then
  redis.call('HSET', KEYS[1], 'user', ARGV[1], 'issued', ARGV[3], 'expires', ARGV[4])
  redis.call('PEXPIREAT', KEYS[1], ARGV[4])
  redis.call('SADD', KEYS[2], ARGV[5])
end
redis.call('HSET', KEYS[1], 'state', 'revoked', 'consumed', ARGV[2])
return 1
`)

	revokeAllScript = redis.NewScript(`
local n = 0
for _, id in ipairs(redis.call('SMEMBERS', KEYS[1])) do
  local key = ARGV[2] .. id
  local state = redis.call('HGET', key, 'state')
  if not state then
    redis.call('SREM', KEYS[1], id)
  elseif state == 'active' then
    redis.call('HSET', key, 'state', 'revoked', 'consumed', ARGV[1])
    n = n + 1
  end
end
return n
`)

	purgeScript = redis.NewScript(`
local n = 0
for _, id in ipairs(redis.call('SMEMBERS', KEYS[1])) do
  local key = ARGV[2] .. id
  local expires = tonumber(redis.call('HGET', key, 'expires'))
  if not expires then
    redis.call('SREM', KEYS[1], id)
    n = n + 1
  elseif expires <= tonumber(ARGV[1]) then
    redis.call('DEL', key)
    redis.call('SREM', KEYS[1], id)
    n = n + 1
  end
end
return n
`)
)

// Ledger implements auth.Ledger on a single Redis node. The scripts touch a
// token hash and its user index in one call and derive token keys from the
// index, so the keys cannot be spread over cluster slots.
type Ledger struct {
	client *redis.Client
	prefix string
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(l *Ledger) {
		if prefix != "" {
			l.prefix = prefix
		}
	}
}

// New builds a ledger over client.
func New(client *redis.Client, opts ...Option) *Ledger {
	l := &Ledger{client: client, prefix: defaultPrefix}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Ping checks connectivity.
func (l *Ledger) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

func (l *Ledger) tokenPrefix() string { return l.prefix + "token:" }

func (l *Ledger) tokenKey(id string) string { return l.tokenPrefix() + id }

func (l *Ledger) userKey(userID string) string { return l.prefix + "user:" + userID }

func millis(t time.Time) int64 { return t.UnixMilli() }

func (l *Ledger) Record(ctx context.Context, e auth.LedgerEntry) error {
	if strings.TrimSpace(e.TokenID) == "" {
		return auth.ErrInvalidInput
	}
	state := e.State
	if state == "" {
		state = auth.TokenActive
	}
	n, err := recordScript.Run(ctx, l.client,
		[]string{l.tokenKey(e.TokenID), l.userKey(e.UserID)},
		e.UserID, string(state), millis(e.IssuedAt), millis(e.ExpiresAt), e.TokenID,
	).Int()
	if err != nil {
		return fmt.Errorf("record token: %w", err)
	}
	if n == 0 {
		return auth.ErrConflict
	}
	return nil
}

func (l *Ledger) Consume(ctx context.Context, tokenID string, to auth.TokenState, at time.Time) (auth.LedgerEntry, error) {
	if to != auth.TokenRotated && to != auth.TokenRevoked {
		return auth.LedgerEntry{}, auth.ErrInvalidInput
	}
	res, err := consumeScript.Run(ctx, l.client, []string{l.tokenKey(tokenID)}, string(to), millis(at)).StringSlice()
	if err != nil {
		return auth.LedgerEntry{}, fmt.Errorf("consume token: %w", err)
	}
	if len(res) == 0 || res[0] == "missing" {
		return auth.LedgerEntry{}, auth.ErrNotFound
	}
	if len(res) < 5 {
		return auth.LedgerEntry{}, errors.New("consume token: malformed script reply")
	}
	e := auth.LedgerEntry{
		TokenID:   tokenID,
		State:     auth.TokenState(res[1]),
		UserID:    res[2],
		IssuedAt:  parseMillis(res[3]),
		ExpiresAt: parseMillis(res[4]),
	}
	switch res[0] {
	case "ok":
		consumed := at
		e.ConsumedAt = &consumed
		return e, nil
	case "reused":
		return e, auth.ErrTokenReused
	default:
		return e, auth.ErrTokenExpired
	}
}

func (l *Ledger) Revoke(ctx context.Context, e auth.LedgerEntry, at time.Time) error {
	if strings.TrimSpace(e.TokenID) == "" {
		return auth.ErrInvalidInput
	}
	expires := e.ExpiresAt
	if expires.IsZero() || !expires.After(at) {
		expires = at.Add(time.Minute)
	}
	err := revokeScript.Run(ctx, l.client,
		[]string{l.tokenKey(e.TokenID), l.userKey(e.UserID)},
		e.UserID, millis(at), millis(e.IssuedAt), millis(expires), e.TokenID,
	).Err()
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func (l *Ledger) RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int, error) {
	n, err := revokeAllScript.Run(ctx, l.client, []string{l.userKey(userID)}, millis(at), l.tokenPrefix()).Int()
	if err != nil {
		return 0, fmt.Errorf("revoke sessions: %w", err)
	}
	return n, nil
}

// Purge walks the per-user indexes, deleting entries that expired before the
// cutoff and index members whose key Redis already expired.
func (l *Ledger) Purge(ctx context.Context, before time.Time) (int, error) {
	total := 0
	iter := l.client.Scan(ctx, 0, l.prefix+"user:*", 100).Iterator()
	for iter.Next(ctx) {
		n, err := purgeScript.Run(ctx, l.client, []string{iter.Val()}, millis(before), l.tokenPrefix()).Int()
		if err != nil {
			return total, fmt.Errorf("purge ledger: %w", err)
		}
		total += n
	}
	if err := iter.Err(); err != nil {
		return total, fmt.Errorf("purge ledger: %w", err)
	}
	return total, nil
}

func parseMillis(raw string) time.Time {
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(v).UTC()
}
