package redisledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"worktrack.org/internal/auth"
)

func newLedger(t *testing.T) (*Ledger, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, WithPrefix("test:")), mr
}

func entry(id, user string, now time.Time) auth.LedgerEntry {
	return auth.LedgerEntry{TokenID: id, UserID: user, State: auth.TokenActive, IssuedAt: now, ExpiresAt: now.Add(time.Hour)}
}

func TestRecordAndConsume(t *testing.T) {
	ctx := context.Background()
	l, mr := newLedger(t)
	now := time.Now().UTC().Truncate(time.Millisecond)

	require.NoError(t, l.Record(ctx, entry("j1", "u1", now)))
	assert.ErrorIs(t, l.Record(ctx, entry("j1", "u1", now)), auth.ErrConflict)
	assert.True(t, mr.Exists("test:token:j1"))
	assert.True(t, mr.TTL("test:token:j1") > 0)

	e, err := l.Consume(ctx, "j1", auth.TokenRotated, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, auth.TokenRotated, e.State)
	assert.Equal(t, "u1", e.UserID)
	assert.True(t, now.Add(time.Hour).Equal(e.ExpiresAt))
	require.NotNil(t, e.ConsumedAt)

	_, err = l.Consume(ctx, "j1", auth.TokenRotated, now.Add(2*time.Minute))
	assert.ErrorIs(t, err, auth.ErrTokenReused)

	_, err = l.Consume(ctx, "missing", auth.TokenRotated, now)
	assert.ErrorIs(t, err, auth.ErrNotFound)

	require.NoError(t, l.Record(ctx, entry("j2", "u1", now)))
	_, err = l.Consume(ctx, "j2", auth.TokenRotated, now.Add(2*time.Hour))
	assert.ErrorIs(t, err, auth.ErrTokenExpired)
}

func TestConcurrentConsumeSingleWinner(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)
	now := time.Now().UTC()
	require.NoError(t, l.Record(ctx, entry("race", "u1", now)))

	const workers = 12
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		wins   int
		reused int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Consume(ctx, "race", auth.TokenRotated, now)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
			} else if assert.ErrorIs(t, err, auth.ErrTokenReused) {
				reused++
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
	assert.Equal(t, workers-1, reused)
}

func TestRevokeIdempotentAndRevokeAll(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)
	now := time.Now().UTC()

	require.NoError(t, l.Record(ctx, entry("a", "u1", now)))
	require.NoError(t, l.Record(ctx, entry("b", "u1", now)))
	require.NoError(t, l.Record(ctx, entry("c", "u2", now)))

	require.NoError(t, l.Revoke(ctx, entry("a", "u1", now), now))
	require.NoError(t, l.Revoke(ctx, entry("a", "u1", now), now))
	require.NoError(t, l.Revoke(ctx, entry("unknown", "u1", now), now))

	_, err := l.Consume(ctx, "a", auth.TokenRotated, now)
	assert.ErrorIs(t, err, auth.ErrTokenReused)
	_, err = l.Consume(ctx, "unknown", auth.TokenRotated, now)
	assert.ErrorIs(t, err, auth.ErrTokenReused)

	n, err := l.RevokeAllForUser(ctx, "u1", now)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "only b was still active")

	_, err = l.Consume(ctx, "c", auth.TokenRotated, now)
	assert.NoError(t, err, "other users keep their sessions")
}

func TestPurge(t *testing.T) {
	ctx := context.Background()
	l, mr := newLedger(t)
	now := time.Now().UTC()
	require.NoError(t, l.Record(ctx, entry("old", "u1", now)))
	require.NoError(t, l.Record(ctx, auth.LedgerEntry{TokenID: "fresh", UserID: "u1", IssuedAt: now, ExpiresAt: now.Add(48 * time.Hour)}))

	n, err := l.Purge(ctx, now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.False(t, mr.Exists("test:token:old"))
	assert.True(t, mr.Exists("test:token:fresh"))
}

func TestWorksWithTokenService(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)
	svc, err := auth.NewTokenService(auth.TokenConfig{Secret: []byte("0123456789abcdef0123456789abcdef")}, l)
	require.NoError(t, err)

	pair, err := svc.IssuePair(ctx, auth.Principal{ID: "u1", Role: auth.RoleEmployee, Active: true})
	require.NoError(t, err)
	_, err = svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	_, err = svc.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, auth.ErrTokenReused)
	require.NoError(t, svc.Revoke(ctx, pair.RefreshToken))
}
