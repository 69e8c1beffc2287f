package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"worktrack.org/internal/auth"
)

// flakyLedger fails every call while down is set.
type flakyLedger struct {
	*auth.MemoryLedger
	down  bool
	calls int
}

var errBackend = errors.New("connection refused")

func (f *flakyLedger) Consume(ctx context.Context, id string, to auth.TokenState, at time.Time) (auth.LedgerEntry, error) {
	f.calls++
	if f.down {
		return auth.LedgerEntry{}, errBackend
	}
	return f.MemoryLedger.Consume(ctx, id, to, at)
}

func TestBreakerOpensOnBackendFailures(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	backend := &flakyLedger{MemoryLedger: auth.NewMemoryLedger(), down: true}
	l := NewLedger(backend, Settings{ConsecutiveFailures: 2, OpenTimeout: time.Hour, Logger: logger})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := l.Consume(ctx, "j1", auth.TokenRotated, time.Now())
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrUnavailable)
	}
	assert.Equal(t, gobreaker.StateOpen, l.State())

	_, err := l.Consume(ctx, "j1", auth.TokenRotated, time.Now())
	assert.ErrorIs(t, err, auth.ErrUnavailable)
	assert.Equal(t, 2, backend.calls, "open breaker must not reach the backend")
	assert.False(t, auth.IsDenied(err))
	assert.False(t, auth.IsTokenFailure(err))

	require.NotEmpty(t, hook.Entries)
	last := hook.LastEntry()
	assert.Equal(t, logrus.WarnLevel, last.Level)
	assert.Equal(t, "open", last.Data["to"])
}

func TestLedgerOutcomesDoNotTrip(t *testing.T) {
	backend := &flakyLedger{MemoryLedger: auth.NewMemoryLedger()}
	l := NewLedger(backend, Settings{ConsecutiveFailures: 1, Logger: logrus.New()})
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, l.Record(ctx, auth.LedgerEntry{TokenID: "j1", UserID: "u1", ExpiresAt: now.Add(time.Hour)}))
	_, err := l.Consume(ctx, "j1", auth.TokenRotated, now)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err = l.Consume(ctx, "j1", auth.TokenRotated, now)
		assert.ErrorIs(t, err, auth.ErrTokenReused)
		_, err = l.Consume(ctx, "nope", auth.TokenRotated, now)
		assert.ErrorIs(t, err, auth.ErrNotFound)
	}
	assert.Equal(t, gobreaker.StateClosed, l.State())

	require.NoError(t, l.Revoke(ctx, auth.LedgerEntry{TokenID: "j2", UserID: "u1"}, now))
	n, err := l.RevokeAllForUser(ctx, "u1", now)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	purged, err := l.Purge(ctx, now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, purged)
}
