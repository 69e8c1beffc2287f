// Package resilience wraps shared backends in circuit breakers so a failing
// store turns into fast, transient auth.ErrUnavailable errors.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"worktrack.org/internal/auth"
)

var _ auth.Ledger = (*Ledger)(nil)

// Settings tunes the breaker.
type Settings struct {
	Name                string
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
	Logger              logrus.FieldLogger
}

// Ledger decorates an auth.Ledger with a circuit breaker. Ledger outcomes
// such as reuse or a missing id count as successes; only backend errors trip
// the breaker.
type Ledger struct {
	next auth.Ledger
	cb   *gobreaker.CircuitBreaker
}

// NewLedger wraps next.
func NewLedger(next auth.Ledger, st Settings) *Ledger {
	if st.Name == "" {
		st.Name = "revocation-ledger"
	}
	if st.ConsecutiveFailures == 0 {
		st.ConsecutiveFailures = 5
	}
	if st.OpenTimeout <= 0 {
		st.OpenTimeout = 10 * time.Second
	}
	log := st.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	threshold := st.ConsecutiveFailures
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        st.Name,
		MaxRequests: 1,
		Timeout:     st.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: isLedgerOutcome,
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("circuit breaker state changed")
		},
	})
	return &Ledger{next: next, cb: cb}
}

// State reports the breaker state, e.g. for readiness checks.
func (l *Ledger) State() gobreaker.State { return l.cb.State() }

func isLedgerOutcome(err error) bool {
	if err == nil {
		return true
	}
	for _, kind := range []error{
		auth.ErrNotFound,
		auth.ErrConflict,
		auth.ErrInvalidInput,
		auth.ErrTokenReused,
		auth.ErrTokenExpired,
		context.Canceled,
	} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

func (l *Ledger) run(fn func() (any, error)) (any, error) {
	res, err := l.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", auth.ErrUnavailable, err)
	}
	if err != nil && !isLedgerOutcome(err) {
		return res, fmt.Errorf("%w: %v", auth.ErrUnavailable, err)
	}
	return res, err
}

func (l *Ledger) Record(ctx context.Context, e auth.LedgerEntry) error {
	_, err := l.run(func() (any, error) { return nil, l.next.Record(ctx, e) })
	return err
}

func (l *Ledger) Consume(ctx context.Context, tokenID string, to auth.TokenState, at time.Time) (auth.LedgerEntry, error) {
	res, err := l.run(func() (any, error) { return l.next.Consume(ctx, tokenID, to, at) })
	e, _ := res.(auth.LedgerEntry)
	return e, err
}

func (l *Ledger) Revoke(ctx context.Context, e auth.LedgerEntry, at time.Time) error {
	_, err := l.run(func() (any, error) { return nil, l.next.Revoke(ctx, e, at) })
	return err
}

func (l *Ledger) RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int, error) {
	res, err := l.run(func() (any, error) { return l.next.RevokeAllForUser(ctx, userID, at) })
	n, _ := res.(int)
	return n, err
}

func (l *Ledger) Purge(ctx context.Context, before time.Time) (int, error) {
	res, err := l.run(func() (any, error) { return l.next.Purge(ctx, before) })
	n, _ := res.(int)
	return n, err
}
