package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type principalMap map[string]Principal

func (m principalMap) Principal(_ context.Context, userID string) (Principal, error) {
	p, ok := m[userID]
	if !ok {
		return Principal{}, ErrNotFound
	}
	return p, nil
}

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newTestTokens(t *testing.T, opts ...TokenOption) (*TokenService, *MemoryLedger, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	ledger := NewMemoryLedger()
	opts = append([]TokenOption{WithClock(clock.Now)}, opts...)
	svc, err := NewTokenService(TokenConfig{Secret: testSecret, AccessTTL: 15 * time.Minute, RefreshTTL: 24 * time.Hour}, ledger, opts...)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return svc, ledger, clock
}

func TestNewTokenServiceValidation(t *testing.T) {
	if _, err := NewTokenService(TokenConfig{Secret: []byte("short")}, NewMemoryLedger()); err == nil {
		t.Fatalf("expected short secret to be rejected")
	}
	if _, err := NewTokenService(TokenConfig{Secret: testSecret}, nil); err == nil {
		t.Fatalf("expected missing ledger to be rejected")
	}
	if _, err := NewTokenService(TokenConfig{Secret: testSecret, AccessTTL: time.Hour, RefreshTTL: time.Minute}, NewMemoryLedger()); err == nil {
		t.Fatalf("expected refresh ttl shorter than access ttl to be rejected")
	}
}

func TestIssueAndVerifyAccess(t *testing.T) {
	svc, ledger, clock := newTestTokens(t)
	pair, err := svc.IssuePair(context.Background(), Principal{ID: "u1", Role: RoleManager, Active: true})
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	if pair.AccessToken == pair.RefreshToken {
		t.Fatalf("access and refresh tokens must differ")
	}
	if want := clock.Now().Add(15 * time.Minute); !pair.AccessExpiresAt.Equal(want) {
		t.Fatalf("access expiry = %v, want %v", pair.AccessExpiresAt, want)
	}
	entry, ok := ledger.Entry(pair.TokenID)
	if !ok || entry.State != TokenActive || entry.UserID != "u1" {
		t.Fatalf("ledger entry not recorded: %+v %v", entry, ok)
	}

	p, err := svc.VerifyAccess(pair.AccessToken)
	if err != nil {
		t.Fatalf("VerifyAccess: %v", err)
	}
	if p.ID != "u1" || p.Role != RoleManager {
		t.Fatalf("unexpected principal: %+v", p)
	}

	if _, err := svc.VerifyAccess(pair.RefreshToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("refresh token accepted as access token: %v", err)
	}

	clock.Advance(16 * time.Minute)
	if _, err := svc.VerifyAccess(pair.AccessToken); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestIssueRejectsInvalidRole(t *testing.T) {
	svc, _, _ := newTestTokens(t)
	if _, err := svc.IssuePair(context.Background(), Principal{ID: "u1", Role: "root"}); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
}

func TestVerifyAccessRejectsTampering(t *testing.T) {
	svc, _, _ := newTestTokens(t)
	pair, err := svc.IssuePair(context.Background(), Principal{ID: "u1", Role: RoleEmployee, Active: true})
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	parts := strings.Split(pair.AccessToken, ".")
	parts[2] = strings.Repeat("A", len(parts[2]))
	if _, err := svc.VerifyAccess(strings.Join(parts, ".")); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for bad signature, got %v", err)
	}

	other, err := NewTokenService(TokenConfig{Secret: []byte("ffffffffffffffffffffffffffffffff")}, NewMemoryLedger())
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	if _, err := other.VerifyAccess(pair.AccessToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for foreign secret, got %v", err)
	}
	if _, err := svc.VerifyAccess("not-a-token"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for garbage, got %v", err)
	}
}

func TestRefreshRotatesOnce(t *testing.T) {
	svc, ledger, _ := newTestTokens(t)
	ctx := context.Background()
	first, err := svc.IssuePair(ctx, Principal{ID: "u1", Role: RoleEmployee, Active: true})
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	second, err := svc.Refresh(ctx, first.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if second.TokenID == first.TokenID {
		t.Fatalf("rotation must mint a new token id")
	}
	if entry, _ := ledger.Entry(first.TokenID); entry.State != TokenRotated || entry.ConsumedAt == nil {
		t.Fatalf("old entry not rotated: %+v", entry)
	}
	if _, err := svc.Refresh(ctx, first.RefreshToken); !errors.Is(err, ErrTokenReused) {
		t.Fatalf("expected ErrTokenReused on replay, got %v", err)
	}
	if _, err := svc.Refresh(ctx, second.RefreshToken); err != nil {
		t.Fatalf("new refresh token should rotate: %v", err)
	}
}

func TestConcurrentRefreshSingleWinner(t *testing.T) {
	svc, _, _ := newTestTokens(t)
	ctx := context.Background()
	pair, err := svc.IssuePair(ctx, Principal{ID: "u1", Role: RoleEmployee, Active: true})
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}

	const workers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		wins    int
		reused  int
		unknown []error
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := svc.Refresh(ctx, pair.RefreshToken)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, ErrTokenReused):
				reused++
			default:
				unknown = append(unknown, err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if wins != 1 || reused != workers-1 || len(unknown) != 0 {
		t.Fatalf("wins=%d reused=%d other=%v", wins, reused, unknown)
	}
}

func TestRefreshExpiredAndUnknown(t *testing.T) {
	svc, _, clock := newTestTokens(t)
	ctx := context.Background()
	pair, err := svc.IssuePair(ctx, Principal{ID: "u1", Role: RoleEmployee, Active: true})
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}

	// Signed by the same key but never recorded in this ledger.
	stranger, err := NewTokenService(TokenConfig{Secret: testSecret, AccessTTL: 15 * time.Minute, RefreshTTL: 24 * time.Hour}, NewMemoryLedger(), WithClock(clock.Now))
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	foreign, err := stranger.IssuePair(ctx, Principal{ID: "u1", Role: RoleEmployee, Active: true})
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	if _, err := svc.Refresh(ctx, foreign.RefreshToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for unrecorded id, got %v", err)
	}

	clock.Advance(25 * time.Hour)
	if _, err := svc.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestRefreshReloadsPrincipal(t *testing.T) {
	users := principalMap{"u1": {ID: "u1", Role: RoleManager, Active: true}}
	svc, _, _ := newTestTokens(t, WithPrincipalSource(users))
	ctx := context.Background()
	pair, err := svc.IssuePair(ctx, Principal{ID: "u1", Role: RoleEmployee, Active: true})
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	rotated, err := svc.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	p, err := svc.VerifyAccess(rotated.AccessToken)
	if err != nil {
		t.Fatalf("VerifyAccess: %v", err)
	}
	if p.Role != RoleManager {
		t.Fatalf("expected promoted role, got %s", p.Role)
	}

	users["u1"] = Principal{ID: "u1", Role: RoleManager, Active: false}
	if _, err := svc.Refresh(ctx, rotated.RefreshToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for deactivated user, got %v", err)
	}
}

func TestRevokeIsIdempotent(t *testing.T) {
	var ops []string
	svc, ledger, clock := newTestTokens(t, WithTokenObserver(func(op string, err error) {
		if err == nil {
			ops = append(ops, op)
		}
	}))
	ctx := context.Background()
	pair, err := svc.IssuePair(ctx, Principal{ID: "u1", Role: RoleEmployee, Active: true})
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := svc.Revoke(ctx, pair.RefreshToken); err != nil {
			t.Fatalf("Revoke #%d: %v", i+1, err)
		}
	}
	if entry, _ := ledger.Entry(pair.TokenID); entry.State != TokenRevoked {
		t.Fatalf("expected revoked entry, got %+v", entry)
	}
	if _, err := svc.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrTokenReused) {
		t.Fatalf("expected ErrTokenReused after revoke, got %v", err)
	}

	clock.Advance(48 * time.Hour)
	if err := svc.Revoke(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("revoking an expired token should succeed: %v", err)
	}
	if len(ops) != 4 || ops[0] != "issue" || ops[3] != "revoke" {
		t.Fatalf("unexpected observed ops: %v", ops)
	}
}

func TestRevokeAllAndPurge(t *testing.T) {
	svc, ledger, clock := newTestTokens(t)
	ctx := context.Background()
	var pairs []TokenPair
	for i := 0; i < 3; i++ {
		p, err := svc.IssuePair(ctx, Principal{ID: "u1", Role: RoleEmployee, Active: true})
		if err != nil {
			t.Fatalf("IssuePair: %v", err)
		}
		pairs = append(pairs, p)
	}
	other, err := svc.IssuePair(ctx, Principal{ID: "u2", Role: RoleEmployee, Active: true})
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	n, err := svc.RevokeAll(ctx, "u1")
	if err != nil || n != 3 {
		t.Fatalf("RevokeAll: n=%d err=%v", n, err)
	}
	for _, p := range pairs {
		if _, err := svc.Refresh(ctx, p.RefreshToken); !errors.Is(err, ErrTokenReused) {
			t.Fatalf("expected ErrTokenReused, got %v", err)
		}
	}
	if entry, _ := ledger.Entry(other.TokenID); entry.State != TokenActive {
		t.Fatalf("other user's session must survive: %+v", entry)
	}

	clock.Advance(25 * time.Hour)
	purged, err := svc.PurgeExpired(ctx)
	if err != nil || purged != 4 {
		t.Fatalf("PurgeExpired: n=%d err=%v", purged, err)
	}
}
