package auth

import (
	"context"
	"strings"
	"sync"
	"time"
)

var _ Ledger = (*MemoryLedger)(nil)

// MemoryLedger is a process-local Ledger. It is suitable for tests and for
// single-instance development; production deployments use a shared store.
type MemoryLedger struct {
	mu      sync.Mutex
	entries map[string]LedgerEntry
}

// NewMemoryLedger creates an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{entries: make(map[string]LedgerEntry)}
}

func (l *MemoryLedger) Record(_ context.Context, entry LedgerEntry) error {
	if strings.TrimSpace(entry.TokenID) == "" {
		return ErrInvalidInput
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.entries[entry.TokenID]; ok {
		return ErrConflict
	}
	if entry.State == "" {
		entry.State = TokenActive
	}
	l.entries[entry.TokenID] = entry
	return nil
}

func (l *MemoryLedger) Consume(_ context.Context, tokenID string, to TokenState, at time.Time) (LedgerEntry, error) {
	if to != TokenRotated && to != TokenRevoked {
		return LedgerEntry{}, ErrInvalidInput
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.entries[tokenID]
	if !ok {
		return LedgerEntry{}, ErrNotFound
	}
	if entry.State != TokenActive {
		return entry, ErrTokenReused
	}
	if entry.Expired(at) {
		return entry, ErrTokenExpired
	}
	entry.State = to
	consumed := at
	entry.ConsumedAt = &consumed
	l.entries[tokenID] = entry
	return entry, nil
}

func (l *MemoryLedger) Revoke(_ context.Context, entry LedgerEntry, at time.Time) error {
	if strings.TrimSpace(entry.TokenID) == "" {
		return ErrInvalidInput
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	existing, ok := l.entries[entry.TokenID]
	if ok {
		if existing.State != TokenActive {
			return nil
		}
		entry = existing
	}
	entry.State = TokenRevoked
	consumed := at
	entry.ConsumedAt = &consumed
	l.entries[entry.TokenID] = entry
	return nil
}

func (l *MemoryLedger) RevokeAllForUser(_ context.Context, userID string, at time.Time) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for id, entry := range l.entries {
		if entry.UserID != userID || entry.State != TokenActive {
			continue
		}
		entry.State = TokenRevoked
		consumed := at
		entry.ConsumedAt = &consumed
		l.entries[id] = entry
		n++
	}
	return n, nil
}

func (l *MemoryLedger) Purge(_ context.Context, before time.Time) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for id, entry := range l.entries {
		if entry.Expired(before) {
			delete(l.entries, id)
			n++
		}
	}
	return n, nil
}

// Entry returns a copy of the entry for tokenID.
func (l *MemoryLedger) Entry(tokenID string) (LedgerEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[tokenID]
	return e, ok
}
