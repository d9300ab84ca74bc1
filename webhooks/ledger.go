package webhooks

import (
	"context"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-kick/core"
)

const defaultLedgerTTL = 10 * time.Minute
const defaultLedgerMaxEntries = 8192

// DeliveryLedger records message ids that have been dispatched. Claim
// returns false when messageID was already claimed within ttl.
type DeliveryLedger interface {
	Claim(ctx context.Context, messageID string, ttl time.Duration) (bool, error)
}

// DeliveryCompleter is implemented by ledgers that track delivery state past
// the initial claim.
type DeliveryCompleter interface {
	Complete(ctx context.Context, messageID string) error
}

// MemoryDeliveryLedger is a process-local DeliveryLedger bounded to
// maxEntries; the entry closest to expiry is evicted first.
type MemoryDeliveryLedger struct {
	mu         sync.Mutex
	defaultTTL time.Duration
	maxEntries int
	entries    map[string]time.Time
	Now        func() time.Time
}

func NewMemoryDeliveryLedger(defaultTTL time.Duration) *MemoryDeliveryLedger {
	return NewMemoryDeliveryLedgerWithLimits(defaultTTL, defaultLedgerMaxEntries)
}

func NewMemoryDeliveryLedgerWithLimits(defaultTTL time.Duration, maxEntries int) *MemoryDeliveryLedger {
	if defaultTTL <= 0 {
		defaultTTL = defaultLedgerTTL
	}
	if maxEntries <= 0 {
		maxEntries = defaultLedgerMaxEntries
	}
	return &MemoryDeliveryLedger{
		defaultTTL: defaultTTL,
		maxEntries: maxEntries,
		entries:    map[string]time.Time{},
	}
}

func (l *MemoryDeliveryLedger) Claim(_ context.Context, messageID string, ttl time.Duration) (bool, error) {
	if l == nil {
		return false, core.NewError(nil, "webhooks: delivery ledger is not configured", goerrors.CategoryInternal, core.KickErrorInternal, nil)
	}
	messageID = strings.TrimSpace(messageID)
	if messageID == "" {
		return false, core.NewError(nil, "webhooks: message id is required", goerrors.CategoryBadInput, core.KickErrorBadInput, nil)
	}
	if ttl <= 0 {
		ttl = l.defaultTTL
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if expiresAt, ok := l.entries[messageID]; ok && now.Before(expiresAt) {
		return false, nil
	}
	l.pruneLocked(now)
	for len(l.entries) >= l.maxEntries {
		l.evictSoonestLocked()
	}
	l.entries[messageID] = now.Add(ttl)
	return true, nil
}

// Len reports the number of live entries.
func (l *MemoryDeliveryLedger) Len() int {
	if l == nil {
		return 0
	}
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pruneLocked(now)
	return len(l.entries)
}

func (l *MemoryDeliveryLedger) now() time.Time {
	if l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}

func (l *MemoryDeliveryLedger) pruneLocked(now time.Time) {
	for key, expiresAt := range l.entries {
		if !now.Before(expiresAt) {
			delete(l.entries, key)
		}
	}
}

func (l *MemoryDeliveryLedger) evictSoonestLocked() {
	var soonestKey string
	var soonest time.Time
	for key, expiresAt := range l.entries {
		if soonestKey == "" || expiresAt.Before(soonest) {
			soonestKey = key
			soonest = expiresAt
		}
	}
	delete(l.entries, soonestKey)
}

var _ DeliveryLedger = (*MemoryDeliveryLedger)(nil)
