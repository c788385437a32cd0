package rotation

import (
	"context"
	"sync"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"rotor-api/pkg/broker"
	"rotor-api/pkg/tradingday"
)

// DayStore mirrors day-scoped suppressions to an external store so a restart
// inside the same trading day does not forget them. Implementations live in
// internal/cache.
type DayStore interface {
	SaveSuppression(ctx context.Context, dayKey string, direction broker.Direction, symbol string) error
	RemoveSuppression(ctx context.Context, dayKey string, direction broker.Direction, symbol string) error
	ListSuppressions(ctx context.Context, dayKey string, direction broker.Direction) ([]string, error)
}

type suppressKey struct {
	direction broker.Direction
	symbol    string
}

// SuppressionCache records "do not re-pick this instrument for this direction
// today". Entries expire implicitly when the exchange-local date rolls over.
type SuppressionCache struct {
	mu      sync.Mutex
	cal     *tradingday.Calendar
	entries map[suppressKey]string // -> day key the entry was created on
	store   DayStore               // optional write-through mirror
}

// NewSuppressionCache constructs a cache; store may be nil.
func NewSuppressionCache(cal *tradingday.Calendar, store DayStore) *SuppressionCache {
	return &SuppressionCache{
		cal:     cal,
		entries: make(map[suppressKey]string),
		store:   store,
	}
}

// WarmLoad pulls today's suppressions from the mirror, if one is configured.
func (c *SuppressionCache) WarmLoad(ctx context.Context, now time.Time) {
	if c.store == nil {
		return
	}
	dayKey := c.cal.DayKey(now)
	for _, d := range []broker.Direction{broker.DirectionLong, broker.DirectionShort} {
		symbols, err := c.store.ListSuppressions(ctx, dayKey, d)
		if err != nil {
			logx.Errorf("rotation: suppression warm load for %s failed: %v", d, err)
			continue
		}
		c.mu.Lock()
		for _, sym := range symbols {
			c.entries[suppressKey{direction: d, symbol: sym}] = dayKey
		}
		c.mu.Unlock()
	}
}

// Suppress marks the symbol untouchable for the direction for the rest of
// now's trading day.
func (c *SuppressionCache) Suppress(ctx context.Context, direction broker.Direction, symbol string, now time.Time) {
	dayKey := c.cal.DayKey(now)
	c.mu.Lock()
	c.entries[suppressKey{direction: direction, symbol: symbol}] = dayKey
	c.mu.Unlock()
	logx.Infof("rotation: suppressing %s/%s for %s", symbol, direction, dayKey)
	if c.store != nil {
		if err := c.store.SaveSuppression(ctx, dayKey, direction, symbol); err != nil {
			logx.Errorf("rotation: suppression mirror save failed: %v", err)
		}
	}
}

// IsSuppressed reports whether the symbol is suppressed for now's trading
// day. A stale entry from a previous day is discarded on sight.
func (c *SuppressionCache) IsSuppressed(direction broker.Direction, symbol string, now time.Time) bool {
	dayKey := c.cal.DayKey(now)
	k := suppressKey{direction: direction, symbol: symbol}
	c.mu.Lock()
	defer c.mu.Unlock()
	entryDay, ok := c.entries[k]
	if !ok {
		return false
	}
	if entryDay != dayKey {
		delete(c.entries, k)
		return false
	}
	return true
}

// Resolve lifts a suppression before its day expires.
func (c *SuppressionCache) Resolve(ctx context.Context, direction broker.Direction, symbol string) {
	k := suppressKey{direction: direction, symbol: symbol}
	c.mu.Lock()
	entryDay, ok := c.entries[k]
	delete(c.entries, k)
	c.mu.Unlock()
	if !ok {
		return
	}
	if c.store != nil {
		if err := c.store.RemoveSuppression(ctx, entryDay, direction, symbol); err != nil {
			logx.Errorf("rotation: suppression mirror remove failed: %v", err)
		}
	}
}

// Reset clears all in-memory entries. Test isolation hook; the mirror is left
// alone.
func (c *SuppressionCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[suppressKey]string)
}
