package ledger

import (
	"sort"
	"sync"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"rotor-api/pkg/broker"
)

// PendingSell tracks one in-flight sell order and the lots it provisionally
// reserves until the broker reports a terminal status.
type PendingSell struct {
	OrderID           string
	Symbol            string
	Direction         broker.Direction
	SubmittedQuantity int64
	FilledQuantity    int64
	Status            broker.OrderStatus
	RelatedLotIDs     []string
	SubmittedAt       time.Time
}

// SellableLots is the sized result of a sellable-inventory query.
type SellableLots struct {
	Lots          []Lot
	TotalQuantity int64
}

// PendingSellTracker reserves held lots against in-flight sells so two
// concurrent sell attempts can never claim the same lot.
type PendingSellTracker struct {
	mu     sync.Mutex
	ledger *LotLedger
	orders map[string]*PendingSell
	now    func() time.Time
}

// NewPendingSellTracker constructs a tracker over the given ledger.
func NewPendingSellTracker(l *LotLedger) *PendingSellTracker {
	return &PendingSellTracker{
		ledger: l,
		orders: make(map[string]*PendingSell),
		now:    time.Now,
	}
}

// WithClock overrides the time source. Test hook.
func (t *PendingSellTracker) WithClock(now func() time.Time) *PendingSellTracker {
	if now != nil {
		t.now = now
	}
	return t
}

// RegisterPendingSell starts tracking a submitted sell. Idempotent by order
// ID: re-registering an order already tracked leaves the first record intact.
func (t *PendingSellTracker) RegisterPendingSell(orderID, symbol string, direction broker.Direction, quantity int64, relatedLotIDs []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.orders[orderID]; exists {
		return
	}
	t.orders[orderID] = &PendingSell{
		OrderID:           orderID,
		Symbol:            symbol,
		Direction:         direction,
		SubmittedQuantity: quantity,
		Status:            broker.OrderStatusPending,
		RelatedLotIDs:     append([]string(nil), relatedLotIDs...),
		SubmittedAt:       t.now(),
	}
}

// MarkFilled removes tracking for a completed sell and returns the final
// record, or nil if the order was unknown (idempotent no-op).
func (t *PendingSellTracker) MarkFilled(orderID string) *PendingSell {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.orders[orderID]
	if !ok {
		return nil
	}
	delete(t.orders, orderID)
	rec.FilledQuantity = rec.SubmittedQuantity
	rec.Status = broker.OrderStatusFilled
	return rec
}

// MarkPartialFilled records execution progress. Once the filled quantity
// reaches the submitted quantity the order completes and tracking stops.
func (t *PendingSellTracker) MarkPartialFilled(orderID string, filledQuantity int64) *PendingSell {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.orders[orderID]
	if !ok {
		return nil
	}
	if filledQuantity > rec.FilledQuantity {
		rec.FilledQuantity = filledQuantity
	}
	if rec.FilledQuantity >= rec.SubmittedQuantity {
		delete(t.orders, orderID)
		rec.Status = broker.OrderStatusFilled
		return rec
	}
	rec.Status = broker.OrderStatusPartial
	return rec
}

// MarkCancelled drops tracking for a cancelled sell, releasing every lot it
// reserved. Idempotent no-op for unknown orders.
func (t *PendingSellTracker) MarkCancelled(orderID string) *PendingSell {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.orders[orderID]
	if !ok {
		return nil
	}
	delete(t.orders, orderID)
	rec.Status = broker.OrderStatusCancelled
	return rec
}

// Active returns the in-flight sells for one bucket.
func (t *PendingSellTracker) Active(symbol string, direction broker.Direction) []PendingSell {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []PendingSell
	for _, rec := range t.orders {
		if rec.Symbol == symbol && rec.Direction == direction {
			out = append(out, *rec)
		}
	}
	return out
}

// ReservedQuantity sums the held-lot quantity currently reserved by active
// sells for one bucket.
func (t *PendingSellTracker) ReservedQuantity(symbol string, direction broker.Direction) int64 {
	reserved := t.reservedLotIDs(symbol, direction)
	var total int64
	for _, lot := range t.ledger.HeldLots(symbol, direction) {
		if _, ok := reserved[lot.OrderID]; ok {
			total += lot.Quantity
		}
	}
	return total
}

func (t *PendingSellTracker) reservedLotIDs(symbol string, direction broker.Direction) map[string]struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]struct{})
	for _, rec := range t.orders {
		if rec.Symbol != symbol || rec.Direction != direction {
			continue
		}
		for _, id := range rec.RelatedLotIDs {
			out[id] = struct{}{}
		}
	}
	return out
}

// GetSellableLots computes the profitable, unreserved held lots for a bucket
// at the current price. A positive maxQuantity caps the result: cheaper lots
// take priority and expensive lots are shed first, whole lots only, so the
// most expensive inventory is sold last.
func (t *PendingSellTracker) GetSellableLots(symbol string, direction broker.Direction, currentPrice float64, maxQuantity int64) SellableLots {
	if currentPrice <= 0 {
		logx.Errorf("ledger: sellable query for %s/%s with non-positive price %.4f", symbol, direction, currentPrice)
		return SellableLots{}
	}
	held := t.ledger.HeldLots(symbol, direction)
	reserved := t.reservedLotIDs(symbol, direction)

	var candidates []Lot
	for _, lot := range held {
		if lot.Price >= currentPrice {
			continue // not profitable at this price
		}
		if _, ok := reserved[lot.OrderID]; ok {
			continue
		}
		candidates = append(candidates, lot)
	}

	total := TotalQuantity(candidates)
	if maxQuantity <= 0 || total <= maxQuantity {
		return SellableLots{Lots: candidates, TotalQuantity: total}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Price < candidates[j].Price
	})
	var kept []Lot
	var keptQty int64
	for _, lot := range candidates {
		if keptQty+lot.Quantity > maxQuantity {
			continue
		}
		kept = append(kept, lot)
		keptQty += lot.Quantity
	}
	return SellableLots{Lots: kept, TotalQuantity: keptQty}
}

// Reset drops all tracked orders. Test isolation hook.
func (t *PendingSellTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.orders = make(map[string]*PendingSell)
}
