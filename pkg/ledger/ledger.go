package ledger

import (
	"sort"
	"sync"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"rotor-api/pkg/broker"
)

type bucketKey struct {
	symbol    string
	direction broker.Direction
}

type bucket struct {
	buys    []Lot
	sells   []SellRecord
	buyIDs  map[string]struct{}
	sellIDs map[string]struct{}
}

func newBucket() *bucket {
	return &bucket{
		buyIDs:  make(map[string]struct{}),
		sellIDs: make(map[string]struct{}),
	}
}

// LotLedger is the per-(symbol, direction) source of truth for raw fills.
// Buys and sells are append-only and deduplicated by execution id, falling
// back to the order id for single-print brokers; the held view is always
// recomputed from the full history, never edited in place.
type LotLedger struct {
	mu      sync.Mutex
	buckets map[bucketKey]*bucket
}

// fillKey is the idempotency key for one print. Orders that fill across
// several prints need distinct ExecIDs or later prints are indistinguishable
// from replays.
func fillKey(execID, orderID string) string {
	if execID != "" {
		return execID
	}
	return orderID
}

// NewLotLedger constructs an empty ledger.
func NewLotLedger() *LotLedger {
	return &LotLedger{buckets: make(map[bucketKey]*bucket)}
}

func (l *LotLedger) bucket(symbol string, direction broker.Direction) *bucket {
	k := bucketKey{symbol: symbol, direction: direction}
	b, ok := l.buckets[k]
	if !ok {
		b = newBucket()
		l.buckets[k] = b
	}
	return b
}

// AppendBuy records a buy fill as a new lot. Idempotent per print; reports
// whether the lot was newly recorded.
func (l *LotLedger) AppendBuy(direction broker.Direction, lot Lot) bool {
	if lot.Quantity <= 0 {
		logx.Errorf("ledger: dropping buy %s with non-positive quantity %d", lot.OrderID, lot.Quantity)
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	b := l.bucket(lot.Symbol, direction)
	key := fillKey(lot.ExecID, lot.OrderID)
	if _, seen := b.buyIDs[key]; seen {
		return false
	}
	b.buyIDs[key] = struct{}{}
	b.buys = append(b.buys, lot)
	return true
}

// AppendSell records a realized sell execution. Idempotent per print; reports
// whether the record was newly recorded so callers tracking cumulative
// progress can ignore replays.
func (l *LotLedger) AppendSell(direction broker.Direction, sell SellRecord) bool {
	if sell.Quantity <= 0 {
		logx.Errorf("ledger: dropping sell %s with non-positive quantity %d", sell.OrderID, sell.Quantity)
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	b := l.bucket(sell.Symbol, direction)
	key := fillKey(sell.ExecID, sell.OrderID)
	if _, seen := b.sellIDs[key]; seen {
		return false
	}
	b.sellIDs[key] = struct{}{}
	b.sells = append(b.sells, sell)
	return true
}

// BuyLots returns a copy of all buy lots for the bucket, in fill order.
func (l *LotLedger) BuyLots(symbol string, direction broker.Direction) []Lot {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[bucketKey{symbol: symbol, direction: direction}]
	if !ok {
		return nil
	}
	return append([]Lot(nil), b.buys...)
}

// Sells returns the realized sells for the bucket sorted ascending by
// execution time, ties keeping append order, as the matching engine requires.
func (l *LotLedger) Sells(symbol string, direction broker.Direction) []SellRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[bucketKey{symbol: symbol, direction: direction}]
	if !ok {
		return nil
	}
	out := append([]SellRecord(nil), b.sells...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ExecutedAt.Before(out[j].ExecutedAt)
	})
	return out
}

// HeldLots recomputes and returns the lots still held for the bucket.
func (l *LotLedger) HeldLots(symbol string, direction broker.Direction) []Lot {
	return MatchHeldLots(l.BuyLots(symbol, direction), l.Sells(symbol, direction))
}

// Clear drops the whole bucket. Only the protective-liquidation path uses
// this; a normal sell leaves history in place and lets recomputation shrink
// the held view.
func (l *LotLedger) Clear(symbol string, direction broker.Direction) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, bucketKey{symbol: symbol, direction: direction})
}

// Reset wipes every bucket. Test isolation hook.
func (l *LotLedger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buckets = make(map[bucketKey]*bucket)
}

// LatestSellSince returns the most recent sell for the bucket whose execution
// time is not before cutoff, or nil. The rotation engine uses it to capture
// the realized notional of a liquidation that happened during a rotation.
func (l *LotLedger) LatestSellSince(symbol string, direction broker.Direction, cutoff time.Time) *SellRecord {
	sells := l.Sells(symbol, direction)
	for i := len(sells) - 1; i >= 0; i-- {
		if !sells[i].ExecutedAt.Before(cutoff) {
			out := sells[i]
			return &out
		}
	}
	return nil
}
