package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var t0 = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

func buyAt(id string, minute int, price float64, qty int64) Lot {
	return Lot{
		OrderID:    id,
		Symbol:     "61999",
		Price:      price,
		Quantity:   qty,
		ExecutedAt: t0.Add(time.Duration(minute) * time.Minute),
	}
}

func sellAt(id string, minute int, price float64, qty int64) SellRecord {
	return SellRecord{
		OrderID:    id,
		Symbol:     "61999",
		Price:      price,
		Quantity:   qty,
		ExecutedAt: t0.Add(time.Duration(minute) * time.Minute),
	}
}

func lotIDs(lots []Lot) []string {
	ids := make([]string, 0, len(lots))
	for _, lot := range lots {
		ids = append(ids, lot.OrderID)
	}
	return ids
}

func TestMatchHeldLots_NoSellsReturnsAllBuys(t *testing.T) {
	buys := []Lot{buyAt("b1", 1, 0.10, 100), buyAt("b2", 2, 0.12, 100)}
	held := MatchHeldLots(buys, nil)
	assert.Equal(t, buys, held, "with no sells every buy is held")
}

func TestMatchHeldLots_FullLiquidation(t *testing.T) {
	buys := []Lot{buyAt("b1", 1, 0.10, 100)}
	sells := []SellRecord{sellAt("s1", 2, 0.09, 100)}
	assert.Empty(t, MatchHeldLots(buys, sells), "a covering sell clears the lot")
}

func TestMatchHeldLots_PricePriorityPartial(t *testing.T) {
	buys := []Lot{buyAt("b1", 1, 0.10, 100), buyAt("b2", 2, 0.12, 100)}
	sells := []SellRecord{sellAt("s1", 3, 0.11, 100)}
	held := MatchHeldLots(buys, sells)
	assert.Equal(t, []string{"b2"}, lotIDs(held), "the lot priced below the sell goes first, the pricier lot survives")
}

func TestMatchHeldLots_ExactClearRetainsIntervalLots(t *testing.T) {
	buys := []Lot{
		buyAt("b1", 1, 0.10, 100),
		buyAt("b2", 3, 0.15, 200), // lands between the two sells
		buyAt("b3", 4, 0.05, 50),  // absorbs the second sell
	}
	sells := []SellRecord{
		sellAt("s1", 2, 0.11, 100), // exactly covers b1
		sellAt("s2", 5, 0.10, 50),  // clears b3, leaves b2 whole
	}
	held := MatchHeldLots(buys, sells)
	assert.Equal(t, []string{"b2"}, lotIDs(held), "exact clear removes b1; the interval lot rides through the second sell")
}

func TestMatchHeldLots_IntervalLotsComeFromOriginalCandidates(t *testing.T) {
	// b2 is never part of s1's working subset; even though s1 wipes the
	// subset, b2 must re-enter consideration for s2 from the original list.
	buys := []Lot{
		buyAt("b1", 1, 0.10, 100),
		buyAt("b2", 4, 0.20, 300),
		buyAt("b3", 5, 0.02, 100),
	}
	sells := []SellRecord{
		sellAt("s1", 2, 0.09, 500), // over-covers b1
		sellAt("s2", 6, 0.05, 100), // consumes the cheap b3
	}
	held := MatchHeldLots(buys, sells)
	assert.Equal(t, []string{"b2"}, lotIDs(held), "interval lot re-enters the walk from the original candidate set and survives")
}

func TestMatchHeldLots_PartialSellNeverSplitsALot(t *testing.T) {
	// A sell that partially consumes a single lot cannot split it; the
	// whole-lot rule sheds the entire lot so held inventory is never
	// overstated.
	buys := []Lot{buyAt("b1", 1, 0.10, 200)}
	sells := []SellRecord{sellAt("s1", 2, 0.08, 50)}
	assert.Empty(t, MatchHeldLots(buys, sells), "a partially consumed lot is dropped rather than split")
}

func TestMatchHeldLots_TailLotsAfterLastSellAlwaysHeld(t *testing.T) {
	buys := []Lot{
		buyAt("b1", 1, 0.10, 100),
		buyAt("b2", 10, 0.02, 100), // strictly after the last sell
	}
	sells := []SellRecord{sellAt("s1", 2, 0.50, 1000)}
	held := MatchHeldLots(buys, sells)
	assert.Equal(t, []string{"b2"}, lotIDs(held), "lots executed after the last sell are retained unconditionally")
}

func TestMatchHeldLots_WholeLotTrimLowestPriceFirst(t *testing.T) {
	buys := []Lot{
		buyAt("b1", 1, 0.12, 100),
		buyAt("b2", 2, 0.14, 100),
		buyAt("b3", 3, 0.16, 100),
	}
	// All three survive the price filter (all >= 0.11); 100 units sold means
	// only 200 may remain, so the cheapest whole lot is shed.
	sells := []SellRecord{sellAt("s1", 4, 0.11, 100)}
	held := MatchHeldLots(buys, sells)
	assert.Equal(t, []string{"b2", "b3"}, lotIDs(held), "the lowest-priced retained lot is trimmed first")
	assert.Equal(t, int64(200), TotalQuantity(held), "surviving quantity matches subtotal minus sold")
}

func TestMatchHeldLots_SameTimestampSellsKeepInputOrder(t *testing.T) {
	buys := []Lot{buyAt("b1", 1, 0.10, 100), buyAt("b2", 2, 0.20, 100)}
	sells := []SellRecord{
		sellAt("s1", 5, 0.15, 100),
		sellAt("s2", 5, 0.05, 100),
	}
	// s1 removes b1 (below 0.15) leaving b2; s2 at 0.05 sees subtotal 100,
	// cannot cover... sell 100 >= subtotal 100, full clear.
	held := MatchHeldLots(buys, sells)
	assert.Empty(t, held, "tied sells are replayed in input order")
}
