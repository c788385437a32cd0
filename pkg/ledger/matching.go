package ledger

import "sort"

// MatchHeldLots reconciles all buy lots against all realized sells for one
// (symbol, direction) bucket and returns the subset of buys still held.
//
// Sells must be pre-sorted ascending by execution time; two sells sharing a
// timestamp keep their input order. The walk partitions buys into lots
// executed strictly after the last sell (unconditionally retained) and
// earlier candidates, then replays sells oldest to newest over a working set:
// a sell large enough to cover the working subset clears it outright,
// otherwise lots priced below the sell price go first and the remainder is
// trimmed lowest-price-first, whole lots only, down to the surviving
// quantity. Lots executed between two sells join the working set from the
// original candidate list, so a lot never inspected cannot be dropped.
func MatchHeldLots(buys []Lot, sells []SellRecord) []Lot {
	if len(buys) == 0 {
		return nil
	}
	if len(sells) == 0 {
		return append([]Lot(nil), buys...)
	}

	lastSellAt := sells[len(sells)-1].ExecutedAt
	var candidates []Lot
	for _, lot := range buys {
		if lot.ExecutedAt.After(lastSellAt) {
			continue // retained unconditionally, re-collected at the end
		}
		candidates = append(candidates, lot)
	}

	current := lotsBefore(candidates, sells[0])
	for i, sell := range sells {
		var subset, rest []Lot
		for _, lot := range current {
			if lot.ExecutedAt.Before(sell.ExecutedAt) {
				subset = append(subset, lot)
			} else {
				rest = append(rest, lot)
			}
		}
		current = append(rest, applySell(subset, sell)...)
		if i+1 < len(sells) {
			current = append(current, lotsBetween(candidates, sell, sells[i+1])...)
		}
	}

	held := make(map[string]struct{}, len(current))
	for _, lot := range current {
		held[lot.OrderID] = struct{}{}
	}
	var out []Lot
	for _, lot := range buys {
		if lot.ExecutedAt.After(lastSellAt) {
			out = append(out, lot)
			continue
		}
		if _, ok := held[lot.OrderID]; ok {
			out = append(out, lot)
		}
	}
	return out
}

// applySell filters the working subset through one sell execution.
func applySell(subset []Lot, sell SellRecord) []Lot {
	subtotal := TotalQuantity(subset)
	if subtotal == 0 {
		return nil
	}
	if sell.Quantity >= subtotal {
		// Full clear up to this sell.
		return nil
	}

	// Lots priced below the sell price are the loss-makers sold first.
	var retained []Lot
	for _, lot := range subset {
		if lot.Price >= sell.Price {
			retained = append(retained, lot)
		}
	}

	target := subtotal - sell.Quantity
	excess := TotalQuantity(retained) - target
	if excess <= 0 {
		return retained
	}

	// Still over the surviving quantity: shed lowest-priced lots, whole lots
	// only, until the retained set no longer exceeds the target.
	order := make([]int, len(retained))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return retained[order[a]].Price < retained[order[b]].Price
	})
	dropped := make(map[int]struct{})
	for _, idx := range order {
		if excess <= 0 {
			break
		}
		dropped[idx] = struct{}{}
		excess -= retained[idx].Quantity
	}
	out := retained[:0:0]
	for i, lot := range retained {
		if _, ok := dropped[i]; !ok {
			out = append(out, lot)
		}
	}
	return out
}

func lotsBefore(candidates []Lot, sell SellRecord) []Lot {
	var out []Lot
	for _, lot := range candidates {
		if lot.ExecutedAt.Before(sell.ExecutedAt) {
			out = append(out, lot)
		}
	}
	return out
}

// lotsBetween selects candidates strictly inside the (prev, next) window.
func lotsBetween(candidates []Lot, prev, next SellRecord) []Lot {
	var out []Lot
	for _, lot := range candidates {
		if lot.ExecutedAt.After(prev.ExecutedAt) && lot.ExecutedAt.Before(next.ExecutedAt) {
			out = append(out, lot)
		}
	}
	return out
}
