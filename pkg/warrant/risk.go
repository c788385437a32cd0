package warrant

import (
	"sync"

	"rotor-api/pkg/broker"
)

// StrikeDistance is an in-memory RiskChecker fed from seat bindings: each
// bound instrument registers its call price and direction, and distance is
// recomputed from the live underlying price on every query.
type StrikeDistance struct {
	mu      sync.RWMutex
	entries map[string]strikeEntry
}

type strikeEntry struct {
	direction broker.Direction
	callPrice float64
}

// NewStrikeDistance constructs an empty checker.
func NewStrikeDistance() *StrikeDistance {
	return &StrikeDistance{entries: make(map[string]strikeEntry)}
}

// Register records or refreshes the call price for a symbol. Non-positive
// call prices unregister the symbol.
func (s *StrikeDistance) Register(symbol string, direction broker.Direction, callPrice float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if callPrice <= 0 {
		delete(s.entries, symbol)
		return
	}
	s.entries[symbol] = strikeEntry{direction: direction, callPrice: callPrice}
}

// Unregister forgets a symbol entirely.
func (s *StrikeDistance) Unregister(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, symbol)
}

// DistanceToStrike implements RiskChecker. For a long instrument the call
// price sits below the underlying, for a short one above; either way the
// distance is the gap as a percentage of the underlying price. Negative
// values mean the knock-out level has been crossed.
func (s *StrikeDistance) DistanceToStrike(symbol string, currentPrice float64) *float64 {
	if currentPrice <= 0 {
		return nil
	}
	s.mu.RLock()
	entry, ok := s.entries[symbol]
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	var pct float64
	switch entry.direction {
	case broker.DirectionLong:
		pct = (currentPrice - entry.callPrice) / currentPrice * 100
	case broker.DirectionShort:
		pct = (entry.callPrice - currentPrice) / currentPrice * 100
	default:
		return nil
	}
	return &pct
}
