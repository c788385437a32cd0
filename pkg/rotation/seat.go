// Package rotation binds trading roles to concrete instruments and drives the
// multi-stage migration that retires one instrument and installs the next.
package rotation

import (
	"sync"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"rotor-api/pkg/broker"
)

// SeatStatus is a seat's lifecycle state.
type SeatStatus string

const (
	// SeatEmpty means no instrument is bound.
	SeatEmpty SeatStatus = "empty"
	// SeatSwitching means a rotation is migrating the seat.
	SeatSwitching SeatStatus = "switching"
	// SeatReady means the bound instrument is tradeable.
	SeatReady SeatStatus = "ready"
)

// Seat is the authoritative binding between a trading role for one monitored
// underlying and a concrete instrument. Version increments exactly once per
// rotation start and is the sole staleness token for in-flight switch states.
type Seat struct {
	MonitorSymbol string
	Direction     broker.Direction
	Symbol        string
	Status        SeatStatus
	Version       int64
	CallPrice     float64

	LastSwitchAt    time.Time
	LastSearchAt    time.Time
	LastSeatReadyAt time.Time

	SearchFailCountToday int
	SearchFailDay        string // day key the failure counter belongs to
	FrozenTradingDay     string // day key the seat is frozen for, empty if not
}

// SeatRegistry owns the two seats of one monitored underlying. All mutation
// goes through its methods; callers only ever see copies.
type SeatRegistry struct {
	mu    sync.Mutex
	seats map[broker.Direction]*Seat
}

// NewSeatRegistry creates both seats EMPTY for the monitor symbol.
func NewSeatRegistry(monitorSymbol string) *SeatRegistry {
	r := &SeatRegistry{seats: make(map[broker.Direction]*Seat)}
	for _, d := range []broker.Direction{broker.DirectionLong, broker.DirectionShort} {
		r.seats[d] = &Seat{MonitorSymbol: monitorSymbol, Direction: d, Status: SeatEmpty}
	}
	return r
}

// Seat returns a copy of the seat for the direction.
func (r *SeatRegistry) Seat(direction broker.Direction) Seat {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.seats[direction]
}

// SeatVersion returns the current version counter for the direction.
func (r *SeatRegistry) SeatVersion(direction broker.Direction) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seats[direction].Version
}

// ClearSeat starts a rotation: it bumps the version, flips the seat to
// SWITCHING and returns the new version together with the previously bound
// symbol. The returned version is the staleness token a SwitchState must
// carry to stay live.
func (r *SeatRegistry) ClearSeat(direction broker.Direction, reason string) (version int64, prevSymbol string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seat := r.seats[direction]
	seat.Version++
	prevSymbol = seat.Symbol
	seat.Status = SeatSwitching
	logx.Infof("rotation: seat %s/%s cleared (v%d, was %q): %s",
		seat.MonitorSymbol, direction, seat.Version, prevSymbol, reason)
	return seat.Version, prevSymbol
}

// UpdateSeat applies fn to the seat under the registry lock.
func (r *SeatRegistry) UpdateSeat(direction broker.Direction, fn func(*Seat)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r.seats[direction])
}

// RecordSearchFailure bumps the day-scoped search-failure counter, starting a
// fresh count when the trading day rolled over, and freezes the seat for the
// day once the counter reaches maxPerDay. Returns the count and whether the
// seat is now frozen.
func (r *SeatRegistry) RecordSearchFailure(direction broker.Direction, dayKey string, maxPerDay int) (count int, frozen bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seat := r.seats[direction]
	if seat.SearchFailDay != dayKey {
		seat.SearchFailDay = dayKey
		seat.SearchFailCountToday = 0
	}
	seat.SearchFailCountToday++
	if maxPerDay > 0 && seat.SearchFailCountToday >= maxPerDay {
		seat.FrozenTradingDay = dayKey
		logx.Errorf("rotation: seat %s/%s frozen for %s after %d failed searches",
			seat.MonitorSymbol, direction, dayKey, seat.SearchFailCountToday)
	}
	return seat.SearchFailCountToday, seat.FrozenTradingDay == dayKey
}

// ResetSearchFailures zeroes the failure bookkeeping; called when a rotation
// failed after a candidate had been found, so the search path itself is fine.
func (r *SeatRegistry) ResetSearchFailures(direction broker.Direction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seat := r.seats[direction]
	seat.SearchFailCountToday = 0
	seat.SearchFailDay = ""
}

// FrozenFor reports whether the seat is frozen for the given trading day.
func (r *SeatRegistry) FrozenFor(direction broker.Direction, dayKey string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seats[direction].FrozenTradingDay == dayKey
}

// Reset restores both seats to their startup EMPTY state. Test isolation
// hook.
func (r *SeatRegistry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for d, seat := range r.seats {
		r.seats[d] = &Seat{MonitorSymbol: seat.MonitorSymbol, Direction: d, Status: SeatEmpty}
	}
}
