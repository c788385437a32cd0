package rotation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zeromicro/go-zero/core/logx"

	"rotor-api/pkg/broker"
	"rotor-api/pkg/ledger"
	"rotor-api/pkg/tradingday"
	"rotor-api/pkg/warrant"
)

// RotationEndHook observes every terminal rotation, live seat state included.
// Used for journal wiring; must not block.
type RotationEndHook func(st SwitchState, seat Seat)

// SeatReadyHook observes a seat becoming READY with its cached call price.
type SeatReadyHook func(direction broker.Direction, symbol string, callPrice float64)

// MachineDeps collects the collaborators a Machine needs.
type MachineDeps struct {
	Registry     *SeatRegistry
	Suppressions *SuppressionCache
	Ledger       *ledger.LotLedger
	Pending      *ledger.PendingSellTracker
	Trader       broker.Trader
	Finder       warrant.Finder
	Risk         warrant.RiskChecker
	Calendar     *tradingday.Calendar
	Clock        tradingday.Clock

	// Optional observers.
	OnRotationEnd RotationEndHook
	OnSeatReady   SeatReadyHook
}

// Machine drives seats through the cancel → liquidate → rebind → wait-quote →
// repurchase migration. A single external trigger call advances at most one
// stage chain per direction; callers must await each entry point before
// dispatching another call for the same direction.
type Machine struct {
	cfg  *Config
	deps MachineDeps

	mu              sync.Mutex
	states          map[broker.Direction]*SwitchState
	pendingPeriodic map[broker.Direction]bool
}

// NewMachine validates dependencies and constructs a Machine.
func NewMachine(cfg *Config, deps MachineDeps) (*Machine, error) {
	if cfg == nil {
		return nil, errors.New("rotation: config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch {
	case deps.Registry == nil:
		return nil, errors.New("rotation: seat registry is required")
	case deps.Suppressions == nil:
		return nil, errors.New("rotation: suppression cache is required")
	case deps.Ledger == nil || deps.Pending == nil:
		return nil, errors.New("rotation: ledger and pending tracker are required")
	case deps.Trader == nil:
		return nil, errors.New("rotation: trader is required")
	case deps.Finder == nil:
		return nil, errors.New("rotation: warrant finder is required")
	case deps.Risk == nil:
		return nil, errors.New("rotation: risk checker is required")
	case deps.Calendar == nil:
		return nil, errors.New("rotation: calendar is required")
	}
	if deps.Clock == nil {
		deps.Clock = tradingday.SystemClock{}
	}
	return &Machine{
		cfg:             cfg,
		deps:            deps,
		states:          make(map[broker.Direction]*SwitchState),
		pendingPeriodic: make(map[broker.Direction]bool),
	}, nil
}

// tick is the live market view one trigger call carries.
type tick struct {
	now       time.Time
	quotes    map[string]broker.Quote
	positions map[string]broker.Position
}

// HasPendingSwitch reports whether a live SwitchState exists for the
// direction. A state whose seat version, status or symbol no longer matches
// is stale, typically after an external seat reset, and is discarded on
// sight, freeing the direction for a new trigger.
func (m *Machine) HasPendingSwitch(direction broker.Direction) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[direction]
	if !ok {
		return false
	}
	seat := m.deps.Registry.Seat(direction)
	if seat.Version != st.SeatVersion ||
		seat.Status != SeatSwitching ||
		(seat.Symbol != st.OldSymbol && seat.Symbol != st.NextSymbol) {
		logx.Errorf("rotation: discarding stale switch state %s (state v%d stage %s, seat v%d status %s symbol %q)",
			direction, st.SeatVersion, st.Stage, seat.Version, seat.Status, seat.Symbol)
		delete(m.states, direction)
		return false
	}
	return true
}

// SwitchStateSnapshot exposes a copy of the in-flight state, if any.
func (m *Machine) SwitchStateSnapshot(direction broker.Direction) *SwitchState {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[direction]
	if !ok {
		return nil
	}
	out := *st
	return &out
}

// Reset discards all in-flight states and periodic marks. Test isolation
// hook; seats are left to the registry's own Reset.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states = make(map[broker.Direction]*SwitchState)
	m.pendingPeriodic = make(map[broker.Direction]bool)
}

// MaybeSwitchOnDistance evaluates the distance trigger for a direction. When
// a rotation is already in flight the call pumps it forward instead, since
// the data a blocked stage needs (a position update, a quote) may only arrive
// on a later tick.
func (m *Machine) MaybeSwitchOnDistance(ctx context.Context, direction broker.Direction, monitorPrice float64, quotes map[string]broker.Quote, positions map[string]broker.Position) {
	if !direction.Valid() {
		return
	}
	tk := tick{now: m.deps.Clock.Now(), quotes: quotes, positions: positions}
	if m.HasPendingSwitch(direction) {
		m.pump(ctx, direction, tk)
		return
	}
	seat := m.deps.Registry.Seat(direction)
	if seat.Status != SeatReady || seat.Symbol == "" {
		return
	}
	if monitorPrice <= 0 {
		return
	}
	dist := m.deps.Risk.DistanceToStrike(seat.Symbol, monitorPrice)
	if dist == nil {
		return
	}
	if *dist >= m.cfg.MinDistancePct && *dist <= m.cfg.MaxDistancePct {
		return // inside the comfort band
	}
	logx.Infof("rotation: %s/%s distance %.2f%% outside [%.2f, %.2f], evaluating switch",
		seat.MonitorSymbol, direction, *dist, m.cfg.MinDistancePct, m.cfg.MaxDistancePct)

	cand, ok := m.findCandidate(ctx, direction, seat, tk.now)
	if !ok {
		return
	}
	reason := fmt.Sprintf("distance %.2f%% outside band", *dist)
	m.startRotation(ctx, direction, seat, cand, TriggerDistance, reason, tk)
}

// MaybeSwitchOnInterval evaluates the holding-window trigger. The window is
// measured in cumulative trading minutes since the seat last became READY.
// The trigger only takes effect once the seat's held quantity is zero; until
// then a pending-periodic mark keeps the trigger armed across calls.
func (m *Machine) MaybeSwitchOnInterval(ctx context.Context, direction broker.Direction, now time.Time, canTradeNow, openProtectionActive bool) {
	if !direction.Valid() {
		return
	}
	interval := m.cfg.HoldInterval()
	if interval <= 0 {
		return
	}
	if !canTradeNow || openProtectionActive {
		return
	}
	if m.HasPendingSwitch(direction) {
		return // distance ticks own the pumping
	}
	seat := m.deps.Registry.Seat(direction)
	if seat.Status != SeatReady || seat.Symbol == "" || seat.LastSeatReadyAt.IsZero() {
		return
	}
	if !m.periodicMarked(direction) {
		elapsed := m.deps.Calendar.TradingElapsed(seat.LastSeatReadyAt, now)
		if elapsed < interval {
			return
		}
	}
	held := ledger.TotalQuantity(m.deps.Ledger.HeldLots(seat.Symbol, direction))
	if held > 0 {
		if !m.periodicMarked(direction) {
			logx.Infof("rotation: %s/%s holding window elapsed but %d units still held, arming periodic mark",
				seat.MonitorSymbol, direction, held)
		}
		m.setPeriodicMark(direction, true)
		return
	}
	m.setPeriodicMark(direction, false)

	cand, ok := m.findCandidate(ctx, direction, seat, now)
	if !ok {
		return
	}
	m.startRotation(ctx, direction, seat, cand, TriggerPeriodic, "holding window elapsed", tick{now: now})
}

func (m *Machine) periodicMarked(direction broker.Direction) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pendingPeriodic[direction]
}

func (m *Machine) setPeriodicMark(direction broker.Direction, marked bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pendingPeriodic[direction] = marked
}

// findCandidate runs the pre-rotation search: day-freeze gate, screener
// query, same-symbol abort with day suppression, suppression gate.
func (m *Machine) findCandidate(ctx context.Context, direction broker.Direction, seat Seat, now time.Time) (*warrant.Candidate, bool) {
	dayKey := m.deps.Calendar.DayKey(now)
	if m.deps.Registry.FrozenFor(direction, dayKey) {
		return nil, false
	}
	m.deps.Registry.UpdateSeat(direction, func(s *Seat) { s.LastSearchAt = now })

	th := m.cfg.Long
	if direction == broker.DirectionShort {
		th = m.cfg.Short
	}
	cand, err := m.deps.Finder.FindBestCandidate(ctx, direction, th)
	if err != nil {
		logx.Errorf("rotation: candidate search for %s failed: %v", direction, err)
		cand = nil
	}
	if cand == nil {
		count, frozen := m.deps.Registry.RecordSearchFailure(direction, dayKey, m.cfg.MaxSearchFailuresPerDay)
		logx.Infof("rotation: no candidate for %s (failure %d, frozen=%v)", direction, count, frozen)
		return nil, false
	}
	if cand.Symbol == seat.Symbol {
		// No better instrument exists; stop retrying this one for the day.
		m.deps.Suppressions.Suppress(ctx, direction, cand.Symbol, now)
		logx.Infof("rotation: only candidate for %s is the bound %s, aborting and suppressing", direction, cand.Symbol)
		return nil, false
	}
	if m.deps.Suppressions.IsSuppressed(direction, cand.Symbol, now) {
		logx.Infof("rotation: candidate %s for %s is suppressed today, aborting", cand.Symbol, direction)
		return nil, false
	}
	return cand, true
}

// startRotation clears the seat, installs the SwitchState and pumps it once.
func (m *Machine) startRotation(ctx context.Context, direction broker.Direction, seat Seat, cand *warrant.Candidate, trigger Trigger, reason string, tk tick) {
	shouldRebuy := false
	if pos, ok := tk.positions[seat.Symbol]; ok && pos.Quantity > 0 {
		shouldRebuy = true
	}

	version, prevSymbol := m.deps.Registry.ClearSeat(direction, reason)
	st := &SwitchState{
		Direction:     direction,
		SeatVersion:   version,
		Stage:         StageCancelPending,
		Trigger:       trigger,
		OldSymbol:     prevSymbol,
		NextSymbol:    cand.Symbol,
		NextCallPrice: cand.CallPrice,
		NextLotSize:   cand.LotSize,
		StartedAt:     tk.now,
		ShouldRebuy:   shouldRebuy,
	}
	m.mu.Lock()
	m.states[direction] = st
	m.mu.Unlock()

	logx.Infof("rotation: %s/%s v%d started (%s): %s -> %s",
		seat.MonitorSymbol, direction, version, trigger, prevSymbol, cand.Symbol)
	m.pump(ctx, direction, tk)
}

// pump advances the in-flight state as far as the current tick allows.
func (m *Machine) pump(ctx context.Context, direction broker.Direction, tk tick) {
	for {
		m.mu.Lock()
		st := m.states[direction]
		m.mu.Unlock()
		if st == nil {
			return
		}
		progressed := m.advanceOnce(ctx, st, tk)
		if st.Stage.terminal() {
			m.finalize(ctx, direction, st)
			return
		}
		if !progressed {
			return
		}
	}
}

// advanceOnce executes one stage transition. It returns false when the stage
// must wait for data a later tick will carry.
func (m *Machine) advanceOnce(ctx context.Context, st *SwitchState, tk tick) bool {
	switch st.Stage {
	case StageCancelPending:
		return m.advanceCancelPending(ctx, st)
	case StageSellOut:
		return m.advanceSellOut(ctx, st, tk)
	case StageBindNew:
		return m.advanceBindNew(st)
	case StageWaitQuote:
		plan := decideWaitQuote(*st, quoteFor(tk, st.NextSymbol))
		st.AwaitingQuote = plan.awaitingQuote
		if plan.advance {
			st.NextLotSize = plan.lotSize
			st.Stage = StageRebuy
			return true
		}
		return false
	case StageRebuy:
		return m.advanceRebuy(ctx, st, tk)
	default:
		return false
	}
}

// advanceCancelPending cancels every open buy order for the old symbol. Any
// broker failure here is fatal to the rotation.
func (m *Machine) advanceCancelPending(ctx context.Context, st *SwitchState) bool {
	orders, err := m.deps.Trader.PendingOrders(ctx, []string{st.OldSymbol})
	if err != nil {
		m.failStage(st, fmt.Sprintf("query pending orders: %v", err))
		return true
	}
	for _, order := range orders {
		if order.Side != broker.OrderSideBuy || order.Status.Terminal() {
			continue
		}
		if _, err := m.deps.Trader.CancelOrder(ctx, order.OrderID); err != nil {
			m.failStage(st, fmt.Sprintf("cancel buy %s: %v", order.OrderID, err))
			return true
		}
		st.CancelledOrderIDs = append(st.CancelledOrderIDs, order.OrderID)
		logx.Infof("rotation: cancelled open buy %s for %s", order.OrderID, st.OldSymbol)
	}
	if st.Trigger == TriggerPeriodic {
		st.Stage = StageBindNew // periodic rotations start flat
	} else {
		st.Stage = StageSellOut
	}
	return true
}

// advanceSellOut liquidates the old position. Broker failures here are
// logged and the rotation proceeds best-effort on later ticks.
func (m *Machine) advanceSellOut(ctx context.Context, st *SwitchState, tk tick) bool {
	pos := tk.positions[st.OldSymbol]
	plan := decideSellOut(*st, pos, quoteFor(tk, st.OldSymbol))
	switch {
	case plan.submitSell:
		rec, err := m.deps.Trader.SubmitOrder(ctx, broker.Order{
			ClientID: uuid.NewString(),
			Symbol:   st.OldSymbol,
			Side:     broker.OrderSideSell,
			Price:    plan.sellPrice,
			Quantity: plan.sellQuantity,
		})
		if err != nil {
			logx.Errorf("rotation: sell-out submit for %s failed, retrying next tick: %v", st.OldSymbol, err)
			return false
		}
		st.SellSubmitted = true
		st.SellOrderID = rec.OrderID
		held := m.deps.Ledger.HeldLots(st.OldSymbol, st.Direction)
		ids := make([]string, 0, len(held))
		for _, lot := range held {
			ids = append(ids, lot.OrderID)
		}
		m.deps.Pending.RegisterPendingSell(rec.OrderID, st.OldSymbol, st.Direction, plan.sellQuantity, ids)
		if rec.Status == broker.OrderStatusFilled {
			m.deps.Ledger.AppendSell(st.Direction, ledger.SellRecord{
				ExecID:     rec.OrderID,
				OrderID:    rec.OrderID,
				Symbol:     rec.Symbol,
				Price:      rec.Price,
				Quantity:   rec.FilledQuantity,
				ExecutedAt: rec.UpdatedAt,
			})
			m.deps.Pending.MarkFilled(rec.OrderID)
		}
		return false
	case plan.advance:
		if st.SellSubmitted && st.SellOrderID != "" {
			m.deps.Pending.MarkFilled(st.SellOrderID)
		}
		if sold := m.deps.Ledger.LatestSellSince(st.OldSymbol, st.Direction, st.StartedAt); sold != nil {
			notional := sold.Price * float64(sold.Quantity)
			st.SellNotional = &notional
		}
		st.Stage = StageBindNew
		return true
	default:
		return false
	}
}

// advanceBindNew binds the seat to the candidate, still SWITCHING.
func (m *Machine) advanceBindNew(st *SwitchState) bool {
	if st.NextSymbol == "" {
		m.failStage(st, "no candidate to bind")
		return true
	}
	m.deps.Registry.UpdateSeat(st.Direction, func(s *Seat) {
		s.Symbol = st.NextSymbol
		s.CallPrice = st.NextCallPrice
		s.Status = SeatSwitching
	})
	if st.ShouldRebuy {
		st.Stage = StageWaitQuote
	} else {
		st.Stage = StageComplete
	}
	return true
}

// advanceRebuy sizes and submits the repurchase, then completes regardless.
func (m *Machine) advanceRebuy(ctx context.Context, st *SwitchState, tk tick) bool {
	plan := decideRebuy(*st, quoteFor(tk, st.NextSymbol), m.cfg.DefaultRebuyNotional)
	if plan.submitBuy {
		_, err := m.deps.Trader.SubmitOrder(ctx, broker.Order{
			ClientID: uuid.NewString(),
			Symbol:   st.NextSymbol,
			Side:     broker.OrderSideBuy,
			Price:    plan.buyPrice,
			Quantity: plan.buyQuantity,
		})
		if err != nil {
			logx.Errorf("rotation: rebuy submit for %s failed: %v", st.NextSymbol, err)
		}
	} else {
		logx.Infof("rotation: rebuy for %s skipped: %s", st.NextSymbol, plan.skipReason)
	}
	st.Stage = StageComplete
	return true
}

func (m *Machine) failStage(st *SwitchState, reason string) {
	logx.Errorf("rotation: %s v%d (%s) failed at %s: %s", st.Direction, st.SeatVersion, st.OldSymbol, st.Stage, reason)
	st.Stage = StageFailed
	st.FailReason = reason
}

// finalize applies the terminal stage to the seat and deletes the state.
func (m *Machine) finalize(ctx context.Context, direction broker.Direction, st *SwitchState) {
	now := m.deps.Clock.Now()
	switch st.Stage {
	case StageComplete:
		m.deps.Registry.UpdateSeat(direction, func(s *Seat) {
			s.Symbol = st.NextSymbol
			s.CallPrice = st.NextCallPrice
			s.Status = SeatReady
			s.LastSwitchAt = now
			s.LastSeatReadyAt = now
		})
		m.setPeriodicMark(direction, false)
		logx.Infof("rotation: %s v%d complete, seat ready on %s", direction, st.SeatVersion, st.NextSymbol)
		if m.deps.OnSeatReady != nil {
			m.deps.OnSeatReady(direction, st.NextSymbol, st.NextCallPrice)
		}
	case StageFailed:
		// A rotation only starts once a candidate is found, so the search
		// path is healthy even when a later stage fails. Search failures are
		// counted where the search itself misses.
		m.deps.Registry.ResetSearchFailures(direction)
		m.deps.Registry.UpdateSeat(direction, func(s *Seat) {
			s.Symbol = ""
			s.CallPrice = 0
			s.Status = SeatEmpty
			s.LastSwitchAt = now
		})
		logx.Errorf("rotation: %s v%d failed, seat emptied: %s", direction, st.SeatVersion, st.FailReason)
	}

	m.mu.Lock()
	delete(m.states, direction)
	m.mu.Unlock()

	if m.deps.OnRotationEnd != nil {
		m.deps.OnRotationEnd(*st, m.deps.Registry.Seat(direction))
	}
}

func quoteFor(tk tick, symbol string) *broker.Quote {
	if q, ok := tk.quotes[symbol]; ok {
		return &q
	}
	return nil
}
