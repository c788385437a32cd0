// Package engine binds one monitor symbol to its pair of directional seats
// and drives the rotation state machine from live market data. A single
// goroutine owns all machine entry points, which satisfies the machine's
// one-caller-per-direction contract.
package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"rotor-api/pkg/broker"
	"rotor-api/pkg/journal"
	"rotor-api/pkg/ledger"
	"rotor-api/pkg/rotation"
	"rotor-api/pkg/tradingday"
	"rotor-api/pkg/warrant"
)

// Subscriber is the slice of the quote feed the engine needs: the ability to
// start streaming a newly bound instrument.
type Subscriber interface {
	Subscribe(symbols ...string) error
}

// FillStore loads the current trading day's executions for warm start.
type FillStore interface {
	LoadLots(ctx context.Context, direction broker.Direction) ([]ledger.Lot, error)
	LoadSells(ctx context.Context, direction broker.Direction) ([]ledger.SellRecord, error)
}

// FillSink persists executions as they are applied to the ledger.
type FillSink interface {
	RecordFill(ctx context.Context, fill broker.Fill, direction broker.Direction) error
}

// RotationEvent is the flattened form of a terminal rotation handed to sinks.
type RotationEvent struct {
	MonitorSymbol     string
	Direction         string
	SeatVersion       int64
	Trigger           string
	Stage             string
	OldSymbol         string
	NextSymbol        string
	NextCallPrice     float64
	SellNotional      *float64
	FailReason        string
	CancelledOrderIDs []string
	StartedAt         time.Time
	EndedAt           time.Time
}

// RotationSink persists terminal rotations for audit queries.
type RotationSink interface {
	RecordRotation(ctx context.Context, event RotationEvent) error
}

// Deps collects the engine's collaborators. Journal, Subscriber, Quotes and
// Fills are optional; everything else is required.
type Deps struct {
	Registry     *rotation.SeatRegistry
	Suppressions *rotation.SuppressionCache
	Ledger       *ledger.LotLedger
	Pending      *ledger.PendingSellTracker
	Trader       broker.Trader
	Finder       warrant.Finder
	Risk         *warrant.StrikeDistance
	Calendar     *tradingday.Calendar
	Clock        tradingday.Clock

	Journal    *journal.Writer
	Subscriber Subscriber
	Quotes     <-chan broker.Quote
	Fills      <-chan broker.Fill
	FillSink   FillSink
	Rotations  RotationSink
}

// Engine is the orchestration loop for one monitor symbol.
type Engine struct {
	cfg     *Config
	deps    Deps
	machine *rotation.Machine

	mu           sync.Mutex
	quotes       map[string]broker.Quote
	positions    map[string]broker.Position
	monitorPrice float64

	// sellProgress accumulates the quantity sold per order so far, since
	// fills carry per-print quantities while the pending tracker wants the
	// cumulative total.
	sellProgress map[string]int64

	stopChan chan struct{}
	stopOnce sync.Once
}

// New validates configuration, builds the rotation machine and wires the
// engine's hooks into it.
func New(cfg *Config, rotCfg *rotation.Config, deps Deps) (*Engine, error) {
	if cfg == nil {
		return nil, errors.New("engine: config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Clock == nil {
		deps.Clock = tradingday.SystemClock{}
	}
	e := &Engine{
		cfg:          cfg,
		deps:         deps,
		quotes:       make(map[string]broker.Quote),
		positions:    make(map[string]broker.Position),
		sellProgress: make(map[string]int64),
		stopChan:     make(chan struct{}),
	}
	machine, err := rotation.NewMachine(rotCfg, rotation.MachineDeps{
		Registry:      deps.Registry,
		Suppressions:  deps.Suppressions,
		Ledger:        deps.Ledger,
		Pending:       deps.Pending,
		Trader:        deps.Trader,
		Finder:        deps.Finder,
		Risk:          deps.Risk,
		Calendar:      deps.Calendar,
		Clock:         deps.Clock,
		OnRotationEnd: e.rotationEnded,
		OnSeatReady:   e.seatReady,
	})
	if err != nil {
		return nil, err
	}
	e.machine = machine
	return e, nil
}

// Machine exposes the underlying state machine for inspection surfaces.
func (e *Engine) Machine() *rotation.Machine { return e.machine }

// WarmStart restores day-scoped state after a restart: suppression entries
// and the day's executions, so lot matching resumes where it left off.
func (e *Engine) WarmStart(ctx context.Context, store FillStore) error {
	now := e.deps.Clock.Now()
	if e.deps.Suppressions != nil {
		e.deps.Suppressions.WarmLoad(ctx, now)
	}
	if store == nil {
		return nil
	}
	for _, direction := range []broker.Direction{broker.DirectionLong, broker.DirectionShort} {
		lots, err := store.LoadLots(ctx, direction)
		if err != nil {
			return err
		}
		for _, lot := range lots {
			e.deps.Ledger.AppendBuy(direction, lot)
		}
		sells, err := store.LoadSells(ctx, direction)
		if err != nil {
			return err
		}
		for _, sell := range sells {
			e.deps.Ledger.AppendSell(direction, sell)
		}
		logx.Infof("engine: warm start %s/%s restored %d lots, %d sells",
			e.cfg.MonitorSymbol, direction, len(lots), len(sells))
	}
	return nil
}

// Run consumes ticks and fills until ctx is cancelled or Stop is called.
// Receiving on a nil channel blocks forever, so absent optional channels
// simply never fire.
func (e *Engine) Run(ctx context.Context) error {
	e.subscribeBound()
	ticker := time.NewTicker(time.Duration(e.cfg.TickSeconds) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.stopChan:
			return nil
		case q := <-e.deps.Quotes:
			e.ApplyQuote(ctx, q)
		case fill := <-e.deps.Fills:
			e.ApplyFill(fill)
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

// Stop signals Run to exit.
func (e *Engine) Stop() { e.stopOnce.Do(func() { close(e.stopChan) }) }

// ApplyQuote caches the quote and, for the monitor symbol, evaluates the
// distance trigger for both directions.
func (e *Engine) ApplyQuote(ctx context.Context, q broker.Quote) {
	if q.Symbol == "" {
		return
	}
	e.mu.Lock()
	e.quotes[q.Symbol] = q
	if q.Symbol == e.cfg.MonitorSymbol && q.Price > 0 {
		e.monitorPrice = q.Price
	}
	e.mu.Unlock()
	if q.Symbol == e.cfg.MonitorSymbol {
		e.evaluateDistance(ctx)
	}
}

// ApplyFill routes an execution into the lot ledger. The direction is
// resolved from the seat the symbol is bound to, in-flight rotations
// included; fills for unknown symbols are logged and dropped, as are
// replayed prints the ledger has already seen.
func (e *Engine) ApplyFill(fill broker.Fill) {
	direction, ok := e.directionFor(fill.Symbol)
	if !ok {
		logx.Errorf("engine: fill %s for unbound symbol %s dropped", fill.OrderID, fill.Symbol)
		return
	}
	switch fill.Side {
	case broker.OrderSideBuy:
		if !e.deps.Ledger.AppendBuy(direction, ledger.Lot{
			ExecID:     fill.ExecID,
			OrderID:    fill.OrderID,
			Symbol:     fill.Symbol,
			Price:      fill.Price,
			Quantity:   fill.Quantity,
			ExecutedAt: fill.ExecutedAt,
		}) {
			return
		}
	case broker.OrderSideSell:
		recorded := e.deps.Ledger.AppendSell(direction, ledger.SellRecord{
			ExecID:     fill.ExecID,
			OrderID:    fill.OrderID,
			Symbol:     fill.Symbol,
			Price:      fill.Price,
			Quantity:   fill.Quantity,
			ExecutedAt: fill.ExecutedAt,
		})
		if !recorded {
			return
		}
		e.mu.Lock()
		cumulative := e.sellProgress[fill.OrderID] + fill.Quantity
		e.sellProgress[fill.OrderID] = cumulative
		e.mu.Unlock()
		rec := e.deps.Pending.MarkPartialFilled(fill.OrderID, cumulative)
		if rec == nil || rec.Status == broker.OrderStatusFilled {
			e.mu.Lock()
			delete(e.sellProgress, fill.OrderID)
			e.mu.Unlock()
		}
	}
	if e.deps.FillSink != nil {
		if err := e.deps.FillSink.RecordFill(context.Background(), fill, direction); err != nil {
			logx.Errorf("engine: persist fill %s failed: %v", fill.OrderID, err)
		}
	}
}

// Seats returns copies of both directional seats.
func (e *Engine) Seats() (long, short rotation.Seat) {
	return e.deps.Registry.Seat(broker.DirectionLong), e.deps.Registry.Seat(broker.DirectionShort)
}

// LastQuote returns the cached quote for symbol, if any.
func (e *Engine) LastQuote(symbol string) *broker.Quote {
	e.mu.Lock()
	defer e.mu.Unlock()
	if q, ok := e.quotes[symbol]; ok {
		out := q
		return &out
	}
	return nil
}

// tick refreshes broker positions and runs the periodic triggers. A cached
// monitor price also re-runs the distance evaluation so a rotation blocked
// on position or quote data advances even between monitor ticks.
func (e *Engine) tick(ctx context.Context) {
	e.refreshPositions(ctx)
	now := e.deps.Clock.Now()
	canTrade := e.deps.Calendar.InSession(now)
	protected := e.openProtectionActive(now)
	for _, direction := range []broker.Direction{broker.DirectionLong, broker.DirectionShort} {
		e.machine.MaybeSwitchOnInterval(ctx, direction, now, canTrade, protected)
	}
	e.evaluateDistance(ctx)
}

func (e *Engine) evaluateDistance(ctx context.Context) {
	e.mu.Lock()
	price := e.monitorPrice
	quotes := make(map[string]broker.Quote, len(e.quotes))
	for k, v := range e.quotes {
		quotes[k] = v
	}
	positions := make(map[string]broker.Position, len(e.positions))
	for k, v := range e.positions {
		positions[k] = v
	}
	e.mu.Unlock()
	if price <= 0 {
		return
	}
	for _, direction := range []broker.Direction{broker.DirectionLong, broker.DirectionShort} {
		e.machine.MaybeSwitchOnDistance(ctx, direction, price, quotes, positions)
	}
}

func (e *Engine) refreshPositions(ctx context.Context) {
	positions, err := e.deps.Trader.Positions(ctx, nil)
	if err != nil {
		logx.Errorf("engine: position refresh failed: %v", err)
		return
	}
	e.mu.Lock()
	e.positions = make(map[string]broker.Position, len(positions))
	for _, pos := range positions {
		e.positions[pos.Symbol] = pos
	}
	e.mu.Unlock()
}

func (e *Engine) openProtectionActive(now time.Time) bool {
	if e.cfg.OpenProtectionMinutes <= 0 {
		return false
	}
	open := e.deps.Calendar.MorningOpen(now)
	return !now.Before(open) && now.Before(open.Add(time.Duration(e.cfg.OpenProtectionMinutes)*time.Minute))
}

func (e *Engine) directionFor(symbol string) (broker.Direction, bool) {
	for _, direction := range []broker.Direction{broker.DirectionLong, broker.DirectionShort} {
		seat := e.deps.Registry.Seat(direction)
		if seat.Symbol == symbol {
			return direction, true
		}
		if st := e.machine.SwitchStateSnapshot(direction); st != nil {
			if st.OldSymbol == symbol || st.NextSymbol == symbol {
				return direction, true
			}
		}
	}
	return "", false
}

// subscribeBound streams the monitor symbol and every currently bound
// instrument. Called once at loop start; later bindings subscribe via the
// seat-ready hook.
func (e *Engine) subscribeBound() {
	if e.deps.Subscriber == nil {
		return
	}
	symbols := []string{e.cfg.MonitorSymbol}
	long, short := e.Seats()
	for _, seat := range []rotation.Seat{long, short} {
		if seat.Symbol != "" {
			symbols = append(symbols, seat.Symbol)
		}
	}
	if err := e.deps.Subscriber.Subscribe(symbols...); err != nil {
		logx.Errorf("engine: initial subscribe failed: %v", err)
	}
}

func (e *Engine) seatReady(direction broker.Direction, symbol string, callPrice float64) {
	e.deps.Risk.Register(symbol, direction, callPrice)
	if e.deps.Subscriber != nil {
		if err := e.deps.Subscriber.Subscribe(symbol); err != nil {
			logx.Errorf("engine: subscribe %s failed: %v", symbol, err)
		}
	}
}

func (e *Engine) rotationEnded(st rotation.SwitchState, seat rotation.Seat) {
	now := e.deps.Clock.Now()
	if e.deps.Journal != nil {
		rec := &journal.RotationRecord{
			Timestamp:     now,
			MonitorSymbol: e.cfg.MonitorSymbol,
			Direction:     string(st.Direction),
			SeatVersion:   st.SeatVersion,
			Trigger:       string(st.Trigger),
			Stage:         string(st.Stage),
			OldSymbol:     st.OldSymbol,
			NextSymbol:    st.NextSymbol,
			NextCallPrice: st.NextCallPrice,
			SellNotional:  st.SellNotional,
			FailReason:    st.FailReason,
			StartedAt:     st.StartedAt,
		}
		if err := e.deps.Journal.Append(rec); err != nil {
			logx.Errorf("engine: journal append failed: %v", err)
		}
	}
	if e.deps.Rotations != nil {
		event := RotationEvent{
			MonitorSymbol:     e.cfg.MonitorSymbol,
			Direction:         string(st.Direction),
			SeatVersion:       st.SeatVersion,
			Trigger:           string(st.Trigger),
			Stage:             string(st.Stage),
			OldSymbol:         st.OldSymbol,
			NextSymbol:        st.NextSymbol,
			NextCallPrice:     st.NextCallPrice,
			SellNotional:      st.SellNotional,
			FailReason:        st.FailReason,
			CancelledOrderIDs: st.CancelledOrderIDs,
			StartedAt:         st.StartedAt,
			EndedAt:           now,
		}
		if err := e.deps.Rotations.RecordRotation(context.Background(), event); err != nil {
			logx.Errorf("engine: persist rotation %s v%d failed: %v", st.Direction, st.SeatVersion, err)
		}
	}
}
