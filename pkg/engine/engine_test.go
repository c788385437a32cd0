package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"rotor-api/pkg/broker"
	"rotor-api/pkg/broker/sim"
	"rotor-api/pkg/journal"
	"rotor-api/pkg/ledger"
	"rotor-api/pkg/rotation"
	"rotor-api/pkg/tradingday"
	"rotor-api/pkg/warrant"
)

type fixedClock struct{ now time.Time }

func (c *fixedClock) Now() time.Time { return c.now }

type fixedFinder struct{ cand *warrant.Candidate }

func (f *fixedFinder) FindBestCandidate(ctx context.Context, direction broker.Direction, th warrant.Thresholds) (*warrant.Candidate, error) {
	if f.cand == nil {
		return nil, nil
	}
	out := *f.cand
	return &out, nil
}

type fakeFillStore struct {
	lots  map[broker.Direction][]ledger.Lot
	sells map[broker.Direction][]ledger.SellRecord
}

func (s *fakeFillStore) LoadLots(ctx context.Context, d broker.Direction) ([]ledger.Lot, error) {
	return s.lots[d], nil
}

func (s *fakeFillStore) LoadSells(ctx context.Context, d broker.Direction) ([]ledger.SellRecord, error) {
	return s.sells[d], nil
}

type recordingSubscriber struct{ symbols []string }

func (r *recordingSubscriber) Subscribe(symbols ...string) error {
	r.symbols = append(r.symbols, symbols...)
	return nil
}

type testEnv struct {
	engine   *Engine
	registry *rotation.SeatRegistry
	trader   *sim.Provider
	ldg      *ledger.LotLedger
	pending  *ledger.PendingSellTracker
	risk     *warrant.StrikeDistance
	finder   *fixedFinder
	clock    *fixedClock
	cal      *tradingday.Calendar
	sub      *recordingSubscriber
}

func newTestEnv(t *testing.T, journalDir string) *testEnv {
	t.Helper()
	cal := tradingday.NewCalendar("Asia/Hong_Kong")
	clock := &fixedClock{now: time.Date(2025, 3, 14, 14, 0, 0, 0, cal.Location())}
	env := &testEnv{
		registry: rotation.NewSeatRegistry("HSI"),
		trader:   sim.New().WithClock(func() time.Time { return clock.now }),
		ldg:      ledger.NewLotLedger(),
		risk:     warrant.NewStrikeDistance(),
		finder:   &fixedFinder{},
		clock:    clock,
		cal:      cal,
		sub:      &recordingSubscriber{},
	}
	env.pending = ledger.NewPendingSellTracker(env.ldg)
	var jw *journal.Writer
	if journalDir != "" {
		jw = journal.NewWriter(journalDir)
	}
	eng, err := New(
		&Config{MonitorSymbol: "HSI", TickSeconds: 5, OpenProtectionMinutes: 15},
		&rotation.Config{MinDistancePct: 3, MaxDistancePct: 10, MaxSearchFailuresPerDay: 3, DefaultRebuyNotional: 50000},
		Deps{
			Registry:     env.registry,
			Suppressions: rotation.NewSuppressionCache(cal, nil),
			Ledger:       env.ldg,
			Pending:      env.pending,
			Trader:       env.trader,
			Finder:       env.finder,
			Risk:         env.risk,
			Calendar:     cal,
			Clock:        clock,
			Journal:      jw,
			Subscriber:   env.sub,
		})
	assert.NoError(t, err, "engine construction should not error")
	env.engine = eng
	return env
}

func (env *testEnv) bindReady(direction broker.Direction, symbol string, callPrice float64) {
	env.registry.UpdateSeat(direction, func(s *rotation.Seat) {
		s.Symbol = symbol
		s.Status = rotation.SeatReady
		s.CallPrice = callPrice
		s.LastSeatReadyAt = env.clock.now
	})
	env.risk.Register(symbol, direction, callPrice)
}

func TestEngine_MonitorQuoteDrivesRotation(t *testing.T) {
	dir := t.TempDir()
	env := newTestEnv(t, dir)
	env.bindReady(broker.DirectionLong, "61999", 18000)
	env.finder.cand = &warrant.Candidate{Symbol: "62888", CallPrice: 18500, LotSize: 10000}

	// 18400 vs call 18000 is ~2.17%, below the 3% floor. The seat is flat,
	// so the rotation completes inside the call.
	env.engine.ApplyQuote(context.Background(), broker.Quote{Symbol: "HSI", Price: 18400})

	long, _ := env.engine.Seats()
	assert.Equal(t, rotation.SeatReady, long.Status, "rotation should complete")
	assert.Equal(t, "62888", long.Symbol, "candidate bound")
	assert.Contains(t, env.sub.symbols, "62888", "seat-ready hook subscribes the new instrument")

	recs, err := journal.ReadFile(dir + "/rotations_20250314.mpk")
	assert.NoError(t, err, "journal should be readable")
	assert.Len(t, recs, 1, "one terminal rotation journaled")
	assert.Equal(t, "complete", recs[0].Stage, "stage recorded")
	assert.Equal(t, "62888", recs[0].NextSymbol, "candidate recorded")
}

func TestEngine_NonMonitorQuoteOnlyCaches(t *testing.T) {
	env := newTestEnv(t, "")
	env.bindReady(broker.DirectionLong, "61999", 18000)
	env.finder.cand = &warrant.Candidate{Symbol: "62888", CallPrice: 18500, LotSize: 10000}

	env.engine.ApplyQuote(context.Background(), broker.Quote{Symbol: "61999", Price: 0.30, LotSize: 10000})

	long, _ := env.engine.Seats()
	assert.Equal(t, "61999", long.Symbol, "instrument quotes never trigger rotation")
	q := env.engine.LastQuote("61999")
	assert.NotNil(t, q, "quote should be cached")
	assert.Equal(t, 0.30, q.Price, "cached price")
}

func TestEngine_ApplyFillRoutesBySeatBinding(t *testing.T) {
	env := newTestEnv(t, "")
	env.bindReady(broker.DirectionLong, "61999", 18000)

	at := env.clock.now
	env.engine.ApplyFill(broker.Fill{OrderID: "b1", Symbol: "61999", Side: broker.OrderSideBuy, Price: 0.25, Quantity: 10000, ExecutedAt: at})
	held := env.ldg.HeldLots("61999", broker.DirectionLong)
	assert.Len(t, held, 1, "buy fill lands in the long bucket")
	assert.Equal(t, int64(10000), held[0].Quantity, "quantity recorded")

	env.engine.ApplyFill(broker.Fill{OrderID: "s1", Symbol: "61999", Side: broker.OrderSideSell, Price: 0.30, Quantity: 10000, ExecutedAt: at.Add(time.Minute)})
	assert.Empty(t, env.ldg.HeldLots("61999", broker.DirectionLong), "sell fill clears the held set")

	env.engine.ApplyFill(broker.Fill{OrderID: "x1", Symbol: "99999", Side: broker.OrderSideBuy, Price: 1, Quantity: 100, ExecutedAt: at})
	assert.Empty(t, env.ldg.HeldLots("99999", broker.DirectionLong), "fills for unbound symbols are dropped")
}

func TestEngine_SellOrderFilledAcrossSeveralPrints(t *testing.T) {
	env := newTestEnv(t, "")
	env.bindReady(broker.DirectionLong, "61999", 18000)

	at := env.clock.now
	env.engine.ApplyFill(broker.Fill{ExecID: "b1-1", OrderID: "b1", Symbol: "61999", Side: broker.OrderSideBuy, Price: 0.25, Quantity: 10000, ExecutedAt: at})
	env.pending.RegisterPendingSell("s1", "61999", broker.DirectionLong, 10000, []string{"b1"})

	env.engine.ApplyFill(broker.Fill{ExecID: "s1-1", OrderID: "s1", Symbol: "61999", Side: broker.OrderSideSell, Price: 0.30, Quantity: 3000, ExecutedAt: at.Add(time.Minute)})
	active := env.pending.Active("61999", broker.DirectionLong)
	assert.Len(t, active, 1, "a partially filled sell stays in flight")

	env.engine.ApplyFill(broker.Fill{ExecID: "s1-2", OrderID: "s1", Symbol: "61999", Side: broker.OrderSideSell, Price: 0.30, Quantity: 7000, ExecutedAt: at.Add(2 * time.Minute)})

	sells := env.ldg.Sells("61999", broker.DirectionLong)
	assert.Len(t, sells, 2, "each print is ledgered")
	assert.Equal(t, int64(10000), sells[0].Quantity+sells[1].Quantity, "prints cover the whole order")
	assert.Empty(t, env.pending.Active("61999", broker.DirectionLong), "the covering print completes the order")
	assert.Zero(t, env.pending.ReservedQuantity("61999", broker.DirectionLong), "the lot reservation is released")
	assert.Empty(t, env.ldg.HeldLots("61999", broker.DirectionLong), "matching consumes the lot")

	// A replay of the last print must not disturb the settled state.
	env.engine.ApplyFill(broker.Fill{ExecID: "s1-2", OrderID: "s1", Symbol: "61999", Side: broker.OrderSideSell, Price: 0.30, Quantity: 7000, ExecutedAt: at.Add(2 * time.Minute)})
	assert.Len(t, env.ldg.Sells("61999", broker.DirectionLong), 2, "replayed print is dropped")
}

func TestEngine_WarmStartRestoresLedger(t *testing.T) {
	env := newTestEnv(t, "")
	env.bindReady(broker.DirectionLong, "61999", 18000)
	at := env.clock.now.Add(-3 * time.Hour)
	store := &fakeFillStore{
		lots: map[broker.Direction][]ledger.Lot{
			broker.DirectionLong: {
				{OrderID: "b1", Symbol: "61999", Price: 0.10, Quantity: 10000, ExecutedAt: at},
				{OrderID: "b2", Symbol: "61999", Price: 0.20, Quantity: 10000, ExecutedAt: at.Add(time.Minute)},
			},
		},
		sells: map[broker.Direction][]ledger.SellRecord{
			broker.DirectionLong: {
				{OrderID: "s1", Symbol: "61999", Price: 0.15, Quantity: 10000, ExecutedAt: at.Add(2 * time.Minute)},
			},
		},
	}

	assert.NoError(t, env.engine.WarmStart(context.Background(), store), "warm start should succeed")

	held := env.ldg.HeldLots("61999", broker.DirectionLong)
	assert.Len(t, held, 1, "matching re-runs over the restored day")
	assert.Equal(t, "b2", held[0].OrderID, "the lot priced above the sell survives")
}

func TestEngine_OpenProtectionWindow(t *testing.T) {
	env := newTestEnv(t, "")
	at := func(h, m int) time.Time {
		return time.Date(2025, 3, 14, h, m, 0, 0, env.cal.Location())
	}
	assert.True(t, env.engine.openProtectionActive(at(9, 30)), "protection starts at the open")
	assert.True(t, env.engine.openProtectionActive(at(9, 44)), "still inside the window")
	assert.False(t, env.engine.openProtectionActive(at(9, 45)), "window closes after the configured minutes")
	assert.False(t, env.engine.openProtectionActive(at(9, 29)), "pre-open is not protection")
}

func TestEngine_SubscribeBoundOnStart(t *testing.T) {
	env := newTestEnv(t, "")
	env.bindReady(broker.DirectionLong, "61999", 18000)
	env.engine.subscribeBound()
	assert.Equal(t, []string{"HSI", "61999"}, env.sub.symbols, "monitor and bound instruments subscribed")
}
