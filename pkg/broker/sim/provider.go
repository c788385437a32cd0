// Package sim provides a paper broker that keeps orders, positions and fills
// in memory. It backs the rotation engine tests and the dry-run mode of the
// controller binary.
package sim

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"rotor-api/pkg/broker"
)

// Provider is an in-memory broker.Trader implementation. Orders fill
// synchronously at their limit price unless resting mode is enabled for the
// symbol, in which case they stay pending until Execute is called.
type Provider struct {
	mu sync.Mutex

	now func() time.Time

	orders    map[string]*broker.OrderRecord
	positions map[string]*broker.Position
	fills     []broker.Fill
	resting   map[string]bool // symbol -> do not auto-fill

	lockedAvailable map[string]bool // symbol -> freeze Available at its current value

	submitErr error
	cancelErr error
}

// New constructs an empty paper broker.
func New() *Provider {
	return &Provider{
		now:             time.Now,
		orders:          make(map[string]*broker.OrderRecord),
		positions:       make(map[string]*broker.Position),
		resting:         make(map[string]bool),
		lockedAvailable: make(map[string]bool),
	}
}

// WithClock overrides the time source, for deterministic fill timestamps.
func (p *Provider) WithClock(now func() time.Time) *Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	if now != nil {
		p.now = now
	}
	return p
}

func canonical(symbol string) string { return strings.ToUpper(strings.TrimSpace(symbol)) }

// SetResting makes orders for symbol rest on the book instead of filling
// synchronously.
func (p *Provider) SetResting(symbol string, resting bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resting[canonical(symbol)] = resting
}

// SetSubmitErr injects a submit failure; nil restores normal behaviour.
func (p *Provider) SetSubmitErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.submitErr = err
}

// SetCancelErr injects a cancel failure; nil restores normal behaviour.
func (p *Provider) SetCancelErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelErr = err
}

// SeedPosition installs a position directly, bypassing the fill path.
func (p *Provider) SeedPosition(symbol string, quantity, available int64, costPrice float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c := canonical(symbol)
	p.positions[c] = &broker.Position{Symbol: c, Quantity: quantity, Available: available, CostPrice: costPrice}
	p.lockedAvailable[c] = available != quantity
}

// FreezeAvailable pins a symbol's Available at its current value so fills no
// longer move it. Models the settlement lag between a buy and sellability.
func (p *Provider) FreezeAvailable(symbol string, frozen bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c := canonical(symbol)
	p.lockedAvailable[c] = frozen
	if !frozen {
		if pos, ok := p.positions[c]; ok {
			pos.Available = pos.Quantity
		}
	}
}

// SubmitOrder implements broker.Trader.
func (p *Provider) SubmitOrder(ctx context.Context, order broker.Order) (*broker.OrderRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.submitErr != nil {
		return nil, p.submitErr
	}
	if order.Quantity <= 0 {
		return nil, fmt.Errorf("sim: order quantity must be positive")
	}
	if order.Price <= 0 {
		return nil, fmt.Errorf("sim: order price must be positive")
	}
	c := canonical(order.Symbol)
	rec := &broker.OrderRecord{
		OrderID:     uuid.NewString(),
		ClientID:    order.ClientID,
		Symbol:      c,
		Side:        order.Side,
		Price:       order.Price,
		Quantity:    order.Quantity,
		Status:      broker.OrderStatusPending,
		SubmittedAt: p.now(),
		UpdatedAt:   p.now(),
	}
	p.orders[rec.OrderID] = rec
	if !p.resting[c] {
		if err := p.executeLocked(rec); err != nil {
			delete(p.orders, rec.OrderID)
			return nil, err
		}
	}
	out := *rec
	return &out, nil
}

// Execute fills a resting order in full. Used by tests to drive partial-flow
// scenarios tick by tick.
func (p *Provider) Execute(orderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec, ok := p.orders[orderID]
	if !ok {
		return fmt.Errorf("sim: unknown order %s", orderID)
	}
	return p.executeLocked(rec)
}

func (p *Provider) executeLocked(rec *broker.OrderRecord) error {
	if rec.Status.Terminal() {
		return fmt.Errorf("sim: order %s already %s", rec.OrderID, rec.Status)
	}
	pos := p.positions[rec.Symbol]
	if pos == nil {
		pos = &broker.Position{Symbol: rec.Symbol}
		p.positions[rec.Symbol] = pos
	}
	switch rec.Side {
	case broker.OrderSideBuy:
		pos.Quantity += rec.Quantity
		if !p.lockedAvailable[rec.Symbol] {
			pos.Available = pos.Quantity
		}
	case broker.OrderSideSell:
		if pos.Available < rec.Quantity {
			return fmt.Errorf("sim: insufficient available for %s: have %d want %d", rec.Symbol, pos.Available, rec.Quantity)
		}
		pos.Quantity -= rec.Quantity
		pos.Available -= rec.Quantity
	default:
		return fmt.Errorf("sim: unknown order side %q", rec.Side)
	}
	rec.FilledQuantity = rec.Quantity
	rec.Status = broker.OrderStatusFilled
	rec.UpdatedAt = p.now()
	p.fills = append(p.fills, broker.Fill{
		ExecID:     uuid.NewString(),
		OrderID:    rec.OrderID,
		Symbol:     rec.Symbol,
		Side:       rec.Side,
		Price:      rec.Price,
		Quantity:   rec.Quantity,
		ExecutedAt: rec.UpdatedAt,
	})
	if pos.Quantity == 0 && pos.Available == 0 {
		delete(p.positions, rec.Symbol)
	}
	return nil
}

// CancelOrder implements broker.Trader.
func (p *Provider) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancelErr != nil {
		return false, p.cancelErr
	}
	rec, ok := p.orders[orderID]
	if !ok || rec.Status.Terminal() {
		return false, nil
	}
	rec.Status = broker.OrderStatusCancelled
	rec.UpdatedAt = p.now()
	return true, nil
}

// PendingOrders implements broker.Trader.
func (p *Provider) PendingOrders(ctx context.Context, symbols []string) ([]broker.OrderRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	want := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		want[canonical(s)] = true
	}
	var out []broker.OrderRecord
	for _, rec := range p.orders {
		if rec.Status.Terminal() {
			continue
		}
		if len(want) > 0 && !want[rec.Symbol] {
			continue
		}
		out = append(out, *rec)
	}
	return out, nil
}

// Positions implements broker.Trader.
func (p *Provider) Positions(ctx context.Context, symbols []string) ([]broker.Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	want := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		want[canonical(s)] = true
	}
	var out []broker.Position
	for _, pos := range p.positions {
		if len(want) > 0 && !want[pos.Symbol] {
			continue
		}
		out = append(out, *pos)
	}
	return out, nil
}

// Fills returns a copy of all executions so far, oldest first.
func (p *Provider) Fills() []broker.Fill {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]broker.Fill, len(p.fills))
	copy(out, p.fills)
	return out
}
