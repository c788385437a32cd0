package sim

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"rotor-api/pkg/broker"
)

func TestProvider_BuySellRoundTrip(t *testing.T) {
	p := New()
	ctx := context.Background()

	rec, err := p.SubmitOrder(ctx, broker.Order{Symbol: "61999", Side: broker.OrderSideBuy, Price: 0.25, Quantity: 10000})
	assert.NoError(t, err, "buy should not error")
	assert.Equal(t, broker.OrderStatusFilled, rec.Status, "buy should fill synchronously")

	positions, err := p.Positions(ctx, []string{"61999"})
	assert.NoError(t, err, "Positions should not error")
	assert.Len(t, positions, 1, "should hold one position")
	assert.Equal(t, int64(10000), positions[0].Quantity, "position quantity should match the fill")
	assert.Equal(t, int64(10000), positions[0].Available, "available should follow quantity")

	_, err = p.SubmitOrder(ctx, broker.Order{Symbol: "61999", Side: broker.OrderSideSell, Price: 0.30, Quantity: 10000})
	assert.NoError(t, err, "sell should not error")

	positions, err = p.Positions(ctx, nil)
	assert.NoError(t, err, "Positions should not error")
	assert.Empty(t, positions, "flat position should disappear")
	assert.Len(t, p.Fills(), 2, "both executions should be recorded")
}

func TestProvider_RestingAndCancel(t *testing.T) {
	p := New()
	ctx := context.Background()
	p.SetResting("61999", true)

	rec, err := p.SubmitOrder(ctx, broker.Order{Symbol: "61999", Side: broker.OrderSideBuy, Price: 0.25, Quantity: 5000})
	assert.NoError(t, err, "resting buy should not error")
	assert.Equal(t, broker.OrderStatusPending, rec.Status, "resting order should stay pending")

	pending, err := p.PendingOrders(ctx, []string{"61999"})
	assert.NoError(t, err, "PendingOrders should not error")
	assert.Len(t, pending, 1, "order should be on the book")

	ok, err := p.CancelOrder(ctx, rec.OrderID)
	assert.NoError(t, err, "cancel should not error")
	assert.True(t, ok, "cancel should succeed for a pending order")

	ok, err = p.CancelOrder(ctx, rec.OrderID)
	assert.NoError(t, err, "second cancel should not error")
	assert.False(t, ok, "second cancel should be a no-op")
}

func TestProvider_AvailableGuardsSells(t *testing.T) {
	p := New()
	ctx := context.Background()
	p.SeedPosition("61999", 10000, 0, 0.25)

	_, err := p.SubmitOrder(ctx, broker.Order{Symbol: "61999", Side: broker.OrderSideSell, Price: 0.30, Quantity: 10000})
	assert.Error(t, err, "sell beyond available should fail")

	p.FreezeAvailable("61999", false)
	_, err = p.SubmitOrder(ctx, broker.Order{Symbol: "61999", Side: broker.OrderSideSell, Price: 0.30, Quantity: 10000})
	assert.NoError(t, err, "sell should succeed once units settle")
}

func TestProvider_ErrorInjection(t *testing.T) {
	p := New()
	ctx := context.Background()
	boom := errors.New("wire down")

	p.SetSubmitErr(boom)
	_, err := p.SubmitOrder(ctx, broker.Order{Symbol: "61999", Side: broker.OrderSideBuy, Price: 0.25, Quantity: 1000})
	assert.ErrorIs(t, err, boom, "injected submit error should surface")

	p.SetCancelErr(boom)
	_, err = p.CancelOrder(ctx, "whatever")
	assert.ErrorIs(t, err, boom, "injected cancel error should surface")
}
