package broker

import "context"

// Trader exposes order and position management in a venue-agnostic fashion.
// The rotation engine only ever talks to the broker through this interface.
type Trader interface {
	// Order management.
	SubmitOrder(ctx context.Context, order Order) (*OrderRecord, error)
	CancelOrder(ctx context.Context, orderID string) (bool, error)
	PendingOrders(ctx context.Context, symbols []string) ([]OrderRecord, error)

	// Position management.
	Positions(ctx context.Context, symbols []string) ([]Position, error)
}
