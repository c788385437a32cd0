package broker

import "time"

// Core order and position types shared across broker implementations. These
// normalise the upstream broker payloads so the ledger and rotation layers
// never see venue-specific structures.

// Direction labels the trading role an instrument serves for a monitored
// underlying: long rises with it, short falls with it.
type Direction string

const (
	// DirectionLong marks the bull-side instrument.
	DirectionLong Direction = "long"
	// DirectionShort marks the bear-side instrument.
	DirectionShort Direction = "short"
)

// Valid reports whether d is one of the two known directions.
func (d Direction) Valid() bool {
	return d == DirectionLong || d == DirectionShort
}

// OrderSide represents order direction.
type OrderSide string

const (
	// OrderSideBuy executes a buy.
	OrderSideBuy OrderSide = "buy"
	// OrderSideSell executes a sell.
	OrderSideSell OrderSide = "sell"
)

// OrderStatus tracks an order through its lifecycle.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPartial   OrderStatus = "partial"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusFilled || s == OrderStatusCancelled
}

// Order describes a normalized order request.
type Order struct {
	ClientID string    // Client-assigned idempotency token.
	Symbol   string    // Instrument code.
	Side     OrderSide // Buy or sell.
	Price    float64   // Limit price.
	Quantity int64     // Units; always a whole multiple of the board lot.
}

// OrderRecord is the broker's view of a submitted order.
type OrderRecord struct {
	OrderID        string
	ClientID       string
	Symbol         string
	Side           OrderSide
	Price          float64
	Quantity       int64
	FilledQuantity int64
	Status         OrderStatus
	SubmittedAt    time.Time
	UpdatedAt      time.Time
}

// Position captures holdings in one instrument.
type Position struct {
	Symbol    string
	Quantity  int64   // Total held units.
	Available int64   // Units free to sell right now.
	CostPrice float64 // Broker-reported average cost.
}

// Quote is a single instrument price snapshot with its board lot size.
type Quote struct {
	Symbol    string
	Price     float64
	LotSize   int64
	UpdatedAt time.Time
}

// Tradable reports whether the quote carries enough data to size an order.
func (q Quote) Tradable() bool {
	return q.Price > 0 && q.LotSize > 0
}

// Fill describes one execution against an order. A partially filled order
// produces several fills sharing an OrderID; ExecID identifies the
// individual print.
type Fill struct {
	ExecID     string
	OrderID    string
	Symbol     string
	Side       OrderSide
	Price      float64
	Quantity   int64
	ExecutedAt time.Time
}
