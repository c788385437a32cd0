// Package ledger keeps the FIFO-priced inventory of buy fills per instrument
// and direction, derives the currently-held subset from the realized sell
// history, and tracks in-flight sells so the same lot is never reserved twice.
package ledger

import "time"

// Lot is a single buy fill, priced and timestamped, treated as an indivisible
// unit of inventory. Immutable once created; removed from the held view only
// by recomputation against the sell history, or by a protective clear.
type Lot struct {
	// ExecID is the broker execution id of the print that created the lot.
	// Empty for brokers that fill whole orders in one print.
	ExecID      string
	OrderID     string
	Symbol      string
	Price       float64
	Quantity    int64
	ExecutedAt  time.Time
	SubmittedAt time.Time
	UpdatedAt   time.Time
}

// SellRecord is a realized sell execution consumed by the matching engine.
// Partial fills of one sell order arrive as separate records sharing an
// OrderID, distinguished by ExecID.
type SellRecord struct {
	ExecID     string
	OrderID    string
	Symbol     string
	Price      float64
	Quantity   int64
	ExecutedAt time.Time
}

// TotalQuantity sums the quantity of the given lots.
func TotalQuantity(lots []Lot) int64 {
	var total int64
	for _, lot := range lots {
		total += lot.Quantity
	}
	return total
}
