// Package warrant defines how rotation candidates are discovered and how an
// instrument's distance to its knock-out level is measured.
package warrant

import (
	"context"

	"rotor-api/pkg/broker"
)

// Thresholds bound a candidate search. Distance is the percentage gap between
// the underlying's price and the instrument's call price; turnover filters
// out illiquid issues.
type Thresholds struct {
	MinDistancePct float64 `json:",default=3"`
	MaxDistancePct float64 `json:",default=8"`
	MinTurnover    float64 `json:",default=2000000"`
}

// Candidate is a screened instrument eligible to occupy a seat.
type Candidate struct {
	Symbol      string
	CallPrice   float64
	DistancePct float64
	Turnover    float64
	LotSize     int64
}

// Finder searches for the best instrument to bind for a direction. A nil
// candidate with a nil error means the screen matched nothing; errors are
// reserved for transport or decode failures.
type Finder interface {
	FindBestCandidate(ctx context.Context, direction broker.Direction, th Thresholds) (*Candidate, error)
}

// RiskChecker reports how close an instrument currently sits to its knock-out
// level, as a percentage of the underlying price. Nil means unknown symbol.
type RiskChecker interface {
	DistanceToStrike(symbol string, currentPrice float64) *float64
}
