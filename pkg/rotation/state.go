package rotation

import (
	"time"

	"rotor-api/pkg/broker"
)

// Stage is a step in the seat migration saga. Stages only ever move forward,
// except for the two terminal stages.
type Stage string

const (
	StageCancelPending Stage = "cancel_pending"
	StageSellOut       Stage = "sell_out"
	StageBindNew       Stage = "bind_new"
	StageWaitQuote     Stage = "wait_quote"
	StageRebuy         Stage = "rebuy"
	StageComplete      Stage = "complete"
	StageFailed        Stage = "failed"
)

// Trigger identifies what started a rotation.
type Trigger string

const (
	// TriggerDistance fires when the bound instrument drifts outside the
	// configured distance-to-strike band.
	TriggerDistance Trigger = "distance"
	// TriggerPeriodic fires when the holding window has elapsed.
	TriggerPeriodic Trigger = "periodic"
)

// SwitchState is the in-flight record of one rotation. It is created when a
// rotation starts and deleted on COMPLETE, FAILED, or detected staleness;
// SeatVersion snapshots the seat version issued at rotation start and is the
// sole liveness token.
type SwitchState struct {
	Direction   broker.Direction
	SeatVersion int64
	Stage       Stage
	Trigger     Trigger

	OldSymbol     string
	NextSymbol    string
	NextCallPrice float64
	NextLotSize   int64

	StartedAt     time.Time
	SellSubmitted bool
	SellOrderID   string
	SellNotional  *float64
	ShouldRebuy   bool
	AwaitingQuote bool

	// CancelledOrderIDs lists the open buys withdrawn during CANCEL_PENDING.
	CancelledOrderIDs []string

	// FailReason is set when the saga heads to FAILED; empty otherwise.
	FailReason string
}

// terminal reports whether the stage admits no further transitions.
func (s Stage) terminal() bool {
	return s == StageComplete || s == StageFailed
}
