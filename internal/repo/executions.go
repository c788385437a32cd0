package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/zeromicro/go-zero/core/stores/sqlx"

	"rotor-api/pkg/broker"
	"rotor-api/pkg/ledger"
	"rotor-api/pkg/tradingday"
)

// ExecutionsRepo persists individual executions and restores the current
// trading day's view of them, satisfying the engine's warm-start loader.
type ExecutionsRepo interface {
	// RecordFill inserts one execution; replays of the same print are
	// silently ignored.
	RecordFill(ctx context.Context, fill broker.Fill, direction broker.Direction) error
	// LoadLots returns today's buy executions for a direction in execution
	// order.
	LoadLots(ctx context.Context, direction broker.Direction) ([]ledger.Lot, error)
	// LoadSells returns today's sell executions for a direction in execution
	// order.
	LoadSells(ctx context.Context, direction broker.Direction) ([]ledger.SellRecord, error)
}

type executionsRepo struct {
	conn  sqlx.SqlConn
	cal   *tradingday.Calendar
	clock tradingday.Clock
}

func newExecutionsRepo(deps Dependencies) ExecutionsRepo {
	return &executionsRepo{
		conn:  deps.DBConn,
		cal:   deps.Calendar,
		clock: deps.Clock,
	}
}

// dayStart is the exchange-local midnight that opened the current trading
// day; executions before it belong to a finished matching cycle.
func (r *executionsRepo) dayStart() time.Time {
	return r.cal.EndOfDay(r.clock.Now()).Add(-24 * time.Hour)
}

func (r *executionsRepo) RecordFill(ctx context.Context, fill broker.Fill, direction broker.Direction) error {
	const query = `
INSERT INTO executions (exec_id, order_id, symbol, direction, side, price, quantity, executed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (exec_id) DO NOTHING`

	// Single-print brokers omit ExecID; the order id then identifies the
	// whole execution.
	execID := fill.ExecID
	if execID == "" {
		execID = fill.OrderID
	}
	_, err := r.conn.ExecCtx(ctx, query,
		execID, fill.OrderID, fill.Symbol, string(direction), string(fill.Side),
		fill.Price, fill.Quantity, fill.ExecutedAt)
	if err != nil {
		return fmt.Errorf("executionsRepo.RecordFill insert %s: %w", execID, err)
	}
	return nil
}

type executionRow struct {
	ExecID     string    `db:"exec_id"`
	OrderID    string    `db:"order_id"`
	Symbol     string    `db:"symbol"`
	Price      float64   `db:"price"`
	Quantity   int64     `db:"quantity"`
	ExecutedAt time.Time `db:"executed_at"`
}

func (r *executionsRepo) LoadLots(ctx context.Context, direction broker.Direction) ([]ledger.Lot, error) {
	rows, err := r.loadSide(ctx, direction, broker.OrderSideBuy)
	if err != nil {
		return nil, err
	}
	lots := make([]ledger.Lot, 0, len(rows))
	for _, row := range rows {
		lots = append(lots, ledger.Lot{
			ExecID:     row.ExecID,
			OrderID:    row.OrderID,
			Symbol:     row.Symbol,
			Price:      row.Price,
			Quantity:   row.Quantity,
			ExecutedAt: row.ExecutedAt,
		})
	}
	return lots, nil
}

func (r *executionsRepo) LoadSells(ctx context.Context, direction broker.Direction) ([]ledger.SellRecord, error) {
	rows, err := r.loadSide(ctx, direction, broker.OrderSideSell)
	if err != nil {
		return nil, err
	}
	sells := make([]ledger.SellRecord, 0, len(rows))
	for _, row := range rows {
		sells = append(sells, ledger.SellRecord{
			ExecID:     row.ExecID,
			OrderID:    row.OrderID,
			Symbol:     row.Symbol,
			Price:      row.Price,
			Quantity:   row.Quantity,
			ExecutedAt: row.ExecutedAt,
		})
	}
	return sells, nil
}

func (r *executionsRepo) loadSide(ctx context.Context, direction broker.Direction, side broker.OrderSide) ([]executionRow, error) {
	const query = `
SELECT
    exec_id,
    order_id,
    symbol,
    price,
    quantity,
    executed_at
FROM executions
WHERE direction = $1 AND side = $2 AND executed_at >= $3
ORDER BY executed_at ASC`

	var rows []executionRow
	if err := r.conn.QueryRowsCtx(ctx, &rows, query, string(direction), string(side), r.dayStart()); err != nil {
		return nil, fmt.Errorf("executionsRepo.loadSide %s/%s query: %w", direction, side, err)
	}
	return rows, nil
}
