package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

// RotationEventRecord is the persisted form of one terminal rotation.
type RotationEventRecord struct {
	ID                int64
	MonitorSymbol     string
	Direction         string
	SeatVersion       int64
	Trigger           string
	Stage             string
	OldSymbol         *string
	NextSymbol        *string
	NextCallPrice     *float64
	SellNotional      *float64
	FailReason        *string
	CancelledOrderIDs []string
	StartedAt         time.Time
	EndedAt           time.Time
}

// RotationsRepo persists terminal rotations for audit queries.
type RotationsRepo interface {
	RecordRotation(ctx context.Context, rec RotationEventRecord) error
	// RecentByDirection returns rotations ordered by end time descending.
	RecentByDirection(ctx context.Context, direction string, limit int) ([]RotationEventRecord, error)
}

type rotationsRepo struct {
	conn sqlx.SqlConn
}

func newRotationsRepo(deps Dependencies) RotationsRepo {
	return &rotationsRepo{
		conn: deps.DBConn,
	}
}

func (r *rotationsRepo) RecordRotation(ctx context.Context, rec RotationEventRecord) error {
	const query = `
INSERT INTO rotation_events (
    monitor_symbol,
    direction,
    seat_version,
    trigger_kind,
    stage,
    old_symbol,
    next_symbol,
    next_call_price,
    sell_notional,
    fail_reason,
    cancelled_order_ids,
    started_at,
    ended_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := r.conn.ExecCtx(ctx, query,
		rec.MonitorSymbol, rec.Direction, rec.SeatVersion, rec.Trigger, rec.Stage,
		rec.OldSymbol, rec.NextSymbol, rec.NextCallPrice, rec.SellNotional, rec.FailReason,
		pq.Array(rec.CancelledOrderIDs), rec.StartedAt, rec.EndedAt)
	if err != nil {
		return fmt.Errorf("rotationsRepo.RecordRotation insert %s v%d: %w", rec.Direction, rec.SeatVersion, err)
	}
	return nil
}

type rotationRow struct {
	ID                int64           `db:"id"`
	MonitorSymbol     string          `db:"monitor_symbol"`
	Direction         string          `db:"direction"`
	SeatVersion       int64           `db:"seat_version"`
	Trigger           string          `db:"trigger_kind"`
	Stage             string          `db:"stage"`
	OldSymbol         sql.NullString  `db:"old_symbol"`
	NextSymbol        sql.NullString  `db:"next_symbol"`
	NextCallPrice     sql.NullFloat64 `db:"next_call_price"`
	SellNotional      sql.NullFloat64 `db:"sell_notional"`
	FailReason        sql.NullString  `db:"fail_reason"`
	CancelledOrderIDs pq.StringArray  `db:"cancelled_order_ids"`
	StartedAt         time.Time       `db:"started_at"`
	EndedAt           time.Time       `db:"ended_at"`
}

func (r *rotationsRepo) RecentByDirection(ctx context.Context, direction string, limit int) ([]RotationEventRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	const query = `
SELECT
    id,
    monitor_symbol,
    direction,
    seat_version,
    trigger_kind,
    stage,
    old_symbol,
    next_symbol,
    next_call_price,
    sell_notional,
    fail_reason,
    cancelled_order_ids,
    started_at,
    ended_at
FROM rotation_events
WHERE direction = $1
ORDER BY ended_at DESC
LIMIT $2`

	var rows []rotationRow
	if err := r.conn.QueryRowsCtx(ctx, &rows, query, direction, limit); err != nil {
		return nil, fmt.Errorf("rotationsRepo.RecentByDirection query: %w", err)
	}

	result := make([]RotationEventRecord, 0, len(rows))
	for _, row := range rows {
		rec := RotationEventRecord{
			ID:                row.ID,
			MonitorSymbol:     row.MonitorSymbol,
			Direction:         row.Direction,
			SeatVersion:       row.SeatVersion,
			Trigger:           row.Trigger,
			Stage:             row.Stage,
			CancelledOrderIDs: []string(row.CancelledOrderIDs),
			StartedAt:         row.StartedAt,
			EndedAt:           row.EndedAt,
		}
		if row.OldSymbol.Valid {
			value := row.OldSymbol.String
			rec.OldSymbol = &value
		}
		if row.NextSymbol.Valid {
			value := row.NextSymbol.String
			rec.NextSymbol = &value
		}
		if row.NextCallPrice.Valid {
			value := row.NextCallPrice.Float64
			rec.NextCallPrice = &value
		}
		if row.SellNotional.Valid {
			value := row.SellNotional.Float64
			rec.SellNotional = &value
		}
		if row.FailReason.Valid {
			value := row.FailReason.String
			rec.FailReason = &value
		}
		result = append(result, rec)
	}

	return result, nil
}
