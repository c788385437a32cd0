package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/zeromicro/go-zero/core/stores/redis"

	"rotor-api/pkg/rotation"
)

// Mirror writes operational snapshots to Redis: the latest seat state for
// crash inspection and an idempotency guard keyed by order id so a replayed
// fill stream does not hit Postgres twice.
type Mirror struct {
	rds *redis.Redis
	ttl TTLSet
}

func NewMirror(rds *redis.Redis, ttl TTLSet) *Mirror {
	return &Mirror{rds: rds, ttl: ttl}
}

// SaveSeat stores the serialized seat under its snapshot key.
func (m *Mirror) SaveSeat(ctx context.Context, seat rotation.Seat) error {
	payload, err := json.Marshal(seat)
	if err != nil {
		return fmt.Errorf("cache: marshal seat snapshot: %w", err)
	}
	key := SeatSnapshotKey(seat.MonitorSymbol, string(seat.Direction))
	seconds := int(SeatSnapshotTTL(m.ttl).Seconds())
	if err := m.rds.SetexCtx(ctx, key, string(payload), seconds); err != nil {
		return fmt.Errorf("cache: save seat snapshot: %w", err)
	}
	return nil
}

// LoadSeat returns the stored snapshot, or nil when none exists.
func (m *Mirror) LoadSeat(ctx context.Context, monitorSymbol, direction string) (*rotation.Seat, error) {
	raw, err := m.rds.GetCtx(ctx, SeatSnapshotKey(monitorSymbol, direction))
	if err != nil {
		return nil, fmt.Errorf("cache: load seat snapshot: %w", err)
	}
	if raw == "" {
		return nil, nil
	}
	var seat rotation.Seat
	if err := json.Unmarshal([]byte(raw), &seat); err != nil {
		return nil, fmt.Errorf("cache: decode seat snapshot: %w", err)
	}
	return &seat, nil
}

// FirstIngest reports whether this is the first time the execution id has
// been seen within the guard window.
func (m *Mirror) FirstIngest(ctx context.Context, execID string) (bool, error) {
	seconds := int(ExecIngestGuardTTL().Seconds())
	ok, err := m.rds.SetnxExCtx(ctx, ExecIngestGuardKey(execID), "1", seconds)
	if err != nil {
		return false, fmt.Errorf("cache: exec ingest guard: %w", err)
	}
	return ok, nil
}
