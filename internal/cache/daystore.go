package cache

import (
	"context"
	"fmt"

	"github.com/zeromicro/go-zero/core/stores/redis"

	"rotor-api/pkg/broker"
)

// suppressionExpirySeconds keeps the set alive past the trading day so a
// late-night restart can still inspect it, while guaranteeing eventual
// cleanup. Readers discard entries from other day keys regardless.
const suppressionExpirySeconds = 48 * 60 * 60

// RedisDayStore mirrors day-scoped suppression entries to Redis, implementing
// rotation.DayStore.
type RedisDayStore struct {
	rds *redis.Redis
}

// NewRedisDayStore wraps a go-zero redis client.
func NewRedisDayStore(rds *redis.Redis) *RedisDayStore {
	return &RedisDayStore{rds: rds}
}

// SaveSuppression adds symbol to the day's suppression set.
func (s *RedisDayStore) SaveSuppression(ctx context.Context, dayKey string, direction broker.Direction, symbol string) error {
	key := SuppressionSetKey(dayKey, string(direction))
	if _, err := s.rds.SaddCtx(ctx, key, symbol); err != nil {
		return fmt.Errorf("cache: save suppression %s: %w", key, err)
	}
	if err := s.rds.ExpireCtx(ctx, key, suppressionExpirySeconds); err != nil {
		return fmt.Errorf("cache: expire suppression %s: %w", key, err)
	}
	return nil
}

// RemoveSuppression drops symbol from the day's suppression set.
func (s *RedisDayStore) RemoveSuppression(ctx context.Context, dayKey string, direction broker.Direction, symbol string) error {
	key := SuppressionSetKey(dayKey, string(direction))
	if _, err := s.rds.SremCtx(ctx, key, symbol); err != nil {
		return fmt.Errorf("cache: remove suppression %s: %w", key, err)
	}
	return nil
}

// ListSuppressions returns every suppressed symbol for the day and direction.
func (s *RedisDayStore) ListSuppressions(ctx context.Context, dayKey string, direction broker.Direction) ([]string, error) {
	key := SuppressionSetKey(dayKey, string(direction))
	symbols, err := s.rds.SmembersCtx(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("cache: list suppressions %s: %w", key, err)
	}
	return symbols, nil
}
