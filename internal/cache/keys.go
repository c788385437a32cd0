package cache

import (
	"strings"
	"time"

	"rotor-api/internal/config"
)

// Namespace is the Redis key prefix for the rotor application.
const Namespace = "rotor"

// TTLClass represents a config-driven TTL bucket.
type TTLClass string

const (
	TTLShort  TTLClass = "short"
	TTLMedium TTLClass = "medium"
	TTLLong   TTLClass = "long"
)

// TTLSet normalises cache TTLs from config into time.Duration values.
type TTLSet struct {
	Short  time.Duration
	Medium time.Duration
	Long   time.Duration
}

// NewTTLSet converts config TTLs (in seconds) into durations.
func NewTTLSet(cfg config.CacheTTL) TTLSet {
	return TTLSet{
		Short:  durationOrDefault(cfg.Short, 10*time.Second),
		Medium: durationOrDefault(cfg.Medium, time.Minute),
		Long:   durationOrDefault(cfg.Long, 5*time.Minute),
	}
}

func durationOrDefault(seconds int, fallback time.Duration) time.Duration {
	if seconds < 0 {
		return 0
	}
	if seconds == 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}

// Duration returns the configured duration for the given TTL class.
func (t TTLSet) Duration(class TTLClass) time.Duration {
	switch class {
	case TTLShort:
		return t.Short
	case TTLMedium:
		return t.Medium
	case TTLLong:
		return t.Long
	default:
		return 0
	}
}

func formatKey(parts ...string) string {
	values := make([]string, 0, len(parts)+1)
	values = append(values, Namespace)
	for _, part := range parts {
		clean := strings.TrimSpace(part)
		if clean == "" {
			continue
		}
		values = append(values, clean)
	}
	return strings.Join(values, ":")
}

// --- Suppression Keys -------------------------------------------------------

// SuppressionSetKey holds the day-scoped set of instruments that must not be
// re-picked for a direction.
func SuppressionSetKey(dayKey, direction string) string {
	return formatKey("suppress", dayKey, direction)
}

// --- Seat & Ingest Keys -----------------------------------------------------

// SeatSnapshotKey stores the serialized seat for crash inspection.
func SeatSnapshotKey(monitorSymbol, direction string) string {
	return formatKey("seat", monitorSymbol, direction)
}

// ExecIngestGuardKey prevents duplicate ingestion of the same execution print.
func ExecIngestGuardKey(execID string) string {
	return formatKey("ingest", "exec", execID)
}

// --- TTL Helpers ------------------------------------------------------------

// SeatSnapshotTTL returns the TTL for seat snapshots.
func SeatSnapshotTTL(ttl TTLSet) time.Duration {
	return ttl.Duration(TTLLong)
}

// ExecIngestGuardTTL returns the TTL for execution idempotency guards.
func ExecIngestGuardTTL() time.Duration {
	return 24 * time.Hour
}
