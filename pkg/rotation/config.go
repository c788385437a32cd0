package rotation

import (
	"fmt"
	"time"

	"rotor-api/pkg/confkit"
	"rotor-api/pkg/warrant"
)

// Config tunes the rotation state machine for one monitored underlying.
type Config struct {
	// Distance band in percent; a bound instrument whose distance-to-strike
	// falls outside [Min, Max] triggers a rotation.
	MinDistancePct float64 `json:",default=2"`
	MaxDistancePct float64 `json:",default=10"`

	// HoldMinutes is the periodic-rotation window measured in cumulative
	// trading minutes. Zero disables the periodic trigger entirely.
	HoldMinutes int `json:",default=0"`

	// MaxSearchFailuresPerDay freezes a seat for the rest of the trading day
	// once that many candidate searches came up empty.
	MaxSearchFailuresPerDay int `json:",default=3"`

	// DefaultRebuyNotional sizes the repurchase when no realized sell
	// notional was captured during the rotation.
	DefaultRebuyNotional float64 `json:",default=50000"`

	// Candidate screening thresholds per direction.
	Long  warrant.Thresholds `json:",optional"`
	Short warrant.Thresholds `json:",optional"`
}

// LoadConfig reads a rotation config file, applying defaults and environment
// expansion.
func LoadConfig(path string) (*Config, error) {
	cfg, err := confkit.LoadFile[Config](path, true)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// HoldInterval returns the periodic window as a duration; zero means the
// periodic trigger is disabled.
func (c *Config) HoldInterval() time.Duration {
	if c.HoldMinutes <= 0 {
		return 0
	}
	return time.Duration(c.HoldMinutes) * time.Minute
}

// Validate rejects configurations the state machine cannot run with.
func (c *Config) Validate() error {
	if c.MinDistancePct < 0 {
		return fmt.Errorf("rotation: MinDistancePct must be non-negative")
	}
	if c.MaxDistancePct <= c.MinDistancePct {
		return fmt.Errorf("rotation: MaxDistancePct must exceed MinDistancePct")
	}
	if c.HoldMinutes < 0 {
		return fmt.Errorf("rotation: HoldMinutes must be non-negative")
	}
	if c.MaxSearchFailuresPerDay < 0 {
		return fmt.Errorf("rotation: MaxSearchFailuresPerDay must be non-negative")
	}
	if c.DefaultRebuyNotional <= 0 {
		return fmt.Errorf("rotation: DefaultRebuyNotional must be positive")
	}
	return nil
}
