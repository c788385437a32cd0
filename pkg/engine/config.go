package engine

import (
	"fmt"

	"rotor-api/pkg/confkit"
)

// Config drives the orchestration loop for one monitor symbol.
type Config struct {
	// MonitorSymbol is the underlying index or stock whose price feeds the
	// distance trigger for both seats.
	MonitorSymbol string

	// TickSeconds is the periodic maintenance cadence: position refresh and
	// holding-window evaluation.
	TickSeconds int `json:",default=5"`

	// OpenProtectionMinutes suppresses the periodic trigger for the first
	// minutes after the morning open, while the auction print settles.
	OpenProtectionMinutes int `json:",default=15"`
}

// LoadConfig reads an engine config file, applying defaults and environment
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

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.MonitorSymbol == "" {
		return fmt.Errorf("engine: MonitorSymbol is required")
	}
	if c.TickSeconds <= 0 {
		return fmt.Errorf("engine: TickSeconds must be positive, got %d", c.TickSeconds)
	}
	if c.OpenProtectionMinutes < 0 {
		return fmt.Errorf("engine: OpenProtectionMinutes must be non-negative")
	}
	return nil
}
