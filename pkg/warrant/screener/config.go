package screener

import (
	"fmt"
	"net/http"
	"time"

	"rotor-api/pkg/confkit"
)

// Config describes the screener endpoint.
type Config struct {
	BaseURL        string
	TimeoutSeconds int `json:",default=10"`
	MaxRetries     int `json:",default=3"`
}

// LoadConfig reads a screener config file, applying defaults and environment
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

// Validate rejects configurations the client cannot run with.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("screener: BaseURL is required")
	}
	if c.TimeoutSeconds <= 0 {
		return fmt.Errorf("screener: TimeoutSeconds must be positive, got %d", c.TimeoutSeconds)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("screener: MaxRetries must be non-negative")
	}
	return nil
}

// NewClientFromConfig builds a Client for one underlying from a validated
// Config.
func NewClientFromConfig(cfg *Config, underlying string) *Client {
	return NewClient(cfg.BaseURL, underlying,
		WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second}),
		WithMaxRetries(cfg.MaxRetries),
	)
}
