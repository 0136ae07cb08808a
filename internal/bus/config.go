package bus

import (
	"errors"
	"time"
)

// Default timings of the retry layer.
const (
	DefaultExpirationWindow = 10 * time.Second
	DefaultMaxRetries       = 5
	DefaultTickInterval     = time.Second
)

// Config holds the retry parameters of a Bus.
//
// Zero-valued fields are replaced by defaults in SetDefaults.
type Config struct {
	ExpirationWindow time.Duration // Lifetime of one delivery attempt (default: 10s)
	MaxRetries       int           // Attempts before a request permanently fails (default: 5)
	TickInterval     time.Duration // Period of the expiration scan (default: 1s)
}

// SetDefaults fills zero-valued fields.
func (c *Config) SetDefaults() {
	if c.ExpirationWindow == 0 {
		c.ExpirationWindow = DefaultExpirationWindow
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.TickInterval == 0 {
		c.TickInterval = DefaultTickInterval
	}
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if c.ExpirationWindow <= 0 {
		return errors.New("the ExpirationWindow must be positive")
	}
	if c.MaxRetries < 1 {
		return errors.New("the MaxRetries must be at least 1")
	}
	if c.TickInterval <= 0 {
		return errors.New("the TickInterval must be positive")
	}

	return nil
}
