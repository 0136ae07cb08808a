package uploader

import (
	"errors"
	"slices"
	"time"

	"github.com/cortexrd/Knack-Toolkit-Library-sub001/types"
)

// Default timings of the two upload loops.
const (
	DefaultHighPriorityInterval   = 10 * time.Second
	DefaultLowPriorityInterval    = 60 * time.Second
	DefaultDevLowPriorityInterval = 10 * time.Second
	DefaultLowPriorityMaxAge      = 60 * time.Minute
	DefaultDevLowPriorityMaxAge   = 5 * time.Minute
	DefaultSubmitTimeout          = 30 * time.Second
	DefaultCollection             = "ktl_logs"
)

// Config holds the scheduler settings.
type Config struct {
	// Collection is the record collection batches are posted to.
	Collection string

	// UserID is attached to every submitted record.
	UserID string

	// HighPriority and LowPriority are the drain orders of the two loops.
	HighPriority []types.Category
	LowPriority  []types.Category

	HighPriorityInterval time.Duration
	LowPriorityInterval  time.Duration
	LowPriorityMaxAge    time.Duration

	// Developer shortens the low-priority interval and age threshold to the Dev values.
	Developer              bool
	DevLowPriorityInterval time.Duration
	DevLowPriorityMaxAge   time.Duration

	// DeveloperEmail is sent with critical batches so the host can notify someone.
	DeveloperEmail string

	// SubmitTimeout bounds one record upsert.
	SubmitTimeout time.Duration
}

// SetDefaults fills zero-valued fields.
func (c *Config) SetDefaults() {
	if c.Collection == "" {
		c.Collection = DefaultCollection
	}
	if c.HighPriority == nil {
		c.HighPriority = types.HighPriorityCategories()
	}
	if c.LowPriority == nil {
		c.LowPriority = types.LowPriorityCategories()
	}
	if c.HighPriorityInterval == 0 {
		c.HighPriorityInterval = DefaultHighPriorityInterval
	}
	if c.LowPriorityInterval == 0 {
		c.LowPriorityInterval = DefaultLowPriorityInterval
	}
	if c.LowPriorityMaxAge == 0 {
		c.LowPriorityMaxAge = DefaultLowPriorityMaxAge
	}
	if c.DevLowPriorityInterval == 0 {
		c.DevLowPriorityInterval = DefaultDevLowPriorityInterval
	}
	if c.DevLowPriorityMaxAge == 0 {
		c.DevLowPriorityMaxAge = DefaultDevLowPriorityMaxAge
	}
	if c.SubmitTimeout == 0 {
		c.SubmitTimeout = DefaultSubmitTimeout
	}
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if c.HighPriorityInterval <= 0 || c.LowPriorityInterval <= 0 || c.DevLowPriorityInterval <= 0 {
		return errors.New("upload intervals must be positive")
	}
	if c.LowPriorityMaxAge < 0 || c.DevLowPriorityMaxAge < 0 {
		return errors.New("low-priority age thresholds must not be negative")
	}
	if c.SubmitTimeout <= 0 {
		return errors.New("the SubmitTimeout must be positive")
	}
	for _, cat := range c.HighPriority {
		if slices.Contains(c.LowPriority, cat) {
			return errors.New("category " + string(cat) + " is in both priority lists")
		}
	}

	return nil
}

// lowPriorityInterval returns the effective low-priority tick.
func (c *Config) lowPriorityInterval() time.Duration {
	if c.Developer {
		return c.DevLowPriorityInterval
	}

	return c.LowPriorityInterval
}

// lowPriorityMaxAge returns the effective age threshold.
func (c *Config) lowPriorityMaxAge() time.Duration {
	if c.Developer {
		return c.DevLowPriorityMaxAge
	}

	return c.LowPriorityMaxAge
}
