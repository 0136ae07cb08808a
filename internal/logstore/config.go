package logstore

import (
	"errors"
	"strings"
	"time"

	"github.com/cortexrd/Knack-Toolkit-Library-sub001/types"
)

// Defaults of the accumulator.
const (
	DefaultUserID              = "anonymous"
	DefaultMaxEntries          = 100
	DefaultEvictionHeadroom    = 5
	DefaultMaintenanceInterval = time.Hour
)

// DefaultSingleSlot returns the categories whose batch holds one overwritten entry.
func DefaultSingleSlot() []types.Category {
	return []types.Category{types.CategoryActivity}
}

// Config holds the accumulator settings.
type Config struct {
	// UserID scopes the stored batches. Keys are "log.<UserID>.<category>".
	UserID string

	// MaxEntries caps each category batch.
	MaxEntries int

	// EvictionHeadroom is how far a batch may grow past MaxEntries before Add
	// evicts it back down to MaxEntries.
	EvictionHeadroom int

	// SingleSlot categories keep only their latest entry.
	SingleSlot []types.Category

	// MaintenanceInterval is the period of the trimming pass.
	MaintenanceInterval time.Duration
}

// SetDefaults fills zero-valued fields.
func (c *Config) SetDefaults() {
	if c.UserID == "" {
		c.UserID = DefaultUserID
	}
	if c.MaxEntries == 0 {
		c.MaxEntries = DefaultMaxEntries
	}
	if c.EvictionHeadroom == 0 {
		c.EvictionHeadroom = DefaultEvictionHeadroom
	}
	if c.SingleSlot == nil {
		c.SingleSlot = DefaultSingleSlot()
	}
	if c.MaintenanceInterval == 0 {
		c.MaintenanceInterval = DefaultMaintenanceInterval
	}
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if strings.ContainsAny(c.UserID, ". *>") {
		return errors.New("the UserID must not contain '.', ' ', '*' or '>'")
	}
	if c.MaxEntries < 1 {
		return errors.New("the MaxEntries must be at least 1")
	}
	if c.EvictionHeadroom < 0 {
		return errors.New("the EvictionHeadroom must not be negative")
	}
	if c.MaintenanceInterval <= 0 {
		return errors.New("the MaintenanceInterval must be positive")
	}

	return nil
}
