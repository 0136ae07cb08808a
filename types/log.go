package types

import "time"

// Category groups log entries into one stored batch per user.
type Category string

// Built-in categories. High-priority categories ship within seconds, low-priority
// ones are batched over time.
const (
	CategoryCritical    Category = "critical"
	CategoryAppError    Category = "app-error"
	CategoryWarning     Category = "warning"
	CategoryInfo        Category = "info"
	CategoryDebug       Category = "debug"
	CategoryLogin       Category = "login"
	CategoryActivity    Category = "activity"
	CategoryNavigation  Category = "navigation"
	CategoryServerError Category = "server-error"
)

// HighPriorityCategories is the default drain order of the high-priority loop.
func HighPriorityCategories() []Category {
	return []Category{
		CategoryCritical,
		CategoryAppError,
		CategoryWarning,
		CategoryInfo,
		CategoryDebug,
		CategoryLogin,
	}
}

// LowPriorityCategories is the default drain order of the low-priority loop.
func LowPriorityCategories() []Category {
	return []Category{
		CategoryActivity,
		CategoryNavigation,
		CategoryServerError,
	}
}

// LogEntry is a single telemetry record.
type LogEntry struct {
	Timestamp time.Time `json:"ts"`
	Category  Category  `json:"cat"`
	Details   string    `json:"details"`
}

// LogBatch is the stored form of one category for one user. Entries are newest first.
type LogBatch struct {
	Entries []LogEntry `json:"logs"`
	BatchID string     `json:"logId"`

	// Sent is set once a window claims the batch for submission. It is shared through
	// the key-value store across tabs on a best-effort basis; rare races may still
	// submit a batch twice.
	Sent bool `json:"sent"`
}

// IsEmpty reports whether the batch holds no entries.
func (b LogBatch) IsEmpty() bool {
	return len(b.Entries) == 0
}

// Oldest returns the timestamp of the oldest entry, or the zero time for an empty batch.
func (b LogBatch) Oldest() time.Time {
	if len(b.Entries) == 0 {
		return time.Time{}
	}

	return b.Entries[len(b.Entries)-1].Timestamp
}
