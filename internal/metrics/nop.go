// Package metrics provides no-op and Prometheus implementations of types.MetricsCollector.
package metrics

import (
	"time"

	"github.com/cortexrd/Knack-Toolkit-Library-sub001/types"
)

// NopMetrics discards all metrics.
type NopMetrics struct{}

var _ types.MetricsCollector = (*NopMetrics)(nil)

// NewNop creates a new no-op metrics collector.
//
// Example:
//
//	app, err := ktl.NewApp(&cfg, deps, ktl.WithMetrics(metrics.NewNop()))
func NewNop() *NopMetrics {
	return &NopMetrics{}
}

// BusMetrics implementation

// RecordMessageSent discards the sent message metric.
func (n *NopMetrics) RecordMessageSent(_ /* msgType */ types.MessageType, _ /* subtype */ types.Subtype) {
	// No-op
}

// RecordMessageRetry discards the retry metric.
func (n *NopMetrics) RecordMessageRetry(_ /* msgType */ types.MessageType) {
	// No-op
}

// RecordMessageFailed discards the failure metric.
func (n *NopMetrics) RecordMessageFailed(_ /* msgType */ types.MessageType) {
	// No-op
}

// RecordPendingMessages discards the pending gauge.
func (n *NopMetrics) RecordPendingMessages(_ /* count */ int) {
	// No-op
}

// HeartbeatMetrics implementation

// RecordHeartbeat discards the heartbeat metric.
func (n *NopMetrics) RecordHeartbeat(_ /* success */ bool) {
	// No-op
}

// WorkerMetrics implementation

// RecordWorkerCreated discards the creation metric.
func (n *NopMetrics) RecordWorkerCreated() {
	// No-op
}

// RecordWorkerRecreated discards the recreation metric.
func (n *NopMetrics) RecordWorkerRecreated(_ /* reason */ string) {
	// No-op
}

// TelemetryMetrics implementation

// RecordLogAdded discards the log metric.
func (n *NopMetrics) RecordLogAdded(_ /* category */ types.Category) {
	// No-op
}

// RecordLogEvicted discards the eviction metric.
func (n *NopMetrics) RecordLogEvicted(_ /* category */ types.Category, _ /* count */ int) {
	// No-op
}

// RecordSubmission discards the submission metric.
func (n *NopMetrics) RecordSubmission(_ /* category */ types.Category, _ /* success */ bool, _ /* duration */ time.Duration) {
	// No-op
}
