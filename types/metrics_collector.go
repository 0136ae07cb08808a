package types

import "time"

// MetricsCollector defines methods for recording operational metrics.
//
// Implementations should be non-blocking and must be safe for concurrent use.
type MetricsCollector interface {
	BusMetrics
	HeartbeatMetrics
	WorkerMetrics
	TelemetryMetrics
}

// BusMetrics covers the message envelope and queue.
type BusMetrics interface {
	// RecordMessageSent records a dispatched message, including retries.
	RecordMessageSent(msgType MessageType, subtype Subtype)

	// RecordMessageRetry records a re-send of an expired request.
	RecordMessageRetry(msgType MessageType)

	// RecordMessageFailed records a request whose retries were exhausted.
	RecordMessageFailed(msgType MessageType)

	// RecordPendingMessages sets the size of the pending table (gauge).
	RecordPendingMessages(count int)
}

// HeartbeatMetrics covers the heartbeat responder.
type HeartbeatMetrics interface {
	// RecordHeartbeat records whether a heartbeat was acknowledged by this window.
	RecordHeartbeat(success bool)
}

// WorkerMetrics covers the worker window lifecycle.
type WorkerMetrics interface {
	// RecordWorkerCreated records a worker window creation.
	RecordWorkerCreated()

	// RecordWorkerRecreated records a teardown and recreation.
	//
	// Parameters:
	//   - reason: "creation_timeout", "unresponsive" or "periodic"
	RecordWorkerRecreated(reason string)
}

// TelemetryMetrics covers the log accumulator and upload scheduler.
type TelemetryMetrics interface {
	// RecordLogAdded records a log entry accepted by the accumulator.
	RecordLogAdded(category Category)

	// RecordLogEvicted records entries dropped by the entry cap.
	RecordLogEvicted(category Category, count int)

	// RecordSubmission records a batch submission outcome and its latency.
	RecordSubmission(category Category, success bool, duration time.Duration)
}
