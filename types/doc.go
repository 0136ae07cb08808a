// Package types holds the shared definitions of the ktl window bus.
//
// The message model, log batch model and the interfaces to the host collaborators
// (key-value store, cross-window channel, embedded window, record API) live here so
// internal packages can depend on them without importing the root ktl package.
//
// Key types:
//   - Message, Body: request/acknowledge envelope and its closed set of kinds
//   - LogEntry, LogBatch, Category: telemetry records kept in the key-value store
//   - KVStore, Channel, Window, WindowFactory, RecordAPI: host collaborators
//   - Logger, MetricsCollector, Hooks: ambient dependencies
package types
