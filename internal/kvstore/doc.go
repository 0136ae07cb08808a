// Package kvstore provides the persistent key-value store used for durability across
// window reloads.
//
// The store mirrors browser localStorage: string values, last-writer-wins, shared by
// every window of one application instance. Three backends are provided:
//
//   - Memory: in-process map, for tests and single-process deployments
//   - NATS: a JetStream KV bucket, shared across processes
//   - SQLite: a single-file database via modernc.org/sqlite
//
// Namespace wraps any backend and prefixes keys with the application-root prefix
// supplied by the host environment.
package kvstore
