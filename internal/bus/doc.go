// Package bus implements reliable request/acknowledge messaging between windows.
//
// A request is stored in a PendingTable until an acknowledge with the same id
// arrives. A 1 Hz scan re-dispatches expired requests with their original id and
// gives up after a fixed number of attempts. Transport is delegated to a
// Dispatcher, which may silently drop messages; the retry layer exists for that.
//
// # Failure Reporting
//
// Each request is reported at most once:
//
//   - heartbeat: every pending heartbeat is purged and the unresponsive handler
//     runs, which recreates the worker window
//   - anything else: the OnMessageFailed hook receives the type and id
//
// # Inbound Messages
//
// Receive settles acknowledges and dispatches requests to Handlers with a type
// switch over the closed set of body kinds. Any heartbeat acknowledge settles all
// pending heartbeats, since only the latest liveness signal matters.
package bus
