// Package logstore accumulates telemetry log entries in the shared key-value store.
//
// Entries are grouped into one types.LogBatch per category and user, stored as JSON
// under "log.<userID>.<category>". The Sent flag of a batch is the coordination
// point with the upload scheduler and with other windows sharing the store:
//
//	Add      → Sent=false, new BatchID
//	Claim    → Sent=true (persisted before submission)
//	Release  → Sent=false after a failed submission, merged with newer entries
//
// Coordination through the flag is best-effort. Two windows can claim the same
// batch in a narrow race and submit it twice; no locking is attempted.
package logstore
