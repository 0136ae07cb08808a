// Package heartbeat implements the liveness protocol between the main app and
// its worker window.
//
// # Design Overview
//
// The protocol rides on the message bus:
//
//   - The app's Monitor sends a heartbeat request immediately on Start and then
//     once per interval (60s by default)
//   - The worker's Responder stamps a liveness record through the host record API,
//     waits for the write, checks clock skew and acknowledges
//   - Any heartbeat acknowledge settles all pending heartbeats on the app side
//   - A heartbeat that exhausts its retries marks the worker unresponsive and the
//     lifecycle manager recreates the window
//
// # Monitor Lifecycle
//
//	Idle → Running → Idle
//
// Stop purges pending heartbeats so a stale retry never fires against a torn-down
// window.
//
// Example:
//
//	mon := heartbeat.NewMonitor(b, time.Minute)
//	if err := mon.Start(ctx); err != nil {
//	    return err
//	}
//	defer mon.Stop()
//
// # Failure Path
//
// The responder never sends a negative answer. A failed liveness write or a skew
// beyond the bound simply withholds the acknowledge, and upstream retry exhaustion
// does the rest.
package heartbeat
