// Package ktl provides a Go library for the message bus between an application window
// and its hidden worker window, with heartbeat supervision and prioritized telemetry upload.
//
// The app window opens a worker window, exchanges requests with it that are retried
// until acknowledged, and checks its health with periodic heartbeats. Both windows
// accumulate log entries in a shared key-value store; the worker uploads them to a
// record API on a per-priority schedule.
//
// # Quick Start
//
// The app side, with a worker window hosted over NATS:
//
//	import "github.com/cortexrd/Knack-Toolkit-Library-sub001"
//
//	cfg := ktl.DefaultConfig()
//	cfg.AppVersion = "1.4.2"
//	cfg.UserID = "u123"
//
//	app, err := ktl.NewApp(cfg, ktl.AppDeps{Store: store, Windows: windows})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := app.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer app.Stop()
//
//	_ = app.AddLog(ctx, ktl.CategoryInfo, "page loaded")
//
// The worker side runs inside the window the app opened:
//
//	w, err := ktl.NewWorker(cfg, ktl.WorkerDeps{Store: store, Parent: parent, Records: records})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := w.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer w.Stop()
//
// # Key Features
//
//   - Reliable requests: Requests are resent every expiration window until acknowledged
//   - Heartbeat supervision: An unresponsive worker window is closed and recreated
//   - Version handshake: A version mismatch asks the worker window to reload
//   - Bounded log batches: Each category keeps the newest entries, some only the latest
//   - Prioritized upload: Critical and error logs go out quickly, others once old enough
//
// # Architecture
//
// The worker window progresses through a small state machine:
//
//	ABSENT → CREATING → READY
//
// The app's heartbeat monitor starts on the first ready announcement. When a
// heartbeat exhausts its retries the monitor stops, the window is recreated and the
// monitor resumes once the new window announces readiness.
//
// # Advanced Usage
//
// Hooks and handlers for application requests:
//
//	hooks := &ktl.Hooks{
//	    OnReloadRequired: func(ctx context.Context, d ktl.ReloadDirective) error {
//	        // Reload the window
//	        return nil
//	    },
//	}
//
//	w, err := ktl.NewWorker(cfg, deps,
//	    ktl.WithHooks(hooks),
//	    ktl.WithCustomHandler(func(ctx context.Context, req ktl.Message) error {
//	        return handle(req)
//	    }),
//	)
//
// See cmd/ktlbus for a complete NATS-backed deployment.
package ktl
