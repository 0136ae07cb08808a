package types

import "context"

// ReloadDirective tells a window to reload because its code version is stale.
type ReloadDirective struct {
	Target        Endpoint
	LocalVersion  string
	RemoteVersion string
	Reason        string
}

// Hooks defines callbacks for events that cross from the bus into the application.
//
// All hooks are optional. Recoverable conditions are handled inside the component that
// detects them; only permanent failures, forced reloads and escalations reach a hook.
//
// Hooks run on the goroutine that detected the event and should return quickly.
// Hook errors are logged and never change the component's behavior.
//
// Example:
//
//	hooks := &ktl.Hooks{
//	    OnMessageFailed: func(ctx context.Context, f ktl.MessageFailure) error {
//	        log.Printf("message %s/%d gave up", f.Type, f.ID)
//	        return nil
//	    },
//	}
type Hooks struct {
	// OnMessageFailed is called once for each non-heartbeat request whose retries are exhausted.
	OnMessageFailed func(ctx context.Context, failure MessageFailure) error

	// OnWorkerUnresponsive is called when heartbeat retries are exhausted, before the
	// worker window is recreated.
	OnWorkerUnresponsive func(ctx context.Context, windowID string) error

	// OnVersionMismatch is called on the app side when the worker reports a different version.
	OnVersionMismatch func(ctx context.Context, directive ReloadDirective) error

	// OnReloadRequired is called when this window must reload.
	OnReloadRequired func(ctx context.Context, directive ReloadDirective) error

	// OnError is called when a recoverable internal error occurs.
	OnError func(ctx context.Context, err error) error
}
