// Package handshake implements the readiness and version check between the main
// app and its worker window.
//
// On creation the worker sends a ready request carrying its software version. The
// app acknowledges with its own version and records the worker as ready. When the
// versions differ the app sends a one-shot reload-required notification to the
// worker, which is never retried, so a stale worker does not keep running old code
// against a freshly deployed app.
package handshake

import (
	"context"
	"sync"

	"github.com/cortexrd/Knack-Toolkit-Library-sub001/internal/hooks"
	"github.com/cortexrd/Knack-Toolkit-Library-sub001/internal/logging"
	"github.com/cortexrd/Knack-Toolkit-Library-sub001/types"
)

// ReasonVersionMismatch is the reason carried by reload directives of this package.
const ReasonVersionMismatch = "version mismatch"

// Bus is the part of the message bus the handshake uses.
type Bus interface {
	Request(ctx context.Context, body types.Body, src, dst types.Endpoint) types.Message
	Ack(ctx context.Context, req types.Message, body types.Body) error
	Notify(ctx context.Context, body types.Body, src, dst types.Endpoint) (types.Message, error)
}

type options struct {
	logger types.Logger
	hooks  *types.Hooks
}

// Option configures either side of the handshake.
type Option func(*options)

// WithLogger sets the logger.
func WithLogger(logger types.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithHooks sets the application hooks.
func WithHooks(h *types.Hooks) Option {
	return func(o *options) { o.hooks = hooks.WithDefaults(h) }
}

func buildOptions(opts []Option) options {
	o := options{logger: logging.NewNop(), hooks: hooks.WithDefaults(nil)}
	for _, opt := range opts {
		opt(&o)
	}

	return o
}

// handleReload turns a reload-required request into the OnReloadRequired hook.
func handleReload(ctx context.Context, o options, target types.Endpoint, local string, body types.ReloadRequired) {
	directive := types.ReloadDirective{
		Target:        target,
		LocalVersion:  local,
		RemoteVersion: body.Version,
		Reason:        body.Reason,
	}
	o.logger.Warn("reload required", "local_version", local, "remote_version", body.Version, "reason", body.Reason)

	if err := o.hooks.OnReloadRequired(ctx, directive); err != nil {
		o.logger.Error("reload hook failed", "error", err)
	}
}

// ReadyFunc is called on the app side for every ready announcement.
type ReadyFunc func(ctx context.Context, workerVersion string)

// AppSide answers ready announcements in the main app.
type AppSide struct {
	bus     Bus
	version string
	onReady ReadyFunc
	opts    options
}

// NewAppSide creates the app side of the handshake.
//
// Parameters:
//   - b: The app's bus
//   - version: The app's software version
//   - onReady: Called after each acknowledged announcement (may be nil)
func NewAppSide(b Bus, version string, onReady ReadyFunc, opts ...Option) *AppSide {
	return &AppSide{bus: b, version: version, onReady: onReady, opts: buildOptions(opts)}
}

// HandleReady acknowledges the announcement, records readiness and checks the
// version. It has the signature of bus.Handlers.Ready.
func (a *AppSide) HandleReady(ctx context.Context, req types.Message, body types.Ready) {
	if err := a.bus.Ack(ctx, req, types.Ready{Version: a.version}); err != nil {
		a.opts.logger.Debug("ready acknowledge not delivered", "id", req.ID, "error", err)
	}

	a.opts.logger.Info("worker ready", "source", req.Source, "worker_version", body.Version)
	if a.onReady != nil {
		a.onReady(ctx, body.Version)
	}

	if body.Version == a.version {
		return
	}

	directive := types.ReloadDirective{
		Target:        req.Source,
		LocalVersion:  a.version,
		RemoteVersion: body.Version,
		Reason:        ReasonVersionMismatch,
	}
	a.opts.logger.Warn("worker version mismatch", "app_version", a.version, "worker_version", body.Version)

	notice := types.ReloadRequired{Version: a.version, Reason: ReasonVersionMismatch}
	if _, err := a.bus.Notify(ctx, notice, types.EndpointApp, req.Source); err != nil {
		a.opts.logger.Warn("reload notification not delivered", "target", req.Source, "error", err)
	}

	if err := a.opts.hooks.OnVersionMismatch(ctx, directive); err != nil {
		a.opts.logger.Error("version mismatch hook failed", "error", err)
	}
}

// HandleReloadRequired fires OnReloadRequired for the app itself.
func (a *AppSide) HandleReloadRequired(ctx context.Context, _ types.Message, body types.ReloadRequired) {
	handleReload(ctx, a.opts, types.EndpointApp, a.version, body)
}

// WorkerSide announces readiness from the worker window.
type WorkerSide struct {
	bus     Bus
	version string
	opts    options

	mu           sync.Mutex
	announcedID  int64
	acknowledged bool
	appVersion   string
}

// NewWorkerSide creates the worker side of the handshake.
func NewWorkerSide(b Bus, version string, opts ...Option) *WorkerSide {
	return &WorkerSide{bus: b, version: version, opts: buildOptions(opts)}
}

// Announce sends the ready request. The bus retries it until the app acknowledges.
func (w *WorkerSide) Announce(ctx context.Context) types.Message {
	msg := w.bus.Request(ctx, types.Ready{Version: w.version}, types.EndpointWorker, types.EndpointApp)

	w.mu.Lock()
	w.announcedID = msg.ID
	w.acknowledged = false
	w.mu.Unlock()

	w.opts.logger.Info("worker ready announced", "id", msg.ID, "version", w.version)

	return msg
}

// HandleAcknowledged records the app's answer to the announcement. It has the
// signature of bus.Handlers.Acknowledged and ignores other acknowledges.
func (w *WorkerSide) HandleAcknowledged(_ context.Context, ack types.Message) {
	body, ok := ack.Body.(types.Ready)
	if !ok {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if ack.ID != w.announcedID {
		return
	}
	w.acknowledged = true
	w.appVersion = body.Version
}

// HandleReloadRequired fires OnReloadRequired for this worker window.
func (w *WorkerSide) HandleReloadRequired(ctx context.Context, _ types.Message, body types.ReloadRequired) {
	handleReload(ctx, w.opts, types.EndpointWorker, w.version, body)
}

// Acknowledged reports whether the app acknowledged the last announcement.
func (w *WorkerSide) Acknowledged() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.acknowledged
}

// AppVersion returns the version the app acknowledged with.
func (w *WorkerSide) AppVersion() string {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.appVersion
}
