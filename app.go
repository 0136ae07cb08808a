package ktl

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cortexrd/Knack-Toolkit-Library-sub001/internal/bus"
	"github.com/cortexrd/Knack-Toolkit-Library-sub001/internal/handshake"
	"github.com/cortexrd/Knack-Toolkit-Library-sub001/internal/heartbeat"
	"github.com/cortexrd/Knack-Toolkit-Library-sub001/internal/kvstore"
	"github.com/cortexrd/Knack-Toolkit-Library-sub001/internal/logstore"
	"github.com/cortexrd/Knack-Toolkit-Library-sub001/internal/router"
	"github.com/cortexrd/Knack-Toolkit-Library-sub001/internal/uploader"
	"github.com/cortexrd/Knack-Toolkit-Library-sub001/internal/worker"
	"github.com/cortexrd/Knack-Toolkit-Library-sub001/types"
)

// AppDeps are the external collaborators of the main app runtime.
type AppDeps struct {
	// Store is the shared key-value store. It is namespaced with Config.Namespace.
	Store KVStore

	// Windows opens the worker window. Required when Config.Worker.Enabled.
	Windows WindowFactory

	// Records receives log batches. Required when the worker window is disabled,
	// because the app then runs the upload scheduler itself.
	Records RecordAPI
}

// App is the main application window's runtime.
//
// It owns the message bus, the worker window, the heartbeat monitor and the log
// accumulator. The heartbeat monitor starts when the worker first announces
// readiness. Telemetry upload runs in the worker window; only when the worker is
// disabled does the app upload its own logs.
type App struct {
	cfg  Config
	opts runtimeOptions

	bus       *bus.Bus
	manager   *worker.Manager
	monitor   *heartbeat.Monitor
	handshake *handshake.AppSide
	logs      *logstore.Accumulator
	uploader  *uploader.Scheduler

	mu      sync.Mutex
	started bool
}

var _ Receiver = (*App)(nil)

// NewApp creates the main app runtime.
//
// Parameters:
//   - cfg: Configuration; zero values take defaults
//   - deps: External collaborators
//   - opts: Optional logger, metrics, hooks and handlers
//
// Returns:
//   - *App: The runtime, not yet started
//   - error: ErrInvalidConfig, ErrStoreRequired, ErrWindowFactoryRequired or ErrRecordAPIRequired
//
// Example:
//
//	app, err := ktl.NewApp(cfg, ktl.AppDeps{Store: store, Windows: windows})
//	if err != nil {
//	    return err
//	}
//	if err := app.Start(ctx); err != nil {
//	    return err
//	}
//	defer app.Stop()
func NewApp(cfg Config, deps AppDeps, opts ...Option) (*App, error) {
	SetDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if deps.Store == nil {
		return nil, ErrStoreRequired
	}
	if cfg.Worker.Enabled && deps.Windows == nil {
		return nil, ErrWindowFactoryRequired
	}
	if !cfg.Worker.Enabled && deps.Records == nil {
		return nil, ErrRecordAPIRequired
	}

	a := &App{cfg: cfg, opts: buildOptions(opts)}
	cfg.ValidateWithWarnings(a.opts.logger)

	rt := router.New(
		router.WithWorker(a.workerChannel),
		router.WithFallback(a.opts.fallback),
		router.WithLogger(a.opts.logger),
	)

	var err error
	a.bus, err = bus.New(bus.NewPendingTable(), rt, cfg.busConfig(),
		bus.WithLogger(a.opts.logger),
		bus.WithMetrics(a.opts.metrics),
		bus.WithHooks(a.opts.hooks),
		bus.WithUnresponsiveHandler(a.onUnresponsive),
	)
	if err != nil {
		return nil, err
	}

	if cfg.Worker.Enabled {
		workerOpts := []worker.Option{
			worker.WithLogger(a.opts.logger),
			worker.WithMetrics(a.opts.metrics),
			worker.WithHooks(a.opts.hooks),
		}
		if a.opts.session != nil {
			workerOpts = append(workerOpts, worker.WithSession(a.opts.session))
		}
		a.manager, err = worker.NewManager(deps.Windows, a.bus, cfg.workerConfig(), workerOpts...)
		if err != nil {
			return nil, err
		}
	}

	a.monitor = heartbeat.NewMonitor(a.bus, cfg.Heartbeat.Interval,
		heartbeat.WithLogger(a.opts.logger),
		heartbeat.WithMetrics(a.opts.metrics),
	)

	a.handshake = handshake.NewAppSide(a.bus, cfg.AppVersion, a.onWorkerReady,
		handshake.WithLogger(a.opts.logger),
		handshake.WithHooks(a.opts.hooks),
	)

	store := kvstore.Namespace(deps.Store, cfg.Namespace)
	a.logs, err = logstore.New(store, cfg.logstoreConfig(),
		logstore.WithLogger(a.opts.logger),
		logstore.WithMetrics(a.opts.metrics),
	)
	if err != nil {
		return nil, err
	}

	if !cfg.Worker.Enabled {
		a.uploader, err = newUploader(a.logs, deps.Records, &cfg, a.opts)
		if err != nil {
			return nil, err
		}
	}

	a.bus.SetHandlers(bus.Handlers{
		Ready:            a.handshake.HandleReady,
		ReloadRequired:   a.handshake.HandleReloadRequired,
		PreferenceChange: preferenceHandler(a.bus, a.opts.preference),
		Custom:           customHandler(a.bus, a.opts.custom),
	})

	return a, nil
}

// Start runs the retry ticker, log maintenance, the worker window and, when the
// worker is disabled, the upload scheduler.
//
// Returns:
//   - error: ErrAlreadyStarted if running
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.started {
		return ErrAlreadyStarted
	}

	if err := a.bus.Start(ctx); err != nil {
		return err
	}
	if err := a.logs.Start(ctx); err != nil {
		_ = a.bus.Stop()
		return err
	}
	if a.uploader != nil {
		if err := a.uploader.Start(ctx); err != nil {
			_ = a.logs.Stop()
			_ = a.bus.Stop()

			return err
		}
	}

	// Set before the window opens so an immediate ready announcement starts the monitor.
	a.started = true

	if a.manager != nil {
		a.mu.Unlock()
		err := a.manager.Start(ctx)
		a.mu.Lock()
		if err != nil {
			a.opts.logger.Error("worker window manager failed to start", "error", err)
		}
	}

	a.opts.logger.Info("app runtime started",
		"version", a.cfg.AppVersion,
		"worker_enabled", a.cfg.Worker.Enabled,
	)

	return nil
}

// Stop halts every component and closes the worker window.
//
// Returns:
//   - error: ErrNotStarted if idle, or the joined component errors
func (a *App) Stop() error {
	a.mu.Lock()
	if !a.started {
		a.mu.Unlock()
		return ErrNotStarted
	}
	a.started = false
	a.mu.Unlock()

	var errs []error
	if a.uploader != nil {
		errs = append(errs, a.uploader.Stop())
	}
	// No retry ticks past this point, so nothing recreates the window while it closes.
	errs = append(errs, a.bus.Stop())
	if err := a.monitor.Stop(); err != nil && !errors.Is(err, ErrNotStarted) {
		errs = append(errs, err)
	}
	if a.manager != nil {
		errs = append(errs, a.manager.Stop())
	}
	errs = append(errs, a.logs.Stop())

	a.opts.logger.Info("app runtime stopped")

	return errors.Join(errs...)
}

// Receive handles a message delivered to the app window.
func (a *App) Receive(ctx context.Context, msg Message) {
	a.bus.Receive(ctx, msg)
}

// Send sends a request from the app to dst. It is retried until acknowledged.
func (a *App) Send(ctx context.Context, body Body, dst Endpoint) Message {
	return a.bus.Request(ctx, body, EndpointApp, dst)
}

// AddLog records a log entry.
func (a *App) AddLog(ctx context.Context, category Category, details string) error {
	return a.logs.Add(ctx, category, details)
}

// LogBatch returns the stored batch of category.
func (a *App) LogBatch(ctx context.Context, category Category) (LogBatch, error) {
	return a.logs.Batch(ctx, category)
}

// WorkerState returns the worker window state.
func (a *App) WorkerState() WorkerState {
	if a.manager == nil {
		return WorkerAbsent
	}

	return a.manager.State()
}

// WorkerReady reports whether the worker window announced readiness.
func (a *App) WorkerReady() bool {
	return a.WorkerState() == WorkerReady
}

// WorkerVersion returns the version of the last ready announcement.
func (a *App) WorkerVersion() string {
	if a.manager == nil {
		return ""
	}

	return a.manager.Version()
}

// MonitorState returns the heartbeat monitor state.
func (a *App) MonitorState() MonitorState {
	return a.monitor.State()
}

// Pending returns the pending requests, oldest first.
func (a *App) Pending() []Message {
	return a.bus.Pending()
}

func (a *App) workerChannel() types.Channel {
	if a.manager == nil {
		return nil
	}

	return a.manager.Channel()
}

func (a *App) onWorkerReady(ctx context.Context, version string) {
	if a.manager != nil {
		a.manager.MarkReady(version)
	}

	// Held so Stop cannot miss a monitor started concurrently.
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.started {
		return
	}

	if err := a.monitor.Start(ctx); err != nil && !errors.Is(err, ErrAlreadyStarted) {
		a.opts.logger.Warn("heartbeat monitor failed to start", "error", err)
	}
}

// onUnresponsive stops heartbeats and recreates the worker window. The monitor
// restarts when the new window announces readiness.
func (a *App) onUnresponsive(ctx context.Context, msg Message) {
	if err := a.monitor.Stop(); err != nil && !errors.Is(err, ErrNotStarted) {
		a.opts.logger.Warn("heartbeat monitor failed to stop", "error", err)
	}

	if a.manager != nil {
		a.manager.OnUnresponsive(ctx, msg)
	}
}

func newUploader(logs *logstore.Accumulator, api RecordAPI, cfg *Config, o runtimeOptions) (*uploader.Scheduler, error) {
	opts := []uploader.Option{
		uploader.WithLogger(o.logger),
		uploader.WithMetrics(o.metrics),
		uploader.WithHooks(o.hooks),
	}
	if o.pauser != nil {
		opts = append(opts, uploader.WithRefreshPauser(o.pauser))
	}

	return uploader.New(logs, api, cfg.uploaderConfig(), opts...)
}

// requestAcker is the part of the bus request handlers need.
type requestAcker interface {
	Ack(ctx context.Context, req types.Message, body types.Body) error
}

func customHandler(b requestAcker, h RequestHandler) func(context.Context, types.Message, types.Custom) {
	if h == nil {
		return nil
	}

	return func(ctx context.Context, req types.Message, _ types.Custom) {
		if h(ctx, req) == nil {
			_ = b.Ack(ctx, req, nil)
		}
	}
}

func preferenceHandler(b requestAcker, h RequestHandler) func(context.Context, types.Message, types.PreferenceChange) {
	if h == nil {
		return nil
	}

	return func(ctx context.Context, req types.Message, _ types.PreferenceChange) {
		if h(ctx, req) == nil {
			_ = b.Ack(ctx, req, nil)
		}
	}
}
