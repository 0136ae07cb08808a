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
)

// WorkerDeps are the external collaborators of the worker window runtime.
type WorkerDeps struct {
	// Store is the key-value store shared with the app. It is namespaced with
	// Config.Namespace, so both sides see the same log batches.
	Store KVStore

	// Parent reaches the main app window.
	Parent Channel

	// Records persists liveness records and log batches.
	Records RecordAPI
}

// Worker is the runtime of the hidden worker window.
//
// It answers heartbeats after writing the liveness record, uploads log batches and
// announces readiness to the app once everything runs.
type Worker struct {
	cfg  Config
	opts runtimeOptions

	bus       *bus.Bus
	responder *heartbeat.Responder
	handshake *handshake.WorkerSide
	logs      *logstore.Accumulator
	uploader  *uploader.Scheduler

	mu      sync.Mutex
	started bool
}

var _ Receiver = (*Worker)(nil)

// NewWorker creates the worker window runtime.
//
// Parameters:
//   - cfg: Configuration; zero values take defaults
//   - deps: External collaborators
//   - opts: Optional logger, metrics, hooks and handlers
//
// Returns:
//   - *Worker: The runtime, not yet started
//   - error: ErrInvalidConfig, ErrStoreRequired, ErrChannelRequired or ErrRecordAPIRequired
func NewWorker(cfg Config, deps WorkerDeps, opts ...Option) (*Worker, error) {
	SetDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	switch {
	case deps.Store == nil:
		return nil, ErrStoreRequired
	case deps.Parent == nil:
		return nil, ErrChannelRequired
	case deps.Records == nil:
		return nil, ErrRecordAPIRequired
	}

	w := &Worker{cfg: cfg, opts: buildOptions(opts)}

	rt := router.New(
		router.WithParent(deps.Parent),
		router.WithFallback(w.opts.fallback),
		router.WithLogger(w.opts.logger),
	)

	var err error
	w.bus, err = bus.New(bus.NewPendingTable(), rt, cfg.busConfig(),
		bus.WithLogger(w.opts.logger),
		bus.WithMetrics(w.opts.metrics),
		bus.WithHooks(w.opts.hooks),
	)
	if err != nil {
		return nil, err
	}

	w.responder, err = heartbeat.NewResponder(w.bus, deps.Records, cfg.responderConfig(),
		heartbeat.WithLogger(w.opts.logger),
		heartbeat.WithMetrics(w.opts.metrics),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	w.handshake = handshake.NewWorkerSide(w.bus, cfg.AppVersion,
		handshake.WithLogger(w.opts.logger),
		handshake.WithHooks(w.opts.hooks),
	)

	w.logs, err = logstore.New(kvstore.Namespace(deps.Store, cfg.Namespace), cfg.logstoreConfig(),
		logstore.WithLogger(w.opts.logger),
		logstore.WithMetrics(w.opts.metrics),
	)
	if err != nil {
		return nil, err
	}

	w.uploader, err = newUploader(w.logs, deps.Records, &cfg, w.opts)
	if err != nil {
		return nil, err
	}

	w.bus.SetHandlers(bus.Handlers{
		Heartbeat:        w.responder.Handle,
		ReloadRequired:   w.handshake.HandleReloadRequired,
		PreferenceChange: preferenceHandler(w.bus, w.opts.preference),
		Custom:           customHandler(w.bus, w.opts.custom),
		Acknowledged:     w.handshake.HandleAcknowledged,
	})

	return w, nil
}

// Start runs the retry ticker, log maintenance and the upload scheduler, then
// announces readiness to the app.
//
// Returns:
//   - error: ErrAlreadyStarted if running
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return ErrAlreadyStarted
	}

	if err := w.bus.Start(ctx); err != nil {
		return err
	}
	if err := w.logs.Start(ctx); err != nil {
		_ = w.bus.Stop()
		return err
	}
	if err := w.uploader.Start(ctx); err != nil {
		_ = w.logs.Stop()
		_ = w.bus.Stop()

		return err
	}
	w.started = true

	w.handshake.Announce(ctx)

	return nil
}

// Stop halts the upload scheduler, log maintenance and the retry ticker.
//
// Returns:
//   - error: ErrNotStarted if idle, or the joined component errors
func (w *Worker) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.started {
		return ErrNotStarted
	}
	w.started = false

	err := errors.Join(w.uploader.Stop(), w.logs.Stop(), w.bus.Stop())
	w.opts.logger.Info("worker runtime stopped")

	return err
}

// Receive handles a message delivered to the worker window.
func (w *Worker) Receive(ctx context.Context, msg Message) {
	w.bus.Receive(ctx, msg)
}

// Send sends a request from the worker to dst. It is retried until acknowledged.
func (w *Worker) Send(ctx context.Context, body Body, dst Endpoint) Message {
	return w.bus.Request(ctx, body, EndpointWorker, dst)
}

// AddLog records a log entry.
func (w *Worker) AddLog(ctx context.Context, category Category, details string) error {
	return w.logs.Add(ctx, category, details)
}

// Acknowledged reports whether the app acknowledged the ready announcement.
func (w *Worker) Acknowledged() bool {
	return w.handshake.Acknowledged()
}

// AppVersion returns the version the app acknowledged the announcement with.
func (w *Worker) AppVersion() string {
	return w.handshake.AppVersion()
}

// Pending returns the pending requests, oldest first.
func (w *Worker) Pending() []Message {
	return w.bus.Pending()
}
