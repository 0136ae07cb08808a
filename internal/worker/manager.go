// Package worker manages the embedded worker window that hosts background views.
//
// The Manager exclusively owns the window handle. At most one handle exists at a
// time; the router and heartbeat monitor only borrow its channel through Channel.
//
// State machine:
//
//	Absent → Creating → Ready → Absent
//
// Creating arms a one-shot failsafe. If the window does not announce readiness in
// time it is torn down and opened once more; a second miss gives up until the next
// explicit Create. Once the worker has been ready, the manager recreates it on a
// fixed period so a long-running session picks up newly deployed code.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cortexrd/Knack-Toolkit-Library-sub001/internal/hooks"
	"github.com/cortexrd/Knack-Toolkit-Library-sub001/internal/logging"
	"github.com/cortexrd/Knack-Toolkit-Library-sub001/internal/metrics"
	"github.com/cortexrd/Knack-Toolkit-Library-sub001/types"
)

// Recreation reasons reported to metrics.
const (
	ReasonCreationTimeout = "creation_timeout"
	ReasonUnresponsive    = "unresponsive"
	ReasonPeriodic        = "periodic"
)

// Defaults of the lifecycle timings.
const (
	DefaultRoute            = "#ktl-worker"
	DefaultCreationTimeout  = 30 * time.Second
	DefaultRecreateInterval = 5 * time.Minute
)

// Config holds the worker window settings.
type Config struct {
	Enabled          bool          // Whether the worker window feature is on
	Route            string        // Route the window loads (default: "#ktl-worker")
	CreationTimeout  time.Duration // Failsafe for the ready announcement (default: 30s)
	RecreateInterval time.Duration // Period of unconditional recreation (default: 5m)
}

// SetDefaults fills zero-valued fields.
func (c *Config) SetDefaults() {
	if c.Route == "" {
		c.Route = DefaultRoute
	}
	if c.CreationTimeout == 0 {
		c.CreationTimeout = DefaultCreationTimeout
	}
	if c.RecreateInterval == 0 {
		c.RecreateInterval = DefaultRecreateInterval
	}
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if c.CreationTimeout <= 0 {
		return errors.New("the CreationTimeout must be positive")
	}
	if c.RecreateInterval <= 0 {
		return errors.New("the RecreateInterval must be positive")
	}

	return nil
}

// SessionFunc reports whether an authenticated session exists.
type SessionFunc func() bool

// Purger removes pending requests of one type. The bus implements it.
type Purger interface {
	PurgeType(msgType types.MessageType) int
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(logger types.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithMetrics sets the metrics collector.
func WithMetrics(mc types.MetricsCollector) Option {
	return func(m *Manager) { m.metrics = mc }
}

// WithHooks sets the application hooks. OnWorkerUnresponsive and OnError are used.
func WithHooks(h *types.Hooks) Option {
	return func(m *Manager) { m.hooks = hooks.WithDefaults(h) }
}

// WithSession sets the session check. Without it a session is assumed.
func WithSession(fn SessionFunc) Option {
	return func(m *Manager) { m.session = fn }
}

// Manager creates, deletes and recreates the worker window.
type Manager struct {
	factory types.WindowFactory
	purger  Purger
	cfg     Config
	session SessionFunc
	logger  types.Logger
	metrics types.MetricsCollector
	hooks   *types.Hooks

	mu         sync.Mutex
	window     types.Window
	state      types.WorkerState
	generation uint64
	failsafe   *time.Timer
	retried    bool
	everReady  bool
	version    string
	// stopped refuses new windows between Stop and the next Start.
	stopped bool

	runMu   sync.Mutex
	started bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	ticker  *time.Ticker
}

// NewManager creates a manager with no window.
//
// Parameters:
//   - factory: Opens worker windows
//   - purger: Pending heartbeat cleanup, usually the bus
//   - cfg: Window settings; zero fields take defaults
//   - opts: Optional logger, metrics, hooks and session check
func NewManager(factory types.WindowFactory, purger Purger, cfg Config, opts ...Option) (*Manager, error) {
	if factory == nil {
		return nil, types.ErrWindowFactoryRequired
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrInvalidConfig, err)
	}

	m := &Manager{
		factory: factory,
		purger:  purger,
		cfg:     cfg,
		session: func() bool { return true },
		logger:  logging.NewNop(),
		metrics: metrics.NewNop(),
		hooks:   hooks.WithDefaults(nil),
	}
	for _, opt := range opts {
		opt(m)
	}

	return m, nil
}

// Create opens the worker window.
//
// It is a no-op when a window exists or is being opened, when no session exists, or
// when the feature is disabled.
func (m *Manager) Create(ctx context.Context) error {
	m.mu.Lock()
	m.retried = false
	m.mu.Unlock()

	return m.create(ctx)
}

func (m *Manager) create(ctx context.Context) error {
	if !m.cfg.Enabled || !m.session() {
		return nil
	}

	m.mu.Lock()
	if m.stopped || m.state != types.WorkerAbsent {
		m.mu.Unlock()
		return nil
	}
	m.state = types.WorkerCreating
	m.generation++
	gen := m.generation
	m.mu.Unlock()

	w, err := m.factory.Open(ctx, m.cfg.Route)

	m.mu.Lock()
	if m.generation != gen {
		// Deleted while opening.
		m.mu.Unlock()
		if err == nil {
			_ = w.Close(context.WithoutCancel(ctx))
		}

		return nil
	}
	if err != nil {
		m.state = types.WorkerAbsent
		m.mu.Unlock()

		return fmt.Errorf("open worker window: %w", err)
	}

	m.window = w
	// The window may have announced readiness while Open was still running.
	if m.state == types.WorkerCreating {
		m.failsafe = time.AfterFunc(m.cfg.CreationTimeout, func() {
			m.creationTimedOut(context.WithoutCancel(ctx), gen)
		})
	}
	m.mu.Unlock()

	m.metrics.RecordWorkerCreated()
	m.logger.Info("worker window created", "window_id", w.ID(), "route", m.cfg.Route)

	return nil
}

func (m *Manager) creationTimedOut(ctx context.Context, gen uint64) {
	m.mu.Lock()
	if m.generation != gen || m.state != types.WorkerCreating {
		m.mu.Unlock()
		return
	}
	retry := !m.retried
	m.retried = true
	m.mu.Unlock()

	if err := m.Delete(ctx); err != nil {
		m.logger.Warn("failed to close unready worker window", "error", err)
	}

	if !retry {
		err := errors.New("worker window did not announce readiness")
		m.logger.Error("worker window creation failed", "timeout", m.cfg.CreationTimeout)
		if hookErr := m.hooks.OnError(ctx, err); hookErr != nil {
			m.logger.Error("error hook failed", "error", hookErr)
		}

		return
	}

	m.logger.Warn("worker window not ready in time, retrying", "timeout", m.cfg.CreationTimeout)
	m.metrics.RecordWorkerRecreated(ReasonCreationTimeout)
	if err := m.create(ctx); err != nil {
		m.logger.Error("worker window retry failed", "error", err)
	}
}

// MarkReady records the worker's ready announcement and disarms the failsafe.
func (m *Manager) MarkReady(version string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == types.WorkerAbsent {
		m.logger.Debug("ready announcement without worker window", "version", version)
		return
	}

	if m.failsafe != nil {
		m.failsafe.Stop()
		m.failsafe = nil
	}
	m.state = types.WorkerReady
	m.everReady = true
	m.retried = false
	m.version = version
}

// Delete purges pending heartbeats, then closes and discards the window.
// It is a no-op when no window exists.
func (m *Manager) Delete(ctx context.Context) error {
	m.mu.Lock()
	if m.state == types.WorkerAbsent {
		m.mu.Unlock()
		return nil
	}

	if m.failsafe != nil {
		m.failsafe.Stop()
		m.failsafe = nil
	}
	w := m.window
	m.window = nil
	m.state = types.WorkerAbsent
	m.generation++
	m.mu.Unlock()

	if m.purger != nil {
		m.purger.PurgeType(types.TypeHeartbeat)
	}

	if w == nil {
		return nil
	}

	m.logger.Info("worker window deleted", "window_id", w.ID())
	if err := w.Close(ctx); err != nil {
		return fmt.Errorf("close worker window %s: %w", w.ID(), err)
	}

	return nil
}

// Recreate tears the window down and opens a new one.
func (m *Manager) Recreate(ctx context.Context, reason string) error {
	if err := m.Delete(ctx); err != nil {
		m.logger.Warn("worker window teardown failed", "reason", reason, "error", err)
	}

	m.metrics.RecordWorkerRecreated(reason)
	m.logger.Info("recreating worker window", "reason", reason)

	return m.Create(ctx)
}

// OnUnresponsive handles heartbeat retry exhaustion. It has the signature of
// bus.UnresponsiveFunc.
func (m *Manager) OnUnresponsive(ctx context.Context, msg types.Message) {
	windowID := m.WindowID()
	m.logger.Warn("worker window unresponsive", "window_id", windowID, "heartbeat_id", msg.ID)

	if err := m.hooks.OnWorkerUnresponsive(ctx, windowID); err != nil {
		m.logger.Error("unresponsive hook failed", "error", err)
	}

	if err := m.Recreate(ctx, ReasonUnresponsive); err != nil {
		m.logger.Error("worker window recreation failed", "error", err)
	}
}

// Channel returns the live window channel, or nil when no window exists.
func (m *Manager) Channel() types.Channel {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.window == nil {
		return nil
	}

	return m.window
}

// WindowID returns the live window id, or "".
func (m *Manager) WindowID() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.window == nil {
		return ""
	}

	return m.window.ID()
}

// State returns the lifecycle state.
func (m *Manager) State() types.WorkerState {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.state
}

// Version returns the version of the last ready announcement.
func (m *Manager) Version() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.version
}

// Start creates the window and runs periodic recreation.
//
// Returns:
//   - error: types.ErrAlreadyStarted if running
func (m *Manager) Start(ctx context.Context) error {
	m.runMu.Lock()
	if m.started {
		m.runMu.Unlock()
		return types.ErrAlreadyStarted
	}

	m.started = true
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	m.ticker = time.NewTicker(m.cfg.RecreateInterval)
	m.mu.Lock()
	m.stopped = false
	m.mu.Unlock()
	loopCtx := context.WithoutCancel(ctx)
	go m.recreateLoop(loopCtx, m.ticker, m.stopCh, m.doneCh)
	m.runMu.Unlock()

	if err := m.Create(ctx); err != nil {
		m.logger.Error("initial worker window creation failed", "error", err)
	}

	return nil
}

// Stop halts periodic recreation and deletes the window. A pending creation
// retry opens nothing until the manager is started again.
//
// Returns:
//   - error: types.ErrNotStarted if not running, or the window close error
func (m *Manager) Stop() error {
	m.runMu.Lock()
	if !m.started {
		m.runMu.Unlock()
		return types.ErrNotStarted
	}

	m.ticker.Stop()
	close(m.stopCh)
	m.started = false
	doneCh := m.doneCh
	m.mu.Lock()
	m.stopped = true
	m.mu.Unlock()
	m.runMu.Unlock()

	<-doneCh

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return m.Delete(ctx)
}

func (m *Manager) recreateLoop(ctx context.Context, ticker *time.Ticker, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			m.mu.Lock()
			everReady := m.everReady
			m.mu.Unlock()

			if !everReady {
				continue
			}
			if err := m.Recreate(ctx, ReasonPeriodic); err != nil {
				m.logger.Error("periodic worker window recreation failed", "error", err)
			}
		}
	}
}
