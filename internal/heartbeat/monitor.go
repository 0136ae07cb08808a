package heartbeat

import (
	"context"
	"sync"
	"time"

	"github.com/cortexrd/Knack-Toolkit-Library-sub001/internal/logging"
	"github.com/cortexrd/Knack-Toolkit-Library-sub001/internal/metrics"
	"github.com/cortexrd/Knack-Toolkit-Library-sub001/types"
)

// DefaultInterval is the period between heartbeat requests.
const DefaultInterval = 60 * time.Second

// Sender is the part of the bus the monitor uses.
type Sender interface {
	Request(ctx context.Context, body types.Body, src, dst types.Endpoint) types.Message
	PurgeType(msgType types.MessageType) int
}

type options struct {
	logger  types.Logger
	metrics types.MetricsCollector
	now     func() time.Time
}

// Option configures a Monitor or Responder.
type Option func(*options)

// WithLogger sets the logger.
func WithLogger(logger types.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m types.MetricsCollector) Option {
	return func(o *options) { o.metrics = m }
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{
		logger:  logging.NewNop(),
		metrics: metrics.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	return o
}

// Monitor sends heartbeat requests from the app to the worker window.
//
// The monitor only sends; the bus retries each request and reports the worker
// unresponsive when a heartbeat exhausts its retries.
type Monitor struct {
	sender   Sender
	interval time.Duration
	opts     options

	mu     sync.Mutex
	state  types.MonitorState
	stopCh chan struct{}
	doneCh chan struct{}
	ticker *time.Ticker
}

// NewMonitor creates an idle monitor.
//
// Parameters:
//   - sender: The app's bus
//   - interval: Period between heartbeats (DefaultInterval if <= 0)
//   - opts: Optional logger, metrics and clock
//
// Example:
//
//	mon := heartbeat.NewMonitor(b, time.Minute, heartbeat.WithLogger(logger))
//	if err := mon.Start(ctx); err != nil {
//	    return err
//	}
//	defer mon.Stop()
func NewMonitor(sender Sender, interval time.Duration, opts ...Option) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}

	return &Monitor{
		sender:   sender,
		interval: interval,
		opts:     buildOptions(opts),
	}
}

// Start sends one heartbeat immediately and then one per interval.
//
// Returns:
//   - error: types.ErrAlreadyStarted if running
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.state == types.MonitorRunning {
		m.mu.Unlock()
		return types.ErrAlreadyStarted
	}

	m.state = types.MonitorRunning
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	m.ticker = time.NewTicker(m.interval)

	loopCtx := context.WithoutCancel(ctx)
	go m.loop(loopCtx, m.ticker, m.stopCh, m.doneCh)
	m.mu.Unlock()

	m.opts.logger.Debug("heartbeat monitor started", "interval", m.interval)
	m.send(loopCtx)

	return nil
}

// Stop disarms the ticker and purges pending heartbeats.
//
// Returns:
//   - error: types.ErrNotStarted if idle
func (m *Monitor) Stop() error {
	m.mu.Lock()
	if m.state != types.MonitorRunning {
		m.mu.Unlock()
		return types.ErrNotStarted
	}

	m.ticker.Stop()
	close(m.stopCh)
	m.state = types.MonitorIdle
	doneCh := m.doneCh
	m.mu.Unlock()

	<-doneCh

	purged := m.sender.PurgeType(types.TypeHeartbeat)
	m.opts.logger.Debug("heartbeat monitor stopped", "purged", purged)

	return nil
}

// State returns the current state.
func (m *Monitor) State() types.MonitorState {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.state
}

// IsRunning reports whether the monitor is running.
func (m *Monitor) IsRunning() bool {
	return m.State() == types.MonitorRunning
}

func (m *Monitor) loop(ctx context.Context, ticker *time.Ticker, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			m.send(ctx)
		}
	}
}

func (m *Monitor) send(ctx context.Context) {
	body := types.Heartbeat{SentAt: m.opts.now().UnixMilli()}
	msg := m.sender.Request(ctx, body, types.EndpointApp, types.EndpointWorker)
	m.opts.logger.Debug("heartbeat sent", "id", msg.ID)
}
