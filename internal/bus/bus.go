package bus

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

// Dispatcher hands a message to the transport. The router implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg types.Message) error
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, msg types.Message) error

// Dispatch implements Dispatcher.
func (f DispatcherFunc) Dispatch(ctx context.Context, msg types.Message) error { return f(ctx, msg) }

// UnresponsiveFunc is called once when a heartbeat request exhausts its retries.
type UnresponsiveFunc func(ctx context.Context, msg types.Message)

// Bus is the request/acknowledge layer between windows.
//
// Requests are stored in the pending table and re-dispatched on every expiration
// until an acknowledge with the same id arrives or the retries run out. Acknowledges
// are dispatched once and never stored.
type Bus struct {
	table      *PendingTable
	dispatcher Dispatcher
	cfg        Config

	logger         types.Logger
	metrics        types.MetricsCollector
	hooks          *types.Hooks
	now            func() time.Time
	onUnresponsive UnresponsiveFunc

	handlersMu sync.RWMutex
	handlers   Handlers

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	ticker  *time.Ticker
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the logger.
func WithLogger(logger types.Logger) Option {
	return func(b *Bus) { b.logger = logger }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m types.MetricsCollector) Option {
	return func(b *Bus) { b.metrics = m }
}

// WithHooks sets the application hooks. OnMessageFailed and OnError are used.
func WithHooks(h *types.Hooks) Option {
	return func(b *Bus) { b.hooks = hooks.WithDefaults(h) }
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(b *Bus) { b.now = now }
}

// WithUnresponsiveHandler sets the action taken when heartbeat retries run out.
func WithUnresponsiveHandler(fn UnresponsiveFunc) Option {
	return func(b *Bus) { b.onUnresponsive = fn }
}

// New creates a bus over table that sends through dispatcher.
//
// Parameters:
//   - table: Pending state owned by the caller
//   - dispatcher: Transport selection, usually a router
//   - cfg: Retry parameters; zero fields take defaults
//   - opts: Optional logger, metrics, hooks, clock and unresponsive handler
//
// Returns:
//   - *Bus: New bus, not yet started
//   - error: Invalid configuration
//
// Example:
//
//	table := bus.NewPendingTable()
//	b, err := bus.New(table, rtr, bus.Config{}, bus.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	b.SetHandlers(bus.Handlers{Heartbeat: responder.Handle})
//	if err := b.Start(ctx); err != nil {
//	    return err
//	}
//	defer b.Stop()
func New(table *PendingTable, dispatcher Dispatcher, cfg Config, opts ...Option) (*Bus, error) {
	if table == nil {
		return nil, errors.New("bus: pending table is required")
	}
	if dispatcher == nil {
		return nil, errors.New("bus: dispatcher is required")
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrInvalidConfig, err)
	}

	b := &Bus{
		table:      table,
		dispatcher: dispatcher,
		cfg:        cfg,
		logger:     logging.NewNop(),
		metrics:    metrics.NewNop(),
		hooks:      hooks.WithDefaults(nil),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}

	return b, nil
}

// SetHandlers replaces the request handlers.
func (b *Bus) SetHandlers(h Handlers) {
	b.handlersMu.Lock()
	defer b.handlersMu.Unlock()

	b.handlers = h
}

// Send creates and dispatches a message.
//
// A request gets a fresh id (the id argument is ignored), an expiration and the full
// retry budget, and is stored before dispatch. A failed dispatch leaves it pending for
// the retry pass, so Send reports no transport error for requests.
//
// An acknowledge must carry the id of the request it answers and is dispatched once.
//
// Returns:
//   - types.Message: The message as dispatched
//   - error: types.ErrMissingID for an acknowledge without id, or the transport error
func (b *Bus) Send(ctx context.Context, body types.Body, subtype types.Subtype, src, dst types.Endpoint, id int64) (types.Message, error) {
	if body == nil {
		return types.Message{}, types.ErrUnknownBody
	}

	switch subtype {
	case types.SubtypeRequest:
		now := b.now()
		msg := b.table.insert(now, func(id int64) types.Message {
			return types.Message{
				Subtype:          types.SubtypeRequest,
				Source:           src,
				Destination:      dst,
				ID:               id,
				Body:             body,
				ExpiresAt:        now.Add(b.cfg.ExpirationWindow),
				RetriesRemaining: b.cfg.MaxRetries,
			}
		})
		b.metrics.RecordPendingMessages(b.table.Len())
		_ = b.dispatch(ctx, msg)

		return msg, nil

	case types.SubtypeAcknowledge:
		if id == 0 {
			return types.Message{}, types.ErrMissingID
		}
		msg := types.Message{
			Subtype:     types.SubtypeAcknowledge,
			Source:      src,
			Destination: dst,
			ID:          id,
			Body:        body,
		}

		return msg, b.dispatch(ctx, msg)

	default:
		return types.Message{}, fmt.Errorf("%w: subtype %q", types.ErrMalformedMessage, subtype)
	}
}

// Request sends a request. It is shorthand for Send with types.SubtypeRequest.
func (b *Bus) Request(ctx context.Context, body types.Body, src, dst types.Endpoint) types.Message {
	msg, _ := b.Send(ctx, body, types.SubtypeRequest, src, dst, 0)
	return msg
}

// Ack answers req with body, swapping source and destination.
func (b *Bus) Ack(ctx context.Context, req types.Message, body types.Body) error {
	if body == nil {
		body = req.Body
	}
	_, err := b.Send(ctx, body, types.SubtypeAcknowledge, req.Destination, req.Source, req.ID)

	return err
}

// Notify dispatches a one-shot request that expects no acknowledge.
//
// The message gets a fresh id but is never stored, so it is neither retried nor
// reported as failed.
func (b *Bus) Notify(ctx context.Context, body types.Body, src, dst types.Endpoint) (types.Message, error) {
	if body == nil {
		return types.Message{}, types.ErrUnknownBody
	}

	msg := types.Message{
		Subtype:     types.SubtypeRequest,
		Source:      src,
		Destination: dst,
		ID:          b.table.Allocate(b.now()),
		Body:        body,
	}

	return msg, b.dispatch(ctx, msg)
}

// Receive handles an inbound message.
//
// An acknowledge settles the pending request with its id; an unknown id is ignored.
// Any heartbeat acknowledge settles every pending heartbeat. Requests go to the
// handler registered for their body.
func (b *Bus) Receive(ctx context.Context, msg types.Message) {
	if msg.Subtype == types.SubtypeAcknowledge {
		b.receiveAck(ctx, msg)
		return
	}

	b.handlersMu.RLock()
	h := b.handlers
	b.handlersMu.RUnlock()

	handled, err := h.dispatch(ctx, msg)
	if err != nil {
		b.logger.Warn("dropping request with unknown body", "id", msg.ID, "source", msg.Source)
		return
	}
	if !handled {
		b.logger.Debug("no handler for request", "type", msg.Type(), "id", msg.ID, "source", msg.Source)
	}
}

func (b *Bus) receiveAck(ctx context.Context, ack types.Message) {
	settled := false
	if ack.Type() == types.TypeHeartbeat {
		settled = b.table.RemoveType(types.TypeHeartbeat) > 0
	} else {
		_, settled = b.table.Remove(ack.ID)
	}

	if !settled {
		b.logger.Debug("ignoring acknowledge without pending request", "type", ack.Type(), "id", ack.ID)
		return
	}
	b.metrics.RecordPendingMessages(b.table.Len())

	b.handlersMu.RLock()
	onAck := b.handlers.Acknowledged
	b.handlersMu.RUnlock()

	if onAck != nil {
		onAck(ctx, ack)
	}
}

// ProcessExpired runs one expiration pass.
//
// Every request whose attempt expired loses one retry. Requests with retries left are
// re-dispatched with the same id and a new expiration. Exhausted requests are removed
// and reported exactly once: a heartbeat purges all pending heartbeats and invokes the
// unresponsive handler, anything else goes to the OnMessageFailed hook.
func (b *Bus) ProcessExpired(ctx context.Context) {
	now := b.now()

	for _, msg := range b.table.Expired(now) {
		msg.RetriesRemaining--

		if msg.RetriesRemaining > 0 {
			msg.ExpiresAt = now.Add(b.cfg.ExpirationWindow)
			if !b.table.Replace(msg) {
				continue
			}
			b.metrics.RecordMessageRetry(msg.Type())
			_ = b.dispatch(ctx, msg)

			continue
		}

		if _, ok := b.table.Remove(msg.ID); !ok {
			continue
		}
		b.fail(ctx, msg)
	}

	b.metrics.RecordPendingMessages(b.table.Len())
}

func (b *Bus) fail(ctx context.Context, msg types.Message) {
	b.metrics.RecordMessageFailed(msg.Type())

	if msg.Type() == types.TypeHeartbeat {
		purged := b.table.RemoveType(types.TypeHeartbeat)
		b.logger.Warn("heartbeat retries exhausted", "id", msg.ID, "destination", msg.Destination, "purged", purged)
		if b.onUnresponsive != nil {
			b.onUnresponsive(ctx, msg)
		}

		return
	}

	b.logger.Warn("request retries exhausted", "type", msg.Type(), "id", msg.ID, "destination", msg.Destination)
	failure := types.MessageFailure{
		Type:        msg.Type(),
		ID:          msg.ID,
		Destination: msg.Destination,
		Body:        msg.Body,
	}
	if err := b.hooks.OnMessageFailed(ctx, failure); err != nil {
		b.logger.Error("message failure hook error", "type", msg.Type(), "id", msg.ID, "error", err)
	}
}

// PurgeType removes every pending request of msgType and returns the count.
func (b *Bus) PurgeType(msgType types.MessageType) int {
	n := b.table.RemoveType(msgType)
	if n > 0 {
		b.metrics.RecordPendingMessages(b.table.Len())
	}

	return n
}

// Pending returns a snapshot of the pending requests, oldest first.
func (b *Bus) Pending() []types.Message {
	return b.table.Snapshot()
}

// Len returns the number of pending requests.
func (b *Bus) Len() int {
	return b.table.Len()
}

// dispatch hands msg to the transport. Failures are logged; retry is the caller's concern.
func (b *Bus) dispatch(ctx context.Context, msg types.Message) error {
	err := b.dispatcher.Dispatch(ctx, msg)
	switch {
	case err == nil:
		b.metrics.RecordMessageSent(msg.Type(), msg.Subtype)
	case errors.Is(err, types.ErrNoRoute):
		b.logger.Debug("message dropped, no route", "type", msg.Type(), "id", msg.ID,
			"source", msg.Source, "destination", msg.Destination)
	default:
		b.logger.Warn("message dispatch failed", "type", msg.Type(), "id", msg.ID,
			"destination", msg.Destination, "error", err)
	}

	return err
}

// Start runs the expiration scan every TickInterval until Stop.
//
// Returns:
//   - error: types.ErrAlreadyStarted if already running
func (b *Bus) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.started {
		return types.ErrAlreadyStarted
	}

	b.started = true
	b.stopCh = make(chan struct{})
	b.doneCh = make(chan struct{})
	b.ticker = time.NewTicker(b.cfg.TickInterval)

	go b.tickLoop(context.WithoutCancel(ctx), b.ticker, b.stopCh, b.doneCh)

	return nil
}

// Stop halts the expiration scan and waits for it to exit. Pending requests are kept.
//
// Returns:
//   - error: types.ErrNotStarted if not running
func (b *Bus) Stop() error {
	b.mu.Lock()
	if !b.started {
		b.mu.Unlock()
		return types.ErrNotStarted
	}

	b.ticker.Stop()
	close(b.stopCh)
	b.started = false
	doneCh := b.doneCh
	b.mu.Unlock()

	<-doneCh

	return nil
}

// IsStarted reports whether the expiration scan is running.
func (b *Bus) IsStarted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.started
}

func (b *Bus) tickLoop(ctx context.Context, ticker *time.Ticker, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			b.ProcessExpired(ctx)
		}
	}
}
