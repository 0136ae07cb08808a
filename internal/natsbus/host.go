package natsbus

import (
	"context"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/cortexrd/Knack-Toolkit-Library-sub001/internal/logging"
	"github.com/cortexrd/Knack-Toolkit-Library-sub001/types"
)

// Runtime is what a host runs for each worker window.
type Runtime interface {
	types.Receiver
	Start(ctx context.Context) error
	Stop() error
}

// WindowInfo describes a window being opened.
type WindowInfo struct {
	ID    string
	Route string
}

// RuntimeFactory builds the runtime of one window. parent reaches the main app.
type RuntimeFactory func(win WindowInfo, parent types.Channel) (Runtime, error)

type hostedWindow struct {
	runtime Runtime
	sub     *nats.Subscription
}

// Host serves window-open requests by starting a Runtime per window.
//
// Several hosts may serve the same namespace; open requests are load-balanced over
// a queue group. A window lives until its app closes it or the host stops.
type Host struct {
	nc        *nats.Conn
	namespace string
	factory   RuntimeFactory
	logger    types.Logger

	windows *xsync.Map[string, *hostedWindow]

	mu      sync.Mutex
	started bool
	ctx     context.Context //nolint:containedctx // runtime start context for windows opened later
	subs    []*nats.Subscription
}

// NewHost creates a host for namespace.
func NewHost(nc *nats.Conn, namespace string, factory RuntimeFactory, logger types.Logger) *Host {
	if logger == nil {
		logger = logging.NewNop()
	}

	return &Host{
		nc:        nc,
		namespace: namespace,
		factory:   factory,
		logger:    logger,
		windows:   xsync.NewMap[string, *hostedWindow](),
	}
}

// Start subscribes to open and close requests.
//
// Returns:
//   - error: types.ErrAlreadyStarted if running, or a subscription error
func (h *Host) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.started {
		return types.ErrAlreadyStarted
	}

	openSub, err := h.nc.QueueSubscribe(openSubject(h.namespace), h.namespace+".window-host", h.handleOpen)
	if err != nil {
		return fmt.Errorf("subscribe window open: %w", err)
	}

	closeSub, err := h.nc.Subscribe(closeSubject(h.namespace, "*"), h.handleClose)
	if err != nil {
		_ = openSub.Unsubscribe()
		return fmt.Errorf("subscribe window close: %w", err)
	}

	if err := h.nc.Flush(); err != nil {
		_ = openSub.Unsubscribe()
		_ = closeSub.Unsubscribe()

		return fmt.Errorf("flush host subscriptions: %w", err)
	}

	h.ctx = context.WithoutCancel(ctx)
	h.subs = []*nats.Subscription{openSub, closeSub}
	h.started = true

	return nil
}

// Stop unsubscribes and stops every hosted window.
//
// Returns:
//   - error: types.ErrNotStarted if not running
func (h *Host) Stop() error {
	h.mu.Lock()
	if !h.started {
		h.mu.Unlock()
		return types.ErrNotStarted
	}

	for _, sub := range h.subs {
		_ = sub.Unsubscribe()
	}
	h.subs = nil
	h.started = false
	h.mu.Unlock()

	h.windows.Range(func(id string, _ *hostedWindow) bool {
		h.closeWindow(id)
		return true
	})

	return nil
}

// Windows returns the number of hosted windows.
func (h *Host) Windows() int {
	return h.windows.Size()
}

func (h *Host) handleOpen(m *nats.Msg) {
	var req openRequest
	if err := msgpack.Unmarshal(m.Data, &req); err != nil || req.WindowID == "" {
		h.reply(m, "malformed open request")
		return
	}

	if err := h.openWindow(WindowInfo{ID: req.WindowID, Route: req.Route}); err != nil {
		h.logger.Error("failed to open window", "window_id", req.WindowID, "route", req.Route, "error", err)
		h.reply(m, err.Error())

		return
	}

	h.logger.Info("window opened", "window_id", req.WindowID, "route", req.Route)
	h.reply(m, "")
}

func (h *Host) openWindow(win WindowInfo) error {
	if _, exists := h.windows.Load(win.ID); exists {
		return nil
	}

	parent := NewChannel(h.nc, Subject(h.namespace, types.EndpointApp, ""))
	rt, err := h.factory(win, parent)
	if err != nil {
		return fmt.Errorf("build runtime: %w", err)
	}

	// Subscribe before starting so the acknowledge of the first announcement is not lost.
	sub, err := Subscribe(h.nc, Subject(h.namespace, types.EndpointWorker, win.ID), rt, h.logger)
	if err != nil {
		return err
	}

	h.mu.Lock()
	ctx := h.ctx
	h.mu.Unlock()

	if err := rt.Start(ctx); err != nil {
		_ = sub.Unsubscribe()
		return fmt.Errorf("start runtime: %w", err)
	}

	h.windows.Store(win.ID, &hostedWindow{runtime: rt, sub: sub})

	return nil
}

func (h *Host) handleClose(m *nats.Msg) {
	id := m.Subject[len(closeSubject(h.namespace, "")):]
	if h.closeWindow(id) {
		h.logger.Info("window closed", "window_id", id)
	}
}

func (h *Host) closeWindow(id string) bool {
	win, ok := h.windows.LoadAndDelete(id)
	if !ok {
		return false
	}

	_ = win.sub.Unsubscribe()
	if err := win.runtime.Stop(); err != nil {
		h.logger.Warn("window runtime stop failed", "window_id", id, "error", err)
	}

	return true
}

func (h *Host) reply(m *nats.Msg, errMsg string) {
	data, err := msgpack.Marshal(&openReply{Error: errMsg})
	if err != nil {
		return
	}
	if err := m.Respond(data); err != nil {
		h.logger.Warn("failed to reply to open request", "error", err)
	}
}
