// Package router selects the physical channel for each outbound message.
//
// Routing depends only on the source/destination pair:
//
//	main-app      -> worker-window  worker window channel, or drop
//	worker-window -> main-app       parent channel
//	anything else                   application fallback, or drop
//
// The router keeps no state and never retries; a dropped message returns
// types.ErrNoRoute and the bus decides what happens next.
package router

import (
	"context"
	"fmt"

	"github.com/cortexrd/Knack-Toolkit-Library-sub001/internal/logging"
	"github.com/cortexrd/Knack-Toolkit-Library-sub001/types"
)

// WorkerChannelFunc returns the live worker window channel, or nil when no window exists.
type WorkerChannelFunc func() types.Channel

// Router dispatches messages to channels.
type Router struct {
	worker   WorkerChannelFunc
	parent   types.Channel
	fallback types.Channel
	logger   types.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithWorker sets the lookup for the worker window channel.
//
// The router only borrows the channel for one dispatch; the lifecycle manager owns it.
func WithWorker(fn WorkerChannelFunc) Option {
	return func(r *Router) { r.worker = fn }
}

// WithParent sets the channel to the main application window.
func WithParent(ch types.Channel) Option {
	return func(r *Router) { r.parent = ch }
}

// WithFallback sets the application transport for any other endpoint pair.
func WithFallback(ch types.Channel) Option {
	return func(r *Router) { r.fallback = ch }
}

// WithLogger sets the logger.
func WithLogger(logger types.Logger) Option {
	return func(r *Router) { r.logger = logger }
}

// New creates a router. Channels that are not configured drop their traffic.
func New(opts ...Option) *Router {
	r := &Router{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Dispatch posts msg on the channel selected by its endpoints.
//
// Returns:
//   - error: types.ErrNoRoute when the selected channel does not exist, otherwise
//     the channel's own error
func (r *Router) Dispatch(ctx context.Context, msg types.Message) error {
	ch, route := r.route(msg)
	if ch == nil {
		r.logger.Debug("dropping message", "route", route, "type", msg.Type(), "id", msg.ID,
			"source", msg.Source, "destination", msg.Destination)

		return fmt.Errorf("%w: %s to %s", types.ErrNoRoute, msg.Source, msg.Destination)
	}

	return ch.Post(ctx, msg)
}

func (r *Router) route(msg types.Message) (types.Channel, string) {
	switch {
	case msg.Source == types.EndpointApp && msg.Destination == types.EndpointWorker:
		if r.worker == nil {
			return nil, "worker"
		}

		return r.worker(), "worker"
	case msg.Source == types.EndpointWorker && msg.Destination == types.EndpointApp:
		return r.parent, "parent"
	default:
		return r.fallback, "fallback"
	}
}
