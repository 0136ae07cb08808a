package natsbus

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/cortexrd/Knack-Toolkit-Library-sub001/types"
)

// openRequest asks a window host to start a worker window.
type openRequest struct {
	WindowID string `msgpack:"windowId"`
	Route    string `msgpack:"route"`
}

// openReply is the host's answer. An empty Error means the window is running.
type openReply struct {
	Error string `msgpack:"error,omitempty"`
}

func openSubject(namespace string) string {
	return namespace + ".window.open"
}

func closeSubject(namespace, windowID string) string {
	return namespace + ".window.close." + windowID
}

// WindowFactory opens worker windows served by a Host somewhere on the NATS cluster.
type WindowFactory struct {
	nc        *nats.Conn
	namespace string
}

var _ types.WindowFactory = (*WindowFactory)(nil)

// NewWindowFactory creates a factory for namespace.
func NewWindowFactory(nc *nats.Conn, namespace string) *WindowFactory {
	return &WindowFactory{nc: nc, namespace: namespace}
}

// Open asks a host to start a window at route and waits for its reply.
//
// Each window gets a fresh uuid, so a recreated window never receives traffic
// addressed to its predecessor.
func (f *WindowFactory) Open(ctx context.Context, route string) (types.Window, error) {
	id := uuid.NewString()

	data, err := msgpack.Marshal(&openRequest{WindowID: id, Route: route})
	if err != nil {
		return nil, fmt.Errorf("encode open request: %w", err)
	}

	resp, err := f.nc.RequestWithContext(ctx, openSubject(f.namespace), data)
	if err != nil {
		return nil, fmt.Errorf("open window %s: %w", id, err)
	}

	var reply openReply
	if err := msgpack.Unmarshal(resp.Data, &reply); err != nil {
		return nil, fmt.Errorf("%w: open reply: %v", types.ErrMalformedMessage, err)
	}
	if reply.Error != "" {
		return nil, fmt.Errorf("open window %s: %w", id, errors.New(reply.Error))
	}

	return &Window{
		Channel: NewChannel(f.nc, Subject(f.namespace, types.EndpointWorker, id)),
		id:      id,
		nc:      f.nc,
		closeTo: closeSubject(f.namespace, id),
	}, nil
}

// Window is the app-side handle of a hosted worker window.
type Window struct {
	*Channel

	id      string
	nc      *nats.Conn
	closeTo string
}

var _ types.Window = (*Window)(nil)

// ID returns the window id.
func (w *Window) ID() string {
	return w.id
}

// Close tells the host to stop the window.
func (w *Window) Close(ctx context.Context) error {
	if err := w.nc.Publish(w.closeTo, nil); err != nil {
		return fmt.Errorf("close window %s: %w", w.id, err)
	}

	if err := w.nc.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("close window %s: %w", w.id, err)
	}

	return nil
}
