package natsbus

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/cortexrd/Knack-Toolkit-Library-sub001/internal/logging"
	"github.com/cortexrd/Knack-Toolkit-Library-sub001/internal/natsutil"
	"github.com/cortexrd/Knack-Toolkit-Library-sub001/internal/wire"
	"github.com/cortexrd/Knack-Toolkit-Library-sub001/types"
)

// Subject returns the subject a window listens on.
//
// Format: {namespace}.wnd.{endpoint}[.{windowID}]
func Subject(namespace string, endpoint types.Endpoint, windowID string) string {
	if windowID == "" {
		return fmt.Sprintf("%s.wnd.%s", namespace, endpoint)
	}

	return fmt.Sprintf("%s.wnd.%s.%s", namespace, endpoint, windowID)
}

// Channel publishes messages to one subject.
type Channel struct {
	nc      *nats.Conn
	subject string
}

var _ types.Channel = (*Channel)(nil)

// NewChannel creates a channel publishing to subject.
func NewChannel(nc *nats.Conn, subject string) *Channel {
	return &Channel{nc: nc, subject: subject}
}

// Subject returns the subject this channel publishes to.
func (c *Channel) Subject() string {
	return c.subject
}

// Post encodes msg and publishes it. Connectivity failures are reported as
// types.ErrNoRoute, like any other dropped message.
func (c *Channel) Post(_ context.Context, msg types.Message) error {
	return publish(c.nc, c.subject, msg)
}

// EndpointChannel publishes each message to the subject of its destination endpoint.
//
// It serves as the application fallback transport for endpoint pairs other than
// main-app and worker-window.
type EndpointChannel struct {
	nc        *nats.Conn
	namespace string
}

var _ types.Channel = (*EndpointChannel)(nil)

// NewEndpointChannel creates a fallback channel within namespace.
func NewEndpointChannel(nc *nats.Conn, namespace string) *EndpointChannel {
	return &EndpointChannel{nc: nc, namespace: namespace}
}

// Post publishes msg to Subject(namespace, msg.Destination, "").
func (c *EndpointChannel) Post(_ context.Context, msg types.Message) error {
	return publish(c.nc, Subject(c.namespace, msg.Destination, ""), msg)
}

func publish(nc *nats.Conn, subject string, msg types.Message) error {
	data, err := wire.Encode(msg)
	if err != nil {
		return err
	}

	if err := nc.Publish(subject, data); err != nil {
		if natsutil.IsConnectivityError(err) {
			return fmt.Errorf("%w: publish %s: %w", types.ErrNoRoute, subject, err)
		}

		return fmt.Errorf("publish %s: %w", subject, err)
	}

	return nil
}

// Subscribe decodes every message on subject and hands it to r.
//
// Malformed payloads are logged and skipped. Delivery is sequential per subscription.
//
// Parameters:
//   - nc: NATS connection
//   - subject: Subject to listen on, see Subject
//   - r: Receiver of decoded messages, usually a runtime
//   - logger: Logger for dropped payloads (nil for none)
func Subscribe(nc *nats.Conn, subject string, r types.Receiver, logger types.Logger) (*nats.Subscription, error) {
	if logger == nil {
		logger = logging.NewNop()
	}

	sub, err := nc.Subscribe(subject, func(m *nats.Msg) {
		msg, err := wire.Decode(m.Data)
		if err != nil {
			logger.Warn("dropping undecodable message", "subject", m.Subject, "error", err)
			return
		}
		r.Receive(context.Background(), msg)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}

	return sub, nil
}
