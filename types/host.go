package types

import "context"

// KVStore is the persistent key-value store shared by every window of the application.
//
// It mirrors browser localStorage: values are strings, writes are last-writer-wins and
// no transactions exist. Implementations must be safe for concurrent use.
type KVStore interface {
	// Get returns the value for key, or ErrKeyNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key.
	Set(ctx context.Context, key, value string) error

	// Remove deletes key. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error
}

// Channel delivers a message to one window.
//
// Delivery is at-least-zero: a message may be silently dropped but is never duplicated
// or corrupted. The retry layer of the bus sits on top of this guarantee.
type Channel interface {
	Post(ctx context.Context, msg Message) error
}

// ChannelFunc adapts a function to Channel.
type ChannelFunc func(ctx context.Context, msg Message) error

// Post implements Channel.
func (f ChannelFunc) Post(ctx context.Context, msg Message) error { return f(ctx, msg) }

// Receiver accepts inbound messages from a transport subscription.
type Receiver interface {
	Receive(ctx context.Context, msg Message)
}

// ReceiverFunc adapts a function to Receiver.
type ReceiverFunc func(ctx context.Context, msg Message)

// Receive implements Receiver.
func (f ReceiverFunc) Receive(ctx context.Context, msg Message) { f(ctx, msg) }

// Window is a live embedded worker window.
type Window interface {
	Channel

	// ID identifies this window instance. A recreated window gets a new ID.
	ID() string

	// Close detaches the window and releases its resources.
	Close(ctx context.Context) error
}

// WindowFactory opens embedded worker windows.
type WindowFactory interface {
	// Open loads route in a new embedded window.
	Open(ctx context.Context, route string) (Window, error)
}

// UpsertMethod selects create or update semantics of a record upsert.
type UpsertMethod string

const (
	MethodPost UpsertMethod = "POST"
	MethodPut  UpsertMethod = "PUT"
)

// RecordAPI is the host platform's generic record upsert.
type RecordAPI interface {
	// Upsert writes fields to recordID in collection, or creates a new record when
	// recordID is empty. It returns the record ID. A nil error confirms durable persistence.
	Upsert(ctx context.Context, collection, recordID string, fields map[string]any, method UpsertMethod) (string, error)
}
