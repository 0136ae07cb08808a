package testing

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cortexrd/Knack-Toolkit-Library-sub001/types"
)

// ErrWindowClosed is returned when posting to a closed fake window.
var ErrWindowClosed = errors.New("window closed")

// Clock is a manually advanced clock. The zero value starts at the zero time;
// use NewClock for a realistic start.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock set to start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

// Channel records every posted message and optionally forwards it to a receiver.
type Channel struct {
	mu       sync.Mutex
	messages []types.Message
	err      error
	forward  types.Receiver
}

var _ types.Channel = (*Channel)(nil)

// NewChannel creates an empty recording channel.
func NewChannel() *Channel {
	return &Channel{}
}

// Post records msg, then forwards it synchronously if a receiver is set.
// While FailWith is active the message is dropped and the error returned.
func (c *Channel) Post(ctx context.Context, msg types.Message) error {
	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()

		return err
	}
	c.messages = append(c.messages, msg)
	forward := c.forward
	c.mu.Unlock()

	if forward != nil {
		forward.Receive(ctx, msg)
	}

	return nil
}

// ForwardTo delivers subsequent posts to r.
func (c *Channel) ForwardTo(r types.Receiver) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.forward = r
}

// FailWith makes subsequent posts fail with err; nil restores delivery.
func (c *Channel) FailWith(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.err = err
}

// Messages returns a copy of the recorded messages.
func (c *Channel) Messages() []types.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]types.Message, len(c.messages))
	copy(out, c.messages)

	return out
}

// MessagesOfType returns recorded messages with the given type and subtype.
func (c *Channel) MessagesOfType(msgType types.MessageType, subtype types.Subtype) []types.Message {
	var out []types.Message
	for _, msg := range c.Messages() {
		if msg.Type() == msgType && msg.Subtype == subtype {
			out = append(out, msg)
		}
	}

	return out
}

// Reset drops the recorded messages.
func (c *Channel) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.messages = nil
}

// Window is a fake embedded window backed by a recording Channel.
type Window struct {
	*Channel

	id     string
	route  string
	closed atomic.Bool
}

var _ types.Window = (*Window)(nil)

// ID returns the window id.
func (w *Window) ID() string { return w.id }

// Route returns the route the window was opened with.
func (w *Window) Route() string { return w.route }

// Closed reports whether Close was called.
func (w *Window) Closed() bool { return w.closed.Load() }

// Post fails with ErrWindowClosed once the window is closed.
func (w *Window) Post(ctx context.Context, msg types.Message) error {
	if w.closed.Load() {
		return ErrWindowClosed
	}

	return w.Channel.Post(ctx, msg)
}

// Close marks the window closed.
func (w *Window) Close(_ context.Context) error {
	w.closed.Store(true)
	return nil
}

// WindowFactory opens fake windows and remembers them.
type WindowFactory struct {
	mu     sync.Mutex
	opened []*Window
	err    error
	onOpen func(w *Window)
}

var _ types.WindowFactory = (*WindowFactory)(nil)

// NewWindowFactory creates a factory with no windows.
func NewWindowFactory() *WindowFactory {
	return &WindowFactory{}
}

// Open creates a new fake window. The OnOpen callback, if any, runs before Open returns.
func (f *WindowFactory) Open(_ context.Context, route string) (types.Window, error) {
	f.mu.Lock()
	if f.err != nil {
		err := f.err
		f.mu.Unlock()

		return nil, err
	}
	w := &Window{
		Channel: NewChannel(),
		id:      fmt.Sprintf("window-%d", len(f.opened)+1),
		route:   route,
	}
	f.opened = append(f.opened, w)
	onOpen := f.onOpen
	f.mu.Unlock()

	if onOpen != nil {
		onOpen(w)
	}

	return w, nil
}

// OnOpen registers a callback invoked for every opened window.
func (f *WindowFactory) OnOpen(fn func(w *Window)) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.onOpen = fn
}

// FailWith makes subsequent opens fail with err; nil restores them.
func (f *WindowFactory) FailWith(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.err = err
}

// Opened returns every window opened so far.
func (f *WindowFactory) Opened() []*Window {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]*Window, len(f.opened))
	copy(out, f.opened)

	return out
}

// Last returns the most recently opened window, or nil.
func (f *WindowFactory) Last() *Window {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.opened) == 0 {
		return nil
	}

	return f.opened[len(f.opened)-1]
}

// UpsertCall is one recorded RecordAPI.Upsert invocation.
type UpsertCall struct {
	Collection string
	RecordID   string
	Fields     map[string]any
	Method     types.UpsertMethod
}

// RecordAPI records upserts and can be told to fail or to block.
type RecordAPI struct {
	mu    sync.Mutex
	calls []UpsertCall
	err   error
	delay time.Duration
	seq   int

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

var _ types.RecordAPI = (*RecordAPI)(nil)

// NewRecordAPI creates a record API that accepts every upsert.
func NewRecordAPI() *RecordAPI {
	return &RecordAPI{}
}

// Upsert records the call and returns the configured error, if any.
func (r *RecordAPI) Upsert(ctx context.Context, collection, recordID string, fields map[string]any, method types.UpsertMethod) (string, error) {
	n := r.inFlight.Add(1)
	defer r.inFlight.Add(-1)
	for {
		peak := r.maxInFlight.Load()
		if n <= peak || r.maxInFlight.CompareAndSwap(peak, n) {
			break
		}
	}

	r.mu.Lock()
	delay := r.delay
	r.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = append(r.calls, UpsertCall{
		Collection: collection,
		RecordID:   recordID,
		Fields:     maps.Clone(fields),
		Method:     method,
	})
	if r.err != nil {
		return "", r.err
	}

	if recordID == "" {
		r.seq++
		recordID = fmt.Sprintf("record-%d", r.seq)
	}

	return recordID, nil
}

// FailWith makes subsequent upserts fail with err; nil restores success.
func (r *RecordAPI) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.err = err
}

// SetDelay makes every upsert take d before completing.
func (r *RecordAPI) SetDelay(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.delay = d
}

// Calls returns a copy of the recorded calls.
func (r *RecordAPI) Calls() []UpsertCall {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]UpsertCall, len(r.calls))
	copy(out, r.calls)

	return out
}

// MaxInFlight returns the highest number of concurrent upserts observed.
func (r *RecordAPI) MaxInFlight() int {
	return int(r.maxInFlight.Load())
}
