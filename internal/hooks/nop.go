// Package hooks provides a no-op implementation of types.Hooks.
package hooks

import (
	"context"

	"github.com/cortexrd/Knack-Toolkit-Library-sub001/types"
)

// NopHooks implements every hook callback as a no-op.
//
// Components fill unset callbacks from it so they never need nil checks.
type NopHooks struct{}

var (
	_ func(context.Context, types.MessageFailure) error  = (*NopHooks)(nil).OnMessageFailed
	_ func(context.Context, string) error                = (*NopHooks)(nil).OnWorkerUnresponsive
	_ func(context.Context, types.ReloadDirective) error = (*NopHooks)(nil).OnVersionMismatch
	_ func(context.Context, types.ReloadDirective) error = (*NopHooks)(nil).OnReloadRequired
	_ func(context.Context, error) error                 = (*NopHooks)(nil).OnError
)

// NewNop returns Hooks with every callback set to a no-op.
func NewNop() types.Hooks {
	h := &NopHooks{}
	return types.Hooks{
		OnMessageFailed:      h.OnMessageFailed,
		OnWorkerUnresponsive: h.OnWorkerUnresponsive,
		OnVersionMismatch:    h.OnVersionMismatch,
		OnReloadRequired:     h.OnReloadRequired,
		OnError:              h.OnError,
	}
}

// WithDefaults returns a copy of h where every nil callback is replaced by a no-op.
// A nil h yields NewNop().
func WithDefaults(h *types.Hooks) *types.Hooks {
	out := NewNop()
	if h == nil {
		return &out
	}
	if h.OnMessageFailed != nil {
		out.OnMessageFailed = h.OnMessageFailed
	}
	if h.OnWorkerUnresponsive != nil {
		out.OnWorkerUnresponsive = h.OnWorkerUnresponsive
	}
	if h.OnVersionMismatch != nil {
		out.OnVersionMismatch = h.OnVersionMismatch
	}
	if h.OnReloadRequired != nil {
		out.OnReloadRequired = h.OnReloadRequired
	}
	if h.OnError != nil {
		out.OnError = h.OnError
	}

	return &out
}

// OnMessageFailed is a no-op implementation.
func (h *NopHooks) OnMessageFailed(ctx context.Context, failure types.MessageFailure) error {
	return nil
}

// OnWorkerUnresponsive is a no-op implementation.
func (h *NopHooks) OnWorkerUnresponsive(ctx context.Context, windowID string) error {
	return nil
}

// OnVersionMismatch is a no-op implementation.
func (h *NopHooks) OnVersionMismatch(ctx context.Context, directive types.ReloadDirective) error {
	return nil
}

// OnReloadRequired is a no-op implementation.
func (h *NopHooks) OnReloadRequired(ctx context.Context, directive types.ReloadDirective) error {
	return nil
}

// OnError is a no-op implementation.
func (h *NopHooks) OnError(ctx context.Context, err error) error {
	return nil
}
