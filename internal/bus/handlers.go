package bus

import (
	"context"

	"github.com/cortexrd/Knack-Toolkit-Library-sub001/types"
)

// Handlers are the typed receivers of inbound requests.
//
// Each field handles one body kind. A nil field means this window does not serve
// that kind; such requests are logged and dropped without an acknowledge.
type Handlers struct {
	Heartbeat        func(ctx context.Context, req types.Message, body types.Heartbeat)
	Ready            func(ctx context.Context, req types.Message, body types.Ready)
	ReloadRequired   func(ctx context.Context, req types.Message, body types.ReloadRequired)
	PreferenceChange func(ctx context.Context, req types.Message, body types.PreferenceChange)
	Custom           func(ctx context.Context, req types.Message, body types.Custom)

	// Acknowledged is called after an acknowledge settled a pending request.
	Acknowledged func(ctx context.Context, ack types.Message)
}

// dispatch routes req to its handler. It reports false when no handler exists.
func (h *Handlers) dispatch(ctx context.Context, req types.Message) (bool, error) {
	switch body := req.Body.(type) {
	case types.Heartbeat:
		if h.Heartbeat == nil {
			return false, nil
		}
		h.Heartbeat(ctx, req, body)
	case types.Ready:
		if h.Ready == nil {
			return false, nil
		}
		h.Ready(ctx, req, body)
	case types.ReloadRequired:
		if h.ReloadRequired == nil {
			return false, nil
		}
		h.ReloadRequired(ctx, req, body)
	case types.PreferenceChange:
		if h.PreferenceChange == nil {
			return false, nil
		}
		h.PreferenceChange(ctx, req, body)
	case types.Custom:
		if h.Custom == nil {
			return false, nil
		}
		h.Custom(ctx, req, body)
	default:
		return false, types.ErrUnknownBody
	}

	return true, nil
}
