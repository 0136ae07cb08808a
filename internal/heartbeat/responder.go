package heartbeat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cortexrd/Knack-Toolkit-Library-sub001/types"
)

// Defaults of the worker-side liveness check.
const (
	DefaultMaxClockSkew  = 60 * time.Second
	DefaultSubmitTimeout = 30 * time.Second
)

// Liveness record fields.
const (
	FieldUTCTime    = "utc_time"
	FieldLocalEpoch = "local_epoch_ms"
)

// Acker is the part of the bus the responder uses.
type Acker interface {
	Ack(ctx context.Context, req types.Message, body types.Body) error
}

// ResponderConfig holds the liveness record location and the timing bounds.
type ResponderConfig struct {
	Collection    string        // Record collection of the liveness record (required)
	RecordID      string        // Liveness record id; empty creates a new record per heartbeat
	MaxClockSkew  time.Duration // Largest accepted |now - SentAt| (default: 60s)
	SubmitTimeout time.Duration // Bound on the liveness write (default: 30s)
}

// SetDefaults fills zero-valued fields.
func (c *ResponderConfig) SetDefaults() {
	if c.MaxClockSkew == 0 {
		c.MaxClockSkew = DefaultMaxClockSkew
	}
	if c.SubmitTimeout == 0 {
		c.SubmitTimeout = DefaultSubmitTimeout
	}
}

// Validate checks configuration validity.
func (c *ResponderConfig) Validate() error {
	if c.Collection == "" {
		return errors.New("the Collection is required")
	}
	if c.MaxClockSkew <= 0 || c.SubmitTimeout <= 0 {
		return errors.New("the MaxClockSkew and SubmitTimeout must be positive")
	}

	return nil
}

// Responder answers heartbeat requests in the worker window.
//
// A heartbeat is acknowledged only after the liveness record was written and the
// request's send time is within MaxClockSkew of the local clock. Otherwise nothing
// is sent and the app's retries run out, which is how an unhealthy worker is
// detected.
type Responder struct {
	acker Acker
	api   types.RecordAPI
	cfg   ResponderConfig
	opts  options
}

// NewResponder creates a responder.
//
// Returns:
//   - *Responder: New responder
//   - error: types.ErrRecordAPIRequired or invalid configuration
func NewResponder(acker Acker, api types.RecordAPI, cfg ResponderConfig, opts ...Option) (*Responder, error) {
	if api == nil {
		return nil, types.ErrRecordAPIRequired
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrInvalidConfig, err)
	}

	return &Responder{
		acker: acker,
		api:   api,
		cfg:   cfg,
		opts:  buildOptions(opts),
	}, nil
}

// Handle processes one heartbeat request. It has the signature of bus.Handlers.Heartbeat.
func (r *Responder) Handle(ctx context.Context, req types.Message, body types.Heartbeat) {
	ok := r.respond(ctx, req, body)
	r.opts.metrics.RecordHeartbeat(ok)
}

func (r *Responder) respond(ctx context.Context, req types.Message, body types.Heartbeat) bool {
	now := r.opts.now()
	fields := map[string]any{
		FieldUTCTime:    now.UTC().Format(time.RFC3339),
		FieldLocalEpoch: now.UnixMilli(),
	}

	writeCtx, cancel := context.WithTimeout(ctx, r.cfg.SubmitTimeout)
	defer cancel()

	method := types.MethodPut
	if r.cfg.RecordID == "" {
		method = types.MethodPost
	}
	if _, err := r.api.Upsert(writeCtx, r.cfg.Collection, r.cfg.RecordID, fields, method); err != nil {
		r.opts.logger.Warn("liveness write failed, heartbeat not acknowledged", "id", req.ID, "error", err)
		return false
	}

	skew := r.opts.now().Sub(time.UnixMilli(body.SentAt)).Abs()
	if skew > r.cfg.MaxClockSkew {
		r.opts.logger.Warn("heartbeat outside clock skew bound, not acknowledged",
			"id", req.ID, "skew", skew, "max_skew", r.cfg.MaxClockSkew)

		return false
	}

	if err := r.acker.Ack(ctx, req, body); err != nil {
		r.opts.logger.Debug("heartbeat acknowledge not delivered", "id", req.ID, "error", err)
		return false
	}

	return true
}
