package ktl

import (
	"context"

	"github.com/cortexrd/Knack-Toolkit-Library-sub001/internal/hooks"
	"github.com/cortexrd/Knack-Toolkit-Library-sub001/internal/logging"
	"github.com/cortexrd/Knack-Toolkit-Library-sub001/internal/metrics"
	"github.com/cortexrd/Knack-Toolkit-Library-sub001/internal/uploader"
)

// RequestHandler handles an application request. Returning nil acknowledges the
// request with its own body; an error leaves it unacknowledged, so the sender retries.
type RequestHandler func(ctx context.Context, req Message) error

// Option configures an App or Worker runtime with optional dependencies.
type Option func(*runtimeOptions)

// runtimeOptions holds optional runtime configuration.
type runtimeOptions struct {
	logger     Logger
	metrics    MetricsCollector
	hooks      *Hooks
	fallback   Channel
	session    func() bool
	pauser     uploader.RefreshPauser
	custom     RequestHandler
	preference RequestHandler
}

func buildOptions(opts []Option) runtimeOptions {
	o := runtimeOptions{
		logger:  logging.NewNop(),
		metrics: metrics.NewNop(),
		hooks:   hooks.WithDefaults(nil),
	}
	for _, opt := range opts {
		opt(&o)
	}

	return o
}

// WithLogger sets a logger.
//
// Parameters:
//   - logger: Logger implementation (compatible with zap.SugaredLogger)
//
// Example:
//
//	logger := zap.NewExample().Sugar()
//	app, err := ktl.NewApp(cfg, deps, ktl.WithLogger(logger))
func WithLogger(logger Logger) Option {
	return func(o *runtimeOptions) {
		o.logger = logger
	}
}

// WithMetrics sets a metrics collector.
//
// Example:
//
//	collector := metrics.NewPrometheus(prometheus.DefaultRegisterer, "ktl")
//	app, err := ktl.NewApp(cfg, deps, ktl.WithMetrics(collector))
func WithMetrics(m MetricsCollector) Option {
	return func(o *runtimeOptions) {
		o.metrics = m
	}
}

// WithHooks sets application hooks.
//
// Example:
//
//	hooks := &ktl.Hooks{
//	    OnReloadRequired: func(ctx context.Context, d ktl.ReloadDirective) error {
//	        return reloadPage(ctx)
//	    },
//	}
//	w, err := ktl.NewWorker(cfg, deps, ktl.WithHooks(hooks))
func WithHooks(h *Hooks) Option {
	return func(o *runtimeOptions) {
		o.hooks = hooks.WithDefaults(h)
	}
}

// WithFallbackChannel sets the channel for destinations other than the app and the
// worker window. Without it such messages are dropped.
func WithFallbackChannel(ch Channel) Option {
	return func(o *runtimeOptions) {
		o.fallback = ch
	}
}

// WithSessionFunc reports whether an authenticated session exists. The worker window
// is only created while it returns true. Default: always true.
func WithSessionFunc(fn func() bool) Option {
	return func(o *runtimeOptions) {
		o.session = fn
	}
}

// WithRefreshPauser sets the function that pauses view auto-refresh before a critical
// log batch is submitted.
func WithRefreshPauser(fn func(ctx context.Context)) Option {
	return func(o *runtimeOptions) {
		if fn == nil {
			o.pauser = nil
			return
		}
		o.pauser = uploader.RefreshPauserFunc(fn)
	}
}

// WithCustomHandler handles requests carrying a Custom body.
func WithCustomHandler(h RequestHandler) Option {
	return func(o *runtimeOptions) {
		o.custom = h
	}
}

// WithPreferenceHandler handles preference-change requests.
func WithPreferenceHandler(h RequestHandler) Option {
	return func(o *runtimeOptions) {
		o.preference = h
	}
}
