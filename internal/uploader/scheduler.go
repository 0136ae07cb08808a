package uploader

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cortexrd/Knack-Toolkit-Library-sub001/internal/hooks"
	"github.com/cortexrd/Knack-Toolkit-Library-sub001/internal/logging"
	"github.com/cortexrd/Knack-Toolkit-Library-sub001/internal/metrics"
	"github.com/cortexrd/Knack-Toolkit-Library-sub001/types"
)

// Record fields of a submitted batch.
const (
	FieldCategory       = "category"
	FieldBatchID        = "batch_id"
	FieldUserID         = "user_id"
	FieldLogs           = "logs"
	FieldDeveloperEmail = "developer_email"
)

// Source is the log accumulator as seen by the scheduler.
type Source interface {
	Batch(ctx context.Context, category types.Category) (types.LogBatch, error)
	Claim(ctx context.Context, category types.Category) (types.LogBatch, bool, error)
	Release(ctx context.Context, category types.Category, claimed types.LogBatch) error
}

// RefreshPauser pauses the application's view auto-refresh.
type RefreshPauser interface {
	PauseRefresh(ctx context.Context)
}

// RefreshPauserFunc adapts a function to RefreshPauser.
type RefreshPauserFunc func(ctx context.Context)

// PauseRefresh implements RefreshPauser.
func (f RefreshPauserFunc) PauseRefresh(ctx context.Context) { f(ctx) }

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger.
func WithLogger(logger types.Logger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m types.MetricsCollector) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithHooks sets the application hooks. Failed submissions are reported to OnError.
func WithHooks(h *types.Hooks) Option {
	return func(s *Scheduler) { s.hooks = hooks.WithDefaults(h) }
}

// WithRefreshPauser sets what a critical batch pauses before submission.
func WithRefreshPauser(p RefreshPauser) Option {
	return func(s *Scheduler) { s.pauser = p }
}

// WithClock sets the time source for the age threshold.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// Scheduler drains log batches to the record API on two independent loops.
//
// Each loop walks its category list in order and waits for every submission to
// settle before moving on, so at most one upsert per loop is in flight.
type Scheduler struct {
	source  Source
	api     types.RecordAPI
	cfg     Config
	logger  types.Logger
	metrics types.MetricsCollector
	hooks   *types.Hooks
	pauser  RefreshPauser
	now     func() time.Time

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// New creates a stopped scheduler.
//
// Parameters:
//   - source: The log accumulator
//   - api: Host record API
//   - cfg: Settings; zero values take defaults
//   - opts: Optional logger, metrics, hooks, refresh pauser and clock
//
// Returns:
//   - *Scheduler: The scheduler
//   - error: types.ErrStoreRequired, types.ErrRecordAPIRequired or types.ErrInvalidConfig
func New(source Source, api types.RecordAPI, cfg Config, opts ...Option) (*Scheduler, error) {
	if source == nil {
		return nil, types.ErrStoreRequired
	}
	if api == nil {
		return nil, types.ErrRecordAPIRequired
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrInvalidConfig, err)
	}

	s := &Scheduler{
		source:  source,
		api:     api,
		cfg:     cfg,
		logger:  logging.NewNop(),
		metrics: metrics.NewNop(),
		hooks:   hooks.WithDefaults(nil),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// DrainHighPriority submits every non-empty, unsent high-priority batch in order.
//
// Returns:
//   - int: Number of successful submissions
func (s *Scheduler) DrainHighPriority(ctx context.Context) int {
	submitted := 0
	for _, category := range s.cfg.HighPriority {
		if ctx.Err() != nil {
			break
		}
		if s.submit(ctx, category) {
			submitted++
		}
	}

	return submitted
}

// DrainLowPriority submits low-priority batches whose oldest entry is older than the
// age threshold. Activity batches that only carry zero counters are skipped.
//
// Returns:
//   - int: Number of successful submissions
func (s *Scheduler) DrainLowPriority(ctx context.Context) int {
	maxAge := s.cfg.lowPriorityMaxAge()
	submitted := 0

	for _, category := range s.cfg.LowPriority {
		if ctx.Err() != nil {
			break
		}

		batch, err := s.source.Batch(ctx, category)
		if err != nil {
			s.logger.Warn("failed to read log batch", "category", category, "error", err)
			continue
		}
		if batch.IsEmpty() || batch.Sent {
			continue
		}
		if s.now().Sub(batch.Oldest()) < maxAge {
			continue
		}
		if category == types.CategoryActivity && allZeroActivity(batch) {
			s.logger.Debug("skipping idle activity batch", "batch_id", batch.BatchID)
			continue
		}

		if s.submit(ctx, category) {
			submitted++
		}
	}

	return submitted
}

// submit claims, posts and settles one category. It returns true on success.
func (s *Scheduler) submit(ctx context.Context, category types.Category) bool {
	batch, ok, err := s.source.Claim(ctx, category)
	if err != nil {
		s.logger.Warn("failed to claim log batch", "category", category, "error", err)
		return false
	}
	if !ok {
		return false
	}

	fields, err := s.fields(category, batch)
	if err != nil {
		s.logger.Error("failed to encode log batch", "category", category, "error", err)
		s.release(ctx, category, batch)

		return false
	}

	if category == types.CategoryCritical && s.pauser != nil {
		s.pauser.PauseRefresh(ctx)
	}

	submitCtx, cancel := context.WithTimeout(ctx, s.cfg.SubmitTimeout)
	defer cancel()

	start := time.Now()
	_, err = s.api.Upsert(submitCtx, s.cfg.Collection, "", fields, types.MethodPost)
	s.metrics.RecordSubmission(category, err == nil, time.Since(start))

	if err != nil {
		err = fmt.Errorf("%w: %s batch %s: %w", types.ErrSubmitFailed, category, batch.BatchID, err)
		s.logger.Error("log submission failed", "category", category, "batch_id", batch.BatchID, "error", err)
		s.release(ctx, category, batch)
		if hookErr := s.hooks.OnError(ctx, err); hookErr != nil {
			s.logger.Warn("error hook failed", "error", hookErr)
		}

		return false
	}

	s.logger.Debug("log batch submitted", "category", category, "batch_id", batch.BatchID, "entries", len(batch.Entries))

	return true
}

func (s *Scheduler) release(ctx context.Context, category types.Category, batch types.LogBatch) {
	if err := s.source.Release(ctx, category, batch); err != nil {
		s.logger.Warn("failed to release log batch", "category", category, "error", err)
	}
}

func (s *Scheduler) fields(category types.Category, batch types.LogBatch) (map[string]any, error) {
	logs, err := json.Marshal(batch.Entries)
	if err != nil {
		return nil, err
	}

	fields := map[string]any{
		FieldCategory: string(category),
		FieldBatchID:  batch.BatchID,
		FieldUserID:   s.cfg.UserID,
		FieldLogs:     string(logs),
	}
	if category == types.CategoryCritical && s.cfg.DeveloperEmail != "" {
		fields[FieldDeveloperEmail] = s.cfg.DeveloperEmail
	}

	return fields, nil
}

// Start runs both loops until Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return types.ErrAlreadyStarted
	}

	s.started = true
	s.stopCh = make(chan struct{})

	loopCtx := context.WithoutCancel(ctx)
	s.wg.Add(2)
	go s.loop(loopCtx, s.stopCh, "high", s.cfg.HighPriorityInterval, s.DrainHighPriority)
	go s.loop(loopCtx, s.stopCh, "low", s.cfg.lowPriorityInterval(), s.DrainLowPriority)

	s.logger.Info("upload scheduler started",
		"high_interval", s.cfg.HighPriorityInterval,
		"low_interval", s.cfg.lowPriorityInterval(),
	)

	return nil
}

// Stop halts both loops and waits for in-flight submissions to settle.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return types.ErrNotStarted
	}
	s.started = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("upload scheduler stopped")

	return nil
}

func (s *Scheduler) loop(ctx context.Context, stopCh chan struct{}, name string, interval time.Duration, drain func(context.Context) int) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if n := drain(ctx); n > 0 {
				s.logger.Debug("upload loop drained", "loop", name, "submitted", n)
			}
		}
	}
}

// allZeroActivity reports whether every entry is a JSON object of zero numbers.
func allZeroActivity(batch types.LogBatch) bool {
	for _, entry := range batch.Entries {
		if !isZeroActivity(entry.Details) {
			return false
		}
	}

	return true
}

func isZeroActivity(details string) bool {
	var counters map[string]float64
	if err := json.Unmarshal([]byte(details), &counters); err != nil {
		return false
	}
	for _, v := range counters {
		if v != 0 {
			return false
		}
	}

	return true
}
