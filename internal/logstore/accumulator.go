package logstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/zeebo/xxh3"

	"github.com/cortexrd/Knack-Toolkit-Library-sub001/internal/logging"
	"github.com/cortexrd/Knack-Toolkit-Library-sub001/internal/metrics"
	"github.com/cortexrd/Knack-Toolkit-Library-sub001/types"
)

// Option configures an Accumulator.
type Option func(*Accumulator)

// WithLogger sets the logger.
func WithLogger(logger types.Logger) Option {
	return func(a *Accumulator) { a.logger = logger }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m types.MetricsCollector) Option {
	return func(a *Accumulator) { a.metrics = m }
}

// WithClock sets the time source for entry timestamps and batch ids.
func WithClock(now func() time.Time) Option {
	return func(a *Accumulator) { a.now = now }
}

// Accumulator stores log entries as one batch per category in a key-value store.
//
// Every method is a read-modify-write of one stored batch. Calls within one process
// are serialized; other processes sharing the store may interleave, and the last
// writer wins, so a concurrent write from another process can be lost.
type Accumulator struct {
	store   types.KVStore
	cfg     Config
	logger  types.Logger
	metrics types.MetricsCollector
	now     func() time.Time

	// mu serializes read-modify-write cycles on the store.
	mu         sync.Mutex
	lastFP     uint64
	hasLast    bool
	categories map[types.Category]struct{}

	runMu   sync.Mutex
	started bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New creates an accumulator over store.
//
// Parameters:
//   - store: Shared key-value store, usually namespaced
//   - cfg: Settings; zero values take defaults
//   - opts: Optional logger, metrics and clock
//
// Returns:
//   - *Accumulator: The accumulator
//   - error: types.ErrStoreRequired or types.ErrInvalidConfig
func New(store types.KVStore, cfg Config, opts ...Option) (*Accumulator, error) {
	if store == nil {
		return nil, types.ErrStoreRequired
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrInvalidConfig, err)
	}

	a := &Accumulator{
		store:      store,
		cfg:        cfg,
		logger:     logging.NewNop(),
		metrics:    metrics.NewNop(),
		now:        time.Now,
		categories: make(map[types.Category]struct{}),
	}
	for _, c := range types.HighPriorityCategories() {
		a.categories[c] = struct{}{}
	}
	for _, c := range types.LowPriorityCategories() {
		a.categories[c] = struct{}{}
	}
	for _, opt := range opts {
		opt(a)
	}

	return a, nil
}

// Key returns the store key of category.
func (a *Accumulator) Key(category types.Category) string {
	return "log." + a.cfg.UserID + "." + string(category)
}

// Add records a log entry.
//
// Single-slot categories replace the details of their sole entry but keep its
// timestamp until the batch is shipped; other categories prepend, so the newest
// entry is first. A batch already claimed for submission is not extended: the new
// entry starts a fresh batch. Every write resets Sent and stamps a BatchID greater
// than the stored one. A batch that grows past MaxEntries+EvictionHeadroom is cut to MaxEntries.
//
// Returns:
//   - error: types.ErrEmptyLog, types.ErrDuplicateLog, or a store error
func (a *Accumulator) Add(ctx context.Context, category types.Category, details string) error {
	if category == "" || details == "" {
		return types.ErrEmptyLog
	}

	fp := xxh3.HashString(string(category) + "\x00" + details)

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.hasLast && a.lastFP == fp {
		return types.ErrDuplicateLog
	}

	batch, err := a.load(ctx, category)
	if err != nil {
		return err
	}
	prevID := batch.BatchID
	if batch.Sent {
		batch = types.LogBatch{}
	}

	now := a.now()
	entry := types.LogEntry{Timestamp: now, Category: category, Details: details}

	if a.isSingleSlot(category) {
		// The slot keeps its first timestamp until shipped, so the batch ages.
		if len(batch.Entries) > 0 {
			entry.Timestamp = batch.Entries[0].Timestamp
		}
		batch.Entries = []types.LogEntry{entry}
	} else {
		batch.Entries = slices.Insert(batch.Entries, 0, entry)
	}

	evicted := 0
	if len(batch.Entries) > a.cfg.MaxEntries+a.cfg.EvictionHeadroom {
		evicted = len(batch.Entries) - a.cfg.MaxEntries
		batch.Entries = batch.Entries[:a.cfg.MaxEntries]
	}

	batch.BatchID = nextBatchID(now, prevID)
	batch.Sent = false

	if err := a.save(ctx, category, batch); err != nil {
		return err
	}

	a.lastFP = fp
	a.hasLast = true
	a.categories[category] = struct{}{}

	a.metrics.RecordLogAdded(category)
	if evicted > 0 {
		a.metrics.RecordLogEvicted(category, evicted)
		a.logger.Debug("log entries evicted", "category", category, "count", evicted)
	}

	return nil
}

// nextBatchID returns now in ms, bumped past prev so every write gets a new id.
func nextBatchID(now time.Time, prev string) string {
	id := now.UnixMilli()
	if last, err := strconv.ParseInt(prev, 10, 64); err == nil && id <= last {
		id = last + 1
	}

	return strconv.FormatInt(id, 10)
}

// Batch returns the stored batch of category, or an empty batch.
func (a *Accumulator) Batch(ctx context.Context, category types.Category) (types.LogBatch, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.load(ctx, category)
}

// Claim marks the batch of category as sent and returns it.
//
// The flag is persisted before the caller submits, so other windows sharing the
// store skip the batch. Two windows may still claim the same batch in a narrow race;
// the duplicate submission is tolerated. An Add from another window that lands
// between this load and save is overwritten by the claimed batch and lost.
//
// Returns:
//   - types.LogBatch: The claimed batch
//   - bool: false when the batch is empty or already sent
//   - error: Store error
func (a *Accumulator) Claim(ctx context.Context, category types.Category) (types.LogBatch, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	batch, err := a.load(ctx, category)
	if err != nil {
		return types.LogBatch{}, false, err
	}
	if batch.IsEmpty() || batch.Sent {
		return batch, false, nil
	}

	batch.Sent = true
	if err := a.save(ctx, category, batch); err != nil {
		return types.LogBatch{}, false, err
	}

	return batch, true, nil
}

// Release clears the sent flag after a failed submission of claimed.
//
// Entries added since the claim started a fresh batch; they are kept in front of
// the claimed entries so nothing is lost and the next tick retries everything.
func (a *Accumulator) Release(ctx context.Context, category types.Category, claimed types.LogBatch) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	current, err := a.load(ctx, category)
	if err != nil {
		return err
	}

	batch := claimed
	if current.BatchID != claimed.BatchID && !current.IsEmpty() {
		if a.isSingleSlot(category) {
			batch.Entries = slices.Clone(current.Entries)
			if len(claimed.Entries) > 0 && claimed.Entries[0].Timestamp.Before(batch.Entries[0].Timestamp) {
				batch.Entries[0].Timestamp = claimed.Entries[0].Timestamp
			}
		} else {
			batch.Entries = append(slices.Clone(current.Entries), claimed.Entries...)
			if len(batch.Entries) > a.cfg.MaxEntries {
				a.metrics.RecordLogEvicted(category, len(batch.Entries)-a.cfg.MaxEntries)
				batch.Entries = batch.Entries[:a.cfg.MaxEntries]
			}
		}
		batch.BatchID = current.BatchID
	}
	batch.Sent = false

	return a.save(ctx, category, batch)
}

// Clear removes the stored batch of category.
func (a *Accumulator) Clear(ctx context.Context, category types.Category) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.store.Remove(ctx, a.Key(category)); err != nil {
		return fmt.Errorf("failed to clear %s logs: %w", category, err)
	}

	return nil
}

// Maintain trims every known category to MaxEntries.
//
// Returns:
//   - int: Number of evicted entries
//   - error: First store error; remaining categories are still trimmed
func (a *Accumulator) Maintain(ctx context.Context) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	categories := make([]types.Category, 0, len(a.categories))
	for c := range a.categories {
		categories = append(categories, c)
	}
	slices.Sort(categories)

	var errs []error
	total := 0
	for _, category := range categories {
		batch, err := a.load(ctx, category)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if len(batch.Entries) <= a.cfg.MaxEntries {
			continue
		}

		evicted := len(batch.Entries) - a.cfg.MaxEntries
		batch.Entries = batch.Entries[:a.cfg.MaxEntries]
		if err := a.save(ctx, category, batch); err != nil {
			errs = append(errs, err)
			continue
		}

		total += evicted
		a.metrics.RecordLogEvicted(category, evicted)
	}

	if total > 0 {
		a.logger.Info("log maintenance evicted entries", "count", total)
	}

	return total, errors.Join(errs...)
}

// Start runs the maintenance pass every MaintenanceInterval.
func (a *Accumulator) Start(ctx context.Context) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()

	if a.started {
		return types.ErrAlreadyStarted
	}

	a.started = true
	a.stopCh = make(chan struct{})
	a.doneCh = make(chan struct{})
	ticker := time.NewTicker(a.cfg.MaintenanceInterval)

	go a.maintenanceLoop(context.WithoutCancel(ctx), ticker, a.stopCh, a.doneCh)

	return nil
}

// Stop halts the maintenance pass.
func (a *Accumulator) Stop() error {
	a.runMu.Lock()
	if !a.started {
		a.runMu.Unlock()
		return types.ErrNotStarted
	}
	a.started = false
	close(a.stopCh)
	doneCh := a.doneCh
	a.runMu.Unlock()

	<-doneCh

	return nil
}

func (a *Accumulator) maintenanceLoop(ctx context.Context, ticker *time.Ticker, stopCh, doneCh chan struct{}) {
	defer close(doneCh)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if _, err := a.Maintain(ctx); err != nil {
				a.logger.Warn("log maintenance failed", "error", err)
			}
		}
	}
}

func (a *Accumulator) isSingleSlot(category types.Category) bool {
	return slices.Contains(a.cfg.SingleSlot, category)
}

func (a *Accumulator) load(ctx context.Context, category types.Category) (types.LogBatch, error) {
	raw, err := a.store.Get(ctx, a.Key(category))
	if errors.Is(err, types.ErrKeyNotFound) {
		return types.LogBatch{}, nil
	}
	if err != nil {
		return types.LogBatch{}, fmt.Errorf("failed to load %s logs: %w", category, err)
	}

	var batch types.LogBatch
	if err := json.Unmarshal([]byte(raw), &batch); err != nil {
		// A corrupt batch is dropped rather than blocking the category forever.
		a.logger.Warn("discarding unreadable log batch", "category", category, "error", err)
		return types.LogBatch{}, nil
	}

	return batch, nil
}

func (a *Accumulator) save(ctx context.Context, category types.Category, batch types.LogBatch) error {
	raw, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("failed to encode %s logs: %w", category, err)
	}
	if err := a.store.Set(ctx, a.Key(category), string(raw)); err != nil {
		return fmt.Errorf("failed to store %s logs: %w", category, err)
	}

	return nil
}
