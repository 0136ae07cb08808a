package uploader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/cortexrd/Knack-Toolkit-Library-sub001/internal/kvstore"
	"github.com/cortexrd/Knack-Toolkit-Library-sub001/internal/logstore"
	ktltest "github.com/cortexrd/Knack-Toolkit-Library-sub001/testing"
	"github.com/cortexrd/Knack-Toolkit-Library-sub001/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	logs   *logstore.Accumulator
	api    *ktltest.RecordAPI
	clock  *ktltest.Clock
	paused atomic.Int32
	sched  *Scheduler
}

func newFixture(t *testing.T, cfg Config, opts ...Option) *fixture {
	t.Helper()

	f := &fixture{api: ktltest.NewRecordAPI(), clock: ktltest.NewClock(epoch)}

	logs, err := logstore.New(kvstore.NewMemory(), logstore.Config{UserID: "u1"}, logstore.WithClock(f.clock.Now))
	require.NoError(t, err)
	f.logs = logs

	opts = append([]Option{
		WithClock(f.clock.Now),
		WithLogger(ktltest.NewTestLogger(t)),
		WithRefreshPauser(RefreshPauserFunc(func(context.Context) { f.paused.Add(1) })),
	}, opts...)
	f.sched, err = New(logs, f.api, cfg, opts...)
	require.NoError(t, err)

	return f
}

func (f *fixture) add(t *testing.T, category types.Category, details string) {
	t.Helper()
	require.NoError(t, f.logs.Add(context.Background(), category, details))
}

func (f *fixture) batch(t *testing.T, category types.Category) types.LogBatch {
	t.Helper()
	b, err := f.logs.Batch(context.Background(), category)
	require.NoError(t, err)

	return b
}

func TestNew(t *testing.T) {
	logs, err := logstore.New(kvstore.NewMemory(), logstore.Config{})
	require.NoError(t, err)

	_, err = New(nil, ktltest.NewRecordAPI(), Config{})
	require.ErrorIs(t, err, types.ErrStoreRequired)

	_, err = New(logs, nil, Config{})
	require.ErrorIs(t, err, types.ErrRecordAPIRequired)

	_, err = New(logs, ktltest.NewRecordAPI(), Config{
		HighPriority: []types.Category{types.CategoryActivity},
	})
	require.ErrorIs(t, err, types.ErrInvalidConfig)

	s, err := New(logs, ktltest.NewRecordAPI(), Config{})
	require.NoError(t, err)
	require.Equal(t, DefaultHighPriorityInterval, s.cfg.HighPriorityInterval)
	require.Equal(t, DefaultLowPriorityInterval, s.cfg.lowPriorityInterval())
	require.Equal(t, DefaultLowPriorityMaxAge, s.cfg.lowPriorityMaxAge())

	s.cfg.Developer = true
	require.Equal(t, DefaultDevLowPriorityInterval, s.cfg.lowPriorityInterval())
	require.Equal(t, DefaultDevLowPriorityMaxAge, s.cfg.lowPriorityMaxAge())
}

// A critical entry is submitted on the next high-priority tick and pauses auto-refresh.
func TestDrainHighPriority_Critical(t *testing.T) {
	f := newFixture(t, Config{UserID: "u1", DeveloperEmail: "dev@example.com"})
	f.add(t, types.CategoryCritical, "disk full")

	require.Equal(t, 1, f.sched.DrainHighPriority(t.Context()))

	calls := f.api.Calls()
	require.Len(t, calls, 1)
	require.Equal(t, DefaultCollection, calls[0].Collection)
	require.Empty(t, calls[0].RecordID)
	require.Equal(t, types.MethodPost, calls[0].Method)
	require.Equal(t, "critical", calls[0].Fields[FieldCategory])
	require.Equal(t, "u1", calls[0].Fields[FieldUserID])
	require.Equal(t, "dev@example.com", calls[0].Fields[FieldDeveloperEmail])

	var entries []types.LogEntry
	require.NoError(t, json.Unmarshal([]byte(calls[0].Fields[FieldLogs].(string)), &entries))
	require.Len(t, entries, 1)
	require.Equal(t, "disk full", entries[0].Details)

	require.Equal(t, int32(1), f.paused.Load())
	require.True(t, f.batch(t, types.CategoryCritical).Sent)
}

func TestDrainHighPriority(t *testing.T) {
	t.Run("order and no resubmission", func(t *testing.T) {
		f := newFixture(t, Config{DeveloperEmail: "dev@example.com"})
		f.add(t, types.CategoryLogin, "alice")
		f.add(t, types.CategoryWarning, "slow")
		f.add(t, types.CategoryActivity, `{"mouse":1}`)

		require.Equal(t, 2, f.sched.DrainHighPriority(t.Context()))

		calls := f.api.Calls()
		require.Len(t, calls, 2)
		require.Equal(t, "warning", calls[0].Fields[FieldCategory])
		require.Equal(t, "login", calls[1].Fields[FieldCategory])
		require.NotContains(t, calls[0].Fields, FieldDeveloperEmail)
		require.Zero(t, f.paused.Load())

		require.Zero(t, f.sched.DrainHighPriority(t.Context()), "sent batches are not resubmitted")
		require.Len(t, f.api.Calls(), 2)

		f.add(t, types.CategoryLogin, "bob")
		require.Equal(t, 1, f.sched.DrainHighPriority(t.Context()))
	})

	t.Run("failure clears sent for the next tick", func(t *testing.T) {
		var reported []error
		h := &types.Hooks{OnError: func(_ context.Context, err error) error {
			reported = append(reported, err)
			return nil
		}}
		f := newFixture(t, Config{}, WithHooks(h))
		f.add(t, types.CategoryAppError, "boom")
		f.api.FailWith(errors.New("503"))

		require.Zero(t, f.sched.DrainHighPriority(t.Context()))
		require.False(t, f.batch(t, types.CategoryAppError).Sent)
		require.Len(t, reported, 1)
		require.ErrorIs(t, reported[0], types.ErrSubmitFailed)

		f.api.FailWith(nil)
		require.Equal(t, 1, f.sched.DrainHighPriority(t.Context()))
		require.True(t, f.batch(t, types.CategoryAppError).Sent)
	})

	t.Run("slow submission times out and releases", func(t *testing.T) {
		f := newFixture(t, Config{SubmitTimeout: 20 * time.Millisecond})
		f.add(t, types.CategoryInfo, "x")
		f.api.SetDelay(time.Second)

		require.Zero(t, f.sched.DrainHighPriority(t.Context()))
		require.False(t, f.batch(t, types.CategoryInfo).Sent)
	})

	t.Run("one submission in flight", func(t *testing.T) {
		f := newFixture(t, Config{})
		for _, c := range types.HighPriorityCategories() {
			f.add(t, c, "entry for "+string(c))
		}
		f.api.SetDelay(5 * time.Millisecond)

		require.Equal(t, len(types.HighPriorityCategories()), f.sched.DrainHighPriority(t.Context()))
		require.Equal(t, 1, f.api.MaxInFlight())
	})
}

func TestDrainLowPriority(t *testing.T) {
	t.Run("waits for the oldest entry to age", func(t *testing.T) {
		f := newFixture(t, Config{})
		f.add(t, types.CategoryNavigation, "/home")

		f.clock.Advance(59 * time.Minute)
		require.Zero(t, f.sched.DrainLowPriority(t.Context()))

		f.clock.Advance(time.Minute)
		require.Equal(t, 1, f.sched.DrainLowPriority(t.Context()))
		require.Equal(t, "navigation", f.api.Calls()[0].Fields[FieldCategory])

		require.Zero(t, f.sched.DrainLowPriority(t.Context()))
		require.Len(t, f.api.Calls(), 1)
	})

	t.Run("developer threshold", func(t *testing.T) {
		f := newFixture(t, Config{Developer: true})
		f.add(t, types.CategoryServerError, "500 on /records")

		f.clock.Advance(DefaultDevLowPriorityMaxAge)
		require.Equal(t, 1, f.sched.DrainLowPriority(t.Context()))
	})

	// Zero-valued activity reports overwrite one entry and are never submitted.
	t.Run("idle activity is skipped", func(t *testing.T) {
		f := newFixture(t, Config{})
		f.add(t, types.CategoryActivity, `{"mouse":0,"keys":0}`)
		require.ErrorIs(t, f.logs.Add(t.Context(), types.CategoryActivity, `{"mouse":0,"keys":0}`), types.ErrDuplicateLog)
		f.add(t, types.CategoryActivity, `{"keys":0}`)
		require.Len(t, f.batch(t, types.CategoryActivity).Entries, 1)

		f.clock.Advance(2 * time.Hour)
		require.Zero(t, f.sched.DrainLowPriority(t.Context()))
		require.Empty(t, f.api.Calls())
		require.False(t, f.batch(t, types.CategoryActivity).Sent)

		f.add(t, types.CategoryActivity, `{"mouse":4,"keys":0}`)
		f.clock.Advance(2 * time.Hour)
		require.Equal(t, 1, f.sched.DrainLowPriority(t.Context()))
	})

	t.Run("steady activity still ships once the first report ages", func(t *testing.T) {
		f := newFixture(t, Config{})
		for i := 1; i <= 6; i++ {
			f.add(t, types.CategoryActivity, fmt.Sprintf(`{"mouse":%d}`, i))
			if i == 2 {
				require.Zero(t, f.sched.DrainLowPriority(t.Context()))
			}
			f.clock.Advance(30 * time.Minute)
		}

		require.Equal(t, 1, f.sched.DrainLowPriority(t.Context()))
		require.Len(t, f.api.Calls(), 1)
		require.True(t, f.batch(t, types.CategoryActivity).Sent)
	})

	t.Run("high-priority categories are ignored", func(t *testing.T) {
		f := newFixture(t, Config{})
		f.add(t, types.CategoryCritical, "x")
		f.clock.Advance(2 * time.Hour)

		require.Zero(t, f.sched.DrainLowPriority(t.Context()))
	})
}

func TestIsZeroActivity(t *testing.T) {
	require.True(t, isZeroActivity(`{}`))
	require.True(t, isZeroActivity(`{"mouse":0,"keys":0.0}`))
	require.False(t, isZeroActivity(`{"mouse":1}`))
	require.False(t, isZeroActivity(`{"page":"home"}`))
	require.False(t, isZeroActivity(`idle`))
}

func TestStartStop(t *testing.T) {
	f := newFixture(t, Config{HighPriorityInterval: 10 * time.Millisecond, LowPriorityInterval: time.Hour})
	f.add(t, types.CategoryWarning, "slow")

	require.ErrorIs(t, f.sched.Stop(), types.ErrNotStarted)
	require.NoError(t, f.sched.Start(t.Context()))
	require.ErrorIs(t, f.sched.Start(t.Context()), types.ErrAlreadyStarted)

	require.Eventually(t, func() bool { return len(f.api.Calls()) == 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, f.sched.Stop())

	time.Sleep(30 * time.Millisecond)
	require.Len(t, f.api.Calls(), 1)
}
