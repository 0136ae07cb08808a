package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	ktltest "github.com/cortexrd/Knack-Toolkit-Library-sub001/testing"
	"github.com/cortexrd/Knack-Toolkit-Library-sub001/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type countingPurger struct {
	calls atomic.Int32
}

func (p *countingPurger) PurgeType(msgType types.MessageType) int {
	if msgType == types.TypeHeartbeat {
		p.calls.Add(1)
	}

	return 0
}

func newManager(t *testing.T, cfg Config, opts ...Option) (*Manager, *ktltest.WindowFactory, *countingPurger) {
	t.Helper()

	factory := ktltest.NewWindowFactory()
	purger := &countingPurger{}
	m, err := NewManager(factory, purger, cfg, opts...)
	require.NoError(t, err)

	return m, factory, purger
}

func TestNewManager(t *testing.T) {
	_, err := NewManager(nil, nil, Config{})
	require.ErrorIs(t, err, types.ErrWindowFactoryRequired)

	_, err = NewManager(ktltest.NewWindowFactory(), nil, Config{CreationTimeout: -time.Second})
	require.ErrorIs(t, err, types.ErrInvalidConfig)

	m, err := NewManager(ktltest.NewWindowFactory(), nil, Config{})
	require.NoError(t, err)
	require.Equal(t, DefaultRoute, m.cfg.Route)
	require.Equal(t, DefaultCreationTimeout, m.cfg.CreationTimeout)
	require.Equal(t, DefaultRecreateInterval, m.cfg.RecreateInterval)
}

func TestCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("opens one window", func(t *testing.T) {
		m, factory, _ := newManager(t, Config{Enabled: true})
		defer func() { _ = m.Delete(ctx) }()

		require.Nil(t, m.Channel())
		require.NoError(t, m.Create(ctx))
		require.NoError(t, m.Create(ctx))

		require.Len(t, factory.Opened(), 1)
		require.Equal(t, DefaultRoute, factory.Last().Route())
		require.Equal(t, types.WorkerCreating, m.State())
		require.Equal(t, "window-1", m.WindowID())
		require.NotNil(t, m.Channel())
	})

	t.Run("disabled is a no-op", func(t *testing.T) {
		m, factory, _ := newManager(t, Config{Enabled: false})

		require.NoError(t, m.Create(ctx))
		require.Empty(t, factory.Opened())
		require.Equal(t, types.WorkerAbsent, m.State())
	})

	t.Run("no session is a no-op", func(t *testing.T) {
		m, factory, _ := newManager(t, Config{Enabled: true}, WithSession(func() bool { return false }))

		require.NoError(t, m.Create(ctx))
		require.Empty(t, factory.Opened())
	})

	t.Run("open failure leaves no handle", func(t *testing.T) {
		m, factory, _ := newManager(t, Config{Enabled: true})
		factory.FailWith(errors.New("blocked"))

		require.Error(t, m.Create(ctx))
		require.Equal(t, types.WorkerAbsent, m.State())
		require.Nil(t, m.Channel())

		factory.FailWith(nil)
		require.NoError(t, m.Create(ctx))
		require.Len(t, factory.Opened(), 1)
		require.NoError(t, m.Delete(ctx))
	})
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	m, factory, purger := newManager(t, Config{Enabled: true})

	require.NoError(t, m.Delete(ctx), "no window is a no-op")
	require.Zero(t, purger.calls.Load())

	require.NoError(t, m.Create(ctx))
	require.NoError(t, m.Delete(ctx))

	require.True(t, factory.Last().Closed())
	require.Equal(t, int32(1), purger.calls.Load())
	require.Equal(t, types.WorkerAbsent, m.State())
	require.Nil(t, m.Channel())
	require.Empty(t, m.WindowID())
}

func TestMarkReady(t *testing.T) {
	ctx := context.Background()
	m, factory, _ := newManager(t, Config{Enabled: true, CreationTimeout: 30 * time.Millisecond})

	m.MarkReady("1.0.0")
	require.Equal(t, types.WorkerAbsent, m.State(), "ready without window is ignored")

	require.NoError(t, m.Create(ctx))
	m.MarkReady("1.0.0")
	require.Equal(t, types.WorkerReady, m.State())
	require.Equal(t, "1.0.0", m.Version())

	// The failsafe is disarmed.
	time.Sleep(80 * time.Millisecond)
	require.Len(t, factory.Opened(), 1)
	require.False(t, factory.Last().Closed())

	require.NoError(t, m.Delete(ctx))
}

func TestMarkReady_DuringOpen(t *testing.T) {
	ctx := context.Background()
	m, factory, _ := newManager(t, Config{Enabled: true, CreationTimeout: 20 * time.Millisecond})

	// A worker that announces before Open returns.
	factory.OnOpen(func(*ktltest.Window) { m.MarkReady("1.0.0") })

	require.NoError(t, m.Create(ctx))
	require.Equal(t, types.WorkerReady, m.State())
	require.NotNil(t, m.Channel())

	time.Sleep(60 * time.Millisecond)
	require.Len(t, factory.Opened(), 1, "no failsafe armed")
	require.NoError(t, m.Delete(ctx))
}

func TestCreationFailsafe(t *testing.T) {
	ctx := context.Background()

	t.Run("retries once then gives up", func(t *testing.T) {
		var mu sync.Mutex
		var hookErrs []error
		h := &types.Hooks{OnError: func(_ context.Context, err error) error {
			mu.Lock()
			defer mu.Unlock()
			hookErrs = append(hookErrs, err)
			return nil
		}}
		m, factory, _ := newManager(t, Config{Enabled: true, CreationTimeout: 20 * time.Millisecond}, WithHooks(h))

		require.NoError(t, m.Create(ctx))

		require.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return len(hookErrs) == 1
		}, 2*time.Second, 5*time.Millisecond)

		opened := factory.Opened()
		require.Len(t, opened, 2)
		require.True(t, opened[0].Closed())
		require.True(t, opened[1].Closed())
		require.Equal(t, types.WorkerAbsent, m.State())

		time.Sleep(60 * time.Millisecond)
		require.Len(t, factory.Opened(), 2, "no further automatic attempts")
	})

	t.Run("ready on the retry keeps the window", func(t *testing.T) {
		m, factory, _ := newManager(t, Config{Enabled: true, CreationTimeout: 50 * time.Millisecond})

		require.NoError(t, m.Create(ctx))
		require.Eventually(t, func() bool { return m.WindowID() == "window-2" }, 2*time.Second, time.Millisecond)
		m.MarkReady("1.0.0")
		require.Equal(t, types.WorkerReady, m.State())

		time.Sleep(120 * time.Millisecond)
		require.Len(t, factory.Opened(), 2)
		require.Equal(t, "window-2", m.WindowID())
		require.NoError(t, m.Delete(ctx))
	})
}

func TestOnUnresponsive(t *testing.T) {
	ctx := context.Background()

	var reported []string
	h := &types.Hooks{OnWorkerUnresponsive: func(_ context.Context, windowID string) error {
		reported = append(reported, windowID)
		return nil
	}}
	m, factory, purger := newManager(t, Config{Enabled: true}, WithHooks(h), WithLogger(ktltest.NewTestLogger(t)))

	require.NoError(t, m.Create(ctx))
	m.MarkReady("1.0.0")

	m.OnUnresponsive(ctx, types.Message{ID: 7, Body: types.Heartbeat{}})

	require.Equal(t, []string{"window-1"}, reported)
	require.True(t, factory.Opened()[0].Closed())
	require.Equal(t, "window-2", m.WindowID())
	require.Equal(t, types.WorkerCreating, m.State())
	require.Equal(t, int32(1), purger.calls.Load())

	require.NoError(t, m.Delete(ctx))
}

func TestPeriodicRecreation(t *testing.T) {
	m, factory, _ := newManager(t, Config{
		Enabled:          true,
		CreationTimeout:  time.Hour,
		RecreateInterval: 20 * time.Millisecond,
	})

	require.ErrorIs(t, m.Stop(), types.ErrNotStarted)
	require.NoError(t, m.Start(t.Context()))
	require.ErrorIs(t, m.Start(t.Context()), types.ErrAlreadyStarted)
	require.Len(t, factory.Opened(), 1)

	// Never ready: nothing is recreated.
	time.Sleep(70 * time.Millisecond)
	require.Len(t, factory.Opened(), 1)

	m.MarkReady("1.0.0")
	require.Eventually(t, func() bool { return len(factory.Opened()) >= 3 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, m.Stop())
	for _, w := range factory.Opened() {
		require.True(t, w.Closed(), "window %s left open", w.ID())
	}
	require.Equal(t, types.WorkerAbsent, m.State())
}

// A creation retry that loses the race with Stop must not open a window.
func TestStop_RefusesCreationRetry(t *testing.T) {
	m, factory, _ := newManager(t, Config{Enabled: true, CreationTimeout: time.Hour})

	require.NoError(t, m.Start(t.Context()))
	require.Len(t, factory.Opened(), 1)
	require.NoError(t, m.Stop())

	// The failsafe passed its generation check before Stop and now retries.
	require.NoError(t, m.create(context.Background()))
	require.Len(t, factory.Opened(), 1)
	require.Equal(t, types.WorkerAbsent, m.State())

	require.NoError(t, m.Start(t.Context()))
	require.Len(t, factory.Opened(), 2, "a restarted manager opens windows again")
	require.NoError(t, m.Stop())
}
