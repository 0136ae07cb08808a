package ktl

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/cortexrd/Knack-Toolkit-Library-sub001/internal/kvstore"
	ktltest "github.com/cortexrd/Knack-Toolkit-Library-sub001/testing"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// pairing runs an App whose worker windows host in-process Worker runtimes that
// share the app's store and record API.
type pairing struct {
	app     *App
	factory *ktltest.WindowFactory
	store   *kvstore.Memory
	records *ktltest.RecordAPI

	mu      sync.Mutex
	workers []*Worker
}

func newPairing(t *testing.T, appCfg, workerCfg Config, appOpts, workerOpts []Option) *pairing {
	t.Helper()

	p := &pairing{
		factory: ktltest.NewWindowFactory(),
		store:   kvstore.NewMemory(),
		records: ktltest.NewRecordAPI(),
	}

	app, err := NewApp(appCfg, AppDeps{Store: p.store, Windows: p.factory}, appOpts...)
	require.NoError(t, err)
	p.app = app

	p.factory.OnOpen(func(win *ktltest.Window) {
		parent := ChannelFunc(func(ctx context.Context, msg Message) error {
			app.Receive(ctx, msg)
			return nil
		})
		w, err := NewWorker(workerCfg, WorkerDeps{Store: p.store, Parent: parent, Records: p.records}, workerOpts...)
		if err != nil {
			t.Errorf("new worker: %v", err)
			return
		}
		win.ForwardTo(w)

		p.mu.Lock()
		p.workers = append(p.workers, w)
		p.mu.Unlock()

		if err := w.Start(context.Background()); err != nil {
			t.Errorf("start worker: %v", err)
		}
	})

	t.Cleanup(func() {
		_ = app.Stop()
		p.mu.Lock()
		defer p.mu.Unlock()
		for _, w := range p.workers {
			_ = w.Stop()
		}
	})

	return p
}

func (p *pairing) lastWorker() *Worker {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.workers) == 0 {
		return nil
	}

	return p.workers[len(p.workers)-1]
}

func (p *pairing) callsTo(collection string) []ktltest.UpsertCall {
	var out []ktltest.UpsertCall
	for _, c := range p.records.Calls() {
		if c.Collection == collection {
			out = append(out, c)
		}
	}

	return out
}

func TestNewApp(t *testing.T) {
	store := kvstore.NewMemory()

	_, err := NewApp(Config{}, AppDeps{Store: store})
	require.ErrorIs(t, err, ErrInvalidConfig)

	cfg := TestConfig()
	_, err = NewApp(cfg, AppDeps{})
	require.ErrorIs(t, err, ErrStoreRequired)

	_, err = NewApp(cfg, AppDeps{Store: store})
	require.ErrorIs(t, err, ErrWindowFactoryRequired)

	cfg.Worker.Enabled = false
	_, err = NewApp(cfg, AppDeps{Store: store})
	require.ErrorIs(t, err, ErrRecordAPIRequired)

	app, err := NewApp(cfg, AppDeps{Store: store, Records: ktltest.NewRecordAPI()})
	require.NoError(t, err)
	require.Equal(t, WorkerAbsent, app.WorkerState())
	require.ErrorIs(t, app.Stop(), ErrNotStarted)
}

func TestNewWorker(t *testing.T) {
	store := kvstore.NewMemory()
	parent := ktltest.NewChannel()
	records := ktltest.NewRecordAPI()
	cfg := TestConfig()

	_, err := NewWorker(Config{}, WorkerDeps{Store: store, Parent: parent, Records: records})
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewWorker(cfg, WorkerDeps{Parent: parent, Records: records})
	require.ErrorIs(t, err, ErrStoreRequired)

	_, err = NewWorker(cfg, WorkerDeps{Store: store, Records: records})
	require.ErrorIs(t, err, ErrChannelRequired)

	_, err = NewWorker(cfg, WorkerDeps{Store: store, Parent: parent})
	require.ErrorIs(t, err, ErrRecordAPIRequired)
}

func TestWorker_AnnouncesOnStart(t *testing.T) {
	parent := ktltest.NewChannel()
	w, err := NewWorker(TestConfig(), WorkerDeps{
		Store:   kvstore.NewMemory(),
		Parent:  parent,
		Records: ktltest.NewRecordAPI(),
	})
	require.NoError(t, err)

	require.NoError(t, w.Start(t.Context()))
	require.ErrorIs(t, w.Start(t.Context()), ErrAlreadyStarted)

	readies := parent.MessagesOfType(TypeReady, SubtypeRequest)
	require.Len(t, readies, 1)
	require.Equal(t, Ready{Version: "test"}, readies[0].Body)
	require.Equal(t, EndpointWorker, readies[0].Source)
	require.Equal(t, EndpointApp, readies[0].Destination)
	require.False(t, w.Acknowledged())

	// The app acknowledges with its own version.
	w.Receive(t.Context(), Message{
		Subtype:     SubtypeAcknowledge,
		Source:      EndpointApp,
		Destination: EndpointWorker,
		ID:          readies[0].ID,
		Body:        Ready{Version: "test"},
	})
	require.True(t, w.Acknowledged())
	require.Equal(t, "test", w.AppVersion())
	require.Empty(t, w.Pending())

	require.NoError(t, w.Stop())
	require.ErrorIs(t, w.Stop(), ErrNotStarted)
}

func TestApp_Handshake(t *testing.T) {
	p := newPairing(t, TestConfig(), TestConfig(), nil, nil)

	require.NoError(t, p.app.Start(t.Context()))
	require.ErrorIs(t, p.app.Start(t.Context()), ErrAlreadyStarted)

	require.Eventually(t, func() bool {
		w := p.lastWorker()
		return p.app.WorkerReady() && w != nil && w.Acknowledged()
	}, 2*time.Second, 5*time.Millisecond)

	require.Equal(t, "test", p.app.WorkerVersion())
	require.Equal(t, "test", p.lastWorker().AppVersion())
	require.Equal(t, MonitorRunning, p.app.MonitorState())
	require.Len(t, p.factory.Opened(), 1)
}

func TestApp_Heartbeat(t *testing.T) {
	p := newPairing(t, TestConfig(), TestConfig(), nil, nil)
	require.NoError(t, p.app.Start(t.Context()))

	// Every answered heartbeat writes the liveness record first.
	require.Eventually(t, func() bool {
		return len(p.callsTo("ktl_liveness")) >= 3
	}, 3*time.Second, 10*time.Millisecond)

	require.Len(t, p.factory.Opened(), 1, "a healthy worker is never recreated")
	require.Equal(t, WorkerReady, p.app.WorkerState())
}

func TestApp_UnresponsiveWorkerIsRecreated(t *testing.T) {
	var mu sync.Mutex
	var unresponsive []string
	hooks := &Hooks{OnWorkerUnresponsive: func(_ context.Context, windowID string) error {
		mu.Lock()
		defer mu.Unlock()
		unresponsive = append(unresponsive, windowID)
		return nil
	}}

	p := newPairing(t, TestConfig(), TestConfig(), []Option{WithHooks(hooks)}, nil)
	require.NoError(t, p.app.Start(t.Context()))
	require.Eventually(t, p.app.WorkerReady, 2*time.Second, 5*time.Millisecond)

	// Liveness writes fail, so heartbeats go unanswered.
	p.records.FailWith(errors.New("record API down"))

	require.Eventually(t, func() bool {
		opened := p.factory.Opened()
		return len(opened) >= 2 && opened[0].Closed()
	}, 3*time.Second, 10*time.Millisecond)

	mu.Lock()
	require.NotEmpty(t, unresponsive)
	require.Equal(t, "window-1", unresponsive[0])
	mu.Unlock()

	p.records.FailWith(nil)
	require.Eventually(t, func() bool {
		last := p.factory.Last()
		return p.app.WorkerReady() && !last.Closed() && p.app.MonitorState() == MonitorRunning
	}, 3*time.Second, 10*time.Millisecond)
}

func TestApp_VersionMismatch(t *testing.T) {
	var mu sync.Mutex
	var mismatches, reloads []ReloadDirective
	appHooks := &Hooks{OnVersionMismatch: func(_ context.Context, d ReloadDirective) error {
		mu.Lock()
		defer mu.Unlock()
		mismatches = append(mismatches, d)
		return nil
	}}
	workerHooks := &Hooks{OnReloadRequired: func(_ context.Context, d ReloadDirective) error {
		mu.Lock()
		defer mu.Unlock()
		reloads = append(reloads, d)
		return nil
	}}

	workerCfg := TestConfig()
	workerCfg.AppVersion = "stale"
	p := newPairing(t, TestConfig(), workerCfg, []Option{WithHooks(appHooks)}, []Option{WithHooks(workerHooks)})
	require.NoError(t, p.app.Start(t.Context()))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(reloads) > 0
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, mismatches)
	require.Equal(t, "test", mismatches[0].LocalVersion)
	require.Equal(t, "stale", mismatches[0].RemoteVersion)
	require.Equal(t, EndpointWorker, reloads[0].Target)
	require.Equal(t, "stale", reloads[0].LocalVersion)
	require.Equal(t, "test", reloads[0].RemoteVersion)
}

func TestApp_LogsUploadedByWorker(t *testing.T) {
	p := newPairing(t, TestConfig(), TestConfig(), nil, nil)
	require.NoError(t, p.app.Start(t.Context()))

	require.NoError(t, p.app.AddLog(t.Context(), CategoryCritical, "payment form crashed"))
	require.ErrorIs(t, p.app.AddLog(t.Context(), CategoryCritical, "payment form crashed"), ErrDuplicateLog)

	require.Eventually(t, func() bool {
		return len(p.callsTo("ktl_logs")) == 1
	}, 2*time.Second, 10*time.Millisecond)

	call := p.callsTo("ktl_logs")[0]
	require.Equal(t, "critical", call.Fields["category"])
	require.Equal(t, "anonymous", call.Fields["user_id"])
	require.Contains(t, call.Fields["logs"], "payment form crashed")
	require.Equal(t, MethodPost, call.Method)

	batch, err := p.app.LogBatch(t.Context(), CategoryCritical)
	require.NoError(t, err)
	require.True(t, batch.Sent)
}

func TestApp_WorkerDisabled(t *testing.T) {
	cfg := TestConfig()
	cfg.Worker.Enabled = false
	records := ktltest.NewRecordAPI()

	var paused sync.WaitGroup
	paused.Add(1)
	var once sync.Once
	app, err := NewApp(cfg, AppDeps{Store: kvstore.NewMemory(), Records: records},
		WithRefreshPauser(func(context.Context) { once.Do(paused.Done) }),
	)
	require.NoError(t, err)
	require.NoError(t, app.Start(t.Context()))
	defer func() { require.NoError(t, app.Stop()) }()

	require.Equal(t, WorkerAbsent, app.WorkerState())
	require.Equal(t, MonitorIdle, app.MonitorState())

	require.NoError(t, app.AddLog(t.Context(), CategoryCritical, "offline upload"))
	require.Eventually(t, func() bool { return len(records.Calls()) == 1 }, 2*time.Second, 10*time.Millisecond)
	paused.Wait()
}

func TestApp_CustomRequests(t *testing.T) {
	var mu sync.Mutex
	var kinds []string
	handler := func(_ context.Context, req Message) error {
		mu.Lock()
		defer mu.Unlock()
		kinds = append(kinds, string(req.Type()))
		return nil
	}

	p := newPairing(t, TestConfig(), TestConfig(), []Option{WithCustomHandler(handler)}, nil)
	require.NoError(t, p.app.Start(t.Context()))
	require.Eventually(t, func() bool {
		w := p.lastWorker()
		return w != nil && w.Acknowledged()
	}, 2*time.Second, 5*time.Millisecond)

	w := p.lastWorker()
	msg := w.Send(t.Context(), Custom{Kind: "refreshView", Payload: []byte("view_12")}, EndpointApp)
	require.NotZero(t, msg.ID)
	require.Empty(t, w.Pending(), "acknowledged synchronously")

	mu.Lock()
	require.Equal(t, []string{"refreshView"}, kinds)
	mu.Unlock()

	// The worker has no preference handler, so the request stays pending.
	req := p.app.Send(t.Context(), PreferenceChange{Preferences: map[string]string{"theme": "dark"}}, EndpointWorker)
	pending := p.app.Pending()
	require.NotEmpty(t, pending)
	var found bool
	for _, m := range pending {
		found = found || m.ID == req.ID
	}
	require.True(t, found)
}
