package router

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	ktltest "github.com/cortexrd/Knack-Toolkit-Library-sub001/testing"
	"github.com/cortexrd/Knack-Toolkit-Library-sub001/types"
)

func msg(src, dst types.Endpoint) types.Message {
	return types.Message{Subtype: types.SubtypeRequest, Source: src, Destination: dst, ID: 1, Body: types.Heartbeat{}}
}

func TestDispatch(t *testing.T) {
	ctx := context.Background()

	worker := ktltest.NewChannel()
	parent := ktltest.NewChannel()
	fallback := ktltest.NewChannel()

	var live types.Channel = worker
	r := New(
		WithWorker(func() types.Channel { return live }),
		WithParent(parent),
		WithFallback(fallback),
		WithLogger(ktltest.NewTestLogger(t)),
	)

	t.Run("app to worker", func(t *testing.T) {
		require.NoError(t, r.Dispatch(ctx, msg(types.EndpointApp, types.EndpointWorker)))
		require.Len(t, worker.Messages(), 1)
	})

	t.Run("worker to app", func(t *testing.T) {
		require.NoError(t, r.Dispatch(ctx, msg(types.EndpointWorker, types.EndpointApp)))
		require.Len(t, parent.Messages(), 1)
	})

	t.Run("other pairs use fallback", func(t *testing.T) {
		require.NoError(t, r.Dispatch(ctx, msg(types.EndpointApp, "report-window")))
		require.NoError(t, r.Dispatch(ctx, msg(types.EndpointApp, types.EndpointApp)))
		require.NoError(t, r.Dispatch(ctx, msg(types.EndpointWorker, types.EndpointWorker)))
		require.Len(t, fallback.Messages(), 3)
	})

	t.Run("no worker window drops", func(t *testing.T) {
		live = nil
		defer func() { live = worker }()

		err := r.Dispatch(ctx, msg(types.EndpointApp, types.EndpointWorker))
		require.ErrorIs(t, err, types.ErrNoRoute)
		require.Len(t, worker.Messages(), 1)
	})

	t.Run("channel error is returned", func(t *testing.T) {
		boom := errors.New("post failed")
		parent.FailWith(boom)
		defer parent.FailWith(nil)

		require.ErrorIs(t, r.Dispatch(ctx, msg(types.EndpointWorker, types.EndpointApp)), boom)
	})
}

func TestDispatch_Unconfigured(t *testing.T) {
	ctx := context.Background()
	r := New()

	for _, m := range []types.Message{
		msg(types.EndpointApp, types.EndpointWorker),
		msg(types.EndpointWorker, types.EndpointApp),
		msg("a", "b"),
	} {
		require.ErrorIs(t, r.Dispatch(ctx, m), types.ErrNoRoute)
	}
}
