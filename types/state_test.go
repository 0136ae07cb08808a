package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMonitorState_String(t *testing.T) {
	require.Equal(t, "Idle", MonitorIdle.String())
	require.Equal(t, "Running", MonitorRunning.String())
	require.Equal(t, "Unknown", MonitorState(42).String())
}

func TestWorkerState_String(t *testing.T) {
	tests := []struct {
		state WorkerState
		want  string
	}{
		{WorkerAbsent, "Absent"},
		{WorkerCreating, "Creating"},
		{WorkerReady, "Ready"},
		{WorkerState(-1), "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			require.Equal(t, tt.want, tt.state.String())
		})
	}
}

func TestMessage_Type(t *testing.T) {
	t.Run("reports body tag", func(t *testing.T) {
		msg := Message{Subtype: SubtypeRequest, Body: Ready{Version: "1.0.0"}}
		require.Equal(t, TypeReady, msg.Type())
		require.True(t, msg.IsRequest())
	})

	t.Run("custom kind becomes the tag", func(t *testing.T) {
		require.Equal(t, MessageType("bulk-op"), Custom{Kind: "bulk-op"}.MessageType())
		require.Equal(t, TypeCustom, Custom{}.MessageType())
	})

	t.Run("nil body has empty type", func(t *testing.T) {
		require.Empty(t, Message{}.Type())
	})
}

func TestLogBatch_Oldest(t *testing.T) {
	require.True(t, LogBatch{}.Oldest().IsZero())
	require.True(t, LogBatch{}.IsEmpty())
}
