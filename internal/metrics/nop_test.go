package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cortexrd/Knack-Toolkit-Library-sub001/types"
)

func TestNewNop(t *testing.T) {
	metrics := NewNop()

	require.NotNil(t, metrics)
	require.IsType(t, &NopMetrics{}, metrics)
}

func TestNopMetrics_AllMethods(t *testing.T) {
	metrics := NewNop()

	require.NotPanics(t, func() {
		metrics.RecordMessageSent(types.TypeHeartbeat, types.SubtypeRequest)
		metrics.RecordMessageRetry(types.TypeReady)
		metrics.RecordMessageFailed("")
		metrics.RecordPendingMessages(-1)
		metrics.RecordHeartbeat(false)
		metrics.RecordWorkerCreated()
		metrics.RecordWorkerRecreated("periodic")
		metrics.RecordLogAdded(types.CategoryCritical)
		metrics.RecordLogEvicted(types.CategoryInfo, 6)
		metrics.RecordSubmission(types.CategoryLogin, true, time.Second)
	})
}

func BenchmarkNopMetrics(b *testing.B) {
	metrics := NewNop()

	for b.Loop() {
		metrics.RecordMessageSent(types.TypeHeartbeat, types.SubtypeRequest)
	}
}
