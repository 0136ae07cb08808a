package bus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cortexrd/Knack-Toolkit-Library-sub001/types"
)

func TestPendingTable(t *testing.T) {
	t.Run("allocate bumps on collision", func(t *testing.T) {
		table := NewPendingTable()

		first := table.Allocate(epoch)
		second := table.Allocate(epoch)
		later := table.Allocate(epoch.Add(time.Second))

		require.Equal(t, epoch.UnixMilli(), first)
		require.Equal(t, first+1, second)
		require.Equal(t, epoch.Add(time.Second).UnixMilli(), later)
	})

	t.Run("expired is ordered and inclusive", func(t *testing.T) {
		table := NewPendingTable()
		table.Put(types.Message{ID: 3, Body: types.Ready{}, ExpiresAt: epoch})
		table.Put(types.Message{ID: 1, Body: types.Ready{}, ExpiresAt: epoch.Add(-time.Second)})
		table.Put(types.Message{ID: 2, Body: types.Ready{}, ExpiresAt: epoch.Add(time.Second)})

		expired := table.Expired(epoch)
		require.Len(t, expired, 2)
		require.Equal(t, int64(1), expired[0].ID)
		require.Equal(t, int64(3), expired[1].ID)

		snapshot := table.Snapshot()
		require.Len(t, snapshot, 3)
		require.Equal(t, int64(2), snapshot[1].ID)
	})

	t.Run("replace only existing", func(t *testing.T) {
		table := NewPendingTable()
		table.Put(types.Message{ID: 1, Body: types.Ready{}, RetriesRemaining: 5})

		require.True(t, table.Replace(types.Message{ID: 1, Body: types.Ready{}, RetriesRemaining: 4}))
		got, ok := table.Get(1)
		require.True(t, ok)
		require.Equal(t, 4, got.RetriesRemaining)

		require.False(t, table.Replace(types.Message{ID: 2, Body: types.Ready{}}))
		require.Equal(t, 1, table.Len())
	})

	t.Run("remove and remove type", func(t *testing.T) {
		table := NewPendingTable()
		table.Put(types.Message{ID: 1, Body: types.Heartbeat{}})
		table.Put(types.Message{ID: 2, Body: types.Heartbeat{}})
		table.Put(types.Message{ID: 3, Body: types.Ready{}})

		_, ok := table.Remove(3)
		require.True(t, ok)
		_, ok = table.Remove(3)
		require.False(t, ok)

		require.Equal(t, 2, table.RemoveType(types.TypeHeartbeat))
		require.Zero(t, table.Len())
	})

	t.Run("independent tables", func(t *testing.T) {
		a, b := NewPendingTable(), NewPendingTable()
		a.Put(types.Message{ID: 1, Body: types.Ready{}})

		require.Equal(t, 1, a.Len())
		require.Zero(t, b.Len())
	})
}
