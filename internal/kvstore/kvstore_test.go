package kvstore

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/require"

	ktltest "github.com/cortexrd/Knack-Toolkit-Library-sub001/testing"
	"github.com/cortexrd/Knack-Toolkit-Library-sub001/types"
)

// exerciseStore runs the behavior every backend must share.
func exerciseStore(t *testing.T, store types.KVStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("missing key", func(t *testing.T) {
		_, err := store.Get(ctx, "log.u1.missing")
		require.ErrorIs(t, err, types.ErrKeyNotFound)
	})

	t.Run("set then get", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "log.u1.critical", `{"logs":[]}`))

		value, err := store.Get(ctx, "log.u1.critical")
		require.NoError(t, err)
		require.Equal(t, `{"logs":[]}`, value)
	})

	t.Run("overwrite", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "log.u1.info", "one"))
		require.NoError(t, store.Set(ctx, "log.u1.info", "two"))

		value, err := store.Get(ctx, "log.u1.info")
		require.NoError(t, err)
		require.Equal(t, "two", value)
	})

	t.Run("remove", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "log.u1.debug", "x"))
		require.NoError(t, store.Remove(ctx, "log.u1.debug"))

		_, err := store.Get(ctx, "log.u1.debug")
		require.ErrorIs(t, err, types.ErrKeyNotFound)
	})

	t.Run("remove missing key", func(t *testing.T) {
		require.NoError(t, store.Remove(ctx, "log.u1.never-set"))
	})
}

func TestMemory(t *testing.T) {
	store := NewMemory()
	exerciseStore(t, store)
	require.Equal(t, 2, store.Len())
}

func TestSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ktl.db")

	store, err := OpenSQLite(context.Background(), path)
	require.NoError(t, err)
	exerciseStore(t, store)
	require.NoError(t, store.Close())

	t.Run("data survives reopen", func(t *testing.T) {
		reopened, err := OpenSQLite(context.Background(), path)
		require.NoError(t, err)
		defer reopened.Close()

		value, err := reopened.Get(context.Background(), "log.u1.info")
		require.NoError(t, err)
		require.Equal(t, "two", value)
	})
}

func TestNATS(t *testing.T) {
	_, nc := ktltest.StartEmbeddedNATS(t)
	kv := ktltest.CreateJetStreamKV(t, nc, "ktl-store")

	exerciseStore(t, NewNATS(kv))
}

func TestNamespace(t *testing.T) {
	ctx := context.Background()
	base := NewMemory()

	t.Run("empty prefix is identity", func(t *testing.T) {
		require.Same(t, base, Namespace(base, ""))
	})

	t.Run("prefixes keys", func(t *testing.T) {
		app := Namespace(base, "app1")
		other := Namespace(base, "app2")

		require.NoError(t, app.Set(ctx, "log.u1.info", "mine"))

		raw, err := base.Get(ctx, "app1.log.u1.info")
		require.NoError(t, err)
		require.Equal(t, "mine", raw)

		_, err = other.Get(ctx, "log.u1.info")
		require.ErrorIs(t, err, types.ErrKeyNotFound)

		require.NoError(t, app.Remove(ctx, "log.u1.info"))
		_, err = base.Get(ctx, "app1.log.u1.info")
		require.ErrorIs(t, err, types.ErrKeyNotFound)
	})

	t.Run("shared behavior", func(t *testing.T) {
		exerciseStore(t, Namespace(NewMemory(), "app"))
	})
}

func TestEnsureBucket(t *testing.T) {
	_, nc := ktltest.StartEmbeddedNATS(t)

	ctx := context.Background()
	js, err := jetstream.New(nc)
	require.NoError(t, err)

	t.Run("successful creation on first try", func(t *testing.T) {
		cfg := jetstream.KeyValueConfig{Bucket: "ktl-bucket-1", History: 1}

		kv, err := EnsureBucket(ctx, js, cfg, 3)
		require.NoError(t, err)
		require.NotNil(t, kv)
	})

	t.Run("bucket exists - should open it", func(t *testing.T) {
		cfg := jetstream.KeyValueConfig{Bucket: "ktl-bucket-2", History: 1}

		_, err := js.CreateKeyValue(ctx, cfg)
		require.NoError(t, err)

		kv, err := EnsureBucket(ctx, js, cfg, 3)
		require.NoError(t, err)
		require.NotNil(t, kv)
	})

	t.Run("concurrent creates - 10 windows", func(t *testing.T) {
		cfg := jetstream.KeyValueConfig{Bucket: "ktl-bucket-3", History: 1}
		numWindows := 10

		var wg sync.WaitGroup
		errs := make(chan error, numWindows)
		kvs := make([]jetstream.KeyValue, numWindows)

		for i := 0; i < numWindows; i++ {
			wg.Add(1) //nolint:revive // Standard pattern for concurrent operations
			go func(idx int) {
				defer wg.Done()

				kv, err := EnsureBucket(ctx, js, cfg, 5)
				if err != nil {
					errs <- err
					return
				}
				kvs[idx] = kv
			}(i)
		}

		wg.Wait()
		close(errs)

		var errList []error
		for err := range errs {
			errList = append(errList, err)
		}
		require.Empty(t, errList, "All windows should succeed with retry")

		for i, kv := range kvs {
			require.NotNil(t, kv, "Window %d should have a KV instance", i)
		}
	})

	t.Run("context timeout - should fail gracefully", func(t *testing.T) {
		shortCtx, cancel := context.WithTimeout(context.Background(), 1*time.Nanosecond)
		defer cancel()

		time.Sleep(1 * time.Millisecond)

		_, err := EnsureBucket(shortCtx, js, jetstream.KeyValueConfig{Bucket: "ktl-bucket-4"}, 3)
		require.Error(t, err)
		require.Contains(t, err.Error(), "context")
	})
}
