package testing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStartEmbeddedNATS(t *testing.T) {
	ns, nc := StartEmbeddedNATS(t)

	require.NotNil(t, ns)
	require.NotNil(t, nc)
	require.True(t, nc.IsConnected())
	require.True(t, ns.ReadyForConnections(1*time.Second))
}

func TestCreateJetStreamKV(t *testing.T) {
	_, nc := StartEmbeddedNATS(t)
	kv := CreateJetStreamKV(t, nc, "test-kv-helper")

	_, err := kv.PutString(t.Context(), "log.u1.critical", "{}")
	require.NoError(t, err)

	entry, err := kv.Get(t.Context(), "log.u1.critical")
	require.NoError(t, err)
	require.Equal(t, "{}", string(entry.Value()))
}
