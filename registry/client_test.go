package registry

import (
	"context"
	"net"
	"peerlink/datastore/memory"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startRegistry runs a registry daemon on a loopback port for the duration of the test.
func startRegistry(t *testing.T) string {
	t.Helper()

	l, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)

	srv, err := NewServer(memory.NewPeerIndex(), l, Options{StatusInterval: 10 * time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("registry did not stop")
		}
	})

	return l.Addr().String()
}

func TestClientAgainstRegistry(t *testing.T) {
	addr := startRegistry(t)
	ctx := context.Background()

	c := NewClient(addr, time.Second)
	defer c.Close()

	ok, msg, err := c.RegisterClient(ctx, "alice", "127.0.0.1", 9001)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Client registered successfully", msg)

	ok, msg, err = c.RegisterClient(ctx, "alice", "127.0.0.1", 9002)
	require.NoError(t, err, "a conflict is not a transport fault")
	assert.False(t, ok)
	assert.Equal(t, "Client ID already exists", msg)

	r, err := c.GetClient(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", r.Address)
	assert.Equal(t, int32(9001), r.Port)
	assert.True(t, r.Online)

	r, err = c.GetClient(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, "bob", r.Identity)
	assert.Empty(t, r.Address)
	assert.Zero(t, r.Port)
	assert.False(t, r.Online)

	records, err := c.ListClients(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "alice", records[0].Identity)

	ok, _, err = c.UnregisterClient(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, msg, err = c.UnregisterClient(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "Client ID not found", msg)

	records, err = c.ListClients(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestClientsShareRegistry(t *testing.T) {
	addr := startRegistry(t)
	ctx := context.Background()

	a := NewClient(addr, time.Second)
	defer a.Close()
	b := NewClient(addr, time.Second)
	defer b.Close()

	_, _, err := a.RegisterClient(ctx, "client1", "localhost", 50060)
	require.NoError(t, err)
	_, _, err = b.RegisterClient(ctx, "client2", "127.0.0.1", 50061)
	require.NoError(t, err)

	r, err := a.GetClient(ctx, "client2")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", r.Address)
	assert.Equal(t, int32(50061), r.Port)

	records, err := b.ListClients(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestClientUnavailableRegistry(t *testing.T) {
	l, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	c := NewClient(addr, time.Second)
	defer c.Close()

	ok, _, err := c.RegisterClient(context.Background(), "alice", "127.0.0.1", 9001)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.False(t, ok)

	_, err = c.GetClient(context.Background(), "alice")
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = c.ListClients(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestClientRedialsAfterRegistryRestart(t *testing.T) {
	l, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()

	runOn := func(l net.Listener) (context.CancelFunc, chan error) {
		srv, err := NewServer(memory.NewPeerIndex(), l, Options{})
		require.NoError(t, err)
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- srv.Run(ctx) }()
		return cancel, done
	}

	cancel, done := runOn(l)
	c := NewClient(addr, time.Second)
	defer c.Close()

	_, err = c.ListClients(context.Background())
	require.NoError(t, err)

	cancel()
	require.NoError(t, <-done)

	_, err = c.ListClients(context.Background())
	require.ErrorIs(t, err, ErrUnavailable)

	l2, err := net.Listen("tcp4", addr)
	require.NoError(t, err)
	cancel, done = runOn(l2)
	defer func() {
		cancel()
		<-done
	}()

	records, err := c.ListClients(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records, "a restarted registry starts empty")
}
