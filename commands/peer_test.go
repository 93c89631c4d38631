package commands

import (
	"bytes"
	"context"
	"net"
	"peerlink/config"
	"peerlink/datastore/memory"
	"peerlink/node"
	"peerlink/registry"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startRegistry(t *testing.T) string {
	t.Helper()

	l, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	srv, err := registry.NewServer(memory.NewPeerIndex(), l, registry.Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})
	return l.Addr().String()
}

func peerConfig(registryAddr string, identity string) *config.Config {
	cfg := config.NewEmptyConfig("")
	cfg.Peer.RegistryAddress = registryAddr
	cfg.Peer.Identity = identity
	cfg.Peer.Timeout = config.Duration(time.Second)
	return cfg
}

func TestRunPeerOneShot(t *testing.T) {
	addr := startRegistry(t)
	ctx := context.Background()

	bob := node.New(node.Config{Identity: "bob"}, registry.NewClient(addr, time.Second), nil)
	require.NoError(t, bob.Start(ctx))
	defer bob.Stop(ctx)

	out := &bytes.Buffer{}
	err := runPeer(ctx, peerConfig(addr, "alice"), PeerOptions{To: "bob", Message: "Hello Bob!"}, strings.NewReader(""), out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Message sent to bob")

	m, ok := bob.Receive()
	require.True(t, ok)
	assert.Equal(t, "alice", m.From)
	assert.Equal(t, "Hello Bob!", m.Content)

	// The one-shot peer unregistered on exit
	c := registry.NewClient(addr, time.Second)
	defer c.Close()
	r, err := c.GetClient(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, r.Online)
}

func TestRunPeerList(t *testing.T) {
	addr := startRegistry(t)

	out := &bytes.Buffer{}
	err := runPeer(context.Background(), peerConfig(addr, "alice"), PeerOptions{List: true}, strings.NewReader(""), out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "alice at 127.0.0.1:")
	assert.Contains(t, out.String(), "(you)")
}

func TestRunPeerInteractive(t *testing.T) {
	addr := startRegistry(t)

	out := &bytes.Buffer{}
	err := runPeer(context.Background(), peerConfig(addr, "alice"), PeerOptions{}, strings.NewReader("send bob hi\nquit\n"), out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Connected as alice")
	assert.Contains(t, out.String(), "Client bob is not available")
}

func TestRunPeerUnknownTarget(t *testing.T) {
	addr := startRegistry(t)

	err := runPeer(context.Background(), peerConfig(addr, "alice"), PeerOptions{To: "bob", Message: "hi"}, strings.NewReader(""), &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Client bob is not available")
}

func TestRunPeerDuplicateIdentity(t *testing.T) {
	addr := startRegistry(t)
	ctx := context.Background()

	c := registry.NewClient(addr, time.Second)
	defer c.Close()
	ok, _, err := c.RegisterClient(ctx, "alice", "127.0.0.1", 1)
	require.NoError(t, err)
	require.True(t, ok)

	err = runPeer(ctx, peerConfig(addr, "alice"), PeerOptions{List: true}, strings.NewReader(""), &bytes.Buffer{})
	assert.ErrorIs(t, err, node.ErrRegistrationRejected)
}
