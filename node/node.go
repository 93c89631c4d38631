// Package node implements a messaging peer: an inbound endpoint served over crpc,
// an outbound messenger, and the peer's registration with the registry.
package node

import (
	"context"
	"errors"
	"fmt"
	"net"
	"peerlink/datamodel/message"
	"peerlink/datamodel/peer"
	"peerlink/net/crpc"
	"peerlink/protocol"
	"peerlink/registry"
	"strconv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

type Config struct {
	Identity      string
	ListenAddress string        // host:port for the endpoint, port 0 picks a free one
	AdvertiseHost string        // host registered with the registry, defaults to the listen host
	CallTimeout   time.Duration // bound for outbound calls, DefaultCallTimeout if 0
}

type Node struct {
	Endpoint  *Endpoint
	Messenger *Messenger
	Registry  *registry.Client
	RpcServer *crpc.Server

	cfg Config

	mu         sync.Mutex
	registered bool
	advertised string
	served     chan error
}

// New creates a peer using reg for registration and lookups. The node owns reg
// and closes it on Stop. notify is called for every incoming message and may be nil.
func New(cfg Config, reg *registry.Client, notify func(*message.Message)) *Node {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = "127.0.0.1:0"
	}
	return &Node{
		Endpoint:  NewEndpoint(cfg.Identity, notify),
		Messenger: NewMessenger(cfg.Identity, reg, cfg.CallTimeout),
		Registry:  reg,
		cfg:       cfg,
	}
}

func (n *Node) Identity() string {
	return n.cfg.Identity
}

// Address returns the host:port registered for this peer, empty before Start.
func (n *Node) Address() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.advertised
}

func (n *Node) Registered() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.registered
}

func advertiseHost(configured string, listener net.Addr) string {
	if configured != "" {
		return configured
	}
	host, _, err := net.SplitHostPort(listener.String())
	if err != nil {
		return "127.0.0.1"
	}
	if ip := net.ParseIP(host); ip == nil || ip.IsUnspecified() {
		return "127.0.0.1"
	}
	return host
}

// Start binds the endpoint, starts serving it and registers the peer.
// A bind failure is returned as is, the caller decides whether it is fatal.
func (n *Node) Start(ctx context.Context) error {
	l, err := net.Listen("tcp", n.cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", n.cfg.ListenAddress, err)
	}

	srv := crpc.NewServer(l)
	if err := srv.RegisterName(protocol.EndpointService, n.Endpoint); err != nil {
		l.Close()
		return err
	}

	served := make(chan error, 1)
	go func() {
		served <- srv.Serve(context.Background())
	}()

	host := advertiseHost(n.cfg.AdvertiseHost, srv.Addr())
	port := srv.Port()

	n.mu.Lock()
	n.RpcServer = srv
	n.served = served
	n.advertised = net.JoinHostPort(host, strconv.Itoa(port))
	n.mu.Unlock()

	log.Infof("Peer %s listening on %s", n.cfg.Identity, srv.Addr())

	ok, msg, err := n.Registry.RegisterClient(ctx, n.cfg.Identity, host, int32(port))
	if err == nil && !ok {
		err = fmt.Errorf("%w: %s", ErrRegistrationRejected, msg)
	}
	if err != nil {
		n.shutdown()
		if cerr := n.Registry.Close(); cerr != nil && !errors.Is(cerr, crpc.ErrShutdown) {
			log.Warnf("Failed to close registry connection: %v", cerr)
		}
		return err
	}

	n.mu.Lock()
	n.registered = true
	n.mu.Unlock()

	log.Infof("Peer %s registered at %s:%d", n.cfg.Identity, host, port)
	return nil
}

func (n *Node) shutdown() {
	n.mu.Lock()
	srv, served := n.RpcServer, n.served
	n.RpcServer, n.served = nil, nil
	n.mu.Unlock()

	if srv == nil {
		return
	}
	srv.Shutdown()
	if err := <-served; err != nil {
		log.Warnf("Peer endpoint stopped with error: %v", err)
	}
}

// Stop unregisters the peer on a best-effort basis and stops serving.
func (n *Node) Stop(ctx context.Context) error {
	n.mu.Lock()
	registered := n.registered
	n.registered = false
	n.mu.Unlock()

	if registered {
		uctx, cancel := context.WithTimeout(ctx, n.cfg.CallTimeout)
		ok, msg, err := n.Registry.UnregisterClient(uctx, n.cfg.Identity)
		cancel()
		switch {
		case err != nil:
			log.Warnf("Failed to unregister %s: %v", n.cfg.Identity, err)
		case !ok:
			log.Warnf("Failed to unregister %s: %s", n.cfg.Identity, msg)
		default:
			log.Infof("Peer %s unregistered", n.cfg.Identity)
		}
	}

	n.shutdown()

	if err := n.Registry.Close(); err != nil && !errors.Is(err, crpc.ErrShutdown) {
		return err
	}
	return nil
}

// Send delivers content to the peer registered as target.
func (n *Node) Send(ctx context.Context, target string, content string) error {
	return n.Messenger.Send(ctx, target, content)
}

func (n *Node) List(ctx context.Context) ([]*peer.Record, error) {
	return n.Registry.ListClients(ctx)
}

// Receive pops the oldest queued incoming message.
func (n *Node) Receive() (*message.Message, bool) {
	return n.Endpoint.Pop()
}
