package node

import (
	"context"
	"fmt"
	"net"
	"peerlink/datamodel/message"
	"peerlink/datamodel/peer"
	"peerlink/net/crpc"
	"peerlink/protocol"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	log "github.com/sirupsen/logrus"
)

const DefaultCallTimeout = 5 * time.Second

// Resolver looks up a peer by identity. *registry.Client implements it.
type Resolver interface {
	GetClient(ctx context.Context, identity string) (*peer.Record, error)
}

// DialFunc opens an RPC connection to a peer endpoint.
type DialFunc func(ctx context.Context, addr string) (*crpc.Client, error)

func dialTCP(ctx context.Context, addr string) (*crpc.Client, error) {
	return crpc.DialContext(ctx, "tcp", addr)
}

// Messenger is the outbound side of a peer: it resolves a target through the
// registry and delivers a message over a fresh connection.
type Messenger struct {
	identity string
	resolver Resolver
	timeout  time.Duration

	// Dial is used for every delivery; replaceable in tests.
	Dial DialFunc

	lookups singleflight.Group
}

func NewMessenger(identity string, resolver Resolver, timeout time.Duration) *Messenger {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	return &Messenger{
		identity: identity,
		resolver: resolver,
		timeout:  timeout,
		Dial:     dialTCP,
	}
}

// resolve looks up target, sharing the registry round-trip with concurrent callers.
// The shared lookup is detached from any single caller's cancellation and bounded by
// the call timeout; each caller stops waiting when its own ctx is done.
func (m *Messenger) resolve(ctx context.Context, target string) (*peer.Record, error) {
	ch := m.lookups.DoChan(target, func() (any, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.timeout)
		defer cancel()
		return m.resolver.GetClient(lctx, target)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			log.Debugf("Shared registry lookup for %s", target)
		}
		return res.Val.(*peer.Record).Clone(), nil
	}
}

// Send delivers content to the target peer. There is no retry.
// The lookup, the dial and the call together are bounded by the call timeout.
func (m *Messenger) Send(ctx context.Context, target string, content string) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	r, err := m.resolve(ctx, target)
	if err != nil {
		return fmt.Errorf("lookup %s: %w", target, err)
	}
	if r == nil || !r.Online {
		log.Debugf("Target client %s not available", target)
		return fmt.Errorf("%w: %s", ErrTargetUnavailable, target)
	}

	msg := &message.Message{
		ID:        uuid.NewString(),
		From:      m.identity,
		To:        target,
		Content:   content,
		Timestamp: strconv.FormatInt(time.Now().Unix(), 10),
	}

	addr := net.JoinHostPort(r.Address, strconv.Itoa(int(r.Port)))

	c, err := m.Dial(ctx, addr)
	if err != nil {
		return fmt.Errorf("%w: dial %s at %s: %w", ErrDeliveryFailed, target, addr, err)
	}
	defer c.Close()

	res := &protocol.SendMessageResponse{}
	if err := c.Call(ctx, protocol.MethodSendMessage, msg, res); err != nil {
		return fmt.Errorf("%w: %s at %s: %w", ErrDeliveryFailed, target, addr, err)
	}
	if !res.Success {
		return fmt.Errorf("%w: %s refused message %s", ErrDeliveryFailed, target, msg.ID)
	}

	log.Debugf("Delivered message %s to %s at %s", msg.ID, target, addr)
	return nil
}
