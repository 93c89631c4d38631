package registry

import (
	"context"
	"errors"
	"fmt"
	"peerlink/datamodel/peer"
	"peerlink/net/crpc"
	"peerlink/protocol"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// ErrUnavailable wraps every failure to reach the registry or to get a reply from it.
var ErrUnavailable = errors.New("registry unavailable")

// Client is a typed ClientRegistry client. The connection is dialed lazily and
// redialed on the next call after a transport failure.
type Client struct {
	addr    string
	timeout time.Duration // per-call bound, 0 means only the caller's context applies

	mu  sync.Mutex
	rpc *crpc.Client
}

func NewClient(addr string, timeout time.Duration) *Client {
	return &Client{addr: addr, timeout: timeout}
}

func (c *Client) Addr() string {
	return c.addr
}

func (c *Client) conn(ctx context.Context) (*crpc.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rpc != nil {
		return c.rpc, nil
	}

	rpcc, err := crpc.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return nil, err
	}
	log.Debugf("Connected to registry at %s", c.addr)
	c.rpc = rpcc
	return rpcc, nil
}

func (c *Client) reset(rpcc *crpc.Client) {
	c.mu.Lock()
	if c.rpc == rpcc {
		c.rpc = nil
	}
	c.mu.Unlock()
	_ = rpcc.Close()
}

func (c *Client) call(ctx context.Context, method string, args any, reply any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	rpcc, err := c.conn(ctx)
	if err != nil {
		return fmt.Errorf("%w: dial %s: %w", ErrUnavailable, c.addr, err)
	}

	if err := rpcc.Call(ctx, method, args, reply); err != nil {
		var se crpc.ServerError
		if !errors.As(err, &se) {
			c.reset(rpcc)
		}
		return fmt.Errorf("%w: %s: %w", ErrUnavailable, method, err)
	}
	return nil
}

// RegisterClient returns the registry's verdict. A duplicate identity is reported as
// success=false with a message, not as an error.
func (c *Client) RegisterClient(ctx context.Context, identity string, address string, port int32) (bool, string, error) {
	res := &protocol.StatusResponse{}
	err := c.call(ctx, protocol.MethodRegisterClient, &protocol.RegisterRequest{
		Identity: identity,
		Address:  address,
		Port:     port,
	}, res)
	if err != nil {
		return false, "", err
	}
	return res.Success, res.Message, nil
}

// GetClient returns the registered record, or the sentinel {identity, "", 0, offline} if there is none.
func (c *Client) GetClient(ctx context.Context, identity string) (*peer.Record, error) {
	res := &peer.Record{}
	if err := c.call(ctx, protocol.MethodGetClient, &protocol.LookupRequest{Identity: identity}, res); err != nil {
		return nil, err
	}
	return res, nil
}

func (c *Client) ListClients(ctx context.Context) ([]*peer.Record, error) {
	res := &protocol.ListResponse{}
	if err := c.call(ctx, protocol.MethodListClients, &protocol.ListRequest{}, res); err != nil {
		return nil, err
	}
	return res.Clients, nil
}

func (c *Client) UnregisterClient(ctx context.Context, identity string) (bool, string, error) {
	res := &protocol.StatusResponse{}
	if err := c.call(ctx, protocol.MethodUnregisterClient, &protocol.UnregisterRequest{Identity: identity}, res); err != nil {
		return false, "", err
	}
	return res.Success, res.Message, nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rpc == nil {
		return nil
	}
	err := c.rpc.Close()
	c.rpc = nil
	return err
}
