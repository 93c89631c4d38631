package registry

import (
	"context"
	"net"
	"peerlink/datamodel/peer"
	"peerlink/helper/timer"
	"peerlink/net/crpc"
	"peerlink/net/discovery"
	"peerlink/protocol"
	"time"

	"golang.org/x/sync/errgroup"

	log "github.com/sirupsen/logrus"
)

type Options struct {
	// StatusInterval enables a periodic log line with the number of registered peers. 0 disables it.
	StatusInterval time.Duration

	// Announce publishes the registry on the local network over mDNS.
	Announce bool
}

// Server is the registry daemon: the ClientRegistry service over an index, served on a crpc listener.
type Server struct {
	Index     peer.Index
	Service   *Service
	RpcServer *crpc.Server

	opts Options
}

func NewServer(index peer.Index, listener net.Listener, opts Options) (*Server, error) {
	s := &Server{
		Index:     index,
		Service:   NewService(index),
		RpcServer: crpc.NewServer(listener),
		opts:      opts,
	}

	if err := s.RpcServer.RegisterName(protocol.RegistryService, s.Service); err != nil {
		return nil, err
	}

	return s, nil
}

// This is run via the RunWithTicker() helper
func (s *Server) reportStatus(ctx context.Context) error {
	n, err := s.Index.Count()
	if err != nil {
		log.Errorf("Failed to count registered clients: %v", err)
		return nil
	}
	log.Infof("Registry status: %d clients registered", n)
	return nil
}

// Run serves the registry until ctx is cancelled, then drains connections and closes the index.
func (s *Server) Run(ctx context.Context) error {
	log.Infof("Client Registry Server listening on %s", s.RpcServer.Addr())
	log.Infof("Clients can register and discover other clients")

	if s.opts.Announce {
		host, _, _ := net.SplitHostPort(s.RpcServer.Addr().String())
		a, err := discovery.Announce("peerlink-registry", host, s.RpcServer.Port())
		if err != nil {
			// Discovery is a convenience; the registry stays reachable by address
			log.Errorf("Failed to announce registry over mDNS: %v", err)
		} else {
			defer a.Shutdown()
		}
	}

	wg, cctx := errgroup.WithContext(ctx)

	wg.Go(func() error {
		return s.RpcServer.Serve(cctx)
	})

	if s.opts.StatusInterval > 0 {
		wg.Go(func() error {
			interval := &timer.Interval{
				Duration: s.opts.StatusInterval,
				Jitter:   s.opts.StatusInterval / 10,
			}
			return timer.RunWithTicker(cctx, interval, s.reportStatus)
		})
	}

	err := wg.Wait()

	if cerr := s.Index.Close(); cerr != nil {
		log.Warnf("Failed to close registry index: %v", cerr)
	}

	log.Infof("Client Registry Server stopped")
	return err
}
