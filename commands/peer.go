package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"peerlink/config"
	"peerlink/net/discovery"
	"peerlink/node"
	"peerlink/registry"
	"time"

	log "github.com/sirupsen/logrus"
)

// PeerOptions select a one-shot mode. With none set the peer runs the interactive console.
type PeerOptions struct {
	To      string
	Message string
	List    bool
}

const discoveryTimeout = 3 * time.Second

func registryAddress(cfg *config.Config) (string, error) {
	if cfg.Peer.RegistryAddress != "mdns" {
		return cfg.Peer.RegistryAddress, nil
	}
	log.Infof("Looking up registry over mDNS")
	addr, err := discovery.Lookup(discoveryTimeout)
	if err != nil {
		return "", err
	}
	log.Infof("Found registry at %s", addr)
	return addr, nil
}

func RunPeer(ctx context.Context, cfg *config.Config, opts PeerOptions) {
	if err := runPeer(ctx, cfg, opts, os.Stdin, os.Stdout); err != nil {
		log.Fatalf("%v", err)
	}
}

func runPeer(ctx context.Context, cfg *config.Config, opts PeerOptions, in io.Reader, out io.Writer) error {
	addr, err := registryAddress(cfg)
	if err != nil {
		return fmt.Errorf("failed to find registry: %w", err)
	}

	timeout := time.Duration(cfg.Peer.Timeout)
	console := NewConsole(out)

	n := node.New(node.Config{
		Identity:      cfg.Peer.Identity,
		ListenAddress: cfg.Peer.ListenAddress,
		AdvertiseHost: cfg.Peer.AdvertiseHost,
		CallTimeout:   timeout,
	}, registry.NewClient(addr, timeout), console.Notify)

	if err := n.Start(ctx); err != nil {
		return fmt.Errorf("failed to start peer %s: %w", cfg.Peer.Identity, err)
	}
	defer n.Stop(context.Background())

	switch {
	case opts.List:
		console.printList(ctx, n)
		return nil

	case opts.To != "":
		if err := n.Send(ctx, opts.To, opts.Message); err != nil {
			return fmt.Errorf("%s", describeSendError(opts.To, err))
		}
		console.printf(okColor, "Message sent to %s", opts.To)
		return nil
	}

	return console.Run(ctx, n, in)
}
