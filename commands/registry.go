package commands

import (
	"context"
	"fmt"
	"net"
	"peerlink/config"
	"peerlink/datamodel/peer"
	"peerlink/datastore/leveldb"
	"peerlink/datastore/memory"
	"peerlink/registry"
	"time"

	log "github.com/sirupsen/logrus"
)

func openIndex(store string) (peer.Index, error) {
	switch store {
	case config.StoreMap:
		return memory.NewPeerIndex(), nil
	case config.StoreLevelDB:
		return leveldb.NewPeerIndex()
	default:
		return nil, fmt.Errorf("unknown registry store %q", store)
	}
}

func RunRegistry(ctx context.Context, cfg *config.Config) {
	idx, err := openIndex(cfg.Registry.Store)
	if err != nil {
		log.Fatalf("Failed to create registry index: %v", err)
	}

	l, err := net.Listen("tcp", cfg.Registry.ListenAddress)
	if err != nil {
		log.Fatalf("Failed to listen on %s: %v", cfg.Registry.ListenAddress, err)
	}

	srv, err := registry.NewServer(idx, l, registry.Options{
		StatusInterval: time.Duration(cfg.Registry.StatusInterval),
		Announce:       cfg.Registry.UseMDNS,
	})
	if err != nil {
		log.Fatalf("Failed to create registry server: %v", err)
	}

	if err := srv.Run(ctx); err != nil {
		log.Fatalf("Registry stopped with error: %v", err)
	}
}
