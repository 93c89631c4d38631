package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"peerlink/commands"
	"peerlink/config"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
)

func setLogLevel(level string) {
	l, err := log.ParseLevel(level)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	log.SetLevel(l)
}

func registerGlobalFlags(fset *flag.FlagSet) {
	flag.VisitAll(func(f *flag.Flag) {
		fset.Var(f.Value, f.Name, f.Usage)
	})
}

func checkConfig(cfg string) {
	if cfg == "" {
		log.Fatal("Config file not specified")
	}
}

// loadConfig reads the config file if one was given, defaults otherwise.
func loadConfig(configFile string) *config.Config {
	if configFile == "" {
		return config.NewEmptyConfig("")
	}
	cfg, err := config.NewConfigFromFile(configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

// explicitFlags returns the names of flags set on the command line.
func explicitFlags(fset *flag.FlagSet) map[string]bool {
	set := map[string]bool{}
	fset.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})
	return set
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s <init|registry|peer> [flags]\n", os.Args[0])
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	configFile := flag.String("config", "", "Path to config file")
	logLevel := flag.String("loglevel", "info", "Log level")

	initCmd := flag.NewFlagSet("init", flag.ExitOnError)
	registerGlobalFlags(initCmd)

	registryCmd := flag.NewFlagSet("registry", flag.ExitOnError)
	regListen := registryCmd.String("listen", "0.0.0.0:50051", "Address the registry listens on")
	regStore := registryCmd.String("store", config.StoreMap, "Registry index backend: map or leveldb")
	regMDNS := registryCmd.Bool("mdns", false, "Announce the registry over mDNS")
	regStatus := registryCmd.Duration("status-interval", time.Minute, "Interval of the status report, 0 to disable")
	registerGlobalFlags(registryCmd)

	peerCmd := flag.NewFlagSet("peer", flag.ExitOnError)
	peerRegistry := peerCmd.String("registry", "localhost:50051", "Registry address, or 'mdns' to discover it")
	peerID := peerCmd.String("id", "", "Identity of this peer (required)")
	peerListen := peerCmd.String("listen", "127.0.0.1:0", "Address the peer endpoint listens on")
	peerAdvertise := peerCmd.String("advertise", "", "Host registered for this peer, defaults to the listen host")
	peerTo := peerCmd.String("to", "", "Send a single message to this peer and exit")
	peerMessage := peerCmd.String("message", "", "Message body for --to")
	peerList := peerCmd.Bool("list", false, "List registered peers and exit")
	peerTimeout := peerCmd.Duration("timeout", 5*time.Second, "Timeout of outbound calls")
	registerGlobalFlags(peerCmd)

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	cmd, args := os.Args[1], os.Args[2:]

	switch cmd {
	case "init":
		initCmd.Parse(args)
		checkConfig(*configFile)
		setLogLevel(*logLevel)
		cfg := config.NewEmptyConfig(*configFile)
		commands.RunInit(ctx, cfg)
	case "registry":
		registryCmd.Parse(args)
		setLogLevel(*logLevel)
		cfg := loadConfig(*configFile)
		set := explicitFlags(registryCmd)
		if set["listen"] {
			cfg.Registry.ListenAddress = *regListen
		}
		if set["store"] {
			cfg.Registry.Store = *regStore
		}
		if set["mdns"] {
			cfg.Registry.UseMDNS = *regMDNS
		}
		if set["status-interval"] {
			cfg.Registry.StatusInterval = config.Duration(*regStatus)
		}
		if err := cfg.Validate(); err != nil {
			log.Fatalf("Invalid configuration: %v", err)
		}
		commands.RunRegistry(ctx, cfg)
	case "peer":
		peerCmd.Parse(args)
		setLogLevel(*logLevel)
		cfg := loadConfig(*configFile)
		set := explicitFlags(peerCmd)
		if set["registry"] {
			cfg.Peer.RegistryAddress = *peerRegistry
		}
		if set["id"] {
			cfg.Peer.Identity = *peerID
		}
		if set["listen"] {
			cfg.Peer.ListenAddress = *peerListen
		}
		if set["advertise"] {
			cfg.Peer.AdvertiseHost = *peerAdvertise
		}
		if set["timeout"] {
			cfg.Peer.Timeout = config.Duration(*peerTimeout)
		}
		if cfg.Peer.Identity == "" {
			fmt.Fprintln(os.Stderr, "peer: --id is required")
			peerCmd.Usage()
			os.Exit(2)
		}
		if *peerMessage != "" && *peerTo == "" {
			fmt.Fprintln(os.Stderr, "peer: --message requires --to")
			os.Exit(2)
		}
		if err := cfg.Validate(); err != nil {
			log.Fatalf("Invalid configuration: %v", err)
		}
		commands.RunPeer(ctx, cfg, commands.PeerOptions{
			To:      *peerTo,
			Message: *peerMessage,
			List:    *peerList,
		})
	default:
		usage()
		log.Fatalf("Invalid subcommand '%s'", os.Args[1])
	}
}
