// Package discovery announces a registry on the local network over mDNS and lets peers find it.
package discovery

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/mdns"

	log "github.com/sirupsen/logrus"
)

const (
	Service = "_peerlink._tcp"
	Domain  = "local."
)

var ErrNotFound = errors.New("no registry announced on the local network")

type Announcer struct {
	server *mdns.Server
}

// Announce publishes the registry instance on host:port until Shutdown is called.
// An empty or unspecified host lets mdns resolve the addresses of the local hostname.
func Announce(instance string, host string, port int) (*Announcer, error) {
	var ips []net.IP
	if ip := net.ParseIP(host); ip != nil && !ip.IsUnspecified() {
		ips = []net.IP{ip}
	}

	svc, err := mdns.NewMDNSService(instance, Service, Domain, "", port, ips, []string{"peerlink registry"})
	if err != nil {
		return nil, fmt.Errorf("error create mdns service. %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: svc})
	if err != nil {
		return nil, fmt.Errorf("error create mdns server. %w", err)
	}

	log.Infof("Announcing registry %q over mDNS on port %d", instance, port)
	return &Announcer{server: server}, nil
}

func (a *Announcer) Shutdown() error {
	return a.server.Shutdown()
}

// Lookup queries the local network and returns the host:port of the first registry that answers.
func Lookup(timeout time.Duration) (string, error) {
	entriesCh := make(chan *mdns.ServiceEntry, 8)
	found := make(chan string, 1)

	go func() {
		defer close(found)
		for entry := range entriesCh {
			if addr, ok := entryAddr(entry); ok {
				select {
				case found <- addr:
				default:
				}
			}
		}
	}()

	err := mdns.Query(&mdns.QueryParam{
		Service:     Service,
		Domain:      strings.TrimSuffix(Domain, "."),
		Timeout:     timeout,
		Entries:     entriesCh,
		DisableIPv6: true,
	})
	close(entriesCh)
	if err != nil {
		return "", fmt.Errorf("error lookup registry. %w", err)
	}

	addr, ok := <-found
	if !ok || addr == "" {
		return "", ErrNotFound
	}
	log.Infof("Discovered registry at %s", addr)
	return addr, nil
}

func entryAddr(e *mdns.ServiceEntry) (string, bool) {
	if e == nil || e.Port == 0 || !strings.Contains(e.Name, Service) {
		return "", false
	}

	var ip net.IP
	switch {
	case e.AddrV4 != nil:
		ip = e.AddrV4
	case e.AddrV6 != nil:
		ip = e.AddrV6
	default:
		return "", false
	}

	return net.JoinHostPort(ip.String(), strconv.Itoa(e.Port)), true
}
