package discovery

import (
	"net"
	"testing"

	"github.com/hashicorp/mdns"
	"github.com/stretchr/testify/assert"
)

func TestEntryAddr(t *testing.T) {
	tests := []struct {
		name  string
		entry *mdns.ServiceEntry
		want  string
		ok    bool
	}{
		{"nil", nil, "", false},
		{"ipv4", &mdns.ServiceEntry{Name: "reg._peerlink._tcp.local.", AddrV4: net.ParseIP("192.168.1.10"), Port: 50051}, "192.168.1.10:50051", true},
		{"ipv6", &mdns.ServiceEntry{Name: "reg._peerlink._tcp.local.", AddrV6: net.ParseIP("fe80::1"), Port: 50051}, "[fe80::1]:50051", true},
		{"foreign service", &mdns.ServiceEntry{Name: "printer._ipp._tcp.local.", AddrV4: net.ParseIP("10.0.0.2"), Port: 631}, "", false},
		{"no address", &mdns.ServiceEntry{Name: "reg._peerlink._tcp.local.", Port: 50051}, "", false},
		{"no port", &mdns.ServiceEntry{Name: "reg._peerlink._tcp.local.", AddrV4: net.ParseIP("10.0.0.2")}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := entryAddr(tt.entry)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
