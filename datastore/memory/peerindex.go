// Package memory implements the peer.Index interface on top of a plain map.
package memory

import (
	"peerlink/datamodel/peer"
	"sync"
)

var _ peer.Index = (*PeerIndex)(nil)

// PeerIndex keeps registry records in a map guarded by a single mutex.
// The map is never exposed; every record crossing the boundary is copied.
type PeerIndex struct {
	mu    sync.Mutex
	peers map[string]*peer.Record
}

// NewPeerIndex returns an empty index.
func NewPeerIndex() *PeerIndex {
	return &PeerIndex{
		peers: make(map[string]*peer.Record),
	}
}

func (m *PeerIndex) Put(record *peer.Record) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.peers[record.Identity]; ok {
		return false, nil
	}

	m.peers[record.Identity] = record.Clone()
	return true, nil
}

func (m *PeerIndex) Get(identity string) (*peer.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.peers[identity].Clone(), nil
}

func (m *PeerIndex) List() ([]*peer.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*peer.Record, 0, len(m.peers))
	for _, r := range m.peers {
		out = append(out, r.Clone())
	}
	return out, nil
}

func (m *PeerIndex) Remove(identity string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.peers[identity]; !ok {
		return false, nil
	}

	delete(m.peers, identity)
	return true, nil
}

func (m *PeerIndex) Count() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.peers), nil
}

func (m *PeerIndex) Close() error {
	return nil
}
