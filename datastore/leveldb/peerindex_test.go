package leveldb

import (
	"fmt"
	"peerlink/datamodel/peer"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIndex(t *testing.T) *PeerIndex {
	idx, err := NewPeerIndex()
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestPeerIndexPutGet(t *testing.T) {
	idx := newTestIndex(t)

	ok, err := idx.Put(&peer.Record{Identity: "alice", Address: "127.0.0.1", Port: 9001, Online: true})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = idx.Put(&peer.Record{Identity: "alice", Address: "127.0.0.1", Port: 9002, Online: true})
	require.NoError(t, err)
	assert.False(t, ok)

	r, err := idx.Get("alice")
	require.NoError(t, err)
	assert.Equal(t, &peer.Record{Identity: "alice", Address: "127.0.0.1", Port: 9001, Online: true}, r)

	r, err = idx.Get("bob")
	require.NoError(t, err)
	assert.Nil(t, r)
}

func TestPeerIndexListAndRemove(t *testing.T) {
	idx := newTestIndex(t)

	want := map[string]int32{}
	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("peer-%02d", i)
		want[id] = int32(5000 + i)
		_, err := idx.Put(&peer.Record{Identity: id, Address: "localhost", Port: want[id], Online: true})
		require.NoError(t, err)
	}

	list, err := idx.List()
	require.NoError(t, err)
	require.Len(t, list, len(want))
	for _, r := range list {
		assert.Equal(t, want[r.Identity], r.Port)
		assert.True(t, r.Online)
	}

	ok, err := idx.Remove("peer-03")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = idx.Remove("peer-03")
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := idx.Count()
	require.NoError(t, err)
	assert.Equal(t, len(want)-1, n)
}

func TestPeerIndexEmptyList(t *testing.T) {
	idx := newTestIndex(t)

	list, err := idx.List()
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestPeerIndexConcurrentSameIdentity(t *testing.T) {
	idx := newTestIndex(t)

	var wg sync.WaitGroup
	results := make(chan bool, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(port int32) {
			defer wg.Done()
			ok, err := idx.Put(&peer.Record{Identity: "dup", Port: port, Online: true})
			assert.NoError(t, err)
			results <- ok
		}(int32(i))
	}
	wg.Wait()
	close(results)

	wins := 0
	for ok := range results {
		if ok {
			wins++
		}
	}
	assert.Equal(t, 1, wins)
}
