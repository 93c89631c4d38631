package node

import (
	"fmt"
	"peerlink/datamodel/message"
	"peerlink/protocol"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndpointFIFO(t *testing.T) {
	e := NewEndpoint("bob", nil)

	for i := 0; i < 3; i++ {
		res := &protocol.SendMessageResponse{}
		require.NoError(t, e.SendMessage(&message.Message{From: "alice", To: "bob", Content: fmt.Sprintf("m%d", i)}, res))
		assert.True(t, res.Success)
	}
	assert.Equal(t, 3, e.Len())

	for i := 0; i < 3; i++ {
		res := &message.Message{}
		require.NoError(t, e.ReceiveMessage(&protocol.ReceiveMessageRequest{}, res))
		assert.Equal(t, fmt.Sprintf("m%d", i), res.Content)
	}
	assert.Zero(t, e.Len())
}

func TestEndpointEmptyQueue(t *testing.T) {
	e := NewEndpoint("bob", nil)

	res := &message.Message{Content: "stale"}
	require.NoError(t, e.ReceiveMessage(&protocol.ReceiveMessageRequest{}, res))
	assert.True(t, res.IsEmpty())

	m, ok := e.Pop()
	assert.False(t, ok)
	assert.Nil(t, m)
}

func TestEndpointCopiesMessages(t *testing.T) {
	e := NewEndpoint("bob", nil)

	m := &message.Message{Content: "hello"}
	e.Push(m)
	m.Content = "changed"

	got, ok := e.Pop()
	require.True(t, ok)
	assert.Equal(t, "hello", got.Content)
}

func TestEndpointNotify(t *testing.T) {
	var got []string
	var e *Endpoint
	e = NewEndpoint("bob", func(m *message.Message) {
		// The queue lock is not held while the hook runs
		assert.GreaterOrEqual(t, e.Len(), 1)
		got = append(got, m.Content)
	})

	e.Push(&message.Message{Content: "one"})
	e.Push(&message.Message{Content: "two"})

	assert.Equal(t, []string{"one", "two"}, got)
}

func TestEndpointConcurrentPush(t *testing.T) {
	e := NewEndpoint("bob", nil)

	const senders, perSender = 8, 50
	var wg sync.WaitGroup
	for s := 0; s < senders; s++ {
		wg.Add(1)
		go func(s int) {
			defer wg.Done()
			for i := 0; i < perSender; i++ {
				e.Push(&message.Message{From: fmt.Sprintf("s%d", s), Content: fmt.Sprintf("%d", i)})
			}
		}(s)
	}
	wg.Wait()

	require.Equal(t, senders*perSender, e.Len())

	// Messages of a single sender keep their relative order
	next := map[string]int{}
	for {
		m, ok := e.Pop()
		if !ok {
			break
		}
		assert.Equal(t, fmt.Sprintf("%d", next[m.From]), m.Content)
		next[m.From]++
	}
	for s := 0; s < senders; s++ {
		assert.Equal(t, perSender, next[fmt.Sprintf("s%d", s)])
	}
}
