package node

import (
	"peerlink/datamodel/message"
	"peerlink/protocol"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Endpoint is the inbound side of a peer: the PeerEndpoint RPC service and the
// FIFO queue of received messages behind it.
type Endpoint struct {
	identity string

	mu    sync.Mutex
	queue []*message.Message

	// Called for every accepted message, outside of the queue lock.
	notify func(*message.Message)
}

// NewEndpoint returns an endpoint with an empty queue. notify may be nil.
func NewEndpoint(identity string, notify func(*message.Message)) *Endpoint {
	return &Endpoint{
		identity: identity,
		notify:   notify,
	}
}

// SendMessage accepts a message from a remote peer. Delivery always succeeds.
func (e *Endpoint) SendMessage(req *message.Message, res *protocol.SendMessageResponse) error {
	log.Debugf("Received message %s from %s to %s", req.ID, req.From, req.To)
	e.Push(req)
	res.Success = true
	return nil
}

// ReceiveMessage pops the oldest queued message. An empty queue yields the empty message.
func (e *Endpoint) ReceiveMessage(req *protocol.ReceiveMessageRequest, res *message.Message) error {
	m, ok := e.Pop()
	if !ok {
		*res = message.Message{}
		return nil
	}
	*res = *m
	return nil
}

// Push appends a copy of m to the queue and hands it to the notify hook.
func (e *Endpoint) Push(m *message.Message) {
	c := *m

	e.mu.Lock()
	e.queue = append(e.queue, &c)
	e.mu.Unlock()

	if e.notify != nil {
		e.notify(&c)
	}
}

// Pop removes and returns the oldest queued message. It reports false if the queue is empty.
func (e *Endpoint) Pop() (*message.Message, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.queue) == 0 {
		return nil, false
	}
	m := e.queue[0]
	e.queue[0] = nil
	e.queue = e.queue[1:]
	return m, true
}

// Len returns the number of queued messages.
func (e *Endpoint) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue)
}
