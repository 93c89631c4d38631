package message

// Message is a single peer-to-peer message as delivered to and queued by a peer endpoint.
// Timestamp is assigned by the sender (Unix seconds, decimal).
type Message struct {
	ID        string `cbor:"1,keyasint,omitempty"` // Sender-assigned UUID, used for log correlation
	From      string `cbor:"2,keyasint,omitempty"` // Sender identity
	To        string `cbor:"3,keyasint,omitempty"` // Recipient identity
	Content   string `cbor:"4,keyasint,omitempty"`
	Timestamp string `cbor:"5,keyasint,omitempty"`
}

// IsEmpty reports whether m is the empty sentinel returned when a queue has nothing to deliver.
func (m *Message) IsEmpty() bool {
	return m == nil || *m == Message{}
}
