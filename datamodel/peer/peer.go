package peer

// Record is the registry entry of a single peer.
// Identity is opaque and may be empty; Address and Port are stored as given without any reachability check.
type Record struct {
	Identity string `cbor:"1,keyasint"`           // Peer identity chosen by the peer itself
	Address  string `cbor:"2,keyasint,omitempty"` // Host the peer endpoint listens on
	Port     int32  `cbor:"3,keyasint,omitempty"` // Port the peer endpoint listens on
	Online   bool   `cbor:"4,keyasint,omitempty"` // True while the record is registered
}

// Clone returns a detached copy of the record, so index internals are never aliased by callers.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// Absent returns the sentinel record reported for an identity that is not registered.
func Absent(identity string) *Record {
	return &Record{Identity: identity}
}

// Index defines the interface of the registry directory.
// All operations are atomic with respect to each other. Returned records are always copies.
type Index interface {
	// Put inserts a record keyed by its identity.
	// It returns false without modifying the index if the identity is already present.
	Put(*Record) (bool, error)

	// Get returns a copy of the record for the identity, or nil if it is not registered.
	// Absence is not an error.
	Get(identity string) (*Record, error)

	// List returns a snapshot of all records in unspecified order.
	List() ([]*Record, error)

	// Remove deletes the record for the identity. It returns false if the identity is not present.
	Remove(identity string) (bool, error)

	// Count returns the number of records currently held.
	Count() (int, error)

	Close() error
}
