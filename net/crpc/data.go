package crpc

// Every request on the wire is a RequestHeader followed by the CBOR-encoded argument.
// Every response is a ResponseHeader followed by the reply body, unless Err is set.

type RequestHeader struct {
	Seq    uint64 `cbor:"1,keyasint,omitempty"`
	Method string `cbor:"2,keyasint,omitempty"` // "Service.Method"
}

type ResponseHeader struct {
	Seq uint64 `cbor:"1,keyasint,omitempty"`
	Err string `cbor:"2,keyasint,omitempty"`
}
