// Package protocol defines the CBOR request and response bodies exchanged between peers and the registry.
package protocol

import (
	"peerlink/datamodel/peer"
)

const (
	RegistryService = "ClientRegistry"
	EndpointService = "PeerEndpoint"

	MethodRegisterClient   = RegistryService + ".RegisterClient"
	MethodGetClient        = RegistryService + ".GetClient"
	MethodListClients      = RegistryService + ".ListClients"
	MethodUnregisterClient = RegistryService + ".UnregisterClient"

	MethodSendMessage    = EndpointService + ".SendMessage"
	MethodReceiveMessage = EndpointService + ".ReceiveMessage"
)

// Response messages of the registry. Failures are reported here, never as RPC errors.
const (
	MsgRegistered     = "Client registered successfully"
	MsgAlreadyExists  = "Client ID already exists"
	MsgUnregistered   = "Client unregistered successfully"
	MsgClientNotFound = "Client ID not found"
)

type RegisterRequest struct {
	Identity string `cbor:"1,keyasint"`
	Address  string `cbor:"2,keyasint,omitempty"`
	Port     int32  `cbor:"3,keyasint,omitempty"`
}

// StatusResponse is the reply of RegisterClient and UnregisterClient
type StatusResponse struct {
	Success bool   `cbor:"1,keyasint,omitempty"`
	Message string `cbor:"2,keyasint,omitempty"`
}

type LookupRequest struct {
	Identity string `cbor:"1,keyasint"`
}

type ListRequest struct{}

type ListResponse struct {
	Clients []*peer.Record `cbor:"1,keyasint,omitempty"`
}

type UnregisterRequest struct {
	Identity string `cbor:"1,keyasint"`
}

type SendMessageResponse struct {
	Success bool `cbor:"1,keyasint,omitempty"`
}

type ReceiveMessageRequest struct{}
