package registry

import (
	"peerlink/datamodel/peer"
	"peerlink/protocol"

	log "github.com/sirupsen/logrus"
)

// Service exposes a peer.Index as the ClientRegistry RPC service.
// Conflicts and absences are reported in the reply; a returned error means the index itself failed.
type Service struct {
	index peer.Index
}

func NewService(index peer.Index) *Service {
	return &Service{index: index}
}

// RPC: RegisterClient
func (s *Service) RegisterClient(req *protocol.RegisterRequest, res *protocol.StatusResponse) error {
	ok, err := s.index.Put(&peer.Record{
		Identity: req.Identity,
		Address:  req.Address,
		Port:     req.Port,
		Online:   true,
	})
	if err != nil {
		log.Errorf("RegisterClient(%q): %v", req.Identity, err)
		return err
	}

	if !ok {
		res.Success = false
		res.Message = protocol.MsgAlreadyExists
		log.Infof("Client registration failed: ID %q already exists", req.Identity)
		return nil
	}

	res.Success = true
	res.Message = protocol.MsgRegistered
	log.Infof("Client %q registered at %s:%d", req.Identity, req.Address, req.Port)
	return nil
}

// RPC: GetClient
func (s *Service) GetClient(req *protocol.LookupRequest, res *peer.Record) error {
	r, err := s.index.Get(req.Identity)
	if err != nil {
		log.Errorf("GetClient(%q): %v", req.Identity, err)
		return err
	}

	if r == nil {
		*res = *peer.Absent(req.Identity)
		log.Infof("Client lookup failed: ID %q not found", req.Identity)
		return nil
	}

	*res = *r
	log.Infof("Client lookup successful: %q at %s:%d", r.Identity, r.Address, r.Port)
	return nil
}

// RPC: ListClients
func (s *Service) ListClients(req *protocol.ListRequest, res *protocol.ListResponse) error {
	records, err := s.index.List()
	if err != nil {
		log.Errorf("ListClients: %v", err)
		return err
	}

	res.Clients = records
	log.Infof("Listed %d registered clients", len(records))
	return nil
}

// RPC: UnregisterClient
func (s *Service) UnregisterClient(req *protocol.UnregisterRequest, res *protocol.StatusResponse) error {
	ok, err := s.index.Remove(req.Identity)
	if err != nil {
		log.Errorf("UnregisterClient(%q): %v", req.Identity, err)
		return err
	}

	if !ok {
		res.Success = false
		res.Message = protocol.MsgClientNotFound
		log.Infof("Client unregistration failed: ID %q not found", req.Identity)
		return nil
	}

	res.Success = true
	res.Message = protocol.MsgUnregistered
	log.Infof("Client %q unregistered", req.Identity)
	return nil
}
