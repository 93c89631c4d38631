package leveldb

import (
	"peerlink/datamodel/peer"

	"github.com/fxamacker/cbor/v2"
	"github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/util"

	log "github.com/sirupsen/logrus"
)

const (
	keyPrefixPeer = "PEER" // Peer record indexed by identity. Followed by the raw identity string
)

var _ peer.Index = (*PeerIndex)(nil)

type PeerIndex struct {
	levelDB
}

// NewPeerIndex opens an empty index on a fresh in-memory database.
func NewPeerIndex() (*PeerIndex, error) {
	ldb, err := initLevelDb()
	if err != nil {
		return nil, err
	}

	return &PeerIndex{
		levelDB: levelDB{db: ldb},
	}, nil
}

func keyFromIdentity(identity string) []byte {
	return append([]byte(keyPrefixPeer), []byte(identity)...)
}

func (l *PeerIndex) Put(record *peer.Record) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := keyFromIdentity(record.Identity)

	// Never overwrite an existing registration
	_, err := l.db.Get(key, nil)
	if err == nil {
		return false, nil
	} else if err != errors.ErrNotFound {
		return false, err
	}

	raw, err := cbor.Marshal(record)
	if err != nil {
		return false, err
	}

	if err := l.db.Put(key, raw, nil); err != nil {
		return false, err
	}

	return true, nil
}

func (l *PeerIndex) Get(identity string) (*peer.Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	raw, err := l.db.Get(keyFromIdentity(identity), nil)
	if err == errors.ErrNotFound {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	record := &peer.Record{}
	if err := cbor.Unmarshal(raw, record); err != nil {
		return nil, err
	}

	// Compare the identity just in case
	if record.Identity != identity {
		log.Errorf("Get: identity mismatch: %q != %q", identity, record.Identity)
		return nil, ErrCorrupted
	}

	return record, nil
}

func (l *PeerIndex) List() ([]*peer.Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	iter := l.db.NewIterator(util.BytesPrefix([]byte(keyPrefixPeer)), nil)
	defer iter.Release()

	results := []*peer.Record{}
	for iter.Next() {
		record := &peer.Record{}
		if err := cbor.Unmarshal(iter.Value(), record); err != nil {
			return nil, err
		}
		results = append(results, record)
	}

	if err := iter.Error(); err != nil {
		return nil, err
	}

	return results, nil
}

func (l *PeerIndex) Remove(identity string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := keyFromIdentity(identity)

	has, err := l.db.Has(key, nil)
	if err != nil {
		return false, err
	}
	if !has {
		return false, nil
	}

	if err := l.db.Delete(key, nil); err != nil {
		return false, err
	}

	return true, nil
}

func (l *PeerIndex) Count() (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	iter := l.db.NewIterator(util.BytesPrefix([]byte(keyPrefixPeer)), nil)
	defer iter.Release()

	n := 0
	for iter.Next() {
		n++
	}
	return n, iter.Error()
}
