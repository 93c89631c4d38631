// Package leveldb implements the peer.Index interface on top of an in-memory LevelDB.
package leveldb

import (
	"fmt"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"

	log "github.com/sirupsen/logrus"
)

var ErrCorrupted = fmt.Errorf("corrupted")

// levelDB wraps a LevelDB handle with the mutex that serializes compound operations (check-then-put).
type levelDB struct {
	mu sync.Mutex
	db *leveldb.DB
}

// Registry state must not outlive the process, so the database always lives on MemStorage.
func initLevelDb() (*leveldb.DB, error) {
	opts := &opt.Options{
		Compression: opt.NoCompression,
	}

	db, err := leveldb.Open(storage.NewMemStorage(), opts)
	if err != nil {
		return nil, err
	}

	log.Debugf("Opened in-memory LevelDB")

	return db, nil
}

func (l *levelDB) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.db.Close()
}
