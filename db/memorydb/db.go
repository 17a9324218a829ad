package memorydb

import (
	"sync"

	forkdb "github.com/quark-network/go-forkdb/db"
)

// Enforce database implements the interface
var _ forkdb.DB = (*DB)(nil)

// DB is a map-backed store used in tests and for ephemeral cache runs.
type DB struct {
	lock sync.Mutex
	db   map[string][]byte
}

func NewDB() *DB {
	return &DB{
		db: make(map[string][]byte),
	}
}

func (db *DB) Type() string {
	return "memorydb"
}

func (db *DB) Set(namespace []byte, key []byte, value []byte) error {
	db.lock.Lock()
	defer db.lock.Unlock()

	key = forkdb.PrependNamespace(namespace, key)
	key = forkdb.ConvNilToBytes(key)
	value = forkdb.ConvNilToBytes(value)

	db.db[string(key)] = value
	return nil
}

func (db *DB) Get(namespace []byte, key []byte) ([]byte, bool, error) {
	db.lock.Lock()
	defer db.lock.Unlock()

	key = forkdb.PrependNamespace(namespace, key)
	key = forkdb.ConvNilToBytes(key)

	value, exists := db.db[string(key)]
	return value, exists, nil
}

func (db *DB) Exist(namespace []byte, key []byte) (bool, error) {
	db.lock.Lock()
	defer db.lock.Unlock()

	key = forkdb.PrependNamespace(namespace, key)
	key = forkdb.ConvNilToBytes(key)

	_, ok := db.db[string(key)]
	return ok, nil
}

func (db *DB) Delete(namespace []byte, key []byte) error {
	db.lock.Lock()
	defer db.lock.Unlock()

	key = forkdb.PrependNamespace(namespace, key)
	key = forkdb.ConvNilToBytes(key)

	delete(db.db, string(key))
	return nil
}

func (db *DB) Close() error {
	return nil
}
