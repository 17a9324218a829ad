package db

// DB is a general interface to namespaced key-value storage. It backs the
// optional on-disk persistence of remotely fetched state; the in-memory
// implementation is used in tests.
type DB interface {
	Type() string
	Set(namespace []byte, key []byte, value []byte) error
	Get(namespace []byte, key []byte) ([]byte, bool, error)
	Exist(namespace []byte, key []byte) (bool, error)
	Delete(namespace []byte, key []byte) error
	Close() error
}
