package db

import (
	"github.com/cockroachdb/errors"
)

var (
	ErrKeyNotFound = errors.New("key not found")
	ErrClosed      = errors.New("store closed")
)

// Txn is a view of the store inside View or Update. Writes made through a
// Txn passed to Update become visible only when the callback returns nil.
type Txn interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	Delete(key string) error
}

// KV is the persistence contract shared by every storage driver.
type KV interface {
	View(fn func(txn Txn) error) error
	Update(fn func(txn Txn) error) error
	List(prefix string, limit int) ([]string, error)
	Close() error
}

// IsNotFound reports whether err is or wraps ErrKeyNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrKeyNotFound)
}
