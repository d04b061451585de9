package db

import (
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/dgraph-io/badger/v4"
)

const maxConflictRetries = 5

// BadgerStore keeps every key under a namespace prefix inside one badger DB.
type BadgerStore struct {
	db        *badger.DB
	namespace string
}

func NewBadgerStore(dataDir, namespace string) (*BadgerStore, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, errors.Wrap(err, "create data dir")
	}

	opts := badger.DefaultOptions(filepath.Join(dataDir, "badger"))
	opts.Logger = nil

	bdb, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "open badger")
	}

	return &BadgerStore{db: bdb, namespace: namespace}, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func (s *BadgerStore) View(fn func(txn Txn) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		return fn(&badgerTxn{txn: txn, namespace: s.namespace})
	})
}

// Update runs fn in a read-write badger transaction. badger discards the
// transaction when fn returns an error, so no partial write is committed.
// fn is re-run when the commit loses a conflict with a concurrent writer.
func (s *BadgerStore) Update(fn func(txn Txn) error) error {
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		err = s.db.Update(func(txn *badger.Txn) error {
			return fn(&badgerTxn{txn: txn, namespace: s.namespace})
		})
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return errors.Wrap(err, "too many conflicts")
}

func (s *BadgerStore) List(prefix string, limit int) ([]string, error) {
	var keys []string

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		fullPrefix := []byte(s.namespace + prefix)
		count := 0
		for it.Seek(fullPrefix); it.ValidForPrefix(fullPrefix) && (limit <= 0 || count < limit); it.Next() {
			key := string(it.Item().Key())
			keys = append(keys, key[len(s.namespace):])
			count++
		}
		return nil
	})

	return keys, err
}

type badgerTxn struct {
	txn       *badger.Txn
	namespace string
}

func (t *badgerTxn) Get(key string) ([]byte, error) {
	item, err := t.txn.Get([]byte(t.namespace + key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, errors.Wrapf(ErrKeyNotFound, "%s", key)
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

func (t *badgerTxn) Set(key string, value []byte) error {
	return t.txn.Set([]byte(t.namespace+key), value)
}

func (t *badgerTxn) Delete(key string) error {
	return t.txn.Delete([]byte(t.namespace + key))
}
