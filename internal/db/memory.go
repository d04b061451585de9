package db

import (
	"sort"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
)

// MemoryStore is a KV held in process memory. Update stages its writes in an
// overlay and applies them only when the callback succeeds.
type MemoryStore struct {
	mu     sync.RWMutex
	data   map[string][]byte
	closed bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (s *MemoryStore) View(fn func(txn Txn) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return fn(&memoryTxn{base: s.data})
}

func (s *MemoryStore) Update(fn func(txn Txn) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	txn := &memoryTxn{
		base:     s.data,
		writes:   make(map[string][]byte),
		deletes:  make(map[string]bool),
		writable: true,
	}
	if err := fn(txn); err != nil {
		return err
	}

	for key := range txn.deletes {
		delete(s.data, key)
	}
	for key, value := range txn.writes {
		s.data[key] = value
	}
	return nil
}

func (s *MemoryStore) List(prefix string, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	var keys []string
	for key := range s.data {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}
	return keys, nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type memoryTxn struct {
	base     map[string][]byte
	writes   map[string][]byte
	deletes  map[string]bool
	writable bool
}

func (t *memoryTxn) Get(key string) ([]byte, error) {
	if t.writable {
		if t.deletes[key] {
			return nil, errors.Wrapf(ErrKeyNotFound, "%s", key)
		}
		if v, ok := t.writes[key]; ok {
			return append([]byte(nil), v...), nil
		}
	}
	v, ok := t.base[key]
	if !ok {
		return nil, errors.Wrapf(ErrKeyNotFound, "%s", key)
	}
	return append([]byte(nil), v...), nil
}

func (t *memoryTxn) Set(key string, value []byte) error {
	if !t.writable {
		return errors.New("set in read-only transaction")
	}
	delete(t.deletes, key)
	t.writes[key] = append([]byte(nil), value...)
	return nil
}

func (t *memoryTxn) Delete(key string) error {
	if !t.writable {
		return errors.New("delete in read-only transaction")
	}
	delete(t.writes, key)
	t.deletes[key] = true
	return nil
}
