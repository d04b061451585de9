package db

import (
	"database/sql"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	_ "github.com/mattn/go-sqlite3"
)

const createKVTable = `CREATE TABLE IF NOT EXISTS kv (
	key   TEXT PRIMARY KEY,
	value BLOB NOT NULL
)`

// SQLStore keeps the key space in a single sqlite table.
type SQLStore struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, errors.Wrap(err, "create sqlite dir")
		}
	}

	sdb, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	// One connection keeps ":memory:" databases alive and serializes writers.
	sdb.SetMaxOpenConns(1)

	s, err := NewSQLStore(sdb)
	if err != nil {
		sdb.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLStore wraps an already opened database and creates the kv table.
func NewSQLStore(sdb *sql.DB) (*SQLStore, error) {
	if _, err := sdb.Exec(createKVTable); err != nil {
		return nil, errors.Wrap(err, "create kv table")
	}
	return &SQLStore{db: sdb}, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) View(fn func(txn Txn) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer tx.Rollback()
	return fn(&sqlTxn{tx: tx})
}

func (s *SQLStore) Update(fn func(txn Txn) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	if err := fn(&sqlTxn{tx: tx}); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit")
	}
	return nil
}

func (s *SQLStore) List(prefix string, limit int) ([]string, error) {
	query := `SELECT key FROM kv WHERE substr(key, 1, ?) = ? ORDER BY key`
	args := []any{len(prefix), prefix}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list keys")
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, errors.Wrap(err, "scan key")
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

type sqlTxn struct {
	tx *sql.Tx
}

func (t *sqlTxn) Get(key string) ([]byte, error) {
	var value []byte
	err := t.tx.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(ErrKeyNotFound, "%s", key)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get %s", key)
	}
	return value, nil
}

func (t *sqlTxn) Set(key string, value []byte) error {
	_, err := t.tx.Exec(`INSERT INTO kv (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return errors.Wrapf(err, "set %s", key)
}

func (t *sqlTxn) Delete(key string) error {
	_, err := t.tx.Exec(`DELETE FROM kv WHERE key = ?`, key)
	return errors.Wrapf(err, "delete %s", key)
}
