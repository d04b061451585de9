package db

import (
	"path/filepath"

	"github.com/cockroachdb/errors"
)

const (
	DriverMemory = "memory"
	DriverBadger = "badger"
	DriverSQLite = "sqlite"
)

// Namespace prefixes every key written by the marketplace into a badger DB.
const Namespace = "jobmarket/"

type Options struct {
	Driver     string
	DataDir    string
	SQLitePath string
}

// Open returns the KV selected by opts.Driver.
func Open(opts Options) (KV, error) {
	switch opts.Driver {
	case DriverMemory, "":
		return NewMemoryStore(), nil
	case DriverBadger:
		return NewBadgerStore(opts.DataDir, Namespace)
	case DriverSQLite:
		path := opts.SQLitePath
		if path == "" {
			path = filepath.Join(opts.DataDir, "jobmarket.db")
		}
		return OpenSQLite(path)
	default:
		return nil, errors.Newf("unknown storage driver %q", opts.Driver)
	}
}
