package engine

import (
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"go.uber.org/zap"

	"github.com/shardlight/kvbridge/errors"
)

// Options configures a database open.
type Options struct {
	// Dir is the directory the database lives in. Created if missing.
	// Ignored when InMemory is set.
	Dir string

	// InMemory opens a database backed by memory only. Used by tests and
	// the bench workload.
	InMemory bool

	// SyncWrites makes every write durable before it is acknowledged.
	SyncWrites bool
}

// DB wraps one open badger database. It owns the native instance
// exclusively: closing the DB releases it, and subordinate resources
// (iterators, batches, snapshots) must be destroyed first. That ordering
// is the caller's obligation, matching the single-owner discipline of
// the handle layer.
type DB struct {
	db     *badger.DB
	logger *zap.Logger
}

// Open opens a badger database. Fails atomically: on error no DB wrapper
// exists and nothing is left open.
func Open(opts Options) (*DB, error) {
	var bopts badger.Options

	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		info, err := os.Stat(opts.Dir)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, errors.Open("stat database dir", err)
			}
			if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
				return nil, errors.Open("create database dir", err)
			}
		} else if !info.IsDir() {
			return nil, errors.Open(fmt.Sprintf("%s is not a directory", opts.Dir), nil)
		}
		bopts = badger.DefaultOptions(opts.Dir)
	}

	bopts = bopts.WithSyncWrites(opts.SyncWrites)
	bopts.Compression = options.None
	bopts.Logger = newBadgerLogger(Logger())

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, errors.Open("open badger", err)
	}

	return &DB{
		db:     db,
		logger: Logger(),
	}, nil
}

// Put stores a key-value pair.
func (d *DB) Put(key, value []byte) error {
	err := d.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
	if err != nil {
		return errors.Call("db", err)
	}
	return nil
}

// Get returns the value stored under key. A missing key reports
// errors.KindNotFound.
func (d *DB) Get(key []byte) ([]byte, error) {
	var value []byte
	err := d.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, errors.New(errors.PhaseCall, errors.KindNotFound).
				Resource("db").
				Detail("key not found").
				Build()
		}
		return nil, errors.Call("db", err)
	}
	return value, nil
}

// Delete removes a key. Deleting a missing key is not an error.
func (d *DB) Delete(key []byte) error {
	err := d.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
	if err != nil {
		return errors.Call("db", err)
	}
	return nil
}

// NewIterator creates an iterator over keys with the given prefix.
// The iterator owns a read transaction until destroyed.
func (d *DB) NewIterator(prefix []byte, reverse bool) *Iterator {
	txn := d.db.NewTransaction(false)
	iopts := badger.DefaultIteratorOptions
	iopts.Prefix = prefix
	iopts.Reverse = reverse
	it := txn.NewIterator(iopts)
	it.Rewind()

	return &Iterator{
		it:  it,
		txn: txn,
	}
}

// NewWriteBatch creates a write batch against this database.
func (d *DB) NewWriteBatch() *WriteBatch {
	return &WriteBatch{
		wb: d.db.NewWriteBatch(),
	}
}

// NewSnapshot creates a read-only view of the database as of now.
func (d *DB) NewSnapshot() *Snapshot {
	return &Snapshot{
		txn: d.db.NewTransaction(false),
	}
}

// Close releases the badger instance.
func (d *DB) Close() error {
	if d.db == nil {
		return nil
	}
	db := d.db
	d.db = nil
	if err := db.Close(); err != nil {
		d.logger.Warn("badger close failed", zap.Error(err))
		return errors.Call("db", err)
	}
	return nil
}

// Destroy implements handle.Destroyer.
func (d *DB) Destroy() error {
	return d.Close()
}
