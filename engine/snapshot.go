package engine

import (
	"github.com/dgraph-io/badger/v4"

	"github.com/shardlight/kvbridge/errors"
)

// Snapshot is a read-only view of the database at the moment it was
// created. Writes committed afterwards are not visible through it. It
// owns a read transaction until destroyed.
type Snapshot struct {
	txn *badger.Txn
}

// Get returns the value stored under key as of the snapshot.
func (s *Snapshot) Get(key []byte) ([]byte, error) {
	item, err := s.txn.Get(key)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, errors.New(errors.PhaseCall, errors.KindNotFound).
				Resource("snapshot").
				Detail("key not found").
				Build()
		}
		return nil, errors.Call("snapshot", err)
	}
	value, err := item.ValueCopy(nil)
	if err != nil {
		return nil, errors.Call("snapshot", err)
	}
	return value, nil
}

// Destroy discards the backing transaction. Safe to call more than once.
func (s *Snapshot) Destroy() error {
	if s.txn != nil {
		s.txn.Discard()
		s.txn = nil
	}
	return nil
}
