package engine

import (
	"github.com/dgraph-io/badger/v4"

	"github.com/shardlight/kvbridge/errors"
)

// Iterator walks keys of one database in order. It owns a badger
// iterator plus the read transaction backing it, released together in
// Destroy.
type Iterator struct {
	it  *badger.Iterator
	txn *badger.Txn
}

// Seek positions the iterator at the first key >= key
// (<= key when reversed).
func (i *Iterator) Seek(key []byte) {
	i.it.Seek(key)
}

// Rewind positions the iterator at the first key.
func (i *Iterator) Rewind() {
	i.it.Rewind()
}

// Valid reports whether the iterator points at an entry.
func (i *Iterator) Valid() bool {
	return i.it.Valid()
}

// Next advances the iterator.
func (i *Iterator) Next() {
	i.it.Next()
}

// Key returns a copy of the current key. Only valid while Valid().
func (i *Iterator) Key() []byte {
	return i.it.Item().KeyCopy(nil)
}

// Value returns a copy of the current value. Only valid while Valid().
func (i *Iterator) Value() ([]byte, error) {
	value, err := i.it.Item().ValueCopy(nil)
	if err != nil {
		return nil, errors.Call("iterator", err)
	}
	return value, nil
}

// Destroy closes the iterator and discards its transaction. Safe to
// call more than once.
func (i *Iterator) Destroy() error {
	if i.it != nil {
		i.it.Close()
		i.it = nil
	}
	if i.txn != nil {
		i.txn.Discard()
		i.txn = nil
	}
	return nil
}
