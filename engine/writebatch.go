package engine

import (
	"github.com/dgraph-io/badger/v4"

	"github.com/shardlight/kvbridge/errors"
)

// WriteBatch accumulates writes and applies them in one shot on Flush.
// It owns a badger write batch until destroyed.
type WriteBatch struct {
	wb *badger.WriteBatch
}

// Put queues a key-value pair.
func (w *WriteBatch) Put(key, value []byte) error {
	if err := w.wb.Set(key, value); err != nil {
		return errors.Call("writebatch", err)
	}
	return nil
}

// Delete queues a key removal.
func (w *WriteBatch) Delete(key []byte) error {
	if err := w.wb.Delete(key); err != nil {
		return errors.Call("writebatch", err)
	}
	return nil
}

// Flush applies all queued writes. The batch accepts no further writes
// afterwards; the owner is still expected to destroy it.
func (w *WriteBatch) Flush() error {
	if err := w.wb.Flush(); err != nil {
		return errors.Call("writebatch", err)
	}
	return nil
}

// Destroy cancels anything not flushed and releases the batch. Safe to
// call more than once, and safe after Flush.
func (w *WriteBatch) Destroy() error {
	if w.wb != nil {
		w.wb.Cancel()
		w.wb = nil
	}
	return nil
}
