package shim

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/shardlight/kvbridge/engine"
	"github.com/shardlight/kvbridge/errors"
	"github.com/shardlight/kvbridge/handle"
)

// Shim is the flat boundary surface over the wrapped engine. Every
// resource kind gets one create/destroy pair with identical ownership
// discipline; the calls in between are pass-throughs into the native
// object behind the handle.
//
// Create operations are atomic: on failure no handle escapes and the
// half-built native object, if any, is released before returning.
// Destroy operations never fail; destroying an already-destroyed
// handle is a no-op.
type Shim struct {
	registry  *handle.Registry
	limiters  *handle.Typed[*engine.RateLimiter]
	dbs       *handle.Typed[*engine.DB]
	iterators *handle.Typed[*engine.Iterator]
	batches   *handle.Typed[*engine.WriteBatch]
	snapshots *handle.Typed[*engine.Snapshot]
	logger    *zap.Logger
	lastErrno atomic.Uint32
}

// New creates a shim with an empty handle registry. A nil logger
// disables logging.
func New(logger *zap.Logger) *Shim {
	if logger == nil {
		logger = zap.NewNop()
	}

	registry := handle.NewRegistry()
	return &Shim{
		registry:  registry,
		limiters:  handle.View[*engine.RateLimiter](registry, handle.KindRateLimiter),
		dbs:       handle.View[*engine.DB](registry, handle.KindDB),
		iterators: handle.View[*engine.Iterator](registry, handle.KindIterator),
		batches:   handle.View[*engine.WriteBatch](registry, handle.KindWriteBatch),
		snapshots: handle.View[*engine.Snapshot](registry, handle.KindSnapshot),
		logger:    logger,
	}
}

// Registry exposes the handle registry for observers (inspector, leak
// accounting in tests).
func (s *Shim) Registry() *handle.Registry {
	return s.registry
}

// Live returns the number of live handles across all resource kinds.
func (s *Shim) Live() int {
	return s.registry.Len()
}

// LastErrno returns the boundary error code of the most recent failed
// operation, or ErrnoOK. It is reset by every operation, matching the
// errno convention foreign guests expect.
func (s *Shim) LastErrno() uint32 {
	return s.lastErrno.Load()
}

// Close destroys every live handle and shuts the registry down.
func (s *Shim) Close() error {
	return s.registry.Close()
}

// fail records err in the errno slot and returns it unchanged.
func (s *Shim) fail(err error) error {
	s.lastErrno.Store(errors.Errno(err))
	return err
}

func (s *Shim) ok() {
	s.lastErrno.Store(errors.ErrnoOK)
}

// --- rate limiter ---

// RateLimiterCreate constructs a rate limiter and returns its handle.
func (s *Shim) RateLimiterCreate(rateBytesPerSec, refillPeriodUs int64, fairness int32) (handle.Handle, error) {
	limiter, err := engine.NewRateLimiter(engine.RateLimiterConfig{
		RateBytesPerSec: rateBytesPerSec,
		RefillPeriodUs:  refillPeriodUs,
		Fairness:        fairness,
	})
	if err != nil {
		return 0, s.fail(err)
	}

	h, err := s.limiters.Create(limiter)
	if err != nil {
		limiter.Destroy()
		return 0, s.fail(errors.Closed(errors.PhaseCreate, "ratelimiter"))
	}

	s.ok()
	s.logger.Debug("ratelimiter created",
		zap.Uint32("handle", uint32(h)),
		zap.Int64("rate_bytes_per_sec", rateBytesPerSec),
		zap.Int64("refill_period_us", refillPeriodUs),
		zap.Int32("fairness", fairness))
	return h, nil
}

// RateLimiterDestroy releases the limiter behind h. No-op on empty
// handles.
func (s *Shim) RateLimiterDestroy(h handle.Handle) {
	if s.limiters.Destroy(h) {
		s.logger.Debug("ratelimiter destroyed", zap.Uint32("handle", uint32(h)))
	}
}

// RateLimiterRequest blocks until n bytes of budget are available.
func (s *Shim) RateLimiterRequest(h handle.Handle, n int64) error {
	limiter, ok := s.limiters.Get(h)
	if !ok {
		return s.fail(errors.NotFound(errors.PhaseCall, "ratelimiter", uint32(h)))
	}
	limiter.Request(n)
	s.ok()
	return nil
}

// RateLimiterAvailable returns the budget currently available.
func (s *Shim) RateLimiterAvailable(h handle.Handle) (int64, error) {
	limiter, ok := s.limiters.Get(h)
	if !ok {
		return 0, s.fail(errors.NotFound(errors.PhaseCall, "ratelimiter", uint32(h)))
	}
	s.ok()
	return limiter.Available(), nil
}

// --- database ---

// DBOpen opens a database and returns its handle.
func (s *Shim) DBOpen(opts engine.Options) (handle.Handle, error) {
	db, err := engine.Open(opts)
	if err != nil {
		return 0, s.fail(err)
	}

	h, err := s.dbs.Create(db)
	if err != nil {
		db.Close()
		return 0, s.fail(errors.Closed(errors.PhaseCreate, "db"))
	}

	s.ok()
	s.logger.Info("database opened",
		zap.Uint32("handle", uint32(h)),
		zap.String("dir", opts.Dir),
		zap.Bool("in_memory", opts.InMemory))
	return h, nil
}

// DBDestroy closes the database behind h. Subordinate handles must be
// destroyed first; that ordering is the caller's obligation.
func (s *Shim) DBDestroy(h handle.Handle) {
	if s.dbs.Destroy(h) {
		s.logger.Info("database closed", zap.Uint32("handle", uint32(h)))
	}
}

// DBPut stores a key-value pair.
func (s *Shim) DBPut(h handle.Handle, key, value []byte) error {
	db, ok := s.dbs.Get(h)
	if !ok {
		return s.fail(errors.NotFound(errors.PhaseCall, "db", uint32(h)))
	}
	if err := db.Put(key, value); err != nil {
		return s.fail(err)
	}
	s.ok()
	return nil
}

// DBGet returns the value stored under key.
func (s *Shim) DBGet(h handle.Handle, key []byte) ([]byte, error) {
	db, ok := s.dbs.Get(h)
	if !ok {
		return nil, s.fail(errors.NotFound(errors.PhaseCall, "db", uint32(h)))
	}
	value, err := db.Get(key)
	if err != nil {
		return nil, s.fail(err)
	}
	s.ok()
	return value, nil
}

// DBDelete removes a key.
func (s *Shim) DBDelete(h handle.Handle, key []byte) error {
	db, ok := s.dbs.Get(h)
	if !ok {
		return s.fail(errors.NotFound(errors.PhaseCall, "db", uint32(h)))
	}
	if err := db.Delete(key); err != nil {
		return s.fail(err)
	}
	s.ok()
	return nil
}

// --- iterator ---

// IteratorCreate creates an iterator over dbh with the given prefix.
func (s *Shim) IteratorCreate(dbh handle.Handle, prefix []byte, reverse bool) (handle.Handle, error) {
	db, ok := s.dbs.Get(dbh)
	if !ok {
		return 0, s.fail(errors.NotFound(errors.PhaseCreate, "db", uint32(dbh)))
	}

	it := db.NewIterator(prefix, reverse)
	h, err := s.iterators.Create(it)
	if err != nil {
		it.Destroy()
		return 0, s.fail(errors.Closed(errors.PhaseCreate, "iterator"))
	}

	s.ok()
	return h, nil
}

// IteratorDestroy releases the iterator behind h.
func (s *Shim) IteratorDestroy(h handle.Handle) {
	s.iterators.Destroy(h)
}

// IteratorSeek positions the iterator at the first key >= key.
func (s *Shim) IteratorSeek(h handle.Handle, key []byte) error {
	it, ok := s.iterators.Get(h)
	if !ok {
		return s.fail(errors.NotFound(errors.PhaseCall, "iterator", uint32(h)))
	}
	it.Seek(key)
	s.ok()
	return nil
}

// IteratorValid reports whether the iterator points at an entry.
// An empty handle reports false rather than erroring, so guests can
// use it as a plain loop condition.
func (s *Shim) IteratorValid(h handle.Handle) bool {
	it, ok := s.iterators.Get(h)
	if !ok {
		return false
	}
	return it.Valid()
}

// IteratorNext advances the iterator.
func (s *Shim) IteratorNext(h handle.Handle) error {
	it, ok := s.iterators.Get(h)
	if !ok {
		return s.fail(errors.NotFound(errors.PhaseCall, "iterator", uint32(h)))
	}
	it.Next()
	s.ok()
	return nil
}

// IteratorKey returns a copy of the current key.
func (s *Shim) IteratorKey(h handle.Handle) ([]byte, error) {
	it, ok := s.iterators.Get(h)
	if !ok {
		return nil, s.fail(errors.NotFound(errors.PhaseCall, "iterator", uint32(h)))
	}
	s.ok()
	return it.Key(), nil
}

// IteratorValue returns a copy of the current value.
func (s *Shim) IteratorValue(h handle.Handle) ([]byte, error) {
	it, ok := s.iterators.Get(h)
	if !ok {
		return nil, s.fail(errors.NotFound(errors.PhaseCall, "iterator", uint32(h)))
	}
	value, err := it.Value()
	if err != nil {
		return nil, s.fail(err)
	}
	s.ok()
	return value, nil
}

// --- write batch ---

// WriteBatchCreate creates a write batch against dbh.
func (s *Shim) WriteBatchCreate(dbh handle.Handle) (handle.Handle, error) {
	db, ok := s.dbs.Get(dbh)
	if !ok {
		return 0, s.fail(errors.NotFound(errors.PhaseCreate, "db", uint32(dbh)))
	}

	wb := db.NewWriteBatch()
	h, err := s.batches.Create(wb)
	if err != nil {
		wb.Destroy()
		return 0, s.fail(errors.Closed(errors.PhaseCreate, "writebatch"))
	}

	s.ok()
	return h, nil
}

// WriteBatchDestroy cancels and releases the batch behind h.
func (s *Shim) WriteBatchDestroy(h handle.Handle) {
	s.batches.Destroy(h)
}

// WriteBatchPut queues a key-value pair.
func (s *Shim) WriteBatchPut(h handle.Handle, key, value []byte) error {
	wb, ok := s.batches.Get(h)
	if !ok {
		return s.fail(errors.NotFound(errors.PhaseCall, "writebatch", uint32(h)))
	}
	if err := wb.Put(key, value); err != nil {
		return s.fail(err)
	}
	s.ok()
	return nil
}

// WriteBatchDelete queues a key removal.
func (s *Shim) WriteBatchDelete(h handle.Handle, key []byte) error {
	wb, ok := s.batches.Get(h)
	if !ok {
		return s.fail(errors.NotFound(errors.PhaseCall, "writebatch", uint32(h)))
	}
	if err := wb.Delete(key); err != nil {
		return s.fail(err)
	}
	s.ok()
	return nil
}

// WriteBatchFlush applies all queued writes.
func (s *Shim) WriteBatchFlush(h handle.Handle) error {
	wb, ok := s.batches.Get(h)
	if !ok {
		return s.fail(errors.NotFound(errors.PhaseCall, "writebatch", uint32(h)))
	}
	if err := wb.Flush(); err != nil {
		return s.fail(err)
	}
	s.ok()
	return nil
}

// --- snapshot ---

// SnapshotCreate creates a point-in-time read view of dbh.
func (s *Shim) SnapshotCreate(dbh handle.Handle) (handle.Handle, error) {
	db, ok := s.dbs.Get(dbh)
	if !ok {
		return 0, s.fail(errors.NotFound(errors.PhaseCreate, "db", uint32(dbh)))
	}

	snap := db.NewSnapshot()
	h, err := s.snapshots.Create(snap)
	if err != nil {
		snap.Destroy()
		return 0, s.fail(errors.Closed(errors.PhaseCreate, "snapshot"))
	}

	s.ok()
	return h, nil
}

// SnapshotDestroy releases the snapshot behind h.
func (s *Shim) SnapshotDestroy(h handle.Handle) {
	s.snapshots.Destroy(h)
}

// SnapshotGet returns the value stored under key as of the snapshot.
func (s *Shim) SnapshotGet(h handle.Handle, key []byte) ([]byte, error) {
	snap, ok := s.snapshots.Get(h)
	if !ok {
		return nil, s.fail(errors.NotFound(errors.PhaseCall, "snapshot", uint32(h)))
	}
	value, err := snap.Get(key)
	if err != nil {
		return nil, s.fail(err)
	}
	s.ok()
	return value, nil
}
