package shim

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/shardlight/kvbridge/engine"
	kverrors "github.com/shardlight/kvbridge/errors"
	"github.com/shardlight/kvbridge/handle"
)

// leakCounter tracks create/destroy balance through registry events.
type leakCounter struct {
	created   int
	destroyed int
}

func (l *leakCounter) OnHandleEvent(e handle.Event) {
	switch e.Type {
	case handle.EventCreated:
		l.created++
	case handle.EventDestroyed:
		l.destroyed++
	}
}

func newTestShim(t *testing.T) *Shim {
	t.Helper()
	s := New(nil)
	t.Cleanup(func() { s.Close() })
	return s
}

func openTestDB(t *testing.T, s *Shim) handle.Handle {
	t.Helper()
	dbh, err := s.DBOpen(engine.Options{InMemory: true})
	if err != nil {
		t.Fatalf("DBOpen failed: %v", err)
	}
	return dbh
}

func TestShim_RateLimiterLifecycle(t *testing.T) {
	s := newTestShim(t)

	h, err := s.RateLimiterCreate(1024, 100000, 10)
	if err != nil {
		t.Fatalf("RateLimiterCreate failed: %v", err)
	}
	if h == 0 {
		t.Fatal("Expected non-zero handle")
	}
	if s.LastErrno() != kverrors.ErrnoOK {
		t.Fatalf("Expected errno OK, got %d", s.LastErrno())
	}

	avail, err := s.RateLimiterAvailable(h)
	if err != nil {
		t.Fatalf("RateLimiterAvailable failed: %v", err)
	}
	if avail <= 0 {
		t.Fatalf("Expected budget, got %d", avail)
	}

	s.RateLimiterDestroy(h)
	if s.Live() != 0 {
		t.Fatalf("Expected no live handles, got %d", s.Live())
	}

	// Second destroy is a no-op, and the handle no longer resolves.
	s.RateLimiterDestroy(h)
	if _, err := s.RateLimiterAvailable(h); err == nil {
		t.Fatal("Destroyed handle must not resolve")
	}
	if s.LastErrno() != kverrors.ErrnoNotFound {
		t.Fatalf("Expected errno not_found, got %d", s.LastErrno())
	}
}

func TestShim_RateLimiterCreateInvalid(t *testing.T) {
	s := newTestShim(t)

	h, err := s.RateLimiterCreate(0, 100000, 10)
	if err == nil {
		t.Fatal("Expected failure for zero rate")
	}
	if h != 0 {
		t.Fatal("No handle may escape a failed create")
	}
	if s.Live() != 0 {
		t.Fatal("Failed create must not leak a slot")
	}
	if s.LastErrno() != kverrors.ErrnoInvalidConfig {
		t.Fatalf("Expected errno invalid_config, got %d", s.LastErrno())
	}
}

func TestShim_HandlesNeverAlias(t *testing.T) {
	s := newTestShim(t)

	h1, _ := s.RateLimiterCreate(1024, 100000, 10)
	h2, _ := s.RateLimiterCreate(2048, 100000, 10)
	if h1 == h2 {
		t.Fatal("Independent creates must yield distinct handles")
	}

	s.RateLimiterDestroy(h1)

	if _, err := s.RateLimiterAvailable(h2); err != nil {
		t.Fatal("Destroying one handle must not affect the other")
	}
}

func TestShim_DBLifecycle(t *testing.T) {
	s := newTestShim(t)
	dbh := openTestDB(t, s)

	if err := s.DBPut(dbh, []byte("k"), []byte("v")); err != nil {
		t.Fatalf("DBPut failed: %v", err)
	}

	got, err := s.DBGet(dbh, []byte("k"))
	if err != nil {
		t.Fatalf("DBGet failed: %v", err)
	}
	if !bytes.Equal(got, []byte("v")) {
		t.Fatalf("DBGet = %q, want %q", got, "v")
	}

	if err := s.DBDelete(dbh, []byte("k")); err != nil {
		t.Fatalf("DBDelete failed: %v", err)
	}
	if _, err := s.DBGet(dbh, []byte("k")); err == nil {
		t.Fatal("Expected not-found after delete")
	}

	s.DBDestroy(dbh)
	if err := s.DBPut(dbh, []byte("k"), []byte("v")); err == nil {
		t.Fatal("Destroyed db handle must not resolve")
	}
}

func TestShim_CrossKindHandleRejected(t *testing.T) {
	s := newTestShim(t)
	dbh := openTestDB(t, s)

	// A db handle is not a rate limiter handle even while live.
	if _, err := s.RateLimiterAvailable(dbh); err == nil {
		t.Fatal("Cross-kind handle use must fail")
	}

	var kvErr *kverrors.Error
	_, err := s.RateLimiterAvailable(dbh)
	if !stderrors.As(err, &kvErr) || kvErr.Kind != kverrors.KindNotFound {
		t.Fatalf("Expected not_found, got %v", err)
	}
}

func TestShim_IteratorFlow(t *testing.T) {
	s := newTestShim(t)
	dbh := openTestDB(t, s)

	for i := 0; i < 3; i++ {
		if err := s.DBPut(dbh, []byte(fmt.Sprintf("it/%d", i)), []byte{byte(i)}); err != nil {
			t.Fatalf("DBPut failed: %v", err)
		}
	}

	ith, err := s.IteratorCreate(dbh, []byte("it/"), false)
	if err != nil {
		t.Fatalf("IteratorCreate failed: %v", err)
	}

	var keys []string
	for s.IteratorValid(ith) {
		key, err := s.IteratorKey(ith)
		if err != nil {
			t.Fatalf("IteratorKey failed: %v", err)
		}
		keys = append(keys, string(key))
		if err := s.IteratorNext(ith); err != nil {
			t.Fatalf("IteratorNext failed: %v", err)
		}
	}
	if len(keys) != 3 {
		t.Fatalf("Expected 3 keys, got %v", keys)
	}

	s.IteratorDestroy(ith)
	if s.IteratorValid(ith) {
		t.Fatal("Destroyed iterator must report invalid")
	}
}

func TestShim_IteratorCreateOnBadDB(t *testing.T) {
	s := newTestShim(t)

	h, err := s.IteratorCreate(handle.Handle(99), nil, false)
	if err == nil || h != 0 {
		t.Fatal("Iterator create against unknown db must fail with no handle")
	}
}

func TestShim_WriteBatchFlow(t *testing.T) {
	s := newTestShim(t)
	dbh := openTestDB(t, s)

	wbh, err := s.WriteBatchCreate(dbh)
	if err != nil {
		t.Fatalf("WriteBatchCreate failed: %v", err)
	}

	for i := 0; i < 5; i++ {
		if err := s.WriteBatchPut(wbh, []byte(fmt.Sprintf("wb/%d", i)), []byte("x")); err != nil {
			t.Fatalf("WriteBatchPut failed: %v", err)
		}
	}
	if err := s.WriteBatchFlush(wbh); err != nil {
		t.Fatalf("WriteBatchFlush failed: %v", err)
	}
	s.WriteBatchDestroy(wbh)

	if _, err := s.DBGet(dbh, []byte("wb/3")); err != nil {
		t.Fatalf("Flushed write not visible: %v", err)
	}
}

func TestShim_SnapshotFlow(t *testing.T) {
	s := newTestShim(t)
	dbh := openTestDB(t, s)

	if err := s.DBPut(dbh, []byte("k"), []byte("old")); err != nil {
		t.Fatalf("DBPut failed: %v", err)
	}

	sh, err := s.SnapshotCreate(dbh)
	if err != nil {
		t.Fatalf("SnapshotCreate failed: %v", err)
	}

	if err := s.DBPut(dbh, []byte("k"), []byte("new")); err != nil {
		t.Fatalf("DBPut failed: %v", err)
	}

	got, err := s.SnapshotGet(sh, []byte("k"))
	if err != nil {
		t.Fatalf("SnapshotGet failed: %v", err)
	}
	if !bytes.Equal(got, []byte("old")) {
		t.Fatalf("Snapshot saw %q, want %q", got, "old")
	}

	s.SnapshotDestroy(sh)
}

func TestShim_NoLeaksAcrossWorkload(t *testing.T) {
	s := newTestShim(t)
	counter := &leakCounter{}
	s.Registry().Subscribe(counter)

	dbh := openTestDB(t, s)
	lh, _ := s.RateLimiterCreate(1<<20, 100000, 10)
	ith, _ := s.IteratorCreate(dbh, nil, false)
	wbh, _ := s.WriteBatchCreate(dbh)
	sh, _ := s.SnapshotCreate(dbh)

	s.SnapshotDestroy(sh)
	s.WriteBatchDestroy(wbh)
	s.IteratorDestroy(ith)
	s.RateLimiterDestroy(lh)
	s.DBDestroy(dbh)

	if counter.created != 5 || counter.destroyed != 5 {
		t.Fatalf("created=%d destroyed=%d, want 5/5", counter.created, counter.destroyed)
	}
	if s.Live() != 0 {
		t.Fatalf("Expected zero live handles, got %d", s.Live())
	}
}

func TestShim_CloseDestroysEverything(t *testing.T) {
	s := New(nil)
	dbh, err := s.DBOpen(engine.Options{InMemory: true})
	if err != nil {
		t.Fatalf("DBOpen failed: %v", err)
	}
	if _, err := s.RateLimiterCreate(1024, 100000, 10); err != nil {
		t.Fatalf("RateLimiterCreate failed: %v", err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if s.Live() != 0 {
		t.Fatal("Close must destroy all live handles")
	}

	if _, err := s.DBGet(dbh, []byte("k")); err == nil {
		t.Fatal("Handles must not survive Close")
	}
	if _, err := s.DBOpen(engine.Options{InMemory: true}); err == nil {
		t.Fatal("Create after Close must fail")
	}
}
