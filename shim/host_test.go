package shim

import (
	"context"
	"testing"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	kverrors "github.com/shardlight/kvbridge/errors"
)

// instantiateHost registers the shim host module in a fresh wazero
// runtime. Host module exports are callable directly, which is how
// these tests drive the boundary without a guest binary. Calls that
// dereference guest memory are covered by the Go-level tests in
// shim_test.go.
func instantiateHost(t *testing.T) (*Shim, api.Module) {
	t.Helper()
	ctx := context.Background()

	// The interpreter engine is required here: wazero's compiler
	// engines cannot invoke a GoModuleFunction without a wasm caller.
	r := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfigInterpreter())
	t.Cleanup(func() { r.Close(ctx) })

	s := New(nil)
	t.Cleanup(func() { s.Close() })

	mod, err := s.Instantiate(ctx, r)
	if err != nil {
		t.Fatalf("Instantiate failed: %v", err)
	}
	return s, mod
}

func call(t *testing.T, mod api.Module, name string, params ...uint64) []uint64 {
	t.Helper()
	fn := mod.ExportedFunction(name)
	if fn == nil {
		t.Fatalf("host function %q not exported", name)
	}
	results, err := fn.Call(context.Background(), params...)
	if err != nil {
		t.Fatalf("%s trapped: %v", name, err)
	}
	return results
}

func TestHost_ExportsComplete(t *testing.T) {
	_, mod := instantiateHost(t)

	names := []string{
		"ratelimiter_create", "ratelimiter_destroy", "ratelimiter_request", "ratelimiter_available",
		"db_open", "db_open_memory", "db_destroy", "db_put", "db_get", "db_delete",
		"iterator_create", "iterator_destroy", "iterator_seek", "iterator_valid", "iterator_next",
		"iterator_key", "iterator_value",
		"writebatch_create", "writebatch_destroy", "writebatch_put", "writebatch_delete", "writebatch_flush",
		"snapshot_create", "snapshot_destroy", "snapshot_get",
		"last_errno",
	}
	for _, name := range names {
		if mod.ExportedFunction(name) == nil {
			t.Errorf("missing export %q", name)
		}
	}
}

func TestHost_RateLimiterCreateDestroy(t *testing.T) {
	s, mod := instantiateHost(t)

	results := call(t, mod, "ratelimiter_create",
		uint64(1024), uint64(100000), api.EncodeI32(10))
	h := api.DecodeU32(results[0])
	if h == 0 {
		t.Fatal("Expected non-zero handle")
	}

	results = call(t, mod, "last_errno")
	if api.DecodeU32(results[0]) != kverrors.ErrnoOK {
		t.Fatalf("Expected errno OK, got %d", results[0])
	}

	results = call(t, mod, "ratelimiter_available", uint64(h))
	if int64(results[0]) <= 0 {
		t.Fatalf("Expected budget, got %d", int64(results[0]))
	}

	call(t, mod, "ratelimiter_destroy", uint64(h))
	if s.Live() != 0 {
		t.Fatalf("Expected no live handles, got %d", s.Live())
	}

	// Idempotent: a second destroy through the boundary must not trap.
	call(t, mod, "ratelimiter_destroy", uint64(h))

	// The destroyed handle no longer resolves.
	results = call(t, mod, "ratelimiter_available", uint64(h))
	if int64(results[0]) != -1 {
		t.Fatalf("Expected -1 for destroyed handle, got %d", int64(results[0]))
	}
	results = call(t, mod, "last_errno")
	if api.DecodeU32(results[0]) != kverrors.ErrnoNotFound {
		t.Fatalf("Expected errno not_found, got %d", results[0])
	}
}

func TestHost_RateLimiterCreateInvalid(t *testing.T) {
	s, mod := instantiateHost(t)

	results := call(t, mod, "ratelimiter_create",
		uint64(0), uint64(100000), api.EncodeI32(10))
	if api.DecodeU32(results[0]) != 0 {
		t.Fatal("Failed create must return the null handle")
	}

	results = call(t, mod, "last_errno")
	if api.DecodeU32(results[0]) != kverrors.ErrnoInvalidConfig {
		t.Fatalf("Expected errno invalid_config, got %d", results[0])
	}
	if s.Live() != 0 {
		t.Fatal("Failed create must not leak")
	}
}

func TestHost_HandlesNotAliased(t *testing.T) {
	_, mod := instantiateHost(t)

	h1 := api.DecodeU32(call(t, mod, "ratelimiter_create",
		uint64(1024), uint64(100000), api.EncodeI32(10))[0])
	h2 := api.DecodeU32(call(t, mod, "ratelimiter_create",
		uint64(4096), uint64(100000), api.EncodeI32(10))[0])
	if h1 == h2 {
		t.Fatal("Independent creates must yield distinct handles")
	}

	call(t, mod, "ratelimiter_destroy", uint64(h1))

	results := call(t, mod, "ratelimiter_available", uint64(h2))
	if int64(results[0]) <= 0 {
		t.Fatal("Destroying one handle must not affect the other")
	}
}

func TestHost_DBAndSubordinates(t *testing.T) {
	s, mod := instantiateHost(t)

	dbh := api.DecodeU32(call(t, mod, "db_open_memory")[0])
	if dbh == 0 {
		t.Fatal("db_open_memory failed")
	}

	// Empty prefix (len 0) needs no guest memory.
	ith := api.DecodeU32(call(t, mod, "iterator_create",
		uint64(dbh), 0, 0, 0)[0])
	if ith == 0 {
		t.Fatal("iterator_create failed")
	}

	// Fresh database: nothing to iterate.
	if api.DecodeU32(call(t, mod, "iterator_valid", uint64(ith))[0]) != 0 {
		t.Fatal("Iterator over empty db must be invalid")
	}

	wbh := api.DecodeU32(call(t, mod, "writebatch_create", uint64(dbh))[0])
	if wbh == 0 {
		t.Fatal("writebatch_create failed")
	}

	sh := api.DecodeU32(call(t, mod, "snapshot_create", uint64(dbh))[0])
	if sh == 0 {
		t.Fatal("snapshot_create failed")
	}

	if s.Live() != 4 {
		t.Fatalf("Expected 4 live handles, got %d", s.Live())
	}

	// Subordinates first, then the database.
	call(t, mod, "snapshot_destroy", uint64(sh))
	call(t, mod, "writebatch_destroy", uint64(wbh))
	call(t, mod, "iterator_destroy", uint64(ith))
	call(t, mod, "db_destroy", uint64(dbh))

	if s.Live() != 0 {
		t.Fatalf("Expected no live handles, got %d", s.Live())
	}
}

func TestHost_CreateAgainstUnknownDB(t *testing.T) {
	_, mod := instantiateHost(t)

	if api.DecodeU32(call(t, mod, "snapshot_create", uint64(42))[0]) != 0 {
		t.Fatal("snapshot_create against unknown db must return null handle")
	}
	results := call(t, mod, "last_errno")
	if api.DecodeU32(results[0]) != kverrors.ErrnoNotFound {
		t.Fatalf("Expected errno not_found, got %d", results[0])
	}
}
