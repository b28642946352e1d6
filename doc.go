// Package kvbridge exposes an embedded key-value storage engine to
// WebAssembly guests through opaque, exclusively owned handles.
//
// The storage engine (badger) and the rate-limiting token bucket do the
// hard work; this library owns only the boundary: constructing engine
// objects, returning opaque handles, and freeing them symmetrically.
//
// # Architecture Overview
//
// The library is organized into packages with distinct responsibilities:
//
//	kvbridge/            Root package documentation
//	├── handle/          Foreign-handle registry (ownership slots, kinds, observers)
//	├── engine/          Single-owner wrappers over badger and the rate limiter
//	├── shim/            Flat create/destroy surface and the wazero host module
//	├── errors/          Structured error types with boundary errno codes
//	└── cmd/kvbridge/    Guest runner, handle inspector TUI, bench workload
//
// # Quick Start
//
// Mount the shim into a wazero runtime and run a guest:
//
//	s := shim.New(logger)
//	defer s.Close()
//
//	r := wazero.NewRuntime(ctx)
//	defer r.Close(ctx)
//
//	if _, err := s.Instantiate(ctx, r); err != nil {
//	    log.Fatal(err)
//	}
//	// instantiate the guest; it imports the "kvbridge" host module
//
// Guests see flat functions with integer-only signatures:
//
//	(import "kvbridge" "ratelimiter_create" (func (param i64 i64 i32) (result i32)))
//	(import "kvbridge" "ratelimiter_destroy" (func (param i32)))
//
// # Ownership Model
//
// Every handle owns exactly one native resource, exclusively. Create is
// atomic: either a live handle is returned or the operation fails and
// nothing is allocated. Destroy releases the native resource exactly
// once; destroying an already-destroyed handle is a no-op. Use after
// destroy is undefined by contract and is the caller's obligation to
// avoid, matching the single-owner discipline of the wrapped engine's
// own API.
//
// # Thread Safety
//
// The registry serializes its own table operations. It does not
// serialize use of a resource against its own destruction; the owner
// must not destroy a handle concurrently with other calls on it.
package kvbridge
