// Package shim exposes the wrapped storage engine to foreign callers as
// a flat surface of create/destroy pairs over opaque handles.
//
// The shim owns a handle registry and nothing else: all storage and
// rate-limiting semantics live in the engine package's wrapped objects.
// Each resource kind (rate limiter, database, iterator, write batch,
// snapshot) follows the same discipline:
//
//	h, err := s.RateLimiterCreate(1024, 100000, 10) // atomic: handle or error
//	...
//	s.RateLimiterDestroy(h) // exactly-once release, no-op when repeated
//
// The same surface is exported to WebAssembly guests as the "kvbridge"
// host module (see Instantiate): flat functions with integer-only
// signatures, handles as u32 (0 = failure), byte payloads crossing as
// (ptr, len) pairs into guest linear memory, and an errno slot readable
// through last_errno.
package shim
