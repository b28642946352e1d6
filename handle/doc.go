// Package handle provides the foreign-handle registry for native engine
// resources.
//
// Resources are opaque handles representing engine-side objects (rate
// limiters, databases, iterators, write batches, snapshots) that can be
// passed to and from foreign callers. The caller holding a handle is its
// sole owner; there is no sharing and no reference counting.
//
// # Lifecycle
//
// Each handle moves through exactly three states:
//
//	Uninitialized -> Live -> Destroyed
//
// Create is atomic: either the wrapper exists and a live handle is
// returned, or the operation fails and no handle escapes. Destroy empties
// the ownership slot and runs the wrapper's destructor exactly once;
// destroying an already-empty slot is a no-op, never a fault. Destroyed
// is terminal.
//
// # Registry
//
// The Registry maps integer handles to wrapper values:
//
//	reg := handle.NewRegistry()
//
//	// Store a wrapper, get a handle
//	h, err := reg.Create(handle.KindRateLimiter, limiter)
//
//	// Retrieve by handle
//	value, ok := reg.Get(h)
//
//	// Release: runs limiter.Destroy() exactly once
//	reg.Destroy(h)
//
// # Kind Safety
//
// Handles are kind-tagged. A handle minted for one resource kind is not
// visible when presented as another:
//
//	value, ok := reg.GetKind(h, handle.KindRateLimiter) // ok
//	value, ok := reg.GetKind(h, handle.KindIterator)    // !ok
//
// The generic View gives each shim a compile-time-typed slice of the
// shared slab:
//
//	limiters := handle.View[*engine.RateLimiter](reg, handle.KindRateLimiter)
//	h, err := limiters.Create(limiter)
//	l, ok := limiters.Get(h)
//
// # Observers
//
// Register observers to track handle lifecycle events; the interactive
// inspector and the leak checks in tests are built on this:
//
//	reg.Subscribe(myObserver) // receives EventCreated / EventDestroyed
//
// # Memory Management
//
// Native resources are not garbage collected. The foreign caller must
// destroy every handle it creates; Close releases whatever is still live
// when a registry is torn down.
package handle
