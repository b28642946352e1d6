// Package engine wraps the embedded storage engine's native objects in
// single-owner Go types.
//
// The storage semantics (LSM tree, compaction, WAL, transactions) live
// in badger; the rate-limiting math lives in the wrapped token bucket.
// This package adds no algorithmic content of its own: each type owns
// exactly one native object, constructed by a factory that either fully
// succeeds or fails without leaving anything behind, and released by a
// Destroy that is safe to call more than once.
//
// Every wrapper implements handle.Destroyer, so the handle registry can
// run the release exactly once when a foreign caller drops its handle.
package engine
