// Package errors provides structured error types for the kvbridge library.
//
// Errors are categorized by Phase (which lifecycle operation failed) and
// Kind (error category). The Error type carries the resource kind name and
// a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseCreate, errors.KindInvalidConfig).
//		Resource("ratelimiter").
//		Detail("rate must be positive, got %d", rate).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.InvalidConfig("ratelimiter", "rate_bytes_per_sec", 0)
//	err := errors.NotFound(errors.PhaseCall, "iterator", uint32(h))
//
// Every Kind maps to a stable errno code via Errno, which is what crosses
// the wasm boundary when a host function cannot return a Go error.
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
