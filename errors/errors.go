package errors

import (
	"fmt"
	"strings"
)

// Phase indicates which lifecycle operation the error occurred in
type Phase string

const (
	PhaseOpen     Phase = "open"     // engine/database open
	PhaseCreate   Phase = "create"   // resource construction
	PhaseDestroy  Phase = "destroy"  // resource release
	PhaseCall     Phase = "call"     // operations between create and destroy
	PhaseRegister Phase = "register" // host module registration
)

// Kind categorizes the error
type Kind string

const (
	KindInvalidConfig Kind = "invalid_config"
	KindNotFound      Kind = "not_found"
	KindTypeMismatch  Kind = "type_mismatch"
	KindClosed        Kind = "closed"
	KindExhausted     Kind = "exhausted"
	KindIO            Kind = "io"
)

// Errno codes cross the wasm boundary as u32 values. 0 is success.
// Values are stable; guests compiled against one release must keep
// working against the next.
const (
	ErrnoOK uint32 = iota
	ErrnoInvalidConfig
	ErrnoNotFound
	ErrnoTypeMismatch
	ErrnoClosed
	ErrnoExhausted
	ErrnoIO
	ErrnoUnknown
)

var errnoByKind = map[Kind]uint32{
	KindInvalidConfig: ErrnoInvalidConfig,
	KindNotFound:      ErrnoNotFound,
	KindTypeMismatch:  ErrnoTypeMismatch,
	KindClosed:        ErrnoClosed,
	KindExhausted:     ErrnoExhausted,
	KindIO:            ErrnoIO,
}

// Errno returns the boundary error code for err. nil maps to ErrnoOK,
// errors that are not *Error map to ErrnoUnknown.
func Errno(err error) uint32 {
	if err == nil {
		return ErrnoOK
	}
	if e, ok := err.(*Error); ok {
		if code, ok := errnoByKind[e.Kind]; ok {
			return code
		}
	}
	return ErrnoUnknown
}

// Error is the structured error type used throughout the bridge
type Error struct {
	Cause    error
	Phase    Phase
	Kind     Kind
	Resource string
	Detail   string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Resource != "" {
		b.WriteString(" on ")
		b.WriteString(e.Resource)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Resource sets the resource kind name (e.g. "ratelimiter", "iterator")
func (b *Builder) Resource(name string) *Builder {
	b.err.Resource = name
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// InvalidConfig creates a construction-rejection error for a bad
// configuration field
func InvalidConfig(resource, field string, value any) *Error {
	return &Error{
		Phase:    PhaseCreate,
		Kind:     KindInvalidConfig,
		Resource: resource,
		Detail:   fmt.Sprintf("field %s has invalid value %v", field, value),
	}
}

// NotFound creates an unknown-handle error
func NotFound(phase Phase, resource string, handle uint32) *Error {
	return &Error{
		Phase:    phase,
		Kind:     KindNotFound,
		Resource: resource,
		Detail:   fmt.Sprintf("no live resource for handle %d", handle),
	}
}

// TypeMismatch creates an error for a handle presented as the wrong
// resource kind
func TypeMismatch(phase Phase, want, got string) *Error {
	return &Error{
		Phase:    phase,
		Kind:     KindTypeMismatch,
		Resource: want,
		Detail:   fmt.Sprintf("handle belongs to %s", got),
	}
}

// Closed creates an error for operations against a closed registry or engine
func Closed(phase Phase, resource string) *Error {
	return &Error{
		Phase:    phase,
		Kind:     KindClosed,
		Resource: resource,
		Detail:   "already closed",
	}
}

// Exhausted creates a resource-exhaustion error
func Exhausted(resource, what string) *Error {
	return &Error{
		Phase:    PhaseCreate,
		Kind:     KindExhausted,
		Resource: resource,
		Detail:   what,
	}
}

// Open wraps an engine open failure
func Open(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseOpen,
		Kind:   KindIO,
		Detail: detail,
		Cause:  cause,
	}
}

// Call wraps a failure from an operation on a live resource
func Call(resource string, cause error) *Error {
	return &Error{
		Phase:    PhaseCall,
		Kind:     KindIO,
		Resource: resource,
		Cause:    cause,
	}
}

// Registration creates a host function registration error
func Registration(module, name string, cause error) *Error {
	return &Error{
		Phase:  PhaseRegister,
		Kind:   KindIO,
		Detail: fmt.Sprintf("register %s.%s", module, name),
		Cause:  cause,
	}
}
