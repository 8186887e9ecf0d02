// Package lfconcurrent provides a hazard-pointer-based safe memory
// reclamation subsystem and the lock-free LIFO free-node stack built on top
// of it, the foundation for lock-free containers that can recycle nodes
// despite unbounded reader contention.
package lfconcurrent

import (
	"fmt"

	"github.com/danwails/lfconcurrent/pkg/xerrors"
)

// Kind classifies the error taxonomy the core can surface across its
// boundary. The core never panics across this boundary except via
// debug.Assert in builds tagged "debug"; every other failure is one of
// these kinds, or nil.
type Kind int

const (
	// KindOutOfAddressSpace is returned by pkg/arena.Arena.Allocate when a
	// request cannot be served: either the single request exceeds the
	// arena's configured maximum (rejected before the page allocator is
	// asked), or the page allocator declines to supply a new chamber.
	// Propagated; the caller's allocation fails.
	KindOutOfAddressSpace Kind = iota
	// KindProtocolViolation marks an invariant violation that would corrupt
	// state if acted on — internal/hazard's drainOnExit raises this when a
	// goroutine exits with nodes still hazardous past the reclamation retry
	// budget. Logged at ERR and converted to a leak; never surfaced as a
	// crash.
	KindProtocolViolation
	// KindTLSExhausted would mark the dynamic TLS runtime refusing to mint a
	// new key. internal/tls has no call site for this: its key table is a
	// goroutine-local map with no fixed capacity, unlike the pthread_key_t
	// array this taxonomy was modeled on, so the failure mode it names
	// cannot occur in this port. Kept for taxonomy parity.
	KindTLSExhausted
	// KindUnexpectedDeallocate marks a Free call on a pointer the arena did
	// not allocate: pkg/arena.Arena.Free.
	KindUnexpectedDeallocate
)

func (k Kind) String() string {
	switch k {
	case KindOutOfAddressSpace:
		return "OUT_OF_ADDRESS_SPACE"
	case KindProtocolViolation:
		return "PROTOCOL_VIOLATION"
	case KindTLSExhausted:
		return "TLS_EXHAUSTED"
	case KindUnexpectedDeallocate:
		return "UNEXPECTED_DEALLOCATE"
	default:
		return "UNKNOWN"
	}
}

// Error is the concrete error type returned across the core's boundary.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("lfconcurrent: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("lfconcurrent: %s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether err (or anything it wraps) is an *Error of the given
// Kind.
func Is(err error, kind Kind) bool {
	e, ok := xerrors.AsA[*Error](err)
	return ok && e.Kind == kind
}
