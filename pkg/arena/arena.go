package arena

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/danwails/lfconcurrent"
	"github.com/danwails/lfconcurrent/internal/debug"
	"github.com/danwails/lfconcurrent/pkg/xunsafe"
	"github.com/danwails/lfconcurrent/pkg/xunsafe/layout"
)

// RequestError reports a rejected Allocate call: size exceeded the arena's
// configured maximum, one page-allocator unit by default.
type RequestError struct {
	Requested int
	Max       int
}

func (e *RequestError) Error() string {
	if e.Max == 0 {
		return "arena: request exceeds maximum allocation size"
	}
	return "arena: requested allocation too large for a single chamber"
}

// chamber is one page-aligned block handed out by the PageAllocator. Chambers
// chain into a singly linked stack through next; cursor is the atomically
// bumped byte offset of the next free position within base.
type chamber struct {
	_      xunsafe.NoCopy
	base   unsafe.Pointer
	size   int
	cursor atomic.Uintptr
	next   atomic.Pointer[chamber]
}

// tryAlloc attempts to claim size bytes aligned to align from this chamber.
// It reports false when the chamber is exhausted; the caller must then grow
// the arena and retry against a different chamber.
func (c *chamber) tryAlloc(size, align int) (unsafe.Pointer, bool) {
	for {
		old := c.cursor.Load()
		aligned := roundUpUintptr(old, uintptr(align))
		want := aligned + uintptr(size)
		if want > uintptr(c.size) {
			return nil, false
		}
		if c.cursor.CompareAndSwap(old, want) {
			return unsafe.Add(c.base, aligned), true
		}
	}
}

func (c *chamber) contains(addr unsafe.Pointer) bool {
	start := uintptr(c.base)
	return uintptr(addr) >= start && uintptr(addr) < start+uintptr(c.size)
}

func roundUpUintptr(v, step uintptr) uintptr {
	if step <= 1 {
		return v
	}
	if r := v % step; r != 0 {
		v += step - r
	}
	return v
}

// Statistics is a point-in-time snapshot of an Arena's chamber accounting.
type Statistics struct {
	ChamberCount int64
	AllocSize    int64 // total bytes requested by callers, pre-alignment padding
	ConsumedSize int64 // total bytes handed out by the page allocator
	FreeSize     int64 // ConsumedSize - bytes bumped past in every chamber
}

// Arena is an append-only bump allocator backed by a growable stack of
// page-aligned chambers. It has no per-allocation free: recycling typed
// allocations is the free-node stack's job (internal/freenode), which is
// built on top of an Arena rather than replacing it.
type Arena struct {
	_ xunsafe.NoCopy

	pages      PageAllocator
	preAlloc   int
	maxRequest int
	align      int
	tag        string

	head  atomic.Pointer[chamber]
	spare atomic.Pointer[chamber]

	chamberCount atomic.Int64
	allocSize    atomic.Int64
	consumed     atomic.Int64
}

// Option configures a new Arena.
type Option func(*Arena)

// WithPreAllocSize overrides the chamber size requested on first growth and
// whenever a chamber does not have room for a request.
func WithPreAllocSize(n int) Option {
	return func(a *Arena) { a.preAlloc = n }
}

// WithMaxRequest overrides the largest single Allocate request the arena
// accepts. The default is one page-allocator unit.
func WithMaxRequest(n int) Option {
	return func(a *Arena) { a.maxRequest = n }
}

// WithDefaultAlign overrides the alignment Allocate uses when called with
// align <= 0.
func WithDefaultAlign(n int) Option {
	return func(a *Arena) { a.align = n }
}

// WithTag attaches a label used only by Dump, to disambiguate multiple
// arenas in diagnostic output.
func WithTag(tag string) Option {
	return func(a *Arena) { a.tag = tag }
}

// New constructs an Arena drawing chambers from pages. A nil pages argument
// selects DefaultPageAllocator for the current build target.
func New(pages PageAllocator, opts ...Option) *Arena {
	if pages == nil {
		pages = DefaultPageAllocator()
	}
	a := &Arena{
		pages:      pages,
		preAlloc:   pages.PageSize(),
		maxRequest: pages.PageSize(),
		align:      32, // same value as lfconcurrent.DefaultAlignSize
		tag:        "arena",
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Allocate returns size bytes aligned to align (align<=0 uses the arena's
// configured default). The fast path is a single atomic bump of the current
// chamber's cursor; Allocate only takes the slow path — installing a new
// chamber — when the current (most recently installed) chamber has no room
// for the request. Older chambers are not searched for leftover space.
func (a *Arena) Allocate(size, align int) (unsafe.Pointer, error) {
	if align <= 0 {
		align = a.align
	}
	if size <= 0 {
		size = 1
	}
	if size > a.maxRequest {
		return nil, &lfconcurrent.Error{
			Kind: lfconcurrent.KindOutOfAddressSpace,
			Op:   "arena.Allocate",
			Err:  &RequestError{Requested: size, Max: a.maxRequest},
		}
	}

	for {
		c := a.head.Load()
		if c == nil {
			if err := a.grow(a.growthSize(size, align)); err != nil {
				return nil, err
			}
			continue
		}
		if p, ok := c.tryAlloc(size, align); ok {
			a.allocSize.Add(int64(size))
			return p, nil
		}
		if err := a.grow(a.growthSize(size, align)); err != nil {
			return nil, err
		}
	}
}

func (a *Arena) growthSize(size, align int) int {
	want := size + align
	if want < a.preAlloc {
		want = a.preAlloc
	}
	return want
}

// grow installs a new chamber with room for at least want bytes. It first
// tries to reclaim a spare chamber stashed by a previous losing grow race,
// only falling through to the page allocator when no spare is usable.
func (a *Arena) grow(want int) error {
	if sp := a.spare.Swap(nil); sp != nil {
		if sp.size >= want {
			a.publish(sp)
			return nil
		}
		// too small to be worth keeping; hand it back.
		_ = a.pages.Release(sp.base, sp.size)
	}

	base, actual, err := a.pages.Allocate(want, 0)
	if err != nil {
		return newArenaError(a.tag, err)
	}
	a.publish(&chamber{base: base, size: actual})
	return nil
}

// publish CASes c onto the chamber stack head. If another goroutine grew the
// arena first, c is kept as a spare rather than pushed underneath the
// winner — the next grow call consumes it before asking the page allocator
// for anything new. Only one spare is kept: if the spare slot is already
// occupied, c is released back to the page allocator. Allocate always retries against
// a.head.Load() after grow returns, so the winner's chamber is tried first
// regardless of which grow call actually installed it.
func (a *Arena) publish(c *chamber) {
	old := a.head.Load()
	c.next.Store(old)
	if a.head.CompareAndSwap(old, c) {
		a.chamberCount.Add(1)
		a.consumed.Add(int64(c.size))
		return
	}
	if !a.spare.CompareAndSwap(nil, c) {
		_ = a.pages.Release(c.base, c.size)
	}
}

// Owns reports whether addr falls within a chamber currently owned by this
// arena. It does not consult the spare slot, which the arena itself has not
// published for use.
func (a *Arena) Owns(addr unsafe.Pointer) bool {
	for c := a.head.Load(); c != nil; c = c.next.Load() {
		if c.contains(addr) {
			return true
		}
	}
	return false
}

// Free reports whether addr was ever handed out by this arena, surfacing
// KindUnexpectedDeallocate when it was not. The arena itself has no
// per-allocation reclaim — Place/PlaceSlice memory is only ever reclaimed
// wholesale, via Close — so Free does not release anything even when addr
// checks out; it exists purely as the detect_unexpected_deallocate-style
// guard a caller that tracks its own deallocation can run before acting on
// a pointer it is about to treat as belonging to this arena.
func (a *Arena) Free(addr unsafe.Pointer) error {
	if a.Owns(addr) {
		return nil
	}
	return &lfconcurrent.Error{
		Kind: lfconcurrent.KindUnexpectedDeallocate,
		Op:   "arena.Free",
		Err:  fmt.Errorf("address %p not owned by this arena", addr),
	}
}

// Stats returns a point-in-time snapshot of chamber accounting.
func (a *Arena) Stats() Statistics {
	var free int64
	count := a.chamberCount.Load()
	for c := a.head.Load(); c != nil; c = c.next.Load() {
		free += int64(c.size) - int64(c.cursor.Load())
	}
	return Statistics{
		ChamberCount: count,
		AllocSize:    a.allocSize.Load(),
		ConsumedSize: a.consumed.Load(),
		FreeSize:     free,
	}
}

// Close releases every chamber back to the page allocator. After Close, any
// outstanding pointer previously returned by Allocate is dangling; Close
// must only be called once the arena's last consumer has gone away.
func (a *Arena) Close() error {
	var firstErr error
	for c := a.head.Swap(nil); c != nil; {
		next := c.next.Load()
		if err := a.pages.Release(c.base, c.size); err != nil && firstErr == nil {
			firstErr = err
		}
		c = next
	}
	if sp := a.spare.Swap(nil); sp != nil {
		if err := a.pages.Release(sp.base, sp.size); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Place allocates room for one T and returns it as a typed, zeroed pointer.
// Arena memory is never scanned by the garbage collector, so nothing may
// rely on a pointer stored inside a placed T to be the sole thing keeping
// its target alive: every such pointer must also be reachable through some
// ordinary, GC-managed root for as long as it matters, or point back into
// this same arena's own placements. internal/hazard's Slot is the case this
// exists for — its published target is always independently rooted by
// whatever structure owns the node, so placing the slot's bookkeeping here
// costs nothing. A T whose pointers have no such independent root —
// arbitrary caller-supplied node payloads, for instance — must stay an
// ordinary Go allocation instead; the lock-free structures built elsewhere
// in this module do exactly that for their node types.
func Place[T any](a *Arena) (*T, error) {
	lay := layout.Of[T]()
	p, err := a.Allocate(lay.Size, lay.Align)
	if err != nil {
		return nil, err
	}
	return xunsafe.Cast[T]((*byte)(p)), nil
}

// PlaceSlice allocates room for n contiguous, zeroed Ts and returns them as
// a slice backed by arena memory. The same reachability constraint
// documented on Place applies to T.
func PlaceSlice[T any](a *Arena, n int) ([]T, error) {
	if n <= 0 {
		return nil, nil
	}
	lay := layout.Of[T]()
	p, err := a.Allocate(lay.Size*n, lay.Align)
	if err != nil {
		return nil, err
	}
	return unsafe.Slice(xunsafe.Cast[T]((*byte)(p)), n), nil
}

// Dump logs a one-line chamber-count/high-water-mark report through the
// process-wide debug Sink, tagged with the arena's tag.
func (a *Arena) Dump(severity debug.Severity) {
	stats := a.Stats()
	debug.Output(severity, 0, "arena %s: chambers=%d alloc=%d consumed=%d free=%d",
		a.tag, stats.ChamberCount, stats.AllocSize, stats.ConsumedSize, stats.FreeSize)
}

// newArenaError wraps a page-allocator failure as the taxonomy's
// KindOutOfAddressSpace, per spec.md §7: "allocate fails with
// OUT_OF_ADDRESS_SPACE when the page allocator declines."
func newArenaError(tag string, err error) error {
	return &lfconcurrent.Error{
		Kind: lfconcurrent.KindOutOfAddressSpace,
		Op:   "arena." + tag,
		Err:  &chamberAllocError{tag: tag, err: err},
	}
}

type chamberAllocError struct {
	tag string
	err error
}

func (e *chamberAllocError) Error() string {
	return "arena " + e.tag + ": chamber allocation failed: " + e.err.Error()
}

func (e *chamberAllocError) Unwrap() error { return e.err }
