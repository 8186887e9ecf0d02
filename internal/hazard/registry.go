// Package hazard implements hazard-pointer-based safe memory reclamation: a
// registry of per-goroutine reservation slots (Component C) plus the
// per-slot retire list each goroutine drains against that registry
// (Component D).
//
// A reader wishing to dereference a shared pointer first publishes it into
// its slot, re-validates the pointer is still current, and only then
// dereferences it; it clears the slot when done. A writer that wants to
// reclaim a node it removed from a structure retires it instead of freeing
// it directly: the retire list defers the free until no slot anywhere in
// the registry still has that pointer published.
package hazard

import (
	"sync/atomic"

	"github.com/danwails/lfconcurrent/internal/debug"
	"github.com/danwails/lfconcurrent/internal/tls"
	"github.com/danwails/lfconcurrent/internal/xsync"
	"github.com/danwails/lfconcurrent/pkg/arena"
)

// hazardScanRetryBudget bounds the best-effort reclamation loop a slot runs
// at goroutine exit before giving up and leaking whatever is still
// hazardous. Mirrors the root package's HazardScanRetryBudget.
const hazardScanRetryBudget = 10

type slotStatus int32

const (
	slotUnused slotStatus = iota
	slotInUse
)

// Registry is an append-only, reuse-on-acquire list of hazard slots, one
// per goroutine that has ever called AcquireSlot. Slots are never freed,
// only recycled: a goroutine that exits releases its slot back to the
// UNUSED pool instead of removing it from the list, so a long-running
// process's slot count tracks its peak concurrency, not its total
// goroutine churn. New slots are allocated from the registry's arena
// (see WithArena) rather than the plain Go heap; a slot's published target
// is always independently rooted elsewhere (the structure it was read
// from, or whichever goroutine currently owns it), so the arena never
// becomes the only thing keeping a published pointer's target alive.
type Registry[T any] struct {
	head  atomic.Pointer[Slot[T]]
	count atomic.Int64

	local *tls.Key[*Slot[T]]
	pool  xsync.Pool[retireEntry[T]]

	onResidualPublish func(*T)

	arena *arena.Arena
}

// Option configures a Registry at construction.
type Option[T any] func(*Registry[T])

// WithArena routes a Registry's slot allocation through a shared arena
// instead of the plain Go heap. This mirrors the original's
// free_node_stack(alloc_only_chamber* p_allocator_arg) constructor, which
// threads its chamber allocator into the hazard-pointer array it owns
// rather than heap-allocating it separately. A Registry given no arena
// constructs its own default-configured one, so this option only matters
// when callers want several registries sharing one set of chambers (see
// internal/freenode.NewStack, whose two registries share one arena).
func WithArena[T any](a *arena.Arena) Option[T] {
	return func(r *Registry[T]) { r.arena = a }
}

// WithResidualPublishHandler registers a callback invoked when a goroutine
// exits while still publishing a pointer it never cleared nor retired. Such
// a pointer cannot simply be dropped: some other caller handed it to this
// goroutine expecting it back eventually. The free-node stack (Component E)
// wires this to its consignment tier; a registry with no handler leaks the
// pointer silently, which is only appropriate for read-only traversal
// hazards that never owned what they published.
func WithResidualPublishHandler[T any](f func(*T)) Option[T] {
	return func(r *Registry[T]) { r.onResidualPublish = f }
}

// NewRegistry constructs an empty Registry.
func NewRegistry[T any](opts ...Option[T]) *Registry[T] {
	r := &Registry[T]{}
	for _, opt := range opts {
		opt(r)
	}
	if r.arena == nil {
		r.arena = arena.New(nil)
	}
	r.pool.Reset = func(e *retireEntry[T]) {
		e.ptr = nil
		e.deleter = nil
		e.next = nil
	}
	r.local = tls.KeyCreate[*Slot[T]](func(s *Slot[T]) {
		s.drainOnExit()
		if p := s.target.Load(); p != nil {
			s.target.Store(nil)
			if r.onResidualPublish != nil {
				r.onResidualPublish(p)
			}
		}
		s.release()
	})
	return r
}

// AcquireSlot returns the calling goroutine's hazard slot, lazily claiming
// one from the free list (or appending a new one) on first use. The same
// slot is returned on every subsequent call from the same goroutine until
// that goroutine exits.
func (r *Registry[T]) AcquireSlot() *Slot[T] {
	if s, ok := r.local.Get(); ok && s != nil {
		return s
	}
	s := r.requestSlot()
	r.local.Set(s)
	return s
}

// requestSlot scans the existing slot list for one marked UNUSED, racing
// other goroutines to claim it with a CAS; failing that, it appends a new
// slot onto the list head.
func (r *Registry[T]) requestSlot() *Slot[T] {
	for cur := r.head.Load(); cur != nil; cur = cur.next.Load() {
		if cur.status.Load() == int32(slotUnused) {
			if cur.status.CompareAndSwap(int32(slotUnused), int32(slotInUse)) {
				return cur
			}
		}
	}

	ns, err := arena.Place[Slot[T]](r.arena)
	if err != nil {
		// AcquireSlot has no error return across its contract; fall back to
		// an ordinary heap allocation rather than fail the caller outright
		// when the arena's page allocator is exhausted.
		debug.Output(debug.SeverityErr, 0, "hazard: arena allocation for a new slot failed, falling back to heap: %v", err)
		ns = &Slot[T]{}
	}
	ns.registry = r
	ns.status.Store(int32(slotInUse))
	for {
		cur := r.head.Load()
		ns.next.Store(cur)
		if r.head.CompareAndSwap(cur, ns) {
			r.count.Add(1)
			return ns
		}
	}
}

// Scan reports whether p is currently published in any slot in the
// registry, meaning some goroutine may still be dereferencing it.
func (r *Registry[T]) Scan(p *T) bool {
	if p == nil {
		return false
	}
	for cur := r.head.Load(); cur != nil; cur = cur.next.Load() {
		if cur.target.Load() == p {
			return true
		}
	}
	return false
}

// Count returns the number of distinct slots the registry has ever
// allocated (claimed or free), a diagnostic upper bound on peak
// concurrency.
func (r *Registry[T]) Count() int64 {
	return r.count.Load()
}

// Dump logs one line per live slot's currently published pointer through
// the process-wide debug Sink.
func (r *Registry[T]) Dump(severity debug.Severity) {
	n := 0
	for cur := r.head.Load(); cur != nil; cur = cur.next.Load() {
		n++
		debug.Output(severity, 0, "hazard: slot %d status=%v target=%p", n, slotStatus(cur.status.Load()), cur.target.Load())
	}
}

func (s slotStatus) String() string {
	if s == slotInUse {
		return "IN_USE"
	}
	return "UNUSED"
}
