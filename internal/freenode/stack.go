package freenode

import (
	"sync"
	"sync/atomic"

	"github.com/danwails/lfconcurrent/internal/debug"
	"github.com/danwails/lfconcurrent/internal/hazard"
	"github.com/danwails/lfconcurrent/internal/tls"
	"github.com/danwails/lfconcurrent/pkg/arena"
)

// Stack is the three-tier free-node stack. The zero value is not usable;
// construct with NewStack.
//
// T is the node payload type; N is *T augmented with the Node[T] link
// operations, so the same generic parameter both names the element type
// and carries its pointer-level capability.
type Stack[T any, N Node[T]] struct {
	freeHead atomic.Pointer[T]

	consignMu   sync.Mutex
	consignHead N // guarded by consignMu

	tlsStash *tls.Key[N]

	// popHead/popNext are the two hazard registries the lock-free
	// free-stack pop uses to close the ABA window (spec's POP_HEAD/
	// POP_NEXT). popHead doubles as the registry external readers use to
	// protect ordinary traversal of nodes recycled through this stack —
	// see Hazard.
	popHead *hazard.Registry[T]
	popNext *hazard.Registry[T]

	// chambers backs both registries' slot bookkeeping (see
	// hazard.WithArena); kept here only so Dump can report on it.
	chambers *arena.Arena

	popRetries atomic.Int64
}

// NewStack constructs an empty free-node stack for node type T/N. Both of
// the stack's hazard registries share a single arena for their slot
// bookkeeping, the Go analogue of the original's
// free_node_stack(alloc_only_chamber* p_allocator_arg) constructor
// threading one chamber allocator through the hazard-pointer array it owns.
func NewStack[T any, N Node[T]]() *Stack[T, N] {
	s := &Stack[T, N]{
		chambers: arena.New(nil, arena.WithTag("freenode")),
	}
	s.tlsStash = tls.KeyCreate[N](s.drainTLSOnExit)
	s.popHead = hazard.NewRegistry[T](
		hazard.WithResidualPublishHandler[T](s.consignResidual),
		hazard.WithArena[T](s.chambers),
	)
	s.popNext = hazard.NewRegistry[T](
		hazard.WithResidualPublishHandler[T](s.consignResidual),
		hazard.WithArena[T](s.chambers),
	)
	return s
}

// Dump logs each tier's current node count through the process-wide debug
// Sink. Not machine-parseable and not stable across versions.
func (s *Stack[T, N]) Dump(severity debug.Severity, tag string) {
	free := 0
	for p := s.freeHead.Load(); p != nil; p = N(p).GetNext() {
		free++
	}

	s.consignMu.Lock()
	consigned := 0
	for n := s.consignHead; n != nil; n = N(n.GetNext()) {
		consigned++
	}
	s.consignMu.Unlock()

	debug.Output(severity, 0, "freenode %s: free=%d consigned=%d", tag, free, consigned)
	s.chambers.Dump(severity)
}

// PopRetries returns the number of times popFromFreeStack has had to retry
// after observing a head or next link change out from under it. Diagnostic
// only, and only meaningful for the lock-free free-stack tier.
func (s *Stack[T, N]) PopRetries() int64 {
	return s.popRetries.Load()
}

// Hazard returns the hazard-pointer registry external readers should use to
// protect ordinary traversal of nodes owned by this stack's node type
// (Component F's llist is the intended caller). A node retired while still
// published here is handled the same as an internal pop candidate: it is
// never freed directly, and if a goroutine exits while still publishing it,
// it is handed to this stack's consignment tier rather than leaked.
func (s *Stack[T, N]) Hazard() *hazard.Registry[T] {
	return s.popHead
}

// scanHazardous reports whether p is currently protected by either of the
// stack's own hazard registries.
func (s *Stack[T, N]) scanHazardous(p *T) bool {
	return s.popHead.Scan(p) || s.popNext.Scan(p)
}

// consignResidual is the handoff invoked when a goroutine exits while still
// publishing a pointer it never cleared nor retired: the pointer cannot be
// dropped (something still expects it back), so it is spliced onto the
// consignment tier for another goroutine to eventually pop.
func (s *Stack[T, N]) consignResidual(p *T) {
	s.consignMu.Lock()
	defer s.consignMu.Unlock()
	s.pushToConsignmentLocked(N(p))
}

// UncheckedBulkPush installs listHead (and its existing next-chain) as the
// free-stack's entire contents, without any hazard check and without CAS.
// This is an initialisation-time-only operation; the caller must guarantee
// no concurrent Push/Pop is in flight. It replaces whatever the free-stack
// currently holds rather than appending to it.
func (s *Stack[T, N]) UncheckedBulkPush(listHead N) {
	s.freeHead.Store((*T)(listHead))
}

// Push offers n for recycling. n must not currently be linked into any
// other structure.
func (s *Stack[T, N]) Push(n N) {
	if s.consignMu.TryLock() {
		s.pushToConsignmentLocked(n)
		if rcy := s.popFromTLSStash(); rcy != nil {
			s.pushToConsignmentLocked(rcy)
		}
		s.consignMu.Unlock()
		return
	}

	if s.scanHazardous((*T)(n)) {
		rcy := s.popFromTLSStash()
		s.pushToTLSStash(n)
		if rcy != nil {
			if s.scanHazardous((*T)(rcy)) {
				s.pushToTLSStash(rcy)
			} else {
				s.pushToFreeStackUnchecked(rcy)
			}
		}
		return
	}

	s.pushToFreeStackUnchecked(n)
}

// Pop obtains a recyclable node, or the zero N if none is available right
// now. A non-zero return is owned by the caller; any hazard publication the
// caller makes on it afterward is the caller's own responsibility.
func (s *Stack[T, N]) Pop() N {
	if n := s.popFromTLSStash(); n != nil {
		return n
	}

	if s.consignMu.TryLock() {
		n := s.popFromConsignmentLocked()
		s.consignMu.Unlock()
		if n != nil {
			return n
		}
	}

	if n := s.popFromFreeStack(); n != nil {
		return n
	}

	if s.consignMu.TryLock() {
		n := s.popFromConsignmentLocked()
		s.consignMu.Unlock()
		if n != nil {
			return n
		}
	}

	var zero N
	return zero
}

func (s *Stack[T, N]) tlsHead() N {
	v, ok := s.tlsStash.Get()
	if !ok {
		var zero N
		return zero
	}
	return v
}

func (s *Stack[T, N]) pushToTLSStash(n N) {
	cur := s.tlsHead()
	n.SetNext((*T)(cur))
	s.tlsStash.Set(n)
}

func (s *Stack[T, N]) popFromTLSStash() N {
	cur := s.tlsHead()
	if cur == nil {
		return cur
	}
	next := N(cur.GetNext())
	cur.SetNext(nil)
	s.tlsStash.Set(next)
	return cur
}

// drainTLSOnExit runs when a goroutine exits with a non-empty TLS stash: the
// entire stashed chain is spliced onto the consignment tier in one
// constant-pointer-update operation (find the chain's tail, link it ahead
// of whatever consignment already holds), rather than dropped a node at a
// time, so a long stash built up under sustained consignment contention is
// never partially lost at exit.
func (s *Stack[T, N]) drainTLSOnExit(head N) {
	if head == nil {
		return
	}

	s.consignMu.Lock()
	defer s.consignMu.Unlock()

	tail := head
	for next := N(tail.GetNext()); next != nil; next = N(tail.GetNext()) {
		tail = next
	}
	tail.SetNext((*T)(s.consignHead))
	s.consignHead = head
}

func (s *Stack[T, N]) pushToConsignmentLocked(n N) {
	n.SetNext((*T)(s.consignHead))
	s.consignHead = n
}

func (s *Stack[T, N]) popFromConsignmentLocked() N {
	n := s.consignHead
	if n == nil {
		return n
	}
	s.consignHead = N(n.GetNext())
	n.SetNext(nil)
	return n
}

// pushToFreeStackUnchecked pushes n onto the lock-free free-stack. The
// caller must have already proved n is not currently hazardous.
func (s *Stack[T, N]) pushToFreeStackUnchecked(n N) {
	for {
		head := s.freeHead.Load()
		n.SetNext(head)
		if s.freeHead.CompareAndSwap(head, (*T)(n)) {
			return
		}
	}
}

// popFromFreeStack is the hazard-protected Treiber pop: POP_HEAD guards the
// head candidate against reclamation mid-pop, POP_NEXT guards the successor
// whose next field the CAS reads, closing the ABA window where another
// goroutine pops h, recycles it, and re-pushes it with a different next.
func (s *Stack[T, N]) popFromFreeStack() N {
	headSlot := s.popHead.AcquireSlot()
	nextSlot := s.popNext.AcquireSlot()

	for {
		h := s.freeHead.Load()
		if h == nil {
			headSlot.Clear()
			nextSlot.Clear()
			var zero N
			return zero
		}

		headSlot.Publish(h)
		if s.freeHead.Load() != h {
			s.popRetries.Add(1)
			continue
		}

		hn := N(h)
		next := hn.GetNext()
		nextSlot.Publish(next)
		if hn.GetNext() != next {
			s.popRetries.Add(1)
			continue
		}

		if s.freeHead.CompareAndSwap(h, next) {
			hn.SetNext(nil)
			headSlot.Clear()
			nextSlot.Clear()
			return hn
		}
		s.popRetries.Add(1)
	}
}
