// Package llist implements a hazard-pointer-protected, singly linked list:
// push_front, push_back, pop_front, and a native-iterator snapshot walk.
// Insertion and removal use CAS on the node's next link; traversal
// publishes each node it visits so a concurrent recycler (internal/
// freenode) cannot hand that node's memory to a new owner while this list
// is still reading through it.
package llist

import (
	"iter"
	"sync/atomic"
	"unsafe"

	"github.com/dolthub/maphash"

	"github.com/danwails/lfconcurrent/internal/debug"
	"github.com/danwails/lfconcurrent/internal/freenode"
	"github.com/danwails/lfconcurrent/internal/hazard"
)

// Node is the same link capability internal/freenode requires: a list and
// the free-node stack that recycles its node type share one Node
// constraint and, typically, one hazard registry.
type Node[T any] = freenode.Node[T]

// List is a lock-free singly linked list over node type T/N, using registry
// to protect traversal. registry is normally the same
// *hazard.Registry[T] the node type's internal/freenode.Stack exposes via
// Hazard(), so a node mid-traversal here is recognized as hazardous by the
// stack's own pop, and vice versa.
type List[T any, N Node[T]] struct {
	head     atomic.Pointer[T]
	registry *hazard.Registry[T]
}

// NewList constructs an empty list that publishes traversal hazards into
// registry.
func NewList[T any, N Node[T]](registry *hazard.Registry[T]) *List[T, N] {
	return &List[T, N]{registry: registry}
}

// PushFront inserts n at the head. n must not be linked into any other
// structure.
func (l *List[T, N]) PushFront(n N) {
	for {
		h := l.head.Load()
		n.SetNext(h)
		if l.head.CompareAndSwap(h, (*T)(n)) {
			return
		}
	}
}

// PushBack inserts n at the tail. n must not be linked into any other
// structure.
func (l *List[T, N]) PushBack(n N) {
	n.SetNext(nil)
	slot := l.registry.AcquireSlot()
	defer slot.Clear()

	for {
		if l.head.Load() == nil {
			if l.head.CompareAndSwap(nil, (*T)(n)) {
				return
			}
			continue
		}

		var last N
		l.walk(slot, func(cur N) bool {
			last = cur
			return true
		})
		if last == nil {
			// The list emptied out between the head check above and the
			// walk; retry the whole operation from the top.
			continue
		}
		if last.CompareAndSwapNext(nil, (*T)(n)) {
			return
		}
		// Someone appended after last concurrently; walk again.
	}
}

// PopFront removes and returns the head node, or the zero N if the list is
// empty. The caller owns the returned node; this package never recycles it
// on the caller's behalf, since it has no way to safely extract T's payload
// generically before handing the node back for reuse — see pkg/fifo, which
// recycles popped nodes itself (DESIGN.md records this as a resolved open
// question).
func (l *List[T, N]) PopFront() N {
	slot := l.registry.AcquireSlot()
	defer slot.Clear()

	for {
		h := l.head.Load()
		if h == nil {
			var zero N
			return zero
		}
		slot.Publish(h)
		if l.head.Load() != h {
			continue
		}

		hn := N(h)
		next := hn.GetNext()
		if l.head.CompareAndSwap(h, next) {
			hn.SetNext(nil)
			return hn
		}
	}
}

// walk performs a single hazard-pointer-protected traversal from head,
// calling visit for each node until visit returns false or the list is
// exhausted. On observing a stale link (a concurrent mutation invalidated
// the node this step was about to trust), walk restarts from head rather
// than risk following a link read out from under a recycled node.
func (l *List[T, N]) walk(slot *hazard.Slot[T], visit func(N) bool) {
restart:
	var prev N
	cur := N(l.head.Load())
	for cur != nil {
		slot.Publish((*T)(cur))

		var actual *T
		if prev == nil {
			actual = l.head.Load()
		} else {
			actual = prev.GetNext()
		}
		if actual != (*T)(cur) {
			goto restart
		}

		if !visit(cur) {
			return
		}
		prev = cur
		cur = N(cur.GetNext())
	}
}

// Dump logs the list's current node count through the process-wide debug
// Sink. The walk is unprotected by hazard pointers, like the rest of this
// package's diagnostics, and de-duplicates visited addresses with a
// maphash-backed set so a corrupted or cyclic list cannot spin the dump
// forever.
func (l *List[T, N]) Dump(severity debug.Severity, tag string) {
	hasher := maphash.NewHasher[unsafe.Pointer]()
	visited := make(map[uint64]bool)

	n := 0
	for cur := N(l.head.Load()); cur != nil; cur = N(cur.GetNext()) {
		h := hasher.Hash(unsafe.Pointer(cur))
		if visited[h] {
			debug.Output(severity, 0, "llist %s: cycle detected after %d nodes", tag, n)
			return
		}
		visited[h] = true
		n++
	}
	debug.Output(severity, 0, "llist %s: %d nodes", tag, n)
}

// IterateSnapshot returns a native iterator over the list's contents at
// the moment each element is visited. Like the rest of the hazard-pointer
// protocol, it guarantees the node it is currently visiting will not be
// recycled out from under it; it does not guarantee a single consistent
// snapshot across concurrent mutation (an element pushed or popped during
// iteration may or may not be observed).
func (l *List[T, N]) IterateSnapshot() iter.Seq[N] {
	return func(yield func(N) bool) {
		slot := l.registry.AcquireSlot()
		defer slot.Clear()
		l.walk(slot, func(n N) bool {
			return yield(n)
		})
	}
}
