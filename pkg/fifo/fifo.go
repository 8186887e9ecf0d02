// Package fifo provides FIFO, a thin value-oriented wrapper combining the
// lock-free linked list and free-node stack into an ordered queue with an
// extra push_head operation: push(value), push_head(value), pop() ->
// (ok, value), size() (approximate).
package fifo

import (
	"sync/atomic"

	"github.com/danwails/lfconcurrent/internal/freenode"
	"github.com/danwails/lfconcurrent/internal/llist"
)

type node[T any] struct {
	value T
	next  atomic.Pointer[node[T]]
}

func (n *node[T]) GetNext() *node[T]  { return n.next.Load() }
func (n *node[T]) SetNext(p *node[T]) { n.next.Store(p) }
func (n *node[T]) CompareAndSwapNext(old, new *node[T]) bool {
	return n.next.CompareAndSwap(old, new)
}

// FIFO is a lock-free ordered queue of values. The zero value is not
// usable; construct with New.
//
// Nodes are drawn from and returned to pool rather than allocated fresh on
// every push: list and pool share one hazard registry (pool.Hazard()), so
// a node mid-traversal in list is recognized as hazardous by pool's own
// pop, and vice versa.
type FIFO[T any] struct {
	pool *freenode.Stack[node[T], *node[T]]
	list *llist.List[node[T], *node[T]]
	size atomic.Int64
}

// New constructs an empty FIFO.
func New[T any]() *FIFO[T] {
	pool := freenode.NewStack[node[T], *node[T]]()
	return &FIFO[T]{
		pool: pool,
		list: llist.NewList[node[T], *node[T]](pool.Hazard()),
	}
}

func (f *FIFO[T]) allocNode(v T) *node[T] {
	n := f.pool.Pop()
	if n == nil {
		n = &node[T]{}
	}
	n.value = v
	return n
}

// Push adds v at the tail of the queue.
func (f *FIFO[T]) Push(v T) {
	f.list.PushBack(f.allocNode(v))
	f.size.Add(1)
}

// PushHead adds v at the head of the queue, ahead of everything already
// queued.
func (f *FIFO[T]) PushHead(v T) {
	f.list.PushFront(f.allocNode(v))
	f.size.Add(1)
}

// Pop removes and returns the value at the head of the queue. ok is false
// if the queue was empty. The node backing the popped value is returned to
// pool for reuse by a later Push/PushHead.
func (f *FIFO[T]) Pop() (v T, ok bool) {
	n := f.list.PopFront()
	if n == nil {
		return v, false
	}
	v = n.value
	var zero T
	n.value = zero
	f.size.Add(-1)
	f.pool.Push(n)
	return v, true
}

// Size returns an approximate count of the queue's contents: a counter
// updated optimistically around Push/PushHead/Pop, not a consistent
// snapshot under concurrent access.
func (f *FIFO[T]) Size() int64 {
	return f.size.Load()
}
