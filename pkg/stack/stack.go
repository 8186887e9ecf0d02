// Package stack provides Stack, a thin value-oriented wrapper around the
// internal lock-free free-node stack. This is the "thin wrapper" public
// surface referenced by the external interface contract: push(value),
// pop() -> (ok, value), size() (approximate).
package stack

import (
	"sync/atomic"

	"github.com/danwails/lfconcurrent/internal/freenode"
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

// Stack is a lock-free LIFO stack of values. The zero value is not usable;
// construct with New.
type Stack[T any] struct {
	data *freenode.Stack[node[T], *node[T]]
	size atomic.Int64
}

// New constructs an empty Stack.
func New[T any]() *Stack[T] {
	return &Stack[T]{data: freenode.NewStack[node[T], *node[T]]()}
}

// Push adds v to the top of the stack.
func (s *Stack[T]) Push(v T) {
	s.data.Push(&node[T]{value: v})
	s.size.Add(1)
}

// Pop removes and returns the value at the top of the stack. ok is false if
// the stack was empty.
func (s *Stack[T]) Pop() (v T, ok bool) {
	n := s.data.Pop()
	if n == nil {
		return v, false
	}
	s.size.Add(-1)
	return n.value, true
}

// Size returns an approximate count of the stack's contents: a counter
// updated optimistically around Push/Pop, not a consistent snapshot under
// concurrent access.
func (s *Stack[T]) Size() int64 {
	return s.size.Load()
}
