// Package freenode implements the three-tier lock-free free-node stack:
// a per-goroutine TLS stash, a mutex-guarded consignment tier for
// cross-goroutine handoff, and a lock-free Treiber free-stack protected
// against ABA by a pair of hazard-pointer registries.
package freenode

// Node is the capability a type must provide to be managed by a Stack: a
// mutable, CAS-able next link. This is the Go translation of the source's
// compile-time is_callable_lifo_free_node_if<NODE_T> trait probe — a
// static interface bound instead of a SFINAE metafunction, mechanical
// rather than semantic, and just as free at runtime.
type Node[T any] interface {
	*T
	GetNext() *T
	SetNext(*T)
	CompareAndSwapNext(old, new *T) bool
}
