// Package tls provides dynamically allocatable, per-goroutine storage with
// destructor-on-exit semantics, the Go analogue of POSIX TLS with
// pthread_key_create's destructor callback.
//
// Go gives goroutines no pthread-style exit hook, so Key relies on
// runtime.SetFinalizer: the per-goroutine record become unreachable once its
// owning goroutine returns (the goroutine-local slot drops the last live
// reference), and the finalizer runs every key's destructor for whatever
// values that record still held. This is GC-timing-dependent rather than
// synchronous at goroutine return, unlike pthread's guarantee — callers that
// need deterministic cleanup on a hot path should not rely on destructor
// timing, only on eventual reclamation.
package tls

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/timandy/routine"
)

// keyState is the shared, refcounted tail of a Key: it outlives the Key
// value itself as long as any goroutine's record still references it, so a
// destructor registered on a Key that has since been discarded still runs
// for every goroutine that was holding a value when it was.
type keyState struct {
	destroy func(any)
	live    atomic.Int32
}

// Key is a dynamically allocated thread-local slot holding a T per
// goroutine. The zero Key is not usable; construct one with KeyCreate.
type Key[T any] struct {
	state *keyState
}

// KeyCreate allocates a new Key. destructor, if non-nil, runs once per
// goroutine that ever held a value for this key, when that goroutine's
// record is finalized (see package doc). destructor must not panic and
// should not block.
func KeyCreate[T any](destructor func(T)) *Key[T] {
	ks := &keyState{}
	if destructor != nil {
		ks.destroy = func(v any) { destructor(v.(T)) }
	}
	return &Key[T]{state: ks}
}

// AliveCount reports how many goroutines currently hold a value for k. This
// is a diagnostic snapshot, not a synchronization point.
func (k *Key[T]) AliveCount() int32 {
	return k.state.live.Load()
}

// record is the per-goroutine bag of (key, value) slots.
type record struct {
	mu    sync.Mutex
	slots map[*keyState]any
}

var local = routine.NewThreadLocalWithInitial[*record](newRecord)

func newRecord() *record {
	r := &record{slots: make(map[*keyState]any)}
	runtime.SetFinalizer(r, finalizeRecord)
	return r
}

// finalizeRecord runs every still-registered destructor for a record that
// has become unreachable, i.e. whose owning goroutine has returned and
// dropped the last reference to its goroutine-local slot.
func finalizeRecord(r *record) {
	r.mu.Lock()
	slots := r.slots
	r.slots = nil
	r.mu.Unlock()

	for ks, v := range slots {
		ks.live.Add(-1)
		if ks.destroy != nil {
			ks.destroy(v)
		}
	}
}

// Set stores v as the calling goroutine's value for k.
func (k *Key[T]) Set(v T) {
	r := local.Get()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, had := r.slots[k.state]; !had {
		k.state.live.Add(1)
	}
	r.slots[k.state] = v
}

// Get returns the calling goroutine's value for k, or the zero value and
// false if none has been Set (or GetOrCreate'd).
func (k *Key[T]) Get() (T, bool) {
	r := local.Get()
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.slots[k.state]
	if !ok {
		var zero T
		return zero, false
	}
	return v.(T), true
}

// GetOrCreate returns the calling goroutine's value for k, calling init to
// lazily construct one the first time this goroutine touches k. This is the
// Go analogue of dynamic_tls::get_tls_instance.
func (k *Key[T]) GetOrCreate(init func() T) T {
	r := local.Get()
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.slots[k.state]; ok {
		return v.(T)
	}
	v := init()
	k.state.live.Add(1)
	r.slots[k.state] = v
	return v
}

// Release removes the calling goroutine's current value for k, running the
// destructor immediately (as if this goroutine had exited right now). Other
// goroutines' values are unaffected: k.state stays reachable through their
// own records regardless of what the caller does with k afterward, so their
// eventual finalization still runs the destructor.
func (k *Key[T]) Release() {
	r := local.Get()
	r.mu.Lock()
	v, had := r.slots[k.state]
	if had {
		delete(r.slots, k.state)
	}
	r.mu.Unlock()

	if had {
		k.state.live.Add(-1)
		if k.state.destroy != nil {
			k.state.destroy(v)
		}
	}
}

// Accessor is a scoped handle over the calling goroutine's slot for k, for
// call sites that want to hold a (key, thread) pair open across a critical
// section instead of repeating Get/Set lookups. Close is a no-op; Accessor
// exists for API symmetry with defer-scoped call sites.
type Accessor[T any] struct {
	key *Key[T]
}

// Accessor returns a scoped handle bound to the calling goroutine's slot.
func (k *Key[T]) Accessor() *Accessor[T] {
	return &Accessor[T]{key: k}
}

func (a *Accessor[T]) Get() (T, bool) { return a.key.Get() }
func (a *Accessor[T]) Set(v T)        { a.key.Set(v) }
func (a *Accessor[T]) Close() error   { return nil }

func (a *Accessor[T]) GetOrCreate(init func() T) T { return a.key.GetOrCreate(init) }
