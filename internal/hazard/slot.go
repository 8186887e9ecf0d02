package hazard

import "sync/atomic"

// Slot is one goroutine's reservation slot: a single published pointer plus
// that goroutine's private retire list. Only the goroutine currently
// holding the slot (status IN_USE, returned by Registry.AcquireSlot) ever
// touches retireHead; every other field is accessed across goroutines and
// is therefore atomic.
type Slot[T any] struct {
	target atomic.Pointer[T]
	status atomic.Int32
	next   atomic.Pointer[Slot[T]]

	registry *Registry[T]

	// retireHead is local to the owning goroutine: no synchronization, by
	// design (Component D never shares this list).
	retireHead *retireEntry[T]
}

// Publish reserves the reference right to p: a concurrent retirer that
// observes p published in any slot must not reclaim it. Publish alone does
// not confer ownership — callers must re-validate p is still reachable from
// the structure they read it from after publishing, per the standard
// hazard pointer protocol.
func (s *Slot[T]) Publish(p *T) {
	s.target.Store(p)
}

// Clear releases the reservation, allowing a concurrent retirer to reclaim
// whatever was previously published here.
func (s *Slot[T]) Clear() {
	s.target.Store(nil)
}

// Retire defers reclamation of p until no slot in the registry has it
// published. p is appended to the calling goroutine's private retire list
// and reclamation is attempted immediately against the registry's current
// state; any entries that remain hazardous stay queued for the next Retire
// call (or goroutine exit) to retry.
func (s *Slot[T]) Retire(p *T, deleter func(*T)) {
	if p == nil {
		return
	}
	e := s.registry.pool.Get()
	e.ptr = p
	e.deleter = deleter
	e.next = s.retireHead
	s.retireHead = e
	s.tryReclaim()
}

// tryReclaim walks the retire list once, reclaiming every entry the
// registry no longer reports as hazardous and leaving the rest queued.
func (s *Slot[T]) tryReclaim() {
	var prev *retireEntry[T]
	cur := s.retireHead
	for cur != nil {
		next := cur.next
		if s.registry.Scan(cur.ptr) {
			prev = cur
			cur = next
			continue
		}
		if cur.deleter != nil {
			cur.deleter(cur.ptr)
		}
		if prev == nil {
			s.retireHead = next
		} else {
			prev.next = next
		}
		s.registry.pool.Put(cur)
		cur = next
	}
}

// release marks the slot UNUSED so a future AcquireSlot call (from any
// goroutine) can reclaim it. Called once the owning goroutine's retire
// list has been drained as far as drainOnExit's retry budget allows.
func (s *Slot[T]) release() {
	s.target.Store(nil)
	s.status.Store(int32(slotUnused))
}
