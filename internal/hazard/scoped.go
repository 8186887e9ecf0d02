package hazard

// Scoped publishes p into slot for the lifetime of a defer-scoped block,
// matching hazard_ptr_scoped_ref: construct with Publish, Close clears. It
// exists for call sites that want the clear to happen even on an early
// return, rather than because Publish/Clear are error-prone to pair by
// hand.
type Scoped[T any] struct {
	slot *Slot[T]
}

// Publish reserves p in slot and returns a handle whose Close clears it.
func Publish[T any](slot *Slot[T], p *T) *Scoped[T] {
	slot.Publish(p)
	return &Scoped[T]{slot: slot}
}

func (s *Scoped[T]) Close() error {
	s.slot.Clear()
	return nil
}
