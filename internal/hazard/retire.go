package hazard

import (
	"fmt"
	"time"

	"github.com/danwails/lfconcurrent"
	"github.com/danwails/lfconcurrent/internal/debug"
)

// retireEntry is one (pointer, deleter) pair awaiting reclamation. Entries
// are pooled per Registry to keep Slot.Retire's hot path allocation-free.
type retireEntry[T any] struct {
	ptr     *T
	deleter func(*T)
	next    *retireEntry[T]
}

// drainOnExit is the goroutine-exit counterpart to Retire's immediate best
// effort: it retries reclaiming the slot's residual retire list a bounded
// number of times, sleeping briefly between attempts since a goroutine that
// is exiting has no real-time latency constraint left to honor.
//
// Anything still hazardous after the retry budget is logged at ERR as a
// KindProtocolViolation and leaked rather than freed: there is no
// general-purpose collaborator here to hand an arbitrary T's residual nodes
// off to (the free-node stack's consignment tier exists for exactly this
// problem, but only for nodes that satisfy its Node constraint — see
// internal/freenode). PROTOCOL_VIOLATION is logged, never returned: nothing
// calls drainOnExit synchronously, so there is no caller left to propagate
// it to.
func (s *Slot[T]) drainOnExit() {
	for i := 0; i < hazardScanRetryBudget && s.retireHead != nil; i++ {
		s.tryReclaim()
		if s.retireHead == nil {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if s.retireHead == nil {
		return
	}

	n := 0
	for cur := s.retireHead; cur != nil; cur = cur.next {
		n++
	}
	err := &lfconcurrent.Error{
		Kind: lfconcurrent.KindProtocolViolation,
		Op:   "hazard.drainOnExit",
		Err:  fmt.Errorf("%d node(s) still hazardous after %d-attempt retry budget", n, hazardScanRetryBudget),
	}
	debug.Output(debug.SeverityErr, 0, "hazard: %v, leaking\n%s", err, debug.Stack(2))
	s.retireHead = nil
}
