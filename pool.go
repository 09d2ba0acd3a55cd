package journal

import "sync"

// pool owns the fixed array of LogCopies slots plus the admission and
// sequence-ordering state shared across them. cond is a single condition
// variable standing in for every wait channel a transaction might need:
// both backpressured BeginOp callers and committers waiting for their
// sequence number's turn to install block on it, and every state change
// that could unblock either broadcasts on it.
type pool struct {
	mu   sync.Mutex
	cond *sync.Cond

	slots  []*slot
	active int

	copiesCommitted int
	seqNbr          uint64
}

func newPool(slots []*slot) *pool {
	p := &pool{slots: slots}
	p.cond = sync.NewCond(&p.mu)
	return p
}
