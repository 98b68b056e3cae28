package coordinator

import (
	"context"
	"sync/atomic"

	"github.com/xkilldash9x/autopass/internal/attempt"
)

// FoundSignal is the only state shared between workers. It is written at
// most once per run; later writes are no-ops.
type FoundSignal struct {
	winner atomic.Pointer[attempt.Candidate]
	cancel context.CancelFunc
}

// NewFoundSignal creates a signal that calls cancel on its first write.
func NewFoundSignal(cancel context.CancelFunc) *FoundSignal {
	return &FoundSignal{cancel: cancel}
}

// Set records c as the winner if none is set yet and reports whether this
// call won.
func (f *FoundSignal) Set(c attempt.Candidate) bool {
	if !f.winner.CompareAndSwap(nil, &c) {
		return false
	}
	if f.cancel != nil {
		f.cancel()
	}
	return true
}

// Found reports whether a winner has been recorded.
func (f *FoundSignal) Found() bool { return f.winner.Load() != nil }

// Winner returns the recorded candidate.
func (f *FoundSignal) Winner() (attempt.Candidate, bool) {
	c := f.winner.Load()
	if c == nil {
		return attempt.Candidate{}, false
	}
	return *c, true
}
