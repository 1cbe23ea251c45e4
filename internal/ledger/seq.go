package ledger

import "sync/atomic"

// Sequence is a monotonic logical counter stamping ledger rows.
//
// Thread-safety: Sequence is safe for concurrent use (atomic operations).
type Sequence struct {
	n atomic.Int64
}

// NewSequenceAt creates a sequence whose next value is start+1. Open
// resumes from the highest seq already stored.
func NewSequenceAt(start int64) *Sequence {
	s := &Sequence{}
	s.n.Store(start)
	return s
}

// Next returns the next value.
func (s *Sequence) Next() int64 {
	return s.n.Add(1)
}

// Current returns the last value handed out.
func (s *Sequence) Current() int64 {
	return s.n.Load()
}
