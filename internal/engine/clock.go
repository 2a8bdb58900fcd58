package engine

import "sync/atomic"

// Sequence numbers the outcomes of a run in the order they were decided.
//
// Overlapping runs on one Orchestrator share a Sequence, so outcome numbers
// stay unique across them and interleavings can be reconstructed from logs.
//
// Thread-safety: Sequence is safe for concurrent use (atomic operations).
type Sequence struct {
	seq atomic.Int64
}

// NewSequence creates a sequence starting at 0.
func NewSequence() *Sequence {
	return &Sequence{}
}

// Next returns the next number. The first call returns 1.
func (s *Sequence) Next() int64 {
	return s.seq.Add(1)
}

// Current returns the last number handed out.
func (s *Sequence) Current() int64 {
	return s.seq.Load()
}
