package engine

import "sync/atomic"

// Sequence is the monotonic logical clock that stamps journal events.
//
// Every event gets a strictly increasing seq. Ordering comes from seq, never
// from wall-clock time, so traces of identical runs are identical.
//
// Sequence is safe for concurrent use.
type Sequence struct {
	seq atomic.Int64
}

// NewSequence creates a sequence starting at 0.
func NewSequence() *Sequence {
	return &Sequence{}
}

// NewSequenceAt creates a sequence starting at start. Used to continue a
// journal after the last stored event.
func NewSequenceAt(start int64) *Sequence {
	s := &Sequence{}
	s.seq.Store(start)
	return s
}

// Next returns the next sequence number.
func (s *Sequence) Next() int64 {
	return s.seq.Add(1)
}

// Current returns the last issued sequence number.
func (s *Sequence) Current() int64 {
	return s.seq.Load()
}
