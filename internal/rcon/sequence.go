package rcon

import "sync/atomic"

// Sequence hands out request ids for one connection, starting at 1.
type Sequence struct {
	next atomic.Int32
}

// NewSequence creates a sequence whose first id is 1.
func NewSequence() *Sequence {
	s := &Sequence{}
	s.next.Store(1)
	return s
}

// Advance returns the current id and moves the counter forward by one.
func (s *Sequence) Advance() int32 {
	return s.next.Add(1) - 1
}
