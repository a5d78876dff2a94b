package jsonrpc

import "sync/atomic"

// IDGenerator hands out request identifiers. Implementations must be safe for
// concurrent use and must never repeat a value.
type IDGenerator interface {
	Next() ID
}

// Sequence is an IDGenerator producing 1, 2, 3, ... The zero value is ready
// to use.
type Sequence struct {
	last atomic.Int64
}

func NewSequence() *Sequence {
	return &Sequence{}
}

// NewSequenceFrom returns a Sequence whose first id is start.
func NewSequenceFrom(start int64) *Sequence {
	s := &Sequence{}
	s.last.Store(start - 1)
	return s
}

func (s *Sequence) Next() ID {
	return NumberID(s.last.Add(1))
}

// Peek returns the value the next call to Next will hand out.
func (s *Sequence) Peek() int64 {
	return s.last.Load() + 1
}

// IDFunc adapts a function to an IDGenerator.
type IDFunc func() ID

func (f IDFunc) Next() ID {
	return f()
}
