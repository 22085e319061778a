package queue

import "sync/atomic"

// Sequencer stamps batches in arrival order so a sink can discard batches
// that a faster worker already superseded.
type Sequencer struct{ n atomic.Uint64 }

// Next returns the next sequence number, starting at 1.
func (s *Sequencer) Next() uint64 { return s.n.Add(1) }
