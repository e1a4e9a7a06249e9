// Package sink buffers output messages between drains.
package sink

import "npcsim.ai/internal/protocol"

// Sink is owned by the main loop and is not safe for concurrent use.
type Sink struct {
	buf     []protocol.Message
	nextSeq uint64
}

func New() *Sink { return &Sink{nextSeq: 1} }

// Push stamps each message with the next sequence number and buffers it.
func (s *Sink) Push(msgs ...protocol.Message) {
	for _, m := range msgs {
		m.Seq = s.nextSeq
		s.nextSeq++
		s.buf = append(s.buf, m)
	}
}

// Drain returns everything pushed since the last drain, in push order, and
// empties the buffer. The returned slice is owned by the caller.
func (s *Sink) Drain() []protocol.Message {
	out := s.buf
	s.buf = nil
	return out
}

func (s *Sink) Len() int { return len(s.buf) }
