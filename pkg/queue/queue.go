// Package queue buffers inbound messages that arrived ahead of the expected
// target sequence number until the gap before them is filled.
//
// Queues are not safe for concurrent use; the owning session serializes
// access.
package queue

import "github.com/fr3shw3b/fix-session-engine/pkg/fix"

type MessageQueue interface {
	// Enqueue stores msg under seqNum and reports whether it was kept.
	Enqueue(seqNum uint64, msg *fix.Message) bool
	// Dequeue removes and returns the message stored under seqNum.
	Dequeue(seqNum uint64) (*fix.Message, bool)
	// DequeueUpTo discards every entry with a key lower than seqNum.
	DequeueUpTo(seqNum uint64)
	Clear()
	Len() int
}

// New returns an unbounded queue, or a bounded one when capacity > 0.
func New(capacity int) MessageQueue {
	if capacity > 0 {
		return NewBounded(capacity)
	}
	return NewUnbounded()
}

type unboundedQueue struct {
	messages map[uint64]*fix.Message
}

func NewUnbounded() MessageQueue {
	return &unboundedQueue{messages: map[uint64]*fix.Message{}}
}

func (q *unboundedQueue) Enqueue(seqNum uint64, msg *fix.Message) bool {
	q.messages[seqNum] = msg
	return true
}

func (q *unboundedQueue) Dequeue(seqNum uint64) (*fix.Message, bool) {
	msg, ok := q.messages[seqNum]
	if ok {
		delete(q.messages, seqNum)
	}
	return msg, ok
}

func (q *unboundedQueue) DequeueUpTo(seqNum uint64) {
	for seq := range q.messages {
		if seq < seqNum {
			delete(q.messages, seq)
		}
	}
}

func (q *unboundedQueue) Clear() {
	q.messages = map[uint64]*fix.Message{}
}

func (q *unboundedQueue) Len() int {
	return len(q.messages)
}
