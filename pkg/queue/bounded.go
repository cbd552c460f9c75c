package queue

import "github.com/fr3shw3b/fix-session-engine/pkg/fix"

// boundedQueue holds at most capacity entries. When full, a message below
// the lowest buffered key evicts the highest one; anything else is dropped.
// Entries closest to the current gap are the ones worth keeping.
type boundedQueue struct {
	capacity int
	messages map[uint64]*fix.Message
}

func NewBounded(capacity int) MessageQueue {
	return &boundedQueue{
		capacity: capacity,
		messages: make(map[uint64]*fix.Message, capacity),
	}
}

func (q *boundedQueue) Enqueue(seqNum uint64, msg *fix.Message) bool {
	if _, exists := q.messages[seqNum]; exists || len(q.messages) < q.capacity {
		q.messages[seqNum] = msg
		return true
	}

	lowest, highest := q.bounds()
	if seqNum > lowest {
		return false
	}
	delete(q.messages, highest)
	q.messages[seqNum] = msg
	return true
}

func (q *boundedQueue) Dequeue(seqNum uint64) (*fix.Message, bool) {
	msg, ok := q.messages[seqNum]
	if ok {
		delete(q.messages, seqNum)
	}
	return msg, ok
}

func (q *boundedQueue) DequeueUpTo(seqNum uint64) {
	for seq := range q.messages {
		if seq < seqNum {
			delete(q.messages, seq)
		}
	}
}

func (q *boundedQueue) Clear() {
	q.messages = make(map[uint64]*fix.Message, q.capacity)
}

func (q *boundedQueue) Len() int {
	return len(q.messages)
}

func (q *boundedQueue) bounds() (lowest, highest uint64) {
	first := true
	for seq := range q.messages {
		if first || seq < lowest {
			lowest = seq
		}
		if first || seq > highest {
			highest = seq
		}
		first = false
	}
	return lowest, highest
}
