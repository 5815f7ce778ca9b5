package host

import "slices"

// messageQueue is a FIFO of owned messages backed by a slice. Push and pop
// are O(1) amortized; the backing array is reused once the queue drains.
type messageQueue struct {
	items []*Message
	head  int
}

// len returns the number of queued messages.
func (q *messageQueue) len() int {
	return len(q.items) - q.head
}

// push appends m at the tail.
func (q *messageQueue) push(m *Message) {
	q.items = append(q.items, m)
}

// pop removes and returns the head, or nil if the queue is empty.
func (q *messageQueue) pop() *Message {
	if q.head == len(q.items) {
		return nil
	}
	m := q.items[q.head]
	q.items[q.head] = nil
	q.head++
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	}
	return m
}

// remove deletes m from the queue and reports whether it was present.
func (q *messageQueue) remove(m *Message) bool {
	live := q.items[q.head:]
	i := slices.Index(live, m)
	if i < 0 {
		return false
	}
	q.items = slices.Delete(q.items, q.head+i, q.head+i+1)
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	}
	return true
}

// drain empties the queue and returns its contents in FIFO order.
func (q *messageQueue) drain() []*Message {
	out := slices.Clone(q.items[q.head:])
	clear(q.items)
	q.items = q.items[:0]
	q.head = 0
	return out
}
