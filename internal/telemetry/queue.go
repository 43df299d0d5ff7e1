package telemetry

import "sync"

// BoundedQueue is a capacity-limited, insertion-ordered entry buffer.
// When a push would exceed capacity the oldest entry is discarded, so
// producers never block and memory stays bounded under sustained failure.
type BoundedQueue struct {
	mu    sync.Mutex
	buf   []Entry
	head  int
	count int
}

// NewBoundedQueue creates a queue holding at most max entries.
func NewBoundedQueue(max int) *BoundedQueue {
	if max < 1 {
		max = 1
	}
	return &BoundedQueue{buf: make([]Entry, max)}
}

// Push appends e, evicting the oldest entry if the queue is full.
// Overflow is backpressure by design, not an error.
func (q *BoundedQueue) Push(e Entry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.buf)
	if q.count == n {
		q.buf[q.head] = e
		q.head = (q.head + 1) % n
		return
	}
	q.buf[(q.head+q.count)%n] = e
	q.count++
}

// DrainAll returns the full contents in insertion order and empties the
// queue in one critical section. Entries pushed while a drained batch is
// in flight land in the now-empty queue; a second trigger racing the
// first simply drains nothing.
func (q *BoundedQueue) DrainAll() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.count == 0 {
		return nil
	}
	out := make([]Entry, q.count)
	n := len(q.buf)
	for i := 0; i < q.count; i++ {
		out[i] = q.buf[(q.head+i)%n]
	}
	q.head = 0
	q.count = 0
	return out
}

// Len returns the current number of buffered entries.
func (q *BoundedQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Cap returns the configured capacity.
func (q *BoundedQueue) Cap() int {
	return len(q.buf)
}
