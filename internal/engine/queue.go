package engine

import (
	"sync"

	"github.com/roach88/packrelay/internal/event"
)

// submission is one event waiting for the writer, plus where to send the
// outcome.
type submission struct {
	ev    event.Event
	reply chan Result // buffered, size 1
}

// ingestQueue is a thread-safe bounded FIFO of submissions.
//
// Any number of connection goroutines enqueue; only the Run loop dequeues.
// The queue uses a channel for signaling to enable context-aware waiting
// in the Run loop.
type ingestQueue struct {
	mu       sync.Mutex
	items    []submission
	capacity int
	closed   bool
	signal   chan struct{} // Signals availability (buffered, size 1)
}

// newIngestQueue creates an empty queue holding at most capacity
// submissions. A non-positive capacity means unbounded.
func newIngestQueue(capacity int) *ingestQueue {
	initial := 64
	if capacity > 0 && capacity < initial {
		initial = capacity
	}
	return &ingestQueue{
		items:    make([]submission, 0, initial),
		capacity: capacity,
		signal:   make(chan struct{}, 1),
	}
}

// Enqueue adds a submission to the back of the queue.
// Thread-safe: may be called from any goroutine.
// Returns ErrStopped if the queue is closed and ErrQueueFull if it is at
// capacity.
func (q *ingestQueue) Enqueue(s submission) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrStopped
	}
	if q.capacity > 0 && len(q.items) >= q.capacity {
		return ErrQueueFull
	}

	q.items = append(q.items, s)

	// Signal availability (non-blocking - buffer of 1 coalesces multiple signals)
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return nil
}

// TryDequeue attempts to dequeue without blocking.
// Returns (submission{}, false) if the queue is empty.
func (q *ingestQueue) TryDequeue() (submission, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return submission{}, false
	}

	s := q.items[0]

	// Clear the slot so the event and reply channel can be collected
	q.items[0] = submission{}

	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}

	return s, true
}

// Wait returns a channel that signals when submissions may be available.
// The channel is closed when the queue is closed.
func (q *ingestQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *ingestQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Closed reports whether Close has been called.
func (q *ingestQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close rejects further submissions and wakes the Run loop.
// Already-queued submissions are still drained.
func (q *ingestQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
