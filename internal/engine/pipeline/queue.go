package pipeline

import (
	"sync"

	"BotnetSpectra/internal/capture"
)

// queue is a bounded FIFO of frames. The bound is checked under the same
// lock as the push, so concurrent producers can never overfill it.
type queue struct {
	mu    sync.Mutex
	max   int
	items []capture.Frame
	head  int
}

func newQueue(max int) *queue {
	return &queue{max: max}
}

// push appends f unless the queue is full.
func (q *queue) push(f capture.Frame) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items)-q.head >= q.max {
		return false
	}
	q.items = append(q.items, f)
	return true
}

func (q *queue) pop() (capture.Frame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.head == len(q.items) {
		return capture.Frame{}, false
	}
	f := q.items[q.head]
	q.items[q.head] = capture.Frame{}
	q.head++
	switch {
	case q.head == len(q.items):
		q.items, q.head = q.items[:0], 0
	case q.head > 1024 && q.head > len(q.items)/2:
		n := copy(q.items, q.items[q.head:])
		q.items, q.head = q.items[:n], 0
	}
	return f, true
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}
