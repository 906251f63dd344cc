package streaming

import "sync"

// completionQueue carries finished jobs from workers to the main thread.
type completionQueue struct {
	mu      sync.Mutex
	pending []completion
}

func newCompletionQueue() *completionQueue {
	return &completionQueue{}
}

func (q *completionQueue) Push(c completion) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, c)
}

// Drain takes every queued completion in arrival order.
func (q *completionQueue) Drain() []completion {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil
	}
	batch := q.pending
	q.pending = nil
	return batch
}

func (q *completionQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
