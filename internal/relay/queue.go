package relay

import "sync"

// queue is an unbounded thread-safe FIFO for raw frames. Back-pressure is
// accepted risk: a high-rate node can grow it without limit.
type queue struct {
	mu    sync.Mutex
	items []string
}

func (q *queue) push(line string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, line)
}

// drain removes and returns everything queued so far.
func (q *queue) drain() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}
