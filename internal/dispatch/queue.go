package dispatch

import (
	"context"
	"sync"
)

// Queue is an unbounded FIFO of commands with a single consumer.
type Queue struct {
	mu     sync.Mutex
	items  []Command
	notify chan struct{}
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{notify: make(chan struct{}, 1)}
}

// Push appends c. It never blocks.
func (q *Queue) Push(c Command) {
	q.mu.Lock()
	q.items = append(q.items, c)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Pop removes the oldest command, waiting for one if the queue is empty.
func (q *Queue) Pop(ctx context.Context) (Command, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			c := q.items[0]
			q.items[0] = Command{}
			q.items = q.items[1:]
			q.mu.Unlock()
			return c, nil
		}
		q.mu.Unlock()

		select {
		case <-q.notify:
		case <-ctx.Done():
			return Command{}, ctx.Err()
		}
	}
}

// Pending reports whether a command of one of the given kinds is waiting.
func (q *Queue) Pending(kinds ...Kind) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, c := range q.items {
		for _, k := range kinds {
			if c.Kind == k {
				return true
			}
		}
	}
	return false
}

// Len returns the number of waiting commands.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
