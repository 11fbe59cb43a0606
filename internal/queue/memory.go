package queue

import (
	"context"
	"sync"
)

// MemoryQueue is an unbounded in-process FIFO.
//
// Nacked messages go back to the head. Messages do not survive the process.
type MemoryQueue struct {
	name   string
	mu     sync.Mutex
	items  [][]byte
	ready  chan struct{}
	done   chan struct{}
	closed bool
}

// NewMemoryQueue creates an empty queue.
func NewMemoryQueue(name string) *MemoryQueue {
	return &MemoryQueue{
		name:  name,
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

func (q *MemoryQueue) Name() string { return q.name }

// Publish appends body to the tail of the queue.
func (q *MemoryQueue) Publish(ctx context.Context, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}

	msg := make([]byte, len(body))
	copy(msg, body)
	q.items = append(q.items, msg)
	q.signal()
	return nil
}

// Consume blocks until a message is available, ctx ends or the queue is closed.
func (q *MemoryQueue) Consume(ctx context.Context) (*Delivery, error) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return nil, ErrClosed
		}
		if len(q.items) > 0 {
			body := q.items[0]
			q.items = q.items[1:]
			if len(q.items) > 0 {
				q.signal()
			}
			q.mu.Unlock()
			return NewDelivery(body, nil, func(context.Context) error { return q.requeue(body) }), nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.done:
			return nil, ErrClosed
		case <-q.ready:
		}
	}
}

// Len returns the number of messages waiting in the queue.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close wakes every blocked consumer. Pending messages are discarded.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.done)
	}
	return nil
}

func (q *MemoryQueue) requeue(body []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	q.items = append([][]byte{body}, q.items...)
	q.signal()
	return nil
}

// signal must be called with mu held.
func (q *MemoryQueue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
