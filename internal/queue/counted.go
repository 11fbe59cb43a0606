package queue

import (
	"context"
	"sync/atomic"
)

// CountedQueue tracks messages published through it that have not been acknowledged yet.
//
// Only traffic passing through the wrapper is counted, so it is meant for a process that
// owns both ends of the queue.
type CountedQueue struct {
	Queue
	outstanding atomic.Int64
}

// NewCountedQueue wraps q.
func NewCountedQueue(q Queue) *CountedQueue {
	return &CountedQueue{Queue: q}
}

func (c *CountedQueue) Publish(ctx context.Context, body []byte) error {
	c.outstanding.Add(1)
	if err := c.Queue.Publish(ctx, body); err != nil {
		c.outstanding.Add(-1)
		return err
	}
	return nil
}

// Consume hands out deliveries whose Ack releases the count. Nack keeps it.
func (c *CountedQueue) Consume(ctx context.Context) (*Delivery, error) {
	d, err := c.Queue.Consume(ctx)
	if err != nil {
		return nil, err
	}

	var settled atomic.Bool
	ack := func(ctx context.Context) error {
		if err := d.Ack(ctx); err != nil {
			return err
		}
		if settled.CompareAndSwap(false, true) {
			c.outstanding.Add(-1)
		}
		return nil
	}
	return NewDelivery(d.Body, ack, d.Nack), nil
}

// Outstanding returns the number of published messages not yet acknowledged.
func (c *CountedQueue) Outstanding() int64 { return c.outstanding.Load() }

// Idle reports whether every published message has been acknowledged.
func (c *CountedQueue) Idle() bool { return c.Outstanding() == 0 }
