// Package queue provides the at-least-once FIFO channels that carry task and answer envelopes.
//
// Consumers receive a [Delivery] and must [Delivery.Ack] it once the message has been handled.
// A delivery that is never acknowledged is returned to the queue: immediately by [Delivery.Nack],
// or on the next [Recoverer.Recover] when the consuming process died.
//
// Two backends exist:
//   - [MemoryQueue] : in-process, for a single binary running every component
//   - [RedisQueue] : a Redis list pair (pending and processing) shared between processes
package queue

import (
	"context"
	"errors"
)

// ErrClosed is returned by operations on a closed queue.
var ErrClosed = errors.New("queue closed")

// Publisher appends messages to the tail of a queue.
type Publisher interface {
	Publish(ctx context.Context, body []byte) error
}

// Consumer takes messages from the head of a queue, blocking until one is available or ctx ends.
type Consumer interface {
	Consume(ctx context.Context) (*Delivery, error)
}

// Queue is a named FIFO channel.
type Queue interface {
	Publisher
	Consumer
	Name() string
	Close() error
}

// Recoverer returns messages left unacknowledged by a previous consumer to the queue.
type Recoverer interface {
	Recover(ctx context.Context) (int, error)
}

// Backlog reports how many messages wait in a queue shared between processes.
type Backlog interface {
	Len(ctx context.Context) (int64, error)
}

// Delivery is a message taken from a queue and not yet acknowledged.
type Delivery struct {
	Body []byte
	ack  func(context.Context) error
	nack func(context.Context) error
}

// NewDelivery wraps body with the callbacks that settle it.
func NewDelivery(body []byte, ack, nack func(context.Context) error) *Delivery {
	return &Delivery{Body: body, ack: ack, nack: nack}
}

// Ack removes the message from the queue for good.
func (d *Delivery) Ack(ctx context.Context) error {
	if d.ack == nil {
		return nil
	}
	return d.ack(ctx)
}

// Nack returns the message to the head of the queue.
func (d *Delivery) Nack(ctx context.Context) error {
	if d.nack == nil {
		return nil
	}
	return d.nack(ctx)
}
