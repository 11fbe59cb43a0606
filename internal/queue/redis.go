package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisQueue stores pending messages in a Redis list and moves each consumed message
// into a processing list until it is acknowledged.
//
// Publish pushes on the left and Consume pops on the right, so the list is FIFO.
type RedisQueue struct {
	client      *redis.Client
	name        string
	processing  string
	pollTimeout time.Duration
}

// NewRedisClient parses a redis:// URL and verifies the server answers.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

// NewRedisQueue creates a queue named name on client.
//
// pollTimeout bounds each blocking pop so Consume notices context cancellation; it defaults to five seconds.
func NewRedisQueue(client *redis.Client, name string, pollTimeout time.Duration) *RedisQueue {
	if pollTimeout <= 0 {
		pollTimeout = 5 * time.Second
	}
	return &RedisQueue{
		client:      client,
		name:        name,
		processing:  name + ":processing",
		pollTimeout: pollTimeout,
	}
}

func (q *RedisQueue) Name() string { return q.name }

// Publish appends body to the tail of the queue.
func (q *RedisQueue) Publish(ctx context.Context, body []byte) error {
	if err := q.client.LPush(ctx, q.name, body).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", q.name, err)
	}
	return nil
}

// Consume atomically moves the head message into the processing list and returns it.
func (q *RedisQueue) Consume(ctx context.Context) (*Delivery, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		body, err := q.client.BLMove(ctx, q.name, q.processing, "RIGHT", "LEFT", q.pollTimeout).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(err, redis.ErrClosed) {
				return nil, ErrClosed
			}
			return nil, fmt.Errorf("failed to consume from %s: %w", q.name, err)
		}

		return NewDelivery(body, q.ackFunc(body), q.nackFunc(body)), nil
	}
}

func (q *RedisQueue) ackFunc(body []byte) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := q.client.LRem(ctx, q.processing, 1, body).Err(); err != nil {
			return fmt.Errorf("failed to ack on %s: %w", q.name, err)
		}
		return nil
	}
}

func (q *RedisQueue) nackFunc(body []byte) func(context.Context) error {
	return func(ctx context.Context) error {
		_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.LRem(ctx, q.processing, 1, body)
			pipe.RPush(ctx, q.name, body)
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to nack on %s: %w", q.name, err)
		}
		return nil
	}
}

// Recover moves every message of the processing list back to the head of the queue.
//
// Only call it when no other consumer of this queue is running.
func (q *RedisQueue) Recover(ctx context.Context) (int, error) {
	moved := 0
	for {
		err := q.client.LMove(ctx, q.processing, q.name, "LEFT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			return moved, nil
		}
		if err != nil {
			return moved, fmt.Errorf("failed to recover %s: %w", q.name, err)
		}
		moved++
	}
}

var (
	_ Recoverer = (*RedisQueue)(nil)
	_ Backlog   = (*RedisQueue)(nil)
)

// Len returns the number of pending messages. Messages being processed are not counted.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.name).Result()
}

// Close is a no-op; the client is shared between queues and closed by its owner.
func (q *RedisQueue) Close() error { return nil }
