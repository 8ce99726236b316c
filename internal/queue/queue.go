package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"alarming/internal/domain"
)

// ErrClosed indicates operations on a closed queue.
var ErrClosed = errors.New("queue closed")

// Queue decouples ingestion throughput from processing throughput.
// Params: publish and bounded-timeout poll operations.
// Returns: cluster-wide FIFO of alert events, multi-producer and
// multi-consumer; Poll returns (nil, nil) when the timeout elapses empty.
type Queue interface {
	Publish(ctx context.Context, event domain.AlertEvent) error
	Poll(ctx context.Context, timeout time.Duration) (*domain.AlertEvent, error)
	Close() error
}

// MemoryQueue is a channel-backed queue for single-instance mode.
// Params: buffered event channel.
// Returns: queue implementation without external dependencies.
type MemoryQueue struct {
	events    chan domain.AlertEvent
	closeOnce sync.Once
	done      chan struct{}
}

// NewMemoryQueue creates a buffered in-process queue.
// Params: buffer capacity (minimum 1).
// Returns: initialized queue.
func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &MemoryQueue{
		events: make(chan domain.AlertEvent, capacity),
		done:   make(chan struct{}),
	}
}

// Publish enqueues one event, honoring context cancellation for backpressure.
// Params: context and event.
// Returns: ErrClosed after Close, context error on cancellation.
func (q *MemoryQueue) Publish(ctx context.Context, event domain.AlertEvent) error {
	select {
	case <-q.done:
		return ErrClosed
	default:
	}
	select {
	case q.events <- event:
		return nil
	case <-q.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Poll dequeues one event or returns empty after the bounded timeout.
// Params: context and poll timeout.
// Returns: event pointer, (nil, nil) on empty timeout, ErrClosed after Close.
func (q *MemoryQueue) Poll(ctx context.Context, timeout time.Duration) (*domain.AlertEvent, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case event := <-q.events:
		return &event, nil
	case <-timer.C:
		return nil, nil
	case <-q.done:
		// Drain remaining buffered events before reporting closed.
		select {
		case event := <-q.events:
			return &event, nil
		default:
			return nil, ErrClosed
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close marks the queue closed for producers and consumers.
// Params: none.
// Returns: nil.
func (q *MemoryQueue) Close() error {
	q.closeOnce.Do(func() { close(q.done) })
	return nil
}
