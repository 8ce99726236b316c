package consumer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"alarming/internal/domain"
	"alarming/internal/metrics"
	"alarming/internal/permanent"
	"alarming/internal/queue"
)

// Handler processes one polled alert event.
// Params: context and validated event.
// Returns: error when the event should be retried.
type Handler interface {
	ProcessEvent(ctx context.Context, event domain.AlertEvent) error
}

// Options tunes the consumer pool.
// Params: worker count, poll timeout, retry bound and delay, and
// shutdown drain grace.
// Returns: consumer runtime options.
type Options struct {
	Workers       int
	PollTimeout   time.Duration
	MaxRetryCount int
	RetryDelay    time.Duration
	ShutdownGrace time.Duration
}

// Consumer drains the alert event queue with a fixed worker pool.
// Params: queue, handler, and pool options.
// Returns: at-most-once delivery with bounded retry; exhausted events
// are dropped with an error log and counter.
type Consumer struct {
	queue   queue.Queue
	handler Handler
	logger  *slog.Logger
	options Options

	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// New creates the consumer pool.
// Params: queue, handler, logger, and options.
// Returns: initialized consumer; call Start to launch the workers.
func New(q queue.Queue, handler Handler, logger *slog.Logger, options Options) *Consumer {
	if options.Workers < 1 {
		options.Workers = 1
	}
	if options.PollTimeout <= 0 {
		options.PollTimeout = time.Second
	}
	if options.MaxRetryCount < 0 {
		options.MaxRetryCount = 0
	}
	if options.RetryDelay <= 0 {
		options.RetryDelay = 500 * time.Millisecond
	}
	if options.ShutdownGrace <= 0 {
		options.ShutdownGrace = 5 * time.Second
	}
	return &Consumer{queue: q, handler: handler, logger: logger, options: options}
}

// Start launches the worker pool.
// Params: parent context bounding all workers.
// Returns: none.
func (c *Consumer) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	for i := 0; i < c.options.Workers; i++ {
		c.wg.Add(1)
		go c.worker(ctx)
	}
}

// Stop cancels polling and waits up to the drain grace for workers.
// Params: none.
// Returns: none; workers past the grace are abandoned.
func (c *Consumer) Stop() {
	c.once.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		drained := make(chan struct{})
		go func() {
			c.wg.Wait()
			close(drained)
		}()
		select {
		case <-drained:
		case <-time.After(c.options.ShutdownGrace):
			if c.logger != nil {
				c.logger.Warn("consumer drain grace elapsed, abandoning workers")
			}
		}
	})
}

// worker polls and processes events until the context ends.
// Params: context bounding the worker.
// Returns: none.
func (c *Consumer) worker(ctx context.Context) {
	defer c.wg.Done()
	for {
		if ctx.Err() != nil {
			return
		}
		event, err := c.queue.Poll(ctx, c.options.PollTimeout)
		if err != nil {
			if ctx.Err() != nil || err == queue.ErrClosed {
				return
			}
			if c.logger != nil {
				c.logger.Error("queue poll failed", "error", err.Error())
			}
			c.wait(ctx, c.options.PollTimeout)
			continue
		}
		if event == nil {
			continue
		}
		c.handleEvent(ctx, *event)
	}
}

// handleEvent invokes the handler with bounded fixed-delay retry.
// Params: context and polled event.
// Returns: none; 1+MaxRetryCount failed attempts drop the event with
// an error log and counter, permanent errors drop without retry.
func (c *Consumer) handleEvent(ctx context.Context, event domain.AlertEvent) {
	attempts := c.options.MaxRetryCount + 1
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = c.handler.ProcessEvent(ctx, event)
		if lastErr == nil {
			return
		}
		if permanent.Is(lastErr) {
			break
		}
		if attempt < attempts {
			metrics.IncConsumerRetry()
			if !c.wait(ctx, c.options.RetryDelay) {
				break
			}
		}
	}

	metrics.IncConsumerDrop()
	if c.logger != nil {
		c.logger.Error("event dropped after retries",
			"fingerprint", event.Fingerprint,
			"source", event.SourceID,
			"tenant", event.Tenant,
			"error", lastErr.Error())
	}
}

// wait sleeps for the delay unless the context ends first.
// Params: context and delay.
// Returns: true when the full delay elapsed.
func (c *Consumer) wait(ctx context.Context, delay time.Duration) bool {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
