package queue

import (
	"context"
	"testing"
	"time"

	"alarming/internal/domain"
)

func TestMemoryQueueFIFO(t *testing.T) {
	t.Parallel()

	q := NewMemoryQueue(4)
	defer q.Close()

	for _, fp := range []string{"fp-1", "fp-2", "fp-3"} {
		err := q.Publish(context.Background(), domain.AlertEvent{Fingerprint: fp})
		if err != nil {
			t.Fatalf("publish %s: %v", fp, err)
		}
	}

	for _, want := range []string{"fp-1", "fp-2", "fp-3"} {
		event, err := q.Poll(context.Background(), time.Second)
		if err != nil {
			t.Fatalf("poll: %v", err)
		}
		if event == nil || event.Fingerprint != want {
			t.Fatalf("expected %s, got %+v", want, event)
		}
	}
}

func TestMemoryQueueEmptyPoll(t *testing.T) {
	t.Parallel()

	q := NewMemoryQueue(1)
	defer q.Close()

	event, err := q.Poll(context.Background(), 20*time.Millisecond)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if event != nil {
		t.Fatalf("expected empty poll, got %+v", event)
	}
}

func TestMemoryQueueDrainsAfterClose(t *testing.T) {
	t.Parallel()

	q := NewMemoryQueue(2)
	if err := q.Publish(context.Background(), domain.AlertEvent{Fingerprint: "fp-1"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := q.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	event, err := q.Poll(context.Background(), 20*time.Millisecond)
	if err != nil {
		t.Fatalf("poll buffered after close: %v", err)
	}
	if event == nil || event.Fingerprint != "fp-1" {
		t.Fatalf("expected buffered event after close, got %+v", event)
	}

	if _, err := q.Poll(context.Background(), 20*time.Millisecond); err != ErrClosed {
		t.Fatalf("expected ErrClosed on drained queue, got %v", err)
	}
	if err := q.Publish(context.Background(), domain.AlertEvent{}); err != ErrClosed {
		t.Fatalf("expected ErrClosed on publish, got %v", err)
	}
}

func TestMemoryQueuePollHonorsContext(t *testing.T) {
	t.Parallel()

	q := NewMemoryQueue(1)
	defer q.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := q.Poll(ctx, time.Second); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
