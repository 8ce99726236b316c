package queue_test

import (
	"context"
	"testing"
	"time"

	"alarming/internal/config"
	"alarming/internal/domain"
	"alarming/internal/queue"
	"alarming/test/testutil"
)

func natsQueue(t *testing.T, url, consumer string) *queue.NATSQueue {
	t.Helper()
	q, err := queue.NewNATSQueue(config.NATSConfig{
		URL:           []string{url},
		QueueStream:   "ALARM_EVENTS_TEST",
		QueueSubject:  "alarming.test.events",
		QueueConsumer: consumer,
	})
	if err != nil {
		t.Fatalf("new nats queue: %v", err)
	}
	t.Cleanup(func() { _ = q.Close() })
	return q
}

func TestNATSQueueRoundTrip(t *testing.T) {
	url, stop := testutil.StartLocalNATSServer(t)
	t.Cleanup(stop)
	q := natsQueue(t, url, "roundtrip")

	sent := domain.AlertEvent{
		Fingerprint:     "fp-1",
		SourceID:        "zbx",
		Tenant:          "a",
		Summary:         "disk full",
		Labels:          map[string]string{"host": "db-1"},
		OccurrenceCount: 1,
		FirstSeenAt:     time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC),
		LastSeenAt:      time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC),
		Status:          domain.EventStatusFiring,
		Severity:        domain.SeverityHigh,
	}
	if err := q.Publish(context.Background(), sent); err != nil {
		t.Fatalf("publish: %v", err)
	}

	got, err := q.Poll(context.Background(), 2*time.Second)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if got == nil {
		t.Fatalf("expected an event")
	}
	if got.Fingerprint != sent.Fingerprint || got.Summary != sent.Summary || got.Severity != sent.Severity {
		t.Fatalf("unexpected event: %+v", got)
	}
	if !got.FirstSeenAt.Equal(sent.FirstSeenAt) {
		t.Fatalf("timestamps must survive the wire, got %v", got.FirstSeenAt)
	}
}

func TestNATSQueueEmptyPoll(t *testing.T) {
	url, stop := testutil.StartLocalNATSServer(t)
	t.Cleanup(stop)
	q := natsQueue(t, url, "empty")

	got, err := q.Poll(context.Background(), 200*time.Millisecond)
	if err != nil {
		t.Fatalf("empty poll: %v", err)
	}
	if got != nil {
		t.Fatalf("expected no event, got %+v", got)
	}
}

func TestNATSQueueSharedConsumerDeliversOnce(t *testing.T) {
	url, stop := testutil.StartLocalNATSServer(t)
	t.Cleanup(stop)

	// Two nodes bind the same durable consumer; each event goes to one.
	first := natsQueue(t, url, "shared")
	second := natsQueue(t, url, "shared")

	for _, fp := range []string{"fp-1", "fp-2", "fp-3", "fp-4"} {
		event := domain.AlertEvent{Fingerprint: fp, SourceID: "zbx", Tenant: "a"}
		if err := first.Publish(context.Background(), event); err != nil {
			t.Fatalf("publish %s: %v", fp, err)
		}
	}

	seen := make(map[string]int)
	deadline := time.Now().Add(10 * time.Second)
	for len(seen) < 4 {
		if time.Now().After(deadline) {
			t.Fatalf("timed out draining shared consumer, got %v", seen)
		}
		for _, q := range []*queue.NATSQueue{first, second} {
			event, err := q.Poll(context.Background(), 500*time.Millisecond)
			if err != nil {
				t.Fatalf("poll: %v", err)
			}
			if event != nil {
				seen[event.Fingerprint]++
			}
		}
	}
	for fp, count := range seen {
		if count != 1 {
			t.Fatalf("event %s delivered %d times", fp, count)
		}
	}
}
