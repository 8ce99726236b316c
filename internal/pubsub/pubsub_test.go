package pubsub

import (
	"context"
	"testing"
)

func TestMemoryPubSubTopicFanout(t *testing.T) {
	t.Parallel()

	ps := NewMemoryPubSub()
	defer ps.Close()

	var rules, chains []string
	if _, err := ps.Subscribe("rules", func(payload []byte) {
		rules = append(rules, string(payload))
	}); err != nil {
		t.Fatalf("subscribe rules: %v", err)
	}
	if _, err := ps.Subscribe("chains", func(payload []byte) {
		chains = append(chains, string(payload))
	}); err != nil {
		t.Fatalf("subscribe chains: %v", err)
	}

	if err := ps.Publish(context.Background(), "rules", []byte("tenant-a")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(rules) != 1 || rules[0] != "tenant-a" {
		t.Fatalf("unexpected rules deliveries: %v", rules)
	}
	if len(chains) != 0 {
		t.Fatalf("expected topic isolation, got %v", chains)
	}
}

func TestMemoryPubSubUnsubscribe(t *testing.T) {
	t.Parallel()

	ps := NewMemoryPubSub()
	defer ps.Close()

	calls := 0
	unsub, err := ps.Subscribe("rules", func([]byte) { calls++ })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	unsub()

	if err := ps.Publish(context.Background(), "rules", nil); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if calls != 0 {
		t.Fatalf("expected no deliveries after unsubscribe, got %d", calls)
	}
}

func TestMemoryPubSubContainsHandlerPanic(t *testing.T) {
	t.Parallel()

	ps := NewMemoryPubSub()
	defer ps.Close()

	delivered := 0
	if _, err := ps.Subscribe("rules", func([]byte) { panic("handler exploded") }); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if _, err := ps.Subscribe("rules", func([]byte) { delivered++ }); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := ps.Publish(context.Background(), "rules", nil); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if delivered != 1 {
		t.Fatalf("expected healthy handler delivery, got %d", delivered)
	}
}
