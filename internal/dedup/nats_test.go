package dedup_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"alarming/internal/config"
	"alarming/internal/dedup"
	"alarming/internal/domain"
	"alarming/test/testutil"
)

func natsStore(t *testing.T, now func() time.Time) *dedup.NATSStore {
	t.Helper()
	url, stop := testutil.StartLocalNATSServer(t)
	t.Cleanup(stop)

	store, err := dedup.NewNATSStore(config.NATSConfig{
		URL:                []string{url},
		DedupBucket:        "dedup_test",
		AllowCreateBuckets: true,
	}, now)
	if err != nil {
		t.Fatalf("new nats store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func natsEvent(fingerprint string) domain.AlertEvent {
	return domain.AlertEvent{
		Fingerprint: fingerprint,
		SourceID:    "zbx",
		Tenant:      "a",
		Summary:     "disk full",
		Labels:      map[string]string{"host": "db-1"},
	}
}

func TestNATSStoreWindow(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	store := natsStore(t, func() time.Time { return now })

	first, err := store.CheckAndRecord(context.Background(), natsEvent("fp-1"), 5*time.Minute, 100)
	if err != nil {
		t.Fatalf("first occurrence: %v", err)
	}
	if !first.IsNewAlert || first.CurrentCount != 1 {
		t.Fatalf("unexpected first result: %+v", first)
	}

	now = now.Add(time.Minute)
	second, err := store.CheckAndRecord(context.Background(), natsEvent("fp-1"), 5*time.Minute, 100)
	if err != nil {
		t.Fatalf("second occurrence: %v", err)
	}
	if second.IsNewAlert || second.CurrentCount != 2 {
		t.Fatalf("expected suppressed duplicate, got %+v", second)
	}
	if !second.FirstSeenAt.Equal(first.FirstSeenAt) {
		t.Fatalf("window must keep the original firstSeenAt")
	}

	// Past the window the fingerprint starts a new alert.
	now = now.Add(10 * time.Minute)
	third, err := store.CheckAndRecord(context.Background(), natsEvent("fp-1"), 5*time.Minute, 100)
	if err != nil {
		t.Fatalf("post-window occurrence: %v", err)
	}
	if !third.IsNewAlert || third.CurrentCount != 1 {
		t.Fatalf("expected window reset, got %+v", third)
	}
}

func TestNATSStoreConcurrentFirstOccurrence(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	store := natsStore(t, func() time.Time { return now })

	const writers = 8
	var wg sync.WaitGroup
	results := make([]dedup.Result, writers)
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = store.CheckAndRecord(context.Background(), natsEvent("fp-race"), 5*time.Minute, 100)
		}(i)
	}
	wg.Wait()

	newAlerts := 0
	for i := 0; i < writers; i++ {
		if errs[i] != nil {
			t.Fatalf("writer %d: %v", i, errs[i])
		}
		if results[i].IsNewAlert {
			newAlerts++
		}
	}
	if newAlerts != 1 {
		t.Fatalf("exactly one writer must win the create, got %d", newAlerts)
	}

	final, err := store.CheckAndRecord(context.Background(), natsEvent("fp-race"), 5*time.Minute, 100)
	if err != nil {
		t.Fatalf("final occurrence: %v", err)
	}
	if final.CurrentCount != writers+1 {
		t.Fatalf("expected all occurrences counted, got %d", final.CurrentCount)
	}
}
