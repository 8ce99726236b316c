package process

import (
	"context"
	"errors"
	"testing"
	"time"

	"alarming/internal/domain"
	"alarming/internal/events"
	"alarming/internal/storage"
)

func orchestratorFixture(t *testing.T, now time.Time) (*Orchestrator, *storage.MemoryStore, *events.Bus) {
	t.Helper()
	nowFn := func() time.Time { return now }
	store := storage.NewMemoryStore(nowFn)
	registry, err := NewRegistry(NewPriorityCalculator(nowFn))
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	chains := NewChainOrchestrator(registry, store.ProcessorConfigs(), nil)
	if err := chains.LoadAll(context.Background()); err != nil {
		t.Fatalf("load chains: %v", err)
	}
	bus := events.NewBus(nil)
	return NewOrchestrator(store, chains, bus, nil, 1, 4, nowFn), store, bus
}

func TestOrchestratorCreatesAlarmFromEvent(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 28, 15, 0, 0, 0, time.UTC)
	orchestrator, store, bus := orchestratorFixture(t, now)

	created := make(chan domain.AlarmCreated, 1)
	bus.Subscribe(events.TypeOf(domain.AlarmCreated{}), func(_ context.Context, event any) error {
		created <- event.(domain.AlarmCreated)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	orchestrator.Start(ctx)
	defer orchestrator.Stop()

	event := domain.AlertEvent{
		Fingerprint:     "fp-1",
		SourceID:        "zbx",
		Tenant:          "a",
		Summary:         "disk full",
		Labels:          map[string]string{"host": "db-1", "event_id": "42"},
		OccurrenceCount: 1,
		FirstSeenAt:     now.Add(-time.Minute),
		LastSeenAt:      now,
		Status:          domain.EventStatusFiring,
		Severity:        domain.SeverityHigh,
	}
	if err := orchestrator.ProcessEvent(context.Background(), event); err != nil {
		t.Fatalf("process event: %v", err)
	}

	var announced domain.AlarmCreated
	select {
	case announced = <-created:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for AlarmCreated")
	}

	alarm, err := store.Get(context.Background(), announced.Alarm.ID)
	if err != nil {
		t.Fatalf("get created alarm: %v", err)
	}
	if alarm.ID != BuildAlarmID("a", "fp-1", event.FirstSeenAt) {
		t.Fatalf("unexpected alarm id %q", alarm.ID)
	}
	if alarm.Status != domain.StatusNew {
		t.Fatalf("expected NEW status, got %s", alarm.Status)
	}
	if alarm.Tenant != "a" || alarm.Title != "disk full" || alarm.Source != "zbx" {
		t.Fatalf("unexpected alarm fields: %+v", alarm)
	}
	if alarm.SourceID != "42" || alarm.Fingerprint != "fp-1" {
		t.Fatalf("unexpected identity fields: %+v", alarm)
	}
	if alarm.Metadata["host"] != "db-1" {
		t.Fatalf("expected labels copied into metadata, got %v", alarm.Metadata)
	}
	if !alarm.OccurredAt.Equal(event.FirstSeenAt) {
		t.Fatalf("expected occurredAt from first occurrence, got %v", alarm.OccurredAt)
	}
}

func TestOrchestratorRejectsWhenSaturated(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 28, 15, 0, 0, 0, time.UTC)
	orchestrator, _, _ := orchestratorFixture(t, now)
	// Never started: the backlog fills and further submits are rejected.

	event := domain.AlertEvent{Fingerprint: "fp", Tenant: "a", FirstSeenAt: now}
	var err error
	for i := 0; i < 10; i++ {
		if err = orchestrator.ProcessEvent(context.Background(), event); err != nil {
			break
		}
	}
	if !errors.Is(err, ErrExecutorFull) {
		t.Fatalf("expected ErrExecutorFull, got %v", err)
	}
}

func TestBuildAlarmIDDeterministic(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 8, 28, 15, 0, 0, 0, time.UTC)
	first := BuildAlarmID("a", "fp-1", at)
	second := BuildAlarmID("a", "fp-1", at)
	if first != second {
		t.Fatalf("expected deterministic id")
	}
	if BuildAlarmID("b", "fp-1", at) == first {
		t.Fatalf("expected tenant to change the id")
	}
	if BuildAlarmID("a", "fp-2", at) == first {
		t.Fatalf("expected fingerprint to change the id")
	}
	if BuildAlarmID("a", "fp-1", at.Add(time.Nanosecond)) == first {
		t.Fatalf("expected occurrence time to change the id")
	}
}
