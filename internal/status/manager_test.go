package status

import (
	"context"
	"errors"
	"testing"
	"time"

	"alarming/internal/domain"
	"alarming/internal/events"
	"alarming/internal/storage"
)

func managerFixture(t *testing.T, now *time.Time) (*Manager, *storage.MemoryStore, *events.Bus) {
	t.Helper()
	nowFn := func() time.Time { return *now }
	store := storage.NewMemoryStore(nowFn)
	bus := events.NewBus(nil)
	return NewManager(store, bus, nil, time.Second, nowFn), store, bus
}

func createAlarm(t *testing.T, store *storage.MemoryStore, id string, status domain.AlarmStatus) {
	t.Helper()
	alarm := domain.Alarm{ID: id, Tenant: "a", Status: status, OccurredAt: time.Now().UTC()}
	if err := store.Create(context.Background(), &alarm); err != nil {
		t.Fatalf("create alarm: %v", err)
	}
}

func TestTransitionTableComplete(t *testing.T) {
	t.Parallel()

	all := []domain.AlarmStatus{
		domain.StatusNew,
		domain.StatusAcknowledged,
		domain.StatusInProgress,
		domain.StatusResolved,
		domain.StatusClosed,
	}
	allowed := map[domain.AlarmStatus][]domain.AlarmStatus{
		domain.StatusNew:          {domain.StatusAcknowledged, domain.StatusInProgress, domain.StatusResolved, domain.StatusClosed},
		domain.StatusAcknowledged: {domain.StatusInProgress, domain.StatusResolved, domain.StatusClosed},
		domain.StatusInProgress:   {domain.StatusResolved, domain.StatusClosed},
		domain.StatusResolved:     {domain.StatusClosed, domain.StatusNew},
		domain.StatusClosed:       {domain.StatusNew},
	}

	for _, from := range all {
		wanted := make(map[domain.AlarmStatus]bool)
		for _, to := range allowed[from] {
			wanted[to] = true
		}
		for _, to := range all {
			if from == to {
				continue
			}
			if TransitionAllowed(from, to) != wanted[to] {
				t.Fatalf("transition %s -> %s: want allowed=%v", from, to, wanted[to])
			}
		}
	}
}

func TestTransitionRejectedLeavesAlarmUnchanged(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 28, 16, 0, 0, 0, time.UTC)
	manager, store, _ := managerFixture(t, &now)
	createAlarm(t, store, "a-1", domain.StatusClosed)

	_, err := manager.Transition(context.Background(), "a-1", domain.StatusInProgress)
	var invalid ErrInvalidTransition
	if !errors.As(err, &invalid) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if invalid.From != domain.StatusClosed || invalid.To != domain.StatusInProgress {
		t.Fatalf("unexpected error detail: %+v", invalid)
	}

	alarm, err := store.Get(context.Background(), "a-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if alarm.Status != domain.StatusClosed {
		t.Fatalf("rejected transition must not mutate, got %s", alarm.Status)
	}
}

func TestTransitionSameStateIsSilentSuccess(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 28, 16, 0, 0, 0, time.UTC)
	manager, store, bus := managerFixture(t, &now)
	createAlarm(t, store, "a-1", domain.StatusNew)

	emitted := 0
	bus.Subscribe(events.TypeOf(domain.AlarmStatusChanged{}), func(context.Context, any) error {
		emitted++
		return nil
	})

	alarm, err := manager.Transition(context.Background(), "a-1", domain.StatusNew)
	if err != nil {
		t.Fatalf("same-state transition: %v", err)
	}
	if alarm.Status != domain.StatusNew || emitted != 0 {
		t.Fatalf("expected silent no-op, got status=%s emitted=%d", alarm.Status, emitted)
	}
}

func TestTransitionTimestampsSetOnce(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 28, 16, 0, 0, 0, time.UTC)
	manager, store, _ := managerFixture(t, &now)
	createAlarm(t, store, "a-1", domain.StatusNew)

	ackTime := now
	alarm, err := manager.Transition(context.Background(), "a-1", domain.StatusAcknowledged)
	if err != nil {
		t.Fatalf("acknowledge: %v", err)
	}
	if alarm.AcknowledgedAt == nil || !alarm.AcknowledgedAt.Equal(ackTime) {
		t.Fatalf("expected acknowledgedAt %v, got %v", ackTime, alarm.AcknowledgedAt)
	}

	// Entering IN_PROGRESS later must keep the original acknowledgedAt.
	now = now.Add(time.Minute)
	alarm, err = manager.Transition(context.Background(), "a-1", domain.StatusInProgress)
	if err != nil {
		t.Fatalf("start progress: %v", err)
	}
	if !alarm.AcknowledgedAt.Equal(ackTime) {
		t.Fatalf("acknowledgedAt must be idempotent, got %v", alarm.AcknowledgedAt)
	}

	now = now.Add(time.Minute)
	closeTime := now
	alarm, err = manager.Transition(context.Background(), "a-1", domain.StatusClosed)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if alarm.ResolvedAt == nil || !alarm.ResolvedAt.Equal(closeTime) {
		t.Fatalf("closing must set resolvedAt when unset, got %v", alarm.ResolvedAt)
	}
	if alarm.ClosedAt == nil || !alarm.ClosedAt.Equal(closeTime) {
		t.Fatalf("closing must set closedAt, got %v", alarm.ClosedAt)
	}
}

func TestTransitionResolveThenCloseKeepsResolvedAt(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 28, 16, 0, 0, 0, time.UTC)
	manager, store, _ := managerFixture(t, &now)
	createAlarm(t, store, "a-1", domain.StatusNew)

	resolveTime := now
	if _, err := manager.Transition(context.Background(), "a-1", domain.StatusResolved); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	now = now.Add(time.Hour)
	alarm, err := manager.Transition(context.Background(), "a-1", domain.StatusClosed)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if !alarm.ResolvedAt.Equal(resolveTime) {
		t.Fatalf("resolvedAt must survive close, got %v", alarm.ResolvedAt)
	}
	if !alarm.ClosedAt.Equal(now) {
		t.Fatalf("expected closedAt %v, got %v", now, alarm.ClosedAt)
	}
}

func TestTransitionReopenCycle(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 28, 16, 0, 0, 0, time.UTC)
	manager, store, bus := managerFixture(t, &now)
	createAlarm(t, store, "a-1", domain.StatusNew)

	var changes []domain.AlarmStatusChanged
	bus.Subscribe(events.TypeOf(domain.AlarmStatusChanged{}), func(_ context.Context, event any) error {
		changes = append(changes, event.(domain.AlarmStatusChanged))
		return nil
	})

	for _, to := range []domain.AlarmStatus{domain.StatusResolved, domain.StatusNew, domain.StatusClosed, domain.StatusNew} {
		if _, err := manager.Transition(context.Background(), "a-1", to); err != nil {
			t.Fatalf("transition to %s: %v", to, err)
		}
	}
	if len(changes) != 4 {
		t.Fatalf("expected 4 change events, got %d", len(changes))
	}
	if changes[1].From != domain.StatusResolved || changes[1].To != domain.StatusNew {
		t.Fatalf("unexpected reopen event: %+v", changes[1])
	}
}

func TestCurrentStatusReadThroughCache(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 28, 16, 0, 0, 0, time.UTC)
	manager, store, _ := managerFixture(t, &now)
	createAlarm(t, store, "a-1", domain.StatusNew)

	got, err := manager.CurrentStatus(context.Background(), "a-1")
	if err != nil || got != domain.StatusNew {
		t.Fatalf("expected NEW, got %s %v", got, err)
	}

	// A write behind the manager's back is masked until invalidation.
	alarm, _ := store.Get(context.Background(), "a-1")
	alarm.Status = domain.StatusClosed
	if _, err := store.Update(context.Background(), alarm); err != nil {
		t.Fatalf("backdoor update: %v", err)
	}
	got, err = manager.CurrentStatus(context.Background(), "a-1")
	if err != nil || got != domain.StatusNew {
		t.Fatalf("expected cached NEW, got %s %v", got, err)
	}

	manager.Invalidate("a-1")
	got, err = manager.CurrentStatus(context.Background(), "a-1")
	if err != nil || got != domain.StatusClosed {
		t.Fatalf("expected reload after invalidate, got %s %v", got, err)
	}

	if _, err := manager.CurrentStatus(context.Background(), "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
