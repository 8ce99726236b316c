package storage

import (
	"context"
	"testing"
	"time"

	"alarming/internal/domain"
)

func TestMemoryStoreAlarmLifecycle(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 28, 11, 0, 0, 0, time.UTC)
	store := NewMemoryStore(func() time.Time { return now })

	alarm := domain.Alarm{ID: "a-1", Tenant: "default", Status: domain.StatusNew, OccurredAt: now}
	if err := store.Create(context.Background(), &alarm); err != nil {
		t.Fatalf("create: %v", err)
	}
	if alarm.CreatedAt.IsZero() || alarm.UpdatedAt.IsZero() {
		t.Fatalf("expected audit timestamps to be filled")
	}
	if err := store.Create(context.Background(), &domain.Alarm{ID: "a-1"}); err == nil {
		t.Fatalf("expected duplicate id error")
	}

	loaded, err := store.Get(context.Background(), "a-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if loaded.Tenant != "default" {
		t.Fatalf("unexpected alarm: %+v", loaded)
	}
	if _, err := store.Get(context.Background(), "missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	now = now.Add(time.Minute)
	loaded.Severity = domain.SeverityHigh
	updated, err := store.Update(context.Background(), loaded)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Severity != domain.SeverityHigh || !updated.UpdatedAt.Equal(now) {
		t.Fatalf("unexpected update result: %+v", updated)
	}
	if _, err := store.Update(context.Background(), domain.Alarm{ID: "missing"}); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound on update, got %v", err)
	}
}

func TestMemoryStoreUpdateStatusTouchesLifecycleOnly(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 28, 11, 0, 0, 0, time.UTC)
	store := NewMemoryStore(func() time.Time { return now })
	alarm := domain.Alarm{ID: "a-1", Title: "keep me", Status: domain.StatusNew, OccurredAt: now}
	if err := store.Create(context.Background(), &alarm); err != nil {
		t.Fatalf("create: %v", err)
	}

	stamp := now
	updated, err := store.UpdateStatus(context.Background(), domain.Alarm{
		ID:             "a-1",
		Title:          "must not stick",
		Status:         domain.StatusAcknowledged,
		AcknowledgedAt: &stamp,
	})
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if updated.Status != domain.StatusAcknowledged || updated.AcknowledgedAt == nil {
		t.Fatalf("unexpected status result: %+v", updated)
	}
	if updated.Title != "keep me" {
		t.Fatalf("expected non-lifecycle fields untouched, got %q", updated.Title)
	}
}

func TestMemoryStoreListPendingOrderAndPaging(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 8, 28, 11, 0, 0, 0, time.UTC)
	store := NewMemoryStore(func() time.Time { return base })

	seed := []domain.Alarm{
		{ID: "c", Status: domain.StatusNew, OccurredAt: base.Add(2 * time.Minute)},
		{ID: "a", Status: domain.StatusNew, OccurredAt: base},
		{ID: "b", Status: domain.StatusAcknowledged, OccurredAt: base.Add(time.Minute)},
		{ID: "d", Status: domain.StatusClosed, OccurredAt: base},
	}
	for i := range seed {
		if err := store.Create(context.Background(), &seed[i]); err != nil {
			t.Fatalf("create %s: %v", seed[i].ID, err)
		}
	}

	statuses := []domain.AlarmStatus{domain.StatusNew, domain.StatusAcknowledged}
	page, err := store.ListPending(context.Background(), statuses, 0, 2)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(page) != 2 || page[0].ID != "a" || page[1].ID != "b" {
		t.Fatalf("unexpected first page: %+v", page)
	}

	page, err = store.ListPending(context.Background(), statuses, 2, 2)
	if err != nil {
		t.Fatalf("list pending page 2: %v", err)
	}
	if len(page) != 1 || page[0].ID != "c" {
		t.Fatalf("unexpected second page: %+v", page)
	}

	page, err = store.ListPending(context.Background(), statuses, 10, 2)
	if err != nil {
		t.Fatalf("list pending past end: %v", err)
	}
	if len(page) != 0 {
		t.Fatalf("expected empty page past end, got %+v", page)
	}
}

func TestMemoryStoreTenantViews(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore(nil)
	store.SeedRules([]domain.AlarmRule{
		{ID: "r-1", Tenant: "a", Enabled: true},
		{ID: "r-2", Tenant: "b", Enabled: false},
	})
	store.SeedProcessors([]domain.ProcessorConfig{
		{Tenant: "b", ProcessorName: "priority_calculator", Enabled: true, ExecutionOrder: 0},
	})

	rules, err := store.ListEnabledByTenant(context.Background(), "a")
	if err != nil || len(rules) != 1 {
		t.Fatalf("unexpected rules for tenant a: %v %v", rules, err)
	}
	rules, err = store.ListEnabledByTenant(context.Background(), "b")
	if err != nil || len(rules) != 0 {
		t.Fatalf("expected disabled rule to be hidden: %v %v", rules, err)
	}

	configs, err := store.ProcessorConfigs().ListEnabledByTenant(context.Background(), "b")
	if err != nil || len(configs) != 1 {
		t.Fatalf("unexpected processor configs: %v %v", configs, err)
	}
	tenants, err := store.ProcessorConfigs().Tenants(context.Background())
	if err != nil || len(tenants) != 1 || tenants[0] != "b" {
		t.Fatalf("unexpected processor tenants: %v %v", tenants, err)
	}
}
