package storage

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"alarming/internal/domain"
)

// MemoryStore keeps alarms and config rows in process memory.
// Params: record maps guarded by one mutex and injected clock.
// Returns: single-instance implementation of all repository interfaces.
type MemoryStore struct {
	mu         sync.RWMutex
	now        func() time.Time
	alarms     map[string]domain.Alarm
	rules      []domain.AlarmRule
	processors []domain.ProcessorConfig
}

// NewMemoryStore creates an empty in-memory store.
// Params: now function (defaults to time.Now when nil).
// Returns: initialized store.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{now: now, alarms: make(map[string]domain.Alarm)}
}

// SeedRules replaces the rule table (test and single-mode setup).
// Params: rule rows.
// Returns: none.
func (s *MemoryStore) SeedRules(rules []domain.AlarmRule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = append([]domain.AlarmRule(nil), rules...)
}

// SeedProcessors replaces the processor config table.
// Params: processor config rows.
// Returns: none.
func (s *MemoryStore) SeedProcessors(configs []domain.ProcessorConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processors = append([]domain.ProcessorConfig(nil), configs...)
}

// Create inserts one new alarm.
// Params: context and alarm (audit timestamps filled when zero).
// Returns: error on duplicate id.
func (s *MemoryStore) Create(_ context.Context, alarm *domain.Alarm) error {
	if alarm == nil {
		return errors.New("nil alarm")
	}
	now := s.now()
	if alarm.CreatedAt.IsZero() {
		alarm.CreatedAt = now
	}
	if alarm.UpdatedAt.IsZero() {
		alarm.UpdatedAt = alarm.CreatedAt
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.alarms[alarm.ID]; exists {
		return errors.New("alarm id already exists")
	}
	s.alarms[alarm.ID] = *alarm
	return nil
}

// Get loads one alarm by id.
// Params: context and alarm id.
// Returns: alarm copy or ErrNotFound.
func (s *MemoryStore) Get(_ context.Context, id string) (domain.Alarm, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	alarm, ok := s.alarms[id]
	if !ok {
		return domain.Alarm{}, ErrNotFound
	}
	return alarm, nil
}

// Update replaces one alarm record.
// Params: context and full alarm snapshot.
// Returns: stored record with refreshed UpdatedAt, or ErrNotFound.
func (s *MemoryStore) Update(_ context.Context, alarm domain.Alarm) (domain.Alarm, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.alarms[alarm.ID]; !ok {
		return domain.Alarm{}, ErrNotFound
	}
	alarm.UpdatedAt = s.now()
	s.alarms[alarm.ID] = alarm
	return alarm, nil
}

// UpdateStatus persists only the lifecycle fields of one alarm.
// Params: context and alarm carrying the new status and timestamps.
// Returns: stored record with refreshed UpdatedAt, or ErrNotFound.
func (s *MemoryStore) UpdateStatus(_ context.Context, alarm domain.Alarm) (domain.Alarm, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.alarms[alarm.ID]
	if !ok {
		return domain.Alarm{}, ErrNotFound
	}
	stored.Status = alarm.Status
	stored.AcknowledgedAt = alarm.AcknowledgedAt
	stored.ResolvedAt = alarm.ResolvedAt
	stored.ClosedAt = alarm.ClosedAt
	stored.UpdatedAt = s.now()
	s.alarms[alarm.ID] = stored
	return stored, nil
}

// ListPending pages alarms in the given statuses ordered by occurrence time.
// Params: context, status filter, page offset, and page limit.
// Returns: one page of matching alarms.
func (s *MemoryStore) ListPending(_ context.Context, statuses []domain.AlarmStatus, offset, limit int) ([]domain.Alarm, error) {
	wanted := make(map[domain.AlarmStatus]struct{}, len(statuses))
	for _, status := range statuses {
		wanted[status] = struct{}{}
	}

	s.mu.RLock()
	matched := make([]domain.Alarm, 0)
	for _, alarm := range s.alarms {
		if _, ok := wanted[alarm.Status]; ok {
			matched = append(matched, alarm)
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].OccurredAt.Equal(matched[j].OccurredAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].OccurredAt.Before(matched[j].OccurredAt)
	})

	if offset >= len(matched) {
		return nil, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], nil
}

// ListEnabledByTenant lists enabled rules for one tenant.
// Params: context and tenant id.
// Returns: matching enabled rules.
func (s *MemoryStore) ListEnabledByTenant(_ context.Context, tenant string) ([]domain.AlarmRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rules := make([]domain.AlarmRule, 0)
	for _, rule := range s.rules {
		if rule.Enabled && rule.Tenant == tenant {
			rules = append(rules, rule)
		}
	}
	return rules, nil
}

// Tenants lists tenants that have at least one enabled rule or processor row.
// Params: context.
// Returns: sorted distinct tenant ids.
func (s *MemoryStore) Tenants(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, rule := range s.rules {
		if rule.Enabled {
			seen[rule.Tenant] = struct{}{}
		}
	}
	for _, cfg := range s.processors {
		if cfg.Enabled {
			seen[cfg.Tenant] = struct{}{}
		}
	}
	tenants := make([]string, 0, len(seen))
	for tenant := range seen {
		tenants = append(tenants, tenant)
	}
	sort.Strings(tenants)
	return tenants, nil
}

// ProcessorConfigs adapts the store to the processor config repository.
// Params: none.
// Returns: repository view over the processor table.
func (s *MemoryStore) ProcessorConfigs() ProcessorConfigRepository {
	return memoryProcessorView{store: s}
}

// memoryProcessorView exposes processor rows under the repository interface.
// Params: backing store.
// Returns: processor config repository behavior.
type memoryProcessorView struct {
	store *MemoryStore
}

// ListEnabledByTenant lists enabled processor configs for one tenant.
// Params: context and tenant id.
// Returns: matching enabled rows.
func (v memoryProcessorView) ListEnabledByTenant(_ context.Context, tenant string) ([]domain.ProcessorConfig, error) {
	v.store.mu.RLock()
	defer v.store.mu.RUnlock()
	configs := make([]domain.ProcessorConfig, 0)
	for _, cfg := range v.store.processors {
		if cfg.Enabled && cfg.Tenant == tenant {
			configs = append(configs, cfg)
		}
	}
	return configs, nil
}

// Tenants lists tenants with at least one enabled processor row.
// Params: context.
// Returns: sorted distinct tenant ids.
func (v memoryProcessorView) Tenants(_ context.Context) ([]string, error) {
	v.store.mu.RLock()
	defer v.store.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, cfg := range v.store.processors {
		if cfg.Enabled {
			seen[cfg.Tenant] = struct{}{}
		}
	}
	tenants := make([]string, 0, len(seen))
	for tenant := range seen {
		tenants = append(tenants, tenant)
	}
	sort.Strings(tenants)
	return tenants, nil
}

// Close releases memory store resources.
// Params: none.
// Returns: nil.
func (s *MemoryStore) Close() error {
	return nil
}
