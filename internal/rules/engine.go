package rules

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"alarming/internal/domain"
	"alarming/internal/storage"
)

// Engine caches enabled tenant rules and evaluates them against alarms.
// Params: rule repository, per-tenant cache, and injected clock.
// Returns: tenant-isolated rule matching; cache entries refresh via
// invalidation broadcasts and stay briefly stale at worst.
type Engine struct {
	repo   storage.RuleRepository
	logger *slog.Logger
	now    func() time.Time

	mu       sync.RWMutex
	byTenant map[string][]domain.AlarmRule
}

// NewEngine creates an empty rule engine.
// Params: repository, logger, and now function (time.Now when nil).
// Returns: initialized engine; call LoadAll before serving traffic.
func NewEngine(repo storage.RuleRepository, logger *slog.Logger, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{
		repo:     repo,
		logger:   logger,
		now:      now,
		byTenant: make(map[string][]domain.AlarmRule),
	}
}

// LoadAll rebuilds the full per-tenant cache from the repository.
// Params: context.
// Returns: first repository error.
func (e *Engine) LoadAll(ctx context.Context) error {
	tenants, err := e.repo.Tenants(ctx)
	if err != nil {
		return fmt.Errorf("list rule tenants: %w", err)
	}

	next := make(map[string][]domain.AlarmRule, len(tenants))
	for _, tenant := range tenants {
		rules, err := e.loadTenant(ctx, tenant)
		if err != nil {
			return err
		}
		next[tenant] = rules
	}

	e.mu.Lock()
	e.byTenant = next
	e.mu.Unlock()
	return nil
}

// Refresh rebuilds the cache entry for one tenant.
// Params: context and tenant id.
// Returns: repository error.
func (e *Engine) Refresh(ctx context.Context, tenant string) error {
	rules, err := e.loadTenant(ctx, tenant)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.byTenant[tenant] = rules
	e.mu.Unlock()
	return nil
}

// loadTenant reads and priority-sorts enabled rules for one tenant.
// Params: context and tenant id.
// Returns: rules sorted by descending priority.
func (e *Engine) loadTenant(ctx context.Context, tenant string) ([]domain.AlarmRule, error) {
	rules, err := e.repo.ListEnabledByTenant(ctx, tenant)
	if err != nil {
		return nil, fmt.Errorf("load rules for %q: %w", tenant, err)
	}
	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].Priority > rules[j].Priority
	})
	return rules, nil
}

// HandleInvalidation reacts to one rule-change broadcast.
// Params: payload carrying a tenant id, or empty for a full reload.
// Returns: none; refresh failures are logged and retried on the next change.
func (e *Engine) HandleInvalidation(payload []byte) {
	tenant := strings.TrimSpace(string(payload))
	ctx := context.Background()
	var err error
	if tenant == "" {
		err = e.LoadAll(ctx)
	} else {
		err = e.Refresh(ctx, tenant)
	}
	if err != nil && e.logger != nil {
		e.logger.Error("rule cache refresh failed", "tenant", tenant, "error", err.Error())
	}
}

// Evaluate returns all rules matching one alarm, highest priority first.
// Params: alarm under evaluation.
// Returns: matched rules from the alarm's tenant only; rules outside
// their effective window never match.
func (e *Engine) Evaluate(alarm domain.Alarm) []domain.AlarmRule {
	e.mu.RLock()
	rules := e.byTenant[alarm.Tenant]
	e.mu.RUnlock()

	now := e.now()
	matched := make([]domain.AlarmRule, 0)
	for _, rule := range rules {
		if !rule.EffectiveAt(now) {
			continue
		}
		if matchesConditions(rule.Conditions, alarm) {
			matched = append(matched, rule)
		}
	}
	return matched
}

// matchesConditions checks every rule condition against alarm fields.
// Params: condition map and alarm.
// Returns: true only when all conditions match.
func matchesConditions(conditions map[string]any, alarm domain.Alarm) bool {
	for field, expected := range conditions {
		switch field {
		case "severity":
			if !matchExactOrList(expected, string(alarm.Severity)) {
				return false
			}
		case "source":
			if !matchExactOrList(expected, alarm.Source) {
				return false
			}
		case "title":
			if !matchSubstring(expected, alarm.Title) {
				return false
			}
		case "description":
			if !matchSubstring(expected, alarm.Description) {
				return false
			}
		default:
			// Unknown condition fields never match; a typo must not
			// silently widen a rule.
			return false
		}
	}
	return true
}

// matchExactOrList supports equality or list membership.
// Params: expected value (string or list) and actual field value.
// Returns: true on exact match or membership.
func matchExactOrList(expected any, actual string) bool {
	switch want := expected.(type) {
	case string:
		return want == actual
	case []any:
		for _, candidate := range want {
			if text, ok := candidate.(string); ok && text == actual {
				return true
			}
		}
		return false
	case []string:
		for _, candidate := range want {
			if candidate == actual {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// matchSubstring supports substring containment for text fields.
// Params: expected substring and actual field value.
// Returns: true when contained.
func matchSubstring(expected any, actual string) bool {
	want, ok := expected.(string)
	if !ok {
		return false
	}
	return strings.Contains(actual, want)
}
