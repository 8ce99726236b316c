package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"alarming/internal/domain"
)

// RuleRepository is the Postgres repository for tenant alarm rules.
// Params: connection pool.
// Returns: read-mostly rule queries backing the rule cache.
type RuleRepository struct {
	db *sql.DB
}

// NewRuleRepository constructs the repository.
// Params: pool.
// Returns: initialized repository.
func NewRuleRepository(db *sql.DB) *RuleRepository {
	return &RuleRepository{db: db}
}

// ListEnabledByTenant lists enabled rules for one tenant.
// Params: context and tenant id.
// Returns: matching enabled rules.
func (r *RuleRepository) ListEnabledByTenant(ctx context.Context, tenant string) ([]domain.AlarmRule, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, tenant, name, rule_type, conditions, actions, priority, enabled,
	effective_from, effective_until, version
FROM alarm_rules
WHERE tenant = $1 AND enabled`, tenant)
	if err != nil {
		return nil, fmt.Errorf("list rules for %q: %w", tenant, err)
	}
	defer rows.Close()

	var rules []domain.AlarmRule
	for rows.Next() {
		var (
			rule           domain.AlarmRule
			ruleType       string
			conditions     []byte
			actions        []byte
			effectiveFrom  sql.NullTime
			effectiveUntil sql.NullTime
		)
		err := rows.Scan(
			&rule.ID,
			&rule.Tenant,
			&rule.Name,
			&ruleType,
			&conditions,
			&actions,
			&rule.Priority,
			&rule.Enabled,
			&effectiveFrom,
			&effectiveUntil,
			&rule.Version,
		)
		if err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		rule.RuleType = domain.RuleType(ruleType)
		if len(conditions) > 0 {
			if err := json.Unmarshal(conditions, &rule.Conditions); err != nil {
				return nil, fmt.Errorf("decode rule conditions: %w", err)
			}
		}
		if len(actions) > 0 {
			if err := json.Unmarshal(actions, &rule.Actions); err != nil {
				return nil, fmt.Errorf("decode rule actions: %w", err)
			}
		}
		rule.EffectiveFrom = timePtr(effectiveFrom)
		rule.EffectiveUntil = timePtr(effectiveUntil)
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rules: %w", err)
	}
	return rules, nil
}

// Tenants lists tenants that carry at least one enabled rule.
// Params: context.
// Returns: distinct tenant ids.
func (r *RuleRepository) Tenants(ctx context.Context) ([]string, error) {
	return distinctTenants(ctx, r.db, `SELECT DISTINCT tenant FROM alarm_rules WHERE enabled ORDER BY tenant`)
}

// distinctTenants runs one tenant enumeration query.
// Params: context, pool, and query text.
// Returns: scanned tenant ids.
func distinctTenants(ctx context.Context, db *sql.DB, query string) ([]string, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []string
	for rows.Next() {
		var tenant string
		if err := rows.Scan(&tenant); err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		tenants = append(tenants, tenant)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tenants: %w", err)
	}
	return tenants, nil
}
