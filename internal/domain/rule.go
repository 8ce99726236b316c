package domain

import "time"

// RuleType classifies what an alarm rule does when matched.
// Params: silence/routing/escalation/classification constants.
// Returns: rule action family used by the rule engine.
type RuleType string

const (
	// RuleTypeSilence suppresses matched alarms for a period.
	RuleTypeSilence RuleType = "SILENCE"
	// RuleTypeRouting assigns matched alarms to an operator or team.
	RuleTypeRouting RuleType = "ROUTING"
	// RuleTypeEscalation bumps matched alarms to a higher escalation level.
	RuleTypeEscalation RuleType = "ESCALATION"
	// RuleTypeClassification tags matched alarms with a category.
	RuleTypeClassification RuleType = "CLASSIFICATION"
)

// AlarmRule is one tenant-scoped matching rule with actions.
// Params: match conditions, action payload, ordering priority, and effective window.
// Returns: read-mostly rule evaluated against new alarms.
type AlarmRule struct {
	ID             string         `json:"id"`
	Tenant         string         `json:"tenant"`
	Name           string         `json:"name"`
	RuleType       RuleType       `json:"rule_type"`
	Conditions     map[string]any `json:"conditions"`
	Actions        map[string]any `json:"actions"`
	Priority       int            `json:"priority"`
	Enabled        bool           `json:"enabled"`
	EffectiveFrom  *time.Time     `json:"effective_from,omitempty"`
	EffectiveUntil *time.Time     `json:"effective_until,omitempty"`
	Version        int            `json:"version"`
}

// EffectiveAt reports whether the rule effective window covers the given time.
// Params: evaluation time.
// Returns: true when both optional bounds admit the time.
func (r AlarmRule) EffectiveAt(now time.Time) bool {
	if r.EffectiveFrom != nil && now.Before(*r.EffectiveFrom) {
		return false
	}
	if r.EffectiveUntil != nil && now.After(*r.EffectiveUntil) {
		return false
	}
	return true
}

// ProcessorConfig enables one named processor in a tenant chain.
// Params: processor name, enabled flag, and chain position.
// Returns: per-tenant chain configuration row.
type ProcessorConfig struct {
	Tenant         string `json:"tenant"`
	ProcessorName  string `json:"processor_name"`
	Enabled        bool   `json:"enabled"`
	ExecutionOrder int    `json:"execution_order"`
}
