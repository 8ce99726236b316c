package rules

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"alarming/internal/domain"
	"alarming/internal/metrics"
)

// processorName identifies the rule engine inside processor chains.
const processorName = "rule_engine"

// Processor applies matched tenant rules to alarms inside a chain.
// Params: shared rule engine, logger, and injected clock.
// Returns: chain processor mutating alarm metadata from rule actions.
type Processor struct {
	engine *Engine
	logger *slog.Logger
	now    func() time.Time
}

// NewProcessor creates the rule-engine chain processor.
// Params: engine, logger, and now function (time.Now when nil).
// Returns: initialized processor.
func NewProcessor(engine *Engine, logger *slog.Logger, now func() time.Time) *Processor {
	if now == nil {
		now = time.Now
	}
	return &Processor{engine: engine, logger: logger, now: now}
}

// Name returns the registry name of this processor.
// Params: none.
// Returns: stable processor name.
func (p *Processor) Name() string {
	return processorName
}

// Process evaluates tenant rules and merges their actions onto the alarm.
// Params: context and alarm under processing.
// Returns: nil; individual malformed actions are logged and skipped so a
// bad rule never fails the whole chain.
func (p *Processor) Process(_ context.Context, alarm *domain.Alarm) error {
	matched := p.engine.Evaluate(*alarm)
	for _, rule := range matched {
		metrics.IncRuleMatch(string(rule.RuleType))
		if err := p.applyRule(rule, alarm); err != nil && p.logger != nil {
			p.logger.Warn("rule action skipped",
				"rule", rule.ID,
				"tenant", rule.Tenant,
				"type", string(rule.RuleType),
				"error", err.Error())
		}
	}
	return nil
}

// applyRule merges one rule's actions onto the alarm.
// Params: matched rule and alarm.
// Returns: error describing a malformed action payload.
//
// Rules apply in descending priority order; scalar keys are
// last-write-wins across matched rules while the silenced flag only
// ever turns on.
func (p *Processor) applyRule(rule domain.AlarmRule, alarm *domain.Alarm) error {
	switch rule.RuleType {
	case domain.RuleTypeSilence:
		return p.applySilence(rule.Actions, alarm)
	case domain.RuleTypeRouting:
		return applyRouting(rule.Actions, alarm)
	case domain.RuleTypeClassification:
		return applyClassification(rule.Actions, alarm)
	case domain.RuleTypeEscalation:
		return applyEscalation(rule.Actions, alarm)
	default:
		return fmt.Errorf("unknown rule type %q", rule.RuleType)
	}
}

// applySilence turns the silenced flag on, optionally with an expiry.
// Params: action map and alarm.
// Returns: error on an unparsable duration.
func (p *Processor) applySilence(actions map[string]any, alarm *domain.Alarm) error {
	if silenced, ok := actions["silenced"].(bool); ok && silenced {
		alarm.SetMeta(domain.MetaSilenced, "true")
	}
	raw, ok := actions["duration"].(string)
	if !ok || raw == "" {
		return nil
	}
	duration, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse silence duration %q: %w", raw, err)
	}
	alarm.SetMeta(domain.MetaSilenced, "true")
	alarm.SetMeta(domain.MetaSilenceUntil, p.now().Add(duration).UTC().Format(time.RFC3339))
	return nil
}

// applyRouting sets assignee, team, and escalation level metadata.
// Params: action map and alarm.
// Returns: error on a malformed escalation level.
func applyRouting(actions map[string]any, alarm *domain.Alarm) error {
	if assignee, ok := actions["assignee"].(string); ok && assignee != "" {
		alarm.SetMeta(domain.MetaAssignee, assignee)
	}
	if team, ok := actions["team"].(string); ok && team != "" {
		alarm.SetMeta(domain.MetaTeam, team)
	}
	if raw, ok := actions["escalationLevel"]; ok {
		level, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("routing escalation level: %w", err)
		}
		alarm.SetMeta(domain.MetaEscalationLevel, strconv.Itoa(level))
	}
	return nil
}

// applyClassification sets the category metadata key.
// Params: action map and alarm.
// Returns: nil.
func applyClassification(actions map[string]any, alarm *domain.Alarm) error {
	if category, ok := actions["category"].(string); ok && category != "" {
		alarm.SetMeta(domain.MetaCategory, category)
	}
	return nil
}

// applyEscalation raises the escalation level, never lowering it.
// Params: action map and alarm.
// Returns: error on a malformed level.
func applyEscalation(actions map[string]any, alarm *domain.Alarm) error {
	raw, ok := actions["escalationLevel"]
	if !ok {
		return nil
	}
	level, err := asInt(raw)
	if err != nil {
		return fmt.Errorf("escalation level: %w", err)
	}
	current := 0
	if text, ok := alarm.Metadata[domain.MetaEscalationLevel]; ok {
		if parsed, err := strconv.Atoi(text); err == nil {
			current = parsed
		}
	}
	if level > current {
		alarm.SetMeta(domain.MetaEscalationLevel, strconv.Itoa(level))
	}
	return nil
}

// asInt coerces JSON-decoded numeric action values.
// Params: raw value (float64 from JSON, or int/string).
// Returns: integer value or coercion error.
func asInt(raw any) (int, error) {
	switch value := raw.(type) {
	case int:
		return value, nil
	case int64:
		return int(value), nil
	case float64:
		return int(value), nil
	case string:
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return 0, fmt.Errorf("parse %q: %w", value, err)
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("unsupported numeric value %T", raw)
	}
}
