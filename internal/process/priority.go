package process

import (
	"context"
	"time"

	"alarming/internal/domain"
)

// priorityProcessorName identifies the calculator inside chains.
const priorityProcessorName = "priority_calculator"

// Base priority score per severity.
const (
	priorityCritical = 100
	priorityHigh     = 80
	priorityMedium   = 60
	priorityWarning  = 50
	priorityLow      = 40
	priorityUnknown  = 30
	priorityInfo     = 20
)

// Alarm age past which the severity earns the age bonus.
const (
	agingThresholdLow    = 30 * time.Minute
	agingThresholdMedium = 60 * time.Minute
	agingThresholdHigh   = 120 * time.Minute
	agingBonus           = 20
)

// PriorityCalculator recomputes alarm severity from score and age.
// Params: injected clock.
// Returns: chain processor that only ever raises severity.
type PriorityCalculator struct {
	now func() time.Time
}

// NewPriorityCalculator creates the calculator.
// Params: now function (time.Now when nil).
// Returns: initialized processor.
func NewPriorityCalculator(now func() time.Time) *PriorityCalculator {
	if now == nil {
		now = time.Now
	}
	return &PriorityCalculator{now: now}
}

// Name returns the registry name of this processor.
// Params: none.
// Returns: stable processor name.
func (p *PriorityCalculator) Name() string {
	return priorityProcessorName
}

// Process scores the alarm and upgrades its severity when warranted.
// Params: context and alarm under processing.
// Returns: nil; scoring never fails.
func (p *PriorityCalculator) Process(_ context.Context, alarm *domain.Alarm) error {
	score := basePriority(alarm.Severity)
	if agedPast(alarm.Severity, alarm.Age(p.now())) {
		score += agingBonus
	}
	if score > priorityCritical {
		score = priorityCritical
	}

	upgraded := severityForScore(score)
	if severityRank(upgraded) > severityRank(alarm.Severity) {
		alarm.Severity = upgraded
	}
	return nil
}

// basePriority maps severity to its base score.
// Params: severity.
// Returns: base score.
func basePriority(severity domain.Severity) int {
	switch severity {
	case domain.SeverityCritical:
		return priorityCritical
	case domain.SeverityHigh:
		return priorityHigh
	case domain.SeverityMedium:
		return priorityMedium
	case domain.SeverityWarning:
		return priorityWarning
	case domain.SeverityLow:
		return priorityLow
	case domain.SeverityInfo:
		return priorityInfo
	default:
		return priorityUnknown
	}
}

// agedPast reports whether the alarm age crossed its severity threshold.
// Params: severity and current age.
// Returns: true when the age bonus applies.
func agedPast(severity domain.Severity, age time.Duration) bool {
	switch severity {
	case domain.SeverityLow:
		return age >= agingThresholdLow
	case domain.SeverityMedium:
		return age >= agingThresholdMedium
	case domain.SeverityHigh:
		return age >= agingThresholdHigh
	default:
		return false
	}
}

// severityForScore maps a clamped score back onto a severity band.
// Params: score in [0,100].
// Returns: banded severity.
func severityForScore(score int) domain.Severity {
	switch {
	case score >= 100:
		return domain.SeverityCritical
	case score >= 80:
		return domain.SeverityHigh
	case score >= 60:
		return domain.SeverityMedium
	case score >= 40:
		return domain.SeverityLow
	default:
		return domain.SeverityInfo
	}
}

// severityRank orders severities for upgrade-only comparison.
// Params: severity.
// Returns: rank increasing with urgency.
func severityRank(severity domain.Severity) int {
	switch severity {
	case domain.SeverityCritical:
		return 6
	case domain.SeverityHigh:
		return 5
	case domain.SeverityMedium:
		return 4
	case domain.SeverityWarning:
		return 3
	case domain.SeverityLow:
		return 2
	case domain.SeverityUnknown:
		return 1
	default:
		return 0
	}
}
