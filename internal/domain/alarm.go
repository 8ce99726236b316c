package domain

import "time"

// AlarmStatus is the durable alarm lifecycle state.
// Params: explicit state-machine constants.
// Returns: lifecycle state driven by the status manager.
type AlarmStatus string

const (
	// StatusNew marks freshly created alarm awaiting triage.
	StatusNew AlarmStatus = "NEW"
	// StatusAcknowledged marks alarm seen by an operator.
	StatusAcknowledged AlarmStatus = "ACKNOWLEDGED"
	// StatusInProgress marks alarm under active handling.
	StatusInProgress AlarmStatus = "IN_PROGRESS"
	// StatusResolved marks condition fixed but alarm still open for review.
	StatusResolved AlarmStatus = "RESOLVED"
	// StatusClosed marks terminal handled state.
	StatusClosed AlarmStatus = "CLOSED"
)

// Metadata keys written by the processor chain.
const (
	// MetaSilenced flags alarm suppressed by a silence rule.
	MetaSilenced = "silenced"
	// MetaSilenceUntil stores RFC3339 end of the silence window.
	MetaSilenceUntil = "silence_until"
	// MetaAssignee stores routed operator id.
	MetaAssignee = "assignee"
	// MetaTeam stores routed team id.
	MetaTeam = "team"
	// MetaEscalationLevel stores numeric routing escalation level.
	MetaEscalationLevel = "escalation_level"
	// MetaCategory stores classification rule output.
	MetaCategory = "category"
)

// Alarm is a durable tenant-scoped alarm record.
// Params: identity, descriptive fields, lifecycle status, and audit timestamps.
// Returns: record mutated by the processor chain, status manager, and escalator.
type Alarm struct {
	ID             string            `json:"id"`
	Tenant         string            `json:"tenant"`
	Title          string            `json:"title"`
	Description    string            `json:"description"`
	Severity       Severity          `json:"severity"`
	Status         AlarmStatus       `json:"status"`
	Source         string            `json:"source"`
	SourceID       string            `json:"source_id"`
	Fingerprint    string            `json:"fingerprint"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	OccurredAt     time.Time         `json:"occurred_at"`
	AcknowledgedAt *time.Time        `json:"acknowledged_at,omitempty"`
	ResolvedAt     *time.Time        `json:"resolved_at,omitempty"`
	ClosedAt       *time.Time        `json:"closed_at,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// SetMeta writes one metadata key, allocating the map on first use.
// Params: metadata key and value.
// Returns: none (alarm mutated in place).
func (a *Alarm) SetMeta(key, value string) {
	if a.Metadata == nil {
		a.Metadata = make(map[string]string)
	}
	a.Metadata[key] = value
}

// Age reports how long the alarm has existed since its occurrence.
// Params: current time.
// Returns: non-negative age duration.
func (a Alarm) Age(now time.Time) time.Duration {
	age := now.Sub(a.OccurredAt)
	if age < 0 {
		return 0
	}
	return age
}
