package domain

import "time"

// AlarmCreated is emitted after a new alarm is persisted.
// Params: created alarm snapshot.
// Returns: domain event consumed by notification/audit subscribers.
type AlarmCreated struct {
	Alarm      Alarm     `json:"alarm"`
	OccurredAt time.Time `json:"occurred_at"`
}

// AlarmUpdated is emitted after a persisted alarm mutates outside the status machine.
// Params: alarm snapshots before and after mutation.
// Returns: domain event carrying the delta.
type AlarmUpdated struct {
	Before     Alarm     `json:"before"`
	After      Alarm     `json:"after"`
	OccurredAt time.Time `json:"occurred_at"`
}

// AlarmStatusChanged is emitted on every successful lifecycle transition.
// Params: alarm identity and from/to states.
// Returns: domain event carrying the transition.
type AlarmStatusChanged struct {
	AlarmID    string      `json:"alarm_id"`
	Tenant     string      `json:"tenant"`
	From       AlarmStatus `json:"from"`
	To         AlarmStatus `json:"to"`
	OccurredAt time.Time   `json:"occurred_at"`
}

// AlarmEscalated is emitted when alarm severity is raised by age or operator.
// Params: alarm identity, severity delta, and escalation context.
// Returns: domain event carrying the escalation.
type AlarmEscalated struct {
	AlarmID    string    `json:"alarm_id"`
	Tenant     string    `json:"tenant"`
	From       Severity  `json:"from"`
	To         Severity  `json:"to"`
	Reason     string    `json:"reason,omitempty"`
	UserID     string    `json:"user_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
