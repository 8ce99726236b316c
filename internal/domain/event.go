package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Severity grades alarm impact from most to least urgent.
// Params: canonical upper-case severity constants.
// Returns: severity level shared by events, alarms, and rules.
type Severity string

const (
	// SeverityCritical marks highest-impact condition.
	SeverityCritical Severity = "CRITICAL"
	// SeverityHigh marks serious condition requiring prompt action.
	SeverityHigh Severity = "HIGH"
	// SeverityMedium marks degraded but tolerable condition.
	SeverityMedium Severity = "MEDIUM"
	// SeverityLow marks minor condition.
	SeverityLow Severity = "LOW"
	// SeverityInfo marks informational condition.
	SeverityInfo Severity = "INFO"
	// SeverityWarning marks pre-failure condition.
	SeverityWarning Severity = "WARNING"
	// SeverityUnknown marks unclassified condition.
	SeverityUnknown Severity = "UNKNOWN"
)

// EventStatus identifies alert occurrence phase.
// Params: firing/resolved constants.
// Returns: normalized occurrence status.
type EventStatus string

const (
	// EventStatusFiring marks active occurrence.
	EventStatusFiring EventStatus = "FIRING"
	// EventStatusResolved marks closed occurrence reported by the source.
	EventStatusResolved EventStatus = "RESOLVED"
)

// ParseSeverity normalizes free-form severity text into the canonical enum.
// Params: raw severity token from a source payload.
// Returns: matching severity or SeverityUnknown.
func ParseSeverity(raw string) Severity {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "CRITICAL", "FATAL", "P1":
		return SeverityCritical
	case "HIGH", "MAJOR", "ERROR", "P2":
		return SeverityHigh
	case "MEDIUM", "MODERATE", "P3":
		return SeverityMedium
	case "LOW", "MINOR", "P4":
		return SeverityLow
	case "INFO", "INFORMATIONAL", "P5":
		return SeverityInfo
	case "WARNING", "WARN":
		return SeverityWarning
	default:
		return SeverityUnknown
	}
}

// Valid reports whether severity is one of the canonical constants.
// Params: none.
// Returns: true for known severity values.
func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow,
		SeverityInfo, SeverityWarning, SeverityUnknown:
		return true
	default:
		return false
	}
}

// AlertEvent is one deduplicated alert occurrence produced by ingestion.
// Params: fingerprint identity, source context, normalized labels, and occurrence window.
// Returns: canonical event consumed once by the processing side.
type AlertEvent struct {
	Fingerprint     string            `json:"fingerprint"`
	SourceID        string            `json:"source_id"`
	Tenant          string            `json:"tenant"`
	Summary         string            `json:"summary"`
	Labels          map[string]string `json:"labels"`
	OccurrenceCount int64             `json:"occurrence_count"`
	FirstSeenAt     time.Time         `json:"first_seen_at"`
	LastSeenAt      time.Time         `json:"last_seen_at"`
	Status          EventStatus       `json:"status"`
	Severity        Severity          `json:"severity"`
}

// ApplyDefaults fills unset occurrence fields before the event enters the pipeline.
// Params: current processing time.
// Returns: none (event mutated in place).
func (e *AlertEvent) ApplyDefaults(now time.Time) {
	if e.OccurrenceCount < 1 {
		e.OccurrenceCount = 1
	}
	if e.FirstSeenAt.IsZero() {
		e.FirstSeenAt = now
	}
	if e.LastSeenAt.IsZero() {
		e.LastSeenAt = now
	}
	if e.Status == "" {
		e.Status = EventStatusFiring
	}
	if e.Severity == "" {
		e.Severity = SeverityUnknown
	}
}

// Validate validates one event against the pipeline contract.
// Params: event fields produced by a mapper.
// Returns: validation error when the contract is violated.
func (e AlertEvent) Validate() error {
	if strings.TrimSpace(e.SourceID) == "" {
		return errors.New("source_id is required")
	}
	if len(e.Labels) == 0 {
		return errors.New("labels are required")
	}
	if e.OccurrenceCount < 1 {
		return errors.New("occurrence_count must be >=1")
	}
	switch e.Status {
	case EventStatusFiring, EventStatusResolved:
	default:
		return fmt.Errorf("unsupported status %q", e.Status)
	}
	if !e.Severity.Valid() {
		return fmt.Errorf("unsupported severity %q", e.Severity)
	}
	return nil
}

// DecodeAlertEvent decodes and validates one queued event payload.
// Params: JSON document bytes.
// Returns: validated event or decode/validation error.
func DecodeAlertEvent(raw []byte) (AlertEvent, error) {
	var event AlertEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return AlertEvent{}, fmt.Errorf("decode alert event: %w", err)
	}
	if err := event.Validate(); err != nil {
		return AlertEvent{}, err
	}
	return event, nil
}
