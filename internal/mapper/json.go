package mapper

import (
	"encoding/json"
	"fmt"
	"strings"

	"alarming/internal/domain"
)

// JSONMapper parses generic JSON payloads: one object or an array of objects.
// Params: owning source id.
// Returns: mapper for sources posting plain JSON alert documents.
type JSONMapper struct {
	sourceID string
}

// NewJSONMapper creates the generic JSON mapper for a source.
// Params: source id.
// Returns: initialized mapper.
func NewJSONMapper(sourceID string) *JSONMapper {
	return &JSONMapper{sourceID: sourceID}
}

// Source returns the owning source id.
// Params: none.
// Returns: source id this mapper is registered under.
func (m *JSONMapper) Source() string {
	return m.sourceID
}

// Map parses one payload into raw events.
// Params: raw JSON bytes (object or non-empty array of objects).
// Returns: one raw event per object or parse error.
func (m *JSONMapper) Map(raw []byte) ([]RawEvent, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return nil, fmt.Errorf("empty payload for source %q", m.sourceID)
	}

	if strings.HasPrefix(trimmed, "[") {
		var documents []map[string]any
		if err := json.Unmarshal(raw, &documents); err != nil {
			return nil, fmt.Errorf("decode payload array: %w", err)
		}
		if len(documents) == 0 {
			return nil, fmt.Errorf("payload array is empty for source %q", m.sourceID)
		}
		events := make([]RawEvent, 0, len(documents))
		for _, document := range documents {
			events = append(events, buildRawEvent(document))
		}
		return events, nil
	}

	var document map[string]any
	if err := json.Unmarshal(raw, &document); err != nil {
		return nil, fmt.Errorf("decode payload object: %w", err)
	}
	return []RawEvent{buildRawEvent(document)}, nil
}

// buildRawEvent extracts descriptive fields from one parsed document.
// Params: parsed payload document.
// Returns: raw event with summary/severity/status picked from common keys.
func buildRawEvent(document map[string]any) RawEvent {
	event := RawEvent{
		Payload:  document,
		Summary:  firstString(document, "summary", "message", "title"),
		Severity: domain.ParseSeverity(firstString(document, "severity", "level")),
		Status:   domain.EventStatusFiring,
	}
	if strings.EqualFold(firstString(document, "status"), "resolved") {
		event.Status = domain.EventStatusResolved
	}
	return event
}

// firstString returns the first present string value among candidate keys.
// Params: document and ordered candidate keys.
// Returns: first non-empty string or empty string.
func firstString(document map[string]any, keys ...string) string {
	for _, key := range keys {
		if value, ok := document[key].(string); ok && value != "" {
			return value
		}
	}
	return ""
}
