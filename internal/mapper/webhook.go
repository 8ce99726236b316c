package mapper

import (
	"encoding/json"
	"fmt"
	"strings"

	"alarming/internal/domain"
)

// WebhookMapper parses alertmanager-style webhook payloads.
// Params: owning source id.
// Returns: mapper for sources forwarding grouped webhook notifications.
type WebhookMapper struct {
	sourceID string
}

// webhookPayload mirrors the grouped webhook document shape.
// Params: alerts array with labels and annotations per alert.
// Returns: decode target for webhook payloads.
type webhookPayload struct {
	Status string `json:"status"`
	Alerts []struct {
		Status      string            `json:"status"`
		Labels      map[string]string `json:"labels"`
		Annotations map[string]string `json:"annotations"`
		StartsAt    string            `json:"startsAt"`
	} `json:"alerts"`
}

// NewWebhookMapper creates the webhook mapper for a source.
// Params: source id.
// Returns: initialized mapper.
func NewWebhookMapper(sourceID string) *WebhookMapper {
	return &WebhookMapper{sourceID: sourceID}
}

// Source returns the owning source id.
// Params: none.
// Returns: source id this mapper is registered under.
func (m *WebhookMapper) Source() string {
	return m.sourceID
}

// Map parses one grouped webhook payload into raw events.
// Params: raw JSON bytes.
// Returns: one raw event per grouped alert or parse error.
func (m *WebhookMapper) Map(raw []byte) ([]RawEvent, error) {
	var payload webhookPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode webhook payload: %w", err)
	}
	if len(payload.Alerts) == 0 {
		return nil, fmt.Errorf("webhook payload has no alerts for source %q", m.sourceID)
	}

	events := make([]RawEvent, 0, len(payload.Alerts))
	for _, alert := range payload.Alerts {
		document := map[string]any{
			"labels":      toAnyMap(alert.Labels),
			"annotations": toAnyMap(alert.Annotations),
			"startsAt":    alert.StartsAt,
		}
		status := domain.EventStatusFiring
		if strings.EqualFold(alert.Status, "resolved") || strings.EqualFold(payload.Status, "resolved") {
			status = domain.EventStatusResolved
		}
		events = append(events, RawEvent{
			Payload:  document,
			Summary:  alert.Annotations["summary"],
			Severity: domain.ParseSeverity(alert.Labels["severity"]),
			Status:   status,
		})
	}
	return events, nil
}

// toAnyMap widens a string map for path lookup.
// Params: string map.
// Returns: map with any-typed values.
func toAnyMap(in map[string]string) map[string]any {
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
