package dedup

import (
	"context"
	"time"

	"alarming/internal/domain"
)

// State is the per-fingerprint dedup record held in the distributed store.
// Params: original event snapshot, occurrence counter, and window timestamps.
// Returns: mutable dedup state keyed by fingerprint.
type State struct {
	OriginalEvent domain.AlertEvent `json:"original_event"`
	Count         int64             `json:"count"`
	FirstSeenAt   time.Time         `json:"first_seen_at"`
	LastSeenAt    time.Time         `json:"last_seen_at"`
	MaxCount      int64             `json:"max_count"`
}

// Result is the synchronous outcome of one check-and-record call.
// Params: new-alert flag, original event, and running window counters.
// Returns: decision consumed by the ingestion pipeline.
type Result struct {
	IsNewAlert    bool
	OriginalEvent domain.AlertEvent
	CurrentCount  int64
	FirstSeenAt   time.Time
}

// Store tracks at-most-one-new occurrence per fingerprint per window.
// Params: event, dedup window, and per-window occurrence cap.
// Returns: atomic cluster-wide check-and-record; per-key updates must be
// linearizable or duplicates leak through.
type Store interface {
	CheckAndRecord(ctx context.Context, event domain.AlertEvent, window time.Duration, maxCount int64) (Result, error)
	Close() error
}

// advance applies one occurrence to existing state inside the window.
// Params: state and occurrence time.
// Returns: updated state. Counting continues past MaxCount; the cap is
// advisory and only recorded for downstream consumers.
func advance(state State, now time.Time) State {
	state.Count++
	state.LastSeenAt = now
	return state
}

// fresh builds first-occurrence state for a fingerprint or expired window.
// Params: triggering event, occurrence time, and configured cap.
// Returns: reset state with count=1.
func fresh(event domain.AlertEvent, now time.Time, maxCount int64) State {
	return State{
		OriginalEvent: event,
		Count:         1,
		FirstSeenAt:   now,
		LastSeenAt:    now,
		MaxCount:      maxCount,
	}
}

// expired reports whether the window elapsed since the last occurrence.
// Params: state, occurrence time, and window length.
// Returns: true when the state must be reset.
func expired(state State, now time.Time, window time.Duration) bool {
	return now.Sub(state.LastSeenAt) > window
}
