package dedup

import (
	"context"
	"sync"
	"time"

	"alarming/internal/domain"
)

// MemoryStore keeps dedup state in process memory for single-instance mode.
// Params: state map keyed by fingerprint and injected clock.
// Returns: store implementation without external dependencies.
type MemoryStore struct {
	mu     sync.Mutex
	now    func() time.Time
	states map[string]State
}

// NewMemoryStore creates an in-memory dedup store.
// Params: now function (defaults to time.Now when nil).
// Returns: initialized in-memory store.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{now: now, states: make(map[string]State)}
}

// CheckAndRecord atomically applies one occurrence to per-fingerprint state.
// Params: event, window length, and occurrence cap.
// Returns: dedup result; the mutex makes the read-modify-write atomic.
func (s *MemoryStore) CheckAndRecord(_ context.Context, event domain.AlertEvent, window time.Duration, maxCount int64) (Result, error) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.states[event.Fingerprint]
	if !ok || expired(state, now, window) {
		state = fresh(event, now, maxCount)
		s.states[event.Fingerprint] = state
		return Result{
			IsNewAlert:    true,
			OriginalEvent: state.OriginalEvent,
			CurrentCount:  1,
			FirstSeenAt:   state.FirstSeenAt,
		}, nil
	}

	state = advance(state, now)
	s.states[event.Fingerprint] = state
	return Result{
		IsNewAlert:    false,
		OriginalEvent: state.OriginalEvent,
		CurrentCount:  state.Count,
		FirstSeenAt:   state.FirstSeenAt,
	}, nil
}

// Close releases memory store resources.
// Params: none.
// Returns: nil.
func (s *MemoryStore) Close() error {
	return nil
}
