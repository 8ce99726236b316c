package status

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"alarming/internal/domain"
	"alarming/internal/events"
	"alarming/internal/metrics"
	"alarming/internal/storage"
)

// ErrInvalidTransition rejects a lifecycle move outside the allowed table.
// The alarm stays untouched.
type ErrInvalidTransition struct {
	From domain.AlarmStatus
	To   domain.AlarmStatus
}

// Error renders the rejected transition.
// Params: none.
// Returns: message naming both states.
func (e ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}

// allowedTransitions is the complete lifecycle table. RESOLVED and
// CLOSED may reopen to NEW; everything else moves forward only.
var allowedTransitions = map[domain.AlarmStatus]map[domain.AlarmStatus]struct{}{
	domain.StatusNew: {
		domain.StatusAcknowledged: {},
		domain.StatusInProgress:   {},
		domain.StatusResolved:     {},
		domain.StatusClosed:       {},
	},
	domain.StatusAcknowledged: {
		domain.StatusInProgress: {},
		domain.StatusResolved:   {},
		domain.StatusClosed:     {},
	},
	domain.StatusInProgress: {
		domain.StatusResolved: {},
		domain.StatusClosed:   {},
	},
	domain.StatusResolved: {
		domain.StatusClosed: {},
		domain.StatusNew:    {},
	},
	domain.StatusClosed: {
		domain.StatusNew: {},
	},
}

// TransitionAllowed reports whether the lifecycle table admits a move.
// Params: current and requested states.
// Returns: true for allowed moves; same-state is not in the table and
// is handled as a no-op by the manager.
func TransitionAllowed(from, to domain.AlarmStatus) bool {
	targets, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	_, ok = targets[to]
	return ok
}

// cachedStatus is one short-lived cache entry.
type cachedStatus struct {
	status    domain.AlarmStatus
	expiresAt time.Time
}

// Manager drives the alarm lifecycle state machine.
// Params: alarm repository, domain event bus, short-TTL status cache,
// and injected clock.
// Returns: validated transitions with idempotent timestamps.
type Manager struct {
	alarms storage.AlarmRepository
	bus    *events.Bus
	logger *slog.Logger
	now    func() time.Time
	ttl    time.Duration

	mu    sync.Mutex
	cache map[string]cachedStatus
}

// NewManager creates the status manager.
// Params: repository, bus, logger, status cache TTL, and now function.
// Returns: initialized manager.
func NewManager(alarms storage.AlarmRepository, bus *events.Bus, logger *slog.Logger, ttl time.Duration, now func() time.Time) *Manager {
	if now == nil {
		now = time.Now
	}
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &Manager{
		alarms: alarms,
		bus:    bus,
		logger: logger,
		now:    now,
		ttl:    ttl,
		cache:  make(map[string]cachedStatus),
	}
}

// Transition moves one alarm to a new lifecycle state.
// Params: context, alarm id, and requested state.
// Returns: stored alarm after the move; a same-state request is a
// silent success, a move outside the table is ErrInvalidTransition
// with no mutation, absent alarms return storage.ErrNotFound.
func (m *Manager) Transition(ctx context.Context, alarmID string, to domain.AlarmStatus) (domain.Alarm, error) {
	alarm, err := m.alarms.Get(ctx, alarmID)
	if err != nil {
		return domain.Alarm{}, err
	}
	from := alarm.Status
	if from == to {
		return alarm, nil
	}
	if !TransitionAllowed(from, to) {
		metrics.IncInvalidTransition()
		return domain.Alarm{}, ErrInvalidTransition{From: from, To: to}
	}

	now := m.now()
	alarm.Status = to
	applyTimestamps(&alarm, to, now)

	stored, err := m.alarms.UpdateStatus(ctx, alarm)
	if err != nil {
		return domain.Alarm{}, fmt.Errorf("persist status of %s: %w", alarmID, err)
	}
	m.storeCache(stored.ID, stored.Status)
	metrics.IncStatusTransition(string(to))
	if m.logger != nil {
		m.logger.Info("alarm status changed",
			"alarm", stored.ID,
			"tenant", stored.Tenant,
			"from", string(from),
			"to", string(to))
	}

	m.bus.Publish(ctx, domain.AlarmStatusChanged{
		AlarmID:    stored.ID,
		Tenant:     stored.Tenant,
		From:       from,
		To:         to,
		OccurredAt: now,
	})
	return stored, nil
}

// applyTimestamps sets lifecycle timestamps exactly once.
// Params: alarm, target state, and transition time.
// Returns: none (alarm mutated in place).
func applyTimestamps(alarm *domain.Alarm, to domain.AlarmStatus, now time.Time) {
	switch to {
	case domain.StatusAcknowledged, domain.StatusInProgress:
		if alarm.AcknowledgedAt == nil {
			stamp := now
			alarm.AcknowledgedAt = &stamp
		}
	case domain.StatusResolved:
		if alarm.ResolvedAt == nil {
			stamp := now
			alarm.ResolvedAt = &stamp
		}
	case domain.StatusClosed:
		if alarm.ResolvedAt == nil {
			stamp := now
			alarm.ResolvedAt = &stamp
		}
		if alarm.ClosedAt == nil {
			stamp := now
			alarm.ClosedAt = &stamp
		}
	}
}

// CurrentStatus reads one alarm's status through the short-TTL cache.
// Params: context and alarm id.
// Returns: cached or freshly loaded status, storage.ErrNotFound when absent.
func (m *Manager) CurrentStatus(ctx context.Context, alarmID string) (domain.AlarmStatus, error) {
	m.mu.Lock()
	entry, ok := m.cache[alarmID]
	if ok && m.now().Before(entry.expiresAt) {
		m.mu.Unlock()
		return entry.status, nil
	}
	m.mu.Unlock()

	alarm, err := m.alarms.Get(ctx, alarmID)
	if err != nil {
		return "", err
	}
	m.storeCache(alarm.ID, alarm.Status)
	return alarm.Status, nil
}

// Invalidate drops one alarm's cache entry after an external write.
// Params: alarm id.
// Returns: none.
func (m *Manager) Invalidate(alarmID string) {
	m.mu.Lock()
	delete(m.cache, alarmID)
	m.mu.Unlock()
}

// storeCache refreshes one cache entry.
// Params: alarm id and current status.
// Returns: none.
func (m *Manager) storeCache(alarmID string, status domain.AlarmStatus) {
	m.mu.Lock()
	m.cache[alarmID] = cachedStatus{status: status, expiresAt: m.now().Add(m.ttl)}
	m.mu.Unlock()
}
