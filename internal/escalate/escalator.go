package escalate

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"alarming/internal/domain"
	"alarming/internal/events"
	"alarming/internal/lock"
	"alarming/internal/metrics"
	"alarming/internal/storage"
)

// Age thresholds per severity; alarms older than the threshold are
// raised one band. CRITICAL, INFO, and UNKNOWN never auto-escalate.
const (
	thresholdLow     = 30 * time.Minute
	thresholdMedium  = 60 * time.Minute
	thresholdHigh    = 120 * time.Minute
	thresholdWarning = 60 * time.Minute
)

// pendingStatuses selects the alarms still eligible for escalation.
var pendingStatuses = []domain.AlarmStatus{
	domain.StatusNew,
	domain.StatusAcknowledged,
	domain.StatusInProgress,
}

// Options tunes the escalation job.
// Params: tick interval, scan page size, and cluster lock settings.
// Returns: escalator runtime options.
type Options struct {
	Interval time.Duration
	PageSize int
	LockName string
	LockTTL  time.Duration
}

// Escalator raises the severity of aging pending alarms.
// Params: alarm repository, cluster lock, domain event bus, and clock.
// Returns: ticker-driven job where one node runs each tick.
type Escalator struct {
	alarms  storage.AlarmRepository
	locker  lock.Locker
	bus     *events.Bus
	logger  *slog.Logger
	now     func() time.Time
	options Options

	stop chan struct{}
	done sync.WaitGroup
	once sync.Once
}

// New creates the escalator.
// Params: repository, locker, bus, logger, options, and now function.
// Returns: initialized escalator; call Start to schedule it.
func New(alarms storage.AlarmRepository, locker lock.Locker, bus *events.Bus, logger *slog.Logger, options Options, now func() time.Time) *Escalator {
	if now == nil {
		now = time.Now
	}
	if options.Interval <= 0 {
		options.Interval = time.Minute
	}
	if options.PageSize <= 0 {
		options.PageSize = 100
	}
	if options.LockName == "" {
		options.LockName = "escalator"
	}
	if options.LockTTL <= 0 {
		options.LockTTL = options.Interval
	}
	return &Escalator{
		alarms:  alarms,
		locker:  locker,
		bus:     bus,
		logger:  logger,
		now:     now,
		options: options,
		stop:    make(chan struct{}),
	}
}

// Start launches the ticker loop.
// Params: context bounding the loop.
// Returns: none.
func (e *Escalator) Start(ctx context.Context) {
	e.done.Add(1)
	go func() {
		defer e.done.Done()
		ticker := time.NewTicker(e.options.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-e.stop:
				return
			case <-ticker.C:
				e.runTick(ctx)
			}
		}
	}()
}

// Stop ends the ticker loop and waits for the current tick.
// Params: none.
// Returns: none.
func (e *Escalator) Stop() {
	e.once.Do(func() { close(e.stop) })
	e.done.Wait()
}

// runTick runs one lock-guarded escalation sweep.
// Params: context.
// Returns: none; lock misses and batch errors are logged only.
func (e *Escalator) runTick(ctx context.Context) {
	acquired, err := e.locker.TryAcquire(ctx, e.options.LockName, e.options.LockTTL)
	if err != nil {
		if e.logger != nil {
			e.logger.Error("escalator lock error", "error", err.Error())
		}
		return
	}
	if !acquired {
		metrics.IncEscalatorLockMiss()
		return
	}
	defer func() {
		if err := e.locker.Release(ctx, e.options.LockName); err != nil && e.logger != nil {
			e.logger.Warn("escalator lock release failed", "error", err.Error())
		}
	}()

	if err := e.Sweep(ctx); err != nil && e.logger != nil {
		e.logger.Error("escalation sweep failed", "error", err.Error())
	}
}

// Sweep pages all pending alarms and escalates the aged ones.
// Params: context.
// Returns: first paging error; per-alarm failures are logged and the
// sweep continues.
func (e *Escalator) Sweep(ctx context.Context) error {
	offset := 0
	for {
		page, err := e.alarms.ListPending(ctx, pendingStatuses, offset, e.options.PageSize)
		if err != nil {
			return fmt.Errorf("list pending alarms: %w", err)
		}
		if len(page) == 0 {
			return nil
		}
		for _, alarm := range page {
			if err := e.escalateOne(ctx, alarm, "", ""); err != nil && e.logger != nil {
				e.logger.Error("alarm escalation failed",
					"alarm", alarm.ID,
					"tenant", alarm.Tenant,
					"error", err.Error())
			}
		}
		if len(page) < e.options.PageSize {
			return nil
		}
		offset += len(page)
	}
}

// EscalateManually raises one alarm on operator request.
// Params: context, alarm id, reason text, and acting user id.
// Returns: storage error, or nil when nothing changes.
func (e *Escalator) EscalateManually(ctx context.Context, alarmID, reason, userID string) error {
	alarm, err := e.alarms.Get(ctx, alarmID)
	if err != nil {
		return err
	}
	next, ok := nextSeverity(alarm.Severity)
	if !ok {
		return nil
	}
	return e.apply(ctx, alarm, next, reason, userID, "manual")
}

// escalateOne applies the age rule to a single alarm.
// Params: context, alarm snapshot, reason, and user id.
// Returns: storage error for this alarm only.
func (e *Escalator) escalateOne(ctx context.Context, alarm domain.Alarm, reason, userID string) error {
	threshold, eligible := agingThreshold(alarm.Severity)
	if !eligible || alarm.Age(e.now()) < threshold {
		return nil
	}
	next, ok := nextSeverity(alarm.Severity)
	if !ok || next == alarm.Severity {
		return nil
	}
	return e.apply(ctx, alarm, next, reason, userID, "aged")
}

// apply persists one severity raise and announces it.
// Params: context, alarm, target severity, escalation context, and trigger tag.
// Returns: persistence error; emit failures are absorbed by the bus.
func (e *Escalator) apply(ctx context.Context, alarm domain.Alarm, next domain.Severity, reason, userID, trigger string) error {
	from := alarm.Severity
	alarm.Severity = next
	stored, err := e.alarms.Update(ctx, alarm)
	if err != nil {
		return fmt.Errorf("persist escalation of %s: %w", alarm.ID, err)
	}
	metrics.IncEscalation(trigger)
	if e.logger != nil {
		e.logger.Info("alarm escalated",
			"alarm", stored.ID,
			"tenant", stored.Tenant,
			"from", string(from),
			"to", string(next),
			"trigger", trigger)
	}
	e.bus.Publish(ctx, domain.AlarmEscalated{
		AlarmID:    stored.ID,
		Tenant:     stored.Tenant,
		From:       from,
		To:         next,
		Reason:     reason,
		UserID:     userID,
		OccurredAt: e.now(),
	})
	return nil
}

// agingThreshold reports the age threshold for one severity.
// Params: severity.
// Returns: threshold and eligibility flag.
func agingThreshold(severity domain.Severity) (time.Duration, bool) {
	switch severity {
	case domain.SeverityLow:
		return thresholdLow, true
	case domain.SeverityMedium:
		return thresholdMedium, true
	case domain.SeverityHigh:
		return thresholdHigh, true
	case domain.SeverityWarning:
		return thresholdWarning, true
	default:
		return 0, false
	}
}

// nextSeverity reports the target band for one escalation step.
// Params: current severity.
// Returns: next severity and eligibility flag.
func nextSeverity(severity domain.Severity) (domain.Severity, bool) {
	switch severity {
	case domain.SeverityLow:
		return domain.SeverityMedium, true
	case domain.SeverityMedium, domain.SeverityWarning:
		return domain.SeverityHigh, true
	case domain.SeverityHigh:
		return domain.SeverityCritical, true
	default:
		return "", false
	}
}
