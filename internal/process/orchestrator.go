package process

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"alarming/internal/domain"
	"alarming/internal/events"
	"alarming/internal/metrics"
	"alarming/internal/storage"
)

// ErrExecutorFull signals a submit against a saturated executor.
// The caller may retry; the event was not accepted.
var ErrExecutorFull = errors.New("processing executor full")

// Orchestrator turns queued events into persisted alarms.
// Params: alarm repository, chain orchestrator, domain event bus,
// bounded async executor, and injected clock.
// Returns: processing entry point for the consumer side.
type Orchestrator struct {
	alarms storage.AlarmRepository
	chains *ChainOrchestrator
	bus    *events.Bus
	logger *slog.Logger
	now    func() time.Time

	jobs    chan domain.AlertEvent
	workers int
	wg      sync.WaitGroup
	once    sync.Once
}

// NewOrchestrator creates the processing orchestrator.
// Params: repository, chain orchestrator, bus, logger, worker count and
// queue capacity for the async executor, and now function.
// Returns: initialized orchestrator; call Start before submitting.
func NewOrchestrator(
	alarms storage.AlarmRepository,
	chains *ChainOrchestrator,
	bus *events.Bus,
	logger *slog.Logger,
	workers int,
	queueSize int,
	now func() time.Time,
) *Orchestrator {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = workers
	}
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{
		alarms:  alarms,
		chains:  chains,
		bus:     bus,
		logger:  logger,
		now:     now,
		jobs:    make(chan domain.AlertEvent, queueSize),
		workers: workers,
	}
}

// Start launches the executor workers.
// Params: context bounding worker lifetime.
// Returns: none.
func (o *Orchestrator) Start(ctx context.Context) {
	for i := 0; i < o.workers; i++ {
		o.wg.Add(1)
		go o.worker(ctx)
	}
}

// Stop rejects further submits and waits for in-flight work.
// Params: none.
// Returns: none.
func (o *Orchestrator) Stop() {
	o.once.Do(func() { close(o.jobs) })
	o.wg.Wait()
}

// ProcessEvent submits one event to the executor without blocking.
// Params: context and validated event.
// Returns: ErrExecutorFull when all workers and the backlog are busy;
// the rejection is logged and counted so the caller can retry.
func (o *Orchestrator) ProcessEvent(_ context.Context, event domain.AlertEvent) error {
	select {
	case o.jobs <- event:
		return nil
	default:
		metrics.IncOrchestratorRejection()
		if o.logger != nil {
			o.logger.Warn("processing submit rejected",
				"fingerprint", event.Fingerprint,
				"source", event.SourceID)
		}
		return ErrExecutorFull
	}
}

// worker drains the job channel until it closes or the context ends.
// Params: context bounding the worker.
// Returns: none.
func (o *Orchestrator) worker(ctx context.Context) {
	defer o.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-o.jobs:
			if !ok {
				return
			}
			if err := o.processSingleAlarm(ctx, event); err != nil && o.logger != nil {
				o.logger.Error("alarm processing failed",
					"fingerprint", event.Fingerprint,
					"tenant", event.Tenant,
					"error", err.Error())
			}
		}
	}
}

// processSingleAlarm maps, processes, persists, and announces one alarm.
// Params: context and event.
// Returns: persistence error; chain failures and emit failures never
// fail the alarm.
func (o *Orchestrator) processSingleAlarm(ctx context.Context, event domain.AlertEvent) error {
	alarm := o.buildAlarm(event)
	o.chains.Run(ctx, &alarm)

	if err := o.alarms.Create(ctx, &alarm); err != nil {
		return fmt.Errorf("persist alarm %s: %w", alarm.ID, err)
	}
	metrics.IncAlarmCreated(alarm.Tenant)
	if o.logger != nil {
		o.logger.Info("alarm created",
			"alarm", alarm.ID,
			"tenant", alarm.Tenant,
			"severity", string(alarm.Severity),
			"source", alarm.Source)
	}

	o.bus.Publish(ctx, domain.AlarmCreated{Alarm: alarm, OccurredAt: o.now()})
	return nil
}

// buildAlarm maps one deduplicated event onto a new alarm record.
// Params: event.
// Returns: alarm in status NEW with a deterministic id.
func (o *Orchestrator) buildAlarm(event domain.AlertEvent) domain.Alarm {
	occurredAt := event.FirstSeenAt
	if occurredAt.IsZero() {
		occurredAt = o.now()
	}
	alarm := domain.Alarm{
		ID:          BuildAlarmID(event.Tenant, event.Fingerprint, occurredAt),
		Tenant:      event.Tenant,
		Title:       event.Summary,
		Description: describeEvent(event),
		Severity:    event.Severity,
		Status:      domain.StatusNew,
		Source:      event.SourceID,
		SourceID:    event.Labels["event_id"],
		Fingerprint: event.Fingerprint,
		OccurredAt:  occurredAt,
	}
	if alarm.Title == "" {
		alarm.Title = event.Fingerprint
	}
	for key, value := range event.Labels {
		alarm.SetMeta(key, value)
	}
	return alarm
}

// describeEvent renders a stable human-readable label summary.
// Params: event.
// Returns: sorted key=value lines.
func describeEvent(event domain.AlertEvent) string {
	keys := make([]string, 0, len(event.Labels))
	for key := range event.Labels {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var builder strings.Builder
	for _, key := range keys {
		if builder.Len() > 0 {
			builder.WriteByte('\n')
		}
		builder.WriteString(key)
		builder.WriteByte('=')
		builder.WriteString(event.Labels[key])
	}
	return builder.String()
}

// BuildAlarmID derives the deterministic alarm id.
// Params: tenant, fingerprint, and occurrence time.
// Returns: hex sha1 over the joined identity.
func BuildAlarmID(tenant, fingerprint string, occurredAt time.Time) string {
	sum := sha1.Sum([]byte(tenant + "|" + fingerprint + "|" + occurredAt.UTC().Format(time.RFC3339Nano)))
	return hex.EncodeToString(sum[:])
}
