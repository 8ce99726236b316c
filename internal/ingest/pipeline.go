package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"alarming/internal/dedup"
	"alarming/internal/domain"
	"alarming/internal/fingerprint"
	"alarming/internal/mapper"
	"alarming/internal/metrics"
	"alarming/internal/queue"
	"alarming/internal/sourcestatus"
)

// ErrSourceOffline rejects payloads from a disabled source before any
// parsing work happens.
var ErrSourceOffline = errors.New("source offline")

// TenantResolver maps a source id onto its owning tenant.
// Params: source id.
// Returns: tenant id (a fallback tenant for unknown sources).
type TenantResolver func(sourceID string) string

// Options tunes the ingestion pipeline.
// Params: fan-out cap and dedup window parameters.
// Returns: pipeline runtime options.
type Options struct {
	MaxConcurrency int
	DedupWindow    time.Duration
	DedupMaxCount  int64
}

// Pipeline turns raw source payloads into deduplicated queued events.
// Params: source tracker, mapper registry, normalizer, dedup store,
// queue, and tenant resolver.
// Returns: the inbound Process entry point.
type Pipeline struct {
	sources    sourcestatus.Tracker
	mappers    *mapper.Registry
	normalizer *mapper.Normalizer
	store      dedup.Store
	queue      queue.Queue
	tenantFor  TenantResolver
	logger     *slog.Logger
	now        func() time.Time
	options    Options
}

// NewPipeline creates the ingestion pipeline.
// Params: collaborators, tenant resolver, logger, options, and now function.
// Returns: initialized pipeline.
func NewPipeline(
	sources sourcestatus.Tracker,
	mappers *mapper.Registry,
	normalizer *mapper.Normalizer,
	store dedup.Store,
	q queue.Queue,
	tenantFor TenantResolver,
	logger *slog.Logger,
	options Options,
	now func() time.Time,
) *Pipeline {
	if options.MaxConcurrency < 1 {
		options.MaxConcurrency = 1
	}
	if options.DedupWindow <= 0 {
		options.DedupWindow = 5 * time.Minute
	}
	if now == nil {
		now = time.Now
	}
	if tenantFor == nil {
		tenantFor = func(string) string { return "default" }
	}
	return &Pipeline{
		sources:    sources,
		mappers:    mappers,
		normalizer: normalizer,
		store:      store,
		queue:      q,
		tenantFor:  tenantFor,
		logger:     logger,
		now:        now,
		options:    options,
	}
}

// Process ingests one raw payload from a source.
// Params: context, source id, and raw payload bytes.
// Returns: ErrSourceOffline before any mapper work for disabled
// sources, mapper.ErrMapperNotFound for unregistered ones, or the
// mapper parse error. Per-event failures inside the fan-out are
// logged and counted without failing siblings.
func (p *Pipeline) Process(ctx context.Context, sourceID string, rawPayload []byte) error {
	online, err := p.sources.IsOnline(ctx, sourceID)
	if err != nil {
		return fmt.Errorf("source status for %q: %w", sourceID, err)
	}
	if !online {
		return fmt.Errorf("%w: %q", ErrSourceOffline, sourceID)
	}

	m, err := p.mappers.Lookup(sourceID)
	if err != nil {
		metrics.IncMapperMiss()
		return err
	}
	rawEvents, err := m.Map(rawPayload)
	if err != nil {
		return fmt.Errorf("map payload from %q: %w", sourceID, err)
	}
	if len(rawEvents) == 0 {
		return nil
	}

	semaphore := make(chan struct{}, p.options.MaxConcurrency)
	var wg sync.WaitGroup
	for _, raw := range rawEvents {
		wg.Add(1)
		semaphore <- struct{}{}
		go func(raw mapper.RawEvent) {
			defer wg.Done()
			defer func() { <-semaphore }()
			p.processOne(ctx, sourceID, raw)
		}(raw)
	}
	wg.Wait()
	return nil
}

// processOne normalizes, fingerprints, dedups, and publishes one event.
// Params: context, source id, and parsed raw event.
// Returns: none; failures are logged and counted here.
func (p *Pipeline) processOne(ctx context.Context, sourceID string, raw mapper.RawEvent) {
	event, err := p.buildEvent(ctx, sourceID, raw)
	if err != nil {
		metrics.IncEventFailed(sourceID)
		if p.logger != nil {
			p.logger.Error("event ingestion failed",
				"source", sourceID,
				"error", err.Error())
		}
		return
	}

	result, err := p.store.CheckAndRecord(ctx, event, p.options.DedupWindow, p.options.DedupMaxCount)
	if err != nil {
		metrics.IncEventFailed(sourceID)
		if p.logger != nil {
			p.logger.Error("dedup check failed",
				"source", sourceID,
				"fingerprint", event.Fingerprint,
				"error", err.Error())
		}
		return
	}
	if !result.IsNewAlert {
		metrics.IncEventFiltered(sourceID)
		return
	}

	event.OccurrenceCount = result.CurrentCount
	event.FirstSeenAt = result.FirstSeenAt
	if err := p.queue.Publish(ctx, event); err != nil {
		metrics.IncEventFailed(sourceID)
		if p.logger != nil {
			p.logger.Error("event publish failed",
				"source", sourceID,
				"fingerprint", event.Fingerprint,
				"error", err.Error())
		}
		return
	}
	metrics.IncEventIngested(sourceID)
}

// buildEvent assembles the canonical event from one raw occurrence.
// Params: context, source id, and raw event.
// Returns: validated event or normalization/validation error.
func (p *Pipeline) buildEvent(ctx context.Context, sourceID string, raw mapper.RawEvent) (domain.AlertEvent, error) {
	labels, err := p.normalizer.Normalize(ctx, sourceID, raw.Payload)
	if err != nil {
		return domain.AlertEvent{}, err
	}
	if len(labels) == 0 {
		return domain.AlertEvent{}, fmt.Errorf("no labels extracted from %q payload", sourceID)
	}

	event := domain.AlertEvent{
		Fingerprint: fingerprint.Compute(labels),
		SourceID:    sourceID,
		Tenant:      p.tenantFor(sourceID),
		Summary:     raw.Summary,
		Labels:      labels,
		Status:      raw.Status,
		Severity:    raw.Severity,
	}
	event.ApplyDefaults(p.now())
	if err := event.Validate(); err != nil {
		return domain.AlertEvent{}, err
	}
	return event, nil
}
