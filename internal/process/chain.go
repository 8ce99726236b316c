package process

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"alarming/internal/domain"
	"alarming/internal/metrics"
	"alarming/internal/storage"
)

// ChainOrchestrator builds and runs per-tenant processor chains.
// Params: processor registry, config repository, and cached tenant chains.
// Returns: chain execution with per-processor failure isolation; chains
// rebuild on invalidation broadcasts.
type ChainOrchestrator struct {
	registry *Registry
	repo     storage.ProcessorConfigRepository
	logger   *slog.Logger

	mu       sync.RWMutex
	byTenant map[string][]Processor
}

// NewChainOrchestrator creates an empty chain orchestrator.
// Params: registry, config repository, and logger.
// Returns: initialized orchestrator; call LoadAll before serving traffic.
func NewChainOrchestrator(registry *Registry, repo storage.ProcessorConfigRepository, logger *slog.Logger) *ChainOrchestrator {
	return &ChainOrchestrator{
		registry: registry,
		repo:     repo,
		logger:   logger,
		byTenant: make(map[string][]Processor),
	}
}

// LoadAll rebuilds all tenant chains from the repository.
// Params: context.
// Returns: first repository error.
func (c *ChainOrchestrator) LoadAll(ctx context.Context) error {
	tenants, err := c.repo.Tenants(ctx)
	if err != nil {
		return fmt.Errorf("list processor tenants: %w", err)
	}

	next := make(map[string][]Processor, len(tenants))
	for _, tenant := range tenants {
		chain, err := c.buildChain(ctx, tenant)
		if err != nil {
			return err
		}
		next[tenant] = chain
	}

	c.mu.Lock()
	c.byTenant = next
	c.mu.Unlock()
	return nil
}

// Refresh rebuilds the chain for one tenant.
// Params: context and tenant id.
// Returns: repository error.
func (c *ChainOrchestrator) Refresh(ctx context.Context, tenant string) error {
	chain, err := c.buildChain(ctx, tenant)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.byTenant[tenant] = chain
	c.mu.Unlock()
	return nil
}

// buildChain resolves one tenant's enabled rows against the registry.
// Params: context and tenant id.
// Returns: processors sorted by execution order; rows naming an
// unregistered processor are logged and skipped.
func (c *ChainOrchestrator) buildChain(ctx context.Context, tenant string) ([]Processor, error) {
	configs, err := c.repo.ListEnabledByTenant(ctx, tenant)
	if err != nil {
		return nil, fmt.Errorf("load chain config for %q: %w", tenant, err)
	}
	sort.SliceStable(configs, func(i, j int) bool {
		return configs[i].ExecutionOrder < configs[j].ExecutionOrder
	})

	chain := make([]Processor, 0, len(configs))
	for _, cfg := range configs {
		processor, ok := c.registry.Lookup(cfg.ProcessorName)
		if !ok {
			if c.logger != nil {
				c.logger.Warn("unknown processor in chain config",
					"tenant", tenant, "processor", cfg.ProcessorName)
			}
			continue
		}
		chain = append(chain, processor)
	}
	return chain, nil
}

// HandleInvalidation reacts to one chain-change broadcast.
// Params: payload carrying a tenant id, or empty for a full reload.
// Returns: none; rebuild failures are logged and retried on the next change.
func (c *ChainOrchestrator) HandleInvalidation(payload []byte) {
	tenant := strings.TrimSpace(string(payload))
	ctx := context.Background()
	var err error
	if tenant == "" {
		err = c.LoadAll(ctx)
	} else {
		err = c.Refresh(ctx, tenant)
	}
	if err != nil && c.logger != nil {
		c.logger.Error("chain cache rebuild failed", "tenant", tenant, "error", err.Error())
	}
}

// Run executes the tenant chain over one alarm.
// Params: context and alarm under processing.
// Returns: none; a failing processor is logged and counted while the
// remaining steps still run. Tenants without a chain are a no-op.
func (c *ChainOrchestrator) Run(ctx context.Context, alarm *domain.Alarm) {
	c.mu.RLock()
	chain := c.byTenant[alarm.Tenant]
	c.mu.RUnlock()

	for _, processor := range chain {
		if err := c.runStep(ctx, processor, alarm); err != nil {
			metrics.IncProcessorFailure(processor.Name())
			if c.logger != nil {
				c.logger.Error("processor failed",
					"processor", processor.Name(),
					"tenant", alarm.Tenant,
					"alarm", alarm.ID,
					"error", err.Error())
			}
		}
	}
}

// runStep invokes one processor with panic containment.
// Params: context, processor, and alarm.
// Returns: processor error or recovered panic.
func (c *ChainOrchestrator) runStep(ctx context.Context, processor Processor, alarm *domain.Alarm) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("processor panicked: %v", recovered)
		}
	}()
	return processor.Process(ctx, alarm)
}
