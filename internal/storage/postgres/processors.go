package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"alarming/internal/domain"
)

// ProcessorConfigRepository is the Postgres repository for chain config rows.
// Params: connection pool.
// Returns: read-mostly queries backing the per-tenant chain cache.
type ProcessorConfigRepository struct {
	db *sql.DB
}

// NewProcessorConfigRepository constructs the repository.
// Params: pool.
// Returns: initialized repository.
func NewProcessorConfigRepository(db *sql.DB) *ProcessorConfigRepository {
	return &ProcessorConfigRepository{db: db}
}

// ListEnabledByTenant lists enabled processor rows for one tenant.
// Params: context and tenant id.
// Returns: matching enabled rows.
func (r *ProcessorConfigRepository) ListEnabledByTenant(ctx context.Context, tenant string) ([]domain.ProcessorConfig, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT tenant, processor_name, enabled, execution_order
FROM processor_configs
WHERE tenant = $1 AND enabled`, tenant)
	if err != nil {
		return nil, fmt.Errorf("list processor configs for %q: %w", tenant, err)
	}
	defer rows.Close()

	var configs []domain.ProcessorConfig
	for rows.Next() {
		var cfg domain.ProcessorConfig
		if err := rows.Scan(&cfg.Tenant, &cfg.ProcessorName, &cfg.Enabled, &cfg.ExecutionOrder); err != nil {
			return nil, fmt.Errorf("scan processor config: %w", err)
		}
		configs = append(configs, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate processor configs: %w", err)
	}
	return configs, nil
}

// Tenants lists tenants that carry at least one enabled processor row.
// Params: context.
// Returns: distinct tenant ids.
func (r *ProcessorConfigRepository) Tenants(ctx context.Context) ([]string, error) {
	return distinctTenants(ctx, r.db, `SELECT DISTINCT tenant FROM processor_configs WHERE enabled ORDER BY tenant`)
}
