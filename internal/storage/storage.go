package storage

import (
	"context"
	"errors"

	"alarming/internal/domain"
)

// ErrNotFound indicates an absent alarm record.
var ErrNotFound = errors.New("not found")

// AlarmRepository persists durable alarms.
// Params: CRUD and paginated pending-scan operations.
// Returns: backend persistence behavior; each mutation runs in its own
// transaction scope so one alarm's failure never blocks another.
type AlarmRepository interface {
	Create(ctx context.Context, alarm *domain.Alarm) error
	Get(ctx context.Context, id string) (domain.Alarm, error)
	Update(ctx context.Context, alarm domain.Alarm) (domain.Alarm, error)
	UpdateStatus(ctx context.Context, alarm domain.Alarm) (domain.Alarm, error)
	ListPending(ctx context.Context, statuses []domain.AlarmStatus, offset, limit int) ([]domain.Alarm, error)
	Close() error
}

// RuleRepository reads tenant-scoped alarm rules.
// Params: enabled-rule listing per tenant and tenant enumeration.
// Returns: read-mostly rule queries backing the rule cache.
type RuleRepository interface {
	ListEnabledByTenant(ctx context.Context, tenant string) ([]domain.AlarmRule, error)
	Tenants(ctx context.Context) ([]string, error)
}

// ProcessorConfigRepository reads tenant-scoped processor chain rows.
// Params: enabled-config listing per tenant and tenant enumeration.
// Returns: read-mostly config queries backing the chain cache.
type ProcessorConfigRepository interface {
	ListEnabledByTenant(ctx context.Context, tenant string) ([]domain.ProcessorConfig, error)
	Tenants(ctx context.Context) ([]string, error)
}
