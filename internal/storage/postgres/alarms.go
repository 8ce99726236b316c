package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"alarming/internal/domain"
	"alarming/internal/storage"
)

// AlarmRepository is the Postgres repository for durable alarms.
// Params: connection pool and injected clock.
// Returns: alarm persistence; every mutation runs in its own transaction.
type AlarmRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewAlarmRepository constructs the repository.
// Params: pool and now function (time.Now when nil).
// Returns: initialized repository.
func NewAlarmRepository(db *sql.DB, now func() time.Time) *AlarmRepository {
	if now == nil {
		now = time.Now
	}
	return &AlarmRepository{db: db, now: now}
}

// Create inserts one new alarm in its own transaction.
// Params: context and alarm (audit timestamps filled when zero).
// Returns: insert error.
func (r *AlarmRepository) Create(ctx context.Context, alarm *domain.Alarm) error {
	if alarm == nil {
		return errors.New("nil alarm")
	}
	now := r.now()
	if alarm.CreatedAt.IsZero() {
		alarm.CreatedAt = now
	}
	if alarm.UpdatedAt.IsZero() {
		alarm.UpdatedAt = alarm.CreatedAt
	}
	metadata, err := encodeMetadata(alarm.Metadata)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create alarm: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
INSERT INTO alarms (
	id, tenant, title, description, severity, status, source, source_id,
	fingerprint, metadata, occurred_at, acknowledged_at, resolved_at,
	closed_at, created_at, updated_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8,
	$9, $10, $11, $12, $13,
	$14, $15, $16
)`,
		alarm.ID,
		alarm.Tenant,
		alarm.Title,
		alarm.Description,
		string(alarm.Severity),
		string(alarm.Status),
		alarm.Source,
		alarm.SourceID,
		alarm.Fingerprint,
		metadata,
		alarm.OccurredAt,
		nullableTime(alarm.AcknowledgedAt),
		nullableTime(alarm.ResolvedAt),
		nullableTime(alarm.ClosedAt),
		alarm.CreatedAt,
		alarm.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert alarm: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create alarm: %w", err)
	}
	return nil
}

// Get loads one alarm by id.
// Params: context and alarm id.
// Returns: alarm or storage.ErrNotFound.
func (r *AlarmRepository) Get(ctx context.Context, id string) (domain.Alarm, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, tenant, title, description, severity, status, source, source_id,
	fingerprint, metadata, occurred_at, acknowledged_at, resolved_at,
	closed_at, created_at, updated_at
FROM alarms
WHERE id = $1`, id)
	return scanAlarm(row)
}

// Update replaces one alarm record in its own transaction.
// Params: context and full alarm snapshot.
// Returns: stored record with refreshed updated_at, or storage.ErrNotFound.
func (r *AlarmRepository) Update(ctx context.Context, alarm domain.Alarm) (domain.Alarm, error) {
	metadata, err := encodeMetadata(alarm.Metadata)
	if err != nil {
		return domain.Alarm{}, err
	}
	alarm.UpdatedAt = r.now()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Alarm{}, fmt.Errorf("begin update alarm: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
UPDATE alarms SET
	title = $2, description = $3, severity = $4, status = $5,
	metadata = $6, acknowledged_at = $7, resolved_at = $8, closed_at = $9,
	updated_at = $10
WHERE id = $1`,
		alarm.ID,
		alarm.Title,
		alarm.Description,
		string(alarm.Severity),
		string(alarm.Status),
		metadata,
		nullableTime(alarm.AcknowledgedAt),
		nullableTime(alarm.ResolvedAt),
		nullableTime(alarm.ClosedAt),
		alarm.UpdatedAt,
	)
	if err != nil {
		return domain.Alarm{}, fmt.Errorf("update alarm: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return domain.Alarm{}, fmt.Errorf("update alarm rows: %w", err)
	}
	if affected == 0 {
		return domain.Alarm{}, storage.ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return domain.Alarm{}, fmt.Errorf("commit update alarm: %w", err)
	}
	return alarm, nil
}

// UpdateStatus persists only the lifecycle fields of one alarm.
// Params: context and alarm carrying the new status and timestamps.
// Returns: stored record with refreshed updated_at, or storage.ErrNotFound.
func (r *AlarmRepository) UpdateStatus(ctx context.Context, alarm domain.Alarm) (domain.Alarm, error) {
	alarm.UpdatedAt = r.now()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Alarm{}, fmt.Errorf("begin update alarm status: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
UPDATE alarms SET
	status = $2, acknowledged_at = $3, resolved_at = $4, closed_at = $5,
	updated_at = $6
WHERE id = $1`,
		alarm.ID,
		string(alarm.Status),
		nullableTime(alarm.AcknowledgedAt),
		nullableTime(alarm.ResolvedAt),
		nullableTime(alarm.ClosedAt),
		alarm.UpdatedAt,
	)
	if err != nil {
		return domain.Alarm{}, fmt.Errorf("update alarm status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return domain.Alarm{}, fmt.Errorf("update alarm status rows: %w", err)
	}
	if affected == 0 {
		return domain.Alarm{}, storage.ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return domain.Alarm{}, fmt.Errorf("commit update alarm status: %w", err)
	}
	return alarm, nil
}

// ListPending pages alarms in the given statuses ordered by occurrence time.
// Params: context, status filter, page offset, and page limit.
// Returns: one page of matching alarms.
func (r *AlarmRepository) ListPending(ctx context.Context, statuses []domain.AlarmStatus, offset, limit int) ([]domain.Alarm, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := make([]string, 0, len(statuses))
	args := make([]any, 0, len(statuses)+2)
	for index, status := range statuses {
		placeholders = append(placeholders, fmt.Sprintf("$%d", index+1))
		args = append(args, string(status))
	}
	args = append(args, limit, offset)

	query := fmt.Sprintf(`
SELECT id, tenant, title, description, severity, status, source, source_id,
	fingerprint, metadata, occurred_at, acknowledged_at, resolved_at,
	closed_at, created_at, updated_at
FROM alarms
WHERE status IN (%s)
ORDER BY occurred_at, id
LIMIT $%d OFFSET $%d`, strings.Join(placeholders, ", "), len(statuses)+1, len(statuses)+2)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list pending alarms: %w", err)
	}
	defer rows.Close()

	alarms := make([]domain.Alarm, 0, limit)
	for rows.Next() {
		alarm, err := scanAlarm(rows)
		if err != nil {
			return nil, err
		}
		alarms = append(alarms, alarm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending alarms: %w", err)
	}
	return alarms, nil
}

// Close closes the underlying pool.
// Params: none.
// Returns: close error.
func (r *AlarmRepository) Close() error {
	return r.db.Close()
}

// rowScanner abstracts sql.Row and sql.Rows for shared scanning.
// Params: positional scan destinations.
// Returns: scan error.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanAlarm maps one result row onto the domain record.
// Params: row scanner positioned on an alarm row.
// Returns: alarm or storage.ErrNotFound for empty results.
func scanAlarm(row rowScanner) (domain.Alarm, error) {
	var (
		alarm          domain.Alarm
		severity       string
		status         string
		metadata       []byte
		acknowledgedAt sql.NullTime
		resolvedAt     sql.NullTime
		closedAt       sql.NullTime
	)
	err := row.Scan(
		&alarm.ID,
		&alarm.Tenant,
		&alarm.Title,
		&alarm.Description,
		&severity,
		&status,
		&alarm.Source,
		&alarm.SourceID,
		&alarm.Fingerprint,
		&metadata,
		&alarm.OccurredAt,
		&acknowledgedAt,
		&resolvedAt,
		&closedAt,
		&alarm.CreatedAt,
		&alarm.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Alarm{}, storage.ErrNotFound
		}
		return domain.Alarm{}, fmt.Errorf("scan alarm: %w", err)
	}

	alarm.Severity = domain.Severity(severity)
	alarm.Status = domain.AlarmStatus(status)
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &alarm.Metadata); err != nil {
			return domain.Alarm{}, fmt.Errorf("decode alarm metadata: %w", err)
		}
	}
	alarm.AcknowledgedAt = timePtr(acknowledgedAt)
	alarm.ResolvedAt = timePtr(resolvedAt)
	alarm.ClosedAt = timePtr(closedAt)
	return alarm, nil
}

// encodeMetadata renders the metadata map as JSONB input.
// Params: metadata map (may be nil).
// Returns: JSON bytes or encode error.
func encodeMetadata(metadata map[string]string) ([]byte, error) {
	if len(metadata) == 0 {
		return []byte("{}"), nil
	}
	body, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("encode alarm metadata: %w", err)
	}
	return body, nil
}

// nullableTime converts an optional timestamp to its SQL form.
// Params: optional time pointer.
// Returns: valid NullTime only when set.
func nullableTime(value *time.Time) sql.NullTime {
	if value == nil || value.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *value, Valid: true}
}

// timePtr converts a scanned NullTime to an optional timestamp.
// Params: scanned value.
// Returns: pointer when valid, nil otherwise.
func timePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	t := value.Time
	return &t
}
