package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

const (
	defaultAdminListen     = ":8080"
	defaultHealthPath      = "/healthz"
	defaultReadyPath       = "/readyz"
	defaultMetricsPath     = "/metrics"
	defaultNATSURL         = "nats://127.0.0.1:4222"
	defaultDedupBucket     = "alarm_dedup"
	defaultSourceBucket    = "alarm_sources"
	defaultLockBucket      = "alarm_locks"
	defaultQueueStream     = "ALARM_EVENTS"
	defaultQueueSubject    = "alarming.events"
	defaultQueueConsumer   = "alarming-processor"
	defaultRuleTopic       = "alarming.invalidate.rules"
	defaultProcessorTopic  = "alarming.invalidate.processors"
	defaultTenant          = "default"
	defaultIngestFanout    = 32
	defaultDedupWindowMS   = 300_000
	defaultDedupMaxCount   = 1000
	defaultWorkers         = 4
	defaultPollTimeoutMS   = 1000
	defaultMaxRetryCount   = 3
	defaultRetryDelayMS    = 500
	defaultDrainGraceMS    = 5000
	defaultOrchestratorCap = 256
	defaultEscalateSec     = 60
	defaultEscalatePage    = 100
	defaultLockTTLSec      = 55
	defaultLockName        = "escalator"
	defaultStatusCacheMS   = 3000
	defaultMappingCacheSec = 60

	// ServiceModeNATS keeps NATS/Postgres-backed cluster settings.
	ServiceModeNATS = "nats"
	// ServiceModeSingle keeps single-instance mode without external dependencies.
	ServiceModeSingle = "single"
)

// Config holds service runtime settings, sources, and label mappings.
// Params: TOML sections from file or merged directory snapshot.
// Returns: validated runtime configuration.
type Config struct {
	Service   ServiceConfig             `toml:"service"`
	Log       LogConfig                 `toml:"log"`
	Admin     AdminConfig               `toml:"admin"`
	NATS      NATSConfig                `toml:"nats"`
	Postgres  PostgresConfig            `toml:"postgres"`
	Ingest    IngestConfig              `toml:"ingest"`
	Dedup     DedupConfig               `toml:"dedup"`
	Consumer  ConsumerConfig            `toml:"consumer"`
	Escalator EscalatorConfig           `toml:"escalator"`
	Status    StatusConfig              `toml:"status"`
	Sources   map[string]SourceConfig   `toml:"source"`
	Mappings  map[string][]LabelMapping `toml:"mapping"`
}

// ServiceConfig contains process-level settings.
// Params: name, cluster mode, and tenant fallback.
// Returns: service behavior defaults.
type ServiceConfig struct {
	Name          string `toml:"name"`
	Mode          string `toml:"mode"`
	DefaultTenant string `toml:"default_tenant"`
}

// LogConfig selects console and file log sinks.
// Params: per-sink settings.
// Returns: logging runtime options.
type LogConfig struct {
	Console LogSinkConfig `toml:"console"`
	File    LogSinkConfig `toml:"file"`
}

// LogSinkConfig configures one log output.
// Params: enabled flag, level, format, and file path.
// Returns: sink options for the logging package.
type LogSinkConfig struct {
	Enabled bool   `toml:"enabled"`
	Level   string `toml:"level"`
	Format  string `toml:"format"`
	Path    string `toml:"path"`
}

// AdminConfig configures the admin HTTP endpoint.
// Params: listen address and health/ready/metrics paths.
// Returns: admin mux options.
type AdminConfig struct {
	Listen      string `toml:"listen"`
	HealthPath  string `toml:"health_path"`
	ReadyPath   string `toml:"ready_path"`
	MetricsPath string `toml:"metrics_path"`
}

// NATSConfig groups JetStream queue/KV and invalidation subjects.
// Params: connection URLs, bucket names, and stream/consumer names.
// Returns: cluster transport settings.
type NATSConfig struct {
	URL                []string `toml:"url"`
	AllowCreateBuckets bool     `toml:"allow_create_buckets"`
	DedupBucket        string   `toml:"dedup_bucket"`
	SourceBucket       string   `toml:"source_bucket"`
	LockBucket         string   `toml:"lock_bucket"`
	QueueStream        string   `toml:"queue_stream"`
	QueueSubject       string   `toml:"queue_subject"`
	QueueConsumer      string   `toml:"queue_consumer"`
	RuleTopic          string   `toml:"rule_invalidate_subject"`
	ProcessorTopic     string   `toml:"processor_invalidate_subject"`
}

// PostgresConfig configures the durable alarm store.
// Params: DSN and pool size.
// Returns: postgres connection settings.
type PostgresConfig struct {
	DSN          string `toml:"dsn"`
	MaxOpenConns int    `toml:"max_open_conns"`
}

// IngestConfig bounds the per-batch event fan-out.
// Params: concurrency cap and mapping cache TTL.
// Returns: ingestion runtime options.
type IngestConfig struct {
	MaxConcurrency     int `toml:"max_concurrency"`
	MappingCacheTTLSec int `toml:"mapping_cache_ttl_sec"`
}

// DedupConfig holds the deduplication window parameters.
// Params: window length and per-window occurrence cap.
// Returns: dedup store call parameters.
type DedupConfig struct {
	WindowMS int `toml:"window_ms"`
	MaxCount int `toml:"max_count"`
}

// ConsumerConfig sizes the alert event consumer pool.
// Params: worker count, poll/retry timings, and drain grace.
// Returns: consumer runtime options.
type ConsumerConfig struct {
	Workers         int `toml:"workers"`
	PollTimeoutMS   int `toml:"poll_timeout_ms"`
	MaxRetryCount   int `toml:"max_retry_count"`
	RetryDelayMS    int `toml:"retry_delay_ms"`
	ShutdownGraceMS int `toml:"shutdown_grace_ms"`
	OrchestratorCap int `toml:"orchestrator_capacity"`
}

// EscalatorConfig schedules the age-based escalation job.
// Params: tick interval, page size, and cluster lock settings.
// Returns: escalator runtime options.
type EscalatorConfig struct {
	Enabled     bool   `toml:"enabled"`
	IntervalSec int    `toml:"interval_sec"`
	PageSize    int    `toml:"page_size"`
	LockTTLSec  int    `toml:"lock_ttl_sec"`
	LockName    string `toml:"lock_name"`
}

// StatusConfig tunes the status manager read-through cache.
// Params: cache TTL.
// Returns: status manager options.
type StatusConfig struct {
	CacheTTLMS int `toml:"cache_ttl_ms"`
}

// SourceConfig declares one registered alert source.
// Params: startup online flag, owning tenant, and mapper name.
// Returns: per-source ingestion settings.
type SourceConfig struct {
	Online bool   `toml:"online"`
	Tenant string `toml:"tenant"`
	Mapper string `toml:"mapper"`
}

// LabelMapping binds one normalized label to a source payload path.
// Params: target label name and dotted source path.
// Returns: one ordered mapping row for the normalizer.
type LabelMapping struct {
	Label string `toml:"label"`
	Path  string `toml:"path"`
}

// ConfigSource selects one config file or a fragment directory.
// Params: mutually exclusive file/dir paths.
// Returns: load target for snapshots.
type ConfigSource struct {
	File string
	Dir  string
}

// FromCLI validates CLI flags into a config source.
// Params: --config-file and --config-dir values.
// Returns: config source or usage error.
func FromCLI(file, dir string) (ConfigSource, error) {
	file = strings.TrimSpace(file)
	dir = strings.TrimSpace(dir)
	switch {
	case file == "" && dir == "":
		return ConfigSource{}, errors.New("either --config-file or --config-dir is required")
	case file != "" && dir != "":
		return ConfigSource{}, errors.New("--config-file and --config-dir are mutually exclusive")
	}
	return ConfigSource{File: file, Dir: dir}, nil
}

// LoadSnapshot reads, merges, and validates one configuration snapshot.
// Params: config source.
// Returns: validated config or load error.
func LoadSnapshot(source ConfigSource) (Config, error) {
	raw, err := readSource(source)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := toml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// readSource returns TOML bytes from a file or a lexically merged directory.
// Params: config source.
// Returns: raw TOML document or read error.
func readSource(source ConfigSource) ([]byte, error) {
	if source.File != "" {
		raw, err := os.ReadFile(source.File)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		return raw, nil
	}

	entries, err := os.ReadDir(source.Dir)
	if err != nil {
		return nil, fmt.Errorf("read config dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".toml") {
			continue
		}
		names = append(names, entry.Name())
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no *.toml fragments in %q", source.Dir)
	}
	sort.Strings(names)

	var merged []byte
	for _, name := range names {
		raw, err := os.ReadFile(filepath.Join(source.Dir, name))
		if err != nil {
			return nil, fmt.Errorf("read config fragment %q: %w", name, err)
		}
		merged = append(merged, raw...)
		merged = append(merged, '\n')
	}
	return merged, nil
}

// applyDefaults fills unset sections with runtime defaults.
// Params: none.
// Returns: none (config mutated in place).
func (c *Config) applyDefaults() {
	if c.Service.Name == "" {
		c.Service.Name = "alarming"
	}
	if c.Service.Mode == "" {
		c.Service.Mode = ServiceModeSingle
	}
	if c.Service.DefaultTenant == "" {
		c.Service.DefaultTenant = defaultTenant
	}

	if !c.Log.Console.Enabled && !c.Log.File.Enabled {
		c.Log.Console.Enabled = true
	}
	if c.Log.Console.Level == "" {
		c.Log.Console.Level = "info"
	}
	if c.Log.Console.Format == "" {
		c.Log.Console.Format = "line"
	}
	if c.Log.File.Level == "" {
		c.Log.File.Level = "info"
	}
	if c.Log.File.Format == "" {
		c.Log.File.Format = "json"
	}

	if c.Admin.Listen == "" {
		c.Admin.Listen = defaultAdminListen
	}
	if c.Admin.HealthPath == "" {
		c.Admin.HealthPath = defaultHealthPath
	}
	if c.Admin.ReadyPath == "" {
		c.Admin.ReadyPath = defaultReadyPath
	}
	if c.Admin.MetricsPath == "" {
		c.Admin.MetricsPath = defaultMetricsPath
	}

	if len(c.NATS.URL) == 0 {
		c.NATS.URL = []string{defaultNATSURL}
	}
	if c.NATS.DedupBucket == "" {
		c.NATS.DedupBucket = defaultDedupBucket
	}
	if c.NATS.SourceBucket == "" {
		c.NATS.SourceBucket = defaultSourceBucket
	}
	if c.NATS.LockBucket == "" {
		c.NATS.LockBucket = defaultLockBucket
	}
	if c.NATS.QueueStream == "" {
		c.NATS.QueueStream = defaultQueueStream
	}
	if c.NATS.QueueSubject == "" {
		c.NATS.QueueSubject = defaultQueueSubject
	}
	if c.NATS.QueueConsumer == "" {
		c.NATS.QueueConsumer = defaultQueueConsumer
	}
	if c.NATS.RuleTopic == "" {
		c.NATS.RuleTopic = defaultRuleTopic
	}
	if c.NATS.ProcessorTopic == "" {
		c.NATS.ProcessorTopic = defaultProcessorTopic
	}

	if c.Postgres.MaxOpenConns <= 0 {
		c.Postgres.MaxOpenConns = 16
	}

	if c.Ingest.MaxConcurrency <= 0 {
		c.Ingest.MaxConcurrency = defaultIngestFanout
	}
	if c.Ingest.MappingCacheTTLSec <= 0 {
		c.Ingest.MappingCacheTTLSec = defaultMappingCacheSec
	}

	if c.Dedup.WindowMS <= 0 {
		c.Dedup.WindowMS = defaultDedupWindowMS
	}
	if c.Dedup.MaxCount <= 0 {
		c.Dedup.MaxCount = defaultDedupMaxCount
	}

	if c.Consumer.Workers <= 0 {
		c.Consumer.Workers = defaultWorkers
	}
	if c.Consumer.PollTimeoutMS <= 0 {
		c.Consumer.PollTimeoutMS = defaultPollTimeoutMS
	}
	if c.Consumer.MaxRetryCount < 0 {
		c.Consumer.MaxRetryCount = defaultMaxRetryCount
	}
	if c.Consumer.RetryDelayMS <= 0 {
		c.Consumer.RetryDelayMS = defaultRetryDelayMS
	}
	if c.Consumer.ShutdownGraceMS <= 0 {
		c.Consumer.ShutdownGraceMS = defaultDrainGraceMS
	}
	if c.Consumer.OrchestratorCap <= 0 {
		c.Consumer.OrchestratorCap = defaultOrchestratorCap
	}

	if c.Escalator.IntervalSec <= 0 {
		c.Escalator.IntervalSec = defaultEscalateSec
	}
	if c.Escalator.PageSize <= 0 {
		c.Escalator.PageSize = defaultEscalatePage
	}
	if c.Escalator.LockTTLSec <= 0 {
		c.Escalator.LockTTLSec = defaultLockTTLSec
	}
	if c.Escalator.LockName == "" {
		c.Escalator.LockName = defaultLockName
	}

	if c.Status.CacheTTLMS <= 0 {
		c.Status.CacheTTLMS = defaultStatusCacheMS
	}

	for id, src := range c.Sources {
		if src.Tenant == "" {
			src.Tenant = c.Service.DefaultTenant
		}
		if src.Mapper == "" {
			src.Mapper = "json"
		}
		c.Sources[id] = src
	}
}

// Validate checks cross-field invariants after defaults are applied.
// Params: none.
// Returns: first validation error.
func (c Config) Validate() error {
	switch NormalizeServiceMode(c.Service.Mode) {
	case ServiceModeNATS, ServiceModeSingle:
	default:
		return fmt.Errorf("unsupported service.mode %q", c.Service.Mode)
	}
	if NormalizeServiceMode(c.Service.Mode) == ServiceModeNATS && strings.TrimSpace(c.Postgres.DSN) == "" {
		return errors.New("postgres.dsn is required in nats mode")
	}
	for id, mappings := range c.Mappings {
		for index, mapping := range mappings {
			if strings.TrimSpace(mapping.Label) == "" {
				return fmt.Errorf("mapping.%s[%d]: label is required", id, index)
			}
			if strings.TrimSpace(mapping.Path) == "" {
				return fmt.Errorf("mapping.%s[%d]: path is required", id, index)
			}
		}
	}
	for id, src := range c.Sources {
		if strings.TrimSpace(src.Mapper) == "" {
			return fmt.Errorf("source.%s: mapper is required", id)
		}
	}
	return nil
}

// NormalizeServiceMode lowers and trims the configured service mode.
// Params: raw mode value.
// Returns: canonical mode token.
func NormalizeServiceMode(mode string) string {
	return strings.ToLower(strings.TrimSpace(mode))
}
