package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"alarming/internal/clock"
	"alarming/internal/config"
	"alarming/internal/consumer"
	"alarming/internal/dedup"
	"alarming/internal/escalate"
	"alarming/internal/events"
	"alarming/internal/ingest"
	"alarming/internal/lock"
	"alarming/internal/logging"
	"alarming/internal/mapper"
	"alarming/internal/metrics"
	"alarming/internal/process"
	"alarming/internal/pubsub"
	"alarming/internal/queue"
	"alarming/internal/rules"
	"alarming/internal/sourcestatus"
	"alarming/internal/status"
	"alarming/internal/storage"
	"alarming/internal/storage/postgres"
)

// Service composes runtime dependencies and process lifecycle.
// Params: config source and shared runtime components.
// Returns: runnable alarming service.
type Service struct {
	source   config.ConfigSource
	cfg      config.Config
	logger   *slog.Logger
	closeLog func()
	clock    clock.Clock

	tracker    sourcestatus.Tracker
	dedupStore dedup.Store
	eventQueue queue.Queue
	broadcast  pubsub.PubSub
	locker     lock.Locker
	alarms     storage.AlarmRepository
	ruleRows   storage.RuleRepository
	chainRows  storage.ProcessorConfigRepository

	pipeline     *ingest.Pipeline
	orchestrator *process.Orchestrator
	chains       *process.ChainOrchestrator
	ruleEngine   *rules.Engine
	statusMgr    *status.Manager
	escalator    *escalate.Escalator
	pool         *consumer.Consumer
	bus          *events.Bus

	httpSrv     *http.Server
	unsubscribe []func()
	readyFlag   atomic.Bool
}

// NewService builds service instance from config source.
// Params: config source and clock implementation.
// Returns: initialized service or setup error.
func NewService(source config.ConfigSource, clk clock.Clock) (*Service, error) {
	cfg, err := config.LoadSnapshot(source)
	if err != nil {
		return nil, err
	}

	logger, closeLog, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	metrics.Register(prometheus.DefaultRegisterer)

	service := &Service{
		source:   source,
		cfg:      cfg,
		logger:   logger,
		closeLog: closeLog,
		clock:    clk,
	}

	if err := service.buildBackends(); err != nil {
		service.cleanupInitResources()
		return nil, err
	}
	if err := service.buildPipeline(); err != nil {
		service.cleanupInitResources()
		return nil, err
	}
	if err := service.buildProcessing(); err != nil {
		service.cleanupInitResources()
		return nil, err
	}
	service.buildHTTPServer()

	return service, nil
}

// Run starts the service lifecycle and blocks until shutdown signal.
// Params: root context for service runtime.
// Returns: terminal run error.
func (s *Service) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := s.seedSourceStatus(runCtx); err != nil {
		return err
	}
	if err := s.ruleEngine.LoadAll(runCtx); err != nil {
		return fmt.Errorf("rule cache load: %w", err)
	}
	if err := s.chains.LoadAll(runCtx); err != nil {
		return fmt.Errorf("chain cache load: %w", err)
	}
	if err := s.subscribeInvalidations(); err != nil {
		return err
	}

	s.orchestrator.Start(runCtx)
	s.pool.Start(runCtx)
	if s.cfg.Escalator.Enabled {
		s.escalator.Start(runCtx)
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("admin server starting", "listen", s.cfg.Admin.Listen)
		err := s.httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	s.readyFlag.Store(true)
	s.logger.Info("service started",
		"mode", config.NormalizeServiceMode(s.cfg.Service.Mode),
		"sources", len(s.cfg.Sources),
		"workers", s.cfg.Consumer.Workers)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		return s.shutdown(cancel)
	case err := <-errChan:
		_ = s.shutdown(cancel)
		return fmt.Errorf("admin server failed: %w", err)
	case <-sigChan:
		return s.shutdown(cancel)
	}
}

// Ingest feeds one raw payload into the ingestion pipeline.
// Params: context, source id, and raw payload bytes.
// Returns: pipeline rejection or parse error.
func (s *Service) Ingest(ctx context.Context, sourceID string, payload []byte) error {
	return s.pipeline.Process(ctx, sourceID, payload)
}

// StatusManager exposes the lifecycle state machine.
// Params: none.
// Returns: shared status manager.
func (s *Service) StatusManager() *status.Manager {
	return s.statusMgr
}

// Escalator exposes the escalation job for manual escalations.
// Params: none.
// Returns: shared escalator.
func (s *Service) Escalator() *escalate.Escalator {
	return s.escalator
}

// Sources exposes the source status tracker.
// Params: none.
// Returns: shared tracker.
func (s *Service) Sources() sourcestatus.Tracker {
	return s.tracker
}

// shutdown closes runtime resources in dependency order.
// Params: cancel function ending all background loops.
// Returns: first close error.
func (s *Service) shutdown(cancel context.CancelFunc) error {
	s.readyFlag.Store(false)
	ctx, ctxCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer ctxCancel()
	var firstErr error
	markErr := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("admin shutdown failed", "error", err.Error())
		markErr(fmt.Errorf("admin shutdown: %w", err))
	}

	// Stop intake before processing so the drain has a bounded backlog.
	s.pool.Stop()
	if s.cfg.Escalator.Enabled {
		s.escalator.Stop()
	}
	s.orchestrator.Stop()
	cancel()

	for _, unsub := range s.unsubscribe {
		unsub()
	}
	closers := []struct {
		name  string
		close func() error
	}{
		{"broadcast", s.broadcast.Close},
		{"queue", s.eventQueue.Close},
		{"dedup store", s.dedupStore.Close},
		{"source tracker", s.tracker.Close},
		{"locker", s.locker.Close},
		{"alarm store", s.alarms.Close},
	}
	for _, closer := range closers {
		if err := closer.close(); err != nil {
			s.logger.Error("close failed", "component", closer.name, "error", err.Error())
			markErr(fmt.Errorf("%s close: %w", closer.name, err))
		}
	}
	if s.closeLog != nil {
		s.closeLog()
	}
	return firstErr
}

// cleanupInitResources closes partially initialized resources on startup failures.
// Params: none.
// Returns: all acquired resources closed best-effort.
func (s *Service) cleanupInitResources() {
	if s.broadcast != nil {
		_ = s.broadcast.Close()
		s.broadcast = nil
	}
	if s.eventQueue != nil {
		_ = s.eventQueue.Close()
		s.eventQueue = nil
	}
	if s.dedupStore != nil {
		_ = s.dedupStore.Close()
		s.dedupStore = nil
	}
	if s.tracker != nil {
		_ = s.tracker.Close()
		s.tracker = nil
	}
	if s.locker != nil {
		_ = s.locker.Close()
		s.locker = nil
	}
	if s.alarms != nil {
		_ = s.alarms.Close()
		s.alarms = nil
	}
	if s.closeLog != nil {
		s.closeLog()
		s.closeLog = nil
	}
}

// buildBackends selects memory or cluster backends by service mode.
// Params: none.
// Returns: setup error.
func (s *Service) buildBackends() error {
	s.bus = events.NewBus(s.logger)

	if isSingleMode(s.cfg) {
		seed := make(map[string]bool, len(s.cfg.Sources))
		for id, src := range s.cfg.Sources {
			seed[id] = src.Online
		}
		memStore := storage.NewMemoryStore(s.clock.Now)
		s.tracker = sourcestatus.NewMemoryTracker(seed)
		s.dedupStore = dedup.NewMemoryStore(s.clock.Now)
		s.eventQueue = queue.NewMemoryQueue(s.cfg.Consumer.OrchestratorCap)
		s.broadcast = pubsub.NewMemoryPubSub()
		s.locker = lock.NewMemoryLocker(s.clock.Now)
		s.alarms = memStore
		s.ruleRows = memStore
		s.chainRows = memStore.ProcessorConfigs()
		return nil
	}

	tracker, err := sourcestatus.NewNATSTracker(s.cfg.NATS)
	if err != nil {
		return fmt.Errorf("source tracker: %w", err)
	}
	s.tracker = tracker

	dedupStore, err := dedup.NewNATSStore(s.cfg.NATS, s.clock.Now)
	if err != nil {
		return fmt.Errorf("dedup store: %w", err)
	}
	s.dedupStore = dedupStore

	eventQueue, err := queue.NewNATSQueue(s.cfg.NATS)
	if err != nil {
		return fmt.Errorf("event queue: %w", err)
	}
	s.eventQueue = eventQueue

	broadcast, err := pubsub.NewNATSPubSub(s.cfg.NATS)
	if err != nil {
		return fmt.Errorf("broadcast: %w", err)
	}
	s.broadcast = broadcast

	locker, err := lock.NewNATSLocker(s.cfg.NATS, time.Duration(s.cfg.Escalator.LockTTLSec)*time.Second)
	if err != nil {
		return fmt.Errorf("locker: %w", err)
	}
	s.locker = locker

	db, err := postgres.Open(s.cfg.Postgres)
	if err != nil {
		return err
	}
	s.alarms = postgres.NewAlarmRepository(db, s.clock.Now)
	s.ruleRows = postgres.NewRuleRepository(db)
	s.chainRows = postgres.NewProcessorConfigRepository(db)
	return nil
}

// buildPipeline wires mappers, normalizer, and the ingestion pipeline.
// Params: none.
// Returns: setup error on unknown mapper kinds.
func (s *Service) buildPipeline() error {
	mappers := make([]mapper.Mapper, 0, len(s.cfg.Sources))
	for id, src := range s.cfg.Sources {
		m, err := buildMapper(src.Mapper, id)
		if err != nil {
			return err
		}
		mappers = append(mappers, m)
	}
	registry, err := mapper.NewRegistry(mappers...)
	if err != nil {
		return err
	}

	table := make(map[string][]mapper.LabelMapping, len(s.cfg.Mappings))
	for id, rows := range s.cfg.Mappings {
		converted := make([]mapper.LabelMapping, 0, len(rows))
		for _, row := range rows {
			converted = append(converted, mapper.LabelMapping{Label: row.Label, Path: row.Path})
		}
		table[id] = converted
	}
	provider := mapper.NewCachedMappingProvider(
		mapper.NewStaticMappingProvider(table),
		time.Duration(s.cfg.Ingest.MappingCacheTTLSec)*time.Second,
		s.clock.Now,
	)

	tenants := s.cfg.Sources
	fallback := s.cfg.Service.DefaultTenant
	tenantFor := func(sourceID string) string {
		if src, ok := tenants[sourceID]; ok && src.Tenant != "" {
			return src.Tenant
		}
		return fallback
	}

	s.pipeline = ingest.NewPipeline(
		s.tracker,
		registry,
		mapper.NewNormalizer(provider),
		s.dedupStore,
		s.eventQueue,
		tenantFor,
		s.logger,
		ingest.Options{
			MaxConcurrency: s.cfg.Ingest.MaxConcurrency,
			DedupWindow:    time.Duration(s.cfg.Dedup.WindowMS) * time.Millisecond,
			DedupMaxCount:  int64(s.cfg.Dedup.MaxCount),
		},
		s.clock.Now,
	)
	return nil
}

// buildProcessing wires the processing side: chains, rules, consumer,
// status manager, and escalator.
// Params: none.
// Returns: setup error.
func (s *Service) buildProcessing() error {
	s.ruleEngine = rules.NewEngine(s.ruleRows, s.logger, s.clock.Now)

	registry, err := process.NewRegistry(
		process.NewPriorityCalculator(s.clock.Now),
		rules.NewProcessor(s.ruleEngine, s.logger, s.clock.Now),
	)
	if err != nil {
		return err
	}
	s.chains = process.NewChainOrchestrator(registry, s.chainRows, s.logger)

	s.orchestrator = process.NewOrchestrator(
		s.alarms,
		s.chains,
		s.bus,
		s.logger,
		s.cfg.Consumer.Workers,
		s.cfg.Consumer.OrchestratorCap,
		s.clock.Now,
	)

	s.pool = consumer.New(s.eventQueue, s.orchestrator, s.logger, consumer.Options{
		Workers:       s.cfg.Consumer.Workers,
		PollTimeout:   time.Duration(s.cfg.Consumer.PollTimeoutMS) * time.Millisecond,
		MaxRetryCount: s.cfg.Consumer.MaxRetryCount,
		RetryDelay:    time.Duration(s.cfg.Consumer.RetryDelayMS) * time.Millisecond,
		ShutdownGrace: time.Duration(s.cfg.Consumer.ShutdownGraceMS) * time.Millisecond,
	})

	s.statusMgr = status.NewManager(
		s.alarms,
		s.bus,
		s.logger,
		time.Duration(s.cfg.Status.CacheTTLMS)*time.Millisecond,
		s.clock.Now,
	)

	s.escalator = escalate.New(s.alarms, s.locker, s.bus, s.logger, escalate.Options{
		Interval: time.Duration(s.cfg.Escalator.IntervalSec) * time.Second,
		PageSize: s.cfg.Escalator.PageSize,
		LockName: s.cfg.Escalator.LockName,
		LockTTL:  time.Duration(s.cfg.Escalator.LockTTLSec) * time.Second,
	}, s.clock.Now)
	return nil
}

// buildHTTPServer wires the admin mux with health and metrics endpoints.
// Params: none.
// Returns: none.
func (s *Service) buildHTTPServer() {
	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.Admin.HealthPath, func(writer http.ResponseWriter, _ *http.Request) {
		writer.WriteHeader(http.StatusOK)
		_, _ = writer.Write([]byte("ok"))
	})
	mux.HandleFunc(s.cfg.Admin.ReadyPath, func(writer http.ResponseWriter, _ *http.Request) {
		if !s.readyFlag.Load() {
			writer.WriteHeader(http.StatusServiceUnavailable)
			_, _ = writer.Write([]byte("not-ready"))
			return
		}
		writer.WriteHeader(http.StatusOK)
		_, _ = writer.Write([]byte("ready"))
	})
	mux.Handle(s.cfg.Admin.MetricsPath, promhttp.Handler())

	s.httpSrv = &http.Server{
		Addr:              s.cfg.Admin.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// seedSourceStatus writes configured source flags into the tracker.
// Params: context.
// Returns: first tracker write error. Memory trackers are seeded at
// construction; the cluster tracker needs explicit writes so all nodes
// converge on the configured flags.
func (s *Service) seedSourceStatus(ctx context.Context) error {
	if isSingleMode(s.cfg) {
		return nil
	}
	for id, src := range s.cfg.Sources {
		if err := s.tracker.UpdateStatus(ctx, id, src.Online); err != nil {
			return fmt.Errorf("seed source %q status: %w", id, err)
		}
	}
	return nil
}

// subscribeInvalidations binds the cache rebuild handlers to broadcasts.
// Params: none.
// Returns: subscribe error.
func (s *Service) subscribeInvalidations() error {
	unsubRules, err := s.broadcast.Subscribe(s.cfg.NATS.RuleTopic, s.ruleEngine.HandleInvalidation)
	if err != nil {
		return fmt.Errorf("subscribe rule invalidation: %w", err)
	}
	s.unsubscribe = append(s.unsubscribe, unsubRules)

	unsubChains, err := s.broadcast.Subscribe(s.cfg.NATS.ProcessorTopic, s.chains.HandleInvalidation)
	if err != nil {
		return fmt.Errorf("subscribe processor invalidation: %w", err)
	}
	s.unsubscribe = append(s.unsubscribe, unsubChains)
	return nil
}

// buildMapper constructs one payload mapper by configured kind.
// Params: mapper kind and source id.
// Returns: mapper or unknown-kind error.
func buildMapper(kind, sourceID string) (mapper.Mapper, error) {
	switch kind {
	case "json":
		return mapper.NewJSONMapper(sourceID), nil
	case "webhook":
		return mapper.NewWebhookMapper(sourceID), nil
	default:
		return nil, fmt.Errorf("source %q: unknown mapper kind %q", sourceID, kind)
	}
}

func isSingleMode(cfg config.Config) bool {
	return config.NormalizeServiceMode(cfg.Service.Mode) == config.ServiceModeSingle
}
