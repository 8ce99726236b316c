package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	eventsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "alarming",
			Name:      "events_ingested_total",
			Help:      "Alert events accepted by ingestion, partitioned by source.",
		},
		[]string{"source"},
	)

	eventsFiltered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "alarming",
			Name:      "events_filtered_total",
			Help:      "Alert events suppressed as in-window duplicates, partitioned by source.",
		},
		[]string{"source"},
	)

	eventsFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "alarming",
			Name:      "events_failed_total",
			Help:      "Alert events that failed during ingestion fan-out, partitioned by source.",
		},
		[]string{"source"},
	)

	mapperMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "alarming",
			Name:      "mapper_misses_total",
			Help:      "Ingestion calls rejected because no mapper is registered for the source.",
		},
	)

	consumerRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "alarming",
			Name:      "consumer_retries_total",
			Help:      "Processing retries performed by the alert event consumer.",
		},
	)

	consumerDrops = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "alarming",
			Name:      "consumer_drops_total",
			Help:      "Alert events dropped after exhausting consumer retries.",
		},
	)

	orchestratorRejections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "alarming",
			Name:      "orchestrator_rejections_total",
			Help:      "Processing submissions rejected by the saturated orchestrator executor.",
		},
	)

	alarmsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "alarming",
			Name:      "alarms_created_total",
			Help:      "Alarms persisted from accepted alert events, partitioned by tenant.",
		},
		[]string{"tenant"},
	)

	processorFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "alarming",
			Name:      "processor_failures_total",
			Help:      "Processor chain step failures, partitioned by processor name.",
		},
		[]string{"processor"},
	)

	ruleMatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "alarming",
			Name:      "rule_matches_total",
			Help:      "Alarm rules matched during evaluation, partitioned by rule type.",
		},
		[]string{"rule_type"},
	)

	statusTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "alarming",
			Name:      "status_transitions_total",
			Help:      "Successful alarm status transitions, partitioned by target status.",
		},
		[]string{"to"},
	)

	invalidTransitions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "alarming",
			Name:      "invalid_transitions_total",
			Help:      "Alarm status transitions rejected by the state machine.",
		},
	)

	escalations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "alarming",
			Name:      "escalations_total",
			Help:      "Alarm severity escalations, partitioned by trigger (age or manual).",
		},
		[]string{"trigger"},
	)

	escalatorLockMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "alarming",
			Name:      "escalator_lock_misses_total",
			Help:      "Escalator ticks skipped because another node holds the cluster lock.",
		},
	)
)

// Register attaches all service collectors to the supplied Prometheus registerer.
// Params: target registerer (usually prometheus.DefaultRegisterer).
// Returns: first registration error, ignoring AlreadyRegisteredError.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		eventsIngested,
		eventsFiltered,
		eventsFailed,
		mapperMisses,
		consumerRetries,
		consumerDrops,
		orchestratorRejections,
		alarmsCreated,
		processorFailures,
		ruleMatches,
		statusTransitions,
		invalidTransitions,
		escalations,
		escalatorLockMisses,
	}
	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// IncEventIngested counts one accepted event for a source.
func IncEventIngested(source string) { eventsIngested.WithLabelValues(source).Inc() }

// IncEventFiltered counts one suppressed duplicate for a source.
func IncEventFiltered(source string) { eventsFiltered.WithLabelValues(source).Inc() }

// IncEventFailed counts one failed event for a source.
func IncEventFailed(source string) { eventsFailed.WithLabelValues(source).Inc() }

// IncMapperMiss counts one unresolvable source id.
func IncMapperMiss() { mapperMisses.Inc() }

// IncConsumerRetry counts one consumer retry attempt.
func IncConsumerRetry() { consumerRetries.Inc() }

// IncConsumerDrop counts one event dropped after retry exhaustion.
func IncConsumerDrop() { consumerDrops.Inc() }

// IncOrchestratorRejection counts one rejected async submission.
func IncOrchestratorRejection() { orchestratorRejections.Inc() }

// IncAlarmCreated counts one persisted alarm for a tenant.
func IncAlarmCreated(tenant string) { alarmsCreated.WithLabelValues(tenant).Inc() }

// IncProcessorFailure counts one failed chain step.
func IncProcessorFailure(processor string) { processorFailures.WithLabelValues(processor).Inc() }

// IncRuleMatch counts one matched rule of a type.
func IncRuleMatch(ruleType string) { ruleMatches.WithLabelValues(ruleType).Inc() }

// IncStatusTransition counts one successful transition into a status.
func IncStatusTransition(to string) { statusTransitions.WithLabelValues(to).Inc() }

// IncInvalidTransition counts one rejected transition.
func IncInvalidTransition() { invalidTransitions.Inc() }

// IncEscalation counts one severity escalation by trigger.
func IncEscalation(trigger string) { escalations.WithLabelValues(trigger).Inc() }

// IncEscalatorLockMiss counts one skipped escalator tick.
func IncEscalatorLockMiss() { escalatorLockMisses.Inc() }
