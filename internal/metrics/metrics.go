// Package metrics exposes relay instrumentation in Prometheus format.
//
// All collectors are registered on Registry, which the HTTP layer serves at
// /metrics. Tests read them with prometheus/testutil.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all relay metrics
const namespace = "packrelay"

// Registry is the Prometheus registry for all metrics
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Ingest outcomes, used as the "outcome" label.
const (
	OutcomeStored    = "stored"
	OutcomeDuplicate = "duplicate"
	OutcomeInvalid   = "invalid"
	OutcomeError     = "error"
)

// Ingest metrics
var (
	// EventsIngested counts submitted events by outcome
	EventsIngested = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_ingested_total",
			Help:      "Total number of submitted events by outcome",
		},
		[]string{"outcome"}, // outcome: stored|duplicate|invalid|error
	)

	// IngestDuration records time spent in the single writer per event
	IngestDuration = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_duration_seconds",
			Help:      "Time from dequeue to durable write per event in seconds",
			// Buckets: 100µs, 500µs, 1ms, 5ms, 10ms, 50ms, 100ms, 500ms, 1s
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		},
	)

	// IngestQueueDepth tracks submissions waiting for the writer
	IngestQueueDepth = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ingest_queue_depth",
			Help:      "Number of submitted events waiting for the single writer",
		},
	)

	// IngestBytes counts the size of accepted events
	IngestBytes = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_bytes_total",
			Help:      "Total bytes of accepted events, before and after compression",
		},
		[]string{"form"}, // form: raw|compressed
	)
)

// Query metrics
var (
	// QueryDuration records filter query latency
	QueryDuration = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Filter query duration in seconds",
			// Buckets: 1ms, 5ms, 10ms, 25ms, 50ms, 100ms, 250ms, 500ms, 1s, 2.5s
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
	)

	// QueryResults records the number of events each query returned
	QueryResults = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_results",
			Help:      "Number of events returned per filter query",
			Buckets:   []float64{0, 1, 10, 50, 100, 250, 500, 1000},
		},
	)

	// QueryErrors counts failed queries
	QueryErrors = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "query_errors_total",
			Help:      "Total number of failed filter queries",
		},
	)
)

// Subscription metrics
var (
	// SessionsActive tracks open WebSocket sessions
	SessionsActive = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Current number of open subscription sessions",
		},
	)

	// MessagesReceived counts inbound subscription frames by type
	MessagesReceived = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Total number of inbound subscription frames",
		},
		[]string{"type"}, // type: EVENT|REQ|CLOSE|malformed
	)

	// SubscriptionsActive tracks named subscriptions across all sessions
	SubscriptionsActive = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subscriptions_active",
			Help:      "Current number of named subscriptions across sessions",
		},
	)
)
