// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Registry metrics
	StrategiesRegistered prometheus.Gauge
	BundlesRegistered    prometheus.Gauge

	// Subscription metrics
	ActiveSubscriptions prometheus.Gauge
	SubscriptionOps     *prometheus.CounterVec

	// Trigger metrics
	TriggerEvaluations *prometheus.CounterVec

	// Executor metrics
	Executions       *prometheus.CounterVec
	ExecutionLatency *prometheus.HistogramVec

	// Bot metrics
	BotPollRounds   prometheus.Counter
	BotPollDuration prometheus.Histogram
	BotAlerts       *prometheus.CounterVec
	BotFallbacks    prometheus.Counter

	// Feed metrics
	RPCCallLatency   *prometheus.HistogramVec
	WSMessageLatency prometheus.Histogram

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulPoll prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "credit_automation"
	}

	return &Metrics{
		// Registry metrics
		StrategiesRegistered: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "strategies",
			Help:      "Number of registered strategies",
		}),
		BundlesRegistered: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "bundles",
			Help:      "Number of registered bundles",
		}),

		// Subscription metrics
		ActiveSubscriptions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "subscription",
			Name:      "active",
			Help:      "Number of active subscriptions seen by the last poll",
		}),
		SubscriptionOps: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "subscription",
			Name:      "operations_total",
			Help:      "Subscription operations by kind and outcome",
		}, []string{"operation", "status"}),

		// Trigger metrics
		TriggerEvaluations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trigger",
			Name:      "evaluations_total",
			Help:      "Trigger evaluations by kind and result",
		}, []string{"kind", "fired"}),

		// Executor metrics
		Executions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "executions_total",
			Help:      "Execute attempts by status and error kind",
		}, []string{"status", "error"}),
		ExecutionLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "execution_latency_seconds",
			Help:      "Execute latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),

		// Bot metrics
		BotPollRounds: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bot",
			Name:      "poll_rounds_total",
			Help:      "Total number of polling rounds",
		}),
		BotPollDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "bot",
			Name:      "poll_duration_seconds",
			Help:      "Polling round duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		}),
		BotAlerts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bot",
			Name:      "alerts_total",
			Help:      "Configuration errors that need an operator, by error kind",
		}, []string{"error"}),
		BotFallbacks: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bot",
			Name:      "fallbacks_total",
			Help:      "Times the bot moved on to the next strategy of a bundle after a failed execution",
		}),

		// Feed metrics
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "rpc_call_latency_seconds",
			Help:      "Feed RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		WSMessageLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "ws_message_latency_seconds",
			Help:      "WebSocket message processing latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastSuccessfulPoll: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_poll_timestamp",
			Help:      "Unix timestamp of last completed bot polling round",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// UpdateRegistrySizes sets the strategy and bundle gauges.
func UpdateRegistrySizes(strategies, bundles int64) {
	DefaultMetrics.StrategiesRegistered.Set(float64(strategies))
	DefaultMetrics.BundlesRegistered.Set(float64(bundles))
}

// RecordSubscriptionOp records a subscription operation.
func RecordSubscriptionOp(operation string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	DefaultMetrics.SubscriptionOps.WithLabelValues(operation, status).Inc()
}

// RecordTriggerEvaluation records one trigger evaluation.
func RecordTriggerEvaluation(kind string, fired bool) {
	label := "false"
	if fired {
		label = "true"
	}
	DefaultMetrics.TriggerEvaluations.WithLabelValues(kind, label).Inc()
}

// RecordExecution records an execute attempt.
func RecordExecution(status, errKind string, seconds float64) {
	DefaultMetrics.Executions.WithLabelValues(status, errKind).Inc()
	DefaultMetrics.ExecutionLatency.WithLabelValues(status).Observe(seconds)
}

// RecordPollRound records a completed bot polling round.
func RecordPollRound(active int, seconds float64, unixNow int64) {
	DefaultMetrics.BotPollRounds.Inc()
	DefaultMetrics.BotPollDuration.Observe(seconds)
	DefaultMetrics.ActiveSubscriptions.Set(float64(active))
	DefaultMetrics.LastSuccessfulPoll.Set(float64(unixNow))
}

// RecordBotAlert records a configuration error raised by the bot.
func RecordBotAlert(errKind string) {
	DefaultMetrics.BotAlerts.WithLabelValues(errKind).Inc()
}

// RecordBotFallback records a move to the next bundle variant.
func RecordBotFallback() {
	DefaultMetrics.BotFallbacks.Inc()
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordWSMessage records WebSocket message handling latency.
func RecordWSMessage(seconds float64) {
	DefaultMetrics.WSMessageLatency.Observe(seconds)
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
