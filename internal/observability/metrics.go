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
	// Instruction metrics
	InstructionsTotal  *prometheus.CounterVec
	InstructionLatency *prometheus.HistogramVec

	// Resize metrics
	ResizesTotal         *prometheus.CounterVec
	AccountsMigrated     prometheus.Counter
	RentTopUpLamports    prometheus.Counter
	LegacyAccountsSeen   prometheus.Gauge
	ExtendedAccountsSeen prometheus.Gauge

	// Time machine metrics
	ObservationsRecorded prometheus.Counter
	StaleUpdatesDropped  prometheus.Counter
	BucketsFinalized     prometheus.Counter

	// Feed metrics
	FeedMessagesTotal   *prometheus.CounterVec
	FeedPublishersGauge prometheus.Gauge

	// Export metrics
	AggregatesExported prometheus.Counter
	ExportErrors       prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "price_oracle_lab"
	}

	return &Metrics{
		InstructionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "program",
			Name:      "instructions_total",
			Help:      "Total number of instructions executed by opcode and status",
		}, []string{"opcode", "status"}),
		InstructionLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "program",
			Name:      "instruction_latency_seconds",
			Help:      "Instruction execution latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"opcode"}),

		ResizesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resize",
			Name:      "calls_total",
			Help:      "Total number of resize calls by outcome",
		}, []string{"outcome"}),
		AccountsMigrated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resize",
			Name:      "accounts_migrated_total",
			Help:      "Total number of accounts grown from legacy to extended size",
		}),
		RentTopUpLamports: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resize",
			Name:      "rent_topup_lamports_total",
			Help:      "Total lamports transferred to keep grown accounts rent exempt",
		}),
		LegacyAccountsSeen: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "resize",
			Name:      "legacy_accounts",
			Help:      "Number of legacy-size price accounts at last scan",
		}),
		ExtendedAccountsSeen: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "resize",
			Name:      "extended_accounts",
			Help:      "Number of extended-size price accounts at last scan",
		}),

		ObservationsRecorded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "timemachine",
			Name:      "observations_recorded_total",
			Help:      "Total number of observations folded into the ring",
		}),
		StaleUpdatesDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "timemachine",
			Name:      "stale_updates_dropped_total",
			Help:      "Total number of observations excluded as stale",
		}),
		BucketsFinalized: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "timemachine",
			Name:      "buckets_finalized_total",
			Help:      "Total number of buckets closed as windows advanced",
		}),

		FeedMessagesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "messages_total",
			Help:      "Total number of publisher feed messages by status",
		}, []string{"status"}),
		FeedPublishersGauge: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "publishers_connected",
			Help:      "Number of currently connected publishers",
		}),

		AggregatesExported: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "export",
			Name:      "aggregates_exported_total",
			Help:      "Total number of bucket aggregates exported",
		}),
		ExportErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "export",
			Name:      "errors_total",
			Help:      "Total number of export flush errors",
		}),

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
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordInstruction records an executed instruction.
func RecordInstruction(opcode, status string, seconds float64) {
	DefaultMetrics.InstructionsTotal.WithLabelValues(opcode, status).Inc()
	DefaultMetrics.InstructionLatency.WithLabelValues(opcode).Observe(seconds)
}

// RecordResize records a resize call outcome.
func RecordResize(outcome string) {
	DefaultMetrics.ResizesTotal.WithLabelValues(outcome).Inc()
}

// RecordMigration records one account grown to the extended size.
func RecordMigration(rentTopUp uint64) {
	DefaultMetrics.AccountsMigrated.Inc()
	DefaultMetrics.RentTopUpLamports.Add(float64(rentTopUp))
}

// UpdateAccountSizes updates the legacy/extended account gauges.
func UpdateAccountSizes(legacy, extended int) {
	DefaultMetrics.LegacyAccountsSeen.Set(float64(legacy))
	DefaultMetrics.ExtendedAccountsSeen.Set(float64(extended))
}

// RecordObservation records one accepted observation.
func RecordObservation() {
	DefaultMetrics.ObservationsRecorded.Inc()
}

// RecordStaleUpdate records one observation dropped as stale.
func RecordStaleUpdate() {
	DefaultMetrics.StaleUpdatesDropped.Inc()
}

// RecordBucketsFinalized records buckets closed by a record call.
func RecordBucketsFinalized(n int) {
	DefaultMetrics.BucketsFinalized.Add(float64(n))
}

// RecordFeedMessage records one feed message by status.
func RecordFeedMessage(status string) {
	DefaultMetrics.FeedMessagesTotal.WithLabelValues(status).Inc()
}

// UpdatePublishersConnected updates the connected publisher gauge.
func UpdatePublishersConnected(delta int) {
	DefaultMetrics.FeedPublishersGauge.Add(float64(delta))
}

// RecordExport records an export flush.
func RecordExport(rows int, err error) {
	if err != nil {
		DefaultMetrics.ExportErrors.Inc()
		return
	}
	DefaultMetrics.AggregatesExported.Add(float64(rows))
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
