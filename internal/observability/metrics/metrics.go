package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "bms_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	ingestRequests *prometheus.CounterVec
	ingestErrors   *prometheus.CounterVec
	ingestLatency  *prometheus.HistogramVec

	consumerLag *prometheus.GaugeVec

	associationOutcomes *prometheus.CounterVec
	associationLatency  *prometheus.HistogramVec
	associationBatches  *prometheus.CounterVec

	reviewItemsTotal  *prometheus.CounterVec
	reviewNotifyTotal *prometheus.CounterVec

	exportTotal   *prometheus.CounterVec
	exportLatency *prometheus.HistogramVec

	backfillRunsTotal   *prometheus.CounterVec
	backfillRunsLatency *prometheus.HistogramVec
)

// Init registers observability metrics and DB-backed gauges.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		ingestRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_requests_total",
				Help: "Total screenshot ingest requests by result",
			},
			[]string{"result"},
		)
		ingestErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_errors_total",
				Help: "Total ingest errors by reason",
			},
			[]string{"reason"},
		)
		ingestLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "ingest_latency_seconds",
				Help:    "Ingest latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		consumerLag = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "event_consumer_lag_seconds",
				Help: "Consumer processing lag in seconds",
			},
			[]string{"consumer"},
		)

		associationOutcomes = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "association_outcomes_total",
				Help: "Total association outcomes by status and confidence",
			},
			[]string{"status", "confidence"},
		)
		associationLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "association_latency_seconds",
				Help:    "Per-record association latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		associationBatches = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "association_batches_total",
				Help: "Total association batch runs by result",
			},
			[]string{"result"},
		)

		reviewItemsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "review_items_total",
				Help: "Total review queue lifecycle events by type",
			},
			[]string{"event"},
		)
		reviewNotifyTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "review_notify_total",
				Help: "Total review notifications by channel and result",
			},
			[]string{"channel", "result"},
		)

		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "export_total",
				Help: "Total export operations by format and result",
			},
			[]string{"format", "result"},
		)
		exportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "export_latency_seconds",
				Help:    "Export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		backfillRunsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "backfill_runs_total",
				Help: "Total re-association backfill runs by result",
			},
			[]string{"result"},
		)
		backfillRunsLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "backfill_run_latency_seconds",
				Help:    "Backfill run latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		prometheus.MustRegister(
			ingestRequests,
			ingestErrors,
			ingestLatency,
			consumerLag,
			associationOutcomes,
			associationLatency,
			associationBatches,
			reviewItemsTotal,
			reviewNotifyTotal,
			exportTotal,
			exportLatency,
			backfillRunsTotal,
			backfillRunsLatency,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveIngest records ingest request duration and result.
func ObserveIngest(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if ingestRequests != nil {
		ingestRequests.WithLabelValues(result).Inc()
	}
	if ingestLatency != nil {
		ingestLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncIngestError increments ingest error counter.
func IncIngestError(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	if ingestErrors != nil {
		ingestErrors.WithLabelValues(reason).Inc()
	}
}

// ObserveConsumerLag sets consumer lag in seconds.
func ObserveConsumerLag(consumer string, lag time.Duration) {
	if consumer == "" {
		consumer = "unknown"
	}
	if lag < 0 {
		lag = 0
	}
	if consumerLag != nil {
		consumerLag.WithLabelValues(consumer).Set(lag.Seconds())
	}
}

// IncAssociationOutcome increments the outcome counter for one resolved
// record.
func IncAssociationOutcome(status, confidence string) {
	if status == "" {
		status = "unknown"
	}
	if confidence == "" {
		confidence = "none"
	}
	if associationOutcomes != nil {
		associationOutcomes.WithLabelValues(status, confidence).Inc()
	}
}

// ObserveAssociation records per-record association latency.
func ObserveAssociation(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if associationLatency != nil {
		associationLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncAssociationBatch increments the batch-run counter.
func IncAssociationBatch(result string) {
	if result == "" {
		result = resultSuccess
	}
	if associationBatches != nil {
		associationBatches.WithLabelValues(result).Inc()
	}
}

// IncReviewItem increments review queue lifecycle counters.
func IncReviewItem(event string) {
	if event == "" {
		event = "unknown"
	}
	if reviewItemsTotal != nil {
		reviewItemsTotal.WithLabelValues(event).Inc()
	}
}

// IncReviewNotify increments review notification counters.
func IncReviewNotify(channel, result string) {
	if channel == "" {
		channel = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if reviewNotifyTotal != nil {
		reviewNotifyTotal.WithLabelValues(channel, result).Inc()
	}
}

// ObserveExport records export latency and result.
func ObserveExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(format, result).Inc()
	}
	if exportLatency != nil {
		exportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// ObserveBackfillRun records backfill run latency and result.
func ObserveBackfillRun(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if backfillRunsTotal != nil {
		backfillRunsTotal.WithLabelValues(result).Inc()
	}
	if backfillRunsLatency != nil {
		backfillRunsLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// Exported constants for callers.
const (
	IngestResultSuccess = resultSuccess
	IngestResultError   = resultError

	ResultSuccess = resultSuccess
	ResultError   = resultError
)
