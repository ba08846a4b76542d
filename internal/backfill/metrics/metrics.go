package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles backfill metrics.
type Metrics struct {
	JobsTotal     *prometheus.CounterVec
	JobDuration   prometheus.Histogram
	ChangedMax    prometheus.Gauge
	ChangedPctMax prometheus.Gauge
	ReviewNewMax  prometheus.Gauge
	ReportsTotal  prometheus.Counter
	AlertsTotal   prometheus.Counter
}

// New constructs and registers metrics.
func New() *Metrics {
	m := &Metrics{
		JobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bms_backfill_jobs_total",
				Help: "Total backfill jobs by status",
			},
			[]string{"status"},
		),
		JobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bms_backfill_job_duration_seconds",
			Help:    "Backfill job duration in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		ChangedMax: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bms_backfill_changed_outcomes",
			Help: "Changed outcomes in the latest backfill run",
		}),
		ChangedPctMax: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bms_backfill_changed_pct",
			Help: "Changed outcome fraction in the latest backfill run",
		}),
		ReviewNewMax: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bms_backfill_review_new",
			Help: "Newly review-bound outcomes in the latest backfill run",
		}),
		ReportsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bms_backfill_reports_total",
			Help: "Total backfill reports",
		}),
		AlertsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bms_backfill_alerts_total",
			Help: "Total backfill churn alerts",
		}),
	}
	prometheus.MustRegister(
		m.JobsTotal,
		m.JobDuration,
		m.ChangedMax,
		m.ChangedPctMax,
		m.ReviewNewMax,
		m.ReportsTotal,
		m.AlertsTotal,
	)
	return m
}
