package application

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"path/filepath"
	"time"

	backfillrepo "bms-cloud/internal/backfill/infrastructure/postgres"
	backfillmetrics "bms-cloud/internal/backfill/metrics"
	backfillnotify "bms-cloud/internal/backfill/notify"
	obsmetrics "bms-cloud/internal/observability/metrics"
)

const (
	jobTypeReassociation = "reassociation"
	jobStatusCreated     = "created"
	jobStatusRunning     = "running"
	jobStatusSuccess     = "succeeded"
	jobStatusFailed      = "failed"
)

// Runner executes backfill re-association jobs.
type Runner struct {
	repo          *backfillrepo.Repository
	snapshots     SnapshotSource
	matchers      MatcherProvider
	thresholds    Config
	notifier      backfillnotify.Notifier
	metrics       *backfillmetrics.Metrics
	logger        *log.Logger
	publicBaseURL string
	storageRoot   string
}

// NewRunner constructs a Runner.
func NewRunner(repo *backfillrepo.Repository, snapshots SnapshotSource, matchers MatcherProvider, cfg Config, notifier backfillnotify.Notifier, metrics *backfillmetrics.Metrics, logger *log.Logger) *Runner {
	return &Runner{
		repo:          repo,
		snapshots:     snapshots,
		matchers:      matchers,
		thresholds:    cfg,
		notifier:      notifier,
		metrics:       metrics,
		logger:        logger,
		publicBaseURL: cfg.PublicBaseURL,
		storageRoot:   cfg.StorageRoot,
	}
}

// Run executes a backfill job for a tenant/month. Stored outcomes are left
// untouched; the job reports where a fresh run against the current registry
// disagrees with what was persisted.
func (r *Runner) Run(ctx context.Context, tenantID string, month time.Time, jobDate time.Time, override *Thresholds) (*backfillrepo.Report, error) {
	if r == nil {
		return nil, fmt.Errorf("backfill runner: nil")
	}
	if tenantID == "" {
		return nil, fmt.Errorf("backfill runner: tenant_id required")
	}
	jobDate = time.Date(jobDate.Year(), jobDate.Month(), jobDate.Day(), 0, 0, 0, 0, time.UTC)
	monthStart := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, time.UTC)
	monthEnd := monthStart.AddDate(0, 1, 0)
	if err := validateMonth(monthStart, monthEnd); err != nil {
		return nil, err
	}

	jobID := fmt.Sprintf("bf-%s-%s-%s", tenantID, monthStart.Format("200601"), jobDate.Format("20060102"))
	job, err := r.repo.CreateJob(ctx, &backfillrepo.Job{
		ID:       jobID,
		TenantID: tenantID,
		Month:    monthStart,
		JobDate:  jobDate,
		JobType:  jobTypeReassociation,
		Status:   jobStatusCreated,
	})
	if err != nil {
		return nil, err
	}
	if job.Status == jobStatusSuccess {
		report, _ := r.repo.GetReport(ctx, "report-"+job.ID)
		return report, nil
	}
	if job.Status == jobStatusRunning {
		return nil, fmt.Errorf("backfill job already running")
	}

	started := time.Now().UTC()
	_ = r.repo.UpdateJobStatus(ctx, job.ID, jobStatusRunning, "", &started, nil, true)
	if r.metrics != nil {
		r.metrics.JobsTotal.WithLabelValues(jobStatusRunning).Inc()
	}
	r.logf("backfill_job_start", tenantID, job.ID, "", "")

	thresholds := r.thresholds.ThresholdsForTenant(tenantID)
	if override != nil {
		thresholds = mergeThresholds(thresholds, *override)
	}

	result, err := reconcile(ctx, r.snapshots, r.matchers, tenantID, monthStart, monthEnd)
	if err != nil {
		return nil, r.failJob(ctx, job.ID, tenantID, started, err)
	}

	reportDir := filepath.Join(r.storageRoot, tenantID, monthStart.Format("2006-01"), job.ID)
	if err := writeReports(reportDir, result); err != nil {
		return nil, r.failJob(ctx, job.ID, tenantID, started, err)
	}

	summary := buildDiffSummary(result, tenantID, monthStart, thresholds)
	_ = writeSummaryJSON(reportDir, summary)
	archivePath, err := writeArchive(reportDir)
	if err != nil {
		return nil, r.failJob(ctx, job.ID, tenantID, started, err)
	}

	recommended := recommendedAction(summary, thresholds)
	summaryBytes, _ := json.Marshal(summary)
	reportID := "report-" + job.ID

	report := &backfillrepo.Report{
		ID:                reportID,
		JobID:             job.ID,
		TenantID:          tenantID,
		Month:             monthStart,
		ReportDate:        jobDate,
		Status:            "generated",
		Location:          archivePath,
		DiffSummary:       summaryBytes,
		ChangedCount:      summary.Changed,
		ChangedPct:        summary.ChangedPct,
		ReviewCount:       summary.ReviewNew,
		RecommendedAction: recommended,
		CreatedAt:         time.Now().UTC(),
	}

	if err := r.repo.CreateReport(ctx, report); err != nil {
		return nil, r.failJob(ctx, job.ID, tenantID, started, err)
	}

	if isThresholdExceeded(summary, thresholds) {
		if err := r.createAlert(ctx, report, summary, recommended); err != nil {
			r.logf("backfill_alert_failed", tenantID, job.ID, report.ID, err.Error())
		} else if r.metrics != nil {
			r.metrics.AlertsTotal.Inc()
		}
	}

	ended := time.Now().UTC()
	_ = r.repo.UpdateJobStatus(ctx, job.ID, jobStatusSuccess, "", &started, &ended, false)
	obsmetrics.ObserveBackfillRun(obsmetrics.ResultSuccess, ended.Sub(started))
	if r.metrics != nil {
		r.metrics.JobsTotal.WithLabelValues(jobStatusSuccess).Inc()
		r.metrics.JobDuration.Observe(ended.Sub(started).Seconds())
		r.metrics.ReportsTotal.Inc()
		r.metrics.ChangedMax.Set(float64(summary.Changed))
		r.metrics.ChangedPctMax.Set(summary.ChangedPct)
		r.metrics.ReviewNewMax.Set(float64(summary.ReviewNew))
	}
	r.logf("backfill_job_success", tenantID, job.ID, report.ID, "")
	return report, nil
}

func (r *Runner) failJob(ctx context.Context, jobID, tenantID string, started time.Time, cause error) error {
	ended := time.Now().UTC()
	_ = r.repo.UpdateJobStatus(ctx, jobID, jobStatusFailed, cause.Error(), &started, &ended, false)
	obsmetrics.ObserveBackfillRun(obsmetrics.ResultError, ended.Sub(started))
	if r.metrics != nil {
		r.metrics.JobsTotal.WithLabelValues(jobStatusFailed).Inc()
	}
	r.logf("backfill_job_failed", tenantID, jobID, "", cause.Error())
	return cause
}

func (r *Runner) createAlert(ctx context.Context, report *backfillrepo.Report, summary diffSummary, recommended string) error {
	if report == nil {
		return nil
	}
	payload := map[string]any{
		"changed":            summary.Changed,
		"changed_pct":        summary.ChangedPct,
		"review_new":         summary.ReviewNew,
		"total":              summary.Total,
		"recommended_action": recommended,
	}
	payloadBytes, _ := json.Marshal(payload)
	alert := &backfillrepo.Alert{
		ID:        "alert-" + report.ID,
		TenantID:  report.TenantID,
		Category:  "backfill",
		Severity:  "high",
		Title:     fmt.Sprintf("Association churn alert: %s", report.TenantID),
		Message:   fmt.Sprintf("Outcome churn exceeds threshold for %s %s", report.TenantID, summary.Month),
		Payload:   payloadBytes,
		ReportID:  report.ID,
		Status:    "open",
		CreatedAt: time.Now().UTC(),
	}
	if err := r.repo.CreateAlert(ctx, alert); err != nil {
		return err
	}
	if r.notifier != nil {
		msg := backfillnotify.AlertMessage{
			TenantID:          report.TenantID,
			Month:             summary.Month,
			ReportID:          report.ID,
			ReportURL:         fmt.Sprintf("%s/api/v1/backfill/reports/%s/download", r.publicBaseURL, report.ID),
			DiffSummary:       payload,
			RecommendedAction: recommended,
			Meta:              map[string]string{"job_id": report.JobID},
		}
		return r.notifier.Notify(ctx, msg)
	}
	return nil
}

func (r *Runner) logf(event, tenantID, jobID, reportID, errMsg string) {
	if r.logger == nil {
		return
	}
	r.logger.Printf("event=%s tenant_id=%s job_id=%s report_id=%s correlation_id=%s error=%s",
		event, tenantID, jobID, reportID, jobID, errMsg)
}
