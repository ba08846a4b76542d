package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"log"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	backfillapp "bms-cloud/internal/backfill/application"
	backfillrepo "bms-cloud/internal/backfill/infrastructure/postgres"
	fleetapp "bms-cloud/internal/fleet/application"
	fleetrepo "bms-cloud/internal/fleet/infrastructure/postgres"
	recordsapp "bms-cloud/internal/records/application"
	recordsrepo "bms-cloud/internal/records/infrastructure/postgres"
)

// reassociate runs one backfill re-association job from the command line and
// prints the resulting diff summary. Stored outcomes are left untouched.
func main() {
	var (
		dsn      = flag.String("pg-dsn", envOrDefault("PG_DSN", envOrDefault("DATABASE_URL", "")), "Postgres DSN")
		tenantID = flag.String("tenant-id", envOrDefault("TENANT_ID", "tenant-demo"), "tenant id")
		month    = flag.String("month", "", "month to re-run (YYYY-MM), defaults to the previous month")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("PG_DSN or DATABASE_URL is required")
	}
	monthStart, err := resolveMonth(*month)
	if err != nil {
		log.Fatalf("invalid month: %v", err)
	}

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	logger := log.New(os.Stdout, "reassociate ", log.LstdFlags)
	ctx := context.Background()

	fleetService, err := fleetapp.NewService(fleetrepo.NewSystemRepository(db), logger)
	if err != nil {
		log.Fatalf("fleet service: %v", err)
	}
	snapshotRepo := recordsrepo.NewSnapshotRepository(db)
	associationService, err := recordsapp.NewAssociationService(
		snapshotRepo,
		recordsrepo.NewHistoryQuery(db),
		fleetService,
		nil,
		logger,
	)
	if err != nil {
		log.Fatalf("association service: %v", err)
	}

	cfg, err := backfillapp.LoadConfig()
	if err != nil {
		log.Fatalf("backfill config: %v", err)
	}
	runner := backfillapp.NewRunner(backfillrepo.NewRepository(db), snapshotRepo, associationService, cfg, nil, nil, logger)

	report, err := runner.Run(ctx, *tenantID, monthStart, time.Now().UTC(), nil)
	if err != nil {
		log.Fatalf("backfill run: %v", err)
	}
	if report == nil {
		log.Fatal("backfill run produced no report")
	}

	log.Printf("report %s: changed=%d (%.2f%%) review_new=%d recommended=%s archive=%s",
		report.ID, report.ChangedCount, report.ChangedPct*100, report.ReviewCount, report.RecommendedAction, report.Location)
	if len(report.DiffSummary) > 0 {
		var pretty map[string]any
		if err := json.Unmarshal(report.DiffSummary, &pretty); err == nil {
			out, _ := json.MarshalIndent(pretty, "", "  ")
			_, _ = os.Stdout.Write(append(out, '\n'))
		}
	}
}

func resolveMonth(value string) (time.Time, error) {
	if value == "" {
		now := time.Now().UTC()
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0), nil
	}
	t, err := time.Parse("2006-01", value)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC), nil
}

func envOrDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}
