package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"strconv"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	associator "bms-cloud/internal/associator/domain"
	fleetapp "bms-cloud/internal/fleet/application"
	fleetrepo "bms-cloud/internal/fleet/infrastructure/postgres"
	records "bms-cloud/internal/records/domain"
	recordsrepo "bms-cloud/internal/records/infrastructure/postgres"
)

type config struct {
	dsn           string
	tenantID      string
	systemPrefix  string
	systemCount   int
	snapshotCount int
	startDate     string
	days          int
	driftRate     float64
	unknownRate   float64
	seed          int64
}

func main() {
	cfg := parseConfig()
	if cfg.dsn == "" {
		log.Fatal("PG_DSN or DATABASE_URL is required")
	}
	if cfg.systemCount <= 0 {
		log.Fatal("system-count must be > 0")
	}
	if cfg.snapshotCount <= 0 {
		log.Fatal("snapshot-count must be > 0")
	}

	start, err := parseStartDate(cfg.startDate)
	if err != nil {
		log.Fatalf("invalid start-date: %v", err)
	}
	rng := rand.New(rand.NewSource(cfg.seed))

	db, err := sql.Open("pgx", cfg.dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	logger := log.New(os.Stdout, "seed ", log.LstdFlags)

	fleetService, err := fleetapp.NewService(fleetrepo.NewSystemRepository(db), logger)
	if err != nil {
		log.Fatalf("fleet service: %v", err)
	}

	log.Printf("seeding systems: tenant=%s count=%d", cfg.tenantID, cfg.systemCount)
	hardwareIDs := make([]string, 0, cfg.systemCount)
	for i := 0; i < cfg.systemCount; i++ {
		hardwareID := fmt.Sprintf("%s-%05d", "ABC", i+1)
		voltage := 48.0
		_, err := fleetService.RegisterSystem(ctx, fleetapp.RegisterInput{
			ID:          fmt.Sprintf("%s%03d", cfg.systemPrefix, i+1),
			TenantID:    cfg.tenantID,
			Name:        fmt.Sprintf("Seed Rack %03d", i+1),
			HardwareIDs: []string{hardwareID},
			Voltage:     &voltage,
		})
		if err != nil {
			log.Fatalf("register system: %v", err)
		}
		hardwareIDs = append(hardwareIDs, hardwareID)
	}

	snapshotRepo := recordsrepo.NewSnapshotRepository(db)
	log.Printf("seeding snapshots: count=%d days=%d drift=%.2f unknown=%.2f",
		cfg.snapshotCount, cfg.days, cfg.driftRate, cfg.unknownRate)
	window := time.Duration(cfg.days) * 24 * time.Hour
	for i := 0; i < cfg.snapshotCount; i++ {
		capturedAt := start.Add(time.Duration(rng.Int63n(int64(window))))
		input := buildInput(rng, hardwareIDs, capturedAt, cfg.driftRate, cfg.unknownRate)
		snapshot := &records.Snapshot{
			ID:         fmt.Sprintf("seed-snap-%06d", i+1),
			TenantID:   cfg.tenantID,
			Source:     "seed",
			CapturedAt: capturedAt,
			Extracted:  input,
		}
		if err := snapshotRepo.Insert(ctx, snapshot); err != nil {
			log.Fatalf("insert snapshot: %v", err)
		}
	}

	log.Printf("seed completed: systems=%d snapshots=%d", cfg.systemCount, cfg.snapshotCount)
}

// buildInput produces a screenshot-shaped record. driftRate injects a
// one-character typo so the fuzzy tier has work; unknownRate drops the id.
func buildInput(rng *rand.Rand, hardwareIDs []string, capturedAt time.Time, driftRate, unknownRate float64) associator.RecordInput {
	voltage := 44 + rng.Float64()*12
	soc := rng.Float64() * 100
	id := hardwareIDs[rng.Intn(len(hardwareIDs))]

	switch {
	case unknownRate > 0 && rng.Float64() < unknownRate:
		id = "N/A"
	case driftRate > 0 && rng.Float64() < driftRate:
		id = mutateID(rng, id)
	}

	input := associator.RecordInput{
		OverallVoltage: &voltage,
		StateOfCharge:  &soc,
		Timestamp:      capturedAt,
	}
	// Half the snapshots use the nested historical shape.
	if rng.Intn(2) == 0 {
		input.Analysis = &associator.AnalysisFields{HardwareSystemID: id}
	} else {
		input.HardwareSystemID = id
	}
	return input
}

func mutateID(rng *rand.Rand, id string) string {
	if len(id) < 2 {
		return id
	}
	chars := []byte(id)
	pos := rng.Intn(len(chars))
	chars[pos] = byte('0' + rng.Intn(10))
	return string(chars)
}

func parseConfig() config {
	cfg := config{}
	flag.StringVar(&cfg.dsn, "pg-dsn", envOrDefault("PG_DSN", envOrDefault("DATABASE_URL", "")), "Postgres DSN")
	flag.StringVar(&cfg.tenantID, "tenant-id", envOrDefault("TENANT_ID", "tenant-demo"), "tenant id")
	flag.StringVar(&cfg.systemPrefix, "system-prefix", envOrDefault("SYSTEM_PREFIX", "sys-seed-"), "system id prefix")
	flag.IntVar(&cfg.systemCount, "system-count", envOrInt("SYSTEM_COUNT", 20), "number of systems to register")
	flag.IntVar(&cfg.snapshotCount, "snapshot-count", envOrInt("SNAPSHOT_COUNT", 500), "number of snapshots to insert")
	flag.StringVar(&cfg.startDate, "start-date", envOrDefault("START_DATE", ""), "start date (YYYY-MM-DD or RFC3339)")
	flag.IntVar(&cfg.days, "days", envOrInt("DAYS", 7), "capture window in days")
	flag.Float64Var(&cfg.driftRate, "drift-rate", 0.1, "fraction of snapshots with a typo in the id")
	flag.Float64Var(&cfg.unknownRate, "unknown-rate", 0.05, "fraction of snapshots without a usable id")
	flag.Int64Var(&cfg.seed, "seed", 1, "rng seed")
	flag.Parse()
	return cfg
}

func parseStartDate(value string) (time.Time, error) {
	if value == "" {
		return time.Now().UTC().AddDate(0, 0, -7).Truncate(24 * time.Hour), nil
	}
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t.UTC(), nil
	}
	return time.Parse(time.RFC3339, value)
}

func envOrDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func envOrInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
