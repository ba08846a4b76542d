package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	apihttp "bms-cloud/internal/api/http"
	"bms-cloud/internal/audit"
	"bms-cloud/internal/auth"
	backfillapp "bms-cloud/internal/backfill/application"
	backfillrepo "bms-cloud/internal/backfill/infrastructure/postgres"
	backfillhttp "bms-cloud/internal/backfill/interfaces/http"
	backfillmetrics "bms-cloud/internal/backfill/metrics"
	backfillnotify "bms-cloud/internal/backfill/notify"
	"bms-cloud/internal/eventing"
	"bms-cloud/internal/eventing/eventbus"
	eventingrepo "bms-cloud/internal/eventing/infrastructure/postgres"
	"bms-cloud/internal/extraction"
	"bms-cloud/internal/extraction/interfaces/ingest"
	fleetapp "bms-cloud/internal/fleet/application"
	fleetrepo "bms-cloud/internal/fleet/infrastructure/postgres"
	fleethttp "bms-cloud/internal/fleet/interfaces/http"
	"bms-cloud/internal/observability/metrics"
	recordsapp "bms-cloud/internal/records/application"
	recordsevents "bms-cloud/internal/records/application/events"
	recordsrepo "bms-cloud/internal/records/infrastructure/postgres"
	recordshttp "bms-cloud/internal/records/interfaces/http"
	reviewapp "bms-cloud/internal/review/application"
	review "bms-cloud/internal/review/domain"
	reviewrepo "bms-cloud/internal/review/infrastructure/postgres"
	reviewinterfaces "bms-cloud/internal/review/interfaces"
	reviewhttp "bms-cloud/internal/review/interfaces/http"
	reviewnotify "bms-cloud/internal/review/notify"

	"github.com/joho/godotenv"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	_ = godotenv.Load()
	cfg := loadConfig()
	logger := log.New(os.Stdout, "", log.LstdFlags)

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("db open error: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatalf("db ping error: %v", err)
	}

	metrics.Init(db, logger)
	systemChecker := auth.NewSystemChecker(db)
	auditRepo := audit.NewRepository(db)

	fleetRepo := fleetrepo.NewSystemRepository(db)
	fleetService, err := fleetapp.NewService(fleetRepo, logger)
	if err != nil {
		logger.Fatalf("fleet service error: %v", err)
	}
	fleetHandler, err := fleethttp.NewHandler(fleetService)
	if err != nil {
		logger.Fatalf("fleet handler error: %v", err)
	}

	baseBus := eventbus.NewInMemoryBus()
	registry := eventing.NewRegistry()
	registry.Register(recordsevents.RecordExtracted{})
	registry.Register(recordsevents.RecordAssociated{})
	registry.Register(recordsevents.NewSystemCandidate{})

	outboxStore := eventingrepo.NewOutboxStore(db)
	processedStore := eventingrepo.NewProcessedStore(db)
	dlqStore := eventingrepo.NewDLQStore(db)
	dispatcher := eventing.NewDispatcher(baseBus, outboxStore, registry, dlqStore)
	publisher := eventing.NewPublisher(outboxStore, dispatcher, cfg.TenantID, baseBus)

	snapshotRepo := recordsrepo.NewSnapshotRepository(db)
	historyQuery := recordsrepo.NewHistoryQuery(db)
	associationService, err := recordsapp.NewAssociationService(snapshotRepo, historyQuery, fleetService, publisher, logger)
	if err != nil {
		logger.Fatalf("association service error: %v", err)
	}

	itemRepo := reviewrepo.NewItemRepository(db)
	reviewBroker := reviewhttp.NewSSEBroker()
	reviewNotifiers := []reviewapp.ReviewNotifier{reviewBroker}
	if cfg.ReviewWebhookURL != "" {
		channel, err := reviewnotify.NewWebhookChannel(cfg.ReviewWebhookURL)
		if err != nil {
			logger.Fatalf("review webhook error: %v", err)
		}
		tpl, err := reviewnotify.NewTemplate(cfg.ReviewNotifyTemplate)
		if err != nil {
			logger.Fatalf("review template error: %v", err)
		}
		opts := []reviewnotify.Option{
			reviewnotify.WithEscalation(cfg.ReviewEscalationAfter),
			reviewnotify.WithCooldown(cfg.ReviewNotifyCooldown),
			reviewnotify.WithDedupeWindow(cfg.ReviewNotifyDedupeWindow),
			reviewnotify.WithRequestTimeout(cfg.ReviewNotifyTimeout),
		}
		if resolver := buildQueueURLResolver(cfg.PublicBaseURL); resolver != nil {
			opts = append(opts, reviewnotify.WithQueueURLResolver(resolver))
		}
		reviewNotifier, err := reviewnotify.NewNotifier(fleetRepo, itemRepo, channel, tpl, opts...)
		if err != nil {
			logger.Fatalf("review notifier error: %v", err)
		}
		reviewNotifiers = append(reviewNotifiers, reviewNotifier)
	}
	reviewService, err := reviewapp.NewService(itemRepo, fleetService, logger,
		reviewapp.WithNotifier(reviewnotify.NewMultiNotifier(reviewNotifiers...)),
		reviewapp.WithDefaultTenant(cfg.TenantID),
		reviewapp.WithSystemChecker(systemChecker),
	)
	if err != nil {
		logger.Fatalf("review service error: %v", err)
	}
	reviewHandler, err := reviewhttp.NewHandler(reviewService, auditRepo)
	if err != nil {
		logger.Fatalf("review handler error: %v", err)
	}
	candidateConsumer, err := reviewinterfaces.NewCandidateConsumer(reviewService)
	if err != nil {
		logger.Fatalf("review consumer error: %v", err)
	}
	eventing.Subscribe(baseBus, eventbus.EventTypeOf[recordsevents.NewSystemCandidate](), "review.candidate", func(ctx context.Context, event any) error {
		evt, ok := event.(recordsevents.NewSystemCandidate)
		if !ok {
			return eventbus.ErrInvalidEventType
		}
		return candidateConsumer.Consume(ctx, evt)
	}, processedStore)

	visionClient, err := extraction.NewClient(cfg.VisionBaseURL, cfg.VisionToken)
	if err != nil {
		logger.Fatalf("vision client error: %v", err)
	}
	ingestHandler, err := ingest.NewHandler(visionClient, associationService, cfg.TenantID, logger)
	if err != nil {
		logger.Fatalf("ingest handler error: %v", err)
	}
	associateHandler, err := recordshttp.NewAssociateHandler(associationService, cfg.TenantID, logger)
	if err != nil {
		logger.Fatalf("associate handler error: %v", err)
	}

	backfillCfg, err := backfillapp.LoadConfig()
	if err != nil {
		logger.Fatalf("backfill config error: %v", err)
	}
	backfillRepo := backfillrepo.NewRepository(db)
	backfillMetrics := backfillmetrics.New()
	var backfillNotifier backfillnotify.Notifier
	if backfillCfg.WebhookURL != "" {
		backfillNotifier = backfillnotify.NewWebhookNotifier(backfillCfg.WebhookURL)
	}
	backfillRunner := backfillapp.NewRunner(backfillRepo, snapshotRepo, associationService, backfillCfg, backfillNotifier, backfillMetrics, logger)
	backfillHandler, err := backfillhttp.NewHandler(backfillRunner, backfillRepo, cfg.TenantID)
	if err != nil {
		logger.Fatalf("backfill handler error: %v", err)
	}
	backfillScheduler := backfillapp.NewScheduler(backfillRunner, backfillCfg.Schedule.Tenants, backfillCfg.Schedule.DailyAt, logger)
	go backfillScheduler.Start(context.Background())

	if cfg.AssociateInterval > 0 {
		go func() {
			ticker := time.NewTicker(cfg.AssociateInterval)
			defer ticker.Stop()
			for range ticker.C {
				if _, err := associationService.AssociateBatch(context.Background(), cfg.TenantID, cfg.AssociateBatchLimit); err != nil {
					logger.Printf("associate batch error: %v", err)
				}
			}
		}()
	}
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			if err := dispatcher.Dispatch(context.Background(), 100); err != nil {
				logger.Printf("outbox dispatch error: %v", err)
			}
		}
	}()

	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, []string{"/ingest/"})
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy)
	ingestAuth := auth.NewIngestAuthMiddleware([]byte(cfg.IngestSecret), time.Duration(cfg.IngestSkewSeconds)*time.Second)

	mux := http.NewServeMux()
	mux.Handle("/ingest/v1/", ingestAuth.Wrap(ingestHandler))
	mux.Handle("/api/v1/systems", fleetHandler)
	mux.Handle("/api/v1/systems/", fleetHandler)
	mux.Handle("/api/v1/review", reviewHandler)
	mux.Handle("/api/v1/review/", reviewHandler)
	mux.Handle("/api/v1/review/stream", reviewhttp.NewStreamHandler(reviewBroker))
	mux.Handle("/api/v1/associate/run", associateHandler)
	mux.Handle("/api/v1/backfill/run", backfillHandler)
	mux.Handle("/api/v1/backfill/reports", backfillHandler)
	mux.Handle("/api/v1/backfill/reports/", backfillHandler)
	mux.Handle("/api/v1/stats", apihttp.NewStatsHandler(db, cfg.TenantID))
	mux.Handle("/api/v1/snapshots", apihttp.NewSnapshotsHandler(db, cfg.TenantID))
	mux.Handle("/api/v1/exports/snapshots.csv", apihttp.NewExportSnapshotsCSVHandler(db, cfg.TenantID))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: loggingMiddleware(authMiddleware.Wrap(mux), logger)}
	logger.Printf("http listening on %s", cfg.HTTPAddr)
	logger.Fatal(server.ListenAndServe())
}

type config struct {
	DatabaseURL              string
	HTTPAddr                 string
	TenantID                 string
	VisionBaseURL            string
	VisionToken              string
	PublicBaseURL            string
	ReviewWebhookURL         string
	ReviewNotifyTemplate     string
	ReviewEscalationAfter    time.Duration
	ReviewNotifyCooldown     time.Duration
	ReviewNotifyDedupeWindow time.Duration
	ReviewNotifyTimeout      time.Duration
	AssociateInterval        time.Duration
	AssociateBatchLimit      int
	JWTSecret                string
	IngestSecret             string
	IngestSkewSeconds        int
}

func loadConfig() config {
	cfg := config{
		DatabaseURL:              getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:                 getenvDefault("HTTP_ADDR", ":8080"),
		TenantID:                 getenvDefault("TENANT_ID", "tenant-demo"),
		VisionBaseURL:            getenvDefault("VISION_BASE_URL", ""),
		VisionToken:              getenvDefault("VISION_TOKEN", ""),
		PublicBaseURL:            getenvDefault("PUBLIC_BASE_URL", ""),
		ReviewWebhookURL:         getenvDefault("REVIEW_WEBHOOK_URL", ""),
		ReviewNotifyTemplate:     getenvDefault("REVIEW_NOTIFY_TEMPLATE", ""),
		ReviewEscalationAfter:    getenvDuration("REVIEW_ESCALATION_AFTER", 0),
		ReviewNotifyCooldown:     getenvDuration("REVIEW_NOTIFY_COOLDOWN", 0),
		ReviewNotifyDedupeWindow: getenvDuration("REVIEW_NOTIFY_DEDUP_WINDOW", 0),
		ReviewNotifyTimeout:      getenvDuration("REVIEW_NOTIFY_TIMEOUT", 5*time.Second),
		AssociateInterval:        getenvDuration("ASSOCIATE_INTERVAL", 5*time.Minute),
		AssociateBatchLimit:      getenvIntDefault("ASSOCIATE_BATCH_LIMIT", 0),
		JWTSecret:                getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
		IngestSecret:             getenvDefault("INGEST_HMAC_SECRET", ""),
		IngestSkewSeconds:        getenvIntDefault("INGEST_MAX_SKEW_SECONDS", 300),
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL or PG_DSN is required")
	}
	if cfg.VisionBaseURL == "" {
		log.Fatal("VISION_BASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		log.Fatal("AUTH_JWT_SECRET is required")
	}
	return cfg
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
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

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func buildQueueURLResolver(baseURL string) reviewnotify.QueueURLResolver {
	if baseURL == "" {
		return nil
	}
	baseURL = strings.TrimRight(baseURL, "/")
	return func(_ context.Context, item review.Item) string {
		if item.ID == "" {
			return baseURL + "/api/v1/review"
		}
		return baseURL + "/api/v1/review/" + item.ID
	}
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
