package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/Fauzanmhr/skripsi/internal/api"
	"github.com/Fauzanmhr/skripsi/internal/auth"
	"github.com/Fauzanmhr/skripsi/internal/cloudsql"
	"github.com/Fauzanmhr/skripsi/internal/config"
	"github.com/Fauzanmhr/skripsi/internal/database"
	"github.com/Fauzanmhr/skripsi/internal/ingestion"
	"github.com/Fauzanmhr/skripsi/internal/logging"
	"github.com/Fauzanmhr/skripsi/internal/metrics"
	"github.com/Fauzanmhr/skripsi/internal/scheduler"
	"github.com/Fauzanmhr/skripsi/internal/scraper"
	"github.com/Fauzanmhr/skripsi/internal/sentiment"
	"github.com/Fauzanmhr/skripsi/internal/server"
)

func main() {
	// Local development reads environment from a .env file; absence is fine.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to init logger", "error", err)
		os.Exit(1)
	}

	logger.Info("starting review dashboard")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbConfig := database.DefaultConfig()
	dbConfig.URL = cfg.Database.URL
	dbConfig.MaxConnections = cfg.Database.MaxConnections
	dbConfig.MaxIdleConnections = cfg.Database.MaxIdleConnections
	dbConfig.ConnMaxLifetime = cfg.Database.ConnMaxLifetime

	connInfo := cloudsql.GetConnectionConfig()
	logger.Info("connecting to database",
		"connection_type", connInfo["connection_type"],
		"instance", connInfo["instance"])
	db, err := database.Connect(ctx, dbConfig)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("database connected")

	if err := database.RunMigrations(db, "./migrations", logger); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Repositories
	reviewRepo := database.NewPostgresReviewRepository(db)
	statusRepo := database.NewPostgresScrapeStatusRepository(db)
	settingsRepo := database.NewPostgresSettingsRepository(db)

	collector, err := metrics.NewCollector()
	if err != nil {
		logger.Error("failed to init metrics", "error", err)
		os.Exit(1)
	}

	// Scrape pipeline
	fetcher := scraper.NewGoogleMapsFetcher(
		&http.Client{Timeout: cfg.Scraper.Timeout},
		scraper.Config{
			Pages:     cfg.Scraper.Pages,
			Languages: cfg.Scraper.Languages,
			Retry:     scraper.DefaultRetryPolicy(),
		},
		logging.Component(logger, "scraper"),
	)

	broadcaster := ingestion.NewStatusBroadcaster()
	broadcaster.Subscribe(ingestion.NewLogListener(logging.Component(logger, "scrape-status")))

	coordinator := ingestion.NewCoordinator(
		fetcher, reviewRepo, statusRepo, settingsRepo,
		broadcaster, collector, logging.Component(logger, "coordinator"))

	// Sentiment classifier: dedicated service first, OpenAI as fallback,
	// keyword rules for bare development setups.
	var classifier sentiment.Classifier
	switch {
	case cfg.Sentiment.APIURL != "":
		logger.Info("using HTTP sentiment classifier", "url", cfg.Sentiment.APIURL)
		classifier = sentiment.NewHTTPClassifier(cfg.Sentiment.APIURL, &http.Client{Timeout: cfg.Sentiment.Timeout})
	case os.Getenv("OPENAI_API_KEY") != "":
		logger.Info("using OpenAI sentiment classifier", "model", cfg.Sentiment.OpenAIModel)
		classifier = sentiment.NewOpenAIClassifier(os.Getenv("OPENAI_API_KEY"), cfg.Sentiment.OpenAIModel)
	default:
		logger.Warn("no sentiment backend configured, using keyword classifier")
		classifier = sentiment.NewKeywordClassifier()
	}

	backfill := sentiment.NewBackfill(
		reviewRepo, classifier, collector, logging.Component(logger, "backfill"),
		cfg.Sentiment.Interval, cfg.Sentiment.MaxAttempts, cfg.Sentiment.BatchSize)
	go backfill.Start(ctx)
	defer backfill.Stop()

	// Auto-scrape scheduler
	autoScrape := scheduler.NewAutoScrape(
		coordinator, settingsRepo, statusRepo,
		logging.Component(logger, "auto-scrape"), nil)
	if err := autoScrape.Initialize(ctx); err != nil {
		logger.Error("failed to initialize auto-scrape scheduler", "error", err)
		os.Exit(1)
	}
	defer autoScrape.Stop()

	// HTTP routes
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := database.HealthCheck(r.Context(), db); err != nil {
			logger.Error("health check failed", "error", err)
			http.Error(w, `{"status":"unhealthy"}`, http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	mux.Handle("/metrics", collector.Handler())

	authConfig := auth.LoadConfigFromEnv()
	api.SetupRoutes(mux, coordinator, reviewRepo, statusRepo, autoScrape, settingsRepo,
		classifier, cfg.Sentiment.MaxAttempts, authConfig, logger)

	handler := server.SPAMiddleware(collector.InstrumentHandler(mux), "./web/dist", "./web/dist/index.html")

	srv := server.New(cfg.Server, logger, handler)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	if err := srv.Shutdown(context.Background()); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}
