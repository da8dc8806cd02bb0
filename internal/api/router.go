package api

import (
	"log/slog"
	"net/http"

	"github.com/Fauzanmhr/skripsi/internal/auth"
	"github.com/Fauzanmhr/skripsi/internal/ingestion"
	"github.com/Fauzanmhr/skripsi/internal/sentiment"
)

// SetupRoutes configures all API routes. Reads are public; everything that
// mutates state sits behind the auth middleware.
func SetupRoutes(
	mux *http.ServeMux,
	coordinator *ingestion.Coordinator,
	reviews ReviewStore,
	statuses StatusLog,
	scheduler Scheduler,
	source SourceSettings,
	classifier sentiment.Classifier,
	maxAttempts int,
	authConfig auth.Config,
	logger *slog.Logger,
) {
	handler := NewHandler(coordinator, reviews, statuses, scheduler, source, maxAttempts, logger)
	authHandler := NewAuthHandler(authConfig, logger)
	analyzeHandler := NewAnalyzeHandler(classifier, logger)

	authMiddleware := auth.Middleware(authConfig)
	protect := func(h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			authMiddleware(h).ServeHTTP(w, r)
		}
	}

	// Authentication routes
	mux.HandleFunc("/api/auth/login", authHandler.Login)
	mux.HandleFunc("/api/auth/validate", protect(authHandler.Validate))

	// Review listing and dashboard stats
	mux.HandleFunc("/api/reviews", handler.ReviewsHandler)
	mux.HandleFunc("/api/reviews/reset-attempts", protect(handler.ResetAttemptsHandler))
	mux.HandleFunc("/api/dashboard/stats", handler.StatsHandler)

	// Scrape pipeline
	mux.HandleFunc("/api/scrape", protect(handler.TriggerScrapeHandler))
	mux.HandleFunc("/api/scrape/status", handler.ScrapeStatusHandler)

	// Settings
	mux.HandleFunc("/api/settings/auto-scrape", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			handler.AutoScrapeSettingsHandler(w, r)
			return
		}
		protect(handler.AutoScrapeSettingsHandler)(w, r)
	})
	mux.HandleFunc("/api/settings/source-url", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			handler.SourceURLHandler(w, r)
			return
		}
		protect(handler.SourceURLHandler)(w, r)
	})

	// Ad-hoc file analysis
	mux.HandleFunc("/api/analyze/upload", protect(analyzeHandler.Upload))
	mux.HandleFunc("/api/analyze/process", protect(analyzeHandler.Process))
}
