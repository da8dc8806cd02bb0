package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Fauzanmhr/skripsi/internal/ingestion"
	"github.com/Fauzanmhr/skripsi/internal/models"
	"github.com/Fauzanmhr/skripsi/internal/scraper"
)

// ReviewStore is the slice of review storage the API needs.
type ReviewStore interface {
	List(ctx context.Context, filter ingestion.ReviewFilter) ([]models.Review, int, error)
	CountBySentiment(ctx context.Context) (map[models.Sentiment]int, error)
	ListRecentNegative(ctx context.Context, limit int) ([]models.Review, error)
	ResetExhausted(ctx context.Context, maxAttempts int) (int64, error)
}

// StatusLog is the slice of the scrape attempt log the API needs.
type StatusLog interface {
	FindRunning(ctx context.Context) (*models.ScrapeStatus, error)
	Latest(ctx context.Context) (*models.ScrapeStatus, error)
	LatestTerminalByCategory(ctx context.Context, category models.ScrapeCategory) (*models.ScrapeStatus, error)
}

// Scheduler is the auto-scrape scheduler surface exposed over the API.
type Scheduler interface {
	Settings() models.AutoScrapeSettings
	SetEnabled(ctx context.Context, enabled bool) (models.AutoScrapeSettings, error)
}

// SourceSettings manages the configured review source URL.
type SourceSettings interface {
	GetSourceURL(ctx context.Context) (string, error)
	UpdateSourceURL(ctx context.Context, url string) (bool, error)
}

// Handler serves the dashboard API.
type Handler struct {
	coordinator *ingestion.Coordinator
	reviews     ReviewStore
	statuses    StatusLog
	scheduler   Scheduler
	source      SourceSettings
	maxAttempts int
	logger      *slog.Logger
}

// NewHandler creates the dashboard API handler.
func NewHandler(
	coordinator *ingestion.Coordinator,
	reviews ReviewStore,
	statuses StatusLog,
	scheduler Scheduler,
	source SourceSettings,
	maxAttempts int,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		coordinator: coordinator,
		reviews:     reviews,
		statuses:    statuses,
		scheduler:   scheduler,
		source:      source,
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// ScrapeResponse is the body of a finished manual scrape.
type ScrapeResponse struct {
	Success bool                 `json:"success"`
	Counts  ingestion.Counts     `json:"counts"`
	Status  *models.ScrapeStatus `json:"status"`
}

// AutoScrapeSettingsResponse augments the stored settings with the outcome
// of the most recent finished scheduled scrape.
type AutoScrapeSettingsResponse struct {
	Enabled              bool                 `json:"enabled"`
	NextRunAt            *time.Time           `json:"next_run_at,omitempty"`
	LastScheduledOutcome *models.ScrapeStatus `json:"last_scheduled_outcome,omitempty"`
}

// TriggerScrapeHandler handles POST /api/scrape. The scrape runs within the
// request; a scrape already in progress yields 409 with the running record.
func (h *Handler) TriggerScrapeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	outcome, err := h.coordinator.RunScrape(r.Context(), models.ScrapeCategoryManual)
	if err != nil {
		var conflict *ingestion.ConflictError
		var configErr *ingestion.ConfigurationError
		switch {
		case errors.As(err, &conflict):
			writeJSON(w, http.StatusConflict, map[string]interface{}{
				"error":  "another scrape is already running",
				"status": conflict.Existing,
			})
		case errors.As(err, &configErr):
			writeError(w, http.StatusBadRequest, configErr.Reason)
		default:
			h.logger.Error("Manual scrape failed", "error", err)
			response := map[string]interface{}{"error": "scrape failed"}
			if outcome != nil {
				response["status"] = outcome.Status
			}
			writeJSON(w, http.StatusBadGateway, response)
		}
		return
	}

	writeJSON(w, http.StatusOK, ScrapeResponse{
		Success: outcome.Success,
		Counts:  outcome.Counts,
		Status:  outcome.Status,
	})
}

// ScrapeStatusHandler handles GET /api/scrape/status: the running attempt
// when one exists, otherwise the most recent record.
func (h *Handler) ScrapeStatusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status, err := h.statuses.FindRunning(r.Context())
	if err != nil {
		h.logger.Error("Failed to query running scrape", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if status == nil {
		status, err = h.statuses.Latest(r.Context())
		if err != nil {
			h.logger.Error("Failed to query latest scrape", "error", err)
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"status": status})
}

// AutoScrapeSettingsHandler handles GET and POST /api/settings/auto-scrape.
func (h *Handler) AutoScrapeSettingsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		settings := h.scheduler.Settings()
		lastOutcome, err := h.statuses.LatestTerminalByCategory(r.Context(), models.ScrapeCategoryScheduled)
		if err != nil {
			h.logger.Error("Failed to load last scheduled outcome", "error", err)
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		writeJSON(w, http.StatusOK, AutoScrapeSettingsResponse{
			Enabled:              settings.Enabled,
			NextRunAt:            settings.NextRunAt,
			LastScheduledOutcome: lastOutcome,
		})
	case http.MethodPost:
		var req struct {
			Enabled bool `json:"enabled"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		settings, err := h.scheduler.SetEnabled(r.Context(), req.Enabled)
		if err != nil {
			h.logger.Error("Failed to update auto-scrape settings", "error", err)
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		writeJSON(w, http.StatusOK, settings)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// SourceURLHandler handles GET and PUT /api/settings/source-url. Changing
// the URL deletes the collected reviews and scrape history; the response
// reports whether that happened.
func (h *Handler) SourceURLHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		url, err := h.source.GetSourceURL(r.Context())
		if err != nil {
			h.logger.Error("Failed to load source URL", "error", err)
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"url":        url,
			"place_name": scraper.ExtractPlaceName(url),
		})
	case http.MethodPut, http.MethodPost:
		var req struct {
			URL string `json:"url"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.URL == "" {
			writeError(w, http.StatusBadRequest, "url is required")
			return
		}

		dataDeleted, err := h.source.UpdateSourceURL(r.Context(), req.URL)
		if err != nil {
			h.logger.Error("Failed to update source URL", "error", err)
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		if dataDeleted {
			h.logger.Warn("Source URL changed, collected data wiped")
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"url":         req.URL,
			"place_name":  scraper.ExtractPlaceName(req.URL),
			"dataDeleted": dataDeleted,
		})
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// ReviewsResponse is the paginated review listing.
type ReviewsResponse struct {
	Reviews []models.Review `json:"reviews"`
	Total   int             `json:"total"`
	Page    int             `json:"page"`
	Limit   int             `json:"limit"`
}

// ReviewsHandler handles GET /api/reviews with sentiment, date range and
// pagination filters.
func (h *Handler) ReviewsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	query := r.URL.Query()
	filter := ingestion.ReviewFilter{Sentiment: query.Get("sentiment")}

	if filter.Sentiment != "" && filter.Sentiment != "pending" {
		if !models.Sentiment(filter.Sentiment).Valid() {
			writeError(w, http.StatusBadRequest, "unknown sentiment filter")
			return
		}
	}

	if raw := query.Get("start_date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid start_date, expected YYYY-MM-DD")
			return
		}
		filter.StartDate = &parsed
	}
	if raw := query.Get("end_date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid end_date, expected YYYY-MM-DD")
			return
		}
		// Inclusive through the end of the day.
		end := parsed.Add(24*time.Hour - time.Nanosecond)
		filter.EndDate = &end
	}

	page := 1
	if raw := query.Get("page"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			page = parsed
		}
	}
	limit := 20
	if raw := query.Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}
	filter.Limit = limit
	filter.Offset = (page - 1) * limit

	reviews, total, err := h.reviews.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list reviews", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if reviews == nil {
		reviews = []models.Review{}
	}

	writeJSON(w, http.StatusOK, ReviewsResponse{
		Reviews: reviews,
		Total:   total,
		Page:    page,
		Limit:   limit,
	})
}

// StatsResponse is the dashboard summary payload.
type StatsResponse struct {
	PlaceName       string                    `json:"place_name"`
	SentimentCounts map[models.Sentiment]int  `json:"sentiment_counts"`
	RecentNegative  []models.Review           `json:"recent_negative"`
	AutoScrape      models.AutoScrapeSettings `json:"auto_scrape"`
}

// StatsHandler handles GET /api/dashboard/stats: label counts over all
// classified reviews plus the latest negative or disappointed reviews.
func (h *Handler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	counts, err := h.reviews.CountBySentiment(r.Context())
	if err != nil {
		h.logger.Error("Failed to count sentiments", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	// Every label is present in the response, zero or not.
	for _, label := range models.Sentiments() {
		if _, ok := counts[label]; !ok {
			counts[label] = 0
		}
	}

	negative, err := h.reviews.ListRecentNegative(r.Context(), 5)
	if err != nil {
		h.logger.Error("Failed to list negative reviews", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if negative == nil {
		negative = []models.Review{}
	}

	url, err := h.source.GetSourceURL(r.Context())
	if err != nil {
		h.logger.Error("Failed to load source URL", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, StatsResponse{
		PlaceName:       scraper.ExtractPlaceName(url),
		SentimentCounts: counts,
		RecentNegative:  negative,
		AutoScrape:      h.scheduler.Settings(),
	})
}

// ResetAttemptsHandler handles POST /api/reviews/reset-attempts: returns
// reviews that exhausted their classification attempts to the backfill
// queue.
func (h *Handler) ResetAttemptsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	reset, err := h.reviews.ResetExhausted(r.Context(), h.maxAttempts)
	if err != nil {
		h.logger.Error("Failed to reset exhausted reviews", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("Reset exhausted reviews", "count", reset)
	writeJSON(w, http.StatusOK, map[string]int64{"reset": reset})
}
