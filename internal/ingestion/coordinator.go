package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Fauzanmhr/skripsi/internal/models"
)

// Fetcher retrieves the full raw review set for a source locator.
type Fetcher interface {
	Fetch(ctx context.Context, locator string) ([]models.RawReview, error)
}

// ScrapeMetrics receives pipeline observations. Implemented by the metrics
// collector; a nil value disables instrumentation.
type ScrapeMetrics interface {
	ObserveScrape(category, result string)
	ObserveReconciliation(saved, updated, skipped, errors int)
}

// Outcome describes one finished scrape attempt. Status is never nil: when
// the status log itself is unreachable the coordinator synthesizes an
// in-memory record so callers still see a terminal result.
type Outcome struct {
	Success bool
	Counts  Counts
	Status  *models.ScrapeStatus
	Err     error
}

// Coordinator runs the scrape, reconcile and persist pipeline end to end,
// maintaining the single-flight invariant through the status log.
type Coordinator struct {
	fetcher     Fetcher
	reviews     ReviewRepository
	statuses    ScrapeStatusRepository
	settings    SettingsRepository
	broadcaster *StatusBroadcaster
	metrics     ScrapeMetrics
	logger      *slog.Logger
	now         func() time.Time
}

// NewCoordinator creates a scrape coordinator. Broadcaster and metrics may
// be nil.
func NewCoordinator(
	fetcher Fetcher,
	reviews ReviewRepository,
	statuses ScrapeStatusRepository,
	settings SettingsRepository,
	broadcaster *StatusBroadcaster,
	metrics ScrapeMetrics,
	logger *slog.Logger,
) *Coordinator {
	return &Coordinator{
		fetcher:     fetcher,
		reviews:     reviews,
		statuses:    statuses,
		settings:    settings,
		broadcaster: broadcaster,
		metrics:     metrics,
		logger:      logger,
		now:         time.Now,
	}
}

// RunScrape executes one attempt of the given category. At most one attempt
// runs at a time across all callers; a concurrent attempt yields a
// ConflictError carrying the conflicting record. A missing source locator
// yields a ConfigurationError without logging an attempt.
func (c *Coordinator) RunScrape(ctx context.Context, category models.ScrapeCategory) (*Outcome, error) {
	locator, err := c.settings.GetSourceURL(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading source URL: %w", err)
	}
	if locator == "" {
		return nil, &ConfigurationError{Reason: "no review source URL configured"}
	}

	// Fast-path check before touching the terminal history. The atomic
	// claim below still guards against races.
	if running, err := c.statuses.FindRunning(ctx); err != nil {
		return nil, fmt.Errorf("checking for running scrape: %w", err)
	} else if running != nil {
		c.observeScrape(category, "conflict")
		return nil, &ConflictError{Category: running.Category, Existing: running}
	}

	// Each attempt replaces the previous history of its category.
	if err := c.statuses.PurgeTerminal(ctx, category); err != nil {
		return nil, fmt.Errorf("purging terminal statuses: %w", err)
	}

	startedAt := c.now()
	status, conflict, err := c.statuses.StartAttempt(ctx, category, startedAt)
	if err != nil {
		return nil, fmt.Errorf("starting scrape attempt: %w", err)
	}
	if conflict != nil {
		c.observeScrape(category, "conflict")
		return nil, &ConflictError{Category: conflict.Category, Existing: conflict}
	}

	c.notify(*status)
	c.logger.Info("Scrape started", "category", string(category), "status_id", status.ID)

	counts, runErr := c.execute(ctx, locator)
	endedAt := c.now()

	if runErr != nil {
		message := fmt.Sprintf("Scrape failed: %v", runErr)
		final := c.finish(ctx, status, category, startedAt, endedAt, models.ScrapeStateFailed, message)
		c.observeScrape(category, "failure")
		c.logger.Error("Scrape failed", "category", string(category), "error", runErr)
		return &Outcome{Success: false, Counts: counts, Status: final, Err: runErr}, runErr
	}

	message := fmt.Sprintf("Scrape completed: %d new, %d updated, %d unchanged, %d errors",
		counts.Saved, counts.Updated, counts.Skipped, counts.Errors)
	final := c.finish(ctx, status, category, startedAt, endedAt, models.ScrapeStateCompleted, message)
	c.observeScrape(category, "success")
	if c.metrics != nil {
		c.metrics.ObserveReconciliation(counts.Saved, counts.Updated, counts.Skipped, counts.Errors)
	}
	c.logger.Info("Scrape completed",
		"category", string(category),
		"saved", counts.Saved,
		"updated", counts.Updated,
		"skipped", counts.Skipped,
		"errors", counts.Errors)
	return &Outcome{Success: true, Counts: counts, Status: final}, nil
}

// execute fetches the batch and applies the reconciled writes.
func (c *Coordinator) execute(ctx context.Context, locator string) (Counts, error) {
	var counts Counts

	batch, err := c.fetcher.Fetch(ctx, locator)
	if err != nil {
		return counts, &FetchError{Err: err}
	}

	ids := make([]string, 0, len(batch))
	for _, raw := range batch {
		ids = append(ids, raw.ID)
	}
	existing, err := c.reviews.GetTextsByIDs(ctx, ids)
	if err != nil {
		return counts, fmt.Errorf("loading stored texts: %w", err)
	}

	changes, skipped := Reconcile(batch, existing)
	counts.Skipped = skipped

	for _, change := range changes {
		if err := c.reviews.Upsert(ctx, change.Review); err != nil {
			counts.Errors++
			c.logger.Warn("Failed to persist review", "review_id", change.Review.ID, "error", err)
			continue
		}
		switch change.Kind {
		case ChangeNew:
			counts.Saved++
		case ChangeUpdated:
			counts.Updated++
		}
	}

	return counts, nil
}

// finish transitions the running record to a terminal state, degrading to a
// direct failure record and finally to an in-memory record when the status
// log is unreachable.
func (c *Coordinator) finish(ctx context.Context, status *models.ScrapeStatus, category models.ScrapeCategory, startedAt, endedAt time.Time, state models.ScrapeState, message string) *models.ScrapeStatus {
	if err := c.statuses.Finish(ctx, status.ID, state, endedAt, message); err == nil {
		final := *status
		final.State = state
		final.EndedAt = &endedAt
		final.Message = message
		c.notify(final)
		return &final
	} else {
		c.logger.Error("Failed to finalize scrape status", "status_id", status.ID, "error", err)
	}

	if state == models.ScrapeStateFailed {
		if recorded, err := c.statuses.RecordFailure(ctx, category, startedAt, endedAt, message); err == nil {
			c.notify(*recorded)
			return recorded
		} else {
			c.logger.Error("Failed to record scrape failure", "category", string(category), "error", err)
		}
	}

	fallback := &models.ScrapeStatus{
		ID:        status.ID,
		Category:  category,
		State:     state,
		StartedAt: startedAt,
		EndedAt:   &endedAt,
		Message:   message,
	}
	c.notify(*fallback)
	return fallback
}

func (c *Coordinator) notify(status models.ScrapeStatus) {
	if c.broadcaster != nil {
		c.broadcaster.Notify(status)
	}
}

func (c *Coordinator) observeScrape(category models.ScrapeCategory, result string) {
	if c.metrics != nil {
		c.metrics.ObserveScrape(string(category), result)
	}
}
