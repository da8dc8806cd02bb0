package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Fauzanmhr/skripsi/internal/ingestion"
	"github.com/Fauzanmhr/skripsi/internal/models"
)

// midnightExpr fires the scheduled scrape at local midnight.
const midnightExpr = "0 0 * * *"

// Clock abstracts time for deterministic scheduler tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// ScrapeRunner runs one scrape attempt. Implemented by the ingestion
// coordinator.
type ScrapeRunner interface {
	RunScrape(ctx context.Context, category models.ScrapeCategory) (*ingestion.Outcome, error)
}

// SettingsStore persists the auto-scrape settings singleton.
type SettingsStore interface {
	GetAutoScrape(ctx context.Context) (models.AutoScrapeSettings, error)
	SaveAutoScrape(ctx context.Context, settings models.AutoScrapeSettings) error
}

// StatusStore is the slice of the scrape status log the scheduler needs:
// the startup recovery sweep and recording attempts that fail before the
// pipeline can log them itself.
type StatusStore interface {
	FailAllRunning(ctx context.Context, message string, endedAt time.Time) (int64, error)
	RecordFailure(ctx context.Context, category models.ScrapeCategory, startedAt, endedAt time.Time, message string) (*models.ScrapeStatus, error)
}

// AutoScrape triggers a scheduled scrape every midnight while enabled. The
// persisted NextRunAt mirrors the cron schedule so the dashboard can show
// when the next run happens; it advances only after a successful run.
type AutoScrape struct {
	runner   ScrapeRunner
	settings SettingsStore
	statuses StatusStore
	logger   *slog.Logger
	clock    Clock
	cron     *cron.Cron

	mu        sync.Mutex
	enabled   bool
	nextRunAt *time.Time
	entryID   cron.EntryID
}

// NewAutoScrape creates the scheduler. A nil clock uses the system clock.
func NewAutoScrape(runner ScrapeRunner, settings SettingsStore, statuses StatusStore, logger *slog.Logger, clock Clock) *AutoScrape {
	if clock == nil {
		clock = systemClock{}
	}
	return &AutoScrape{
		runner:   runner,
		settings: settings,
		statuses: statuses,
		logger:   logger,
		clock:    clock,
		cron:     cron.New(),
	}
}

// Initialize recovers interrupted state and arms the schedule. Running
// scrape records left over from an unclean shutdown are swept to failed,
// and a persisted next-run time that already passed while the process was
// down is moved to the coming midnight.
func (s *AutoScrape) Initialize(ctx context.Context) error {
	swept, err := s.statuses.FailAllRunning(ctx, "Scrape interrupted by server restart", s.clock.Now())
	if err != nil {
		return fmt.Errorf("sweeping interrupted scrapes: %w", err)
	}
	if swept > 0 {
		s.logger.Warn("Marked interrupted scrapes as failed", "count", swept)
	}

	stored, err := s.settings.GetAutoScrape(ctx)
	if err != nil {
		return fmt.Errorf("loading auto-scrape settings: %w", err)
	}

	s.mu.Lock()
	s.enabled = stored.Enabled
	s.nextRunAt = stored.NextRunAt
	if s.enabled {
		if s.nextRunAt == nil || s.nextRunAt.Before(s.clock.Now()) {
			next := s.nextMidnight()
			s.nextRunAt = &next
		}
		s.arm()
	} else {
		s.nextRunAt = nil
	}
	settings := s.snapshot()
	s.mu.Unlock()

	if err := s.settings.SaveAutoScrape(ctx, settings); err != nil {
		return fmt.Errorf("saving auto-scrape settings: %w", err)
	}

	s.cron.Start()
	s.logger.Info("Auto-scrape scheduler initialized", "enabled", settings.Enabled)
	return nil
}

// Stop halts the underlying cron runner.
func (s *AutoScrape) Stop() {
	s.cron.Stop()
}

// Settings returns the current scheduler settings.
func (s *AutoScrape) Settings() models.AutoScrapeSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

// SetEnabled turns the schedule on or off and persists the result.
// Enabling keeps a still-future next-run time; disabling clears it.
// Idempotent in both directions.
func (s *AutoScrape) SetEnabled(ctx context.Context, enabled bool) (models.AutoScrapeSettings, error) {
	s.mu.Lock()
	s.enabled = enabled
	if enabled {
		if s.nextRunAt == nil || s.nextRunAt.Before(s.clock.Now()) {
			next := s.nextMidnight()
			s.nextRunAt = &next
		}
		s.arm()
	} else {
		s.disarm()
		s.nextRunAt = nil
	}
	settings := s.snapshot()
	s.mu.Unlock()

	if err := s.settings.SaveAutoScrape(ctx, settings); err != nil {
		return models.AutoScrapeSettings{}, fmt.Errorf("saving auto-scrape settings: %w", err)
	}
	s.logger.Info("Auto-scrape settings updated", "enabled", settings.Enabled)
	return settings, nil
}

// arm registers the midnight cron entry. Caller holds the mutex.
func (s *AutoScrape) arm() {
	if s.entryID != 0 {
		return
	}
	id, err := s.cron.AddFunc(midnightExpr, func() {
		s.runOnce(context.Background())
	})
	if err != nil {
		// The expression is a constant; a parse failure is a
		// programming error caught at startup in tests.
		panic(fmt.Sprintf("invalid cron expression %q: %v", midnightExpr, err))
	}
	s.entryID = id
}

// disarm removes the cron entry. Caller holds the mutex.
func (s *AutoScrape) disarm() {
	if s.entryID != 0 {
		s.cron.Remove(s.entryID)
		s.entryID = 0
	}
}

// runOnce executes one scheduled attempt. A concurrent scrape is expected
// contention and skips the tick quietly; the missed run is not made up, the
// next midnight fires again. The next-run time only advances after success
// so a failed night stays visible on the dashboard.
func (s *AutoScrape) runOnce(ctx context.Context) {
	s.mu.Lock()
	enabled := s.enabled
	s.mu.Unlock()
	if !enabled {
		return
	}

	startedAt := s.clock.Now()
	outcome, err := s.runner.RunScrape(ctx, models.ScrapeCategoryScheduled)
	if err != nil {
		var conflict *ingestion.ConflictError
		if errors.As(err, &conflict) {
			s.logger.Debug("Skipping scheduled scrape, another scrape is running", "category", string(conflict.Category))
			return
		}

		// The pipeline logs its own status once an attempt starts; an
		// error without an outcome means it never got that far.
		if outcome == nil {
			message := fmt.Sprintf("Failed to start scheduled scrape: %v", err)
			if _, recordErr := s.statuses.RecordFailure(ctx, models.ScrapeCategoryScheduled, startedAt, s.clock.Now(), message); recordErr != nil {
				s.logger.Error("Failed to record scheduled scrape failure", "error", recordErr)
			}
		}
		s.logger.Error("Scheduled scrape failed", "error", err)
		return
	}

	if !outcome.Success {
		return
	}

	s.mu.Lock()
	next := s.nextMidnight()
	s.nextRunAt = &next
	settings := s.snapshot()
	s.mu.Unlock()

	if err := s.settings.SaveAutoScrape(ctx, settings); err != nil {
		s.logger.Error("Failed to persist next scrape time", "error", err)
	}
}

// nextMidnight returns the first midnight strictly after now. Caller holds
// the mutex or does not need a consistent snapshot.
func (s *AutoScrape) nextMidnight() time.Time {
	now := s.clock.Now()
	year, month, day := now.Date()
	return time.Date(year, month, day+1, 0, 0, 0, 0, now.Location())
}

// snapshot copies the current settings. Caller holds the mutex.
func (s *AutoScrape) snapshot() models.AutoScrapeSettings {
	settings := models.AutoScrapeSettings{Enabled: s.enabled}
	if s.nextRunAt != nil {
		next := *s.nextRunAt
		settings.NextRunAt = &next
	}
	return settings
}
