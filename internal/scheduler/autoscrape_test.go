package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/Fauzanmhr/skripsi/internal/ingestion"
	"github.com/Fauzanmhr/skripsi/internal/models"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

type fakeRunner struct {
	outcome *ingestion.Outcome
	err     error
	calls   int
}

func (r *fakeRunner) RunScrape(ctx context.Context, category models.ScrapeCategory) (*ingestion.Outcome, error) {
	r.calls++
	return r.outcome, r.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newScheduler(t *testing.T, runner ScrapeRunner, clock Clock) (*AutoScrape, *ingestion.MemorySettingsRepository, *ingestion.MemoryScrapeStatusRepository) {
	t.Helper()
	settings := ingestion.NewMemorySettingsRepository()
	statuses := ingestion.NewMemoryScrapeStatusRepository()
	s := NewAutoScrape(runner, settings, statuses, testLogger(), clock)
	return s, settings, statuses
}

func TestInitializeSweepsInterruptedScrapes(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 5, 10, 14, 30, 0, 0, time.UTC)}
	s, _, statuses := newScheduler(t, &fakeRunner{}, clock)
	ctx := context.Background()

	if _, _, err := statuses.StartAttempt(ctx, models.ScrapeCategoryManual, clock.now.Add(-time.Hour)); err != nil {
		t.Fatalf("seeding running attempt: %v", err)
	}

	if err := s.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer s.Stop()

	running, err := statuses.FindRunning(ctx)
	if err != nil {
		t.Fatalf("FindRunning: %v", err)
	}
	if running != nil {
		t.Errorf("interrupted scrape still running: %+v", running)
	}

	latest, _ := statuses.Latest(ctx)
	if latest.State != models.ScrapeStateFailed {
		t.Errorf("swept record state = %q, want failed", latest.State)
	}
}

func TestInitializeCorrectsStaleNextRun(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 5, 10, 14, 30, 0, 0, time.UTC)}
	s, settings, _ := newScheduler(t, &fakeRunner{}, clock)
	ctx := context.Background()

	stale := time.Date(2026, 5, 8, 0, 0, 0, 0, time.UTC)
	if err := settings.SaveAutoScrape(ctx, models.AutoScrapeSettings{Enabled: true, NextRunAt: &stale}); err != nil {
		t.Fatalf("seeding settings: %v", err)
	}

	if err := s.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer s.Stop()

	current := s.Settings()
	if !current.Enabled {
		t.Fatal("scheduler lost enabled flag")
	}
	want := time.Date(2026, 5, 11, 0, 0, 0, 0, time.UTC)
	if current.NextRunAt == nil || !current.NextRunAt.Equal(want) {
		t.Errorf("next run = %v, want %v", current.NextRunAt, want)
	}

	persisted, _ := settings.GetAutoScrape(ctx)
	if persisted.NextRunAt == nil || !persisted.NextRunAt.Equal(want) {
		t.Errorf("persisted next run = %v, want %v", persisted.NextRunAt, want)
	}
}

func TestInitializeDisabledClearsNextRun(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 5, 10, 14, 30, 0, 0, time.UTC)}
	s, settings, _ := newScheduler(t, &fakeRunner{}, clock)
	ctx := context.Background()

	leftover := time.Date(2026, 5, 11, 0, 0, 0, 0, time.UTC)
	if err := settings.SaveAutoScrape(ctx, models.AutoScrapeSettings{Enabled: false, NextRunAt: &leftover}); err != nil {
		t.Fatalf("seeding settings: %v", err)
	}

	if err := s.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer s.Stop()

	if current := s.Settings(); current.Enabled || current.NextRunAt != nil {
		t.Errorf("settings = %+v, want disabled with no next run", current)
	}
}

func TestSetEnabledComputesAndClearsNextRun(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 5, 10, 23, 59, 0, 0, time.UTC)}
	s, settings, _ := newScheduler(t, &fakeRunner{}, clock)
	ctx := context.Background()

	if err := s.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer s.Stop()

	enabled, err := s.SetEnabled(ctx, true)
	if err != nil {
		t.Fatalf("SetEnabled(true): %v", err)
	}
	want := time.Date(2026, 5, 11, 0, 0, 0, 0, time.UTC)
	if enabled.NextRunAt == nil || !enabled.NextRunAt.Equal(want) {
		t.Errorf("next run = %v, want %v", enabled.NextRunAt, want)
	}

	// Enabling again keeps the still-future time.
	again, err := s.SetEnabled(ctx, true)
	if err != nil {
		t.Fatalf("SetEnabled(true) again: %v", err)
	}
	if again.NextRunAt == nil || !again.NextRunAt.Equal(want) {
		t.Errorf("repeated enable moved next run to %v", again.NextRunAt)
	}

	disabled, err := s.SetEnabled(ctx, false)
	if err != nil {
		t.Fatalf("SetEnabled(false): %v", err)
	}
	if disabled.Enabled || disabled.NextRunAt != nil {
		t.Errorf("settings after disable = %+v", disabled)
	}

	persisted, _ := settings.GetAutoScrape(ctx)
	if persisted.Enabled || persisted.NextRunAt != nil {
		t.Errorf("persisted settings after disable = %+v", persisted)
	}
}

func TestRunOnceAdvancesNextRunOnSuccess(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)}
	runner := &fakeRunner{outcome: &ingestion.Outcome{Success: true}}
	s, settings, _ := newScheduler(t, runner, clock)
	ctx := context.Background()

	if err := s.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer s.Stop()
	if _, err := s.SetEnabled(ctx, true); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}

	// The tick fires at midnight; the next run must move to the following
	// midnight.
	clock.now = time.Date(2026, 5, 11, 0, 0, 0, 0, time.UTC)
	s.runOnce(ctx)

	if runner.calls != 1 {
		t.Fatalf("runner called %d times, want 1", runner.calls)
	}
	want := time.Date(2026, 5, 12, 0, 0, 0, 0, time.UTC)
	persisted, _ := settings.GetAutoScrape(ctx)
	if persisted.NextRunAt == nil || !persisted.NextRunAt.Equal(want) {
		t.Errorf("persisted next run = %v, want %v", persisted.NextRunAt, want)
	}
}

func TestRunOnceKeepsNextRunOnFailure(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)}
	failure := errors.New("fetch blew up")
	runner := &fakeRunner{
		outcome: &ingestion.Outcome{Success: false, Status: &models.ScrapeStatus{State: models.ScrapeStateFailed}},
		err:     failure,
	}
	s, settings, _ := newScheduler(t, runner, clock)
	ctx := context.Background()

	if err := s.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer s.Stop()
	if _, err := s.SetEnabled(ctx, true); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}
	before, _ := settings.GetAutoScrape(ctx)

	clock.now = time.Date(2026, 5, 11, 0, 0, 0, 0, time.UTC)
	s.runOnce(ctx)

	after, _ := settings.GetAutoScrape(ctx)
	if !after.NextRunAt.Equal(*before.NextRunAt) {
		t.Errorf("failed run moved next run from %v to %v", before.NextRunAt, after.NextRunAt)
	}
}

func TestRunOnceSkipsOnConflict(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 5, 11, 0, 0, 0, 0, time.UTC)}
	runner := &fakeRunner{err: &ingestion.ConflictError{Category: models.ScrapeCategoryManual}}
	s, _, statuses := newScheduler(t, runner, clock)
	ctx := context.Background()

	if err := s.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer s.Stop()
	if _, err := s.SetEnabled(ctx, true); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}

	s.runOnce(ctx)

	// A skipped tick is silent: no status record, no rescheduling churn.
	if got := len(statuses.All()); got != 0 {
		t.Errorf("conflict tick wrote %d status records, want 0", got)
	}
}

func TestRunOnceRecordsStartupFailure(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 5, 11, 0, 0, 0, 0, time.UTC)}
	runner := &fakeRunner{err: &ingestion.ConfigurationError{Reason: "no review source URL configured"}}
	s, _, statuses := newScheduler(t, runner, clock)
	ctx := context.Background()

	if err := s.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer s.Stop()
	if _, err := s.SetEnabled(ctx, true); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}

	s.runOnce(ctx)

	records := statuses.All()
	if len(records) != 1 {
		t.Fatalf("got %d status records, want 1", len(records))
	}
	if records[0].State != models.ScrapeStateFailed || records[0].Category != models.ScrapeCategoryScheduled {
		t.Errorf("record = %+v", records[0])
	}
}

func TestRunOnceIgnoredWhenDisabled(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 5, 11, 0, 0, 0, 0, time.UTC)}
	runner := &fakeRunner{outcome: &ingestion.Outcome{Success: true}}
	s, _, _ := newScheduler(t, runner, clock)
	ctx := context.Background()

	if err := s.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer s.Stop()

	s.runOnce(ctx)

	if runner.calls != 0 {
		t.Errorf("runner called %d times while disabled, want 0", runner.calls)
	}
}
