package ingestion

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/Fauzanmhr/skripsi/internal/models"
)

type stubFetcher struct {
	batch []models.RawReview
	err   error
	calls int
}

func (f *stubFetcher) Fetch(ctx context.Context, locator string) ([]models.RawReview, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.batch, nil
}

type recordingListener struct {
	statuses []models.ScrapeStatus
}

func (l *recordingListener) OnStatusChanged(status models.ScrapeStatus) {
	l.statuses = append(l.statuses, status)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type coordinatorFixture struct {
	fetcher     *stubFetcher
	reviews     *MemoryReviewRepository
	statuses    *MemoryScrapeStatusRepository
	settings    *MemorySettingsRepository
	broadcaster *StatusBroadcaster
	listener    *recordingListener
	coordinator *Coordinator
}

func newCoordinatorFixture(fetcher *stubFetcher) *coordinatorFixture {
	f := &coordinatorFixture{
		fetcher:     fetcher,
		reviews:     NewMemoryReviewRepository(),
		statuses:    NewMemoryScrapeStatusRepository(),
		settings:    NewMemorySettingsRepository(),
		broadcaster: NewStatusBroadcaster(),
		listener:    &recordingListener{},
	}
	f.settings.SetSourceURL("https://maps.example.com/place/cafe")
	f.broadcaster.Subscribe(f.listener)
	f.coordinator = NewCoordinator(f.fetcher, f.reviews, f.statuses, f.settings, f.broadcaster, nil, discardLogger())
	return f
}

func TestRunScrapeSuccess(t *testing.T) {
	published := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	fetcher := &stubFetcher{batch: []models.RawReview{
		rawReview("r1", "new review", published),
		rawReview("r2", "unchanged review", published),
		rawReview("r3", "freshly edited", published),
	}}
	f := newCoordinatorFixture(fetcher)

	seed := func(id, text string) {
		if err := f.reviews.Upsert(context.Background(), models.Review{ID: id, Text: text, PublishedAt: published}); err != nil {
			t.Fatalf("seeding review %s: %v", id, err)
		}
	}
	seed("r2", "unchanged review")
	seed("r3", "stale text")

	outcome, err := f.coordinator.RunScrape(context.Background(), models.ScrapeCategoryManual)
	if err != nil {
		t.Fatalf("RunScrape returned error: %v", err)
	}
	if !outcome.Success {
		t.Fatalf("outcome not successful: %+v", outcome)
	}

	want := Counts{Saved: 1, Updated: 1, Skipped: 1}
	if outcome.Counts != want {
		t.Errorf("counts = %+v, want %+v", outcome.Counts, want)
	}

	status := outcome.Status
	if status == nil {
		t.Fatal("outcome status is nil")
	}
	if status.State != models.ScrapeStateCompleted {
		t.Errorf("state = %q, want completed", status.State)
	}
	if status.EndedAt == nil {
		t.Error("terminal status has no end time")
	}
	if !strings.Contains(status.Message, "1 new, 1 updated, 1 unchanged, 0 errors") {
		t.Errorf("unexpected summary message %q", status.Message)
	}

	// Running then completed.
	if len(f.listener.statuses) != 2 {
		t.Fatalf("broadcast %d transitions, want 2", len(f.listener.statuses))
	}
	if f.listener.statuses[0].State != models.ScrapeStateRunning {
		t.Errorf("first transition %q, want running", f.listener.statuses[0].State)
	}
	if f.listener.statuses[1].State != models.ScrapeStateCompleted {
		t.Errorf("second transition %q, want completed", f.listener.statuses[1].State)
	}
}

func TestRunScrapeConflictLeavesNoRecord(t *testing.T) {
	f := newCoordinatorFixture(&stubFetcher{})

	running, _, err := f.statuses.StartAttempt(context.Background(), models.ScrapeCategoryScheduled, time.Now())
	if err != nil {
		t.Fatalf("seeding running attempt: %v", err)
	}

	before := len(f.statuses.All())
	_, err = f.coordinator.RunScrape(context.Background(), models.ScrapeCategoryManual)

	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("error = %v, want ConflictError", err)
	}
	if conflict.Category != models.ScrapeCategoryScheduled {
		t.Errorf("conflict category = %q, want scheduled", conflict.Category)
	}
	if conflict.Existing == nil || conflict.Existing.ID != running.ID {
		t.Errorf("conflict does not carry the running record: %+v", conflict.Existing)
	}
	if f.fetcher.calls != 0 {
		t.Errorf("fetcher called %d times during conflict, want 0", f.fetcher.calls)
	}
	if got := len(f.statuses.All()); got != before {
		t.Errorf("status log grew from %d to %d on rejected attempt", before, got)
	}
}

func TestRunScrapeMissingSourceURL(t *testing.T) {
	f := newCoordinatorFixture(&stubFetcher{})
	f.settings.SetSourceURL("")

	_, err := f.coordinator.RunScrape(context.Background(), models.ScrapeCategoryManual)

	var configErr *ConfigurationError
	if !errors.As(err, &configErr) {
		t.Fatalf("error = %v, want ConfigurationError", err)
	}
	if len(f.statuses.All()) != 0 {
		t.Error("configuration error must not log a scrape attempt")
	}
}

func TestRunScrapeFetchFailureRecordsFailed(t *testing.T) {
	f := newCoordinatorFixture(&stubFetcher{err: errors.New("upstream timeout")})

	outcome, err := f.coordinator.RunScrape(context.Background(), models.ScrapeCategoryScheduled)

	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("error = %v, want FetchError", err)
	}
	if outcome == nil || outcome.Success {
		t.Fatalf("outcome = %+v, want unsuccessful", outcome)
	}
	status := outcome.Status
	if status.State != models.ScrapeStateFailed {
		t.Errorf("state = %q, want failed", status.State)
	}
	if status.EndedAt == nil {
		t.Error("failed status has no end time")
	}
	if !strings.Contains(status.Message, "upstream timeout") {
		t.Errorf("failure message %q does not name the cause", status.Message)
	}
}

func TestRunScrapePerReviewErrorsCountedNotFatal(t *testing.T) {
	published := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	fetcher := &stubFetcher{batch: []models.RawReview{
		rawReview("ok", "fine", published),
		rawReview("broken", "will not persist", published),
	}}
	f := newCoordinatorFixture(fetcher)
	f.reviews.UpsertErr = map[string]error{"broken": errors.New("constraint violation")}

	outcome, err := f.coordinator.RunScrape(context.Background(), models.ScrapeCategoryManual)
	if err != nil {
		t.Fatalf("RunScrape returned error: %v", err)
	}
	if !outcome.Success {
		t.Fatal("a per-review persistence failure must not fail the attempt")
	}
	want := Counts{Saved: 1, Errors: 1}
	if outcome.Counts != want {
		t.Errorf("counts = %+v, want %+v", outcome.Counts, want)
	}
	if outcome.Status.State != models.ScrapeStateCompleted {
		t.Errorf("state = %q, want completed", outcome.Status.State)
	}
}

func TestRunScrapePurgesPreviousHistoryOfCategory(t *testing.T) {
	published := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	f := newCoordinatorFixture(&stubFetcher{batch: []models.RawReview{rawReview("r1", "text", published)}})

	for i := 0; i < 2; i++ {
		if _, err := f.coordinator.RunScrape(context.Background(), models.ScrapeCategoryManual); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}

	var manual int
	for _, record := range f.statuses.All() {
		if record.Category == models.ScrapeCategoryManual {
			manual++
		}
	}
	if manual != 1 {
		t.Errorf("found %d manual records, want 1 after purge", manual)
	}
}

func TestRunScrapeDegradedStatusStillTerminal(t *testing.T) {
	f := newCoordinatorFixture(&stubFetcher{err: errors.New("source down")})
	f.statuses.FinishErr = errors.New("status table unavailable")
	f.statuses.RecordFailureErr = errors.New("status table unavailable")

	outcome, _ := f.coordinator.RunScrape(context.Background(), models.ScrapeCategoryManual)
	if outcome == nil || outcome.Status == nil {
		t.Fatal("outcome must carry a status even when the log is unreachable")
	}
	if !outcome.Status.Terminal() {
		t.Errorf("fallback status state = %q, want terminal", outcome.Status.State)
	}
}
