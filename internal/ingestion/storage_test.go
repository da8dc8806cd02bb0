package ingestion

import (
	"context"
	"testing"
	"time"

	"github.com/Fauzanmhr/skripsi/internal/models"
)

func TestMemoryReviewRepositoryListPendingOrderAndCeiling(t *testing.T) {
	repo := NewMemoryReviewRepository()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	positive := models.SentimentPositive
	seed := []models.Review{
		{ID: "old", Text: "a", PublishedAt: base},
		{ID: "new", Text: "b", PublishedAt: base.Add(48 * time.Hour)},
		{ID: "mid", Text: "c", PublishedAt: base.Add(24 * time.Hour)},
		{ID: "done", Text: "d", PublishedAt: base, Sentiment: &positive},
		{ID: "exhausted", Text: "e", PublishedAt: base, ProcessingAttempts: 5},
	}
	for _, review := range seed {
		if err := repo.Upsert(ctx, review); err != nil {
			t.Fatalf("seeding %s: %v", review.ID, err)
		}
	}

	pending, err := repo.ListPending(ctx, 5, 10)
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}

	ids := make([]string, len(pending))
	for i, review := range pending {
		ids[i] = review.ID
	}
	want := []string{"old", "mid", "new"}
	if len(ids) != len(want) {
		t.Fatalf("pending ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("pending ids = %v, want %v", ids, want)
		}
	}
}

func TestMemoryReviewRepositoryResetExhausted(t *testing.T) {
	repo := NewMemoryReviewRepository()
	ctx := context.Background()
	positive := models.SentimentPositive

	reviews := []models.Review{
		{ID: "stuck", Text: "a", ProcessingAttempts: 5},
		{ID: "classified", Text: "b", ProcessingAttempts: 5, Sentiment: &positive},
		{ID: "fresh", Text: "c", ProcessingAttempts: 1},
	}
	for _, review := range reviews {
		if err := repo.Upsert(ctx, review); err != nil {
			t.Fatalf("seeding %s: %v", review.ID, err)
		}
	}

	reset, err := repo.ResetExhausted(ctx, 5)
	if err != nil {
		t.Fatalf("ResetExhausted: %v", err)
	}
	if reset != 1 {
		t.Errorf("reset = %d, want 1", reset)
	}

	stuck, _ := repo.Get("stuck")
	if stuck.ProcessingAttempts != 0 {
		t.Errorf("stuck attempts = %d, want 0", stuck.ProcessingAttempts)
	}
	classified, _ := repo.Get("classified")
	if classified.ProcessingAttempts != 5 {
		t.Errorf("classified attempts changed to %d", classified.ProcessingAttempts)
	}
}

func TestMemoryScrapeStatusRepositorySingleRunning(t *testing.T) {
	repo := NewMemoryScrapeStatusRepository()
	ctx := context.Background()
	now := time.Now()

	first, conflict, err := repo.StartAttempt(ctx, models.ScrapeCategoryManual, now)
	if err != nil || conflict != nil {
		t.Fatalf("first StartAttempt: created=%v conflict=%v err=%v", first, conflict, err)
	}

	created, conflict, err := repo.StartAttempt(ctx, models.ScrapeCategoryScheduled, now)
	if err != nil {
		t.Fatalf("second StartAttempt: %v", err)
	}
	if created != nil {
		t.Error("second attempt created a record while one was running")
	}
	if conflict == nil || conflict.ID != first.ID {
		t.Fatalf("conflict = %+v, want the first running record", conflict)
	}

	if err := repo.Finish(ctx, first.ID, models.ScrapeStateCompleted, now.Add(time.Minute), "done"); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	created, conflict, err = repo.StartAttempt(ctx, models.ScrapeCategoryScheduled, now)
	if err != nil || conflict != nil || created == nil {
		t.Fatalf("attempt after Finish: created=%v conflict=%v err=%v", created, conflict, err)
	}
}

func TestMemoryScrapeStatusRepositoryFailAllRunning(t *testing.T) {
	repo := NewMemoryScrapeStatusRepository()
	ctx := context.Background()
	now := time.Now()

	if _, _, err := repo.StartAttempt(ctx, models.ScrapeCategoryScheduled, now); err != nil {
		t.Fatalf("StartAttempt: %v", err)
	}

	count, err := repo.FailAllRunning(ctx, "interrupted by server restart", now)
	if err != nil {
		t.Fatalf("FailAllRunning: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}

	running, err := repo.FindRunning(ctx)
	if err != nil {
		t.Fatalf("FindRunning: %v", err)
	}
	if running != nil {
		t.Errorf("still running after sweep: %+v", running)
	}

	latest, err := repo.Latest(ctx)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest.State != models.ScrapeStateFailed || latest.Message != "interrupted by server restart" {
		t.Errorf("swept record = %+v", latest)
	}
}

func TestMemorySettingsRepositoryUpdateSourceURL(t *testing.T) {
	repo := NewMemorySettingsRepository()
	ctx := context.Background()

	wiped := 0
	repo.OnWipe = func() { wiped++ }

	deleted, err := repo.UpdateSourceURL(ctx, "https://maps.example.com/place/a")
	if err != nil {
		t.Fatalf("first UpdateSourceURL: %v", err)
	}
	if deleted {
		t.Error("first configuration reported a wipe")
	}

	deleted, err = repo.UpdateSourceURL(ctx, "https://maps.example.com/place/a")
	if err != nil {
		t.Fatalf("same-URL UpdateSourceURL: %v", err)
	}
	if deleted {
		t.Error("unchanged URL reported a wipe")
	}

	deleted, err = repo.UpdateSourceURL(ctx, "https://maps.example.com/place/b")
	if err != nil {
		t.Fatalf("changed UpdateSourceURL: %v", err)
	}
	if !deleted {
		t.Error("changed URL did not report a wipe")
	}
	if wiped != 1 {
		t.Errorf("wipe hook ran %d times, want 1", wiped)
	}
}

func TestReviewFilterMatches(t *testing.T) {
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	positive := models.SentimentPositive

	classified := models.Review{ID: "a", PublishedAt: base, Sentiment: &positive}
	unclassified := models.Review{ID: "b", PublishedAt: base.Add(24 * time.Hour)}

	tests := []struct {
		name   string
		filter ReviewFilter
		review models.Review
		want   bool
	}{
		{"no filter", ReviewFilter{}, classified, true},
		{"label match", ReviewFilter{Sentiment: "positive"}, classified, true},
		{"label mismatch", ReviewFilter{Sentiment: "negative"}, classified, false},
		{"pending matches unclassified", ReviewFilter{Sentiment: "pending"}, unclassified, true},
		{"pending rejects classified", ReviewFilter{Sentiment: "pending"}, classified, false},
		{"before start date", ReviewFilter{StartDate: ptrTime(base.Add(time.Hour))}, classified, false},
		{"after end date", ReviewFilter{EndDate: ptrTime(base)}, unclassified, false},
		{"inside range", ReviewFilter{StartDate: ptrTime(base), EndDate: ptrTime(base.Add(48 * time.Hour))}, unclassified, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(tt.review); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func ptrTime(t time.Time) *time.Time {
	return &t
}
