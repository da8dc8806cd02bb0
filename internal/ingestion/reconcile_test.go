package ingestion

import (
	"testing"
	"time"

	"github.com/Fauzanmhr/skripsi/internal/models"
)

func rawReview(id, text string, publishedAt time.Time) models.RawReview {
	return models.RawReview{
		ID:          id,
		Author:      "Reviewer " + id,
		Rating:      4,
		Text:        text,
		PublishedAt: publishedAt,
		Language:    "en",
		Source:      "google_maps",
	}
}

func TestReconcileNewReview(t *testing.T) {
	published := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	batch := []models.RawReview{rawReview("r1", "great coffee", published)}

	changes, skipped := Reconcile(batch, map[string]string{})

	if skipped != 0 {
		t.Fatalf("skipped = %d, want 0", skipped)
	}
	if len(changes) != 1 {
		t.Fatalf("len(changes) = %d, want 1", len(changes))
	}
	if changes[0].Kind != ChangeNew {
		t.Errorf("kind = %q, want %q", changes[0].Kind, ChangeNew)
	}
	review := changes[0].Review
	if review.ID != "r1" || review.Text != "great coffee" {
		t.Errorf("unexpected review %+v", review)
	}
	if review.Sentiment != nil || review.ProcessedAt != nil || review.ProcessingAttempts != 0 {
		t.Errorf("new review must start unclassified, got %+v", review)
	}
}

func TestReconcileUnchangedReview(t *testing.T) {
	published := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	batch := []models.RawReview{rawReview("r1", "great coffee", published)}
	existing := map[string]string{"r1": "great coffee"}

	changes, skipped := Reconcile(batch, existing)

	if len(changes) != 0 {
		t.Fatalf("len(changes) = %d, want 0", len(changes))
	}
	if skipped != 1 {
		t.Errorf("skipped = %d, want 1", skipped)
	}
}

func TestReconcileEditedReviewResetsClassification(t *testing.T) {
	published := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	batch := []models.RawReview{rawReview("r1", "edited text", published)}
	existing := map[string]string{"r1": "original text"}

	changes, skipped := Reconcile(batch, existing)

	if skipped != 0 {
		t.Fatalf("skipped = %d, want 0", skipped)
	}
	if len(changes) != 1 {
		t.Fatalf("len(changes) = %d, want 1", len(changes))
	}
	if changes[0].Kind != ChangeUpdated {
		t.Errorf("kind = %q, want %q", changes[0].Kind, ChangeUpdated)
	}
	review := changes[0].Review
	if review.Sentiment != nil {
		t.Errorf("sentiment = %v, want nil after edit", *review.Sentiment)
	}
	if review.ProcessedAt != nil {
		t.Errorf("processedAt = %v, want nil after edit", *review.ProcessedAt)
	}
	if review.ProcessingAttempts != 0 {
		t.Errorf("attempts = %d, want 0 after edit", review.ProcessingAttempts)
	}
}

func TestReconcileMixedBatchCountsAddUp(t *testing.T) {
	published := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	batch := []models.RawReview{
		rawReview("a", "new one", published),
		rawReview("b", "same text", published),
		rawReview("c", "changed text", published),
		rawReview("d", "another new", published),
	}
	existing := map[string]string{
		"b": "same text",
		"c": "old text",
	}

	changes, skipped := Reconcile(batch, existing)

	var saved, updated int
	for _, change := range changes {
		switch change.Kind {
		case ChangeNew:
			saved++
		case ChangeUpdated:
			updated++
		}
	}
	if saved != 2 || updated != 1 || skipped != 1 {
		t.Errorf("saved=%d updated=%d skipped=%d, want 2/1/1", saved, updated, skipped)
	}
	if saved+updated+skipped != len(batch) {
		t.Errorf("counts do not cover the batch: %d != %d", saved+updated+skipped, len(batch))
	}
}

func TestReconcileDuplicateIDsClassifiedAgainstSnapshot(t *testing.T) {
	published := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	batch := []models.RawReview{
		rawReview("dup", "first copy", published),
		rawReview("dup", "second copy", published),
	}

	changes, skipped := Reconcile(batch, map[string]string{})

	// Both copies are absent from the snapshot, so both classify as new;
	// the later write wins at the store.
	if skipped != 0 {
		t.Fatalf("skipped = %d, want 0", skipped)
	}
	if len(changes) != 2 {
		t.Fatalf("len(changes) = %d, want 2", len(changes))
	}
	for _, change := range changes {
		if change.Kind != ChangeNew {
			t.Errorf("kind = %q, want %q", change.Kind, ChangeNew)
		}
	}
}
