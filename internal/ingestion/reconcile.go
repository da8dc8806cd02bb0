package ingestion

import (
	"github.com/Fauzanmhr/skripsi/internal/models"
)

// ChangeKind classifies a reconciliation decision for a single raw review.
type ChangeKind string

const (
	// ChangeNew marks a review not present in the store.
	ChangeNew ChangeKind = "new"
	// ChangeUpdated marks a review whose stored text differs from the
	// scraped text.
	ChangeUpdated ChangeKind = "updated"
)

// Change is a single write decision produced by reconciliation.
type Change struct {
	Kind   ChangeKind
	Review models.Review
}

// Reconcile compares a scraped batch against the stored texts and returns
// the writes to apply plus the number of unchanged records. A review whose
// text changed loses its sentiment label and its processing history so the
// backfill job classifies it again.
//
// The existing map is a snapshot taken before the batch is applied, so
// duplicate IDs inside one batch are each classified against the same
// snapshot; later writes win at the store.
func Reconcile(batch []models.RawReview, existing map[string]string) ([]Change, int) {
	changes := make([]Change, 0, len(batch))
	skipped := 0

	for _, raw := range batch {
		storedText, found := existing[raw.ID]
		if found && storedText == raw.Text {
			skipped++
			continue
		}

		kind := ChangeNew
		if found {
			kind = ChangeUpdated
		}

		changes = append(changes, Change{
			Kind: kind,
			Review: models.Review{
				ID:          raw.ID,
				Author:      raw.Author,
				Rating:      raw.Rating,
				Text:        raw.Text,
				PublishedAt: raw.PublishedAt,
				EditedAt:    raw.EditedAt,
				Language:    raw.Language,
				Source:      raw.Source,
			},
		})
	}

	return changes, skipped
}

// Counts aggregates the outcome of applying one reconciled batch.
type Counts struct {
	Saved   int `json:"saved"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Errors  int `json:"errors"`
}

// Total returns the number of raw reviews the counts account for.
func (c Counts) Total() int {
	return c.Saved + c.Updated + c.Skipped + c.Errors
}
