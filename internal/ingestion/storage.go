package ingestion

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Fauzanmhr/skripsi/internal/models"
)

// ReviewRepository defines the storage operations the scrape pipeline and
// the backfill job need over review records.
type ReviewRepository interface {
	// Upsert inserts or replaces a review by its ID.
	Upsert(ctx context.Context, review models.Review) error

	// GetTextsByIDs returns the stored review text for each of the given IDs
	// that exists. Missing IDs are simply absent from the map.
	GetTextsByIDs(ctx context.Context, ids []string) (map[string]string, error)

	// ListPending returns reviews without a sentiment label whose attempt
	// counter is below maxAttempts, oldest publication first.
	ListPending(ctx context.Context, maxAttempts, limit int) ([]models.Review, error)

	// MarkClassified stores a classification result and increments the
	// attempt counter.
	MarkClassified(ctx context.Context, id string, sentiment models.Sentiment, processedAt time.Time) error

	// RecordFailedAttempt increments the attempt counter without touching
	// the sentiment.
	RecordFailedAttempt(ctx context.Context, id string) error

	// ResetExhausted zeroes the attempt counter of unclassified reviews that
	// hit the ceiling, returning them to the backfill queue.
	ResetExhausted(ctx context.Context, maxAttempts int) (int64, error)
}

// ScrapeStatusRepository defines the storage operations over the scrape
// attempt log.
type ScrapeStatusRepository interface {
	// StartAttempt creates a new record in the running state. When another
	// record is already running (any category), no record is created and
	// the conflicting record is returned instead.
	StartAttempt(ctx context.Context, category models.ScrapeCategory, startedAt time.Time) (created *models.ScrapeStatus, conflict *models.ScrapeStatus, err error)

	// Finish transitions a running record to a terminal state.
	Finish(ctx context.Context, id int64, state models.ScrapeState, endedAt time.Time, message string) error

	// RecordFailure inserts a terminal failed record directly, bypassing the
	// running state. Used when an attempt fails before or outside its
	// running record.
	RecordFailure(ctx context.Context, category models.ScrapeCategory, startedAt, endedAt time.Time, message string) (*models.ScrapeStatus, error)

	// FindRunning returns the record currently in the running state, if any.
	FindRunning(ctx context.Context) (*models.ScrapeStatus, error)

	// Latest returns the most recent record of any category.
	Latest(ctx context.Context) (*models.ScrapeStatus, error)

	// LatestTerminalByCategory returns the most recent completed or failed
	// record of the given category.
	LatestTerminalByCategory(ctx context.Context, category models.ScrapeCategory) (*models.ScrapeStatus, error)

	// PurgeTerminal deletes completed and failed records of the given
	// category.
	PurgeTerminal(ctx context.Context, category models.ScrapeCategory) error

	// FailAllRunning transitions every running record to failed. Invoked
	// once at process start to recover from unclean shutdowns.
	FailAllRunning(ctx context.Context, message string, endedAt time.Time) (int64, error)
}

// SettingsRepository defines storage for the auto-scrape settings singleton
// and the configured review source locator.
type SettingsRepository interface {
	GetAutoScrape(ctx context.Context) (models.AutoScrapeSettings, error)
	SaveAutoScrape(ctx context.Context, settings models.AutoScrapeSettings) error

	GetSourceURL(ctx context.Context) (string, error)

	// UpdateSourceURL stores a new locator. When the locator identity
	// changes, all reviews and scrape status records are deleted in the same
	// transaction; the returned flag reports whether that wipe happened.
	UpdateSourceURL(ctx context.Context, url string) (dataDeleted bool, err error)
}

// MemoryReviewRepository implements an in-memory review store for
// testing/development.
type MemoryReviewRepository struct {
	mu      sync.Mutex
	reviews map[string]models.Review

	// UpsertErr, when set, fails Upsert for the listed IDs.
	UpsertErr map[string]error
}

// NewMemoryReviewRepository creates a new in-memory review repository.
func NewMemoryReviewRepository() *MemoryReviewRepository {
	return &MemoryReviewRepository{reviews: make(map[string]models.Review)}
}

// Upsert inserts or replaces a review in memory.
func (r *MemoryReviewRepository) Upsert(ctx context.Context, review models.Review) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err, ok := r.UpsertErr[review.ID]; ok {
		return err
	}

	now := time.Now()
	if existing, ok := r.reviews[review.ID]; ok {
		review.CreatedAt = existing.CreatedAt
	} else {
		review.CreatedAt = now
	}
	review.UpdatedAt = now
	r.reviews[review.ID] = review
	return nil
}

// GetTextsByIDs returns stored texts keyed by ID.
func (r *MemoryReviewRepository) GetTextsByIDs(ctx context.Context, ids []string) (map[string]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	texts := make(map[string]string)
	for _, id := range ids {
		if review, ok := r.reviews[id]; ok {
			texts[id] = review.Text
		}
	}
	return texts, nil
}

// ListPending returns unclassified reviews below the attempt ceiling,
// oldest publication first.
func (r *MemoryReviewRepository) ListPending(ctx context.Context, maxAttempts, limit int) ([]models.Review, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pending := make([]models.Review, 0)
	for _, review := range r.reviews {
		if review.Sentiment == nil && review.ProcessingAttempts < maxAttempts {
			pending = append(pending, review)
		}
	}

	sort.Slice(pending, func(i, j int) bool {
		return pending[i].PublishedAt.Before(pending[j].PublishedAt)
	})

	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

// MarkClassified stores a label and increments the attempt counter.
func (r *MemoryReviewRepository) MarkClassified(ctx context.Context, id string, sentiment models.Sentiment, processedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	review, ok := r.reviews[id]
	if !ok {
		return nil
	}
	review.Sentiment = &sentiment
	review.ProcessedAt = &processedAt
	review.ProcessingAttempts++
	review.UpdatedAt = time.Now()
	r.reviews[id] = review
	return nil
}

// RecordFailedAttempt increments the attempt counter only.
func (r *MemoryReviewRepository) RecordFailedAttempt(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	review, ok := r.reviews[id]
	if !ok {
		return nil
	}
	review.ProcessingAttempts++
	review.UpdatedAt = time.Now()
	r.reviews[id] = review
	return nil
}

// ResetExhausted returns exhausted unclassified reviews to the queue.
func (r *MemoryReviewRepository) ResetExhausted(ctx context.Context, maxAttempts int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var reset int64
	for id, review := range r.reviews {
		if review.Sentiment == nil && review.ProcessingAttempts >= maxAttempts {
			review.ProcessingAttempts = 0
			review.UpdatedAt = time.Now()
			r.reviews[id] = review
			reset++
		}
	}
	return reset, nil
}

// Get returns a stored review by ID, for test assertions.
func (r *MemoryReviewRepository) Get(id string) (models.Review, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	review, ok := r.reviews[id]
	return review, ok
}

// Size returns the number of stored reviews.
func (r *MemoryReviewRepository) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reviews)
}

// List returns reviews matching the filter, newest publication first, plus
// the total match count before pagination.
func (r *MemoryReviewRepository) List(ctx context.Context, filter ReviewFilter) ([]models.Review, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	matching := make([]models.Review, 0)
	for _, review := range r.reviews {
		if filter.Matches(review) {
			matching = append(matching, review)
		}
	}

	sort.Slice(matching, func(i, j int) bool {
		return matching[i].PublishedAt.After(matching[j].PublishedAt)
	})

	total := len(matching)
	start := filter.Offset
	if start > total {
		start = total
	}
	end := total
	if filter.Limit > 0 && start+filter.Limit < total {
		end = start + filter.Limit
	}
	return matching[start:end], total, nil
}

// CountBySentiment returns classified review counts per label.
func (r *MemoryReviewRepository) CountBySentiment(ctx context.Context) (map[models.Sentiment]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	counts := make(map[models.Sentiment]int)
	for _, review := range r.reviews {
		if review.Sentiment != nil {
			counts[*review.Sentiment]++
		}
	}
	return counts, nil
}

// ListRecentNegative returns the latest reviews labeled negative or
// disappointed.
func (r *MemoryReviewRepository) ListRecentNegative(ctx context.Context, limit int) ([]models.Review, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	matching := make([]models.Review, 0)
	for _, review := range r.reviews {
		if review.Sentiment != nil &&
			(*review.Sentiment == models.SentimentNegative || *review.Sentiment == models.SentimentDisappointed) {
			matching = append(matching, review)
		}
	}

	sort.Slice(matching, func(i, j int) bool {
		return matching[i].PublishedAt.After(matching[j].PublishedAt)
	})

	if limit > 0 && len(matching) > limit {
		matching = matching[:limit]
	}
	return matching, nil
}

// ReviewFilter selects reviews for listing. Sentiment filtering supports the
// "pending" pseudo-label for unclassified records.
type ReviewFilter struct {
	Sentiment string // empty, "pending", or a label value
	StartDate *time.Time
	EndDate   *time.Time
	Offset    int
	Limit     int
}

// Matches reports whether a review satisfies the filter predicates.
func (f ReviewFilter) Matches(review models.Review) bool {
	switch {
	case f.Sentiment == "pending":
		if review.Sentiment != nil {
			return false
		}
	case f.Sentiment != "":
		if review.Sentiment == nil || string(*review.Sentiment) != f.Sentiment {
			return false
		}
	}

	if f.StartDate != nil && review.PublishedAt.Before(*f.StartDate) {
		return false
	}
	if f.EndDate != nil && review.PublishedAt.After(*f.EndDate) {
		return false
	}
	return true
}

// MemoryScrapeStatusRepository implements an in-memory scrape status log for
// testing/development.
type MemoryScrapeStatusRepository struct {
	mu      sync.Mutex
	nextID  int64
	records []models.ScrapeStatus

	// FinishErr, when set, fails every Finish call.
	FinishErr error
	// RecordFailureErr, when set, fails every RecordFailure call.
	RecordFailureErr error
}

// NewMemoryScrapeStatusRepository creates a new in-memory status log.
func NewMemoryScrapeStatusRepository() *MemoryScrapeStatusRepository {
	return &MemoryScrapeStatusRepository{nextID: 1}
}

// StartAttempt creates a running record unless one already exists.
func (r *MemoryScrapeStatusRepository) StartAttempt(ctx context.Context, category models.ScrapeCategory, startedAt time.Time) (*models.ScrapeStatus, *models.ScrapeStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.records {
		if r.records[i].State == models.ScrapeStateRunning {
			conflict := r.records[i]
			return nil, &conflict, nil
		}
	}

	record := models.ScrapeStatus{
		ID:        r.nextID,
		Category:  category,
		State:     models.ScrapeStateRunning,
		StartedAt: startedAt,
	}
	r.nextID++
	r.records = append(r.records, record)
	created := record
	return &created, nil, nil
}

// Finish transitions a record to a terminal state.
func (r *MemoryScrapeStatusRepository) Finish(ctx context.Context, id int64, state models.ScrapeState, endedAt time.Time, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.FinishErr != nil {
		return r.FinishErr
	}

	for i := range r.records {
		if r.records[i].ID == id {
			r.records[i].State = state
			r.records[i].EndedAt = &endedAt
			r.records[i].Message = message
			return nil
		}
	}
	return nil
}

// RecordFailure inserts a terminal failed record directly.
func (r *MemoryScrapeStatusRepository) RecordFailure(ctx context.Context, category models.ScrapeCategory, startedAt, endedAt time.Time, message string) (*models.ScrapeStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.RecordFailureErr != nil {
		return nil, r.RecordFailureErr
	}

	record := models.ScrapeStatus{
		ID:        r.nextID,
		Category:  category,
		State:     models.ScrapeStateFailed,
		StartedAt: startedAt,
		EndedAt:   &endedAt,
		Message:   message,
	}
	r.nextID++
	r.records = append(r.records, record)
	created := record
	return &created, nil
}

// FindRunning returns the currently running record, if any.
func (r *MemoryScrapeStatusRepository) FindRunning(ctx context.Context) (*models.ScrapeStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.records {
		if r.records[i].State == models.ScrapeStateRunning {
			record := r.records[i]
			return &record, nil
		}
	}
	return nil, nil
}

// Latest returns the most recent record of any category.
func (r *MemoryScrapeStatusRepository) Latest(ctx context.Context) (*models.ScrapeStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.records) == 0 {
		return nil, nil
	}
	latest := r.records[0]
	for _, record := range r.records[1:] {
		if record.ID > latest.ID {
			latest = record
		}
	}
	return &latest, nil
}

// LatestTerminalByCategory returns the most recent terminal record of one
// category.
func (r *MemoryScrapeStatusRepository) LatestTerminalByCategory(ctx context.Context, category models.ScrapeCategory) (*models.ScrapeStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var latest *models.ScrapeStatus
	for i := range r.records {
		record := r.records[i]
		if record.Category != category || !record.Terminal() {
			continue
		}
		if latest == nil || record.ID > latest.ID {
			latest = &record
		}
	}
	if latest == nil {
		return nil, nil
	}
	found := *latest
	return &found, nil
}

// PurgeTerminal deletes terminal records of one category.
func (r *MemoryScrapeStatusRepository) PurgeTerminal(ctx context.Context, category models.ScrapeCategory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.records[:0]
	for _, record := range r.records {
		if record.Category == category && record.Terminal() {
			continue
		}
		kept = append(kept, record)
	}
	r.records = kept
	return nil
}

// FailAllRunning transitions every running record to failed.
func (r *MemoryScrapeStatusRepository) FailAllRunning(ctx context.Context, message string, endedAt time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var count int64
	for i := range r.records {
		if r.records[i].State == models.ScrapeStateRunning {
			r.records[i].State = models.ScrapeStateFailed
			r.records[i].EndedAt = &endedAt
			r.records[i].Message = message
			count++
		}
	}
	return count, nil
}

// All returns a copy of every record, for test assertions.
func (r *MemoryScrapeStatusRepository) All() []models.ScrapeStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.ScrapeStatus, len(r.records))
	copy(out, r.records)
	return out
}

// MemorySettingsRepository implements in-memory settings storage for
// testing/development.
type MemorySettingsRepository struct {
	mu         sync.Mutex
	autoScrape models.AutoScrapeSettings
	sourceURL  string

	// OnWipe is invoked when a source URL change deletes existing data.
	OnWipe func()
}

// NewMemorySettingsRepository creates in-memory settings storage.
func NewMemorySettingsRepository() *MemorySettingsRepository {
	return &MemorySettingsRepository{}
}

// GetAutoScrape returns the persisted scheduler settings.
func (r *MemorySettingsRepository) GetAutoScrape(ctx context.Context) (models.AutoScrapeSettings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.autoScrape, nil
}

// SaveAutoScrape persists the scheduler settings.
func (r *MemorySettingsRepository) SaveAutoScrape(ctx context.Context, settings models.AutoScrapeSettings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.autoScrape = settings
	return nil
}

// GetSourceURL returns the configured review source locator.
func (r *MemorySettingsRepository) GetSourceURL(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sourceURL, nil
}

// SetSourceURL sets the locator without wipe semantics, for test setup.
func (r *MemorySettingsRepository) SetSourceURL(url string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sourceURL = url
}

// UpdateSourceURL stores a new locator, signalling a wipe when the identity
// changes.
func (r *MemorySettingsRepository) UpdateSourceURL(ctx context.Context, url string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	changed := r.sourceURL != "" && r.sourceURL != url
	r.sourceURL = url
	if changed && r.OnWipe != nil {
		r.OnWipe()
	}
	return changed, nil
}
