package sentiment

import (
	"context"
	"log/slog"
	"time"

	"github.com/Fauzanmhr/skripsi/internal/models"
)

// ReviewQueue is the slice of review storage the backfill job needs.
type ReviewQueue interface {
	ListPending(ctx context.Context, maxAttempts, limit int) ([]models.Review, error)
	MarkClassified(ctx context.Context, id string, sentiment models.Sentiment, processedAt time.Time) error
	RecordFailedAttempt(ctx context.Context, id string) error
}

// BackfillMetrics receives classification observations. A nil value
// disables instrumentation.
type BackfillMetrics interface {
	ObserveClassification(result string)
	ObserveBackfillBatch(d time.Duration)
}

// Backfill periodically classifies reviews that have no sentiment label
// yet: new reviews and reviews whose text changed since their last label.
type Backfill struct {
	queue       ReviewQueue
	classifier  Classifier
	metrics     BackfillMetrics
	logger      *slog.Logger
	interval    time.Duration
	maxAttempts int
	batchSize   int
	stopChan    chan struct{}
}

// NewBackfill creates the backfill job.
func NewBackfill(
	queue ReviewQueue,
	classifier Classifier,
	metrics BackfillMetrics,
	logger *slog.Logger,
	interval time.Duration,
	maxAttempts int,
	batchSize int,
) *Backfill {
	return &Backfill{
		queue:       queue,
		classifier:  classifier,
		metrics:     metrics,
		logger:      logger,
		interval:    interval,
		maxAttempts: maxAttempts,
		batchSize:   batchSize,
		stopChan:    make(chan struct{}),
	}
}

// Start begins the backfill loop. Blocks until Stop is called or the
// context is cancelled; callers run it in a goroutine.
func (b *Backfill) Start(ctx context.Context) {
	b.logger.Info("Starting sentiment backfill job", "interval", b.interval)
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	// Run once immediately on start
	b.runBatch(ctx)

	for {
		select {
		case <-ticker.C:
			b.runBatch(ctx)
		case <-b.stopChan:
			b.logger.Info("Sentiment backfill job stopped")
			return
		case <-ctx.Done():
			b.logger.Info("Sentiment backfill job stopping due to context cancellation")
			return
		}
	}
}

// Stop stops the backfill loop.
func (b *Backfill) Stop() {
	close(b.stopChan)
}

func (b *Backfill) runBatch(ctx context.Context) {
	start := time.Now()
	classified, failed, err := b.DrainOnce(ctx)
	if err != nil {
		b.logger.Error("Backfill batch failed", "error", err)
		return
	}
	if b.metrics != nil {
		b.metrics.ObserveBackfillBatch(time.Since(start))
	}
	if classified > 0 || failed > 0 {
		b.logger.Info("Backfill batch finished", "classified", classified, "failed", failed)
	}
}

// DrainOnce classifies one batch of pending reviews sequentially, oldest
// publication first. A failed classification advances that review's attempt
// counter and moves on; it never aborts the batch. Reviews at the attempt
// ceiling are excluded from the queue until an operator resets them.
func (b *Backfill) DrainOnce(ctx context.Context) (classified, failed int, err error) {
	pending, err := b.queue.ListPending(ctx, b.maxAttempts, b.batchSize)
	if err != nil {
		return 0, 0, err
	}

	for _, review := range pending {
		if ctx.Err() != nil {
			return classified, failed, ctx.Err()
		}

		label, err := b.classifier.Classify(ctx, review.Text)
		if err != nil {
			failed++
			b.observe("failure")
			b.logger.Warn("Failed to classify review", "review_id", review.ID, "error", err)
			if err := b.queue.RecordFailedAttempt(ctx, review.ID); err != nil {
				b.logger.Error("Failed to record classification attempt", "review_id", review.ID, "error", err)
			}
			continue
		}

		if err := b.queue.MarkClassified(ctx, review.ID, label, time.Now()); err != nil {
			failed++
			b.observe("failure")
			b.logger.Error("Failed to persist classification", "review_id", review.ID, "error", err)
			continue
		}
		classified++
		b.observe("success")
	}

	return classified, failed, nil
}

func (b *Backfill) observe(result string) {
	if b.metrics != nil {
		b.metrics.ObserveClassification(result)
	}
}
