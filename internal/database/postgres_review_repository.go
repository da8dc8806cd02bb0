package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/Fauzanmhr/skripsi/internal/ingestion"
	"github.com/Fauzanmhr/skripsi/internal/models"
)

const reviewColumns = `id, author, rating, review_text, published_at, edited_at, language, source,
	sentiment, processed_at, processing_attempts, created_at, updated_at`

// PostgresReviewRepository implements review storage over PostgreSQL.
type PostgresReviewRepository struct {
	db *sql.DB
}

// NewPostgresReviewRepository creates a new PostgreSQL review repository.
func NewPostgresReviewRepository(db *sql.DB) *PostgresReviewRepository {
	return &PostgresReviewRepository{db: db}
}

// Upsert inserts or replaces a review by ID. The whole row including the
// classification columns is written, so reconciliation decisions about
// resetting sentiment are carried through unchanged.
func (r *PostgresReviewRepository) Upsert(ctx context.Context, review models.Review) error {
	query := `
		INSERT INTO reviews (id, author, rating, review_text, published_at, edited_at, language, source,
			sentiment, processed_at, processing_attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET
			author = EXCLUDED.author,
			rating = EXCLUDED.rating,
			review_text = EXCLUDED.review_text,
			published_at = EXCLUDED.published_at,
			edited_at = EXCLUDED.edited_at,
			language = EXCLUDED.language,
			source = EXCLUDED.source,
			sentiment = EXCLUDED.sentiment,
			processed_at = EXCLUDED.processed_at,
			processing_attempts = EXCLUDED.processing_attempts,
			updated_at = NOW()
	`
	var sentiment *string
	if review.Sentiment != nil {
		s := string(*review.Sentiment)
		sentiment = &s
	}

	_, err := r.db.ExecContext(ctx, query,
		review.ID,
		review.Author,
		review.Rating,
		review.Text,
		review.PublishedAt,
		review.EditedAt,
		review.Language,
		review.Source,
		sentiment,
		review.ProcessedAt,
		review.ProcessingAttempts,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert review %s: %w", review.ID, err)
	}
	return nil
}

// GetTextsByIDs returns the stored text of each existing review in ids.
func (r *PostgresReviewRepository) GetTextsByIDs(ctx context.Context, ids []string) (map[string]string, error) {
	texts := make(map[string]string)
	if len(ids) == 0 {
		return texts, nil
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT id, review_text FROM reviews WHERE id = ANY($1)", pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to query review texts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, text string
		if err := rows.Scan(&id, &text); err != nil {
			return nil, fmt.Errorf("failed to scan review text: %w", err)
		}
		texts[id] = text
	}
	return texts, rows.Err()
}

// ListPending returns unclassified reviews below the attempt ceiling,
// oldest publication first.
func (r *PostgresReviewRepository) ListPending(ctx context.Context, maxAttempts, limit int) ([]models.Review, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM reviews
		WHERE sentiment IS NULL AND processing_attempts < $1
		ORDER BY published_at ASC
		LIMIT $2
	`, reviewColumns)

	rows, err := r.db.QueryContext(ctx, query, maxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending reviews: %w", err)
	}
	defer rows.Close()

	return scanReviews(rows)
}

// MarkClassified stores a label and counts the successful attempt.
func (r *PostgresReviewRepository) MarkClassified(ctx context.Context, id string, sentiment models.Sentiment, processedAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE reviews
		SET sentiment = $2, processed_at = $3, processing_attempts = processing_attempts + 1, updated_at = NOW()
		WHERE id = $1
	`, id, string(sentiment), processedAt)
	if err != nil {
		return fmt.Errorf("failed to mark review %s classified: %w", id, err)
	}
	return nil
}

// RecordFailedAttempt counts a failed classification attempt.
func (r *PostgresReviewRepository) RecordFailedAttempt(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE reviews
		SET processing_attempts = processing_attempts + 1, updated_at = NOW()
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("failed to record attempt for review %s: %w", id, err)
	}
	return nil
}

// ResetExhausted returns exhausted unclassified reviews to the backfill
// queue.
func (r *PostgresReviewRepository) ResetExhausted(ctx context.Context, maxAttempts int) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE reviews
		SET processing_attempts = 0, updated_at = NOW()
		WHERE sentiment IS NULL AND processing_attempts >= $1
	`, maxAttempts)
	if err != nil {
		return 0, fmt.Errorf("failed to reset exhausted reviews: %w", err)
	}
	return result.RowsAffected()
}

// List returns reviews matching the filter, newest publication first, plus
// the total match count before pagination.
func (r *PostgresReviewRepository) List(ctx context.Context, filter ingestion.ReviewFilter) ([]models.Review, int, error) {
	conditions := []string{"1=1"}
	args := []interface{}{}

	switch {
	case filter.Sentiment == "pending":
		conditions = append(conditions, "sentiment IS NULL")
	case filter.Sentiment != "":
		args = append(args, filter.Sentiment)
		conditions = append(conditions, fmt.Sprintf("sentiment = $%d", len(args)))
	}
	if filter.StartDate != nil {
		args = append(args, *filter.StartDate)
		conditions = append(conditions, fmt.Sprintf("published_at >= $%d", len(args)))
	}
	if filter.EndDate != nil {
		args = append(args, *filter.EndDate)
		conditions = append(conditions, fmt.Sprintf("published_at <= $%d", len(args)))
	}
	where := strings.Join(conditions, " AND ")

	var total int
	countQuery := "SELECT COUNT(*) FROM reviews WHERE " + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count reviews: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = total
	}
	args = append(args, limit, filter.Offset)
	query := fmt.Sprintf(`
		SELECT %s FROM reviews
		WHERE %s
		ORDER BY published_at DESC
		LIMIT $%d OFFSET $%d
	`, reviewColumns, where, len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list reviews: %w", err)
	}
	defer rows.Close()

	reviews, err := scanReviews(rows)
	if err != nil {
		return nil, 0, err
	}
	return reviews, total, nil
}

// CountBySentiment returns classified review counts per label.
func (r *PostgresReviewRepository) CountBySentiment(ctx context.Context) (map[models.Sentiment]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT sentiment, COUNT(*) FROM reviews
		WHERE sentiment IS NOT NULL
		GROUP BY sentiment
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to count reviews by sentiment: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.Sentiment]int)
	for rows.Next() {
		var label string
		var count int
		if err := rows.Scan(&label, &count); err != nil {
			return nil, fmt.Errorf("failed to scan sentiment count: %w", err)
		}
		counts[models.Sentiment(label)] = count
	}
	return counts, rows.Err()
}

// ListRecentNegative returns the latest reviews labeled negative or
// disappointed, for the dashboard's attention list.
func (r *PostgresReviewRepository) ListRecentNegative(ctx context.Context, limit int) ([]models.Review, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM reviews
		WHERE sentiment IN ($1, $2)
		ORDER BY published_at DESC
		LIMIT $3
	`, reviewColumns)

	rows, err := r.db.QueryContext(ctx, query,
		string(models.SentimentNegative), string(models.SentimentDisappointed), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list negative reviews: %w", err)
	}
	defer rows.Close()

	return scanReviews(rows)
}

func scanReviews(rows *sql.Rows) ([]models.Review, error) {
	var reviews []models.Review
	for rows.Next() {
		var review models.Review
		var sentiment sql.NullString
		err := rows.Scan(
			&review.ID, &review.Author, &review.Rating, &review.Text,
			&review.PublishedAt, &review.EditedAt, &review.Language, &review.Source,
			&sentiment, &review.ProcessedAt, &review.ProcessingAttempts,
			&review.CreatedAt, &review.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		if sentiment.Valid {
			label := models.Sentiment(sentiment.String)
			review.Sentiment = &label
		}
		reviews = append(reviews, review)
	}
	return reviews, rows.Err()
}
