package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/Fauzanmhr/skripsi/internal/models"
)

// PostgresScrapeStatusRepository implements the scrape attempt log over
// PostgreSQL. The single-running invariant is enforced by a partial unique
// index over rows in the running state, so concurrent StartAttempt calls
// race at the database rather than in application code.
type PostgresScrapeStatusRepository struct {
	db *sql.DB
}

// NewPostgresScrapeStatusRepository creates a new PostgreSQL status log.
func NewPostgresScrapeStatusRepository(db *sql.DB) *PostgresScrapeStatusRepository {
	return &PostgresScrapeStatusRepository{db: db}
}

// StartAttempt inserts a running record. When the partial unique index
// rejects the insert, the conflicting running record is returned instead.
func (r *PostgresScrapeStatusRepository) StartAttempt(ctx context.Context, category models.ScrapeCategory, startedAt time.Time) (*models.ScrapeStatus, *models.ScrapeStatus, error) {
	status := &models.ScrapeStatus{
		Category:  category,
		State:     models.ScrapeStateRunning,
		StartedAt: startedAt,
	}

	err := r.db.QueryRowContext(ctx, `
		INSERT INTO scrape_status (category, state, started_at)
		VALUES ($1, $2, $3)
		RETURNING id
	`, string(category), string(models.ScrapeStateRunning), startedAt).Scan(&status.ID)
	if err == nil {
		return status, nil, nil
	}

	if !isUniqueViolation(err) {
		return nil, nil, fmt.Errorf("failed to start scrape attempt: %w", err)
	}

	conflict, findErr := r.FindRunning(ctx)
	if findErr != nil {
		return nil, nil, fmt.Errorf("failed to load conflicting scrape: %w", findErr)
	}
	if conflict == nil {
		// The running scrape finished between the insert and the lookup;
		// treat it as contention and let the caller retry.
		conflict = &models.ScrapeStatus{Category: category, State: models.ScrapeStateRunning, StartedAt: startedAt}
	}
	return nil, conflict, nil
}

// Finish transitions a running record to a terminal state.
func (r *PostgresScrapeStatusRepository) Finish(ctx context.Context, id int64, state models.ScrapeState, endedAt time.Time, message string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE scrape_status
		SET state = $2, ended_at = $3, message = $4
		WHERE id = $1 AND state = $5
	`, id, string(state), endedAt, message, string(models.ScrapeStateRunning))
	if err != nil {
		return fmt.Errorf("failed to finish scrape %d: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to finish scrape %d: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("scrape %d is not running", id)
	}
	return nil
}

// RecordFailure inserts a terminal failed record directly.
func (r *PostgresScrapeStatusRepository) RecordFailure(ctx context.Context, category models.ScrapeCategory, startedAt, endedAt time.Time, message string) (*models.ScrapeStatus, error) {
	status := &models.ScrapeStatus{
		Category:  category,
		State:     models.ScrapeStateFailed,
		StartedAt: startedAt,
		EndedAt:   &endedAt,
		Message:   message,
	}

	err := r.db.QueryRowContext(ctx, `
		INSERT INTO scrape_status (category, state, started_at, ended_at, message)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, string(category), string(models.ScrapeStateFailed), startedAt, endedAt, message).Scan(&status.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to record scrape failure: %w", err)
	}
	return status, nil
}

// FindRunning returns the record currently in the running state, if any.
func (r *PostgresScrapeStatusRepository) FindRunning(ctx context.Context) (*models.ScrapeStatus, error) {
	return r.queryOne(ctx, `
		SELECT id, category, state, started_at, ended_at, message
		FROM scrape_status
		WHERE state = $1
		LIMIT 1
	`, string(models.ScrapeStateRunning))
}

// Latest returns the most recent record of any category.
func (r *PostgresScrapeStatusRepository) Latest(ctx context.Context) (*models.ScrapeStatus, error) {
	return r.queryOne(ctx, `
		SELECT id, category, state, started_at, ended_at, message
		FROM scrape_status
		ORDER BY id DESC
		LIMIT 1
	`)
}

// LatestTerminalByCategory returns the most recent terminal record of one
// category.
func (r *PostgresScrapeStatusRepository) LatestTerminalByCategory(ctx context.Context, category models.ScrapeCategory) (*models.ScrapeStatus, error) {
	return r.queryOne(ctx, `
		SELECT id, category, state, started_at, ended_at, message
		FROM scrape_status
		WHERE category = $1 AND state IN ($2, $3)
		ORDER BY id DESC
		LIMIT 1
	`, string(category), string(models.ScrapeStateCompleted), string(models.ScrapeStateFailed))
}

// PurgeTerminal deletes terminal records of one category.
func (r *PostgresScrapeStatusRepository) PurgeTerminal(ctx context.Context, category models.ScrapeCategory) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM scrape_status
		WHERE category = $1 AND state IN ($2, $3)
	`, string(category), string(models.ScrapeStateCompleted), string(models.ScrapeStateFailed))
	if err != nil {
		return fmt.Errorf("failed to purge scrape history: %w", err)
	}
	return nil
}

// FailAllRunning transitions every running record to failed.
func (r *PostgresScrapeStatusRepository) FailAllRunning(ctx context.Context, message string, endedAt time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE scrape_status
		SET state = $1, ended_at = $2, message = $3
		WHERE state = $4
	`, string(models.ScrapeStateFailed), endedAt, message, string(models.ScrapeStateRunning))
	if err != nil {
		return 0, fmt.Errorf("failed to sweep running scrapes: %w", err)
	}
	return result.RowsAffected()
}

func (r *PostgresScrapeStatusRepository) queryOne(ctx context.Context, query string, args ...interface{}) (*models.ScrapeStatus, error) {
	var status models.ScrapeStatus
	var category, state string
	var message sql.NullString

	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&status.ID, &category, &state, &status.StartedAt, &status.EndedAt, &message)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query scrape status: %w", err)
	}

	status.Category = models.ScrapeCategory(category)
	status.State = models.ScrapeState(state)
	status.Message = message.String
	return &status, nil
}

// isUniqueViolation detects the partial unique index rejecting a second
// running record.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "duplicate key value violates unique constraint")
}
