package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Fauzanmhr/skripsi/internal/models"
)

// PostgresSettingsRepository implements the settings singletons over
// PostgreSQL: the auto-scrape schedule and the review source URL. Both
// tables hold exactly one row with id = 1, created on first read.
type PostgresSettingsRepository struct {
	db *sql.DB
}

// NewPostgresSettingsRepository creates a new PostgreSQL settings
// repository.
func NewPostgresSettingsRepository(db *sql.DB) *PostgresSettingsRepository {
	return &PostgresSettingsRepository{db: db}
}

// GetAutoScrape returns the persisted scheduler settings, creating the
// default disabled row when missing.
func (r *PostgresSettingsRepository) GetAutoScrape(ctx context.Context) (models.AutoScrapeSettings, error) {
	var settings models.AutoScrapeSettings
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO auto_scrape_settings (id, enabled, next_run_at)
		VALUES (1, FALSE, NULL)
		ON CONFLICT (id) DO UPDATE SET id = auto_scrape_settings.id
		RETURNING enabled, next_run_at
	`).Scan(&settings.Enabled, &settings.NextRunAt)
	if err != nil {
		return models.AutoScrapeSettings{}, fmt.Errorf("failed to load auto-scrape settings: %w", err)
	}
	return settings, nil
}

// SaveAutoScrape persists the scheduler settings.
func (r *PostgresSettingsRepository) SaveAutoScrape(ctx context.Context, settings models.AutoScrapeSettings) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO auto_scrape_settings (id, enabled, next_run_at)
		VALUES (1, $1, $2)
		ON CONFLICT (id) DO UPDATE SET enabled = EXCLUDED.enabled, next_run_at = EXCLUDED.next_run_at
	`, settings.Enabled, settings.NextRunAt)
	if err != nil {
		return fmt.Errorf("failed to save auto-scrape settings: %w", err)
	}
	return nil
}

// GetSourceURL returns the configured review source locator, creating the
// empty row when missing.
func (r *PostgresSettingsRepository) GetSourceURL(ctx context.Context) (string, error) {
	var url string
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO source_settings (id, url)
		VALUES (1, '')
		ON CONFLICT (id) DO UPDATE SET id = source_settings.id
		RETURNING url
	`).Scan(&url)
	if err != nil {
		return "", fmt.Errorf("failed to load source URL: %w", err)
	}
	return url, nil
}

// UpdateSourceURL stores a new locator. A change of locator invalidates the
// collected data, so reviews and the scrape history are wiped in the same
// transaction; the returned flag reports whether that happened.
func (r *PostgresSettingsRepository) UpdateSourceURL(ctx context.Context, url string) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin source update: %w", err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, `
		INSERT INTO source_settings (id, url)
		VALUES (1, '')
		ON CONFLICT (id) DO UPDATE SET id = source_settings.id
		RETURNING url
	`).Scan(&current)
	if err != nil {
		return false, fmt.Errorf("failed to load current source URL: %w", err)
	}

	changed := current != "" && current != url
	if changed {
		if _, err := tx.ExecContext(ctx, "DELETE FROM reviews"); err != nil {
			return false, fmt.Errorf("failed to wipe reviews: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM scrape_status"); err != nil {
			return false, fmt.Errorf("failed to wipe scrape history: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, "UPDATE source_settings SET url = $1 WHERE id = 1", url); err != nil {
		return false, fmt.Errorf("failed to save source URL: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit source update: %w", err)
	}
	return changed, nil
}
