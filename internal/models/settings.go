package models

import "time"

// AutoScrapeSettings is the persisted singleton controlling the scheduled
// scraper. NextRunAt is null whenever the scheduler is disabled, and always
// strictly in the future (relative to the moment it was computed) when
// enabled; stale past-due values are corrected on load.
type AutoScrapeSettings struct {
	Enabled   bool       `json:"enabled"`
	NextRunAt *time.Time `json:"next_run_at,omitempty"`
}
