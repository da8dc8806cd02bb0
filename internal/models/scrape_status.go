package models

import "time"

// ScrapeCategory distinguishes how a scrape attempt was triggered.
type ScrapeCategory string

const (
	ScrapeCategoryManual    ScrapeCategory = "manual"
	ScrapeCategoryScheduled ScrapeCategory = "scheduled"
)

// ScrapeState is the lifecycle state of a scrape attempt. A record is
// created in ScrapeStateRunning and transitions exactly once to a terminal
// state; it never re-enters running.
type ScrapeState string

const (
	ScrapeStateRunning   ScrapeState = "running"
	ScrapeStateCompleted ScrapeState = "completed"
	ScrapeStateFailed    ScrapeState = "failed"
)

// ScrapeStatus is one entry in the scrape attempt log. IDs are assigned
// sequentially by the store, so ordering by ID yields attempt order.
// At most one record across the whole log may be running at any time.
type ScrapeStatus struct {
	ID        int64          `json:"id"`
	Category  ScrapeCategory `json:"category"`
	State     ScrapeState    `json:"state"`
	StartedAt time.Time      `json:"started_at"`
	EndedAt   *time.Time     `json:"ended_at,omitempty"`
	Message   string         `json:"message,omitempty"`
}

// Terminal reports whether the attempt has finished (completed or failed).
func (s *ScrapeStatus) Terminal() bool {
	return s.State == ScrapeStateCompleted || s.State == ScrapeStateFailed
}
