package ingestion

import (
	"fmt"

	"github.com/Fauzanmhr/skripsi/internal/models"
)

// ConflictError is returned when a scrape attempt is rejected because
// another attempt is already running. It is expected contention, not a
// fault: manual callers surface it, the scheduler silently skips the tick.
type ConflictError struct {
	Category models.ScrapeCategory
	Existing *models.ScrapeStatus
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("another scrape (%s) is already running", e.Category)
}

// ConfigurationError is returned when a scrape cannot start because required
// configuration is missing. No status record is written.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return e.Reason
}

// FetchError wraps a failure of the external review source: unreachable,
// rate limited, or returning unparseable data.
type FetchError struct {
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch reviews: %v", e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
