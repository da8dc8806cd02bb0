package ingestion

import (
	"log/slog"
	"sync"

	"github.com/Fauzanmhr/skripsi/internal/models"
)

// StatusListener receives scrape status transitions as they happen.
type StatusListener interface {
	OnStatusChanged(status models.ScrapeStatus)
}

// StatusBroadcaster fans scrape status transitions out to registered
// listeners. Safe for concurrent use.
type StatusBroadcaster struct {
	mu        sync.RWMutex
	listeners []StatusListener
}

// NewStatusBroadcaster creates an empty broadcaster.
func NewStatusBroadcaster() *StatusBroadcaster {
	return &StatusBroadcaster{}
}

// Subscribe registers a listener for future transitions.
func (b *StatusBroadcaster) Subscribe(listener StatusListener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, listener)
}

// Notify delivers a transition to every registered listener, synchronously
// and in registration order.
func (b *StatusBroadcaster) Notify(status models.ScrapeStatus) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, listener := range b.listeners {
		listener.OnStatusChanged(status)
	}
}

// LogListener writes scrape status transitions to a structured logger.
type LogListener struct {
	logger *slog.Logger
}

// NewLogListener creates a listener logging to the given logger.
func NewLogListener(logger *slog.Logger) *LogListener {
	return &LogListener{logger: logger}
}

// OnStatusChanged logs one transition.
func (l *LogListener) OnStatusChanged(status models.ScrapeStatus) {
	attrs := []any{
		"id", status.ID,
		"category", string(status.Category),
		"state", string(status.State),
	}
	if status.Message != "" {
		attrs = append(attrs, "message", status.Message)
	}
	l.logger.Info("Scrape status changed", attrs...)
}
