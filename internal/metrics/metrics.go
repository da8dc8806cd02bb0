package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector exposes Prometheus metrics for inbound HTTP traffic and for the
// scrape/classification pipeline.
type Collector struct {
	registry        *prometheus.Registry
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	scrapesTotal          *prometheus.CounterVec
	reconciledTotal       *prometheus.CounterVec
	classificationsTotal  *prometheus.CounterVec
	backfillBatchDuration prometheus.Histogram
}

// NewCollector constructs a collector with default histograms/counters.
func NewCollector() (*Collector, error) {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "reviewdash",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Latency distribution for inbound HTTP requests.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reviewdash",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of inbound HTTP requests.",
	}, []string{"method", "path", "status"})

	scrapesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reviewdash",
		Subsystem: "scrape",
		Name:      "attempts_total",
		Help:      "Scrape attempts by trigger category and result.",
	}, []string{"category", "result"})

	reconciledTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reviewdash",
		Subsystem: "scrape",
		Name:      "reviews_reconciled_total",
		Help:      "Incoming reviews by reconciliation outcome.",
	}, []string{"outcome"})

	classificationsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reviewdash",
		Subsystem: "sentiment",
		Name:      "classifications_total",
		Help:      "Sentiment classification calls by result.",
	}, []string{"result"})

	backfillBatchDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "reviewdash",
		Subsystem: "sentiment",
		Name:      "backfill_batch_duration_seconds",
		Help:      "Duration of one backfill drain cycle.",
		Buckets:   prometheus.DefBuckets,
	})

	collectors := []prometheus.Collector{
		requestDuration,
		requestTotal,
		scrapesTotal,
		reconciledTotal,
		classificationsTotal,
		backfillBatchDuration,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}

	return &Collector{
		registry:              registry,
		requestDuration:       requestDuration,
		requestTotal:          requestTotal,
		scrapesTotal:          scrapesTotal,
		reconciledTotal:       reconciledTotal,
		classificationsTotal:  classificationsTotal,
		backfillBatchDuration: backfillBatchDuration,
	}, nil
}

// Handler returns an HTTP handler for exposing Prometheus metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler to record HTTP metrics.
func (c *Collector) InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(rw.status)
		path := r.URL.Path

		c.requestTotal.WithLabelValues(r.Method, path, status).Inc()
		c.requestDuration.WithLabelValues(r.Method, path, status).Observe(duration)
	})
}

// ObserveScrape records the outcome of one scrape attempt.
func (c *Collector) ObserveScrape(category, result string) {
	c.scrapesTotal.WithLabelValues(category, result).Inc()
}

// ObserveReconciliation records reconciliation counters for one batch.
func (c *Collector) ObserveReconciliation(saved, updated, skipped, errors int) {
	c.reconciledTotal.WithLabelValues("saved").Add(float64(saved))
	c.reconciledTotal.WithLabelValues("updated").Add(float64(updated))
	c.reconciledTotal.WithLabelValues("skipped").Add(float64(skipped))
	c.reconciledTotal.WithLabelValues("error").Add(float64(errors))
}

// ObserveClassification records one classifier call result.
func (c *Collector) ObserveClassification(result string) {
	c.classificationsTotal.WithLabelValues(result).Inc()
}

// ObserveBackfillBatch records the duration of one drain cycle.
func (c *Collector) ObserveBackfillBatch(d time.Duration) {
	c.backfillBatchDuration.Observe(d.Seconds())
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
