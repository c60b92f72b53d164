package obs

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
)

// Metrics tracks application metrics using atomic counters.
type Metrics struct {
	requests         atomic.Int64
	cacheHits        atomic.Int64
	vendorErrors     atomic.Int64
	validationErrors atomic.Int64
	rateAllowed      atomic.Int64
	rateDenied       atomic.Int64
	logger           *slog.Logger
}

// NewMetrics creates a new Metrics instance.
func NewMetrics(logger *slog.Logger) *Metrics {
	return &Metrics{
		logger: logger,
	}
}

// IncRequests increments the total quote request counter.
func (m *Metrics) IncRequests() {
	m.requests.Add(1)
}

// IncCacheHits increments the cache hits counter.
func (m *Metrics) IncCacheHits() {
	m.cacheHits.Add(1)
}

// IncVendorErrors increments the vendor errors counter.
func (m *Metrics) IncVendorErrors() {
	m.vendorErrors.Add(1)
}

// IncValidationErrors increments the rejected request counter.
func (m *Metrics) IncValidationErrors() {
	m.validationErrors.Add(1)
}

// Snapshot returns current metric values.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Requests:         m.requests.Load(),
		CacheHits:        m.cacheHits.Load(),
		VendorErrors:     m.vendorErrors.Load(),
		ValidationErrors: m.validationErrors.Load(),
		RateLimitAllowed: m.rateAllowed.Load(),
		RateLimitDenied:  m.rateDenied.Load(),
	}
}

// MetricsSnapshot represents a point-in-time snapshot of metrics.
type MetricsSnapshot struct {
	Requests         int64
	CacheHits        int64
	VendorErrors     int64
	ValidationErrors int64
	RateLimitAllowed int64
	RateLimitDenied  int64
}

// HealthHandler returns a handler for /healthz requests.
func HealthHandler(logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.Error("failed to write health response", "error", err)
		}
	}
}

// MetricsHandler returns a handler for /metrics requests in Prometheus format.
func (m *Metrics) MetricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snapshot := m.Snapshot()

		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		w.WriteHeader(http.StatusOK)

		counters := []struct {
			name  string
			help  string
			value int64
		}{
			{"quote_requests_total", "Total number of quote requests", snapshot.Requests},
			{"quote_cache_hits_total", "Total number of vendor responses served from cache", snapshot.CacheHits},
			{"vendor_errors_total", "Total number of failed vendor calls", snapshot.VendorErrors},
			{"validation_errors_total", "Total number of rejected quote requests", snapshot.ValidationErrors},
			{"ratelimit_allowed_total", "Total number of requests admitted by the rate limiter", snapshot.RateLimitAllowed},
			{"ratelimit_denied_total", "Total number of requests denied by the rate limiter", snapshot.RateLimitDenied},
		}

		for _, c := range counters {
			if _, err := fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s counter\n%s %d\n", c.name, c.help, c.name, c.name, c.value); err != nil {
				m.logger.Error("failed to write metrics", "error", err)
				return
			}
		}
	}
}
