package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alex-user-go/rates/internal/obs"
	"github.com/alex-user-go/rates/internal/ratelimit"
)

// Limiter is the admission decision used by RateLimit.
type Limiter interface {
	Enabled() bool
	Take(ctx context.Context, id string) (ratelimit.Decision, error)
}

// RateLimitOptions configures RateLimit.
type RateLimitOptions struct {
	Limiter Limiter
	// KeyFn identifies the caller; defaults to ClientIP(false).
	KeyFn func(*http.Request) string
	// PathPrefix selects the limited paths; defaults to "/api/".
	PathPrefix string
	Stats      obs.StatsRecorder
	Logger     *slog.Logger
	Now        func() time.Time
}

// RateLimit admits requests through the limiter. Limited responses carry
// X-RateLimit-* headers; denials are answered with 429 and Retry-After. When
// the limiter state cannot be read the request is let through and logged.
func RateLimit(opts RateLimitOptions) func(http.Handler) http.Handler {
	if opts.KeyFn == nil {
		opts.KeyFn = ClientIP(false)
	}
	if opts.PathPrefix == "" {
		opts.PathPrefix = "/api/"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !opts.Limiter.Enabled() || !strings.HasPrefix(r.URL.Path, opts.PathPrefix) {
				next.ServeHTTP(w, r)
				return
			}

			key := opts.KeyFn(r)
			dec, err := opts.Limiter.Take(r.Context(), key)
			if err != nil {
				opts.Logger.Error("rate limit check failed",
					"request_id", RequestID(r.Context()),
					"client_ip", key,
					"error", err,
				)
				next.ServeHTTP(w, r)
				return
			}

			if opts.Stats != nil {
				err := opts.Stats.Record(r.Context(), obs.StatsEvent{
					Key:     key,
					Method:  r.Method,
					Path:    r.URL.Path,
					Allowed: dec.Allowed,
					At:      opts.Now(),
				})
				if err != nil {
					opts.Logger.Warn("failed to record rate limit stats", "error", err)
				}
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(dec.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(dec.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(dec.ResetAt.Unix(), 10))

			if !dec.Allowed {
				retryAfter := dec.RetryAfter(opts.Now())
				h.Set("Retry-After", strconv.Itoa(retryAfter))
				opts.Logger.Warn("rate limit exceeded",
					"request_id", RequestID(r.Context()),
					"client_ip", key,
					"retry_after", retryAfter,
				)
				WriteError(w, http.StatusTooManyRequests, ErrorDetail{
					Message:    "Rate limit exceeded",
					RetryAfter: &retryAfter,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
