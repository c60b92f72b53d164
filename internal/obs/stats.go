package obs

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// StatsEvent is one rate limiter decision.
type StatsEvent struct {
	Key     string
	Method  string
	Path    string
	Allowed bool
	At      time.Time
}

// StatsRecorder receives rate limiter decisions. Implementations must be safe
// for concurrent use; errors are reported to the caller but never change the
// decision.
type StatsRecorder interface {
	Record(ctx context.Context, ev StatsEvent) error
}

// Record counts a decision in memory so it shows up on /metrics.
func (m *Metrics) Record(_ context.Context, ev StatsEvent) error {
	if ev.Allowed {
		m.rateAllowed.Add(1)
	} else {
		m.rateDenied.Add(1)
	}
	return nil
}

// MultiRecorder fans an event out to every recorder and joins their errors.
type MultiRecorder []StatsRecorder

func (mr MultiRecorder) Record(ctx context.Context, ev StatsEvent) error {
	var errs []error
	for _, r := range mr {
		if r == nil {
			continue
		}
		if err := r.Record(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RedisStats aggregates decisions in Redis hashes: a cumulative total, a
// per-minute series and per-route counters.
type RedisStats struct {
	rdb    redis.UniversalClient
	prefix string
	// ttl applies to the per-minute series only; the total never expires.
	ttl time.Duration
	// routes are the "METHOD /path" keys counted individually; every other
	// request is counted under OtherRoute.
	routes map[string]struct{}
}

// OtherRoute is the route field for requests outside the declared routes.
const OtherRoute = "other"

// RedisStatsOption configures RedisStats.
type RedisStatsOption func(*RedisStats)

// WithStatsPrefix sets the key prefix.
func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStats) {
		s.prefix = strings.Trim(prefix, ":")
	}
}

// WithStatsTTL sets the expiry of per-minute keys.
func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStats) { s.ttl = d }
}

// WithStatsRoutes declares the "METHOD /path" routes counted individually.
func WithStatsRoutes(routes ...string) RedisStatsOption {
	return func(s *RedisStats) {
		for _, r := range routes {
			s.routes[r] = struct{}{}
		}
	}
}

// NewRedisStats creates a recorder writing to rdb.
func NewRedisStats(rdb redis.UniversalClient, opts ...RedisStatsOption) *RedisStats {
	s := &RedisStats{
		rdb:    rdb,
		prefix: "rates:ratelimit:stats",
		ttl:    24 * time.Hour,
		routes: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStats) Record(ctx context.Context, ev StatsEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	field := "denied"
	if ev.Allowed {
		field = "allowed"
	}

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, s.prefix+":total", field, 1)

	bucketKey := fmt.Sprintf("%s:minute:%s", s.prefix, at.UTC().Format("200601021504"))
	pipe.HIncrBy(ctx, bucketKey, field, 1)
	if s.ttl > 0 {
		pipe.Expire(ctx, bucketKey, s.ttl)
	}

	pipe.HIncrBy(ctx, s.prefix+":route", s.route(ev)+":"+field, 1)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record rate limit stats: %w", err)
	}
	return nil
}

// route keeps the route hash bounded: arbitrary paths share one field.
func (s *RedisStats) route(ev StatsEvent) string {
	r := ev.Method + " " + ev.Path
	if _, ok := s.routes[r]; ok {
		return r
	}
	return OtherRoute
}

// Totals reads the cumulative allowed and denied counters.
func (s *RedisStats) Totals(ctx context.Context) (allowed, denied int64, err error) {
	vals, err := s.rdb.HGetAll(ctx, s.prefix+":total").Result()
	if err != nil {
		return 0, 0, fmt.Errorf("read rate limit stats: %w", err)
	}
	allowed, _ = strconv.ParseInt(vals["allowed"], 10, 64)
	denied, _ = strconv.ParseInt(vals["denied"], 10, 64)
	return allowed, denied, nil
}
